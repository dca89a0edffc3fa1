package cli

import (
	"fmt"
	"sort"
	"strings"

	"github.com/spf13/cobra"

	"github.com/lakeza551/Paramk-Smart-Contract-Senior-Project/internal/accounts"
	"github.com/lakeza551/Paramk-Smart-Contract-Senior-Project/internal/config"
)

type accountRow struct {
	Index   int      `json:"index"`
	Address string   `json:"address"`
	Roles   []string `json:"roles,omitempty"`
}

var accountsCmd = &cobra.Command{
	Use:   "accounts",
	Short: "List the network's accounts and named roles",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		net, err := currentNetwork()
		if err != nil {
			return err
		}
		wallet, err := accounts.NewWallet(cmd.Context(), net)
		if err != nil {
			return err
		}
		if wallet.Len() == 0 && !jsonOut {
			fmt.Fprintf(cmd.OutOrStdout(), "No accounts configured for %s. Set %s or a remote signer.\n", net.Name, config.DeployerKeyEnv)
			return nil
		}
		named, err := wallet.NamedAccounts(cfg, net.Name)
		if err != nil && wallet.Len() > 0 {
			return err
		}

		rows := make([]accountRow, 0, wallet.Len())
		for i, addr := range wallet.Addresses() {
			row := accountRow{Index: i, Address: addr.Hex()}
			for role, a := range named {
				if a == addr {
					row.Roles = append(row.Roles, role)
				}
			}
			sort.Strings(row.Roles)
			rows = append(rows, row)
		}

		if jsonOut {
			return printJSON(cmd.OutOrStdout(), rows)
		}
		w := newTable(cmd.OutOrStdout())
		printTableHeader(w, "#", "ADDRESS", "ROLES")
		for _, r := range rows {
			fmt.Fprintf(w, "%d\t%s\t%s\n", r.Index, r.Address, strings.Join(r.Roles, ","))
		}
		return w.Flush()
	},
}

func init() {
	rootCmd.AddCommand(accountsCmd)
}
