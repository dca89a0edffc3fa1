package cli

import (
	"fmt"
	"strconv"

	"github.com/spf13/cobra"

	"github.com/lakeza551/Paramk-Smart-Contract-Senior-Project/internal/deployments"
)

var deploymentsCmd = &cobra.Command{
	Use:     "deployments",
	Aliases: []string{"deps"},
	Short:   "Inspect recorded deployments",
}

var deploymentsListCmd = &cobra.Command{
	Use:   "list",
	Short: "List deployments on the network",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()
		net, err := currentNetwork()
		if err != nil {
			return err
		}
		store, closeStore, err := deployments.Open(ctx, cfg)
		if err != nil {
			return err
		}
		defer closeStore()

		list, err := store.List(ctx, net.Name)
		if err != nil {
			return err
		}

		if jsonOut {
			if list == nil {
				list = []*deployments.Deployment{}
			}
			return printJSON(cmd.OutOrStdout(), list)
		}
		if len(list) == 0 {
			fmt.Fprintf(cmd.OutOrStdout(), "No deployments on %s.\n", net.Name)
			return nil
		}

		w := newTable(cmd.OutOrStdout())
		printTableHeader(w, "NAME", "ADDRESS", "BLOCK", "TX", "DEPLOYED")
		for _, d := range list {
			block := strconv.FormatUint(d.BlockNumber, 10)
			if d.Pending {
				block = colorYellow("pending")
			}
			fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%s\n",
				d.Name,
				d.Address.Hex(),
				block,
				truncate(d.TransactionHash.Hex(), 14),
				d.DeployedAt.Format("2006-01-02 15:04"),
			)
		}
		return w.Flush()
	},
}

var deploymentsShowCmd = &cobra.Command{
	Use:   "show <name>",
	Short: "Show one deployment",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()
		net, err := currentNetwork()
		if err != nil {
			return err
		}
		store, closeStore, err := deployments.Open(ctx, cfg)
		if err != nil {
			return err
		}
		defer closeStore()

		d, err := store.Get(ctx, net.Name, args[0])
		if err != nil {
			return err
		}
		if d == nil {
			return fmt.Errorf("no deployment named %s on %s", args[0], net.Name)
		}

		if jsonOut {
			return printJSON(cmd.OutOrStdout(), d)
		}

		out := cmd.OutOrStdout()
		fmt.Fprintf(out, "Name:         %s\n", colorBold(d.Name))
		fmt.Fprintf(out, "Contract:     %s\n", d.Contract)
		fmt.Fprintf(out, "Address:      %s\n", d.Address.Hex())
		fmt.Fprintf(out, "Network:      %s (chain %d)\n", d.Network, d.ChainID)
		fmt.Fprintf(out, "Transaction:  %s\n", d.TransactionHash.Hex())
		if d.Pending {
			fmt.Fprintf(out, "Block:        %s\n", colorYellow("pending"))
		} else {
			fmt.Fprintf(out, "Block:        %d\n", d.BlockNumber)
		}
		fmt.Fprintf(out, "Gas used:     %d\n", d.GasUsed)
		fmt.Fprintf(out, "Deployer:     %s\n", d.Deployer.Hex())
		fmt.Fprintf(out, "Deployments:  %d\n", d.NumDeployments)
		if d.Deterministic {
			fmt.Fprintf(out, "Salt:         %s\n", d.Salt)
		}
		if d.RunID != "" {
			fmt.Fprintf(out, "Run:          %s\n", d.RunID)
		}
		fmt.Fprintf(out, "Deployed at:  %s\n", d.DeployedAt.Format("2006-01-02 15:04:05 MST"))
		return nil
	},
}

func init() {
	deploymentsCmd.AddCommand(deploymentsListCmd)
	deploymentsCmd.AddCommand(deploymentsShowCmd)
	rootCmd.AddCommand(deploymentsCmd)
}
