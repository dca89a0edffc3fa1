package cli

import (
	"fmt"
	"io"

	"github.com/spf13/cobra"

	"github.com/lakeza551/Paramk-Smart-Contract-Senior-Project/internal/accounts"
	"github.com/lakeza551/Paramk-Smart-Contract-Senior-Project/internal/preflight"
)

var preflightCmd = &cobra.Command{
	Use:   "preflight",
	Short: "Check the network before deploying",
	Long: `Check that the RPC endpoint answers, that it reports the configured
chain id, and that the deployer account holds enough funds.`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()
		net, err := currentNetwork()
		if err != nil {
			return err
		}
		wallet, err := accounts.NewWallet(ctx, net)
		if err != nil {
			return err
		}
		deployer, err := wallet.NamedAccount(cfg, "deployer", net.Name)
		if err != nil {
			return err
		}

		resp, err := runPreflight(ctx, net, deployer)
		if err != nil {
			return err
		}

		if jsonOut {
			if err := printJSON(cmd.OutOrStdout(), resp); err != nil {
				return err
			}
		} else {
			printChecks(cmd.OutOrStdout(), resp)
		}
		if !resp.OK {
			return ErrPreflightFailed
		}
		return nil
	},
}

func init() {
	rootCmd.AddCommand(preflightCmd)
}

func printChecks(out io.Writer, resp *preflight.Response) {
	fmt.Fprintf(out, "Network:  %s\n", colorBold(resp.Network))
	fmt.Fprintf(out, "Deployer: %s\n", resp.DeployerAddress)
	if resp.CurrentBalanceETH != "" {
		fmt.Fprintf(out, "Balance:  %s\n", resp.CurrentBalanceETH)
	}
	fmt.Fprintln(out)

	w := newTable(out)
	printTableHeader(w, "CHECK", "STATUS", "MESSAGE")
	for _, c := range resp.Checks {
		status := colorGreen("ok")
		if !c.Passed {
			status = colorRed("FAIL")
		}
		fmt.Fprintf(w, "%s\t%s\t%s\n", c.Name, status, c.Message)
	}
	w.Flush()
}
