package cli

import (
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"github.com/lakeza551/Paramk-Smart-Contract-Senior-Project/internal/deployments"
)

var exportOutput string

var exportCmd = &cobra.Command{
	Use:   "export",
	Short: "Export addresses and ABIs for front ends",
	Long: `Write {name, chainId, contracts: {Name: {address, abi}}} for the network.

A file ending in .zst is written zstd-compressed.

Examples:
  palmdeploy export                          # To stdout
  palmdeploy export --output jbc.json
  palmdeploy export --output jbc.json.zst`,
	Args: cobra.NoArgs,
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

		var w io.Writer = cmd.OutOrStdout()
		if exportOutput != "" {
			f, err := os.Create(exportOutput)
			if err != nil {
				return fmt.Errorf("create export file: %w", err)
			}
			defer f.Close()
			w = f
		}

		compress := strings.HasSuffix(exportOutput, ".zst")
		if err := deployments.Export(ctx, store, net.Name, net.ChainID, w, compress); err != nil {
			return err
		}

		if exportOutput != "" {
			fmt.Fprintf(cmd.ErrOrStderr(), "%s Exported %s to %s\n", colorGreen("✓"), net.Name, exportOutput)
		}
		return nil
	},
}

func init() {
	exportCmd.Flags().StringVarP(&exportOutput, "output", "o", "", "output file (.json or .json.zst)")
	rootCmd.AddCommand(exportCmd)
}
