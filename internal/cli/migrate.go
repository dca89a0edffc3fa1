package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/lakeza551/Paramk-Smart-Contract-Senior-Project/internal/config"
	"github.com/lakeza551/Paramk-Smart-Contract-Senior-Project/internal/deployments"
)

var migrateCmd = &cobra.Command{
	Use:   "migrate",
	Short: "Apply the postgres registry schema",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		if cfg.Registry.Driver != config.DriverPostgres {
			return fmt.Errorf("migrate needs registry.driver %q, got %q", config.DriverPostgres, cfg.Registry.Driver)
		}
		if err := deployments.Migrate(cfg.Registry.DSN, logger); err != nil {
			return err
		}
		fmt.Fprintf(cmd.OutOrStdout(), "%s Registry schema is up to date\n", colorGreen("✓"))
		return nil
	},
}

func init() {
	rootCmd.AddCommand(migrateCmd)
}
