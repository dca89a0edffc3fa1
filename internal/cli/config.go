package cli

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/lakeza551/Paramk-Smart-Contract-Senior-Project/internal/config"
)

const redacted = "<redacted>"

var (
	initForce bool
	initPath  = config.FileName + ".yaml"
)

var configCmd = &cobra.Command{
	Use:   "config",
	Short: "Manage palmdeploy configuration",
}

var configInitCmd = &cobra.Command{
	Use:         "init",
	Short:       "Write a starter palmdeploy.yaml",
	Long:        `Write the default JBC configuration. The deployer key is read from $` + config.DeployerKeyEnv + `.`,
	Args:        cobra.NoArgs,
	Annotations: map[string]string{skipConfig: "true"},
	RunE: func(cmd *cobra.Command, args []string) error {
		path := initPath
		if cfgFile != "" {
			path = cfgFile
		}

		flags := os.O_WRONLY | os.O_CREATE | os.O_EXCL
		if initForce {
			flags = os.O_WRONLY | os.O_CREATE | os.O_TRUNC
		}
		f, err := os.OpenFile(path, flags, 0o600)
		if os.IsExist(err) {
			return fmt.Errorf("%s already exists (use --force to overwrite)", path)
		}
		if err != nil {
			return fmt.Errorf("create config: %w", err)
		}
		defer f.Close()

		if err := config.Template().WriteYAML(f); err != nil {
			return err
		}

		fmt.Fprintf(cmd.OutOrStdout(), "%s Configuration saved to %s\n", colorGreen("✓"), path)
		fmt.Fprintf(cmd.OutOrStdout(), "  Set %s before running palmdeploy deploy.\n", config.DeployerKeyEnv)
		return nil
	},
}

var configShowCmd = &cobra.Command{
	Use:   "show",
	Short: "Show the resolved configuration with secrets hidden",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		shown := redact(cfg)
		if jsonOut {
			return printJSON(cmd.OutOrStdout(), shown)
		}
		return shown.WriteYAML(cmd.OutOrStdout())
	},
}

func init() {
	configInitCmd.Flags().BoolVar(&initForce, "force", false, "overwrite an existing file")
	configInitCmd.Flags().StringVar(&initPath, "path", initPath, "where to write the config")

	configCmd.AddCommand(configInitCmd)
	configCmd.AddCommand(configShowCmd)
	rootCmd.AddCommand(configCmd)
}

// redact copies c with keys, API keys and connection strings masked.
func redact(c *config.Config) *config.Config {
	out := *c
	out.Networks = make(map[string]*config.Network, len(c.Networks))
	for name, n := range c.Networks {
		cp := *n
		if len(cp.Accounts) > 0 {
			cp.Accounts = make([]string, len(n.Accounts))
			for i := range cp.Accounts {
				cp.Accounts[i] = redacted
			}
		}
		if n.Signer != nil {
			signer := *n.Signer
			if signer.APIKey != "" {
				signer.APIKey = redacted
			}
			cp.Signer = &signer
		}
		out.Networks[name] = &cp
	}
	if out.Registry.DSN != "" {
		out.Registry.DSN = redacted
	}
	if out.Lock.RedisURL != "" {
		out.Lock.RedisURL = redacted
	}
	return &out
}
