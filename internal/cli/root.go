// Package cli implements the palmdeploy command line.
package cli

import (
	"context"
	"fmt"
	"io"
	"log/slog"

	"github.com/spf13/cobra"

	"github.com/lakeza551/Paramk-Smart-Contract-Senior-Project/internal/config"
	"github.com/lakeza551/Paramk-Smart-Contract-Senior-Project/internal/logging"
)

var (
	// Version is set at build time.
	Version = "dev"
	// Commit is set at build time.
	Commit = "unknown"

	// Global flags
	cfgFile     string
	networkName string
	jsonOut     bool
	logLevel    string
	logFormat   string
	logFile     string

	// Set up by the persistent pre-run.
	cfg       *config.Config
	logger    = slog.Default()
	logCloser io.Closer
)

// skipConfig marks commands that run without loading palmdeploy.yaml.
const skipConfig = "skip-config"

var rootCmd = &cobra.Command{
	Use:   "palmdeploy",
	Short: "Deploy PalmNFT and PalmToken to JBC",
	Long: `palmdeploy deploys the PalmNFT and PalmToken contracts from compiled
hardhat or foundry artifacts and records where they landed.

Configuration (in order of priority):
  1. Command-line flags (--network, --config)
  2. Environment variables (PALMDEPLOY_NETWORK, PALMDEPLOY_DEPLOYER_KEY, ...)
  3. Config file (./palmdeploy.yaml or ~/palmdeploy.yaml)

Get started:
  $ palmdeploy config init               # Write palmdeploy.yaml
  $ export PALMDEPLOY_DEPLOYER_KEY=0x...  # Deployer private key
  $ palmdeploy preflight                 # Check RPC, chain id and balance
  $ palmdeploy deploy --tags PalmNFT     # Deploy a subset`,
	SilenceUsage:      true,
	SilenceErrors:     true,
	PersistentPreRunE: setup,
}

var versionCmd = &cobra.Command{
	Use:         "version",
	Short:       "Print version information",
	Annotations: map[string]string{skipConfig: "true"},
	RunE: func(cmd *cobra.Command, args []string) error {
		if jsonOut {
			return printJSON(cmd.OutOrStdout(), map[string]string{"version": Version, "commit": Commit})
		}
		fmt.Fprintf(cmd.OutOrStdout(), "palmdeploy version %s (%s)\n", Version, Commit)
		return nil
	},
}

func init() {
	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (default ./palmdeploy.yaml)")
	rootCmd.PersistentFlags().StringVarP(&networkName, "network", "n", "", "network to use (default from config)")
	rootCmd.PersistentFlags().BoolVar(&jsonOut, "json", false, "output in JSON format")
	rootCmd.PersistentFlags().StringVar(&logLevel, "log-level", "info", "log level: debug, info, warn, error")
	rootCmd.PersistentFlags().StringVar(&logFormat, "log-format", "text", "log format: text or json")
	rootCmd.PersistentFlags().StringVar(&logFile, "log-file", "", "also write JSON logs to this rotated file")

	rootCmd.AddCommand(versionCmd)
}

// setup builds the logger and loads the config for every command.
func setup(cmd *cobra.Command, _ []string) error {
	l, closer, err := logging.New(cmd.ErrOrStderr(), logging.Options{
		Level:  logLevel,
		Format: logFormat,
		File:   logFile,
	})
	if err != nil {
		return err
	}
	logger, logCloser = l, closer
	slog.SetDefault(logger)

	if cmd.Annotations[skipConfig] != "" {
		return nil
	}

	loaded, err := config.Load(cfgFile)
	if err != nil {
		return err
	}
	cfg = loaded
	return nil
}

// currentNetwork resolves --network, falling back to the configured default.
func currentNetwork() (*config.Network, error) {
	return cfg.Network(networkName)
}

// Execute runs the root command and prints any error it returns.
func Execute(ctx context.Context) error {
	err := execute(ctx)
	if err != nil {
		printError(rootCmd.ErrOrStderr(), err)
	}
	return err
}

// ExecuteWithArgs runs the root command with the provided arguments (for testing)
func ExecuteWithArgs(ctx context.Context, args []string) error {
	rootCmd.SetArgs(args)
	return execute(ctx)
}

// execute runs the command and closes the log file whether or not it failed;
// cobra skips post-run hooks after an error.
func execute(ctx context.Context) error {
	err := rootCmd.ExecuteContext(ctx)
	closeLog()
	return err
}

func closeLog() {
	if logCloser == nil {
		return
	}
	if err := logCloser.Close(); err != nil {
		fmt.Fprintf(rootCmd.ErrOrStderr(), "close log file: %v\n", err)
	}
	logCloser = nil
}

// SetOutput sets the output writer for the root command (for testing)
func SetOutput(w io.Writer) {
	rootCmd.SetOut(w)
	rootCmd.SetErr(w)
}

// ResetFlags resets all global flags to their defaults (for testing)
func ResetFlags() {
	cfgFile = ""
	networkName = ""
	jsonOut = false
	logLevel = "info"
	logFormat = "text"
	logFile = ""
	cfg = nil

	deployTags = nil
	deployReset = false
	skipPreflight = false
	metricsFile = ""
	exportOutput = ""
	serveAddr = defaultServeAddr
	initForce = false
	initPath = config.FileName + ".yaml"
}
