package cli

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/ethereum/go-ethereum/common"
	"github.com/google/uuid"
	"github.com/spf13/cobra"

	"github.com/lakeza551/Paramk-Smart-Contract-Senior-Project/internal/accounts"
	"github.com/lakeza551/Paramk-Smart-Contract-Senior-Project/internal/artifacts"
	"github.com/lakeza551/Paramk-Smart-Contract-Senior-Project/internal/config"
	"github.com/lakeza551/Paramk-Smart-Contract-Senior-Project/internal/deploy"
	"github.com/lakeza551/Paramk-Smart-Contract-Senior-Project/internal/deployments"
	"github.com/lakeza551/Paramk-Smart-Contract-Senior-Project/internal/lock"
	"github.com/lakeza551/Paramk-Smart-Contract-Senior-Project/internal/metrics"
	"github.com/lakeza551/Paramk-Smart-Contract-Senior-Project/internal/preflight"
	"github.com/lakeza551/Paramk-Smart-Contract-Senior-Project/internal/scripts"
)

// ErrPreflightFailed is returned when a pre-flight check does not pass.
var ErrPreflightFailed = errors.New("pre-flight checks failed")

// dialChain opens the node connection. Tests replace it.
var dialChain deploy.ClientFactory = deploy.Dial

var (
	deployTags    []string
	deployReset   bool
	skipPreflight bool
	metricsFile   string
)

var deployCmd = &cobra.Command{
	Use:   "deploy",
	Short: "Run the deploy scripts against a network",
	Long: `Run the deploy scripts in order. Each script deploys one contract from
the named "deployer" account and records it under the deployments folder.

A contract whose bytecode and constructor arguments did not change, and
whose code is still on chain, is reused instead of redeployed.

Examples:
  palmdeploy deploy                       # All scripts on the default network
  palmdeploy deploy --tags PalmToken      # Only scripts tagged PalmToken
  palmdeploy deploy --reset               # Forget earlier deployments first`,
	Args: cobra.NoArgs,
	RunE: runDeploy,
}

func init() {
	deployCmd.Flags().StringSliceVar(&deployTags, "tags", nil, "only run scripts with these tags (comma separated)")
	deployCmd.Flags().BoolVar(&deployReset, "reset", false, "delete existing deployment records for the network first")
	deployCmd.Flags().BoolVar(&skipPreflight, "skip-preflight", false, "skip RPC, chain id and balance checks")
	deployCmd.Flags().StringVar(&metricsFile, "metrics-file", "", "write Prometheus metrics to this textfile after the run")

	rootCmd.AddCommand(deployCmd)
}

func runDeploy(cmd *cobra.Command, _ []string) error {
	ctx := cmd.Context()
	out := cmd.OutOrStdout()

	net, err := currentNetwork()
	if err != nil {
		return err
	}

	registry := scripts.Default()
	if _, err := registry.Select(deployTags); err != nil {
		return err
	}

	store, closeStore, err := deployments.Open(ctx, cfg)
	if err != nil {
		return err
	}
	defer closeStore()

	locker, closeLock, err := lock.Open(ctx, cfg.Lock.RedisURL, cfg.Lock.TTL, logger)
	if err != nil {
		return err
	}
	defer closeLock()

	release, err := locker.Acquire(ctx, net.Name)
	if err != nil {
		return err
	}
	defer func() {
		if err := release(context.WithoutCancel(ctx)); err != nil {
			logger.Warn("failed to release deploy lock", slog.String("error", err.Error()))
		}
	}()

	wallet, err := accounts.NewWallet(ctx, net)
	if err != nil {
		return err
	}

	if !skipPreflight {
		deployer, err := wallet.NamedAccount(cfg, "deployer", net.Name)
		if err != nil {
			return err
		}
		resp, err := runPreflight(ctx, net, deployer)
		if err != nil {
			return err
		}
		if !resp.OK {
			printChecks(out, resp)
			return ErrPreflightFailed
		}
	}

	if deployReset {
		logger.Warn("resetting deployments", slog.String("network", net.Name))
		if err := store.Reset(ctx, net.Name); err != nil {
			return err
		}
	}

	client, closeClient, err := dialChain(ctx, net.URL)
	if err != nil {
		return err
	}
	defer closeClient()

	runID := uuid.NewString()
	m := metrics.New(false)
	deployer, err := deploy.New(deploy.Config{
		Client:    client,
		Wallet:    wallet,
		Artifacts: artifacts.NewLoader(cfg.Paths.Artifacts),
		Store:     store,
		Solidity:  cfg.Solidity,
		Network:   net,
		RunID:     runID,
		Logger:    logger.With(slog.String("run_id", runID)),
		Out:       out,
		Recorder:  m,
	})
	if err != nil {
		return err
	}

	env := &scripts.Env{
		Network:     net.Name,
		ChainID:     net.ChainID,
		Deployments: deployer,
		Logger:      logger,
		Out:         out,
		Accounts: func(context.Context) (map[string]common.Address, error) {
			return wallet.NamedAccounts(cfg, net.Name)
		},
		Account: func(_ context.Context, role string) (common.Address, error) {
			return wallet.NamedAccount(cfg, role, net.Name)
		},
	}

	report, runErr := scripts.NewRunner(registry, logger, m).Run(ctx, env, deployTags)

	if metricsFile != "" {
		if err := m.WriteTextfile(metricsFile); err != nil {
			logger.Error("failed to write metrics", slog.String("path", metricsFile), slog.String("error", err.Error()))
		}
	}

	if report != nil {
		printReport(cmd, net, runID, report, runErr)
	}
	return runErr
}

type deployReport struct {
	RunID   string   `json:"run_id"`
	Network string   `json:"network"`
	Ran     []string `json:"ran"`
	Skipped []string `json:"skipped,omitempty"`
	Error   string   `json:"error,omitempty"`
}

func printReport(cmd *cobra.Command, net *config.Network, runID string, report *scripts.Report, runErr error) {
	out := cmd.OutOrStdout()
	if jsonOut {
		r := deployReport{RunID: runID, Network: net.Name, Ran: report.Ran, Skipped: report.Skipped}
		if r.Ran == nil {
			r.Ran = []string{}
		}
		if runErr != nil {
			r.Error = runErr.Error()
		}
		_ = printJSON(out, r)
		return
	}

	status := colorGreen("done")
	if runErr != nil {
		status = colorRed("failed")
	}
	fmt.Fprintf(out, "\n%s: ran %d script(s) on %s", status, len(report.Ran), colorBold(net.Name))
	if len(report.Skipped) > 0 {
		fmt.Fprintf(out, ", skipped %s", colorYellow(strings.Join(report.Skipped, ", ")))
	}
	fmt.Fprintf(out, " (run %s)\n", runID)
}

// runPreflight checks the RPC, chain id and deployer balance of net.
func runPreflight(ctx context.Context, net *config.Network, deployer common.Address) (*preflight.Response, error) {
	minBalance, err := net.MinBalanceWei()
	if err != nil {
		return nil, err
	}
	checker := preflight.NewChecker().WithDialer(func(ctx context.Context, url string) (preflight.Client, func(), error) {
		client, closeFn, err := dialChain(ctx, url)
		if err != nil {
			return nil, nil, err
		}
		return client, closeFn, nil
	})
	return checker.RunChecks(ctx, &preflight.Request{
		Network:    net.Name,
		RPC:        net.URL,
		ChainID:    net.ChainID,
		Deployer:   deployer,
		MinBalance: minBalance,
	})
}
