package cli

import (
	"github.com/spf13/cobra"

	"github.com/lakeza551/Paramk-Smart-Contract-Senior-Project/internal/deployments"
	"github.com/lakeza551/Paramk-Smart-Contract-Senior-Project/internal/metrics"
	"github.com/lakeza551/Paramk-Smart-Contract-Senior-Project/internal/server"
)

const defaultServeAddr = ":8080"

var serveAddr = defaultServeAddr

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Serve the deployment registry over HTTP",
	Long: `Serve recorded deployments read-only:

  GET /healthz
  GET /v1/networks/{network}/deployments
  GET /v1/networks/{network}/deployments/{name}
  GET /v1/networks/{network}/export
  GET /metrics`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()
		store, closeStore, err := deployments.Open(ctx, cfg)
		if err != nil {
			return err
		}
		defer closeStore()

		srv := server.New(store, cfg,
			server.WithLogger(logger),
			server.WithMetrics(metrics.New(true).Handler()),
		)
		return srv.ListenAndServe(ctx, serveAddr)
	},
}

func init() {
	serveCmd.Flags().StringVar(&serveAddr, "addr", defaultServeAddr, "listen address")
	rootCmd.AddCommand(serveCmd)
}
