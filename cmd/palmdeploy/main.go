// palmdeploy deploys the PalmNFT and PalmToken contracts to JBC.
package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/lakeza551/Paramk-Smart-Contract-Senior-Project/internal/cli"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	err := cli.Execute(ctx)
	stop()
	if err != nil {
		os.Exit(1)
	}
}
