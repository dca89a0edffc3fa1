package scripts

import (
	"context"

	"github.com/lakeza551/Paramk-Smart-Contract-Senior-Project/internal/deploy"
)

// DeployPalmNFT deploys the PalmNFT contract from the deployer account.
var DeployPalmNFT = Script{
	ID:   "001_deploy_palm_nft",
	Tags: []string{"PalmNFT"},
	Run:  deployFromDeployer("PalmNFT"),
}

// DeployPalmToken deploys the PalmToken contract from the deployer account.
var DeployPalmToken = Script{
	ID:   "002_deploy_palm_token",
	Tags: []string{"PalmToken"},
	Run:  deployFromDeployer("PalmToken"),
}

func deployFromDeployer(contract string) func(ctx context.Context, env *Env) error {
	return func(ctx context.Context, env *Env) error {
		deployer, err := env.NamedAccount(ctx, "deployer")
		if err != nil {
			return err
		}

		_, err = env.Deployments.Deploy(ctx, contract, deploy.Options{
			From:                    deployer,
			Log:                     true,
			DeterministicDeployment: false,
		})
		return err
	}
}

// Default returns a registry holding the Palm deployment scripts.
func Default() *Registry {
	r := NewRegistry()
	for _, s := range []Script{DeployPalmNFT, DeployPalmToken} {
		if err := r.Register(s); err != nil {
			panic(err)
		}
	}
	return r
}
