package scripts

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/lakeza551/Paramk-Smart-Contract-Senior-Project/internal/deploy"
	"github.com/lakeza551/Paramk-Smart-Contract-Senior-Project/internal/deployments"
)

// MockDeployments is a mock implementation of Deployments for testing.
type MockDeployments struct {
	mock.Mock
}

func (m *MockDeployments) Deploy(ctx context.Context, name string, opts deploy.Options) (*deploy.Result, error) {
	args := m.Called(ctx, name, opts)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*deploy.Result), args.Error(1)
}

func (m *MockDeployments) Get(ctx context.Context, name string) (*deployments.Deployment, error) {
	args := m.Called(ctx, name)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*deployments.Deployment), args.Error(1)
}

var _ Deployments = (*MockDeployments)(nil)

var deployerAddr = common.HexToAddress("0x71562b71999873DB5b286dF957af199Ec94617F7")

func newEnv(d Deployments) *Env {
	return &Env{
		Network:     "jbc",
		ChainID:     8899,
		Deployments: d,
		Accounts: func(context.Context) (map[string]common.Address, error) {
			return map[string]common.Address{"deployer": deployerAddr}, nil
		},
	}
}

func TestPalmScripts_DeployOnce(t *testing.T) {
	tests := []struct {
		script   Script
		contract string
		tag      string
	}{
		{DeployPalmNFT, "PalmNFT", "PalmNFT"},
		{DeployPalmToken, "PalmToken", "PalmToken"},
	}

	for _, tc := range tests {
		t.Run(tc.contract, func(t *testing.T) {
			d := new(MockDeployments)
			ctx := context.Background()
			want := deploy.Options{From: deployerAddr, Log: true, DeterministicDeployment: false}
			d.On("Deploy", ctx, tc.contract, want).Return(&deploy.Result{Newly: true}, nil).Once()

			require.NoError(t, tc.script.Run(ctx, newEnv(d)))

			d.AssertExpectations(t)
			d.AssertNumberOfCalls(t, "Deploy", 1)
			assert.Equal(t, []string{tc.tag}, tc.script.Tags)
		})
	}
}

func TestPalmScripts_MissingDeployer(t *testing.T) {
	env := newEnv(new(MockDeployments))
	env.Accounts = func(context.Context) (map[string]common.Address, error) {
		return map[string]common.Address{}, nil
	}
	err := DeployPalmNFT.Run(context.Background(), env)
	assert.ErrorIs(t, err, ErrNoNamedAccount)
}

func TestEnv_NamedAccountResolvesOnlyRequestedRole(t *testing.T) {
	errTreasury := errors.New("treasury: account index out of range")
	var asked []string
	env := newEnv(nil)
	env.Accounts = func(context.Context) (map[string]common.Address, error) {
		return nil, errTreasury
	}
	env.Account = func(_ context.Context, role string) (common.Address, error) {
		asked = append(asked, role)
		if role == "deployer" {
			return deployerAddr, nil
		}
		return common.Address{}, errTreasury
	}

	d := new(MockDeployments)
	env.Deployments = d
	d.On("Deploy", mock.Anything, "PalmNFT", mock.Anything).Return(&deploy.Result{Newly: true}, nil).Once()

	require.NoError(t, DeployPalmNFT.Run(context.Background(), env))
	assert.Equal(t, []string{"deployer"}, asked)

	_, err := env.NamedAccount(context.Background(), "treasury")
	assert.ErrorIs(t, err, errTreasury)
}

func noop(context.Context, *Env) error { return nil }

func TestRegistry_Select(t *testing.T) {
	r := NewRegistry()
	require.NoError(t, r.Register(Script{ID: "003_roles", Tags: []string{"Roles"}, Dependencies: []string{"PalmNFT", "PalmToken"}, Run: noop}))
	require.NoError(t, r.Register(DeployPalmToken))
	require.NoError(t, r.Register(DeployPalmNFT))

	ids := func(s []Script) []string {
		var out []string
		for _, x := range s {
			out = append(out, x.ID)
		}
		return out
	}

	tests := []struct {
		name string
		tags []string
		want []string
	}{
		{"no tags runs all by id", nil, []string{"001_deploy_palm_nft", "002_deploy_palm_token", "003_roles"}},
		{"single tag", []string{"PalmToken"}, []string{"002_deploy_palm_token"}},
		{"tag order does not matter", []string{"PalmToken", "PalmNFT"}, []string{"001_deploy_palm_nft", "002_deploy_palm_token"}},
		{"dependencies first", []string{"Roles"}, []string{"001_deploy_palm_nft", "002_deploy_palm_token", "003_roles"}},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			got, err := r.Select(tc.tags)
			require.NoError(t, err)
			assert.Equal(t, tc.want, ids(got))
		})
	}

	_, err := r.Select([]string{"Nope"})
	assert.ErrorIs(t, err, ErrUnknownTag)

	assert.Equal(t, []string{"PalmNFT", "PalmToken", "Roles"}, r.Tags())
}

func TestRegistry_Errors(t *testing.T) {
	r := NewRegistry()
	require.NoError(t, r.Register(Script{ID: "a", Tags: []string{"A"}, Dependencies: []string{"B"}, Run: noop}))
	require.NoError(t, r.Register(Script{ID: "b", Tags: []string{"B"}, Dependencies: []string{"A"}, Run: noop}))
	require.NoError(t, r.Register(Script{ID: "c", Tags: []string{"C"}, Dependencies: []string{"Missing"}, Run: noop}))

	assert.ErrorIs(t, r.Register(Script{ID: "a", Run: noop}), ErrDuplicateScript)
	assert.Error(t, r.Register(Script{ID: "d"}))

	_, err := r.Select([]string{"A"})
	assert.ErrorIs(t, err, ErrDependencyCycle)
	assert.Contains(t, err.Error(), "a -> b -> a")

	_, err = r.Select([]string{"C"})
	assert.ErrorIs(t, err, ErrUnknownTag)
}

type fakeObserver struct{ ids []string }

func (o *fakeObserver) ObserveScript(id string, _ time.Duration, _ error) {
	o.ids = append(o.ids, id)
}

func TestRunner_Run(t *testing.T) {
	d := new(MockDeployments)
	d.On("Deploy", mock.Anything, "PalmNFT", mock.Anything).Return(&deploy.Result{Newly: true}, nil)
	d.On("Deploy", mock.Anything, "PalmToken", mock.Anything).Return(nil, errors.New("insufficient funds"))

	obs := &fakeObserver{}
	runner := NewRunner(Default(), nil, obs)

	report, err := runner.Run(context.Background(), newEnv(d), nil)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "script 002_deploy_palm_token: insufficient funds")
	assert.Equal(t, []string{"001_deploy_palm_nft"}, report.Ran)
	assert.Equal(t, []string{"001_deploy_palm_nft", "002_deploy_palm_token"}, obs.ids)
}

func TestRunner_TagsAndSkip(t *testing.T) {
	d := new(MockDeployments)
	d.On("Deploy", mock.Anything, "PalmToken", mock.Anything).Return(&deploy.Result{Newly: true}, nil).Once()

	report, err := NewRunner(Default(), nil, nil).Run(context.Background(), newEnv(d), []string{"PalmToken"})
	require.NoError(t, err)
	assert.Equal(t, []string{"002_deploy_palm_token"}, report.Ran)
	d.AssertExpectations(t)

	r := NewRegistry()
	skipped := DeployPalmNFT
	skipped.Skip = func(context.Context, *Env) (bool, error) { return true, nil }
	require.NoError(t, r.Register(skipped))

	report, err = NewRunner(r, nil, nil).Run(context.Background(), newEnv(new(MockDeployments)), nil)
	require.NoError(t, err)
	assert.Empty(t, report.Ran)
	assert.Equal(t, []string{"001_deploy_palm_nft"}, report.Skipped)
}

func TestRunner_Cancelled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := NewRunner(Default(), nil, nil).Run(ctx, newEnv(new(MockDeployments)), nil)
	assert.ErrorIs(t, err, context.Canceled)
}
