package preflight

import (
	"context"
	"errors"
	"math/big"
	"testing"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeClient struct {
	chainID    *big.Int
	chainErr   error
	balance    *big.Int
	balanceErr error
	closed     bool
}

func (f *fakeClient) ChainID(context.Context) (*big.Int, error) { return f.chainID, f.chainErr }

func (f *fakeClient) BalanceAt(context.Context, common.Address, *big.Int) (*big.Int, error) {
	return f.balance, f.balanceErr
}

func dialerFor(c *fakeClient, err error) DialFunc {
	return func(context.Context, string) (Client, func(), error) {
		if err != nil {
			return nil, nil, err
		}
		return c, func() { c.closed = true }, nil
	}
}

var deployer = common.HexToAddress("0x1234567890123456789012345678901234567890")

func jbcRequest() *Request {
	return &Request{
		Network:  "jbc",
		RPC:      "https://rpc-l1.jibchain.net",
		ChainID:  8899,
		Deployer: deployer,
	}
}

func TestNewChecker(t *testing.T) {
	checker := NewChecker()
	assert.NotNil(t, checker)
	assert.Equal(t, DefaultTimeout, checker.timeout)
	assert.Equal(t, 5*time.Second, NewChecker().WithTimeout(5*time.Second).timeout)
}

func TestChecker_ValidateRequest(t *testing.T) {
	checker := NewChecker()

	tests := []struct {
		name    string
		mutate  func(*Request)
		wantErr string
	}{
		{"valid request", func(*Request) {}, ""},
		{"missing rpc", func(r *Request) { r.RPC = "" }, "rpc url is required"},
		{"missing chain id", func(r *Request) { r.ChainID = 0 }, "chain id is required"},
		{"missing deployer", func(r *Request) { r.Deployer = common.Address{} }, "deployer address is required"},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			req := jbcRequest()
			tc.mutate(req)
			err := checker.validateRequest(req)
			if tc.wantErr == "" {
				assert.NoError(t, err)
			} else {
				assert.ErrorContains(t, err, tc.wantErr)
			}
		})
	}
}

func TestRunChecks(t *testing.T) {
	oneETH := big.NewInt(1e18)

	tests := []struct {
		name       string
		client     *fakeClient
		dialErr    error
		minBalance *big.Int
		wantOK     bool
		wantChecks int
		failed     []CheckName
	}{
		{
			name:       "all pass",
			client:     &fakeClient{chainID: big.NewInt(8899), balance: oneETH},
			wantOK:     true,
			wantChecks: 3,
		},
		{
			name:       "unreachable stops early",
			dialErr:    errors.New("dial tcp: connection refused"),
			wantChecks: 1,
			failed:     []CheckName{CheckRPCReachable},
		},
		{
			name:       "rpc errors on first call",
			client:     &fakeClient{chainErr: errors.New("503")},
			wantChecks: 1,
			failed:     []CheckName{CheckRPCReachable},
		},
		{
			name:       "wrong chain",
			client:     &fakeClient{chainID: big.NewInt(1), balance: oneETH},
			wantChecks: 3,
			failed:     []CheckName{CheckChainIDMatch},
		},
		{
			name:       "empty balance",
			client:     &fakeClient{chainID: big.NewInt(8899), balance: big.NewInt(0)},
			wantChecks: 3,
			failed:     []CheckName{CheckDeployerBalance},
		},
		{
			name:       "below min balance",
			client:     &fakeClient{chainID: big.NewInt(8899), balance: oneETH},
			minBalance: new(big.Int).Mul(oneETH, big.NewInt(2)),
			wantChecks: 3,
			failed:     []CheckName{CheckDeployerBalance},
		},
		{
			name:       "balance error",
			client:     &fakeClient{chainID: big.NewInt(8899), balanceErr: errors.New("timeout")},
			wantChecks: 3,
			failed:     []CheckName{CheckDeployerBalance},
		},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			req := jbcRequest()
			req.MinBalance = tc.minBalance

			resp, err := NewChecker().WithDialer(dialerFor(tc.client, tc.dialErr)).RunChecks(context.Background(), req)
			require.NoError(t, err)

			assert.Equal(t, tc.wantOK, resp.OK)
			assert.Len(t, resp.Checks, tc.wantChecks)
			assert.Equal(t, "jbc", resp.Network)

			var failed []CheckName
			for _, c := range resp.Failed() {
				failed = append(failed, c.Name)
			}
			assert.Equal(t, tc.failed, failed)
		})
	}
}

func TestRunChecks_ClosesClient(t *testing.T) {
	c := &fakeClient{chainID: big.NewInt(8899), balance: big.NewInt(5e17)}
	resp, err := NewChecker().WithDialer(dialerFor(c, nil)).RunChecks(context.Background(), jbcRequest())
	require.NoError(t, err)
	assert.True(t, c.closed)
	assert.Equal(t, "0.5000", resp.CurrentBalanceETH)
}

func TestRunChecks_InvalidRequest(t *testing.T) {
	_, err := NewChecker().RunChecks(context.Background(), &Request{})
	assert.ErrorContains(t, err, "invalid request")
}

func TestWeiToETHString(t *testing.T) {
	tests := []struct {
		wei  *big.Int
		want string
	}{
		{nil, "0"},
		{big.NewInt(0), "0.0000"},
		{big.NewInt(1e18), "1.0000"},
		{big.NewInt(1_500_000_000_000_000_000), "1.5000"},
	}
	for _, tc := range tests {
		assert.Equal(t, tc.want, WeiToETHString(tc.wei))
	}
}
