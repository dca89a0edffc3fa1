// Package preflight checks a network before any transaction is sent.
package preflight

import (
	"context"
	"fmt"
	"math/big"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/ethclient"
)

// DefaultTimeout is the default timeout for RPC calls.
const DefaultTimeout = 10 * time.Second

// CheckName identifies a specific pre-flight check.
type CheckName string

const (
	// CheckRPCReachable verifies the RPC endpoint answers.
	CheckRPCReachable CheckName = "rpc_reachable"
	// CheckChainIDMatch verifies the chain ID matches the configured value.
	CheckChainIDMatch CheckName = "chain_id_match"
	// CheckDeployerBalance verifies the deployer has funds.
	CheckDeployerBalance CheckName = "deployer_balance"
)

// CheckResult represents the result of a single pre-flight check.
type CheckResult struct {
	Name    CheckName              `json:"name"`
	Passed  bool                   `json:"passed"`
	Message string                 `json:"message"`
	Details map[string]interface{} `json:"details,omitempty"`
}

// Request contains the parameters for pre-flight checks.
type Request struct {
	Network  string
	RPC      string
	ChainID  uint64
	Deployer common.Address
	// MinBalance is in wei. nil or zero requires any positive balance.
	MinBalance *big.Int
}

// Response contains the results of all pre-flight checks.
type Response struct {
	OK                bool          `json:"ok"`
	Network           string        `json:"network"`
	Checks            []CheckResult `json:"checks"`
	DeployerAddress   string        `json:"deployer_address"`
	CurrentBalanceETH string        `json:"current_balance_eth,omitempty"`
}

// Failed returns the checks that did not pass.
func (r *Response) Failed() []CheckResult {
	var out []CheckResult
	for _, c := range r.Checks {
		if !c.Passed {
			out = append(out, c)
		}
	}
	return out
}

// Client is the node API the checks use.
type Client interface {
	ChainID(ctx context.Context) (*big.Int, error)
	BalanceAt(ctx context.Context, account common.Address, blockNumber *big.Int) (*big.Int, error)
}

// DialFunc opens a client.
type DialFunc func(ctx context.Context, url string) (Client, func(), error)

func dialEthclient(ctx context.Context, url string) (Client, func(), error) {
	client, err := ethclient.DialContext(ctx, url)
	if err != nil {
		return nil, nil, err
	}
	return client, client.Close, nil
}

// Checker performs pre-flight validation checks.
type Checker struct {
	timeout time.Duration
	dial    DialFunc
}

// NewChecker creates a new pre-flight checker.
func NewChecker() *Checker {
	return &Checker{
		timeout: DefaultTimeout,
		dial:    dialEthclient,
	}
}

// WithTimeout sets a custom timeout for RPC calls.
func (c *Checker) WithTimeout(timeout time.Duration) *Checker {
	c.timeout = timeout
	return c
}

// WithDialer replaces how the checker connects.
func (c *Checker) WithDialer(dial DialFunc) *Checker {
	c.dial = dial
	return c
}

// RunChecks performs all pre-flight checks and returns the results.
func (c *Checker) RunChecks(ctx context.Context, req *Request) (*Response, error) {
	if err := c.validateRequest(req); err != nil {
		return nil, fmt.Errorf("invalid request: %w", err)
	}

	rpcCtx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	response := &Response{
		OK:              true,
		Network:         req.Network,
		Checks:          make([]CheckResult, 0, 3),
		DeployerAddress: req.Deployer.Hex(),
	}

	client, closeFn, reachableResult := c.checkRPCReachable(rpcCtx, req.RPC)
	response.Checks = append(response.Checks, reachableResult)
	if !reachableResult.Passed {
		response.OK = false
		return response, nil
	}
	defer closeFn()

	chainIDResult := c.checkChainIDMatch(rpcCtx, client, req.ChainID)
	response.Checks = append(response.Checks, chainIDResult)
	if !chainIDResult.Passed {
		response.OK = false
	}

	balanceResult := c.checkDeployerBalance(rpcCtx, client, req.Deployer, req.MinBalance)
	response.Checks = append(response.Checks, balanceResult)
	if !balanceResult.Passed {
		response.OK = false
	}
	if haveETH, ok := balanceResult.Details["have_eth"].(string); ok {
		response.CurrentBalanceETH = haveETH
	}

	return response, nil
}

func (c *Checker) validateRequest(req *Request) error {
	if req.RPC == "" {
		return fmt.Errorf("rpc url is required")
	}
	if req.ChainID == 0 {
		return fmt.Errorf("chain id is required")
	}
	if req.Deployer == (common.Address{}) {
		return fmt.Errorf("deployer address is required")
	}
	return nil
}

func (c *Checker) checkRPCReachable(ctx context.Context, rpcURL string) (Client, func(), CheckResult) {
	result := CheckResult{Name: CheckRPCReachable}

	client, closeFn, err := c.dial(ctx, rpcURL)
	if err != nil {
		result.Message = fmt.Sprintf("Failed to connect to RPC: %v", err)
		result.Details = map[string]interface{}{"error": err.Error()}
		return nil, nil, result
	}

	if _, err := client.ChainID(ctx); err != nil {
		closeFn()
		result.Message = fmt.Sprintf("RPC connection failed: %v", err)
		result.Details = map[string]interface{}{"error": err.Error()}
		return nil, nil, result
	}

	result.Passed = true
	result.Message = "Connected to RPC successfully"
	return client, closeFn, result
}

func (c *Checker) checkChainIDMatch(ctx context.Context, client Client, expectedChainID uint64) CheckResult {
	result := CheckResult{Name: CheckChainIDMatch}

	actual, err := client.ChainID(ctx)
	if err != nil {
		result.Message = fmt.Sprintf("Failed to get chain ID: %v", err)
		result.Details = map[string]interface{}{"error": err.Error()}
		return result
	}

	if actual.Cmp(new(big.Int).SetUint64(expectedChainID)) != 0 {
		result.Message = fmt.Sprintf("Chain ID mismatch: expected %d, got %s", expectedChainID, actual)
		result.Details = map[string]interface{}{
			"expected": expectedChainID,
			"actual":   actual.String(),
		}
		return result
	}

	result.Passed = true
	result.Message = fmt.Sprintf("Chain ID %d confirmed", expectedChainID)
	result.Details = map[string]interface{}{"chain_id": expectedChainID}
	return result
}

func (c *Checker) checkDeployerBalance(ctx context.Context, client Client, deployer common.Address, minBalance *big.Int) CheckResult {
	result := CheckResult{Name: CheckDeployerBalance}

	balance, err := client.BalanceAt(ctx, deployer, nil)
	if err != nil {
		result.Message = fmt.Sprintf("Failed to get deployer balance: %v", err)
		result.Details = map[string]interface{}{"error": err.Error()}
		return result
	}

	haveETH := WeiToETHString(balance)
	result.Details = map[string]interface{}{
		"have_wei": balance.String(),
		"have_eth": haveETH,
	}

	if minBalance == nil || minBalance.Sign() == 0 {
		if balance.Sign() == 0 {
			result.Message = fmt.Sprintf("Deployer %s has no balance", deployer.Hex())
			return result
		}
		result.Passed = true
		result.Message = fmt.Sprintf("Deployer has balance: %s ETH", haveETH)
		return result
	}

	needETH := WeiToETHString(minBalance)
	result.Details["need_wei"] = minBalance.String()
	result.Details["need_eth"] = needETH

	if balance.Cmp(minBalance) < 0 {
		result.Message = fmt.Sprintf("Insufficient deployer balance: have %s ETH, need %s ETH", haveETH, needETH)
		return result
	}

	result.Passed = true
	result.Message = fmt.Sprintf("Deployer has sufficient balance: %s ETH", haveETH)
	return result
}

// WeiToETHString converts wei to a human-readable ETH string.
func WeiToETHString(wei *big.Int) string {
	if wei == nil {
		return "0"
	}
	ethFloat := new(big.Float).Quo(new(big.Float).SetInt(wei), big.NewFloat(1e18))
	return ethFloat.Text('f', 4)
}
