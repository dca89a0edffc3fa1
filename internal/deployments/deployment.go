// Package deployments keeps the record of what has been deployed where.
package deployments

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/ethereum/go-ethereum/common"
)

// Sentinel errors
var (
	ErrChainIDMismatch = errors.New("palmdeploy: deployments folder belongs to another chain")
	ErrInvalidName     = errors.New("palmdeploy: invalid deployment name")
)

// Deployment is the record of one deployed contract on one network.
type Deployment struct {
	Name             string          `json:"name"`
	Contract         string          `json:"contract"`
	Address          common.Address  `json:"address"`
	ABI              json.RawMessage `json:"abi"`
	TransactionHash  common.Hash     `json:"transactionHash"`
	BlockNumber      uint64          `json:"blockNumber"`
	GasUsed          uint64          `json:"gasUsed"`
	Deployer         common.Address  `json:"deployer"`
	Args             json.RawMessage `json:"args"`
	Bytecode         string          `json:"bytecode"`
	DeployedBytecode string          `json:"deployedBytecode,omitempty"`
	Deterministic    bool            `json:"deterministic,omitempty"`
	Salt             string          `json:"salt,omitempty"`
	NumDeployments   int             `json:"numDeployments"`
	ChainID          uint64          `json:"chainId"`
	Network          string          `json:"network"`
	RunID            string          `json:"runId,omitempty"`
	DeployedAt       time.Time       `json:"deployedAt"`
	// Pending is set between broadcasting the creation transaction and
	// seeing it mined. Address is the predicted one until then.
	Pending          bool            `json:"pending,omitempty"`
}

// SameCode reports whether d was deployed from the given creation bytecode
// and encoded constructor arguments.
func (d *Deployment) SameCode(bytecode string, args json.RawMessage) bool {
	if d.Bytecode != bytecode {
		return false
	}
	return jsonEqual(d.Args, args)
}

func jsonEqual(a, b json.RawMessage) bool {
	if len(a) == 0 {
		a = json.RawMessage("[]")
	}
	if len(b) == 0 {
		b = json.RawMessage("[]")
	}
	var ca, cb bytes.Buffer
	if json.Compact(&ca, a) != nil || json.Compact(&cb, b) != nil {
		return bytes.Equal(a, b)
	}
	return bytes.Equal(ca.Bytes(), cb.Bytes())
}

// Store persists deployment records per network.
type Store interface {
	// Get returns nil, nil when name has no record on network.
	Get(ctx context.Context, network, name string) (*Deployment, error)
	Save(ctx context.Context, d *Deployment) error
	List(ctx context.Context, network string) ([]*Deployment, error)
	Delete(ctx context.Context, network, name string) error
	// Reset removes every record of network.
	Reset(ctx context.Context, network string) error
}
