// Package config loads palmdeploy's compiler, network and named-account
// configuration.
//
// Configuration is resolved in order of priority:
//  1. Environment variables (PALMDEPLOY_NETWORK, PALMDEPLOY_REGISTRY_DSN, ...)
//  2. Config file (./palmdeploy.yaml, then ~/palmdeploy.yaml)
//  3. Built-in defaults (the JBC network, solc 0.8.20 with the optimizer on)
package config

import (
	"errors"
	"fmt"
	"math/big"
	"strings"
	"time"

	"github.com/ethereum/go-ethereum/common"
)

// Sentinel errors
var (
	ErrUnknownNetwork      = errors.New("palmdeploy: unknown network")
	ErrUnknownNamedAccount = errors.New("palmdeploy: unknown named account")
	ErrInvalidNamedAccount = errors.New("palmdeploy: invalid named account")
)

// Registry drivers.
const (
	DriverFile     = "file"
	DriverPostgres = "postgres"
)

// Config is the full palmdeploy configuration.
type Config struct {
	Solidity       Solidity            `mapstructure:"solidity" yaml:"solidity" json:"solidity"`
	DefaultNetwork string              `mapstructure:"default_network" yaml:"default_network" json:"default_network" validate:"required"`
	NamedAccounts  map[string]any      `mapstructure:"named_accounts" yaml:"named_accounts" json:"named_accounts"`
	Networks       map[string]*Network `mapstructure:"networks" yaml:"networks" json:"networks" validate:"required,min=1,dive,required"`
	Paths          Paths               `mapstructure:"paths" yaml:"paths" json:"paths"`
	Registry       Registry            `mapstructure:"registry" yaml:"registry" json:"registry"`
	Lock           Lock                `mapstructure:"lock" yaml:"lock,omitempty" json:"lock"`

	warnings []string
}

// Solidity holds the compiler settings the artifacts must have been built with.
type Solidity struct {
	Version   string    `mapstructure:"version" yaml:"version" json:"version" validate:"required"`
	Optimizer Optimizer `mapstructure:"optimizer" yaml:"optimizer" json:"optimizer"`
}

// Optimizer mirrors solc's optimizer settings.
type Optimizer struct {
	Enabled bool `mapstructure:"enabled" yaml:"enabled" json:"enabled"`
	Runs    int  `mapstructure:"runs" yaml:"runs,omitempty" json:"runs,omitempty" validate:"gte=0"`
}

// Network describes a chain palmdeploy can deploy to.
type Network struct {
	// Name is filled in by Config.Network; it is not read from the file.
	Name string `mapstructure:"-" yaml:"-" json:"name"`

	URL      string        `mapstructure:"url" yaml:"url" json:"url" validate:"required,url"`
	ChainID  uint64        `mapstructure:"chain_id" yaml:"chain_id" json:"chain_id" validate:"required"`
	Accounts []string      `mapstructure:"accounts" yaml:"accounts,omitempty" json:"-"`
	Signer   *RemoteSigner `mapstructure:"signer" yaml:"signer,omitempty" json:"signer,omitempty" validate:"omitempty"`

	// GasPrice is in wei; 0 asks the node.
	GasPrice      uint64   `mapstructure:"gas_price" yaml:"gas_price,omitempty" json:"gas_price,omitempty"`
	GasMultiplier float64  `mapstructure:"gas_multiplier" yaml:"gas_multiplier,omitempty" json:"gas_multiplier,omitempty" validate:"gte=0"`
	MinBalance    string   `mapstructure:"min_balance" yaml:"min_balance,omitempty" json:"min_balance,omitempty" validate:"omitempty,numeric"`
	Confirmations uint64   `mapstructure:"confirmations" yaml:"confirmations,omitempty" json:"confirmations,omitempty"`
	Live          bool     `mapstructure:"live" yaml:"live" json:"live"`
	Tags          []string `mapstructure:"tags" yaml:"tags,omitempty" json:"tags,omitempty"`
}

// RemoteSigner points at a JSON-RPC signer exposing eth_accounts and
// eth_signTransaction.
type RemoteSigner struct {
	URL    string `mapstructure:"url" yaml:"url" json:"url" validate:"required,url"`
	APIKey string `mapstructure:"api_key" yaml:"api_key,omitempty" json:"-"`
}

// Paths locates compiled artifacts and deployment records.
type Paths struct {
	Artifacts   string `mapstructure:"artifacts" yaml:"artifacts" json:"artifacts" validate:"required"`
	Deployments string `mapstructure:"deployments" yaml:"deployments" json:"deployments" validate:"required"`
}

// Registry selects where deployment records are kept.
type Registry struct {
	Driver string `mapstructure:"driver" yaml:"driver" json:"driver" validate:"oneof=file postgres"`
	DSN    string `mapstructure:"dsn" yaml:"dsn,omitempty" json:"-" validate:"required_if=Driver postgres"`
}

// Lock configures the optional per-network deploy lock.
type Lock struct {
	RedisURL string        `mapstructure:"redis_url" yaml:"redis_url,omitempty" json:"-"`
	TTL      time.Duration `mapstructure:"ttl" yaml:"ttl,omitempty" json:"ttl"`
}

// AccountRef is a resolved named-account entry: either an index into the
// network's account list or a fixed address.
type AccountRef struct {
	Index     int
	Address   common.Address
	IsAddress bool
}

func (r AccountRef) String() string {
	if r.IsAddress {
		return r.Address.Hex()
	}
	return fmt.Sprintf("#%d", r.Index)
}

// Warnings returns the non-fatal problems found while loading.
func (c *Config) Warnings() []string {
	return c.warnings
}

// Network returns the named network. An empty name selects DefaultNetwork.
// Lookup is case-insensitive; the returned copy carries the canonical
// lower-case key, which also names the network's deployments folder.
func (c *Config) Network(name string) (*Network, error) {
	if name == "" {
		name = c.DefaultNetwork
	}
	for key, n := range c.Networks {
		if strings.EqualFold(key, name) {
			cp := *n
			cp.Name = key
			return &cp, nil
		}
	}
	return nil, fmt.Errorf("%w: %s", ErrUnknownNetwork, name)
}

// NetworkNames returns the configured network keys.
func (c *Config) NetworkNames() []string {
	names := make([]string, 0, len(c.Networks))
	for key := range c.Networks {
		names = append(names, key)
	}
	return names
}

// NamedAccountRoles returns the configured named-account roles.
func (c *Config) NamedAccountRoles() []string {
	roles := make([]string, 0, len(c.NamedAccounts))
	for role := range c.NamedAccounts {
		roles = append(roles, role)
	}
	return roles
}

// NamedAccount resolves a role for the given network. Entries may be an
// index, an address, or a map of network name to either with a "default"
// fallback.
func (c *Config) NamedAccount(role, network string) (AccountRef, error) {
	raw, ok := lookupFold(c.NamedAccounts, role)
	if !ok {
		return AccountRef{}, fmt.Errorf("%w: %s", ErrUnknownNamedAccount, role)
	}

	if perNetwork, ok := raw.(map[string]any); ok {
		v, found := lookupFold(perNetwork, network)
		if !found {
			v, found = lookupFold(perNetwork, "default")
		}
		if !found {
			return AccountRef{}, fmt.Errorf("%w: %s has no entry for network %s and no default", ErrInvalidNamedAccount, role, network)
		}
		raw = v
	}

	ref, err := parseAccountRef(raw)
	if err != nil {
		return AccountRef{}, fmt.Errorf("%w: %s: %v", ErrInvalidNamedAccount, role, err)
	}
	return ref, nil
}

// MinBalanceWei returns the configured minimum deployer balance, or nil.
func (n *Network) MinBalanceWei() (*big.Int, error) {
	if n.MinBalance == "" {
		return nil, nil
	}
	v, ok := new(big.Int).SetString(n.MinBalance, 10)
	if !ok {
		return nil, fmt.Errorf("min_balance %q is not a decimal wei amount", n.MinBalance)
	}
	return v, nil
}

// Multiplier returns the gas price multiplier, treating unset as 1.
func (n *Network) Multiplier() float64 {
	if n.GasMultiplier <= 0 {
		return 1
	}
	return n.GasMultiplier
}

func parseAccountRef(v any) (AccountRef, error) {
	switch x := v.(type) {
	case int:
		return indexRef(int64(x))
	case int64:
		return indexRef(x)
	case uint64:
		return indexRef(int64(x))
	case float64:
		if x != float64(int64(x)) {
			return AccountRef{}, fmt.Errorf("index %v is not an integer", x)
		}
		return indexRef(int64(x))
	case string:
		s := strings.TrimSpace(x)
		if common.IsHexAddress(s) {
			return AccountRef{Address: common.HexToAddress(s), IsAddress: true}, nil
		}
		var idx int64
		if _, err := fmt.Sscanf(s, "%d", &idx); err == nil && fmt.Sprint(idx) == s {
			return indexRef(idx)
		}
		return AccountRef{}, fmt.Errorf("%q is neither an index nor an address", s)
	default:
		return AccountRef{}, fmt.Errorf("unsupported value %v (%T)", v, v)
	}
}

func indexRef(i int64) (AccountRef, error) {
	if i < 0 {
		return AccountRef{}, fmt.Errorf("negative index %d", i)
	}
	return AccountRef{Index: int(i)}, nil
}

func lookupFold(m map[string]any, key string) (any, bool) {
	if v, ok := m[key]; ok {
		return v, true
	}
	for k, v := range m {
		if strings.EqualFold(k, key) {
			return v, true
		}
	}
	return nil, false
}
