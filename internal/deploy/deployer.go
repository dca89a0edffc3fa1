package deploy

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"math/big"
	"time"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/accounts/abi/bind"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/crypto"

	"github.com/lakeza551/Paramk-Smart-Contract-Senior-Project/internal/accounts"
	"github.com/lakeza551/Paramk-Smart-Contract-Senior-Project/internal/artifacts"
	"github.com/lakeza551/Paramk-Smart-Contract-Senior-Project/internal/config"
	"github.com/lakeza551/Paramk-Smart-Contract-Senior-Project/internal/deployments"
)

// DeterministicFactory is the keyless CREATE2 factory deployed at the same
// address on most EVM chains.
var DeterministicFactory = common.HexToAddress("0x4e59b44847b379578588920ca78fbf26c0b4956c")

// Sentinel errors
var (
	ErrDeploymentReverted     = errors.New("palmdeploy: deployment transaction reverted")
	ErrNoDeterministicFactory = errors.New("palmdeploy: deterministic deployment factory not found")
	ErrNotDeployed            = errors.New("palmdeploy: no deployment recorded")
	ErrNoContractAddress      = errors.New("palmdeploy: receipt has no contract address")
	ErrInvalidSalt            = errors.New("palmdeploy: invalid salt")
)

// ArtifactSource loads compiled contracts by name.
type ArtifactSource interface {
	Load(name string) (*artifacts.Artifact, error)
}

// Recorder observes deployment outcomes. result is "deployed", "reused" or
// "failed".
type Recorder interface {
	ObserveDeployment(network, contract, result string, gasUsed uint64)
}

// Options are the per-call deploy options.
type Options struct {
	From     common.Address
	Contract string
	Args     []interface{}
	// Log prints hardhat-deploy style progress lines.
	Log                     bool
	DeterministicDeployment bool
	// Salt is a 32-byte hex string; empty means the zero salt.
	Salt                  string
	SkipIfAlreadyDeployed bool
	GasLimit              uint64
	WaitConfirmations     uint64
}

// Result is the outcome of a Deploy call.
type Result struct {
	Deployment *deployments.Deployment
	// Newly is set when a transaction was sent.
	Newly bool
	// Reused is set when an existing deployment was kept.
	Reused bool
}

// Config wires a Deployer.
type Config struct {
	Client    EthClient
	Wallet    *accounts.Wallet
	Artifacts ArtifactSource
	Store     deployments.Store
	Solidity  config.Solidity
	Network   *config.Network
	RunID     string
	Logger    *slog.Logger
	Out       io.Writer
	Recorder  Recorder

	// PollInterval paces confirmation polling. Defaults to one second.
	PollInterval time.Duration
}

// Deployer deploys contracts by name to one network and records them.
type Deployer struct {
	client       EthClient
	wallet       *accounts.Wallet
	artifacts    ArtifactSource
	store        deployments.Store
	solidity     config.Solidity
	network      *config.Network
	chainID      *big.Int
	runID        string
	logger       *slog.Logger
	out          io.Writer
	recorder     Recorder
	pollInterval time.Duration
}

// New creates a Deployer.
func New(cfg Config) (*Deployer, error) {
	if cfg.Client == nil || cfg.Wallet == nil || cfg.Artifacts == nil || cfg.Store == nil || cfg.Network == nil {
		return nil, errors.New("deploy: client, wallet, artifacts, store and network are required")
	}

	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	out := cfg.Out
	if out == nil {
		out = io.Discard
	}
	poll := cfg.PollInterval
	if poll <= 0 {
		poll = time.Second
	}

	return &Deployer{
		client:       cfg.Client,
		wallet:       cfg.Wallet,
		artifacts:    cfg.Artifacts,
		store:        cfg.Store,
		solidity:     cfg.Solidity,
		network:      cfg.Network,
		chainID:      new(big.Int).SetUint64(cfg.Network.ChainID),
		runID:        cfg.RunID,
		logger:       logger.With(slog.String("network", cfg.Network.Name)),
		out:          out,
		recorder:     cfg.Recorder,
		pollInterval: poll,
	}, nil
}

// Network returns the network the deployer targets.
func (d *Deployer) Network() *config.Network {
	return d.network
}

// Get returns the recorded deployment of name.
func (d *Deployer) Get(ctx context.Context, name string) (*deployments.Deployment, error) {
	rec, err := d.store.Get(ctx, d.network.Name, name)
	if err != nil {
		return nil, err
	}
	if rec == nil || rec.Pending {
		return nil, fmt.Errorf("%w: %s on %s", ErrNotDeployed, name, d.network.Name)
	}
	return rec, nil
}

// Deploy deploys the contract behind name unless an identical deployment is
// already recorded and live.
func (d *Deployer) Deploy(ctx context.Context, name string, opts Options) (*Result, error) {
	contract := opts.Contract
	if contract == "" {
		contract = name
	}

	res, err := d.deploy(ctx, name, contract, opts)
	if err != nil {
		d.observe(contract, "failed", 0)
		return nil, err
	}
	if res.Reused {
		d.observe(contract, "reused", 0)
	} else {
		d.observe(contract, "deployed", res.Deployment.GasUsed)
	}
	return res, nil
}

func (d *Deployer) deploy(ctx context.Context, name, contract string, opts Options) (*Result, error) {
	art, err := d.artifacts.Load(contract)
	if err != nil {
		return nil, err
	}
	if err := artifacts.CheckCompiler(art, d.solidity); err != nil {
		return nil, err
	}

	code, err := art.CreationCode(opts.Args...)
	if err != nil {
		return nil, err
	}

	argsJSON, err := marshalArgs(opts.Args)
	if err != nil {
		return nil, err
	}

	existing, err := d.store.Get(ctx, d.network.Name, name)
	if err != nil {
		return nil, fmt.Errorf("load deployment %s: %w", name, err)
	}

	previous := 0
	if existing != nil && existing.Pending {
		previous = existing.NumDeployments - 1
		existing, err = d.resume(ctx, name, existing, opts)
		if err != nil {
			return nil, err
		}
	}

	if existing != nil {
		if opts.SkipIfAlreadyDeployed {
			return d.reuse(name, existing, opts), nil
		}
		if existing.SameCode(string(art.Bytecode), argsJSON) {
			live, err := d.hasCode(ctx, existing.Address)
			if err != nil {
				return nil, err
			}
			if live {
				return d.reuse(name, existing, opts), nil
			}
		}
	}

	rec := &deployments.Deployment{
		Name:             name,
		Contract:         contract,
		ABI:              art.ABI,
		Deployer:         opts.From,
		Args:             argsJSON,
		Bytecode:         string(art.Bytecode),
		DeployedBytecode: string(art.DeployedBytecode),
		Deterministic:    opts.DeterministicDeployment,
		NumDeployments:   previous + 1,
		ChainID:          d.network.ChainID,
		Network:          d.network.Name,
		RunID:            d.runID,
	}
	if existing != nil {
		rec.NumDeployments = existing.NumDeployments + 1
	}

	var to *common.Address
	data := code

	if opts.DeterministicDeployment {
		salt, err := parseSalt(opts.Salt)
		if err != nil {
			return nil, err
		}
		rec.Salt = salt.Hex()
		rec.Address = crypto.CreateAddress2(DeterministicFactory, salt, crypto.Keccak256(code))

		factoryLive, err := d.hasCode(ctx, DeterministicFactory)
		if err != nil {
			return nil, err
		}
		if !factoryLive {
			return nil, fmt.Errorf("%w at %s on %s", ErrNoDeterministicFactory, DeterministicFactory.Hex(), d.network.Name)
		}

		live, err := d.hasCode(ctx, rec.Address)
		if err != nil {
			return nil, err
		}
		if live {
			if existing != nil && existing.Address == rec.Address {
				return d.reuse(name, existing, opts), nil
			}
			rec.DeployedAt = time.Now().UTC()
			if err := d.store.Save(ctx, rec); err != nil {
				return nil, fmt.Errorf("save deployment %s: %w", name, err)
			}
			return d.reuse(name, rec, opts), nil
		}

		factory := DeterministicFactory
		to = &factory
		data = append(salt.Bytes(), code...)
	}

	tx, err := d.broadcast(ctx, name, opts, to, data)
	if err != nil {
		return nil, err
	}

	if !opts.DeterministicDeployment {
		rec.Address = crypto.CreateAddress(opts.From, tx.Nonce())
	}
	rec.TransactionHash = tx.Hash()
	rec.DeployedAt = time.Now().UTC()
	rec.Pending = true
	if err := d.store.Save(context.WithoutCancel(ctx), rec); err != nil {
		return nil, fmt.Errorf("save pending deployment %s (tx %s): %w", name, tx.Hash().Hex(), err)
	}

	if err := d.await(ctx, name, rec, existing, tx, opts); err != nil {
		return nil, err
	}
	return &Result{Deployment: rec, Newly: true}, nil
}

// resume waits for the transaction of a pending record left by an earlier
// run. It returns the finalized record, or nil when the transaction is gone
// from the node and the contract must be deployed again.
func (d *Deployer) resume(ctx context.Context, name string, pending *deployments.Deployment, opts Options) (*deployments.Deployment, error) {
	hash := pending.TransactionHash
	tx, _, err := d.client.TransactionByHash(ctx, hash)
	if errors.Is(err, ethereum.NotFound) {
		d.logger.Warn("pending deployment transaction not found, deploying again",
			slog.String("name", name),
			slog.String("tx_hash", hash.Hex()),
		)
		if err := d.store.Delete(ctx, d.network.Name, name); err != nil {
			return nil, fmt.Errorf("delete pending deployment %s: %w", name, err)
		}
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get transaction %s: %w", hash.Hex(), err)
	}

	d.logger.Info("resuming pending deployment",
		slog.String("name", name),
		slog.String("tx_hash", hash.Hex()),
	)
	if opts.Log {
		fmt.Fprintf(d.out, "waiting for %q (tx: %s)...", name, hash.Hex())
	}

	rec := *pending
	rec.RunID = d.runID
	if err := d.await(ctx, name, &rec, nil, tx, opts); err != nil {
		return nil, err
	}
	return &rec, nil
}

// broadcast prices, signs and sends one transaction.
func (d *Deployer) broadcast(ctx context.Context, name string, opts Options, to *common.Address, data []byte) (*types.Transaction, error) {
	signer, err := d.wallet.SignerFor(opts.From)
	if err != nil {
		return nil, err
	}

	nonce, err := d.client.PendingNonceAt(ctx, opts.From)
	if err != nil {
		return nil, fmt.Errorf("get nonce: %w", err)
	}

	f, err := d.suggestFees(ctx)
	if err != nil {
		return nil, err
	}

	gasLimit := opts.GasLimit
	if gasLimit == 0 {
		gasLimit, err = d.estimateGas(ctx, opts.From, to, data, f)
		if err != nil {
			return nil, fmt.Errorf("%s: %w", name, err)
		}
	}

	signed, err := signer.SignTx(ctx, newTx(d.chainID, nonce, to, gasLimit, data, f), d.chainID)
	if err != nil {
		return nil, fmt.Errorf("sign transaction: %w", err)
	}

	if err := d.client.SendTransaction(ctx, signed); err != nil {
		return nil, fmt.Errorf("send transaction: %w", err)
	}

	d.logger.Info("transaction submitted, waiting for confirmation",
		slog.String("name", name),
		slog.String("tx_hash", signed.Hash().Hex()),
		slog.Uint64("nonce", nonce),
		slog.Uint64("gas_limit", gasLimit),
	)
	if opts.Log {
		fmt.Fprintf(d.out, "deploying %q (tx: %s)...", name, signed.Hash().Hex())
	}
	return signed, nil
}

// await waits for tx to be mined, records rec as deployed and then waits for
// the configured confirmations. On revert the record goes back to previous,
// or is removed when there was none.
func (d *Deployer) await(ctx context.Context, name string, rec, previous *deployments.Deployment, tx *types.Transaction, opts Options) error {
	receipt, err := bind.WaitMined(ctx, d.client, tx)
	if err != nil {
		if opts.Log {
			fmt.Fprintln(d.out)
		}
		return fmt.Errorf("wait for receipt: %w", err)
	}

	// Store writes below must land even when ctx is done.
	keep := context.WithoutCancel(ctx)

	if receipt.Status != types.ReceiptStatusSuccessful {
		if opts.Log {
			fmt.Fprintln(d.out, ": reverted")
		}
		if err := d.discard(keep, name, previous); err != nil {
			d.logger.Error("failed to clear pending deployment", slog.String("name", name), slog.String("error", err.Error()))
		}
		return fmt.Errorf("%w: %s tx %s in block %d", ErrDeploymentReverted, name, tx.Hash().Hex(), receipt.BlockNumber.Uint64())
	}

	if !rec.Deterministic {
		if receipt.ContractAddress == (common.Address{}) {
			return fmt.Errorf("%w: tx %s", ErrNoContractAddress, receipt.TxHash.Hex())
		}
		rec.Address = receipt.ContractAddress
	}
	rec.TransactionHash = receipt.TxHash
	rec.BlockNumber = receipt.BlockNumber.Uint64()
	rec.GasUsed = receipt.GasUsed
	rec.DeployedAt = time.Now().UTC()
	rec.Pending = false

	if opts.Log {
		fmt.Fprintf(d.out, ": deployed at %s with %d gas\n", rec.Address.Hex(), rec.GasUsed)
	}

	if err := d.store.Save(keep, rec); err != nil {
		return fmt.Errorf("save deployment %s: %w", name, err)
	}

	d.logger.Info("contract deployed",
		slog.String("name", name),
		slog.String("address", rec.Address.Hex()),
		slog.String("tx_hash", rec.TransactionHash.Hex()),
		slog.Uint64("gas_used", rec.GasUsed),
	)

	confirmations := opts.WaitConfirmations
	if confirmations == 0 {
		confirmations = d.network.Confirmations
	}
	return d.waitConfirmations(ctx, receipt.BlockNumber.Uint64(), confirmations)
}

func (d *Deployer) discard(ctx context.Context, name string, previous *deployments.Deployment) error {
	if previous != nil {
		return d.store.Save(ctx, previous)
	}
	return d.store.Delete(ctx, d.network.Name, name)
}

// waitConfirmations blocks until the head is n-1 blocks past mined.
func (d *Deployer) waitConfirmations(ctx context.Context, mined, n uint64) error {
	if n <= 1 {
		return nil
	}
	target := mined + n - 1

	ticker := time.NewTicker(d.pollInterval)
	defer ticker.Stop()

	for {
		head, err := d.client.BlockNumber(ctx)
		if err != nil {
			return fmt.Errorf("get block number: %w", err)
		}
		if head >= target {
			return nil
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
		}
	}
}

func (d *Deployer) reuse(name string, rec *deployments.Deployment, opts Options) *Result {
	if opts.Log {
		fmt.Fprintf(d.out, "reusing %q at %s\n", name, rec.Address.Hex())
	}
	d.logger.Info("reusing deployment",
		slog.String("name", name),
		slog.String("address", rec.Address.Hex()),
	)
	return &Result{Deployment: rec, Reused: true}
}

func (d *Deployer) hasCode(ctx context.Context, addr common.Address) (bool, error) {
	code, err := d.client.CodeAt(ctx, addr, nil)
	if err != nil {
		return false, fmt.Errorf("get code at %s: %w", addr.Hex(), err)
	}
	return len(code) > 0, nil
}

func (d *Deployer) observe(contract, result string, gasUsed uint64) {
	if d.recorder != nil {
		d.recorder.ObserveDeployment(d.network.Name, contract, result, gasUsed)
	}
}

func marshalArgs(args []interface{}) (json.RawMessage, error) {
	if len(args) == 0 {
		return json.RawMessage("[]"), nil
	}
	b, err := json.Marshal(args)
	if err != nil {
		return nil, fmt.Errorf("encode args: %w", err)
	}
	return b, nil
}

func parseSalt(s string) (common.Hash, error) {
	if s == "" {
		return common.Hash{}, nil
	}
	b, err := hexutil.Decode(s)
	if err != nil || len(b) > common.HashLength {
		return common.Hash{}, fmt.Errorf("%w: %q", ErrInvalidSalt, s)
	}
	return common.BytesToHash(b), nil
}
