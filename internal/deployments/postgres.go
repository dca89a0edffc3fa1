package deployments

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
)

// DB is the subset of *pgxpool.Pool the Postgres store uses.
type DB interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

// PostgresStore keeps records in the deployments table, one row per
// (network, name).
type PostgresStore struct {
	db DB
}

// NewPostgresStore creates a store on db.
func NewPostgresStore(db DB) *PostgresStore {
	return &PostgresStore{db: db}
}

const deploymentColumns = `name, contract, address, abi, transaction_hash, block_number, gas_used,
	deployer, args, bytecode, deployed_bytecode, deterministic, salt, num_deployments,
	chain_id, network, run_id, deployed_at, pending`

// Get implements Store.
func (s *PostgresStore) Get(ctx context.Context, network, name string) (*Deployment, error) {
	query := `SELECT ` + deploymentColumns + ` FROM deployments WHERE network = $1 AND name = $2`

	d, err := scanDeployment(s.db.QueryRow(ctx, query, network, name))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get deployment %s/%s: %w", network, name, err)
	}
	return d, nil
}

// Save implements Store.
func (s *PostgresStore) Save(ctx context.Context, d *Deployment) error {
	if d.Name == "" {
		return fmt.Errorf("%w: empty", ErrInvalidName)
	}
	if d.DeployedAt.IsZero() {
		d.DeployedAt = time.Now().UTC()
	}

	var recorded int64
	err := s.db.QueryRow(ctx, `SELECT chain_id FROM deployments WHERE network = $1 LIMIT 1`, d.Network).Scan(&recorded)
	switch {
	case errors.Is(err, pgx.ErrNoRows):
	case err != nil:
		return fmt.Errorf("check chain id: %w", err)
	case uint64(recorded) != d.ChainID:
		return fmt.Errorf("%w: network %s holds chain %d, got %d", ErrChainIDMismatch, d.Network, recorded, d.ChainID)
	}

	query := `
		INSERT INTO deployments (` + deploymentColumns + `)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16, $17, $18, $19)
		ON CONFLICT (network, name) DO UPDATE SET
			contract = EXCLUDED.contract,
			address = EXCLUDED.address,
			abi = EXCLUDED.abi,
			transaction_hash = EXCLUDED.transaction_hash,
			block_number = EXCLUDED.block_number,
			gas_used = EXCLUDED.gas_used,
			deployer = EXCLUDED.deployer,
			args = EXCLUDED.args,
			bytecode = EXCLUDED.bytecode,
			deployed_bytecode = EXCLUDED.deployed_bytecode,
			deterministic = EXCLUDED.deterministic,
			salt = EXCLUDED.salt,
			num_deployments = EXCLUDED.num_deployments,
			chain_id = EXCLUDED.chain_id,
			run_id = EXCLUDED.run_id,
			deployed_at = EXCLUDED.deployed_at,
			pending = EXCLUDED.pending`

	_, err = s.db.Exec(ctx, query,
		d.Name,
		d.Contract,
		d.Address.Hex(),
		jsonOrEmpty(d.ABI),
		d.TransactionHash.Hex(),
		int64(d.BlockNumber),
		int64(d.GasUsed),
		d.Deployer.Hex(),
		jsonOrEmpty(d.Args),
		d.Bytecode,
		d.DeployedBytecode,
		d.Deterministic,
		d.Salt,
		d.NumDeployments,
		int64(d.ChainID),
		d.Network,
		d.RunID,
		d.DeployedAt,
		d.Pending,
	)
	if err != nil {
		return fmt.Errorf("save deployment %s/%s: %w", d.Network, d.Name, err)
	}
	return nil
}

// List implements Store.
func (s *PostgresStore) List(ctx context.Context, network string) ([]*Deployment, error) {
	query := `SELECT ` + deploymentColumns + ` FROM deployments WHERE network = $1 ORDER BY name`

	rows, err := s.db.Query(ctx, query, network)
	if err != nil {
		return nil, fmt.Errorf("list deployments: %w", err)
	}
	defer rows.Close()

	var out []*Deployment
	for rows.Next() {
		d, err := scanDeployment(rows)
		if err != nil {
			return nil, fmt.Errorf("scan deployment: %w", err)
		}
		out = append(out, d)
	}
	return out, rows.Err()
}

// Delete implements Store.
func (s *PostgresStore) Delete(ctx context.Context, network, name string) error {
	_, err := s.db.Exec(ctx, `DELETE FROM deployments WHERE network = $1 AND name = $2`, network, name)
	return err
}

// Reset implements Store.
func (s *PostgresStore) Reset(ctx context.Context, network string) error {
	_, err := s.db.Exec(ctx, `DELETE FROM deployments WHERE network = $1`, network)
	return err
}

func scanDeployment(row pgx.Row) (*Deployment, error) {
	var (
		d                         Deployment
		address, txHash, deployer string
		abiJSON, argsJSON         []byte
		blockNumber, gasUsed      int64
		chainID                   int64
	)

	err := row.Scan(
		&d.Name,
		&d.Contract,
		&address,
		&abiJSON,
		&txHash,
		&blockNumber,
		&gasUsed,
		&deployer,
		&argsJSON,
		&d.Bytecode,
		&d.DeployedBytecode,
		&d.Deterministic,
		&d.Salt,
		&d.NumDeployments,
		&chainID,
		&d.Network,
		&d.RunID,
		&d.DeployedAt,
		&d.Pending,
	)
	if err != nil {
		return nil, err
	}

	d.Address = common.HexToAddress(address)
	d.TransactionHash = common.HexToHash(txHash)
	d.Deployer = common.HexToAddress(deployer)
	d.ABI = abiJSON
	d.Args = argsJSON
	d.BlockNumber = uint64(blockNumber)
	d.GasUsed = uint64(gasUsed)
	d.ChainID = uint64(chainID)
	return &d, nil
}

func jsonOrEmpty(b []byte) []byte {
	if len(b) == 0 {
		return []byte("[]")
	}
	return b
}

var _ Store = (*PostgresStore)(nil)
