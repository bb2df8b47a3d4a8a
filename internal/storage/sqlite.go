package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	_ "modernc.org/sqlite"
)

// sqliteTimeLayout is fixed-width so text ordering matches time ordering
const sqliteTimeLayout = "2006-01-02T15:04:05.000000000Z"

// SQLiteStore implements Store using SQLite
type SQLiteStore struct {
	db     *sql.DB
	logger *slog.Logger
}

// NewSQLiteStore creates a new SQLite store
func NewSQLiteStore(path string, logger *slog.Logger) (*SQLiteStore, error) {
	// Ensure directory exists
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, fmt.Errorf("creating data directory: %w", err)
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("opening database: %w", err)
	}

	// Enable WAL mode for better concurrency
	if _, err := db.Exec("PRAGMA journal_mode=WAL"); err != nil {
		db.Close()
		return nil, fmt.Errorf("enabling WAL mode: %w", err)
	}

	// Parallel deploys record concurrently
	if _, err := db.Exec("PRAGMA busy_timeout=5000"); err != nil {
		db.Close()
		return nil, fmt.Errorf("setting busy timeout: %w", err)
	}

	return &SQLiteStore{db: db, logger: logger}, nil
}

// Close closes the database connection
func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

// Migrate runs database migrations
func (s *SQLiteStore) Migrate(ctx context.Context) error {
	schema := `
	CREATE TABLE IF NOT EXISTS deployments (
		id TEXT PRIMARY KEY,
		network TEXT NOT NULL,
		chain_id TEXT NOT NULL,
		contract TEXT NOT NULL,
		address TEXT NOT NULL,
		deployer_address TEXT,
		tx_hash TEXT,
		block_number INTEGER,
		gas_used INTEGER,
		constructor_args TEXT,
		verification_status TEXT,
		verification_provider TEXT,
		verification_message TEXT,
		verified_at TEXT,
		created_at TEXT NOT NULL,
		UNIQUE(chain_id, address)
	);

	CREATE INDEX IF NOT EXISTS idx_deployments_network ON deployments(network);
	CREATE INDEX IF NOT EXISTS idx_deployments_created ON deployments(created_at);
	`

	_, err := s.db.ExecContext(ctx, schema)
	if err != nil {
		return fmt.Errorf("running migrations: %w", err)
	}

	s.logger.Debug("database migrations complete")
	return nil
}

// RecordDeployment records a deployment
func (s *SQLiteStore) RecordDeployment(ctx context.Context, d *Deployment) error {
	if d.ID == "" {
		d.ID = generateID()
	}
	if d.CreatedAt.IsZero() {
		d.CreatedAt = time.Now().UTC()
	}

	query := `
		INSERT INTO deployments (id, network, chain_id, contract, address, deployer_address, tx_hash, block_number, gas_used, constructor_args, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(chain_id, address) DO UPDATE SET
			id = excluded.id,
			network = excluded.network,
			contract = excluded.contract,
			deployer_address = excluded.deployer_address,
			tx_hash = excluded.tx_hash,
			block_number = excluded.block_number,
			gas_used = excluded.gas_used,
			constructor_args = excluded.constructor_args,
			verification_status = NULL,
			verification_provider = NULL,
			verification_message = NULL,
			verified_at = NULL,
			created_at = excluded.created_at
	`
	_, err := s.db.ExecContext(ctx, query,
		d.ID, d.Network, d.ChainID, d.Contract, d.Address, d.DeployerAddress, d.TxHash,
		d.BlockNumber, d.GasUsed, d.ConstructorArgs, d.CreatedAt.UTC().Format(sqliteTimeLayout),
	)
	if err != nil {
		return fmt.Errorf("recording deployment: %w", err)
	}
	return nil
}

const sqliteDeploymentColumns = `id, network, chain_id, contract, address, deployer_address, tx_hash, block_number, gas_used,
	constructor_args, verification_status, verification_provider, verification_message, verified_at, created_at`

// GetDeployment retrieves a deployment
func (s *SQLiteStore) GetDeployment(ctx context.Context, chainID, address string) (*Deployment, error) {
	query := `SELECT ` + sqliteDeploymentColumns + ` FROM deployments WHERE chain_id = ? AND address = ? COLLATE NOCASE`
	d, err := scanSQLiteDeployment(s.db.QueryRowContext(ctx, query, chainID, address))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	return d, err
}

// ListDeployments lists deployments, newest first
func (s *SQLiteStore) ListDeployments(ctx context.Context, filter DeploymentFilter, pagination PaginationParams) (*PaginatedResult[Deployment], error) {
	limit, offset, err := pageBounds(pagination)
	if err != nil {
		return nil, err
	}

	where, args := deploymentWhere(filter, func(int) string { return "?" })
	query := `SELECT ` + sqliteDeploymentColumns + ` FROM deployments` + where + ` ORDER BY created_at DESC, id LIMIT ? OFFSET ?`
	args = append(args, limit+1, offset)

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("listing deployments: %w", err)
	}
	defer rows.Close()

	var deployments []Deployment
	for rows.Next() {
		d, err := scanSQLiteDeployment(rows)
		if err != nil {
			return nil, err
		}
		deployments = append(deployments, *d)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	return paginate(deployments, limit, offset), nil
}

// UpdateVerificationStatus updates a deployment's verification status
func (s *SQLiteStore) UpdateVerificationStatus(ctx context.Context, id string, update VerificationUpdate) error {
	var verifiedAt any
	if update.Verified {
		verifiedAt = time.Now().UTC().Format(sqliteTimeLayout)
	}

	res, err := s.db.ExecContext(ctx, `
		UPDATE deployments
		SET verification_status = ?, verification_provider = ?, verification_message = ?, verified_at = COALESCE(?, verified_at)
		WHERE id = ?`,
		update.Status, update.Provider, update.Message, verifiedAt, id,
	)
	if err != nil {
		return fmt.Errorf("updating verification status: %w", err)
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return ErrNotFound
	}
	return nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanSQLiteDeployment(row rowScanner) (*Deployment, error) {
	var d Deployment
	var deployer, txHash, args, status, provider, message, verifiedAt sql.NullString
	var block, gas sql.NullInt64
	var createdAt string

	err := row.Scan(&d.ID, &d.Network, &d.ChainID, &d.Contract, &d.Address, &deployer, &txHash, &block, &gas,
		&args, &status, &provider, &message, &verifiedAt, &createdAt)
	if err != nil {
		return nil, err
	}

	d.DeployerAddress = deployer.String
	d.TxHash = txHash.String
	d.BlockNumber = block.Int64
	d.GasUsed = gas.Int64
	d.ConstructorArgs = args.String
	d.VerificationStatus = status.String
	d.VerificationProvider = provider.String
	d.VerificationMessage = message.String

	if d.CreatedAt, err = time.Parse(sqliteTimeLayout, createdAt); err != nil {
		return nil, fmt.Errorf("parsing created_at: %w", err)
	}
	if verifiedAt.Valid {
		t, err := time.Parse(sqliteTimeLayout, verifiedAt.String)
		if err != nil {
			return nil, fmt.Errorf("parsing verified_at: %w", err)
		}
		d.VerifiedAt = &t
	}
	return &d, nil
}
