package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"time"

	_ "github.com/jackc/pgx/v5/stdlib"
)

// PostgresStore implements Store using PostgreSQL
type PostgresStore struct {
	db     *sql.DB
	logger *slog.Logger
}

// NewPostgresStore creates a new Postgres store
func NewPostgresStore(url string, logger *slog.Logger) (*PostgresStore, error) {
	db, err := sql.Open("pgx", url)
	if err != nil {
		return nil, fmt.Errorf("opening database: %w", err)
	}

	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("pinging database: %w", err)
	}

	return &PostgresStore{db: db, logger: logger}, nil
}

// Close closes the database connection
func (s *PostgresStore) Close() error {
	return s.db.Close()
}

// Migrate runs database migrations
func (s *PostgresStore) Migrate(ctx context.Context) error {
	schema := `
	CREATE TABLE IF NOT EXISTS deployments (
		id UUID PRIMARY KEY,
		network TEXT NOT NULL,
		chain_id TEXT NOT NULL,
		contract TEXT NOT NULL,
		address TEXT NOT NULL,
		deployer_address TEXT,
		tx_hash TEXT,
		block_number BIGINT,
		gas_used BIGINT,
		constructor_args TEXT,
		verification_status TEXT,
		verification_provider TEXT,
		verification_message TEXT,
		verified_at TIMESTAMPTZ,
		created_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
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
func (s *PostgresStore) RecordDeployment(ctx context.Context, d *Deployment) error {
	if d.ID == "" {
		d.ID = generateID()
	}
	if d.CreatedAt.IsZero() {
		d.CreatedAt = time.Now().UTC()
	}

	query := `
		INSERT INTO deployments (id, network, chain_id, contract, address, deployer_address, tx_hash, block_number, gas_used, constructor_args, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)
		ON CONFLICT (chain_id, address) DO UPDATE SET
			id = EXCLUDED.id,
			network = EXCLUDED.network,
			contract = EXCLUDED.contract,
			deployer_address = EXCLUDED.deployer_address,
			tx_hash = EXCLUDED.tx_hash,
			block_number = EXCLUDED.block_number,
			gas_used = EXCLUDED.gas_used,
			constructor_args = EXCLUDED.constructor_args,
			verification_status = NULL,
			verification_provider = NULL,
			verification_message = NULL,
			verified_at = NULL,
			created_at = EXCLUDED.created_at
	`
	_, err := s.db.ExecContext(ctx, query,
		d.ID, d.Network, d.ChainID, d.Contract, d.Address, d.DeployerAddress, d.TxHash,
		d.BlockNumber, d.GasUsed, d.ConstructorArgs, d.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("recording deployment: %w", err)
	}
	return nil
}

const postgresDeploymentColumns = `id::text, network, chain_id, contract, address, deployer_address, tx_hash, block_number, gas_used,
	constructor_args, verification_status, verification_provider, verification_message, verified_at, created_at`

// GetDeployment retrieves a deployment
func (s *PostgresStore) GetDeployment(ctx context.Context, chainID, address string) (*Deployment, error) {
	query := `SELECT ` + postgresDeploymentColumns + ` FROM deployments WHERE chain_id = $1 AND LOWER(address) = LOWER($2)`
	d, err := scanPostgresDeployment(s.db.QueryRowContext(ctx, query, chainID, address))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	return d, err
}

// ListDeployments lists deployments, newest first
func (s *PostgresStore) ListDeployments(ctx context.Context, filter DeploymentFilter, pagination PaginationParams) (*PaginatedResult[Deployment], error) {
	limit, offset, err := pageBounds(pagination)
	if err != nil {
		return nil, err
	}

	where, args := deploymentWhere(filter, func(n int) string { return fmt.Sprintf("$%d", n) })
	query := fmt.Sprintf(`SELECT %s FROM deployments%s ORDER BY created_at DESC, id LIMIT $%d OFFSET $%d`,
		postgresDeploymentColumns, where, len(args)+1, len(args)+2)
	args = append(args, limit+1, offset)

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("listing deployments: %w", err)
	}
	defer rows.Close()

	var deployments []Deployment
	for rows.Next() {
		d, err := scanPostgresDeployment(rows)
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
func (s *PostgresStore) UpdateVerificationStatus(ctx context.Context, id string, update VerificationUpdate) error {
	var verifiedAt *time.Time
	if update.Verified {
		now := time.Now().UTC()
		verifiedAt = &now
	}

	res, err := s.db.ExecContext(ctx, `
		UPDATE deployments
		SET verification_status = $1, verification_provider = $2, verification_message = $3, verified_at = COALESCE($4, verified_at)
		WHERE id = $5`,
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

func scanPostgresDeployment(row rowScanner) (*Deployment, error) {
	var d Deployment
	var deployer, txHash, args, status, provider, message sql.NullString
	var block, gas sql.NullInt64
	var verifiedAt sql.NullTime

	err := row.Scan(&d.ID, &d.Network, &d.ChainID, &d.Contract, &d.Address, &deployer, &txHash, &block, &gas,
		&args, &status, &provider, &message, &verifiedAt, &d.CreatedAt)
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
	if verifiedAt.Valid {
		t := verifiedAt.Time.UTC()
		d.VerifiedAt = &t
	}
	d.CreatedAt = d.CreatedAt.UTC()
	return &d, nil
}
