// Package storage persists deployment history.
package storage

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/pendergraft/contradeploy/internal/config"
)

// DeploymentStore handles deployment operations
type DeploymentStore interface {
	// RecordDeployment inserts a deployment, replacing any earlier record for
	// the same chain and address.
	RecordDeployment(ctx context.Context, d *Deployment) error
	GetDeployment(ctx context.Context, chainID, address string) (*Deployment, error)
	ListDeployments(ctx context.Context, filter DeploymentFilter, pagination PaginationParams) (*PaginatedResult[Deployment], error)
	UpdateVerificationStatus(ctx context.Context, id string, update VerificationUpdate) error
}

// Store combines the storage interfaces with lifecycle methods.
// Services define their own minimal interfaces based on their actual usage.
type Store interface {
	DeploymentStore

	// Lifecycle
	Close() error
	Migrate(ctx context.Context) error
}

// Deployment represents a recorded deployment
type Deployment struct {
	ID              string
	Network         string
	ChainID         string
	Contract        string
	Address         string
	DeployerAddress string
	TxHash          string
	BlockNumber     int64
	GasUsed         int64
	ConstructorArgs string // hex without 0x

	VerificationStatus   string // "" until verification is attempted
	VerificationProvider string
	VerificationMessage  string
	VerifiedAt           *time.Time

	CreatedAt time.Time
}

// VerificationUpdate records the result of a verification attempt
type VerificationUpdate struct {
	Status   string
	Provider string
	Message  string
	// Verified sets verified_at
	Verified bool
}

// DeploymentFilter contains filter options for listing deployments
type DeploymentFilter struct {
	Network  string
	ChainID  string
	Contract string
	Verified *bool
}

// PaginationParams contains pagination options
type PaginationParams struct {
	Limit  int
	Cursor string
}

// PaginatedResult contains paginated results
type PaginatedResult[T any] struct {
	Data       []T
	HasMore    bool
	NextCursor string
}

// New creates a new store based on configuration
func New(cfg config.StorageConfig, logger *slog.Logger) (Store, error) {
	switch cfg.Type {
	case "sqlite":
		return NewSQLiteStore(cfg.SQLite.Path, logger)
	case "postgres":
		return NewPostgresStore(cfg.Postgres.URL, logger)
	default:
		return nil, fmt.Errorf("unknown storage type: %s", cfg.Type)
	}
}
