// Package history records deployments and verification outcomes and serves
// them back to the CLI and the history HTTP API.
package history

import (
	"context"
	"encoding/hex"
	"errors"
	"fmt"
	"strconv"

	"github.com/pendergraft/contradeploy/internal/deployer"
	"github.com/pendergraft/contradeploy/internal/observability/metrics"
	"github.com/pendergraft/contradeploy/internal/storage"
	"github.com/pendergraft/contradeploy/internal/validation"
)

// Common errors returned by the history service.
var (
	ErrNotFound       = errors.New("deployment not found")
	ErrInvalidAddress = errors.New("invalid address")
	ErrInvalidChainID = errors.New("invalid chain ID")
	ErrInvalidResult  = errors.New("invalid deployment result")
)

// Service defines the history service interface. It satisfies
// deployer.Recorder.
type Service interface {
	// RecordDeployment stores a confirmed deployment.
	RecordDeployment(ctx context.Context, result *deployer.DeploymentResult) error

	// RecordVerification attaches a verification outcome to a stored deployment.
	RecordVerification(ctx context.Context, result *deployer.DeploymentResult, outcome *deployer.VerificationOutcome) error

	// Get retrieves a deployment by chain and address.
	Get(ctx context.Context, chainID, address string) (*Deployment, error)

	// List lists deployments with filtering and pagination.
	List(ctx context.Context, filter ListFilter, pagination PaginationParams) (*ListResult, error)
}

// service implements the Service interface.
type service struct {
	store storage.DeploymentStore
}

// NewService creates a new history service.
func NewService(store storage.DeploymentStore) Service {
	return &service{store: store}
}

func (s *service) RecordDeployment(ctx context.Context, result *deployer.DeploymentResult) error {
	if !result.Confirmed() || result.ChainID == nil {
		metrics.HistoryRecord("deployment", "invalid")
		return ErrInvalidResult
	}

	d := &storage.Deployment{
		Network:         result.Network,
		ChainID:         result.ChainID.String(),
		Contract:        result.Contract,
		Address:         result.Address.Hex(),
		DeployerAddress: result.Deployer.Hex(),
		TxHash:          result.TxHash.Hex(),
		BlockNumber:     int64(result.BlockNumber),
		GasUsed:         int64(result.GasUsed),
		ConstructorArgs: hex.EncodeToString(result.ConstructorArgs),
		CreatedAt:       result.ConfirmedAt,
	}

	if err := s.store.RecordDeployment(ctx, d); err != nil {
		metrics.HistoryRecord("deployment", "error")
		return fmt.Errorf("recording deployment: %w", err)
	}

	metrics.HistoryRecord("deployment", "ok")
	return nil
}

func (s *service) RecordVerification(ctx context.Context, result *deployer.DeploymentResult, outcome *deployer.VerificationOutcome) error {
	if result == nil || result.ChainID == nil || outcome == nil {
		metrics.HistoryRecord("verification", "invalid")
		return ErrInvalidResult
	}

	d, err := s.store.GetDeployment(ctx, result.ChainID.String(), result.Address.Hex())
	if err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			metrics.HistoryRecord("verification", "not_found")
			return ErrNotFound
		}
		metrics.HistoryRecord("verification", "error")
		return fmt.Errorf("getting deployment: %w", err)
	}

	err = s.store.UpdateVerificationStatus(ctx, d.ID, storage.VerificationUpdate{
		Status:   string(outcome.Status),
		Provider: outcome.Provider,
		Message:  outcome.Message,
		Verified: outcome.Succeeded(),
	})
	if err != nil {
		metrics.HistoryRecord("verification", "error")
		return fmt.Errorf("updating verification status: %w", err)
	}

	metrics.HistoryRecord("verification", "ok")
	return nil
}

// Get retrieves a deployment by chain and address.
func (s *service) Get(ctx context.Context, chainID, address string) (*Deployment, error) {
	if err := validateChainID(chainID); err != nil {
		return nil, err
	}
	if err := validation.ValidateAddress(address); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidAddress, err)
	}

	deployment, err := s.store.GetDeployment(ctx, chainID, address)
	if err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("getting deployment: %w", err)
	}

	return toDeployment(deployment), nil
}

// List lists deployments with filtering and pagination.
func (s *service) List(ctx context.Context, filter ListFilter, pagination PaginationParams) (*ListResult, error) {
	if filter.ChainID != "" {
		if err := validateChainID(filter.ChainID); err != nil {
			return nil, err
		}
	}

	result, err := s.store.ListDeployments(ctx, storage.DeploymentFilter{
		Network:  filter.Network,
		ChainID:  filter.ChainID,
		Contract: filter.Contract,
		Verified: filter.Verified,
	}, storage.PaginationParams{
		Limit:  pagination.Limit,
		Cursor: pagination.Cursor,
	})
	if err != nil {
		return nil, fmt.Errorf("listing deployments: %w", err)
	}

	deployments := make([]Deployment, len(result.Data))
	for i := range result.Data {
		deployments[i] = *toDeployment(&result.Data[i])
	}

	return &ListResult{
		Deployments: deployments,
		HasMore:     result.HasMore,
		NextCursor:  result.NextCursor,
	}, nil
}

func validateChainID(chainID string) error {
	id, err := strconv.ParseInt(chainID, 10, 64)
	if err != nil {
		return fmt.Errorf("%w: %q", ErrInvalidChainID, chainID)
	}
	if err := validation.ValidateChainID(id); err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidChainID, err)
	}
	return nil
}

func toDeployment(d *storage.Deployment) *Deployment {
	out := &Deployment{
		ID:              d.ID,
		Network:         d.Network,
		ChainID:         d.ChainID,
		Contract:        d.Contract,
		Address:         d.Address,
		DeployerAddress: d.DeployerAddress,
		TxHash:          d.TxHash,
		BlockNumber:     d.BlockNumber,
		GasUsed:         d.GasUsed,
		ConstructorArgs: d.ConstructorArgs,
		CreatedAt:       d.CreatedAt,
	}
	if d.VerificationStatus != "" {
		out.Verification = &Verification{
			Status:     d.VerificationStatus,
			Provider:   d.VerificationProvider,
			Message:    d.VerificationMessage,
			VerifiedAt: d.VerifiedAt,
		}
	}
	return out
}
