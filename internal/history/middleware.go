package history

import (
	"context"
	"log/slog"
	"time"

	"github.com/pendergraft/contradeploy/internal/deployer"
)

// LoggingMiddleware returns a service middleware that logs history operations.
func LoggingMiddleware(logger *slog.Logger) func(Service) Service {
	return func(next Service) Service {
		return &loggingMiddleware{
			next:   next,
			logger: logger,
		}
	}
}

type loggingMiddleware struct {
	next   Service
	logger *slog.Logger
}

func (m *loggingMiddleware) RecordDeployment(ctx context.Context, result *deployer.DeploymentResult) (err error) {
	defer func(start time.Time) {
		m.logger.Debug("RecordDeployment",
			"address", addressOf(result),
			"duration", time.Since(start),
			"error", err,
		)
	}(time.Now())
	return m.next.RecordDeployment(ctx, result)
}

func (m *loggingMiddleware) RecordVerification(ctx context.Context, result *deployer.DeploymentResult, outcome *deployer.VerificationOutcome) (err error) {
	defer func(start time.Time) {
		var status deployer.VerificationStatus
		if outcome != nil {
			status = outcome.Status
		}
		m.logger.Debug("RecordVerification",
			"address", addressOf(result),
			"status", status,
			"duration", time.Since(start),
			"error", err,
		)
	}(time.Now())
	return m.next.RecordVerification(ctx, result, outcome)
}

func (m *loggingMiddleware) Get(ctx context.Context, chainID, address string) (d *Deployment, err error) {
	defer func(start time.Time) {
		m.logger.Info("Get",
			"chain_id", chainID,
			"address", address,
			"duration", time.Since(start),
			"error", err,
		)
	}(time.Now())
	return m.next.Get(ctx, chainID, address)
}

func (m *loggingMiddleware) List(ctx context.Context, filter ListFilter, pagination PaginationParams) (result *ListResult, err error) {
	defer func(start time.Time) {
		count := 0
		if result != nil {
			count = len(result.Deployments)
		}
		m.logger.Info("List",
			"network", filter.Network,
			"chain_id", filter.ChainID,
			"count", count,
			"duration", time.Since(start),
			"error", err,
		)
	}(time.Now())
	return m.next.List(ctx, filter, pagination)
}

func addressOf(result *deployer.DeploymentResult) string {
	if result == nil {
		return ""
	}
	return result.Address.Hex()
}
