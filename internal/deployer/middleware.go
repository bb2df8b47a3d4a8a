package deployer

import (
	"context"
	"log/slog"
	"time"
)

// LoggingMiddleware returns a service middleware that logs all operations.
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

func (m *loggingMiddleware) Deploy(ctx context.Context, req DeploymentRequest) (*DeploymentResult, error) {
	start := time.Now()
	result, err := m.next.Deploy(ctx, req)
	m.logger.Info("Deploy",
		append(resultAttrs(req.Contract, result),
			"duration", time.Since(start),
			"error", err,
		)...,
	)
	return result, err
}

func (m *loggingMiddleware) Verify(ctx context.Context, result *DeploymentResult, args []any) (*VerificationOutcome, error) {
	start := time.Now()
	outcome, err := m.next.Verify(ctx, result, args)
	contract := ""
	if result != nil {
		contract = result.Contract
	}
	m.logger.Info("Verify",
		append(append(resultAttrs(contract, result), outcomeAttrs(outcome)...),
			"duration", time.Since(start),
			"error", err,
		)...,
	)
	return outcome, err
}

func (m *loggingMiddleware) DeployAndVerify(ctx context.Context, req DeploymentRequest) (*DeploymentResult, *VerificationOutcome, error) {
	start := time.Now()
	result, outcome, err := m.next.DeployAndVerify(ctx, req)
	m.logger.Info("DeployAndVerify",
		append(append(resultAttrs(req.Contract, result), outcomeAttrs(outcome)...),
			"duration", time.Since(start),
			"error", err,
		)...,
	)
	return result, outcome, err
}

func resultAttrs(contract string, result *DeploymentResult) []any {
	attrs := []any{"contract", contract}
	if result != nil {
		attrs = append(attrs,
			"network", result.Network,
			"address", result.Address.Hex(),
			"tx_hash", result.TxHash.Hex(),
			"block", result.BlockNumber,
		)
	}
	return attrs
}

func outcomeAttrs(outcome *VerificationOutcome) []any {
	if outcome == nil {
		return nil
	}
	return []any{"verification", outcome.Status}
}
