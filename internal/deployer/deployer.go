package deployer

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math/big"
	"strings"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/ethereum/go-ethereum/core/types"

	"github.com/pendergraft/contradeploy/internal/chains"
	"github.com/pendergraft/contradeploy/internal/chains/evm"
	"github.com/pendergraft/contradeploy/internal/observability/metrics"
	"github.com/pendergraft/contradeploy/internal/verification"
)

// ArtifactSource resolves contract identifiers to compiled artifacts
type ArtifactSource interface {
	Artifact(ctx context.Context, contract string) (*chains.Artifact, error)
}

// ChainClient submits contract creation transactions from one account
type ChainClient interface {
	ChainID() *big.Int
	Sender() common.Address
	SubmitDeployment(ctx context.Context, req evm.DeployTx) (*types.Transaction, error)
	WaitConfirmed(ctx context.Context, tx *types.Transaction) (*types.Receipt, error)
}

// Verifier requests source verification for a deployed contract
type Verifier interface {
	Name() string
	Verify(ctx context.Context, req verification.Request) (*verification.Result, error)
}

// Recorder observes confirmed deployments and verification outcomes.
// Recorder errors are logged and never fail the operation.
type Recorder interface {
	RecordDeployment(ctx context.Context, result *DeploymentResult) error
	RecordVerification(ctx context.Context, result *DeploymentResult, outcome *VerificationOutcome) error
}

// Service is the deploy-and-verify API
type Service interface {
	Deploy(ctx context.Context, req DeploymentRequest) (*DeploymentResult, error)
	Verify(ctx context.Context, result *DeploymentResult, args []any) (*VerificationOutcome, error)
	DeployAndVerify(ctx context.Context, req DeploymentRequest) (*DeploymentResult, *VerificationOutcome, error)
}

// Options configure a Deployer
type Options struct {
	// Network labels results, logs and metrics
	Network string
	// ConfirmationTimeout bounds the wait for a receipt (0 = caller's context only)
	ConfirmationTimeout time.Duration
	// VerificationTimeout bounds a verification attempt (0 = caller's context only)
	VerificationTimeout time.Duration
	// SkipVerify makes DeployAndVerify stop after confirmation
	SkipVerify bool
	Recorders  []Recorder
	Logger     *slog.Logger
}

// Deployer holds no per-call state and is safe for concurrent use
type Deployer struct {
	artifacts ArtifactSource
	chain     ChainClient
	verifier  Verifier
	opts      Options
	logger    *slog.Logger
	now       func() time.Time
}

// New creates a Deployer. verifier may be nil, in which case every
// verification fails with reason not-configured.
func New(artifacts ArtifactSource, chain ChainClient, verifier Verifier, opts Options) *Deployer {
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &Deployer{
		artifacts: artifacts,
		chain:     chain,
		verifier:  verifier,
		opts:      opts,
		logger:    logger,
		now:       time.Now,
	}
}

// Deploy resolves the artifact, submits the creation transaction and waits
// for it to be mined. Artifact and argument problems are reported before
// anything is sent to the network.
func (d *Deployer) Deploy(ctx context.Context, req DeploymentRequest) (*DeploymentResult, error) {
	result, _, err := d.deploy(ctx, req.clone())
	return result, err
}

// Verify requests source verification for a confirmed deployment. When args
// is nil the ABI-encoded arguments recorded in result are used.
//
// A verification failure is returned both as the outcome's Failure and as
// the error.
func (d *Deployer) Verify(ctx context.Context, result *DeploymentResult, args []any) (*VerificationOutcome, error) {
	if !result.Confirmed() {
		return nil, ErrNotConfirmed
	}

	artifact, err := d.artifact(ctx, result.Contract)
	if err != nil {
		return nil, err
	}

	encoded := result.ConstructorArgs
	if args != nil {
		encoded, err = evm.EncodeConstructorArgs(artifact.ABI, append([]any(nil), args...))
		if err != nil {
			failure := &VerificationFailure{Reason: ReasonInvalidArguments, Address: result.Address, Err: err}
			return d.failed(failure), failure
		}
	}

	outcome := d.verify(ctx, result, artifact, encoded)
	if outcome.Failure != nil {
		return outcome, outcome.Failure
	}
	return outcome, nil
}

// DeployAndVerify deploys and then requests verification. A deployment
// failure aborts with no result. A verification failure does not: the
// result is returned with a failed outcome and a nil error.
func (d *Deployer) DeployAndVerify(ctx context.Context, req DeploymentRequest) (*DeploymentResult, *VerificationOutcome, error) {
	result, artifact, err := d.deploy(ctx, req.clone())
	if err != nil {
		return nil, nil, err
	}

	if d.opts.SkipVerify {
		return result, &VerificationOutcome{Status: VerificationSkipped, Message: "verification skipped"}, nil
	}

	outcome := d.verify(ctx, result, artifact, result.ConstructorArgs)
	return result, outcome, nil
}

func (d *Deployer) artifact(ctx context.Context, contract string) (*chains.Artifact, error) {
	artifact, err := d.artifacts.Artifact(ctx, contract)
	if err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return nil, ctxErr
		}
		return nil, &ArtifactNotFoundError{Contract: contract, Err: err}
	}
	if !artifact.HasBytecode() {
		return nil, &ArtifactNotFoundError{Contract: contract, Err: errors.New("artifact has no creation bytecode")}
	}
	return artifact, nil
}

func (d *Deployer) deploy(ctx context.Context, req DeploymentRequest) (*DeploymentResult, *chains.Artifact, error) {
	artifact, err := d.artifact(ctx, req.Contract)
	if err != nil {
		return nil, nil, err
	}
	contract := artifact.QualifiedName()

	bytecode, err := hexutil.Decode(ensure0x(artifact.Bytecode))
	if err != nil {
		return nil, nil, &ArtifactNotFoundError{Contract: req.Contract, Err: fmt.Errorf("malformed bytecode: %w", err)}
	}

	encoded, err := evm.EncodeConstructorArgs(artifact.ABI, req.Args)
	if err != nil {
		return nil, nil, d.fail(&DeploymentFailure{Reason: ReasonInvalidArguments, Contract: contract, Err: err})
	}

	data := make([]byte, 0, len(bytecode)+len(encoded))
	data = append(data, bytecode...)
	data = append(data, encoded...)

	tx, err := d.chain.SubmitDeployment(ctx, evm.DeployTx{
		Data:     data,
		GasPrice: req.Overrides.GasPrice,
		GasLimit: req.Overrides.GasLimit,
		Value:    req.Overrides.Value,
	})
	if err != nil {
		return nil, nil, d.fail(&DeploymentFailure{Reason: submitReason(err), Contract: contract, Err: err})
	}
	submittedAt := d.now()

	d.logger.Info("deployment submitted",
		"contract", contract,
		"network", d.opts.Network,
		"tx_hash", tx.Hash().Hex(),
		"status", StatusPending,
	)

	waitCtx := ctx
	if d.opts.ConfirmationTimeout > 0 {
		var cancel context.CancelFunc
		waitCtx, cancel = context.WithTimeout(ctx, d.opts.ConfirmationTimeout)
		defer cancel()
	}

	receipt, err := d.chain.WaitConfirmed(waitCtx, tx)
	if err != nil {
		return nil, nil, d.fail(&DeploymentFailure{Reason: confirmReason(err), Contract: contract, TxHash: tx.Hash(), Err: err})
	}

	confirmedAt := d.now()
	metrics.Confirmation(d.opts.Network, confirmedAt.Sub(submittedAt))
	metrics.Deployment(d.opts.Network, string(StatusConfirmed))

	result := &DeploymentResult{
		Contract:        contract,
		Network:         d.opts.Network,
		Address:         receipt.ContractAddress,
		TxHash:          tx.Hash(),
		Status:          StatusConfirmed,
		ChainID:         d.chain.ChainID(),
		Deployer:        d.chain.Sender(),
		GasUsed:         receipt.GasUsed,
		ConstructorArgs: encoded,
		ConfirmedAt:     confirmedAt,
	}
	if receipt.BlockNumber != nil {
		result.BlockNumber = receipt.BlockNumber.Uint64()
	}

	for _, r := range d.opts.Recorders {
		if err := r.RecordDeployment(ctx, result); err != nil {
			d.logger.Warn("failed to record deployment", "contract", contract, "error", err)
		}
	}

	return result, artifact, nil
}

func (d *Deployer) verify(ctx context.Context, result *DeploymentResult, artifact *chains.Artifact, encodedArgs []byte) *VerificationOutcome {
	if d.verifier == nil {
		return d.record(ctx, result, d.failed(&VerificationFailure{
			Reason:  ReasonNotConfigured,
			Address: result.Address,
			Err:     verification.ErrNotConfigured,
		}))
	}

	verifyCtx := ctx
	if d.opts.VerificationTimeout > 0 {
		var cancel context.CancelFunc
		verifyCtx, cancel = context.WithTimeout(ctx, d.opts.VerificationTimeout)
		defer cancel()
	}

	var chainID *big.Int
	switch {
	case result.ChainID != nil:
		chainID = new(big.Int).Set(result.ChainID)
	case d.chain != nil:
		chainID = d.chain.ChainID()
	}

	res, err := d.verifier.Verify(verifyCtx, verification.Request{
		Address:           result.Address,
		ChainID:           chainID,
		Contract:          artifact.QualifiedName(),
		ConstructorArgs:   append([]byte(nil), encodedArgs...),
		CompilerVersion:   artifact.Compiler.Version,
		StandardJSONInput: artifact.StandardJSONInput,
		DeployedBytecode:  artifact.DeployedBytecode,
		License:           artifact.License,
	})
	if err != nil {
		outcome := d.failed(&VerificationFailure{Reason: verifyReason(err), Address: result.Address, Err: err})
		outcome.Provider = d.verifier.Name()
		metrics.Verification(d.verifier.Name(), string(VerificationFailed))
		d.logger.Warn("verification failed",
			"contract", result.Contract,
			"address", result.Address.Hex(),
			"reason", outcome.Failure.Reason,
			"error", err,
		)
		return d.record(ctx, result, outcome)
	}

	status := VerificationVerified
	if res.Status == verification.StatusAlreadyVerified {
		status = VerificationAlreadyVerified
	}
	metrics.Verification(d.verifier.Name(), string(status))

	return d.record(ctx, result, &VerificationOutcome{
		Status:   status,
		Provider: d.verifier.Name(),
		Message:  res.Message,
		GUID:     res.GUID,
	})
}

func (d *Deployer) record(ctx context.Context, result *DeploymentResult, outcome *VerificationOutcome) *VerificationOutcome {
	for _, r := range d.opts.Recorders {
		if err := r.RecordVerification(ctx, result, outcome); err != nil {
			d.logger.Warn("failed to record verification", "address", result.Address.Hex(), "error", err)
		}
	}
	return outcome
}

func (d *Deployer) failed(failure *VerificationFailure) *VerificationOutcome {
	return &VerificationOutcome{
		Status:  VerificationFailed,
		Message: failure.Error(),
		Failure: failure,
	}
}

func (d *Deployer) fail(failure *DeploymentFailure) error {
	metrics.Deployment(d.opts.Network, string(failure.Reason))
	return failure
}

func ensure0x(s string) string {
	if strings.HasPrefix(s, "0x") || strings.HasPrefix(s, "0X") {
		return s
	}
	return "0x" + s
}
