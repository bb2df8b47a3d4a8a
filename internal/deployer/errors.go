package deployer

import (
	"context"
	"errors"
	"fmt"

	"github.com/ethereum/go-ethereum/common"

	"github.com/pendergraft/contradeploy/internal/chains"
	"github.com/pendergraft/contradeploy/internal/chains/evm"
	"github.com/pendergraft/contradeploy/internal/verification"
)

// ErrNotConfirmed is returned when verification is requested for a
// deployment that has not been confirmed.
var ErrNotConfirmed = errors.New("deployment not confirmed")

// ArtifactNotFoundError is returned when a contract identifier does not
// resolve to a deployable artifact. Nothing is sent to the network.
type ArtifactNotFoundError struct {
	Contract string
	Err      error
}

func (e *ArtifactNotFoundError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("artifact not found for %s: %v", e.Contract, e.Err)
	}
	return fmt.Sprintf("artifact not found for %s", e.Contract)
}

func (e *ArtifactNotFoundError) Unwrap() error {
	return e.Err
}

// Is matches chains.ErrArtifactNotFound
func (e *ArtifactNotFoundError) Is(target error) bool {
	return target == chains.ErrArtifactNotFound
}

// FailureReason classifies deployment and verification failures
type FailureReason string

// Deployment failure reasons. ReasonInvalidArguments also marks a Verify
// call whose explicit arguments do not match the constructor.
const (
	ReasonInvalidArguments FailureReason = "invalid-arguments"
	ReasonRejected         FailureReason = "rejected"
	ReasonReverted         FailureReason = "reverted"
	ReasonTimeout          FailureReason = "timeout"
	ReasonCanceled         FailureReason = "canceled"
	ReasonUnconfirmed      FailureReason = "unconfirmed"
)

// Verification failure reasons
const (
	ReasonServiceUnavailable FailureReason = "service-unavailable"
	ReasonNotConfigured      FailureReason = "not-configured"
)

// DeploymentFailure is returned when a deployment is rejected, reverts or is
// not confirmed in time. TxHash is set once the transaction was broadcast.
type DeploymentFailure struct {
	Reason   FailureReason
	Contract string
	TxHash   common.Hash
	Err      error
}

func (e *DeploymentFailure) Error() string {
	msg := fmt.Sprintf("deployment of %s failed (%s)", e.Contract, e.Reason)
	if e.TxHash != (common.Hash{}) {
		msg += " tx " + e.TxHash.Hex()
	}
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	return msg
}

func (e *DeploymentFailure) Unwrap() error {
	return e.Err
}

// VerificationFailure is returned when the verification service could not
// verify a confirmed deployment. The deployment itself stands.
type VerificationFailure struct {
	Reason  FailureReason
	Address common.Address
	Err     error
}

func (e *VerificationFailure) Error() string {
	msg := fmt.Sprintf("verification of %s failed (%s)", e.Address.Hex(), e.Reason)
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	return msg
}

func (e *VerificationFailure) Unwrap() error {
	return e.Err
}

// contextReason maps a context error to a failure reason
func contextReason(err error) (FailureReason, bool) {
	switch {
	case errors.Is(err, context.DeadlineExceeded):
		return ReasonTimeout, true
	case errors.Is(err, context.Canceled):
		return ReasonCanceled, true
	}
	return "", false
}

func submitReason(err error) FailureReason {
	if reason, ok := contextReason(err); ok {
		return reason
	}
	return ReasonRejected
}

func confirmReason(err error) FailureReason {
	if errors.Is(err, evm.ErrReverted) {
		return ReasonReverted
	}
	if reason, ok := contextReason(err); ok {
		return reason
	}
	return ReasonUnconfirmed
}

func verifyReason(err error) FailureReason {
	switch {
	case errors.Is(err, verification.ErrNotConfigured):
		return ReasonNotConfigured
	case errors.Is(err, verification.ErrTimeout), errors.Is(err, context.DeadlineExceeded), errors.Is(err, context.Canceled):
		return ReasonTimeout
	case errors.Is(err, verification.ErrRejected):
		return ReasonRejected
	default:
		return ReasonServiceUnavailable
	}
}
