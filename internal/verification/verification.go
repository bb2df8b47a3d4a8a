// Package verification submits deployed contracts to source verification
// services and checks on-chain code against build artifacts.
package verification

import (
	"context"
	"encoding/json"
	"errors"
	"math/big"

	"github.com/ethereum/go-ethereum/common"
)

// Verification errors. Services wrap one of these so callers can classify failures.
var (
	ErrUnavailable   = errors.New("verification service unavailable")
	ErrRejected      = errors.New("verification rejected")
	ErrTimeout       = errors.New("verification timed out")
	ErrNotConfigured = errors.New("verification not configured")
)

// Status is the terminal state of a successful verification
type Status string

const (
	StatusVerified        Status = "verified"
	StatusAlreadyVerified Status = "already-verified"
)

// Request is everything a service may need to verify one deployment.
// It is only built from a confirmed deployment.
type Request struct {
	Address         common.Address
	ChainID         *big.Int
	Contract        string // "path:Name"
	ConstructorArgs []byte // ABI-encoded, without selector

	CompilerVersion   string
	StandardJSONInput json.RawMessage
	DeployedBytecode  string
	License           string
}

// Result describes a successful verification
type Result struct {
	Status    Status
	Message   string
	GUID      string // explorer receipt, if any
	MatchType string // bytecode comparison only
}

// Service verifies a deployed contract
type Service interface {
	Name() string
	Verify(ctx context.Context, req Request) (*Result, error)
}
