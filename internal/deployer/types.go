// Package deployer deploys compiled contracts and requests their source
// verification.
package deployer

import (
	"math/big"
	"time"

	"github.com/ethereum/go-ethereum/common"
)

// Status is the lifecycle state of a deployment
type Status string

const (
	StatusPending   Status = "pending"
	StatusConfirmed Status = "confirmed"
)

// Overrides adjust the deployment transaction
type Overrides struct {
	// GasPrice is the most the deployer will pay per unit of gas
	GasPrice *big.Int
	// GasLimit skips estimation when non-zero
	GasLimit uint64
	// Value is sent to a payable constructor
	Value *big.Int
}

// DeploymentRequest asks for one contract to be deployed
type DeploymentRequest struct {
	// Contract is "Name" or "path/File.sol:Name"
	Contract string
	// Args are constructor arguments in declaration order. Strings are parsed
	// according to the constructor ABI.
	Args      []any
	Overrides Overrides
}

func (r DeploymentRequest) clone() DeploymentRequest {
	out := DeploymentRequest{
		Contract: r.Contract,
		Args:     append([]any(nil), r.Args...),
		Overrides: Overrides{
			GasLimit: r.Overrides.GasLimit,
		},
	}
	if r.Overrides.GasPrice != nil {
		out.Overrides.GasPrice = new(big.Int).Set(r.Overrides.GasPrice)
	}
	if r.Overrides.Value != nil {
		out.Overrides.Value = new(big.Int).Set(r.Overrides.Value)
	}
	return out
}

// DeploymentResult describes a confirmed deployment
type DeploymentResult struct {
	Contract        string // qualified "path:Name"
	Network         string
	Address         common.Address
	TxHash          common.Hash
	Status          Status
	ChainID         *big.Int
	Deployer        common.Address
	BlockNumber     uint64
	GasUsed         uint64
	ConstructorArgs []byte // ABI-encoded
	ConfirmedAt     time.Time
}

// Confirmed reports whether the deployment transaction was mined successfully
func (r *DeploymentResult) Confirmed() bool {
	return r != nil && r.Status == StatusConfirmed
}

// VerificationStatus is the outcome of a verification attempt
type VerificationStatus string

const (
	VerificationVerified        VerificationStatus = "verified"
	VerificationAlreadyVerified VerificationStatus = "already-verified"
	VerificationFailed          VerificationStatus = "failed"
	VerificationSkipped         VerificationStatus = "skipped"
)

// VerificationOutcome reports what happened when verification was requested
type VerificationOutcome struct {
	Status   VerificationStatus
	Provider string
	Message  string
	GUID     string
	Failure  *VerificationFailure
}

// Succeeded reports whether the contract source is verified
func (o *VerificationOutcome) Succeeded() bool {
	return o != nil && (o.Status == VerificationVerified || o.Status == VerificationAlreadyVerified)
}
