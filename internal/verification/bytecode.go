package verification

import (
	"context"
	"fmt"

	"github.com/ethereum/go-ethereum/common"

	"github.com/pendergraft/contradeploy/internal/chains/evm"
)

// CodeReader fetches runtime code from the chain
type CodeReader interface {
	CodeAt(ctx context.Context, address common.Address) ([]byte, error)
}

// Bytecode verifies a deployment by comparing the on-chain runtime code with
// the artifact's deployed bytecode. It needs no explorer and works on local
// and private networks.
type Bytecode struct {
	chain CodeReader
}

// NewBytecode creates a bytecode verifier reading code through chain
func NewBytecode(chain CodeReader) *Bytecode {
	return &Bytecode{chain: chain}
}

// Name returns the service identifier
func (b *Bytecode) Name() string {
	return "bytecode"
}

// Verify compares on-chain code with the artifact. Metadata-only differences
// count as a partial match.
func (b *Bytecode) Verify(ctx context.Context, req Request) (*Result, error) {
	if req.DeployedBytecode == "" || req.DeployedBytecode == "0x" {
		return nil, fmt.Errorf("%w: artifact has no deployed bytecode", ErrRejected)
	}

	code, err := b.chain.CodeAt(ctx, req.Address)
	if err != nil {
		if ctx.Err() != nil {
			return nil, fmt.Errorf("%w: %v", ErrTimeout, ctx.Err())
		}
		return nil, fmt.Errorf("%w: %v", ErrUnavailable, err)
	}

	match := evm.CompareBytecode(code, req.DeployedBytecode)
	if !match.Match {
		return nil, fmt.Errorf("%w: %s", ErrRejected, match.Message)
	}

	return &Result{
		Status:    StatusVerified,
		Message:   match.Message,
		MatchType: match.MatchType,
	}, nil
}
