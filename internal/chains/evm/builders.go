package evm

import (
	"github.com/pendergraft/contradeploy/internal/chains"
	"github.com/pendergraft/contradeploy/internal/chains/evm/foundry"
	"github.com/pendergraft/contradeploy/internal/chains/evm/hardhat"
)

// Builders returns the supported EVM toolchains in detection order
func Builders() []chains.Builder {
	return []chains.Builder{
		foundry.New(),
		hardhat.New(),
	}
}
