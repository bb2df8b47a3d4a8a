package evm

import (
	"context"
	"crypto/ecdsa"
	"errors"
	"fmt"
	"math/big"
	"strings"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/crypto"
)

// ErrInvalidKey is returned when a deployer private key cannot be parsed
var ErrInvalidKey = errors.New("invalid private key")

// TransactionSigner signs transactions on behalf of the deployer account
type TransactionSigner interface {
	Address() common.Address
	ChainID() *big.Int
	SignTransaction(ctx context.Context, tx *types.Transaction) (*types.Transaction, error)
}

// LocalSigner signs with an in-memory secp256k1 key
type LocalSigner struct {
	privateKey *ecdsa.PrivateKey
	address    common.Address
	chainID    *big.Int
}

// NewLocalSigner creates a signer from a hex-encoded private key.
// A leading "0x" is accepted.
func NewLocalSigner(hexKey string, chainID *big.Int) (*LocalSigner, error) {
	hexKey = strings.TrimPrefix(strings.TrimSpace(hexKey), "0x")
	privateKey, err := crypto.HexToECDSA(hexKey)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidKey, err)
	}
	return NewKeySigner(privateKey, chainID), nil
}

// NewKeySigner wraps an already parsed key
func NewKeySigner(privateKey *ecdsa.PrivateKey, chainID *big.Int) *LocalSigner {
	return &LocalSigner{
		privateKey: privateKey,
		address:    crypto.PubkeyToAddress(privateKey.PublicKey),
		chainID:    new(big.Int).Set(chainID),
	}
}

// Address returns the signer's account address
func (s *LocalSigner) Address() common.Address {
	return s.address
}

// ChainID returns the chain the signer produces signatures for
func (s *LocalSigner) ChainID() *big.Int {
	return new(big.Int).Set(s.chainID)
}

// SignTransaction signs tx with the local key
func (s *LocalSigner) SignTransaction(_ context.Context, tx *types.Transaction) (*types.Transaction, error) {
	signedTx, err := types.SignTx(tx, types.LatestSignerForChainID(s.chainID), s.privateKey)
	if err != nil {
		return nil, fmt.Errorf("sign transaction: %w", err)
	}
	return signedTx, nil
}

var _ TransactionSigner = (*LocalSigner)(nil)
