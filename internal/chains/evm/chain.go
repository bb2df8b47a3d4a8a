// Package evm talks to Ethereum and EVM-compatible chains.
package evm

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math/big"
	"strings"
	"sync"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/accounts/abi/bind"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/ethereum/go-ethereum/ethclient"
)

// Chain client errors
var (
	ErrChainIDMismatch = errors.New("chain ID mismatch")
	ErrReverted        = errors.New("deployment reverted")
	ErrNoContract      = errors.New("receipt has no contract address")
	ErrReadOnly        = errors.New("client has no signer")
)

// gasBufferPercent is added on top of estimated gas
const gasBufferPercent = 20

// Backend is the subset of the JSON-RPC API the client uses.
// *ethclient.Client and the simulated backend client both satisfy it.
type Backend interface {
	ChainID(ctx context.Context) (*big.Int, error)
	PendingNonceAt(ctx context.Context, account common.Address) (uint64, error)
	SuggestGasPrice(ctx context.Context) (*big.Int, error)
	EstimateGas(ctx context.Context, call ethereum.CallMsg) (uint64, error)
	SendTransaction(ctx context.Context, tx *types.Transaction) error
	TransactionReceipt(ctx context.Context, txHash common.Hash) (*types.Receipt, error)
	CodeAt(ctx context.Context, account common.Address, blockNumber *big.Int) ([]byte, error)
}

// DeployTx describes a contract creation transaction
type DeployTx struct {
	// Data is the init code with ABI-encoded constructor arguments appended
	Data []byte
	// GasPrice is used as the legacy gas price when set, otherwise the node's suggestion
	GasPrice *big.Int
	// GasLimit skips estimation when non-zero
	GasLimit uint64
	// Value is sent to a payable constructor
	Value *big.Int
}

// Client submits deployments from a single account on a single chain.
// Submissions are serialized so concurrent deploys get distinct nonces. The
// next nonce is cached because a node's pending count can lag a send; the
// cache is dropped when the node rejects it.
type Client struct {
	backend Backend
	signer  TransactionSigner
	chainID *big.Int
	logger  *slog.Logger

	nonceMu   sync.Mutex
	nextNonce *uint64
}

// NewClient creates a client. The signer's chain ID is checked against the backend.
func NewClient(ctx context.Context, backend Backend, signer TransactionSigner, logger *slog.Logger) (*Client, error) {
	if logger == nil {
		logger = slog.Default()
	}

	chainID, err := backend.ChainID(ctx)
	if err != nil {
		return nil, fmt.Errorf("get chain ID: %w", err)
	}
	if chainID.Cmp(signer.ChainID()) != 0 {
		return nil, fmt.Errorf("%w: node reports %s, expected %s", ErrChainIDMismatch, chainID, signer.ChainID())
	}

	return &Client{
		backend: backend,
		signer:  signer,
		chainID: chainID,
		logger:  logger,
	}, nil
}

// Dial connects to rpcURL and creates a client signing with hexKey.
// When expectedChainID is non-zero the node must report that chain.
func Dial(ctx context.Context, rpcURL string, hexKey string, expectedChainID int64, logger *slog.Logger) (*Client, error) {
	backend, err := ethclient.DialContext(ctx, rpcURL)
	if err != nil {
		return nil, fmt.Errorf("connect to RPC: %w", err)
	}

	chainID := big.NewInt(expectedChainID)
	if expectedChainID == 0 {
		chainID, err = backend.ChainID(ctx)
		if err != nil {
			backend.Close()
			return nil, fmt.Errorf("get chain ID: %w", err)
		}
	}

	signer, err := NewLocalSigner(hexKey, chainID)
	if err != nil {
		backend.Close()
		return nil, err
	}

	client, err := NewClient(ctx, backend, signer, logger)
	if err != nil {
		backend.Close()
		return nil, err
	}
	return client, nil
}

// NewReadOnlyClient creates a client that can read chain state but not
// submit transactions. When expectedChainID is non-zero the backend must
// report that chain.
func NewReadOnlyClient(ctx context.Context, backend Backend, expectedChainID int64, logger *slog.Logger) (*Client, error) {
	if logger == nil {
		logger = slog.Default()
	}

	chainID, err := backend.ChainID(ctx)
	if err != nil {
		return nil, fmt.Errorf("get chain ID: %w", err)
	}
	if expectedChainID != 0 && chainID.Cmp(big.NewInt(expectedChainID)) != 0 {
		return nil, fmt.Errorf("%w: node reports %s, expected %d", ErrChainIDMismatch, chainID, expectedChainID)
	}

	return &Client{backend: backend, chainID: chainID, logger: logger}, nil
}

// DialReadOnly connects to rpcURL without a signer
func DialReadOnly(ctx context.Context, rpcURL string, expectedChainID int64, logger *slog.Logger) (*Client, error) {
	backend, err := ethclient.DialContext(ctx, rpcURL)
	if err != nil {
		return nil, fmt.Errorf("connect to RPC: %w", err)
	}

	client, err := NewReadOnlyClient(ctx, backend, expectedChainID, logger)
	if err != nil {
		backend.Close()
		return nil, err
	}
	return client, nil
}

// Close releases the underlying RPC connection, if the backend holds one
func (c *Client) Close() {
	if closer, ok := c.backend.(interface{ Close() }); ok {
		closer.Close()
	}
}

// ChainID returns the chain the client is connected to
func (c *Client) ChainID() *big.Int {
	return new(big.Int).Set(c.chainID)
}

// Sender returns the deployer account
func (c *Client) Sender() common.Address {
	if c.signer == nil {
		return common.Address{}
	}
	return c.signer.Address()
}

// SubmitDeployment signs and broadcasts a contract creation transaction.
// It returns once the node has accepted the transaction into its pool.
func (c *Client) SubmitDeployment(ctx context.Context, req DeployTx) (*types.Transaction, error) {
	if c.signer == nil {
		return nil, ErrReadOnly
	}

	value := req.Value
	if value == nil {
		value = new(big.Int)
	}

	gasPrice := req.GasPrice
	if gasPrice == nil {
		suggested, err := c.backend.SuggestGasPrice(ctx)
		if err != nil {
			return nil, fmt.Errorf("suggest gas price: %w", err)
		}
		gasPrice = suggested
	}

	gasLimit := req.GasLimit
	if gasLimit == 0 {
		estimated, err := c.backend.EstimateGas(ctx, ethereum.CallMsg{
			From:     c.signer.Address(),
			To:       nil,
			GasPrice: gasPrice,
			Value:    value,
			Data:     req.Data,
		})
		if err != nil {
			return nil, fmt.Errorf("estimate gas: %w", err)
		}
		gasLimit = estimated * (100 + gasBufferPercent) / 100
	}

	c.nonceMu.Lock()
	defer c.nonceMu.Unlock()

	pending, err := c.backend.PendingNonceAt(ctx, c.signer.Address())
	if err != nil {
		return nil, fmt.Errorf("get nonce: %w", err)
	}
	nonce := pending
	if c.nextNonce != nil && *c.nextNonce > nonce {
		nonce = *c.nextNonce
	}

	signedTx, err := c.send(ctx, types.NewContractCreation(nonce, value, gasLimit, gasPrice, req.Data))
	if err != nil && nonce != pending && isNonceError(err) {
		// An earlier transaction was dropped or replaced, so the node's view wins
		c.logger.Warn("cached nonce rejected, retrying with pending nonce",
			slog.Uint64("cached", nonce),
			slog.Uint64("pending", pending),
			slog.String("error", err.Error()),
		)
		c.nextNonce = nil
		nonce = pending
		signedTx, err = c.send(ctx, types.NewContractCreation(nonce, value, gasLimit, gasPrice, req.Data))
	}
	if err != nil {
		return nil, err
	}

	next := nonce + 1
	c.nextNonce = &next

	c.logger.Debug("deployment submitted",
		slog.String("tx_hash", signedTx.Hash().Hex()),
		slog.Uint64("nonce", nonce),
		slog.Uint64("gas_limit", gasLimit),
		slog.String("gas_price", gasPrice.String()),
	)
	return signedTx, nil
}

func (c *Client) send(ctx context.Context, tx *types.Transaction) (*types.Transaction, error) {
	signedTx, err := c.signer.SignTransaction(ctx, tx)
	if err != nil {
		return nil, err
	}
	if err := c.backend.SendTransaction(ctx, signedTx); err != nil {
		return nil, fmt.Errorf("send transaction: %w", err)
	}
	return signedTx, nil
}

// isNonceError matches the node's nonce rejections. They arrive as JSON-RPC
// error text, so core.ErrNonceTooHigh and friends cannot be matched with errors.Is.
func isNonceError(err error) bool {
	msg := strings.ToLower(err.Error())
	return strings.Contains(msg, "nonce too high") ||
		strings.Contains(msg, "nonce too low") ||
		strings.Contains(msg, "replacement transaction underpriced")
}

// WaitConfirmed blocks until tx is mined or ctx is done.
// A mined but failed transaction yields ErrReverted along with its receipt.
func (c *Client) WaitConfirmed(ctx context.Context, tx *types.Transaction) (*types.Receipt, error) {
	receipt, err := bind.WaitMined(ctx, c.backend, tx)
	if err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return nil, ctxErr
		}
		return nil, fmt.Errorf("wait for receipt: %w", err)
	}

	if receipt.Status != types.ReceiptStatusSuccessful {
		return receipt, fmt.Errorf("%w: tx %s", ErrReverted, tx.Hash().Hex())
	}
	if receipt.ContractAddress == (common.Address{}) {
		return receipt, fmt.Errorf("%w: tx %s", ErrNoContract, tx.Hash().Hex())
	}
	return receipt, nil
}

// CodeAt returns the runtime code at address in the latest block
func (c *Client) CodeAt(ctx context.Context, address common.Address) ([]byte, error) {
	code, err := c.backend.CodeAt(ctx, address, nil)
	if err != nil {
		return nil, fmt.Errorf("get code: %w", err)
	}
	return code, nil
}

// ContractAddress is the address a creation transaction from sender at nonce deploys to
func ContractAddress(sender common.Address, nonce uint64) common.Address {
	return crypto.CreateAddress(sender, nonce)
}
