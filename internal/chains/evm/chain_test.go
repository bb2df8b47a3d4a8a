package evm

import (
	"context"
	"crypto/ecdsa"
	"errors"
	"math/big"
	"sync"
	"testing"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/ethereum/go-ethereum/ethclient/simulated"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// initCode deploys a contract whose runtime code is the single byte 0x00
const initCode = "0x6001600c60003960016000f300"

// revertCode reverts from the constructor
const revertCode = "0x60006000fd"

func newSimulated(t *testing.T) (*simulated.Backend, *ecdsa.PrivateKey) {
	t.Helper()
	key, err := crypto.GenerateKey()
	require.NoError(t, err)

	funds := new(big.Int).Mul(big.NewInt(100), big.NewInt(1e18))
	sim := simulated.NewBackend(types.GenesisAlloc{
		crypto.PubkeyToAddress(key.PublicKey): {Balance: funds},
	})
	t.Cleanup(func() { _ = sim.Close() })
	return sim, key
}

func newSimulatedClient(t *testing.T) (*Client, *simulated.Backend) {
	t.Helper()
	sim, key := newSimulated(t)
	ctx := context.Background()

	chainID, err := sim.Client().ChainID(ctx)
	require.NoError(t, err)

	client, err := NewClient(ctx, sim.Client(), NewKeySigner(key, chainID), nil)
	require.NoError(t, err)
	return client, sim
}

func TestNewClient_ChainIDMismatch(t *testing.T) {
	sim, key := newSimulated(t)

	_, err := NewClient(context.Background(), sim.Client(), NewKeySigner(key, big.NewInt(999999)), nil)
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrChainIDMismatch))
}

func TestClient_DeployAndConfirm(t *testing.T) {
	client, sim := newSimulatedClient(t)
	ctx := context.Background()

	tx, err := client.SubmitDeployment(ctx, DeployTx{Data: hexutil.MustDecode(initCode)})
	require.NoError(t, err)
	assert.Equal(t, uint64(0), tx.Nonce())
	sim.Commit()

	receipt, err := client.WaitConfirmed(ctx, tx)
	require.NoError(t, err)
	assert.Equal(t, ContractAddress(client.Sender(), 0), receipt.ContractAddress)

	code, err := client.CodeAt(ctx, receipt.ContractAddress)
	require.NoError(t, err)
	assert.Equal(t, []byte{0x00}, code)
}

func TestClient_GasPriceOverride(t *testing.T) {
	client, sim := newSimulatedClient(t)
	ctx := context.Background()

	price := big.NewInt(30_000_000_000)
	tx, err := client.SubmitDeployment(ctx, DeployTx{
		Data:     hexutil.MustDecode(initCode),
		GasPrice: price,
		GasLimit: 100_000,
	})
	require.NoError(t, err)
	assert.Equal(t, price, tx.GasPrice())
	assert.Equal(t, uint64(100_000), tx.Gas())

	sim.Commit()
	_, err = client.WaitConfirmed(ctx, tx)
	require.NoError(t, err)
}

func TestClient_ConcurrentNonces(t *testing.T) {
	client, sim := newSimulatedClient(t)
	ctx := context.Background()

	const n = 4
	txs := make([]*types.Transaction, n)
	var wg sync.WaitGroup
	for i := range n {
		wg.Add(1)
		go func() {
			defer wg.Done()
			tx, err := client.SubmitDeployment(ctx, DeployTx{Data: hexutil.MustDecode(initCode)})
			assert.NoError(t, err)
			txs[i] = tx
		}()
	}
	wg.Wait()
	sim.Commit()

	seen := make(map[uint64]bool)
	addresses := make(map[common.Address]bool)
	for _, tx := range txs {
		require.NotNil(t, tx)
		assert.False(t, seen[tx.Nonce()], "nonce %d reused", tx.Nonce())
		seen[tx.Nonce()] = true

		receipt, err := client.WaitConfirmed(ctx, tx)
		require.NoError(t, err)
		addresses[receipt.ContractAddress] = true
	}
	assert.Len(t, addresses, n)
}

// droppingBackend loses the next transaction it is given and then rejects
// nonces that do not match the pool, as a node does after an eviction.
type droppingBackend struct {
	Backend
	drop  bool
	sends []uint64
}

func (b *droppingBackend) SendTransaction(ctx context.Context, tx *types.Transaction) error {
	b.sends = append(b.sends, tx.Nonce())
	if b.drop {
		b.drop = false
		return nil
	}
	from, err := types.Sender(types.LatestSignerForChainID(tx.ChainId()), tx)
	if err != nil {
		return err
	}
	pending, err := b.Backend.PendingNonceAt(ctx, from)
	if err != nil {
		return err
	}
	if tx.Nonce() > pending {
		return errors.New("nonce too high")
	}
	return b.Backend.SendTransaction(ctx, tx)
}

func TestClient_NonceResetAfterDroppedTx(t *testing.T) {
	sim, key := newSimulated(t)
	ctx := context.Background()

	chainID, err := sim.Client().ChainID(ctx)
	require.NoError(t, err)

	backend := &droppingBackend{Backend: sim.Client(), drop: true}
	client, err := NewClient(ctx, backend, NewKeySigner(key, chainID), nil)
	require.NoError(t, err)

	lost, err := client.SubmitDeployment(ctx, DeployTx{Data: hexutil.MustDecode(initCode)})
	require.NoError(t, err)
	assert.Equal(t, uint64(0), lost.Nonce())

	tx, err := client.SubmitDeployment(ctx, DeployTx{Data: hexutil.MustDecode(initCode)})
	require.NoError(t, err)
	assert.Equal(t, uint64(0), tx.Nonce(), "falls back to the pending nonce")
	assert.Equal(t, []uint64{0, 1, 0}, backend.sends)
	sim.Commit()

	receipt, err := client.WaitConfirmed(ctx, tx)
	require.NoError(t, err)
	assert.Equal(t, ContractAddress(client.Sender(), 0), receipt.ContractAddress)

	next, err := client.SubmitDeployment(ctx, DeployTx{Data: hexutil.MustDecode(initCode)})
	require.NoError(t, err)
	assert.Equal(t, uint64(1), next.Nonce())
}

func TestClient_Reverted(t *testing.T) {
	client, sim := newSimulatedClient(t)
	ctx := context.Background()

	t.Run("estimation fails", func(t *testing.T) {
		_, err := client.SubmitDeployment(ctx, DeployTx{Data: hexutil.MustDecode(revertCode)})
		require.Error(t, err)
		assert.Contains(t, err.Error(), "estimate gas")
	})

	t.Run("mined with failure status", func(t *testing.T) {
		tx, err := client.SubmitDeployment(ctx, DeployTx{
			Data:     hexutil.MustDecode(revertCode),
			GasLimit: 100_000,
		})
		require.NoError(t, err)
		sim.Commit()

		receipt, err := client.WaitConfirmed(ctx, tx)
		require.Error(t, err)
		assert.True(t, errors.Is(err, ErrReverted))
		require.NotNil(t, receipt)
		assert.Equal(t, types.ReceiptStatusFailed, receipt.Status)
	})
}

func TestClient_WaitConfirmedTimeout(t *testing.T) {
	client, _ := newSimulatedClient(t)

	tx, err := client.SubmitDeployment(context.Background(), DeployTx{Data: hexutil.MustDecode(initCode)})
	require.NoError(t, err)

	// never committed
	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()

	_, err = client.WaitConfirmed(ctx, tx)
	require.Error(t, err)
	assert.True(t, errors.Is(err, context.DeadlineExceeded))
}

func TestReadOnlyClient(t *testing.T) {
	writer, sim := newSimulatedClient(t)
	ctx := context.Background()

	_, err := NewReadOnlyClient(ctx, sim.Client(), 42, nil)
	assert.True(t, errors.Is(err, ErrChainIDMismatch))

	reader, err := NewReadOnlyClient(ctx, sim.Client(), writer.ChainID().Int64(), nil)
	require.NoError(t, err)
	assert.Equal(t, common.Address{}, reader.Sender())

	_, err = reader.SubmitDeployment(ctx, DeployTx{Data: hexutil.MustDecode(initCode)})
	assert.True(t, errors.Is(err, ErrReadOnly))

	tx, err := writer.SubmitDeployment(ctx, DeployTx{Data: hexutil.MustDecode(initCode)})
	require.NoError(t, err)
	sim.Commit()
	receipt, err := writer.WaitConfirmed(ctx, tx)
	require.NoError(t, err)

	code, err := reader.CodeAt(ctx, receipt.ContractAddress)
	require.NoError(t, err)
	assert.Equal(t, []byte{0x00}, code)
}

func TestLocalSigner(t *testing.T) {
	// well-known development key
	const key = "0xac0974bec39a17e36ba4a6b4d238ff944bacb478cbed5efcae784d7bf4f2ff80"

	signer, err := NewLocalSigner(key, big.NewInt(31337))
	require.NoError(t, err)
	assert.Equal(t, common.HexToAddress("0xf39Fd6e51aad88F6F4ce6aB8827279cffFb92266"), signer.Address())
	assert.Equal(t, int64(31337), signer.ChainID().Int64())

	tx := types.NewContractCreation(0, big.NewInt(0), 100_000, big.NewInt(1), hexutil.MustDecode(initCode))
	signed, err := signer.SignTransaction(context.Background(), tx)
	require.NoError(t, err)

	from, err := types.Sender(types.LatestSignerForChainID(big.NewInt(31337)), signed)
	require.NoError(t, err)
	assert.Equal(t, signer.Address(), from)

	_, err = NewLocalSigner("not-a-key", big.NewInt(1))
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrInvalidKey))
}
