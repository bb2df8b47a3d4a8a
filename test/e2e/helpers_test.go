//go:build e2e

package e2e

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"math/big"
	"net/http/httptest"
	"os"
	"testing"
	"time"

	"github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/ethereum/go-ethereum/ethclient/simulated"
	"github.com/stretchr/testify/require"
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/modules/postgres"
	"github.com/testcontainers/testcontainers-go/wait"

	"github.com/pendergraft/contradeploy/internal/chains"
	"github.com/pendergraft/contradeploy/internal/chains/evm"
	"github.com/pendergraft/contradeploy/internal/config"
	"github.com/pendergraft/contradeploy/internal/deployer"
	"github.com/pendergraft/contradeploy/internal/history"
	"github.com/pendergraft/contradeploy/internal/server"
	"github.com/pendergraft/contradeploy/internal/storage"
	"github.com/pendergraft/contradeploy/internal/verification"
	"github.com/pendergraft/contradeploy/pkg/client"
)

// initCode deploys a contract whose runtime code is the single byte 0x00
const initCode = "0x6001600c60003960016000f300"

// TestContext holds shared test infrastructure
type TestContext struct {
	PostgresContainer *postgres.PostgresContainer
	ConnString        string
	TestServer        *httptest.Server
	Store             storage.Store
	History           history.Service
}

// setupPostgresE starts a Postgres container and returns the connection string
func setupPostgresE(ctx context.Context) (*postgres.PostgresContainer, string, error) {
	postgresContainer, err := postgres.RunContainer(ctx,
		testcontainers.WithImage("postgres:16-alpine"),
		postgres.WithDatabase("contradeploy"),
		postgres.WithUsername("contradeploy"),
		postgres.WithPassword("contradeploy"),
		testcontainers.WithWaitStrategy(
			wait.ForLog("database system is ready to accept connections").
				WithOccurrence(2).
				WithStartupTimeout(30*time.Second)),
	)
	if err != nil {
		return nil, "", fmt.Errorf("failed to start postgres container: %w", err)
	}

	connString, err := postgresContainer.ConnectionString(ctx, "sslmode=disable")
	if err != nil {
		_ = postgresContainer.Terminate(ctx)
		return nil, "", fmt.Errorf("failed to get postgres connection string: %w", err)
	}

	return postgresContainer, connString, nil
}

// startServerE starts the history server in-process against Postgres
func startServerE(connString string) (*httptest.Server, storage.Store, history.Service, error) {
	cfg := &config.Config{
		Server: config.ServerConfig{
			Port:           8080,
			Host:           "0.0.0.0",
			RequestTimeout: 30,
		},
		Storage: config.StorageConfig{
			Type: "postgres",
			Postgres: config.PostgresConfig{
				URL: connString,
			},
		},
		RateLimit: config.RateLimitConfig{Enabled: false},
		Proxy:     config.ProxyConfig{TrustProxy: false},
	}

	logger := slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelDebug}))

	store, err := storage.New(cfg.Storage, logger)
	if err != nil {
		return nil, nil, nil, fmt.Errorf("failed to create store: %w", err)
	}

	if err := store.Migrate(context.Background()); err != nil {
		store.Close()
		return nil, nil, nil, fmt.Errorf("failed to run migrations: %w", err)
	}

	svc := history.NewService(store)
	srv := server.New(cfg, svc, logger)

	return httptest.NewServer(srv.Handler()), store, svc, nil
}

// newClient creates a new API client for the test server
func newClient(testServer *httptest.Server) *client.Client {
	return client.New(testServer.URL, "")
}

// staticArtifacts serves a single contract that deploys runtime code 0x00
type staticArtifacts struct{}

func (staticArtifacts) Artifact(_ context.Context, contract string) (*chains.Artifact, error) {
	if contract != "Counter" && contract != "src/Counter.sol:Counter" {
		return nil, fmt.Errorf("%w: %s", chains.ErrArtifactNotFound, contract)
	}
	return &chains.Artifact{
		Name:             "Counter",
		SourcePath:       "src/Counter.sol",
		ABI:              json.RawMessage(`[{"type":"constructor","inputs":[],"stateMutability":"nonpayable"}]`),
		Bytecode:         initCode,
		DeployedBytecode: "0x00",
	}, nil
}

// simClient hides Close so the deployer cannot shut down the shared backend
type simClient struct {
	simulated.Client
}

// testChain is a funded simulated chain that mines on demand
type testChain struct {
	sim    *simulated.Backend
	client *evm.Client
}

func newTestChain(t *testing.T) *testChain {
	t.Helper()
	key, err := crypto.GenerateKey()
	require.NoError(t, err)

	funds := new(big.Int).Mul(big.NewInt(100), big.NewInt(1e18))
	sim := simulated.NewBackend(types.GenesisAlloc{
		crypto.PubkeyToAddress(key.PublicKey): {Balance: funds},
	})
	t.Cleanup(func() { _ = sim.Close() })

	ctx := context.Background()
	chainID, err := sim.Client().ChainID(ctx)
	require.NoError(t, err)

	c, err := evm.NewClient(ctx, simClient{sim.Client()}, evm.NewKeySigner(key, chainID), nil)
	require.NoError(t, err)

	return &testChain{sim: sim, client: c}
}

// deploy runs a full deploy-and-verify recorded into the shared history,
// committing blocks until the deployment is confirmed
func (c *testChain) deploy(t *testing.T, network string, verifier deployer.Verifier) (*deployer.DeploymentResult, *deployer.VerificationOutcome) {
	t.Helper()
	d := deployer.New(staticArtifacts{}, c.client, verifier, deployer.Options{
		Network:             network,
		ConfirmationTimeout: 30 * time.Second,
		Recorders:           []deployer.Recorder{testCtx.History},
	})

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	defer func() {
		cancel()
		<-done
	}()
	go func() {
		defer close(done)
		ticker := time.NewTicker(100 * time.Millisecond)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				c.sim.Commit()
			}
		}
	}()

	result, outcome, err := d.DeployAndVerify(ctx, deployer.DeploymentRequest{Contract: "Counter"})
	require.NoError(t, err)
	return result, outcome
}

// bytecodeVerifier compares against the chain the deployment went to
func (c *testChain) bytecodeVerifier() deployer.Verifier {
	return verification.NewBytecode(c.client)
}

// assertHTTPError checks that err is an API error with the given code
func assertHTTPError(t *testing.T, err error, expectedCode string) {
	t.Helper()
	require.Error(t, err)
	var apiErr *client.APIError
	require.True(t, errors.As(err, &apiErr), "expected APIError, got %T: %v", err, err)
	require.Equal(t, expectedCode, apiErr.Code)
}
