package cli

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"strings"

	"golang.org/x/term"

	"github.com/pendergraft/contradeploy/internal/chains/evm"
	"github.com/pendergraft/contradeploy/internal/config"
	"github.com/pendergraft/contradeploy/internal/deployer"
	"github.com/pendergraft/contradeploy/internal/history"
	"github.com/pendergraft/contradeploy/internal/storage"
	"github.com/pendergraft/contradeploy/internal/verification"
	"github.com/pendergraft/contradeploy/pkg/client"
)

// dialChain connects to a network. An empty key yields a read-only client.
// Tests replace it to run against a simulated chain.
var dialChain = func(ctx context.Context, net *config.NetworkConfig, hexKey string, logger *slog.Logger) (*evm.Client, error) {
	if hexKey == "" {
		return evm.DialReadOnly(ctx, net.RPC, net.ChainID, logger)
	}
	return evm.Dial(ctx, net.RPC, hexKey, net.ChainID, logger)
}

// newVerifier builds the verification service configured for a network
func newVerifier(net *config.NetworkConfig, chain verification.CodeReader, logger *slog.Logger) (deployer.Verifier, error) {
	switch provider := net.Provider(); provider {
	case config.ProviderEtherscan:
		opts := []verification.EtherscanOption{verification.WithLogger(logger)}
		if net.Verify.RequestsPerS > 0 {
			opts = append(opts, verification.WithRateLimit(net.Verify.RequestsPerS))
		}
		return verification.NewEtherscan(net.Verify.URL, net.APIKey(), opts...), nil
	case config.ProviderBytecode:
		return verification.NewBytecode(chain), nil
	case config.ProviderNone:
		return verification.Noop{}, nil
	default:
		return nil, fmt.Errorf("unknown verification provider: %s", provider)
	}
}

// openHistory opens and migrates the history store
func openHistory(ctx context.Context, cfg config.StorageConfig) (history.Service, func(), error) {
	store, err := storage.New(cfg, logger)
	if err != nil {
		return nil, nil, fmt.Errorf("initializing storage: %w", err)
	}
	if err := store.Migrate(ctx); err != nil {
		store.Close()
		return nil, nil, fmt.Errorf("running migrations: %w", err)
	}
	svc := history.LoggingMiddleware(logger)(history.NewService(store))
	return svc, func() { store.Close() }, nil
}

// recorders wires the local history and, when configured, the registry
func recorders(ctx context.Context, ws *workspace, withHistory bool) ([]deployer.Recorder, func(), error) {
	var recs []deployer.Recorder
	closeFn := func() {}

	if withHistory {
		svc, closeStore, err := openHistory(ctx, ws.storage())
		if err != nil {
			return nil, nil, err
		}
		recs = append(recs, svc)
		closeFn = closeStore
	}

	if reg := ws.registry(); reg.Enabled() {
		c := client.New(reg.URL, reg.APIKey())
		recs = append(recs, history.NewRegistry(c, reg.Package, reg.Version))
	}

	return recs, closeFn, nil
}

// readPrivateKey returns the deployer key from DEPLOYER_PRIVATE_KEY, or
// prompts for it without echo when in is a terminal
func readPrivateKey(in *os.File, out io.Writer) (string, error) {
	if key := strings.TrimSpace(os.Getenv("DEPLOYER_PRIVATE_KEY")); key != "" {
		return key, nil
	}

	fmt.Fprint(out, "Enter deployer private key: ")

	fd := int(in.Fd())
	if term.IsTerminal(fd) {
		byteKey, err := term.ReadPassword(fd)
		fmt.Fprintln(out)
		if err != nil {
			return "", fmt.Errorf("failed to read private key: %w", err)
		}
		return strings.TrimSpace(string(byteKey)), nil
	}

	// Non-terminal, read a line
	reader := bufio.NewReader(in)
	key, err := reader.ReadString('\n')
	if err != nil && err != io.EOF {
		return "", fmt.Errorf("failed to read private key: %w", err)
	}
	key = strings.TrimSpace(key)
	if key == "" {
		return "", fmt.Errorf("private key cannot be empty (set DEPLOYER_PRIVATE_KEY)")
	}
	return key, nil
}
