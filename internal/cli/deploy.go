package cli

import (
	"context"
	"errors"
	"fmt"
	"io"
	"math/big"
	"os"
	"time"

	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/pendergraft/contradeploy/internal/chains"
	"github.com/pendergraft/contradeploy/internal/config"
	"github.com/pendergraft/contradeploy/internal/deployer"
)

type deployOptions struct {
	network       string
	contracts     []string
	gasPriceGwei  float64
	gasLimit      uint64
	value         string
	skipVerify    bool
	timeout       time.Duration
	verifyTimeout time.Duration
	parallel      bool
	noHistory     bool
	jsonOutput    bool
}

func createDeployCmd() *cobra.Command {
	var opts deployOptions

	cmd := &cobra.Command{
		Use:   "deploy [contract [args...]]",
		Short: "Deploy contracts and verify them",
		Long: `Deploy a contract from the project's build output, wait for confirmation
and request source verification.

The contract is a name ("Token") or a qualified name ("src/Token.sol:Token").
Constructor arguments follow the contract and are parsed according to the
constructor ABI. Use --contract repeatedly to deploy several contracts that
take no arguments.

The deployer key is read from DEPLOYER_PRIVATE_KEY or prompted for.

EXAMPLES:
  # Deploy and verify on the default network
  contradeploy deploy Token "My Token" MTK 1000000

  # Deploy to a named network with a fixed gas price
  contradeploy deploy Token "My Token" MTK 1000000 --network sepolia --gas-price-gwei 3

  # Deploy several contracts concurrently
  contradeploy deploy --contract Registry --contract Vault --parallel

  # Deploy without verification, output as JSON
  contradeploy deploy Counter --skip-verify --json
`,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runDeploy(cmd, opts, args)
		},
	}

	cmd.Flags().StringVarP(&opts.network, "network", "n", "", "network from contradeploy.toml")
	cmd.Flags().StringArrayVar(&opts.contracts, "contract", nil, "contract to deploy (repeatable, no constructor args)")
	cmd.Flags().Float64Var(&opts.gasPriceGwei, "gas-price-gwei", 0, "gas price in gwei (default: network setting or node suggestion)")
	cmd.Flags().Uint64Var(&opts.gasLimit, "gas-limit", 0, "gas limit (default: estimated)")
	cmd.Flags().StringVar(&opts.value, "value", "", "wei to send to a payable constructor")
	cmd.Flags().BoolVar(&opts.skipVerify, "skip-verify", false, "do not request verification")
	cmd.Flags().DurationVar(&opts.timeout, "timeout", 0, "confirmation timeout (default: network setting)")
	cmd.Flags().DurationVar(&opts.verifyTimeout, "verify-timeout", 0, "verification timeout (default: network setting)")
	cmd.Flags().BoolVar(&opts.parallel, "parallel", false, "deploy --contract entries concurrently")
	cmd.Flags().BoolVar(&opts.noHistory, "no-history", false, "do not record deployments in the local history")
	cmd.Flags().BoolVar(&opts.jsonOutput, "json", false, "output as JSON")

	return cmd
}

func runDeploy(cmd *cobra.Command, opts deployOptions, args []string) error {
	ctx := cmd.Context()

	ws, err := loadWorkspace()
	if err != nil {
		return err
	}
	networkName, net, err := ws.network(opts.network)
	if err != nil {
		return err
	}

	requests, err := buildRequests(opts, args, net)
	if err != nil {
		return err
	}

	artifacts, err := ws.artifacts()
	if err != nil {
		return err
	}

	key, err := readPrivateKey(os.Stdin, cmd.ErrOrStderr())
	if err != nil {
		return err
	}

	chain, err := dialChain(ctx, net, key, logger)
	if err != nil {
		return fmt.Errorf("connecting to %s: %w", networkName, err)
	}
	defer chain.Close()

	verifier, err := newVerifier(net, chain, logger)
	if err != nil {
		return err
	}

	recs, closeRecs, err := recorders(ctx, ws, !opts.noHistory)
	if err != nil {
		return err
	}
	defer closeRecs()

	svc := deployer.LoggingMiddleware(logger)(deployer.New(artifacts, chain, verifier, deployerOptions(opts, networkName, net, recs)))

	reports, err := deployAll(ctx, svc, requests, opts.parallel)

	out := cmd.OutOrStdout()
	if opts.jsonOutput {
		if jsonErr := printJSON(out, reports); jsonErr != nil {
			return jsonErr
		}
	} else {
		for _, r := range reports {
			printDeployReport(out, r)
		}
	}
	for _, r := range reports {
		if r.outcome != nil && r.outcome.Failure != nil {
			fmt.Fprintf(cmd.ErrOrStderr(), "warning: %s deployed but not verified: %s\n", r.Contract, r.outcome.Failure)
		}
	}

	var notFound *deployer.ArtifactNotFoundError
	if errors.As(err, &notFound) {
		printAvailableContracts(cmd.ErrOrStderr(), artifacts)
	}

	return err
}

// printAvailableContracts lists what the build output can deploy
func printAvailableContracts(w io.Writer, project *chains.Project) {
	names, err := project.Contracts()
	if err != nil || len(names) == 0 {
		return
	}
	fmt.Fprintf(w, "available contracts in %s:\n", project.Builder.DisplayName())
	for _, name := range names {
		fmt.Fprintf(w, "  %s\n", name)
	}
}

// buildRequests turns arguments and flags into deployment requests
func buildRequests(opts deployOptions, args []string, net *config.NetworkConfig) ([]deployer.DeploymentRequest, error) {
	if len(args) > 0 && len(opts.contracts) > 0 {
		return nil, errors.New("pass a contract as an argument or with --contract, not both")
	}
	if len(args) == 0 && len(opts.contracts) == 0 {
		return nil, errors.New("no contract given")
	}
	if opts.parallel && len(opts.contracts) == 0 {
		return nil, errors.New("--parallel requires --contract")
	}

	overrides, err := buildOverrides(opts, net)
	if err != nil {
		return nil, err
	}

	if len(args) > 0 {
		ctorArgs := make([]any, 0, len(args)-1)
		for _, a := range args[1:] {
			ctorArgs = append(ctorArgs, a)
		}
		return []deployer.DeploymentRequest{{Contract: args[0], Args: ctorArgs, Overrides: overrides}}, nil
	}

	requests := make([]deployer.DeploymentRequest, 0, len(opts.contracts))
	for _, c := range opts.contracts {
		requests = append(requests, deployer.DeploymentRequest{Contract: c, Overrides: overrides})
	}
	return requests, nil
}

func buildOverrides(opts deployOptions, net *config.NetworkConfig) (deployer.Overrides, error) {
	overrides := deployer.Overrides{
		GasPrice: net.GasPrice(),
		GasLimit: opts.gasLimit,
	}
	if opts.gasPriceGwei < 0 {
		return overrides, fmt.Errorf("invalid --gas-price-gwei: %v", opts.gasPriceGwei)
	}
	if opts.gasPriceGwei > 0 {
		overrides.GasPrice = config.GweiToWei(opts.gasPriceGwei)
	}
	if opts.value != "" {
		value, ok := new(big.Int).SetString(opts.value, 10)
		if !ok || value.Sign() < 0 {
			return overrides, fmt.Errorf("invalid --value %q: must be a non-negative integer amount of wei", opts.value)
		}
		overrides.Value = value
	}
	return overrides, nil
}

func deployerOptions(opts deployOptions, networkName string, net *config.NetworkConfig, recs []deployer.Recorder) deployer.Options {
	o := deployer.Options{
		Network:             networkName,
		ConfirmationTimeout: net.ConfirmationTimeout.Duration,
		VerificationTimeout: net.VerificationTimeout.Duration,
		SkipVerify:          opts.skipVerify,
		Recorders:           recs,
		Logger:              logger,
	}
	if opts.timeout > 0 {
		o.ConfirmationTimeout = opts.timeout
	}
	if opts.verifyTimeout > 0 {
		o.VerificationTimeout = opts.verifyTimeout
	}
	return o
}

// deployAll runs the requests in order, stopping at the first failure, or
// all at once when parallel is set. Reports come back in request order for
// every deployment that was confirmed.
func deployAll(ctx context.Context, svc deployer.Service, requests []deployer.DeploymentRequest, parallel bool) ([]deployReport, error) {
	if !parallel {
		reports := make([]deployReport, 0, len(requests))
		for _, req := range requests {
			result, outcome, err := svc.DeployAndVerify(ctx, req)
			if err != nil {
				return reports, err
			}
			reports = append(reports, newDeployReport(result, outcome))
		}
		return reports, nil
	}

	var (
		results = make([]*deployReport, len(requests))
		errs    = make([]error, len(requests))
		g       errgroup.Group
	)
	for i, req := range requests {
		g.Go(func() error {
			result, outcome, err := svc.DeployAndVerify(ctx, req)
			if err != nil {
				errs[i] = err
				return err
			}
			report := newDeployReport(result, outcome)
			results[i] = &report
			return nil
		})
	}
	_ = g.Wait()

	reports := make([]deployReport, 0, len(requests))
	for _, r := range results {
		if r != nil {
			reports = append(reports, *r)
		}
	}
	return reports, errors.Join(errs...)
}
