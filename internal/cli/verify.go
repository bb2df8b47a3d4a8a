package cli

import (
	"encoding/hex"
	"errors"
	"fmt"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/spf13/cobra"

	"github.com/pendergraft/contradeploy/internal/deployer"
	"github.com/pendergraft/contradeploy/internal/history"
	"github.com/pendergraft/contradeploy/internal/validation"
)

type verifyOptions struct {
	network    string
	address    string
	timeout    time.Duration
	noHistory  bool
	jsonOutput bool
}

func createVerifyCmd() *cobra.Command {
	var opts verifyOptions

	cmd := &cobra.Command{
		Use:   "verify <contract> [args...]",
		Short: "Verify an existing deployment",
		Long: `Request source verification for a contract that is already deployed.

Constructor arguments are taken from the command line, or from the local
history when the deployment was made with contradeploy. No key is needed.

EXAMPLES:
  # Verify using the arguments recorded at deploy time
  contradeploy verify Token --address 0x5FbDB2315678afecb367f032d93F642f64180aa3 --network sepolia

  # Verify with explicit constructor arguments
  contradeploy verify Token "My Token" MTK 1000000 --address 0x5FbD... --network sepolia
`,
		Args: cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runVerify(cmd, opts, args)
		},
	}

	cmd.Flags().StringVarP(&opts.network, "network", "n", "", "network from contradeploy.toml")
	cmd.Flags().StringVar(&opts.address, "address", "", "contract address (required)")
	cmd.Flags().DurationVar(&opts.timeout, "timeout", 0, "verification timeout (default: network setting)")
	cmd.Flags().BoolVar(&opts.noHistory, "no-history", false, "do not read or update the local history")
	cmd.Flags().BoolVar(&opts.jsonOutput, "json", false, "output as JSON")
	_ = cmd.MarkFlagRequired("address")

	return cmd
}

func runVerify(cmd *cobra.Command, opts verifyOptions, args []string) error {
	ctx := cmd.Context()

	if err := validation.ValidateAddress(opts.address); err != nil {
		return err
	}

	ws, err := loadWorkspace()
	if err != nil {
		return err
	}
	networkName, net, err := ws.network(opts.network)
	if err != nil {
		return err
	}
	artifacts, err := ws.artifacts()
	if err != nil {
		return err
	}

	chain, err := dialChain(ctx, net, "", logger)
	if err != nil {
		return fmt.Errorf("connecting to %s: %w", networkName, err)
	}
	defer chain.Close()

	verifier, err := newVerifier(net, chain, logger)
	if err != nil {
		return err
	}

	result := &deployer.DeploymentResult{
		Contract: args[0],
		Network:  networkName,
		Address:  common.HexToAddress(opts.address),
		Status:   deployer.StatusConfirmed,
		ChainID:  chain.ChainID(),
	}

	var ctorArgs []any
	if len(args) > 1 {
		ctorArgs = make([]any, 0, len(args)-1)
		for _, a := range args[1:] {
			ctorArgs = append(ctorArgs, a)
		}
	}

	var recs []deployer.Recorder
	if !opts.noHistory {
		svc, closeStore, err := openHistory(ctx, ws.storage())
		if err != nil {
			return err
		}
		defer closeStore()

		recorded, err := svc.Get(ctx, result.ChainID.String(), result.Address.Hex())
		switch {
		case err == nil:
			if ctorArgs == nil {
				if result.ConstructorArgs, err = hex.DecodeString(recorded.ConstructorArgs); err != nil {
					return fmt.Errorf("recorded constructor args for %s: %w", result.Address.Hex(), err)
				}
			}
			if validation.ValidateTxHash(recorded.TxHash) == nil {
				result.TxHash = common.HexToHash(recorded.TxHash)
			}
			if validation.ValidateAddress(recorded.DeployerAddress) == nil {
				result.Deployer = common.HexToAddress(recorded.DeployerAddress)
			}
			recs = append(recs, svc)
		case errors.Is(err, history.ErrNotFound):
			logger.Debug("deployment not in history", "address", result.Address.Hex())
		default:
			return err
		}
	}

	timeout := net.VerificationTimeout.Duration
	if opts.timeout > 0 {
		timeout = opts.timeout
	}
	d := deployer.New(artifacts, chain, verifier, deployer.Options{
		Network:             networkName,
		VerificationTimeout: timeout,
		Recorders:           recs,
		Logger:              logger,
	})
	svc := deployer.LoggingMiddleware(logger)(d)

	outcome, err := svc.Verify(ctx, result, ctorArgs)
	if outcome != nil {
		report := newVerificationReport(outcome)
		if opts.jsonOutput {
			if jsonErr := printJSON(cmd.OutOrStdout(), report); jsonErr != nil {
				return jsonErr
			}
		} else {
			fmt.Fprintf(cmd.OutOrStdout(), "%s at %s\n", result.Contract, result.Address.Hex())
			printVerification(cmd.OutOrStdout(), report)
		}
	}
	return err
}
