package cli

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strconv"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/pendergraft/contradeploy/internal/config"
	"github.com/pendergraft/contradeploy/internal/history"
	"github.com/pendergraft/contradeploy/internal/server"
	"github.com/pendergraft/contradeploy/pkg/client"
)

// historyReader is the read side of the history, local or remote
type historyReader interface {
	Get(ctx context.Context, chainID, address string) (*history.Deployment, error)
	List(ctx context.Context, filter history.ListFilter, pagination history.PaginationParams) (*history.ListResult, error)
}

// remoteHistory reads a history server through the API client
type remoteHistory struct {
	client *client.Client
}

func (r *remoteHistory) Get(ctx context.Context, chainID, address string) (*history.Deployment, error) {
	d, err := r.client.GetDeployment(ctx, chainID, address)
	if err != nil {
		if client.IsNotFound(err) {
			return nil, history.ErrNotFound
		}
		return nil, err
	}
	out := fromClientDeployment(*d)
	return &out, nil
}

func (r *remoteHistory) List(ctx context.Context, filter history.ListFilter, pagination history.PaginationParams) (*history.ListResult, error) {
	resp, err := r.client.ListDeployments(ctx, client.ListOptions{
		Network:  filter.Network,
		ChainID:  filter.ChainID,
		Contract: filter.Contract,
		Verified: filter.Verified,
		Limit:    pagination.Limit,
		Cursor:   pagination.Cursor,
	})
	if err != nil {
		return nil, err
	}

	result := &history.ListResult{
		HasMore:    resp.Pagination.HasMore,
		NextCursor: resp.Pagination.NextCursor,
	}
	for _, d := range resp.Data {
		result.Deployments = append(result.Deployments, fromClientDeployment(d))
	}
	return result, nil
}

func fromClientDeployment(d client.Deployment) history.Deployment {
	out := history.Deployment{
		ID:              d.ID,
		Network:         d.Network,
		ChainID:         d.ChainID,
		Contract:        d.Contract,
		Address:         d.Address,
		DeployerAddress: d.DeployerAddress,
		TxHash:          d.TxHash,
		BlockNumber:     d.BlockNumber,
		GasUsed:         d.GasUsed,
		ConstructorArgs: d.ConstructorArgs,
		CreatedAt:       d.CreatedAt,
	}
	if d.Verification != nil {
		out.Verification = &history.Verification{
			Status:     d.Verification.Status,
			Provider:   d.Verification.Provider,
			Message:    d.Verification.Message,
			VerifiedAt: d.Verification.VerifiedAt,
		}
	}
	return out
}

// openReader returns the remote history when serverURL is set, otherwise
// the local store
func openReader(ctx context.Context, serverURL string) (historyReader, func(), error) {
	if serverURL != "" {
		return &remoteHistory{client: client.New(serverURL, "")}, func() {}, nil
	}
	ws, err := loadWorkspaceOptional()
	if err != nil {
		return nil, nil, err
	}
	return openHistory(ctx, ws.storage())
}

func createHistoryCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "history",
		Short: "Inspect and serve recorded deployments",
	}

	cmd.AddCommand(createHistoryListCmd())
	cmd.AddCommand(createHistoryInfoCmd())
	cmd.AddCommand(createHistoryServeCmd())

	return cmd
}

type historyListOptions struct {
	serverURL  string
	network    string
	chainID    string
	contract   string
	verified   string
	limit      int
	cursor     string
	jsonOutput bool
}

func createHistoryListCmd() *cobra.Command {
	var opts historyListOptions

	cmd := &cobra.Command{
		Use:   "list",
		Short: "List recorded deployments",
		Long: `List deployments recorded by contradeploy, newest first.

EXAMPLES:
  # List local deployments
  contradeploy history list

  # Only unverified deployments on one network
  contradeploy history list --network sepolia --verified=false

  # Query a shared history server
  contradeploy history list --server https://deployments.example.com --json
`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runHistoryList(cmd, opts)
		},
	}

	cmd.Flags().StringVar(&opts.serverURL, "server", "", "history server URL (default: local history)")
	cmd.Flags().StringVarP(&opts.network, "network", "n", "", "filter by network")
	cmd.Flags().StringVar(&opts.chainID, "chain-id", "", "filter by chain ID")
	cmd.Flags().StringVar(&opts.contract, "contract", "", "filter by contract name")
	cmd.Flags().StringVar(&opts.verified, "verified", "", "filter by verification (true, false)")
	cmd.Flags().IntVar(&opts.limit, "limit", 20, "number of items to show")
	cmd.Flags().StringVar(&opts.cursor, "cursor", "", "continue from a previous listing")
	cmd.Flags().BoolVar(&opts.jsonOutput, "json", false, "output as JSON")

	return cmd
}

func runHistoryList(cmd *cobra.Command, opts historyListOptions) error {
	ctx := cmd.Context()

	filter := history.ListFilter{
		Network:  opts.network,
		ChainID:  opts.chainID,
		Contract: opts.contract,
	}
	if opts.verified != "" {
		v, err := strconv.ParseBool(opts.verified)
		if err != nil {
			return fmt.Errorf("invalid --verified %q: must be true or false", opts.verified)
		}
		filter.Verified = &v
	}
	if opts.limit <= 0 || opts.limit > 100 {
		return fmt.Errorf("invalid --limit %d: must be between 1 and 100", opts.limit)
	}

	reader, closeFn, err := openReader(ctx, opts.serverURL)
	if err != nil {
		return err
	}
	defer closeFn()

	result, err := reader.List(ctx, filter, history.PaginationParams{Limit: opts.limit, Cursor: opts.cursor})
	if err != nil {
		return fmt.Errorf("failed to list deployments: %w", err)
	}

	out := cmd.OutOrStdout()
	if opts.jsonOutput {
		deployments := result.Deployments
		if deployments == nil {
			deployments = []history.Deployment{}
		}
		return printJSON(out, map[string]any{
			"deployments": deployments,
			"count":       len(deployments),
			"hasMore":     result.HasMore,
			"nextCursor":  result.NextCursor,
		})
	}

	if len(result.Deployments) == 0 {
		fmt.Fprintln(out, "No deployments found")
		return nil
	}

	printDeploymentTable(out, result.Deployments)

	if result.HasMore {
		fmt.Fprintf(out, "\n(showing %d deployments, more with --cursor %s)\n", len(result.Deployments), result.NextCursor)
	}
	return nil
}

func printDeploymentTable(w io.Writer, deployments []history.Deployment) {
	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
	fmt.Fprintln(tw, "CONTRACT\tNETWORK\tCHAIN\tADDRESS\tBLOCK\tVERIFIED\tDEPLOYED")
	for _, d := range deployments {
		verified := "no"
		switch {
		case d.Verified():
			verified = "yes"
		case d.Verification != nil:
			verified = d.Verification.Status
		}
		fmt.Fprintf(tw, "%s\t%s\t%s\t%s\t%d\t%s\t%s\n",
			d.Contract, d.Network, d.ChainID, truncateAddress(d.Address), d.BlockNumber, verified,
			d.CreatedAt.Local().Format("2006-01-02 15:04"))
	}
	tw.Flush()
}

func createHistoryInfoCmd() *cobra.Command {
	var serverURL string
	var jsonOutput bool

	cmd := &cobra.Command{
		Use:   "info <chain-id> <address>",
		Short: "Show one recorded deployment",
		Long: `Show a recorded deployment, including its constructor arguments and
latest verification attempt.

EXAMPLES:
  contradeploy history info 11155111 0x5FbDB2315678afecb367f032d93F642f64180aa3
`,
		Args: cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runHistoryInfo(cmd, serverURL, args[0], args[1], jsonOutput)
		},
	}

	cmd.Flags().StringVar(&serverURL, "server", "", "history server URL (default: local history)")
	cmd.Flags().BoolVar(&jsonOutput, "json", false, "output as JSON")

	return cmd
}

func runHistoryInfo(cmd *cobra.Command, serverURL, chainID, address string, jsonOutput bool) error {
	ctx := cmd.Context()

	reader, closeFn, err := openReader(ctx, serverURL)
	if err != nil {
		return err
	}
	defer closeFn()

	d, err := reader.Get(ctx, chainID, address)
	if err != nil {
		if errors.Is(err, history.ErrNotFound) {
			return fmt.Errorf("no deployment recorded at %s on chain %s", address, chainID)
		}
		return err
	}

	out := cmd.OutOrStdout()
	if jsonOutput {
		return printJSON(out, d)
	}

	fmt.Fprintf(out, "%s\n", d.Contract)
	fmt.Fprintf(out, "   Network:   %s (chain %s)\n", d.Network, d.ChainID)
	fmt.Fprintf(out, "   Address:   %s\n", d.Address)
	if d.TxHash != "" {
		fmt.Fprintf(out, "   Tx:        %s\n", d.TxHash)
	}
	if d.DeployerAddress != "" {
		fmt.Fprintf(out, "   Deployer:  %s\n", d.DeployerAddress)
	}
	fmt.Fprintf(out, "   Block:     %d (gas used %d)\n", d.BlockNumber, d.GasUsed)
	if d.ConstructorArgs != "" {
		fmt.Fprintf(out, "   Args:      0x%s\n", d.ConstructorArgs)
	}
	fmt.Fprintf(out, "   Deployed:  %s\n", d.CreatedAt.Local().Format("2006-01-02 15:04:05"))
	if v := d.Verification; v != nil {
		fmt.Fprintf(out, "   Verified:  %s via %s\n", v.Status, v.Provider)
		if v.Message != "" {
			fmt.Fprintf(out, "              %s\n", v.Message)
		}
	} else {
		fmt.Fprintln(out, "   Verified:  not attempted")
	}
	return nil
}

func createHistoryServeCmd() *cobra.Command {
	var host string
	var port int

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Serve the deployment history over HTTP",
		Long: `Start a read-only HTTP API over the deployment history.

Settings come from the environment (PORT, HOST, DATABASE_URL, RATE_LIMIT_*,
TRUST_PROXY, METRICS_ENABLED). The store is resolved like the other commands.

ENDPOINTS:
  GET /health
  GET /metrics
  GET /api/v1/deployments
  GET /api/v1/deployments/{chainId}/{address}
`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runHistoryServe(cmd, host, port)
		},
	}

	cmd.Flags().StringVar(&host, "host", "", "listen host (default: HOST or 0.0.0.0)")
	cmd.Flags().IntVar(&port, "port", 0, "listen port (default: PORT or 8080)")

	return cmd
}

func runHistoryServe(cmd *cobra.Command, host string, port int) error {
	ctx := cmd.Context()

	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}
	ws, err := loadWorkspaceOptional()
	if err != nil {
		return err
	}
	cfg.Storage = ws.storage()
	if host != "" {
		cfg.Server.Host = host
	}
	if port != 0 {
		cfg.Server.Port = port
	}

	svc, closeStore, err := openHistory(ctx, cfg.Storage)
	if err != nil {
		return err
	}
	defer closeStore()

	logger.Info("starting history server", "storage", cfg.Storage.Type)
	return server.New(cfg, svc, logger).Run(ctx)
}
