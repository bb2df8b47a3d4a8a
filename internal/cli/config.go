package cli

import (
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/pendergraft/contradeploy/internal/config"
	"github.com/pendergraft/contradeploy/internal/validation"
)

func createConfigCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "config",
		Short: "Configuration commands",
	}

	cmd.AddCommand(createConfigInitCmd())
	cmd.AddCommand(createConfigShowCmd())
	cmd.AddCommand(createConfigUseCmd())

	return cmd
}

type configInitOptions struct {
	network string
	rpc     string
	chainID int64
	builder string
	force   bool
}

func createConfigInitCmd() *cobra.Command {
	var opts configInitOptions

	cmd := &cobra.Command{
		Use:   "init",
		Short: "Create config file",
		Long: `Create a contradeploy.toml configuration file in the current directory.

The file names the build system and the networks contracts are deployed to.

EXAMPLES:
  # Create config for a local Anvil node
  contradeploy config init

  # Create config for a testnet
  contradeploy config init --network sepolia --rpc https://rpc.sepolia.org --chain-id 11155111

  # Overwrite existing config
  contradeploy config init --force
`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			path := cfgFile
			if path == "" {
				path = config.ProjectConfigFile
			}
			return runConfigInit(cmd.OutOrStdout(), path, opts)
		},
	}

	cmd.Flags().StringVar(&opts.network, "network", "local", "network name")
	cmd.Flags().StringVar(&opts.rpc, "rpc", "http://127.0.0.1:8545", "network RPC URL")
	cmd.Flags().Int64Var(&opts.chainID, "chain-id", 31337, "network chain ID")
	cmd.Flags().StringVar(&opts.builder, "builder", "", "build system (foundry, hardhat; default: detected)")
	cmd.Flags().BoolVar(&opts.force, "force", false, "overwrite existing config")

	return cmd
}

func runConfigInit(out io.Writer, path string, opts configInitOptions) error {
	if _, err := os.Stat(path); err == nil && !opts.force {
		return fmt.Errorf("config file already exists at %s (use --force to overwrite)", path)
	}
	if err := validation.ValidateNetworkName(opts.network); err != nil {
		return err
	}
	if err := validation.ValidateChainID(opts.chainID); err != nil {
		return err
	}

	builderLine := "# builder = \"foundry\""
	if opts.builder != "" {
		builderLine = fmt.Sprintf("builder = %q", opts.builder)
	}

	// Local nodes verify by comparing bytecode, public networks via the explorer
	verify := `[networks.%[1]s.verify]
provider = "bytecode"`
	if opts.chainID != 31337 && opts.chainID != 1337 {
		verify = `[networks.%[1]s.verify]
provider = "etherscan"
api_key_env = "ETHERSCAN_API_KEY"`
	}

	content := fmt.Sprintf(`# Contradeploy project configuration

# Build system project directory, relative to this file
# root = "."

# Build system; detected from foundry.toml or hardhat.config.* when unset
%[2]s

default_network = "%[1]s"

[networks.%[1]s]
rpc = "%[3]s"
chain_id = %[4]d
# gas_price_gwei = 2.5
confirmation_timeout = "2m"
verification_timeout = "5m"

`+verify+`

# Deployment history (default: sqlite in ~/.contradeploy/history.db)
# [storage]
# type = "postgres"
# url = "postgres://localhost:5432/contradeploy"

# Push deployments to a Contrafactory registry
# [registry]
# url = "https://contrafactory.example.com"
# package = "my-contracts"
# version = "1.0.0"
`, opts.network, builderLine, opts.rpc, opts.chainID)

	if err := os.WriteFile(path, []byte(content), 0644); err != nil {
		return fmt.Errorf("failed to write config: %w", err)
	}
	// The template must load cleanly
	if _, err := config.LoadProject(path); err != nil {
		return fmt.Errorf("generated config is invalid: %w", err)
	}

	fmt.Fprintf(out, "Created %s\n", path)
	fmt.Fprintln(out)
	fmt.Fprintln(out, "Configuration:")
	fmt.Fprintf(out, "  Network:  %s (chain %d)\n", opts.network, opts.chainID)
	fmt.Fprintf(out, "  RPC:      %s\n", opts.rpc)
	fmt.Fprintln(out)
	fmt.Fprintln(out, "Next steps:")
	fmt.Fprintf(out, "  1. Edit %s to add networks\n", path)
	fmt.Fprintln(out, "  2. Export DEPLOYER_PRIVATE_KEY")
	fmt.Fprintln(out, "  3. Run 'contradeploy deploy <Contract>'")

	return nil
}

func createConfigShowCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "show",
		Short: "Display current config",
		Long: `Display the configuration sources and the effective settings.

Shows the environment, the local project config (contradeploy.toml) and the
global config from ~/.contradeploy/config.yaml.

EXAMPLES:
  contradeploy config show
`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runConfigShow(cmd.OutOrStdout())
		},
	}
}

func runConfigShow(out io.Writer) error {
	fmt.Fprintln(out, "Configuration sources (in order of precedence):")
	fmt.Fprintln(out)

	fmt.Fprintln(out, "1. Command line flags")
	fmt.Fprintln(out, "   --network, --config, --gas-price-gwei, --timeout")
	fmt.Fprintln(out)

	fmt.Fprintln(out, "2. Environment variables")
	for _, key := range []string{"CONTRADEPLOY_NETWORK", "STORAGE_TYPE", "SQLITE_PATH", "METRICS_ENABLED"} {
		printEnv(out, key, false)
	}
	printEnv(out, "DATABASE_URL", true)
	printEnv(out, "DEPLOYER_PRIVATE_KEY", true)
	fmt.Fprintln(out)

	ws, wsErr := loadWorkspaceOptional()

	fmt.Fprintf(out, "3. Local project config (%s)\n", config.ProjectConfigFile)
	switch {
	case wsErr != nil:
		fmt.Fprintf(out, "   Error: %v\n", wsErr)
	case ws.project == nil:
		fmt.Fprintln(out, "   (not found)")
	default:
		abs, _ := filepath.Abs(ws.path)
		fmt.Fprintf(out, "   Loaded from: %s\n", abs)
		if ws.project.Builder != "" {
			fmt.Fprintf(out, "   builder: %s\n", ws.project.Builder)
		}
		if ws.project.DefaultNetwork != "" {
			fmt.Fprintf(out, "   default_network: %s\n", ws.project.DefaultNetwork)
		}
		for _, name := range ws.project.NetworkNames() {
			net := ws.project.Networks[name]
			fmt.Fprintf(out, "   network %s: chain %d, %s, verify via %s\n", name, net.ChainID, net.RPC, net.Provider())
		}
	}
	fmt.Fprintln(out)

	fmt.Fprintf(out, "4. Global config (%s)\n", config.GlobalConfigPath())
	if _, err := os.Stat(config.GlobalConfigPath()); errors.Is(err, os.ErrNotExist) {
		fmt.Fprintln(out, "   (not found)")
	} else if ws != nil {
		if ws.global.DefaultNetwork != "" {
			fmt.Fprintf(out, "   default_network: %s\n", ws.global.DefaultNetwork)
		}
		if ws.global.Storage.Type != "" {
			fmt.Fprintf(out, "   storage: %s\n", ws.global.Storage.Type)
		}
	}
	fmt.Fprintln(out)

	if ws == nil {
		return wsErr
	}

	fmt.Fprintln(out, "Effective configuration:")
	if name, err := config.SelectNetwork("", ws.project, ws.global); err == nil {
		fmt.Fprintf(out, "   Network:  %s\n", name)
	} else {
		fmt.Fprintln(out, "   Network:  (not set)")
	}
	storage := ws.storage()
	switch storage.Type {
	case "postgres":
		fmt.Fprintln(out, "   History:  postgres")
	default:
		fmt.Fprintf(out, "   History:  %s (%s)\n", storage.Type, storage.SQLite.Path)
	}
	if reg := ws.registry(); reg.Enabled() {
		fmt.Fprintf(out, "   Registry: %s (%s@%s)\n", reg.URL, reg.Package, reg.Version)
	}

	return nil
}

func createConfigUseCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "use <network>",
		Short: "Set the default network for all projects",
		Long: `Store a default network in the global config (~/.contradeploy/config.yaml).

--network and CONTRADEPLOY_NETWORK take precedence over it. It takes
precedence over a project's default_network.

EXAMPLES:
  contradeploy config use sepolia
`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runConfigUse(cmd.OutOrStdout(), config.GlobalConfigPath(), args[0])
		},
	}
}

func runConfigUse(out io.Writer, path, network string) error {
	if err := validation.ValidateNetworkName(network); err != nil {
		return err
	}

	global, err := config.LoadGlobal(path)
	if err != nil {
		return fmt.Errorf("loading global config: %w", err)
	}
	global.DefaultNetwork = network

	if err := config.SaveGlobal(path, global); err != nil {
		return fmt.Errorf("saving global config: %w", err)
	}

	fmt.Fprintf(out, "Default network set to %s in %s\n", network, path)
	return nil
}

func printEnv(out io.Writer, key string, secret bool) {
	value := os.Getenv(key)
	switch {
	case value == "":
		value = "(not set)"
	case secret:
		value = maskSecret(value)
	}
	fmt.Fprintf(out, "   %s=%s\n", key, value)
}

func maskSecret(s string) string {
	if len(s) <= 8 {
		return "****"
	}
	return s[:6] + "..." + s[len(s)-4:]
}
