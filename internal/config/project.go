package config

import (
	"errors"
	"fmt"
	"math"
	"math/big"
	"os"
	"sort"
	"strconv"
	"time"

	"github.com/BurntSushi/toml"

	"github.com/pendergraft/contradeploy/internal/validation"
)

// ProjectConfigFile is the project config file name
const ProjectConfigFile = "contradeploy.toml"

// Verification providers
const (
	ProviderEtherscan = "etherscan"
	ProviderBytecode  = "bytecode"
	ProviderNone      = "none"
)

var (
	ErrUnknownNetwork = errors.New("unknown network")
	ErrNoNetwork      = errors.New("no network selected")
)

// ProjectConfig is the project-level TOML configuration
type ProjectConfig struct {
	// Root is the build system's project directory, relative to the config file
	Root           string                   `toml:"root,omitempty"`
	Builder        string                   `toml:"builder,omitempty"`
	DefaultNetwork string                   `toml:"default_network,omitempty"`
	Networks       map[string]NetworkConfig `toml:"networks"`
	Storage        StorageFile              `toml:"storage,omitempty"`
	Registry       RegistryConfig           `toml:"registry,omitempty"`
}

// NetworkConfig describes one deployment target
type NetworkConfig struct {
	RPC                 string       `toml:"rpc"`
	ChainID             int64        `toml:"chain_id"`
	GasPriceGwei        float64      `toml:"gas_price_gwei,omitempty"`
	ConfirmationTimeout Duration     `toml:"confirmation_timeout,omitempty"`
	VerificationTimeout Duration     `toml:"verification_timeout,omitempty"`
	Verify              VerifyConfig `toml:"verify,omitempty"`
}

// VerifyConfig selects the verification service for a network
type VerifyConfig struct {
	Provider string `toml:"provider,omitempty"`
	URL      string `toml:"url,omitempty"`
	// APIKeyEnv names the environment variable holding the explorer API key
	APIKeyEnv    string  `toml:"api_key_env,omitempty"`
	RequestsPerS float64 `toml:"requests_per_second,omitempty"`
}

// StorageFile is the storage section shared by project and global config
type StorageFile struct {
	Type string `toml:"type,omitempty" yaml:"type,omitempty"`
	Path string `toml:"path,omitempty" yaml:"path,omitempty"`
	URL  string `toml:"url,omitempty" yaml:"url,omitempty"`
}

// RegistryConfig enables pushing deployments to a Contrafactory server
type RegistryConfig struct {
	URL       string `toml:"url,omitempty" yaml:"url,omitempty"`
	APIKeyEnv string `toml:"api_key_env,omitempty" yaml:"api_key_env,omitempty"`
	Package   string `toml:"package,omitempty" yaml:"package,omitempty"`
	Version   string `toml:"version,omitempty" yaml:"version,omitempty"`
}

// Enabled reports whether deployments should be pushed to a registry
func (r RegistryConfig) Enabled() bool {
	return r.URL != "" && r.Package != "" && r.Version != ""
}

// APIKey reads the registry API key, CONTRAFACTORY_API_KEY by default
func (r RegistryConfig) APIKey() string {
	env := r.APIKeyEnv
	if env == "" {
		env = "CONTRAFACTORY_API_KEY"
	}
	return os.Getenv(env)
}

// Duration is a time.Duration read from strings like "90s" or "5m"
type Duration struct {
	time.Duration
}

// UnmarshalText implements encoding.TextUnmarshaler
func (d *Duration) UnmarshalText(text []byte) error {
	v, err := time.ParseDuration(string(text))
	if err != nil {
		return fmt.Errorf("invalid duration %q: %w", text, err)
	}
	if v < 0 {
		return fmt.Errorf("invalid duration %q: must not be negative", text)
	}
	d.Duration = v
	return nil
}

// MarshalText implements encoding.TextMarshaler
func (d Duration) MarshalText() ([]byte, error) {
	return []byte(d.String()), nil
}

// LoadProject reads and validates a project config file
func LoadProject(path string) (*ProjectConfig, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}

	var cfg ProjectConfig
	if _, err := toml.Decode(string(data), &cfg); err != nil {
		return nil, fmt.Errorf("parsing %s: %w", path, err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return &cfg, nil
}

// Validate checks network definitions
func (c *ProjectConfig) Validate() error {
	switch c.Builder {
	case "", "foundry", "hardhat":
	default:
		return fmt.Errorf("unknown builder %q", c.Builder)
	}

	for _, name := range c.NetworkNames() {
		n := c.Networks[name]
		if err := validation.ValidateNetworkName(name); err != nil {
			return fmt.Errorf("network %q: %w", name, err)
		}
		if n.RPC == "" {
			return fmt.Errorf("network %q: rpc is required", name)
		}
		if err := validation.ValidateChainID(n.ChainID); err != nil {
			return fmt.Errorf("network %q: %w", name, err)
		}
		if n.GasPriceGwei < 0 || math.IsNaN(n.GasPriceGwei) || math.IsInf(n.GasPriceGwei, 0) {
			return fmt.Errorf("network %q: invalid gas_price_gwei", name)
		}
		switch n.Verify.Provider {
		case "", ProviderEtherscan, ProviderBytecode, ProviderNone:
		default:
			return fmt.Errorf("network %q: unknown verification provider %q", name, n.Verify.Provider)
		}
	}

	if c.DefaultNetwork != "" {
		if _, ok := c.Networks[c.DefaultNetwork]; !ok {
			return fmt.Errorf("default_network: %w: %s", ErrUnknownNetwork, c.DefaultNetwork)
		}
	}
	return nil
}

// NetworkNames returns the configured network names, sorted
func (c *ProjectConfig) NetworkNames() []string {
	names := make([]string, 0, len(c.Networks))
	for name := range c.Networks {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Network looks up a network by name
func (c *ProjectConfig) Network(name string) (*NetworkConfig, error) {
	n, ok := c.Networks[name]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrUnknownNetwork, name)
	}
	return &n, nil
}

// SelectNetwork picks the network to use. Precedence: flag,
// CONTRADEPLOY_NETWORK, global default, project default.
func SelectNetwork(flag string, project *ProjectConfig, global *GlobalConfig) (string, error) {
	candidates := []string{flag, os.Getenv("CONTRADEPLOY_NETWORK")}
	if global != nil {
		candidates = append(candidates, global.DefaultNetwork)
	}
	if project != nil {
		candidates = append(candidates, project.DefaultNetwork)
	}
	for _, name := range candidates {
		if name != "" {
			return name, nil
		}
	}
	return "", ErrNoNetwork
}

// GasPrice converts gas_price_gwei to wei. Nil means use the node's suggestion.
func (n *NetworkConfig) GasPrice() *big.Int {
	return GweiToWei(n.GasPriceGwei)
}

// Provider returns the verification provider, defaulting to etherscan when
// an explorer URL or key is configured and bytecode comparison otherwise
func (n *NetworkConfig) Provider() string {
	if n.Verify.Provider != "" {
		return n.Verify.Provider
	}
	if n.Verify.URL != "" || n.Verify.APIKeyEnv != "" {
		return ProviderEtherscan
	}
	return ProviderBytecode
}

// APIKey reads the explorer API key from the configured environment variable
func (n *NetworkConfig) APIKey() string {
	env := n.Verify.APIKeyEnv
	if env == "" {
		env = "ETHERSCAN_API_KEY"
	}
	return os.Getenv(env)
}

// GweiToWei converts a gwei amount to wei. Zero or negative returns nil.
func GweiToWei(gwei float64) *big.Int {
	if gwei <= 0 {
		return nil
	}
	r, ok := new(big.Rat).SetString(strconv.FormatFloat(gwei, 'f', -1, 64))
	if !ok {
		return nil
	}
	r.Mul(r, big.NewRat(1_000_000_000, 1))
	return new(big.Int).Quo(r.Num(), r.Denom())
}
