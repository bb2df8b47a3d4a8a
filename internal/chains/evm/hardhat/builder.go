// Package hardhat provides the Hardhat artifact builder.
package hardhat

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/pendergraft/contradeploy/internal/chains"
	"github.com/pendergraft/contradeploy/internal/validation"
)

// configFiles are the Hardhat config names in detection order
var configFiles = []string{"hardhat.config.ts", "hardhat.config.js", "hardhat.config.cjs", "hardhat.config.mjs"}

// Builder implements chains.Builder for Hardhat projects
type Builder struct {
	// ArtifactsDir overrides the artifacts directory (default "artifacts")
	ArtifactsDir string
}

// New creates a new Hardhat builder
func New() *Builder {
	return &Builder{ArtifactsDir: "artifacts"}
}

// Name returns the builder identifier
func (b *Builder) Name() string {
	return "hardhat"
}

// DisplayName returns a human-readable name
func (b *Builder) DisplayName() string {
	return "Hardhat"
}

// ConfigFile returns the primary config file name
func (b *Builder) ConfigFile() string {
	return configFiles[0]
}

// Detect checks if a directory is a Hardhat project
func (b *Builder) Detect(dir string) (bool, error) {
	for _, name := range configFiles {
		_, err := os.Stat(filepath.Join(dir, name))
		if err == nil {
			return true, nil
		}
		if !os.IsNotExist(err) {
			return false, err
		}
	}
	return false, nil
}

func (b *Builder) artifactsDir(dir string) string {
	out := b.ArtifactsDir
	if out == "" {
		out = "artifacts"
	}
	return filepath.Join(dir, out)
}

// Discover lists deployable contracts compiled from the project's contracts/ directory
func (b *Builder) Discover(dir string) ([]string, error) {
	artifacts, err := b.walk(dir)
	if err != nil {
		return nil, err
	}

	seen := make(map[string]bool)
	var names []string
	for _, a := range artifacts {
		if !strings.HasPrefix(a.SourceName, "contracts/") || !a.deployable() || seen[a.ContractName] {
			continue
		}
		seen[a.ContractName] = true
		names = append(names, a.ContractName)
	}
	sort.Strings(names)
	return names, nil
}

// Load resolves a contract identifier ("Name" or "contracts/File.sol:Name") to its artifact
func (b *Builder) Load(dir string, contract string) (*chains.Artifact, error) {
	wantPath, wantName := validation.SplitContractRef(contract)

	artifacts, err := b.walk(dir)
	if err != nil {
		return nil, err
	}

	var matches []*HardhatArtifact
	for _, a := range artifacts {
		if a.ContractName != wantName {
			continue
		}
		if wantPath != "" && a.SourceName != wantPath {
			continue
		}
		matches = append(matches, a)
	}

	switch len(matches) {
	case 0:
		return nil, fmt.Errorf("%w: %s (run 'npx hardhat compile' first)", chains.ErrArtifactNotFound, contract)
	case 1:
	default:
		refs := make([]string, len(matches))
		for i, m := range matches {
			refs[i] = m.SourceName + ":" + wantName
		}
		return nil, fmt.Errorf("contract %s is ambiguous, qualify it as one of: %s", wantName, strings.Join(refs, ", "))
	}

	raw := matches[0]
	if !raw.deployable() {
		return nil, fmt.Errorf("contract %s has no bytecode (interface or abstract contract)", raw.ContractName)
	}
	if len(raw.LinkReferences) > 0 {
		return nil, fmt.Errorf("contract %s requires library linking, which is not supported", raw.ContractName)
	}

	artifact := &chains.Artifact{
		Name:             raw.ContractName,
		SourcePath:       raw.SourceName,
		ABI:              raw.ABI,
		Bytecode:         raw.Bytecode,
		DeployedBytecode: raw.DeployedBytecode,
	}

	if buildInfo, err := b.buildInfo(raw); err == nil {
		artifact.StandardJSONInput = buildInfo.Input
		artifact.Compiler = buildInfo.compiler()
	}

	return artifact, nil
}

// walk collects artifacts/<sourceName>/<Contract>.json files, skipping debug files
func (b *Builder) walk(dir string) ([]*HardhatArtifact, error) {
	root := b.artifactsDir(dir)
	if _, err := os.Stat(root); os.IsNotExist(err) {
		return nil, fmt.Errorf("%w: %s directory not found - run 'npx hardhat compile' first", chains.ErrArtifactNotFound, root)
	}

	var artifacts []*HardhatArtifact
	err := filepath.Walk(root, func(path string, info os.FileInfo, err error) error {
		if err != nil {
			return err
		}
		if info.IsDir() {
			if info.Name() == "build-info" {
				return filepath.SkipDir
			}
			return nil
		}
		if !strings.HasSuffix(info.Name(), ".json") || strings.HasSuffix(info.Name(), ".dbg.json") {
			return nil
		}

		data, err := os.ReadFile(path)
		if err != nil {
			return nil
		}
		var a HardhatArtifact
		if err := json.Unmarshal(data, &a); err != nil || a.Format != artifactFormat {
			return nil // Skip files that are not Hardhat artifacts
		}
		a.path = path
		artifacts = append(artifacts, &a)
		return nil
	})

	return artifacts, err
}

// buildInfo follows the artifact's .dbg.json pointer to its build-info file
func (b *Builder) buildInfo(a *HardhatArtifact) (*BuildInfo, error) {
	dbgPath := strings.TrimSuffix(a.path, ".json") + ".dbg.json"
	data, err := os.ReadFile(dbgPath)
	if err != nil {
		return nil, fmt.Errorf("reading debug file: %w", err)
	}

	var dbg struct {
		BuildInfo string `json:"buildInfo"`
	}
	if err := json.Unmarshal(data, &dbg); err != nil {
		return nil, fmt.Errorf("parsing debug file: %w", err)
	}
	if dbg.BuildInfo == "" {
		return nil, fmt.Errorf("debug file has no build-info reference")
	}

	data, err = os.ReadFile(filepath.Join(filepath.Dir(dbgPath), dbg.BuildInfo))
	if err != nil {
		return nil, fmt.Errorf("reading build-info: %w", err)
	}

	var buildInfo BuildInfo
	if err := json.Unmarshal(data, &buildInfo); err != nil {
		return nil, fmt.Errorf("parsing build-info: %w", err)
	}
	return &buildInfo, nil
}

const artifactFormat = "hh-sol-artifact-1"

// HardhatArtifact represents the structure of a Hardhat artifact JSON file
type HardhatArtifact struct {
	Format           string          `json:"_format"`
	ContractName     string          `json:"contractName"`
	SourceName       string          `json:"sourceName"`
	ABI              json.RawMessage `json:"abi"`
	Bytecode         string          `json:"bytecode"`
	DeployedBytecode string          `json:"deployedBytecode"`
	LinkReferences   map[string]any  `json:"linkReferences"`

	path string
}

func (a *HardhatArtifact) deployable() bool {
	return a.Bytecode != "" && a.Bytecode != "0x"
}

// BuildInfo represents a Hardhat build-info file
type BuildInfo struct {
	Format          string          `json:"_format"`
	SolcVersion     string          `json:"solcVersion"`
	SolcLongVersion string          `json:"solcLongVersion"`
	Input           json.RawMessage `json:"input"`
}

func (bi *BuildInfo) compiler() chains.Compiler {
	var input struct {
		Settings struct {
			EVMVersion string `json:"evmVersion"`
			ViaIR      bool   `json:"viaIR"`
			Optimizer  struct {
				Enabled bool `json:"enabled"`
				Runs    int  `json:"runs"`
			} `json:"optimizer"`
		} `json:"settings"`
	}
	_ = json.Unmarshal(bi.Input, &input)

	return chains.Compiler{
		Version:    bi.SolcLongVersion,
		EVMVersion: input.Settings.EVMVersion,
		ViaIR:      input.Settings.ViaIR,
		Optimizer: chains.OptimizerConfig{
			Enabled: input.Settings.Optimizer.Enabled,
			Runs:    input.Settings.Optimizer.Runs,
		},
	}
}
