// Package foundry provides the Foundry artifact builder.
package foundry

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

// Builder implements chains.Builder for Foundry projects
type Builder struct {
	// OutDir overrides the artifacts directory (default "out")
	OutDir string
}

// New creates a new Foundry builder
func New() *Builder {
	return &Builder{OutDir: "out"}
}

// Name returns the builder identifier
func (b *Builder) Name() string {
	return "foundry"
}

// DisplayName returns a human-readable name
func (b *Builder) DisplayName() string {
	return "Foundry"
}

// ConfigFile returns the config file name
func (b *Builder) ConfigFile() string {
	return "foundry.toml"
}

// Detect checks if a directory is a Foundry project
func (b *Builder) Detect(dir string) (bool, error) {
	_, err := os.Stat(filepath.Join(dir, b.ConfigFile()))
	if err != nil {
		if os.IsNotExist(err) {
			return false, nil
		}
		return false, err
	}
	return true, nil
}

func (b *Builder) outDir(dir string) string {
	out := b.OutDir
	if out == "" {
		out = "out"
	}
	return filepath.Join(dir, out)
}

// Discover lists deployable contracts compiled from the project's src/ directory
func (b *Builder) Discover(dir string) ([]string, error) {
	candidates, err := b.walk(dir)
	if err != nil {
		return nil, err
	}

	seen := make(map[string]bool)
	var names []string
	for _, c := range candidates {
		if !strings.HasPrefix(c.sourcePath, "src/") || !c.deployable || seen[c.name] {
			continue
		}
		seen[c.name] = true
		names = append(names, c.name)
	}
	sort.Strings(names)
	return names, nil
}

// Load resolves a contract identifier ("Name" or "src/File.sol:Name") to its artifact
func (b *Builder) Load(dir string, contract string) (*chains.Artifact, error) {
	wantPath, wantName := validation.SplitContractRef(contract)

	candidates, err := b.walk(dir)
	if err != nil {
		return nil, err
	}

	var matches []candidate
	for _, c := range candidates {
		if c.name != wantName {
			continue
		}
		if wantPath != "" && c.sourcePath != wantPath {
			continue
		}
		matches = append(matches, c)
	}

	// A bare name shadowed by test or script contracts resolves to src/
	if len(matches) > 1 {
		var fromSrc []candidate
		for _, m := range matches {
			if strings.HasPrefix(m.sourcePath, "src/") {
				fromSrc = append(fromSrc, m)
			}
		}
		if len(fromSrc) == 1 {
			matches = fromSrc
		}
	}

	switch len(matches) {
	case 0:
		return nil, fmt.Errorf("%w: %s (run 'forge build' first)", chains.ErrArtifactNotFound, contract)
	case 1:
	default:
		refs := make([]string, len(matches))
		for i, m := range matches {
			refs[i] = m.sourcePath + ":" + wantName
		}
		return nil, fmt.Errorf("contract %s is ambiguous, qualify it as one of: %s", wantName, strings.Join(refs, ", "))
	}

	artifact, err := b.Parse(matches[0].path)
	if err != nil {
		return nil, err
	}

	// Build-info is optional: without it the artifact is still deployable
	// but explorers cannot recompile it.
	if input, version, err := b.verificationInput(dir, artifact.SourcePath, artifact.Name); err == nil {
		artifact.StandardJSONInput = input
		if artifact.Compiler.Version == "" {
			artifact.Compiler.Version = version
		}
	}

	return artifact, nil
}

type candidate struct {
	path       string
	name       string
	sourcePath string
	deployable bool
}

// walk collects out/{Source}.sol/{Contract}.json artifacts
func (b *Builder) walk(dir string) ([]candidate, error) {
	outDir := b.outDir(dir)
	if _, err := os.Stat(outDir); os.IsNotExist(err) {
		return nil, fmt.Errorf("%w: %s directory not found - run 'forge build' first", chains.ErrArtifactNotFound, outDir)
	}

	var candidates []candidate
	err := filepath.Walk(outDir, func(path string, info os.FileInfo, err error) error {
		if err != nil {
			return err
		}
		if info.IsDir() {
			if info.Name() == "build-info" {
				return filepath.SkipDir
			}
			return nil
		}
		if !strings.HasSuffix(info.Name(), ".json") || !strings.HasSuffix(filepath.Dir(path), ".sol") {
			return nil
		}

		raw, err := readArtifact(path)
		if err != nil {
			return nil // Skip artifacts we can't read
		}

		candidates = append(candidates, candidate{
			path:       path,
			name:       strings.TrimSuffix(info.Name(), ".json"),
			sourcePath: raw.sourcePath(),
			deployable: raw.Bytecode.Object != "" && raw.Bytecode.Object != "0x",
		})
		return nil
	})

	return candidates, err
}

// Parse parses a Foundry artifact file
func (b *Builder) Parse(artifactPath string) (*chains.Artifact, error) {
	raw, err := readArtifact(artifactPath)
	if err != nil {
		return nil, err
	}

	contractName := strings.TrimSuffix(filepath.Base(artifactPath), ".json")

	// Skip if no bytecode (interfaces, abstract contracts)
	if raw.Bytecode.Object == "" || raw.Bytecode.Object == "0x" {
		return nil, fmt.Errorf("contract %s has no bytecode (interface or abstract contract)", contractName)
	}
	if len(raw.Bytecode.LinkReferences) > 0 {
		return nil, fmt.Errorf("contract %s requires library linking, which is not supported", contractName)
	}

	metadata := raw.metadata()

	return &chains.Artifact{
		Name:             contractName,
		SourcePath:       raw.sourcePath(),
		License:          metadata.Sources.FirstLicense(),
		ABI:              raw.ABI,
		Bytecode:         raw.Bytecode.Object,
		DeployedBytecode: raw.DeployedBytecode.Object,
		Compiler: chains.Compiler{
			Version:    metadata.Compiler.Version,
			EVMVersion: metadata.Settings.EVMVersion,
			ViaIR:      metadata.Settings.ViaIR,
			Optimizer: chains.OptimizerConfig{
				Enabled: metadata.Settings.Optimizer.Enabled,
				Runs:    metadata.Settings.Optimizer.Runs,
			},
		},
	}, nil
}

// verificationInput finds the build-info that produced sourcePath:name and
// returns its Standard JSON Input with the solc long version.
func (b *Builder) verificationInput(dir, sourcePath, name string) (json.RawMessage, string, error) {
	buildInfoDir := filepath.Join(b.outDir(dir), "build-info")

	entries, err := os.ReadDir(buildInfoDir)
	if err != nil {
		return nil, "", fmt.Errorf("reading build-info directory: %w", err)
	}

	for _, entry := range entries {
		if !strings.HasSuffix(entry.Name(), ".json") {
			continue
		}

		data, err := os.ReadFile(filepath.Join(buildInfoDir, entry.Name()))
		if err != nil {
			continue
		}

		var buildInfo BuildInfo
		if err := json.Unmarshal(data, &buildInfo); err != nil {
			continue
		}
		if !buildInfo.produced(sourcePath, name) {
			continue
		}

		input, err := stripFoundryStandardJSONKeys(buildInfo.Input)
		if err != nil {
			continue
		}
		return input, buildInfo.SolcLongVersion, nil
	}

	return nil, "", fmt.Errorf("build-info not found for contract %s", name)
}

// foundryStandardJSONKeysToStrip are top-level keys Foundry adds that the Solidity compiler rejects.
// The standard JSON input spec only allows: language, sources, settings.
var foundryStandardJSONKeysToStrip = []string{"allowPaths", "basePath", "includePaths", "version"}

func stripFoundryStandardJSONKeys(input json.RawMessage) ([]byte, error) {
	var m map[string]any
	if err := json.Unmarshal(input, &m); err != nil {
		return nil, err
	}
	for _, key := range foundryStandardJSONKeysToStrip {
		delete(m, key)
	}
	return json.Marshal(m)
}

func readArtifact(path string) (*FoundryArtifact, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading artifact: %w", err)
	}

	var raw FoundryArtifact
	if err := json.Unmarshal(data, &raw); err != nil {
		return nil, fmt.Errorf("parsing artifact JSON: %w", err)
	}
	return &raw, nil
}

// FoundryArtifact represents the structure of a Foundry artifact JSON file
type FoundryArtifact struct {
	ABI              json.RawMessage `json:"abi"`
	Bytecode         BytecodeObject  `json:"bytecode"`
	DeployedBytecode BytecodeObject  `json:"deployedBytecode"`
	RawMetadata      string          `json:"rawMetadata"`
}

func (a *FoundryArtifact) metadata() FoundryMetadata {
	var metadata FoundryMetadata
	if a.RawMetadata != "" {
		_ = json.Unmarshal([]byte(a.RawMetadata), &metadata) // Non-fatal, continue without metadata
	}
	return metadata
}

func (a *FoundryArtifact) sourcePath() string {
	for k := range a.metadata().Settings.CompilationTarget {
		return k
	}
	return ""
}

// BytecodeObject represents bytecode in a Foundry artifact
type BytecodeObject struct {
	Object         string                       `json:"object"`
	LinkReferences map[string]map[string][]Link `json:"linkReferences"`
}

// Link represents a library link reference
type Link struct {
	Start  int `json:"start"`
	Length int `json:"length"`
}

// FoundryMetadata represents the parsed rawMetadata field
type FoundryMetadata struct {
	Compiler CompilerMeta `json:"compiler"`
	Language string       `json:"language"`
	Settings SettingsMeta `json:"settings"`
	Sources  SourcesMeta  `json:"sources"`
}

// CompilerMeta contains compiler information
type CompilerMeta struct {
	Version string `json:"version"`
}

// SettingsMeta contains compiler settings
type SettingsMeta struct {
	CompilationTarget map[string]string `json:"compilationTarget"`
	EVMVersion        string            `json:"evmVersion"`
	Optimizer         OptimizerMeta     `json:"optimizer"`
	ViaIR             bool              `json:"viaIR"`
}

// OptimizerMeta contains optimizer settings
type OptimizerMeta struct {
	Enabled bool `json:"enabled"`
	Runs    int  `json:"runs"`
}

// SourcesMeta contains source file information
type SourcesMeta map[string]SourceMeta

// SourceMeta contains individual source file info
type SourceMeta struct {
	Keccak256 string `json:"keccak256"`
	License   string `json:"license"`
}

// FirstLicense returns the first license found in sources
func (s SourcesMeta) FirstLicense() string {
	for _, src := range s {
		if src.License != "" {
			return src.License
		}
	}
	return ""
}

// BuildInfo represents a Foundry build-info file (hh-sol-build-info-1 format)
type BuildInfo struct {
	ID              string          `json:"id"`
	SolcVersion     string          `json:"solcVersion"`     // Short: "0.8.28"
	SolcLongVersion string          `json:"solcLongVersion"` // Full: "0.8.28+commit.7893614a"
	Input           json.RawMessage `json:"input"`           // Standard JSON Input
	Output          json.RawMessage `json:"output"`          // Compilation output
}

// produced reports whether output.contracts[sourcePath][name] exists
func (bi *BuildInfo) produced(sourcePath, name string) bool {
	var output struct {
		Contracts map[string]map[string]json.RawMessage `json:"contracts"`
	}
	if err := json.Unmarshal(bi.Output, &output); err != nil {
		return false
	}
	_, ok := output.Contracts[sourcePath][name]
	return ok
}
