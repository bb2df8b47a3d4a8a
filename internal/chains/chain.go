// Package chains provides the artifact model and the builder interfaces used to
// resolve contract identifiers into compiled artifacts.
package chains

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/pendergraft/contradeploy/internal/validation"
)

// ErrArtifactNotFound is returned when a contract identifier does not resolve
// to a build artifact.
var ErrArtifactNotFound = errors.New("artifact not found")

// Builder reads artifacts produced by a specific build tool
type Builder interface {
	// Metadata
	Name() string        // "foundry", "hardhat"
	DisplayName() string // "Foundry", "Hardhat"

	// Detection
	Detect(dir string) (bool, error)
	ConfigFile() string // "foundry.toml", "hardhat.config.ts"

	// Artifact handling
	Discover(dir string) ([]string, error)
	Load(dir string, contract string) (*Artifact, error)
}

// Artifact is a compiled EVM contract together with what an explorer
// needs to reproduce it.
type Artifact struct {
	Name              string          `json:"name"`
	SourcePath        string          `json:"sourcePath"`
	License           string          `json:"license,omitempty"`
	ABI               json.RawMessage `json:"abi"`
	Bytecode          string          `json:"bytecode"`
	DeployedBytecode  string          `json:"deployedBytecode"`
	StandardJSONInput json.RawMessage `json:"standardJsonInput,omitempty"`
	Compiler          Compiler        `json:"compiler"`
}

// QualifiedName returns "sourcePath:Name", the form explorers expect.
func (a *Artifact) QualifiedName() string {
	if a.SourcePath == "" {
		return a.Name
	}
	return a.SourcePath + ":" + a.Name
}

// HasBytecode reports whether the artifact is deployable
func (a *Artifact) HasBytecode() bool {
	return a.Bytecode != "" && a.Bytecode != "0x"
}

// Compiler contains solc details
type Compiler struct {
	Version    string          `json:"version"` // "0.8.20+commit.a1b2c3d4"
	Optimizer  OptimizerConfig `json:"optimizer"`
	EVMVersion string          `json:"evmVersion"` // "paris", "shanghai"
	ViaIR      bool            `json:"viaIR"`
}

// OptimizerConfig contains optimizer settings
type OptimizerConfig struct {
	Enabled bool `json:"enabled"`
	Runs    int  `json:"runs"`
}

// Project resolves contract identifiers against the build output of a
// single project directory.
type Project struct {
	Dir     string
	Builder Builder
}

// NewProject creates a project for dir. When builder is nil it is detected
// from the given candidates.
func NewProject(dir string, builder Builder, candidates ...Builder) (*Project, error) {
	if builder == nil {
		detected, err := DetectBuilder(dir, candidates...)
		if err != nil {
			return nil, err
		}
		builder = detected
	}
	return &Project{Dir: dir, Builder: builder}, nil
}

// Artifact loads the artifact for a contract identifier. The identifier is
// either a bare name or "path:Name".
func (p *Project) Artifact(ctx context.Context, contract string) (*Artifact, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if err := validation.ValidateContractName(contract); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrArtifactNotFound, err)
	}
	return p.Builder.Load(p.Dir, contract)
}

// Contracts lists the deployable contract names in the project
func (p *Project) Contracts() ([]string, error) {
	return p.Builder.Discover(p.Dir)
}

// DetectBuilder returns the first builder whose config file is present in dir
func DetectBuilder(dir string, builders ...Builder) (Builder, error) {
	for _, b := range builders {
		detected, err := b.Detect(dir)
		if err != nil {
			continue
		}
		if detected {
			return b, nil
		}
	}
	names := make([]string, 0, len(builders))
	for _, b := range builders {
		names = append(names, b.ConfigFile())
	}
	return nil, fmt.Errorf("no supported builder detected in %s (looked for %s)", dir, strings.Join(names, ", "))
}

// SelectBuilder returns the builder with the given name
func SelectBuilder(name string, builders ...Builder) (Builder, error) {
	for _, b := range builders {
		if b.Name() == name {
			return b, nil
		}
	}
	return nil, fmt.Errorf("unknown builder: %s", name)
}
