package foundry

import (
	"encoding/json"
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/pendergraft/contradeploy/internal/chains"
)

func writeArtifact(t *testing.T, dir, sourceFile, contract, sourcePath, bytecode string) {
	t.Helper()

	artifact := map[string]any{
		"abi": []map[string]any{
			{"type": "constructor", "inputs": []any{}},
		},
		"bytecode":         map[string]any{"object": bytecode},
		"deployedBytecode": map[string]any{"object": "0x6080"},
		"rawMetadata": `{"compiler":{"version":"0.8.20+commit.a1b2c3d4"},` +
			`"settings":{"compilationTarget":{"` + sourcePath + `":"` + contract + `"},"optimizer":{"enabled":true,"runs":200},"evmVersion":"paris"},` +
			`"sources":{"` + sourcePath + `":{"license":"MIT"}}}`,
	}
	data, err := json.Marshal(artifact)
	require.NoError(t, err)

	artifactDir := filepath.Join(dir, "out", sourceFile)
	require.NoError(t, os.MkdirAll(artifactDir, 0755))
	require.NoError(t, os.WriteFile(filepath.Join(artifactDir, contract+".json"), data, 0644))
}

func TestBuilder_Metadata(t *testing.T) {
	b := New()

	assert.Equal(t, "foundry", b.Name())
	assert.Equal(t, "Foundry", b.DisplayName())
	assert.Equal(t, "foundry.toml", b.ConfigFile())
}

func TestBuilder_Detect(t *testing.T) {
	b := New()

	t.Run("with foundry.toml", func(t *testing.T) {
		dir := t.TempDir()
		require.NoError(t, os.WriteFile(filepath.Join(dir, "foundry.toml"), []byte("[profile.default]"), 0644))

		detected, err := b.Detect(dir)
		require.NoError(t, err)
		assert.True(t, detected)
	})

	t.Run("without foundry.toml", func(t *testing.T) {
		detected, err := b.Detect(t.TempDir())
		require.NoError(t, err)
		assert.False(t, detected)
	})
}

func TestBuilder_Discover(t *testing.T) {
	b := New()

	t.Run("lists src contracts only", func(t *testing.T) {
		dir := t.TempDir()
		writeArtifact(t, dir, "Token.sol", "Token", "src/Token.sol", "0x1234")
		writeArtifact(t, dir, "Alpha.sol", "Alpha", "src/Alpha.sol", "0x1234")
		writeArtifact(t, dir, "ERC20.sol", "ERC20", "lib/openzeppelin/ERC20.sol", "0x1234")
		writeArtifact(t, dir, "IToken.sol", "IToken", "src/IToken.sol", "0x")

		names, err := b.Discover(dir)
		require.NoError(t, err)
		assert.Equal(t, []string{"Alpha", "Token"}, names)
	})

	t.Run("without out directory", func(t *testing.T) {
		_, err := b.Discover(t.TempDir())
		require.Error(t, err)
		assert.True(t, errors.Is(err, chains.ErrArtifactNotFound))
	})
}

func TestBuilder_Load(t *testing.T) {
	b := New()

	t.Run("bare name", func(t *testing.T) {
		dir := t.TempDir()
		writeArtifact(t, dir, "Alpha.sol", "Alpha", "src/Alpha.sol", "0x6001600c60003960016000f300")

		artifact, err := b.Load(dir, "Alpha")
		require.NoError(t, err)
		assert.Equal(t, "Alpha", artifact.Name)
		assert.Equal(t, "src/Alpha.sol", artifact.SourcePath)
		assert.Equal(t, "src/Alpha.sol:Alpha", artifact.QualifiedName())
		assert.Equal(t, "0.8.20+commit.a1b2c3d4", artifact.Compiler.Version)
		assert.True(t, artifact.Compiler.Optimizer.Enabled)
		assert.Equal(t, 200, artifact.Compiler.Optimizer.Runs)
		assert.Equal(t, "MIT", artifact.License)
		assert.Nil(t, artifact.StandardJSONInput)
	})

	t.Run("missing artifact", func(t *testing.T) {
		dir := t.TempDir()
		writeArtifact(t, dir, "Alpha.sol", "Alpha", "src/Alpha.sol", "0x1234")

		_, err := b.Load(dir, "Beta")
		require.Error(t, err)
		assert.True(t, errors.Is(err, chains.ErrArtifactNotFound))
	})

	t.Run("prefers src over test shadows", func(t *testing.T) {
		dir := t.TempDir()
		writeArtifact(t, dir, "Token.sol", "Token", "src/Token.sol", "0x1234")
		writeArtifact(t, dir, "TokenMock.sol", "Token", "test/mocks/TokenMock.sol", "0x5678")

		artifact, err := b.Load(dir, "Token")
		require.NoError(t, err)
		assert.Equal(t, "src/Token.sol", artifact.SourcePath)
	})

	t.Run("ambiguous name", func(t *testing.T) {
		dir := t.TempDir()
		writeArtifact(t, dir, "A.sol", "Token", "src/A.sol", "0x1234")
		writeArtifact(t, dir, "B.sol", "Token", "src/B.sol", "0x5678")

		_, err := b.Load(dir, "Token")
		require.Error(t, err)
		assert.Contains(t, err.Error(), "ambiguous")

		artifact, err := b.Load(dir, "src/B.sol:Token")
		require.NoError(t, err)
		assert.Equal(t, "0x5678", artifact.Bytecode)
	})

	t.Run("attaches build-info input", func(t *testing.T) {
		dir := t.TempDir()
		writeArtifact(t, dir, "Alpha.sol", "Alpha", "src/Alpha.sol", "0x1234")

		buildInfo := map[string]any{
			"id":              "abc123",
			"solcLongVersion": "0.8.20+commit.a1b2c3d4",
			"input": map[string]any{
				"language":   "Solidity",
				"sources":    map[string]any{"src/Alpha.sol": map[string]any{"content": "contract Alpha {}"}},
				"settings":   map[string]any{},
				"allowPaths": []string{"/tmp"},
			},
			"output": map[string]any{
				"contracts": map[string]any{"src/Alpha.sol": map[string]any{"Alpha": map[string]any{}}},
			},
		}
		data, err := json.Marshal(buildInfo)
		require.NoError(t, err)
		buildInfoDir := filepath.Join(dir, "out", "build-info")
		require.NoError(t, os.MkdirAll(buildInfoDir, 0755))
		require.NoError(t, os.WriteFile(filepath.Join(buildInfoDir, "abc123.json"), data, 0644))

		artifact, err := b.Load(dir, "Alpha")
		require.NoError(t, err)
		require.NotNil(t, artifact.StandardJSONInput)

		var input map[string]any
		require.NoError(t, json.Unmarshal(artifact.StandardJSONInput, &input))
		assert.Contains(t, input, "sources")
		assert.NotContains(t, input, "allowPaths")
	})
}

func TestBuilder_Parse(t *testing.T) {
	b := New()

	t.Run("invalid json", func(t *testing.T) {
		artifactPath := filepath.Join(t.TempDir(), "Invalid.json")
		require.NoError(t, os.WriteFile(artifactPath, []byte("not json"), 0644))

		_, err := b.Parse(artifactPath)
		require.Error(t, err)
	})

	t.Run("interface (no bytecode)", func(t *testing.T) {
		artifact := map[string]any{
			"abi":      []map[string]any{{"type": "function", "name": "transfer"}},
			"bytecode": map[string]any{"object": ""},
		}
		data, _ := json.Marshal(artifact)
		artifactPath := filepath.Join(t.TempDir(), "IToken.json")
		require.NoError(t, os.WriteFile(artifactPath, data, 0644))

		_, err := b.Parse(artifactPath)
		require.Error(t, err)
		assert.Contains(t, err.Error(), "no bytecode")
	})

	t.Run("unlinked libraries", func(t *testing.T) {
		artifact := map[string]any{
			"abi": []any{},
			"bytecode": map[string]any{
				"object": "0x73__$abcdef$__",
				"linkReferences": map[string]any{
					"src/Math.sol": map[string]any{"Math": []map[string]int{{"start": 1, "length": 20}}},
				},
			},
		}
		data, _ := json.Marshal(artifact)
		artifactPath := filepath.Join(t.TempDir(), "Linked.json")
		require.NoError(t, os.WriteFile(artifactPath, data, 0644))

		_, err := b.Parse(artifactPath)
		require.Error(t, err)
		assert.Contains(t, err.Error(), "library linking")
	})
}
