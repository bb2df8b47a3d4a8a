// Package validation provides input validation for contradeploy.
package validation

import (
	"errors"
	"regexp"
	"strings"

	"golang.org/x/mod/semver"
)

// Contract identifiers follow Solidity identifier rules, optionally qualified
// with a source path ("src/Token.sol:Token").
var contractNameRegex = regexp.MustCompile(`^[A-Za-z_$][A-Za-z0-9_$]{0,127}$`)

// Network names are used as TOML table keys and CLI selectors.
var networkNameRegex = regexp.MustCompile(`^[a-z][a-z0-9_-]{0,62}$`)

// ValidateContractName validates a contract identifier, either a bare name
// or a fully qualified "path:Name" reference.
func ValidateContractName(name string) error {
	if name == "" {
		return errors.New("contract name cannot be empty")
	}
	if idx := strings.LastIndex(name, ":"); idx >= 0 {
		path := name[:idx]
		if path == "" {
			return errors.New("invalid contract reference: empty source path")
		}
		if strings.Contains(path, "..") {
			return errors.New("invalid contract reference: path traversal")
		}
		name = name[idx+1:]
	}
	if !contractNameRegex.MatchString(name) {
		return errors.New("invalid contract name: must be a Solidity identifier")
	}
	return nil
}

// SplitContractRef splits "path:Name" into its source path and name.
// A bare name returns an empty path.
func SplitContractRef(ref string) (path, name string) {
	if idx := strings.LastIndex(ref, ":"); idx >= 0 {
		return ref[:idx], ref[idx+1:]
	}
	return "", ref
}

// ValidateNetworkName validates a network selector
func ValidateNetworkName(name string) error {
	if !networkNameRegex.MatchString(name) {
		return errors.New("invalid network name: must be lowercase alphanumeric with hyphens or underscores, starting with a letter")
	}
	return nil
}

// ValidateCompilerVersion validates a solc version such as "0.8.20" or
// "v0.8.20+commit.a1b2c3d4".
func ValidateCompilerVersion(v string) error {
	normalized := strings.TrimPrefix(v, "v")
	if normalized == "" {
		return errors.New("compiler version cannot be empty")
	}
	if !semver.IsValid("v" + normalized) {
		return errors.New("invalid compiler version: must be in format X.Y.Z[+commit.HASH]")
	}
	parts := strings.SplitN(normalized, "+", 2)
	if strings.Count(parts[0], ".") < 2 {
		return errors.New("invalid compiler version: must be in format X.Y.Z (major.minor.patch)")
	}
	return nil
}

// ExplorerCompilerVersion returns the compiler version in the form block
// explorers expect ("v0.8.20+commit.a1b2c3d4").
func ExplorerCompilerVersion(v string) string {
	return "v" + strings.TrimPrefix(v, "v")
}

// ValidateAddress validates an Ethereum address
func ValidateAddress(addr string) error {
	if len(addr) != 42 {
		return errors.New("invalid address length: must be 42 characters (0x + 40 hex)")
	}
	if !strings.HasPrefix(addr, "0x") {
		return errors.New("invalid address: must start with 0x")
	}
	if !isHex(addr[2:]) {
		return errors.New("invalid address: contains non-hex characters")
	}
	return nil
}

// ValidateTxHash validates a 32-byte transaction hash
func ValidateTxHash(hash string) error {
	if len(hash) != 66 || !strings.HasPrefix(hash, "0x") {
		return errors.New("invalid transaction hash: must be 0x followed by 64 hex characters")
	}
	if !isHex(hash[2:]) {
		return errors.New("invalid transaction hash: contains non-hex characters")
	}
	return nil
}

// ValidateChainID validates a chain ID
func ValidateChainID(chainID int64) error {
	if chainID <= 0 {
		return errors.New("chain ID must be positive")
	}
	return nil
}

func isHex(s string) bool {
	for _, c := range s {
		isDigit := c >= '0' && c <= '9'
		isLowerHex := c >= 'a' && c <= 'f'
		isUpperHex := c >= 'A' && c <= 'F'
		if !isDigit && !isLowerHex && !isUpperHex {
			return false
		}
	}
	return true
}
