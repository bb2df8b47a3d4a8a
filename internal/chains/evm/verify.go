package evm

import (
	"bytes"
	"encoding/binary"

	"github.com/ethereum/go-ethereum/common/hexutil"
)

// Match types reported by CompareBytecode
const (
	MatchFull    = "full"
	MatchPartial = "partial"
	MatchNone    = "none"
)

// BytecodeMatch is the result of comparing on-chain code with an artifact
type BytecodeMatch struct {
	Match     bool
	MatchType string
	Message   string
}

// StripMetadata removes the CBOR metadata solc appends to runtime bytecode.
// The last two bytes hold the big-endian length of the CBOR map.
func StripMetadata(bytecode []byte) []byte {
	if len(bytecode) < 2 {
		return bytecode
	}
	cborLen := int(binary.BigEndian.Uint16(bytecode[len(bytecode)-2:]))
	start := len(bytecode) - 2 - cborLen
	if cborLen == 0 || start < 0 {
		return bytecode
	}
	// CBOR maps with 1-3 entries (ipfs, bzzr0/1, solc, experimental)
	switch bytecode[start] {
	case 0xa1, 0xa2, 0xa3:
		return bytecode[:start]
	}
	return bytecode
}

// CompareBytecode compares deployed runtime code to the artifact's hex-encoded
// deployed bytecode.
func CompareBytecode(deployed []byte, artifactHex string) *BytecodeMatch {
	if len(deployed) == 0 {
		return &BytecodeMatch{
			Match:     false,
			MatchType: MatchNone,
			Message:   "No code at address",
		}
	}

	artifact, err := hexutil.Decode(ensure0x(artifactHex))
	if err != nil || len(artifact) == 0 {
		return &BytecodeMatch{
			Match:     false,
			MatchType: MatchNone,
			Message:   "Artifact has no deployed bytecode to compare",
		}
	}

	if bytes.Equal(deployed, artifact) {
		return &BytecodeMatch{
			Match:     true,
			MatchType: MatchFull,
			Message:   "Bytecode matches exactly including metadata",
		}
	}

	if bytes.Equal(StripMetadata(deployed), StripMetadata(artifact)) {
		return &BytecodeMatch{
			Match:     true,
			MatchType: MatchPartial,
			Message:   "Executable code matches, metadata differs (different source paths, comments, or build environment)",
		}
	}

	return &BytecodeMatch{
		Match:     false,
		MatchType: MatchNone,
		Message:   "Bytecode does not match",
	}
}

func ensure0x(s string) string {
	if len(s) >= 2 && s[0] == '0' && (s[1] == 'x' || s[1] == 'X') {
		return s
	}
	return "0x" + s
}
