package evm

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"math/big"
	"strings"
	"testing"

	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const tokenABI = `[
	{"type":"constructor","stateMutability":"nonpayable","inputs":[
		{"name":"owner","type":"address"},
		{"name":"supply","type":"uint256"},
		{"name":"decimals","type":"uint8"},
		{"name":"paused","type":"bool"},
		{"name":"symbol","type":"string"},
		{"name":"salt","type":"bytes32"},
		{"name":"minters","type":"address[]"}
	]},
	{"type":"function","name":"totalSupply","inputs":[],"outputs":[{"type":"uint256"}]}
]`

func TestEncodeConstructorArgs(t *testing.T) {
	owner := "0x00000000000000000000000000000000000000aA"
	salt := "0x11" + strings.Repeat("00", 31)

	t.Run("string arguments", func(t *testing.T) {
		got, err := EncodeConstructorArgs(json.RawMessage(tokenABI), []any{
			owner, "1000000", "18", "false", "RED", salt, `["` + owner + `"]`,
		})
		require.NoError(t, err)

		parsed, err := abi.JSON(bytes.NewReader([]byte(tokenABI)))
		require.NoError(t, err)
		var saltBytes [32]byte
		saltBytes[0] = 0x11
		want, err := parsed.Constructor.Inputs.Pack(
			common.HexToAddress(owner),
			big.NewInt(1000000),
			uint8(18),
			false,
			"RED",
			saltBytes,
			[]common.Address{common.HexToAddress(owner)},
		)
		require.NoError(t, err)
		assert.Equal(t, want, got)
	})

	t.Run("typed arguments pass through", func(t *testing.T) {
		_, err := EncodeConstructorArgs(json.RawMessage(tokenABI), []any{
			common.HexToAddress(owner), big.NewInt(5), 6, true, "RED", salt, []common.Address{},
		})
		require.NoError(t, err)
	})

	t.Run("wrong argument count", func(t *testing.T) {
		_, err := EncodeConstructorArgs(json.RawMessage(tokenABI), []any{owner})
		require.Error(t, err)
		assert.True(t, errors.Is(err, ErrInvalidArguments))
	})

	t.Run("bad address", func(t *testing.T) {
		_, err := EncodeConstructorArgs(json.RawMessage(tokenABI), []any{
			"not-an-address", "1", "18", "false", "RED", salt, "[]",
		})
		require.Error(t, err)
		assert.True(t, errors.Is(err, ErrInvalidArguments))
		assert.Contains(t, err.Error(), "owner")
	})

	t.Run("uint8 overflow", func(t *testing.T) {
		_, err := EncodeConstructorArgs(json.RawMessage(tokenABI), []any{
			owner, "1", "256", "false", "RED", salt, "[]",
		})
		require.Error(t, err)
		assert.True(t, errors.Is(err, ErrInvalidArguments))
	})

	t.Run("wide integers are range checked", func(t *testing.T) {
		two := big.NewInt(2)
		pow := func(n int64) *big.Int { return new(big.Int).Exp(two, big.NewInt(n), nil) }
		minus1 := func(n *big.Int) *big.Int { return new(big.Int).Sub(n, big.NewInt(1)) }

		tests := []struct {
			typ   string
			value any
			ok    bool
		}{
			{"uint128", minus1(pow(128)).String(), true},
			{"uint128", pow(128).String(), false},
			{"uint128", new(big.Int).Add(pow(128), big.NewInt(1)).String(), false},
			{"uint256", minus1(pow(256)).String(), true},
			{"uint256", pow(256).String(), false},
			{"uint256", new(big.Int).Add(pow(256), big.NewInt(5)).String(), false},
			{"int128", minus1(pow(127)).String(), true},
			{"int128", pow(127).String(), false},
			{"int128", new(big.Int).Neg(pow(127)).String(), true},
			{"int128", new(big.Int).Neg(new(big.Int).Add(pow(127), big.NewInt(1))).String(), false},
			{"int256", new(big.Int).Neg(pow(255)).String(), true},
			{"int256", pow(255).String(), false},
			{"uint256", pow(256), false},
			{"uint256", big.NewInt(-1), false},
			{"uint256", pow(200), true},
			{"int128", pow(127), false},
			{"uint8", big.NewInt(255), true},
			{"uint8", big.NewInt(256), false},
		}

		for _, tt := range tests {
			name := fmt.Sprintf("%s %v %T", tt.typ, tt.value, tt.value)
			t.Run(name, func(t *testing.T) {
				abiJSON := fmt.Sprintf(`[{"type":"constructor","inputs":[{"name":"x","type":%q}]}]`, tt.typ)
				got, err := EncodeConstructorArgs(json.RawMessage(abiJSON), []any{tt.value})
				if !tt.ok {
					require.Error(t, err)
					assert.True(t, errors.Is(err, ErrInvalidArguments))
					return
				}
				require.NoError(t, err)
				assert.Len(t, got, 32)
			})
		}
	})

	t.Run("negative uint", func(t *testing.T) {
		_, err := EncodeConstructorArgs(json.RawMessage(tokenABI), []any{
			owner, "-1", "18", "false", "RED", salt, "[]",
		})
		require.Error(t, err)
		assert.True(t, errors.Is(err, ErrInvalidArguments))
	})

	t.Run("short bytes32", func(t *testing.T) {
		_, err := EncodeConstructorArgs(json.RawMessage(tokenABI), []any{
			owner, "1", "18", "false", "RED", "0x1234", "[]",
		})
		require.Error(t, err)
		assert.True(t, errors.Is(err, ErrInvalidArguments))
	})

	t.Run("no constructor", func(t *testing.T) {
		got, err := EncodeConstructorArgs(json.RawMessage(`[]`), nil)
		require.NoError(t, err)
		assert.Empty(t, got)

		_, err = EncodeConstructorArgs(json.RawMessage(`[]`), []any{"1"})
		require.Error(t, err)
		assert.True(t, errors.Is(err, ErrInvalidArguments))
	})

	t.Run("hex integer", func(t *testing.T) {
		abiJSON := `[{"type":"constructor","inputs":[{"name":"x","type":"int64"}]}]`
		got, err := EncodeConstructorArgs(json.RawMessage(abiJSON), []any{"0x10"})
		require.NoError(t, err)
		require.Len(t, got, 32)
		assert.Equal(t, byte(0x10), got[31])
	})
}
