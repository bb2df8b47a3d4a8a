package evm

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"math/big"
	"reflect"
	"strconv"
	"strings"

	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
)

// ErrInvalidArguments is returned when constructor arguments don't fit the ABI
var ErrInvalidArguments = errors.New("invalid constructor arguments")

var bigIntType = reflect.TypeOf((*big.Int)(nil))

// EncodeConstructorArgs ABI-encodes args against the constructor in abiJSON.
// String arguments are parsed according to the parameter type, so values
// taken from a command line can be passed through unchanged.
func EncodeConstructorArgs(abiJSON json.RawMessage, args []any) ([]byte, error) {
	if len(abiJSON) == 0 {
		if len(args) > 0 {
			return nil, fmt.Errorf("%w: artifact has no ABI but %d arguments were given", ErrInvalidArguments, len(args))
		}
		return nil, nil
	}

	parsed, err := abi.JSON(bytes.NewReader(abiJSON))
	if err != nil {
		return nil, fmt.Errorf("parsing ABI: %w", err)
	}

	inputs := parsed.Constructor.Inputs
	if len(args) != len(inputs) {
		return nil, fmt.Errorf("%w: constructor takes %d arguments, got %d", ErrInvalidArguments, len(inputs), len(args))
	}
	if len(inputs) == 0 {
		return nil, nil
	}

	values := make([]any, len(args))
	for i, arg := range args {
		v, err := coerceArg(inputs[i].Type, arg)
		if err != nil {
			return nil, fmt.Errorf("%w: argument %d (%s %s): %v", ErrInvalidArguments, i, inputs[i].Type.String(), inputs[i].Name, err)
		}
		values[i] = v
	}

	encoded, err := inputs.Pack(values...)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidArguments, err)
	}
	return encoded, nil
}

// coerceArg converts textual and loosely typed values into the Go type the
// ABI packer expects for t. Values already of the right type pass through.
func coerceArg(t abi.Type, v any) (any, error) {
	switch n := v.(type) {
	case int:
		v = strconv.Itoa(n)
	case int64:
		v = strconv.FormatInt(n, 10)
	case uint64:
		v = strconv.FormatUint(n, 10)
	case json.Number:
		v = n.String()
	}

	if n, ok := v.(*big.Int); ok && (t.T == abi.IntTy || t.T == abi.UintTy) {
		if n == nil {
			return nil, errors.New("nil integer")
		}
		if err := checkIntRange(t, n); err != nil {
			return nil, err
		}
		if t.GetType() != bigIntType {
			return parseInteger(t, n.String())
		}
		return n, nil
	}

	s, ok := v.(string)
	if !ok {
		return v, nil
	}
	s = strings.TrimSpace(s)

	switch t.T {
	case abi.StringTy:
		return s, nil

	case abi.BoolTy:
		return strconv.ParseBool(s)

	case abi.AddressTy:
		if !common.IsHexAddress(s) {
			return nil, fmt.Errorf("%q is not an address", s)
		}
		return common.HexToAddress(s), nil

	case abi.IntTy, abi.UintTy:
		return parseInteger(t, s)

	case abi.BytesTy:
		return hexutil.Decode(ensure0x(s))

	case abi.FixedBytesTy, abi.HashTy:
		b, err := hexutil.Decode(ensure0x(s))
		if err != nil {
			return nil, err
		}
		if t.T == abi.HashTy {
			if len(b) != common.HashLength {
				return nil, fmt.Errorf("expected %d bytes, got %d", common.HashLength, len(b))
			}
			return common.BytesToHash(b), nil
		}
		if len(b) != t.Size {
			return nil, fmt.Errorf("expected %d bytes, got %d", t.Size, len(b))
		}
		out := reflect.New(t.GetType()).Elem()
		reflect.Copy(out, reflect.ValueOf(b))
		return out.Interface(), nil

	case abi.SliceTy, abi.ArrayTy:
		return parseList(t, s)
	}

	return nil, fmt.Errorf("cannot parse %s from text", t.String())
}

func parseInteger(t abi.Type, s string) (any, error) {
	n, ok := new(big.Int).SetString(s, 0)
	if !ok {
		return nil, fmt.Errorf("%q is not an integer", s)
	}
	if err := checkIntRange(t, n); err != nil {
		return nil, err
	}

	typ := t.GetType()
	if typ == bigIntType {
		return n, nil
	}

	out := reflect.New(typ).Elem()
	if t.T == abi.UintTy {
		out.SetUint(n.Uint64())
	} else {
		out.SetInt(n.Int64())
	}
	return out.Interface(), nil
}

// checkIntRange rejects values that do not fit the declared width. The
// packer would otherwise reduce wide values modulo 2^256 without an error.
func checkIntRange(t abi.Type, n *big.Int) error {
	if t.T == abi.UintTy {
		if n.Sign() < 0 {
			return fmt.Errorf("%s is negative", n)
		}
		if n.BitLen() > t.Size {
			return fmt.Errorf("%s overflows uint%d", n, t.Size)
		}
		return nil
	}

	limit := new(big.Int).Lsh(big.NewInt(1), uint(t.Size-1))
	lowest := new(big.Int).Neg(limit)
	if n.Cmp(lowest) < 0 || n.Cmp(limit) >= 0 {
		return fmt.Errorf("%s overflows int%d", n, t.Size)
	}
	return nil
}

// parseList parses a JSON array literal such as ["0xabc...","0xdef..."] or [1,2,3]
func parseList(t abi.Type, s string) (any, error) {
	dec := json.NewDecoder(strings.NewReader(s))
	dec.UseNumber()
	var items []any
	if err := dec.Decode(&items); err != nil {
		return nil, fmt.Errorf("expected a JSON array: %v", err)
	}

	var out reflect.Value
	if t.T == abi.ArrayTy {
		if len(items) != t.Size {
			return nil, fmt.Errorf("expected %d elements, got %d", t.Size, len(items))
		}
		out = reflect.New(t.GetType()).Elem()
	} else {
		out = reflect.MakeSlice(t.GetType(), len(items), len(items))
	}

	for i, item := range items {
		if b, ok := item.(bool); ok {
			item = strconv.FormatBool(b)
		}
		v, err := coerceArg(*t.Elem, item)
		if err != nil {
			return nil, fmt.Errorf("element %d: %v", i, err)
		}
		rv := reflect.ValueOf(v)
		if !rv.Type().AssignableTo(out.Index(i).Type()) {
			return nil, fmt.Errorf("element %d: unexpected type %T", i, v)
		}
		out.Index(i).Set(rv)
	}
	return out.Interface(), nil
}
