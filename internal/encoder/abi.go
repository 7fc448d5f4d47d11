package encoder

import (
	"fmt"
	"math/big"
	"reflect"

	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/mselser95/typed-signer/pkg/types"
)

//nolint:gochecknoglobals // reflect type constant
var bigIntType = reflect.TypeOf(&big.Int{})

// HashArray returns keccak256(abi.encode(values)) with values encoded as
// arrayType (e.g. "address[]", "uint128[]"). An element that fails its own
// scalar encoding yields ErrArrayEncodingFailure.
func HashArray(arrayType string, values interface{}) (common.Hash, error) {
	t, err := abi.NewType(arrayType, "", nil)
	if err != nil {
		return common.Hash{}, fmt.Errorf("%w: parse %q: %v", types.ErrArrayEncodingFailure, arrayType, err)
	}
	if t.T != abi.SliceTy {
		return common.Hash{}, fmt.Errorf("%w: %q is not a dynamic array", types.ErrArrayEncodingFailure, arrayType)
	}

	value, err := ABIValue(t, values)
	if err != nil {
		return common.Hash{}, fmt.Errorf("%w: %v", types.ErrArrayEncodingFailure, err)
	}

	packed, err := abi.Arguments{{Type: t}}.Pack(value)
	if err != nil {
		return common.Hash{}, fmt.Errorf("%w: pack %s: %v", types.ErrArrayEncodingFailure, arrayType, err)
	}

	return crypto.Keccak256Hash(packed), nil
}

// ABIValue converts value into the Go type go-ethereum's ABI packer expects for t.
func ABIValue(t abi.Type, value interface{}) (interface{}, error) {
	switch t.T {
	case abi.AddressTy:
		return toAddress(value)
	case abi.BoolTy, abi.StringTy:
		rv := reflect.ValueOf(value)
		if !rv.IsValid() || rv.Type() != t.GetType() {
			return nil, mismatch(t.String(), value)
		}
		return value, nil
	case abi.BytesTy:
		return toBytes(value)
	case abi.FixedBytesTy:
		b, err := toBytes(value)
		if err != nil {
			return nil, err
		}
		if len(b) != t.Size {
			return nil, fmt.Errorf("%s needs %d bytes, got %d", t.String(), t.Size, len(b))
		}
		arr := reflect.New(t.GetType()).Elem()
		reflect.Copy(arr, reflect.ValueOf(b))
		return arr.Interface(), nil
	case abi.UintTy, abi.IntTy:
		return abiInteger(t, value)
	case abi.SliceTy, abi.ArrayTy:
		return abiSequence(t, value)
	default:
		return nil, fmt.Errorf("unsupported ABI type %s", t.String())
	}
}

func abiInteger(t abi.Type, value interface{}) (interface{}, error) {
	n, err := toBigInt(value)
	if err != nil {
		return nil, err
	}
	err = checkWidth(t.String(), n)
	if err != nil {
		return nil, err
	}

	goType := t.GetType()
	if goType == bigIntType {
		return n, nil
	}
	if t.T == abi.UintTy {
		return reflect.ValueOf(n.Uint64()).Convert(goType).Interface(), nil
	}
	return reflect.ValueOf(n.Int64()).Convert(goType).Interface(), nil
}

func abiSequence(t abi.Type, value interface{}) (interface{}, error) {
	rv := reflect.ValueOf(value)
	if rv.Kind() != reflect.Slice && rv.Kind() != reflect.Array {
		return nil, mismatch(t.String(), value)
	}

	var out reflect.Value
	if t.T == abi.SliceTy {
		out = reflect.MakeSlice(t.GetType(), rv.Len(), rv.Len())
	} else {
		if rv.Len() != t.Size {
			return nil, fmt.Errorf("%s needs %d elements, got %d", t.String(), t.Size, rv.Len())
		}
		out = reflect.New(t.GetType()).Elem()
	}

	for i := 0; i < rv.Len(); i++ {
		elem, err := ABIValue(*t.Elem, rv.Index(i).Interface())
		if err != nil {
			return nil, fmt.Errorf("element %d: %w", i, err)
		}
		out.Index(i).Set(reflect.ValueOf(elem))
	}
	return out.Interface(), nil
}
