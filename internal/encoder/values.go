package encoder

import (
	"errors"
	"fmt"
	"math/big"
	"reflect"
	"strconv"
	"strings"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/ethereum/go-ethereum/common/math"
	"github.com/mselser95/typed-signer/pkg/types"
)

var errChecksum = errors.New("bad address checksum")

// ParseAddress accepts a 0x-prefixed (or bare) hex address. All-lower and
// all-upper forms are accepted as is; mixed case must be a valid EIP-55 checksum.
func ParseAddress(s string) (common.Address, error) {
	s = strings.TrimSpace(s)
	if !common.IsHexAddress(s) {
		return common.Address{}, fmt.Errorf("malformed address %q", s)
	}

	addr := common.HexToAddress(s)
	body := s
	if has0xPrefix(body) {
		body = body[2:]
	}
	if strings.ToLower(body) != body && strings.ToUpper(body) != body && addr.Hex()[2:] != body {
		return common.Address{}, fmt.Errorf("%w: %q", errChecksum, s)
	}

	return addr, nil
}

// NormalizeValue converts a caller-supplied Go value into the form the
// EIP-712 encoder consumes for typ, range-checking integers against their width.
func NormalizeValue(typ string, value interface{}) (interface{}, error) {
	if strings.HasSuffix(typ, "[]") {
		return normalizeArray(strings.TrimSuffix(typ, "[]"), value)
	}

	switch typ {
	case "address":
		addr, err := toAddress(value)
		if err != nil {
			return nil, err
		}
		return addr.Hex(), nil
	case "bool":
		b, ok := value.(bool)
		if !ok {
			return nil, mismatch(typ, value)
		}
		return b, nil
	case "string":
		s, ok := value.(string)
		if !ok {
			return nil, mismatch(typ, value)
		}
		return s, nil
	case "bytes":
		b, err := toBytes(value)
		if err != nil {
			return nil, err
		}
		return b, nil
	}

	if strings.HasPrefix(typ, "bytes") {
		size, err := strconv.Atoi(strings.TrimPrefix(typ, "bytes"))
		if err != nil {
			return nil, fmt.Errorf("unsupported type %q", typ)
		}
		b, err := toBytes(value)
		if err != nil {
			return nil, err
		}
		if len(b) != size {
			return nil, fmt.Errorf("%s needs %d bytes, got %d", typ, size, len(b))
		}
		return hexutil.Bytes(b), nil
	}

	if strings.HasPrefix(typ, "uint") || strings.HasPrefix(typ, "int") {
		n, err := toBigInt(value)
		if err != nil {
			return nil, err
		}
		err = checkWidth(typ, n)
		if err != nil {
			return nil, err
		}
		return (*math.HexOrDecimal256)(n), nil
	}

	return nil, fmt.Errorf("unsupported type %q", typ)
}

func normalizeArray(elemType string, value interface{}) (interface{}, error) {
	rv := reflect.ValueOf(value)
	if rv.Kind() != reflect.Slice && rv.Kind() != reflect.Array {
		return nil, mismatch(elemType+"[]", value)
	}

	out := make([]interface{}, rv.Len())
	for i := 0; i < rv.Len(); i++ {
		v, err := NormalizeValue(elemType, rv.Index(i).Interface())
		if err != nil {
			return nil, fmt.Errorf("element %d: %w", i, err)
		}
		out[i] = v
	}
	return out, nil
}

func toAddress(value interface{}) (common.Address, error) {
	switch v := value.(type) {
	case common.Address:
		return v, nil
	case *common.Address:
		if v == nil {
			return common.Address{}, mismatch("address", value)
		}
		return *v, nil
	case string:
		return ParseAddress(v)
	default:
		return common.Address{}, mismatch("address", value)
	}
}

func toBytes(value interface{}) ([]byte, error) {
	switch v := value.(type) {
	case []byte:
		return v, nil
	case hexutil.Bytes:
		return v, nil
	case common.Hash:
		return v.Bytes(), nil
	case [32]byte:
		return v[:], nil
	case string:
		b, err := hexutil.Decode(v)
		if err != nil {
			return nil, fmt.Errorf("decode hex bytes: %w", err)
		}
		return b, nil
	}

	rv := reflect.ValueOf(value)
	if rv.Kind() == reflect.Array && rv.Type().Elem().Kind() == reflect.Uint8 {
		b := make([]byte, rv.Len())
		reflect.Copy(reflect.ValueOf(b), rv)
		return b, nil
	}
	return nil, mismatch("bytes", value)
}

func toBigInt(value interface{}) (*big.Int, error) {
	switch v := value.(type) {
	case *big.Int:
		if v == nil {
			return nil, mismatch("integer", value)
		}
		return new(big.Int).Set(v), nil
	case *math.HexOrDecimal256:
		if v == nil {
			return nil, mismatch("integer", value)
		}
		return new(big.Int).Set((*big.Int)(v)), nil
	case int:
		return big.NewInt(int64(v)), nil
	case int64:
		return big.NewInt(v), nil
	case int32:
		return big.NewInt(int64(v)), nil
	case uint:
		return new(big.Int).SetUint64(uint64(v)), nil
	case uint8:
		return new(big.Int).SetUint64(uint64(v)), nil
	case uint16:
		return new(big.Int).SetUint64(uint64(v)), nil
	case uint32:
		return new(big.Int).SetUint64(uint64(v)), nil
	case uint64:
		return new(big.Int).SetUint64(v), nil
	case string:
		s := strings.TrimSpace(v)
		n, ok := new(big.Int), false
		if has0xPrefix(s) {
			n, ok = n.SetString(s[2:], 16)
		} else {
			n, ok = n.SetString(s, 10)
		}
		if !ok {
			return nil, fmt.Errorf("invalid integer string %q", v)
		}
		return n, nil
	default:
		return nil, mismatch("integer", value)
	}
}

// checkWidth enforces the declared bit width of a uintN/intN value.
func checkWidth(typ string, n *big.Int) error {
	signed := strings.HasPrefix(typ, "int")
	bits, err := strconv.Atoi(strings.TrimPrefix(strings.TrimPrefix(typ, "u"), "int"))
	if err != nil {
		return fmt.Errorf("unsupported type %q", typ)
	}

	if !signed {
		if n.Sign() < 0 || n.BitLen() > bits {
			return fmt.Errorf("value %s does not fit %s", n, typ)
		}
		return nil
	}

	limit := new(big.Int).Lsh(big.NewInt(1), uint(bits-1))
	min := new(big.Int).Neg(limit)
	if n.Cmp(min) < 0 || n.Cmp(limit) >= 0 {
		return fmt.Errorf("value %s does not fit %s", n, typ)
	}
	return nil
}

func has0xPrefix(s string) bool {
	return len(s) >= 2 && s[0] == '0' && (s[1] == 'x' || s[1] == 'X')
}

func mismatch(typ string, value interface{}) error {
	return fmt.Errorf("%T is not a valid %s value", value, typ)
}

func fieldError(field string, err error) error {
	return types.NewError("encode", field, fmt.Errorf("%w: %v", types.ErrFieldTypeMismatch, err))
}
