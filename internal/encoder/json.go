package encoder

import (
	"math/big"

	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/ethereum/go-ethereum/common/math"
	"github.com/ethereum/go-ethereum/signer/core/apitypes"
)

// WireMessage renders a normalized message the way wallets expect it in
// eth_signTypedData_v4: integers as decimal strings, byte strings as 0x hex.
func WireMessage(msg apitypes.TypedDataMessage) map[string]interface{} {
	out := make(map[string]interface{}, len(msg))
	for k, v := range msg {
		out[k] = wireValue(v)
	}
	return out
}

func wireValue(v interface{}) interface{} {
	switch val := v.(type) {
	case *math.HexOrDecimal256:
		return (*big.Int)(val).String()
	case *big.Int:
		return val.String()
	case []byte:
		return hexutil.Encode(val)
	case hexutil.Bytes:
		return val.String()
	case []interface{}:
		out := make([]interface{}, len(val))
		for i := range val {
			out[i] = wireValue(val[i])
		}
		return out
	default:
		return v
	}
}

// WireTypedData returns a copy of td whose message is wire-safe.
func WireTypedData(td apitypes.TypedData) apitypes.TypedData {
	td.Message = WireMessage(td.Message)
	return td
}
