package encoder

import (
	"testing"

	"github.com/ethereum/go-ethereum/signer/core/apitypes"
	"github.com/mselser95/typed-signer/internal/schema"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func TestWireTypedData(t *testing.T) {
	def := loadDefinition(t, schema.SinglePriceUpdate)
	enc := New(zap.NewNop())

	encoded, err := enc.Encode(def, priceDomain(), singlePriceMessage())
	require.NoError(t, err)

	wire := WireTypedData(encoded.TypedData)
	assert.Equal(t, "10050000000", wire.Message["price"])
	assert.Equal(t, "8", wire.Message["decimals"])
	assert.Equal(t, testToken.Hex(), wire.Message["token"])

	// The wire form hashes to the same digest.
	hash, _, err := apitypes.TypedDataAndHash(wire)
	require.NoError(t, err)
	assert.Equal(t, encoded.Digest.Bytes(), hash)

	// The original typed data is left untouched.
	_, isString := encoded.TypedData.Message["price"].(string)
	assert.False(t, isString)
}
