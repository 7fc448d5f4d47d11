package signing

import (
	"errors"
	"testing"

	"github.com/ethereum/go-ethereum/crypto"
	"github.com/mselser95/typed-signer/pkg/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseSignature(t *testing.T) {
	key, err := crypto.HexToECDSA(testKey)
	require.NoError(t, err)

	digest := crypto.Keccak256Hash([]byte("payload"))
	raw, err := crypto.Sign(digest.Bytes(), key)
	require.NoError(t, err)

	t.Run("recovery_id_0_1", func(t *testing.T) {
		sig, err := ParseSignature(raw)
		require.NoError(t, err)
		assert.Equal(t, raw[64]+27, sig.V)

		addr, err := sig.Recover(digest)
		require.NoError(t, err)
		assert.Equal(t, testAccount, addr)
	})

	t.Run("recovery_id_27_28", func(t *testing.T) {
		shifted := append([]byte(nil), raw...)
		shifted[64] += 27
		sig, err := ParseSignature(shifted)
		require.NoError(t, err)
		assert.Equal(t, shifted, sig.Bytes())
		assert.True(t, sig.Complete())
		assert.Len(t, sig.Hex(), 132)
	})

	t.Run("wrong_length", func(t *testing.T) {
		_, err := ParseSignature(raw[:64])
		assert.True(t, errors.Is(err, types.ErrSignerError))
	})

	t.Run("bad_recovery_id", func(t *testing.T) {
		bad := append([]byte(nil), raw...)
		bad[64] = 5
		_, err := ParseSignature(bad)
		assert.True(t, errors.Is(err, types.ErrSignerError))
	})
}

func TestSignature_Complete(t *testing.T) {
	var nilSig *Signature
	assert.False(t, nilSig.Complete())
	assert.False(t, (&Signature{V: 27}).Complete())
	assert.False(t, (&Signature{R: [32]byte{1}, S: [32]byte{1}, V: 1}).Complete())
	assert.True(t, (&Signature{R: [32]byte{1}, S: [32]byte{1}, V: 28}).Complete())
}
