package signing

import (
	"fmt"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/mselser95/typed-signer/pkg/types"
)

// Signature is a secp256k1 signature split into its components, with v in {27, 28}.
type Signature struct {
	R      [32]byte
	S      [32]byte
	V      uint8
	Signer common.Address
}

// ParseSignature splits a 65-byte r||s||v signature. v may be 0/1 or 27/28.
func ParseSignature(b []byte) (*Signature, error) {
	if len(b) != crypto.SignatureLength {
		return nil, fmt.Errorf("%w: signature is %d bytes, want %d", types.ErrSignerError, len(b), crypto.SignatureLength)
	}

	sig := &Signature{V: b[64]}
	copy(sig.R[:], b[:32])
	copy(sig.S[:], b[32:64])
	if sig.V < 27 {
		sig.V += 27
	}
	if sig.V != 27 && sig.V != 28 {
		return nil, fmt.Errorf("%w: invalid recovery id %d", types.ErrSignerError, b[64])
	}
	return sig, nil
}

// Bytes returns the 65-byte compact form r||s||v.
func (s *Signature) Bytes() []byte {
	out := make([]byte, 0, crypto.SignatureLength)
	out = append(out, s.R[:]...)
	out = append(out, s.S[:]...)
	return append(out, s.V)
}

// Hex returns the compact form as 0x hex.
func (s *Signature) Hex() string {
	return hexutil.Encode(s.Bytes())
}

// Complete reports whether every component is present.
func (s *Signature) Complete() bool {
	if s == nil {
		return false
	}
	return s.R != [32]byte{} && s.S != [32]byte{} && (s.V == 27 || s.V == 28)
}

// Recover returns the address that produced this signature over digest.
func (s *Signature) Recover(digest common.Hash) (common.Address, error) {
	raw := s.Bytes()
	raw[64] -= 27

	pub, err := crypto.SigToPub(digest.Bytes(), raw)
	if err != nil {
		return common.Address{}, fmt.Errorf("%w: recover signer: %v", types.ErrSignerError, err)
	}
	return crypto.PubkeyToAddress(*pub), nil
}
