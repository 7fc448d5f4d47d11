package encoder

import (
	"fmt"
	"math/big"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/ethereum/go-ethereum/common/math"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/ethereum/go-ethereum/signer/core/apitypes"
	"github.com/mselser95/typed-signer/internal/schema"
	"github.com/mselser95/typed-signer/pkg/types"
	"go.uber.org/zap"
)

// Encoded is the full encoding of one (schema, domain, message) triple.
type Encoded struct {
	TypedData       apitypes.TypedData
	StructHash      common.Hash
	DomainSeparator common.Hash
	Digest          common.Hash
}

// Encoder turns schema-typed messages into EIP-712 typed data and hashes.
type Encoder struct {
	logger *zap.Logger
}

// New creates an Encoder.
func New(logger *zap.Logger) *Encoder {
	return &Encoder{logger: logger}
}

// Encode builds the typed data and every hash a signer or verifier needs.
func (e *Encoder) Encode(def *schema.Definition, domain schema.Domain, msg schema.Message) (*Encoded, error) {
	start := time.Now()

	td, err := e.TypedData(def, domain, msg)
	if err != nil {
		EncodeErrorsTotal.WithLabelValues(def.Name).Inc()
		return nil, err
	}

	structHash, err := td.HashStruct(td.PrimaryType, td.Message)
	if err != nil {
		EncodeErrorsTotal.WithLabelValues(def.Name).Inc()
		return nil, types.NewError("hash-struct", def.PrimaryType, fmt.Errorf("%w: %v", types.ErrFieldTypeMismatch, err))
	}

	domainSeparator, err := td.HashStruct(schema.DomainType, td.Domain.Map())
	if err != nil {
		EncodeErrorsTotal.WithLabelValues(def.Name).Inc()
		return nil, types.NewError("hash-domain", schema.DomainType, fmt.Errorf("%w: %v", types.ErrFieldTypeMismatch, err))
	}

	enc := &Encoded{
		TypedData:       td,
		StructHash:      common.BytesToHash(structHash),
		DomainSeparator: common.BytesToHash(domainSeparator),
	}
	enc.Digest = Digest(enc.DomainSeparator, enc.StructHash)

	EncodeDuration.WithLabelValues(def.Name).Observe(time.Since(start).Seconds())
	e.logger.Debug("typed-data-encoded",
		zap.String("schema", def.Name),
		zap.String("struct-hash", enc.StructHash.Hex()),
		zap.String("digest", enc.Digest.Hex()))

	return enc, nil
}

// StructHash returns hashStruct(message) for the schema's primary type. The
// domain must resolve even though it does not enter the hash.
func (e *Encoder) StructHash(def *schema.Definition, domain schema.Domain, msg schema.Message) (common.Hash, error) {
	td, err := e.TypedData(def, domain, msg)
	if err != nil {
		return common.Hash{}, err
	}

	h, err := td.HashStruct(td.PrimaryType, td.Message)
	if err != nil {
		return common.Hash{}, types.NewError("hash-struct", def.PrimaryType, fmt.Errorf("%w: %v", types.ErrFieldTypeMismatch, err))
	}
	return common.BytesToHash(h), nil
}

// DomainSeparator returns hashStruct(EIP712Domain) for the resolved domain.
func (e *Encoder) DomainSeparator(def *schema.Definition, domain schema.Domain) (common.Hash, error) {
	d, err := ResolveDomain(def.Domain, domain)
	if err != nil {
		return common.Hash{}, err
	}

	td := apitypes.TypedData{Types: def.Types(), Domain: d}
	h, err := td.HashStruct(schema.DomainType, d.Map())
	if err != nil {
		return common.Hash{}, types.NewError("hash-domain", schema.DomainType, fmt.Errorf("%w: %v", types.ErrFieldTypeMismatch, err))
	}
	return common.BytesToHash(h), nil
}

// TypedData assembles the apitypes structure handed to an external signer.
func (e *Encoder) TypedData(def *schema.Definition, domain schema.Domain, msg schema.Message) (apitypes.TypedData, error) {
	d, err := ResolveDomain(def.Domain, domain)
	if err != nil {
		return apitypes.TypedData{}, err
	}

	message, err := e.message(def, msg)
	if err != nil {
		return apitypes.TypedData{}, err
	}

	return apitypes.TypedData{
		Types:       def.Types(),
		PrimaryType: def.PrimaryType,
		Domain:      d,
		Message:     message,
	}, nil
}

// Digest composes keccak256(0x19 0x01 || domainSeparator || structHash).
func Digest(domainSeparator common.Hash, structHash common.Hash) common.Hash {
	return crypto.Keccak256Hash([]byte{0x19, 0x01}, domainSeparator.Bytes(), structHash.Bytes())
}

// ResolveDomain fills the template with request-time values.
func ResolveDomain(tmpl schema.DomainTemplate, domain schema.Domain) (apitypes.TypedDataDomain, error) {
	d := apitypes.TypedDataDomain{
		Name:    tmpl.Name,
		Version: tmpl.Version,
	}
	if domain.Name != "" {
		d.Name = domain.Name
	}
	if domain.Version != "" && tmpl.Version != "" {
		d.Version = domain.Version
	}
	if tmpl.NameFromContract && d.Name == "" {
		return d, domainError("name", "contract name required")
	}

	if tmpl.ChainID {
		if domain.ChainID == nil || domain.ChainID.Sign() <= 0 {
			return d, domainError("chainId", "positive chain id required")
		}
		d.ChainId = (*math.HexOrDecimal256)(domain.ChainID)
	}

	if tmpl.VerifyingContract {
		if domain.VerifyingContract == (common.Address{}) {
			return d, domainError("verifyingContract", "verifying contract required")
		}
		d.VerifyingContract = domain.VerifyingContract.Hex()
	}

	if tmpl.Salt {
		switch {
		case domain.Salt != nil:
			d.Salt = domain.Salt.Hex()
		case tmpl.SaltFromChainID && domain.ChainID != nil && domain.ChainID.Sign() > 0:
			d.Salt = ChainSalt(domain.ChainID).Hex()
		default:
			return d, domainError("salt", "salt required")
		}
	}

	return d, nil
}

// ChainSalt left-pads the chain id to 32 bytes.
func ChainSalt(chainID *big.Int) common.Hash {
	return common.BigToHash(chainID)
}

func (e *Encoder) message(def *schema.Definition, msg schema.Message) (apitypes.TypedDataMessage, error) {
	allowed := make(map[string]bool)
	for _, k := range def.InputKeys() {
		allowed[k] = true
	}
	for k := range msg {
		if !allowed[k] {
			return nil, fieldError(k, fmt.Errorf("not declared by %s", def.ID()))
		}
	}

	out := make(apitypes.TypedDataMessage, len(def.Fields))
	for _, f := range def.Fields {
		if ah, ok := def.ArrayHashFor(f.Name); ok {
			raw, present := msg[ah.Source]
			if !present {
				return nil, fieldError(ah.Source, fmt.Errorf("missing array"))
			}
			h, err := HashArray(ah.Type, raw)
			if err != nil {
				return nil, types.NewError("encode", ah.Source, err)
			}
			out[f.Name] = hexutil.Bytes(h.Bytes())
			continue
		}

		raw, present := msg[f.Name]
		if !present {
			return nil, fieldError(f.Name, fmt.Errorf("missing value"))
		}
		v, err := NormalizeValue(f.Type, raw)
		if err != nil {
			return nil, fieldError(f.Name, err)
		}
		out[f.Name] = v
	}

	return out, nil
}

func domainError(field string, msg string) error {
	return types.NewError("resolve-domain", field, fmt.Errorf("%w: %s", types.ErrFieldTypeMismatch, msg))
}
