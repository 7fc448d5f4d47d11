package signer

import (
	"context"
	"crypto/ecdsa"
	"fmt"
	"math/big"
	"strings"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/ethereum/go-ethereum/signer/core/apitypes"
	"github.com/mselser95/typed-signer/pkg/types"
	"go.uber.org/zap"
)

// ChainIDReader reports the chain id of a connected node.
type ChainIDReader interface {
	ChainID(ctx context.Context) (*big.Int, error)
}

// KeySigner signs typed data with a local secp256k1 private key.
type KeySigner struct {
	key     *ecdsa.PrivateKey
	address common.Address
	chainID *big.Int
	chain   ChainIDReader
	logger  *zap.Logger
}

// KeyConfig holds KeySigner configuration.
type KeyConfig struct {
	PrivateKey string // hex, with or without 0x
	// ChainID pins the chain id. When nil, Chain is asked.
	ChainID *big.Int
	Chain   ChainIDReader
	Logger  *zap.Logger
}

// NewKeySigner parses the private key and derives the signer address.
func NewKeySigner(cfg *KeyConfig) (*KeySigner, error) {
	if cfg.PrivateKey == "" {
		return nil, fmt.Errorf("private key cannot be empty")
	}

	key, err := crypto.HexToECDSA(strings.TrimPrefix(cfg.PrivateKey, "0x"))
	if err != nil {
		return nil, fmt.Errorf("parse private key: %w", err)
	}

	return &KeySigner{
		key:     key,
		address: crypto.PubkeyToAddress(key.PublicKey),
		chainID: cfg.ChainID,
		chain:   cfg.Chain,
		logger:  cfg.Logger,
	}, nil
}

// Connect returns the key's address. A local key is always connected.
func (k *KeySigner) Connect(_ context.Context) (common.Address, error) {
	return k.address, nil
}

// Address returns the signer address.
func (k *KeySigner) Address() common.Address {
	return k.address
}

// ChainID returns the pinned chain id or asks the node.
func (k *KeySigner) ChainID(ctx context.Context) (*big.Int, error) {
	if k.chainID != nil && k.chainID.Sign() > 0 {
		return new(big.Int).Set(k.chainID), nil
	}
	if k.chain == nil {
		return nil, fmt.Errorf("%w: no chain id configured and no node to ask", types.ErrSignerUnavailable)
	}

	id, err := k.chain.ChainID(ctx)
	if err != nil {
		return nil, fmt.Errorf("%w: chain id: %v", types.ErrSignerUnavailable, err)
	}
	return id, nil
}

// SignTypedData hashes td per EIP-712 and returns a 65-byte r||s||v signature with v in {27, 28}.
func (k *KeySigner) SignTypedData(_ context.Context, td apitypes.TypedData) ([]byte, error) {
	digest, _, err := apitypes.TypedDataAndHash(td)
	if err != nil {
		return nil, fmt.Errorf("%w: hash typed data: %v", types.ErrSignerError, err)
	}

	sig, err := crypto.Sign(digest, k.key)
	if err != nil {
		return nil, fmt.Errorf("%w: sign: %v", types.ErrSignerError, err)
	}
	sig[64] += 27

	k.logger.Debug("typed-data-signed",
		zap.String("signer", k.address.Hex()),
		zap.String("primary-type", td.PrimaryType),
		zap.String("digest", common.BytesToHash(digest).Hex()))

	return sig, nil
}

// PrivateKey exposes the key for transaction signing by the same account.
func (k *KeySigner) PrivateKey() *ecdsa.PrivateKey {
	return k.key
}
