package schema

import (
	"fmt"
	"time"
)

// Builtin schema names.
const (
	SinglePriceUpdate = "single-price-update"
	BatchPriceUpdate  = "batch-price-update"
	BetPermit         = "bet-permit"
	SellPermit        = "sell-permit"
	BuyPermit         = "buy-permit"
	CancelPermit      = "cancel-permit"
	MetaTransaction   = "meta-transaction"
)

// Default validity windows.
const (
	PriceValidity  = 60 * time.Second
	PermitValidity = time.Hour
)

// PermitKinds maps the short permit kind to its schema name.
//
//nolint:gochecknoglobals // read-only lookup table
var PermitKinds = map[string]string{
	"bet":    BetPermit,
	"sell":   SellPermit,
	"buy":    BuyPermit,
	"cancel": CancelPermit,
}

// RegisterDefaults registers every message kind the engine ships with.
func RegisterDefaults(r *Registry) error {
	defs := []Definition{
		singlePriceDefinition(),
		batchPriceDefinition(),
		permitDefinition(BetPermit, "BetPermit", "betWithPermit",
			Field{Name: "value", Type: "uint256"},
			Field{Name: "betOn", Type: "uint256"}),
		permitDefinition(SellPermit, "SellPermit", "sellWithPermit",
			Field{Name: "shares", Type: "uint256"},
			Field{Name: "price", Type: "uint256"}),
		permitDefinition(BuyPermit, "BuyPermit", "buyWithPermit",
			Field{Name: "listNo", Type: "uint256"},
			Field{Name: "listedOwner", Type: "address"}),
		permitDefinition(CancelPermit, "CancelPermit", "cancelWithPermit",
			Field{Name: "listNo", Type: "uint256"}),
		metaTransactionDefinition(),
	}

	for _, def := range defs {
		err := r.Register(def)
		if err != nil {
			return fmt.Errorf("register defaults: %w", err)
		}
	}
	return nil
}

func singlePriceDefinition() Definition {
	return Definition{
		Name:        SinglePriceUpdate,
		Version:     "1",
		PrimaryType: "PriceSingle",
		Fields: []Field{
			{Name: "token", Type: "address"},
			{Name: "price", Type: "uint128"},
			{Name: "decimals", Type: "uint8"},
			{Name: "validUntil", Type: "uint64"},
			{Name: "nonce", Type: "uint256"},
		},
		Domain: DomainTemplate{
			Name:              "SinglePriceAggregator",
			Version:           "1",
			ChainID:           true,
			VerifyingContract: true,
		},
		Nonce:           NoncePolicy{Strategy: NonceRandom, Field: "nonce"},
		DeadlineField:   "validUntil",
		DefaultValidity: PriceValidity,
		Method: MethodShape{
			Name: "updatePriceSigned",
			Args: []Arg{
				{Name: "token", Type: "address", Source: ArgField, Key: "token"},
				{Name: "price", Type: "uint128", Source: ArgField, Key: "price"},
				{Name: "decimals", Type: "uint8", Source: ArgField, Key: "decimals"},
				{Name: "validUntil", Type: "uint64", Source: ArgField, Key: "validUntil"},
				{Name: "nonce", Type: "uint256", Source: ArgField, Key: "nonce"},
				{Name: "signature", Type: "bytes", Source: ArgSignature},
			},
		},
	}
}

func batchPriceDefinition() Definition {
	return Definition{
		Name:        BatchPriceUpdate,
		Version:     "1",
		PrimaryType: "PriceBatch",
		Fields: []Field{
			{Name: "tokensHash", Type: "bytes32"},
			{Name: "pricesHash", Type: "bytes32"},
			{Name: "decimalsHash", Type: "bytes32"},
			{Name: "namesHash", Type: "bytes32"},
			{Name: "validUntil", Type: "uint64"},
			{Name: "nonce", Type: "uint256"},
		},
		Domain: DomainTemplate{
			Name:              "PriceAggregator",
			Version:           "1",
			ChainID:           true,
			VerifyingContract: true,
		},
		ArrayHashes: []ArrayHash{
			{Field: "tokensHash", Source: "tokens", Type: "address[]"},
			{Field: "pricesHash", Source: "prices", Type: "uint128[]"},
			{Field: "decimalsHash", Source: "decimalsArray", Type: "uint8[]"},
			{Field: "namesHash", Source: "names", Type: "string[]"},
		},
		Nonce:           NoncePolicy{Strategy: NonceRandom, Field: "nonce"},
		DeadlineField:   "validUntil",
		DefaultValidity: PriceValidity,
		Method: MethodShape{
			Name: "updatePricesSigned",
			Args: []Arg{
				{Name: "tokens", Type: "address[]", Source: ArgArray, Key: "tokens"},
				{Name: "prices", Type: "uint128[]", Source: ArgArray, Key: "prices"},
				{Name: "decimalsArray", Type: "uint8[]", Source: ArgArray, Key: "decimalsArray"},
				{Name: "names", Type: "string[]", Source: ArgArray, Key: "names"},
				{Name: "validUntil", Type: "uint64", Source: ArgField, Key: "validUntil"},
				{Name: "nonce", Type: "uint256", Source: ArgField, Key: "nonce"},
				{Name: "signature", Type: "bytes", Source: ArgSignature},
			},
		},
	}
}

// permitDefinition builds one Wager permit. Permits differ only in the fields
// between (user, owner) and (nonce, deadline).
func permitDefinition(name string, primaryType string, method string, body ...Field) Definition {
	fields := []Field{
		{Name: "user", Type: "address"},
		{Name: "owner", Type: "address"},
	}
	fields = append(fields, body...)
	fields = append(fields,
		Field{Name: "nonce", Type: "uint256"},
		Field{Name: "deadline", Type: "uint256"},
	)

	args := make([]Arg, 0, len(fields)+3)
	for _, f := range fields {
		if f.Name == "nonce" {
			continue
		}
		args = append(args, Arg{Name: f.Name, Type: f.Type, Source: ArgField, Key: f.Name})
	}
	args = append(args,
		Arg{Name: "v", Type: "uint8", Source: ArgV},
		Arg{Name: "r", Type: "bytes32", Source: ArgR},
		Arg{Name: "s", Type: "bytes32", Source: ArgS},
	)

	return Definition{
		Name:        name,
		Version:     "1",
		PrimaryType: primaryType,
		Fields:      fields,
		Domain: DomainTemplate{
			Name:              "Wager",
			Version:           "1",
			ChainID:           true,
			VerifyingContract: true,
		},
		Nonce: NoncePolicy{
			Strategy:      NonceSequential,
			Field:         "nonce",
			CounterMethod: "nonces",
			CounterKey:    "user",
		},
		DeadlineField:   "deadline",
		DefaultValidity: PermitValidity,
		IdentityField:   "user",
		Method:          MethodShape{Name: method, Args: args},
	}
}

func metaTransactionDefinition() Definition {
	return Definition{
		Name:        MetaTransaction,
		Version:     "1",
		PrimaryType: "MetaTransaction",
		Fields: []Field{
			{Name: "nonce", Type: "uint256"},
			{Name: "from", Type: "address"},
			{Name: "functionSignature", Type: "bytes"},
		},
		Domain: DomainTemplate{
			Version:           "1",
			VerifyingContract: true,
			Salt:              true,
			SaltFromChainID:   true,
			NameFromContract:  true,
		},
		Nonce: NoncePolicy{
			Strategy:      NonceSequential,
			Field:         "nonce",
			CounterMethod: "getNonce",
			CounterKey:    "from",
		},
		IdentityField: "from",
		Method: MethodShape{
			Name: "executeMetaTransaction",
			Args: []Arg{
				{Name: "userAddress", Type: "address", Source: ArgField, Key: "from"},
				{Name: "functionSignature", Type: "bytes", Source: ArgField, Key: "functionSignature"},
				{Name: "sigV", Type: "uint8", Source: ArgV},
				{Name: "sigR", Type: "bytes32", Source: ArgR},
				{Name: "sigS", Type: "bytes32", Source: ArgS},
			},
		},
	}
}
