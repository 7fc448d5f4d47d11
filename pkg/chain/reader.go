package chain

import (
	"context"
	"errors"
	"fmt"
	"math/big"
	"time"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"
	"github.com/mselser95/typed-signer/pkg/cache"
	"github.com/mselser95/typed-signer/pkg/types"
	"go.uber.org/zap"
)

const defaultNameTTL = 10 * time.Minute

// Caller executes read-only contract calls. *ethclient.Client satisfies it.
type Caller interface {
	CallContract(ctx context.Context, msg ethereum.CallMsg, blockNumber *big.Int) ([]byte, error)
}

// PriceData is one aggregator record.
type PriceData struct {
	Price       *big.Int `json:"price"`
	LastUpdated uint64   `json:"lastUpdated"`
	Decimals    uint8    `json:"decimals"`
	Name        string   `json:"name,omitempty"`
}

// rawPriceData mirrors the getRawPriceData tuple.
type rawPriceData struct {
	Price       *big.Int
	LastUpdated uint64
	Decimals    uint8
	Name        string
}

// Reader performs pre-flight reads. It never sends transactions.
type Reader struct {
	caller  Caller
	names   cache.Cache
	nameTTL time.Duration
	logger  *zap.Logger
}

// ReaderConfig holds Reader configuration.
type ReaderConfig struct {
	Caller  Caller
	Cache   cache.Cache // optional; caches contract names
	NameTTL time.Duration
	Logger  *zap.Logger
}

// NewReader creates a Reader.
func NewReader(cfg *ReaderConfig) (*Reader, error) {
	if cfg.Caller == nil {
		return nil, errors.New("caller cannot be nil")
	}
	if cfg.Logger == nil {
		return nil, errors.New("logger cannot be nil")
	}

	ttl := cfg.NameTTL
	if ttl == 0 {
		ttl = defaultNameTTL
	}

	return &Reader{
		caller:  cfg.Caller,
		names:   cfg.Cache,
		nameTTL: ttl,
		logger:  cfg.Logger,
	}, nil
}

// Call invokes method on contract and returns the decoded outputs.
func (r *Reader) Call(ctx context.Context, contract common.Address, contractABI abi.ABI, method string, args ...interface{}) ([]interface{}, error) {
	m, ok := contractABI.Methods[method]
	if !ok {
		return nil, fmt.Errorf("%w: method %q not in ABI", types.ErrChainRead, method)
	}
	return r.callMethod(ctx, contract, m, args...)
}

func (r *Reader) callMethod(ctx context.Context, contract common.Address, m abi.Method, args ...interface{}) ([]interface{}, error) {
	start := time.Now()

	packed, err := m.Inputs.Pack(args...)
	if err != nil {
		ChainCallsTotal.WithLabelValues(m.Name, "error").Inc()
		return nil, fmt.Errorf("%w: pack %s: %v", types.ErrChainRead, m.Name, err)
	}
	data := append(append([]byte{}, m.ID...), packed...)

	result, err := r.caller.CallContract(ctx, ethereum.CallMsg{To: &contract, Data: data}, nil)
	ChainCallDuration.WithLabelValues(m.Name).Observe(time.Since(start).Seconds())
	if err != nil {
		ChainCallsTotal.WithLabelValues(m.Name, "error").Inc()
		return nil, fmt.Errorf("%w: %s on %s: %v", types.ErrChainRead, m.Name, contract.Hex(), err)
	}
	if len(result) == 0 && len(m.Outputs) > 0 {
		ChainCallsTotal.WithLabelValues(m.Name, "error").Inc()
		return nil, fmt.Errorf("%w: %s on %s returned no data", types.ErrChainRead, m.Name, contract.Hex())
	}

	out, err := m.Outputs.Unpack(result)
	if err != nil {
		ChainCallsTotal.WithLabelValues(m.Name, "error").Inc()
		return nil, fmt.Errorf("%w: unpack %s: %v", types.ErrChainRead, m.Name, err)
	}

	ChainCallsTotal.WithLabelValues(m.Name, "ok").Inc()
	r.logger.Debug("contract-call",
		zap.String("contract", contract.Hex()),
		zap.String("method", m.Name),
		zap.Duration("took", time.Since(start)))

	return out, nil
}

// GetPrice reads (price, lastUpdated, decimals) for token.
func (r *Reader) GetPrice(ctx context.Context, aggregator common.Address, token common.Address) (*PriceData, error) {
	out, err := r.Call(ctx, aggregator, aggregatorABI, "getPrice", token)
	if err != nil {
		return nil, err
	}
	if len(out) != 3 {
		return nil, fmt.Errorf("%w: getPrice returned %d values", types.ErrChainRead, len(out))
	}

	return &PriceData{
		Price:       *abi.ConvertType(out[0], new(*big.Int)).(**big.Int),
		LastUpdated: *abi.ConvertType(out[1], new(uint64)).(*uint64),
		Decimals:    *abi.ConvertType(out[2], new(uint8)).(*uint8),
	}, nil
}

// GetRawPriceData reads the full stored record for token, including its name.
func (r *Reader) GetRawPriceData(ctx context.Context, aggregator common.Address, token common.Address) (*PriceData, error) {
	out, err := r.Call(ctx, aggregator, aggregatorABI, "getRawPriceData", token)
	if err != nil {
		return nil, err
	}
	if len(out) != 1 {
		return nil, fmt.Errorf("%w: getRawPriceData returned %d values", types.ErrChainRead, len(out))
	}

	raw := *abi.ConvertType(out[0], new(rawPriceData)).(*rawPriceData)
	return &PriceData{
		Price:       raw.Price,
		LastUpdated: raw.LastUpdated,
		Decimals:    raw.Decimals,
		Name:        raw.Name,
	}, nil
}

// CounterNonce reads a sequential nonce via method(account).
func (r *Reader) CounterNonce(ctx context.Context, contract common.Address, method string, account common.Address) (*big.Int, error) {
	out, err := r.callMethod(ctx, contract, counterMethod(method), account)
	if err != nil {
		return nil, err
	}
	return *abi.ConvertType(out[0], new(*big.Int)).(**big.Int), nil
}

// ContractName reads the contract's name(), cached for NameTTL.
func (r *Reader) ContractName(ctx context.Context, contract common.Address) (string, error) {
	key := "name:" + contract.Hex()
	if r.names != nil {
		if v, ok := r.names.Get(key); ok {
			if name, ok := v.(string); ok {
				return name, nil
			}
		}
	}

	out, err := r.Call(ctx, contract, erc20ABI, "name")
	if err != nil {
		return "", err
	}
	name := *abi.ConvertType(out[0], new(string)).(*string)

	if r.names != nil {
		r.names.Set(key, name, r.nameTTL)
	}
	return name, nil
}

// PriceFeed binds the reader to one aggregator for cooldown checks.
func (r *Reader) PriceFeed(aggregator common.Address) *PriceFeed {
	return &PriceFeed{reader: r, aggregator: aggregator}
}

// PriceFeed reports when each token's price was last written.
type PriceFeed struct {
	reader     *Reader
	aggregator common.Address
}

// LastUpdated returns the token's last update as unix seconds, 0 if never.
func (p *PriceFeed) LastUpdated(ctx context.Context, token common.Address) (uint64, error) {
	data, err := p.reader.GetPrice(ctx, p.aggregator, token)
	if err != nil {
		return 0, err
	}
	return data.LastUpdated, nil
}
