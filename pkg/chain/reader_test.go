package chain

import (
	"bytes"
	"context"
	"errors"
	"math/big"
	"testing"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"
	"github.com/mselser95/typed-signer/pkg/cache"
	"github.com/mselser95/typed-signer/pkg/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

var (
	testAggregator = common.HexToAddress("0x5FbDB2315678afecb367f032d93F642f64180aa3")
	testToken      = common.HexToAddress("0xaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaa")
	testAccount    = common.HexToAddress("0xf39Fd6e51aad88F6F4ce6aB8827279cffFb92266")
)

// fakeCaller answers calls by selector with pre-packed return data.
type fakeCaller struct {
	responses map[string][]byte
	err       error
	calls     int
	lastTo    common.Address
	lastData  []byte
}

func (f *fakeCaller) CallContract(_ context.Context, msg ethereum.CallMsg, _ *big.Int) ([]byte, error) {
	f.calls++
	f.lastTo = *msg.To
	f.lastData = msg.Data
	if f.err != nil {
		return nil, f.err
	}
	for sel, out := range f.responses {
		if bytes.Equal([]byte(sel), msg.Data[:4]) {
			return out, nil
		}
	}
	return nil, nil
}

func (f *fakeCaller) respond(t *testing.T, m abi.Method, values ...interface{}) {
	t.Helper()
	out, err := m.Outputs.Pack(values...)
	require.NoError(t, err)
	if f.responses == nil {
		f.responses = make(map[string][]byte)
	}
	f.responses[string(m.ID)] = out
}

func newTestReader(t *testing.T, caller Caller, c cache.Cache) *Reader {
	t.Helper()
	r, err := NewReader(&ReaderConfig{Caller: caller, Cache: c, Logger: zap.NewNop()})
	require.NoError(t, err)
	return r
}

func TestNewReader(t *testing.T) {
	_, err := NewReader(&ReaderConfig{Logger: zap.NewNop()})
	assert.Error(t, err)

	_, err = NewReader(&ReaderConfig{Caller: &fakeCaller{}})
	assert.Error(t, err)
}

func TestReader_GetPrice(t *testing.T) {
	caller := &fakeCaller{}
	caller.respond(t, aggregatorABI.Methods["getPrice"], big.NewInt(10050000000), uint64(1700000000), uint8(8))
	r := newTestReader(t, caller, nil)

	data, err := r.GetPrice(context.Background(), testAggregator, testToken)
	require.NoError(t, err)
	assert.Equal(t, 0, big.NewInt(10050000000).Cmp(data.Price))
	assert.Equal(t, uint64(1700000000), data.LastUpdated)
	assert.Equal(t, uint8(8), data.Decimals)
	assert.Equal(t, testAggregator, caller.lastTo)

	// token is the single argument after the selector
	assert.Equal(t, common.LeftPadBytes(testToken.Bytes(), 32), caller.lastData[4:])

	last, err := r.PriceFeed(testAggregator).LastUpdated(context.Background(), testToken)
	require.NoError(t, err)
	assert.Equal(t, uint64(1700000000), last)
}

func TestReader_GetRawPriceData(t *testing.T) {
	caller := &fakeCaller{}
	caller.respond(t, aggregatorABI.Methods["getRawPriceData"], rawPriceData{
		Price:       big.NewInt(42),
		LastUpdated: 7,
		Decimals:    18,
		Name:        "WETH",
	})
	r := newTestReader(t, caller, nil)

	data, err := r.GetRawPriceData(context.Background(), testAggregator, testToken)
	require.NoError(t, err)
	assert.Equal(t, int64(42), data.Price.Int64())
	assert.Equal(t, uint64(7), data.LastUpdated)
	assert.Equal(t, uint8(18), data.Decimals)
	assert.Equal(t, "WETH", data.Name)
}

func TestReader_CounterNonce(t *testing.T) {
	tests := []struct {
		name   string
		method string
	}{
		{name: "permit_nonces", method: "nonces"},
		{name: "meta_tx_get_nonce", method: "getNonce"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			caller := &fakeCaller{}
			caller.respond(t, counterMethod(tt.method), big.NewInt(12))
			r := newTestReader(t, caller, nil)

			n, err := r.CounterNonce(context.Background(), testAggregator, tt.method, testAccount)
			require.NoError(t, err)
			assert.Equal(t, int64(12), n.Int64())
		})
	}
}

func TestReader_ContractNameCached(t *testing.T) {
	c, err := cache.NewRistrettoCache(&cache.RistrettoConfig{
		Name: "test-names", NumCounters: 100, MaxCost: 10, BufferItems: 64, Logger: zap.NewNop(),
	})
	require.NoError(t, err)
	defer c.Close()

	caller := &fakeCaller{}
	caller.respond(t, erc20ABI.Methods["name"], "Test Token")
	r := newTestReader(t, caller, c)

	name, err := r.ContractName(context.Background(), testToken)
	require.NoError(t, err)
	assert.Equal(t, "Test Token", name)

	c.(*cache.RistrettoCache).Wait()

	name, err = r.ContractName(context.Background(), testToken)
	require.NoError(t, err)
	assert.Equal(t, "Test Token", name)
	assert.Equal(t, 1, caller.calls)
}

func TestReader_Failures(t *testing.T) {
	tests := []struct {
		name   string
		caller *fakeCaller
	}{
		{name: "rpc_error", caller: &fakeCaller{err: errors.New("connection refused")}},
		{name: "no_contract_code", caller: &fakeCaller{}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r := newTestReader(t, tt.caller, nil)

			_, err := r.GetPrice(context.Background(), testAggregator, testToken)
			assert.True(t, errors.Is(err, types.ErrChainRead), "got %v", err)
			assert.Equal(t, types.KindExternal, types.KindOf(err))
		})
	}

	t.Run("unknown_method", func(t *testing.T) {
		r := newTestReader(t, &fakeCaller{}, nil)
		_, err := r.Call(context.Background(), testAggregator, aggregatorABI, "setPrice")
		assert.True(t, errors.Is(err, types.ErrChainRead))
	})
}
