package chain

import (
	"context"
	"errors"
	"math/big"
	"testing"
	"time"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/common"
	ethtypes "github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/mselser95/typed-signer/pkg/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

const relayerKey = "ac0974bec39a17e36ba4a6b4d238ff944bacb478cbed5efcae784d7bf4f2ff80"

type fakeBackend struct {
	sent          []*ethtypes.Transaction
	estimateErr   error
	sendErr       error
	receiptStatus uint64
	pendingPolls  int
}

func (f *fakeBackend) ChainID(context.Context) (*big.Int, error) { return big.NewInt(31337), nil }

func (f *fakeBackend) PendingNonceAt(context.Context, common.Address) (uint64, error) {
	return 5, nil
}

func (f *fakeBackend) SuggestGasPrice(context.Context) (*big.Int, error) {
	return big.NewInt(1_000_000_000), nil
}

func (f *fakeBackend) EstimateGas(context.Context, ethereum.CallMsg) (uint64, error) {
	return 100_000, f.estimateErr
}

func (f *fakeBackend) SendTransaction(_ context.Context, tx *ethtypes.Transaction) error {
	if f.sendErr != nil {
		return f.sendErr
	}
	f.sent = append(f.sent, tx)
	return nil
}

func (f *fakeBackend) TransactionReceipt(context.Context, common.Hash) (*ethtypes.Receipt, error) {
	if f.pendingPolls > 0 {
		f.pendingPolls--
		return nil, ethereum.NotFound
	}
	return &ethtypes.Receipt{Status: f.receiptStatus, GasUsed: 80_000}, nil
}

func (f *fakeBackend) CodeAt(context.Context, common.Address, *big.Int) ([]byte, error) {
	return nil, nil
}

func newTestBroadcaster(t *testing.T, backend TxBackend) *Broadcaster {
	t.Helper()
	key, err := crypto.HexToECDSA(relayerKey)
	require.NoError(t, err)

	b, err := NewBroadcaster(&BroadcasterConfig{
		Backend:    backend,
		PrivateKey: key,
		Timeout:    5 * time.Second,
		Logger:     zap.NewNop(),
	})
	require.NoError(t, err)
	return b
}

func TestBroadcaster_SendAndWait(t *testing.T) {
	backend := &fakeBackend{receiptStatus: ethtypes.ReceiptStatusSuccessful, pendingPolls: 1}
	b := newTestBroadcaster(t, backend)
	data := []byte{0xde, 0xad, 0xbe, 0xef}

	tx, err := b.Send(context.Background(), testAggregator, data)
	require.NoError(t, err)
	require.Len(t, backend.sent, 1)

	assert.Equal(t, uint64(5), tx.Nonce())
	assert.Equal(t, uint64(120_000), tx.Gas())
	assert.Equal(t, testAggregator, *tx.To())
	assert.Equal(t, data, tx.Data())

	sender, err := ethtypes.Sender(ethtypes.LatestSignerForChainID(big.NewInt(31337)), tx)
	require.NoError(t, err)
	assert.Equal(t, testAccount, sender)
	assert.Equal(t, testAccount, b.From())

	receipt, err := b.Wait(context.Background(), tx)
	require.NoError(t, err)
	assert.Equal(t, uint64(80_000), receipt.GasUsed)
}

func TestBroadcaster_Failures(t *testing.T) {
	t.Run("estimate_reverts", func(t *testing.T) {
		b := newTestBroadcaster(t, &fakeBackend{estimateErr: errors.New("execution reverted: stale")})
		_, err := b.Send(context.Background(), testAggregator, nil)
		assert.True(t, errors.Is(err, types.ErrBroadcast))
	})

	t.Run("send_rejected", func(t *testing.T) {
		b := newTestBroadcaster(t, &fakeBackend{sendErr: errors.New("nonce too low")})
		_, err := b.Send(context.Background(), testAggregator, nil)
		assert.True(t, errors.Is(err, types.ErrBroadcast))
	})

	t.Run("receipt_reverted", func(t *testing.T) {
		backend := &fakeBackend{receiptStatus: ethtypes.ReceiptStatusFailed}
		b := newTestBroadcaster(t, backend)
		tx, err := b.Send(context.Background(), testAggregator, nil)
		require.NoError(t, err)

		receipt, err := b.Wait(context.Background(), tx)
		assert.NotNil(t, receipt)
		assert.True(t, errors.Is(err, types.ErrTransactionReverted))
		assert.Equal(t, types.KindExternal, types.KindOf(err))
	})

	t.Run("receipt_timeout", func(t *testing.T) {
		backend := &fakeBackend{pendingPolls: 1 << 30}
		b := newTestBroadcaster(t, backend)
		b.timeout = 50 * time.Millisecond
		tx, err := b.Send(context.Background(), testAggregator, nil)
		require.NoError(t, err)

		_, err = b.Wait(context.Background(), tx)
		assert.True(t, errors.Is(err, types.ErrBroadcast))
	})

	t.Run("caller_cancelled", func(t *testing.T) {
		backend := &fakeBackend{pendingPolls: 1 << 30}
		b := newTestBroadcaster(t, backend)
		tx, err := b.Send(context.Background(), testAggregator, nil)
		require.NoError(t, err)

		ctx, cancel := context.WithCancel(context.Background())
		cancel()
		start := time.Now()
		_, err = b.Wait(ctx, tx)
		assert.True(t, errors.Is(err, types.ErrBroadcast))
		assert.Less(t, time.Since(start), 2*time.Second)
	})

	t.Run("missing_key", func(t *testing.T) {
		_, err := NewBroadcaster(&BroadcasterConfig{Backend: &fakeBackend{}, Logger: zap.NewNop()})
		assert.Error(t, err)
	})
}
