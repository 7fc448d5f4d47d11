package chain

import (
	"context"
	"crypto/ecdsa"
	"errors"
	"fmt"
	"math/big"
	"time"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/accounts/abi/bind"
	"github.com/ethereum/go-ethereum/common"
	ethtypes "github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/mselser95/typed-signer/pkg/types"
	"go.uber.org/zap"
)

const (
	defaultWaitTimeout = 2 * time.Minute
	gasHeadroomPercent = 120
)

// TxBackend is the node surface needed to send and confirm transactions.
// *ethclient.Client satisfies it.
type TxBackend interface {
	ChainID(ctx context.Context) (*big.Int, error)
	PendingNonceAt(ctx context.Context, account common.Address) (uint64, error)
	SuggestGasPrice(ctx context.Context) (*big.Int, error)
	EstimateGas(ctx context.Context, msg ethereum.CallMsg) (uint64, error)
	SendTransaction(ctx context.Context, tx *ethtypes.Transaction) error
	bind.DeployBackend
}

// Broadcaster signs and sends relayer transactions carrying signed payloads.
type Broadcaster struct {
	backend TxBackend
	key     *ecdsa.PrivateKey
	from    common.Address
	timeout time.Duration
	logger  *zap.Logger
}

// BroadcasterConfig holds Broadcaster configuration.
type BroadcasterConfig struct {
	Backend    TxBackend
	PrivateKey *ecdsa.PrivateKey
	Timeout    time.Duration
	Logger     *zap.Logger
}

// NewBroadcaster creates a Broadcaster.
func NewBroadcaster(cfg *BroadcasterConfig) (*Broadcaster, error) {
	if cfg.Backend == nil {
		return nil, errors.New("backend cannot be nil")
	}
	if cfg.PrivateKey == nil {
		return nil, errors.New("private key cannot be nil")
	}

	timeout := cfg.Timeout
	if timeout == 0 {
		timeout = defaultWaitTimeout
	}

	return &Broadcaster{
		backend: cfg.Backend,
		key:     cfg.PrivateKey,
		from:    crypto.PubkeyToAddress(cfg.PrivateKey.PublicKey),
		timeout: timeout,
		logger:  cfg.Logger,
	}, nil
}

// From is the relayer address paying for gas.
func (b *Broadcaster) From() common.Address {
	return b.from
}

// Send signs and submits a call to contract with the given calldata.
func (b *Broadcaster) Send(ctx context.Context, contract common.Address, data []byte) (*ethtypes.Transaction, error) {
	chainID, err := b.backend.ChainID(ctx)
	if err != nil {
		return nil, fmt.Errorf("%w: get chain ID: %v", types.ErrBroadcast, err)
	}

	nonce, err := b.backend.PendingNonceAt(ctx, b.from)
	if err != nil {
		return nil, fmt.Errorf("%w: get nonce: %v", types.ErrBroadcast, err)
	}

	gasPrice, err := b.backend.SuggestGasPrice(ctx)
	if err != nil {
		return nil, fmt.Errorf("%w: get gas price: %v", types.ErrBroadcast, err)
	}

	estimate, err := b.backend.EstimateGas(ctx, ethereum.CallMsg{From: b.from, To: &contract, Data: data})
	if err != nil {
		return nil, fmt.Errorf("%w: estimate gas: %v", types.ErrBroadcast, err)
	}
	gasLimit := estimate * gasHeadroomPercent / 100

	tx := ethtypes.NewTx(&ethtypes.LegacyTx{
		Nonce:    nonce,
		To:       &contract,
		Value:    big.NewInt(0),
		Gas:      gasLimit,
		GasPrice: gasPrice,
		Data:     data,
	})

	signed, err := ethtypes.SignTx(tx, ethtypes.LatestSignerForChainID(chainID), b.key)
	if err != nil {
		return nil, fmt.Errorf("%w: sign transaction: %v", types.ErrBroadcast, err)
	}

	err = b.backend.SendTransaction(ctx, signed)
	if err != nil {
		TransactionsTotal.WithLabelValues("send-failed").Inc()
		return nil, fmt.Errorf("%w: send transaction: %v", types.ErrBroadcast, err)
	}

	TransactionsTotal.WithLabelValues("sent").Inc()
	b.logger.Info("transaction-sent",
		zap.String("tx-hash", signed.Hash().Hex()),
		zap.String("to", contract.Hex()),
		zap.Uint64("nonce", nonce),
		zap.Uint64("gas-limit", gasLimit))

	return signed, nil
}

// Wait blocks until the transaction is mined, the timeout elapses or ctx is
// done. A reverted receipt is returned together with ErrTransactionReverted.
func (b *Broadcaster) Wait(ctx context.Context, tx *ethtypes.Transaction) (*ethtypes.Receipt, error) {
	ctx, cancel := context.WithTimeout(ctx, b.timeout)
	defer cancel()

	start := time.Now()
	receipt, err := bind.WaitMined(ctx, b.backend, tx)
	if err != nil {
		TransactionsTotal.WithLabelValues("timeout").Inc()
		return nil, fmt.Errorf("%w: waiting for %s: %v", types.ErrBroadcast, tx.Hash().Hex(), err)
	}
	ConfirmationDuration.Observe(time.Since(start).Seconds())

	if receipt.Status != ethtypes.ReceiptStatusSuccessful {
		TransactionsTotal.WithLabelValues("reverted").Inc()
		b.logger.Warn("transaction-reverted",
			zap.String("tx-hash", tx.Hash().Hex()),
			zap.Uint64("gas-used", receipt.GasUsed))
		return receipt, fmt.Errorf("%w: %s", types.ErrTransactionReverted, tx.Hash().Hex())
	}

	TransactionsTotal.WithLabelValues("confirmed").Inc()
	b.logger.Info("transaction-confirmed",
		zap.String("tx-hash", tx.Hash().Hex()),
		zap.Uint64("gas-used", receipt.GasUsed))
	return receipt, nil
}
