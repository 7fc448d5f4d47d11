package app

import (
	"context"
	"errors"
	"fmt"
	"io"
	"math/big"
	"strings"

	"github.com/ethereum/go-ethereum/crypto"
	"github.com/ethereum/go-ethereum/ethclient"
	"github.com/mselser95/typed-signer/internal/engine"
	"github.com/mselser95/typed-signer/internal/schema"
	"github.com/mselser95/typed-signer/internal/signing"
	"github.com/mselser95/typed-signer/internal/storage"
	"github.com/mselser95/typed-signer/internal/validator"
	"github.com/mselser95/typed-signer/pkg/cache"
	"github.com/mselser95/typed-signer/pkg/chain"
	"github.com/mselser95/typed-signer/pkg/config"
	"github.com/mselser95/typed-signer/pkg/healthprobe"
	"github.com/mselser95/typed-signer/pkg/httpserver"
	"github.com/mselser95/typed-signer/pkg/ledger"
	"github.com/mselser95/typed-signer/pkg/signer"
	"go.uber.org/multierr"
	"go.uber.org/zap"
)

var errNoSigner = errors.New("no signer configured")

// Components is the wired engine and everything it holds open. CLI commands
// and the service build it the same way.
type Components struct {
	Engine      *engine.Engine
	Registry    *schema.Registry
	Client      *ethclient.Client // nil without RPC_URL
	Reader      *chain.Reader     // nil without RPC_URL
	Broadcaster *chain.Broadcaster

	signer  signing.Signer
	ledger  ledger.Ledger
	storage storage.Storage
	names   cache.Cache
	logger  *zap.Logger
}

// Build wires the engine from configuration. Chain access, the signer and the
// relayer are each optional; the engine reports which one a flow is missing.
func Build(ctx context.Context, cfg *config.Config, logger *zap.Logger) (*Components, error) {
	c := &Components{logger: logger}
	built := false
	defer func() {
		if !built {
			_ = c.Close()
		}
	}()

	registry := schema.NewRegistry(logger)
	err := schema.RegisterDefaults(registry)
	if err != nil {
		return nil, err
	}
	c.Registry = registry

	c.Client, err = setupChainClient(ctx, cfg, logger)
	if err != nil {
		return nil, fmt.Errorf("setup chain client: %w", err)
	}

	c.names, err = setupCache(logger)
	if err != nil {
		return nil, fmt.Errorf("setup cache: %w", err)
	}

	c.Reader, err = setupReader(cfg, logger, c.Client, c.names)
	if err != nil {
		return nil, fmt.Errorf("setup reader: %w", err)
	}

	c.signer, err = setupSigner(cfg, logger, c.Client)
	if errors.Is(err, errNoSigner) {
		logger.Warn("signer-not-configured",
			zap.String("mode", cfg.SignerMode),
			zap.String("note", "signing commands are disabled"))
	} else if err != nil {
		return nil, fmt.Errorf("setup signer: %w", err)
	}

	c.ledger, err = setupLedger(cfg, logger)
	if err != nil {
		return nil, fmt.Errorf("setup nonce ledger: %w", err)
	}

	c.storage, err = setupStorage(ctx, cfg, logger)
	if err != nil {
		return nil, fmt.Errorf("setup storage: %w", err)
	}

	c.Broadcaster, err = setupBroadcaster(cfg, logger, c.Client)
	if err != nil {
		return nil, fmt.Errorf("setup broadcaster: %w", err)
	}

	orchestrator, err := setupOrchestrator(logger, registry, c.signer, c.ledger, c.Reader)
	if err != nil {
		return nil, fmt.Errorf("setup orchestrator: %w", err)
	}

	c.Engine, err = engine.New(&engine.Config{
		Registry:     registry,
		Validator:    setupValidator(cfg, logger),
		Orchestrator: orchestrator,
		Reader:       c.Reader,
		Broadcaster:  c.Broadcaster,
		Storage:      c.storage,
		PriceWindow:  cfg.PriceValidityWindow,
		PermitWindow: cfg.PermitValidityWindow,
		Logger:       logger,
	})
	if err != nil {
		return nil, fmt.Errorf("setup engine: %w", err)
	}

	built = true
	return c, nil
}

// Close releases every connection Build opened.
func (c *Components) Close() error {
	var err error

	if c.Engine != nil {
		err = multierr.Append(err, c.Engine.Close())
	} else if c.storage != nil {
		err = multierr.Append(err, c.storage.Close())
	}
	if c.ledger != nil {
		err = multierr.Append(err, c.ledger.Close())
	}
	if closer, ok := c.signer.(io.Closer); ok {
		err = multierr.Append(err, closer.Close())
	}
	if c.names != nil {
		c.names.Close()
	}
	if c.Client != nil {
		c.Client.Close()
	}

	return err
}

func setupHealthChecker(c *Components) *healthprobe.HealthChecker {
	hc := healthprobe.New()

	if c.Client != nil {
		client := c.Client
		hc.AddCheck("rpc", func(ctx context.Context) error {
			_, err := client.BlockNumber(ctx)
			return err
		})
	}
	if p, ok := c.ledger.(interface{ Ping(context.Context) error }); ok {
		hc.AddCheck("nonce-ledger", p.Ping)
	}
	if p, ok := c.storage.(interface{ Ping(context.Context) error }); ok {
		hc.AddCheck("storage", p.Ping)
	}

	return hc
}

func setupHTTPServer(
	cfg *config.Config,
	logger *zap.Logger,
	healthChecker *healthprobe.HealthChecker,
	c *Components,
) *httpserver.Server {
	return httpserver.New(&httpserver.Config{
		Port:          cfg.HTTPPort,
		Logger:        logger,
		HealthChecker: healthChecker,
		API:           c.Engine,
	})
}

func setupChainClient(ctx context.Context, cfg *config.Config, logger *zap.Logger) (*ethclient.Client, error) {
	if cfg.RPCURL == "" {
		logger.Info("chain-client-disabled", zap.String("reason", "RPC_URL not set"))
		return nil, nil
	}

	client, err := ethclient.DialContext(ctx, cfg.RPCURL)
	if err != nil {
		return nil, fmt.Errorf("dial %s: %w", cfg.RPCURL, err)
	}

	logger.Info("chain-client-connected", zap.String("rpc-url", cfg.RPCURL))
	return client, nil
}

func setupCache(logger *zap.Logger) (cache.Cache, error) {
	return cache.NewRistrettoCache(&cache.RistrettoConfig{
		Name:        "contract-names",
		NumCounters: 10000, // 10x expected max items
		MaxCost:     1000,  // Maximum 1000 items in cache
		BufferItems: 64,    // Buffer size for Get operations
		Logger:      logger,
	})
}

func setupReader(cfg *config.Config, logger *zap.Logger, client *ethclient.Client, names cache.Cache) (*chain.Reader, error) {
	if client == nil {
		return nil, nil
	}
	return chain.NewReader(&chain.ReaderConfig{
		Caller:  client,
		Cache:   names,
		NameTTL: cfg.NameCacheTTL,
		Logger:  logger,
	})
}

func setupSigner(cfg *config.Config, logger *zap.Logger, client *ethclient.Client) (signing.Signer, error) {
	if cfg.SignerMode == config.SignerModeRemote {
		remote, err := signer.NewRemoteSigner(&signer.RemoteConfig{
			URL:            cfg.SignerBridgeURL,
			RequestTimeout: cfg.SignerRequestTimeout,
			Logger:         logger,
		})
		if err != nil {
			return nil, err
		}
		return remote, nil
	}

	if cfg.SignerPrivateKey == "" {
		return nil, errNoSigner
	}

	keyCfg := &signer.KeyConfig{
		PrivateKey: cfg.SignerPrivateKey,
		Logger:     logger,
	}
	if cfg.ChainID > 0 {
		keyCfg.ChainID = big.NewInt(cfg.ChainID)
	} else if client != nil {
		keyCfg.Chain = client
	} else {
		return nil, fmt.Errorf("CHAIN_ID or RPC_URL is required with SIGNER_MODE=key")
	}

	key, err := signer.NewKeySigner(keyCfg)
	if err != nil {
		return nil, err
	}
	return key, nil
}

func setupLedger(cfg *config.Config, logger *zap.Logger) (ledger.Ledger, error) {
	if cfg.NonceLedgerMode == config.LedgerRedis {
		redisLedger, err := ledger.NewRedisLedger(&ledger.RedisConfig{
			Address:  cfg.RedisAddr,
			Password: cfg.RedisPassword,
			DB:       cfg.RedisDB,
			TTL:      cfg.NonceLedgerTTL,
			Logger:   logger,
		})
		if err != nil {
			return nil, err
		}
		return redisLedger, nil
	}

	return ledger.NewMemoryLedger(), nil
}

func setupStorage(ctx context.Context, cfg *config.Config, logger *zap.Logger) (storage.Storage, error) {
	if cfg.StorageMode == config.StoragePostgres {
		pgStorage, err := storage.NewPostgresStorage(ctx, &storage.PostgresConfig{
			Host:     cfg.PostgresHost,
			Port:     cfg.PostgresPort,
			User:     cfg.PostgresUser,
			Password: cfg.PostgresPass,
			Database: cfg.PostgresDB,
			SSLMode:  cfg.PostgresSSL,
			Logger:   logger,
		})
		if err != nil {
			return nil, fmt.Errorf("create postgres storage: %w", err)
		}
		return pgStorage, nil
	}

	return storage.NewConsoleStorage(logger), nil
}

func setupBroadcaster(cfg *config.Config, logger *zap.Logger, client *ethclient.Client) (*chain.Broadcaster, error) {
	if client == nil || cfg.RelayerPrivateKey == "" {
		logger.Debug("broadcaster-disabled",
			zap.Bool("chain-connected", client != nil),
			zap.Bool("relayer-key-set", cfg.RelayerPrivateKey != ""))
		return nil, nil
	}

	key, err := crypto.HexToECDSA(strings.TrimPrefix(cfg.RelayerPrivateKey, "0x"))
	if err != nil {
		return nil, fmt.Errorf("parse relayer key: %w", err)
	}

	return chain.NewBroadcaster(&chain.BroadcasterConfig{
		Backend:    client,
		PrivateKey: key,
		Timeout:    cfg.ReceiptTimeout,
		Logger:     logger,
	})
}

func setupOrchestrator(
	logger *zap.Logger,
	registry *schema.Registry,
	s signing.Signer,
	l ledger.Ledger,
	reader *chain.Reader,
) (*signing.Orchestrator, error) {
	if s == nil {
		return nil, nil
	}

	var counter signing.CounterReader
	if reader != nil {
		counter = reader
	}

	return signing.New(&signing.Config{
		Registry: registry,
		Signer:   s,
		Ledger:   l,
		Counter:  counter,
		Logger:   logger,
	})
}

func setupValidator(cfg *config.Config, logger *zap.Logger) *validator.Validator {
	return validator.New(&validator.Config{
		Cooldown: cfg.CooldownWindow,
		FailOpen: cfg.CooldownFailOpen,
		Logger:   logger,
	})
}
