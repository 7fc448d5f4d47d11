package ledger

import (
	"context"
	"fmt"
	"math/big"
	"time"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

const keyPrefixNonce = "typed-signer:nonce:"

// RedisLedger shares issued nonces across processes through Redis SETNX.
type RedisLedger struct {
	client    *redis.Client
	ttl       time.Duration
	keyPrefix string
	logger    *zap.Logger
}

// RedisConfig holds Redis connection settings.
type RedisConfig struct {
	Address  string
	Password string
	DB       int
	// TTL bounds how long an issued nonce is remembered; 0 keeps it forever.
	TTL       time.Duration
	KeyPrefix string
	Logger    *zap.Logger
}

// NewRedisLedger connects to Redis and verifies the connection.
func NewRedisLedger(cfg *RedisConfig) (*RedisLedger, error) {
	if cfg == nil {
		return nil, fmt.Errorf("redis config cannot be nil")
	}
	if cfg.Address == "" {
		return nil, fmt.Errorf("redis address cannot be empty")
	}

	client := redis.NewClient(&redis.Options{
		Addr:     cfg.Address,
		Password: cfg.Password,
		DB:       cfg.DB,
	})

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	err := client.Ping(ctx).Err()
	if err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("connect to redis at %s: %w", cfg.Address, err)
	}

	prefix := cfg.KeyPrefix
	if prefix == "" {
		prefix = keyPrefixNonce
	}

	cfg.Logger.Info("redis-ledger-connected",
		zap.String("address", cfg.Address),
		zap.Int("db", cfg.DB),
		zap.Duration("ttl", cfg.TTL))

	return &RedisLedger{
		client:    client,
		ttl:       cfg.TTL,
		keyPrefix: prefix,
		logger:    cfg.Logger,
	}, nil
}

// Reserve implements Ledger.
func (r *RedisLedger) Reserve(ctx context.Context, scope string, nonce *big.Int) (bool, error) {
	key := r.keyPrefix + scope + ":" + nonce.Text(16)

	ok, err := r.client.SetNX(ctx, key, time.Now().Unix(), r.ttl).Result()
	if err != nil {
		return false, fmt.Errorf("reserve nonce: %w", err)
	}
	if !ok {
		LedgerCollisionsTotal.Inc()
		r.logger.Warn("nonce-collision", zap.String("scope", scope))
	}
	return ok, nil
}

// Ping checks the Redis connection.
func (r *RedisLedger) Ping(ctx context.Context) error {
	return r.client.Ping(ctx).Err()
}

// Close closes the Redis client.
func (r *RedisLedger) Close() error {
	r.logger.Info("closing-redis-ledger")
	return r.client.Close()
}
