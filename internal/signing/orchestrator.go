package signing

import (
	"context"
	"crypto/rand"
	"errors"
	"fmt"
	"io"
	"math/big"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/signer/core/apitypes"
	"github.com/google/uuid"
	"github.com/mselser95/typed-signer/internal/encoder"
	"github.com/mselser95/typed-signer/internal/schema"
	"github.com/mselser95/typed-signer/pkg/ledger"
	"github.com/mselser95/typed-signer/pkg/types"
	"go.uber.org/zap"
)

const maxNonceAttempts = 3

// Signer is an external party able to sign typed data (a wallet).
type Signer interface {
	Connect(ctx context.Context) (common.Address, error)
	ChainID(ctx context.Context) (*big.Int, error)
	SignTypedData(ctx context.Context, td apitypes.TypedData) ([]byte, error)
}

// CounterReader reads a sequential nonce from a contract view method.
type CounterReader interface {
	CounterNonce(ctx context.Context, contract common.Address, method string, account common.Address) (*big.Int, error)
}

// Request asks for one signature over a message of the given schema.
type Request struct {
	Schema string
	Domain schema.Domain
	// Message holds caller-supplied fields. Nonce, deadline and identity
	// fields are filled by the orchestrator.
	Message schema.Message
	// Nonce, when set, is used verbatim instead of drawing a fresh one.
	Nonce *big.Int
	// ValidFor overrides the schema's default validity window.
	ValidFor time.Duration
}

// Config holds orchestrator dependencies.
type Config struct {
	Registry *schema.Registry
	Encoder  *encoder.Encoder
	Signer   Signer
	Ledger   ledger.Ledger
	Counter  CounterReader // required only for sequential-nonce schemas
	Logger   *zap.Logger
	Now      func() time.Time
	Random   io.Reader
}

// Orchestrator drives one signing cycle at a time per session: fill nonce and
// deadline, encode, prompt the signer, verify what came back.
type Orchestrator struct {
	registry *schema.Registry
	encoder  *encoder.Encoder
	signer   Signer
	ledger   ledger.Ledger
	counter  CounterReader
	logger   *zap.Logger
	now      func() time.Time
	random   io.Reader
}

// New creates an Orchestrator.
func New(cfg *Config) (*Orchestrator, error) {
	if cfg.Registry == nil {
		return nil, fmt.Errorf("registry cannot be nil")
	}
	if cfg.Signer == nil {
		return nil, fmt.Errorf("signer cannot be nil")
	}

	enc := cfg.Encoder
	if enc == nil {
		enc = encoder.New(cfg.Logger)
	}
	l := cfg.Ledger
	if l == nil {
		l = ledger.NewMemoryLedger()
	}
	now := cfg.Now
	if now == nil {
		now = time.Now
	}
	random := cfg.Random
	if random == nil {
		random = rand.Reader
	}

	return &Orchestrator{
		registry: cfg.Registry,
		encoder:  enc,
		signer:   cfg.Signer,
		ledger:   l,
		counter:  cfg.Counter,
		logger:   cfg.Logger,
		now:      now,
		random:   random,
	}, nil
}

// Connect establishes a session with the signer.
func (o *Orchestrator) Connect(ctx context.Context) (*Session, error) {
	identity, err := o.signer.Connect(ctx)
	if err != nil {
		return nil, types.NewError("connect", "", classifySignerError(err, types.ErrSignerUnavailable))
	}

	chainID, err := o.signer.ChainID(ctx)
	if err != nil {
		return nil, types.NewError("connect", "chainId", classifySignerError(err, types.ErrSignerUnavailable))
	}

	sess := &Session{
		ID:          uuid.NewString(),
		Identity:    identity,
		ChainID:     chainID,
		ConnectedAt: o.now(),
	}

	o.logger.Info("signer-session-opened",
		zap.String("session-id", sess.ID),
		zap.String("identity", identity.Hex()),
		zap.String("chain-id", chainID.String()))

	return sess, nil
}

// RequestSignature runs one signing cycle. On success the cycle becomes the
// session's pending cycle. On any failure the session is left as before.
func (o *Orchestrator) RequestSignature(ctx context.Context, sess *Session, req Request) (*Cycle, error) {
	if !sess.inFlight.CompareAndSwap(false, true) {
		SignatureRequestsTotal.WithLabelValues(req.Schema, "in-flight").Inc()
		return nil, types.NewError("request-signature", req.Schema, types.ErrSigningInProgress)
	}
	defer sess.inFlight.Store(false)

	start := time.Now()
	cycle, err := o.run(ctx, sess, req)
	if err != nil {
		SignatureRequestsTotal.WithLabelValues(req.Schema, outcomeLabel(err)).Inc()
		o.logger.Warn("signature-request-failed",
			zap.String("session-id", sess.ID),
			zap.String("schema", req.Schema),
			zap.String("kind", string(types.KindOf(err))),
			zap.Error(err))
		return nil, err
	}

	SignatureRequestsTotal.WithLabelValues(req.Schema, "signed").Inc()
	SigningDuration.WithLabelValues(req.Schema).Observe(time.Since(start).Seconds())
	sess.setPending(cycle)

	o.logger.Info("signature-obtained",
		zap.String("cycle-id", cycle.ID),
		zap.String("schema", cycle.Schema),
		zap.String("nonce", cycle.Nonce.String()),
		zap.String("digest", cycle.Encoded.Digest.Hex()))

	return cycle, nil
}

func (o *Orchestrator) run(ctx context.Context, sess *Session, req Request) (*Cycle, error) {
	def, err := o.registry.Get(req.Schema)
	if err != nil {
		return nil, types.NewError("request-signature", req.Schema, err)
	}

	domain := req.Domain
	if domain.ChainID == nil {
		domain.ChainID = sess.ChainID
	}
	if domain.Salt == nil && def.Domain.SaltFromChainID && domain.ChainID != nil {
		salt := encoder.ChainSalt(domain.ChainID)
		domain.Salt = &salt
	}

	msg := req.Message.Clone()
	if msg == nil {
		msg = schema.Message{}
	}
	if def.IdentityField != "" {
		if _, ok := msg[def.IdentityField]; !ok {
			msg[def.IdentityField] = sess.Identity
		}
	}

	nonce, err := o.drawNonce(ctx, def, domain, msg, req.Nonce)
	if err != nil {
		return nil, err
	}
	msg[def.Nonce.Field] = nonce

	var deadline time.Time
	if def.DeadlineField != "" {
		validFor := req.ValidFor
		if validFor <= 0 {
			validFor = def.DefaultValidity
		}
		deadline = o.now().Add(validFor).Truncate(time.Second)
		msg[def.DeadlineField] = big.NewInt(deadline.Unix())
	}

	enc, err := o.encoder.Encode(def, domain, msg)
	if err != nil {
		return nil, err
	}

	o.logger.Info("signature-requested",
		zap.String("session-id", sess.ID),
		zap.String("schema", def.ID()),
		zap.String("digest", enc.Digest.Hex()))

	raw, err := o.signer.SignTypedData(ctx, enc.TypedData)
	if err != nil {
		return nil, types.NewError("request-signature", def.Name, classifySignerError(err, types.ErrSignerError))
	}

	sig, err := ParseSignature(raw)
	if err != nil {
		return nil, types.NewError("request-signature", def.Name, err)
	}

	recovered, err := sig.Recover(enc.Digest)
	if err != nil {
		return nil, types.NewError("request-signature", def.Name, err)
	}
	if recovered != sess.Identity {
		return nil, types.NewError("request-signature", def.Name,
			fmt.Errorf("%w: signature recovers to %s, session identity is %s", types.ErrSignerError, recovered.Hex(), sess.Identity.Hex()))
	}
	sig.Signer = recovered

	return &Cycle{
		ID:            uuid.NewString(),
		SessionID:     sess.ID,
		Schema:        def.Name,
		SchemaVersion: def.Version,
		Domain:        domain,
		Message:       msg,
		Nonce:         nonce,
		Deadline:      deadline,
		Encoded:       enc,
		Signature:     sig,
		CreatedAt:     o.now(),
	}, nil
}

func (o *Orchestrator) drawNonce(ctx context.Context, def *schema.Definition, domain schema.Domain, msg schema.Message, supplied *big.Int) (*big.Int, error) {
	scope := nonceScope(domain)

	if supplied != nil {
		if supplied.Sign() < 0 {
			return nil, types.NewError("nonce", def.Nonce.Field, fmt.Errorf("%w: negative nonce", types.ErrFieldTypeMismatch))
		}
		// Record it so a later random draw can never repeat it.
		_, err := o.ledger.Reserve(ctx, scope, supplied)
		if err != nil {
			return nil, fmt.Errorf("reserve nonce: %w", err)
		}
		return new(big.Int).Set(supplied), nil
	}

	switch def.Nonce.Strategy {
	case schema.NonceSequential:
		return o.counterNonce(ctx, def, domain, msg)
	default:
		return o.randomNonce(ctx, scope)
	}
}

func (o *Orchestrator) randomNonce(ctx context.Context, scope string) (*big.Int, error) {
	buf := make([]byte, 32)
	for attempt := 0; attempt < maxNonceAttempts; attempt++ {
		_, err := io.ReadFull(o.random, buf)
		if err != nil {
			return nil, fmt.Errorf("read random nonce: %w", err)
		}
		nonce := new(big.Int).SetBytes(buf)

		fresh, err := o.ledger.Reserve(ctx, scope, nonce)
		if err != nil {
			return nil, fmt.Errorf("reserve nonce: %w", err)
		}
		if fresh {
			return nonce, nil
		}
		o.logger.Warn("nonce-redrawn", zap.String("scope", scope), zap.Int("attempt", attempt+1))
	}
	return nil, fmt.Errorf("no unused nonce after %d attempts", maxNonceAttempts)
}

func (o *Orchestrator) counterNonce(ctx context.Context, def *schema.Definition, domain schema.Domain, msg schema.Message) (*big.Int, error) {
	if o.counter == nil {
		return nil, types.NewError("nonce", def.Nonce.Field, fmt.Errorf("%w: no chain reader for sequential nonce", types.ErrChainRead))
	}

	account, err := accountOf(msg[def.Nonce.CounterKey])
	if err != nil {
		return nil, types.NewError("nonce", def.Nonce.CounterKey, err)
	}

	nonce, err := o.counter.CounterNonce(ctx, domain.VerifyingContract, def.Nonce.CounterMethod, account)
	if err != nil {
		if !errors.Is(err, types.ErrChainRead) {
			err = fmt.Errorf("%w: %v", types.ErrChainRead, err)
		}
		return nil, types.NewError("nonce", def.Nonce.CounterMethod, err)
	}
	return nonce, nil
}

func accountOf(v interface{}) (common.Address, error) {
	switch a := v.(type) {
	case common.Address:
		return a, nil
	case *common.Address:
		if a != nil {
			return *a, nil
		}
	case string:
		addr, err := encoder.ParseAddress(a)
		if err != nil {
			return common.Address{}, fmt.Errorf("%w: %v", types.ErrInvalidAddress, err)
		}
		return addr, nil
	}
	return common.Address{}, fmt.Errorf("%w: %v is not an address", types.ErrInvalidAddress, v)
}

func nonceScope(d schema.Domain) string {
	chain := "0"
	if d.ChainID != nil {
		chain = d.ChainID.String()
	}
	return chain + ":" + d.VerifyingContract.Hex()
}

// classifySignerError keeps an already classified signer error and otherwise
// wraps it with fallback.
func classifySignerError(err error, fallback error) error {
	for _, known := range []error{types.ErrUserRejected, types.ErrSignerUnavailable, types.ErrSignerError} {
		if errors.Is(err, known) {
			return err
		}
	}
	return fmt.Errorf("%w: %v", fallback, err)
}

func outcomeLabel(err error) string {
	switch {
	case errors.Is(err, types.ErrUserRejected):
		return "rejected"
	case errors.Is(err, types.ErrSignerUnavailable):
		return "unavailable"
	case types.KindOf(err) == types.KindInput:
		return "invalid"
	default:
		return "error"
	}
}
