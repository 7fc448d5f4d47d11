package engine

import (
	"context"
	"errors"
	"fmt"
	"math/big"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/mselser95/typed-signer/internal/encoder"
	"github.com/mselser95/typed-signer/internal/schema"
	"github.com/mselser95/typed-signer/internal/signing"
	"github.com/mselser95/typed-signer/internal/storage"
	"github.com/mselser95/typed-signer/internal/submission"
	"github.com/mselser95/typed-signer/internal/validator"
	"github.com/mselser95/typed-signer/pkg/chain"
	"github.com/mselser95/typed-signer/pkg/types"
	"go.uber.org/zap"
)

// Engine ties the signing pipeline together: validate, sign, assemble and,
// when a broadcaster is configured, submit.
type Engine struct {
	registry     *schema.Registry
	encoder      *encoder.Encoder
	validator    *validator.Validator
	orchestrator *signing.Orchestrator
	assembler    *submission.Assembler
	reader       *chain.Reader
	broadcaster  *chain.Broadcaster
	storage      storage.Storage
	priceWindow  time.Duration
	permitWindow time.Duration
	logger       *zap.Logger
	now          func() time.Time
}

// Config holds engine dependencies. Orchestrator, Reader and Broadcaster are
// optional; flows that need them fail with a classified error when absent.
// Storage defaults to the console.
type Config struct {
	Registry     *schema.Registry
	Encoder      *encoder.Encoder
	Validator    *validator.Validator
	Orchestrator *signing.Orchestrator
	Assembler    *submission.Assembler
	Reader       *chain.Reader
	Broadcaster  *chain.Broadcaster
	Storage      storage.Storage
	PriceWindow  time.Duration
	PermitWindow time.Duration
	Logger       *zap.Logger
	Now          func() time.Time
}

// New creates an Engine.
func New(cfg *Config) (*Engine, error) {
	if cfg.Registry == nil {
		return nil, errors.New("registry cannot be nil")
	}
	if cfg.Validator == nil {
		return nil, errors.New("validator cannot be nil")
	}

	now := cfg.Now
	if now == nil {
		now = time.Now
	}
	enc := cfg.Encoder
	if enc == nil {
		enc = encoder.New(cfg.Logger)
	}
	asm := cfg.Assembler
	if asm == nil {
		asm = submission.New(cfg.Registry, cfg.Logger, now)
	}
	store := cfg.Storage
	if store == nil {
		store = storage.NewConsoleStorage(cfg.Logger)
	}

	return &Engine{
		registry:     cfg.Registry,
		encoder:      enc,
		validator:    cfg.Validator,
		orchestrator: cfg.Orchestrator,
		assembler:    asm,
		reader:       cfg.Reader,
		broadcaster:  cfg.Broadcaster,
		storage:      store,
		priceWindow:  cfg.PriceWindow,
		permitWindow: cfg.PermitWindow,
		logger:       cfg.Logger,
		now:          now,
	}, nil
}

// Signed is the result of one signing flow.
type Signed struct {
	Cycle   *signing.Cycle
	Payload *submission.Payload
	// Outcome is set for price updates; it explains every skipped candidate.
	Outcome *validator.Outcome
}

// Connect opens a signer session.
func (e *Engine) Connect(ctx context.Context) (*signing.Session, error) {
	if e.orchestrator == nil {
		return nil, types.NewError("connect", "", fmt.Errorf("%w: no signer configured", types.ErrSignerUnavailable))
	}
	return e.orchestrator.Connect(ctx)
}

// Schemas lists every registered schema.
func (e *Engine) Schemas() []*schema.Definition {
	return e.registry.List()
}

// PriceUpdate asks for one signed single-token price.
type PriceUpdate struct {
	Aggregator common.Address
	Candidate  validator.Candidate
	Nonce      *big.Int
	ValidFor   time.Duration
}

// SignPriceUpdate validates one candidate, signs it and assembles the
// updatePriceSigned call. The cooldown check runs only when a chain reader
// is configured.
func (e *Engine) SignPriceUpdate(ctx context.Context, sess *signing.Session, req PriceUpdate) (*Signed, error) {
	entry, outcome, err := e.validator.ValidateSingle(ctx, e.feed(req.Aggregator), req.Candidate)
	if err != nil {
		return &Signed{Outcome: outcome}, err
	}

	cycle, err := e.requestSignature(ctx, sess, signing.Request{
		Schema: schema.SinglePriceUpdate,
		Domain: schema.Domain{VerifyingContract: req.Aggregator},
		Message: schema.Message{
			"token":    entry.Token,
			"price":    entry.Amount,
			"decimals": entry.Decimals,
		},
		Nonce:    req.Nonce,
		ValidFor: firstPositive(req.ValidFor, e.priceWindow),
	})
	if err != nil {
		return &Signed{Outcome: outcome}, err
	}

	return e.assemble(cycle, outcome)
}

// BatchPriceUpdate asks for one signature over many token prices.
type BatchPriceUpdate struct {
	Aggregator common.Address
	Candidates []validator.Candidate
	Nonce      *big.Int
	ValidFor   time.Duration
}

// SignBatchPriceUpdate filters the candidates, signs the accepted entries in
// input order and assembles the updatePricesSigned call. The returned Signed
// carries the Outcome even when nothing was eligible.
func (e *Engine) SignBatchPriceUpdate(ctx context.Context, sess *signing.Session, req BatchPriceUpdate) (*Signed, error) {
	outcome, err := e.validator.FilterBatch(ctx, e.feed(req.Aggregator), req.Candidates)
	if err != nil {
		return &Signed{Outcome: outcome}, err
	}

	n := len(outcome.Accepted)
	tokens := make([]common.Address, n)
	prices := make([]*big.Int, n)
	decimals := make([]uint8, n)
	names := make([]string, n)
	for i, entry := range outcome.Accepted {
		tokens[i] = entry.Token
		prices[i] = entry.Amount
		decimals[i] = entry.Decimals
		names[i] = entry.Name
	}

	e.logger.Info("batch-ready",
		zap.String("aggregator", req.Aggregator.Hex()),
		zap.String("summary", outcome.Summary()))

	cycle, err := e.requestSignature(ctx, sess, signing.Request{
		Schema: schema.BatchPriceUpdate,
		Domain: schema.Domain{VerifyingContract: req.Aggregator},
		Message: schema.Message{
			"tokens":        tokens,
			"prices":        prices,
			"decimalsArray": decimals,
			"names":         names,
		},
		Nonce:    req.Nonce,
		ValidFor: firstPositive(req.ValidFor, e.priceWindow),
	})
	if err != nil {
		return &Signed{Outcome: outcome}, err
	}

	return e.assemble(cycle, outcome)
}

// PermitRequest asks for a Wager permit. Params holds the kind-specific
// fields (value/betOn, shares/price, listNo/listedOwner, listNo) as decimal
// or hex strings.
type PermitRequest struct {
	Kind     string
	Wager    common.Address
	Owner    string
	Params   map[string]string
	Nonce    *big.Int
	ValidFor time.Duration
}

// SignPermit signs a bet, sell, buy or cancel permit for the connected user.
func (e *Engine) SignPermit(ctx context.Context, sess *signing.Session, req PermitRequest) (*Signed, error) {
	name, ok := schema.PermitKinds[req.Kind]
	if !ok {
		return nil, types.NewError("permit", req.Kind, types.ErrUnknownSchema)
	}

	owner, err := validator.NormalizeAddress(req.Owner)
	if err != nil {
		return nil, types.NewError("permit", "owner", err)
	}

	msg := schema.Message{"owner": owner}
	for k, v := range req.Params {
		msg[k] = v
	}

	cycle, err := e.requestSignature(ctx, sess, signing.Request{
		Schema:   name,
		Domain:   schema.Domain{VerifyingContract: req.Wager},
		Message:  msg,
		Nonce:    req.Nonce,
		ValidFor: firstPositive(req.ValidFor, e.permitWindow),
	})
	if err != nil {
		return nil, err
	}

	return e.assemble(cycle, nil)
}

// MetaTxRequest asks for a gasless token call. Without Calldata the engine
// builds approve(Spender, Amount scaled by Decimals).
type MetaTxRequest struct {
	Token    common.Address
	Spender  string
	Amount   string
	Decimals uint8
	Calldata []byte
	// DomainName skips the on-chain name() read when set.
	DomainName string
}

// SignMetaTransaction signs an executeMetaTransaction envelope for the token.
func (e *Engine) SignMetaTransaction(ctx context.Context, sess *signing.Session, req MetaTxRequest) (*Signed, error) {
	calldata := req.Calldata
	if len(calldata) == 0 {
		spender, err := validator.NormalizeAddress(req.Spender)
		if err != nil {
			return nil, types.NewError("meta-transaction", "spender", err)
		}
		amount, err := validator.ParseAmount(req.Amount, req.Decimals, 256)
		if err != nil {
			return nil, types.NewError("meta-transaction", "amount", err)
		}
		calldata, err = chain.ERC20().Pack("approve", spender, amount)
		if err != nil {
			return nil, types.NewError("meta-transaction", "functionSignature", fmt.Errorf("%w: %v", types.ErrFieldTypeMismatch, err))
		}
	}

	name := req.DomainName
	if name == "" {
		if e.reader == nil {
			return nil, types.NewError("meta-transaction", "name", fmt.Errorf("%w: no chain reader configured", types.ErrChainRead))
		}
		var err error
		name, err = e.reader.ContractName(ctx, req.Token)
		if err != nil {
			return nil, types.NewError("meta-transaction", "name", err)
		}
	}

	cycle, err := e.requestSignature(ctx, sess, signing.Request{
		Schema:  schema.MetaTransaction,
		Domain:  schema.Domain{Name: name, VerifyingContract: req.Token},
		Message: schema.Message{"functionSignature": calldata},
	})
	if err != nil {
		return nil, err
	}

	return e.assemble(cycle, nil)
}

// Receipt reports one submission.
type Receipt struct {
	TxHash  common.Hash
	Status  string
	GasUsed uint64
}

// Submit sends the session's pending cycle on-chain, waits for it to be
// mined and records the result. The cycle is consumed once the transaction
// is sent; a cycle that is no longer pending is refused.
func (e *Engine) Submit(ctx context.Context, sess *signing.Session, signed *Signed) (*Receipt, error) {
	if e.broadcaster == nil {
		return nil, types.NewError("submit", "", fmt.Errorf("%w: no broadcaster configured", types.ErrBroadcast))
	}
	if signed == nil || signed.Cycle == nil {
		return nil, types.NewError("submit", "", types.ErrIncompleteSignature)
	}

	cycle := signed.Cycle
	if sess == nil {
		return nil, types.NewError("submit", cycle.ID, fmt.Errorf("%w: no signer session", types.ErrSignerUnavailable))
	}
	if pending := sess.Pending(); pending == nil || pending.ID != cycle.ID {
		return nil, types.NewError("submit", cycle.ID, fmt.Errorf("%w: cycle is not pending", types.ErrStaleSignature))
	}

	// Re-assembling re-checks the deadline at send time.
	payload, err := e.assembler.Assemble(cycle)
	if err != nil {
		return nil, err
	}

	data, err := payload.Calldata()
	if err != nil {
		return nil, types.NewError("submit", "calldata", err)
	}

	tx, err := e.broadcaster.Send(ctx, payload.Contract, data)
	if err != nil {
		e.record(ctx, cycle, payload, "", storage.StatusFailed, 0)
		SubmissionsTotal.WithLabelValues(cycle.Schema, storage.StatusFailed).Inc()
		return nil, types.NewError("submit", "", err)
	}
	sess.Consume(cycle.ID)

	receipt, err := e.broadcaster.Wait(ctx, tx)
	result := &Receipt{TxHash: tx.Hash(), Status: storage.StatusConfirmed}
	if receipt != nil {
		result.GasUsed = receipt.GasUsed
	}
	if err != nil {
		result.Status = storage.StatusFailed
		if errors.Is(err, types.ErrTransactionReverted) {
			result.Status = storage.StatusReverted
		}
	}

	e.record(ctx, cycle, payload, tx.Hash().Hex(), result.Status, result.GasUsed)
	SubmissionsTotal.WithLabelValues(cycle.Schema, result.Status).Inc()

	if err != nil {
		return result, types.NewError("submit", tx.Hash().Hex(), err)
	}

	e.logger.Info("submission-confirmed",
		zap.String("cycle-id", cycle.ID),
		zap.String("tx-hash", tx.Hash().Hex()),
		zap.Uint64("gas-used", result.GasUsed))

	return result, nil
}

// ReadPrice reads a token's on-chain price. Raw also reads the stored name.
func (e *Engine) ReadPrice(ctx context.Context, aggregator common.Address, token common.Address, raw bool) (*chain.PriceData, error) {
	if e.reader == nil {
		return nil, types.NewError("read-price", "", fmt.Errorf("%w: no chain reader configured", types.ErrChainRead))
	}
	if raw {
		return e.reader.GetRawPriceData(ctx, aggregator, token)
	}
	return e.reader.GetPrice(ctx, aggregator, token)
}

// PreviewTypedData encodes a caller-complete message without signing it, so
// an external wallet can sign exactly the same structure.
func (e *Engine) PreviewTypedData(name string, domain schema.Domain, msg schema.Message) (*encoder.Encoded, error) {
	def, err := e.registry.Get(name)
	if err != nil {
		return nil, err
	}
	if def.Domain.SaltFromChainID && domain.Salt == nil && domain.ChainID != nil {
		salt := encoder.ChainSalt(domain.ChainID)
		domain.Salt = &salt
	}
	return e.encoder.Encode(def, domain, msg)
}

// ValidateBatch runs the batch filter without signing anything.
func (e *Engine) ValidateBatch(ctx context.Context, aggregator common.Address, candidates []validator.Candidate) (*validator.Outcome, error) {
	return e.validator.FilterBatch(ctx, e.feed(aggregator), candidates)
}

// Close releases the audit store.
func (e *Engine) Close() error {
	return e.storage.Close()
}

func (e *Engine) requestSignature(ctx context.Context, sess *signing.Session, req signing.Request) (*signing.Cycle, error) {
	if e.orchestrator == nil || sess == nil {
		return nil, types.NewError("request-signature", req.Schema, fmt.Errorf("%w: no signer session", types.ErrSignerUnavailable))
	}
	return e.orchestrator.RequestSignature(ctx, sess, req)
}

func (e *Engine) assemble(cycle *signing.Cycle, outcome *validator.Outcome) (*Signed, error) {
	payload, err := e.assembler.Assemble(cycle)
	if err != nil {
		return &Signed{Cycle: cycle, Outcome: outcome}, err
	}
	return &Signed{Cycle: cycle, Payload: payload, Outcome: outcome}, nil
}

// feed returns the cooldown reader for an aggregator, or nil without a chain.
func (e *Engine) feed(aggregator common.Address) validator.LastUpdateReader {
	if e.reader == nil {
		return nil
	}
	return e.reader.PriceFeed(aggregator)
}

func (e *Engine) record(ctx context.Context, cycle *signing.Cycle, payload *submission.Payload, txHash string, status string, gasUsed uint64) {
	sub := &storage.Submission{
		CycleID:       cycle.ID,
		SessionID:     cycle.SessionID,
		Schema:        cycle.Schema,
		SchemaVersion: cycle.SchemaVersion,
		Contract:      payload.Contract.Hex(),
		Method:        payload.Signature(),
		Deadline:      cycle.Deadline,
		TxHash:        txHash,
		Status:        status,
		GasUsed:       gasUsed,
		SubmittedAt:   e.now(),
	}
	if cycle.Signature != nil {
		sub.Signer = cycle.Signature.Signer.Hex()
		sub.Signature = cycle.Signature.Hex()
	}
	if cycle.Nonce != nil {
		sub.Nonce = cycle.Nonce.String()
	}
	if cycle.Encoded != nil {
		sub.Digest = cycle.Encoded.Digest.Hex()
	}

	err := e.storage.RecordSubmission(ctx, sub)
	if err != nil {
		e.logger.Error("record-submission-failed",
			zap.String("cycle-id", cycle.ID),
			zap.Error(err))
	}
}

func firstPositive(a time.Duration, b time.Duration) time.Duration {
	if a > 0 {
		return a
	}
	return b
}
