package signing

import (
	"context"
	"errors"
	"fmt"
	"math/big"
	"testing"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/signer/core/apitypes"
	"github.com/mselser95/typed-signer/internal/schema"
	"github.com/mselser95/typed-signer/pkg/ledger"
	"github.com/mselser95/typed-signer/pkg/signer"
	"github.com/mselser95/typed-signer/pkg/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

const (
	testKey   = "ac0974bec39a17e36ba4a6b4d238ff944bacb478cbed5efcae784d7bf4f2ff80"
	otherKey  = "59c6995e998f97a5a0044966f0945389dc9e86dae88c7a8412f4603b6b78690d"
)

var (
	testToken      = common.HexToAddress("0xaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaa").Hex()
	testAccount    = common.HexToAddress("0xf39Fd6e51aad88F6F4ce6aB8827279cffFb92266")
	testAggregator = common.HexToAddress("0x5FbDB2315678afecb367f032d93F642f64180aa3")
	testWager      = common.HexToAddress("0xe7f1725E7734CE288F8367e1Bb143E90bb3F0512")
	testSpender    = common.HexToAddress("0x70997970C51812dc3A010C7d01b50e0d17dc79C8")
	fixedNow       = time.Unix(1700000000, 0)
)

func newKeySigner(t *testing.T, key string) *signer.KeySigner {
	t.Helper()
	s, err := signer.NewKeySigner(&signer.KeyConfig{PrivateKey: key, ChainID: big.NewInt(11155111), Logger: zap.NewNop()})
	require.NoError(t, err)
	return s
}

type testOptions struct {
	signer  Signer
	counter CounterReader
	ledger  ledger.Ledger
}

func newOrchestrator(t *testing.T, opts testOptions) *Orchestrator {
	t.Helper()

	registry := schema.NewRegistry(zap.NewNop())
	require.NoError(t, schema.RegisterDefaults(registry))

	if opts.signer == nil {
		opts.signer = newKeySigner(t, testKey)
	}

	o, err := New(&Config{
		Registry: registry,
		Signer:   opts.signer,
		Ledger:   opts.ledger,
		Counter:  opts.counter,
		Logger:   zap.NewNop(),
		Now:      func() time.Time { return fixedNow },
	})
	require.NoError(t, err)
	return o
}

func priceRequest() Request {
	return Request{
		Schema: schema.SinglePriceUpdate,
		Domain: schema.Domain{VerifyingContract: testAggregator},
		Message: schema.Message{
			"token":    testToken,
			"price":    big.NewInt(10050000000),
			"decimals": uint8(8),
		},
	}
}

type fakeCounter struct {
	nonce    *big.Int
	err      error
	contract common.Address
	method   string
	account  common.Address
}

func (f *fakeCounter) CounterNonce(_ context.Context, contract common.Address, method string, account common.Address) (*big.Int, error) {
	f.contract, f.method, f.account = contract, method, account
	return f.nonce, f.err
}

// rejectingSigner connects normally but the user declines every prompt.
type rejectingSigner struct {
	*signer.KeySigner
}

func (rejectingSigner) SignTypedData(context.Context, apitypes.TypedData) ([]byte, error) {
	return nil, fmt.Errorf("%w: user denied", types.ErrUserRejected)
}

// impostorSigner reports one account but signs with another key.
type impostorSigner struct {
	*signer.KeySigner
	claimed common.Address
}

func (s impostorSigner) Connect(context.Context) (common.Address, error) {
	return s.claimed, nil
}

// blockingSigner holds every signing prompt until released.
type blockingSigner struct {
	*signer.KeySigner
	entered chan struct{}
	release chan struct{}
}

func (s blockingSigner) SignTypedData(ctx context.Context, td apitypes.TypedData) ([]byte, error) {
	close(s.entered)
	<-s.release
	return s.KeySigner.SignTypedData(ctx, td)
}

type constReader struct{}

func (constReader) Read(p []byte) (int, error) {
	for i := range p {
		p[i] = 0x42
	}
	return len(p), nil
}

func TestConnect(t *testing.T) {
	o := newOrchestrator(t, testOptions{})

	sess, err := o.Connect(context.Background())
	require.NoError(t, err)
	assert.Equal(t, testAccount, sess.Identity)
	assert.Equal(t, int64(11155111), sess.ChainID.Int64())
	assert.NotEmpty(t, sess.ID)
	assert.Nil(t, sess.Pending())
}

func TestRequestSignature_SinglePrice(t *testing.T) {
	o := newOrchestrator(t, testOptions{})
	sess, err := o.Connect(context.Background())
	require.NoError(t, err)

	cycle, err := o.RequestSignature(context.Background(), sess, priceRequest())
	require.NoError(t, err)

	assert.Equal(t, schema.SinglePriceUpdate, cycle.Schema)
	assert.Equal(t, fixedNow.Add(60*time.Second).Unix(), cycle.Deadline.Unix())
	assert.Equal(t, 0, big.NewInt(fixedNow.Unix()+60).Cmp(cycle.Message["validUntil"].(*big.Int)))
	assert.Equal(t, 0, cycle.Nonce.Cmp(cycle.Message["nonce"].(*big.Int)))
	assert.Equal(t, int64(11155111), cycle.Domain.ChainID.Int64())

	require.True(t, cycle.Signature.Complete())
	assert.Equal(t, testAccount, cycle.Signature.Signer)
	recovered, err := cycle.Signature.Recover(cycle.Encoded.Digest)
	require.NoError(t, err)
	assert.Equal(t, testAccount, recovered)

	assert.Same(t, cycle, sess.Pending())
}

func TestRequestSignature_FreshRandomNonces(t *testing.T) {
	o := newOrchestrator(t, testOptions{})
	sess, err := o.Connect(context.Background())
	require.NoError(t, err)

	first, err := o.RequestSignature(context.Background(), sess, priceRequest())
	require.NoError(t, err)
	second, err := o.RequestSignature(context.Background(), sess, priceRequest())
	require.NoError(t, err)

	assert.NotEqual(t, 0, first.Nonce.Cmp(second.Nonce))
	assert.NotEqual(t, first.Encoded.Digest, second.Encoded.Digest)
	assert.NotEqual(t, first.ID, second.ID)
	assert.Same(t, second, sess.Pending())
}

func TestRequestSignature_SuppliedNonce(t *testing.T) {
	o := newOrchestrator(t, testOptions{})
	sess, err := o.Connect(context.Background())
	require.NoError(t, err)

	req := priceRequest()
	req.Nonce = big.NewInt(7)
	req.ValidFor = 5 * time.Minute

	cycle, err := o.RequestSignature(context.Background(), sess, req)
	require.NoError(t, err)
	assert.Equal(t, int64(7), cycle.Nonce.Int64())
	assert.Equal(t, fixedNow.Add(5*time.Minute).Unix(), cycle.Deadline.Unix())

	// Re-supplying the same nonce is honored.
	again, err := o.RequestSignature(context.Background(), sess, req)
	require.NoError(t, err)
	assert.Equal(t, int64(7), again.Nonce.Int64())
}

func TestRequestSignature_NonceCollisionsExhausted(t *testing.T) {
	o := newOrchestrator(t, testOptions{})
	o.random = constReader{}

	sess, err := o.Connect(context.Background())
	require.NoError(t, err)

	_, err = o.RequestSignature(context.Background(), sess, priceRequest())
	require.NoError(t, err)

	_, err = o.RequestSignature(context.Background(), sess, priceRequest())
	assert.Error(t, err)
}

func TestRequestSignature_SequentialPermit(t *testing.T) {
	counter := &fakeCounter{nonce: big.NewInt(3)}
	o := newOrchestrator(t, testOptions{counter: counter})
	sess, err := o.Connect(context.Background())
	require.NoError(t, err)

	cycle, err := o.RequestSignature(context.Background(), sess, Request{
		Schema: schema.BetPermit,
		Domain: schema.Domain{VerifyingContract: testWager},
		Message: schema.Message{
			"owner": testSpender,
			"value": big.NewInt(1000),
			"betOn": big.NewInt(1),
		},
	})
	require.NoError(t, err)

	assert.Equal(t, int64(3), cycle.Nonce.Int64())
	assert.Equal(t, testWager, counter.contract)
	assert.Equal(t, "nonces", counter.method)
	assert.Equal(t, testAccount, counter.account)
	assert.Equal(t, testAccount, cycle.Message["user"])
	assert.Equal(t, fixedNow.Add(time.Hour).Unix(), cycle.Deadline.Unix())
}

func TestRequestSignature_SequentialReadFailure(t *testing.T) {
	o := newOrchestrator(t, testOptions{counter: &fakeCounter{err: errors.New("execution reverted")}})
	sess, err := o.Connect(context.Background())
	require.NoError(t, err)

	_, err = o.RequestSignature(context.Background(), sess, Request{
		Schema:  schema.CancelPermit,
		Domain:  schema.Domain{VerifyingContract: testWager},
		Message: schema.Message{"owner": testSpender, "listNo": big.NewInt(2)},
	})
	assert.True(t, errors.Is(err, types.ErrChainRead), "got %v", err)
	assert.Equal(t, types.KindExternal, types.KindOf(err))
	assert.Nil(t, sess.Pending())
}

func TestRequestSignature_Failures(t *testing.T) {
	tests := []struct {
		name     string
		signer   func(t *testing.T) Signer
		mutate   func(r *Request)
		wantErr  error
		wantKind types.ErrorKind
	}{
		{
			name:     "user_rejected",
			signer:   func(t *testing.T) Signer { return rejectingSigner{newKeySigner(t, testKey)} },
			wantErr:  types.ErrUserRejected,
			wantKind: types.KindExternal,
		},
		{
			name: "signature_from_wrong_key",
			signer: func(t *testing.T) Signer {
				return impostorSigner{KeySigner: newKeySigner(t, otherKey), claimed: testAccount}
			},
			wantErr:  types.ErrSignerError,
			wantKind: types.KindExternal,
		},
		{
			name:     "unknown_schema",
			mutate:   func(r *Request) { r.Schema = "nope" },
			wantErr:  types.ErrUnknownSchema,
			wantKind: types.KindInput,
		},
		{
			name:     "bad_field",
			mutate:   func(r *Request) { r.Message["decimals"] = 300 },
			wantErr:  types.ErrFieldTypeMismatch,
			wantKind: types.KindInput,
		},
		{
			name:     "missing_contract",
			mutate:   func(r *Request) { r.Domain.VerifyingContract = common.Address{} },
			wantErr:  types.ErrFieldTypeMismatch,
			wantKind: types.KindInput,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			opts := testOptions{}
			if tt.signer != nil {
				opts.signer = tt.signer(t)
			}
			o := newOrchestrator(t, opts)
			sess, err := o.Connect(context.Background())
			require.NoError(t, err)

			req := priceRequest()
			if tt.mutate != nil {
				tt.mutate(&req)
			}

			cycle, err := o.RequestSignature(context.Background(), sess, req)
			assert.Nil(t, cycle)
			assert.True(t, errors.Is(err, tt.wantErr), "got %v", err)
			assert.Equal(t, tt.wantKind, types.KindOf(err))
			assert.Nil(t, sess.Pending())
		})
	}
}

func TestRequestSignature_RejectionKeepsPreviousCycle(t *testing.T) {
	key := newKeySigner(t, testKey)
	o := newOrchestrator(t, testOptions{signer: key})
	sess, err := o.Connect(context.Background())
	require.NoError(t, err)

	first, err := o.RequestSignature(context.Background(), sess, priceRequest())
	require.NoError(t, err)

	o.signer = rejectingSigner{key}
	_, err = o.RequestSignature(context.Background(), sess, priceRequest())
	require.True(t, errors.Is(err, types.ErrUserRejected))

	assert.Same(t, first, sess.Pending())
}

func TestRequestSignature_OneInFlight(t *testing.T) {
	blocking := blockingSigner{
		KeySigner: newKeySigner(t, testKey),
		entered:   make(chan struct{}),
		release:   make(chan struct{}),
	}
	o := newOrchestrator(t, testOptions{signer: blocking})
	sess, err := o.Connect(context.Background())
	require.NoError(t, err)

	firstDone := make(chan error, 1)
	go func() {
		_, err := o.RequestSignature(context.Background(), sess, priceRequest())
		firstDone <- err
	}()

	select {
	case <-blocking.entered:
	case err := <-firstDone:
		t.Fatalf("first request finished before reaching the signer: %v", err)
	case <-time.After(5 * time.Second):
		t.Fatal("first request never reached the signer")
	}

	_, err = o.RequestSignature(context.Background(), sess, priceRequest())
	assert.True(t, errors.Is(err, types.ErrSigningInProgress), "got %v", err)
	assert.Equal(t, types.KindProtocol, types.KindOf(err))

	close(blocking.release)
	select {
	case err := <-firstDone:
		require.NoError(t, err)
	case <-time.After(5 * time.Second):
		t.Fatal("first request did not finish after release")
	}
	assert.NotNil(t, sess.Pending())
}

func TestRequestSignature_FixtureTokenIsChecksummed(t *testing.T) {
	o := newOrchestrator(t, testOptions{})
	sess, err := o.Connect(context.Background())
	require.NoError(t, err)

	cycle, err := o.RequestSignature(context.Background(), sess, priceRequest())
	require.NoError(t, err)
	assert.Equal(t, testToken, cycle.Message["token"])
	assert.Equal(t, "0xaAaAaAaaAaAaAaaAaAAAAAAAAaaaAaAaAaaAaaAa", testToken)
}

func TestSession_Consume(t *testing.T) {
	o := newOrchestrator(t, testOptions{})
	sess, err := o.Connect(context.Background())
	require.NoError(t, err)

	cycle, err := o.RequestSignature(context.Background(), sess, priceRequest())
	require.NoError(t, err)

	assert.False(t, sess.Consume("other"))
	assert.True(t, sess.Consume(cycle.ID))
	assert.Nil(t, sess.Pending())
	assert.False(t, sess.Consume(cycle.ID))
}
