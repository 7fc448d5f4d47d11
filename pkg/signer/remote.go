package signer

import (
	"context"
	"fmt"
	"math/big"
	"sync"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/ethereum/go-ethereum/signer/core/apitypes"
	"github.com/goccy/go-json"
	"github.com/gorilla/websocket"
	"github.com/mselser95/typed-signer/internal/encoder"
	"github.com/mselser95/typed-signer/pkg/types"
	"go.uber.org/zap"
)

// EIP-1193 provider error codes.
const (
	codeUserRejected   = 4001
	codeUnauthorized   = 4100
	codeDisconnected   = 4900
	codeChainDisconn   = 4901
	jsonRPCVersion     = "2.0"
	methodAccounts     = "eth_requestAccounts"
	methodChainID      = "eth_chainId"
	methodSignTypedV4  = "eth_signTypedData_v4"
	defaultDialTimeout = 10 * time.Second
)

type rpcRequest struct {
	JSONRPC string        `json:"jsonrpc"`
	ID      uint64        `json:"id"`
	Method  string        `json:"method"`
	Params  []interface{} `json:"params"`
}

type rpcResponse struct {
	JSONRPC string          `json:"jsonrpc"`
	ID      uint64          `json:"id"`
	Result  json.RawMessage `json:"result,omitempty"`
	Error   *rpcError       `json:"error,omitempty"`
}

type rpcError struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
}

// RemoteSigner forwards signing requests to a user wallet through a
// websocket JSON-RPC bridge (the page hosting the wallet relays calls to
// window.ethereum). Requests are serialized; one prompt at a time.
type RemoteSigner struct {
	url            string
	dialTimeout    time.Duration
	requestTimeout time.Duration
	logger         *zap.Logger

	mu      sync.Mutex
	conn    *websocket.Conn
	nextID  uint64
	account common.Address
}

// RemoteConfig holds RemoteSigner configuration.
type RemoteConfig struct {
	URL            string
	DialTimeout    time.Duration
	RequestTimeout time.Duration // upper bound on waiting for the user; 0 = context only
	Logger         *zap.Logger
}

// NewRemoteSigner creates a RemoteSigner. The connection is opened by Connect.
func NewRemoteSigner(cfg *RemoteConfig) (*RemoteSigner, error) {
	if cfg.URL == "" {
		return nil, fmt.Errorf("bridge URL cannot be empty")
	}

	dialTimeout := cfg.DialTimeout
	if dialTimeout == 0 {
		dialTimeout = defaultDialTimeout
	}

	return &RemoteSigner{
		url:            cfg.URL,
		dialTimeout:    dialTimeout,
		requestTimeout: cfg.RequestTimeout,
		logger:         cfg.Logger,
	}, nil
}

// Connect dials the bridge if needed and asks the wallet for its account.
func (r *RemoteSigner) Connect(ctx context.Context) (common.Address, error) {
	var accounts []string
	err := r.call(ctx, methodAccounts, nil, &accounts)
	if err != nil {
		return common.Address{}, err
	}
	if len(accounts) == 0 {
		return common.Address{}, fmt.Errorf("%w: wallet exposed no accounts", types.ErrSignerUnavailable)
	}

	account, err := encoder.ParseAddress(accounts[0])
	if err != nil {
		return common.Address{}, fmt.Errorf("%w: wallet account: %v", types.ErrSignerError, err)
	}

	r.mu.Lock()
	r.account = account
	r.mu.Unlock()

	r.logger.Info("remote-signer-connected", zap.String("account", account.Hex()))
	return account, nil
}

// ChainID asks the wallet which chain it is on.
func (r *RemoteSigner) ChainID(ctx context.Context) (*big.Int, error) {
	var hexID string
	err := r.call(ctx, methodChainID, nil, &hexID)
	if err != nil {
		return nil, err
	}

	id, err := hexutil.DecodeBig(hexID)
	if err != nil {
		return nil, fmt.Errorf("%w: chain id %q: %v", types.ErrSignerError, hexID, err)
	}
	return id, nil
}

// SignTypedData prompts the wallet with eth_signTypedData_v4.
func (r *RemoteSigner) SignTypedData(ctx context.Context, td apitypes.TypedData) ([]byte, error) {
	r.mu.Lock()
	account := r.account
	r.mu.Unlock()

	if account == (common.Address{}) {
		return nil, fmt.Errorf("%w: not connected", types.ErrSignerUnavailable)
	}

	payload, err := json.Marshal(encoder.WireTypedData(td))
	if err != nil {
		return nil, fmt.Errorf("%w: marshal typed data: %v", types.ErrSignerError, err)
	}

	var sigHex string
	err = r.call(ctx, methodSignTypedV4, []interface{}{account.Hex(), string(payload)}, &sigHex)
	if err != nil {
		return nil, err
	}

	sig, err := hexutil.Decode(sigHex)
	if err != nil {
		return nil, fmt.Errorf("%w: signature %q: %v", types.ErrSignerError, sigHex, err)
	}
	return sig, nil
}

// Close closes the bridge connection.
func (r *RemoteSigner) Close() error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.conn == nil {
		return nil
	}
	err := r.conn.Close()
	r.conn = nil
	r.logger.Info("remote-signer-closed")
	return err
}

func (r *RemoteSigner) call(ctx context.Context, method string, params []interface{}, result interface{}) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.requestTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, r.requestTimeout)
		defer cancel()
	}

	conn, err := r.ensureConn(ctx)
	if err != nil {
		return err
	}

	if params == nil {
		params = []interface{}{}
	}
	r.nextID++
	req := rpcRequest{JSONRPC: jsonRPCVersion, ID: r.nextID, Method: method, Params: params}

	body, err := json.Marshal(req)
	if err != nil {
		return fmt.Errorf("%w: marshal %s: %v", types.ErrSignerError, method, err)
	}

	_ = conn.SetReadDeadline(time.Time{})

	// Unblock reads when the caller gives up.
	stop := make(chan struct{})
	watcherDone := make(chan struct{})
	go func() {
		defer close(watcherDone)
		select {
		case <-ctx.Done():
			_ = conn.SetReadDeadline(time.Now())
		case <-stop:
		}
	}()
	defer func() {
		close(stop)
		<-watcherDone
	}()

	start := time.Now()
	err = conn.WriteMessage(websocket.TextMessage, body)
	if err != nil {
		r.dropConn()
		return fmt.Errorf("%w: write %s: %v", types.ErrSignerUnavailable, method, err)
	}

	for {
		_, message, err := conn.ReadMessage()
		if err != nil {
			r.dropConn()
			if ctx.Err() != nil {
				return fmt.Errorf("%w: %s: %v", types.ErrSignerError, method, ctx.Err())
			}
			return fmt.Errorf("%w: read %s: %v", types.ErrSignerUnavailable, method, err)
		}

		var resp rpcResponse
		err = json.Unmarshal(message, &resp)
		if err != nil {
			r.logger.Debug("bridge-message-ignored", zap.Int("bytes", len(message)))
			continue
		}
		if resp.ID != req.ID {
			continue
		}

		BridgeRequestDuration.WithLabelValues(method).Observe(time.Since(start).Seconds())

		if resp.Error != nil {
			return classifyRPCError(method, resp.Error)
		}
		if result == nil {
			return nil
		}
		err = json.Unmarshal(resp.Result, result)
		if err != nil {
			return fmt.Errorf("%w: decode %s result: %v", types.ErrSignerError, method, err)
		}
		return nil
	}
}

func (r *RemoteSigner) ensureConn(ctx context.Context) (*websocket.Conn, error) {
	if r.conn != nil {
		return r.conn, nil
	}

	dialer := websocket.Dialer{HandshakeTimeout: r.dialTimeout}

	r.logger.Info("connecting-to-signer-bridge", zap.String("url", r.url))

	conn, _, err := dialer.DialContext(ctx, r.url, nil)
	if err != nil {
		return nil, fmt.Errorf("%w: dial bridge: %v", types.ErrSignerUnavailable, err)
	}

	r.conn = conn
	return conn, nil
}

// dropConn discards a broken connection; the next call redials. Caller holds mu.
func (r *RemoteSigner) dropConn() {
	if r.conn != nil {
		_ = r.conn.Close()
		r.conn = nil
	}
}

func classifyRPCError(method string, e *rpcError) error {
	var kind error
	switch e.Code {
	case codeUserRejected:
		kind = types.ErrUserRejected
	case codeUnauthorized, codeDisconnected, codeChainDisconn:
		kind = types.ErrSignerUnavailable
	default:
		kind = types.ErrSignerError
	}
	return fmt.Errorf("%w: %s: %s (code %d)", kind, method, e.Message, e.Code)
}
