package signing

import (
	"math/big"
	"sync"
	"sync/atomic"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/mselser95/typed-signer/internal/encoder"
	"github.com/mselser95/typed-signer/internal/schema"
)

// Session is one connected signer identity. It carries at most one pending
// signed cycle and refuses overlapping signing requests.
type Session struct {
	ID          string
	Identity    common.Address
	ChainID     *big.Int
	ConnectedAt time.Time

	inFlight atomic.Bool
	mu       sync.Mutex
	pending  *Cycle
}

// Pending returns the last successfully signed, not yet consumed cycle.
func (s *Session) Pending() *Cycle {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.pending
}

// Consume clears the pending cycle if it is cycleID.
func (s *Session) Consume(cycleID string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.pending == nil || s.pending.ID != cycleID {
		return false
	}
	s.pending = nil
	return true
}

func (s *Session) setPending(c *Cycle) {
	s.mu.Lock()
	s.pending = c
	s.mu.Unlock()
}

// Cycle is one signing cycle: the fully populated message and its signature.
// A cycle is never reused; resubmitting needs a fresh request.
type Cycle struct {
	ID            string
	SessionID     string
	Schema        string
	SchemaVersion string
	Domain        schema.Domain
	Message       schema.Message
	Nonce         *big.Int
	Deadline      time.Time // zero when the schema has no deadline
	Encoded       *encoder.Encoded
	Signature     *Signature
	CreatedAt     time.Time
}

// Contract is the verifying contract the signature is bound to.
func (c *Cycle) Contract() common.Address {
	return c.Domain.VerifyingContract
}
