package ledger

import (
	"context"
	"math/big"
	"sync"
)

// Ledger remembers every random nonce this process (or fleet) has issued so
// the same value is never handed out twice.
type Ledger interface {
	// Reserve records nonce under scope. It returns false if the nonce was
	// already issued for that scope.
	Reserve(ctx context.Context, scope string, nonce *big.Int) (bool, error)
	Close() error
}

// MemoryLedger is a process-local Ledger.
type MemoryLedger struct {
	mu     sync.Mutex
	issued map[string]struct{}
}

// NewMemoryLedger creates an empty in-process ledger.
func NewMemoryLedger() *MemoryLedger {
	return &MemoryLedger{issued: make(map[string]struct{})}
}

// Reserve implements Ledger.
func (m *MemoryLedger) Reserve(_ context.Context, scope string, nonce *big.Int) (bool, error) {
	key := scope + ":" + nonce.Text(16)

	m.mu.Lock()
	defer m.mu.Unlock()

	if _, ok := m.issued[key]; ok {
		LedgerCollisionsTotal.Inc()
		return false, nil
	}
	m.issued[key] = struct{}{}
	return true, nil
}

// Len returns how many nonces have been reserved.
func (m *MemoryLedger) Len() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.issued)
}

// Close is a no-op for the in-memory ledger.
func (m *MemoryLedger) Close() error {
	return nil
}
