// Package store provides an in-memory ledger.Store (for testing/dev).
package store

import (
	"context"
	"sort"
	"sync"

	"github.com/shopspring/decimal"

	"github.com/drimstor/payment-statement/ledger"
)

// =============================================================================
// MEMORY STORE - In-memory implementation (for testing/dev)
// =============================================================================

// Memory holds the singleton state and ledger under one mutex, which
// trivially satisfies the conditional-write contract. Persistence-free
// by design: restart loses everything.
type Memory struct {
	mu     sync.RWMutex
	seed   decimal.Decimal
	state  *ledger.LoanState
	txs    []ledger.Transaction
	txSeen map[string]bool

	// FailWrites makes every mutation fail. Tests use it to verify
	// that store failures leave no partial effects.
	FailWrites error
}

// NewMemory creates an empty store seeding new state with initialDebt.
func NewMemory(initialDebt decimal.Decimal) *Memory {
	return &Memory{seed: initialDebt, txSeen: make(map[string]bool)}
}

// ReadState returns the singleton state, seeding it on first call.
func (m *Memory) ReadState(_ context.Context) (ledger.LoanState, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.readStateLocked(), nil
}

func (m *Memory) readStateLocked() ledger.LoanState {
	if m.state == nil {
		m.state = &ledger.LoanState{TotalDebt: m.seed, Version: 1}
	}
	return *m.state
}

// WriteState conditionally replaces the state.
func (m *Memory) WriteState(_ context.Context, state ledger.LoanState, expectedVersion int64) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.FailWrites != nil {
		return m.FailWrites
	}
	return m.writeStateLocked(state, expectedVersion)
}

func (m *Memory) writeStateLocked(state ledger.LoanState, expectedVersion int64) error {
	current := m.readStateLocked()
	if current.Version != expectedVersion {
		return ledger.ErrConcurrentModification
	}
	state.Version = expectedVersion + 1
	m.state = &state
	return nil
}

// AppendTransaction records one transaction. Append-only.
func (m *Memory) AppendTransaction(_ context.Context, tx ledger.Transaction) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.FailWrites != nil {
		return m.FailWrites
	}
	return m.appendLocked(tx)
}

func (m *Memory) appendLocked(tx ledger.Transaction) error {
	if m.txSeen[tx.ID] {
		return ledger.ErrDuplicateTransaction
	}
	m.txSeen[tx.ID] = true
	m.txs = append(m.txs, tx)
	return nil
}

// ListTransactions returns the ledger newest first. Ties on identical
// timestamps break by insertion order (the sqlite backend breaks the
// same tie by id instead; the contract allows either, as long as each
// backend is consistent across listings).
func (m *Memory) ListTransactions(_ context.Context) ([]ledger.Transaction, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	out := make([]ledger.Transaction, len(m.txs))
	copy(out, m.txs)
	sort.SliceStable(out, func(i, j int) bool {
		return out[i].Date.After(out[j].Date)
	})
	return out, nil
}

// Apply couples the conditional state write with the append. The
// single mutex makes the pair atomic.
func (m *Memory) Apply(_ context.Context, state ledger.LoanState, expectedVersion int64, tx ledger.Transaction) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.FailWrites != nil {
		return m.FailWrites
	}
	// Duplicate check first so a rejected append never leaves a
	// half-applied state write behind.
	if m.txSeen[tx.ID] {
		return ledger.ErrDuplicateTransaction
	}
	if err := m.writeStateLocked(state, expectedVersion); err != nil {
		return err
	}
	return m.appendLocked(tx)
}
