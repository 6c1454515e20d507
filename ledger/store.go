/*
store.go - Persistence contract for the loan state and ledger

PURPOSE:
  Defines the interface between the ledger core and the database.
  Different implementations exist for SQLite, Redis, and memory;
  deployment picks one. The core never assumes more atomicity than
  this contract promises.

CONTRACT:
  - ReadState lazily seeds the singleton from a configured initial
    debt. Seeding must be insert-if-absent: concurrent first readers
    converge on one seeded record.
  - WriteState is conditional on the version read. A stale version
    fails with ErrConcurrentModification instead of overwriting.
  - AppendTransaction is append-only and idempotent on the
    transaction ID. No update, no delete. Ever.
  - Apply couples a conditional state write with a ledger append, as
    atomically as the backend allows (SQL transaction in SQLite,
    WATCH/MULTI in Redis, a mutex in memory). On any failure nothing
    of the pair is visible.

WHY CONDITIONAL WRITES?
  TotalDebt is a fold of the ledger. Two concurrent mutations that
  both read debt=1000 must not both write their own "next" balance -
  that loses one update and desyncs state from ledger. The version
  check forces a serial order; the engine retries the loser.

IMPLEMENTATIONS:
  - ledger/store:  in-memory, for tests and dev
  - store/sqlite:  document-style rows in SQLite
  - store/redis:   JSON values in Redis
*/
package ledger

import "context"

// Store handles persistence of the singleton LoanState and the
// append-only transaction ledger.
type Store interface {
	// ReadState returns the current state, seeding it from the
	// configured initial debt on first call.
	ReadState(ctx context.Context) (LoanState, error)

	// WriteState replaces the state if its stored version equals
	// expectedVersion. Returns ErrConcurrentModification otherwise.
	// The written state's version is expectedVersion+1.
	WriteState(ctx context.Context, state LoanState, expectedVersion int64) error

	// AppendTransaction durably records one immutable transaction.
	// Returns ErrDuplicateTransaction if the ID already exists.
	AppendTransaction(ctx context.Context, tx Transaction) error

	// ListTransactions returns the full ledger, newest first. Ties on
	// identical timestamps break arbitrarily but consistently.
	ListTransactions(ctx context.Context) ([]Transaction, error)

	// Apply performs WriteState and AppendTransaction as a single
	// logical unit. Either both are visible afterwards or neither is.
	Apply(ctx context.Context, state LoanState, expectedVersion int64, tx Transaction) error
}
