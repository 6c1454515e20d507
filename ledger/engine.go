/*
engine.go - Mutation logic for the loan ledger

PURPOSE:
  The Engine turns a requested mutation (payment or interest) into the
  next LoanState plus its Transaction record, and asks the Store to
  persist the pair. All balance rules live here; the Store only moves
  bytes.

BALANCE RULES:
  interest: newDebt = debt + amount
  payment:  newDebt = max(0, debt - amount)

  Overpayment is absorbed, not tracked as credit. That is deliberate
  observable behavior, not a bug.

CONCURRENCY:
  Apply is a compare-and-swap against the state version. On conflict
  the engine re-reads and recomputes from fresh state, so the final
  debt is always a sequential fold of all applied transactions in
  some serial order. Every conflict is another writer's commit, so
  retrying cannot livelock; cancellation bounds the loop.

SEE ALSO:
  - accrual.go: the monthly interest policy driving TxInterest
  - store.go: the persistence contract
*/
package ledger

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// Engine applies mutations to the loan ledger.
type Engine struct {
	store Store

	// now is injectable for tests; defaults to time.Now.
	now func() time.Time
}

// NewEngine creates an engine over the given store.
func NewEngine(store Store) *Engine {
	return &Engine{store: store, now: time.Now}
}

// WithClock overrides the engine's clock. Tests use it to pin
// transaction dates.
func (e *Engine) WithClock(now func() time.Time) *Engine {
	e.now = now
	return e
}

// =============================================================================
// APPLY TRANSACTION - The one mutation path
// =============================================================================

// ApplyTransaction validates and applies a single mutation, returning
// the updated state and the appended transaction.
//
// Validation happens before any store access: a ValidationError
// guarantees nothing was read or written.
func (e *Engine) ApplyTransaction(ctx context.Context, typ TxType, amount decimal.Decimal) (Result, error) {
	if !typ.Valid() {
		return Result{}, &ValidationError{Field: "type", Reason: "must be \"interest\" or \"payment\""}
	}
	if !amount.IsPositive() {
		return Result{}, &ValidationError{Field: "amount", Reason: "must be greater than zero"}
	}

	for {
		if err := ctx.Err(); err != nil {
			return Result{}, &StoreError{Op: "apply", Err: err}
		}

		state, err := e.store.ReadState(ctx)
		if err != nil {
			return Result{}, &StoreError{Op: "read state", Err: err}
		}

		next := state
		next.TotalDebt = nextDebt(state.TotalDebt, typ, amount)

		tx := Transaction{
			ID:           uuid.NewString(),
			Type:         typ,
			Amount:       amount,
			Date:         e.now().UTC(),
			BalanceAfter: next.TotalDebt,
		}

		err = e.store.Apply(ctx, next, state.Version, tx)
		if err == nil {
			next.Version = state.Version + 1
			return Result{State: next, Transaction: tx}, nil
		}
		// A conflict means another mutation committed in between:
		// re-read and recompute from the fresh state. Progress is
		// guaranteed because every conflict is someone else's commit.
		if errors.Is(err, ErrConcurrentModification) {
			continue
		}
		return Result{}, &StoreError{Op: "apply", Err: err}
	}
}

// nextDebt computes the balance after applying amount with the given
// sign. Payments clamp at zero; the debt is never negative.
func nextDebt(debt decimal.Decimal, typ TxType, amount decimal.Decimal) decimal.Decimal {
	if typ == TxInterest {
		return debt.Add(amount)
	}
	next := debt.Sub(amount)
	if next.IsNegative() {
		return decimal.Zero
	}
	return next
}

// =============================================================================
// SNAPSHOT - Read path
// =============================================================================

// Snapshot returns the current state and the full ledger, newest
// first. Pure read; seeds the state on very first access.
func (e *Engine) Snapshot(ctx context.Context) (Snapshot, error) {
	state, err := e.store.ReadState(ctx)
	if err != nil {
		return Snapshot{}, &StoreError{Op: "read state", Err: err}
	}
	txs, err := e.store.ListTransactions(ctx)
	if err != nil {
		return Snapshot{}, &StoreError{Op: "list transactions", Err: err}
	}
	return Snapshot{State: state, Transactions: txs}, nil
}
