/*
accrual.go - Monthly interest accrual policy

PURPOSE:
  Decides, for a given "now", whether monthly interest should be
  accrued, and performs it exactly once per calendar month.

POLICY:
  - Gate 1: only on the accrual day of the month (the 28th).
  - Gate 2: only if LastInterestMonth != MonthKey(now).
  - Amount: TotalDebt * 5%, rounded half-up to 2 decimal places.

IDEMPOTENCE:
  The scheduler has at-least-once semantics (an external cron may fire
  several times on the same day, and the in-process ticker may overlap
  with it). Exactly-once application comes from two layers:
  - LastInterestMonth is checked before acting
  - it is set in the same conditional write that moves the balance,
    so two racing triggers cannot both win the CAS

ZERO DEBT:
  5% of zero is zero, and zero-amount transactions are not valid
  ledger entries. A zero-debt accrual still marks the month (so the
  run is recorded as applied) but appends no transaction.
*/
package ledger

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// DefaultAccrualDay is the fixed day-of-month gate.
const DefaultAccrualDay = 28

// InterestRate is the fixed monthly rate (5%).
var InterestRate = decimal.NewFromFloat(0.05)

// No-op reason codes reported when interest is not applied.
const (
	ReasonNotAccrualDay  = "not-the-accrual-day"
	ReasonAlreadyApplied = "already-applied-this-month"
)

// AccrualResult reports the outcome of one accrual run.
//
// Applied=false with a Reason is a deliberate no-op, not a failure.
// Transaction is nil for no-ops and for zero-debt accruals.
type AccrualResult struct {
	Applied     bool         `json:"applied"`
	Reason      string       `json:"reason,omitempty"`
	State       *LoanState   `json:"state,omitempty"`
	Transaction *Transaction `json:"transaction,omitempty"`
}

// AccrualPolicy applies monthly interest through a Store.
type AccrualPolicy struct {
	store Store

	// Day is the day-of-month gate. Defaults to DefaultAccrualDay;
	// overridable so operators can exercise the path in staging.
	Day int
}

// NewAccrualPolicy creates the policy over the given store.
func NewAccrualPolicy(store Store) *AccrualPolicy {
	return &AccrualPolicy{store: store, Day: DefaultAccrualDay}
}

// Run evaluates the policy at the given instant and applies interest
// if both gates pass. now is interpreted in its own location (the
// scheduler's local time zone decides what "the 28th" means).
func (p *AccrualPolicy) Run(ctx context.Context, now time.Time) (AccrualResult, error) {
	if now.Day() != p.Day {
		return AccrualResult{Applied: false, Reason: ReasonNotAccrualDay}, nil
	}

	monthKey := MonthKey(now)

	for {
		if err := ctx.Err(); err != nil {
			return AccrualResult{}, &StoreError{Op: "apply interest", Err: err}
		}

		state, err := p.store.ReadState(ctx)
		if err != nil {
			return AccrualResult{}, &StoreError{Op: "read state", Err: err}
		}

		if state.LastInterestMonth == monthKey {
			return AccrualResult{Applied: false, Reason: ReasonAlreadyApplied}, nil
		}

		interest := state.TotalDebt.Mul(InterestRate).Round(2)

		next := state
		next.LastInterestMonth = monthKey
		next.TotalDebt = state.TotalDebt.Add(interest)

		if interest.IsZero() {
			// Nothing owed, nothing to append. Still mark the month.
			err = p.store.WriteState(ctx, next, state.Version)
			if err == nil {
				next.Version = state.Version + 1
				return AccrualResult{Applied: true, State: &next}, nil
			}
		} else {
			tx := Transaction{
				ID:           uuid.NewString(),
				Type:         TxInterest,
				Amount:       interest,
				Date:         now.UTC(),
				BalanceAfter: next.TotalDebt,
			}
			err = p.store.Apply(ctx, next, state.Version, tx)
			if err == nil {
				next.Version = state.Version + 1
				return AccrualResult{Applied: true, State: &next, Transaction: &tx}, nil
			}
		}

		// A concurrent trigger may have won the race; re-read and let
		// the month check turn this run into a no-op.
		if errors.Is(err, ErrConcurrentModification) {
			continue
		}
		return AccrualResult{}, &StoreError{Op: "apply interest", Err: err}
	}
}
