/*
Package ledger contains the loan ledger state machine.

PURPOSE:
  This package holds the domain-agnostic-free (single loan, single
  currency) but storage-agnostic core: the singleton LoanState, the
  append-only Transaction ledger, the mutation engine, and the monthly
  interest accrual policy.

KEY CONCEPTS IN THIS FILE (types.go):
  - LoanState: the one mutable record (current debt + accrual marker)
  - Transaction: an immutable ledger entry (interest or payment)
  - MonthKey: "YYYY-MM" idempotence key for interest accrual

DESIGN PRINCIPLES:
  1. Immutability: transactions are written once and never changed
  2. Precision: amounts use decimal.Decimal, never float math
  3. Derivability: LoanState.TotalDebt is a cached fold of the ledger;
     the two are always written together (see Store.Apply)

SEE ALSO:
  - engine.go: mutation logic (payments, interest)
  - accrual.go: monthly interest policy
  - store.go: persistence contract
*/
package ledger

import (
	"time"

	"github.com/shopspring/decimal"
)

// =============================================================================
// TRANSACTION - Immutable ledger entry
// =============================================================================

// TxType identifies the two kinds of ledger entries.
type TxType string

const (
	// TxInterest increases the debt (monthly accrual).
	TxInterest TxType = "interest"
	// TxPayment decreases the debt, clamped at zero.
	TxPayment TxType = "payment"
)

// Valid reports whether t is a known transaction type.
func (t TxType) Valid() bool {
	return t == TxInterest || t == TxPayment
}

// Transaction is one immutable ledger entry.
//
// INVARIANTS:
//   - Amount is strictly positive; the sign is carried by Type
//   - BalanceAfter equals the running debt immediately after this entry
//   - Entries are never updated or deleted, only appended
type Transaction struct {
	ID           string          `json:"id"`
	Type         TxType          `json:"type"`
	Amount       decimal.Decimal `json:"amount"`
	Date         time.Time       `json:"date"`
	BalanceAfter decimal.Decimal `json:"balanceAfter"`
}

// =============================================================================
// LOAN STATE - The singleton mutable record
// =============================================================================

// LoanState is the single loan record. There is exactly one, addressed
// by a fixed key inside each Store implementation.
//
// TotalDebt is a cached fold of the transaction ledger:
//
//	initialDebt + sum(interest) - sum(payments), clamped at zero per payment
//
// Version is the optimistic-concurrency token owned by the Store. It is
// never exposed over the wire; it only sequences conditional writes.
type LoanState struct {
	TotalDebt         decimal.Decimal `json:"totalDebt"`
	LastInterestMonth string          `json:"lastInterestMonth,omitempty"`
	Version           int64           `json:"-"`
}

// Snapshot pairs the current state with the full ledger, newest first.
type Snapshot struct {
	State        LoanState     `json:"state"`
	Transactions []Transaction `json:"transactions"`
}

// Result is returned by a successful mutation.
type Result struct {
	State       LoanState   `json:"state"`
	Transaction Transaction `json:"transaction"`
}

// =============================================================================
// MONTH KEY - Accrual idempotence key
// =============================================================================

// MonthKey returns the "YYYY-MM" key for t's calendar month, in t's
// location. The accrual policy uses it to apply interest at most once
// per month.
func MonthKey(t time.Time) string {
	return t.Format("2006-01")
}
