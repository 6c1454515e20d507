/*
Package sqlite provides a SQLite-backed implementation of ledger.Store.

PURPOSE:
  Document-style persistence: one row for the singleton loan state,
  one append-only table for the transaction ledger. The same SQL
  patterns apply to PostgreSQL - only minor dialect differences.

APPEND-ONLY ENFORCEMENT:
  - No UPDATE or DELETE statements touch the transactions table
  - The state row is only ever replaced through a version-guarded
    UPDATE, so optimistic concurrency works across processes sharing
    the same database file

SEEDING:
  ReadState inserts the seed row with INSERT OR IGNORE and reads it
  back. Concurrent first readers race on the insert, but only one row
  can win the fixed primary key, so they converge on one seed.

ATOMIC PAIR:
  Apply runs the state UPDATE and the ledger INSERT inside one SQL
  transaction. A version conflict or a duplicate transaction ID rolls
  the whole pair back.

WAL MODE:
  The database is opened with WAL for better concurrency: readers
  don't block, single writer at a time, better crash recovery.

USAGE:
  st, err := sqlite.New("./data/loan.db", decimal.NewFromInt(1000))
  if err != nil {
      log.Fatal(err)
  }
  defer st.Close()
  engine := ledger.NewEngine(st)

SEE ALSO:
  - ledger/store.go: interface definition and contract
  - store/redis: the key-value alternative
*/
package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	sqlite3 "github.com/mattn/go-sqlite3"
	"github.com/shopspring/decimal"

	"github.com/drimstor/payment-statement/ledger"
)

// stateKey addresses the singleton state row.
const stateKey = "state"

// dateLayout is RFC 3339 with fixed-width nanoseconds. RFC3339Nano
// trims trailing fractional zeros, which breaks the lexicographic
// ORDER BY date DESC ("...00.5Z" would sort after "...00.55Z"). Fixed
// width keeps string order equal to time order.
const dateLayout = "2006-01-02T15:04:05.000000000Z07:00"

// Store implements ledger.Store using SQLite.
type Store struct {
	db   *sql.DB
	seed decimal.Decimal
}

// New opens (or creates) the database at dbPath and migrates the
// schema. Use ":memory:" for an in-memory database. initialDebt seeds
// the state row on first read.
func New(dbPath string, initialDebt decimal.Decimal) (*Store, error) {
	db, err := sql.Open("sqlite3", dbPath+"?_foreign_keys=on&_journal_mode=WAL")
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	// One pooled connection: keeps ":memory:" a single database and
	// serializes writers, which SQLite wants anyway.
	db.SetMaxOpenConns(1)

	store := &Store{db: db, seed: initialDebt}
	if err := store.migrate(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to migrate database: %w", err)
	}
	return store, nil
}

// Close closes the database connection.
func (s *Store) Close() error {
	return s.db.Close()
}

// migrate creates the database schema.
func (s *Store) migrate() error {
	schema := `
	-- Singleton loan state, one row, fixed key
	CREATE TABLE IF NOT EXISTS loan_state (
		id TEXT PRIMARY KEY CHECK (id = 'state'),
		total_debt TEXT NOT NULL,
		last_interest_month TEXT NOT NULL DEFAULT '',
		version INTEGER NOT NULL
	);

	-- Transactions (append-only ledger)
	CREATE TABLE IF NOT EXISTS transactions (
		id TEXT PRIMARY KEY,
		tx_type TEXT NOT NULL,
		amount TEXT NOT NULL,
		date TEXT NOT NULL,
		balance_after TEXT NOT NULL
	);

	CREATE INDEX IF NOT EXISTS idx_transactions_date
		ON transactions(date DESC);
	`
	_, err := s.db.Exec(schema)
	return err
}

// =============================================================================
// LEDGER.STORE IMPLEMENTATION
// =============================================================================

// ReadState returns the singleton state, seeding it on first call.
func (s *Store) ReadState(ctx context.Context) (ledger.LoanState, error) {
	// Insert-if-absent: the fixed primary key makes the seed race safe.
	_, err := s.db.ExecContext(ctx,
		`INSERT OR IGNORE INTO loan_state (id, total_debt, last_interest_month, version)
		 VALUES (?, ?, '', 1)`,
		stateKey, s.seed.String())
	if err != nil {
		return ledger.LoanState{}, fmt.Errorf("seed state: %w", err)
	}

	row := s.db.QueryRowContext(ctx,
		`SELECT total_debt, last_interest_month, version FROM loan_state WHERE id = ?`,
		stateKey)

	var debtStr, month string
	var version int64
	if err := row.Scan(&debtStr, &month, &version); err != nil {
		return ledger.LoanState{}, fmt.Errorf("read state: %w", err)
	}

	debt, err := decimal.NewFromString(debtStr)
	if err != nil {
		return ledger.LoanState{}, fmt.Errorf("corrupt total_debt %q: %w", debtStr, err)
	}

	return ledger.LoanState{TotalDebt: debt, LastInterestMonth: month, Version: version}, nil
}

// WriteState conditionally replaces the state row.
func (s *Store) WriteState(ctx context.Context, state ledger.LoanState, expectedVersion int64) error {
	res, err := s.db.ExecContext(ctx,
		`UPDATE loan_state
		 SET total_debt = ?, last_interest_month = ?, version = version + 1
		 WHERE id = ? AND version = ?`,
		state.TotalDebt.String(), state.LastInterestMonth, stateKey, expectedVersion)
	if err != nil {
		return fmt.Errorf("write state: %w", err)
	}
	return checkConditionalWrite(res)
}

// AppendTransaction records one transaction. Append-only.
func (s *Store) AppendTransaction(ctx context.Context, tx ledger.Transaction) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO transactions (id, tx_type, amount, date, balance_after)
		 VALUES (?, ?, ?, ?, ?)`,
		tx.ID, string(tx.Type), tx.Amount.String(),
		tx.Date.UTC().Format(dateLayout), tx.BalanceAfter.String())
	if err != nil {
		if isUniqueViolation(err) {
			return ledger.ErrDuplicateTransaction
		}
		return fmt.Errorf("append transaction: %w", err)
	}
	return nil
}

// ListTransactions returns the full ledger, newest first. The id is a
// secondary sort key so identical timestamps order consistently.
func (s *Store) ListTransactions(ctx context.Context) ([]ledger.Transaction, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, tx_type, amount, date, balance_after
		 FROM transactions
		 ORDER BY date DESC, id DESC`)
	if err != nil {
		return nil, fmt.Errorf("list transactions: %w", err)
	}
	defer rows.Close()

	var txs []ledger.Transaction
	for rows.Next() {
		tx, err := scanTransaction(rows)
		if err != nil {
			return nil, err
		}
		txs = append(txs, tx)
	}
	return txs, rows.Err()
}

// Apply performs the conditional state write and the ledger append in
// one SQL transaction.
func (s *Store) Apply(ctx context.Context, state ledger.LoanState, expectedVersion int64, tx ledger.Transaction) error {
	dbTx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin apply: %w", err)
	}
	defer dbTx.Rollback()

	res, err := dbTx.ExecContext(ctx,
		`UPDATE loan_state
		 SET total_debt = ?, last_interest_month = ?, version = version + 1
		 WHERE id = ? AND version = ?`,
		state.TotalDebt.String(), state.LastInterestMonth, stateKey, expectedVersion)
	if err != nil {
		return fmt.Errorf("apply state: %w", err)
	}
	if err := checkConditionalWrite(res); err != nil {
		return err
	}

	_, err = dbTx.ExecContext(ctx,
		`INSERT INTO transactions (id, tx_type, amount, date, balance_after)
		 VALUES (?, ?, ?, ?, ?)`,
		tx.ID, string(tx.Type), tx.Amount.String(),
		tx.Date.UTC().Format(dateLayout), tx.BalanceAfter.String())
	if err != nil {
		if isUniqueViolation(err) {
			return ledger.ErrDuplicateTransaction
		}
		return fmt.Errorf("apply transaction: %w", err)
	}

	return dbTx.Commit()
}

// =============================================================================
// HELPERS
// =============================================================================

func checkConditionalWrite(res sql.Result) error {
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("rows affected: %w", err)
	}
	if n == 0 {
		return ledger.ErrConcurrentModification
	}
	return nil
}

func scanTransaction(rows *sql.Rows) (ledger.Transaction, error) {
	var tx ledger.Transaction
	var typ, amountStr, dateStr, balanceStr string

	if err := rows.Scan(&tx.ID, &typ, &amountStr, &dateStr, &balanceStr); err != nil {
		return ledger.Transaction{}, fmt.Errorf("scan transaction: %w", err)
	}
	tx.Type = ledger.TxType(typ)

	amount, err := decimal.NewFromString(amountStr)
	if err != nil {
		return ledger.Transaction{}, fmt.Errorf("corrupt amount %q: %w", amountStr, err)
	}
	tx.Amount = amount

	date, err := time.Parse(dateLayout, dateStr)
	if err != nil {
		return ledger.Transaction{}, fmt.Errorf("corrupt date %q: %w", dateStr, err)
	}
	tx.Date = date

	balance, err := decimal.NewFromString(balanceStr)
	if err != nil {
		return ledger.Transaction{}, fmt.Errorf("corrupt balance_after %q: %w", balanceStr, err)
	}
	tx.BalanceAfter = balance

	return tx, nil
}

func isUniqueViolation(err error) bool {
	var sqliteErr sqlite3.Error
	if errors.As(err, &sqliteErr) {
		return sqliteErr.Code == sqlite3.ErrConstraint
	}
	return false
}
