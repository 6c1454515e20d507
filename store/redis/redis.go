/*
Package redis provides a Redis-backed implementation of ledger.Store.

PURPOSE:
  Key-value persistence for deployments that already run Redis and
  don't want a database file. Interchangeable with the SQLite backend;
  the core never knows which one it talks to.

KEY LAYOUT:
  loan:state         JSON document {totalDebt, lastInterestMonth, version}
  loan:transactions  list of JSON transactions, LPUSH so newest first
  loan:tx:{id}       marker key enforcing append idempotency

SEEDING:
  ReadState seeds with SETNX and reads back. Concurrent first readers
  race on SETNX, only one wins, everyone converges on one seed.

ATOMIC PAIR:
  Apply runs under WATCH loan:state. The version embedded in the JSON
  document is checked after the read; the state SET, the marker SETNX
  and the ledger LPUSH go through one MULTI/EXEC pipeline. If another
  writer touches the state key first, EXEC fails and the conflict is
  reported as ErrConcurrentModification.

SEE ALSO:
  - ledger/store.go: interface definition and contract
  - store/sqlite: the document-style alternative
*/
package redis

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/shopspring/decimal"

	"github.com/drimstor/payment-statement/ledger"
)

const (
	stateKey = "loan:state"
	listKey  = "loan:transactions"
	txPrefix = "loan:tx:"
)

// Store implements ledger.Store using Redis.
type Store struct {
	client *redis.Client
	seed   decimal.Decimal
}

// New connects to Redis at addr. initialDebt seeds the state document
// on first read.
func New(addr string, initialDebt decimal.Decimal) *Store {
	client := redis.NewClient(&redis.Options{Addr: addr})
	return &Store{client: client, seed: initialDebt}
}

// Close releases the underlying connection pool.
func (s *Store) Close() error {
	return s.client.Close()
}

// Ping verifies connectivity. Called once at startup.
func (s *Store) Ping(ctx context.Context) error {
	return s.client.Ping(ctx).Err()
}

// Flush removes every key this store owns. Test support; nothing in
// the serving path deletes anything.
func (s *Store) Flush(ctx context.Context) error {
	iter := s.client.Scan(ctx, 0, txPrefix+"*", 0).Iterator()
	keys := []string{stateKey, listKey}
	for iter.Next(ctx) {
		keys = append(keys, iter.Val())
	}
	if err := iter.Err(); err != nil {
		return fmt.Errorf("scan markers: %w", err)
	}
	return s.client.Del(ctx, keys...).Err()
}

// =============================================================================
// WIRE DOCUMENTS - Redis stores strings; decimals travel as strings
// =============================================================================

type stateDoc struct {
	TotalDebt         string `json:"totalDebt"`
	LastInterestMonth string `json:"lastInterestMonth,omitempty"`
	Version           int64  `json:"version"`
}

type txDoc struct {
	ID           string    `json:"id"`
	Type         string    `json:"type"`
	Amount       string    `json:"amount"`
	Date         time.Time `json:"date"`
	BalanceAfter string    `json:"balanceAfter"`
}

func encodeState(state ledger.LoanState, version int64) ([]byte, error) {
	return json.Marshal(stateDoc{
		TotalDebt:         state.TotalDebt.String(),
		LastInterestMonth: state.LastInterestMonth,
		Version:           version,
	})
}

func decodeState(raw string) (ledger.LoanState, error) {
	var doc stateDoc
	if err := json.Unmarshal([]byte(raw), &doc); err != nil {
		return ledger.LoanState{}, fmt.Errorf("corrupt state document: %w", err)
	}
	debt, err := decimal.NewFromString(doc.TotalDebt)
	if err != nil {
		return ledger.LoanState{}, fmt.Errorf("corrupt totalDebt %q: %w", doc.TotalDebt, err)
	}
	return ledger.LoanState{
		TotalDebt:         debt,
		LastInterestMonth: doc.LastInterestMonth,
		Version:           doc.Version,
	}, nil
}

func encodeTx(tx ledger.Transaction) ([]byte, error) {
	return json.Marshal(txDoc{
		ID:           tx.ID,
		Type:         string(tx.Type),
		Amount:       tx.Amount.String(),
		Date:         tx.Date.UTC(),
		BalanceAfter: tx.BalanceAfter.String(),
	})
}

func decodeTx(raw string) (ledger.Transaction, error) {
	var doc txDoc
	if err := json.Unmarshal([]byte(raw), &doc); err != nil {
		return ledger.Transaction{}, fmt.Errorf("corrupt transaction document: %w", err)
	}
	amount, err := decimal.NewFromString(doc.Amount)
	if err != nil {
		return ledger.Transaction{}, fmt.Errorf("corrupt amount %q: %w", doc.Amount, err)
	}
	balance, err := decimal.NewFromString(doc.BalanceAfter)
	if err != nil {
		return ledger.Transaction{}, fmt.Errorf("corrupt balanceAfter %q: %w", doc.BalanceAfter, err)
	}
	return ledger.Transaction{
		ID:           doc.ID,
		Type:         ledger.TxType(doc.Type),
		Amount:       amount,
		Date:         doc.Date,
		BalanceAfter: balance,
	}, nil
}

// =============================================================================
// LEDGER.STORE IMPLEMENTATION
// =============================================================================

// ReadState returns the singleton state, seeding it on first call.
func (s *Store) ReadState(ctx context.Context) (ledger.LoanState, error) {
	seeded, err := encodeState(ledger.LoanState{TotalDebt: s.seed}, 1)
	if err != nil {
		return ledger.LoanState{}, err
	}
	if err := s.client.SetNX(ctx, stateKey, seeded, 0).Err(); err != nil {
		return ledger.LoanState{}, fmt.Errorf("seed state: %w", err)
	}

	raw, err := s.client.Get(ctx, stateKey).Result()
	if err != nil {
		return ledger.LoanState{}, fmt.Errorf("read state: %w", err)
	}
	return decodeState(raw)
}

// WriteState conditionally replaces the state document.
func (s *Store) WriteState(ctx context.Context, state ledger.LoanState, expectedVersion int64) error {
	return s.watchState(ctx, expectedVersion, func(pipe redis.Pipeliner, encoded []byte) error {
		pipe.Set(ctx, stateKey, encoded, 0)
		return nil
	}, state)
}

// AppendTransaction records one transaction, newest first.
func (s *Store) AppendTransaction(ctx context.Context, tx ledger.Transaction) error {
	encoded, err := encodeTx(tx)
	if err != nil {
		return err
	}

	ok, err := s.client.SetNX(ctx, txPrefix+tx.ID, 1, 0).Result()
	if err != nil {
		return fmt.Errorf("append marker: %w", err)
	}
	if !ok {
		return ledger.ErrDuplicateTransaction
	}

	if err := s.client.LPush(ctx, listKey, encoded).Err(); err != nil {
		return fmt.Errorf("append transaction: %w", err)
	}
	return nil
}

// ListTransactions returns the full ledger. LPUSH keeps the list
// newest first already.
func (s *Store) ListTransactions(ctx context.Context) ([]ledger.Transaction, error) {
	raws, err := s.client.LRange(ctx, listKey, 0, -1).Result()
	if err != nil {
		return nil, fmt.Errorf("list transactions: %w", err)
	}

	txs := make([]ledger.Transaction, 0, len(raws))
	for _, raw := range raws {
		tx, err := decodeTx(raw)
		if err != nil {
			return nil, err
		}
		txs = append(txs, tx)
	}
	return txs, nil
}

// Apply couples the conditional state write with the ledger append in
// one WATCH/MULTI/EXEC round.
func (s *Store) Apply(ctx context.Context, state ledger.LoanState, expectedVersion int64, tx ledger.Transaction) error {
	encodedTx, err := encodeTx(tx)
	if err != nil {
		return err
	}

	return s.watchState(ctx, expectedVersion, func(pipe redis.Pipeliner, encodedState []byte) error {
		exists, err := s.client.Exists(ctx, txPrefix+tx.ID).Result()
		if err != nil {
			return fmt.Errorf("check marker: %w", err)
		}
		if exists > 0 {
			return ledger.ErrDuplicateTransaction
		}
		pipe.Set(ctx, stateKey, encodedState, 0)
		pipe.SetNX(ctx, txPrefix+tx.ID, 1, 0)
		pipe.LPush(ctx, listKey, encodedTx)
		return nil
	}, state)
}

// watchState runs queue under WATCH loan:state after verifying that
// the stored document still carries expectedVersion. The new document
// written into the pipeline carries expectedVersion+1.
func (s *Store) watchState(
	ctx context.Context,
	expectedVersion int64,
	queue func(pipe redis.Pipeliner, encodedState []byte) error,
	state ledger.LoanState,
) error {
	err := s.client.Watch(ctx, func(watched *redis.Tx) error {
		raw, err := watched.Get(ctx, stateKey).Result()
		if errors.Is(err, redis.Nil) {
			return ledger.ErrConcurrentModification
		}
		if err != nil {
			return fmt.Errorf("read watched state: %w", err)
		}

		current, err := decodeState(raw)
		if err != nil {
			return err
		}
		if current.Version != expectedVersion {
			return ledger.ErrConcurrentModification
		}

		encoded, err := encodeState(state, expectedVersion+1)
		if err != nil {
			return err
		}

		_, err = watched.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
			return queue(pipe, encoded)
		})
		return err
	}, stateKey)

	if errors.Is(err, redis.TxFailedErr) {
		return ledger.ErrConcurrentModification
	}
	return err
}
