package ledger_test

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/drimstor/payment-statement/ledger"
	"github.com/drimstor/payment-statement/ledger/store"
)

// =============================================================================
// TEST HELPERS
// =============================================================================

func dec(s string) decimal.Decimal {
	d, err := decimal.NewFromString(s)
	if err != nil {
		panic(err)
	}
	return d
}

func newTestEngine(initialDebt string) (*ledger.Engine, *store.Memory) {
	mem := store.NewMemory(dec(initialDebt))
	return ledger.NewEngine(mem), mem
}

// fixedClock returns a clock stuck at the given instant.
func fixedClock(t time.Time) func() time.Time {
	return func() time.Time { return t }
}

// =============================================================================
// VALIDATION TESTS
// =============================================================================

func TestApplyTransaction_RejectsInvalidInput(t *testing.T) {
	tests := []struct {
		name   string
		typ    ledger.TxType
		amount decimal.Decimal
	}{
		{"zero amount", ledger.TxPayment, dec("0")},
		{"negative amount", ledger.TxPayment, dec("-5")},
		{"negative interest", ledger.TxInterest, dec("-0.01")},
		{"unknown type", ledger.TxType("refund"), dec("10")},
		{"empty type", ledger.TxType(""), dec("10")},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			engine, mem := newTestEngine("1000")
			ctx := context.Background()

			_, err := engine.ApplyTransaction(ctx, tt.typ, tt.amount)

			var verr *ledger.ValidationError
			require.ErrorAs(t, err, &verr, "should be a ValidationError")
			assert.True(t, ledger.IsClientError(err))

			// No mutation: state and ledger untouched
			state, err := mem.ReadState(ctx)
			require.NoError(t, err)
			assert.True(t, state.TotalDebt.Equal(dec("1000")), "debt changed: %s", state.TotalDebt)

			txs, err := mem.ListTransactions(ctx)
			require.NoError(t, err)
			assert.Empty(t, txs)
		})
	}
}

// =============================================================================
// BALANCE RULES
// =============================================================================

func TestApplyTransaction_InterestAddsToDebt(t *testing.T) {
	engine, _ := newTestEngine("1000")
	ctx := context.Background()

	result, err := engine.ApplyTransaction(ctx, ledger.TxInterest, dec("50"))
	require.NoError(t, err)

	assert.True(t, result.State.TotalDebt.Equal(dec("1050")))
	assert.Equal(t, ledger.TxInterest, result.Transaction.Type)
	assert.True(t, result.Transaction.BalanceAfter.Equal(dec("1050")))
	assert.NotEmpty(t, result.Transaction.ID)
}

func TestApplyTransaction_PaymentSubtractsFromDebt(t *testing.T) {
	engine, _ := newTestEngine("1000")
	ctx := context.Background()

	result, err := engine.ApplyTransaction(ctx, ledger.TxPayment, dec("200"))
	require.NoError(t, err)

	assert.True(t, result.State.TotalDebt.Equal(dec("800")))
	assert.True(t, result.Transaction.BalanceAfter.Equal(dec("800")))
}

func TestApplyTransaction_OverpaymentClampsAtZero(t *testing.T) {
	// GIVEN: debt of 1000
	// WHEN: paying 10000
	// THEN: debt is 0, never negative; overpayment is absorbed
	engine, _ := newTestEngine("1000")
	ctx := context.Background()

	result, err := engine.ApplyTransaction(ctx, ledger.TxPayment, dec("10000"))
	require.NoError(t, err)

	assert.True(t, result.State.TotalDebt.IsZero(), "debt should clamp to zero, got %s", result.State.TotalDebt)
	assert.True(t, result.Transaction.BalanceAfter.IsZero())
	// The recorded amount is what was requested, not what was absorbed
	assert.True(t, result.Transaction.Amount.Equal(dec("10000")))
}

func TestApplyTransaction_ExactPayoffReachesZero(t *testing.T) {
	engine, _ := newTestEngine("1000")
	ctx := context.Background()

	result, err := engine.ApplyTransaction(ctx, ledger.TxPayment, dec("1000"))
	require.NoError(t, err)
	assert.True(t, result.State.TotalDebt.IsZero())
}

// =============================================================================
// FOLD INVARIANT
// =============================================================================

func TestBalanceFold_EveryStepMatchesBalanceAfter(t *testing.T) {
	// GIVEN: a sequence of mutations
	// THEN: after each step, debt = initial + sum(interest) - sum(payments),
	//       clamped at zero per payment, and equals the latest BalanceAfter
	engine, _ := newTestEngine("1000")
	ctx := context.Background()

	steps := []struct {
		typ    ledger.TxType
		amount string
		want   string
	}{
		{ledger.TxInterest, "50", "1050"},
		{ledger.TxPayment, "200", "850"},
		{ledger.TxInterest, "42.50", "892.50"},
		{ledger.TxPayment, "900", "0"},
		{ledger.TxInterest, "0.01", "0.01"},
	}

	for _, step := range steps {
		result, err := engine.ApplyTransaction(ctx, step.typ, dec(step.amount))
		require.NoError(t, err)
		assert.True(t, result.State.TotalDebt.Equal(dec(step.want)),
			"after %s %s: want %s, got %s", step.typ, step.amount, step.want, result.State.TotalDebt)
		assert.True(t, result.Transaction.BalanceAfter.Equal(result.State.TotalDebt))
	}

	snap, err := engine.Snapshot(ctx)
	require.NoError(t, err)
	require.Len(t, snap.Transactions, len(steps))
	assert.True(t, snap.Transactions[0].BalanceAfter.Equal(snap.State.TotalDebt),
		"newest transaction's balanceAfter must equal current debt")
}

// =============================================================================
// FAILURE SEMANTICS
// =============================================================================

func TestApplyTransaction_StoreFailureLeavesNoPartialEffect(t *testing.T) {
	engine, mem := newTestEngine("1000")
	ctx := context.Background()

	mem.FailWrites = errors.New("disk on fire")

	_, err := engine.ApplyTransaction(ctx, ledger.TxPayment, dec("100"))
	require.Error(t, err)
	assert.True(t, errors.Is(err, ledger.ErrStoreFailure))
	assert.False(t, ledger.IsClientError(err))

	mem.FailWrites = nil
	state, err := mem.ReadState(ctx)
	require.NoError(t, err)
	assert.True(t, state.TotalDebt.Equal(dec("1000")))

	txs, err := mem.ListTransactions(ctx)
	require.NoError(t, err)
	assert.Empty(t, txs)
}

// =============================================================================
// CONCURRENCY
// =============================================================================

func TestApplyTransaction_ConcurrentMutationsLoseNoUpdates(t *testing.T) {
	// GIVEN: 50 concurrent interest applications of 1 each
	// THEN: final debt is exactly initial + 50, one transaction per call
	engine, mem := newTestEngine("1000")
	ctx := context.Background()

	const workers = 50
	var wg sync.WaitGroup
	errs := make(chan error, workers)

	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := engine.ApplyTransaction(ctx, ledger.TxInterest, dec("1"))
			errs <- err
		}()
	}
	wg.Wait()
	close(errs)

	for err := range errs {
		require.NoError(t, err)
	}

	state, err := mem.ReadState(ctx)
	require.NoError(t, err)
	assert.True(t, state.TotalDebt.Equal(dec("1050")),
		"lost update: want 1050, got %s", state.TotalDebt)

	txs, err := mem.ListTransactions(ctx)
	require.NoError(t, err)
	assert.Len(t, txs, workers)
}

// =============================================================================
// SNAPSHOT
// =============================================================================

func TestSnapshot_SeedsStateOnFirstRead(t *testing.T) {
	engine, _ := newTestEngine("2500.75")

	snap, err := engine.Snapshot(context.Background())
	require.NoError(t, err)
	assert.True(t, snap.State.TotalDebt.Equal(dec("2500.75")))
	assert.Empty(t, snap.State.LastInterestMonth)
	assert.Empty(t, snap.Transactions)
}

func TestSnapshot_ListsNewestFirst(t *testing.T) {
	// GIVEN: transactions at T1 < T2 < T3
	// THEN: listing returns T3, T2, T1
	mem := store.NewMemory(dec("1000"))
	ctx := context.Background()

	t1 := time.Date(2026, time.March, 1, 10, 0, 0, 0, time.UTC)
	engine := ledger.NewEngine(mem)

	for i, at := range []time.Time{t1, t1.Add(time.Hour), t1.Add(2 * time.Hour)} {
		engine.WithClock(fixedClock(at))
		_, err := engine.ApplyTransaction(ctx, ledger.TxInterest, dec("1").Add(decimal.NewFromInt(int64(i))))
		require.NoError(t, err)
	}

	snap, err := engine.Snapshot(ctx)
	require.NoError(t, err)
	require.Len(t, snap.Transactions, 3)
	assert.True(t, snap.Transactions[0].Date.After(snap.Transactions[1].Date))
	assert.True(t, snap.Transactions[1].Date.After(snap.Transactions[2].Date))
}
