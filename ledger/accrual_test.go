package ledger_test

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/drimstor/payment-statement/ledger"
	"github.com/drimstor/payment-statement/ledger/store"
)

// the28th is an arbitrary accrual day in March 2026.
var the28th = time.Date(2026, time.March, 28, 9, 30, 0, 0, time.UTC)

func newTestAccrual(initialDebt string) (*ledger.AccrualPolicy, *store.Memory) {
	mem := store.NewMemory(dec(initialDebt))
	return ledger.NewAccrualPolicy(mem), mem
}

// =============================================================================
// DAY GATE
// =============================================================================

func TestAccrual_RefusesOffDays(t *testing.T) {
	policy, mem := newTestAccrual("1000")
	ctx := context.Background()

	for _, day := range []int{1, 14, 27, 29, 31} {
		now := time.Date(2026, time.January, day, 12, 0, 0, 0, time.UTC)

		result, err := policy.Run(ctx, now)
		require.NoError(t, err)
		assert.False(t, result.Applied, "day %d should not accrue", day)
		assert.Equal(t, ledger.ReasonNotAccrualDay, result.Reason)
	}

	txs, err := mem.ListTransactions(ctx)
	require.NoError(t, err)
	assert.Empty(t, txs)
}

// =============================================================================
// APPLICATION AND IDEMPOTENCE
// =============================================================================

func TestAccrual_AppliesFivePercentRoundedToCents(t *testing.T) {
	// GIVEN: debt of 1000.00 on the 28th
	// THEN: one interest transaction of 50.00, debt 1050.00, month marked
	policy, _ := newTestAccrual("1000")
	ctx := context.Background()

	result, err := policy.Run(ctx, the28th)
	require.NoError(t, err)

	require.True(t, result.Applied)
	require.NotNil(t, result.Transaction)
	assert.Equal(t, ledger.TxInterest, result.Transaction.Type)
	assert.True(t, result.Transaction.Amount.Equal(dec("50")), "got %s", result.Transaction.Amount)
	assert.True(t, result.Transaction.BalanceAfter.Equal(dec("1050")))
	assert.True(t, result.State.TotalDebt.Equal(dec("1050")))
	assert.Equal(t, "2026-03", result.State.LastInterestMonth)
}

func TestAccrual_RoundsHalfUp(t *testing.T) {
	// 333.33 * 0.05 = 16.6665 -> 16.67
	policy, _ := newTestAccrual("333.33")

	result, err := policy.Run(context.Background(), the28th)
	require.NoError(t, err)
	require.True(t, result.Applied)
	assert.True(t, result.Transaction.Amount.Equal(dec("16.67")), "got %s", result.Transaction.Amount)
}

func TestAccrual_SecondRunSameMonthIsNoOp(t *testing.T) {
	policy, mem := newTestAccrual("1000")
	ctx := context.Background()

	first, err := policy.Run(ctx, the28th)
	require.NoError(t, err)
	require.True(t, first.Applied)

	// Same day, later hour
	second, err := policy.Run(ctx, the28th.Add(6*time.Hour))
	require.NoError(t, err)
	assert.False(t, second.Applied)
	assert.Equal(t, ledger.ReasonAlreadyApplied, second.Reason)

	txs, err := mem.ListTransactions(ctx)
	require.NoError(t, err)
	assert.Len(t, txs, 1, "exactly one interest transaction per month")
}

func TestAccrual_NextMonthAppliesAgainOnNewBalance(t *testing.T) {
	policy, mem := newTestAccrual("1000")
	ctx := context.Background()

	_, err := policy.Run(ctx, the28th)
	require.NoError(t, err)

	april28 := time.Date(2026, time.April, 28, 9, 0, 0, 0, time.UTC)
	result, err := policy.Run(ctx, april28)
	require.NoError(t, err)

	require.True(t, result.Applied)
	// 5% of 1050, compounding on the new balance
	assert.True(t, result.Transaction.Amount.Equal(dec("52.50")), "got %s", result.Transaction.Amount)
	assert.True(t, result.State.TotalDebt.Equal(dec("1102.50")))
	assert.Equal(t, "2026-04", result.State.LastInterestMonth)

	txs, err := mem.ListTransactions(ctx)
	require.NoError(t, err)
	assert.Len(t, txs, 2)
}

func TestAccrual_ZeroDebtMarksMonthWithoutTransaction(t *testing.T) {
	policy, mem := newTestAccrual("0")
	ctx := context.Background()

	result, err := policy.Run(ctx, the28th)
	require.NoError(t, err)

	assert.True(t, result.Applied)
	assert.Nil(t, result.Transaction)
	assert.Equal(t, "2026-03", result.State.LastInterestMonth)

	txs, err := mem.ListTransactions(ctx)
	require.NoError(t, err)
	assert.Empty(t, txs, "zero-amount entries never reach the ledger")

	// And the month stays marked for the next trigger
	again, err := policy.Run(ctx, the28th.Add(time.Hour))
	require.NoError(t, err)
	assert.False(t, again.Applied)
	assert.Equal(t, ledger.ReasonAlreadyApplied, again.Reason)
}

// =============================================================================
// CONCURRENT TRIGGERS
// =============================================================================

func TestAccrual_ConcurrentTriggersApplyOnce(t *testing.T) {
	// GIVEN: several at-least-once cron triggers firing together
	// THEN: exactly one interest transaction wins the month
	policy, mem := newTestAccrual("1000")
	ctx := context.Background()

	const triggers = 10
	var wg sync.WaitGroup
	type outcome struct {
		applied bool
		err     error
	}
	outcomes := make(chan outcome, triggers)

	for i := 0; i < triggers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			result, err := policy.Run(ctx, the28th)
			outcomes <- outcome{applied: result.Applied, err: err}
		}()
	}
	wg.Wait()
	close(outcomes)

	wins := 0
	for o := range outcomes {
		require.NoError(t, o.err)
		if o.applied {
			wins++
		}
	}
	assert.Equal(t, 1, wins, "exactly one trigger should apply interest")

	txs, err := mem.ListTransactions(ctx)
	require.NoError(t, err)
	assert.Len(t, txs, 1)

	state, err := mem.ReadState(ctx)
	require.NoError(t, err)
	assert.True(t, state.TotalDebt.Equal(dec("1050")), "double application: %s", state.TotalDebt)
}

// =============================================================================
// END-TO-END SCENARIO
// =============================================================================

func TestScenario_AccruePayOverpay(t *testing.T) {
	// The full lifecycle on one store: initial 1000, accrue on the
	// 28th, repeat no-op, pay 200, then overpay to zero.
	mem := store.NewMemory(dec("1000"))
	engine := ledger.NewEngine(mem)
	policy := ledger.NewAccrualPolicy(mem)
	ctx := context.Background()

	accrued, err := policy.Run(ctx, the28th)
	require.NoError(t, err)
	require.True(t, accrued.Applied)
	assert.True(t, accrued.Transaction.Amount.Equal(dec("50")))
	assert.True(t, accrued.State.TotalDebt.Equal(dec("1050")))
	assert.Equal(t, ledger.MonthKey(the28th), accrued.State.LastInterestMonth)

	repeat, err := policy.Run(ctx, the28th.Add(2*time.Hour))
	require.NoError(t, err)
	assert.False(t, repeat.Applied)
	assert.Equal(t, ledger.ReasonAlreadyApplied, repeat.Reason)

	payment, err := engine.ApplyTransaction(ctx, ledger.TxPayment, dec("200"))
	require.NoError(t, err)
	assert.True(t, payment.Transaction.BalanceAfter.Equal(dec("850")))

	overpay, err := engine.ApplyTransaction(ctx, ledger.TxPayment, dec("10000"))
	require.NoError(t, err)
	assert.True(t, overpay.Transaction.BalanceAfter.IsZero())

	snap, err := engine.Snapshot(ctx)
	require.NoError(t, err)
	assert.True(t, snap.State.TotalDebt.IsZero())
	require.Len(t, snap.Transactions, 3)
}
