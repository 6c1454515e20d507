package api_test

import (
	"context"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/drimstor/payment-statement/api"
	"github.com/drimstor/payment-statement/ledger"
	"github.com/drimstor/payment-statement/ledger/store"
)

func TestScheduler_DisabledDoesNotRun(t *testing.T) {
	mem := store.NewMemory(decimal.RequireFromString("1000"))
	policy := ledger.NewAccrualPolicy(mem)
	policy.Day = time.Now().Day() // would accrue if it ran

	scheduler := api.NewAccrualScheduler(policy)
	scheduler.Enabled = false
	scheduler.Start()
	defer scheduler.Stop()

	time.Sleep(50 * time.Millisecond)

	txs, err := mem.ListTransactions(context.Background())
	require.NoError(t, err)
	assert.Empty(t, txs)
}

func TestScheduler_AppliesOnStartWhenGatesPass(t *testing.T) {
	// GIVEN: today happens to be the accrual day (forced via Day)
	// THEN: the immediate check on Start applies interest once
	mem := store.NewMemory(decimal.RequireFromString("1000"))
	policy := ledger.NewAccrualPolicy(mem)
	policy.Day = time.Now().Day()

	scheduler := api.NewAccrualScheduler(policy)
	scheduler.CheckInterval = time.Hour
	scheduler.Start()
	defer scheduler.Stop()

	assert.Eventually(t, func() bool {
		txs, err := mem.ListTransactions(context.Background())
		return err == nil && len(txs) == 1
	}, 2*time.Second, 10*time.Millisecond)

	state, err := mem.ReadState(context.Background())
	require.NoError(t, err)
	assert.True(t, state.TotalDebt.Equal(decimal.RequireFromString("1050")))
	assert.Equal(t, ledger.MonthKey(time.Now()), state.LastInterestMonth)
}

func TestScheduler_StartStop(t *testing.T) {
	mem := store.NewMemory(decimal.Zero)
	policy := ledger.NewAccrualPolicy(mem)

	scheduler := api.NewAccrualScheduler(policy)
	scheduler.CheckInterval = time.Hour
	scheduler.Start()
	scheduler.Stop()
}

func TestScheduler_StopTwiceIsSafe(t *testing.T) {
	// A deferred Stop running after an explicit one must be a no-op,
	// not a close of an already-closed channel
	mem := store.NewMemory(decimal.Zero)
	policy := ledger.NewAccrualPolicy(mem)

	scheduler := api.NewAccrualScheduler(policy)
	scheduler.CheckInterval = time.Hour
	scheduler.Start()

	scheduler.Stop()
	assert.NotPanics(t, func() { scheduler.Stop() })
}
