/*
scheduler.go - In-process accrual scheduler

PURPOSE:
  Periodically runs the monthly interest accrual policy so a deployment
  without an external cron still accrues on the 28th.

DESIGN:
  - Background goroutine with a configurable check interval
  - Every tick asks the policy; the policy's day gate and month
    idempotence turn off-day and repeated ticks into no-ops
  - Safe to run alongside the external /accrue-interest cron: at most
    one of them wins the month's conditional write

USAGE:
  scheduler := NewAccrualScheduler(policy)
  scheduler.Start()
  // ... later
  scheduler.Stop()
*/
package api

import (
	"context"
	"log"
	"sync"
	"time"

	"github.com/drimstor/payment-statement/ledger"
)

// AccrualScheduler drives the accrual policy on a timer.
type AccrualScheduler struct {
	Policy        *ledger.AccrualPolicy
	CheckInterval time.Duration
	Enabled       bool

	ticker *time.Ticker
	stop   chan bool
	wg     sync.WaitGroup
	mu     sync.Mutex
}

// NewAccrualScheduler creates a new scheduler.
func NewAccrualScheduler(policy *ledger.AccrualPolicy) *AccrualScheduler {
	return &AccrualScheduler{
		Policy:        policy,
		CheckInterval: 1 * time.Hour,
		Enabled:       true,
		stop:          make(chan bool),
	}
}

// Start begins the scheduler.
func (as *AccrualScheduler) Start() {
	as.mu.Lock()
	defer as.mu.Unlock()

	if !as.Enabled {
		log.Println("[Scheduler] Disabled, not starting")
		return
	}

	as.ticker = time.NewTicker(as.CheckInterval)
	as.wg.Add(1)

	go as.run(as.ticker)

	log.Printf("[Scheduler] Started with check interval: %v", as.CheckInterval)
}

// Stop stops the scheduler.
func (as *AccrualScheduler) Stop() {
	as.mu.Lock()
	defer as.mu.Unlock()

	if as.ticker != nil {
		as.ticker.Stop()
		// Nil out the ticker so repeated Stop calls don't close the
		// channel twice.
		as.ticker = nil
		close(as.stop)
		as.wg.Wait()
		log.Println("[Scheduler] Stopped")
	}
}

func (as *AccrualScheduler) run(ticker *time.Ticker) {
	defer as.wg.Done()

	// Run immediately on start
	as.checkAndApply()

	for {
		select {
		case <-ticker.C:
			as.checkAndApply()
		case <-as.stop:
			return
		}
	}
}

func (as *AccrualScheduler) checkAndApply() {
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	result, err := as.Policy.Run(ctx, time.Now())
	if err != nil {
		log.Printf("[Scheduler] Error applying interest: %v", err)
		return
	}

	if result.Applied {
		if result.Transaction != nil {
			log.Printf("[Scheduler] Applied interest %s, balance now %s",
				result.Transaction.Amount.StringFixed(2), result.State.TotalDebt.StringFixed(2))
		} else {
			log.Printf("[Scheduler] Marked %s accrued on zero debt", result.State.LastInterestMonth)
		}
	}
}
