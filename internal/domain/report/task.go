// Package report owns the recurring aggregate report: one perpetual task
// anchored to a persisted last-run timestamp, so restarts neither duplicate
// nor skip a run.
package report

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/sethvargo/go-retry"
)

// Ledger provides the day aggregate the report is built from.
type Ledger interface {
	AggregateDay(ctx context.Context, day time.Time) (count, total int, err error)
}

// Notifier delivers the report to the operator.
type Notifier interface {
	SendText(ctx context.Context, phone, text string) error
}

// Clock is injected for tests.
type Clock interface {
	Now() time.Time
	After(d time.Duration) <-chan time.Time
}

type realClock struct{}

func (realClock) Now() time.Time                         { return time.Now() }
func (realClock) After(d time.Duration) <-chan time.Time { return time.After(d) }

type Task struct {
	log        *slog.Logger
	ledger     Ledger
	notify     Notifier
	state      *State
	clock      Clock
	adminPhone string
	interval   time.Duration
	cooldown   time.Duration
}

func NewTask(log *slog.Logger, ledger Ledger, notify Notifier, state *State,
	adminPhone string, interval, cooldown time.Duration, clock Clock) *Task {
	if clock == nil {
		clock = realClock{}
	}
	return &Task{
		log:        log,
		ledger:     ledger,
		notify:     notify,
		state:      state,
		clock:      clock,
		adminPhone: adminPhone,
		interval:   interval,
		cooldown:   cooldown,
	}
}

// Run loops until ctx is canceled. A failed emission is retried on a fixed
// cooldown; no failure terminates the task.
func (t *Task) Run(ctx context.Context) {
	t.log.Info("report task started", "interval", t.interval.String())
	for {
		wait := t.nextWait()
		t.log.Debug("report task sleeping", "wait", wait.String())

		select {
		case <-ctx.Done():
			return
		case <-t.clock.After(wait):
		}

		backoff := retry.WithMaxRetries(3, retry.NewConstant(t.cooldown))
		err := retry.Do(ctx, backoff, func(ctx context.Context) error {
			if err := t.emit(ctx); err != nil {
				t.log.Error("report emission failed", "err", err)
				return retry.RetryableError(err)
			}
			return nil
		})
		if err != nil && ctx.Err() == nil {
			t.log.Error("report dropped after retries", "err", err)
		}
		if ctx.Err() != nil {
			return
		}
	}
}

// nextWait computes the time to the next run. With no prior run recorded the
// anchor is set to now and the task waits one full interval.
func (t *Task) nextWait() time.Duration {
	now := t.clock.Now()
	last, ok := t.state.LastReport()
	if !ok {
		t.state.SetLastReport(now)
		return t.interval
	}
	wait := last.Add(t.interval).Sub(now)
	if wait < 0 {
		wait = 0
	}
	return wait
}

func (t *Task) emit(ctx context.Context) error {
	now := t.clock.Now()
	count, total, err := t.ledger.AggregateDay(ctx, now)
	if err != nil {
		return fmt.Errorf("report: aggregate: %w", err)
	}

	msg := fmt.Sprintf("Hourly Report\nDate: %s\nTotal Entries: %d\nTotal Collected: INR %d",
		now.Format("2006-01-02"), count, total)
	if err := t.notify.SendText(ctx, t.adminPhone, msg); err != nil {
		return fmt.Errorf("report: deliver: %w", err)
	}

	t.state.SetLastReport(t.clock.Now())
	return nil
}
