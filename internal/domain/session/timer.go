package session

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"
)

// Notifier delivers session notices. Implementations must not block for long;
// the production one hands messages to a dispatch queue.
type Notifier interface {
	SendText(ctx context.Context, phone, text string) error
}

// Manager owns one timer goroutine per active session. Session truth is
// persisted before a timer starts, so a timer interrupted by shutdown is
// reconstructed at the next start from the stored end time.
type Manager struct {
	ctx           context.Context
	store         *Store
	notify        Notifier
	log           *slog.Logger
	clock         Clock
	warningBuffer time.Duration

	wg sync.WaitGroup
}

func NewManager(ctx context.Context, store *Store, notify Notifier, warningBuffer time.Duration, log *slog.Logger, clock Clock) *Manager {
	if clock == nil {
		clock = RealClock()
	}
	return &Manager{
		ctx:           ctx,
		store:         store,
		notify:        notify,
		log:           log,
		clock:         clock,
		warningBuffer: warningBuffer,
	}
}

func (m *Manager) Now() time.Time { return m.clock.Now() }

func (m *Manager) WarningBuffer() time.Duration { return m.warningBuffer }

// Start spawns the timer for a session. resume marks a timer reconstructed
// after a restart: it skips the "started" notice and enters the schedule at
// whatever point the persisted end time dictates.
func (m *Manager) Start(s Session, resume bool) {
	m.wg.Add(1)
	go m.run(s, resume)
}

// Recover walks the store once at process start: sessions already past their
// end time are dropped without notification, the rest get a resumed timer.
// Returns the number of timers resumed.
func (m *Manager) Recover() int {
	now := m.clock.Now()
	resumed := 0
	for _, s := range m.store.List() {
		if !s.EndTime.After(now) {
			m.store.Remove(s.TransactionID)
			m.log.Info("expired session discarded on startup", "transaction_id", s.TransactionID)
			continue
		}
		m.log.Info("resuming session timer",
			"transaction_id", s.TransactionID,
			"remaining", s.EndTime.Sub(now).Round(time.Second).String(),
		)
		m.Start(s, true)
		resumed++
	}
	return resumed
}

// Wait blocks until all timer goroutines have returned.
func (m *Manager) Wait() { m.wg.Wait() }

func (m *Manager) run(s Session, resume bool) {
	defer m.wg.Done()

	if !resume {
		m.send(s.Phone, fmt.Sprintf("Your %d minutes session has STARTED now. Have fun!", s.Duration))
	}

	warnAt := s.EndTime.Add(-m.warningBuffer)
	if m.clock.Now().Before(warnAt) {
		if !m.sleepUntil(warnAt) {
			return
		}
		m.send(s.Phone, fmt.Sprintf("Warning: You have %d minutes remaining in your session.", int(m.warningBuffer.Minutes())))
	}

	if !m.sleepUntil(s.EndTime) {
		return
	}

	m.send(s.Phone, fmt.Sprintf("Your session time of %d minutes has ended. Please proceed to exit.", s.Duration))

	if m.store.Remove(s.TransactionID) {
		m.log.Info("session expired and removed", "transaction_id", s.TransactionID)
	}
}

// sleepUntil waits for the wall clock to reach t. Returns false when the
// process is shutting down; the session stays persisted for recovery.
func (m *Manager) sleepUntil(t time.Time) bool {
	d := t.Sub(m.clock.Now())
	if d <= 0 {
		return true
	}
	select {
	case <-m.ctx.Done():
		return false
	case <-m.clock.After(d):
		return true
	}
}

func (m *Manager) send(phone, text string) {
	if err := m.notify.SendText(m.ctx, phone, text); err != nil {
		m.log.Error("session notice failed", "phone", phone, "err", err)
	}
}
