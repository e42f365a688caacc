package gate

import (
	"context"
	"log/slog"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Spok95/entry-gate/internal/domain/entry"
	"github.com/Spok95/entry-gate/internal/domain/pending"
	"github.com/Spok95/entry-gate/internal/domain/session"
	"github.com/Spok95/entry-gate/internal/domain/token"
)

type fakeLedger struct {
	mu     sync.Mutex
	rows   []Row
	status map[string]string
}

func newFakeLedger() *fakeLedger { return &fakeLedger{status: make(map[string]string)} }

func (l *fakeLedger) Append(_ context.Context, row Row) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.rows = append(l.rows, row)
	l.status[row.TransactionID] = row.Status
	return nil
}

func (l *fakeLedger) FindStatus(_ context.Context, tid string) (string, bool, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	st, ok := l.status[tid]
	return st, ok, nil
}

func (l *fakeLedger) SetStatus(_ context.Context, tid, status string) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.status[tid] = status
	return nil
}

func (l *fakeLedger) Exists(_ context.Context, tid string) (bool, error) {
	_, ok, err := l.FindStatus(context.Background(), tid)
	return ok, err
}

type fakeNotifier struct {
	mu     sync.Mutex
	texts  []string
	images []string
}

func (n *fakeNotifier) SendText(_ context.Context, phone, text string) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.texts = append(n.texts, phone+"|"+text)
	return nil
}

func (n *fakeNotifier) SendImage(_ context.Context, phone, path, caption string) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.images = append(n.images, phone+"|"+path)
	return nil
}

func (n *fakeNotifier) textCount() int {
	n.mu.Lock()
	defer n.mu.Unlock()
	return len(n.texts)
}

type fakeQR struct{}

func (fakeQR) Generate(content string) (string, error) { return "/tmp/qr/fake.png", nil }

type testEnv struct {
	svc      *Service
	ledger   *fakeLedger
	notifier *fakeNotifier
	pending  *pending.Store
	sessions *session.Store
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()
	dir := t.TempDir()
	log := slog.Default()

	key, err := token.LoadOrCreateKey(filepath.Join(dir, "secret.key"))
	require.NoError(t, err)
	codec, err := token.New(key)
	require.NoError(t, err)

	pendingStore := pending.NewStore(filepath.Join(dir, "pending_keys.json"), log)
	require.NoError(t, pendingStore.Load())
	sessionStore := session.NewStore(filepath.Join(dir, "sessions.json"), log)
	require.NoError(t, sessionStore.Load())

	ledger := newFakeLedger()
	notifier := &fakeNotifier{}
	timers := session.NewManager(context.Background(), sessionStore, notifier, 5*time.Minute, log, nil)

	svc := NewService(context.Background(), log, codec, pendingStore, sessionStore, timers,
		ledger, notifier, fakeQR{}, "http://10.0.0.2:5000")

	return &testEnv{svc: svc, ledger: ledger, notifier: notifier, pending: pendingStore, sessions: sessionStore}
}

func testTransaction(tid string) entry.Transaction {
	plan, _ := entry.PlanByCode("premium_50")
	return entry.Transaction{
		ID:          tid,
		Name:        "Asha",
		Phone:       "919876543210",
		Plan:        plan,
		PaymentMode: entry.PayOnline,
		CreatedAt:   time.Now(),
	}
}

func TestVerifyTamperedToken(t *testing.T) {
	env := newTestEnv(t)
	_, err := env.svc.Verify(context.Background(), "garbage-token")
	assert.ErrorIs(t, err, token.ErrTamperedToken)
}

func TestAdmissionLifecycle(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	tok, _, err := env.svc.MintAndRegister(ctx, testTransaction("T1"))
	require.NoError(t, err)

	// First scan: admitted, ledger flips to In, welcome notice goes out.
	out, err := env.svc.Verify(ctx, tok)
	require.NoError(t, err)
	assert.Equal(t, OutcomeAdmitted, out.Status)
	assert.Equal(t, "T1", out.Claims.TransactionID)

	st, ok, _ := env.ledger.FindStatus(ctx, "T1")
	require.True(t, ok)
	assert.Equal(t, StatusIn, st)
	assert.Equal(t, 1, env.notifier.textCount())

	// Re-scan before the timer starts: same success, no duplicate notice.
	out, err = env.svc.Verify(ctx, tok)
	require.NoError(t, err)
	assert.Equal(t, OutcomeAdmitted, out.Status)
	assert.Equal(t, 1, env.notifier.textCount())

	// Start the session: pending key consumed, end time = now + duration.
	before := time.Now()
	sess, err := env.svc.StartSession(ctx, "T1", out.Claims.Name, out.Claims.Phone, out.Claims.Duration)
	require.NoError(t, err)
	_, stillPending := env.pending.Get("T1")
	assert.False(t, stillPending, "pending key must be consumed by session start")
	assert.NotEmpty(t, sess.RestoreKey)
	assert.WithinDuration(t, before.Add(15*time.Minute), sess.EndTime, 5*time.Second)

	// Scanning the same token now offers restore instead of re-admission.
	out, err = env.svc.Verify(ctx, tok)
	require.NoError(t, err)
	assert.Equal(t, OutcomeRestore, out.Status)
}

func TestVerifyUnknownVsAlreadyAdmitted(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	tok, _, err := env.svc.MintAndRegister(ctx, testTransaction("T1"))
	require.NoError(t, err)

	// Key removed without a session: ledger not admitted -> unknown/expired.
	env.pending.Remove("T1")
	_, err = env.svc.Verify(ctx, tok)
	assert.ErrorIs(t, err, ErrUnknownOrExpired)

	// Ledger shows admitted -> replay of a used code.
	require.NoError(t, env.ledger.SetStatus(ctx, "T1", StatusIn))
	_, err = env.svc.Verify(ctx, tok)
	assert.ErrorIs(t, err, ErrAlreadyAdmitted)
}

func TestVerifyStaleTokenAfterRemint(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	oldTok, _, err := env.svc.MintAndRegister(ctx, testTransaction("T1"))
	require.NoError(t, err)
	newTok, _, err := env.svc.MintAndRegister(ctx, testTransaction("T1"))
	require.NoError(t, err)

	// The old token decrypts fine but carries the superseded key.
	_, err = env.svc.Verify(ctx, oldTok)
	assert.ErrorIs(t, err, ErrSecurityKeyMismatch)

	out, err := env.svc.Verify(ctx, newTok)
	require.NoError(t, err)
	assert.Equal(t, OutcomeAdmitted, out.Status)
}

func TestStartSessionIsIdempotent(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	first, err := env.svc.StartSession(ctx, "T1", "Asha", "9876543210", 15)
	require.NoError(t, err)
	second, err := env.svc.StartSession(ctx, "T1", "Asha", "9876543210", 15)
	require.NoError(t, err)

	assert.Equal(t, first.RestoreKey, second.RestoreKey, "second start must return the existing session")
	assert.Equal(t, 1, env.sessions.Len())
}

func TestConcurrentVerifyThenSingleStart(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	tok, _, err := env.svc.MintAndRegister(ctx, testTransaction("T1"))
	require.NoError(t, err)

	var wg sync.WaitGroup
	outcomes := make([]OutcomeStatus, 2)
	errs := make([]error, 2)
	for i := 0; i < 2; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			out, err := env.svc.Verify(ctx, tok)
			outcomes[i], errs[i] = out.Status, err
		}(i)
	}
	wg.Wait()
	for i := 0; i < 2; i++ {
		require.NoError(t, errs[i])
		assert.Equal(t, OutcomeAdmitted, outcomes[i])
	}

	_, err = env.svc.StartSession(ctx, "T1", "Asha", "919876543210", 15)
	require.NoError(t, err)
	assert.Equal(t, 1, env.sessions.Len())
}

func TestRestore(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	sess, err := env.svc.StartSession(ctx, "T1", "Asha", "919876543210", 15)
	require.NoError(t, err)

	got, err := env.svc.Restore(ctx, "T1", sess.RestoreKey)
	require.NoError(t, err)
	assert.True(t, got.EndTime.Equal(sess.EndTime))

	_, err = env.svc.Restore(ctx, "T1", "wrong-key")
	assert.ErrorIs(t, err, ErrRestoreDenied)

	_, err = env.svc.Restore(ctx, "T2", sess.RestoreKey)
	assert.ErrorIs(t, err, ErrRestoreDenied)
}

func TestRegisterValidation(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	// Unknown plan.
	_, err := env.svc.Register(ctx, EntryRequest{Name: "A", Phone: "9876543210", PlanCode: "vip_999", PaymentMode: entry.PayOnline, TransactionID: "T1"})
	assert.ErrorIs(t, err, entry.ErrUnknownPlan)

	// Online without a transaction id.
	_, err = env.svc.Register(ctx, EntryRequest{Name: "A", Phone: "9876543210", PlanCode: "premium_50", PaymentMode: entry.PayOnline})
	assert.Error(t, err)

	// Online duplicate.
	require.NoError(t, env.ledger.Append(ctx, Row{TransactionID: "DUP", Status: StatusPending}))
	_, err = env.svc.Register(ctx, EntryRequest{Name: "A", Phone: "9876543210", PlanCode: "premium_50", PaymentMode: entry.PayOnline, TransactionID: "DUP"})
	assert.ErrorIs(t, err, ErrDuplicateTransaction)

	// Cash payments get a synthesized id.
	tid, err := env.svc.Register(ctx, EntryRequest{Name: "A", Phone: "9876543210", PlanCode: "standard_40", PaymentMode: entry.PayCash})
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(tid, "CASH-"), tid)
}

func TestListActive(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	_, err := env.svc.StartSession(ctx, "T1", "Asha", "919876543210", 15)
	require.NoError(t, err)

	views := env.svc.ListActive()
	require.Len(t, views, 1)
	assert.Equal(t, "T1", views[0].TransactionID)
	assert.Equal(t, session.StatusActive, views[0].Status)
	assert.Positive(t, views[0].RemainingSeconds)
}
