package http

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"net/url"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Spok95/entry-gate/internal/domain/entry"
	"github.com/Spok95/entry-gate/internal/domain/gate"
	"github.com/Spok95/entry-gate/internal/domain/pending"
	"github.com/Spok95/entry-gate/internal/domain/session"
	"github.com/Spok95/entry-gate/internal/domain/token"
)

type memLedger struct {
	mu     sync.Mutex
	status map[string]string
	count  int
	total  int
}

func newMemLedger() *memLedger { return &memLedger{status: make(map[string]string)} }

func (l *memLedger) Append(_ context.Context, row gate.Row) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.status[row.TransactionID] = row.Status
	l.count++
	l.total += row.Amount
	return nil
}

func (l *memLedger) FindStatus(_ context.Context, tid string) (string, bool, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	st, ok := l.status[tid]
	return st, ok, nil
}

func (l *memLedger) SetStatus(_ context.Context, tid, status string) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.status[tid] = status
	return nil
}

func (l *memLedger) Exists(_ context.Context, tid string) (bool, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	_, ok := l.status[tid]
	return ok, nil
}

func (l *memLedger) AggregateAll(_ context.Context) (int, int, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.count, l.total, nil
}

type nullNotifier struct{}

func (nullNotifier) SendText(context.Context, string, string) error          { return nil }
func (nullNotifier) SendImage(context.Context, string, string, string) error { return nil }
func (nullNotifier) Alert(context.Context, string) error                     { return nil }

type nullQR struct{}

func (nullQR) Generate(string) (string, error) { return "/tmp/fake.png", nil }

func newTestHandler(t *testing.T) (*Handler, *gate.Service, *memLedger) {
	t.Helper()
	dir := t.TempDir()
	log := slog.Default()

	key, err := token.LoadOrCreateKey(filepath.Join(dir, "secret.key"))
	require.NoError(t, err)
	codec, err := token.New(key)
	require.NoError(t, err)

	pendingStore := pending.NewStore(filepath.Join(dir, "pending.json"), log)
	require.NoError(t, pendingStore.Load())
	sessionStore := session.NewStore(filepath.Join(dir, "sessions.json"), log)
	require.NoError(t, sessionStore.Load())

	book := newMemLedger()
	timers := session.NewManager(context.Background(), sessionStore, nullNotifier{}, 5*time.Minute, log, nil)
	svc := gate.NewService(context.Background(), log, codec, pendingStore, sessionStore, timers,
		book, nullNotifier{}, nullQR{}, "http://10.0.0.2:5000")

	return NewHandler(log, svc, book, nullNotifier{}, "admin", "secret"), svc, book
}

func testTx(tid string) entry.Transaction {
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

func decode(t *testing.T, rec *httptest.ResponseRecorder) map[string]any {
	t.Helper()
	var body map[string]any
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&body))
	return body
}

func postForm(h http.HandlerFunc, path string, form url.Values) *httptest.ResponseRecorder {
	req := httptest.NewRequest(http.MethodPost, path, strings.NewReader(form.Encode()))
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	rec := httptest.NewRecorder()
	h(rec, req)
	return rec
}

func TestSubmitEntryOnline(t *testing.T) {
	h, _, _ := newTestHandler(t)

	rec := postForm(h.SubmitEntry, "/submit_entry", url.Values{
		"name":           {"Asha"},
		"phone":          {"9876543210"},
		"transaction_id": {"UPI-100"},
		"plan_selection": {"premium_50"},
		"payment_mode":   {"online"},
	})
	require.Equal(t, http.StatusOK, rec.Code)
	body := decode(t, rec)
	assert.Equal(t, "UPI-100", body["transaction_id"])
}

func TestSubmitEntryCashSynthesizesID(t *testing.T) {
	h, _, _ := newTestHandler(t)

	rec := postForm(h.SubmitEntry, "/submit_entry", url.Values{
		"name":           {"Ravi"},
		"phone":          {"9876500000"},
		"plan_selection": {"standard_40"},
		"payment_mode":   {"cash"},
	})
	require.Equal(t, http.StatusOK, rec.Code)
	body := decode(t, rec)
	tid, _ := body["transaction_id"].(string)
	assert.True(t, strings.HasPrefix(tid, "CASH-"), "got %q", tid)
}

func TestSubmitEntryRejectsMissingFields(t *testing.T) {
	h, _, _ := newTestHandler(t)

	rec := postForm(h.SubmitEntry, "/submit_entry", url.Values{
		"phone":          {"9876543210"},
		"plan_selection": {"premium_50"},
		"payment_mode":   {"online"},
	})
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = postForm(h.SubmitEntry, "/submit_entry", url.Values{
		"name":           {"Asha"},
		"phone":          {"9876543210"},
		"plan_selection": {"no_such_plan"},
		"payment_mode":   {"online"},
		"transaction_id": {"UPI-1"},
	})
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestVerifyRejectsGarbageToken(t *testing.T) {
	h, _, _ := newTestHandler(t)

	req := httptest.NewRequest(http.MethodGet, "/verify?token=not-a-token", nil)
	rec := httptest.NewRecorder()
	h.Verify(rec, req)

	// Scanner screens render the body, so rejections stay on 200.
	require.Equal(t, http.StatusOK, rec.Code)
	body := decode(t, rec)
	assert.Equal(t, "error", body["status"])
	assert.Equal(t, "Invalid or Tampered QR Code", body["message"])
}

func TestVerifyAdmitsMintedToken(t *testing.T) {
	h, svc, book := newTestHandler(t)

	tok, _, err := svc.MintAndRegister(context.Background(), testTx("UPI-7"))
	require.NoError(t, err)

	req := httptest.NewRequest(http.MethodGet, "/verify?token="+url.QueryEscape(tok), nil)
	rec := httptest.NewRecorder()
	h.Verify(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)
	body := decode(t, rec)
	assert.Equal(t, "success", body["status"])
	assert.Equal(t, "UPI-7", body["transaction_id"])

	st, ok, err := book.FindStatus(context.Background(), "UPI-7")
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, gate.StatusIn, st)
}

func TestVerifyRestoreDenied(t *testing.T) {
	h, _, _ := newTestHandler(t)

	payload := `{"transaction_id":"UPI-9","restore_key":"wrong"}`
	req := httptest.NewRequest(http.MethodPost, "/api/verify_restore", strings.NewReader(payload))
	rec := httptest.NewRecorder()
	h.VerifyRestore(rec, req)

	assert.Equal(t, http.StatusForbidden, rec.Code)
}

func TestHealthAuthFlow(t *testing.T) {
	h, _, _ := newTestHandler(t)

	req := httptest.NewRequest(http.MethodGet, "/health", nil)
	rec := httptest.NewRecorder()
	h.Health(rec, req)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)

	rec = postForm(h.HealthLogin, "/health/login", url.Values{
		"username": {"admin"},
		"password": {"wrong"},
	})
	assert.Equal(t, http.StatusUnauthorized, rec.Code)

	rec = postForm(h.HealthLogin, "/health/login", url.Values{
		"username": {"admin"},
		"password": {"secret"},
	})
	require.Equal(t, http.StatusOK, rec.Code)
	cookies := rec.Result().Cookies()
	require.NotEmpty(t, cookies)

	req = httptest.NewRequest(http.MethodGet, "/health", nil)
	req.AddCookie(cookies[0])
	rec = httptest.NewRecorder()
	h.Health(rec, req)
	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestDataRequiresLogin(t *testing.T) {
	h, _, _ := newTestHandler(t)

	req := httptest.NewRequest(http.MethodGet, "/data", nil)
	rec := httptest.NewRecorder()
	h.Data(rec, req)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
}

func TestSessionsEmptyList(t *testing.T) {
	h, _, _ := newTestHandler(t)

	req := httptest.NewRequest(http.MethodGet, "/api/sessions", nil)
	rec := httptest.NewRecorder()
	h.Sessions(rec, req)
	require.Equal(t, http.StatusOK, rec.Code)
}
