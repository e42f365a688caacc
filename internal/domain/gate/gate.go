// Package gate moves a transaction through its admission lifecycle:
// payment recorded -> QR issued -> key pending -> entry verified ->
// timed session active -> session expired.
package gate

import (
	"context"
	"crypto/subtle"
	"fmt"
	"log/slog"
	"net/url"
	"strings"
	"time"

	"github.com/Spok95/entry-gate/internal/domain/entry"
	"github.com/Spok95/entry-gate/internal/domain/pending"
	"github.com/Spok95/entry-gate/internal/domain/session"
	"github.com/Spok95/entry-gate/internal/domain/token"
)

// StatusPending and StatusIn are the two ledger states the gate writes.
const (
	StatusPending = "Pending"
	StatusIn      = "In"
)

// Row is one ledger entry as the gate records it.
type Row struct {
	Timestamp     time.Time
	Name          string
	Phone         string
	TransactionID string
	Amount        int
	Duration      int
	Status        string
	PaymentMode   string
	Plan          string
}

// Ledger is the external record of payments and admissions.
type Ledger interface {
	Append(ctx context.Context, row Row) error
	FindStatus(ctx context.Context, tid string) (string, bool, error)
	SetStatus(ctx context.Context, tid, status string) error
	Exists(ctx context.Context, tid string) (bool, error)
}

// Notifier is the outbound messaging channel. Failures are logged and never
// reverse a state transition.
type Notifier interface {
	SendText(ctx context.Context, phone, text string) error
	SendImage(ctx context.Context, phone, path, caption string) error
}

// QR renders a payload into an image file and returns its path.
type QR interface {
	Generate(content string) (string, error)
}

type OutcomeStatus string

const (
	// OutcomeAdmitted: valid scan, entry confirmed, timer may be started.
	OutcomeAdmitted OutcomeStatus = "admitted"
	// OutcomeRestore: a session is already running for this transaction;
	// the client should offer to re-attach instead of re-admitting.
	OutcomeRestore OutcomeStatus = "restore"
)

type Outcome struct {
	Status OutcomeStatus
	Claims token.Claims
}

// EntryRequest is a participant registration as submitted at the desk.
type EntryRequest struct {
	Name          string
	Phone         string
	TransactionID string
	PlanCode      string
	PaymentMode   entry.PaymentMode
}

// Service wires the codec, the stores, the timer manager and the external
// collaborators into the lifecycle operations. All mutation of the pending
// and session stores for one transaction id runs under a per-id lock.
type Service struct {
	ctx      context.Context
	log      *slog.Logger
	codec    *token.Codec
	pending  *pending.Store
	sessions *session.Store
	timers   *session.Manager
	ledger   Ledger
	notify   Notifier
	qr       QR
	baseURL  string
	locks    *keyedMutex
}

func NewService(
	ctx context.Context,
	log *slog.Logger,
	codec *token.Codec,
	pendingStore *pending.Store,
	sessionStore *session.Store,
	timers *session.Manager,
	ledger Ledger,
	notify Notifier,
	qr QR,
	baseURL string,
) *Service {
	return &Service{
		ctx:      ctx,
		log:      log,
		codec:    codec,
		pending:  pendingStore,
		sessions: sessionStore,
		timers:   timers,
		ledger:   ledger,
		notify:   notify,
		qr:       qr,
		baseURL:  strings.TrimRight(baseURL, "/"),
		locks:    newKeyedMutex(),
	}
}

// Register validates a submission and kicks off QR issuance in the
// background. Returns the transaction id (synthesized for cash payments).
func (s *Service) Register(ctx context.Context, req EntryRequest) (string, error) {
	plan, err := entry.PlanByCode(req.PlanCode)
	if err != nil {
		return "", err
	}

	tx := entry.Transaction{
		Name:        strings.TrimSpace(req.Name),
		Phone:       entry.NormalizePhone(req.Phone),
		Plan:        plan,
		PaymentMode: req.PaymentMode,
		CreatedAt:   time.Now(),
	}

	switch req.PaymentMode {
	case entry.PayOnline:
		if req.TransactionID == "" {
			return "", fmt.Errorf("gate: transaction id is required for online payments")
		}
		exists, err := s.ledger.Exists(ctx, req.TransactionID)
		if err != nil {
			return "", fmt.Errorf("gate: duplicate check: %w", err)
		}
		if exists {
			return "", ErrDuplicateTransaction
		}
		tx.ID = strings.TrimSpace(req.TransactionID)
	default:
		tx.ID = entry.NewCashTransactionID(tx.CreatedAt)
	}

	// QR minting, the ledger append and the outbound image are slow I/O;
	// they run detached from the request, on the process context.
	go s.processEntry(tx)

	return tx.ID, nil
}

func (s *Service) processEntry(tx entry.Transaction) {
	tok, qrPath, err := s.MintAndRegister(s.ctx, tx)
	if err != nil {
		s.log.Error("entry processing failed", "transaction_id", tx.ID, "err", err)
		return
	}
	s.log.Debug("token minted", "transaction_id", tx.ID, "token_len", len(tok))

	caption := fmt.Sprintf(
		"Hello %s, your %s transaction (%s) for %s - INR %d (%d mins) is confirmed. Here is your unique QR code.",
		tx.Name, tx.PaymentMode, tx.ID, tx.Plan.Name, tx.Plan.Amount, tx.Plan.Duration,
	)
	if err := s.notify.SendImage(s.ctx, tx.Phone, qrPath, caption); err != nil {
		s.log.Error("QR delivery failed", "transaction_id", tx.ID, "phone", tx.Phone, "err", err)
	}
}

// MintAndRegister mints a token for the transaction, records its single-use
// key as pending, renders the QR image and appends the ledger row.
func (s *Service) MintAndRegister(ctx context.Context, tx entry.Transaction) (string, string, error) {
	secureKey, err := token.NewSecureKey()
	if err != nil {
		return "", "", err
	}
	s.pending.Put(tx.ID, secureKey)

	tok, err := s.codec.Mint(token.Claims{
		TransactionID: tx.ID,
		Name:          tx.Name,
		Phone:         tx.Phone,
		Duration:      tx.Plan.Duration,
		Amount:        tx.Plan.Amount,
		Plan:          tx.Plan.Name,
		SecureKey:     secureKey,
	})
	if err != nil {
		return "", "", err
	}

	qrPath, err := s.qr.Generate(s.VerifyURL(tok))
	if err != nil {
		return "", "", fmt.Errorf("gate: render QR: %w", err)
	}

	if err := s.ledger.Append(ctx, Row{
		Timestamp:     tx.CreatedAt,
		Name:          tx.Name,
		Phone:         tx.Phone,
		TransactionID: tx.ID,
		Amount:        tx.Plan.Amount,
		Duration:      tx.Plan.Duration,
		Status:        StatusPending,
		PaymentMode:   string(tx.PaymentMode),
		Plan:          tx.Plan.Name,
	}); err != nil {
		// The token is already out; the ledger row can be fixed by hand.
		s.log.Error("ledger append failed", "transaction_id", tx.ID, "err", err)
	}

	return tok, qrPath, nil
}

// VerifyURL builds the URL embedded in the QR image.
func (s *Service) VerifyURL(tok string) string {
	return fmt.Sprintf("%s/verify?token=%s", s.baseURL, url.QueryEscape(tok))
}

// Verify runs the scan decision chain. Checks short-circuit in a fixed
// order; only the final success step has side effects.
func (s *Service) Verify(ctx context.Context, tok string) (Outcome, error) {
	claims, err := s.codec.Open(tok)
	if err != nil {
		return Outcome{}, err // token.ErrTamperedToken, terminal
	}
	tid := claims.TransactionID

	unlock := s.locks.lock(tid)
	defer unlock()

	// A running session means the pending key is already consumed; this
	// check has to come before the pending lookup or an admitted session
	// would be misreported as unknown.
	if _, ok := s.sessions.Get(tid); ok {
		return Outcome{Status: OutcomeRestore, Claims: claims}, nil
	}

	pendingKey, ok := s.pending.Get(tid)
	if !ok {
		status, found, err := s.ledger.FindStatus(ctx, tid)
		if err != nil {
			return Outcome{}, fmt.Errorf("gate: ledger status lookup: %w", err)
		}
		if found && strings.EqualFold(strings.TrimSpace(status), StatusIn) {
			return Outcome{}, ErrAlreadyAdmitted
		}
		return Outcome{}, ErrUnknownOrExpired
	}

	if subtle.ConstantTimeCompare([]byte(pendingKey), []byte(claims.SecureKey)) != 1 {
		return Outcome{}, ErrSecurityKeyMismatch
	}

	// Success. The pending key stays until the timer actually starts, so a
	// crashed browser between here and start keeps the code re-scannable.
	// The ledger write and the welcome notice fire once, on the first
	// Pending -> In transition; idempotent re-scans skip both.
	status, found, err := s.ledger.FindStatus(ctx, tid)
	if err != nil {
		return Outcome{}, fmt.Errorf("gate: ledger status lookup: %w", err)
	}
	if !found || !strings.EqualFold(strings.TrimSpace(status), StatusIn) {
		if err := s.ledger.SetStatus(ctx, tid, StatusIn); err != nil {
			return Outcome{}, fmt.Errorf("gate: mark admitted: %w", err)
		}
		msg := fmt.Sprintf("Welcome %s! Your entry is confirmed. Please ask the admin to start your %d mins session.",
			claims.Name, claims.Duration)
		if err := s.notify.SendText(ctx, claims.Phone, msg); err != nil {
			s.log.Error("admission notice failed", "transaction_id", tid, "err", err)
		}
	}

	return Outcome{Status: OutcomeAdmitted, Claims: claims}, nil
}

// StartSession consumes the pending key and spawns the session timer.
// Idempotent per transaction id: a second call while the session runs
// returns the existing session without a second timer.
func (s *Service) StartSession(ctx context.Context, tid, name, phone string, duration int) (session.Session, error) {
	unlock := s.locks.lock(tid)
	defer unlock()

	if existing, ok := s.sessions.Get(tid); ok {
		return existing, nil
	}

	restoreKey, err := token.NewRestoreKey()
	if err != nil {
		return session.Session{}, err
	}

	now := s.timers.Now()
	sess := session.Session{
		Name:          name,
		Phone:         entry.NormalizePhone(phone),
		TransactionID: tid,
		Duration:      duration,
		StartTime:     now,
		EndTime:       now.Add(time.Duration(duration) * time.Minute),
		RestoreKey:    restoreKey,
	}

	// Order matters: session truth hits disk before the timer exists, and
	// only then is the key consumed. A crash in between leaves a
	// recoverable session, never a lost one.
	s.sessions.Put(sess)
	s.pending.Remove(tid)
	s.timers.Start(sess, false)

	s.log.Info("session started",
		"transaction_id", tid,
		"duration_min", duration,
		"end_time", sess.EndTime.Format(time.RFC3339),
	)
	return sess, nil
}

// Restore re-attaches a client to its running session.
func (s *Service) Restore(ctx context.Context, tid, restoreKey string) (session.Session, error) {
	unlock := s.locks.lock(tid)
	defer unlock()

	sess, ok := s.sessions.Get(tid)
	if !ok || sess.RestoreKey == "" {
		return session.Session{}, ErrRestoreDenied
	}
	if subtle.ConstantTimeCompare([]byte(sess.RestoreKey), []byte(restoreKey)) != 1 {
		return session.Session{}, ErrRestoreDenied
	}
	return sess, nil
}

// ListActive returns admin views of all running sessions.
func (s *Service) ListActive() []session.View {
	now := s.timers.Now()
	buffer := s.timers.WarningBuffer()
	sessions := s.sessions.List()
	views := make([]session.View, 0, len(sessions))
	for _, sess := range sessions {
		views = append(views, session.NewView(sess, now, buffer))
	}
	return views
}

// ActiveCount reports the number of running sessions.
func (s *Service) ActiveCount() int { return s.sessions.Len() }
