package http

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"sync"
	"time"

	"log/slog"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"github.com/Spok95/entry-gate/internal/domain/entry"
	"github.com/Spok95/entry-gate/internal/domain/gate"
	"github.com/Spok95/entry-gate/internal/domain/token"
)

var (
	httpRequestsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "entrygate_http_requests_total",
		Help: "HTTP requests by endpoint and status code",
	}, []string{"method", "endpoint", "status"})

	scansTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "entrygate_scans_total",
		Help: "QR scan verdicts",
	}, []string{"outcome"})

	// GaugeFunc registration is process-wide; it binds to the first handler.
	sessionGaugeOnce sync.Once
)

// Alerter raises out-of-band operator alerts. Its failures are swallowed.
type Alerter interface {
	Alert(ctx context.Context, text string) error
}

// Aggregator is the ledger view the admin data page needs.
type Aggregator interface {
	AggregateAll(ctx context.Context) (count, total int, err error)
}

type Handler struct {
	log       *slog.Logger
	svc       *gate.Service
	ledger    Aggregator
	alerter   Alerter
	adminUser string
	adminPass string
}

func NewHandler(log *slog.Logger, svc *gate.Service, ledger Aggregator, alerter Alerter, adminUser, adminPass string) *Handler {
	h := &Handler{
		log:       log,
		svc:       svc,
		ledger:    ledger,
		alerter:   alerter,
		adminUser: adminUser,
		adminPass: adminPass,
	}
	sessionGaugeOnce.Do(func() {
		promauto.NewGaugeFunc(prometheus.GaugeOpts{
			Name: "entrygate_active_sessions",
			Help: "Sessions with a running clock",
		}, func() float64 { return float64(svc.ActiveCount()) })
	})
	return h
}

func (h *Handler) SubmitEntry(w http.ResponseWriter, r *http.Request) {
	if err := r.ParseForm(); err != nil {
		respondError(w, http.StatusBadRequest, "Malformed form data")
		return
	}

	req := gate.EntryRequest{
		Name:          r.PostFormValue("name"),
		Phone:         r.PostFormValue("phone"),
		TransactionID: r.PostFormValue("transaction_id"),
		PlanCode:      r.PostFormValue("plan_selection"),
		PaymentMode:   entry.PaymentMode(r.PostFormValue("payment_mode")),
	}
	if req.Name == "" || req.Phone == "" {
		respondError(w, http.StatusBadRequest, "Name and phone are required")
		return
	}

	tid, err := h.svc.Register(r.Context(), req)
	switch {
	case errors.Is(err, gate.ErrDuplicateTransaction):
		respondError(w, http.StatusBadRequest, "Transaction ID already exists")
		return
	case errors.Is(err, entry.ErrUnknownPlan):
		respondError(w, http.StatusBadRequest, "Unknown plan selection")
		return
	case err != nil:
		respondError(w, http.StatusBadRequest, err.Error())
		return
	}

	respondJSON(w, http.StatusOK, map[string]string{
		"status":         "Processing started",
		"message":        "QR generation initiated",
		"transaction_id": tid,
	})
}

func (h *Handler) Verify(w http.ResponseWriter, r *http.Request) {
	tok := r.URL.Query().Get("token")
	if tok == "" {
		scansTotal.WithLabelValues("missing_token").Inc()
		respondError(w, http.StatusBadRequest, "Missing token")
		return
	}

	out, err := h.svc.Verify(r.Context(), tok)
	if err != nil {
		h.respondScanRejection(w, err)
		return
	}

	claims := out.Claims
	body := map[string]any{
		"transaction_id": claims.TransactionID,
		"name":           claims.Name,
		"phone":          claims.Phone,
		"duration":       claims.Duration,
		"plan":           claims.Plan,
	}
	switch out.Status {
	case gate.OutcomeRestore:
		scansTotal.WithLabelValues("restore").Inc()
		body["status"] = "check_restore"
	default:
		scansTotal.WithLabelValues("success").Inc()
		body["status"] = "success"
		body["time"] = time.Now().Format("2006-01-02 15:04:05")
	}
	respondJSON(w, http.StatusOK, body)
}

// respondScanRejection turns gate errors into participant-facing messages.
// Internal detail never reaches the scanning phone.
func (h *Handler) respondScanRejection(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, token.ErrTamperedToken):
		scansTotal.WithLabelValues("tampered").Inc()
		respondScanError(w, "Invalid or Tampered QR Code")
	case errors.Is(err, gate.ErrAlreadyAdmitted):
		scansTotal.WithLabelValues("already_used").Inc()
		respondScanError(w, "Entry ALREADY processed/used.")
	case errors.Is(err, gate.ErrUnknownOrExpired):
		scansTotal.WithLabelValues("unknown").Inc()
		respondScanError(w, "Invalid QR Code: Transaction not found or expired.")
	case errors.Is(err, gate.ErrSecurityKeyMismatch):
		scansTotal.WithLabelValues("key_mismatch").Inc()
		respondScanError(w, "Security Check Failed: Invalid Key.")
	default:
		scansTotal.WithLabelValues("internal_error").Inc()
		h.log.Error("verification failed", "err", err)
		respondScanError(w, "Verification Processing Failed")
	}
}

func (h *Handler) StartTimer(w http.ResponseWriter, r *http.Request) {
	if err := r.ParseForm(); err != nil {
		respondError(w, http.StatusBadRequest, "Malformed form data")
		return
	}
	name := r.PostFormValue("name")
	phone := r.PostFormValue("phone")
	tid := r.PostFormValue("transaction_id")
	if name == "" || tid == "" {
		respondError(w, http.StatusBadRequest, "Missing name or transaction_id")
		return
	}
	duration, err := strconv.Atoi(r.PostFormValue("duration"))
	if err != nil || duration <= 0 {
		duration = 15
	}

	sess, err := h.svc.StartSession(r.Context(), tid, name, phone, duration)
	if err != nil {
		h.log.Error("session start failed", "transaction_id", tid, "err", err)
		respondError(w, http.StatusInternalServerError, "Could not start session")
		return
	}

	respondJSON(w, http.StatusOK, map[string]any{
		"status":      "Timer started",
		"end_time":    sess.EndTime.Format(time.RFC3339),
		"duration":    sess.Duration,
		"restore_key": sess.RestoreKey,
	})
}

func (h *Handler) VerifyRestore(w http.ResponseWriter, r *http.Request) {
	var req struct {
		TransactionID string `json:"transaction_id"`
		RestoreKey    string `json:"restore_key"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondError(w, http.StatusBadRequest, "Malformed JSON body")
		return
	}

	sess, err := h.svc.Restore(r.Context(), req.TransactionID, req.RestoreKey)
	if err != nil {
		respondJSON(w, http.StatusForbidden, map[string]string{
			"status":  "error",
			"message": "Invalid Restore Key or Session Ended",
		})
		return
	}

	respondJSON(w, http.StatusOK, map[string]any{
		"status":     "restored",
		"start_time": sess.StartTime.Format(time.RFC3339),
		"end_time":   sess.EndTime.Format(time.RFC3339),
		"duration":   sess.Duration,
	})
}

func (h *Handler) Sessions(w http.ResponseWriter, r *http.Request) {
	respondJSON(w, http.StatusOK, h.svc.ListActive())
}

func (h *Handler) HealthStats(w http.ResponseWriter, r *http.Request) {
	respondJSON(w, http.StatusOK, map[string]any{
		"active_sessions": h.svc.ActiveCount(),
		"server_time":     time.Now().Format(time.RFC3339),
	})
}

func (h *Handler) Data(w http.ResponseWriter, r *http.Request) {
	if !h.authenticated(r) {
		respondError(w, http.StatusUnauthorized, "Admin login required")
		return
	}
	count, total, err := h.ledger.AggregateAll(r.Context())
	if err != nil {
		h.log.Error("aggregate failed", "err", err)
		respondError(w, http.StatusInternalServerError, "Could not read ledger")
		return
	}
	respondJSON(w, http.StatusOK, map[string]int{
		"total_participants": count,
		"total_revenue":      total,
	})
}
