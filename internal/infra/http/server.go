package http

import (
	"context"
	"net/http"

	"github.com/gorilla/mux"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

type Server struct {
	srv *http.Server
}

func New(addr string, h *Handler, qrDir string, exposeMetrics bool) *Server {
	r := mux.NewRouter()
	r.Use(h.recoverMiddleware)
	r.Use(h.metricsMiddleware)

	r.HandleFunc("/submit_entry", h.SubmitEntry).Methods(http.MethodPost)
	r.HandleFunc("/verify", h.Verify).Methods(http.MethodGet)
	r.HandleFunc("/start_timer", h.StartTimer).Methods(http.MethodPost)

	r.HandleFunc("/api/verify_restore", h.VerifyRestore).Methods(http.MethodPost)
	r.HandleFunc("/api/sessions", h.Sessions).Methods(http.MethodGet)
	r.HandleFunc("/api/health_stats", h.HealthStats).Methods(http.MethodGet)

	r.HandleFunc("/health", h.Health).Methods(http.MethodGet)
	r.HandleFunc("/health/login", h.HealthLogin).Methods(http.MethodPost)
	r.HandleFunc("/health/logout", h.HealthLogout).Methods(http.MethodGet)
	r.HandleFunc("/data", h.Data).Methods(http.MethodGet)

	r.PathPrefix("/generated_qrs/").Handler(
		http.StripPrefix("/generated_qrs/", http.FileServer(http.Dir(qrDir))))

	if exposeMetrics {
		r.Handle("/metrics", promhttp.Handler())
	}

	return &Server{srv: &http.Server{Addr: addr, Handler: r}}
}

func (s *Server) Start() error {
	return s.srv.ListenAndServe()
}

func (s *Server) Shutdown(ctx context.Context) error {
	return s.srv.Shutdown(ctx)
}
