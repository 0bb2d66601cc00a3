package handler

import (
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/gorilla/mux"
)

// RouterConfig wires the HTTP surface. Store, Tokens and Metrics are optional;
// admin routes are only mounted when both Store and Tokens are set.
type RouterConfig struct {
	Webhook *Handler
	Store   Reader
	Health  Pinger
	Tokens  Verifier
	Metrics http.Handler
}

func NewRouter(cfg RouterConfig) (*mux.Router, error) {
	if cfg.Webhook == nil {
		return nil, errors.New("handler: webhook handler must not be nil")
	}
	r := mux.NewRouter()
	r.Use(logRequests)

	r.HandleFunc("/webhook", cfg.Webhook.ServeWebhook).Methods(http.MethodPost)
	r.HandleFunc("/", cfg.Webhook.ServeWebhook).Methods(http.MethodPost)
	r.HandleFunc("/health", healthHandler(cfg.Health)).Methods(http.MethodGet)
	r.HandleFunc("/test-cpf", testCPF).Methods(http.MethodPost)
	if cfg.Metrics != nil {
		r.Handle("/metrics", cfg.Metrics).Methods(http.MethodGet)
	}

	if cfg.Store != nil && cfg.Tokens != nil {
		admin := r.PathPrefix("/admin").Subrouter()
		admin.Use(requireAdmin(cfg.Tokens))
		admin.HandleFunc("/stats", statsHandler(cfg.Store)).Methods(http.MethodGet)
		admin.HandleFunc("/conversations", conversationsHandler(cfg.Store)).Methods(http.MethodGet)
		admin.HandleFunc("/conversations/{phone}/messages", messagesHandler(cfg.Store)).Methods(http.MethodGet)
	}

	r.NotFoundHandler = http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		writeJSON(w, http.StatusNotFound, errorResponse{Error: "not_found"})
	})
	r.MethodNotAllowedHandler = http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		writeJSON(w, http.StatusMethodNotAllowed, errorResponse{Error: "method_not_allowed"})
	})
	return r, nil
}

type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (s *statusRecorder) WriteHeader(code int) {
	s.status = code
	s.ResponseWriter.WriteHeader(code)
}

func logRequests(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		rec := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
		next.ServeHTTP(rec, r)
		slog.DebugContext(r.Context(), "http request",
			"method", r.Method,
			"path", r.URL.Path,
			"status", rec.status,
			"duration_ms", time.Since(start).Milliseconds(),
		)
	})
}
