package handler

import (
	"context"
	"log/slog"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/gorilla/mux"

	"consignado-bot/internal/auth"
	"consignado-bot/internal/cpf"
	"consignado-bot/internal/domain"
)

// Reader is the read side of the conversation store used by the admin views.
type Reader interface {
	ListConversations(ctx context.Context, limit int) ([]domain.Conversation, error)
	ListMessages(ctx context.Context, phone string, limit int) ([]domain.Message, error)
	Stats(ctx context.Context) (domain.Stats, error)
}

// Pinger reports backend health.
type Pinger interface {
	Ping(ctx context.Context) error
}

// Verifier checks admin bearer tokens.
type Verifier interface {
	Subject(token string) (string, error)
}

type conversationView struct {
	Phone        string `json:"phone"`
	State        string `json:"state"`
	CPF          string `json:"cpf,omitempty"`
	CreatedAt    string `json:"created_at"`
	LastActivity string `json:"last_activity"`
}

type messageView struct {
	ID        string `json:"id"`
	Body      string `json:"body"`
	Direction string `json:"direction"`
	GatewayID string `json:"gateway_id,omitempty"`
	Timestamp string `json:"timestamp"`
}

type listResponse[T any] struct {
	Items []T `json:"items"`
	Count int `json:"count"`
}

type testCPFRequest struct {
	CPF string `json:"cpf"`
}

type testCPFResponse struct {
	Valid     bool   `json:"valid"`
	CPF       string `json:"cpf"`
	Formatted string `json:"formatted,omitempty"`
}

func toConversationView(c domain.Conversation) conversationView {
	return conversationView{
		Phone:        c.Phone,
		State:        string(c.State),
		CPF:          cpf.Format(c.CPF),
		CreatedAt:    c.CreatedAt.UTC().Format(time.RFC3339),
		LastActivity: c.LastActivity.UTC().Format(time.RFC3339),
	}
}

func toMessageView(m domain.Message) messageView {
	return messageView{
		ID:        m.ID,
		Body:      m.Body,
		Direction: string(m.Direction),
		GatewayID: m.GatewayID,
		Timestamp: m.Timestamp.UTC().Format(time.RFC3339),
	}
}

func requireAdmin(v Verifier) mux.MiddlewareFunc {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			token, err := auth.BearerToken(r.Header.Get("Authorization"))
			if err == nil {
				var sub string
				sub, err = v.Subject(token)
				if err == nil && sub != auth.AdminSubject {
					writeJSON(w, http.StatusForbidden, errorResponse{Error: "forbidden"})
					return
				}
			}
			if err != nil {
				slog.InfoContext(r.Context(), "admin request rejected", "path", r.URL.Path, "err", err)
				writeJSON(w, http.StatusUnauthorized, errorResponse{Error: "unauthorized"})
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

func statsHandler(store Reader) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		st, err := store.Stats(r.Context())
		if err != nil {
			slog.ErrorContext(r.Context(), "admin stats failed", "err", err)
			writeJSON(w, http.StatusInternalServerError, errorResponse{Error: "INTERNAL_ERROR"})
			return
		}
		writeJSON(w, http.StatusOK, st)
	}
}

func conversationsHandler(store Reader) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		limit, ok := parseLimit(w, r)
		if !ok {
			return
		}
		convs, err := store.ListConversations(r.Context(), limit)
		if err != nil {
			slog.ErrorContext(r.Context(), "admin list conversations failed", "err", err)
			writeJSON(w, http.StatusInternalServerError, errorResponse{Error: "INTERNAL_ERROR"})
			return
		}
		items := make([]conversationView, 0, len(convs))
		for _, c := range convs {
			items = append(items, toConversationView(c))
		}
		writeJSON(w, http.StatusOK, listResponse[conversationView]{Items: items, Count: len(items)})
	}
}

func messagesHandler(store Reader) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		phone := strings.TrimSpace(mux.Vars(r)["phone"])
		if phone == "" {
			writeJSON(w, http.StatusBadRequest, errorResponse{Error: "phone is required"})
			return
		}
		limit, ok := parseLimit(w, r)
		if !ok {
			return
		}
		msgs, err := store.ListMessages(r.Context(), phone, limit)
		if err != nil {
			slog.ErrorContext(r.Context(), "admin list messages failed", "phone", phone, "err", err)
			writeJSON(w, http.StatusInternalServerError, errorResponse{Error: "INTERNAL_ERROR"})
			return
		}
		items := make([]messageView, 0, len(msgs))
		for _, m := range msgs {
			items = append(items, toMessageView(m))
		}
		writeJSON(w, http.StatusOK, listResponse[messageView]{Items: items, Count: len(items)})
	}
}

// parseLimit reads ?limit=; zero means the store default.
func parseLimit(w http.ResponseWriter, r *http.Request) (int, bool) {
	raw := r.URL.Query().Get("limit")
	if raw == "" {
		return 0, true
	}
	n, err := strconv.Atoi(raw)
	if err != nil || n < 0 {
		writeJSON(w, http.StatusBadRequest, errorResponse{Error: "limit must be a non-negative integer"})
		return 0, false
	}
	return n, true
}

func healthHandler(p Pinger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if p != nil {
			if err := p.Ping(r.Context()); err != nil {
				slog.WarnContext(r.Context(), "health check failed", "err", err)
				writeJSON(w, http.StatusServiceUnavailable, map[string]string{"status": "unavailable"})
				return
			}
		}
		writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	}
}

// testCPF validates a CPF without touching any conversation.
func testCPF(w http.ResponseWriter, r *http.Request) {
	req, ok := decodeJSON[testCPFRequest](w, r)
	if !ok {
		return
	}
	digits, valid := cpf.Validate(req.CPF)
	resp := testCPFResponse{Valid: valid, CPF: digits}
	if valid {
		resp.Formatted = cpf.Format(digits)
	}
	writeJSON(w, http.StatusOK, resp)
}
