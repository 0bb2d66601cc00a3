package handler

import (
	"context"
	"encoding/base64"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/aws/aws-lambda-go/events"
	"github.com/google/uuid"

	"consignado-bot/internal/integrations/zapi"
	"consignado-bot/internal/usecase"
)

const (
	correlationHeader = "X-Correlation-Id"
	maxBodyBytes      = 1 << 20
)

// Processor runs one inbound message through the conversation.
type Processor interface {
	Process(ctx context.Context, in usecase.Inbound) (usecase.Outcome, error)
}

type webhookResponse struct {
	Status string `json:"status"`
	Error  string `json:"error,omitempty"`
}

// Handler turns gateway webhook deliveries into conversation turns. It serves
// both API Gateway proxy events and plain net/http requests with the same rules.
type Handler struct {
	svc     Processor
	observe func(time.Duration)
}

type Option func(*Handler)

// WithLatencyObserver receives the duration of every webhook request.
func WithLatencyObserver(fn func(time.Duration)) Option {
	return func(h *Handler) {
		if fn != nil {
			h.observe = fn
		}
	}
}

func NewHandler(svc Processor, opts ...Option) (*Handler, error) {
	if svc == nil {
		return nil, errors.New("handler: processor must not be nil")
	}
	h := &Handler{svc: svc, observe: func(time.Duration) {}}
	for _, opt := range opts {
		opt(h)
	}
	return h, nil
}

// Handle is the Lambda entry point.
func (h *Handler) Handle(ctx context.Context, req events.APIGatewayProxyRequest) (events.APIGatewayProxyResponse, error) {
	correlationID := correlationIDFrom(headerValue(req.Headers, correlationHeader))

	body := []byte(req.Body)
	if req.IsBase64Encoded {
		decoded, err := base64.StdEncoding.DecodeString(req.Body)
		if err != nil {
			slog.WarnContext(ctx, "webhook body is not valid base64", "correlation_id", correlationID)
			return jsonResponse(http.StatusOK, webhookResponse{Status: usecase.StatusIgnored}, correlationID), nil
		}
		body = decoded
	}

	status, resp := h.webhook(ctx, body, correlationID)
	return jsonResponse(status, resp, correlationID), nil
}

// ServeWebhook is the net/http entry point.
func (h *Handler) ServeWebhook(w http.ResponseWriter, r *http.Request) {
	correlationID := correlationIDFrom(r.Header.Get(correlationHeader))
	w.Header().Set(correlationHeader, correlationID)

	body, err := io.ReadAll(http.MaxBytesReader(w, r.Body, maxBodyBytes))
	if err != nil {
		slog.WarnContext(r.Context(), "webhook body unreadable", "correlation_id", correlationID, "err", err)
		writeJSON(w, http.StatusOK, webhookResponse{Status: usecase.StatusIgnored})
		return
	}

	status, resp := h.webhook(r.Context(), body, correlationID)
	writeJSON(w, status, resp)
}

func (h *Handler) webhook(ctx context.Context, body []byte, correlationID string) (int, webhookResponse) {
	start := time.Now()
	defer func() { h.observe(time.Since(start)) }()

	msg, verdict := zapi.ParseWebhook(body)
	if verdict != zapi.VerdictAccepted {
		slog.DebugContext(ctx, "webhook not processed", "correlation_id", correlationID, "verdict", verdict.String())
		return http.StatusOK, webhookResponse{Status: usecase.StatusIgnored}
	}

	slog.InfoContext(ctx, "message received", "correlation_id", correlationID, "phone", msg.Phone, "message_id", msg.MessageID)
	slog.DebugContext(ctx, "message body", "correlation_id", correlationID, "text", msg.Text)

	out, err := h.svc.Process(ctx, usecase.Inbound{Phone: msg.Phone, Text: msg.Text, MessageID: msg.MessageID})
	if err != nil {
		code := usecase.ErrorInternal
		var ucErr *usecase.Error
		if errors.As(err, &ucErr) {
			code = ucErr.Code
		}
		slog.ErrorContext(ctx, "webhook processing failed", "correlation_id", correlationID, "phone", msg.Phone, "err", err)
		return http.StatusInternalServerError, webhookResponse{Status: "error", Error: string(code)}
	}

	switch out.Status {
	case usecase.StatusProcessed:
		slog.InfoContext(ctx, "message processed", "correlation_id", correlationID, "phone", msg.Phone, "state", out.State, "delivered", out.Delivered)
		return http.StatusOK, webhookResponse{Status: "ok"}
	default:
		return http.StatusOK, webhookResponse{Status: out.Status}
	}
}

func correlationIDFrom(v string) string {
	v = strings.TrimSpace(v)
	if v == "" || len(v) > 128 {
		return uuid.NewString()
	}
	return v
}

// headerValue looks a header up case-insensitively; API Gateway preserves
// the client's casing.
func headerValue(headers map[string]string, key string) string {
	if v, ok := headers[key]; ok {
		return v
	}
	for k, v := range headers {
		if strings.EqualFold(k, key) {
			return v
		}
	}
	return ""
}
