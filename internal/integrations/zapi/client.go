package zapi

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net"
	"net/http"
	"strings"
	"sync"
	"time"
)

const (
	defaultBaseURL  = "https://api.z-api.io"
	defaultTimeout  = 20 * time.Second
	defaultAttempts = 3
	defaultBackoff  = 500 * time.Millisecond
)

// sendTextRequest is the body accepted by the send-text endpoint.
type sendTextRequest struct {
	Phone   string `json:"phone"`
	Message string `json:"message"`
}

// sendTextResponse is the minimal response shape of the send-text endpoint.
// The gateway sometimes answers 200 with only an error field set.
type sendTextResponse struct {
	ZaapID    string `json:"zaapId"`
	MessageID string `json:"messageId"`
	ID        string `json:"id"`
	Error     string `json:"error"`
	Message   string `json:"message"`
}

// tokenPayload is the expected JSON shape stored in SSM for the instance token.
type tokenPayload struct {
	Token string `json:"token"`
}

type Getter interface {
	GetParameter(ctx context.Context, name string) (string, error)
}

// HTTPStatusError captures non-2xx gateway responses.
type HTTPStatusError struct {
	StatusCode int
	URL        string
	Body       string
}

func (e *HTTPStatusError) Error() string {
	return fmt.Sprintf("zapi: unexpected status %d from %s: %s", e.StatusCode, e.URL, e.Body)
}

func (e *HTTPStatusError) HTTPStatusCode() int {
	return e.StatusCode
}

// GatewayError is returned when the gateway answers 2xx with an error body.
type GatewayError struct {
	Message string
}

func (e *GatewayError) Error() string {
	return "zapi: gateway rejected message: " + e.Message
}

// Client sends text messages through a Z-API instance.
type Client struct {
	baseURL     string
	instanceID  string
	clientToken string
	httpClient  *http.Client
	attempts    int
	backoff     time.Duration

	getter    Getter
	tokenName string

	tokenMu sync.Mutex
	token   string
}

type Option func(*Client)

func WithBaseURL(baseURL string) Option {
	return func(c *Client) {
		c.baseURL = strings.TrimSpace(baseURL)
	}
}

func WithHTTPClient(httpClient *http.Client) Option {
	return func(c *Client) {
		c.httpClient = httpClient
	}
}

// WithToken sets a static instance token.
func WithToken(token string) Option {
	return func(c *Client) {
		c.token = strings.TrimSpace(token)
	}
}

// WithTokenParameter reads the instance token from the parameter store on the
// first send and reuses it for the lifetime of the process. A failed fetch is
// not cached; the next send tries again.
func WithTokenParameter(g Getter, name string) Option {
	return func(c *Client) {
		c.getter = g
		c.tokenName = strings.TrimSpace(name)
	}
}

// WithClientToken sets the account security token sent as the client-token header.
func WithClientToken(token string) Option {
	return func(c *Client) {
		c.clientToken = strings.TrimSpace(token)
	}
}

// WithRetry configures the number of attempts and the linear backoff step.
func WithRetry(attempts int, backoff time.Duration) Option {
	return func(c *Client) {
		if attempts > 0 {
			c.attempts = attempts
		}
		if backoff >= 0 {
			c.backoff = backoff
		}
	}
}

func NewClient(instanceID string, opts ...Option) (*Client, error) {
	instanceID = strings.TrimSpace(instanceID)
	if instanceID == "" {
		return nil, errors.New("zapi: instance id must not be empty")
	}
	c := &Client{
		baseURL:    defaultBaseURL,
		instanceID: instanceID,
		httpClient: &http.Client{Timeout: defaultTimeout},
		attempts:   defaultAttempts,
		backoff:    defaultBackoff,
	}
	for _, opt := range opts {
		opt(c)
	}
	if c.token == "" && c.getter == nil {
		return nil, errors.New("zapi: a token or a token parameter is required")
	}
	if c.token == "" && c.tokenName == "" {
		return nil, errors.New("zapi: token parameter name must not be empty")
	}
	return c, nil
}

func (c *Client) resolveToken(ctx context.Context) (string, error) {
	c.tokenMu.Lock()
	defer c.tokenMu.Unlock()
	if c.token != "" || c.getter == nil {
		return c.token, nil
	}
	token, err := fetchTokenFromParamStore(ctx, c.getter, c.tokenName)
	if err != nil {
		return "", err
	}
	c.token = token
	return token, nil
}

func (c *Client) resolvedHTTPClient() *http.Client {
	if c.httpClient != nil {
		return c.httpClient
	}
	return &http.Client{Timeout: defaultTimeout}
}

func sendTextURL(baseURL, instanceID, token string) string {
	base := strings.TrimRight(baseURL, "/")
	if base == "" {
		base = defaultBaseURL
	}
	return base + "/instances/" + instanceID + "/token/" + token + "/send-text"
}

// SendText delivers message to phone and returns the gateway message id.
func (c *Client) SendText(ctx context.Context, phone, message string) (string, error) {
	phone = strings.TrimSpace(phone)
	if phone == "" {
		return "", errors.New("zapi: phone must not be empty")
	}
	token, err := c.resolveToken(ctx)
	if err != nil {
		return "", err
	}

	body, err := json.Marshal(sendTextRequest{Phone: phone, Message: message})
	if err != nil {
		return "", fmt.Errorf("zapi: marshal request: %w", err)
	}
	url := sendTextURL(c.baseURL, c.instanceID, token)
	safeURL := sendTextURL(c.baseURL, c.instanceID, "***")

	var raw []byte
	for attempt := 1; ; attempt++ {
		raw, err = c.post(ctx, url, safeURL, body)
		if err == nil || attempt >= c.attempts || !retryable(err) {
			break
		}
		slog.WarnContext(ctx, "zapi send failed, retrying", "phone", phone, "attempt", attempt, "err", redact(err, token))
		if waitErr := sleep(ctx, time.Duration(attempt)*c.backoff); waitErr != nil {
			return "", fmt.Errorf("zapi: send text: %w", waitErr)
		}
	}
	if err != nil {
		return "", fmt.Errorf("zapi: send text: %w", redact(err, token))
	}

	var payload sendTextResponse
	if decErr := json.Unmarshal(raw, &payload); decErr != nil {
		return "", fmt.Errorf("zapi: decode response: %w", decErr)
	}
	if payload.Error != "" {
		msg := payload.Error
		if payload.Message != "" {
			msg += ": " + payload.Message
		}
		return "", &GatewayError{Message: msg}
	}
	switch {
	case payload.MessageID != "":
		return payload.MessageID, nil
	case payload.ZaapID != "":
		return payload.ZaapID, nil
	default:
		return payload.ID, nil
	}
}

func (c *Client) post(ctx context.Context, url, safeURL string, body []byte) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	if c.clientToken != "" {
		// Z-API expects the header name in lowercase.
		req.Header["client-token"] = []string{c.clientToken}
	}
	return c.doJSONRequest(req, safeURL)
}

func (c *Client) doJSONRequest(req *http.Request, url string) ([]byte, error) {
	res, doErr := c.resolvedHTTPClient().Do(req)
	if doErr != nil {
		return nil, doErr
	}
	defer func() { _ = res.Body.Close() }()

	if res.StatusCode < 200 || res.StatusCode >= 300 {
		buf, _ := io.ReadAll(io.LimitReader(res.Body, 4096))
		return nil, &HTTPStatusError{
			StatusCode: res.StatusCode,
			URL:        url,
			Body:       string(buf),
		}
	}

	buf, err := io.ReadAll(io.LimitReader(res.Body, 1<<20))
	if err != nil {
		return nil, fmt.Errorf("read response body: %w", err)
	}
	return buf, nil
}

// retryable reports whether err is worth another attempt: transport
// failures, 429 and 5xx.
func retryable(err error) bool {
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return false
	}
	var statusErr *HTTPStatusError
	if errors.As(err, &statusErr) {
		return statusErr.StatusCode == http.StatusTooManyRequests || statusErr.StatusCode >= 500
	}
	var netErr net.Error
	if errors.As(err, &netErr) {
		return true
	}
	return errors.Is(err, io.ErrUnexpectedEOF) || errors.Is(err, io.EOF)
}

func sleep(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}

// redact strips the instance token, which is part of the URL, from err.
func redact(err error, token string) error {
	if err == nil || token == "" || !strings.Contains(err.Error(), token) {
		return err
	}
	return &redactedError{msg: strings.ReplaceAll(err.Error(), token, "***"), err: err}
}

type redactedError struct {
	msg string
	err error
}

func (e *redactedError) Error() string { return e.msg }

func (e *redactedError) Unwrap() error { return e.err }

func fetchTokenFromParamStore(ctx context.Context, getter Getter, name string) (string, error) {
	if getter == nil {
		return "", errors.New("zapi: paramstore getter is nil")
	}
	name = strings.TrimSpace(name)
	if name == "" {
		return "", errors.New("zapi: token parameter name is empty")
	}

	raw, err := getter.GetParameter(ctx, name)
	if err != nil {
		return "", fmt.Errorf("zapi: fetch token from paramstore: %w", err)
	}
	var tp tokenPayload
	if err := json.Unmarshal([]byte(raw), &tp); err != nil {
		return "", fmt.Errorf("zapi: unmarshal paramstore token value as JSON: %w", err)
	}
	if tp.Token == "" {
		return "", errors.New("zapi: instance token is empty")
	}
	return tp.Token, nil
}
