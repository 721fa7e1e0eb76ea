package backend

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/cuemby/booster/pkg/log"
	"github.com/cuemby/booster/pkg/types"
	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"
)

// HTTPClient talks to the executor over JSON/HTTP and receives push events
// over a websocket
type HTTPClient struct {
	baseURL *url.URL
	http    *http.Client
	dialer  *websocket.Dialer
	logger  zerolog.Logger
}

// HTTPOption configures an HTTPClient
type HTTPOption func(*HTTPClient)

// WithHTTPClient replaces the underlying http.Client
func WithHTTPClient(c *http.Client) HTTPOption {
	return func(h *HTTPClient) {
		h.http = c
	}
}

// WithTimeout sets the per-request timeout
func WithTimeout(d time.Duration) HTTPOption {
	return func(h *HTTPClient) {
		h.http.Timeout = d
	}
}

// NewHTTPClient creates a client for the executor at baseURL
func NewHTTPClient(baseURL string, opts ...HTTPOption) (*HTTPClient, error) {
	u, err := url.Parse(strings.TrimRight(baseURL, "/"))
	if err != nil {
		return nil, fmt.Errorf("invalid backend url: %w", err)
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return nil, fmt.Errorf("invalid backend url scheme %q", u.Scheme)
	}

	c := &HTTPClient{
		baseURL: u,
		http:    &http.Client{Timeout: 10 * time.Second},
		dialer: &websocket.Dialer{
			HandshakeTimeout: 10 * time.Second,
		},
		logger: log.WithComponent("backend"),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c, nil
}

func (c *HTTPClient) endpoint(path string, query url.Values) string {
	u := *c.baseURL
	u.Path = c.baseURL.Path + path
	if query != nil {
		u.RawQuery = query.Encode()
	}
	return u.String()
}

// GetBoostersByCategory implements Backend
func (c *HTTPClient) GetBoostersByCategory(ctx context.Context, category, language string) ([]*types.BoosterItem, error) {
	q := url.Values{}
	q.Set("category", category)
	if language != "" {
		q.Set("language", language)
	}

	var items []*types.BoosterItem
	if err := c.do(ctx, http.MethodGet, c.endpoint("/api/boosters", q), &items); err != nil {
		return nil, fmt.Errorf("failed to get boosters for %s: %w", category, err)
	}
	return items, nil
}

// ExecuteBooster implements Backend
func (c *HTTPClient) ExecuteBooster(ctx context.Context, boosterID string, op types.Operation) (*types.ExecuteResult, error) {
	path := fmt.Sprintf("/api/boosters/%s/%s", url.PathEscape(boosterID), op)

	var result types.ExecuteResult
	if err := c.do(ctx, http.MethodPost, c.endpoint(path, nil), &result); err != nil {
		return nil, fmt.Errorf("failed to %s booster %s: %w", op, boosterID, err)
	}
	return &result, nil
}

// GetExecutionQueueState implements Backend
func (c *HTTPClient) GetExecutionQueueState(ctx context.Context) (*types.QueueState, error) {
	var raw json.RawMessage
	if err := c.do(ctx, http.MethodGet, c.endpoint("/api/queue", nil), &raw); err != nil {
		return nil, fmt.Errorf("failed to get queue state: %w", err)
	}
	return NormalizeQueueState(raw)
}

// GetExecutionStatus implements StatusConfirmer. Executors without the status
// endpoint yield ErrStatusUnsupported.
func (c *HTTPClient) GetExecutionStatus(ctx context.Context, boosterID string) (types.ExecutionStatus, string, error) {
	var body struct {
		Status types.ExecutionStatus `json:"status"`
		Error  string                `json:"error"`
	}
	path := "/api/executions/" + url.PathEscape(boosterID)
	err := c.do(ctx, http.MethodGet, c.endpoint(path, nil), &body)

	var se *statusError
	switch {
	case err == nil:
		return body.Status, body.Error, nil
	case errors.Is(err, ErrUnknownBooster), errors.As(err, &se) && se.code == http.StatusNotImplemented:
		return "", "", ErrStatusUnsupported
	default:
		return "", "", fmt.Errorf("failed to get status of %s: %w", boosterID, err)
	}
}

// SubscribeEvents implements Backend. It blocks reading the websocket until
// ctx is done or the connection fails.
func (c *HTTPClient) SubscribeEvents(ctx context.Context, handler func(payload []byte)) error {
	u := *c.baseURL
	switch u.Scheme {
	case "https":
		u.Scheme = "wss"
	default:
		u.Scheme = "ws"
	}
	u.Path = c.baseURL.Path + "/api/events"

	conn, _, err := c.dialer.DialContext(ctx, u.String(), nil)
	if err != nil {
		return fmt.Errorf("failed to connect event stream: %w", err)
	}
	defer conn.Close()

	done := make(chan struct{})
	defer close(done)
	go func() {
		select {
		case <-ctx.Done():
			_ = conn.WriteControl(websocket.CloseMessage,
				websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""),
				time.Now().Add(time.Second))
			conn.Close()
		case <-done:
		}
	}()

	c.logger.Debug().Str("url", u.String()).Msg("event stream connected")

	for {
		msgType, data, err := conn.ReadMessage()
		if err != nil {
			if ctx.Err() != nil {
				return nil
			}
			if websocket.IsCloseError(err, websocket.CloseNormalClosure) {
				return fmt.Errorf("event stream closed by backend")
			}
			return fmt.Errorf("event stream read failed: %w", err)
		}
		if msgType != websocket.TextMessage && msgType != websocket.BinaryMessage {
			continue
		}
		handler(data)
	}
}

func (c *HTTPClient) do(ctx context.Context, method, target string, out interface{}) error {
	req, err := http.NewRequestWithContext(ctx, method, target, nil)
	if err != nil {
		return err
	}
	req.Header.Set("Accept", "application/json")

	resp, err := c.http.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, 8<<20))
	if err != nil {
		return fmt.Errorf("failed to read response: %w", err)
	}

	if resp.StatusCode == http.StatusNotFound {
		return fmt.Errorf("%w: %s", ErrUnknownBooster, strings.TrimSpace(string(body)))
	}
	if resp.StatusCode >= 300 {
		return &statusError{code: resp.StatusCode, body: strings.TrimSpace(string(body))}
	}

	if err := json.Unmarshal(body, out); err != nil {
		return fmt.Errorf("failed to decode response: %w", err)
	}
	return nil
}

type statusError struct {
	code int
	body string
}

func (e *statusError) Error() string {
	return fmt.Sprintf("backend returned %d: %s", e.code, e.body)
}

// IsUnknownBooster reports whether err came from an unknown booster id
func IsUnknownBooster(err error) bool {
	return errors.Is(err, ErrUnknownBooster)
}
