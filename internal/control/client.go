// Package control talks to the R58 appliance's recording control API.
package control

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"go.uber.org/zap"

	"github.com/mBelstad/preke-r58-recorder-sub015/internal/models"
)

// StartResult is the appliance's response to a record start.
type StartResult struct {
	SessionID string    `json:"session_id"`
	StartedAt time.Time `json:"started_at"`
}

// StopResult is the appliance's response to a record stop.
type StopResult struct {
	SessionID  string            `json:"session_id"`
	DurationMS int64             `json:"duration_ms"`
	Files      map[string]string `json:"files"` // input id -> output file path
}

// Recorder is the subset of the appliance API the session machine needs.
type Recorder interface {
	Start(ctx context.Context, name string, inputIDs []string) (StartResult, error)
	Stop(ctx context.Context, sessionID string) (StopResult, error)
}

// Client is an HTTP client for the appliance control API. Start and Stop
// retry transient failures with backoff up to the configured budget; the
// caller sees a single terminal error once the budget is exhausted.
type Client struct {
	baseURL string
	http    *http.Client
	retries int
	backoff time.Duration
	log     *zap.Logger
}

// NewClient creates a control client. retries is the total number of
// attempts for start/stop (minimum 1); backoff doubles per attempt.
func NewClient(baseURL string, retries int, backoff time.Duration, log *zap.Logger) *Client {
	if log == nil {
		log = zap.NewNop()
	}
	if retries < 1 {
		retries = 1
	}
	if backoff <= 0 {
		backoff = 500 * time.Millisecond
	}
	return &Client{
		baseURL: baseURL,
		http:    &http.Client{Timeout: 15 * time.Second},
		retries: retries,
		backoff: backoff,
		log:     log,
	}
}

// Start begins a new recording session with the given signal-bearing inputs.
func (c *Client) Start(ctx context.Context, name string, inputIDs []string) (StartResult, error) {
	body := map[string]interface{}{"input_ids": inputIDs}
	if name != "" {
		body["name"] = name
	}
	var out StartResult
	err := c.postWithRetry(ctx, "/control/record/start", body, &out)
	if err != nil {
		return StartResult{}, fmt.Errorf("start recording: %w", err)
	}
	return out, nil
}

// Stop ends the recording session.
func (c *Client) Stop(ctx context.Context, sessionID string) (StopResult, error) {
	body := map[string]interface{}{}
	if sessionID != "" {
		body["session_id"] = sessionID
	}
	var out StopResult
	err := c.postWithRetry(ctx, "/control/record/stop", body, &out)
	if err != nil {
		return StopResult{}, fmt.Errorf("stop recording: %w", err)
	}
	return out, nil
}

// Inputs fetches the full input list (wholesale refresh).
func (c *Client) Inputs(ctx context.Context) ([]models.CameraInput, error) {
	var out struct {
		Inputs []models.CameraInput `json:"inputs"`
	}
	if err := c.get(ctx, "/control/inputs", &out); err != nil {
		return nil, fmt.Errorf("fetch inputs: %w", err)
	}
	return out.Inputs, nil
}

// Status fetches the current per-input camera status as a merge event.
func (c *Client) Status(ctx context.Context) (models.StatusEvent, error) {
	var out models.StatusEvent
	if err := c.get(ctx, "/control/status", &out); err != nil {
		return models.StatusEvent{}, fmt.Errorf("fetch status: %w", err)
	}
	return out, nil
}

func (c *Client) postWithRetry(ctx context.Context, path string, body interface{}, out interface{}) error {
	var lastErr error
	delay := c.backoff
	for attempt := 1; attempt <= c.retries; attempt++ {
		lastErr = c.post(ctx, path, body, out)
		if lastErr == nil {
			return nil
		}
		if ctx.Err() != nil {
			return lastErr
		}
		c.log.Warn("control request failed",
			zap.String("path", path),
			zap.Int("attempt", attempt),
			zap.Int("budget", c.retries),
			zap.Error(lastErr),
		)
		if attempt == c.retries {
			break
		}
		select {
		case <-ctx.Done():
			return lastErr
		case <-time.After(delay):
		}
		delay *= 2
	}
	return lastErr
}

func (c *Client) post(ctx context.Context, path string, body interface{}, out interface{}) error {
	raw, err := json.Marshal(body)
	if err != nil {
		return fmt.Errorf("marshal body: %w", err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+path, bytes.NewReader(raw))
	if err != nil {
		return fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	return c.do(req, out)
}

func (c *Client) get(ctx context.Context, path string, out interface{}) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+path, nil)
	if err != nil {
		return fmt.Errorf("create request: %w", err)
	}
	return c.do(req, out)
}

func (c *Client) do(req *http.Request, out interface{}) error {
	resp, err := c.http.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		msg, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return fmt.Errorf("recorder returned %d: %s", resp.StatusCode, bytes.TrimSpace(msg))
	}
	if out == nil {
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("decode response: %w", err)
	}
	return nil
}
