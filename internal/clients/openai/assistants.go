package openai

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"os"
	"strings"
	"time"

	"github.com/luminachat/lumina-backend/internal/pkg/ctxutil"
	"github.com/luminachat/lumina-backend/internal/pkg/envutil"
	"github.com/luminachat/lumina-backend/internal/pkg/httpx"
	"github.com/luminachat/lumina-backend/internal/pkg/logger"
)

// Run statuses reported by the Assistants API.
const (
	RunStatusQueued         = "queued"
	RunStatusInProgress     = "in_progress"
	RunStatusRequiresAction = "requires_action"
	RunStatusCompleted      = "completed"
	RunStatusFailed         = "failed"
	RunStatusCancelled      = "cancelled"
	RunStatusExpired        = "expired"
)

type RunError struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

type Run struct {
	ID        string    `json:"id"`
	ThreadID  string    `json:"thread_id"`
	Status    string    `json:"status"`
	LastError *RunError `json:"last_error,omitempty"`
}

// Active reports whether the upstream service would reject new messages on
// the run's thread.
func (r *Run) Active() bool {
	if r == nil {
		return false
	}
	switch r.Status {
	case RunStatusQueued, RunStatusInProgress, RunStatusRequiresAction:
		return true
	}
	return false
}

type MessageContent struct {
	Type string `json:"type"`
	Text struct {
		Value string `json:"value"`
	} `json:"text"`
}

type Message struct {
	ID      string           `json:"id"`
	Role    string           `json:"role"`
	Content []MessageContent `json:"content"`
}

// FirstText returns the first text block of the message, or "".
func (m *Message) FirstText() string {
	if m == nil {
		return ""
	}
	for _, c := range m.Content {
		if c.Type == "text" {
			return c.Text.Value
		}
	}
	return ""
}

// Client is the Assistants API surface the run coordinator needs.
type Client interface {
	CreateThread(ctx context.Context) (string, error)
	CreateMessage(ctx context.Context, threadID string, role string, text string) error
	CreateRun(ctx context.Context, threadID string, assistantID string) (*Run, error)
	GetRun(ctx context.Context, threadID string, runID string) (*Run, error)
	// GetLatestRun returns the thread's most recent run, or nil when the
	// thread has never run.
	GetLatestRun(ctx context.Context, threadID string) (*Run, error)
	GetLatestMessage(ctx context.Context, threadID string) (*Message, error)
}

type client struct {
	log        *logger.Logger
	baseURL    string
	apiKey     string
	httpClient *http.Client
	maxRetries int
}

func NewClient(log *logger.Logger) (Client, error) {
	if log == nil {
		return nil, fmt.Errorf("logger required")
	}

	apiKey := strings.TrimSpace(os.Getenv("OPENAI_API_KEY"))
	if apiKey == "" {
		return nil, fmt.Errorf("missing OPENAI_API_KEY")
	}

	baseURL := strings.TrimSpace(os.Getenv("OPENAI_BASE_URL"))
	if baseURL == "" {
		baseURL = "https://api.openai.com"
	}
	baseURL = strings.TrimRight(baseURL, "/")

	timeout := envutil.Seconds("OPENAI_TIMEOUT_SECONDS", 60*time.Second)
	maxRetries := envutil.Int("OPENAI_MAX_RETRIES", 4)
	if maxRetries < 0 {
		maxRetries = 0
	}

	return &client{
		log:        log.With("client", "OpenAIAssistants"),
		baseURL:    baseURL,
		apiKey:     apiKey,
		httpClient: &http.Client{Timeout: timeout},
		maxRetries: maxRetries,
	}, nil
}

type HTTPError struct {
	StatusCode int
	Body       string
}

func (e *HTTPError) Error() string {
	return fmt.Sprintf("openai http %d: %s", e.StatusCode, e.Body)
}

func (e *HTTPError) HTTPStatusCode() int {
	if e == nil {
		return 0
	}
	return e.StatusCode
}

// IsActiveRunConflict reports whether err is the upstream rejection of
// adding a message while a run is active on the thread.
func IsActiveRunConflict(err error) bool {
	he, ok := err.(*HTTPError)
	if !ok || he == nil {
		return false
	}
	if he.StatusCode != http.StatusBadRequest {
		return false
	}
	body := strings.ToLower(he.Body)
	return strings.Contains(body, "while a run") && strings.Contains(body, "is active")
}

func (c *client) doOnce(ctx context.Context, method, path string, body any) (*http.Response, []byte, error) {
	var buf bytes.Buffer
	if body != nil {
		if err := json.NewEncoder(&buf).Encode(body); err != nil {
			return nil, nil, err
		}
	}

	req, err := http.NewRequestWithContext(ctxutil.Default(ctx), method, c.baseURL+path, &buf)
	if err != nil {
		return nil, nil, err
	}
	req.Header.Set("Authorization", "Bearer "+c.apiKey)
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("OpenAI-Beta", "assistants=v2")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, nil, err
	}

	raw, readErr := io.ReadAll(resp.Body)
	_ = resp.Body.Close()
	if readErr != nil {
		return resp, nil, readErr
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return resp, raw, &HTTPError{StatusCode: resp.StatusCode, Body: string(raw)}
	}
	return resp, raw, nil
}

func (c *client) do(ctx context.Context, method, path string, body any, out any) error {
	backoff := 1 * time.Second

	for attempt := 0; attempt <= c.maxRetries; attempt++ {
		if ctx.Err() != nil {
			return ctx.Err()
		}

		resp, raw, err := c.doOnce(ctx, method, path, body)
		if err == nil {
			if out == nil {
				return nil
			}
			if uErr := json.Unmarshal(raw, out); uErr != nil {
				return fmt.Errorf("openai decode error: %w; raw=%s", uErr, string(raw))
			}
			return nil
		}

		if !httpx.IsRetryableError(err) || attempt == c.maxRetries {
			return err
		}

		sleepFor := httpx.RetryAfterDuration(resp, backoff, 10*time.Second)
		sleepFor = httpx.JitterSleep(sleepFor)

		c.log.Warn("OpenAI request retrying",
			"path", path,
			"attempt", attempt+1,
			"max_retries", c.maxRetries,
			"sleep", sleepFor.String(),
			"error", err.Error(),
		)

		time.Sleep(sleepFor)
		backoff *= 2
	}

	return fmt.Errorf("unreachable retry loop")
}

func (c *client) CreateThread(ctx context.Context) (string, error) {
	var out struct {
		ID string `json:"id"`
	}
	if err := c.do(ctx, "POST", "/v1/threads", map[string]any{}, &out); err != nil {
		return "", err
	}
	if strings.TrimSpace(out.ID) == "" {
		return "", fmt.Errorf("openai create thread: missing id")
	}
	return strings.TrimSpace(out.ID), nil
}

func (c *client) CreateMessage(ctx context.Context, threadID string, role string, text string) error {
	threadID = strings.TrimSpace(threadID)
	if threadID == "" {
		return fmt.Errorf("thread_id required")
	}
	if strings.TrimSpace(role) == "" {
		role = "user"
	}
	body := map[string]any{
		"role":    role,
		"content": text,
	}
	return c.do(ctx, "POST", "/v1/threads/"+url.PathEscape(threadID)+"/messages", body, nil)
}

func (c *client) CreateRun(ctx context.Context, threadID string, assistantID string) (*Run, error) {
	threadID = strings.TrimSpace(threadID)
	assistantID = strings.TrimSpace(assistantID)
	if threadID == "" || assistantID == "" {
		return nil, fmt.Errorf("thread_id and assistant_id required")
	}
	body := map[string]any{
		"assistant_id": assistantID,
	}
	var out Run
	if err := c.do(ctx, "POST", "/v1/threads/"+url.PathEscape(threadID)+"/runs", body, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

func (c *client) GetRun(ctx context.Context, threadID string, runID string) (*Run, error) {
	threadID = strings.TrimSpace(threadID)
	runID = strings.TrimSpace(runID)
	if threadID == "" || runID == "" {
		return nil, fmt.Errorf("thread_id and run_id required")
	}
	var out Run
	if err := c.do(ctx, "GET", "/v1/threads/"+url.PathEscape(threadID)+"/runs/"+url.PathEscape(runID), nil, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

func (c *client) GetLatestRun(ctx context.Context, threadID string) (*Run, error) {
	threadID = strings.TrimSpace(threadID)
	if threadID == "" {
		return nil, fmt.Errorf("thread_id required")
	}
	var out struct {
		Data []Run `json:"data"`
	}
	if err := c.do(ctx, "GET", "/v1/threads/"+url.PathEscape(threadID)+"/runs?limit=1&order=desc", nil, &out); err != nil {
		return nil, err
	}
	if len(out.Data) == 0 {
		return nil, nil
	}
	run := out.Data[0]
	return &run, nil
}

func (c *client) GetLatestMessage(ctx context.Context, threadID string) (*Message, error) {
	threadID = strings.TrimSpace(threadID)
	if threadID == "" {
		return nil, fmt.Errorf("thread_id required")
	}
	var out struct {
		Data []Message `json:"data"`
	}
	if err := c.do(ctx, "GET", "/v1/threads/"+url.PathEscape(threadID)+"/messages?limit=1&order=desc", nil, &out); err != nil {
		return nil, err
	}
	if len(out.Data) == 0 {
		return nil, fmt.Errorf("openai thread %s has no messages", threadID)
	}
	msg := out.Data[0]
	return &msg, nil
}
