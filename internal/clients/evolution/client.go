package evolution

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

// Client sends WhatsApp messages through an Evolution API instance.
type Client interface {
	SendText(ctx context.Context, instance string, number string, text string) (*SendResult, error)
}

type Config struct {
	BaseURL         string
	APIKey          string
	DefaultInstance string
	Timeout         time.Duration
	MaxRetries      int
}

func ConfigFromEnv() Config {
	return Config{
		BaseURL:         strings.TrimSpace(os.Getenv("EVOLUTION_BASE_URL")),
		APIKey:          strings.TrimSpace(os.Getenv("EVOLUTION_API_KEY")),
		DefaultInstance: strings.TrimSpace(os.Getenv("EVOLUTION_INSTANCE")),
		Timeout:         envutil.Seconds("EVOLUTION_TIMEOUT_SECONDS", 30*time.Second),
		MaxRetries:      envutil.Int("EVOLUTION_MAX_RETRIES", 4),
	}
}

func NewFromEnv(log *logger.Logger) (Client, error) {
	return New(log, ConfigFromEnv())
}

func New(log *logger.Logger, cfg Config) (Client, error) {
	if log == nil {
		return nil, fmt.Errorf("logger required")
	}
	if cfg.BaseURL == "" {
		return nil, fmt.Errorf("missing EVOLUTION_BASE_URL")
	}
	if cfg.APIKey == "" {
		return nil, fmt.Errorf("missing EVOLUTION_API_KEY")
	}
	cfg.BaseURL = strings.TrimRight(cfg.BaseURL, "/")
	if cfg.Timeout <= 0 {
		cfg.Timeout = 30 * time.Second
	}
	if cfg.MaxRetries <= 0 {
		cfg.MaxRetries = 4
	}

	return &client{
		log:        log.With("client", "EvolutionClient"),
		cfg:        cfg,
		httpClient: &http.Client{Timeout: cfg.Timeout},
	}, nil
}

type client struct {
	log        *logger.Logger
	cfg        Config
	httpClient *http.Client
}

type SendResult struct {
	Key struct {
		ID        string `json:"id"`
		RemoteJid string `json:"remoteJid"`
	} `json:"key"`
	Status string `json:"status"`
}

type HTTPError struct {
	StatusCode int
	Body       string
}

func (e *HTTPError) Error() string {
	if e == nil {
		return "evolution: <nil error>"
	}
	msg := strings.TrimSpace(e.Body)
	if msg == "" {
		msg = "<empty body>"
	}
	if len(msg) > 4000 {
		msg = msg[:4000] + "..."
	}
	return fmt.Sprintf("evolution http %d: %s", e.StatusCode, msg)
}

func (e *HTTPError) HTTPStatusCode() int {
	if e == nil {
		return 0
	}
	return e.StatusCode
}

func (c *client) SendText(ctx context.Context, instance string, number string, text string) (*SendResult, error) {
	instance = strings.TrimSpace(instance)
	if instance == "" {
		instance = c.cfg.DefaultInstance
	}
	if instance == "" {
		return nil, fmt.Errorf("evolution: instance required")
	}
	number = strings.TrimSpace(number)
	if number == "" {
		return nil, fmt.Errorf("evolution: number required")
	}
	text = strings.TrimSpace(text)
	if text == "" {
		return nil, fmt.Errorf("evolution: text required")
	}

	endpoint := c.cfg.BaseURL + "/message/sendText/" + url.PathEscape(instance)
	body := map[string]any{
		"number": number,
		"text":   text,
	}

	backoff := 1 * time.Second
	for attempt := 0; attempt <= c.cfg.MaxRetries; attempt++ {
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}

		out, resp, err := c.doOnce(ctx, endpoint, body)
		if err == nil {
			return out, nil
		}

		if !httpx.IsRetryableError(err) || attempt == c.cfg.MaxRetries {
			return nil, err
		}

		sleepFor := httpx.RetryAfterDuration(resp, backoff, 10*time.Second)
		sleepFor = httpx.JitterSleep(sleepFor)

		c.log.Warn("Evolution request retrying",
			"url", endpoint,
			"attempt", attempt+1,
			"max_retries", c.cfg.MaxRetries,
			"sleep", sleepFor.String(),
			"error", err.Error(),
		)

		time.Sleep(sleepFor)
		backoff *= 2
	}

	return nil, fmt.Errorf("unreachable retry loop")
}

func (c *client) doOnce(ctx context.Context, endpoint string, body any) (*SendResult, *http.Response, error) {
	var buf bytes.Buffer
	if err := json.NewEncoder(&buf).Encode(body); err != nil {
		return nil, nil, err
	}

	req, err := http.NewRequestWithContext(ctxutil.Default(ctx), "POST", endpoint, &buf)
	if err != nil {
		return nil, nil, err
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("apikey", c.cfg.APIKey)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, resp, err
	}

	raw, readErr := io.ReadAll(resp.Body)
	_ = resp.Body.Close()
	if readErr != nil {
		return nil, resp, readErr
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, resp, &HTTPError{StatusCode: resp.StatusCode, Body: string(raw)}
	}

	var out SendResult
	if len(raw) > 0 {
		if err := json.Unmarshal(raw, &out); err != nil {
			return nil, resp, fmt.Errorf("evolution decode error: %w; raw=%s", err, string(raw))
		}
	}
	return &out, resp, nil
}
