package twilio

import (
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

// Client sends messages through the Twilio Messages API. Numbers are plain
// digit strings; SendWhatsApp adds the whatsapp: prefix both sides.
type Client interface {
	SendWhatsApp(ctx context.Context, to string, body string) (*Message, error)
	SendSMS(ctx context.Context, to string, body string) (*Message, error)
}

type Config struct {
	AccountSID  string
	AuthToken   string
	BaseURL     string
	DefaultFrom string
	Timeout     time.Duration
	MaxRetries  int
}

func ConfigFromEnv() Config {
	return Config{
		AccountSID:  strings.TrimSpace(os.Getenv("TWILIO_ACCOUNT_SID")),
		AuthToken:   strings.TrimSpace(os.Getenv("TWILIO_AUTH_TOKEN")),
		BaseURL:     strings.TrimSpace(os.Getenv("TWILIO_BASE_URL")),
		DefaultFrom: strings.TrimSpace(os.Getenv("TWILIO_FROM_NUMBER")),
		Timeout:     envutil.Seconds("TWILIO_TIMEOUT_SECONDS", 30*time.Second),
		MaxRetries:  envutil.Int("TWILIO_MAX_RETRIES", 4),
	}
}

func NewFromEnv(log *logger.Logger) (Client, error) {
	return New(log, ConfigFromEnv())
}

func New(log *logger.Logger, cfg Config) (Client, error) {
	if log == nil {
		return nil, fmt.Errorf("logger required")
	}
	if cfg.AccountSID == "" {
		return nil, fmt.Errorf("missing TWILIO_ACCOUNT_SID")
	}
	if cfg.AuthToken == "" {
		return nil, fmt.Errorf("missing TWILIO_AUTH_TOKEN")
	}
	if cfg.DefaultFrom == "" {
		return nil, fmt.Errorf("missing TWILIO_FROM_NUMBER")
	}
	if cfg.BaseURL == "" {
		cfg.BaseURL = "https://api.twilio.com/2010-04-01"
	}
	cfg.BaseURL = strings.TrimRight(cfg.BaseURL, "/")
	if cfg.Timeout <= 0 {
		cfg.Timeout = 30 * time.Second
	}
	if cfg.MaxRetries <= 0 {
		cfg.MaxRetries = 4
	}

	return &client{
		log:        log.With("client", "TwilioClient"),
		cfg:        cfg,
		httpClient: &http.Client{Timeout: cfg.Timeout},
	}, nil
}

type client struct {
	log        *logger.Logger
	cfg        Config
	httpClient *http.Client
}

type Message struct {
	SID          string  `json:"sid,omitempty"`
	To           string  `json:"to,omitempty"`
	From         string  `json:"from,omitempty"`
	Body         string  `json:"body,omitempty"`
	Status       string  `json:"status,omitempty"`
	ErrorCode    *int    `json:"error_code,omitempty"`
	ErrorMessage *string `json:"error_message,omitempty"`
}

func (c *client) SendWhatsApp(ctx context.Context, to string, body string) (*Message, error) {
	to = strings.TrimSpace(to)
	if to == "" {
		return nil, fmt.Errorf("twilio: to required")
	}
	if !strings.HasPrefix(to, "whatsapp:") {
		to = "whatsapp:+" + strings.TrimPrefix(to, "+")
	}
	from := c.cfg.DefaultFrom
	if !strings.HasPrefix(from, "whatsapp:") {
		from = "whatsapp:" + from
	}
	return c.send(ctx, to, from, body)
}

func (c *client) SendSMS(ctx context.Context, to string, body string) (*Message, error) {
	to = strings.TrimSpace(to)
	if to == "" {
		return nil, fmt.Errorf("twilio: to required")
	}
	if !strings.HasPrefix(to, "+") {
		to = "+" + to
	}
	return c.send(ctx, to, c.cfg.DefaultFrom, body)
}

func (c *client) send(ctx context.Context, to, from, body string) (*Message, error) {
	body = strings.TrimSpace(body)
	if body == "" {
		return nil, fmt.Errorf("twilio: body required")
	}

	form := url.Values{}
	form.Set("To", to)
	form.Set("From", from)
	form.Set("Body", body)

	endpoint := fmt.Sprintf("%s/Accounts/%s/Messages.json", c.cfg.BaseURL, c.cfg.AccountSID)

	backoff := 1 * time.Second
	for attempt := 0; attempt <= c.cfg.MaxRetries; attempt++ {
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}

		out, resp, err := c.doFormOnce(ctx, endpoint, form)
		if err == nil {
			return out, nil
		}

		if !httpx.IsRetryableError(err) || attempt == c.cfg.MaxRetries {
			return nil, err
		}

		sleepFor := httpx.RetryAfterDuration(resp, backoff, 10*time.Second)
		sleepFor = httpx.JitterSleep(sleepFor)

		c.log.Warn("Twilio request retrying",
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

type apiError struct {
	Code     int    `json:"code"`
	Message  string `json:"message"`
	MoreInfo string `json:"more_info"`
	Status   int    `json:"status"`
}

type HTTPError struct {
	StatusCode int
	Body       string
	APIError   *apiError
}

func (e *HTTPError) Error() string {
	if e == nil {
		return "twilio: <nil error>"
	}
	if e.APIError != nil && strings.TrimSpace(e.APIError.Message) != "" {
		return fmt.Sprintf("twilio http %d: %s (code=%d)", e.StatusCode, e.APIError.Message, e.APIError.Code)
	}
	msg := strings.TrimSpace(e.Body)
	if msg == "" {
		msg = "<empty body>"
	}
	if len(msg) > 4000 {
		msg = msg[:4000] + "..."
	}
	return fmt.Sprintf("twilio http %d: %s", e.StatusCode, msg)
}

func (e *HTTPError) HTTPStatusCode() int {
	if e == nil {
		return 0
	}
	return e.StatusCode
}

func (c *client) doFormOnce(ctx context.Context, endpoint string, form url.Values) (*Message, *http.Response, error) {
	req, err := http.NewRequestWithContext(ctxutil.Default(ctx), "POST", endpoint, strings.NewReader(form.Encode()))
	if err != nil {
		return nil, nil, err
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	req.Header.Set("Accept", "application/json")
	req.SetBasicAuth(c.cfg.AccountSID, c.cfg.AuthToken)

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
		var ae apiError
		if json.Unmarshal(raw, &ae) == nil && strings.TrimSpace(ae.Message) != "" {
			return nil, resp, &HTTPError{StatusCode: resp.StatusCode, Body: string(raw), APIError: &ae}
		}
		return nil, resp, &HTTPError{StatusCode: resp.StatusCode, Body: string(raw)}
	}

	var out Message
	if len(raw) > 0 {
		if err := json.Unmarshal(raw, &out); err != nil {
			return nil, resp, fmt.Errorf("twilio decode error: %w; raw=%s", err, string(raw))
		}
	}
	return &out, resp, nil
}
