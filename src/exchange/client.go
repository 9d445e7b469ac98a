package exchange

import (
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/rs/zerolog"
	"golang.org/x/time/rate"

	"trade-performance/src/config"
	"trade-performance/src/observability"
)

// APIError is a non-2xx answer from the exchange.
type APIError struct {
	Status int
	Code   int    `json:"code"`
	Msg    string `json:"msg"`
}

func (e *APIError) Error() string {
	if e.Msg == "" {
		return fmt.Sprintf("exchange returned status %d", e.Status)
	}
	return fmt.Sprintf("exchange returned status %d (code %d): %s", e.Status, e.Code, e.Msg)
}

// Client talks to a Binance-compatible REST API. Every call waits on a shared
// limiter so feeds and rate lookups stay under the account weight together.
type Client struct {
	baseURL    string
	apiKey     string
	apiSecret  string
	recvWindow time.Duration
	http       *http.Client
	limiter    *rate.Limiter
	logger     zerolog.Logger
	metrics    *observability.Metrics
	now        func() time.Time
}

type Option func(*Client)

func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) { c.http = hc }
}

func WithMetrics(m *observability.Metrics) Option {
	return func(c *Client) { c.metrics = m }
}

func WithClock(now func() time.Time) Option {
	return func(c *Client) { c.now = now }
}

func NewClient(cfg config.ExchangeConfig, logger zerolog.Logger, opts ...Option) *Client {
	burst := cfg.Burst
	if burst <= 0 {
		burst = 1
	}
	limit := rate.Inf
	if cfg.RequestsPerSecond > 0 {
		limit = rate.Limit(cfg.RequestsPerSecond)
	}

	c := &Client{
		baseURL:    strings.TrimRight(cfg.BaseURL, "/"),
		apiKey:     cfg.APIKey,
		apiSecret:  cfg.APISecret,
		recvWindow: cfg.RecvWindow,
		http:       &http.Client{Timeout: cfg.Timeout},
		limiter:    rate.NewLimiter(limit, burst),
		logger:     logger,
		now:        time.Now,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

func (c *Client) HasCredentials() bool {
	return c.apiKey != "" && c.apiSecret != ""
}

// Get issues a public GET and decodes the JSON body into out.
func (c *Client) Get(ctx context.Context, path string, params url.Values, out any) error {
	return c.do(ctx, path, params, false, out)
}

// SignedGet adds timestamp, recvWindow and an HMAC-SHA256 signature over the
// encoded query, then sends the API key header.
func (c *Client) SignedGet(ctx context.Context, path string, params url.Values, out any) error {
	if !c.HasCredentials() {
		return fmt.Errorf("signed request to %s needs EXCHANGE_API_KEY and EXCHANGE_API_SECRET", path)
	}
	return c.do(ctx, path, params, true, out)
}

func (c *Client) do(ctx context.Context, path string, params url.Values, signed bool, out any) error {
	if err := c.limiter.Wait(ctx); err != nil {
		return err
	}

	query := url.Values{}
	for k, v := range params {
		query[k] = v
	}
	if signed {
		query.Set("timestamp", strconv.FormatInt(c.now().UnixMilli(), 10))
		if c.recvWindow > 0 {
			query.Set("recvWindow", strconv.FormatInt(c.recvWindow.Milliseconds(), 10))
		}
	}
	encoded := query.Encode()
	if signed {
		encoded += "&signature=" + c.sign(encoded)
	}

	target := c.baseURL + path
	if encoded != "" {
		target += "?" + encoded
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, target, nil)
	if err != nil {
		return err
	}
	if signed {
		req.Header.Set("X-MBX-APIKEY", c.apiKey)
	}

	start := time.Now()
	resp, err := c.http.Do(req)
	if err != nil {
		c.observe(path, "error")
		return fmt.Errorf("GET %s: %w", path, err)
	}
	defer resp.Body.Close()

	c.observe(path, statusClass(resp.StatusCode))
	c.logger.Debug().
		Str("path", path).
		Int("status", resp.StatusCode).
		Dur("latency", time.Since(start)).
		Msg("Exchange request")

	if resp.StatusCode != http.StatusOK {
		apiErr := &APIError{Status: resp.StatusCode}
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		_ = json.Unmarshal(body, apiErr)
		return apiErr
	}

	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("decode %s: %w", path, err)
	}
	return nil
}

func (c *Client) sign(payload string) string {
	mac := hmac.New(sha256.New, []byte(c.apiSecret))
	mac.Write([]byte(payload))
	return hex.EncodeToString(mac.Sum(nil))
}

func (c *Client) observe(path, status string) {
	if c.metrics == nil {
		return
	}
	c.metrics.FeedRequests.WithLabelValues(path, status).Inc()
}

func statusClass(code int) string {
	return strconv.Itoa(code/100) + "xx"
}
