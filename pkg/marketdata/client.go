// Package marketdata provides the HTTP client for the self-hosted market
// data service (an aktools-style JSON gateway over exchange and fund data).
//
// Every response uses the envelope {code, message, data}: a non-zero code
// or a non-2xx HTTP status is an error. After each successful call the
// client pauses for the configured pacing interval so bursts of fetches
// stay within the upstream rate limits.
package marketdata

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"sort"
	"strings"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/leozhang/finsight/internal/observability"
)

// DefaultPacing is the pause applied after each successful request.
const DefaultPacing = 1 * time.Second

// Config holds the market data client settings.
type Config struct {
	// BaseURL is the root of the data service, e.g. "http://127.0.0.1:8170".
	BaseURL string

	// Timeout bounds each HTTP request.
	Timeout time.Duration

	// Pacing is the pause after each successful call. Zero disables pacing.
	Pacing time.Duration

	// NewsToken, when set, is sent as a bearer token on news endpoints.
	NewsToken string
}

// DefaultConfig returns the client settings used when none are supplied.
func DefaultConfig() Config {
	return Config{
		BaseURL: "http://127.0.0.1:8170",
		Timeout: 30 * time.Second,
		Pacing:  DefaultPacing,
	}
}

// Client talks to the market data service.
type Client struct {
	baseURL    string
	pacing     time.Duration
	newsToken  string
	httpClient *http.Client
}

// NewClient creates a market data client from cfg, filling unset fields
// from DefaultConfig.
func NewClient(cfg Config) *Client {
	defaults := DefaultConfig()
	if cfg.BaseURL == "" {
		cfg.BaseURL = defaults.BaseURL
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = defaults.Timeout
	}

	return &Client{
		baseURL:   strings.TrimRight(cfg.BaseURL, "/"),
		pacing:    cfg.Pacing,
		newsToken: cfg.NewsToken,
		httpClient: &http.Client{
			Timeout: cfg.Timeout,
		},
	}
}

// envelope is the wire format shared by every data service endpoint.
type envelope struct {
	Code    int             `json:"code"`
	Message string          `json:"message"`
	Data    json.RawMessage `json:"data"`
}

// get fetches path with params and decodes the envelope data into out.
// A nil out discards the payload. The bearer token is attached when auth
// is true and a news token is configured.
func (c *Client) get(ctx context.Context, path string, params url.Values, out interface{}, auth bool) error {
	start := time.Now()
	err := c.doGet(ctx, path, params, out, auth)
	observability.RecordDataFetch(path, time.Since(start), err == nil)

	if err != nil {
		log.Debug().Err(err).Str("path", path).Msg("Market data fetch failed")
		return err
	}

	c.pace(ctx)
	return nil
}

func (c *Client) doGet(ctx context.Context, path string, params url.Values, out interface{}, auth bool) error {
	endpoint := c.baseURL + path
	if len(params) > 0 {
		endpoint += "?" + params.Encode()
	}

	req, err := http.NewRequestWithContext(ctx, "GET", endpoint, nil)
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Accept", "application/json")
	if auth && c.newsToken != "" {
		req.Header.Set("Authorization", "Bearer "+c.newsToken)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("failed to call data service: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		body, _ := io.ReadAll(resp.Body)
		return fmt.Errorf("data service error (status %d): %s", resp.StatusCode, strings.TrimSpace(string(body)))
	}

	var env envelope
	if err := json.NewDecoder(resp.Body).Decode(&env); err != nil {
		return fmt.Errorf("failed to decode response: %w", err)
	}
	if env.Code != 0 {
		return fmt.Errorf("data service error (code %d): %s", env.Code, env.Message)
	}

	if out == nil || len(env.Data) == 0 {
		return nil
	}
	if err := json.Unmarshal(env.Data, out); err != nil {
		return fmt.Errorf("failed to decode data payload: %w", err)
	}
	return nil
}

// pace waits for the pacing interval or until ctx is cancelled. The fetched
// data is already in hand at this point, so cancellation only cuts the wait
// short and is not reported as an error.
func (c *Client) pace(ctx context.Context) {
	if c.pacing <= 0 {
		return
	}
	select {
	case <-time.After(c.pacing):
	case <-ctx.Done():
	}
}

// Rows is the generic record set returned by the tabular fund endpoints.
type Rows []map[string]interface{}

// Render formats the rows as one line per record with keys in sorted
// order, a compact shape that reads well inside an analysis prompt.
func (r Rows) Render() string {
	if len(r) == 0 {
		return "(no data)"
	}

	var sb strings.Builder
	for i, row := range r {
		if i > 0 {
			sb.WriteString("\n")
		}

		keys := make([]string, 0, len(row))
		for k := range row {
			keys = append(keys, k)
		}
		sort.Strings(keys)

		parts := make([]string, 0, len(keys))
		for _, k := range keys {
			parts = append(parts, fmt.Sprintf("%s: %v", k, row[k]))
		}
		sb.WriteString(strings.Join(parts, ", "))
	}
	return sb.String()
}
