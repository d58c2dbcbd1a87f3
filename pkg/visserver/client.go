// Package visserver talks to the tile server that renders layer data for the
// map client. Each host session owns one namespace on the server.
package visserver

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"github.com/rexliu/geonb/pkg/layers"
)

const (
	maxRetries    = 3
	retryBaseWait = 200 * time.Millisecond

	// DefaultProvider is the renderer class the tile server instantiates for
	// ingested rasters.
	DefaultProvider = "mapnik"
)

// ErrStatus indicates a non-2xx reply from the tile server.
var ErrStatus = errors.New("visserver: unexpected status")

// Client is the lifecycle and ingest client.
type Client struct {
	base     string
	provider string
	http     *http.Client
	logger   zerolog.Logger
}

// Option configures a Client.
type Option func(*Client)

// WithHTTPClient replaces the default HTTP client.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) { c.http = hc }
}

// WithLogger sets the logger used for retries.
func WithLogger(logger zerolog.Logger) Option {
	return func(c *Client) { c.logger = logger }
}

// WithProvider sets the renderer class sent on ingest.
func WithProvider(provider string) Option {
	return func(c *Client) { c.provider = provider }
}

// New validates baseURL and returns a client.
func New(baseURL string, opts ...Option) (*Client, error) {
	parsed, err := url.Parse(baseURL)
	if err != nil || (parsed.Scheme != "http" && parsed.Scheme != "https") {
		return nil, fmt.Errorf("visserver: invalid base url %q", baseURL)
	}
	c := &Client{
		base:     strings.TrimRight(baseURL, "/"),
		provider: DefaultProvider,
		http:     newHTTPClient(),
		logger:   zerolog.Nop(),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c, nil
}

func newHTTPClient() *http.Client {
	return &http.Client{
		Timeout: 30 * time.Second,
		Transport: &http.Transport{
			DisableKeepAlives: true,
		},
	}
}

// CleanlyCloseBody drains and closes an HTTP response body.
func CleanlyCloseBody(body io.ReadCloser) error {
	if body == nil {
		return nil
	}
	_, _ = io.Copy(io.Discard, body)
	return body.Close()
}

// Start opens the namespace for session.
func (c *Client) Start(ctx context.Context, session string) error {
	_, err := c.do(ctx, http.MethodPost, c.sessionURL(session), nil)
	return err
}

// Shutdown drops the namespace for session and every layer in it.
func (c *Client) Shutdown(ctx context.Context, session string) error {
	_, err := c.do(ctx, http.MethodDelete, c.sessionURL(session), nil)
	return err
}

// Ingest publishes data as layer name under session and returns the URL the
// client should render it from.
func (c *Client) Ingest(ctx context.Context, session, name string, data layers.Data) (string, error) {
	kwargs, err := providerOptions(name, data)
	if err != nil {
		return "", err
	}
	body := map[string]any{
		"provider": map[string]any{
			"class":  c.provider,
			"kwargs": kwargs,
		},
	}
	target := c.sessionURL(session) + "/" + url.PathEscape(name)
	if _, err := c.do(ctx, http.MethodPost, target, body); err != nil {
		return "", fmt.Errorf("ingest %s: %w", name, err)
	}
	return target, nil
}

func (c *Client) sessionURL(session string) string {
	return c.base + "/" + url.PathEscape(session)
}

func providerOptions(name string, data layers.Data) (map[string]any, error) {
	switch d := data.(type) {
	case layers.RasterData:
		opts := map[string]any{"name": name, "path": d.Path}
		if len(d.Bands) > 0 {
			opts["bands"] = d.Bands
		}
		if d.NoData != nil {
			opts["nodata"] = *d.NoData
		}
		return opts, nil
	case layers.RasterCollection:
		paths := make([]string, 0, len(d.Items))
		for _, item := range d.Items {
			paths = append(paths, item.Path)
		}
		return map[string]any{"name": name, "paths": paths}, nil
	default:
		return nil, fmt.Errorf("visserver: cannot ingest %T", data)
	}
}

func (c *Client) do(ctx context.Context, method, target string, body any) ([]byte, error) {
	var payload []byte
	if body != nil {
		var err error
		payload, err = json.Marshal(body)
		if err != nil {
			return nil, fmt.Errorf("encode body: %w", err)
		}
	}

	var lastErr error
	for attempt := 0; attempt < maxRetries; attempt++ {
		if attempt > 0 {
			wait := retryBaseWait * time.Duration(1<<(attempt-1))
			select {
			case <-ctx.Done():
				return nil, ctx.Err()
			case <-time.After(wait):
			}
		}
		req, err := http.NewRequestWithContext(ctx, method, target, bytes.NewReader(payload))
		if err != nil {
			return nil, fmt.Errorf("create request: %w", err)
		}
		if payload != nil {
			req.Header.Set("Content-Type", "application/json")
		}
		resp, err := c.http.Do(req)
		if err != nil {
			lastErr = err
			if isRetryableError(err) {
				c.logger.Warn().Err(err).Int("attempt", attempt+1).Str("url", target).Msg("vis server request failed")
				continue
			}
			return nil, fmt.Errorf("issue request: %w", err)
		}
		data, readErr := io.ReadAll(resp.Body)
		CleanlyCloseBody(resp.Body)
		if resp.StatusCode < 200 || resp.StatusCode > 299 {
			return nil, fmt.Errorf("%w: %d %s", ErrStatus, resp.StatusCode, errorText(data))
		}
		if readErr != nil {
			return nil, fmt.Errorf("read body: %w", readErr)
		}
		return data, nil
	}
	return nil, fmt.Errorf("issue request after %d retries: %w", maxRetries, lastErr)
}

func isRetryableError(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, io.EOF) {
		return true
	}
	msg := err.Error()
	return strings.Contains(msg, "EOF") ||
		strings.Contains(msg, "connection reset") ||
		strings.Contains(msg, "connection refused") ||
		strings.Contains(msg, "broken pipe")
}

// errorText extracts {"error": ...} from a failure body, which the tile
// server sends either as a string or a list of lines.
func errorText(body []byte) string {
	var payload struct {
		Error json.RawMessage `json:"error"`
	}
	if err := json.Unmarshal(body, &payload); err != nil || len(payload.Error) == 0 {
		return strings.TrimSpace(string(body))
	}
	var lines []string
	if err := json.Unmarshal(payload.Error, &lines); err == nil {
		return strings.Join(lines, "")
	}
	var text string
	if err := json.Unmarshal(payload.Error, &text); err == nil {
		return text
	}
	return string(payload.Error)
}
