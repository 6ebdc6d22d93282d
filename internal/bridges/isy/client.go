package isy

import (
	"context"
	"crypto/tls"
	"fmt"
	"io"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/nerrad567/gray-logic-isy/internal/infrastructure/config"
)

// REST endpoints of the controller.
const (
	nodesPath     = "/rest/nodes"
	statusPath    = "/rest/status"
	subscribePath = "/rest/subscribe"

	defaultRequestTimeout = 10 * time.Second

	// maxResponseSize caps a REST response body. Large installations
	// produce configuration payloads of a few megabytes.
	maxResponseSize = 32 << 20
)

// Client talks to the controller's REST interface.
//
// It implements nodes.StateFetcher through FetchFullState, and supplies the
// configuration payload consumed by Registry.Parse through FetchNodes.
//
// Thread Safety: All methods are safe for concurrent use.
type Client struct {
	baseURL  string
	username string
	password string
	http     *http.Client

	mu          sync.RWMutex
	lastErr     error
	lastSuccess time.Time
	requests    uint64
	failures    uint64
}

// ClientStats is a snapshot of the client's request counters.
type ClientStats struct {
	Reachable   bool
	LastSuccess time.Time
	LastError   string
	Requests    uint64
	Failures    uint64
}

// NewClient creates a REST client from the controller section of config.yaml.
//
// Parameters:
//   - cfg: Controller settings (host, port, tls, credentials, timeout)
//
// Returns:
//   - *Client: Ready for use; no request is made here
//   - error: ErrNotConfigured if the host is empty
func NewClient(cfg config.ControllerConfig) (*Client, error) {
	if cfg.Host == "" {
		return nil, fmt.Errorf("%w: controller host is required", ErrNotConfigured)
	}
	return newClient(cfg.BaseURL(), cfg), nil
}

func newClient(baseURL string, cfg config.ControllerConfig) *Client {
	timeout := cfg.GetRequestTimeout()
	if timeout <= 0 {
		timeout = defaultRequestTimeout
	}

	transport := http.DefaultTransport.(*http.Transport).Clone()
	if cfg.InsecureSkipVerify {
		// #nosec G402 -- opt-in for controllers with self-signed certificates
		transport.TLSClientConfig = &tls.Config{InsecureSkipVerify: true, MinVersion: tls.VersionTLS12}
	}

	return &Client{
		baseURL:  strings.TrimRight(baseURL, "/"),
		username: cfg.Username,
		password: cfg.Password,
		http: &http.Client{
			Timeout:   timeout,
			Transport: transport,
		},
	}
}

// FetchNodes returns the full configuration payload (folders, groups and
// nodes) from /rest/nodes.
func (c *Client) FetchNodes(ctx context.Context) ([]byte, error) {
	return c.get(ctx, nodesPath)
}

// FetchFullState returns the status snapshot from /rest/status.
func (c *Client) FetchFullState(ctx context.Context) ([]byte, error) {
	return c.get(ctx, statusPath)
}

// EventStreamURL returns the websocket subscription URL.
func (c *Client) EventStreamURL() string {
	u := c.baseURL
	switch {
	case strings.HasPrefix(u, "https://"):
		u = "wss://" + strings.TrimPrefix(u, "https://")
	case strings.HasPrefix(u, "http://"):
		u = "ws://" + strings.TrimPrefix(u, "http://")
	}
	return u + subscribePath
}

// Credentials returns the basic-auth pair used for every request.
func (c *Client) Credentials() (username, password string) {
	return c.username, c.password
}

// TLSConfig returns the TLS settings used for controller connections.
func (c *Client) TLSConfig() *tls.Config {
	if t, ok := c.http.Transport.(*http.Transport); ok {
		return t.TLSClientConfig
	}
	return nil
}

// IsConnected reports whether the most recent request succeeded.
func (c *Client) IsConnected() bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return !c.lastSuccess.IsZero() && c.lastErr == nil
}

// Stats returns the client's request counters.
func (c *Client) Stats() ClientStats {
	c.mu.RLock()
	defer c.mu.RUnlock()
	s := ClientStats{
		Reachable:   !c.lastSuccess.IsZero() && c.lastErr == nil,
		LastSuccess: c.lastSuccess,
		Requests:    c.requests,
		Failures:    c.failures,
	}
	if c.lastErr != nil {
		s.LastError = c.lastErr.Error()
	}
	return s
}

// get performs an authenticated GET and returns the body.
func (c *Client) get(ctx context.Context, path string) ([]byte, error) {
	body, err := c.do(ctx, path)
	c.record(err)
	return body, err
}

func (c *Client) do(ctx context.Context, path string) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+path, nil)
	if err != nil {
		return nil, fmt.Errorf("%w: %s: %w", ErrRequestFailed, path, err)
	}
	if c.username != "" {
		req.SetBasicAuth(c.username, c.password)
	}
	req.Header.Set("Accept", "application/xml")

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%w: %s: %w", ErrRequestFailed, path, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		// Drain so the connection can be reused.
		_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, maxResponseSize))
		return nil, fmt.Errorf("%w: %s: %s", ErrUnexpectedStatus, path, resp.Status)
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseSize))
	if err != nil {
		return nil, fmt.Errorf("%w: reading %s: %w", ErrRequestFailed, path, err)
	}
	return body, nil
}

func (c *Client) record(err error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.requests++
	c.lastErr = err
	if err != nil {
		c.failures++
		return
	}
	c.lastSuccess = time.Now()
}
