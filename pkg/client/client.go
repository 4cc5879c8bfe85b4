// Package client talks to the directory server: REST fetches with retry and
// offline tracking, token inspection, and the directory notification socket.
package client

import (
	"compress/gzip"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/gridexplore/explorer/internal/logging"
	"github.com/gridexplore/explorer/internal/metrics"
	"github.com/gridexplore/explorer/pkg/models"
	"github.com/gridexplore/explorer/pkg/retry"
	"go.uber.org/zap"
)

var (
	// ErrOffline is returned when the server cannot be reached.
	ErrOffline = errors.New("server is offline")

	// ErrDirectoryNotFound is returned when the server no longer knows a
	// directory.
	ErrDirectoryNotFound = errors.New("directory not found")
)

// StatusError is a non-2xx answer from the server.
type StatusError struct {
	Endpoint   string
	StatusCode int
	Message    string
}

func (e *StatusError) Error() string {
	if e.Message != "" {
		return fmt.Sprintf("%s: server returned %d: %s", e.Endpoint, e.StatusCode, e.Message)
	}
	return fmt.Sprintf("%s: server returned %d", e.Endpoint, e.StatusCode)
}

// Client fetches directory listings from the directory server.
type Client struct {
	baseURL     string
	httpClient  *http.Client
	retryConfig retry.Config
	log         *zap.Logger

	mu        sync.RWMutex
	online    bool
	lastPing  time.Time
	authToken string
}

// Config holds client configuration.
type Config struct {
	BaseURL     string
	Timeout     time.Duration
	RetryConfig retry.Config
	AuthToken   string
	Logger      *zap.Logger
}

// New creates a new client.
func New(cfg Config) *Client {
	if cfg.Timeout == 0 {
		cfg.Timeout = 30 * time.Second
	}
	if cfg.RetryConfig.MaxAttempts == 0 {
		cfg.RetryConfig = retry.DefaultConfig()
	}
	if cfg.Logger == nil {
		cfg.Logger = logging.Named("client")
	}

	return &Client{
		baseURL: strings.TrimSuffix(cfg.BaseURL, "/"),
		httpClient: &http.Client{
			Timeout: cfg.Timeout,
			Transport: &http.Transport{
				DialContext: (&net.Dialer{
					Timeout:   10 * time.Second,
					KeepAlive: 30 * time.Second,
				}).DialContext,
				MaxIdleConns:        100,
				IdleConnTimeout:     90 * time.Second,
				DisableCompression:  true,
				TLSHandshakeTimeout: 10 * time.Second,
			},
		},
		retryConfig: cfg.RetryConfig,
		log:         cfg.Logger,
		online:      true,
		authToken:   cfg.AuthToken,
	}
}

// SetAuthToken sets the bearer token for requests.
func (c *Client) SetAuthToken(token string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.authToken = token
}

// AuthToken returns the current bearer token.
func (c *Client) AuthToken() string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.authToken
}

func (c *Client) applyAuth(req *http.Request) {
	if token := c.AuthToken(); token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
}

// IsOnline returns true if the server answered the last request.
func (c *Client) IsOnline() bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.online
}

// LastContact returns when the server was last reached or found unreachable.
func (c *Client) LastContact() time.Time {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.lastPing
}

func (c *Client) setOnline(online bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.online != online {
		if online {
			c.log.Info("directory server is back online", zap.String("url", c.baseURL))
		} else {
			c.log.Warn("directory server is offline", zap.String("url", c.baseURL))
		}
	}
	c.online = online
	c.lastPing = time.Now()
}

// Ping checks the server health endpoint.
func (c *Client) Ping(ctx context.Context) error {
	start := time.Now()
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"/actuator/health", nil)
	if err != nil {
		return err
	}
	c.applyAuth(req)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		metrics.RecordFetch("health", 0, time.Since(start))
		c.setOnline(false)
		return fmt.Errorf("%w: %v", ErrOffline, err)
	}
	defer resp.Body.Close()
	metrics.RecordFetch("health", resp.StatusCode, time.Since(start))

	if resp.StatusCode != http.StatusOK {
		c.setOnline(false)
		return &StatusError{Endpoint: "health", StatusCode: resp.StatusCode}
	}

	c.setOnline(true)
	return nil
}

// FetchRootFolders lists the root directories visible to the user.
func (c *Client) FetchRootFolders(ctx context.Context) ([]*models.DirectoryNode, error) {
	var nodes []*models.DirectoryNode
	if err := c.getJSON(ctx, "root-directories", "/v1/root-directories", &nodes); err != nil {
		return nil, fmt.Errorf("fetch root directories: %w", err)
	}
	return nodes, nil
}

// FetchDirectoryContent lists the elements of one directory, optionally
// restricted to the given element types.
func (c *Client) FetchDirectoryContent(ctx context.Context, directoryID string, types ...string) ([]*models.DirectoryNode, error) {
	if directoryID == "" {
		return nil, fmt.Errorf("fetch directory content: empty directory id")
	}

	path := "/v1/directories/" + url.PathEscape(directoryID) + "/elements"
	if len(types) > 0 {
		q := url.Values{}
		q.Set("elementTypes", strings.Join(types, ","))
		path += "?" + q.Encode()
	}

	var nodes []*models.DirectoryNode
	err := c.getJSON(ctx, "directory-elements", path, &nodes)
	if err != nil {
		var se *StatusError
		if errors.As(err, &se) && se.StatusCode == http.StatusNotFound {
			return nil, fmt.Errorf("directory %s: %w", directoryID, ErrDirectoryNotFound)
		}
		return nil, fmt.Errorf("fetch directory %s: %w", directoryID, err)
	}
	return nodes, nil
}

// getJSON issues a GET with retries and decodes the body into dst.
// Transport errors and 5xx are retried; other statuses are final.
func (c *Client) getJSON(ctx context.Context, endpoint, path string, dst any) error {
	return retry.Do(ctx, c.retryConfig, func() error {
		start := time.Now()
		requestID := logging.NewRequestID()

		req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+path, nil)
		if err != nil {
			return err
		}
		req.Header.Set("Accept", "application/json")
		req.Header.Set("Accept-Encoding", "gzip")
		req.Header.Set("X-Request-ID", requestID)
		c.applyAuth(req)

		resp, err := c.httpClient.Do(req)
		if err != nil {
			metrics.RecordFetch(endpoint, 0, time.Since(start))
			if ctx.Err() != nil {
				return ctx.Err()
			}
			c.setOnline(false)
			c.log.Debug("request failed",
				zap.String("request_id", requestID),
				zap.String("endpoint", endpoint),
				zap.Error(err))
			return retry.Retryable(fmt.Errorf("%w: %v", ErrOffline, err))
		}
		defer resp.Body.Close()
		metrics.RecordFetch(endpoint, resp.StatusCode, time.Since(start))

		if resp.StatusCode != http.StatusOK {
			se := &StatusError{Endpoint: endpoint, StatusCode: resp.StatusCode, Message: readMessage(resp.Body)}
			if resp.StatusCode >= 500 {
				c.setOnline(false)
				return retry.Retryable(se)
			}
			c.setOnline(true)
			return se
		}

		c.setOnline(true)

		var reader io.Reader = resp.Body
		if resp.Header.Get("Content-Encoding") == "gzip" {
			gr, err := gzip.NewReader(resp.Body)
			if err != nil {
				return fmt.Errorf("gzip: %w", err)
			}
			defer gr.Close()
			reader = gr
		}

		if err := json.NewDecoder(reader).Decode(dst); err != nil {
			return fmt.Errorf("decode %s: %w", endpoint, err)
		}

		c.log.Debug("request completed",
			zap.String("request_id", requestID),
			zap.String("endpoint", endpoint),
			zap.Duration("duration", time.Since(start)))
		return nil
	})
}

// readMessage extracts the "message" of a Spring style error body.
func readMessage(r io.Reader) string {
	var body struct {
		Message string `json:"message"`
		Error   string `json:"error"`
	}
	if json.NewDecoder(io.LimitReader(r, 64<<10)).Decode(&body) != nil {
		return ""
	}
	if body.Message != "" {
		return body.Message
	}
	return body.Error
}
