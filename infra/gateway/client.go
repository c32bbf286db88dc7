package gateway

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/golang/glog"

	"github.com/CrestNiraj12/nwitter/app"
	"github.com/CrestNiraj12/nwitter/domain"
)

// Client is a thin HTTP wrapper for the gateway API.
// It handles base URL construction, bearer token and verification header
// injection, and maps rejections onto *domain.GatewayError.
type Client struct {
	baseURL string
	http    *http.Client

	mu    sync.RWMutex
	token string
}

// NewClient creates a gateway API client.
func NewClient(baseURL string) *Client {
	return &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		http:    &http.Client{Timeout: 30 * time.Second},
	}
}

// BaseURL returns the gateway root URL.
func (c *Client) BaseURL() string { return c.baseURL }

// SetToken replaces the bearer token sent with every request. Empty means
// anonymous.
func (c *Client) SetToken(token string) {
	c.mu.Lock()
	c.token = token
	c.mu.Unlock()
}

// Token returns the current bearer token.
func (c *Client) Token() string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.token
}

// doJSON sends in as a JSON body (when non-nil) and decodes the response into
// out (when non-nil).
func (c *Client) doJSON(ctx context.Context, op, method, path string, in, out any) error {
	var body io.Reader
	contentType := ""
	if in != nil {
		data, err := json.Marshal(in)
		if err != nil {
			return fmt.Errorf("%s: encoding request: %w", op, err)
		}
		body = bytes.NewReader(data)
		contentType = "application/json"
	}
	return c.do(ctx, op, method, path, contentType, body, out)
}

func (c *Client) do(ctx context.Context, op, method, path, contentType string, body io.Reader, out any) error {
	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, body)
	if err != nil {
		return fmt.Errorf("%s: creating request: %w", op, err)
	}
	if token := c.Token(); token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	if v := app.VerificationFrom(ctx); v != "" {
		req.Header.Set(VerificationHeader, v)
	}
	if contentType != "" {
		req.Header.Set("Content-Type", contentType)
	}
	req.Header.Set("Accept", "application/json")

	glog.V(2).Infof("gateway: %s %s", method, path)
	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("%s: request to %s: %w", op, path, err)
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("%s: reading response: %w", op, err)
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return rejection(op, resp.StatusCode, data)
	}
	if out == nil || len(data) == 0 {
		return nil
	}
	dec := json.NewDecoder(bytes.NewReader(data))
	dec.UseNumber()
	if err := dec.Decode(out); err != nil {
		return fmt.Errorf("%s: decoding response: %w", op, err)
	}
	return nil
}

// rejection turns a non-2xx response into a *domain.GatewayError when the
// body carries a structured error, and a plain error otherwise.
func rejection(op string, status int, data []byte) error {
	var eb ErrorBody
	if err := json.Unmarshal(data, &eb); err == nil && eb.Error.Message != "" {
		glog.Errorf("gateway: %s rejected: %d %s %s", op, status, eb.Error.Code, eb.Error.Message)
		return &domain.GatewayError{Op: op, Status: status, Code: eb.Error.Code, Message: eb.Error.Message}
	}
	glog.Errorf("gateway: %s failed: %d %s", op, status, strings.TrimSpace(string(data)))
	return fmt.Errorf("%s: gateway returned %d", op, status)
}

// IsUnauthorized reports whether err is a 401 rejection.
func IsUnauthorized(err error) bool {
	var ge *domain.GatewayError
	return errors.As(err, &ge) && ge.Status == http.StatusUnauthorized
}
