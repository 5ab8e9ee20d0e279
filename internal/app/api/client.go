/*
Package api is the REST client of the collaboration backend.

Every call carries the bearer token of the current session. A 401 from any
endpoint other than login invokes the unauthorized hook, which the session
uses to drop the token and tear down the presence channel.

The backend answers either with this server's envelope {code, message, data}
or with a bare JSON document; both are accepted.
*/
package api

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
	"sync"
	"time"

	"github.com/rs/zerolog"

	"comfycollab/internal/pkg/logx"
)

// DefaultTimeout bounds one request.
const DefaultTimeout = 15 * time.Second

// maxErrorBody caps how much of an error response is read.
const maxErrorBody = 64 << 10

// StatusError is returned for every non-2xx response.
type StatusError struct {
	StatusCode int

	// Code is the backend error code when the body is an envelope.
	Code int

	Detail string
}

func (e *StatusError) Error() string {
	if e.Detail == "" {
		return fmt.Sprintf("api: http %d", e.StatusCode)
	}
	return fmt.Sprintf("api: http %d: %s", e.StatusCode, e.Detail)
}

// IsUnauthorized reports whether err is a 401 StatusError.
func IsUnauthorized(err error) bool {
	var se *StatusError
	return errors.As(err, &se) && se.StatusCode == http.StatusUnauthorized
}

// IsNotFound reports whether err is a 404 StatusError.
func IsNotFound(err error) bool {
	var se *StatusError
	return errors.As(err, &se) && se.StatusCode == http.StatusNotFound
}

// Option configures a Client.
type Option func(*Client)

// WithHTTPClient replaces the default http.Client.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) { c.http = hc }
}

// WithUnauthorizedHandler registers the hook run after any 401.
func WithUnauthorizedHandler(fn func()) Option {
	return func(c *Client) { c.onUnauthorized = fn }
}

// Client talks to one backend.
type Client struct {
	baseURL string
	http    *http.Client
	logger  zerolog.Logger

	// mu guards token and onUnauthorized.
	mu             sync.RWMutex
	token          string
	onUnauthorized func()
}

// New returns a client for baseURL, e.g. http://localhost:8080.
func New(baseURL string, opts ...Option) *Client {
	c := &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		http:    &http.Client{Timeout: DefaultTimeout},
		logger:  logx.Component("api"),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// OnUnauthorized replaces the hook run after any 401.
func (c *Client) OnUnauthorized(fn func()) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.onUnauthorized = fn
}

// BaseURL returns the backend root.
func (c *Client) BaseURL() string {
	return c.baseURL
}

// SetToken sets the bearer token; empty clears it.
func (c *Client) SetToken(token string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.token = token
}

// Token returns the current bearer token.
func (c *Client) Token() string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.token
}

type request struct {
	method string
	path   string
	query  url.Values

	// body is JSON-encoded unless form is set.
	body any
	form url.Values

	// anonymous requests carry no token and skip the 401 hook.
	anonymous bool
}

// do performs req and decodes the response into out, which may be nil.
func (c *Client) do(ctx context.Context, req request, out any) error {
	u := c.baseURL + req.path
	if len(req.query) > 0 {
		u += "?" + req.query.Encode()
	}

	var body io.Reader
	contentType := ""
	switch {
	case req.form != nil:
		body = strings.NewReader(req.form.Encode())
		contentType = "application/x-www-form-urlencoded"
	case req.body != nil:
		b, err := json.Marshal(req.body)
		if err != nil {
			return fmt.Errorf("api: encode %s %s: %w", req.method, req.path, err)
		}
		body = bytes.NewReader(b)
		contentType = "application/json"
	}

	httpReq, err := http.NewRequestWithContext(ctx, req.method, u, body)
	if err != nil {
		return fmt.Errorf("api: build %s %s: %w", req.method, req.path, err)
	}
	httpReq.Header.Set("Accept", "application/json")
	if contentType != "" {
		httpReq.Header.Set("Content-Type", contentType)
	}
	if !req.anonymous {
		if token := c.Token(); token != "" {
			httpReq.Header.Set("Authorization", "Bearer "+token)
		}
	}

	res, err := c.http.Do(httpReq)
	if err != nil {
		return fmt.Errorf("api: %s %s: %w", req.method, req.path, err)
	}
	defer res.Body.Close()

	if res.StatusCode < 200 || res.StatusCode > 299 {
		statusErr := readStatusError(res)
		c.logger.Debug().
			Str("method", req.method).
			Str("path", req.path).
			Int("status", res.StatusCode).
			Str("detail", statusErr.Detail).
			Msg("Backend request failed")

		if res.StatusCode == http.StatusUnauthorized && !req.anonymous {
			c.mu.RLock()
			hook := c.onUnauthorized
			c.mu.RUnlock()
			if hook != nil {
				hook()
			}
		}
		return statusErr
	}

	if out == nil || res.StatusCode == http.StatusNoContent {
		return nil
	}

	raw, err := io.ReadAll(res.Body)
	if err != nil {
		return fmt.Errorf("api: read %s %s: %w", req.method, req.path, err)
	}
	if err := json.Unmarshal(unwrap(raw), out); err != nil {
		return fmt.Errorf("api: decode %s %s: %w", req.method, req.path, err)
	}
	return nil
}

// envelope is this server's response wrapper.
type envelope struct {
	Code    *int            `json:"code"`
	Message string          `json:"message"`
	Data    json.RawMessage `json:"data"`
	Detail  json.RawMessage `json:"detail"`
}

// unwrap returns the data of an envelope, or raw when raw is a bare document.
func unwrap(raw []byte) []byte {
	trimmed := bytes.TrimSpace(raw)
	if len(trimmed) == 0 || trimmed[0] != '{' {
		return raw
	}
	var env envelope
	if err := json.Unmarshal(trimmed, &env); err != nil || env.Code == nil || env.Data == nil {
		return raw
	}
	return env.Data
}

func readStatusError(res *http.Response) *StatusError {
	se := &StatusError{StatusCode: res.StatusCode}

	raw, err := io.ReadAll(io.LimitReader(res.Body, maxErrorBody))
	if err != nil || len(raw) == 0 {
		se.Detail = http.StatusText(res.StatusCode)
		return se
	}

	var env envelope
	if err := json.Unmarshal(raw, &env); err != nil {
		se.Detail = strings.TrimSpace(string(raw))
		return se
	}
	if env.Code != nil {
		se.Code = *env.Code
	}

	switch {
	case env.Message != "":
		se.Detail = env.Message
	case len(env.Detail) > 0:
		var s string
		if json.Unmarshal(env.Detail, &s) == nil {
			se.Detail = s
		} else {
			// validation errors come as a list
			se.Detail = string(env.Detail)
		}
	default:
		se.Detail = http.StatusText(res.StatusCode)
	}
	return se
}
