// Package api is the gateway to the ticket/identity REST service. Every call carries the
// session's bearer token and every 401 tears the session down before the caller sees it.
package api

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
	"github.com/tidwall/gjson"

	"github.com/jask/flowbit/internal/metrics"
)

// DefaultTimeout bounds every request.
const DefaultTimeout = 10 * time.Second

const maxBodyBytes = 8 << 20

var (
	// ErrUnauthorized is returned after a 401 has torn the session down.
	ErrUnauthorized = errors.New("api: unauthorized")
	// ErrTimeout is returned when the fixed request timeout elapses.
	ErrTimeout = errors.New("api: request timed out")
	// ErrInvalidCredentials is returned by Login for rejected credentials.
	ErrInvalidCredentials = errors.New("api: invalid credentials")
)

// NetworkError wraps transport failures (refused connections, DNS, resets).
type NetworkError struct {
	Op  string
	Err error
}

func (e *NetworkError) Error() string { return fmt.Sprintf("api: %s: %v", e.Op, e.Err) }
func (e *NetworkError) Unwrap() error { return e.Err }

// StatusError is a non-2xx, non-401 response. Detail is the server's "detail" field if any.
type StatusError struct {
	Code   int
	Detail string
}

func (e *StatusError) Error() string {
	if e.Detail == "" {
		return fmt.Sprintf("api: request failed with status %d", e.Code)
	}
	return fmt.Sprintf("api: request failed with status %d: %s", e.Code, e.Detail)
}

// TokenSource is the part of the session store the gateway needs: it reads the token
// and reports auth failures back.
type TokenSource interface {
	Token() (string, bool)
	Invalidate(token string) bool
}

// Options configures a Client.
type Options struct {
	BaseURL    string
	Timeout    time.Duration
	Tokens     TokenSource
	Log        *logrus.Logger
	HTTPClient *http.Client
}

// Client performs JSON requests against the API.
type Client struct {
	httpClient *http.Client
	baseURL    string
	tokens     TokenSource
	log        *logrus.Logger
}

// New creates a client. A zero Timeout means DefaultTimeout.
func New(opts Options) *Client {
	timeout := opts.Timeout
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	// the caller's client is copied, never modified
	hc := &http.Client{}
	if opts.HTTPClient != nil {
		c := *opts.HTTPClient
		hc = &c
	}
	hc.Timeout = timeout
	log := opts.Log
	if log == nil {
		log = logrus.StandardLogger()
	}
	return &Client{
		httpClient: hc,
		baseURL:    strings.TrimRight(opts.BaseURL, "/"),
		tokens:     opts.Tokens,
		log:        log,
	}
}

// Request sends a JSON request and returns the raw response body.
func (c *Client) Request(ctx context.Context, method, path string, body any) (json.RawMessage, error) {
	var reader io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return nil, fmt.Errorf("api: marshal request body: %w", err)
		}
		reader = bytes.NewReader(data)
	}
	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, reader)
	if err != nil {
		return nil, fmt.Errorf("api: create request: %w", err)
	}
	req.Header.Set("Accept", "application/json")
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	return c.do(ctx, req, true)
}

// do sends req. When intercept is set the session token is attached and a 401 response
// invalidates it; login runs without either.
func (c *Client) do(ctx context.Context, req *http.Request, intercept bool) (json.RawMessage, error) {
	route := routeLabel(req.URL.Path, c.baseURL)
	requestID := uuid.NewString()
	req.Header.Set("X-Request-ID", requestID)

	var token string
	if intercept && c.tokens != nil {
		if t, ok := c.tokens.Token(); ok {
			token = t
			req.Header.Set("Authorization", "Bearer "+t)
		}
	}

	entry := c.log.WithField("method", req.Method).WithField("route", route).WithField("request_id", requestID)
	start := time.Now()
	resp, err := c.httpClient.Do(req)
	if err != nil {
		metrics.RecordAPIRequest(req.Method, route, 0, time.Since(start))
		err = classify(ctx, err)
		entry.WithError(err).Warn("api request failed")
		return nil, err
	}
	defer resp.Body.Close()
	metrics.RecordAPIRequest(req.Method, route, resp.StatusCode, time.Since(start))

	data, err := io.ReadAll(io.LimitReader(resp.Body, maxBodyBytes))
	if err != nil {
		err = classify(ctx, err)
		entry.WithError(err).Warn("read api response")
		return nil, err
	}

	switch {
	case resp.StatusCode == http.StatusUnauthorized && intercept:
		// teardown happens here, before any caller code runs. It is keyed to the token
		// this request carried: a 401 without one, or for a replaced one, leaves the
		// current session alone.
		if c.tokens != nil && c.tokens.Invalidate(token) {
			entry.Warn("401 received, session torn down")
		}
		return nil, ErrUnauthorized
	case resp.StatusCode >= 400:
		serr := &StatusError{Code: resp.StatusCode, Detail: detail(data)}
		entry.WithField("status", resp.StatusCode).WithField("detail", serr.Detail).Warn("api request rejected")
		return nil, serr
	}
	entry.WithField("status", resp.StatusCode).WithField("elapsed", time.Since(start)).Debug("api request ok")
	return json.RawMessage(data), nil
}

// Do decodes a successful response into out. out may be nil.
func (c *Client) Do(ctx context.Context, method, path string, body, out any) error {
	data, err := c.Request(ctx, method, path, body)
	if err != nil {
		return err
	}
	if out == nil || len(bytes.TrimSpace(data)) == 0 {
		return nil
	}
	if err := json.Unmarshal(data, out); err != nil {
		return fmt.Errorf("api: decode response: %w", err)
	}
	return nil
}

func classify(ctx context.Context, err error) error {
	if ctxErr := ctx.Err(); errors.Is(ctxErr, context.Canceled) {
		return ctxErr
	}
	var nerr net.Error
	if errors.Is(err, context.DeadlineExceeded) || (errors.As(err, &nerr) && nerr.Timeout()) {
		return ErrTimeout
	}
	var uerr *url.Error
	if errors.As(err, &uerr) {
		return &NetworkError{Op: strings.ToLower(uerr.Op), Err: uerr.Err}
	}
	return &NetworkError{Op: "request", Err: err}
}

// detail extracts FastAPI-style {"detail": ...}; validation errors carry a list.
func detail(body []byte) string {
	if !gjson.ValidBytes(body) {
		return strings.TrimSpace(string(body))
	}
	d := gjson.GetBytes(body, "detail")
	switch {
	case !d.Exists():
		return ""
	case d.Type == gjson.String:
		return d.String()
	case d.IsArray():
		msgs := d.Get("#.msg").Array()
		parts := make([]string, 0, len(msgs))
		for _, m := range msgs {
			parts = append(parts, m.String())
		}
		if len(parts) > 0 {
			return strings.Join(parts, "; ")
		}
	}
	return d.Raw
}

// routeLabel collapses ticket ids so metrics stay low-cardinality.
func routeLabel(path, baseURL string) string {
	if u, err := url.Parse(baseURL); err == nil && u.Path != "" {
		path = strings.TrimPrefix(path, strings.TrimRight(u.Path, "/"))
	}
	const tickets = "/api/tickets/"
	if strings.HasPrefix(path, tickets) && len(path) > len(tickets) {
		return tickets + "{id}"
	}
	return path
}
