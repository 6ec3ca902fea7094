// Package apiclient is the HTTP session client for the Blocpoint backend.
//
// Every request passes through an ordered list of request hooks (default headers, bearer
// token, correlation id, idempotency key). Failed responses pass through an ordered list of
// error handlers; the built-in handler recovers from an expired bearer token by refreshing
// it at most once per call and re-issuing the request.
package apiclient

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/iamdevroyal/blocpoint-client/internal/observability/metrics"
	"github.com/iamdevroyal/blocpoint-client/internal/observability/statsd"
	"github.com/iamdevroyal/blocpoint-client/internal/ports"
	jmespath "github.com/jmespath-community/go-jmespath"
	"golang.org/x/sync/singleflight"
)

// Defaults applied when Options leaves a field empty.
const (
	DefaultRefreshPath = "/auth/refresh"
	DefaultLoginRoute  = "/auth/login"
)

// maxResponseBytes caps how much of a response body is buffered.
const maxResponseBytes = 4 << 20

// TokenStore is the slice of the session context the client may touch: it reads the bearer
// token, replaces it after a refresh and removes it when the session cannot be recovered.
type TokenStore interface {
	Token(ctx context.Context) (string, error)
	ReplaceToken(ctx context.Context, token string) error
	ExpireToken(ctx context.Context) error
}

// Options groups dependencies for Client.
type Options struct {
	BaseURL     string // Required: API root, e.g. https://host/api/v1
	RefreshPath string
	LoginRoute  string
	UserAgent   string

	HTTPClient *http.Client
	Tokens     TokenStore      // Required
	Navigator  ports.Navigator // Optional: informed when the session expires
	Metrics    statsd.Sink     // Optional
	Logger     *slog.Logger    // Optional

	// RequestHooks run after the built-in hooks on every transmitted attempt.
	RequestHooks []RequestHook
	// ErrorHandlers run after the built-in 401 handler.
	ErrorHandlers []ErrorHandler
}

// Client sends JSON requests to the backend.
type Client struct {
	baseURL     *url.URL
	refreshPath string
	loginRoute  string

	http      *http.Client
	tokens    TokenStore
	navigator ports.Navigator
	metrics   statsd.Sink
	logger    *slog.Logger

	hooks    []RequestHook
	handlers []ErrorHandler

	refreshes singleflight.Group
}

// Request describes one logical API call.
type Request struct {
	Method string
	Path   string
	Query  url.Values
	Body   any
}

// Call tracks a logical request across its transmitted attempts.
type Call struct {
	Request Request
	Attempt Attempt
	// IdempotencyKey is generated once per mutating call and reused on its retry.
	IdempotencyKey string
	// CorrelationID is the id of the most recent transmission.
	CorrelationID string

	sentToken string
}

// Response is a buffered 2xx response.
type Response struct {
	StatusCode int
	Header     http.Header
	Body       []byte
}

// New constructs a Client.
func New(opts Options) (*Client, error) {
	if opts.Tokens == nil {
		return nil, errors.New("token store is required")
	}
	base, err := url.Parse(strings.TrimSpace(opts.BaseURL))
	if err != nil {
		return nil, fmt.Errorf("parse base url: %w", err)
	}
	if base.Scheme != "http" && base.Scheme != "https" {
		return nil, fmt.Errorf("invalid base url scheme: %q", base.Scheme)
	}
	if strings.TrimSpace(base.Host) == "" {
		return nil, errors.New("invalid base url: missing host")
	}

	httpClient := opts.HTTPClient
	if httpClient == nil {
		if httpClient, err = NewHTTPClient(DefaultTimeout); err != nil {
			return nil, err
		}
	}

	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}

	c := &Client{
		baseURL:     base,
		refreshPath: normalizePath(opts.RefreshPath, DefaultRefreshPath),
		loginRoute:  normalizePath(opts.LoginRoute, DefaultLoginRoute),
		http:        httpClient,
		tokens:      opts.Tokens,
		navigator:   opts.Navigator,
		metrics:     opts.Metrics,
		logger:      logger.With("component", "api_client"),
	}

	c.hooks = append([]RequestHook{
		defaultHeadersHook(opts.UserAgent),
		bearerHook(opts.Tokens),
		correlationHook,
		idempotencyHook,
	}, opts.RequestHooks...)
	c.handlers = append([]ErrorHandler{c.recoverUnauthorized}, opts.ErrorHandlers...)

	return c, nil
}

// Get issues a GET request.
func (c *Client) Get(ctx context.Context, path string, query url.Values) (*Response, error) {
	return c.Do(ctx, Request{Method: http.MethodGet, Path: path, Query: query})
}

// Post issues a POST request with a JSON body (nil for none).
func (c *Client) Post(ctx context.Context, path string, body any) (*Response, error) {
	return c.Do(ctx, Request{Method: http.MethodPost, Path: path, Body: body})
}

// Do sends req and runs the error pipeline on failure.
func (c *Client) Do(ctx context.Context, req Request) (*Response, error) {
	req.Method = strings.ToUpper(strings.TrimSpace(req.Method))
	if req.Method == "" {
		req.Method = http.MethodGet
	}

	call := &Call{Request: req, Attempt: FirstAttempt}
	if IsMutating(req.Method) {
		call.IdempotencyKey = newIdempotencyKey()
	}
	return c.dispatch(ctx, call)
}

func (c *Client) dispatch(ctx context.Context, call *Call) (*Response, error) {
	resp, err := c.execute(ctx, call)
	if err == nil {
		return resp, nil
	}
	for _, h := range c.handlers {
		resp, err = h(ctx, call, err)
		if err == nil {
			return resp, nil
		}
	}
	return nil, err
}

// execute transmits one attempt without running error handlers.
func (c *Client) execute(ctx context.Context, call *Call) (*Response, error) {
	ctx = WithAttempt(ctx, call.Attempt)
	start := time.Now()

	httpReq, err := c.newHTTPRequest(ctx, call)
	if err != nil {
		return nil, err
	}

	resp, status, err := c.send(httpReq, call)
	elapsed := time.Since(start)
	metrics.EmitRequest(c.metrics, metrics.RequestMetric{
		Method:   call.Request.Method,
		Path:     call.Request.Path,
		Status:   status,
		Attempt:  int(call.Attempt),
		Duration: elapsed,
		Err:      err,
	})

	c.logger.DebugContext(ctx, "api request",
		"method", call.Request.Method,
		"path", call.Request.Path,
		"status", status,
		"attempt", int(call.Attempt),
		"correlation_id", call.CorrelationID,
		"duration", elapsed,
	)
	return resp, err
}

func (c *Client) newHTTPRequest(ctx context.Context, call *Call) (*http.Request, error) {
	u := c.baseURL.JoinPath(call.Request.Path)
	if len(call.Request.Query) > 0 {
		u.RawQuery = call.Request.Query.Encode()
	}

	var body io.Reader = http.NoBody
	if call.Request.Body != nil {
		b, err := json.Marshal(call.Request.Body)
		if err != nil {
			return nil, fmt.Errorf("marshal request body: %w", err)
		}
		body = bytes.NewReader(b)
	}

	req, err := http.NewRequestWithContext(ctx, call.Request.Method, u.String(), body)
	if err != nil {
		return nil, fmt.Errorf("build request: %w", err)
	}
	for _, hook := range c.hooks {
		if err := hook(req, call); err != nil {
			return nil, err
		}
	}
	return req, nil
}

func (c *Client) send(req *http.Request, call *Call) (*Response, int, error) {
	resp, err := c.http.Do(req)
	if err != nil {
		return nil, 0, fmt.Errorf("%s %s: %w", call.Request.Method, call.Request.Path, err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseBytes))
	if err != nil {
		return nil, resp.StatusCode, fmt.Errorf("read response body: %w", err)
	}

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return nil, resp.StatusCode, newAPIError(call.Request.Method, call.Request.Path, resp.StatusCode, body)
	}
	return &Response{StatusCode: resp.StatusCode, Header: resp.Header, Body: body}, resp.StatusCode, nil
}

// Decode unmarshals the whole body into v.
func (r *Response) Decode(v any) error {
	if len(bytes.TrimSpace(r.Body)) == 0 {
		return errors.New("decode response: empty body")
	}
	if err := json.Unmarshal(r.Body, v); err != nil {
		return fmt.Errorf("decode response: %w", err)
	}
	return nil
}

// Extract evaluates a JMESPath expression against the body and stores the result in v.
// It reports false when the expression yields null or the body is empty.
func (r *Response) Extract(expr string, v any) (bool, error) {
	if len(bytes.TrimSpace(r.Body)) == 0 {
		return false, nil
	}
	var doc any
	if err := json.Unmarshal(r.Body, &doc); err != nil {
		return false, fmt.Errorf("decode response: %w", err)
	}
	res, err := jmespath.Search(expr, doc)
	if err != nil {
		return false, fmt.Errorf("evaluate %q: %w", expr, err)
	}
	if res == nil {
		return false, nil
	}
	b, err := json.Marshal(res)
	if err != nil {
		return false, fmt.Errorf("marshal %q result: %w", expr, err)
	}
	if err := json.Unmarshal(b, v); err != nil {
		return false, fmt.Errorf("decode %q result: %w", expr, err)
	}
	return true, nil
}

// Data returns the response's data envelope, or nil when absent.
func (r *Response) Data() (map[string]any, error) {
	var data map[string]any
	if _, err := r.Extract("data", &data); err != nil {
		return nil, err
	}
	return data, nil
}

func normalizePath(p, fallback string) string {
	p = strings.TrimSpace(p)
	if p == "" {
		return fallback
	}
	if !strings.HasPrefix(p, "/") {
		p = "/" + p
	}
	return strings.TrimRight(p, "/")
}
