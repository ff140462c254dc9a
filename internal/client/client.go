// Package client talks to the MCP REST server that fronts Blender and
// Unreal Engine. It marshals a command name and JSON parameters into an HTTP
// request and decodes the JSON reply.
package client

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/amarbel-llc/mcpbridge/internal/protocol"
)

const RequestIDHeader = "X-Request-ID"

// maxErrorBody bounds how much of a failed response is kept in StatusError.
const maxErrorBody = 512

var (
	ErrConnection = errors.New("connection failed")
	ErrStatus     = errors.New("non-OK status")
	ErrDecode     = errors.New("invalid JSON response")
)

// StatusError reports a response whose status code was not 200.
type StatusError struct {
	Code int
	Body string
}

func (e *StatusError) Error() string {
	if e.Body == "" {
		return fmt.Sprintf("server returned %d", e.Code)
	}
	return fmt.Sprintf("server returned %d: %s", e.Code, e.Body)
}

func (e *StatusError) Unwrap() error {
	return ErrStatus
}

// Response is a successfully decoded reply.
type Response struct {
	StatusCode int
	Body       map[string]any
	Raw        []byte
}

// Decode unmarshals the raw body into v.
func (r *Response) Decode(v any) error {
	if err := json.Unmarshal(r.Raw, v); err != nil {
		return fmt.Errorf("%w: %v", ErrDecode, err)
	}
	return nil
}

// Completion receives the outcome of an asynchronous request. body is nil
// unless ok is true.
type Completion func(ok bool, body map[string]any)

type Client struct {
	baseURL string
	httpCli *http.Client
	logger  *slog.Logger
}

type Option func(*Client)

func WithTimeout(d time.Duration) Option {
	return func(c *Client) {
		c.httpCli.Timeout = d
	}
}

func WithHTTPClient(h *http.Client) Option {
	return func(c *Client) {
		c.httpCli = h
	}
}

func WithLogger(l *slog.Logger) Option {
	return func(c *Client) {
		c.logger = l
	}
}

func New(baseURL string, opts ...Option) *Client {
	c := &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		httpCli: &http.Client{Timeout: 30 * time.Second},
		logger:  slog.Default(),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

func (c *Client) BaseURL() string {
	return c.baseURL
}

func (c *Client) Get(ctx context.Context, path string) (*Response, error) {
	return c.Do(ctx, http.MethodGet, path, nil)
}

func (c *Client) Post(ctx context.Context, path string, payload any) (*Response, error) {
	return c.Do(ctx, http.MethodPost, path, payload)
}

// Do performs one request. Only a 200 response whose body is a JSON object
// is a success.
func (c *Client) Do(ctx context.Context, method, path string, payload any) (*Response, error) {
	var body io.Reader
	if payload != nil {
		data, err := json.Marshal(payload)
		if err != nil {
			return nil, fmt.Errorf("marshaling request: %w", err)
		}
		body = bytes.NewReader(data)
	}

	url := c.baseURL + path
	req, err := http.NewRequestWithContext(ctx, method, url, body)
	if err != nil {
		return nil, fmt.Errorf("creating request: %w", err)
	}
	if payload != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	req.Header.Set("Accept", "application/json")

	requestID := uuid.NewString()
	req.Header.Set(RequestIDHeader, requestID)

	log := c.logger.With("request_id", requestID, "method", method, "url", url)
	log.Debug("sending request")

	resp, err := c.httpCli.Do(req)
	if err != nil {
		log.Warn("request failed", "error", err)
		return nil, fmt.Errorf("%w: %s %s: %v", ErrConnection, method, url, err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		log.Warn("reading response failed", "error", err)
		return nil, fmt.Errorf("%w: reading response: %v", ErrConnection, err)
	}

	if resp.StatusCode != http.StatusOK {
		log.Warn("unexpected status", "status", resp.StatusCode)
		return nil, &StatusError{Code: resp.StatusCode, Body: truncate(raw, maxErrorBody)}
	}

	var out map[string]any
	if err := json.Unmarshal(raw, &out); err != nil || out == nil {
		log.Warn("response is not a JSON object", "error", err)
		return nil, fmt.Errorf("%w: %s %s", ErrDecode, method, url)
	}

	log.Debug("request completed", "status", resp.StatusCode, "bytes", len(raw))

	return &Response{StatusCode: resp.StatusCode, Body: out, Raw: raw}, nil
}

// Send runs the request on its own goroutine and calls done exactly once.
func (c *Client) Send(ctx context.Context, method, path string, payload any, done Completion) {
	go func() {
		resp, err := c.Do(ctx, method, path, payload)
		if err != nil {
			done(false, nil)
			return
		}
		done(true, resp.Body)
	}()
}

// Status queries GET /status.
func (c *Client) Status(ctx context.Context) (*protocol.Status, error) {
	resp, err := c.Get(ctx, protocol.PathStatus)
	if err != nil {
		return nil, err
	}
	var status protocol.Status
	if err := resp.Decode(&status); err != nil {
		return nil, err
	}
	return &status, nil
}

// Command posts {command, params} to the target's command endpoint.
func (c *Client) Command(ctx context.Context, target protocol.Target, name string, params map[string]any) (*protocol.Response, error) {
	if !target.Valid() {
		return nil, fmt.Errorf("unknown target %q", target)
	}
	resp, err := c.Post(ctx, target.Path(), protocol.NewCommand(name, params))
	if err != nil {
		return nil, err
	}
	var out protocol.Response
	if err := resp.Decode(&out); err != nil {
		return nil, err
	}
	return &out, nil
}

func (c *Client) Generate(ctx context.Context, req protocol.GenerateRequest) (*protocol.GenerateResponse, error) {
	if req.Type == "" {
		req.Type = "text"
	}
	resp, err := c.Post(ctx, protocol.PathGenerate, req)
	if err != nil {
		return nil, err
	}
	var out protocol.GenerateResponse
	if err := resp.Decode(&out); err != nil {
		return nil, err
	}
	return &out, nil
}

func truncate(b []byte, n int) string {
	s := strings.TrimSpace(string(b))
	if len(s) > n {
		return s[:n] + "..."
	}
	return s
}
