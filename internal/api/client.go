package api

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"time"

	"github.com/google/uuid"
	"github.com/sony/gobreaker/v2"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
)

const maxErrorBody = 1 << 20 // 1MB

// TokenSource supplies the bearer token for outbound requests.
type TokenSource interface {
	Token() string
}

type TokenFunc func() string

func (f TokenFunc) Token() string { return f() }

var errServerStatus = errors.New("server error status")

var tracer = otel.Tracer("github.com/fjod/storefront/internal/api")

// Client is the single adapter every remote call goes through.
type Client struct {
	baseURL      string
	http         *http.Client
	tokens       TokenSource
	unauthorized UnauthorizedHandler
	timeout      time.Duration
	breaker      *gobreaker.CircuitBreaker[*http.Response]
	log          *slog.Logger
}

type Option func(*Client)

func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) { c.http = hc }
}

func WithTokenSource(ts TokenSource) Option {
	return func(c *Client) { c.tokens = ts }
}

func WithUnauthorizedHandler(h UnauthorizedHandler) Option {
	return func(c *Client) { c.unauthorized = h }
}

func WithTimeout(d time.Duration) Option {
	return func(c *Client) { c.timeout = d }
}

func WithLogger(l *slog.Logger) Option {
	return func(c *Client) { c.log = l }
}

// WithBreaker trips the circuit after maxFailures consecutive network or 5xx failures.
func WithBreaker(maxFailures uint32, openFor time.Duration) Option {
	return func(c *Client) { c.breaker = newBreaker(maxFailures, openFor, c) }
}

func NewClient(baseURL string, opts ...Option) *Client {
	c := &Client{
		baseURL: baseURL,
		http:    &http.Client{Transport: otelhttp.NewTransport(http.DefaultTransport)},
		timeout: 15 * time.Second,
		log:     slog.Default(),
	}
	for _, opt := range opts {
		opt(c)
	}
	if c.breaker == nil {
		c.breaker = newBreaker(5, 30*time.Second, c)
	}
	return c
}

func newBreaker(maxFailures uint32, openFor time.Duration, c *Client) *gobreaker.CircuitBreaker[*http.Response] {
	return gobreaker.NewCircuitBreaker[*http.Response](gobreaker.Settings{
		Name:        "storefront-api",
		MaxRequests: 1,
		Timeout:     openFor,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= maxFailures
		},
		IsSuccessful: func(err error) bool {
			return err == nil || errors.Is(err, context.Canceled)
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			c.log.Warn("circuit breaker state changed", "breaker", name, "from", from.String(), "to", to.String())
		},
	})
}

// BaseURL returns the backend root the client talks to.
func (c *Client) BaseURL() string { return c.baseURL }

type call struct {
	method  string
	path    string
	body    any
	out     any
	headers map[string]string
	// public calls carry no bearer token and bypass the unauthorized handler.
	public bool
}

func (c *Client) send(ctx context.Context, rc call) (err error) {
	ctx, span := tracer.Start(ctx, rc.method+" "+rc.path)
	defer func() {
		if err != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, err.Error())
		}
		span.End()
	}()

	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	var payload []byte
	if rc.body != nil {
		var err error
		if payload, err = json.Marshal(rc.body); err != nil {
			return fmt.Errorf("marshal %s %s body: %w", rc.method, rc.path, err)
		}
	}

	req, err := http.NewRequestWithContext(ctx, rc.method, c.baseURL+rc.path, bytes.NewReader(payload))
	if err != nil {
		return fmt.Errorf("build %s %s: %w", rc.method, rc.path, err)
	}
	req.Header.Set("Accept", "application/json")
	if rc.body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	req.Header.Set("X-Request-ID", uuid.NewString())
	if !rc.public && c.tokens != nil {
		if token := c.tokens.Token(); token != "" {
			req.Header.Set("Authorization", "Bearer "+token)
		}
	}
	for k, v := range rc.headers {
		req.Header.Set(k, v)
	}

	resp, err := c.breaker.Execute(func() (*http.Response, error) {
		resp, err := c.http.Do(req)
		if err != nil {
			return nil, err
		}
		if resp.StatusCode >= http.StatusInternalServerError {
			return resp, errServerStatus
		}
		return resp, nil
	})
	if err != nil && !errors.Is(err, errServerStatus) {
		c.log.WarnContext(ctx, "request failed", "method", rc.method, "path", rc.path, "error", err)
		return &Error{Kind: KindNetwork, Err: err}
	}
	defer resp.Body.Close()
	span.SetAttributes(attribute.Int("http.response.status_code", resp.StatusCode))

	if resp.StatusCode >= http.StatusBadRequest {
		apiErr := statusError(resp.StatusCode, readMessage(resp.Body))
		if apiErr.Kind == KindAuth && !rc.public && c.unauthorized != nil {
			c.unauthorized.Unauthorized(ctx)
		}
		return apiErr
	}

	if rc.out == nil {
		_, _ = io.Copy(io.Discard, resp.Body)
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(rc.out); err != nil && !errors.Is(err, io.EOF) {
		return &Error{Kind: KindUnknown, Status: resp.StatusCode, Err: fmt.Errorf("decode %s %s: %w", rc.method, rc.path, err)}
	}
	return nil
}

// readMessage pulls a human readable message out of an error body.
func readMessage(body io.Reader) string {
	raw, err := io.ReadAll(io.LimitReader(body, maxErrorBody))
	if err != nil || len(raw) == 0 {
		return ""
	}
	var parsed struct {
		Message string `json:"message"`
		Error   string `json:"error"`
	}
	if json.Unmarshal(raw, &parsed) == nil {
		if parsed.Message != "" {
			return parsed.Message
		}
		return parsed.Error
	}
	return ""
}
