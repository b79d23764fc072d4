/*
Package gateway is the client of the remote booking API.

Every request carries the API key header and, when a token is given, a bearer
Authorization header. Responses come in several envelopes ({data: T}, {venues: T} or T
itself) and are unwrapped defensively. Outbound calls are paced with a token bucket and
recorded in metrics.
*/
package gateway

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"reflect"
	"strings"
	"time"

	"github.com/rs/zerolog"
	"golang.org/x/time/rate"

	"holidaze/internal/configs"
	"holidaze/internal/pkg/errs"
	"holidaze/internal/pkg/logx"
	"holidaze/internal/pkg/metrics"
)

// APIKeyHeader carries the application's API key.
const APIKeyHeader = "X-Noroff-API-Key"

const maxBodyBytes = 8 << 20

var (
	// ErrRemoteUnavailable matches every failed call: transport errors and non-2xx answers alike.
	ErrRemoteUnavailable = errs.Define(errs.ErrRemoteUnavailable, "gateway: booking API unavailable")

	// ErrMalformedBody is returned when a response body cannot be decoded in any known envelope.
	ErrMalformedBody = errs.Define(errs.ErrMalformedRemoteBody, "gateway: malformed response body")
)

// APIError is a non-2xx answer from the booking API.
type APIError struct {
	Operation string
	Status    int
	Message   string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("gateway: %s: HTTP %d: %s", e.Operation, e.Status, e.Message)
}

// Is makes every APIError match ErrRemoteUnavailable.
func (e *APIError) Is(target error) bool {
	return target == ErrRemoteUnavailable
}

// ErrorCode maps the error onto the application error codes.
func (e *APIError) ErrorCode() int {
	return errs.ErrRemoteUnavailable
}

// ErrorDetail is the message the booking API gave.
func (e *APIError) ErrorDetail() string {
	return e.Message
}

// Option configures a Client.
type Option func(*Client)

// WithHTTPClient replaces the HTTP client.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) { c.http = hc }
}

// WithMetrics records every call.
func WithMetrics(m *metrics.Metrics) Option {
	return func(c *Client) { c.metrics = m }
}

// Client talks to the booking API.
type Client struct {
	baseURL string
	prefix  string
	apiKey  string

	http    *http.Client
	limiter *rate.Limiter
	metrics *metrics.Metrics
	log     zerolog.Logger
}

// New creates a client for cfg.
func New(cfg configs.APIConfig, opts ...Option) *Client {
	limit := rate.Inf
	if cfg.RatePerSecond > 0 {
		limit = rate.Limit(cfg.RatePerSecond)
	}
	burst := cfg.Burst
	if burst < 1 {
		burst = 1
	}

	c := &Client{
		baseURL: strings.TrimRight(cfg.BaseURL, "/"),
		prefix:  strings.TrimRight(cfg.ResourcePrefix, "/"),
		apiKey:  cfg.Key,
		http:    &http.Client{Timeout: cfg.Timeout},
		limiter: rate.NewLimiter(limit, burst),
		log:     logx.Component("gateway"),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// call describes one request.
type call struct {
	op       string
	method   string
	path     string
	query    url.Values
	token    string
	body     any
	prefixed bool
}

func (c *Client) do(ctx context.Context, cl call, out any) error {
	if err := c.limiter.Wait(ctx); err != nil {
		return fmt.Errorf("%w: %s: %v", ErrRemoteUnavailable, cl.op, err)
	}

	req, err := c.newRequest(ctx, cl)
	if err != nil {
		return err
	}

	start := time.Now()
	resp, err := c.http.Do(req)
	if err != nil {
		c.metrics.ObserveRemote(cl.op, 0, time.Since(start))
		return fmt.Errorf("%w: %s: %v", ErrRemoteUnavailable, cl.op, err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxBodyBytes))
	elapsed := time.Since(start)
	c.metrics.ObserveRemote(cl.op, resp.StatusCode, elapsed)

	c.log.Debug().
		Str("operation", cl.op).
		Str("method", cl.method).
		Int("status", resp.StatusCode).
		Dur("elapsed", elapsed).
		Msg("Booking API call")

	if err != nil {
		return fmt.Errorf("%w: %s: reading body: %v", ErrRemoteUnavailable, cl.op, err)
	}

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return &APIError{Operation: cl.op, Status: resp.StatusCode, Message: errorMessage(body, resp.StatusCode)}
	}

	if out == nil || len(bytes.TrimSpace(body)) == 0 {
		return nil
	}
	if err := unwrap(body, out); err != nil {
		return fmt.Errorf("%s: %w", cl.op, err)
	}
	return nil
}

func (c *Client) newRequest(ctx context.Context, cl call) (*http.Request, error) {
	target := c.baseURL
	if cl.prefixed {
		target += c.prefix
	}
	target += cl.path
	if len(cl.query) > 0 {
		target += "?" + cl.query.Encode()
	}

	var body io.Reader
	if cl.body != nil {
		payload, err := json.Marshal(cl.body)
		if err != nil {
			return nil, fmt.Errorf("gateway: %s: encoding body: %w", cl.op, err)
		}
		body = bytes.NewReader(payload)
	}

	req, err := http.NewRequestWithContext(ctx, cl.method, target, body)
	if err != nil {
		return nil, fmt.Errorf("gateway: %s: building request: %w", cl.op, err)
	}

	req.Header.Set("Accept", "application/json")
	if cl.body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if c.apiKey != "" {
		req.Header.Set(APIKeyHeader, c.apiKey)
	}
	if cl.token != "" {
		req.Header.Set("Authorization", "Bearer "+cl.token)
	}
	return req, nil
}

// unwrap decodes body into out from {data: T}, then {venues: T}, then T itself. A present
// wrapper that does not decode as T makes the body malformed. out is only written on success.
func unwrap(body []byte, out any) error {
	var envelope map[string]json.RawMessage
	if json.Unmarshal(body, &envelope) == nil {
		for _, key := range []string{"data", "venues"} {
			raw, ok := envelope[key]
			if !ok || bytes.Equal(bytes.TrimSpace(raw), []byte("null")) {
				continue
			}
			if err := decodeInto(raw, out); err != nil {
				return fmt.Errorf("%w: %s: %v", ErrMalformedBody, key, err)
			}
			return nil
		}
	}

	if err := decodeInto(body, out); err != nil {
		return fmt.Errorf("%w: %v", ErrMalformedBody, err)
	}
	return nil
}

// decodeInto unmarshals raw into a fresh value of out's type and stores it only on success.
func decodeInto(raw []byte, out any) error {
	target := reflect.ValueOf(out)
	if target.Kind() != reflect.Pointer || target.IsNil() {
		return fmt.Errorf("decode target %T is not a non-nil pointer", out)
	}

	fresh := reflect.New(target.Elem().Type())
	if err := json.Unmarshal(raw, fresh.Interface()); err != nil {
		return err
	}
	target.Elem().Set(fresh.Elem())
	return nil
}

// errorMessage reads errors[0].message, then message, then falls back to the status text.
func errorMessage(body []byte, status int) string {
	var payload struct {
		Errors []struct {
			Message string `json:"message"`
		} `json:"errors"`
		Message string `json:"message"`
	}

	if json.Unmarshal(body, &payload) == nil {
		if len(payload.Errors) > 0 && payload.Errors[0].Message != "" {
			return payload.Errors[0].Message
		}
		if payload.Message != "" {
			return payload.Message
		}
	}

	if text := http.StatusText(status); text != "" {
		return text
	}
	return fmt.Sprintf("HTTP %d", status)
}
