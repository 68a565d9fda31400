// Package api is the outbound HTTP boundary to the room authority. It
// normalizes the server's error shapes into RequestError, which is the only
// contract the error classifier relies on.
package api

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/vicinity-chat/vicinity-go/internal/apperrors"
	"github.com/vicinity-chat/vicinity-go/internal/retry"
	"github.com/vicinity-chat/vicinity-go/internal/tokenstore"
)

// RequestError is the normalized failure of an outbound request.
type RequestError struct {
	Status  int
	Code    string
	Message string
}

func (e *RequestError) Error() string {
	if e.Code != "" {
		return fmt.Sprintf("api: %s (%s, status %d)", e.Message, e.Code, e.Status)
	}
	return fmt.Sprintf("api: %s (status %d)", e.Message, e.Status)
}

func (e *RequestError) HTTPStatus() int      { return e.Status }
func (e *RequestError) ErrorCode() string    { return e.Code }
func (e *RequestError) ErrorMessage() string { return e.Message }

var _ apperrors.HTTPError = (*RequestError)(nil)

// Client performs authenticated JSON requests against the authority.
type Client struct {
	baseURL string
	http    *http.Client
	tokens  tokenstore.Store
	retry   retry.Config
}

// NewClient creates a client for the API at baseURL. The bearer token is
// read from tokens on every request so rotation needs no client restart.
func NewClient(baseURL string, tokens tokenstore.Store) *Client {
	return &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		http:    &http.Client{Timeout: 15 * time.Second},
		tokens:  tokens,
		retry: retry.Config{
			MaxAttempts: 3,
			Backoff:     retry.Exponential,
			BaseDelay:   300 * time.Millisecond,
			MaxDelay:    5 * time.Second,
			RetryOn:     Retryable,
		},
	}
}

// Retryable reports whether a request failure is worth retrying: transport
// problems, timeouts, and 5xx responses. Everything else is terminal.
func Retryable(err error) bool {
	var reqErr *RequestError
	if errors.As(err, &reqErr) {
		return reqErr.Status >= 500
	}
	c := apperrors.Classify(err)
	return c.Category == apperrors.CategoryNetwork
}

// Do issues a request and decodes the JSON response into out when out is
// non-nil. Non-2xx responses return a *RequestError.
func (c *Client) Do(ctx context.Context, method, path string, body, out any) error {
	ctx, span := otel.Tracer("api-client").Start(ctx, "api.request",
		trace.WithAttributes(
			attribute.String("http.method", method),
			attribute.String("http.route", path),
		))
	defer span.End()

	var reqBody io.Reader
	if body != nil {
		raw, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("failed to marshal request body: %w", err)
		}
		reqBody = bytes.NewReader(raw)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, reqBody)
	if err != nil {
		return fmt.Errorf("failed to build request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	if token, err := c.tokens.Get(ctx, tokenstore.KeyAccessToken); err == nil && token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "request failed")
		return fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		span.RecordError(err)
		return fmt.Errorf("failed to read response: %w", err)
	}

	span.SetAttributes(attribute.Int("http.status_code", resp.StatusCode))

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		reqErr := ParseErrorBody(resp.StatusCode, raw)
		span.SetStatus(codes.Error, reqErr.Message)
		return reqErr
	}

	if out != nil && len(raw) > 0 {
		if err := json.Unmarshal(raw, out); err != nil {
			return fmt.Errorf("failed to decode response: %w", err)
		}
	}
	return nil
}

// Get is Do with retry; only idempotent reads go through the retry path.
func (c *Client) Get(ctx context.Context, path string, out any) error {
	return retry.Do(ctx, c.retry, func(ctx context.Context) error {
		return c.Do(ctx, http.MethodGet, path, nil, out)
	})
}

// errorBody matches every error shape the server emits: flat fields,
// or the same fields nested one level under "data" or "error".
type errorBody struct {
	Message string     `json:"message"`
	Code    string     `json:"code"`
	Status  int        `json:"status"`
	Data    *errorBody `json:"data"`
	Err     *errorBody `json:"error"`
}

// ParseErrorBody normalizes an error response. Fields found at the top
// level win; nesting under data/error is searched in that order.
func ParseErrorBody(status int, raw []byte) *RequestError {
	reqErr := &RequestError{Status: status, Message: http.StatusText(status)}

	var body errorBody
	if err := json.Unmarshal(raw, &body); err != nil {
		return reqErr
	}

	for _, candidate := range []*errorBody{&body, body.Data, body.Err} {
		if candidate == nil {
			continue
		}
		if reqErr.Code == "" && candidate.Code != "" {
			reqErr.Code = candidate.Code
		}
		if candidate.Message != "" && reqErr.Message == http.StatusText(status) {
			reqErr.Message = candidate.Message
		}
		if candidate.Status != 0 && reqErr.Status == 0 {
			reqErr.Status = candidate.Status
		}
	}
	return reqErr
}
