// Package httprequest provides an action that calls an external HTTP endpoint.
package httprequest

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

	"github.com/dukex/matterflow/pkg/models"
	"github.com/dukex/matterflow/pkg/protocol"
	"github.com/spf13/cast"
)

const (
	Kind models.ActionKind = "http_request"

	defaultTimeoutSeconds = 30
)

var (
	// ErrHTTPRequestHostInvalid is returned when neither url nor host is configured.
	ErrHTTPRequestHostInvalid = errors.New("invalid HTTP request host")
	// ErrHTTPServerError is returned when the server keeps answering with 5xx.
	ErrHTTPServerError = errors.New("server error during HTTP request")
)

// Request is the parsed form of the step params.
type Request struct {
	Method   string
	Protocol string
	Host     string
	Path     string
	URL      string
	Headers  map[string]string
	Body     []byte
	Timeout  time.Duration
	Retry    RetryConfig
}

// RetryConfig defines retry behavior for HTTP requests. Delay is in milliseconds.
type RetryConfig struct {
	Attempts int
	Delay    int
}

// ParseRequest builds a Request from resolved step params.
func ParseRequest(params map[string]any) (*Request, error) {
	url, _ := params["url"].(string)
	host, _ := params["host"].(string)

	if url == "" && host == "" {
		return nil, fmt.Errorf("missing or invalid 'url' or 'host' in params: %w", ErrHTTPRequestHostInvalid)
	}

	method, _ := params["method"].(string)
	if method == "" {
		method = http.MethodGet
	}

	path, _ := params["path"].(string)
	if path == "" {
		path = "/"
	}

	scheme, _ := params["protocol"].(string)
	if scheme == "" {
		scheme = "http"
	}

	body, err := encodeBody(params["body"])
	if err != nil {
		return nil, err
	}

	headers := make(map[string]string)

	if headersMap, ok := params["headers"].(map[string]any); ok {
		for k, v := range headersMap {
			headers[k] = cast.ToString(v)
		}
	}

	timeout := defaultTimeoutSeconds * time.Second
	if seconds, err := cast.ToIntE(params["timeout"]); err == nil && seconds > 0 {
		timeout = time.Duration(seconds) * time.Second
	}

	return &Request{
		Method:   strings.ToUpper(method),
		Protocol: scheme,
		Host:     host,
		Path:     path,
		URL:      url,
		Headers:  headers,
		Body:     body,
		Timeout:  timeout,
		Retry:    parseRetryConfig(params["retry"]),
	}, nil
}

func encodeBody(body any) ([]byte, error) {
	switch value := body.(type) {
	case nil:
		return nil, nil
	case string:
		return []byte(value), nil
	default:
		data, err := json.Marshal(value)
		if err != nil {
			return nil, fmt.Errorf("failed to marshal body: %w", err)
		}

		return data, nil
	}
}

func parseRetryConfig(retryConfig any) RetryConfig {
	retry := RetryConfig{Attempts: 1, Delay: 0}

	retryMap, ok := retryConfig.(map[string]any)
	if !ok {
		return retry
	}

	if attempts, err := cast.ToIntE(retryMap["attempts"]); err == nil && attempts > 0 {
		retry.Attempts = attempts
	}

	if delay, err := cast.ToIntE(retryMap["delay"]); err == nil && delay > 0 {
		retry.Delay = delay
	}

	return retry
}

// Target is the absolute URL the request is sent to.
func (r *Request) Target() string {
	if r.URL != "" {
		return r.URL
	}

	return fmt.Sprintf("%s://%s%s", r.Protocol, r.Host, r.Path)
}

// Action performs an HTTP request with optional headers, body and retries.
type Action struct {
	logger    *slog.Logger
	transport http.RoundTripper
}

func NewAction(logger *slog.Logger) *Action {
	return &Action{logger: logger.With("module", "http_request_action")}
}

// WithTransport replaces the HTTP transport, mostly for tests and tracing.
func (a *Action) WithTransport(transport http.RoundTripper) *Action {
	a.transport = transport

	return a
}

func (*Action) Kind() models.ActionKind {
	return Kind
}

func (*Action) Name() string {
	return "HTTP Request"
}

func (*Action) Description() string {
	return "Performs an HTTP request to a specified URL with optional headers and body."
}

func (*Action) Schema() map[string]any {
	return map[string]any{
		"type": "object",
		"properties": map[string]any{
			"url": map[string]any{
				"type":        "string",
				"description": "Absolute URL. Takes precedence over protocol, host and path.",
				"examples": []string{
					"https://billing.example.com/invoices/{{ .trigger.invoice.id }}/remind",
				},
			},
			"protocol": map[string]any{"type": "string", "default": "http"},
			"host":     map[string]any{"type": "string"},
			"path":     map[string]any{"type": "string", "default": "/"},
			"method": map[string]any{
				"type":    "string",
				"default": "GET",
				"enum":    []string{"GET", "POST", "PUT", "DELETE", "PATCH", "HEAD", "OPTIONS"},
			},
			"headers": map[string]any{
				"type":                 "object",
				"additionalProperties": map[string]any{"type": "string"},
			},
			"body": map[string]any{
				"description": "Request body. Objects are sent as JSON.",
			},
			"timeout": map[string]any{
				"type":        "integer",
				"description": "Request timeout in seconds",
				"default":     defaultTimeoutSeconds,
			},
			"retry": map[string]any{
				"type": "object",
				"properties": map[string]any{
					"attempts": map[string]any{"type": "integer", "minimum": 1, "maximum": 5},     //nolint:mnd // schema bound
					"delay":    map[string]any{"type": "integer", "minimum": 0, "maximum": 30000}, //nolint:mnd // schema bound
				},
			},
		},
	}
}

// Invoke sends the request, retrying on transport errors and 5xx answers.
// A final status of 400 or above is reported as a failed outcome.
func (a *Action) Invoke(ctx context.Context, params map[string]any, actx *protocol.ActionContext) (protocol.Outcome, error) {
	request, err := ParseRequest(params)
	if err != nil {
		return protocol.Outcome{}, err
	}

	logger := a.logger.With("execution_id", actx.ExecutionID, "url", request.Target())
	logger.InfoContext(ctx, "Executing HTTPRequestAction")

	client := &http.Client{
		Transport: a.transport,
		Timeout:   request.Timeout,
	}

	var (
		lastErr error
		resp    *http.Response
	)

	for attempt := 1; attempt <= request.Retry.Attempts; attempt++ {
		if attempt > 1 {
			logger.InfoContext(ctx, "HTTPRequestAction retry", "attempt", attempt, "attempts", request.Retry.Attempts)

			select {
			case <-ctx.Done():
				return protocol.Outcome{}, ctx.Err()
			case <-time.After(time.Duration(request.Retry.Delay) * time.Millisecond):
			}
		}

		req, err := http.NewRequestWithContext(ctx, request.Method, request.Target(), bytes.NewReader(request.Body))
		if err != nil {
			return protocol.Outcome{}, fmt.Errorf("failed to create http request: %w", err)
		}

		for key, value := range request.Headers {
			req.Header.Set(key, value)
		}

		resp, err = client.Do(req)
		if err != nil {
			lastErr = fmt.Errorf("http request failed: %w", err)
			resp = nil

			continue
		}

		if resp.StatusCode >= http.StatusInternalServerError && attempt < request.Retry.Attempts {
			err = resp.Body.Close()
			if err != nil {
				logger.ErrorContext(ctx, "failed to close response body", "error", err)
			}

			lastErr = fmt.Errorf("server error (status %d), retrying: %w", resp.StatusCode, ErrHTTPServerError)
			resp = nil

			continue
		}

		break
	}

	if resp == nil {
		return protocol.Outcome{}, fmt.Errorf("all retry attempts failed, last error: %w", lastErr)
	}

	return a.processResponse(ctx, resp, request.Target(), logger)
}

func (a *Action) processResponse(ctx context.Context, resp *http.Response, target string, logger *slog.Logger) (protocol.Outcome, error) {
	defer func() {
		_ = resp.Body.Close()
	}()

	bodyBytes, err := io.ReadAll(resp.Body)
	if err != nil {
		return protocol.Outcome{}, fmt.Errorf("failed to read response body: %w", err)
	}

	var body any

	err = json.Unmarshal(bodyBytes, &body)
	if err != nil {
		body = string(bodyBytes)

		logger.DebugContext(ctx, "Response is not JSON, returning as string", "error", err)
	}

	logger.InfoContext(ctx, "HTTPRequestAction completed", "status_code", resp.StatusCode, "body_length", len(bodyBytes))

	if resp.StatusCode >= http.StatusBadRequest {
		return protocol.Failed(fmt.Sprintf("unexpected status %d from %s", resp.StatusCode, target)), nil
	}

	headers := make(map[string]any, len(resp.Header))
	for key := range resp.Header {
		headers[key] = resp.Header.Get(key)
	}

	return protocol.Succeeded(map[string]any{
		"status_code": resp.StatusCode,
		"body":        body,
		"headers":     headers,
	}), nil
}
