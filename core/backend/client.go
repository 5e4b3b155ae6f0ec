// Package backend talks to the managed companion backend over HTTP: text
// completions, confirmed actions, voice session credentials and one-shot
// speech synthesis.
package backend

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

	"github.com/cenkalti/backoff/v5"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

const (
	completionsPath   = "/v1/completions"
	actionsPath       = "/v1/actions"
	voiceSessionsPath = "/v1/voice/sessions"
	speechPath        = "/v1/speech"

	defaultRetryDelay = 250 * time.Millisecond
	maxErrorBodyBytes = 4 << 10
)

type Option func(*Client)

// WithHTTPClient replaces the instrumented default client.
func WithHTTPClient(httpClient *http.Client) Option {
	return func(c *Client) {
		c.httpClient = httpClient
	}
}

func WithAPIKey(apiKey string) Option {
	return func(c *Client) {
		c.apiKey = apiKey
	}
}

func WithRetryDelay(delay time.Duration) Option {
	return func(c *Client) {
		c.retryDelay = delay
	}
}

type Client struct {
	baseURL    string
	apiKey     string
	httpClient *http.Client
	retryDelay time.Duration
}

func NewClient(baseURL string, opts ...Option) (*Client, error) {
	baseURL = strings.TrimRight(strings.TrimSpace(baseURL), "/")
	if baseURL == "" {
		return nil, errors.New("backend base url is required")
	}

	client := &Client{
		baseURL: baseURL,
		httpClient: &http.Client{Transport: otelhttp.NewTransport(http.DefaultTransport,
			otelhttp.WithSpanNameFormatter(func(operationName string, request *http.Request) string {
				return operationName + " " + request.URL.Path
			}),
		)},
		retryDelay: defaultRetryDelay,
	}
	for _, opt := range opts {
		opt(client)
	}
	return client, nil
}

type request struct {
	op      string
	path    string
	body    any
	accept  string
	retries bool
}

// do sends one request and returns the raw response body. Transport
// failures are retried once when the request allows it; error statuses are
// returned as *APIError and never retried.
func (c *Client) do(ctx context.Context, span trace.Span, req request) ([]byte, error) {
	payload, err := json.Marshal(req.body)
	if err != nil {
		return nil, fmt.Errorf("error marshalling request: %w", err)
	}

	url := c.baseURL + req.path
	span.SetAttributes(attribute.String("request.url", redactURL(url)))

	attempts := 0
	operation := func() ([]byte, error) {
		attempts++
		httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(payload))
		if err != nil {
			return nil, backoff.Permanent(fmt.Errorf("error creating HTTP request: %w", err))
		}
		httpReq.Header.Set("Content-Type", "application/json")
		if req.accept != "" {
			httpReq.Header.Set("Accept", req.accept)
		}
		if c.apiKey != "" {
			httpReq.Header.Set("Authorization", "Bearer "+c.apiKey)
		}

		resp, err := c.httpClient.Do(httpReq)
		if err != nil {
			err = &TransportError{Op: req.op, URL: url, Err: err}
			if ctx.Err() != nil || !req.retries {
				return nil, backoff.Permanent(err)
			}
			logger.Warn("backend request failed, retrying", "op", req.op, "error", err)
			return nil, err
		}
		defer resp.Body.Close()

		span.SetAttributes(attribute.Int("response.status_code", resp.StatusCode))
		if resp.StatusCode < 200 || resp.StatusCode >= 300 {
			return nil, backoff.Permanent(readAPIError(resp))
		}

		body, err := io.ReadAll(resp.Body)
		if err != nil {
			return nil, backoff.Permanent(&TransportError{Op: req.op, URL: url, Err: err})
		}
		return body, nil
	}

	body, err := backoff.Retry(ctx, operation,
		backoff.WithBackOff(backoff.NewConstantBackOff(c.retryDelay)),
		backoff.WithMaxTries(2),
	)
	span.SetAttributes(attribute.Int("request.attempts", attempts))
	return body, err
}

func readAPIError(resp *http.Response) error {
	body, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBodyBytes))
	apiErr := &APIError{StatusCode: resp.StatusCode}

	var parsed struct {
		Error   string `json:"error"`
		Message string `json:"message"`
	}
	if json.Unmarshal(body, &parsed) == nil {
		apiErr.Message = parsed.Message
		if apiErr.Message == "" {
			apiErr.Message = parsed.Error
		}
	}
	if apiErr.Message == "" {
		apiErr.Message = strings.TrimSpace(string(body))
	}
	return apiErr
}

func (c *Client) postJSON(ctx context.Context, span trace.Span, req request, out any) error {
	body, err := c.do(ctx, span, req)
	if err != nil {
		return err
	}
	if err := json.Unmarshal(body, out); err != nil {
		return fmt.Errorf("error unmarshalling %s response: %w", req.op, err)
	}
	return nil
}

func recordError(span trace.Span, err error) error {
	span.RecordError(err)
	span.SetStatus(codes.Error, err.Error())
	return err
}
