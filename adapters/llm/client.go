// Package llm is the external classifier client. It talks to an
// Ollama-compatible generate endpoint and turns the model's JSON reply
// into a failure classification. Server errors and transport failures are
// transient (the refiner retries them); client errors are permanent.
package llm

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"verdict/internal/classify"
)

// Client calls the classifier model over HTTP.
type Client struct {
	baseURL    string
	model      string
	httpClient *http.Client
	logger     *slog.Logger
}

// Option configures the Client during construction.
type Option func(*clientConfig) error

type clientConfig struct {
	httpClient *http.Client
	logger     *slog.Logger
	timeout    time.Duration
}

// New creates a classifier client for the given endpoint and model.
func New(baseURL, model string, opts ...Option) (*Client, error) {
	if baseURL == "" {
		return nil, fmt.Errorf("llm: baseURL is required")
	}
	if model == "" {
		return nil, fmt.Errorf("llm: model is required")
	}
	baseURL = strings.TrimSuffix(baseURL, "/")

	cfg := &clientConfig{}
	for _, opt := range opts {
		if err := opt(cfg); err != nil {
			return nil, err
		}
	}

	httpClient := &http.Client{}
	if cfg.httpClient != nil {
		// Copy so the timeout never mutates the caller's client.
		clone := *cfg.httpClient
		httpClient = &clone
	}
	if cfg.timeout > 0 {
		httpClient.Timeout = cfg.timeout
	}

	logger := cfg.logger
	if logger == nil {
		logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}

	return &Client{
		baseURL:    baseURL,
		model:      model,
		httpClient: httpClient,
		logger:     logger,
	}, nil
}

// WithHTTPClient overrides the default HTTP client.
func WithHTTPClient(c *http.Client) Option {
	return func(cfg *clientConfig) error {
		cfg.httpClient = c
		return nil
	}
}

// WithLogger configures structured logging.
func WithLogger(l *slog.Logger) Option {
	return func(cfg *clientConfig) error {
		cfg.logger = l
		return nil
	}
}

// WithTimeout sets a timeout on the HTTP client.
func WithTimeout(d time.Duration) Option {
	return func(cfg *clientConfig) error {
		cfg.timeout = d
		return nil
	}
}

// APIError is a non-2xx reply from the classifier endpoint.
type APIError struct {
	Operation  string
	StatusCode int
	Message    string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("%s: status %d: %s", e.Operation, e.StatusCode, e.Message)
}

// Transient reports whether the call is worth retrying: server-side
// failures are, client-side rejections are not.
func (e *APIError) Transient() bool { return e.StatusCode >= 500 }

// transportError wraps network-level failures; always transient.
type transportError struct{ err error }

func (e *transportError) Error() string   { return e.err.Error() }
func (e *transportError) Unwrap() error   { return e.err }
func (e *transportError) Transient() bool { return true }

type generateRQ struct {
	Model  string `json:"model"`
	Prompt string `json:"prompt"`
	Stream bool   `json:"stream"`
}

type generateRS struct {
	Response string `json:"response"`
}

// Classify sends one failure to the model and parses its verdict.
func (c *Client) Classify(ctx context.Context, logText, stackTrace string) (classify.Classification, error) {
	rq := generateRQ{Model: c.model, Prompt: buildPrompt(logText, stackTrace)}
	body, err := json.Marshal(rq)
	if err != nil {
		return classify.Classification{}, fmt.Errorf("classify: encode request: %w", err)
	}

	var rs generateRS
	if err := c.doJSON(ctx, "classify failure", bytes.NewReader(body), &rs); err != nil {
		return classify.Classification{}, err
	}
	return parseClassification(rs.Response), nil
}

// doJSON executes the generate request and decodes the JSON response.
func (c *Client) doJSON(ctx context.Context, operation string, body io.Reader, dst any) error {
	url := c.baseURL + "/api/generate"
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, body)
	if err != nil {
		return fmt.Errorf("%s: create request: %w", operation, err)
	}
	req.Header.Set("Content-Type", "application/json")

	c.logger.DebugContext(ctx, "classifier request", "operation", operation, "url", url, "model", c.model)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return &transportError{err: fmt.Errorf("%s: do request: %w", operation, err)}
	}
	defer resp.Body.Close()

	c.logger.DebugContext(ctx, "classifier response", "operation", operation, "status", resp.StatusCode)

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		respBody, _ := io.ReadAll(resp.Body)
		return &APIError{
			Operation:  operation,
			StatusCode: resp.StatusCode,
			Message:    strings.TrimSpace(string(respBody)),
		}
	}
	if err := json.NewDecoder(resp.Body).Decode(dst); err != nil {
		return fmt.Errorf("%s: decode response: %w", operation, err)
	}
	return nil
}
