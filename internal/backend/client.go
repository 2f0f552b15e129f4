// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package backend

import (
	"bytes"
	"context"
	"crypto/tls"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"

	"golang.org/x/time/rate"
)

// Configuration constants for the backend API.
const (
	// DefaultTimeout is the default timeout for non-streaming API requests.
	DefaultTimeout = 60 * time.Second

	// MaxResponseSize is the maximum allowed response body size.
	// SECURITY: Response size limit prevents memory exhaustion attacks.
	MaxResponseSize = 10 * 1024 * 1024 // 10MB limit

	// defaultRequestsPerSecond caps outbound request rate per client.
	defaultRequestsPerSecond = 10
)

var (
	// PERFORMANCE: Connection pooling reduces TCP handshake overhead.
	// Shared HTTP client with connection pooling for all backend requests.
	sharedHTTPClient = &http.Client{
		Transport: &http.Transport{
			MaxIdleConns:        100,
			MaxIdleConnsPerHost: 10,
			IdleConnTimeout:     90 * time.Second,
			TLSHandshakeTimeout: 10 * time.Second,
			TLSClientConfig: &tls.Config{
				MinVersion: tls.VersionTLS12,
			},
		},
		Timeout: DefaultTimeout,
	}

	// sharedStreamingClient is used for streaming requests (no timeout,
	// lifetime controlled via context).
	sharedStreamingClient = &http.Client{
		Transport: &http.Transport{
			MaxIdleConns:        100,
			MaxIdleConnsPerHost: 10,
			IdleConnTimeout:     90 * time.Second,
			TLSHandshakeTimeout: 10 * time.Second,
			TLSClientConfig: &tls.Config{
				MinVersion: tls.VersionTLS12,
			},
		},
		// No timeout for streaming - controlled via context
	}
)

// =============================================================================
// ERRORS
// =============================================================================

var (
	// ErrNotConfigured indicates the backend base URL is not set.
	ErrNotConfigured = errors.New("backend base URL not configured")
)

// BackendError is an explicit error response from the backend.
type BackendError struct {
	Status  int    `json:"-"`
	Code    string `json:"code,omitempty"`
	Message string `json:"message"`
}

// Error implements the error interface.
func (e *BackendError) Error() string {
	if e.Code != "" {
		return fmt.Sprintf("backend error %d (%s): %s", e.Status, e.Code, e.Message)
	}
	return fmt.Sprintf("backend error %d: %s", e.Status, e.Message)
}

// IsIntentRejection reports whether err is a backend rejection of an edit or
// retry precondition (4xx on an intent call).
func IsIntentRejection(err error) bool {
	var be *BackendError
	return errors.As(err, &be) && be.Status >= 400 && be.Status < 500
}

// IsSafetyRejection reports whether err is a policy/safety rejection.
func IsSafetyRejection(err error) bool {
	var be *BackendError
	return errors.As(err, &be) && be.Code == "safety_rejection"
}

// =============================================================================
// CLIENT
// =============================================================================

// Client talks to the assistant backend.
type Client struct {
	baseURL string
	token   string
	limiter *rate.Limiter

	// Overridable for tests.
	httpClient      *http.Client
	streamingClient *http.Client
}

// NewClient creates a backend client for the given base URL. The token may
// be empty for unauthenticated deployments.
func NewClient(baseURL, token string) *Client {
	return &Client{
		baseURL:         baseURL,
		token:           token,
		limiter:         rate.NewLimiter(rate.Limit(defaultRequestsPerSecond), defaultRequestsPerSecond),
		httpClient:      sharedHTTPClient,
		streamingClient: sharedStreamingClient,
	}
}

// WithHTTPClients overrides the HTTP clients, for tests.
func (c *Client) WithHTTPClients(normal, streaming *http.Client) *Client {
	c.httpClient = normal
	c.streamingClient = streaming
	return c
}

// IsConfigured reports whether the client can make requests.
func (c *Client) IsConfigured() bool {
	return c.baseURL != ""
}

// setHeaders applies the common request headers.
func (c *Client) setHeaders(req *http.Request) {
	req.Header.Set("Content-Type", "application/json")
	if c.token != "" {
		req.Header.Set("Authorization", "Bearer "+c.token)
	}
}

// =============================================================================
// COMPLETION (NON-STREAMING)
// =============================================================================

// CreateCompletion dispatches one completion request and awaits the complete
// response.
func (c *Client) CreateCompletion(ctx context.Context, desc RequestDescriptor) (*CompletionResult, error) {
	var result CompletionResult
	if err := c.postJSON(ctx, "/v1/completions", desc.Payload, &result); err != nil {
		return nil, err
	}
	return &result, nil
}

// =============================================================================
// INTENTS
// =============================================================================

// CreateEditIntent validates an edit and returns the replayable request
// descriptor for the superseding completion.
func (c *Client) CreateEditIntent(ctx context.Context, messageID, newContent string) (RequestDescriptor, error) {
	body, _ := json.Marshal(struct {
		Content string `json:"content"`
	}{newContent})

	var desc RequestDescriptor
	err := c.postJSON(ctx, "/v1/messages/"+messageID+"/edit-intent", body, &desc)
	return desc, err
}

// RetryOverrides carries the optional model/effort parameters of a retry.
type RetryOverrides struct {
	Model  string `json:"model,omitempty"`
	Effort string `json:"effort,omitempty"`
}

// CreateRetryIntent validates a retry and returns the replayable request
// descriptor that regenerates only the assistant side.
func (c *Client) CreateRetryIntent(ctx context.Context, messageID string, overrides RetryOverrides) (RequestDescriptor, error) {
	body, _ := json.Marshal(overrides)

	var desc RequestDescriptor
	err := c.postJSON(ctx, "/v1/messages/"+messageID+"/retry-intent", body, &desc)
	return desc, err
}

// =============================================================================
// ATTEMPT SWITCHING
// =============================================================================

// SwitchActiveAttempt asks the backend to persist a new active attempt for
// the position containing messageID.
func (c *Client) SwitchActiveAttempt(ctx context.Context, messageID, direction string) (*SwitchResult, error) {
	body, _ := json.Marshal(struct {
		Direction string `json:"direction"`
	}{direction})

	var result SwitchResult
	if err := c.postJSON(ctx, "/v1/messages/"+messageID+"/active-attempt", body, &result); err != nil {
		return nil, err
	}
	return &result, nil
}

// =============================================================================
// DELETION
// =============================================================================

// DeleteMessage removes a message, optionally cascading to its superseded
// attempt thread.
func (c *Client) DeleteMessage(ctx context.Context, messageID string, cascadeThread bool) (*DeleteResult, error) {
	if !c.IsConfigured() {
		return nil, ErrNotConfigured
	}
	if err := c.limiter.Wait(ctx); err != nil {
		return nil, err
	}

	url := c.baseURL + "/v1/messages/" + messageID
	if cascadeThread {
		url += "?cascade_thread=true"
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodDelete, url, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	c.setHeaders(req)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()

	var result DeleteResult
	if err := c.decodeResponse(resp, &result); err != nil {
		return nil, err
	}
	return &result, nil
}

// =============================================================================
// HELPERS
// =============================================================================

// postJSON sends a POST with a JSON body and decodes a JSON response.
func (c *Client) postJSON(ctx context.Context, path string, body []byte, out interface{}) error {
	if !c.IsConfigured() {
		return ErrNotConfigured
	}
	if err := c.limiter.Wait(ctx); err != nil {
		return err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+path, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}
	c.setHeaders(req)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()

	return c.decodeResponse(resp, out)
}

// decodeResponse parses a JSON body, converting non-2xx statuses into typed
// backend errors.
func (c *Client) decodeResponse(resp *http.Response, out interface{}) error {
	body, err := io.ReadAll(io.LimitReader(resp.Body, MaxResponseSize))
	if err != nil {
		return fmt.Errorf("failed to read response: %w", err)
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return c.handleErrorResponse(resp.StatusCode, body)
	}
	if out == nil {
		return nil
	}
	if err := json.Unmarshal(body, out); err != nil {
		return fmt.Errorf("failed to parse response: %w", err)
	}
	return nil
}

// handleErrorResponse converts an error body into a BackendError. Bodies of
// the shape {"error": {"code": ..., "message": ...}} and bare
// {"code": ..., "message": ...} are both accepted.
func (c *Client) handleErrorResponse(statusCode int, body []byte) error {
	var wrapped struct {
		Error *BackendError `json:"error"`
	}
	if err := json.Unmarshal(body, &wrapped); err == nil && wrapped.Error != nil && wrapped.Error.Message != "" {
		wrapped.Error.Status = statusCode
		return wrapped.Error
	}

	var bare BackendError
	if err := json.Unmarshal(body, &bare); err == nil && bare.Message != "" {
		bare.Status = statusCode
		return &bare
	}

	return &BackendError{
		Status:  statusCode,
		Message: http.StatusText(statusCode),
	}
}
