// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package api

import (
	"bytes"
	"context"
	"crypto/tls"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"github.com/driftapp/driftchat/internal/model"
)

// Configuration constants for the conversation API.
const (
	// DefaultTimeout is the default timeout for REST requests.
	DefaultTimeout = 30 * time.Second

	// DefaultMaxRetries is the retry budget for transient REST errors.
	DefaultMaxRetries = 3

	// retryBaseDelay is the base delay for exponential backoff.
	retryBaseDelay = 500 * time.Millisecond

	// retryMaxDelay is the maximum delay for exponential backoff.
	retryMaxDelay = 10 * time.Second

	// MaxResponseSize caps REST response bodies to keep a misbehaving
	// server from exhausting memory.
	MaxResponseSize = 10 * 1024 * 1024 // 10MB
)

// defaultHTTPClient is the fallback when the caller does not supply an
// authorized client. TLS 1.2+ with connection pooling.
var defaultHTTPClient = &http.Client{
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

// =============================================================================
// ERROR TAXONOMY
// =============================================================================

// Sentinel errors for common API failure classes.
var (
	// ErrAuthFailed indicates the authorized client's credentials were
	// rejected (401/403).
	ErrAuthFailed = errors.New("authentication failed")

	// ErrConversationNotFound indicates the conversation id is unknown to
	// the server.
	ErrConversationNotFound = errors.New("conversation not found")

	// ErrRateLimited indicates too many requests were made.
	ErrRateLimited = errors.New("rate limited")
)

// APIError is a network-level failure: a non-2xx status or a non-zero
// envelope code from the conversation API.
type APIError struct {
	Status  int    // HTTP status, 0 when the envelope was the problem
	Code    int    // envelope code, 0 when the status was the problem
	Message string
}

// Error implements the error interface.
func (e *APIError) Error() string {
	if e.Code != 0 {
		return fmt.Sprintf("api error [code %d] (HTTP %d): %s", e.Code, e.Status, e.Message)
	}
	return fmt.Sprintf("api error (HTTP %d): %s", e.Status, e.Message)
}

// envelope is the JSON wrapper every REST response arrives in.
// code 0 means success; data carries the payload.
type envelope struct {
	Code int             `json:"code"`
	Msg  string          `json:"msg"`
	Data json.RawMessage `json:"data"`
}

// =============================================================================
// WIRE DTOS
// =============================================================================

// messageDTO is the server's history representation of one message.
type messageDTO struct {
	ID               int       `json:"id"`
	Role             string    `json:"role"`
	TextContent      string    `json:"textContent"`
	ReasoningContent string    `json:"reasoningContent,omitempty"`
	CreatedAt        time.Time `json:"createdAt"`
}

func (d messageDTO) toModel() model.Message {
	return model.Message{
		ID:                d.ID,
		Role:              model.Role(d.Role),
		Content:           d.TextContent,
		ReasoningContent:  d.ReasoningContent,
		ReasoningFinished: d.ReasoningContent != "",
		CreatedAt:         d.CreatedAt,
	}
}

// summaryDTO is one directory row on the wire.
type summaryDTO struct {
	ID        string    `json:"id"`
	Title     string    `json:"title"`
	CreatedAt time.Time `json:"createdAt"`
	UpdatedAt time.Time `json:"updatedAt"`
}

func (d summaryDTO) toModel() model.ConversationSummary {
	return model.ConversationSummary{
		ID:        d.ID,
		Title:     d.Title,
		CreatedAt: d.CreatedAt,
		UpdatedAt: d.UpdatedAt,
	}
}

// =============================================================================
// CLIENT
// =============================================================================

// Client talks to the conversation API. The zero value is not usable;
// construct with NewClient.
type Client struct {
	baseURL      string
	httpClient   *http.Client
	streamClient *http.Client
	maxRetries   int
}

// NewClient creates a client for the given base URL. authorized carries
// the caller's auth (token refresh etc.); pass nil to use a default
// unauthenticated client, which is only useful in tests.
func NewClient(baseURL string, authorized *http.Client) *Client {
	httpClient := authorized
	if httpClient == nil {
		httpClient = defaultHTTPClient
	}

	// Streams must not be killed by the REST timeout; lifetime is
	// controlled by the caller's context instead.
	streamClient := &http.Client{Transport: httpClient.Transport}

	return &Client{
		baseURL:      trimTrailingSlash(baseURL),
		httpClient:   httpClient,
		streamClient: streamClient,
		maxRetries:   DefaultMaxRetries,
	}
}

// WithMaxRetries sets the retry budget for REST requests.
func (c *Client) WithMaxRetries(n int) *Client {
	c.maxRetries = n
	return c
}

// =============================================================================
// REST OPERATIONS
// =============================================================================

// History fetches the full message list of a conversation.
func (c *Client) History(ctx context.Context, conversationID string) ([]model.Message, error) {
	path := "/conversations/" + url.PathEscape(conversationID) + "/messages"

	var dtos []messageDTO
	if err := c.doJSON(ctx, http.MethodGet, path, nil, &dtos); err != nil {
		return nil, err
	}

	messages := make([]model.Message, 0, len(dtos))
	for _, d := range dtos {
		messages = append(messages, d.toModel())
	}
	return messages, nil
}

// ListConversations fetches one page of the conversation directory.
func (c *Client) ListConversations(ctx context.Context, page, size int) ([]model.ConversationSummary, error) {
	path := "/conversations?page=" + strconv.Itoa(page) + "&size=" + strconv.Itoa(size)

	var dtos []summaryDTO
	if err := c.doJSON(ctx, http.MethodGet, path, nil, &dtos); err != nil {
		return nil, err
	}

	list := make([]model.ConversationSummary, 0, len(dtos))
	for _, d := range dtos {
		list = append(list, d.toModel())
	}
	return list, nil
}

// Rename updates a conversation's title.
func (c *Client) Rename(ctx context.Context, conversationID, title string) error {
	path := "/conversations/" + url.PathEscape(conversationID)
	body := map[string]string{"title": title}
	return c.doJSON(ctx, http.MethodPatch, path, body, nil)
}

// Delete removes a conversation on the server.
func (c *Client) Delete(ctx context.Context, conversationID string) error {
	path := "/conversations/" + url.PathEscape(conversationID)
	return c.doJSON(ctx, http.MethodDelete, path, nil, nil)
}

// =============================================================================
// REQUEST PLUMBING
// =============================================================================

// doJSON performs one REST call with retry and decodes the envelope's data
// field into out (when out is non-nil).
func (c *Client) doJSON(ctx context.Context, method, path string, body, out interface{}) error {
	var bodyBytes []byte
	if body != nil {
		var err error
		bodyBytes, err = json.Marshal(body)
		if err != nil {
			return fmt.Errorf("failed to marshal request: %w", err)
		}
	}

	var lastErr error
	for attempt := 0; attempt <= c.maxRetries; attempt++ {
		if attempt > 0 {
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-time.After(calculateBackoff(attempt)):
			}
		}

		err := c.doOnce(ctx, method, path, bodyBytes, out)
		if err == nil {
			return nil
		}
		if !isRetryable(err) {
			return err
		}
		lastErr = err
	}
	return fmt.Errorf("max retries exceeded: %w", lastErr)
}

func (c *Client) doOnce(ctx context.Context, method, path string, bodyBytes []byte, out interface{}) error {
	var reader io.Reader
	if bodyBytes != nil {
		reader = bytes.NewReader(bodyBytes)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, reader)
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")

	logRequest(req)
	start := time.Now()
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()
	logResponse(resp, time.Since(start))

	respBody, err := readLimited(resp.Body)
	if err != nil {
		return err
	}

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return statusError(resp.StatusCode, respBody)
	}

	var env envelope
	if err := json.Unmarshal(respBody, &env); err != nil {
		return fmt.Errorf("failed to parse response: %w", err)
	}
	if env.Code != 0 {
		return &APIError{Status: resp.StatusCode, Code: env.Code, Message: env.Msg}
	}
	if out != nil && len(env.Data) > 0 {
		if err := json.Unmarshal(env.Data, out); err != nil {
			return fmt.Errorf("failed to parse response data: %w", err)
		}
	}
	return nil
}

// statusError maps an HTTP failure to the taxonomy.
func statusError(status int, body []byte) error {
	var env envelope
	msg := string(body)
	if err := json.Unmarshal(body, &env); err == nil && env.Msg != "" {
		msg = env.Msg
	}

	apiErr := &APIError{Status: status, Code: env.Code, Message: msg}
	switch status {
	case http.StatusUnauthorized, http.StatusForbidden:
		return fmt.Errorf("%w: %s", ErrAuthFailed, msg)
	case http.StatusNotFound:
		return fmt.Errorf("%w: %s", ErrConversationNotFound, msg)
	case http.StatusTooManyRequests:
		return fmt.Errorf("%w: %s", ErrRateLimited, msg)
	default:
		return apiErr
	}
}

// isRetryable reports whether a REST error is worth retrying: rate limits
// and 5xx, never context cancellation or client errors.
func isRetryable(err error) bool {
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return false
	}
	if errors.Is(err, ErrRateLimited) {
		return true
	}
	var apiErr *APIError
	if errors.As(err, &apiErr) {
		return apiErr.Status >= 500 && apiErr.Status < 600
	}
	// Transport-level failures (connection reset etc.) are retryable.
	return errors.Is(err, io.ErrUnexpectedEOF) || isNetworkErr(err)
}

func isNetworkErr(err error) bool {
	var urlErr *url.Error
	return errors.As(err, &urlErr)
}

// calculateBackoff returns the delay before the next retry attempt.
func calculateBackoff(attempt int) time.Duration {
	delay := retryBaseDelay * time.Duration(1<<uint(attempt-1))
	if delay > retryMaxDelay {
		delay = retryMaxDelay
	}
	return delay
}

// readLimited reads a response body with the size cap applied.
func readLimited(r io.Reader) ([]byte, error) {
	body, err := io.ReadAll(io.LimitReader(r, MaxResponseSize))
	if err != nil {
		return nil, fmt.Errorf("failed to read response: %w", err)
	}
	if int64(len(body)) == MaxResponseSize {
		return nil, fmt.Errorf("response exceeded maximum size of %d bytes", int64(MaxResponseSize))
	}
	return body, nil
}

// logRequest logs method and path only; headers may carry auth and bodies
// may carry user text.
func logRequest(req *http.Request) {
	log.Printf("API Request: %s %s", req.Method, req.URL.Path)
}

func logResponse(resp *http.Response, duration time.Duration) {
	log.Printf("API Response: %d (%v)", resp.StatusCode, duration)
}

func trimTrailingSlash(s string) string {
	for len(s) > 0 && s[len(s)-1] == '/' {
		s = s[:len(s)-1]
	}
	return s
}
