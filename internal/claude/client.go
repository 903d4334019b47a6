// Package claude wraps the Anthropic Messages API. The client performs a
// single attempt per call and reports failures as typed errors; retry
// policy belongs to the caller.
package claude

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"
	"time"
)

const (
	defaultBaseURL = "https://api.anthropic.com/v1"
	defaultTimeout = 45 * time.Second
	apiVersion     = "2023-06-01"

	maxErrorBodySize = 1 << 16
)

// Client communicates with the Anthropic API.
type Client struct {
	apiKey     string
	baseURL    string
	httpClient *http.Client
}

// NewClient creates a client with the given API key.
func NewClient(apiKey string) *Client {
	return &Client{
		apiKey:  apiKey,
		baseURL: defaultBaseURL,
		httpClient: &http.Client{
			Timeout: defaultTimeout,
		},
	}
}

// NewClientWithBaseURL creates a client pointing at a custom base URL (for testing).
func NewClientWithBaseURL(apiKey, baseURL string) *Client {
	c := NewClient(apiKey)
	c.baseURL = strings.TrimRight(baseURL, "/")
	return c
}

// Generate sends one Messages API request and returns the completion text.
func (c *Client) Generate(ctx context.Context, req Request) (Completion, error) {
	body, err := json.Marshal(req)
	if err != nil {
		return Completion{}, fmt.Errorf("marshaling request: %w", err)
	}

	reqCtx, cancel := context.WithTimeout(ctx, defaultTimeout)
	defer cancel()

	httpReq, err := http.NewRequestWithContext(reqCtx, http.MethodPost, c.baseURL+"/messages", bytes.NewReader(body))
	if err != nil {
		return Completion{}, fmt.Errorf("creating request: %w", err)
	}
	c.setHeaders(httpReq)

	resp, err := c.httpClient.Do(httpReq)
	if err != nil {
		if errors.Is(err, context.DeadlineExceeded) || isTimeout(err) {
			return Completion{}, &TimeoutError{Err: err}
		}
		return Completion{}, fmt.Errorf("executing request: %w", err)
	}
	defer resp.Body.Close()

	switch {
	case resp.StatusCode == http.StatusOK:
		// fall through to decode
	case resp.StatusCode == http.StatusUnauthorized || resp.StatusCode == http.StatusForbidden:
		return Completion{}, &AuthError{Status: resp.StatusCode, Message: readAPIError(resp.Body)}
	case resp.StatusCode == http.StatusTooManyRequests:
		return Completion{}, &RateLimitedError{RetryAfter: parseRetryAfter(resp.Header.Get("Retry-After"))}
	default:
		return Completion{}, &InvalidResponseError{
			Reason: fmt.Sprintf("unexpected status %d: %s", resp.StatusCode, readAPIError(resp.Body)),
		}
	}

	var out response
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return Completion{}, &InvalidResponseError{Reason: fmt.Sprintf("decoding body: %v", err)}
	}

	text := collectText(out.Content)
	if strings.TrimSpace(text) == "" {
		return Completion{}, &InvalidResponseError{Reason: "empty completion"}
	}

	return Completion{Text: text, Model: out.Model, Usage: out.Usage}, nil
}

func (c *Client) setHeaders(req *http.Request) {
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("x-api-key", c.apiKey)
	req.Header.Set("anthropic-version", apiVersion)
}

// collectText concatenates the text blocks of the response content array.
func collectText(blocks []contentBlock) string {
	var sb strings.Builder
	for _, b := range blocks {
		if b.Type == "text" {
			sb.WriteString(b.Text)
		}
	}
	return sb.String()
}

func readAPIError(r io.Reader) string {
	data, err := io.ReadAll(io.LimitReader(r, maxErrorBodySize))
	if err != nil {
		return ""
	}
	var e apiError
	if json.Unmarshal(data, &e) == nil && e.Error.Message != "" {
		return e.Error.Message
	}
	return strings.TrimSpace(string(data))
}

func parseRetryAfter(v string) time.Duration {
	if v == "" {
		return 0
	}
	secs, err := strconv.Atoi(v)
	if err != nil || secs < 0 {
		return 0
	}
	return time.Duration(secs) * time.Second
}

func isTimeout(err error) bool {
	var t interface{ Timeout() bool }
	return errors.As(err, &t) && t.Timeout()
}
