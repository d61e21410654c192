// Package ollama is the HTTP client for the Ollama-compatible model runtime.
package ollama

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/helixcode-ai/hx-model-manager/internal/logutil"
)

// ErrConnection wraps transport-level failures reaching the runtime.
var ErrConnection = errors.New("runtime unreachable")

// StatusError reports a non-2xx answer from the runtime.
type StatusError struct {
	Code int
	Body string
}

func (e *StatusError) Error() string {
	body := strings.TrimSpace(e.Body)
	if body == "" {
		return fmt.Sprintf("runtime returned status %d", e.Code)
	}
	return fmt.Sprintf("runtime returned status %d: %s", e.Code, body)
}

// PullFunc receives each parsed status record from a streaming pull.
type PullFunc func(PullStatus)

// Client talks to a single runtime instance.
type Client struct {
	baseURL    string
	httpClient *http.Client
}

// Option configures the client.
type Option func(*Client)

// WithHTTPClient overrides the underlying HTTP client (tests).
func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) {
		c.httpClient = hc
	}
}

// WithTimeout bounds non-streaming calls.
func WithTimeout(d time.Duration) Option {
	return func(c *Client) {
		c.httpClient.Timeout = d
	}
}

// NewClient creates a runtime client for the given base URL.
func NewClient(baseURL string, opts ...Option) *Client {
	c := &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		httpClient: &http.Client{
			Timeout: 2 * time.Minute,
		},
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Pull streams /api/pull for the named model, invoking fn for every parsed
// status record. Malformed lines are skipped; the call returns once a record
// signals success, the stream closes, or ctx is cancelled. Pull streams can
// run for many minutes, so the request deliberately bypasses the client
// timeout and is bounded by ctx alone.
func (c *Client) Pull(ctx context.Context, name string, fn PullFunc) error {
	body, err := json.Marshal(pullRequest{Name: name, Stream: true})
	if err != nil {
		return fmt.Errorf("marshal pull request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/api/pull", bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("create pull request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	streaming := &http.Client{Transport: c.httpClient.Transport}
	resp, err := streaming.Do(req)
	if err != nil {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		return fmt.Errorf("%w: %v", ErrConnection, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		data, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		return &StatusError{Code: resp.StatusCode, Body: string(data)}
	}

	scanner := bufio.NewScanner(resp.Body)
	// Manifest lines can be large; grow past the default token size.
	scanner.Buffer(make([]byte, 64*1024), 1024*1024)

	for scanner.Scan() {
		if err := ctx.Err(); err != nil {
			return err
		}
		line := scanner.Bytes()
		if len(bytes.TrimSpace(line)) == 0 {
			continue
		}

		var status PullStatus
		if err := json.Unmarshal(line, &status); err != nil {
			logutil.Debug("pull_status_parse_skipped", map[string]interface{}{
				"model": name,
				"line":  string(line),
			})
			continue
		}
		if status.Error != "" {
			return fmt.Errorf("pull %s: %s", name, status.Error)
		}

		if fn != nil {
			fn(status)
		}
		if status.Succeeded() {
			return nil
		}
	}

	if err := scanner.Err(); err != nil {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		return fmt.Errorf("read pull stream: %w", err)
	}
	return nil
}

// Generate issues a non-streaming generate call and returns the answer.
func (c *Client) Generate(ctx context.Context, model, prompt string) (*GenerateResult, error) {
	var result GenerateResult
	err := c.postJSON(ctx, "/api/generate", generateRequest{
		Model:  model,
		Prompt: prompt,
		Stream: false,
	}, &result)
	if err != nil {
		return nil, err
	}
	return &result, nil
}

// List returns the models installed on the runtime.
func (c *Client) List(ctx context.Context) ([]Model, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"/api/tags", nil)
	if err != nil {
		return nil, err
	}
	var tags tagsResponse
	if err := c.do(req, &tags); err != nil {
		return nil, err
	}
	return tags.Models, nil
}

// Show fetches detailed metadata for one installed model.
func (c *Client) Show(ctx context.Context, name string) (*ModelDetails, error) {
	var details ModelDetails
	if err := c.postJSON(ctx, "/api/show", nameRequest{Name: name}, &details); err != nil {
		return nil, err
	}
	return &details, nil
}

// Delete removes an installed model from the runtime.
func (c *Client) Delete(ctx context.Context, name string) error {
	body, err := json.Marshal(nameRequest{Name: name})
	if err != nil {
		return err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodDelete, c.baseURL+"/api/delete", bytes.NewReader(body))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	return c.do(req, nil)
}

func (c *Client) postJSON(ctx context.Context, path string, payload, target interface{}) error {
	body, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("marshal request: %w", err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+path, bytes.NewReader(body))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	return c.do(req, target)
}

func (c *Client) do(req *http.Request, target interface{}) error {
	resp, err := c.httpClient.Do(req)
	if err != nil {
		if req.Context().Err() != nil {
			return req.Context().Err()
		}
		return fmt.Errorf("%w: %v", ErrConnection, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		data, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		return &StatusError{Code: resp.StatusCode, Body: string(data)}
	}
	if target == nil {
		return nil
	}
	return json.NewDecoder(resp.Body).Decode(target)
}
