// Package serverapi is a client for the dictation server's configuration API.
package serverapi

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"go.aimuz.me/tambourine/internal/types"
)

// StatusError is returned for non-2xx responses.
type StatusError struct {
	Method string
	Path   string
	Status int
	Body   string
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("%s %s: status %d: %s", e.Method, e.Path, e.Status, e.Body)
}

// Client talks to the server base URL returned by baseURL on every call, so
// a changed server URL takes effect without rebuilding the client.
type Client struct {
	baseURL func() string
	hc      *http.Client
}

// New returns a client for the server at baseURL().
func New(baseURL func() string, hc *http.Client) *Client {
	if hc == nil {
		hc = &http.Client{Timeout: 10 * time.Second}
	}
	return &Client{baseURL: baseURL, hc: hc}
}

type providerRequest struct {
	Provider string `json:"provider"`
}

// SetPromptSections replaces the cleanup prompt used by the server.
func (c *Client) SetPromptSections(ctx context.Context, sections types.CleanupPromptSections) error {
	return c.do(ctx, http.MethodPut, "/api/prompt/sections", sections, nil)
}

// SetSTTProvider switches the server's speech-to-text provider.
func (c *Client) SetSTTProvider(ctx context.Context, provider string) error {
	return c.do(ctx, http.MethodPut, "/api/provider/stt", providerRequest{Provider: provider}, nil)
}

// SetLLMProvider switches the server's cleanup model provider.
func (c *Client) SetLLMProvider(ctx context.Context, provider string) error {
	return c.do(ctx, http.MethodPut, "/api/provider/llm", providerRequest{Provider: provider}, nil)
}

// AvailableProviders lists the providers the server has credentials for.
func (c *Client) AvailableProviders(ctx context.Context) (*types.AvailableProviders, error) {
	var out types.AvailableProviders
	if err := c.do(ctx, http.MethodGet, "/api/providers", nil, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

func (c *Client) do(ctx context.Context, method, path string, in, out any) error {
	base := strings.TrimRight(c.baseURL(), "/")
	if base == "" {
		return fmt.Errorf("%s %s: no server url", method, path)
	}

	var body io.Reader
	if in != nil {
		data, err := json.Marshal(in)
		if err != nil {
			return fmt.Errorf("marshal request: %w", err)
		}
		body = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, method, base+path, body)
	if err != nil {
		return fmt.Errorf("create request: %w", err)
	}
	if in != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	req.Header.Set("Accept", "application/json")

	resp, err := c.hc.Do(req)
	if err != nil {
		return fmt.Errorf("%s %s: %w", method, path, err)
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("read response: %w", err)
	}

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return &StatusError{Method: method, Path: path, Status: resp.StatusCode, Body: string(data)}
	}

	if out != nil {
		if err := json.Unmarshal(data, out); err != nil {
			return fmt.Errorf("decode response: %w", err)
		}
	}
	return nil
}
