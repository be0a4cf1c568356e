package sdk

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"
)

const defaultTimeout = 30 * time.Second

// Option configures the Client.
type Option interface {
	apply(*Client)
}

// optionFunc adapts a function to the Option interface.
type optionFunc func(*Client)

func (f optionFunc) apply(c *Client) { f(c) }

// WithAPIKey sets the bearer token sent with every request.
func WithAPIKey(key string) Option {
	return optionFunc(func(c *Client) {
		c.apiKey = key
	})
}

// WithHTTPClient replaces the underlying HTTP client.
func WithHTTPClient(hc *http.Client) Option {
	return optionFunc(func(c *Client) {
		c.httpClient = hc
	})
}

// WithTimeout sets the per-request timeout on the default HTTP client.
// Ignored when WithHTTPClient is also given.
func WithTimeout(d time.Duration) Option {
	return optionFunc(func(c *Client) {
		c.timeout = d
	})
}

// Client talks to a bookdex API server.
type Client struct {
	baseURL    string
	apiKey     string
	timeout    time.Duration
	httpClient *http.Client
}

// New creates a client for the bookdex API at baseURL.
func New(baseURL string, opts ...Option) *Client {
	c := &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		timeout: defaultTimeout,
	}
	for _, o := range opts {
		o.apply(c)
	}
	if c.httpClient == nil {
		c.httpClient = &http.Client{Timeout: c.timeout}
	}
	return c
}

// Search ranks books against a free-text query. k <= 0 uses the server default.
func (c *Client) Search(ctx context.Context, query string, k int) (*SearchResponse, error) {
	body := map[string]any{"query": query}
	if k > 0 {
		body["k"] = k
	}

	var resp SearchResponse
	if err := c.do(ctx, http.MethodPost, "/search", body, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

// Similar finds books close to the one identified by key.
// k <= 0 uses the server default.
func (c *Client) Similar(ctx context.Context, key string, k int) (*SimilarResponse, error) {
	path := "/similar/" + url.PathEscape(key)
	if k > 0 {
		path += "?k=" + strconv.Itoa(k)
	}

	var resp SimilarResponse
	if err := c.do(ctx, http.MethodGet, path, nil, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

// Health reports service health. A degraded service still returns a report,
// not an error.
func (c *Client) Health(ctx context.Context) (*HealthReport, error) {
	req, err := c.newRequest(ctx, http.MethodGet, "/health", nil)
	if err != nil {
		return nil, err
	}

	httpResp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("sdk: health request: %w", err)
	}
	defer httpResp.Body.Close()

	// 503 carries the same report body as 200.
	if httpResp.StatusCode != http.StatusOK && httpResp.StatusCode != http.StatusServiceUnavailable {
		return nil, decodeAPIError(httpResp)
	}

	var report HealthReport
	if err := json.NewDecoder(httpResp.Body).Decode(&report); err != nil {
		return nil, fmt.Errorf("sdk: decode health report: %w", err)
	}
	return &report, nil
}

func (c *Client) do(ctx context.Context, method, path string, body, out any) error {
	req, err := c.newRequest(ctx, method, path, body)
	if err != nil {
		return err
	}

	httpResp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("sdk: %s %s: %w", method, path, err)
	}
	defer httpResp.Body.Close()

	if httpResp.StatusCode != http.StatusOK {
		return decodeAPIError(httpResp)
	}

	if err := json.NewDecoder(httpResp.Body).Decode(out); err != nil {
		return fmt.Errorf("sdk: decode response: %w", err)
	}
	return nil
}

func (c *Client) newRequest(ctx context.Context, method, path string, body any) (*http.Request, error) {
	var reader io.Reader
	if body != nil {
		buf, err := json.Marshal(body)
		if err != nil {
			return nil, fmt.Errorf("sdk: encode request: %w", err)
		}
		reader = bytes.NewReader(buf)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, reader)
	if err != nil {
		return nil, fmt.Errorf("sdk: build request: %w", err)
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if c.apiKey != "" {
		req.Header.Set("Authorization", "Bearer "+c.apiKey)
	}
	return req, nil
}

func decodeAPIError(resp *http.Response) error {
	apiErr := &APIError{StatusCode: resp.StatusCode}

	var body struct {
		Code    string `json:"code"`
		Message string `json:"message"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&body); err == nil && body.Code != "" {
		apiErr.Code = body.Code
		apiErr.Message = body.Message
	} else {
		apiErr.Code = "unknown"
		apiErr.Message = http.StatusText(resp.StatusCode)
	}
	return apiErr
}
