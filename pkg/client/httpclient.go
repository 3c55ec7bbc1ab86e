package client

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	jsoniter "github.com/json-iterator/go"
)

var json = jsoniter.ConfigCompatibleWithStandardLibrary

// maxResponseBytes bounds how much of a downstream body is buffered.
const maxResponseBytes = 1 << 20

// JSONClient calls a downstream JSON API under one base URL.
type JSONClient struct {
	baseURL string
	http    *http.Client
	headers http.Header
}

func NewJSONClient(baseURL string, timeout time.Duration) *JSONClient {
	return &JSONClient{
		baseURL: strings.TrimRight(baseURL, "/"),
		http:    &http.Client{Timeout: timeout},
		headers: http.Header{"Accept": []string{"application/json"}},
	}
}

// SetHeader adds a header sent with every request.
func (c *JSONClient) SetHeader(key, value string) {
	c.headers.Set(key, value)
}

type Response struct {
	StatusCode int
	Header     http.Header
	Body       []byte
}

func (r *Response) Decode(target any) error {
	if len(r.Body) == 0 {
		return fmt.Errorf("empty response body (status %d)", r.StatusCode)
	}
	return json.Unmarshal(r.Body, target)
}

func (r *Response) OK() bool {
	return r.StatusCode >= 200 && r.StatusCode < 300
}

// ErrorMessage extracts a readable reason from an error body. It understands
// {"message"}, {"error"} and {"code"} shapes and falls back to the status.
func (r *Response) ErrorMessage() string {
	var body struct {
		Error   string `json:"error"`
		Message string `json:"message"`
		Code    string `json:"code"`
	}
	if err := json.Unmarshal(r.Body, &body); err == nil {
		for _, s := range []string{body.Message, body.Error, body.Code} {
			if s != "" {
				return s
			}
		}
	}
	return fmt.Sprintf("status %d", r.StatusCode)
}

func (c *JSONClient) Get(ctx context.Context, path string) (*Response, error) {
	return c.do(ctx, http.MethodGet, path, nil, nil)
}

// Post sends body as JSON. headers apply to this request only.
func (c *JSONClient) Post(ctx context.Context, path string, body any, headers map[string]string) (*Response, error) {
	return c.do(ctx, http.MethodPost, path, body, headers)
}

func (c *JSONClient) do(ctx context.Context, method, path string, body any, headers map[string]string) (*Response, error) {
	var reader io.Reader
	if body != nil {
		payload, err := json.Marshal(body)
		if err != nil {
			return nil, fmt.Errorf("failed to marshal request body: %w", err)
		}
		reader = bytes.NewReader(payload)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, reader)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	for key, values := range c.headers {
		req.Header[key] = values
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	for key, value := range headers {
		req.Header.Set(key, value)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%s %s failed: %w", method, path, err)
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseBytes))
	if err != nil {
		return nil, fmt.Errorf("failed to read response body: %w", err)
	}

	return &Response{
		StatusCode: resp.StatusCode,
		Header:     resp.Header,
		Body:       data,
	}, nil
}
