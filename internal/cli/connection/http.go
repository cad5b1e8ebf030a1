package connection

import (
	"context"
	"encoding/json"
	"fmt"
	"net"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/yndnr/clinvault/internal/infra/buildinfo"
)

// DefaultTimeout bounds one admin request.
const DefaultTimeout = 10 * time.Second

// APIError is an error envelope returned by the admin listener.
type APIError struct {
	Status    int
	Code      string
	Message   string
	RequestID string
}

func (e *APIError) Error() string {
	if e.Code == "" {
		return fmt.Sprintf("request failed with status %d", e.Status)
	}
	return fmt.Sprintf("[%s] %s", e.Code, e.Message)
}

// envelope mirrors the server's response envelope.
type envelope struct {
	Code      string          `json:"code"`
	Message   string          `json:"message"`
	RequestID string          `json:"request_id"`
	Data      json.RawMessage `json:"data"`
}

// AdminClient performs requests against the admin listener.
type AdminClient struct {
	baseURL string
	client  *http.Client
}

// unixPrefix selects the admin Unix socket, e.g. "unix:/run/clinvault/admin.sock".
const unixPrefix = "unix:"

// NewAdminClient creates a client for addr, which may omit the scheme.
func NewAdminClient(addr string, timeout time.Duration) *AdminClient {
	if timeout <= 0 {
		timeout = DefaultTimeout
	}

	if path, ok := strings.CutPrefix(addr, unixPrefix); ok {
		var d net.Dialer
		return &AdminClient{
			baseURL: "http://unix",
			client: &http.Client{
				Timeout: timeout,
				Transport: &http.Transport{
					DialContext: func(ctx context.Context, _, _ string) (net.Conn, error) {
						return d.DialContext(ctx, "unix", path)
					},
				},
			},
		}
	}

	baseURL := strings.TrimRight(addr, "/")
	if !strings.HasPrefix(baseURL, "http://") && !strings.HasPrefix(baseURL, "https://") {
		baseURL = "http://" + baseURL
	}
	return &AdminClient{
		baseURL: baseURL,
		client:  &http.Client{Timeout: timeout},
	}
}

// BaseURL returns the base URL of the client.
func (c *AdminClient) BaseURL() string {
	return c.baseURL
}

// Get requests path with query and decodes the envelope data into target.
// target may be nil.
func (c *AdminClient) Get(ctx context.Context, path string, query url.Values, target any) error {
	u := c.baseURL + path
	if len(query) > 0 {
		u += "?" + query.Encode()
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
	if err != nil {
		return fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Accept", "application/json")
	req.Header.Set("User-Agent", "clinvault-cli/"+buildinfo.Version)

	resp, err := c.client.Do(req)
	if err != nil {
		return fmt.Errorf("GET %s: %w", path, err)
	}
	return ParseResponse(resp, target)
}

// ParseResponse decodes an envelope response and closes its body.
func ParseResponse(resp *http.Response, target any) error {
	defer resp.Body.Close()

	var env envelope
	decodeErr := json.NewDecoder(resp.Body).Decode(&env)

	if resp.StatusCode >= 400 {
		apiErr := &APIError{Status: resp.StatusCode}
		if decodeErr == nil {
			apiErr.Code, apiErr.Message, apiErr.RequestID = env.Code, env.Message, env.RequestID
		}
		return apiErr
	}
	if decodeErr != nil {
		return fmt.Errorf("parse response: %w", decodeErr)
	}

	if target != nil && len(env.Data) > 0 {
		if err := json.Unmarshal(env.Data, target); err != nil {
			return fmt.Errorf("parse response data: %w", err)
		}
	}
	return nil
}
