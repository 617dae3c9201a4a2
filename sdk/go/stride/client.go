package stride

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

// Config holds the settings needed to construct a Client.
type Config struct {
	// BaseURL is the root URL of the Stride server (e.g. "http://localhost:8080").
	BaseURL string

	// HTTPClient is an optional custom HTTP client. If nil, a default client
	// with the configured Timeout is used.
	HTTPClient *http.Client

	// Timeout applies to individual API requests. Plan generation can take
	// a while on slow backends; defaults to 2 minutes.
	Timeout time.Duration
}

// Client is an HTTP client for the Stride training-plan API.
// All methods are safe for concurrent use.
type Client struct {
	baseURL string
	client  *http.Client
}

// NewClient creates a Client from the given configuration.
// Returns an error if BaseURL is empty.
func NewClient(cfg Config) (*Client, error) {
	if cfg.BaseURL == "" {
		return nil, fmt.Errorf("stride: BaseURL is required")
	}

	httpClient := cfg.HTTPClient
	if httpClient == nil {
		timeout := cfg.Timeout
		if timeout == 0 {
			timeout = 2 * time.Minute
		}
		httpClient = &http.Client{Timeout: timeout}
	}

	return &Client{
		baseURL: strings.TrimRight(cfg.BaseURL, "/"),
		client:  httpClient,
	}, nil
}

// Plan generates a multi-week training plan for the given runner profile.
// Always check the verdict: MODIFIED means the plan was repaired to satisfy
// the safety constraints, REJECTED means it was replaced by a placeholder.
func (c *Client) Plan(ctx context.Context, profile Profile) (*WorkflowResult, error) {
	body := map[string]any{"profile": profile}
	var resp WorkflowResult
	if err := c.post(ctx, "/v1/plan", body, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

// Adjust replaces one day of an existing plan based on today's context.
func (c *Client) Adjust(ctx context.Context, profile Profile, plan *TrainingPlan, day DayContext) (*WorkflowResult, error) {
	body := map[string]any{
		"profile": profile,
		"plan":    plan,
		"context": day,
	}
	var resp WorkflowResult
	if err := c.post(ctx, "/v1/adjust", body, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

// RunLogOptions are optional filters for the RunLog method.
type RunLogOptions struct {
	Kind  string // GENERATE_PLAN or ADJUST_TODAY
	Since time.Time
	Limit int
}

// RunLog retrieves audit entries in ascending commit order.
func (c *Client) RunLog(ctx context.Context, opts *RunLogOptions) ([]RunLogEntry, error) {
	params := url.Values{}
	if opts != nil {
		if opts.Kind != "" {
			params.Set("kind", opts.Kind)
		}
		if !opts.Since.IsZero() {
			params.Set("since", opts.Since.UTC().Format(time.RFC3339))
		}
		if opts.Limit > 0 {
			params.Set("limit", strconv.Itoa(opts.Limit))
		}
	}

	path := "/v1/runlog"
	if len(params) > 0 {
		path += "?" + params.Encode()
	}
	var resp runLogResponse
	if err := c.get(ctx, path, &resp); err != nil {
		return nil, err
	}
	return resp.Entries, nil
}

// Health checks the server's health status, including retrieval index
// reachability.
func (c *Client) Health(ctx context.Context) (*HealthResponse, error) {
	var resp HealthResponse
	if err := c.get(ctx, "/health", &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

type runLogResponse struct {
	Entries []RunLogEntry `json:"entries"`
	Count   int           `json:"count"`
}

// ---------------------------------------------------------------------------
// HTTP transport
// ---------------------------------------------------------------------------

// apiEnvelope is the server's standard response wrapper.
type apiEnvelope struct {
	Data json.RawMessage `json:"data"`
}

// apiErrorEnvelope is the server's standard error response wrapper.
type apiErrorEnvelope struct {
	Error struct {
		Code    string `json:"code"`
		Message string `json:"message"`
	} `json:"error"`
}

func (c *Client) post(ctx context.Context, path string, body any, dest any) error {
	encoded, err := json.Marshal(body)
	if err != nil {
		return fmt.Errorf("stride: marshal request body: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+path, bytes.NewReader(encoded))
	if err != nil {
		return fmt.Errorf("stride: create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	return c.doRequest(req, dest)
}

func (c *Client) get(ctx context.Context, path string, dest any) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+path, nil)
	if err != nil {
		return fmt.Errorf("stride: create request: %w", err)
	}

	return c.doRequest(req, dest)
}

func (c *Client) doRequest(req *http.Request, dest any) error {
	resp, err := c.client.Do(req)
	if err != nil {
		return fmt.Errorf("stride: %s %s: %w", req.Method, req.URL.Path, err)
	}
	defer func() { _ = resp.Body.Close() }()

	bodyBytes, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("stride: read response body: %w", err)
	}

	if resp.StatusCode >= 400 {
		return parseErrorResponse(resp.StatusCode, bodyBytes)
	}
	if dest == nil {
		return nil
	}

	// Unwrap the server's { "data": ... } envelope.
	var envelope apiEnvelope
	if err := json.Unmarshal(bodyBytes, &envelope); err != nil {
		return fmt.Errorf("stride: decode response envelope: %w", err)
	}
	if envelope.Data == nil {
		return json.Unmarshal(bodyBytes, dest)
	}
	return json.Unmarshal(envelope.Data, dest)
}

func parseErrorResponse(statusCode int, body []byte) *Error {
	apiErr := &Error{StatusCode: statusCode}

	var envelope apiErrorEnvelope
	if err := json.Unmarshal(body, &envelope); err == nil && envelope.Error.Message != "" {
		apiErr.Code = envelope.Error.Code
		apiErr.Message = envelope.Error.Message
	} else {
		apiErr.Code = http.StatusText(statusCode)
		apiErr.Message = string(body)
	}

	return apiErr
}
