// Package simclient drives an inference-mock instance from test harnesses:
// health checks, fixture reloads, and captured-request inspection between
// cases.
package simclient

import (
	"context"
	"fmt"
	"time"

	"github.com/go-resty/resty/v2"
	json "github.com/goccy/go-json"
)

// Client talks to the gateway's admin plane.
type Client struct {
	resty *resty.Client
}

type Option func(*Client)

// WithTimeout overrides the default per-request timeout.
func WithTimeout(d time.Duration) Option {
	return func(c *Client) {
		c.resty.SetTimeout(d)
	}
}

func New(baseURL string, opts ...Option) *Client {
	r := resty.New().
		SetBaseURL(baseURL).
		SetTimeout(10 * time.Second).
		SetHeader("Content-Type", "application/json")
	c := &Client{resty: r}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Health is the /healthz payload.
type Health struct {
	Status string `json:"status"`
	Models int    `json:"models"`
}

// ReloadResult is the /admin/reload payload. On failure Error carries the
// loader message and the gateway keeps serving its previous fixture set.
type ReloadResult struct {
	Status string   `json:"status"`
	Models []string `json:"models"`
	Error  string   `json:"error,omitempty"`
}

// FixtureSummary describes one loaded model and its scenarios.
type FixtureSummary struct {
	Model     string            `json:"model"`
	Scenarios []ScenarioSummary `json:"scenarios"`
}

type ScenarioSummary struct {
	Name     string         `json:"name"`
	Kind     string         `json:"kind"`
	Match    string         `json:"match"`
	Metadata map[string]any `json:"metadata,omitempty"`
}

// CapturedRequest is the most recent request body the gateway saw for a
// model, verbatim.
type CapturedRequest struct {
	Model    string          `json:"model"`
	Protocol string          `json:"protocol"`
	Body     json.RawMessage `json:"body"`
}

func (c *Client) Health(ctx context.Context) (Health, error) {
	var out Health
	resp, err := c.resty.R().SetContext(ctx).SetResult(&out).Get("/healthz")
	if err != nil {
		return Health{}, fmt.Errorf("health: %w", err)
	}
	if resp.IsError() {
		return Health{}, fmt.Errorf("health: status %d: %s", resp.StatusCode(), resp.String())
	}
	return out, nil
}

func (c *Client) Reload(ctx context.Context) (ReloadResult, error) {
	var out ReloadResult
	resp, err := c.resty.R().SetContext(ctx).SetResult(&out).SetError(&out).Post("/admin/reload")
	if err != nil {
		return ReloadResult{}, fmt.Errorf("reload: %w", err)
	}
	if resp.IsError() {
		if out.Error != "" {
			return out, fmt.Errorf("reload: %s", out.Error)
		}
		return out, fmt.Errorf("reload: status %d: %s", resp.StatusCode(), resp.String())
	}
	return out, nil
}

func (c *Client) Fixtures(ctx context.Context) ([]FixtureSummary, error) {
	var out struct {
		Fixtures []FixtureSummary `json:"fixtures"`
	}
	resp, err := c.resty.R().SetContext(ctx).SetResult(&out).Get("/admin/fixtures")
	if err != nil {
		return nil, fmt.Errorf("fixtures: %w", err)
	}
	if resp.IsError() {
		return nil, fmt.Errorf("fixtures: status %d: %s", resp.StatusCode(), resp.String())
	}
	return out.Fixtures, nil
}

func (c *Client) LastRequest(ctx context.Context, model string) (CapturedRequest, error) {
	var out CapturedRequest
	resp, err := c.resty.R().SetContext(ctx).SetResult(&out).
		SetPathParam("model", model).
		Get("/admin/requests/{model}")
	if err != nil {
		return CapturedRequest{}, fmt.Errorf("last request: %w", err)
	}
	if resp.IsError() {
		return CapturedRequest{}, fmt.Errorf("last request: status %d: %s", resp.StatusCode(), resp.String())
	}
	return out, nil
}

func (c *Client) ClearRequests(ctx context.Context) error {
	resp, err := c.resty.R().SetContext(ctx).Delete("/admin/requests")
	if err != nil {
		return fmt.Errorf("clear requests: %w", err)
	}
	if resp.IsError() {
		return fmt.Errorf("clear requests: status %d", resp.StatusCode())
	}
	return nil
}
