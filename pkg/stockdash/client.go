// Package stockdash is a Go client for the stockdash-server REST API.
package stockdash

import (
	"context"
	"fmt"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/go-resty/resty/v2"

	"stockdash/internal/chart"
)

// Figure is the chart description returned by panel evaluation.
type Figure = chart.Spec

// Trace is one data series of a Figure.
type Trace = chart.Trace

// Panel names accepted by Evaluate and ExportPNG.
const (
	PanelCandlestick = "candlestick"
	PanelLine        = "line"
	PanelBar         = "bar"
	PanelPie         = "pie"
)

// Request is the selector state sent for one panel. Empty fields keep the
// server's defaults.
type Request struct {
	Symbol      string   `json:"symbol,omitempty"`
	Symbols     []string `json:"symbols,omitempty"`
	StartDate   string   `json:"start_date,omitempty"`
	EndDate     string   `json:"end_date,omitempty"`
	Date        string   `json:"date,omitempty"`
	RangeSlider *bool    `json:"rangeslider,omitempty"`
}

// Result is the evaluated panel.
type Result struct {
	Figure   Figure         `json:"figure"`
	Inputs   map[string]any `json:"inputs"`
	Warnings []string       `json:"warnings,omitempty"`
}

// Option is a dropdown entry.
type Option struct {
	Label string `json:"label"`
	Value string `json:"value"`
}

// SymbolInfo is descriptive metadata for a symbol.
type SymbolInfo struct {
	Symbol    string    `json:"symbol"`
	Name      string    `json:"name,omitempty"`
	Sector    string    `json:"sector,omitempty"`
	Market    string    `json:"market"`
	FirstDate time.Time `json:"first_date"`
	LastDate  time.Time `json:"last_date"`
}

// Catalog is the symbol universe served by the dashboard.
type Catalog struct {
	Market  string       `json:"market"`
	Symbols []string     `json:"symbols"`
	Options []Option     `json:"options"`
	MinDate string       `json:"min_date"`
	MaxDate string       `json:"max_date"`
	Info    []SymbolInfo `json:"info,omitempty"`
}

// Control describes one input of the dashboard.
type Control struct {
	ID    string `json:"id"`
	Kind  string `json:"kind"`
	Panel string `json:"panel,omitempty"`
}

// Health is the server health report.
type Health struct {
	Status   string `json:"status"`
	Symbols  int    `json:"symbols"`
	Sessions int    `json:"sessions"`
}

// APIError is a non-2xx response decoded from the server's problem body.
type APIError struct {
	Status int    `json:"status"`
	Title  string `json:"title"`
	Detail string `json:"detail"`
}

func (e *APIError) Error() string {
	if e.Detail != "" {
		return fmt.Sprintf("stockdash: %d %s: %s", e.Status, e.Title, e.Detail)
	}
	return fmt.Sprintf("stockdash: %d %s", e.Status, e.Title)
}

// ---------------------------------------------------------------------------
// Client
// ---------------------------------------------------------------------------

// Client provides a Go SDK for interacting with the stockdash-server API.
type Client struct {
	baseURL string
	http    *resty.Client
}

// ClientOption customises a Client.
type ClientOption func(*resty.Client)

// WithTimeout sets the per-request timeout.
func WithTimeout(d time.Duration) ClientOption {
	return func(c *resty.Client) { c.SetTimeout(d) }
}

// WithRetries retries requests that fail with a transport error or a 5xx
// status.
func WithRetries(n int, wait time.Duration) ClientOption {
	return func(c *resty.Client) {
		c.SetRetryCount(n).
			SetRetryWaitTime(wait).
			AddRetryCondition(func(r *resty.Response, err error) bool {
				return err != nil || r.StatusCode() >= 500
			})
	}
}

// NewClient creates a new stockdash API client.
func NewClient(baseURL string, opts ...ClientOption) *Client {
	baseURL = strings.TrimRight(baseURL, "/")
	rc := resty.New().
		SetBaseURL(baseURL).
		SetTimeout(30*time.Second).
		SetHeader("Accept", "application/json").
		SetError(&APIError{})
	for _, o := range opts {
		o(rc)
	}
	return &Client{baseURL: baseURL, http: rc}
}

// Catalog retrieves the symbol catalog.
func (c *Client) Catalog(ctx context.Context) (*Catalog, error) {
	var out Catalog
	if err := c.get(ctx, "/api/v1/catalog", &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// Controls retrieves the control registry.
func (c *Client) Controls(ctx context.Context) ([]Control, error) {
	var out struct {
		Controls []Control `json:"controls"`
	}
	if err := c.get(ctx, "/api/v1/controls", &out); err != nil {
		return nil, err
	}
	return out.Controls, nil
}

// Health retrieves the server health report.
func (c *Client) Health(ctx context.Context) (*Health, error) {
	var out Health
	if err := c.get(ctx, "/healthz", &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// Evaluate renders a panel from the given selector state.
func (c *Client) Evaluate(ctx context.Context, panel string, req Request) (*Result, error) {
	var out Result
	resp, err := c.http.R().
		SetContext(ctx).
		SetPathParam("panel", panel).
		SetBody(req).
		SetResult(&out).
		Post("/api/v1/panels/{panel}/evaluate")
	if err := check(resp, err); err != nil {
		return nil, err
	}
	return &out, nil
}

// ExportPNG renders a panel server-side and returns the PNG bytes. Zero width
// or height selects the server default.
func (c *Client) ExportPNG(ctx context.Context, panel string, req Request, width, height int) ([]byte, error) {
	q := url.Values{}
	if req.Symbol != "" {
		q.Set("symbol", req.Symbol)
	}
	if len(req.Symbols) > 0 {
		q.Set("symbols", strings.Join(req.Symbols, ","))
	}
	for k, v := range map[string]string{"start_date": req.StartDate, "end_date": req.EndDate, "date": req.Date} {
		if v != "" {
			q.Set(k, v)
		}
	}
	if req.RangeSlider != nil {
		q.Set("rangeslider", strconv.FormatBool(*req.RangeSlider))
	}
	if width > 0 {
		q.Set("width", strconv.Itoa(width))
	}
	if height > 0 {
		q.Set("height", strconv.Itoa(height))
	}

	resp, err := c.http.R().
		SetContext(ctx).
		SetHeader("Accept", "image/png, application/problem+json").
		SetPathParam("panel", panel).
		SetQueryParamsFromValues(q).
		Get("/api/v1/panels/{panel}/export.png")
	if err := check(resp, err); err != nil {
		return nil, err
	}
	return resp.Body(), nil
}

func (c *Client) get(ctx context.Context, path string, out any) error {
	resp, err := c.http.R().SetContext(ctx).SetResult(out).Get(path)
	return check(resp, err)
}

// check converts transport failures and error statuses into errors.
func check(resp *resty.Response, err error) error {
	if err != nil {
		return fmt.Errorf("stockdash: %w", err)
	}
	if resp.IsSuccess() {
		return nil
	}
	if apiErr, ok := resp.Error().(*APIError); ok && apiErr.Status != 0 {
		return apiErr
	}
	return &APIError{Status: resp.StatusCode(), Title: strings.TrimSpace(resp.Status())}
}
