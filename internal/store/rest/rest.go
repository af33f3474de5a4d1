// Package rest talks to a Supabase project through its PostgREST API.
package rest

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/TobiSchelling/pulso/internal/store"
)

// APIError is a non-2xx response from PostgREST.
type APIError struct {
	Method     string
	Path       string
	StatusCode int
	Body       string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("%s %s returned %d: %s", e.Method, e.Path, e.StatusCode, e.Body)
}

// Temporary reports whether the request may succeed when repeated.
func (e *APIError) Temporary() bool {
	return e.StatusCode >= 500 || e.StatusCode == http.StatusTooManyRequests
}

// Client is a store.Store backed by the PostgREST endpoint of a Supabase project.
type Client struct {
	baseURL string
	apiKey  string
	client  *http.Client
}

var _ store.Store = (*Client)(nil)

// New creates a client for the project at supabaseURL using a service key.
func New(supabaseURL, apiKey string, timeout time.Duration) (*Client, error) {
	if supabaseURL == "" {
		return nil, fmt.Errorf("supabase URL is not configured")
	}
	if apiKey == "" {
		return nil, fmt.Errorf("supabase API key is not configured")
	}
	if _, err := url.Parse(supabaseURL); err != nil {
		return nil, fmt.Errorf("invalid supabase URL: %w", err)
	}
	return &Client{
		baseURL: strings.TrimRight(supabaseURL, "/") + "/rest/v1",
		apiKey:  apiKey,
		client:  &http.Client{Timeout: timeout},
	}, nil
}

// ActiveSources returns all sources with active = true.
func (c *Client) ActiveSources(ctx context.Context) ([]store.Source, error) {
	q := url.Values{}
	q.Set("select", "id,code")
	q.Set("active", "eq.true")

	var rows []struct {
		ID   rowID  `json:"id"`
		Code string `json:"code"`
	}
	if err := c.do(ctx, http.MethodGet, "/"+store.SourcesTable, q, nil, &rows); err != nil {
		return nil, err
	}

	sources := make([]store.Source, len(rows))
	for i, r := range rows {
		sources[i] = store.Source{ID: string(r.ID), Code: r.Code}
	}
	return sources, nil
}

// BucketMetrics returns the rows of one source whose bucket_start equals bucket.
func (c *Client) BucketMetrics(ctx context.Context, sourceID, bucket string) ([]store.Metric, error) {
	q := url.Values{}
	q.Set("select", "id,volume_raw")
	q.Set("source_id", "eq."+sourceID)
	q.Set("bucket_start", "eq."+bucket)

	var rows []struct {
		ID        rowID   `json:"id"`
		VolumeRaw float64 `json:"volume_raw"`
	}
	if err := c.do(ctx, http.MethodGet, "/"+store.MetricsTable, q, nil, &rows); err != nil {
		return nil, err
	}

	metrics := make([]store.Metric, len(rows))
	for i, r := range rows {
		metrics[i] = store.Metric{ID: string(r.ID), VolumeRaw: r.VolumeRaw}
	}
	return metrics, nil
}

// SetNormalized patches each row by id. PostgREST has no partial bulk update,
// so a failure leaves earlier rows of the group written.
func (c *Client) SetNormalized(ctx context.Context, updates []store.Update) error {
	for _, u := range updates {
		q := url.Values{}
		q.Set("id", "eq."+u.ID)
		body := map[string]float64{"volume_normalized": u.VolumeNormalized}
		if err := c.do(ctx, http.MethodPatch, "/"+store.MetricsTable, q, body, nil); err != nil {
			return fmt.Errorf("updating %s: %w", u.ID, err)
		}
	}
	return nil
}

// CallProcedure invokes POST /rpc/<name> with params as the JSON body.
func (c *Client) CallProcedure(ctx context.Context, name string, params map[string]any) error {
	if params == nil {
		params = map[string]any{}
	}
	return c.do(ctx, http.MethodPost, "/rpc/"+url.PathEscape(name), nil, params, nil)
}

// Close is a no-op; the HTTP client holds no per-run resources.
func (c *Client) Close() error {
	return nil
}

func (c *Client) do(ctx context.Context, method, path string, q url.Values, body, out any) error {
	target := c.baseURL + path
	if len(q) > 0 {
		// PostgREST filter values are matched literally; keep spaces as %20.
		target += "?" + strings.ReplaceAll(q.Encode(), "+", "%20")
	}

	var reader io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("marshaling request: %w", err)
		}
		reader = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, method, target, reader)
	if err != nil {
		return fmt.Errorf("creating request: %w", err)
	}
	req.Header.Set("apikey", c.apiKey)
	req.Header.Set("Authorization", "Bearer "+c.apiKey)
	req.Header.Set("Accept", "application/json")
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
		req.Header.Set("Prefer", "return=minimal")
	}

	resp, err := c.client.Do(req)
	if err != nil {
		return fmt.Errorf("%s %s: %w", method, path, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		respBody, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		return &APIError{Method: method, Path: path, StatusCode: resp.StatusCode, Body: strings.TrimSpace(string(respBody))}
	}

	if out == nil {
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("decoding response: %w", err)
	}
	return nil
}

// rowID accepts both numeric and text primary keys.
type rowID string

func (id *rowID) UnmarshalJSON(data []byte) error {
	if len(data) > 0 && data[0] == '"' {
		var s string
		if err := json.Unmarshal(data, &s); err != nil {
			return err
		}
		*id = rowID(s)
		return nil
	}
	if string(data) == "null" {
		return fmt.Errorf("null id")
	}
	*id = rowID(data)
	return nil
}
