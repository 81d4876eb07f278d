// Package rest is the client for the hosted backend service. The
// service exposes a row-oriented data API under /rest/v1 and a token
// auth API under /auth/v1; every failure body carries a single
// human-readable message which is surfaced verbatim.
package rest

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"github.com/trackfit/trackfit/internal/adapter/backend"
	"github.com/trackfit/trackfit/internal/domain/metric"
)

const metricsTable = "metrics"

type Client struct {
	baseURL string
	apiKey  string
	http    *http.Client
	logger  *slog.Logger
}

var _ backend.MetricBackend = (*Client)(nil)
var _ backend.AuthBackend = (*Client)(nil)

func NewClient(baseURL, apiKey string, logger *slog.Logger) *Client {
	return &Client{
		baseURL: baseURL,
		apiKey:  apiKey,
		http:    &http.Client{Timeout: 10 * time.Second},
		logger:  logger,
	}
}

// List queries all entries for the owner and kind, ordered by date
// descending. The bearer token travels with the request so the remote
// row-level policy scopes the result set.
func (c *Client) List(ctx context.Context, ownerID string, kind metric.Kind) ([]metric.Entry, error) {
	query := url.Values{}
	query.Set("owner_id", "eq."+ownerID)
	query.Set("kind", "eq."+string(kind))
	query.Set("order", "date.desc,id.desc")

	req, err := c.newRequest(ctx, http.MethodGet, "/rest/v1/"+metricsTable+"?"+query.Encode(), nil)
	if err != nil {
		return nil, err
	}

	var entries []metric.Entry
	if err := c.do(req, &entries); err != nil {
		return nil, err
	}
	return entries, nil
}

// Insert creates one entry and returns the created row including the
// identifier the service assigned.
func (c *Client) Insert(ctx context.Context, e metric.Entry) (metric.Entry, error) {
	body := map[string]any{
		"kind":     e.Kind,
		"value":    e.Value,
		"date":     e.Date,
		"owner_id": e.OwnerID,
	}

	req, err := c.newRequest(ctx, http.MethodPost, "/rest/v1/"+metricsTable, body)
	if err != nil {
		return metric.Entry{}, err
	}
	req.Header.Set("Prefer", "return=representation")
	req.Header.Set("Accept", "application/vnd.pgrst.object+json")

	var created metric.Entry
	if err := c.do(req, &created); err != nil {
		return metric.Entry{}, err
	}
	return created, nil
}

// Delete removes one entry by identifier. Whether the acting user may
// do so is the remote policy's call; a row the policy hides reports a
// not-found failure.
func (c *Client) Delete(ctx context.Context, id int64) error {
	query := url.Values{}
	query.Set("id", "eq."+strconv.FormatInt(id, 10))

	req, err := c.newRequest(ctx, http.MethodDelete, "/rest/v1/"+metricsTable+"?"+query.Encode(), nil)
	if err != nil {
		return err
	}
	req.Header.Set("Prefer", "return=representation")
	req.Header.Set("Accept", "application/vnd.pgrst.object+json")

	var deleted metric.Entry
	return c.do(req, &deleted)
}

func (c *Client) newRequest(ctx context.Context, method, path string, body any) (*http.Request, error) {
	var reader io.Reader
	if body != nil {
		encoded, err := json.Marshal(body)
		if err != nil {
			return nil, err
		}
		reader = bytes.NewReader(encoded)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, reader)
	if err != nil {
		return nil, err
	}
	req.Header.Set("apikey", c.apiKey)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if token := backend.TokenFrom(ctx); token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	return req, nil
}

func (c *Client) do(req *http.Request, out any) error {
	resp, err := c.http.Do(req)
	if err != nil {
		c.logger.Error("backend request failed", "method", req.Method, "url", req.URL.Path, "error", err)
		return &backend.Error{Message: "backend unreachable"}
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return decodeError(resp)
	}

	if out == nil || resp.StatusCode == http.StatusNoContent {
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return &backend.Error{Message: "malformed backend response"}
	}
	return nil
}

// decodeError surfaces the service's own message when it sends one.
func decodeError(resp *http.Response) error {
	var remote backend.Error
	if err := json.NewDecoder(resp.Body).Decode(&remote); err == nil && remote.Message != "" {
		return &remote
	}
	return backend.Errorf("backend returned %s", resp.Status)
}

// withBearer forces a specific token instead of the context one.
func withBearer(req *http.Request, token string) *http.Request {
	req.Header.Set("Authorization", "Bearer "+token)
	return req
}
