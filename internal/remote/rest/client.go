// Package rest implements remote.Store against a hosted PostgREST-style
// backend (table CRUD over HTTPS) with a realtime websocket channel for
// row-change notifications.
package rest

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/marcus/desk/internal/remote"
)

const restPrefix = "/rest/v1/"

// Client is an HTTP client for the hosted table API.
type Client struct {
	BaseURL string
	APIKey  string
	HTTP    *http.Client

	// Realtime tuning; zero values fall back to defaults.
	HeartbeatInterval time.Duration
	ReconnectMin      time.Duration
	ReconnectMax      time.Duration
	Dialer            Dialer
}

var _ remote.Store = (*Client)(nil)

// New creates a new table API client.
func New(baseURL, apiKey string) *Client {
	return &Client{
		BaseURL: strings.TrimRight(baseURL, "/"),
		APIKey:  apiKey,
		HTTP:    &http.Client{Timeout: 30 * time.Second},
	}
}

// apiError is the standard error body returned by the table API.
type apiError struct {
	Code    string `json:"code"`
	Message string `json:"message"`
	Details string `json:"details"`
	Hint    string `json:"hint"`
}

// FetchAll returns every row of table.
func (c *Client) FetchAll(ctx context.Context, table remote.Table, opts ...remote.FetchOption) ([]json.RawMessage, error) {
	if err := table.Validate(); err != nil {
		return nil, err
	}
	o := remote.ApplyFetchOptions(opts)
	params := url.Values{}
	params.Set("select", o.Columns)
	if o.OrderColumn != "" {
		dir := "desc"
		if o.Ascending {
			dir = "asc"
		}
		params.Set("order", o.OrderColumn+"."+dir)
	}
	if o.Limit > 0 {
		params.Set("limit", strconv.Itoa(o.Limit))
	}

	var rows []json.RawMessage
	if err := c.do(ctx, "fetch", table, http.MethodGet, restPrefix+string(table)+"?"+params.Encode(), nil, nil, &rows); err != nil {
		return nil, err
	}
	return rows, nil
}

// Insert adds a single row.
func (c *Client) Insert(ctx context.Context, table remote.Table, row any) error {
	if err := table.Validate(); err != nil {
		return err
	}
	hdr := http.Header{"Prefer": []string{"return=minimal"}}
	return c.do(ctx, "insert", table, http.MethodPost, restPrefix+string(table), hdr, row, nil)
}

// Upsert replaces rows by primary key.
func (c *Client) Upsert(ctx context.Context, table remote.Table, rows any) error {
	if err := table.Validate(); err != nil {
		return err
	}
	hdr := http.Header{"Prefer": []string{"resolution=merge-duplicates,return=minimal"}}
	return c.do(ctx, "upsert", table, http.MethodPost, restPrefix+string(table)+"?on_conflict=id", hdr, rows, nil)
}

// DeleteAll removes every row whose id differs from excludingID.
func (c *Client) DeleteAll(ctx context.Context, table remote.Table, excludingID string) error {
	if err := table.Validate(); err != nil {
		return err
	}
	params := url.Values{}
	params.Set("id", "neq."+excludingID)
	return c.do(ctx, "delete", table, http.MethodDelete, restPrefix+string(table)+"?"+params.Encode(), nil, nil, nil)
}

// Probe performs a single cheap read against the clients table.
func (c *Client) Probe(ctx context.Context) error {
	_, err := c.FetchAll(ctx, remote.TableClients, remote.Select("id"), remote.Limit(1))
	return err
}

// Close releases idle HTTP connections.
func (c *Client) Close() error {
	c.HTTP.CloseIdleConnections()
	return nil
}

// do executes an authenticated request and classifies failures into the
// remote error taxonomy.
func (c *Client) do(ctx context.Context, op string, table remote.Table, method, path string, hdr http.Header, body, result any) error {
	var bodyReader io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return &remote.ConstraintError{Op: op, Table: table, Message: "marshal request", Err: err}
		}
		bodyReader = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.BaseURL+path, bodyReader)
	if err != nil {
		return &remote.TransportError{Op: op, Table: table, Err: fmt.Errorf("create request: %w", err)}
	}
	for k, vs := range hdr {
		for _, v := range vs {
			req.Header.Add(k, v)
		}
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	req.Header.Set("Accept", "application/json")
	if c.APIKey != "" {
		req.Header.Set("apikey", c.APIKey)
		req.Header.Set("Authorization", "Bearer "+c.APIKey)
	}

	resp, err := c.HTTP.Do(req)
	if err != nil {
		return &remote.TransportError{Op: op, Table: table, Err: err}
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return &remote.TransportError{Op: op, Table: table, Err: fmt.Errorf("read response: %w", err)}
	}

	if resp.StatusCode >= 500 {
		return &remote.TransportError{Op: op, Table: table, Err: fmt.Errorf("HTTP %d: %s", resp.StatusCode, strings.TrimSpace(string(respBody)))}
	}
	if resp.StatusCode >= 400 {
		var apiErr apiError
		_ = json.Unmarshal(respBody, &apiErr)
		ce := &remote.ConstraintError{
			Op:      op,
			Table:   table,
			Code:    apiErr.Code,
			Message: apiErr.Message,
			Details: apiErr.Details,
		}
		if ce.Message == "" {
			ce.Message = fmt.Sprintf("HTTP %d: %s", resp.StatusCode, strings.TrimSpace(string(respBody)))
		}
		if resp.StatusCode == http.StatusUnauthorized || resp.StatusCode == http.StatusForbidden {
			ce.Err = remote.ErrUnauthorized
		}
		return ce
	}

	if result != nil && len(respBody) > 0 {
		if err := json.Unmarshal(respBody, result); err != nil {
			return &remote.ConstraintError{Op: op, Table: table, Message: "unmarshal response", Err: err}
		}
	}

	slog.Debug("remote request", "op", op, "table", table, "status", resp.StatusCode)
	return nil
}
