// Package client provides the Supabase REST client the marketplace is
// built on: PostgREST queries, remote procedures, GoTrue auth and object
// storage. Backend failures are normalized into the service error
// taxonomy at this boundary.
package client

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

	svcerr "github.com/unimart/unimart/internal/errors"
)

// Client is a Supabase REST API client. Requests without a session token
// are sent with the configured API key only; per-user requests carry the
// user's session token so row-level security applies.
type Client struct {
	baseURL    string
	apiKey     string
	httpClient *http.Client
	onError    func(code string)
}

// Config holds client configuration.
type Config struct {
	URL        string
	APIKey     string
	HTTPClient *http.Client
	// OnBackendError, when set, is called with the normalized error code
	// of every failed backend call, e.g. to feed a metrics counter.
	OnBackendError func(code string)
}

// New creates a new Supabase client.
func New(cfg Config) (*Client, error) {
	if cfg.URL == "" {
		return nil, fmt.Errorf("URL is required")
	}
	if cfg.APIKey == "" {
		return nil, fmt.Errorf("APIKey is required")
	}

	httpClient := cfg.HTTPClient
	if httpClient == nil {
		httpClient = &http.Client{
			Timeout:   30 * time.Second,
			Transport: NewRetryTransport(nil, DefaultRetryConfig()),
		}
	}

	onError := cfg.OnBackendError
	if onError == nil {
		onError = func(string) {}
	}

	return &Client{
		baseURL:    strings.TrimSuffix(cfg.URL, "/"),
		apiKey:     cfg.APIKey,
		httpClient: httpClient,
		onError:    onError,
	}, nil
}

// BaseURL returns the backend base URL.
func (c *Client) BaseURL() string { return c.baseURL }

// APIKey returns the configured API key.
func (c *Client) APIKey() string { return c.apiKey }

// =============================================================================
// Database Operations (PostgREST)
// =============================================================================

// From starts a query builder for a table.
func (c *Client) From(table string) *QueryBuilder {
	return &QueryBuilder{
		client: c,
		table:  table,
	}
}

// QueryBuilder builds PostgREST queries.
type QueryBuilder struct {
	client      *Client
	table       string
	columns     string
	filters     [][2]string
	orders      []string
	limit       int
	offset      int
	hasRange    bool
	rangeFrom   int
	rangeTo     int
	single      bool
	maybeSingle bool
	accessToken string
}

// Select specifies columns (or embedded resources) to select.
func (q *QueryBuilder) Select(columns string) *QueryBuilder {
	q.columns = columns
	return q
}

// WithToken attaches a user session token so row-level security applies.
func (q *QueryBuilder) WithToken(token string) *QueryBuilder {
	q.accessToken = token
	return q
}

// Eq adds an equality filter.
func (q *QueryBuilder) Eq(column string, value any) *QueryBuilder {
	q.filters = append(q.filters, [2]string{column, fmt.Sprintf("eq.%v", value)})
	return q
}

// Neq adds a not-equal filter.
func (q *QueryBuilder) Neq(column string, value any) *QueryBuilder {
	q.filters = append(q.filters, [2]string{column, fmt.Sprintf("neq.%v", value)})
	return q
}

// Like adds a LIKE filter.
func (q *QueryBuilder) Like(column, pattern string) *QueryBuilder {
	q.filters = append(q.filters, [2]string{column, "like." + pattern})
	return q
}

// Or adds a disjunction of raw PostgREST conditions, e.g.
// "buyer_id.eq.X,seller_id.eq.X".
func (q *QueryBuilder) Or(conditions string) *QueryBuilder {
	q.filters = append(q.filters, [2]string{"or", "(" + conditions + ")"})
	return q
}

// Order adds an ORDER BY clause.
func (q *QueryBuilder) Order(column string, ascending bool) *QueryBuilder {
	dir := "desc"
	if ascending {
		dir = "asc"
	}
	q.orders = append(q.orders, column+"."+dir)
	return q
}

// Limit sets the LIMIT.
func (q *QueryBuilder) Limit(n int) *QueryBuilder {
	q.limit = n
	return q
}

// Offset sets the OFFSET.
func (q *QueryBuilder) Offset(n int) *QueryBuilder {
	q.offset = n
	return q
}

// Range selects rows from..to inclusive, PostgREST pagination style.
func (q *QueryBuilder) Range(from, to int) *QueryBuilder {
	q.hasRange = true
	q.rangeFrom = from
	q.rangeTo = to
	return q
}

// Single expects exactly one row; zero rows is an error.
func (q *QueryBuilder) Single() *QueryBuilder {
	q.single = true
	return q
}

// MaybeSingle expects at most one row; zero rows decodes to nothing.
func (q *QueryBuilder) MaybeSingle() *QueryBuilder {
	q.single = true
	q.maybeSingle = true
	return q
}

func (q *QueryBuilder) queryParams() url.Values {
	params := url.Values{}
	if q.columns != "" {
		params.Set("select", q.columns)
	}
	for _, f := range q.filters {
		params.Add(f[0], f[1])
	}
	if len(q.orders) > 0 {
		params.Set("order", strings.Join(q.orders, ","))
	}
	if q.limit > 0 {
		params.Set("limit", fmt.Sprintf("%d", q.limit))
	}
	if q.offset > 0 {
		params.Set("offset", fmt.Sprintf("%d", q.offset))
	}
	return params
}

func (q *QueryBuilder) tableURL() string {
	reqURL := fmt.Sprintf("%s/rest/v1/%s", q.client.baseURL, q.table)
	if params := q.queryParams(); len(params) > 0 {
		reqURL += "?" + params.Encode()
	}
	return reqURL
}

// Get executes a SELECT and decodes the result into dest. With
// MaybeSingle, an empty result leaves dest untouched and returns nil.
func (q *QueryBuilder) Get(ctx context.Context, dest any) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, q.tableURL(), nil)
	if err != nil {
		return fmt.Errorf("create request: %w", err)
	}

	q.client.setHeaders(req, q.accessToken)
	if q.single {
		req.Header.Set("Accept", "application/vnd.pgrst.object+json")
	}
	if q.hasRange {
		req.Header.Set("Range-Unit", "items")
		req.Header.Set("Range", fmt.Sprintf("%d-%d", q.rangeFrom, q.rangeTo))
	}

	body, err := q.client.do(req)
	if err != nil {
		if q.maybeSingle && svcerr.Is(err, svcerr.CodeNotFound) {
			return nil
		}
		return err
	}

	if dest == nil || len(body) == 0 {
		return nil
	}
	if err := json.Unmarshal(body, dest); err != nil {
		return svcerr.Internal("decode backend response", err)
	}
	return nil
}

// Insert executes an INSERT with return=representation and decodes the
// created row(s) into dest.
func (q *QueryBuilder) Insert(ctx context.Context, data, dest any) error {
	return q.write(ctx, http.MethodPost, data, dest)
}

// Update executes a filtered PATCH and decodes the updated row(s) into dest.
func (q *QueryBuilder) Update(ctx context.Context, data, dest any) error {
	return q.write(ctx, http.MethodPatch, data, dest)
}

// Delete executes a filtered DELETE.
func (q *QueryBuilder) Delete(ctx context.Context) error {
	return q.write(ctx, http.MethodDelete, nil, nil)
}

func (q *QueryBuilder) write(ctx context.Context, method string, data, dest any) error {
	var bodyReader io.Reader
	if data != nil {
		encoded, err := json.Marshal(data)
		if err != nil {
			return fmt.Errorf("marshal data: %w", err)
		}
		bodyReader = bytes.NewReader(encoded)
	}

	req, err := http.NewRequestWithContext(ctx, method, q.tableURL(), bodyReader)
	if err != nil {
		return fmt.Errorf("create request: %w", err)
	}

	q.client.setHeaders(req, q.accessToken)
	if data != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	req.Header.Set("Prefer", "return=representation")
	if q.single {
		req.Header.Set("Accept", "application/vnd.pgrst.object+json")
	}

	body, err := q.client.do(req)
	if err != nil {
		return err
	}
	if dest == nil || len(body) == 0 {
		return nil
	}
	if err := json.Unmarshal(body, dest); err != nil {
		return svcerr.Internal("decode backend response", err)
	}
	return nil
}

// =============================================================================
// RPC (Stored Procedures)
// =============================================================================

// RPC calls a stored procedure and decodes its result into dest.
func (c *Client) RPC(ctx context.Context, fn string, params, dest any) error {
	return c.RPCWithToken(ctx, fn, "", params, dest)
}

// RPCWithToken calls a stored procedure with a user session token so the
// procedure sees the caller's identity.
func (c *Client) RPCWithToken(ctx context.Context, fn, token string, params, dest any) error {
	reqURL := fmt.Sprintf("%s/rest/v1/rpc/%s", c.baseURL, fn)

	var bodyReader io.Reader
	if params != nil {
		data, err := json.Marshal(params)
		if err != nil {
			return fmt.Errorf("marshal params: %w", err)
		}
		bodyReader = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, reqURL, bodyReader)
	if err != nil {
		return fmt.Errorf("create request: %w", err)
	}

	c.setHeaders(req, token)
	if params != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	body, err := c.do(req)
	if err != nil {
		return err
	}
	if dest == nil || len(body) == 0 {
		return nil
	}

	// Procedures occasionally return their JSON doubly encoded.
	if err := json.Unmarshal(body, dest); err != nil {
		var wrapped string
		if err2 := json.Unmarshal(body, &wrapped); err2 == nil {
			if err3 := json.Unmarshal([]byte(wrapped), dest); err3 == nil {
				return nil
			}
		}
		return svcerr.Internal("decode rpc response", err)
	}
	return nil
}

// =============================================================================
// Internal Methods
// =============================================================================

func (c *Client) setHeaders(req *http.Request, accessToken string) {
	req.Header.Set("apikey", c.apiKey)
	token := accessToken
	if token == "" {
		token = c.apiKey
	}
	req.Header.Set("Authorization", "Bearer "+token)
	if req.Header.Get("Accept") == "" {
		req.Header.Set("Accept", "application/json")
	}
}

func (c *Client) do(req *http.Request) ([]byte, error) {
	resp, err := c.httpClient.Do(req)
	if err != nil {
		c.onError(string(svcerr.CodeUnavailable))
		return nil, svcerr.Unavailable("backend request failed", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, 8<<20))
	if err != nil {
		return nil, svcerr.Internal("read backend response", err)
	}

	if resp.StatusCode >= 400 {
		se := svcerr.FromBackend(resp.StatusCode, body)
		c.onError(string(se.Code))
		return nil, se
	}
	return body, nil
}
