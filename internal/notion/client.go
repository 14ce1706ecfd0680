package notion

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/finbot/finbot/internal/httpclient"
	"github.com/hashicorp/go-retryablehttp"
	"github.com/rs/zerolog/log"
	"github.com/tidwall/gjson"
	"golang.org/x/time/rate"
)

const (
	DefaultBaseURL = "https://api.notion.com/v1"
	DefaultVersion = "2022-06-28"

	pageSize = 100
	maxPages = 50
)

// ErrNotFound is returned by lookups that matched nothing.
var ErrNotFound = errors.New("notion: not found")

// APIError is a non-2xx response from the API.
type APIError struct {
	Status  int    `json:"status"`
	Code    string `json:"code"`
	Message string `json:"message"`
}

func (e *APIError) Error() string {
	if e.Code == "" {
		return fmt.Sprintf("notion: HTTP %d: %s", e.Status, e.Message)
	}
	return fmt.Sprintf("notion: HTTP %d %s: %s", e.Status, e.Code, e.Message)
}

// IsNotFound reports whether err is a 404 from the API or ErrNotFound.
func IsNotFound(err error) bool {
	if errors.Is(err, ErrNotFound) {
		return true
	}
	var apiErr *APIError
	return errors.As(err, &apiErr) && apiErr.Status == http.StatusNotFound
}

// Options configures a Client. Zero values fall back to sensible defaults.
type Options struct {
	Token         string
	Version       string
	BaseURL       string
	Timeout       time.Duration
	MaxAttempts   int
	RetryWaitMin  time.Duration
	RetryWaitMax  time.Duration
	RatePerSecond float64
}

// Client talks to the Notion REST API.
type Client struct {
	http    *retryablehttp.Client
	limiter *rate.Limiter
	baseURL string
	token   string
	version string
}

// NewClient builds a client with bounded retries on transient failures.
func NewClient(opts Options) *Client {
	if opts.BaseURL == "" {
		opts.BaseURL = DefaultBaseURL
	}
	if opts.Version == "" {
		opts.Version = DefaultVersion
	}
	if opts.Timeout <= 0 {
		opts.Timeout = 25 * time.Second
	}
	if opts.MaxAttempts <= 0 {
		opts.MaxAttempts = 3
	}
	if opts.RetryWaitMin <= 0 {
		opts.RetryWaitMin = 500 * time.Millisecond
	}
	if opts.RetryWaitMax <= 0 {
		opts.RetryWaitMax = 4 * time.Second
	}
	if opts.RatePerSecond <= 0 {
		opts.RatePerSecond = 3
	}

	rc := httpclient.New(httpclient.Options{
		Component:    "notion",
		Timeout:      opts.Timeout,
		MaxAttempts:  opts.MaxAttempts,
		RetryWaitMin: opts.RetryWaitMin,
		RetryWaitMax: opts.RetryWaitMax,
	})

	return &Client{
		http:    rc,
		limiter: rate.NewLimiter(rate.Limit(opts.RatePerSecond), 1),
		baseURL: strings.TrimRight(opts.BaseURL, "/"),
		token:   opts.Token,
		version: opts.Version,
	}
}

func (c *Client) do(ctx context.Context, method, path string, body, out any) error {
	if err := c.limiter.Wait(ctx); err != nil {
		return fmt.Errorf("rate limit wait: %w", err)
	}

	var payload any
	if body != nil {
		b, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("marshal %s %s: %w", method, path, err)
		}
		payload = b
	}

	req, err := retryablehttp.NewRequestWithContext(ctx, method, c.baseURL+path, payload)
	if err != nil {
		return fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+c.token)
	req.Header.Set("Notion-Version", c.version)
	req.Header.Set("Content-Type", "application/json")

	start := time.Now()
	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("%s %s: %w", method, path, err)
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("read %s %s: %w", method, path, err)
	}

	log.Debug().
		Str("method", method).
		Str("path", path).
		Int("status", resp.StatusCode).
		Dur("duration", time.Since(start)).
		Msg("notion request")

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return decodeAPIError(resp.StatusCode, data)
	}
	if out == nil {
		return nil
	}
	if err := json.Unmarshal(data, out); err != nil {
		return fmt.Errorf("decode %s %s: %w", method, path, err)
	}
	return nil
}

func decodeAPIError(status int, body []byte) error {
	apiErr := &APIError{Status: status}
	if gjson.ValidBytes(body) {
		r := gjson.ParseBytes(body)
		apiErr.Code = r.Get("code").String()
		apiErr.Message = r.Get("message").String()
	}
	if apiErr.Message == "" {
		apiErr.Message = strings.TrimSpace(string(body))
		if apiErr.Message == "" {
			apiErr.Message = http.StatusText(status)
		}
	}
	return apiErr
}

// Ping checks the token against the current-user endpoint.
func (c *Client) Ping(ctx context.Context) error {
	return c.do(ctx, http.MethodGet, "/users/me", nil, nil)
}

// RetrieveDatabase returns database metadata including its property schema.
func (c *Client) RetrieveDatabase(ctx context.Context, databaseID string) (*Database, error) {
	var db Database
	if err := c.do(ctx, http.MethodGet, "/databases/"+url.PathEscape(databaseID), nil, &db); err != nil {
		return nil, err
	}
	return &db, nil
}

type queryRequest struct {
	Filter      map[string]any `json:"filter,omitempty"`
	Sorts       []Sort         `json:"sorts,omitempty"`
	StartCursor string         `json:"start_cursor,omitempty"`
	PageSize    int            `json:"page_size,omitempty"`
}

type queryResponse struct {
	Results    []Page `json:"results"`
	HasMore    bool   `json:"has_more"`
	NextCursor string `json:"next_cursor"`
}

// Query returns every record matching filter, following continuation cursors until exhausted.
func (c *Client) Query(ctx context.Context, databaseID string, filter map[string]any) ([]Page, error) {
	return c.QuerySorted(ctx, databaseID, filter, nil)
}

// QuerySorted is Query with explicit sort clauses.
func (c *Client) QuerySorted(ctx context.Context, databaseID string, filter map[string]any, sorts []Sort) ([]Page, error) {
	if len(filter) == 0 {
		filter = nil
	}
	req := queryRequest{Filter: filter, Sorts: sorts, PageSize: pageSize}
	path := "/databases/" + url.PathEscape(databaseID) + "/query"

	var pages []Page
	for i := 0; i < maxPages; i++ {
		var resp queryResponse
		if err := c.do(ctx, http.MethodPost, path, req, &resp); err != nil {
			return nil, err
		}
		pages = append(pages, resp.Results...)
		if !resp.HasMore || resp.NextCursor == "" {
			return pages, nil
		}
		req.StartCursor = resp.NextCursor
	}
	log.Warn().Str("database", databaseID).Int("records", len(pages)).Msg("query stopped at page limit")
	return pages, nil
}

// Latest returns the most recently created record.
func (c *Client) Latest(ctx context.Context, databaseID string) (*Page, error) {
	req := queryRequest{
		Sorts:    []Sort{{Timestamp: "created_time", Direction: "descending"}},
		PageSize: 1,
	}
	var resp queryResponse
	if err := c.do(ctx, http.MethodPost, "/databases/"+url.PathEscape(databaseID)+"/query", req, &resp); err != nil {
		return nil, err
	}
	if len(resp.Results) == 0 {
		return nil, ErrNotFound
	}
	return &resp.Results[0], nil
}

// Create adds a record under databaseID. props must already be in wire shape.
func (c *Client) Create(ctx context.Context, databaseID string, props map[string]any) (*Page, error) {
	body := map[string]any{
		"parent":     map[string]any{"database_id": databaseID},
		"properties": props,
	}
	var page Page
	if err := c.do(ctx, http.MethodPost, "/pages", body, &page); err != nil {
		return nil, err
	}
	return &page, nil
}

// Update patches properties on an existing record.
func (c *Client) Update(ctx context.Context, pageID string, props map[string]any) error {
	return c.do(ctx, http.MethodPatch, "/pages/"+url.PathEscape(pageID), map[string]any{"properties": props}, nil)
}

// Archive soft-deletes a record.
func (c *Client) Archive(ctx context.Context, pageID string) error {
	return c.do(ctx, http.MethodPatch, "/pages/"+url.PathEscape(pageID), map[string]any{"archived": true}, nil)
}

// ListTitles returns the title of every record in the database.
func (c *Client) ListTitles(ctx context.Context, databaseID string) ([]string, error) {
	pages, err := c.Query(ctx, databaseID, nil)
	if err != nil {
		return nil, err
	}
	titles := make([]string, 0, len(pages))
	for _, p := range pages {
		if t := p.Title(); t != "" {
			titles = append(titles, t)
		}
	}
	return titles, nil
}

// FindByTitle returns the id of the record whose title best matches name.
func (c *Client) FindByTitle(ctx context.Context, databaseID, name string) (string, error) {
	pages, err := c.Query(ctx, databaseID, nil)
	if err != nil {
		return "", err
	}
	p, ok := MatchTitle(pages, name)
	if !ok {
		return "", fmt.Errorf("%w: %q", ErrNotFound, name)
	}
	return p.ID, nil
}

// MatchTitle picks a record by case-insensitive title. An exact match anywhere in
// the list wins; otherwise the first record where either string contains the other.
func MatchTitle(pages []Page, name string) (Page, bool) {
	want := strings.ToLower(strings.TrimSpace(name))
	if want == "" {
		return Page{}, false
	}
	titles := make([]string, len(pages))
	for i, p := range pages {
		titles[i] = strings.ToLower(strings.TrimSpace(p.Title()))
		if titles[i] == want {
			return p, true
		}
	}
	for i, p := range pages {
		t := titles[i]
		if t == "" {
			continue
		}
		if strings.Contains(t, want) || strings.Contains(want, t) {
			return p, true
		}
	}
	return Page{}, false
}
