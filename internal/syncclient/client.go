package syncclient

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/marcus/dealbook/internal/docstore"
)

// DefaultMaxAttempts bounds how many times Transaction re-runs after losing a race.
const DefaultMaxAttempts = 5

// Sentinel errors for common HTTP error classes. 404 and 412 map to the docstore sentinels.
var (
	ErrRateLimited = errors.New("rate limited")
	ErrTooLarge    = errors.New("document too large")
)

// Client is an HTTP client for the dealbook document store server. It implements
// docstore.Store.
type Client struct {
	BaseURL     string
	ClientID    string
	HTTP        *http.Client
	MaxAttempts int
}

// New creates a new store client.
func New(baseURL, clientID string) *Client {
	return &Client{
		BaseURL:     strings.TrimRight(baseURL, "/"),
		ClientID:    clientID,
		HTTP:        &http.Client{Timeout: 30 * time.Second},
		MaxAttempts: DefaultMaxAttempts,
	}
}

// DocResponse is the response from GET /v1/docs/{key}.
type DocResponse struct {
	Doc       json.RawMessage `json:"doc"`
	Revision  int64           `json:"revision"`
	UpdatedAt time.Time       `json:"updated_at"`
}

// PutResponse is the response from PUT /v1/docs/{key}.
type PutResponse struct {
	Revision  int64     `json:"revision"`
	UpdatedAt time.Time `json:"updated_at"`
}

// WriteEntry is one committed write reported by GET /v1/docs/{key}/writes.
type WriteEntry struct {
	ID        int64     `json:"id"`
	Key       string    `json:"key"`
	Revision  int64     `json:"revision"`
	Writer    string    `json:"writer"`
	Bytes     int       `json:"bytes"`
	CreatedAt time.Time `json:"created_at"`
}

// HealthResponse is the response from GET /healthz.
type HealthResponse struct {
	Status string `json:"status"`
}

// HealthCheck hits the /healthz endpoint to verify server reachability.
func (c *Client) HealthCheck(ctx context.Context) (*HealthResponse, error) {
	var resp HealthResponse
	if _, err := c.doRequest(ctx, "GET", "/healthz", nil, nil, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

// Get fetches the document stored under key.
func (c *Client) Get(ctx context.Context, key string) (*docstore.Record, error) {
	if !docstore.ValidKey(key) {
		return nil, docstore.ErrInvalidKey
	}
	var resp DocResponse
	if _, err := c.doRequest(ctx, "GET", docPath(key), nil, nil, &resp); err != nil {
		return nil, err
	}
	return &docstore.Record{Doc: resp.Doc, Revision: resp.Revision, UpdatedAt: resp.UpdatedAt}, nil
}

// Set writes doc unconditionally.
func (c *Client) Set(ctx context.Context, key string, doc json.RawMessage) error {
	_, err := c.Put(ctx, key, doc, 0, false)
	return err
}

// Put writes doc. ifMatch > 0 requires that revision; ifAbsent requires no document.
func (c *Client) Put(ctx context.Context, key string, doc json.RawMessage, ifMatch int64, ifAbsent bool) (*PutResponse, error) {
	if !docstore.ValidKey(key) {
		return nil, docstore.ErrInvalidKey
	}
	headers := map[string]string{}
	if ifMatch > 0 {
		headers["If-Match"] = `"` + strconv.FormatInt(ifMatch, 10) + `"`
	}
	if ifAbsent {
		headers["If-None-Match"] = "*"
	}
	var resp PutResponse
	if _, err := c.doRequest(ctx, "PUT", docPath(key), doc, headers, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

// Transaction reads key, runs fn and writes its result conditioned on the revision read.
// When another writer got there first the whole cycle repeats, up to MaxAttempts times.
func (c *Client) Transaction(ctx context.Context, key string, fn func(tx *docstore.Tx) error) error {
	attempts := c.MaxAttempts
	if attempts <= 0 {
		attempts = DefaultMaxAttempts
	}
	for attempt := 1; attempt <= attempts; attempt++ {
		current, err := c.Get(ctx, key)
		if err != nil && !errors.Is(err, docstore.ErrNotFound) {
			return err
		}
		tx := docstore.NewTx(current)
		if err := fn(tx); err != nil {
			return err
		}
		doc, ok := tx.Pending()
		if !ok {
			return nil
		}
		_, err = c.Put(ctx, key, doc, tx.Revision(), current == nil)
		if errors.Is(err, docstore.ErrPreconditionFailed) {
			continue
		}
		return err
	}
	return fmt.Errorf("%w: %s after %d attempts", docstore.ErrTooManyRetries, key, attempts)
}

// Writes lists recent writes of key, newest first.
func (c *Client) Writes(ctx context.Context, key string, limit int) ([]WriteEntry, error) {
	path := docPath(key) + "/writes"
	if limit > 0 {
		path += "?limit=" + strconv.Itoa(limit)
	}
	var resp struct {
		Writes []WriteEntry `json:"writes"`
	}
	if _, err := c.doRequest(ctx, "GET", path, nil, nil, &resp); err != nil {
		return nil, err
	}
	return resp.Writes, nil
}

func docPath(key string) string {
	return "/v1/docs/" + url.PathEscape(key)
}

// --- HTTP helpers ---

// APIError is the standard error body from the server.
type APIError struct {
	Status  int    `json:"-"`
	Code    string `json:"code"`
	Message string `json:"message"`
}

func (e *APIError) Error() string {
	if e.Message != "" {
		return fmt.Sprintf("%s: %s", e.Code, e.Message)
	}
	return e.Code
}

func (c *Client) doRequest(ctx context.Context, method, path string, body []byte, headers map[string]string, result any) (*http.Response, error) {
	var bodyReader io.Reader
	if body != nil {
		bodyReader = bytes.NewReader(body)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.BaseURL+path, bodyReader)
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if c.ClientID != "" {
		req.Header.Set("X-Client-ID", c.ClientID)
	}
	for k, v := range headers {
		req.Header.Set(k, v)
	}

	resp, err := c.HTTP.Do(req)
	if err != nil {
		return nil, fmt.Errorf("http request: %w", err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("read response: %w", err)
	}

	if resp.StatusCode >= 400 {
		var env struct {
			Error APIError `json:"error"`
		}
		apiErr := &APIError{Status: resp.StatusCode, Code: http.StatusText(resp.StatusCode)}
		if json.Unmarshal(respBody, &env) == nil && env.Error.Code != "" {
			apiErr.Code = env.Error.Code
			apiErr.Message = env.Error.Message
		}
		switch resp.StatusCode {
		case http.StatusNotFound:
			return resp, fmt.Errorf("%w: %s", docstore.ErrNotFound, apiErr.Message)
		case http.StatusPreconditionFailed:
			return resp, fmt.Errorf("%w: %s", docstore.ErrPreconditionFailed, apiErr.Message)
		case http.StatusTooManyRequests:
			return resp, fmt.Errorf("%w: %s", ErrRateLimited, apiErr.Message)
		case http.StatusRequestEntityTooLarge:
			return resp, fmt.Errorf("%w: %s", ErrTooLarge, apiErr.Message)
		default:
			return resp, apiErr
		}
	}

	if result != nil && len(respBody) > 0 {
		if err := json.Unmarshal(respBody, result); err != nil {
			return resp, fmt.Errorf("unmarshal response: %w", err)
		}
	}

	return resp, nil
}
