package api

import (
	"bytes"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"testing"

	"github.com/marcus/dealbook/internal/serverdb"
)

// TestHarness wraps a full Server with a real HTTP listener for integration tests.
type TestHarness struct {
	t       *testing.T
	Server  *Server
	Store   *serverdb.ServerDB
	BaseURL string
	client  *http.Client
	httpSrv *httptest.Server
}

// newTestHarness creates a TestHarness with a real HTTP server on a random port.
func newTestHarness(t *testing.T, opts ...func(*Config)) *TestHarness {
	t.Helper()

	dbPath := filepath.Join(t.TempDir(), "docs.db")
	store, err := serverdb.Open(dbPath)
	if err != nil {
		t.Fatalf("open db: %v", err)
	}

	cfg := DefaultConfig()
	cfg.ListenAddr = ":0"
	cfg.DBPath = dbPath
	cfg.RateLimitRead = 100000
	cfg.RateLimitWrite = 100000
	for _, opt := range opts {
		opt(&cfg)
	}

	srv, err := NewServer(cfg, store)
	if err != nil {
		t.Fatalf("create server: %v", err)
	}

	httpSrv := httptest.NewServer(srv.Handler())

	h := &TestHarness{
		t:       t,
		Server:  srv,
		Store:   store,
		BaseURL: httpSrv.URL,
		client:  &http.Client{},
		httpSrv: httpSrv,
	}

	t.Cleanup(func() {
		httpSrv.Close()
		store.Close()
	})

	return h
}

// Do sends an HTTP request with a raw body and optional headers.
// Caller must close resp.Body unless using assertion helpers.
func (h *TestHarness) Do(method, path string, body []byte, headers map[string]string) *http.Response {
	h.t.Helper()

	var reader io.Reader
	if body != nil {
		reader = bytes.NewReader(body)
	}
	req, err := http.NewRequest(method, h.BaseURL+path, reader)
	if err != nil {
		h.t.Fatalf("create request: %v", err)
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	for k, v := range headers {
		req.Header.Set(k, v)
	}

	resp, err := h.client.Do(req)
	if err != nil {
		h.t.Fatalf("do request %s %s: %v", method, path, err)
	}
	return resp
}

// PutDoc writes a document and fails the test unless the server answers 200.
func (h *TestHarness) PutDoc(key, doc string, headers map[string]string) PutResponse {
	h.t.Helper()
	resp := h.Do("PUT", "/v1/docs/"+key, []byte(doc), headers)
	AssertStatus(h.t, resp, http.StatusOK)
	return ReadJSON[PutResponse](h.t, resp)
}

// --- Response assertion helpers ---

// AssertStatus checks the HTTP status code matches expected. Reads and closes the body on failure.
func AssertStatus(t *testing.T, resp *http.Response, expected int) {
	t.Helper()
	if resp.StatusCode != expected {
		body, _ := io.ReadAll(resp.Body)
		resp.Body.Close()
		t.Fatalf("expected status %d, got %d: %s", expected, resp.StatusCode, string(body))
	}
}

// AssertErrorResponse checks the response has the expected status and error code.
func AssertErrorResponse(t *testing.T, resp *http.Response, expectedStatus int, expectedCode string) {
	t.Helper()
	body, _ := io.ReadAll(resp.Body)
	resp.Body.Close()
	if resp.StatusCode != expectedStatus {
		t.Fatalf("expected status %d, got %d: %s", expectedStatus, resp.StatusCode, string(body))
	}
	var errResp ErrorResponse
	if err := json.Unmarshal(body, &errResp); err != nil {
		t.Fatalf("decode error response: %v", err)
	}
	if errResp.Error.Code != expectedCode {
		t.Fatalf("expected error code %q, got %q: %s", expectedCode, errResp.Error.Code, errResp.Error.Message)
	}
}

// ReadJSON decodes a JSON response body into the given type.
func ReadJSON[T any](t *testing.T, resp *http.Response) T {
	t.Helper()
	defer resp.Body.Close()
	var out T
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		t.Fatalf("decode json response: %v", err)
	}
	return out
}
