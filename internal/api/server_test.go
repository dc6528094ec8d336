package api

import (
	"io"
	"net/http"
	"strings"
	"testing"
)

func TestHealthz(t *testing.T) {
	h := newTestHarness(t)
	resp := h.Do("GET", "/healthz", nil, nil)
	AssertStatus(t, resp, http.StatusOK)
	body := ReadJSON[map[string]string](t, resp)
	if body["status"] != "ok" {
		t.Fatalf("status: got %q, want ok", body["status"])
	}
}

func TestGetMissingDoc(t *testing.T) {
	h := newTestHarness(t)
	resp := h.Do("GET", "/v1/docs/nobody", nil, nil)
	AssertErrorResponse(t, resp, http.StatusNotFound, ErrCodeNotFound)
}

func TestPutThenGet(t *testing.T) {
	h := newTestHarness(t)
	put := h.PutDoc("alice", `{"categories":{"deals":[]}}`, nil)
	if put.Revision != 1 {
		t.Fatalf("revision: got %d, want 1", put.Revision)
	}

	resp := h.Do("GET", "/v1/docs/alice", nil, nil)
	AssertStatus(t, resp, http.StatusOK)
	if got := resp.Header.Get("ETag"); got != `"1"` {
		t.Fatalf("etag: got %q, want \"1\"", got)
	}
	doc := ReadJSON[DocResponse](t, resp)
	if doc.Revision != 1 || !strings.Contains(string(doc.Doc), "deals") {
		t.Fatalf("doc = %+v", doc)
	}
	if doc.UpdatedAt.IsZero() {
		t.Fatal("updated_at not set")
	}
}

func TestGetNotModified(t *testing.T) {
	h := newTestHarness(t)
	h.PutDoc("alice", `{}`, nil)
	resp := h.Do("GET", "/v1/docs/alice", nil, map[string]string{"If-None-Match": `"1"`})
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusNotModified {
		t.Fatalf("status: got %d, want 304", resp.StatusCode)
	}
}

func TestPutIfMatch(t *testing.T) {
	h := newTestHarness(t)
	h.PutDoc("alice", `{"v":1}`, nil)

	resp := h.Do("PUT", "/v1/docs/alice", []byte(`{"v":2}`), map[string]string{"If-Match": `"5"`})
	AssertErrorResponse(t, resp, http.StatusPreconditionFailed, ErrCodePreconditionFailed)

	put := h.PutDoc("alice", `{"v":2}`, map[string]string{"If-Match": `"1"`})
	if put.Revision != 2 {
		t.Fatalf("revision: got %d, want 2", put.Revision)
	}

	if snap := h.Server.metrics.Snapshot(); snap.WriteConflicts != 1 || snap.DocWrites != 2 {
		t.Fatalf("metrics = %+v", snap)
	}
}

func TestPutIfNoneMatch(t *testing.T) {
	h := newTestHarness(t)
	h.PutDoc("alice", `{}`, map[string]string{"If-None-Match": "*"})

	resp := h.Do("PUT", "/v1/docs/alice", []byte(`{}`), map[string]string{"If-None-Match": "*"})
	AssertErrorResponse(t, resp, http.StatusPreconditionFailed, ErrCodePreconditionFailed)
}

func TestPutBadIfMatch(t *testing.T) {
	h := newTestHarness(t)
	resp := h.Do("PUT", "/v1/docs/alice", []byte(`{}`), map[string]string{"If-Match": "nope"})
	AssertErrorResponse(t, resp, http.StatusBadRequest, ErrCodeBadRequest)
}

func TestPutRejectsNonObject(t *testing.T) {
	h := newTestHarness(t)
	for _, body := range []string{`[1,2]`, `"str"`, `{bad`, `null`} {
		resp := h.Do("PUT", "/v1/docs/alice", []byte(body), nil)
		AssertErrorResponse(t, resp, http.StatusBadRequest, ErrCodeInvalidDocument)
	}
}

func TestPutTooLarge(t *testing.T) {
	h := newTestHarness(t, func(c *Config) { c.MaxDocBytes = 64 })
	big := `{"x":"` + strings.Repeat("a", 200) + `"}`
	resp := h.Do("PUT", "/v1/docs/alice", []byte(big), nil)
	AssertErrorResponse(t, resp, http.StatusRequestEntityTooLarge, ErrCodeTooLarge)
}

func TestListWrites(t *testing.T) {
	h := newTestHarness(t)
	h.PutDoc("alice", `{"syncMeta":{"lastUpdatedBy":"dev-a"}}`, nil)
	h.PutDoc("alice", `{"syncMeta":{"lastUpdatedBy":"dev-b"}}`, nil)

	resp := h.Do("GET", "/v1/docs/alice/writes?limit=1", nil, nil)
	AssertStatus(t, resp, http.StatusOK)
	out := ReadJSON[WritesResponse](t, resp)
	if len(out.Writes) != 1 || out.Writes[0].Writer != "dev-b" || out.Writes[0].Revision != 2 {
		t.Fatalf("writes = %+v", out.Writes)
	}

	resp = h.Do("GET", "/v1/docs/alice/writes?limit=zero", nil, nil)
	AssertErrorResponse(t, resp, http.StatusBadRequest, ErrCodeBadRequest)
}

func TestRequestIDEchoed(t *testing.T) {
	h := newTestHarness(t)
	resp := h.Do("GET", "/healthz", nil, map[string]string{"X-Request-ID": "abc123"})
	defer resp.Body.Close()
	if got := resp.Header.Get("X-Request-ID"); got != "abc123" {
		t.Fatalf("request id: got %q, want abc123", got)
	}

	resp2 := h.Do("GET", "/healthz", nil, nil)
	defer resp2.Body.Close()
	if got := resp2.Header.Get("X-Request-ID"); len(got) != 36 {
		t.Fatalf("generated request id = %q, want a uuid", got)
	}
}

func TestMetricsEndpoints(t *testing.T) {
	h := newTestHarness(t)
	h.PutDoc("alice", `{}`, nil)
	resp := h.Do("GET", "/v1/docs/missing", nil, nil)
	resp.Body.Close()

	resp = h.Do("GET", "/metricz", nil, nil)
	AssertStatus(t, resp, http.StatusOK)
	snap := ReadJSON[MetricsSnapshot](t, resp)
	if snap.Requests < 2 || snap.ClientErrors < 1 || snap.DocWrites != 1 {
		t.Fatalf("metricz = %+v", snap)
	}

	resp = h.Do("GET", "/metrics", nil, nil)
	AssertStatus(t, resp, http.StatusOK)
	body, _ := io.ReadAll(resp.Body)
	resp.Body.Close()
	for _, want := range []string{"dealbook_store_http_requests_total", `dealbook_store_document_writes_total{result="ok"} 1`} {
		if !strings.Contains(string(body), want) {
			t.Fatalf("/metrics missing %q", want)
		}
	}
}

func TestNewServerNilStore(t *testing.T) {
	if _, err := NewServer(DefaultConfig(), nil); err == nil {
		t.Fatal("expected error for nil store")
	}
}

func TestLoadConfigEnv(t *testing.T) {
	t.Setenv("DEALBOOK_STORE_LISTEN_ADDR", ":9999")
	t.Setenv("DEALBOOK_STORE_DB_PATH", "/tmp/x.db")
	t.Setenv("DEALBOOK_STORE_SHUTDOWN_TIMEOUT", "5s")
	t.Setenv("DEALBOOK_STORE_RATE_LIMIT_WRITE", "7")
	t.Setenv("DEALBOOK_STORE_RATE_LIMIT_READ", "-1")
	t.Setenv("DEALBOOK_STORE_MAX_DOC_BYTES", "1024")
	t.Setenv("DEALBOOK_STORE_CORS_ORIGINS", "https://a.example, ,https://b.example")

	cfg := LoadConfig()
	if cfg.ListenAddr != ":9999" || cfg.DBPath != "/tmp/x.db" {
		t.Fatalf("cfg = %+v", cfg)
	}
	if cfg.ShutdownTimeout.String() != "5s" {
		t.Fatalf("shutdown timeout: %v", cfg.ShutdownTimeout)
	}
	if cfg.RateLimitWrite != 7 {
		t.Fatalf("write limit: got %d, want 7", cfg.RateLimitWrite)
	}
	if cfg.RateLimitRead != DefaultConfig().RateLimitRead {
		t.Fatalf("negative read limit should keep default, got %d", cfg.RateLimitRead)
	}
	if cfg.MaxDocBytes != 1024 {
		t.Fatalf("max doc bytes: got %d", cfg.MaxDocBytes)
	}
	if len(cfg.CORSAllowedOrigins) != 2 || cfg.CORSAllowedOrigins[1] != "https://b.example" {
		t.Fatalf("cors origins: %v", cfg.CORSAllowedOrigins)
	}
}
