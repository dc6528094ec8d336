package api

import (
	"net/http"
	"net/http/httptest"
	"testing"
)

func corsRequest(t *testing.T, origins []string, method, origin string) *httptest.ResponseRecorder {
	t.Helper()
	ok := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	})
	req := httptest.NewRequest(method, "/v1/docs/acme", nil)
	if origin != "" {
		req.Header.Set("Origin", origin)
	}
	if method == http.MethodOptions {
		req.Header.Set("Access-Control-Request-Method", http.MethodPut)
	}
	w := httptest.NewRecorder()
	corsMiddleware(origins)(ok).ServeHTTP(w, req)
	return w
}

func TestCORS(t *testing.T) {
	tests := []struct {
		name       string
		origins    []string
		method     string
		origin     string
		wantAllow  string
		wantStatus int
	}{
		{"no origins configured", nil, "GET", "https://crm.example.com", "", http.StatusOK},
		{"no origin header", []string{"https://crm.example.com"}, "GET", "", "", http.StatusOK},
		{"allowed origin", []string{"https://crm.example.com"}, "PUT", "https://crm.example.com", "https://crm.example.com", http.StatusOK},
		{"disallowed origin", []string{"https://crm.example.com"}, "GET", "https://evil.example.com", "", http.StatusOK},
		{"wildcard", []string{"*"}, "GET", "http://localhost:5173", "http://localhost:5173", http.StatusOK},
		{"preflight", []string{"*"}, "OPTIONS", "http://localhost:5173", "http://localhost:5173", http.StatusNoContent},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			w := corsRequest(t, tc.origins, tc.method, tc.origin)
			if got := w.Header().Get("Access-Control-Allow-Origin"); got != tc.wantAllow {
				t.Errorf("allow origin = %q, want %q", got, tc.wantAllow)
			}
			if w.Code != tc.wantStatus {
				t.Errorf("status = %d, want %d", w.Code, tc.wantStatus)
			}
		})
	}
}

func TestCORSPreflightHeaders(t *testing.T) {
	w := corsRequest(t, []string{"https://crm.example.com"}, "OPTIONS", "https://crm.example.com")
	if got := w.Header().Get("Access-Control-Allow-Methods"); got != "GET, PUT, OPTIONS" {
		t.Errorf("allow methods = %q", got)
	}
	if got := w.Header().Get("Access-Control-Allow-Headers"); got == "" {
		t.Error("preflight should list allowed headers")
	}
	if got := w.Header().Get("Access-Control-Expose-Headers"); got != "ETag, X-Request-ID" {
		t.Errorf("expose headers = %q", got)
	}
}

func TestServerCORSFromConfig(t *testing.T) {
	h := newTestHarness(t, func(c *Config) {
		c.CORSAllowedOrigins = []string{"https://crm.example.com"}
	})
	resp := h.Do("OPTIONS", "/v1/docs/acme", nil, map[string]string{
		"Origin":                        "https://crm.example.com",
		"Access-Control-Request-Method": "PUT",
	})
	defer resp.Body.Close()
	AssertStatus(t, resp, http.StatusNoContent)
	if got := resp.Header.Get("Access-Control-Allow-Origin"); got != "https://crm.example.com" {
		t.Fatalf("allow origin = %q", got)
	}
}
