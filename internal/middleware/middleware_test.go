package middleware

import (
	"net/http"
	"net/http/httptest"
	"reflect"
	"strings"
	"testing"
	"time"

	"go.uber.org/zap"
)

var okHandler = http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
	w.WriteHeader(http.StatusOK)
})

func TestContentType(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name        string
		method      string
		body        string
		contentType string
		wantStatus  int
	}{
		{"json body", "POST", `{"a":1}`, "application/json; charset=utf-8", http.StatusOK},
		{"form body", "POST", "username=a", "application/x-www-form-urlencoded", http.StatusOK},
		{"missing content type", "POST", `{"a":1}`, "", http.StatusBadRequest},
		{"unsupported type", "POST", "<x/>", "text/xml", http.StatusUnsupportedMediaType},
		{"bodiless post", "POST", "", "", http.StatusOK},
		{"get ignored", "GET", "", "", http.StatusOK},
	}

	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			var req *http.Request
			if tt.body != "" {
				req = httptest.NewRequest(tt.method, "/api/auth/login", strings.NewReader(tt.body))
			} else {
				req = httptest.NewRequest(tt.method, "/api/auth/signout", nil)
			}
			if tt.contentType != "" {
				req.Header.Set("Content-Type", tt.contentType)
			}
			w := httptest.NewRecorder()
			ContentType(okHandler).ServeHTTP(w, req)

			if w.Code != tt.wantStatus {
				t.Errorf("Expected status %d, got %d", tt.wantStatus, w.Code)
			}
		})
	}
}

func TestParseOrigins(t *testing.T) {
	t.Parallel()

	got := ParseOrigins(" https://app.example.com/ , http://localhost:3000,,https://app.example.com")
	want := []string{"http://localhost:3000", "https://app.example.com"}
	if !reflect.DeepEqual(got, want) {
		t.Errorf("ParseOrigins() = %v, want %v", got, want)
	}
}

func TestCORS(t *testing.T) {
	t.Parallel()

	handler := CORS([]string{"https://app.example.com"}, zap.NewNop())(okHandler)

	tests := []struct {
		name       string
		origin     string
		wantHeader string
	}{
		{"allowed origin", "https://app.example.com", "https://app.example.com"},
		{"disallowed origin", "https://evil.example", ""},
	}

	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			req := httptest.NewRequest(http.MethodOptions, "/api/auth/session", nil)
			req.Header.Set("Origin", tt.origin)
			req.Header.Set("Access-Control-Request-Method", http.MethodPost)
			w := httptest.NewRecorder()
			handler.ServeHTTP(w, req)

			if got := w.Header().Get("Access-Control-Allow-Origin"); got != tt.wantHeader {
				t.Errorf("Access-Control-Allow-Origin = %q, want %q", got, tt.wantHeader)
			}
			if tt.wantHeader != "" && w.Header().Get("Access-Control-Allow-Credentials") != "true" {
				t.Error("Expected credentials to be allowed")
			}
		})
	}
}

func TestRateLimit_Memory(t *testing.T) {
	t.Parallel()

	mw, err := RateLimit("2-M", nil)
	if err != nil {
		t.Fatalf("RateLimit() error: %v", err)
	}
	handler := mw(okHandler)

	codes := make([]int, 0, 3)
	for i := 0; i < 3; i++ {
		req := httptest.NewRequest("POST", "/api/auth/login", nil)
		req.Header.Set("X-Forwarded-For", "203.0.113.7")
		w := httptest.NewRecorder()
		handler.ServeHTTP(w, req)
		codes = append(codes, w.Code)

		if i == 0 && w.Header().Get("X-RateLimit-Limit") != "2" {
			t.Errorf("Expected X-RateLimit-Limit 2, got %q", w.Header().Get("X-RateLimit-Limit"))
		}
	}

	want := []int{http.StatusOK, http.StatusOK, http.StatusTooManyRequests}
	if !reflect.DeepEqual(codes, want) {
		t.Errorf("Status sequence = %v, want %v", codes, want)
	}

	// a different client has its own budget
	req := httptest.NewRequest("POST", "/api/auth/login", nil)
	req.Header.Set("X-Forwarded-For", "198.51.100.1")
	w := httptest.NewRecorder()
	handler.ServeHTTP(w, req)
	if w.Code != http.StatusOK {
		t.Errorf("Expected other client to pass, got %d", w.Code)
	}
}

func TestRateLimit_InvalidRate(t *testing.T) {
	t.Parallel()

	if _, err := RateLimit("lots", nil); err == nil {
		t.Error("Expected error for invalid rate")
	}
}

func TestSecurityHeaders(t *testing.T) {
	t.Parallel()

	w := httptest.NewRecorder()
	SecurityHeaders(true)(okHandler).ServeHTTP(w, httptest.NewRequest("GET", "/", nil))

	for _, h := range []string{"X-Content-Type-Options", "X-Frame-Options", "Content-Security-Policy", "Referrer-Policy"} {
		if w.Header().Get(h) == "" {
			t.Errorf("Expected %s header", h)
		}
	}
	if w.Header().Get("Strict-Transport-Security") != "" {
		t.Error("HSTS must not be set on plain http requests")
	}
	if w.Header().Get("Cache-Control") != "" {
		t.Error("Non-auth responses should keep their own caching policy")
	}

	w = httptest.NewRecorder()
	SecurityHeaders(false)(okHandler).ServeHTTP(w, httptest.NewRequest("GET", "/api/auth/session", nil))
	if got := w.Header().Get("Cache-Control"); got != "no-store" {
		t.Errorf("Expected Cache-Control no-store on auth responses, got %q", got)
	}
}

func TestMaxRequestSize(t *testing.T) {
	t.Parallel()

	req := httptest.NewRequest("POST", "/api/auth/login", strings.NewReader(strings.Repeat("x", 100)))
	w := httptest.NewRecorder()
	MaxRequestSize(10)(okHandler).ServeHTTP(w, req)

	if w.Code != http.StatusRequestEntityTooLarge {
		t.Errorf("Expected 413, got %d", w.Code)
	}
}

func TestTimeout(t *testing.T) {
	t.Parallel()

	slow := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		<-r.Context().Done()
	})

	w := httptest.NewRecorder()
	Timeout(20*time.Millisecond)(slow).ServeHTTP(w, httptest.NewRequest("GET", "/api/auth/session", nil))

	if w.Code != http.StatusServiceUnavailable {
		t.Errorf("Expected 503 on timeout, got %d", w.Code)
	}
	if !strings.Contains(w.Body.String(), "Request timed out") {
		t.Errorf("Unexpected timeout body %q", w.Body.String())
	}
}
