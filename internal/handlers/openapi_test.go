package handlers

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/gorilla/mux"
)

func TestOpenAPIHandler(t *testing.T) {
	t.Parallel()

	h, err := NewOpenAPIHandler()
	if err != nil {
		t.Fatalf("NewOpenAPIHandler() error: %v", err)
	}
	r := mux.NewRouter()
	h.RegisterRoutes(r)

	t.Run("yaml", func(t *testing.T) {
		t.Parallel()
		w := httptest.NewRecorder()
		r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/api/openapi.yaml", nil))
		if w.Code != http.StatusOK {
			t.Fatalf("Expected status 200, got %d", w.Code)
		}
		if !strings.HasPrefix(w.Body.String(), "openapi: 3.0.3") {
			t.Errorf("Unexpected YAML body prefix: %.40s", w.Body.String())
		}
	})

	t.Run("json", func(t *testing.T) {
		t.Parallel()
		w := httptest.NewRecorder()
		r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/api/openapi.json", nil))
		if w.Code != http.StatusOK {
			t.Fatalf("Expected status 200, got %d", w.Code)
		}
		var doc map[string]any
		if err := json.NewDecoder(w.Body).Decode(&doc); err != nil {
			t.Fatalf("Failed to decode JSON document: %v", err)
		}
		paths, ok := doc["paths"].(map[string]any)
		if !ok {
			t.Fatal("Expected paths object")
		}
		for _, p := range []string{"/redirect-after-login", "/api/auth/login", "/api/auth/session", "/myrecipes"} {
			if _, ok := paths[p]; !ok {
				t.Errorf("Expected path %s to be documented", p)
			}
		}
	})
}
