package chi

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
)

func okHandler() http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
	})
}

func serveAuth(keys []string, path, header string) *httptest.ResponseRecorder {
	handler := BearerAuthMiddleware(keys)(okHandler())
	req := httptest.NewRequest(http.MethodGet, path, http.NoBody)
	if header != "" {
		req.Header.Set("Authorization", header)
	}
	rr := httptest.NewRecorder()
	handler.ServeHTTP(rr, req)
	return rr
}

func TestAuthMiddleware_Disabled(t *testing.T) {
	for _, keys := range [][]string{nil, {"", ""}} {
		if rr := serveAuth(keys, "/v1/fields", ""); rr.Code != http.StatusOK {
			t.Errorf("keys %q: got %d, want %d", keys, rr.Code, http.StatusOK)
		}
	}
}

func TestAuthMiddleware_Rejects(t *testing.T) {
	tests := []struct {
		name   string
		header string
		msg    string
	}{
		{"missing header", "", "missing authorization header"},
		{"basic scheme", "Basic dXNlcjpwYXNz", "authorization header must use Bearer scheme"},
		{"wrong key", "Bearer wrong-key", "invalid api key"},
		{"key prefix", "Bearer secre", "invalid api key"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rr := serveAuth([]string{"secret"}, "/v1/fields", tt.header)
			if rr.Code != http.StatusUnauthorized {
				t.Fatalf("got %d, want %d", rr.Code, http.StatusUnauthorized)
			}
			if rr.Header().Get("WWW-Authenticate") == "" {
				t.Error("missing WWW-Authenticate header")
			}

			var errResp ErrorResponse
			if err := json.NewDecoder(rr.Body).Decode(&errResp); err != nil {
				t.Fatalf("decode error response: %v", err)
			}
			if errResp.Code != CodeUnauthorized || errResp.Message != tt.msg {
				t.Errorf("error = %+v", errResp)
			}
		})
	}
}

func TestAuthMiddleware_MultipleKeys(t *testing.T) {
	for _, key := range []string{"key1", "key2"} {
		if rr := serveAuth([]string{"key1", "key2"}, "/v1/stats", "Bearer "+key); rr.Code != http.StatusOK {
			t.Errorf("key %s: got %d, want %d", key, rr.Code, http.StatusOK)
		}
	}
}

func TestAuthMiddleware_PublicPaths(t *testing.T) {
	for _, path := range []string{"/health", "/metrics"} {
		if rr := serveAuth([]string{"secret"}, path, ""); rr.Code != http.StatusOK {
			t.Errorf("public path %s: got %d, want %d", path, rr.Code, http.StatusOK)
		}
	}
}
