package chi

import (
	"net/http"
	"net/http/httptest"
	"testing"
)

func okHandler() http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
	})
}

func TestBearerAuthMiddleware_Disabled(t *testing.T) {
	h := BearerAuthMiddleware(nil)(okHandler())

	req := httptest.NewRequest("GET", "/v1/evaluations", http.NoBody)
	rr := httptest.NewRecorder()
	h.ServeHTTP(rr, req)

	if rr.Code != http.StatusOK {
		t.Errorf("status = %d, want 200", rr.Code)
	}
}

func TestBearerAuthMiddleware(t *testing.T) {
	h := BearerAuthMiddleware([]string{"secret"})(okHandler())

	tests := []struct {
		name   string
		path   string
		header string
		want   int
	}{
		{"valid key", "/v1/evaluations", "Bearer secret", http.StatusOK},
		{"missing header", "/v1/evaluations", "", http.StatusUnauthorized},
		{"wrong scheme", "/v1/evaluations", "Basic secret", http.StatusUnauthorized},
		{"invalid key", "/v1/evaluations", "Bearer wrong", http.StatusUnauthorized},
		{"health exempt", "/health", "", http.StatusOK},
		{"metrics exempt", "/metrics", "", http.StatusOK},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			req := httptest.NewRequest("GET", tc.path, http.NoBody)
			if tc.header != "" {
				req.Header.Set("Authorization", tc.header)
			}
			rr := httptest.NewRecorder()
			h.ServeHTTP(rr, req)

			if rr.Code != tc.want {
				t.Errorf("status = %d, want %d", rr.Code, tc.want)
			}
		})
	}
}
