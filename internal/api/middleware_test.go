package api

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var okHandler = http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
	w.WriteHeader(http.StatusOK)
})

func TestAuthMiddleware(t *testing.T) {
	tests := []struct {
		name   string
		apiKey string
		method string
		path   string
		header string
		want   int
	}{
		{"no key configured", "", http.MethodGet, "/v1/strategies", "", http.StatusOK},
		{"health is public", "secret123", http.MethodGet, "/health", "", http.StatusOK},
		{"metrics is public", "secret123", http.MethodGet, "/metrics", "", http.StatusOK},
		{"preflight skips auth", "secret123", http.MethodOptions, "/v1/strategies", "", http.StatusOK},
		{"missing header", "secret123", http.MethodGet, "/v1/prices/current", "", http.StatusUnauthorized},
		{"wrong key", "secret123", http.MethodGet, "/v1/prices/current", "Bearer wrong_key", http.StatusUnauthorized},
		{"non-bearer scheme", "secret123", http.MethodGet, "/v1/prices/current", "Basic secret123", http.StatusUnauthorized},
		{"key prefix only", "secret123", http.MethodPost, "/v1/risk/emergency-stop", "Bearer secret", http.StatusUnauthorized},
		{"correct key", "secret123", http.MethodPost, "/v1/strategies", "Bearer secret123", http.StatusOK},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s := &Server{apiKey: tt.apiKey}
			req := httptest.NewRequest(tt.method, tt.path, nil)
			if tt.header != "" {
				req.Header.Set("Authorization", tt.header)
			}
			rr := httptest.NewRecorder()
			s.authMiddleware(okHandler).ServeHTTP(rr, req)
			assert.Equal(t, tt.want, rr.Code)
		})
	}
}

func TestCorsMiddleware(t *testing.T) {
	rr := httptest.NewRecorder()
	corsMiddleware(okHandler, "https://grid.example.com").
		ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/v1/prices/current", nil))
	assert.Equal(t, "https://grid.example.com", rr.Header().Get("Access-Control-Allow-Origin"))
	assert.Contains(t, rr.Header().Get("Access-Control-Allow-Headers"), "Authorization")
	assert.Contains(t, rr.Header().Get("Access-Control-Allow-Methods"), "DELETE")

	rr = httptest.NewRecorder()
	corsMiddleware(okHandler, "").
		ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/v1/prices/current", nil))
	assert.Equal(t, "*", rr.Header().Get("Access-Control-Allow-Origin"))
}

func TestCorsMiddleware_Preflight(t *testing.T) {
	inner := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		t.Fatal("inner handler should not be called for OPTIONS")
	})
	rr := httptest.NewRecorder()
	corsMiddleware(inner, "*").ServeHTTP(rr, httptest.NewRequest(http.MethodOptions, "/v1/alerts", nil))
	assert.Equal(t, http.StatusOK, rr.Code)
}

func TestParseLimit(t *testing.T) {
	cases := []struct {
		query    string
		deflt    int
		expected int
	}{
		{"", 100, 100},
		{"?limit=50", 100, 50},
		{"?limit=0", 100, 100},
		{"?limit=-5", 100, 100},
		{"?limit=abc", 100, 100},
		{"?limit=2000", 100, maxQueryLimit},
		{"?limit=1", 50, 1},
	}
	for _, tc := range cases {
		req := httptest.NewRequest(http.MethodGet, "/v1/prices/history"+tc.query, nil)
		assert.Equal(t, tc.expected, parseLimit(req, tc.deflt), "query %q", tc.query)
	}
}

func TestDecodeBody(t *testing.T) {
	type body struct {
		Pairs []string `json:"pairs"`
	}

	var v body
	req := httptest.NewRequest(http.MethodPost, "/", strings.NewReader(`{"pairs":["ETH/USDC"]}`))
	require.NoError(t, decodeBody(req, &v, false))
	assert.Equal(t, []string{"ETH/USDC"}, v.Pairs)

	req = httptest.NewRequest(http.MethodPost, "/", strings.NewReader(""))
	assert.NoError(t, decodeBody(req, &v, true))
	req = httptest.NewRequest(http.MethodPost, "/", strings.NewReader(""))
	assert.Error(t, decodeBody(req, &v, false))

	req = httptest.NewRequest(http.MethodPost, "/", strings.NewReader(`{"pairs":[],"extra":1}`))
	err := decodeBody(req, &v, false)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "invalid JSON body")
}
