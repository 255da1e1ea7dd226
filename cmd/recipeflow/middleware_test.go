package main

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/BaSui01/recipeflow/api/handlers"
	"github.com/BaSui01/recipeflow/config"
	"github.com/BaSui01/recipeflow/internal/ctxkeys"
	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func okHandler() http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte("ok"))
	})
}

// principalEcho 把认证主体写回响应体
func principalEcho() http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		p, _ := ctxkeys.Principal(r.Context())
		w.Write([]byte(p))
	})
}

func errorCode(t *testing.T, body []byte) string {
	t.Helper()
	var resp handlers.ErrorResponse
	require.NoError(t, json.Unmarshal(body, &resp))
	require.NotNil(t, resp.Error)
	return resp.Error.Code
}

func TestSecurityHeaders(t *testing.T) {
	w := httptest.NewRecorder()
	SecurityHeaders()(okHandler()).ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/", nil))

	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "DENY", w.Header().Get("X-Frame-Options"))
	assert.Equal(t, "nosniff", w.Header().Get("X-Content-Type-Options"))
	assert.Equal(t, "strict-origin-when-cross-origin", w.Header().Get("Referrer-Policy"))
	assert.Equal(t, "1; mode=block", w.Header().Get("X-XSS-Protection"))
	assert.Equal(t, "default-src 'self'", w.Header().Get("Content-Security-Policy"))
}

func TestRequestID(t *testing.T) {
	var seen string
	inner := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		seen, _ = ctxkeys.RequestID(r.Context())
	})
	handler := Chain(inner, SecurityHeaders(), RequestID())

	tests := []struct {
		name     string
		incoming string
		keep     bool
	}{
		{"generated", "", false},
		{"client provided", "abc-123_x.y", true},
		{"too long", strings.Repeat("a", maxRequestIDLen+1), false},
		{"illegal characters", "abc\r\nSet-Cookie: x", false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r := httptest.NewRequest(http.MethodGet, "/test", nil)
			if tt.incoming != "" {
				r.Header.Set("X-Request-ID", tt.incoming)
			}
			w := httptest.NewRecorder()
			handler.ServeHTTP(w, r)

			id := w.Header().Get("X-Request-ID")
			assert.NotEmpty(t, id)
			assert.Equal(t, id, seen)
			if tt.keep {
				assert.Equal(t, tt.incoming, id)
			} else {
				assert.NotEqual(t, tt.incoming, id)
			}
			assert.Equal(t, "DENY", w.Header().Get("X-Frame-Options"))
		})
	}
}

func TestRecovery(t *testing.T) {
	panicking := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		panic("boom")
	})
	handler := Chain(panicking, RequestID(), Recovery(zap.NewNop()))

	w := httptest.NewRecorder()
	handler.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/api/v1/chat", nil))

	assert.Equal(t, http.StatusInternalServerError, w.Code)
	assert.Equal(t, "INTERNAL_ERROR", errorCode(t, w.Body.Bytes()))
}

func TestNormalizePath(t *testing.T) {
	tests := map[string]string{
		"/api/v1/chat":       "/api/v1/chat",
		"/api/v1/chat/ws":    "/api/v1/chat/ws",
		"/api/v1/docs/query": "/api/v1/docs/query",
		"/api/v1/turns/42":   "/api/v1/turns/:id",
		"/api/v1/turns/3f2504e0-4f89-11d3-9a0c-0305e82c3301": "/api/v1/turns/:id",
		"/unknown/path": "/unknown/path",
	}
	for in, want := range tests {
		assert.Equal(t, want, normalizePath(in), in)
	}
}

type httpCall struct {
	method, path string
	status       int
	resp         int64
}

type fakeHTTPRecorder struct {
	mu    sync.Mutex
	calls []httpCall
}

func (f *fakeHTTPRecorder) RecordHTTPRequest(method, path string, status int, _ time.Duration, _, responseSize int64) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls = append(f.calls, httpCall{method, path, status, responseSize})
}

func TestMetricsMiddleware(t *testing.T) {
	rec := &fakeHTTPRecorder{}
	inner := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusTeapot)
		w.Write([]byte("short and stout"))
	})

	w := httptest.NewRecorder()
	MetricsMiddleware(rec)(inner).ServeHTTP(w, httptest.NewRequest(http.MethodPost, "/api/v1/turns/17", nil))

	require.Len(t, rec.calls, 1)
	assert.Equal(t, httpCall{http.MethodPost, "/api/v1/turns/:id", http.StatusTeapot, 15}, rec.calls[0])
}

func TestAPIKeyAuth(t *testing.T) {
	handler := APIKeyAuth([]string{"secret-1"}, []string{"/health"}, true, zap.NewNop())(principalEcho())

	tests := []struct {
		name       string
		target     string
		header     string
		wantStatus int
	}{
		{"skip path", "/health", "", http.StatusOK},
		{"header key", "/api/v1/chat", "secret-1", http.StatusOK},
		{"query key", "/api/v1/chat?api_key=secret-1", "", http.StatusOK},
		{"missing key", "/api/v1/chat", "", http.StatusUnauthorized},
		{"wrong key", "/api/v1/chat", "secret-2", http.StatusUnauthorized},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r := httptest.NewRequest(http.MethodGet, tt.target, nil)
			if tt.header != "" {
				r.Header.Set("X-API-Key", tt.header)
			}
			w := httptest.NewRecorder()
			handler.ServeHTTP(w, r)

			assert.Equal(t, tt.wantStatus, w.Code)
			if tt.wantStatus == http.StatusUnauthorized {
				assert.Equal(t, "UNAUTHORIZED", errorCode(t, w.Body.Bytes()))
				return
			}
			if tt.target != "/health" {
				assert.Equal(t, keyFingerprint("secret-1"), w.Body.String())
				assert.NotContains(t, w.Body.String(), "secret-1")
			}
		})
	}
}

func TestJWTAuth(t *testing.T) {
	cfg := config.JWTConfig{Secret: "test-secret", Issuer: "recipeflow", Audience: "chat"}
	handler := JWTAuth(cfg, []string{"/health"}, zap.NewNop())(principalEcho())

	sign := func(claims jwt.MapClaims, secret string) string {
		s, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte(secret))
		require.NoError(t, err)
		return s
	}
	valid := jwt.MapClaims{
		"sub": "user-7", "iss": "recipeflow", "aud": "chat",
		"exp": time.Now().Add(time.Hour).Unix(),
	}
	expired := jwt.MapClaims{
		"sub": "user-7", "iss": "recipeflow", "aud": "chat",
		"exp": time.Now().Add(-time.Hour).Unix(),
	}
	noSubject := jwt.MapClaims{"iss": "recipeflow", "aud": "chat", "exp": time.Now().Add(time.Hour).Unix()}
	wrongIssuer := jwt.MapClaims{"sub": "user-7", "iss": "other", "aud": "chat", "exp": time.Now().Add(time.Hour).Unix()}

	tests := []struct {
		name       string
		auth       string
		wantStatus int
	}{
		{"valid", "Bearer " + sign(valid, "test-secret"), http.StatusOK},
		{"missing header", "", http.StatusUnauthorized},
		{"not bearer", "Basic abc", http.StatusUnauthorized},
		{"bad signature", "Bearer " + sign(valid, "other-secret"), http.StatusUnauthorized},
		{"expired", "Bearer " + sign(expired, "test-secret"), http.StatusUnauthorized},
		{"no subject", "Bearer " + sign(noSubject, "test-secret"), http.StatusUnauthorized},
		{"wrong issuer", "Bearer " + sign(wrongIssuer, "test-secret"), http.StatusUnauthorized},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r := httptest.NewRequest(http.MethodPost, "/api/v1/chat", nil)
			if tt.auth != "" {
				r.Header.Set("Authorization", tt.auth)
			}
			w := httptest.NewRecorder()
			handler.ServeHTTP(w, r)

			assert.Equal(t, tt.wantStatus, w.Code)
			if tt.wantStatus == http.StatusOK {
				assert.Equal(t, "jwt:user-7", w.Body.String())
			}
		})
	}
}

func TestRateLimiter(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	limited := RateLimiter(ctx, 0.001, 2, zap.NewNop())(okHandler())

	send := func(principal, remote string) *httptest.ResponseRecorder {
		r := httptest.NewRequest(http.MethodGet, "/api/v1/chat", nil)
		r.RemoteAddr = remote
		if principal != "" {
			r = r.WithContext(ctxkeys.WithPrincipal(r.Context(), principal))
		}
		w := httptest.NewRecorder()
		limited.ServeHTTP(w, r)
		return w
	}

	assert.Equal(t, http.StatusOK, send("", "10.0.0.1:1000").Code)
	assert.Equal(t, http.StatusOK, send("", "10.0.0.1:1001").Code)
	w := send("", "10.0.0.1:1002")
	assert.Equal(t, http.StatusTooManyRequests, w.Code)
	assert.Equal(t, "RATE_LIMITED", errorCode(t, w.Body.Bytes()))
	assert.Equal(t, "1", w.Header().Get("Retry-After"))

	// 认证主体有独立的配额，与 IP 无关
	assert.Equal(t, http.StatusOK, send("key:abc", "10.0.0.1:1003").Code)
	assert.Equal(t, http.StatusOK, send("", "10.0.0.2:1000").Code)
}

func TestCORS(t *testing.T) {
	t.Run("allowed origin", func(t *testing.T) {
		r := httptest.NewRequest(http.MethodOptions, "/api/v1/chat", nil)
		r.Header.Set("Origin", "https://recipes.example.com")
		w := httptest.NewRecorder()
		CORS([]string{"https://recipes.example.com"})(okHandler()).ServeHTTP(w, r)

		assert.Equal(t, http.StatusNoContent, w.Code)
		assert.Equal(t, "https://recipes.example.com", w.Header().Get("Access-Control-Allow-Origin"))
	})

	t.Run("unknown origin", func(t *testing.T) {
		r := httptest.NewRequest(http.MethodPost, "/api/v1/chat", nil)
		r.Header.Set("Origin", "https://evil.example.com")
		w := httptest.NewRecorder()
		CORS([]string{"https://recipes.example.com"})(okHandler()).ServeHTTP(w, r)

		assert.Equal(t, http.StatusOK, w.Code)
		assert.Empty(t, w.Header().Get("Access-Control-Allow-Origin"))
	})

	t.Run("no origins configured rejects preflight", func(t *testing.T) {
		r := httptest.NewRequest(http.MethodOptions, "/api/v1/chat", nil)
		r.Header.Set("Origin", "https://recipes.example.com")
		w := httptest.NewRecorder()
		CORS(nil)(okHandler()).ServeHTTP(w, r)

		assert.Equal(t, http.StatusForbidden, w.Code)
	})
}
