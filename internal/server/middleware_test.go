package server

import (
	"bytes"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"github.com/pendergraft/contradeploy/internal/config"
)

func captureClientIP(mw func(http.Handler) http.Handler, r *http.Request) string {
	var got string
	mw(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		got = ClientIP(r)
	})).ServeHTTP(httptest.NewRecorder(), r)
	return got
}

func TestClientIPMiddleware(t *testing.T) {
	tests := []struct {
		name       string
		trustProxy bool
		remoteAddr string
		xff        string
		xRealIP    string
		want       string
	}{
		{
			name:       "no proxy trust ignores headers",
			remoteAddr: "10.0.0.1:1234",
			xff:        "203.0.113.7",
			want:       "10.0.0.1",
		},
		{
			name:       "trusted proxy uses rightmost untrusted hop",
			trustProxy: true,
			remoteAddr: "10.0.0.1:1234",
			xff:        "198.51.100.1, 203.0.113.7, 10.0.0.2",
			want:       "203.0.113.7",
		},
		{
			name:       "untrusted peer ignores headers",
			trustProxy: true,
			remoteAddr: "198.51.100.9:1234",
			xff:        "203.0.113.7",
			want:       "198.51.100.9",
		},
		{
			name:       "x-real-ip fallback",
			trustProxy: true,
			remoteAddr: "10.0.0.1:1234",
			xRealIP:    "203.0.113.8",
			want:       "203.0.113.8",
		},
		{
			name:       "all hops trusted returns leftmost",
			trustProxy: true,
			remoteAddr: "10.0.0.1:1234",
			xff:        "10.0.0.5, 10.0.0.2",
			want:       "10.0.0.5",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r := httptest.NewRequest(http.MethodGet, "/", nil)
			r.RemoteAddr = tt.remoteAddr
			if tt.xff != "" {
				r.Header.Set("X-Forwarded-For", tt.xff)
			}
			if tt.xRealIP != "" {
				r.Header.Set("X-Real-IP", tt.xRealIP)
			}

			mw := ClientIPMiddleware(tt.trustProxy, []string{"10.0.0.0/8", "192.0.2.1"})
			assert.Equal(t, tt.want, captureClientIP(mw, r))
		})
	}
}

func TestParseCIDRs(t *testing.T) {
	nets := parseCIDRs([]string{"10.0.0.0/8", "192.0.2.1", "::1", "garbage"})
	assert.Len(t, nets, 3)
	assert.True(t, contains(nets, "192.0.2.1"))
	assert.False(t, contains(nets, "192.0.2.2"))
	assert.False(t, contains(nets, "not-an-ip"))
}

func TestRateLimiter_PerIP(t *testing.T) {
	rl := NewRateLimiter(config.RateLimitConfig{RequestsPerMin: 1, BurstSize: 1, CleanupMinutes: 1})
	defer rl.Stop()

	handler := rl.Middleware(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	}))

	do := func(addr string) int {
		r := httptest.NewRequest(http.MethodGet, "/api/v1/deployments", nil)
		r.RemoteAddr = addr
		w := httptest.NewRecorder()
		handler.ServeHTTP(w, r)
		return w.Code
	}

	assert.Equal(t, http.StatusOK, do("192.168.1.1:1"))
	assert.Equal(t, http.StatusTooManyRequests, do("192.168.1.1:2"))
	// Other clients have their own bucket
	assert.Equal(t, http.StatusOK, do("192.168.1.2:1"))
}

func TestRateLimiter_Evict(t *testing.T) {
	rl := NewRateLimiter(config.RateLimitConfig{RequestsPerMin: 60, BurstSize: 1})
	rl.Stop()

	rl.allow("192.168.1.1")
	rl.evict(time.Now().Add(time.Minute))

	rl.mu.Lock()
	defer rl.mu.Unlock()
	assert.Empty(t, rl.visitors)
}

func TestRequestLogger(t *testing.T) {
	var buf bytes.Buffer
	logger := slog.New(slog.NewJSONHandler(&buf, nil))

	handler := RequestLogger(logger)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusTeapot)
		w.Write([]byte("short and stout"))
	}))

	r := httptest.NewRequest(http.MethodGet, "/api/v1/deployments", nil)
	handler.ServeHTTP(httptest.NewRecorder(), r)

	out := buf.String()
	assert.Contains(t, out, `"status":418`)
	assert.Contains(t, out, `"bytes":15`)
	assert.Contains(t, out, `"path":"/api/v1/deployments"`)
}
