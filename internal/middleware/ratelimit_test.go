package middleware

import (
	"net"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"vidgen/internal/domain"
	"vidgen/internal/ratelimit"
)

func TestClientIP(t *testing.T) {
	tests := []struct {
		name       string
		header     string
		remoteAddr string
		want       string
	}{
		{
			name:       "single ip",
			header:     "203.0.113.1",
			remoteAddr: "198.51.100.10:1234",
			want:       "203.0.113.1",
		},
		{
			name:       "multiple ips use first",
			header:     " 203.0.113.1 , 198.51.100.2 ",
			remoteAddr: "198.51.100.10:1234",
			want:       "203.0.113.1",
		},
		{
			name:       "invalid forwarded falls back",
			header:     "invalid",
			remoteAddr: "198.51.100.10:1234",
			want:       "198.51.100.10",
		},
		{
			name:       "empty forwarded uses remote host",
			header:     "",
			remoteAddr: "198.51.100.10:1234",
			want:       "198.51.100.10",
		},
		{
			name:       "ipv6 forwarded",
			header:     "2001:db8::1",
			remoteAddr: net.JoinHostPort("2001:db8::2", "443"),
			want:       "2001:db8::1",
		},
		{
			name:       "ipv6 remote fallback",
			header:     "invalid",
			remoteAddr: net.JoinHostPort("2001:db8::2", "443"),
			want:       "2001:db8::2",
		},
		{
			name:       "remote without port",
			header:     "invalid",
			remoteAddr: "203.0.113.1",
			want:       "203.0.113.1",
		},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodGet, "/", nil)
			req.RemoteAddr = tc.remoteAddr
			if tc.header != "" {
				req.Header.Set("X-Forwarded-For", tc.header)
			}
			if got := ClientIP(req); got != tc.want {
				t.Fatalf("ClientIP() = %q, want %q", got, tc.want)
			}
		})
	}
}

func TestRateLimitIdentity(t *testing.T) {
	req := httptest.NewRequest(http.MethodPost, "/jobs", nil)
	req.RemoteAddr = "198.51.100.10:1234"
	if got := RateLimitIdentity(req); got != "ip:198.51.100.10" {
		t.Fatalf("anonymous identity = %q", got)
	}
	req = req.WithContext(ContextWithCaller(req.Context(), domain.Caller{UserID: "u1"}))
	if got := RateLimitIdentity(req); got != "user:u1" {
		t.Fatalf("authenticated identity = %q", got)
	}
	if got := UserIdentity("u1"); got != RateLimitIdentity(req) {
		t.Fatalf("user identity %q differs from request identity", got)
	}
}

func TestWriteRateLimitHeaders(t *testing.T) {
	now := time.Date(2025, 3, 1, 12, 0, 30, 500_000_000, time.UTC)
	d := ratelimit.Decision{Allowed: false, Limit: 3, Remaining: 0, ResetAt: time.Date(2025, 3, 1, 12, 1, 0, 0, time.UTC)}

	rec := httptest.NewRecorder()
	WriteRateLimitHeaders(rec, d, now)
	want := map[string]string{
		"X-RateLimit-Limit":     "3",
		"X-RateLimit-Remaining": "0",
		"X-RateLimit-Reset":     "30",
		"Retry-After":           "30",
	}
	for k, v := range want {
		if got := rec.Header().Get(k); got != v {
			t.Errorf("%s = %q, want %q", k, got, v)
		}
	}

	rec = httptest.NewRecorder()
	d.Allowed, d.Remaining = true, 2
	WriteRateLimitHeaders(rec, d, now)
	if rec.Header().Get("Retry-After") != "" {
		t.Fatalf("Retry-After set on admitted request")
	}
	if rec.Header().Get("X-RateLimit-Remaining") != "2" {
		t.Fatalf("remaining header = %q", rec.Header().Get("X-RateLimit-Remaining"))
	}
}
