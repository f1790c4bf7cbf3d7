package middleware

import (
	"math"
	"net"
	"net/http"
	"strconv"
	"strings"
	"time"

	"vidgen/internal/ratelimit"
)

// ClientIP returns the first valid address in X-Forwarded-For, else the
// remote host.
func ClientIP(r *http.Request) string {
	if r == nil {
		return ""
	}
	if xf := r.Header.Get("X-Forwarded-For"); xf != "" {
		for _, part := range strings.Split(xf, ",") {
			ip := strings.TrimSpace(part)
			if ip == "" {
				continue
			}
			if net.ParseIP(ip) != nil {
				return ip
			}
		}
	}

	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err == nil {
		if net.ParseIP(host) != nil {
			return host
		}
	} else if net.ParseIP(r.RemoteAddr) != nil {
		return r.RemoteAddr
	}

	return r.RemoteAddr
}

// RateLimitIdentity keys admission on the authenticated user, falling back to
// the caller's network address.
func RateLimitIdentity(r *http.Request) string {
	if caller, ok := CallerFromContext(r.Context()); ok && caller.UserID != "" {
		return UserIdentity(caller.UserID)
	}
	return "ip:" + ClientIP(r)
}

// UserIdentity is the admission key for a known user, whoever submits for them.
func UserIdentity(userID string) string {
	return "user:" + userID
}

// WriteRateLimitHeaders sets the X-RateLimit-* headers for d, plus
// Retry-After when the request was denied.
func WriteRateLimitHeaders(w http.ResponseWriter, d ratelimit.Decision, now time.Time) {
	if d.Limit <= 0 {
		return
	}
	reset := ResetSeconds(d, now)
	h := w.Header()
	h.Set("X-RateLimit-Limit", strconv.Itoa(d.Limit))
	h.Set("X-RateLimit-Remaining", strconv.Itoa(d.Remaining))
	h.Set("X-RateLimit-Reset", strconv.Itoa(reset))
	if !d.Allowed {
		h.Set("Retry-After", strconv.Itoa(reset))
	}
}

// ResetSeconds is the whole number of seconds until the window resets,
// rounded up.
func ResetSeconds(d ratelimit.Decision, now time.Time) int {
	return int(math.Ceil(d.RetryAfter(now).Seconds()))
}
