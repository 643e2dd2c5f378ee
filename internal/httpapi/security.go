package httpapi

import (
	"crypto/hmac"
	"crypto/rand"
	"crypto/sha256"
	"encoding/hex"
	"net/http"
	"net/netip"
	"slices"
	"strconv"
	"strings"
	"sync"
	"time"
)

// csrfGuard issues stateless tokens bound to an hour bucket. A token stays
// valid for the bucket it was minted in and the one after.
type csrfGuard struct {
	secret []byte
	now    func() time.Time
}

func newCSRFGuard() *csrfGuard {
	secret := make([]byte, 32)
	if _, err := rand.Read(secret); err != nil {
		panic("httpapi: read csrf secret: " + err.Error())
	}
	return &csrfGuard{secret: secret, now: time.Now}
}

func (g *csrfGuard) tokenFor(bucket int64) string {
	mac := hmac.New(sha256.New, g.secret)
	mac.Write([]byte(strconv.FormatInt(bucket, 10)))
	return hex.EncodeToString(mac.Sum(nil))
}

func (g *csrfGuard) Token() string {
	return g.tokenFor(g.now().UTC().Truncate(time.Hour).Unix())
}

func (g *csrfGuard) Valid(token string) bool {
	token = strings.TrimSpace(token)
	if token == "" {
		return false
	}
	current := g.now().UTC().Truncate(time.Hour).Unix()
	for _, bucket := range []int64{current, current - 3600} {
		if hmac.Equal([]byte(token), []byte(g.tokenFor(bucket))) {
			return true
		}
	}
	return false
}

// csrfExempt lists the endpoints a client calls before it can hold a token.
var csrfExempt = []string{
	"/api/v1/auth/login",
	"/api/v1/auth/register",
}

func needsCSRF(r *http.Request) bool {
	switch r.Method {
	case http.MethodPost, http.MethodPut, http.MethodPatch, http.MethodDelete:
		return !slices.Contains(csrfExempt, r.URL.Path)
	}
	return false
}

// attemptLimiter is a sliding-window counter keyed by client address.
type attemptLimiter struct {
	mu      sync.Mutex
	max     int
	window  time.Duration
	entries map[string][]time.Time
}

func newAttemptLimiter(max int, window time.Duration) *attemptLimiter {
	if max < 1 {
		max = 1
	}
	if window <= 0 {
		window = time.Minute
	}
	return &attemptLimiter{max: max, window: window, entries: make(map[string][]time.Time)}
}

func (l *attemptLimiter) Allow(key string) bool {
	now := time.Now()
	cutoff := now.Add(-l.window)

	l.mu.Lock()
	defer l.mu.Unlock()

	recent := slices.DeleteFunc(l.entries[key], func(ts time.Time) bool { return !ts.After(cutoff) })
	if len(recent) >= l.max {
		l.entries[key] = recent
		return false
	}
	l.entries[key] = append(recent, now)
	return true
}

func clientKey(r *http.Request) string {
	host := strings.TrimSpace(r.RemoteAddr)
	if host == "" {
		return "unknown"
	}
	if addr, err := netip.ParseAddrPort(host); err == nil {
		return addr.Addr().String()
	}
	if idx := strings.LastIndex(host, ":"); idx > 0 {
		return host[:idx]
	}
	return host
}
