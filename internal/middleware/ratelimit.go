package middleware

import (
	"net"
	"net/http"
	"strconv"
	"sync"
	"time"
)

type window struct {
	count  int
	resets time.Time
}

// sweepThreshold bounds the window map: past it, expired entries are dropped
// on the next request.
const sweepThreshold = 4096

// RateLimit applies a fixed-window per-client limit. Expects RealIP to have
// normalized RemoteAddr upstream.
func RateLimit(limit int, per time.Duration) func(http.Handler) http.Handler {
	var mu sync.Mutex
	windows := make(map[string]*window)

	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			key := clientKey(r)
			now := time.Now()

			mu.Lock()
			if len(windows) > sweepThreshold {
				for k, win := range windows {
					if now.After(win.resets) {
						delete(windows, k)
					}
				}
			}
			win, ok := windows[key]
			if !ok || now.After(win.resets) {
				win = &window{resets: now.Add(per)}
				windows[key] = win
			}
			win.count++
			count, resets := win.count, win.resets
			mu.Unlock()

			if count > limit {
				w.Header().Set("Retry-After", strconv.Itoa(int(time.Until(resets).Seconds())+1))
				http.Error(w, http.StatusText(http.StatusTooManyRequests), http.StatusTooManyRequests)
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

func clientKey(r *http.Request) string {
	if host, _, err := net.SplitHostPort(r.RemoteAddr); err == nil {
		return host
	}
	return r.RemoteAddr
}
