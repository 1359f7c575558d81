package websocket

import (
	"log/slog"
	"net/http"
	"net/url"
	"strings"
)

// OriginPolicy decides which browser origins may open a notification socket.
type OriginPolicy struct {
	AppURL         string
	AllowedOrigins []string
	IsDevelopment  bool
}

// NewCheckOrigin returns a CheckOrigin function for the upgrader.
// It allows empty origins (same-origin / non-browser clients), the app's own
// origin (derived from AppURL) and every entry of AllowedOrigins.
// When IsDevelopment is true, localhost origins are additionally allowed.
func NewCheckOrigin(policy OriginPolicy) func(r *http.Request) bool {
	allowed := make(map[string]struct{}, len(policy.AllowedOrigins)+1)
	if appOrigin := extractOrigin(policy.AppURL); appOrigin != "" {
		allowed[appOrigin] = struct{}{}
	}
	for _, o := range policy.AllowedOrigins {
		if normalized := extractOrigin(strings.TrimSpace(o)); normalized != "" {
			allowed[normalized] = struct{}{}
		}
	}

	return func(r *http.Request) bool {
		origin := r.Header.Get("Origin")

		if origin == "" {
			return true
		}

		if _, ok := allowed[origin]; ok {
			return true
		}

		if policy.IsDevelopment && isLocalhostOrigin(origin) {
			return true
		}

		slog.Warn("WebSocket origin rejected", "origin", origin, "remote_addr", r.RemoteAddr)
		return false
	}
}

func extractOrigin(rawURL string) string {
	u, err := url.Parse(rawURL)
	if err != nil || u.Host == "" {
		return ""
	}
	return u.Scheme + "://" + u.Host
}

func isLocalhostOrigin(origin string) bool {
	u, err := url.Parse(origin)
	if err != nil {
		return false
	}
	host := u.Hostname()
	return host == "localhost" || host == "127.0.0.1"
}
