package middleware

import (
	"net"
	"net/http"
	"strings"

	"github.com/mssola/useragent"

	"attribute-change-control/backend/internal/audit"
)

// Origin attaches the caller's IP and a browser/OS summary to the request context for audit rows.
func Origin(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ua := r.UserAgent()
		o := audit.Origin{
			IP:        ClientIP(r),
			Client:    ClientSummary(ua),
			UserAgent: ua,
		}
		next.ServeHTTP(w, r.WithContext(audit.WithOrigin(r.Context(), o)))
	})
}

// ClientIP returns the client IP from X-Forwarded-For, X-Real-IP, or the remote address, or "unknown".
func ClientIP(r *http.Request) string {
	if s := strings.TrimSpace(r.Header.Get("X-Forwarded-For")); s != "" {
		if i := strings.Index(s, ","); i > 0 {
			s = strings.TrimSpace(s[:i])
		}
		return s
	}
	if s := strings.TrimSpace(r.Header.Get("X-Real-IP")); s != "" {
		return s
	}
	if r.RemoteAddr != "" {
		if host, _, err := net.SplitHostPort(r.RemoteAddr); err == nil {
			return host
		}
		return r.RemoteAddr
	}
	return "unknown"
}

// ClientSummary reduces a User-Agent header to "browser/os", e.g. "Firefox/Linux", or "bot" for crawlers.
func ClientSummary(userAgent string) string {
	if strings.TrimSpace(userAgent) == "" {
		return ""
	}
	ua := useragent.New(userAgent)
	if ua.Bot() {
		return "bot"
	}
	browser, _ := ua.Browser()
	os := ua.OS()
	switch {
	case browser == "" && os == "":
		return "unknown"
	case os == "":
		return browser
	case browser == "":
		return os
	}
	summary := browser + "/" + os
	if ua.Mobile() {
		summary += " (mobile)"
	}
	return summary
}
