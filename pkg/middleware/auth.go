package middleware

import (
	"crypto/subtle"
	"log/slog"
	"net/http"
	"strings"
)

// CronSecretHeader is the alternative header schedulers use when they cannot set Authorization.
const CronSecretHeader = "X-Cron-Secret"

// RequireSecret rejects requests that do not carry secret as a bearer token or in
// the X-Cron-Secret header. An empty secret disables the check, which config only
// allows in development.
func RequireSecret(secret string, logger *slog.Logger) func(next http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		if secret == "" {
			logger.Warn("shared secret not configured, trigger endpoints are unauthenticated")
			return next
		}
		fn := func(w http.ResponseWriter, r *http.Request) {
			if !validSecret(r, secret) {
				logger.Warn("rejected unauthorized request",
					slog.String("method", r.Method),
					slog.String("path", r.URL.Path),
					slog.String("remote_addr", r.RemoteAddr),
				)
				w.Header().Set("WWW-Authenticate", `Bearer realm="triggers"`)
				http.Error(w, "Unauthorized", http.StatusUnauthorized)
				return
			}
			next.ServeHTTP(w, r)
		}
		return http.HandlerFunc(fn)
	}
}

func validSecret(r *http.Request, secret string) bool {
	candidate := r.Header.Get(CronSecretHeader)
	if auth := r.Header.Get("Authorization"); candidate == "" && auth != "" {
		scheme, token, ok := strings.Cut(auth, " ")
		if !ok || !strings.EqualFold(scheme, "Bearer") {
			return false
		}
		candidate = strings.TrimSpace(token)
	}
	if candidate == "" {
		return false
	}
	return subtle.ConstantTimeCompare([]byte(candidate), []byte(secret)) == 1
}
