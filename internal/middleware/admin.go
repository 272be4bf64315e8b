package middleware

import (
	"net/http"

	"github.com/rs/zerolog/log"

	"github.com/openclaw/line-agent-relay/internal/audit"
	apperrors "github.com/openclaw/line-agent-relay/internal/errors"
	"github.com/openclaw/line-agent-relay/internal/httputil"
	"github.com/openclaw/line-agent-relay/internal/util"
)

const AdminUsername = "admin"

// AdminAuthMiddleware guards the admin API with HTTP basic auth against a
// bcrypt hash of the admin password.
type AdminAuthMiddleware struct {
	passwordHash string
	limiter      *AttemptLimiter
}

// NewAdminAuthMiddleware checks credentials against passwordHash. limiter
// may be nil; otherwise clients are refused once they exceed its failed
// attempts, keyed on RemoteAddr as resolved by chi's RealIP middleware.
func NewAdminAuthMiddleware(passwordHash string, limiter *AttemptLimiter) *AdminAuthMiddleware {
	return &AdminAuthMiddleware{passwordHash: passwordHash, limiter: limiter}
}

func (m *AdminAuthMiddleware) Handler(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ip := r.RemoteAddr
		if m.limiter != nil && m.limiter.Blocked(ip) {
			w.Header().Set("Retry-After", m.limiter.RetryAfter())
			writeJSON(w, http.StatusTooManyRequests, map[string]string{
				"error": "Too many attempts. Please try again later.",
			})
			return
		}

		username, password, ok := r.BasicAuth()
		if !ok {
			unauthorized(w, "Missing credentials")
			return
		}

		if !util.ConstantTimeEqual(username, AdminUsername) || !util.CheckPasswordHash(password, m.passwordHash) {
			log.Warn().Str("username", username).Msg("admin auth failed")
			if m.limiter != nil {
				m.limiter.RecordFailure(ip)
			}
			audit.LogFromRequest(r, audit.Event{
				Type:    audit.EventAdminAuthFailure,
				Details: map[string]interface{}{"path": r.URL.Path},
			})
			unauthorized(w, "Invalid credentials")
			return
		}

		if m.limiter != nil {
			m.limiter.Reset(ip)
		}

		audit.LogFromRequest(r, audit.Event{
			Type:    audit.EventAdminAuthSuccess,
			Details: map[string]interface{}{"path": r.URL.Path},
		})
		next.ServeHTTP(w, r)
	})
}

func unauthorized(w http.ResponseWriter, message string) {
	w.Header().Set("WWW-Authenticate", `Basic realm="admin", charset="UTF-8"`)
	httputil.WriteError(w, apperrors.Unauthorized(message))
}
