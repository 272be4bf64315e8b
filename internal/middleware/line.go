package middleware

import (
	"bytes"
	"io"
	"net/http"

	"github.com/rs/zerolog/log"

	"github.com/openclaw/line-agent-relay/internal/audit"
	apperrors "github.com/openclaw/line-agent-relay/internal/errors"
	"github.com/openclaw/line-agent-relay/internal/httputil"
	"github.com/openclaw/line-agent-relay/internal/util"
)

const LineSignatureHeader = "X-Line-Signature"

// LineSignatureMiddleware rejects webhook calls whose X-Line-Signature is not
// base64(HMAC-SHA256(channelSecret, body)). The body is restored for the next
// handler.
type LineSignatureMiddleware struct {
	channelSecret string
}

func NewLineSignatureMiddleware(channelSecret string) *LineSignatureMiddleware {
	return &LineSignatureMiddleware{channelSecret: channelSecret}
}

func (m *LineSignatureMiddleware) Handler(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		signature := r.Header.Get(LineSignatureHeader)
		if signature == "" {
			log.Warn().Msg("line signature middleware: missing signature header")
			audit.LogFromRequest(r, audit.Event{
				Type:    audit.EventSignatureFailure,
				Details: map[string]interface{}{"reason": "missing"},
			})
			httputil.WriteError(w, apperrors.New(apperrors.ErrCodeInvalidSignature, "Missing signature"))
			return
		}

		body, err := io.ReadAll(r.Body)
		if err != nil {
			log.Error().Err(err).Msg("line signature middleware: failed to read body")
			httputil.WriteError(w, apperrors.InvalidInput("body", "unreadable or too large"))
			return
		}
		r.Body = io.NopCloser(bytes.NewReader(body))

		computed := util.HmacSHA256Base64(m.channelSecret, body)
		if !util.ConstantTimeEqual(computed, signature) {
			log.Warn().Int("bodyBytes", len(body)).Msg("line signature middleware: invalid signature")
			audit.LogFromRequest(r, audit.Event{
				Type:    audit.EventSignatureFailure,
				Details: map[string]interface{}{"reason": "mismatch", "bodyBytes": len(body)},
			})
			httputil.WriteError(w, apperrors.InvalidSignature())
			return
		}

		next.ServeHTTP(w, r)
	})
}
