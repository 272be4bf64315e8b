package middleware

import (
	"bytes"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/openclaw/line-agent-relay/internal/util"
)

func TestLineSignatureMiddleware(t *testing.T) {
	secret := "channel-secret"
	body := `{"destination":"U0","events":[]}`
	validSignature := util.HmacSHA256Base64(secret, []byte(body))

	t.Run("rejects request without signature header", func(t *testing.T) {
		handler := NewLineSignatureMiddleware(secret).Handler(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			t.Fatal("handler should not be called")
		}))

		req := httptest.NewRequest("POST", "/callback", bytes.NewBufferString(body))
		rec := httptest.NewRecorder()

		handler.ServeHTTP(rec, req)

		assert.Equal(t, http.StatusBadRequest, rec.Code)
		assert.Contains(t, rec.Body.String(), "Missing signature")
	})

	t.Run("rejects request with invalid signature", func(t *testing.T) {
		handler := NewLineSignatureMiddleware(secret).Handler(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			t.Fatal("handler should not be called")
		}))

		req := httptest.NewRequest("POST", "/callback", bytes.NewBufferString(body))
		req.Header.Set(LineSignatureHeader, "aW52YWxpZA==")
		rec := httptest.NewRecorder()

		handler.ServeHTTP(rec, req)

		assert.Equal(t, http.StatusBadRequest, rec.Code)
		assert.Contains(t, rec.Body.String(), "Invalid signature")
	})

	t.Run("rejects signature computed over a different body", func(t *testing.T) {
		handler := NewLineSignatureMiddleware(secret).Handler(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			t.Fatal("handler should not be called")
		}))

		req := httptest.NewRequest("POST", "/callback", bytes.NewBufferString(body+" "))
		req.Header.Set(LineSignatureHeader, validSignature)
		rec := httptest.NewRecorder()

		handler.ServeHTTP(rec, req)

		assert.Equal(t, http.StatusBadRequest, rec.Code)
	})

	t.Run("passes valid request with body intact", func(t *testing.T) {
		var received string
		handler := NewLineSignatureMiddleware(secret).Handler(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			data, _ := io.ReadAll(r.Body)
			received = string(data)
			w.WriteHeader(http.StatusOK)
		}))

		req := httptest.NewRequest("POST", "/callback", bytes.NewBufferString(body))
		req.Header.Set(LineSignatureHeader, validSignature)
		rec := httptest.NewRecorder()

		handler.ServeHTTP(rec, req)

		assert.Equal(t, http.StatusOK, rec.Code)
		assert.Equal(t, body, received)
	})
}
