package middleware

import (
	"bytes"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"io"
	"log/slog"
	"net/http"
	"strings"

	"github.com/ferpoks/wabridge/internal/api/response"
)

// SignatureHeader holds the hex HMAC-SHA256 of the raw webhook body.
const SignatureHeader = "X-Signature"

const maxWebhookBody = 1 << 20

// Signature verifies SignatureHeader against secret before the body reaches
// next. An empty secret disables verification.
func Signature(secret string) func(http.Handler) http.Handler {
	key := []byte(secret)
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if len(key) == 0 {
				next.ServeHTTP(w, r)
				return
			}

			body, err := io.ReadAll(io.LimitReader(r.Body, maxWebhookBody))
			if err != nil {
				response.Error(w, http.StatusBadRequest,
					"INVALID_REQUEST", "Could not read request body", nil)
				return
			}
			r.Body.Close()

			if !validSignature(key, body, r.Header.Get(SignatureHeader)) {
				slog.Warn("webhook signature rejected",
					"remote_addr", r.RemoteAddr,
					"request_id", GetRequestID(r),
				)
				response.Error(w, http.StatusUnauthorized,
					"INVALID_SIGNATURE", "Webhook signature mismatch", nil)
				return
			}

			r.Body = io.NopCloser(bytes.NewReader(body))
			next.ServeHTTP(w, r)
		})
	}
}

func validSignature(key, body []byte, got string) bool {
	got = strings.TrimSpace(got)
	if got == "" {
		return false
	}
	sig, err := hex.DecodeString(strings.ToLower(got))
	if err != nil {
		return false
	}
	mac := hmac.New(sha256.New, key)
	mac.Write(body)
	return hmac.Equal(sig, mac.Sum(nil))
}

// Sign returns the hex signature a sender would put in SignatureHeader.
func Sign(secret string, body []byte) string {
	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write(body)
	return hex.EncodeToString(mac.Sum(nil))
}
