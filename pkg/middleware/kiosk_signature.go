package middleware

import (
	"bytes"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"io"
	"net/http"
	"strings"

	"lanedesk/pkg/logger"
)

// KioskSignatureVerification authenticates kiosk-originated requests:
// the kiosk firmware signs the request body with a shared secret and
// sends the digest in X-Kiosk-Signature. Operator consoles authenticate
// upstream and do not carry the header, so only requests that claim to
// be from a kiosk are checked.
func KioskSignatureVerification(appSecret string, log *logger.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			signature := extractKioskSignature(r)
			if signature == "" {
				next.ServeHTTP(w, r)
				return
			}

			body, err := readAndRestoreBody(r)
			if err != nil {
				rejectKioskRequest(w, log, r, "Failed to read request body")
				return
			}

			if !verifyKioskSignature(body, signature, appSecret) {
				rejectKioskRequest(w, log, r, "Invalid kiosk signature")
				return
			}

			next.ServeHTTP(w, r)
		})
	}
}

func extractKioskSignature(r *http.Request) string {
	header := r.Header.Get("X-Kiosk-Signature")
	if signature, found := strings.CutPrefix(header, "sha256="); found {
		return signature
	}
	return header
}

func readAndRestoreBody(r *http.Request) ([]byte, error) {
	body, err := io.ReadAll(r.Body)
	if err != nil {
		return nil, err
	}
	r.Body.Close()
	r.Body = io.NopCloser(bytes.NewBuffer(body))
	return body, nil
}

func verifyKioskSignature(body []byte, receivedSignature, appSecret string) bool {
	mac := hmac.New(sha256.New, []byte(appSecret))
	mac.Write(body)
	expected := hex.EncodeToString(mac.Sum(nil))
	return hmac.Equal([]byte(expected), []byte(receivedSignature))
}

func rejectKioskRequest(w http.ResponseWriter, log *logger.Logger, r *http.Request, reason string) {
	log.Warn("Kiosk signature verification failed",
		"request_id", requestIDFrom(r.Context()),
		"reason", reason,
		"path", r.URL.Path,
		"remote_addr", r.RemoteAddr,
	)

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusUnauthorized)
	_, _ = w.Write([]byte(`{"error":"Unauthorized"}`))
}
