package handlers

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/justinas/alice"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func okHandler() http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		respondSuccess(w, nil)
	})
}

func sign(secret, body string) string {
	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write([]byte(body))
	return hex.EncodeToString(mac.Sum(nil))
}

func TestVerifySignatureAccepts(t *testing.T) {
	mw := NewMiddleware("topsecret")
	h := alice.New(mw.CaptureBody, mw.VerifySignature).Then(okHandler())

	body := `{"event":"message"}`
	req := httptest.NewRequest(http.MethodPost, "/webhooks/events", strings.NewReader(body))
	req.Header.Set("X-Webhook-Signature", sign("topsecret", body))
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestVerifySignatureHubHeaderWithPrefix(t *testing.T) {
	mw := NewMiddleware("topsecret")
	h := alice.New(mw.CaptureBody, mw.VerifySignature).Then(okHandler())

	body := `{"event":"message"}`
	req := httptest.NewRequest(http.MethodPost, "/webhooks/events", strings.NewReader(body))
	req.Header.Set("X-Hub-Signature-256", "sha256="+sign("topsecret", body))
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestVerifySignatureRejects(t *testing.T) {
	mw := NewMiddleware("topsecret")
	h := alice.New(mw.CaptureBody, mw.VerifySignature).Then(okHandler())

	for name, header := range map[string]string{
		"missing": "",
		"wrong":   sign("othersecret", `{"event":"message"}`),
	} {
		t.Run(name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodPost, "/webhooks/events", strings.NewReader(`{"event":"message"}`))
			if header != "" {
				req.Header.Set("X-Webhook-Signature", header)
			}
			rec := httptest.NewRecorder()
			h.ServeHTTP(rec, req)
			assert.Equal(t, http.StatusUnauthorized, rec.Code)
			assert.Contains(t, rec.Body.String(), "unauthorized")
		})
	}
}

func TestVerifySignatureDisabledWithoutSecret(t *testing.T) {
	mw := NewMiddleware("")
	h := alice.New(mw.CaptureBody, mw.VerifySignature).Then(okHandler())

	req := httptest.NewRequest(http.MethodPost, "/webhooks/events", strings.NewReader(`{}`))
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestRateLimitPerIP(t *testing.T) {
	mw := NewMiddleware("")
	h := alice.New(mw.ClientIP, mw.RateLimit("messages", 3, time.Minute)).Then(okHandler())

	do := func(ip string) *httptest.ResponseRecorder {
		req := httptest.NewRequest(http.MethodPost, "/webhooks/events", strings.NewReader(`{}`))
		req.Header.Set("X-Forwarded-For", ip)
		rec := httptest.NewRecorder()
		h.ServeHTTP(rec, req)
		return rec
	}

	for i := 0; i < 3; i++ {
		require.Equal(t, http.StatusOK, do("10.0.0.1").Code)
	}
	rec := do("10.0.0.1")
	assert.Equal(t, http.StatusTooManyRequests, rec.Code)
	assert.Contains(t, rec.Body.String(), "rate limited")
	// A different caller still gets through.
	assert.Equal(t, http.StatusOK, do("10.0.0.2").Code)
}

func TestRateLimitScopesAreIndependent(t *testing.T) {
	mw := NewMiddleware("")
	messages := alice.New(mw.ClientIP, mw.RateLimit("messages", 1, time.Minute)).Then(okHandler())
	status := alice.New(mw.ClientIP, mw.RateLimit("status", 1, time.Minute)).Then(okHandler())

	do := func(h http.Handler) int {
		req := httptest.NewRequest(http.MethodPost, "/", strings.NewReader(`{}`))
		req.Header.Set("X-Real-IP", "10.0.0.1")
		rec := httptest.NewRecorder()
		h.ServeHTTP(rec, req)
		return rec.Code
	}

	require.Equal(t, http.StatusOK, do(messages))
	require.Equal(t, http.StatusTooManyRequests, do(messages))
	// The status scope has its own counter.
	assert.Equal(t, http.StatusOK, do(status))
}

func TestClientIPResolution(t *testing.T) {
	req := httptest.NewRequest(http.MethodPost, "/", nil)
	req.RemoteAddr = "192.0.2.7:1234"
	assert.Equal(t, "192.0.2.7", clientIP(req))

	req.Header.Set("X-Real-IP", "198.51.100.9")
	assert.Equal(t, "198.51.100.9", clientIP(req))

	req.Header.Set("X-Forwarded-For", "203.0.113.5, 198.51.100.9")
	assert.Equal(t, "203.0.113.5", clientIP(req))
}

func TestRecoverMiddleware(t *testing.T) {
	mw := NewMiddleware("")
	h := alice.New(mw.Recover).Then(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		panic("boom")
	}))

	req := httptest.NewRequest(http.MethodPost, "/", nil)
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusInternalServerError, rec.Code)
}
