package handlers

import (
	"bytes"
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"io"
	"net"
	"net/http"
	"strings"
	"time"

	"github.com/justinas/alice"
	"github.com/patrickmn/go-cache"
	"github.com/rs/zerolog/log"

	"zapdesk/internal/services"
)

type contextKey string

const (
	ctxClientIP contextKey = "clientIP"
	ctxRawBody  contextKey = "rawBody"
)

const maxBodyBytes = 5 << 20

// Middleware holds shared state for the webhook middleware chain: the
// rate-limit counters and the signature secret.
type Middleware struct {
	limiter *cache.Cache
	secret  string
}

func NewMiddleware(secret string) *Middleware {
	return &Middleware{
		limiter: cache.New(5*time.Minute, 10*time.Minute),
		secret:  secret,
	}
}

// Recover turns a handler panic into a 500 instead of killing the server.
func (m *Middleware) Recover(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		defer func() {
			if rec := recover(); rec != nil {
				log.Error().Interface("panic", rec).Str("path", r.URL.Path).Msg("Handler panicked")
				respondError(w, http.StatusInternalServerError, "internal error")
			}
		}()
		next.ServeHTTP(w, r)
	})
}

// ClientIP resolves the caller address, trusting proxy headers first.
func (m *Middleware) ClientIP(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ip := clientIP(r)
		ctx := context.WithValue(r.Context(), ctxClientIP, ip)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

func clientIP(r *http.Request) string {
	if fwd := r.Header.Get("X-Forwarded-For"); fwd != "" {
		parts := strings.Split(fwd, ",")
		return strings.TrimSpace(parts[0])
	}
	if ip := r.Header.Get("X-Real-IP"); ip != "" {
		return ip
	}
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}

// RateLimit enforces a fixed-window per-IP limit for one endpoint scope.
// Limiting happens before the body is read so floods stay cheap.
func (m *Middleware) RateLimit(scope string, limit int, window time.Duration) alice.Constructor {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ip, _ := r.Context().Value(ctxClientIP).(string)
			windowStart := time.Now().Unix() / int64(window.Seconds())
			key := fmt.Sprintf("%s:%s:%d", scope, ip, windowStart)

			if err := m.limiter.Add(key, 1, window); err != nil {
				count, err := m.limiter.IncrementInt(key, 1)
				if err == nil && count > limit {
					log.Warn().Str("scope", scope).Str("ip", ip).Int("count", count).Msg("Rate limit exceeded")
					respondServiceError(w, fmt.Errorf("%w: %s", services.ErrRateLimited, scope))
					return
				}
			}
			next.ServeHTTP(w, r)
		})
	}
}

// CaptureBody reads the request body once and stashes the raw bytes in the
// context, so signature verification and forwarding both see the exact bytes
// the provider sent.
func (m *Middleware) CaptureBody(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		r.Body = http.MaxBytesReader(w, r.Body, maxBodyBytes)
		body, err := io.ReadAll(r.Body)
		if err != nil {
			respondError(w, http.StatusBadRequest, "could not read request body")
			return
		}
		r.Body = io.NopCloser(bytes.NewReader(body))
		ctx := context.WithValue(r.Context(), ctxRawBody, body)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

// VerifySignature checks the HMAC-SHA256 of the raw body against the
// provider's signature header. A missing secret disables verification.
func (m *Middleware) VerifySignature(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if m.secret == "" {
			next.ServeHTTP(w, r)
			return
		}

		sig := r.Header.Get("X-Webhook-Signature")
		if sig == "" {
			sig = r.Header.Get("X-Hub-Signature-256")
		}
		sig = strings.TrimPrefix(sig, "sha256=")
		if sig == "" {
			respondServiceError(w, fmt.Errorf("%w: missing signature", services.ErrUnauthorized))
			return
		}

		body, _ := r.Context().Value(ctxRawBody).([]byte)
		mac := hmac.New(sha256.New, []byte(m.secret))
		mac.Write(body)
		expected := hex.EncodeToString(mac.Sum(nil))

		if !hmac.Equal([]byte(expected), []byte(sig)) {
			log.Warn().Str("path", r.URL.Path).Msg("Webhook signature mismatch")
			respondServiceError(w, fmt.Errorf("%w: signature mismatch", services.ErrUnauthorized))
			return
		}
		next.ServeHTTP(w, r)
	})
}

// RawBody returns the bytes captured by CaptureBody.
func RawBody(r *http.Request) []byte {
	body, _ := r.Context().Value(ctxRawBody).([]byte)
	return body
}
