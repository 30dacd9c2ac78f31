package api

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net"
	"net/http"
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"telegram-tarot-miniapp/internal/infra/logging"
	"telegram-tarot-miniapp/internal/infra/metrics"
	red "telegram-tarot-miniapp/internal/infra/redis"
)

// maxBodyBytes caps request payloads before anything else looks at them.
const maxBodyBytes = 10 << 20

type Middleware func(http.Handler) http.Handler

func Chain(h http.Handler, mws ...Middleware) http.Handler {
	for i := len(mws) - 1; i >= 0; i-- {
		h = mws[i](h)
	}
	return h
}

func TraceID() Middleware {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			tid := uuid.NewString()
			ctx := logging.WithTraceID(r.Context(), tid)
			w.Header().Set("X-Trace-Id", tid)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

func RequestLog(logger *zerolog.Logger) Middleware {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			l := logging.With(r.Context(), logger)
			start := time.Now()
			ww := &respWriter{ResponseWriter: w, status: 200}
			next.ServeHTTP(ww, r)
			elapsed := time.Since(start)
			metrics.ObserveHTTP(r.Method, r.URL.Path, ww.status, elapsed)
			l.Info().
				Str("method", r.Method).
				Str("path", r.URL.Path).
				Int("status", ww.status).
				Dur("duration", elapsed).
				Msg("http_request")
		})
	}
}

type respWriter struct {
	http.ResponseWriter
	status int
}

func (w *respWriter) WriteHeader(status int) {
	w.status = status
	w.ResponseWriter.WriteHeader(status)
}

func Recover(logger *zerolog.Logger) Middleware {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			defer func() {
				if rec := recover(); rec != nil {
					l := logging.With(r.Context(), logger)
					l.Error().Interface("panic", rec).Msg("panic recovered")
					http.Error(w, "internal error", http.StatusInternalServerError)
				}
			}()
			next.ServeHTTP(w, r)
		})
	}
}

func Timeout(d time.Duration) Middleware {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ctx, cancel := context.WithTimeout(r.Context(), d)
			defer cancel()
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// BodyGuard enforces the size cap and JSON content type on mutating
// methods before any handler reads the body.
func BodyGuard() Middleware {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			switch r.Method {
			case http.MethodPost, http.MethodPut, http.MethodPatch:
				if r.ContentLength > maxBodyBytes {
					http.Error(w, "payload too large", http.StatusRequestEntityTooLarge)
					return
				}
				// ContentLength is -1 for chunked bodies, so the type check
				// keys on anything other than an explicitly empty body.
				ct := r.Header.Get("Content-Type")
				if r.ContentLength != 0 && !strings.HasPrefix(ct, "application/json") {
					http.Error(w, "unsupported media type", http.StatusUnsupportedMediaType)
					return
				}
				r.Body = http.MaxBytesReader(w, r.Body, maxBodyBytes)
			}
			next.ServeHTTP(w, r)
		})
	}
}

// RateLimit counts requests against one window per client IP. When
// refundOnSuccess is set, responses below 400 give the slot back (the
// auth window counts failed attempts only). Limiter store failures fail
// open, logged.
func RateLimit(limiter *red.RateLimiter, logger *zerolog.Logger, scope string, limit int, window time.Duration, refundOnSuccess bool) Middleware {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			key := red.ClientKey(scope, clientIP(r))
			allowed, retryAfter, err := limiter.Allow(r.Context(), key, limit, window)
			if err != nil {
				logging.With(r.Context(), logger).Error().Err(err).Str("scope", scope).Msg("rate limiter unavailable, failing open")
				next.ServeHTTP(w, r)
				return
			}
			if !allowed {
				metrics.IncRateLimited(scope)
				w.Header().Set("Retry-After", strconv.Itoa(int(retryAfter.Seconds())+1))
				writeError(w, http.StatusTooManyRequests, "too many requests, slow down")
				return
			}
			if !refundOnSuccess {
				next.ServeHTTP(w, r)
				return
			}
			ww := &respWriter{ResponseWriter: w, status: 200}
			next.ServeHTTP(ww, r)
			if ww.status < 400 {
				if err := limiter.Refund(r.Context(), key); err != nil {
					logging.With(r.Context(), logger).Warn().Err(err).Str("scope", scope).Msg("rate limit refund failed")
				}
			}
		})
	}
}

// SanitizeBody strips NoSQL operator shapes from JSON bodies before
// validation: any object key starting with '$' or containing '.' is
// deleted recursively. Stripping, not rejecting: the cleaned body moves
// on and ordinary field validation decides its fate.
func SanitizeBody(logger *zerolog.Logger) Middleware {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if r.Body == nil || r.ContentLength == 0 || !isMutating(r.Method) {
				next.ServeHTTP(w, r)
				return
			}
			raw, err := io.ReadAll(r.Body)
			if err != nil {
				http.Error(w, "unreadable body", http.StatusBadRequest)
				return
			}
			_ = r.Body.Close()

			auditSuspicious(r, raw, logger)

			cleaned := raw
			var doc any
			if json.Unmarshal(raw, &doc) == nil {
				if stripped, changed := stripOperators(doc); changed {
					if b, err := json.Marshal(stripped); err == nil {
						cleaned = b
						logging.With(r.Context(), logger).Warn().
							Str("path", r.URL.Path).
							Msg("operator keys stripped from request body")
					}
				}
			}

			r.Body = io.NopCloser(bytes.NewReader(cleaned))
			r.ContentLength = int64(len(cleaned))
			next.ServeHTTP(w, r)
		})
	}
}

// stripOperators walks the decoded document and reports whether anything
// was removed.
func stripOperators(doc any) (any, bool) {
	switch v := doc.(type) {
	case map[string]any:
		changed := false
		for k, val := range v {
			if strings.HasPrefix(k, "$") || strings.Contains(k, ".") {
				delete(v, k)
				changed = true
				continue
			}
			if sub, subChanged := stripOperators(val); subChanged {
				v[k] = sub
				changed = true
			}
		}
		return v, changed
	case []any:
		changed := false
		for i, item := range v {
			if sub, subChanged := stripOperators(item); subChanged {
				v[i] = sub
				changed = true
			}
		}
		return v, changed
	default:
		return doc, false
	}
}

var suspiciousPatterns = []*regexp.Regexp{
	regexp.MustCompile(`(?i)\$where`),
	regexp.MustCompile(`(?i)\$ne\b`),
	regexp.MustCompile(`(?i)<script`),
	regexp.MustCompile(`(?i)union\s+select`),
	regexp.MustCompile(`(?i)drop\s+table`),
	regexp.MustCompile(`(?i)javascript:`),
	regexp.MustCompile(`(?i)\bon\w+\s*=`),
}

// auditSuspicious is log-only: blocking is the job of stripping and
// validation.
func auditSuspicious(r *http.Request, body []byte, logger *zerolog.Logger) {
	haystack := r.URL.RawQuery + "\n" + string(body)
	for _, p := range suspiciousPatterns {
		if p.MatchString(haystack) {
			metrics.IncSuspiciousRequest()
			logging.With(r.Context(), logger).Warn().
				Str("pattern", p.String()).
				Str("path", r.URL.Path).
				Str("ip", clientIP(r)).
				Msg("suspicious request payload")
			return
		}
	}
}

func isMutating(method string) bool {
	switch method {
	case http.MethodPost, http.MethodPut, http.MethodPatch:
		return true
	}
	return false
}

func clientIP(r *http.Request) string {
	if fwd := r.Header.Get("X-Forwarded-For"); fwd != "" {
		if i := strings.IndexByte(fwd, ','); i >= 0 {
			return strings.TrimSpace(fwd[:i])
		}
		return strings.TrimSpace(fwd)
	}
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}
