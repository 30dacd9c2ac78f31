//go:build !integration

package api_test

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/rs/zerolog"

	"telegram-tarot-miniapp/internal/infra/api"
	red "telegram-tarot-miniapp/internal/infra/redis"
)

func testLogger() *zerolog.Logger {
	l := zerolog.New(io.Discard)
	return &l
}

// fakeRedis is an in-memory counter store for rate limiter tests.
type fakeRedis struct {
	mu     sync.Mutex
	counts map[string]int64
	ttls   map[string]time.Duration
	err    error // when set, every call fails
}

func newFakeRedis() *fakeRedis {
	return &fakeRedis{counts: make(map[string]int64), ttls: make(map[string]time.Duration)}
}

func (f *fakeRedis) Ping(ctx context.Context) error { return f.err }

func (f *fakeRedis) Incr(ctx context.Context, key string) (int64, error) {
	if f.err != nil {
		return 0, f.err
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	f.counts[key]++
	return f.counts[key], nil
}

func (f *fakeRedis) Decr(ctx context.Context, key string) (int64, error) {
	if f.err != nil {
		return 0, f.err
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	f.counts[key]--
	return f.counts[key], nil
}

func (f *fakeRedis) Expire(ctx context.Context, key string, ttl time.Duration) error {
	if f.err != nil {
		return f.err
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	f.ttls[key] = ttl
	return nil
}

func (f *fakeRedis) TTL(ctx context.Context, key string) (time.Duration, error) {
	if f.err != nil {
		return 0, f.err
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.ttls[key], nil
}

func (f *fakeRedis) Del(ctx context.Context, keys ...string) error { return f.err }
func (f *fakeRedis) Close() error                                  { return nil }

func TestSanitizeBody(t *testing.T) {
	var seen map[string]any
	inner := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		seen = nil
		_ = json.NewDecoder(r.Body).Decode(&seen)
		w.WriteHeader(http.StatusOK)
	})
	h := api.SanitizeBody(testLogger())(inner)

	t.Run("operator keys are stripped before the handler", func(t *testing.T) {
		body := `{"question":"will I win","filter":{"$ne":null},"a.b":"dotted","nested":{"deep":{"$where":"1"}}}`
		req := httptest.NewRequest(http.MethodPost, "/api/readings/1", strings.NewReader(body))
		req.Header.Set("Content-Type", "application/json")
		rec := httptest.NewRecorder()
		h.ServeHTTP(rec, req)

		if seen["question"] != "will I win" {
			t.Errorf("benign field lost: %v", seen)
		}
		if _, ok := seen["a.b"]; ok {
			t.Error("dotted key should be stripped")
		}
		filter, _ := seen["filter"].(map[string]any)
		if _, ok := filter["$ne"]; ok {
			t.Error("$ne key should be stripped")
		}
		nested, _ := seen["nested"].(map[string]any)
		deep, _ := nested["deep"].(map[string]any)
		if _, ok := deep["$where"]; ok {
			t.Error("nested $where key should be stripped")
		}
	})

	t.Run("clean body passes through unchanged", func(t *testing.T) {
		body := `{"spreadType":"yesno","question":"ok?"}`
		req := httptest.NewRequest(http.MethodPost, "/api/readings/1", strings.NewReader(body))
		req.Header.Set("Content-Type", "application/json")
		rec := httptest.NewRecorder()
		h.ServeHTTP(rec, req)

		if seen["spreadType"] != "yesno" || seen["question"] != "ok?" {
			t.Errorf("body altered: %v", seen)
		}
	})

	t.Run("GET bodies are not touched", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodGet, "/api/readings/1", nil)
		rec := httptest.NewRecorder()
		h.ServeHTTP(rec, req)
		if rec.Code != http.StatusOK {
			t.Errorf("status = %d", rec.Code)
		}
	})
}

func TestRateLimit(t *testing.T) {
	ok := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	})

	t.Run("requests beyond the limit get 429 with Retry-After", func(t *testing.T) {
		limiter := red.NewRateLimiter(newFakeRedis())
		h := api.RateLimit(limiter, testLogger(), "test", 5, time.Minute, false)(ok)

		for i := 1; i <= 8; i++ {
			req := httptest.NewRequest(http.MethodGet, "/", nil)
			req.RemoteAddr = "10.0.0.1:1234"
			rec := httptest.NewRecorder()
			h.ServeHTTP(rec, req)

			if i <= 5 && rec.Code != http.StatusOK {
				t.Fatalf("request %d: status %d, want 200", i, rec.Code)
			}
			if i > 5 {
				if rec.Code != http.StatusTooManyRequests {
					t.Fatalf("request %d: status %d, want 429", i, rec.Code)
				}
				if rec.Header().Get("Retry-After") == "" {
					t.Error("429 should carry Retry-After")
				}
			}
		}
	})

	t.Run("windows are per client IP", func(t *testing.T) {
		limiter := red.NewRateLimiter(newFakeRedis())
		h := api.RateLimit(limiter, testLogger(), "test", 1, time.Minute, false)(ok)

		for _, ip := range []string{"10.0.0.1:1", "10.0.0.2:1", "10.0.0.3:1"} {
			req := httptest.NewRequest(http.MethodGet, "/", nil)
			req.RemoteAddr = ip
			rec := httptest.NewRecorder()
			h.ServeHTTP(rec, req)
			if rec.Code != http.StatusOK {
				t.Errorf("first request from %s got %d", ip, rec.Code)
			}
		}
	})

	t.Run("refund keeps successful requests out of the budget", func(t *testing.T) {
		store := newFakeRedis()
		limiter := red.NewRateLimiter(store)
		h := api.RateLimit(limiter, testLogger(), "auth", 2, time.Minute, true)(ok)

		// Many successful requests against a limit of 2: all pass because
		// each success is refunded.
		for i := 0; i < 6; i++ {
			req := httptest.NewRequest(http.MethodPost, "/", strings.NewReader("{}"))
			req.RemoteAddr = "10.0.0.9:1"
			rec := httptest.NewRecorder()
			h.ServeHTTP(rec, req)
			if rec.Code != http.StatusOK {
				t.Fatalf("successful request %d got %d", i, rec.Code)
			}
		}
	})

	t.Run("store failure fails open", func(t *testing.T) {
		store := newFakeRedis()
		store.err = errors.New("connection refused")
		limiter := red.NewRateLimiter(store)
		h := api.RateLimit(limiter, testLogger(), "test", 1, time.Minute, false)(ok)

		req := httptest.NewRequest(http.MethodGet, "/", nil)
		rec := httptest.NewRecorder()
		h.ServeHTTP(rec, req)
		if rec.Code != http.StatusOK {
			t.Fatalf("limiter outage should fail open, got %d", rec.Code)
		}
	})
}

func TestBodyGuard(t *testing.T) {
	ok := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	})
	h := api.BodyGuard()(ok)

	t.Run("non-JSON content type on POST is rejected", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodPost, "/", strings.NewReader("a=b"))
		req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
		rec := httptest.NewRecorder()
		h.ServeHTTP(rec, req)
		if rec.Code != http.StatusUnsupportedMediaType {
			t.Errorf("status = %d, want 415", rec.Code)
		}
	})

	t.Run("chunked non-JSON POST is rejected", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodPost, "/", strings.NewReader("a=b"))
		req.Header.Set("Content-Type", "text/plain")
		req.ContentLength = -1 // chunked transfer, length unknown
		rec := httptest.NewRecorder()
		h.ServeHTTP(rec, req)
		if rec.Code != http.StatusUnsupportedMediaType {
			t.Errorf("status = %d, want 415", rec.Code)
		}
	})

	t.Run("oversized declared body is rejected", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodPost, "/", strings.NewReader("{}"))
		req.Header.Set("Content-Type", "application/json")
		req.ContentLength = 11 << 20
		rec := httptest.NewRecorder()
		h.ServeHTTP(rec, req)
		if rec.Code != http.StatusRequestEntityTooLarge {
			t.Errorf("status = %d, want 413", rec.Code)
		}
	})

	t.Run("GET passes without a content type", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodGet, "/", nil)
		rec := httptest.NewRecorder()
		h.ServeHTTP(rec, req)
		if rec.Code != http.StatusOK {
			t.Errorf("status = %d, want 200", rec.Code)
		}
	})
}
