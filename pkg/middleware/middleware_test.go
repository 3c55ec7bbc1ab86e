package middleware

import (
	"context"
	"log/slog"
	"net/http"
	"net/http/httptest"
	httputil "staybook/pkg/http"
	"staybook/pkg/logger"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/go-redis/redis/v8"
)

func okHandler(body string) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusCreated)
		_, _ = w.Write([]byte(body))
	})
}

func TestActorRateLimiter_Allow(t *testing.T) {
	rl := NewActorRateLimiter(2, time.Minute, nil, logger.Discard())
	defer rl.Stop()

	base := time.Date(2030, 1, 1, 0, 0, 0, 0, time.UTC)
	rl.now = func() time.Time { return base }

	if !rl.Allow("actor:a") || !rl.Allow("actor:a") {
		t.Fatal("first two requests must pass")
	}
	if rl.Allow("actor:a") {
		t.Error("third request inside the window must be rejected")
	}
	if !rl.Allow("actor:b") {
		t.Error("other actors have their own quota")
	}

	rl.now = func() time.Time { return base.Add(time.Minute + time.Second) }
	if !rl.Allow("actor:a") {
		t.Error("quota must refill after the window")
	}
}

func TestActorRateLimiter_ConcurrentRequestsNeverExceedLimit(t *testing.T) {
	rl := NewActorRateLimiter(5, time.Minute, nil, logger.Discard())
	defer rl.Stop()

	var allowed atomic.Int32
	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if rl.Allow("actor:a") {
				allowed.Add(1)
			}
		}()
	}
	wg.Wait()

	if got := allowed.Load(); got != 5 {
		t.Errorf("expected exactly 5 allowed, got %d", got)
	}
}

func TestActorRateLimit_Middleware(t *testing.T) {
	rl := NewActorRateLimiter(1, time.Minute, nil, logger.Discard())
	defer rl.Stop()
	h := ActorRateLimit(rl)(okHandler("ok"))

	send := func() int {
		req := httptest.NewRequest(http.MethodGet, "/api/v1/bookings/id/b-1", nil)
		req.Header.Set(httputil.ActorHeader, "guest-1")
		rec := httptest.NewRecorder()
		h.ServeHTTP(rec, req)
		return rec.Code
	}

	if code := send(); code != http.StatusCreated {
		t.Fatalf("expected first request through, got %d", code)
	}
	if code := send(); code != http.StatusTooManyRequests {
		t.Errorf("expected 429, got %d", code)
	}
}

func TestDefaultKeyExtractor(t *testing.T) {
	req := httptest.NewRequest(http.MethodPost, "/api/v1/quotes", nil)
	req.RemoteAddr = "10.0.0.7:5123"
	if got := DefaultKeyExtractor(req); got != "ip:10.0.0.7" {
		t.Errorf("expected ip key, got %s", got)
	}

	req.Header.Set(httputil.ActorHeader, "guest-1")
	if got := DefaultKeyExtractor(req); got != "actor:guest-1" {
		t.Errorf("expected actor key, got %s", got)
	}
}

func TestIdempotency_ReplaysSuccessfulResponse(t *testing.T) {
	store := NewInMemoryIdempotencyStore(time.Hour)
	defer store.Stop()

	var calls atomic.Int32
	h := Idempotency(store, "")(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		n := calls.Add(1)
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusCreated)
		_, _ = w.Write([]byte(`{"call":` + string(rune('0'+n)) + `}`))
	}))

	send := func(actor string) *httptest.ResponseRecorder {
		req := httptest.NewRequest(http.MethodPost, "/api/v1/bookings", strings.NewReader(`{}`))
		req.Header.Set(DefaultIdempotencyHeader, "key-1")
		req.Header.Set(httputil.ActorHeader, actor)
		rec := httptest.NewRecorder()
		h.ServeHTTP(rec, req)
		return rec
	}

	first := send("guest-1")
	second := send("guest-1")
	if calls.Load() != 1 {
		t.Fatalf("expected handler to run once, ran %d times", calls.Load())
	}
	if second.Code != http.StatusCreated || second.Body.String() != first.Body.String() {
		t.Errorf("expected replay of %q, got %d %q", first.Body.String(), second.Code, second.Body.String())
	}
	if second.Header().Get(ReplayedHeader) != "true" {
		t.Error("expected replay marker header")
	}

	send("guest-2")
	if calls.Load() != 2 {
		t.Error("keys must be scoped to the actor")
	}
}

func TestIdempotency_DoesNotCacheFailures(t *testing.T) {
	store := NewInMemoryIdempotencyStore(time.Hour)
	defer store.Stop()

	var calls atomic.Int32
	h := Idempotency(store, "")(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		w.WriteHeader(http.StatusConflict)
	}))

	for i := 0; i < 2; i++ {
		req := httptest.NewRequest(http.MethodPost, "/api/v1/bookings", nil)
		req.Header.Set(DefaultIdempotencyHeader, "key-1")
		h.ServeHTTP(httptest.NewRecorder(), req)
	}

	if calls.Load() != 2 {
		t.Errorf("expected failed requests to run again, ran %d times", calls.Load())
	}
}

func TestIdempotency_RejectsKeyReuseWithDifferentBody(t *testing.T) {
	store := NewInMemoryIdempotencyStore(time.Hour)
	defer store.Stop()

	var calls atomic.Int32
	h := Idempotency(store, "")(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		w.WriteHeader(http.StatusCreated)
	}))

	send := func(body string) *httptest.ResponseRecorder {
		req := httptest.NewRequest(http.MethodPost, "/api/v1/bookings", strings.NewReader(body))
		req.Header.Set(DefaultIdempotencyHeader, "key-1")
		req.Header.Set(httputil.ActorHeader, "guest-1")
		rec := httptest.NewRecorder()
		h.ServeHTTP(rec, req)
		return rec
	}

	send(`{"check_in":"2030-10-01"}`)
	rec := send(`{"check_in":"2030-11-01"}`)
	if rec.Code != http.StatusUnprocessableEntity {
		t.Fatalf("expected 422, got %d", rec.Code)
	}
	if !strings.Contains(rec.Body.String(), CodeIdempotencyKeyReused) {
		t.Errorf("expected %s in body, got %s", CodeIdempotencyKeyReused, rec.Body.String())
	}
	if calls.Load() != 1 {
		t.Errorf("expected handler to run once, ran %d times", calls.Load())
	}
}

func TestIdempotency_RejectsConcurrentDuplicate(t *testing.T) {
	store := NewInMemoryIdempotencyStore(time.Hour)
	defer store.Stop()

	entered := make(chan struct{})
	release := make(chan struct{})
	h := Idempotency(store, "")(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		close(entered)
		<-release
		w.WriteHeader(http.StatusCreated)
	}))

	newReq := func() *http.Request {
		req := httptest.NewRequest(http.MethodPost, "/api/v1/bookings", strings.NewReader(`{}`))
		req.Header.Set(DefaultIdempotencyHeader, "key-1")
		req.Header.Set(httputil.ActorHeader, "guest-1")
		return req
	}

	first := httptest.NewRecorder()
	done := make(chan struct{})
	go func() {
		h.ServeHTTP(first, newReq())
		close(done)
	}()
	<-entered

	second := httptest.NewRecorder()
	h.ServeHTTP(second, newReq())
	close(release)
	<-done

	if second.Code != http.StatusConflict {
		t.Errorf("expected 409 for in-flight duplicate, got %d", second.Code)
	}
	if first.Code != http.StatusCreated {
		t.Errorf("expected first request to succeed, got %d", first.Code)
	}

	third := httptest.NewRecorder()
	h.ServeHTTP(third, newReq())
	if third.Code != http.StatusCreated || third.Header().Get(ReplayedHeader) != "true" {
		t.Errorf("expected replay after completion, got %d", third.Code)
	}
}

func TestInMemoryIdempotencyStore_Expiry(t *testing.T) {
	store := NewInMemoryIdempotencyStore(time.Hour)
	defer store.Stop()
	now := time.Date(2030, 1, 1, 0, 0, 0, 0, time.UTC)
	store.now = func() time.Time { return now }
	ctx := context.Background()

	store.Set(ctx, "a", &CachedResponse{StatusCode: http.StatusOK})
	store.Set(ctx, "b", &CachedResponse{StatusCode: http.StatusOK})

	now = now.Add(2 * time.Hour)
	if _, ok := store.Get(ctx, "a"); ok {
		t.Error("expected expired entry to miss")
	}
	if removed := store.sweep(); removed != 1 {
		t.Errorf("expected sweep to remove the remaining entry, removed %d", removed)
	}
}

// fakeRedis implements the two commands the idempotency store uses.
type fakeRedis struct {
	redis.Cmdable
	mu   sync.Mutex
	data map[string]string
	ttls map[string]time.Duration
}

func (f *fakeRedis) Get(ctx context.Context, key string) *redis.StringCmd {
	f.mu.Lock()
	defer f.mu.Unlock()
	v, ok := f.data[key]
	if !ok {
		return redis.NewStringResult("", redis.Nil)
	}
	return redis.NewStringResult(v, nil)
}

func (f *fakeRedis) Set(ctx context.Context, key string, value interface{}, ttl time.Duration) *redis.StatusCmd {
	f.mu.Lock()
	defer f.mu.Unlock()
	switch v := value.(type) {
	case []byte:
		f.data[key] = string(v)
	case string:
		f.data[key] = v
	}
	f.ttls[key] = ttl
	return redis.NewStatusResult("OK", nil)
}

func TestRedisIdempotencyStore(t *testing.T) {
	fake := &fakeRedis{data: map[string]string{}, ttls: map[string]time.Duration{}}
	store := NewRedisIdempotencyStore(fake, 24*time.Hour, logger.Discard())
	ctx := context.Background()

	if _, ok := store.Get(ctx, "k"); ok {
		t.Fatal("expected miss on empty store")
	}

	store.Set(ctx, "k", &CachedResponse{
		StatusCode: http.StatusCreated,
		Headers:    http.Header{"Content-Type": {"application/json"}},
		Body:       []byte(`{"data":{"id":"b-1"}}`),
	})

	cached, ok := store.Get(ctx, "k")
	if !ok {
		t.Fatal("expected hit after Set")
	}
	if cached.StatusCode != http.StatusCreated || string(cached.Body) != `{"data":{"id":"b-1"}}` {
		t.Errorf("unexpected cached response %+v", cached)
	}
	if fake.ttls[idempotencyKeyPrefix+"k"] != 24*time.Hour {
		t.Errorf("expected TTL to be set, got %v", fake.ttls[idempotencyKeyPrefix+"k"])
	}
}

func TestContentTypeValidation(t *testing.T) {
	h := ContentTypeValidation(logger.Discard())(okHandler("ok"))

	tests := []struct {
		name        string
		method      string
		body        string
		contentType string
		wantStatus  int
	}{
		{name: "json body", method: http.MethodPost, body: `{}`, contentType: "application/json; charset=utf-8", wantStatus: http.StatusCreated},
		{name: "form body", method: http.MethodPost, body: `a=b`, contentType: "application/x-www-form-urlencoded", wantStatus: http.StatusUnsupportedMediaType},
		{name: "bodyless post", method: http.MethodPost, wantStatus: http.StatusCreated},
		{name: "get", method: http.MethodGet, wantStatus: http.StatusCreated},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var req *http.Request
			if tt.body != "" {
				req = httptest.NewRequest(tt.method, "/api/v1/bookings", strings.NewReader(tt.body))
			} else {
				req = httptest.NewRequest(tt.method, "/api/v1/bookings", nil)
			}
			if tt.contentType != "" {
				req.Header.Set("Content-Type", tt.contentType)
			}
			rec := httptest.NewRecorder()
			h.ServeHTTP(rec, req)
			if rec.Code != tt.wantStatus {
				t.Errorf("expected %d, got %d", tt.wantStatus, rec.Code)
			}
		})
	}
}

func TestMaxRequestSize(t *testing.T) {
	h := MaxRequestSize(8)(okHandler("ok"))

	req := httptest.NewRequest(http.MethodPost, "/api/v1/bookings", strings.NewReader(`{"too":"large"}`))
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)

	if rec.Code != http.StatusRequestEntityTooLarge {
		t.Errorf("expected 413, got %d", rec.Code)
	}
}

func TestRequestTimeout(t *testing.T) {
	slow := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		<-r.Context().Done()
		time.Sleep(10 * time.Millisecond)
		_, _ = w.Write([]byte("late"))
	})
	h := RequestTimeout(20 * time.Millisecond)(slow)

	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/", nil))

	if rec.Code != http.StatusGatewayTimeout {
		t.Errorf("expected 504, got %d", rec.Code)
	}
	time.Sleep(30 * time.Millisecond)
}

func TestRecovery(t *testing.T) {
	h := Recovery(logger.Discard())(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		panic("boom")
	}))

	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/", nil))

	if rec.Code != http.StatusInternalServerError {
		t.Errorf("expected 500, got %d", rec.Code)
	}
	if strings.Contains(rec.Body.String(), "boom") {
		t.Error("panic value leaked to the client")
	}
}

func TestRecovery_ReraisesAbortHandler(t *testing.T) {
	h := Recovery(logger.Discard())(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		panic(http.ErrAbortHandler)
	}))

	defer func() {
		if rec := recover(); rec != http.ErrAbortHandler {
			t.Errorf("expected ErrAbortHandler to propagate, got %v", rec)
		}
	}()
	h.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/", nil))
}

func TestRequestLogging_PropagatesRequestID(t *testing.T) {
	var seen string
	h := RequestLogging(logger.Discard())(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		seen = RequestID(r.Context())
	}))

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.Header.Set(RequestIDHeader, "req-123")
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)

	if seen != "req-123" || rec.Header().Get(RequestIDHeader) != "req-123" {
		t.Errorf("expected caller request id to be reused, got %q / %q", seen, rec.Header().Get(RequestIDHeader))
	}

	rec = httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/", nil))
	if rec.Header().Get(RequestIDHeader) == "" {
		t.Error("expected a generated request id")
	}
}

func TestRequestLogging_ReplacesMalformedRequestID(t *testing.T) {
	h := RequestLogging(logger.Discard())(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusTeapot)
	}))

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.Header.Set(RequestIDHeader, "bad id\n")
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)

	if got := rec.Header().Get(RequestIDHeader); got == "bad id\n" || got == "" {
		t.Errorf("expected a generated request id, got %q", got)
	}
	if rec.Code != http.StatusTeapot {
		t.Errorf("expected handler status to pass through, got %d", rec.Code)
	}
}

func TestLevelFor(t *testing.T) {
	if levelFor(http.StatusOK) != slog.LevelInfo || levelFor(http.StatusNotFound) != slog.LevelWarn || levelFor(http.StatusBadGateway) != slog.LevelError {
		t.Error("unexpected level mapping")
	}
}
