package middleware

import (
	"bytes"
	"context"
	"crypto/sha256"
	"encoding/hex"
	"io"
	"net/http"
	apperrors "staybook/pkg/errors"
	httputil "staybook/pkg/http"
	"sync"
	"time"
)

const (
	DefaultIdempotencyHeader = "Idempotency-Key"
	ReplayedHeader           = "Idempotent-Replayed"

	CodeIdempotencyInProgress = "IDEMPOTENCY_IN_PROGRESS"
	CodeIdempotencyKeyReused  = "IDEMPOTENCY_KEY_REUSED"
)

type IdempotencyStore interface {
	Get(ctx context.Context, key string) (*CachedResponse, bool)
	Set(ctx context.Context, key string, response *CachedResponse)
	Stop()
}

// CachedResponse is a completed 2xx response. Fingerprint is the SHA-256 of
// the request body that produced it.
type CachedResponse struct {
	StatusCode  int         `json:"status_code"`
	Headers     http.Header `json:"headers"`
	Body        []byte      `json:"body"`
	Fingerprint string      `json:"fingerprint,omitempty"`
	CreatedAt   time.Time   `json:"created_at"`
}

func (c *CachedResponse) expired(ttl time.Duration, now time.Time) bool {
	return now.Sub(c.CreatedAt) > ttl
}

// InMemoryIdempotencyStore keeps responses for one process. Expired entries
// are dropped on read and by a periodic sweep.
type InMemoryIdempotencyStore struct {
	mu       sync.RWMutex
	entries  map[string]*CachedResponse
	ttl      time.Duration
	now      func() time.Time
	stopCh   chan struct{}
	stopOnce sync.Once
}

func NewInMemoryIdempotencyStore(ttl time.Duration) *InMemoryIdempotencyStore {
	s := &InMemoryIdempotencyStore{
		entries: make(map[string]*CachedResponse),
		ttl:     ttl,
		now:     time.Now,
		stopCh:  make(chan struct{}),
	}
	go s.sweepLoop()
	return s
}

func (s *InMemoryIdempotencyStore) Get(_ context.Context, key string) (*CachedResponse, bool) {
	s.mu.RLock()
	cached, ok := s.entries[key]
	s.mu.RUnlock()
	if !ok {
		return nil, false
	}
	if cached.expired(s.ttl, s.now()) {
		s.mu.Lock()
		delete(s.entries, key)
		s.mu.Unlock()
		return nil, false
	}
	return cached, true
}

func (s *InMemoryIdempotencyStore) Set(_ context.Context, key string, response *CachedResponse) {
	response.CreatedAt = s.now()
	s.mu.Lock()
	s.entries[key] = response
	s.mu.Unlock()
}

func (s *InMemoryIdempotencyStore) sweepLoop() {
	ticker := time.NewTicker(s.ttl)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			s.sweep()
		case <-s.stopCh:
			return
		}
	}
}

func (s *InMemoryIdempotencyStore) sweep() int {
	now := s.now()
	s.mu.Lock()
	defer s.mu.Unlock()

	removed := 0
	for key, cached := range s.entries {
		if cached.expired(s.ttl, now) {
			delete(s.entries, key)
			removed++
		}
	}
	return removed
}

func (s *InMemoryIdempotencyStore) Stop() {
	s.stopOnce.Do(func() { close(s.stopCh) })
}

// inFlight tracks keys whose first request is still running.
type inFlight struct {
	mu   sync.Mutex
	keys map[string]struct{}
}

func (f *inFlight) acquire(key string) bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	if _, busy := f.keys[key]; busy {
		return false
	}
	f.keys[key] = struct{}{}
	return true
}

func (f *inFlight) release(key string) {
	f.mu.Lock()
	delete(f.keys, key)
	f.mu.Unlock()
}

type responseCapture struct {
	http.ResponseWriter
	statusCode int
	body       bytes.Buffer
}

func (rc *responseCapture) WriteHeader(statusCode int) {
	rc.statusCode = statusCode
	rc.ResponseWriter.WriteHeader(statusCode)
}

func (rc *responseCapture) Write(b []byte) (int, error) {
	rc.body.Write(b)
	return rc.ResponseWriter.Write(b)
}

// Idempotency makes POST and PATCH requests carrying headerName safe to
// retry. Keys are scoped to the actor, method and path.
//
//   - A retry with the same body replays the stored 2xx response.
//   - A retry with a different body is rejected with 422.
//   - A retry while the first request still runs is rejected with 409.
//
// Failed responses are not stored, so the client may try again.
func Idempotency(store IdempotencyStore, headerName string) func(http.Handler) http.Handler {
	if headerName == "" {
		headerName = DefaultIdempotencyHeader
	}
	running := &inFlight{keys: make(map[string]struct{})}

	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			key := scopedIdempotencyKey(r, headerName)
			if key == "" {
				next.ServeHTTP(w, r)
				return
			}

			fingerprint, err := fingerprintBody(r)
			if err != nil {
				httputil.WriteError(w, apperrors.New(apperrors.CodeInvalidInput, "Request body could not be read", http.StatusRequestEntityTooLarge))
				return
			}

			if !running.acquire(key) {
				httputil.WriteError(w, apperrors.New(CodeIdempotencyInProgress, "A request with this idempotency key is still in progress", http.StatusConflict))
				return
			}
			defer running.release(key)

			if cached, found := store.Get(r.Context(), key); found {
				if cached.Fingerprint != "" && cached.Fingerprint != fingerprint {
					httputil.WriteError(w, apperrors.New(CodeIdempotencyKeyReused, "Idempotency key was already used with a different request body", http.StatusUnprocessableEntity))
					return
				}
				replay(w, cached)
				return
			}

			capture := &responseCapture{ResponseWriter: w, statusCode: http.StatusOK}
			next.ServeHTTP(capture, r)

			if capture.statusCode < 200 || capture.statusCode >= 300 {
				return
			}
			headers := w.Header().Clone()
			headers.Del(RequestIDHeader)
			store.Set(context.WithoutCancel(r.Context()), key, &CachedResponse{
				StatusCode:  capture.statusCode,
				Headers:     headers,
				Body:        capture.body.Bytes(),
				Fingerprint: fingerprint,
			})
		})
	}
}

func scopedIdempotencyKey(r *http.Request, headerName string) string {
	if r.Method != http.MethodPost && r.Method != http.MethodPatch {
		return ""
	}
	key := r.Header.Get(headerName)
	if key == "" {
		return ""
	}
	return r.Header.Get(httputil.ActorHeader) + "|" + r.Method + "|" + r.URL.Path + "|" + key
}

// fingerprintBody hashes the body and leaves it readable for the handler.
func fingerprintBody(r *http.Request) (string, error) {
	if r.Body == nil || r.Body == http.NoBody {
		return hashOf(nil), nil
	}
	body, err := io.ReadAll(r.Body)
	_ = r.Body.Close()
	if err != nil {
		return "", err
	}
	r.Body = io.NopCloser(bytes.NewReader(body))
	return hashOf(body), nil
}

func hashOf(body []byte) string {
	sum := sha256.Sum256(body)
	return hex.EncodeToString(sum[:])
}

func replay(w http.ResponseWriter, cached *CachedResponse) {
	for key, values := range cached.Headers {
		for _, value := range values {
			w.Header().Add(key, value)
		}
	}
	w.Header().Set(ReplayedHeader, "true")
	w.WriteHeader(cached.StatusCode)
	_, _ = w.Write(cached.Body)
}
