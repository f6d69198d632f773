package idempotency

import (
	"bytes"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/pawmart/api/internal/platform/auth"
	"github.com/pawmart/api/internal/platform/httpx"
)

const (
	headerKey    = "Idempotency-Key"
	headerReplay = "X-Idempotent-Replay"
)

type middlewareConfig struct {
	ttl   time.Duration
	clock func() time.Time
}

// MiddlewareOption customises middleware behaviour.
type MiddlewareOption func(*middlewareConfig)

// WithTTL bounds replay retention for this middleware instance.
func WithTTL(ttl time.Duration) MiddlewareOption {
	return func(cfg *middlewareConfig) {
		if ttl > 0 {
			cfg.ttl = ttl
		}
	}
}

// WithClock overrides the time source, primarily for tests.
func WithClock(clock func() time.Time) MiddlewareOption {
	return func(cfg *middlewareConfig) {
		if clock != nil {
			cfg.clock = clock
		}
	}
}

// Middleware makes POST endpoints replay-safe. Requests without an
// Idempotency-Key header pass through untouched; with one, the first
// request runs and its response is recorded, duplicates replay it.
func Middleware(store Store, opts ...MiddlewareOption) func(http.Handler) http.Handler {
	if store == nil {
		return func(next http.Handler) http.Handler { return next }
	}

	cfg := middlewareConfig{ttl: DefaultTTL, clock: time.Now}
	for _, opt := range opts {
		if opt != nil {
			opt(&cfg)
		}
	}

	return func(next http.Handler) http.Handler {
		if next == nil {
			next = http.HandlerFunc(func(http.ResponseWriter, *http.Request) {})
		}
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ctx := r.Context()

			key := strings.TrimSpace(r.Header.Get(headerKey))
			if r.Method != http.MethodPost || key == "" {
				next.ServeHTTP(w, r)
				return
			}

			callerID := ""
			if identity, ok := auth.IdentityFromContext(ctx); ok && identity != nil {
				callerID = identity.UID
			}

			body, err := swapBody(r)
			if err != nil {
				httpx.WriteError(ctx, w, httpx.NewError("invalid_request", "unable to read request body", http.StatusBadRequest))
				return
			}

			fingerprint := Fingerprint(r.Method, r.URL.Path, callerID, string(body))
			storageKey := StorageKey(key, callerID)
			now := cfg.clock().UTC()

			outcome, record, err := store.Claim(ctx, storageKey, fingerprint, now, cfg.ttl)
			if err == ErrKeyReused {
				httpx.WriteError(ctx, w, httpx.NewError("idempotency_key_conflict", "idempotency key already used for a different request", http.StatusConflict))
				return
			}
			if err != nil {
				httpx.WriteError(ctx, w, httpx.NewError("idempotency_unavailable", "unable to check idempotency key", http.StatusServiceUnavailable))
				return
			}

			switch outcome {
			case OutcomeReplay:
				replay(w, record)
				return
			case OutcomeInFlight:
				httpx.WriteError(ctx, w, httpx.NewError("idempotency_in_progress", "another request is processing this idempotency key", http.StatusConflict))
				return
			}

			recorder := &captureWriter{header: make(http.Header)}
			next.ServeHTTP(recorder, r)

			saved := Record{
				Status:    recorder.status(),
				Header:    recorder.headerSnapshot(),
				Body:      recorder.body.Bytes(),
				CreatedAt: now,
				ExpiresAt: now.Add(cfg.ttl),
			}
			if err := store.Record(ctx, storageKey, fingerprint, saved); err != nil {
				_ = store.Drop(ctx, storageKey)
			}

			recorder.flush(w)
		})
	}
}

func swapBody(r *http.Request) ([]byte, error) {
	if r.Body == nil {
		return nil, nil
	}
	data, err := io.ReadAll(r.Body)
	if err != nil {
		return nil, err
	}
	if err := r.Body.Close(); err != nil {
		return nil, err
	}
	r.Body = io.NopCloser(bytes.NewReader(data))
	return data, nil
}

func replay(w http.ResponseWriter, record Record) {
	for name, values := range record.Header {
		for _, value := range values {
			w.Header().Add(name, value)
		}
	}
	w.Header().Set(headerReplay, "true")

	status := record.Status
	if status == 0 {
		status = http.StatusOK
	}
	w.WriteHeader(status)
	if len(record.Body) > 0 {
		_, _ = w.Write(record.Body)
	}
}

// captureWriter buffers the handler response so it can be stored
// before reaching the client.
type captureWriter struct {
	header     http.Header
	statusCode int
	body       bytes.Buffer
}

func (c *captureWriter) Header() http.Header {
	return c.header
}

func (c *captureWriter) WriteHeader(status int) {
	if c.statusCode == 0 {
		c.statusCode = status
	}
}

func (c *captureWriter) Write(data []byte) (int, error) {
	if c.statusCode == 0 {
		c.statusCode = http.StatusOK
	}
	return c.body.Write(data)
}

func (c *captureWriter) status() int {
	if c.statusCode == 0 {
		return http.StatusOK
	}
	return c.statusCode
}

func (c *captureWriter) headerSnapshot() map[string][]string {
	if len(c.header) == 0 {
		return nil
	}
	snapshot := make(map[string][]string, len(c.header))
	for name, values := range c.header {
		if strings.EqualFold(name, "Content-Length") {
			continue
		}
		snapshot[name] = append([]string(nil), values...)
	}
	return snapshot
}

func (c *captureWriter) flush(w http.ResponseWriter) {
	for name, values := range c.header {
		for _, value := range values {
			w.Header().Add(name, value)
		}
	}
	w.WriteHeader(c.status())
	if c.body.Len() > 0 {
		_, _ = w.Write(c.body.Bytes())
	}
}
