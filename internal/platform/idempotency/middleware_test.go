package idempotency

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/pawmart/api/internal/platform/auth"
)

func TestMiddlewarePassesThroughWithoutKey(t *testing.T) {
	store := NewMemoryStore()
	var calls int32
	handler := Middleware(store)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&calls, 1)
		w.WriteHeader(http.StatusCreated)
	}))

	for i := 0; i < 2; i++ {
		rr := httptest.NewRecorder()
		handler.ServeHTTP(rr, newSettleRequest(t, "", "user-7"))
		if rr.Code != http.StatusCreated {
			t.Fatalf("expected status 201, got %d", rr.Code)
		}
	}
	if got := atomic.LoadInt32(&calls); got != 2 {
		t.Fatalf("expected handler to run twice, ran %d times", got)
	}
}

func TestMiddlewareReplaysRecordedResponse(t *testing.T) {
	store := NewMemoryStore()
	var calls int32
	handler := Middleware(store)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&calls, 1)
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusCreated)
		_, _ = w.Write([]byte(`{"payment":{"id":"pay_1"}}`))
	}))

	first := httptest.NewRecorder()
	handler.ServeHTTP(first, newSettleRequest(t, "key-1", "user-7"))
	if first.Code != http.StatusCreated {
		t.Fatalf("expected status 201, got %d", first.Code)
	}
	if first.Header().Get(headerReplay) != "" {
		t.Fatalf("first response must not be marked as replay")
	}

	second := httptest.NewRecorder()
	handler.ServeHTTP(second, newSettleRequest(t, "key-1", "user-7"))
	if second.Code != http.StatusCreated {
		t.Fatalf("expected replayed status 201, got %d", second.Code)
	}
	if second.Header().Get(headerReplay) != "true" {
		t.Fatalf("expected replay marker on duplicate")
	}
	if second.Body.String() != first.Body.String() {
		t.Fatalf("replayed body differs: %q vs %q", second.Body.String(), first.Body.String())
	}
	if got := atomic.LoadInt32(&calls); got != 1 {
		t.Fatalf("expected handler to run once, ran %d times", got)
	}
}

func TestMiddlewareRejectsKeyReuseAcrossPayloads(t *testing.T) {
	store := NewMemoryStore()
	handler := Middleware(store)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusCreated)
	}))

	first := httptest.NewRecorder()
	handler.ServeHTTP(first, newSettleRequest(t, "key-1", "user-7"))
	if first.Code != http.StatusCreated {
		t.Fatalf("expected status 201, got %d", first.Code)
	}

	req := httptest.NewRequest(http.MethodPost, "/payments", strings.NewReader(`{"reference_id":"ord_other"}`))
	req.Header.Set(headerKey, "key-1")
	req = req.WithContext(auth.WithIdentity(req.Context(), &auth.Identity{UID: "user-7"}))

	second := httptest.NewRecorder()
	handler.ServeHTTP(second, req)
	if second.Code != http.StatusConflict {
		t.Fatalf("expected status 409 on reused key, got %d", second.Code)
	}
}

func TestMiddlewareScopesKeysByCaller(t *testing.T) {
	store := NewMemoryStore()
	var calls int32
	handler := Middleware(store)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&calls, 1)
		w.WriteHeader(http.StatusCreated)
	}))

	for _, uid := range []string{"user-7", "user-8"} {
		rr := httptest.NewRecorder()
		handler.ServeHTTP(rr, newSettleRequest(t, "key-1", uid))
		if rr.Code != http.StatusCreated {
			t.Fatalf("expected status 201 for %s, got %d", uid, rr.Code)
		}
	}
	if got := atomic.LoadInt32(&calls); got != 2 {
		t.Fatalf("expected each caller to execute once, ran %d times", got)
	}
}

func TestMemoryStoreExpiredClaimIsFresh(t *testing.T) {
	store := NewMemoryStore()
	now := time.Date(2025, 3, 12, 10, 0, 0, 0, time.UTC)

	outcome, _, err := store.Claim(context.Background(), "k", "fp", now, time.Minute)
	if err != nil || outcome != OutcomeProceed {
		t.Fatalf("expected fresh claim, got %v err=%v", outcome, err)
	}

	outcome, _, err = store.Claim(context.Background(), "k", "fp-other", now.Add(2*time.Minute), time.Minute)
	if err != nil || outcome != OutcomeProceed {
		t.Fatalf("expected expired claim to reset, got %v err=%v", outcome, err)
	}
}

func TestMemoryStoreInFlightClaim(t *testing.T) {
	store := NewMemoryStore()
	now := time.Date(2025, 3, 12, 10, 0, 0, 0, time.UTC)

	if _, _, err := store.Claim(context.Background(), "k", "fp", now, time.Minute); err != nil {
		t.Fatalf("unexpected claim error: %v", err)
	}

	outcome, _, err := store.Claim(context.Background(), "k", "fp", now.Add(time.Second), time.Minute)
	if err != nil {
		t.Fatalf("unexpected claim error: %v", err)
	}
	if outcome != OutcomeInFlight {
		t.Fatalf("expected in-flight outcome, got %v", outcome)
	}
}

func newSettleRequest(t *testing.T, key, uid string) *http.Request {
	t.Helper()

	req := httptest.NewRequest(http.MethodPost, "/payments", strings.NewReader(`{"reference_id":"ord_1"}`))
	if key != "" {
		req.Header.Set(headerKey, key)
	}
	req = req.WithContext(auth.WithIdentity(req.Context(), &auth.Identity{UID: uid, Role: auth.RoleUser}))
	return req
}
