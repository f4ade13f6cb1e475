package storage

import (
	"context"
	"io"
	"log/slog"
	"sync"
	"testing"
	"time"
)

func newRateLimitStore(t *testing.T) *Store {
	t.Helper()
	logger := slog.New(slog.NewJSONHandler(io.Discard, nil))
	store, err := Open(context.Background(), "sqlite::memory:", logger)
	if err != nil {
		t.Fatalf("Open() error = %v", err)
	}
	t.Cleanup(func() { _ = store.Close() })
	return store
}

func TestAdmitAction_DefaultLimit(t *testing.T) {
	store := newRateLimitStore(t)
	ctx := context.Background()
	nowMs := time.Now().UnixMilli()

	// start_call has no config row, so the default limit of 5 applies.
	for i := 0; i < 5; i++ {
		ok, err := store.AdmitAction(ctx, "user-1", ActionStartCall, nowMs+int64(i))
		if err != nil {
			t.Fatalf("AdmitAction() error = %v", err)
		}
		if !ok {
			t.Fatalf("attempt %d denied, want admitted", i+1)
		}
	}

	ok, err := store.AdmitAction(ctx, "user-1", ActionStartCall, nowMs+5)
	if err != nil {
		t.Fatalf("AdmitAction() error = %v", err)
	}
	if ok {
		t.Fatal("sixth attempt admitted, want denied")
	}
}

func TestAdmitAction_WindowSlides(t *testing.T) {
	store := newRateLimitStore(t)
	ctx := context.Background()
	nowMs := time.Now().UnixMilli()

	for i := 0; i < 5; i++ {
		if ok, err := store.AdmitAction(ctx, "user-1", ActionStartCall, nowMs); err != nil || !ok {
			t.Fatalf("AdmitAction() = (%v, %v), want admitted", ok, err)
		}
	}
	if ok, _ := store.AdmitAction(ctx, "user-1", ActionStartCall, nowMs); ok {
		t.Fatal("attempt over the limit admitted, want denied")
	}

	// Once the earlier attempts age out of the trailing window, the same
	// user is admitted again.
	later := nowMs + RateLimitWindowMs + 1
	ok, err := store.AdmitAction(ctx, "user-1", ActionStartCall, later)
	if err != nil {
		t.Fatalf("AdmitAction() error = %v", err)
	}
	if !ok {
		t.Fatal("attempt after window rolled denied, want admitted")
	}
}

func TestAdmitAction_ConfiguredLimit(t *testing.T) {
	store := newRateLimitStore(t)
	ctx := context.Background()
	nowMs := time.Now().UnixMilli()

	// send_message is seeded with a higher limit than the default.
	for i := 0; i < 20; i++ {
		ok, err := store.AdmitAction(ctx, "user-1", ActionSendMessage, nowMs)
		if err != nil {
			t.Fatalf("AdmitAction() error = %v", err)
		}
		if !ok {
			t.Fatalf("attempt %d denied, want admitted", i+1)
		}
	}
	if ok, _ := store.AdmitAction(ctx, "user-1", ActionSendMessage, nowMs); ok {
		t.Fatal("attempt over configured limit admitted, want denied")
	}
}

func TestAdmitAction_ConcurrentRequestsRespectLimit(t *testing.T) {
	store := newRateLimitStore(t)
	ctx := context.Background()
	nowMs := time.Now().UnixMilli()

	// Ten requests race for a budget of five. Admissions serialize on the
	// config row, so exactly five may pass.
	const attempts = 10
	var wg sync.WaitGroup
	admitted := make([]bool, attempts)
	errs := make([]error, attempts)
	for i := 0; i < attempts; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			admitted[i], errs[i] = store.AdmitAction(ctx, "user-1", ActionStartCall, nowMs)
		}(i)
	}
	wg.Wait()

	passed := 0
	for i := 0; i < attempts; i++ {
		if errs[i] != nil {
			t.Fatalf("AdmitAction() #%d error = %v", i+1, errs[i])
		}
		if admitted[i] {
			passed++
		}
	}
	if passed != 5 {
		t.Fatalf("admitted = %d, want 5", passed)
	}
}

func TestAdmitAction_IsolatedPerUserAndAction(t *testing.T) {
	store := newRateLimitStore(t)
	ctx := context.Background()
	nowMs := time.Now().UnixMilli()

	for i := 0; i < 5; i++ {
		if ok, err := store.AdmitAction(ctx, "user-1", ActionStartCall, nowMs); err != nil || !ok {
			t.Fatalf("AdmitAction() = (%v, %v), want admitted", ok, err)
		}
	}

	// A different user is not affected.
	if ok, err := store.AdmitAction(ctx, "user-2", ActionStartCall, nowMs); err != nil || !ok {
		t.Fatalf("AdmitAction() other user = (%v, %v), want admitted", ok, err)
	}
	// Nor is a different action for the same user.
	if ok, err := store.AdmitAction(ctx, "user-1", ActionEndCall, nowMs); err != nil || !ok {
		t.Fatalf("AdmitAction() other action = (%v, %v), want admitted", ok, err)
	}
}

func TestCleanRateLimitRecords(t *testing.T) {
	store := newRateLimitStore(t)
	ctx := context.Background()
	nowMs := time.Now().UnixMilli()

	for i := 0; i < 3; i++ {
		if ok, err := store.AdmitAction(ctx, "user-1", ActionStartCall, nowMs); err != nil || !ok {
			t.Fatalf("AdmitAction() = (%v, %v), want admitted", ok, err)
		}
	}

	removed, err := store.CleanRateLimitRecords(ctx, nowMs+RateLimitWindowMs+1)
	if err != nil {
		t.Fatalf("CleanRateLimitRecords() error = %v", err)
	}
	if removed != 3 {
		t.Fatalf("CleanRateLimitRecords() = %d, want 3", removed)
	}
}
