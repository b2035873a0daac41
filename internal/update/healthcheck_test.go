package update

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"
)

func TestRunChecksAllSucceedOnFirstAttempt(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	checks := []Check{{Name: "ok", Run: httpReachableCheck(srv.URL)}}

	var attempts int
	err := RunChecks(context.Background(), checks, func(name string, attempt int, err error) {
		attempts++
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if attempts != 1 {
		t.Errorf("attempts = %d, want 1", attempts)
	}
}

func TestRunChecksAbortsOnContextCancellation(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer srv.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()

	checks := []Check{{Name: "failing", Run: httpReachableCheck(srv.URL)}}
	if err := RunChecks(ctx, checks, nil); err == nil {
		t.Fatal("expected an error once the context is cancelled mid-retry")
	}
}

func TestHTTPReachableCheckTreats5xxAsFailure(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
	}))
	defer srv.Close()

	if err := httpReachableCheck(srv.URL)(context.Background()); err == nil {
		t.Fatal("expected a 502 response to be treated as a failed check")
	}
}
