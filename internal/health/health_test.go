package health

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
)

func TestHandleHealth_AllHealthy(t *testing.T) {
	s := NewServer(0, "test")
	s.RegisterCheck("upstream", func(ctx context.Context) (bool, string) {
		return true, ""
	})

	rec := httptest.NewRecorder()
	s.handleHealth(rec, httptest.NewRequest(http.MethodGet, "/health", nil))

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", rec.Code)
	}

	var status Status
	if err := json.NewDecoder(rec.Body).Decode(&status); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if status.Status != "ok" {
		t.Errorf("Status = %q, want ok", status.Status)
	}
	if !status.Checks["upstream"].Healthy {
		t.Error("upstream check not healthy")
	}
}

func TestHandleHealth_DegradedOnFailure(t *testing.T) {
	s := NewServer(0, "test")
	s.RegisterCheck("db", func(ctx context.Context) (bool, string) {
		return false, "connection refused"
	})

	rec := httptest.NewRecorder()
	s.handleHealth(rec, httptest.NewRequest(http.MethodGet, "/health", nil))

	if rec.Code != http.StatusServiceUnavailable {
		t.Fatalf("status = %d, want 503", rec.Code)
	}

	var status Status
	if err := json.NewDecoder(rec.Body).Decode(&status); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if status.Status != "degraded" {
		t.Errorf("Status = %q, want degraded", status.Status)
	}
	if status.Checks["db"].Message != "connection refused" {
		t.Errorf("Message = %q, want connection refused", status.Checks["db"].Message)
	}
}

func TestHandleReady_FailsWhenCheckFails(t *testing.T) {
	s := NewServer(0, "test")
	s.RegisterCheck("rpc", func(ctx context.Context) (bool, string) {
		return false, "down"
	})

	rec := httptest.NewRecorder()
	s.handleReady(rec, httptest.NewRequest(http.MethodGet, "/ready", nil))

	if rec.Code != http.StatusServiceUnavailable {
		t.Errorf("status = %d, want 503", rec.Code)
	}
}

func TestHandleLive_AlwaysOK(t *testing.T) {
	s := NewServer(0, "test")

	rec := httptest.NewRecorder()
	s.handleLive(rec, httptest.NewRequest(http.MethodGet, "/live", nil))

	if rec.Code != http.StatusOK {
		t.Errorf("status = %d, want 200", rec.Code)
	}
}
