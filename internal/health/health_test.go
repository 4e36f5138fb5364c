package health_test

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/asegarra/lostfound/internal/clock"
	"github.com/asegarra/lostfound/internal/health"
)

func TestLivenessHandler(t *testing.T) {
	clk := &clock.Mock{T: time.Date(2026, 2, 1, 0, 0, 0, 0, time.UTC)}
	h := health.NewHandler(clk)

	rec := httptest.NewRecorder()
	h.LivenessHandler()(rec, httptest.NewRequest(http.MethodGet, "/healthz", nil))

	if rec.Code != http.StatusOK {
		t.Errorf("status = %d, want 200", rec.Code)
	}
	var status health.Status
	if err := json.NewDecoder(rec.Body).Decode(&status); err != nil {
		t.Fatalf("decoding body: %v", err)
	}
	if status.Status != "ok" {
		t.Errorf("status = %q, want ok", status.Status)
	}
}

func TestReadinessHandler(t *testing.T) {
	clk := &clock.Mock{T: time.Date(2026, 2, 1, 0, 0, 0, 0, time.UTC)}
	dbErr := error(nil)
	h := health.NewHandler(clk, health.Checker{
		Name:  "database",
		Check: func(context.Context) error { return dbErr },
	})

	// Not ready until marked.
	rec := httptest.NewRecorder()
	h.ReadinessHandler()(rec, httptest.NewRequest(http.MethodGet, "/readyz", nil))
	if rec.Code != http.StatusServiceUnavailable {
		t.Errorf("status before SetReady = %d, want 503", rec.Code)
	}

	h.SetReady(true)
	rec = httptest.NewRecorder()
	h.ReadinessHandler()(rec, httptest.NewRequest(http.MethodGet, "/readyz", nil))
	if rec.Code != http.StatusOK {
		t.Errorf("status = %d, want 200", rec.Code)
	}
	var status health.Status
	if err := json.NewDecoder(rec.Body).Decode(&status); err != nil {
		t.Fatalf("decoding body: %v", err)
	}
	if status.Checks["database"] != "ok" {
		t.Errorf("database check = %q, want ok", status.Checks["database"])
	}

	// A failing checker flips readiness back to 503.
	dbErr = errors.New("connection refused")
	rec = httptest.NewRecorder()
	h.ReadinessHandler()(rec, httptest.NewRequest(http.MethodGet, "/readyz", nil))
	if rec.Code != http.StatusServiceUnavailable {
		t.Errorf("status with failing check = %d, want 503", rec.Code)
	}
}
