package clock_test

import (
	"testing"
	"time"

	"github.com/asegarra/lostfound/internal/clock"
)

func TestReal(t *testing.T) {
	before := time.Now()
	got := clock.Real{}.Now()
	after := time.Now()
	if got.Before(before) || got.After(after) {
		t.Errorf("Real.Now() = %v, want between %v and %v", got, before, after)
	}
}

func TestMock(t *testing.T) {
	start := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	m := &clock.Mock{T: start}

	if got := m.Now(); !got.Equal(start) {
		t.Errorf("Now() = %v, want %v", got, start)
	}

	m.Advance(90 * time.Minute)
	if got := m.Now(); !got.Equal(start.Add(90 * time.Minute)) {
		t.Errorf("Now() after Advance = %v, want %v", got, start.Add(90*time.Minute))
	}
}
