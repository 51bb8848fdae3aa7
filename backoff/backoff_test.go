package backoff_test

import (
	"testing"
	"time"

	"github.com/neeraj-agentic-lab/SubscriptionManager-sub004/backoff"
)

func TestConstant_ReturnsFixedDelay(t *testing.T) {
	c := backoff.NewConstant(5 * time.Second)
	for attempt := 1; attempt <= 10; attempt++ {
		if got := c.Delay(attempt); got != 5*time.Second {
			t.Errorf("Delay(%d) = %v, want %v", attempt, got, 5*time.Second)
		}
	}
}

func TestLinear_GrowsLinearly(t *testing.T) {
	l := backoff.NewLinear(time.Minute, time.Hour)

	tests := []struct {
		attempt int
		want    time.Duration
	}{
		{1, 1 * time.Minute},
		{2, 2 * time.Minute},
		{3, 3 * time.Minute},
		{5, 5 * time.Minute},
		{10, 10 * time.Minute},
	}
	for _, tt := range tests {
		if got := l.Delay(tt.attempt); got != tt.want {
			t.Errorf("Delay(%d) = %v, want %v", tt.attempt, got, tt.want)
		}
	}
}

func TestLinear_CapsAtMax(t *testing.T) {
	l := backoff.NewLinear(time.Minute, 5*time.Minute)

	if got := l.Delay(10); got != 5*time.Minute {
		t.Errorf("Delay(10) = %v, want %v (capped at Max)", got, 5*time.Minute)
	}
	if got := l.Delay(100); got != 5*time.Minute {
		t.Errorf("Delay(100) = %v, want %v (capped at Max)", got, 5*time.Minute)
	}
}

func TestExponential_DoublesEachAttempt(t *testing.T) {
	e := backoff.NewExponential(time.Minute, 24*time.Hour)

	tests := []struct {
		attempt int
		want    time.Duration
	}{
		{1, 1 * time.Minute},  // 1 * 2^0
		{2, 2 * time.Minute},  // 1 * 2^1
		{3, 4 * time.Minute},  // 1 * 2^2
		{4, 8 * time.Minute},  // 1 * 2^3
		{5, 16 * time.Minute}, // 1 * 2^4
	}
	for _, tt := range tests {
		if got := e.Delay(tt.attempt); got != tt.want {
			t.Errorf("Delay(%d) = %v, want %v", tt.attempt, got, tt.want)
		}
	}
}

func TestExponential_CapsAtMax(t *testing.T) {
	e := backoff.NewExponential(time.Minute, 10*time.Minute)

	if got := e.Delay(20); got != 10*time.Minute {
		t.Errorf("Delay(20) = %v, want %v (capped at Max)", got, 10*time.Minute)
	}
}

func TestExponential_Monotone(t *testing.T) {
	e := backoff.NewExponential(30*time.Second, time.Hour)

	prev := time.Duration(0)
	for attempt := 1; attempt <= 12; attempt++ {
		d := e.Delay(attempt)
		if d < prev {
			t.Fatalf("Delay(%d) = %v < Delay(%d) = %v, want non-decreasing", attempt, d, attempt-1, prev)
		}
		prev = d
	}
}

func TestExponentialWithJitter_StaysInRange(t *testing.T) {
	e := backoff.NewExponentialWithJitter(time.Minute, time.Hour)

	for attempt := 1; attempt <= 8; attempt++ {
		base := time.Minute * (1 << (attempt - 1))
		if base > time.Hour {
			base = time.Hour
		}
		for range 50 {
			d := e.Delay(attempt)
			if d < base/2 || d > base {
				t.Fatalf("Delay(%d) = %v, want in [%v, %v]", attempt, d, base/2, base)
			}
		}
	}
}

func TestDefaultStrategy_NotNil(t *testing.T) {
	s := backoff.DefaultStrategy()
	if s == nil {
		t.Fatal("DefaultStrategy returned nil")
	}
	if d := s.Delay(1); d <= 0 {
		t.Errorf("Delay(1) = %v, want positive", d)
	}
}
