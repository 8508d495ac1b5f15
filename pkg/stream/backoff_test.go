package stream

import (
	"testing"
	"time"
)

func TestBackoffRaw(t *testing.T) {
	b := NewBackoffWithRand(time.Second, 30*time.Second, func() float64 { return 0 })

	tests := []struct {
		retry    int
		expected time.Duration
	}{
		{0, 1 * time.Second},
		{1, 1 * time.Second},
		{2, 2 * time.Second},
		{3, 4 * time.Second},
		{5, 16 * time.Second},
		{6, 30 * time.Second}, // Maxed out
		{10, 30 * time.Second},
		{200, 30 * time.Second},
	}

	for _, tt := range tests {
		if got := b.Raw(tt.retry); got != tt.expected {
			t.Errorf("Raw(%d) = %v; want %v", tt.retry, got, tt.expected)
		}
	}
}

func TestBackoffFirstRetryWindow(t *testing.T) {
	for _, j := range []float64{0, 0.25, 0.5, 0.999} {
		b := NewBackoffWithRand(time.Second, 30*time.Second, func() float64 { return j })
		got := b.Delay(1)
		if got < time.Second || got > 1200*time.Millisecond {
			t.Errorf("Delay(1) with jitter %v = %v; want within [1s, 1.2s]", j, got)
		}
	}
}

func TestBackoffNonDecreasingAndCapped(t *testing.T) {
	b := NewBackoff(250*time.Millisecond, 5*time.Second)
	prev := time.Duration(0)
	for n := 1; n <= 40; n++ {
		raw := b.Raw(n)
		if raw < prev {
			t.Fatalf("Raw(%d) = %v decreased from %v", n, raw, prev)
		}
		if raw > b.Max {
			t.Fatalf("Raw(%d) = %v exceeds max %v", n, raw, b.Max)
		}
		if d := b.Delay(n); d < raw || d > b.Ceiling() {
			t.Fatalf("Delay(%d) = %v outside [%v, %v]", n, d, raw, b.Ceiling())
		}
		prev = raw
	}
}

func TestBackoffCeilingAfterManyFailures(t *testing.T) {
	b := NewBackoffWithRand(time.Second, 30*time.Second, func() float64 { return 0.999 })
	got := b.Delay(8)
	if got < 30*time.Second || got > 36*time.Second {
		t.Errorf("Delay(8) = %v; want capped at 30s plus at most 20%%", got)
	}
}
