package usecase

import (
	"testing"
	"time"
)

func TestNextRetryDelayDoublesPerAttempt(t *testing.T) {
	base := 30 * time.Second
	cap := time.Hour

	cases := []struct {
		attempt int
		want    time.Duration
	}{
		{attempt: 1, want: 30 * time.Second},
		{attempt: 2, want: 60 * time.Second},
		{attempt: 3, want: 120 * time.Second},
		{attempt: 0, want: 30 * time.Second},
	}
	for _, tc := range cases {
		if got := NextRetryDelay(tc.attempt, base, cap); got != tc.want {
			t.Fatalf("NextRetryDelay(%d) = %v, want %v", tc.attempt, got, tc.want)
		}
	}
}

func TestNextRetryDelayHonorsCap(t *testing.T) {
	if got := NextRetryDelay(10, 30*time.Second, time.Hour); got != time.Hour {
		t.Fatalf("expected cap, got %v", got)
	}
	// Huge attempt counts must not overflow past the cap.
	if got := NextRetryDelay(500, 30*time.Second, time.Hour); got != time.Hour {
		t.Fatalf("expected cap for large attempt, got %v", got)
	}
}
