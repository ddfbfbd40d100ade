package xtypes

import (
	"testing"
	"time"
)

func TestTimePointAddSubRoundTrip(t *testing.T) {
	base := FromTime(time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC))
	later := base.Add(90 * time.Second)

	if got, want := later.Sub(base), 90*time.Second; got != want {
		t.Fatalf("Sub() = %v, want %v", got, want)
	}
	if !base.Before(later) || later.Before(base) {
		t.Fatal("Before should reflect chronological order")
	}
	if !later.After(base) || base.After(later) {
		t.Fatal("After should reflect chronological order")
	}
}

func TestTimePointTimeRoundTrip(t *testing.T) {
	want := time.Date(2026, 7, 31, 12, 30, 0, 0, time.UTC)
	tp := FromTime(want)
	if got := tp.Time().UTC(); !got.Equal(want) {
		t.Fatalf("Time() = %v, want %v", got, want)
	}
}
