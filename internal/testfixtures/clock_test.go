package testfixtures

import (
	"testing"
	"time"
)

func TestClockDefaultsToReferenceTime(t *testing.T) {
	clock := NewClock(time.Time{})
	if !clock.Now().Equal(ReferenceTime()) {
		t.Fatalf("expected ReferenceTime, got %v", clock.Now())
	}
	// 15:04 UTC is already the next day in Tokyo.
	if got := clock.Today(JST); got != Date("2024-01-03") {
		t.Fatalf("expected 2024-01-03 in JST, got %s", got)
	}
	if got := clock.Today(time.UTC); got != Date("2024-01-02") {
		t.Fatalf("expected 2024-01-02 in UTC, got %s", got)
	}
}

func TestClockWallClockAndAdvance(t *testing.T) {
	clock := NewClock(time.Time{})
	nowFn := clock.NowFunc()

	at := clock.SetWallClock(Date("2024-01-31"), 8, 45, JST)
	if want := time.Date(2024, time.January, 31, 8, 45, 0, 0, JST); !at.Equal(want) || !nowFn().Equal(want) {
		t.Fatalf("expected %v, got %v / %v", want, at, nowFn())
	}

	updated := clock.Advance(16 * time.Hour)
	if clock.Today(JST) != Date("2024-02-01") {
		t.Fatalf("expected rollover to 2024-02-01, clock reads %v", updated)
	}
}
