package chess

import (
	"testing"
	"time"

	"github.com/park285/cheese-lichess-bot/internal/domain"
)

func TestSearchWindowClamps(t *testing.T) {
	cases := []struct {
		name  string
		clock domain.Clock
		color domain.Color
		want  time.Duration
	}{
		{"bullet floor", domain.Clock{WTime: 5000}, domain.White, time.Second},
		{"blitz share", domain.Clock{BTime: 180000, BInc: 2000}, domain.Black, 11 * time.Second},
		{"classical ceiling", domain.Clock{WTime: 1800000, WInc: 30000}, domain.White, 20 * time.Second},
		{"unknown clock", domain.Clock{}, domain.Black, time.Second},
	}
	for _, tc := range cases {
		if got := SearchWindow(tc.clock, tc.color); got != tc.want {
			t.Fatalf("%s: got %v want %v", tc.name, got, tc.want)
		}
	}
}

func TestPonderClockFloorsBothSides(t *testing.T) {
	got := PonderClock(domain.Clock{WTime: 60000, BTime: 150, WInc: 1000, BInc: 1000}, 500*time.Millisecond)
	if got.WTime != 59500 || got.BTime != PonderFloorMillis {
		t.Fatalf("unexpected clock %+v", got)
	}
	if got.WInc != 1000 || got.BInc != 1000 {
		t.Fatalf("increments must be untouched: %+v", got)
	}
}
