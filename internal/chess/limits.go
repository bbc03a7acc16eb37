package chess

import (
	"time"

	"github.com/park285/cheese-lichess-bot/internal/domain"
)

const (
	minSearchWindow = time.Second
	maxSearchWindow = 20 * time.Second
	// movesToGo is the share of remaining time granted to a single decision.
	movesToGo = 20
	// PonderFloorMillis keeps the clock sent with a ponder search positive.
	PonderFloorMillis = 100
)

// SearchWindow is how long a decision may wait on the engine before it is
// told to stop.
func SearchWindow(clock domain.Clock, color domain.Color) time.Duration {
	remaining, inc := clock.Remaining(color)
	if remaining <= 0 && inc <= 0 {
		return minSearchWindow
	}
	window := time.Duration(remaining/movesToGo+inc) * time.Millisecond
	if window < minSearchWindow {
		return minSearchWindow
	}
	if window > maxSearchWindow {
		return maxSearchWindow
	}
	return window
}

// PonderClock is the clock handed to a speculative search started elapsed
// after the last update arrived.
func PonderClock(clock domain.Clock, elapsed time.Duration) domain.Clock {
	return clock.Spend(elapsed.Milliseconds(), PonderFloorMillis)
}
