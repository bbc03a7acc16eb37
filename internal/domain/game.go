package domain

import "strings"

// Color identifies a side.
type Color string

const (
	White Color = "white"
	Black Color = "black"
)

func (c Color) Opposite() Color {
	if c == White {
		return Black
	}
	return White
}

// Clock holds both sides' remaining time and increment in milliseconds.
type Clock struct {
	WTime int64 `json:"wtime"`
	BTime int64 `json:"btime"`
	WInc  int64 `json:"winc"`
	BInc  int64 `json:"binc"`
}

// Remaining returns the remaining time and increment of the given side.
func (c Clock) Remaining(color Color) (int64, int64) {
	if color == Black {
		return c.BTime, c.BInc
	}
	return c.WTime, c.WInc
}

// Spend subtracts elapsed milliseconds from both sides, flooring each at min.
func (c Clock) Spend(elapsedMs, min int64) Clock {
	out := c
	out.WTime = floorAt(c.WTime-elapsedMs, min)
	out.BTime = floorAt(c.BTime-elapsedMs, min)
	return out
}

func floorAt(v, min int64) int64 {
	if v < min {
		return min
	}
	return v
}

// GameStatus is the status tag carried by a game state update.
type GameStatus string

const (
	StatusCreated       GameStatus = "created"
	StatusStarted       GameStatus = "started"
	StatusAborted       GameStatus = "aborted"
	StatusMate          GameStatus = "mate"
	StatusResign        GameStatus = "resign"
	StatusStalemate     GameStatus = "stalemate"
	StatusTimeout       GameStatus = "timeout"
	StatusDraw          GameStatus = "draw"
	StatusOutOfTime     GameStatus = "outoftime"
	StatusCheat         GameStatus = "cheat"
	StatusNoStart       GameStatus = "noStart"
	StatusUnknownFinish GameStatus = "unknownFinish"
	StatusVariantEnd    GameStatus = "variantEnd"
)

// Ongoing reports whether moves may still be played under this status.
func (s GameStatus) Ongoing() bool {
	switch GameStatus(strings.TrimSpace(string(s))) {
	case StatusCreated, StatusStarted, "":
		return true
	default:
		return false
	}
}
