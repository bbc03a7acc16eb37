package lichess

import (
	"fmt"
	"strings"

	"github.com/park285/cheese-lichess-bot/internal/domain"
)

// Event types on the account stream.
const (
	EventChallenge         = "challenge"
	EventGameStart         = "gameStart"
	EventGameFinish        = "gameFinish"
	EventChallengeCanceled = "challengeCanceled"
	EventChallengeDeclined = "challengeDeclined"
)

// Event types on a game stream.
const (
	GameFull     = "gameFull"
	GameStateMsg = "gameState"
	ChatLine     = "chatLine"
	OpponentGone = "opponentGone"
)

type Account struct {
	ID       string `json:"id"`
	Username string `json:"username"`
	Title    string `json:"title"`
}

type User struct {
	ID   string `json:"id"`
	Name string `json:"name"`
}

type Variant struct {
	Key  string `json:"key"`
	Name string `json:"name"`
}

type Challenge struct {
	ID         string  `json:"id"`
	Variant    Variant `json:"variant"`
	Speed      string  `json:"speed"`
	Rated      bool    `json:"rated"`
	Challenger *User   `json:"challenger"`
	DestUser   *User   `json:"destUser"`
}

// Domain maps the wire challenge onto what the policy evaluates.
func (c Challenge) Domain() domain.Challenge {
	out := domain.Challenge{
		ID:         c.ID,
		VariantKey: c.Variant.Key,
		Speed:      domain.ParseSpeed(c.Speed),
		Rated:      c.Rated,
	}
	if c.Challenger != nil {
		out.ChallengerID = c.Challenger.ID
	}
	return out
}

type GameRef struct {
	ID     string `json:"id"`
	GameID string `json:"gameId"`
}

// Key prefers gameId; older payloads only carry id.
func (g GameRef) Key() string {
	if g.GameID != "" {
		return g.GameID
	}
	return g.ID
}

type Event struct {
	Type      string     `json:"type"`
	Challenge *Challenge `json:"challenge,omitempty"`
	Game      *GameRef   `json:"game,omitempty"`
}

type Player struct {
	ID      string `json:"id"`
	Name    string `json:"name"`
	AILevel int    `json:"aiLevel"`
}

// Identity is the name the bot compares its own name against. Built-in
// opponents have no account and are named by strength.
func (p Player) Identity() string {
	switch {
	case p.Name != "":
		return p.Name
	case p.ID != "":
		return p.ID
	case p.AILevel > 0:
		return fmt.Sprintf("Stockfish AI level %d", p.AILevel)
	default:
		return ""
	}
}

func (p Player) Is(name string) bool {
	name = strings.TrimSpace(name)
	if name == "" {
		return false
	}
	return strings.EqualFold(p.Name, name) || strings.EqualFold(p.ID, name)
}

type GameState struct {
	Moves  string `json:"moves"`
	WTime  int64  `json:"wtime"`
	BTime  int64  `json:"btime"`
	WInc   int64  `json:"winc"`
	BInc   int64  `json:"binc"`
	Status string `json:"status"`
	Winner string `json:"winner,omitempty"`
	WDraw  bool   `json:"wdraw,omitempty"`
	BDraw  bool   `json:"bdraw,omitempty"`
}

func (s GameState) Clock() domain.Clock {
	return domain.Clock{WTime: s.WTime, BTime: s.BTime, WInc: s.WInc, BInc: s.BInc}
}

func (s GameState) GameStatus() domain.GameStatus {
	return domain.GameStatus(s.Status)
}

// GameEvent is one line of a game stream. gameFull nests its state under
// "state"; gameState carries the state fields at the top level.
type GameEvent struct {
	Type       string     `json:"type"`
	ID         string     `json:"id,omitempty"`
	White      Player     `json:"white"`
	Black      Player     `json:"black"`
	InitialFen string     `json:"initialFen,omitempty"`
	State      *GameState `json:"state,omitempty"`
	GameState

	Username string `json:"username,omitempty"`
	Text     string `json:"text,omitempty"`
	Gone     bool   `json:"gone,omitempty"`
}

// CurrentState returns the state carried by a gameFull or gameState line.
func (e GameEvent) CurrentState() (GameState, bool) {
	switch e.Type {
	case GameFull:
		if e.State == nil {
			return GameState{}, false
		}
		return *e.State, true
	case GameStateMsg:
		return e.GameState, true
	default:
		return GameState{}, false
	}
}
