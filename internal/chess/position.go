package chess

import (
	"errors"
	"fmt"
	"strings"

	chesslib "github.com/corentings/chess/v2"

	"github.com/park285/cheese-lichess-bot/internal/chess/openingbook"
	"github.com/park285/cheese-lichess-bot/internal/domain"
)

var (
	ErrIllegalMove  = errors.New("illegal move")
	ErrNoLegalMoves = errors.New("no legal moves")
)

// Position is an immutable board state reached from a start position by a
// sequence of UCI moves. Push returns a new Position.
type Position struct {
	game  *chesslib.Game
	start string
	moves []string
}

func StartPosition() Position {
	return Position{game: chesslib.NewGame()}
}

// FromFEN starts a position from fen. An empty fen or "startpos" is the
// standard start.
func FromFEN(fen string) (Position, error) {
	game, start, err := newGame(fen)
	if err != nil {
		return Position{}, err
	}
	return Position{game: game, start: start}, nil
}

func newGame(fen string) (*chesslib.Game, string, error) {
	fen = strings.TrimSpace(fen)
	if fen == "" || fen == "startpos" {
		return chesslib.NewGame(), "", nil
	}
	option, err := chesslib.FEN(fen)
	if err != nil {
		return nil, "", fmt.Errorf("%w: start fen %q: %v", ErrIllegalMove, fen, err)
	}
	return chesslib.NewGame(option), fen, nil
}

// Replay rebuilds the position from the standard start. Any token that does
// not parse or is illegal in sequence yields ErrIllegalMove.
func Replay(moves []string) (Position, error) {
	return ReplayFrom("", moves)
}

// ReplayFrom rebuilds the position from initialFEN, pushing every move onto
// one game.
func ReplayFrom(initialFEN string, moves []string) (Position, error) {
	game, start, err := newGame(initialFEN)
	if err != nil {
		return Position{}, err
	}
	tokens := make([]string, 0, len(moves))
	for i, mv := range moves {
		token := strings.ToLower(strings.TrimSpace(mv))
		if token == "" {
			return Position{}, fmt.Errorf("replay ply %d: %w: empty token", i+1, ErrIllegalMove)
		}
		if err := game.PushNotationMove(token, chesslib.UCINotation{}, nil); err != nil {
			return Position{}, fmt.Errorf("replay ply %d: %w: %q: %v", i+1, ErrIllegalMove, token, err)
		}
		tokens = append(tokens, token)
	}
	return Position{game: game, start: start, moves: tokens}, nil
}

// ParseMoves splits a space separated move history.
func ParseMoves(s string) []string {
	return strings.Fields(s)
}

func (p Position) Push(move string) (Position, error) {
	token := strings.ToLower(strings.TrimSpace(move))
	if token == "" {
		return Position{}, fmt.Errorf("%w: empty token", ErrIllegalMove)
	}
	game := p.current().Clone()
	if err := game.PushNotationMove(token, chesslib.UCINotation{}, nil); err != nil {
		return Position{}, fmt.Errorf("%w: %q: %v", ErrIllegalMove, token, err)
	}
	moves := make([]string, len(p.moves), len(p.moves)+1)
	copy(moves, p.moves)
	return Position{game: game, start: p.start, moves: append(moves, token)}, nil
}

func (p Position) current() *chesslib.Game {
	if p.game == nil {
		return chesslib.NewGame()
	}
	return p.game
}

// StartFEN is the position the move list is played from; empty means the
// standard start.
func (p Position) StartFEN() string {
	return p.start
}

func (p Position) FEN() string {
	return p.current().FEN()
}

// Key is the canonical lookup key: placement, side to move, castling rights
// and en-passant square. Move counters are dropped.
func (p Position) Key() string {
	return CanonicalKey(p.FEN())
}

func CanonicalKey(fen string) string {
	return openingbook.PositionKey(fen)
}

func (p Position) Turn() domain.Color {
	if p.current().Position().Turn() == chesslib.Black {
		return domain.Black
	}
	return domain.White
}

func (p Position) Ply() int {
	return len(p.moves)
}

func (p Position) Moves() []string {
	return append([]string(nil), p.moves...)
}

// Game exposes a copy of the underlying game for notation and labelling.
func (p Position) Game() *chesslib.Game {
	return p.current().Clone()
}

func (p Position) LegalMoves() []string {
	valid := p.current().ValidMoves()
	out := make([]string, 0, len(valid))
	for _, mv := range valid {
		out = append(out, mv.String())
	}
	return out
}

func (p Position) IsLegal(move string) bool {
	token := strings.ToLower(strings.TrimSpace(move))
	if token == "" {
		return false
	}
	for _, mv := range p.LegalMoves() {
		if mv == token {
			return true
		}
	}
	return false
}
