package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	chesslib "github.com/corentings/chess/v2"
	_ "github.com/lib/pq"

	"github.com/park285/cheese-lichess-bot/internal/domain"
)

// Schema creates the archive table. It is applied by EnsureSchema.
const Schema = `CREATE TABLE IF NOT EXISTS bot_games (
    game_id    TEXT PRIMARY KEY,
    bot_name   TEXT NOT NULL,
    bot_color  TEXT NOT NULL,
    opponent   TEXT NOT NULL,
    status     TEXT NOT NULL,
    winner     TEXT NOT NULL,
    result     TEXT NOT NULL,
    moves_uci  JSONB NOT NULL,
    pgn        TEXT NOT NULL,
    started_at TIMESTAMPTZ NOT NULL,
    ended_at   TIMESTAMPTZ NOT NULL,
    duration_ms BIGINT NOT NULL
)`

// GameResult is the final record of one finished game.
type GameResult struct {
	GameID    string
	BotName   string
	BotColor  domain.Color
	Opponent  string
	Status    domain.GameStatus
	Winner    string
	MovesUCI  []string
	StartedAt time.Time
	EndedAt   time.Time
}

type ResultRepository struct {
	db *sql.DB
}

func NewResultRepository(databaseURL string) (*ResultRepository, error) {
	if strings.TrimSpace(databaseURL) == "" {
		return nil, fmt.Errorf("DATABASE_URL is required")
	}
	db, err := sql.Open("postgres", databaseURL)
	if err != nil {
		return nil, err
	}
	db.SetMaxOpenConns(8)
	db.SetMaxIdleConns(4)
	db.SetConnMaxLifetime(30 * time.Minute)
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return nil, err
	}
	return &ResultRepository{db: db}, nil
}

func (r *ResultRepository) Close() error {
	if r == nil || r.db == nil {
		return nil
	}
	return r.db.Close()
}

func (r *ResultRepository) EnsureSchema(ctx context.Context) error {
	if r == nil || r.db == nil {
		return nil
	}
	_, err := r.db.ExecContext(ctx, Schema)
	return err
}

// SaveResult upserts a finished game.
func (r *ResultRepository) SaveResult(ctx context.Context, g *GameResult) error {
	if r == nil || r.db == nil || g == nil {
		return nil
	}

	pgnResult := mapResultToPGN(g.Status, g.Winner)
	pgn := buildPGN(g, pgnResult)
	movesUCIRaw, _ := json.Marshal(g.MovesUCI)
	duration := g.EndedAt.Sub(g.StartedAt).Milliseconds()
	if duration < 0 {
		duration = 0
	}

	q := `INSERT INTO bot_games (
        game_id, bot_name, bot_color, opponent, status, winner, result,
        moves_uci, pgn, started_at, ended_at, duration_ms
      ) VALUES (
        $1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12
      ) ON CONFLICT (game_id) DO UPDATE SET
        status=EXCLUDED.status,
        winner=EXCLUDED.winner,
        result=EXCLUDED.result,
        moves_uci=EXCLUDED.moves_uci,
        pgn=EXCLUDED.pgn,
        ended_at=EXCLUDED.ended_at,
        duration_ms=EXCLUDED.duration_ms`

	_, err := r.db.ExecContext(ctx, q,
		g.GameID, g.BotName, string(g.BotColor), g.Opponent,
		string(g.Status), g.Winner, pgnResult,
		string(movesUCIRaw), pgn,
		g.StartedAt, g.EndedAt, duration,
	)
	return err
}

func mapResultToPGN(status domain.GameStatus, winner string) string {
	switch strings.ToLower(strings.TrimSpace(winner)) {
	case "white":
		return "1-0"
	case "black":
		return "0-1"
	}
	switch status {
	case domain.StatusDraw, domain.StatusStalemate:
		return "1/2-1/2"
	default:
		return "*"
	}
}

func buildPGN(g *GameResult, pgnResult string) string {
	if g == nil {
		return ""
	}
	white, black := g.BotName, g.Opponent
	if g.BotColor == domain.Black {
		white, black = black, white
	}
	date := g.EndedAt
	if date.IsZero() {
		date = time.Now()
	}

	var b strings.Builder
	b.WriteString("[Event \"Lichess bot game\"]\n")
	b.WriteString(fmt.Sprintf("[Site \"https://lichess.org/%s\"]\n", sanitizePGN(g.GameID)))
	b.WriteString(fmt.Sprintf("[Date \"%04d.%02d.%02d\"]\n", date.Year(), int(date.Month()), date.Day()))
	b.WriteString(fmt.Sprintf("[White \"%s\"]\n", sanitizePGN(white)))
	b.WriteString(fmt.Sprintf("[Black \"%s\"]\n", sanitizePGN(black)))
	if g.Status != "" {
		b.WriteString(fmt.Sprintf("[Termination \"%s\"]\n", sanitizePGN(string(g.Status))))
	}
	b.WriteString(fmt.Sprintf("[Result \"%s\"]\n\n", pgnResult))

	san := sanMoves(g.MovesUCI)
	for i := 0; i < len(san); i += 2 {
		turn := (i / 2) + 1
		b.WriteString(fmt.Sprintf("%d. %s", turn, san[i]))
		if i+1 < len(san) {
			b.WriteString(" ")
			b.WriteString(san[i+1])
		}
		b.WriteString(" ")
	}
	b.WriteString(pgnResult)
	return b.String()
}

// sanMoves converts UCI moves to SAN, stopping at the first move that does
// not apply.
func sanMoves(uci []string) []string {
	game := chesslib.NewGame()
	notationUCI := chesslib.UCINotation{}
	out := make([]string, 0, len(uci))
	for _, raw := range uci {
		pos := game.Position()
		mv, err := notationUCI.Decode(pos, strings.ToLower(strings.TrimSpace(raw)))
		if err != nil {
			break
		}
		san := chesslib.AlgebraicNotation{}.Encode(pos, mv)
		if err := game.PushNotationMove(raw, notationUCI, nil); err != nil {
			break
		}
		out = append(out, san)
	}
	return out
}

func sanitizePGN(s string) string {
	s = strings.ReplaceAll(s, "\\", " ")
	s = strings.ReplaceAll(s, "\"", "'")
	return strings.TrimSpace(s)
}
