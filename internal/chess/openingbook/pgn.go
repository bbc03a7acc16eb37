package openingbook

import (
	"bufio"
	"fmt"
	"io"
	"strings"

	chesslib "github.com/corentings/chess/v2"
)

// LoadPGN builds a book from a multi-game PGN repertoire. Every position on a
// main line gains one unit of weight for the move played from it.
func LoadPGN(r io.Reader) (*Book, error) {
	chunks, err := splitGames(r)
	if err != nil {
		return nil, err
	}
	b := &Book{entries: make(map[string][]Candidate)}
	for i, chunk := range chunks {
		opt, err := chesslib.PGN(strings.NewReader(chunk))
		if err != nil {
			return nil, fmt.Errorf("parse game %d: %w", i+1, err)
		}
		game := chesslib.NewGame(opt)

		replay := chesslib.NewGame()
		for _, mv := range game.Moves() {
			uci := mv.String()
			key := PositionKey(replay.FEN())
			if err := replay.PushNotationMove(uci, chesslib.UCINotation{}, nil); err != nil {
				return nil, fmt.Errorf("game %d: replay %q: %w", i+1, uci, err)
			}
			b.add(key, uci, 1)
		}
	}
	b.sortAll()
	return b, nil
}

// splitGames cuts a PGN stream at the tag section that follows movetext.
func splitGames(r io.Reader) ([]string, error) {
	var (
		games    []string
		cur      strings.Builder
		sawMoves bool
	)
	flush := func() {
		if sawMoves && strings.TrimSpace(cur.String()) != "" {
			games = append(games, cur.String())
		}
		cur.Reset()
		sawMoves = false
	}

	sc := bufio.NewScanner(r)
	sc.Buffer(make([]byte, 0, 64*1024), 1<<20)
	for sc.Scan() {
		line := strings.TrimSpace(sc.Text())
		if strings.HasPrefix(line, "[") && sawMoves {
			flush()
		}
		if line != "" && !strings.HasPrefix(line, "[") {
			sawMoves = true
		}
		cur.WriteString(line)
		cur.WriteString("\n")
	}
	if err := sc.Err(); err != nil {
		return nil, fmt.Errorf("read pgn: %w", err)
	}
	flush()
	return games, nil
}
