package openingbook

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	chesslib "github.com/corentings/chess/v2"
)

// Candidate is one repertoire reply with its weight.
type Candidate struct {
	Move   string `json:"move"`
	Weight int    `json:"weight"`
}

// Entry lists every reply known for one canonical position.
type Entry struct {
	PositionKey string      `json:"position_key"`
	Candidates  []Candidate `json:"candidates"`
}

// Book is immutable after construction and safe for concurrent lookups.
type Book struct {
	entries  map[string][]Candidate
	polyglot *chesslib.PolyglotBook
}

// PositionKey keeps the first four FEN fields.
func PositionKey(fen string) string {
	fields := strings.Fields(fen)
	if len(fields) > 4 {
		fields = fields[:4]
	}
	return strings.Join(fields, " ")
}

// Load reads a polyglot .bin book or a PGN repertoire, chosen by extension.
func Load(path string) (*Book, error) {
	path = strings.TrimSpace(path)
	if path == "" {
		return nil, fmt.Errorf("opening book path required")
	}
	if strings.EqualFold(filepath.Ext(path), ".bin") {
		pg, err := LoadFromPath(path)
		if err != nil {
			return nil, err
		}
		return &Book{entries: map[string][]Candidate{}, polyglot: pg}, nil
	}

	file, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open repertoire %q: %w", path, err)
	}
	defer file.Close()

	book, err := LoadPGN(file)
	if err != nil {
		return nil, fmt.Errorf("load repertoire %q: %w", path, err)
	}
	return book, nil
}

func LoadFromPath(bookPath string) (*chesslib.PolyglotBook, error) {
	if strings.TrimSpace(bookPath) == "" {
		return nil, fmt.Errorf("polyglot book path required")
	}
	file, err := os.Open(bookPath)
	if err != nil {
		return nil, fmt.Errorf("open polyglot book %q: %w", bookPath, err)
	}
	defer file.Close()

	book, err := chesslib.LoadFromReader(file)
	if err != nil {
		return nil, fmt.Errorf("load polyglot book %q: %w", bookPath, err)
	}
	return book, nil
}

// ResolveBookPath returns configured when it exists, otherwise the first
// bundled repertoire found. An empty result means no book.
func ResolveBookPath(configured string) (string, error) {
	if configured = strings.TrimSpace(configured); configured != "" {
		if exists(configured) {
			return configured, nil
		}
		return "", fmt.Errorf("opening book points to missing file: %s", configured)
	}
	for _, candidate := range defaultBookPaths() {
		if exists(candidate) {
			return candidate, nil
		}
	}
	return "", nil
}

func defaultBookPaths() []string {
	return []string{
		filepath.Join("resources", "opening", "repertoire.pgn"),
		filepath.Join("resources", "opening", "book.bin"),
	}
}

func exists(path string) bool {
	if path == "" {
		return false
	}
	_, err := os.Stat(path)
	return err == nil
}

// FromEntries builds a book from explicit entries. Duplicate moves merge weights.
func FromEntries(entries []Entry) *Book {
	b := &Book{entries: make(map[string][]Candidate, len(entries))}
	for _, e := range entries {
		key := PositionKey(e.PositionKey)
		for _, c := range e.Candidates {
			b.add(key, c.Move, c.Weight)
		}
	}
	b.sortAll()
	return b
}

func (b *Book) add(key, move string, weight int) {
	move = strings.ToLower(strings.TrimSpace(move))
	if move == "" || weight <= 0 {
		return
	}
	list := b.entries[key]
	for i := range list {
		if list[i].Move == move {
			list[i].Weight += weight
			return
		}
	}
	b.entries[key] = append(list, Candidate{Move: move, Weight: weight})
}

func (b *Book) sortAll() {
	for _, list := range b.entries {
		sortCandidates(list)
	}
}

func sortCandidates(list []Candidate) {
	sort.SliceStable(list, func(i, j int) bool {
		if list[i].Weight == list[j].Weight {
			return list[i].Move < list[j].Move
		}
		return list[i].Weight > list[j].Weight
	})
}

// Len is the number of positions with at least one reply.
func (b *Book) Len() int {
	if b == nil {
		return 0
	}
	return len(b.entries)
}

func (b *Book) HasPolyglot() bool {
	return b != nil && b.polyglot != nil
}

// Lookup returns the replies for fen, heaviest first. The PGN table wins over
// the polyglot book when both know the position.
func (b *Book) Lookup(fen string) ([]Candidate, error) {
	if b == nil {
		return nil, nil
	}
	if list, ok := b.entries[PositionKey(fen)]; ok && len(list) > 0 {
		return append([]Candidate(nil), list...), nil
	}
	if b.polyglot == nil {
		return nil, nil
	}

	hashStr, err := chesslib.NewZobristHasher().HashPosition(fen)
	if err != nil {
		return nil, fmt.Errorf("compute polyglot hash: %w", err)
	}
	found := b.polyglot.FindMoves(chesslib.ZobristHashToUint64(hashStr))
	if len(found) == 0 {
		return nil, nil
	}
	out := make([]Candidate, 0, len(found))
	for _, entry := range found {
		move := chesslib.DecodeMove(entry.Move).ToMove()
		if entry.Weight == 0 {
			continue
		}
		out = append(out, Candidate{Move: move.String(), Weight: int(entry.Weight)})
	}
	sortCandidates(out)
	return out, nil
}

// Entries returns a snapshot of the PGN table ordered by key.
func (b *Book) Entries() []Entry {
	if b == nil {
		return nil
	}
	keys := make([]string, 0, len(b.entries))
	for k := range b.entries {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	out := make([]Entry, 0, len(keys))
	for _, k := range keys {
		out = append(out, Entry{PositionKey: k, Candidates: append([]Candidate(nil), b.entries[k]...)})
	}
	return out
}
