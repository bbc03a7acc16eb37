package openingbook

import (
	"math/rand"
	"sync"

	chesslib "github.com/corentings/chess/v2"
	"github.com/corentings/chess/v2/opening"
)

var (
	ecoOnce sync.Once
	ecoBook *opening.BookECO
)

// Draw picks a reply by weight from the heaviest candidates that together
// hold mixedness percent of the total weight. mixedness 100 draws over all
// candidates; 0 always takes the heaviest. candidates must be sorted
// heaviest first.
func Draw(candidates []Candidate, mixedness int, r *rand.Rand) (Candidate, bool) {
	if len(candidates) == 0 {
		return Candidate{}, false
	}
	if mixedness < 0 {
		mixedness = 0
	}
	if mixedness > 100 {
		mixedness = 100
	}

	total := 0
	for _, c := range candidates {
		total += c.Weight
	}
	if total <= 0 {
		return candidates[0], true
	}

	pool := topShare(candidates, total, mixedness)
	if r == nil || len(pool) == 1 {
		return pool[0], true
	}

	poolTotal := 0
	for _, c := range pool {
		poolTotal += c.Weight
	}
	roll := r.Intn(poolTotal)
	cumulative := 0
	for _, c := range pool {
		cumulative += c.Weight
		if roll < cumulative {
			return c, true
		}
	}
	return pool[len(pool)-1], true
}

func topShare(candidates []Candidate, total, mixedness int) []Candidate {
	threshold := total * mixedness
	cumulative := 0
	for i, c := range candidates {
		cumulative += c.Weight
		if cumulative*100 >= threshold {
			return candidates[:i+1]
		}
	}
	return candidates
}

// Pick looks fen up and draws one reply.
func (b *Book) Pick(fen string, mixedness int, r *rand.Rand) (Candidate, bool, error) {
	candidates, err := b.Lookup(fen)
	if err != nil {
		return Candidate{}, false, err
	}
	c, ok := Draw(candidates, mixedness, r)
	return c, ok, nil
}

// Label names the opening reached by game, if the ECO table knows it.
func Label(game *chesslib.Game) (code, title string) {
	if game == nil {
		return "", ""
	}
	ecoOnce.Do(func() {
		ecoBook = opening.NewBookECO()
	})
	if eco := ecoBook.Find(game.Moves()); eco != nil {
		return eco.Code(), eco.Title()
	}
	return "", ""
}
