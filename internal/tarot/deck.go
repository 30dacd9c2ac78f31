// Package tarot holds the card table and draw logic. Content is static
// product data; drawing uses crypto/rand so results are not predictable
// across process restarts.
package tarot

import (
	"crypto/rand"
	"fmt"
	"math/big"

	"telegram-tarot-miniapp/internal/domain/model"
)

// Card is one entry of the deck with short upright/reversed meanings used
// to seed the interpretation prompt.
type Card struct {
	Name     string
	Arcana   string
	Upright  string
	Reversed string
}

// ThreeCardPositions label a three-card spread in draw order.
var ThreeCardPositions = [3]string{"past", "present", "future"}

var majorArcana = []Card{
	{"The Fool", "major", "new beginnings, spontaneity, a leap of faith", "recklessness, hesitation, a false start"},
	{"The Magician", "major", "willpower, resourcefulness, manifestation", "manipulation, scattered energy, untapped talent"},
	{"The High Priestess", "major", "intuition, hidden knowledge, stillness", "secrets withheld, disconnected instincts"},
	{"The Empress", "major", "abundance, nurture, creativity", "dependence, creative block, smothering"},
	{"The Emperor", "major", "structure, authority, stability", "rigidity, domination, lack of discipline"},
	{"The Hierophant", "major", "tradition, guidance, shared beliefs", "rebellion, dogma questioned, unconventional paths"},
	{"The Lovers", "major", "union, alignment of values, a heartfelt choice", "disharmony, imbalance, avoidance of choice"},
	{"The Chariot", "major", "determination, momentum, victory through focus", "lost direction, opposition, stalled progress"},
	{"Strength", "major", "quiet courage, compassion, inner resolve", "self-doubt, raw emotion, depleted will"},
	{"The Hermit", "major", "introspection, solitude, inner guidance", "isolation, withdrawal, refusing counsel"},
	{"Wheel of Fortune", "major", "cycles turning, luck, a pivotal moment", "resistance to change, a setback in the cycle"},
	{"Justice", "major", "fairness, truth, consequences owned", "dishonesty, imbalance, accountability avoided"},
	{"The Hanged Man", "major", "surrender, a new perspective, pause", "stalling, sacrifice without gain"},
	{"Death", "major", "transformation, an ending that frees", "clinging to the past, change resisted"},
	{"Temperance", "major", "balance, patience, measured blending", "excess, impatience, competing pulls"},
	{"The Devil", "major", "attachment, temptation, self-imposed limits", "release, reclaiming power, breaking chains"},
	{"The Tower", "major", "sudden upheaval, revelation, collapse of the false", "disaster averted, feared change delayed"},
	{"The Star", "major", "hope, renewal, quiet faith", "discouragement, faith dimmed, disconnection"},
	{"The Moon", "major", "uncertainty, dreams, the unconscious surfacing", "clarity emerging, fears dispelled"},
	{"The Sun", "major", "joy, vitality, plain success", "clouded optimism, delayed wins"},
	{"Judgement", "major", "awakening, reckoning, a call answered", "self-judgement, a call ignored"},
	{"The World", "major", "completion, wholeness, arrival", "loose ends, a cycle left unclosed"},
}

// Deck draws cards without replacement.
type Deck struct {
	cards []Card
}

func NewDeck() *Deck {
	return &Deck{cards: majorArcana}
}

func (d *Deck) Size() int { return len(d.cards) }

// Lookup returns the card by name, for prompt building against persisted
// readings.
func (d *Deck) Lookup(name string) (Card, bool) {
	for _, c := range d.cards {
		if c.Name == name {
			return c, true
		}
	}
	return Card{}, false
}

// Draw picks n distinct cards, each independently upright or reversed.
// For three-card spreads the positions past/present/future are assigned
// in draw order.
func (d *Deck) Draw(n int) ([]model.DrawnCard, error) {
	if n <= 0 || n > len(d.cards) {
		return nil, fmt.Errorf("draw %d of %d cards", n, len(d.cards))
	}
	picked := make(map[int]bool, n)
	out := make([]model.DrawnCard, 0, n)
	for len(out) < n {
		idx, err := randInt(len(d.cards))
		if err != nil {
			return nil, err
		}
		if picked[idx] {
			continue
		}
		picked[idx] = true
		rev, err := randInt(2)
		if err != nil {
			return nil, err
		}
		dc := model.DrawnCard{
			Name:     d.cards[idx].Name,
			Arcana:   d.cards[idx].Arcana,
			Reversed: rev == 1,
		}
		if n == 3 {
			dc.Position = ThreeCardPositions[len(out)]
		}
		out = append(out, dc)
	}
	return out, nil
}

func randInt(n int) (int, error) {
	v, err := rand.Int(rand.Reader, big.NewInt(int64(n)))
	if err != nil {
		return 0, err
	}
	return int(v.Int64()), nil
}
