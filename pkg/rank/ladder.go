package rank

import (
	"errors"
	"fmt"
	"slices"
	"sort"

	"github.com/shopspring/decimal"

	"github.com/hearthquest/quest-engine-common/pkg/domain"
)

// Ladder is the rank ladder sorted ascending by XP threshold.
// Ranks with equal thresholds keep their declaration order, so the later one wins a tie.
// A Ladder is immutable and safe for concurrent use.
type Ladder struct {
	ranks []domain.RankDefinition
	index map[string]int
}

// Progress describes where an XP total sits on the ladder.
type Progress struct {
	Current domain.RankDefinition
	Index   int
	// Next is nil at the ceiling.
	Next *domain.RankDefinition
	// XPIntoRank is the XP earned above the current rank's threshold.
	XPIntoRank decimal.Decimal
	// XPToNext is the XP still needed for Next (zero at the ceiling).
	XPToNext decimal.Decimal
}

// NewLadder sorts ranks once and indexes them by ID.
// A rank with threshold 0 must exist so that every XP total maps to a rank.
func NewLadder(ranks []domain.RankDefinition) (*Ladder, error) {
	if len(ranks) == 0 {
		return nil, errors.New("rank ladder cannot be empty")
	}

	sorted := slices.Clone(ranks)
	slices.SortStableFunc(sorted, func(a, b domain.RankDefinition) int {
		switch {
		case a.XPThreshold < b.XPThreshold:
			return -1
		case a.XPThreshold > b.XPThreshold:
			return 1
		default:
			return 0
		}
	})

	if sorted[0].XPThreshold != 0 {
		return nil, fmt.Errorf("rank ladder floor must have threshold 0, lowest is %d (%s)", sorted[0].XPThreshold, sorted[0].ID)
	}

	index := make(map[string]int, len(sorted))
	for i, r := range sorted {
		if _, dup := index[r.ID]; dup {
			return nil, fmt.Errorf("duplicate rank ID: %s", r.ID)
		}
		index[r.ID] = i
	}

	return &Ladder{ranks: sorted, index: index}, nil
}

// Ranks returns the sorted ladder.
func (l *Ladder) Ranks() []domain.RankDefinition {
	return slices.Clone(l.ranks)
}

// Len returns the number of ranks.
func (l *Ladder) Len() int {
	return len(l.ranks)
}

// Current returns the last rank whose threshold is <= totalXP, and its index.
// Negative totals map to the floor.
func (l *Ladder) Current(totalXP decimal.Decimal) (domain.RankDefinition, int) {
	i := l.indexFor(totalXP)
	return l.ranks[i], i
}

// Next returns the rank after the one totalXP reaches, or nil at the ceiling.
func (l *Ladder) Next(totalXP decimal.Decimal) *domain.RankDefinition {
	i := l.indexFor(totalXP) + 1
	if i >= len(l.ranks) {
		return nil
	}
	next := l.ranks[i]
	return &next
}

// IndexOf returns the ladder position of rankID.
func (l *Ladder) IndexOf(rankID string) (int, bool) {
	i, ok := l.index[rankID]
	return i, ok
}

// Progress returns the current rank, the next rank and the XP distance between them.
func (l *Ladder) Progress(totalXP decimal.Decimal) Progress {
	current, i := l.Current(totalXP)
	p := Progress{
		Current:    current,
		Index:      i,
		Next:       l.Next(totalXP),
		XPIntoRank: decimal.Max(totalXP.Sub(decimal.NewFromInt(current.XPThreshold)), decimal.Zero),
		XPToNext:   decimal.Zero,
	}
	if p.Next != nil {
		p.XPToNext = decimal.NewFromInt(p.Next.XPThreshold).Sub(totalXP)
	}
	return p
}

// indexFor finds the first threshold above totalXP and steps back one.
func (l *Ladder) indexFor(totalXP decimal.Decimal) int {
	above := sort.Search(len(l.ranks), func(i int) bool {
		return decimal.NewFromInt(l.ranks[i].XPThreshold).GreaterThan(totalXP)
	})
	if above == 0 {
		return 0
	}
	return above - 1
}
