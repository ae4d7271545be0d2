// Package sampler picks a bounded, varied subset of a target's items for
// summarization.
package sampler

import (
	"math/rand/v2"
	"slices"

	"placewatch/internal/model"
	"placewatch/internal/textutil"
)

// Quotas size each selection stage.
type Quotas struct {
	// Recent items are taken from the head of the (newest-first) input.
	Recent int
	// Longest items are taken by descending text length.
	Longest int
	// Extreme items are drawn at random among ratings in ExtremeRatings.
	Extreme int
	// MinLength drops items whose cleaned text is not longer than this.
	MinLength int
	// ExtremeRatings lists the ratings that count as extreme.
	ExtremeRatings []float64
}

// DefaultTotal is the usual selection size.
const DefaultTotal = 50

// DefaultQuotas returns 20 recent, 10 longest and 10 extreme items.
func DefaultQuotas() Quotas {
	return Quotas{
		Recent:         20,
		Longest:        10,
		Extreme:        10,
		MinLength:      20,
		ExtremeRatings: []float64{1, 2, 5},
	}
}

// Sampler selects items. It is not safe for concurrent use because of its
// random source.
type Sampler struct {
	q   Quotas
	rnd *rand.Rand
}

// New creates a Sampler. A nil rnd uses a randomly seeded source.
func New(q Quotas, rnd *rand.Rand) *Sampler {
	if rnd == nil {
		rnd = rand.New(rand.NewPCG(rand.Uint64(), rand.Uint64()))
	}
	return &Sampler{q: q, rnd: rnd}
}

// Select returns at most total items from items, which must be ordered newest
// first. When the qualifying pool already fits, it is returned whole.
// Otherwise the stages run in order (recent, longest, extreme, random fill),
// each skipping what an earlier stage took.
func (s *Sampler) Select(items []model.FeedbackItem, total int) []model.FeedbackItem {
	if total <= 0 {
		return nil
	}

	pool := make([]model.FeedbackItem, 0, len(items))
	lengths := make([]int, 0, len(items))
	for _, it := range items {
		n := textutil.Length(it.Text)
		if n > s.q.MinLength {
			pool = append(pool, it)
			lengths = append(lengths, n)
		}
	}
	if len(pool) <= total {
		return pool
	}

	taken := make([]bool, len(pool))
	picked := make([]int, 0, total)
	take := func(i int) bool {
		if taken[i] || len(picked) >= total {
			return false
		}
		taken[i] = true
		picked = append(picked, i)
		return true
	}

	// Recent.
	for i := range min(s.q.Recent, len(pool)) {
		take(i)
	}

	// Longest; ties keep newest first.
	byLength := indexes(len(pool))
	slices.SortStableFunc(byLength, func(a, b int) int { return lengths[b] - lengths[a] })
	for _, i := range byLength[:min(s.q.Longest, len(byLength))] {
		take(i)
	}

	// Extreme ratings, drawn at random.
	var extreme []int
	for i, it := range pool {
		if it.Rating != nil && slices.Contains(s.q.ExtremeRatings, *it.Rating) {
			extreme = append(extreme, i)
		}
	}
	s.rnd.Shuffle(len(extreme), func(a, b int) { extreme[a], extreme[b] = extreme[b], extreme[a] })
	for _, i := range extreme[:min(s.q.Extreme, len(extreme))] {
		take(i)
	}

	// Random fill.
	var rest []int
	for i := range pool {
		if !taken[i] {
			rest = append(rest, i)
		}
	}
	s.rnd.Shuffle(len(rest), func(a, b int) { rest[a], rest[b] = rest[b], rest[a] })
	for _, i := range rest {
		if len(picked) >= total {
			break
		}
		take(i)
	}

	out := make([]model.FeedbackItem, len(picked))
	for k, i := range picked {
		out[k] = pool[i]
	}
	return out
}

func indexes(n int) []int {
	idx := make([]int, n)
	for i := range idx {
		idx[i] = i
	}
	return idx
}
