// Package wheel implements the prize wheel: the weighted discount draw, the
// coupon code mint, and the spin authorization state machine.
package wheel

import (
	"errors"
	"math/rand"
	"sync"
)

// WeightedDiscount pairs a discount percentage with its draw weight.
type WeightedDiscount struct {
	Percent int
	Weight  int
}

// DefaultDiscounts is the production prize table.
var DefaultDiscounts = []WeightedDiscount{
	{Percent: 10, Weight: 45},
	{Percent: 15, Weight: 25},
	{Percent: 20, Weight: 15},
	{Percent: 30, Weight: 10},
	{Percent: 50, Weight: 5},
}

// Selector draws a discount percentage from a fixed weighted table. The
// random source is injected so tests can seed it.
type Selector struct {
	mu    sync.Mutex
	table []WeightedDiscount
	total int
	rng   *rand.Rand
}

// NewSelector validates the table and builds a selector around the source.
func NewSelector(table []WeightedDiscount, src rand.Source) (*Selector, error) {
	if len(table) == 0 {
		return nil, errors.New("wheel: discount table is empty")
	}
	total := 0
	for _, entry := range table {
		if entry.Weight <= 0 {
			return nil, errors.New("wheel: discount weights must be positive")
		}
		total += entry.Weight
	}
	return &Selector{
		table: append([]WeightedDiscount(nil), table...),
		total: total,
		rng:   rand.New(src),
	}, nil
}

// Pick draws a uniform roll in [0, totalWeight) and returns the percent of
// the entry the roll lands within.
func (s *Selector) Pick() int {
	s.mu.Lock()
	roll := s.rng.Intn(s.total)
	s.mu.Unlock()
	return s.pick(roll)
}

// pick walks the table accumulating weights. Entry i owns the half-open range
// [cumulative before i, cumulative after i), so a roll equal to a boundary
// belongs to the entry starting there and no roll can fall between entries.
func (s *Selector) pick(roll int) int {
	cumulative := 0
	for _, entry := range s.table {
		cumulative += entry.Weight
		if roll < cumulative {
			return entry.Percent
		}
	}
	// Unreachable while roll < total.
	return s.table[0].Percent
}
