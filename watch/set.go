// Package watch resolves the set of changes the operator watches and
// memoizes it for a short time-to-live.
package watch

import (
	"slices"
	"time"
)

// Set is an immutable snapshot of watched change numbers.
// The zero value is an empty set that was never fetched.
type Set struct {
	numbers   map[int]struct{}
	FetchedAt time.Time
}

// NewSet builds a Set from change numbers fetched at fetchedAt.
func NewSet(numbers []int, fetchedAt time.Time) Set {
	m := make(map[int]struct{}, len(numbers))
	for _, n := range numbers {
		m[n] = struct{}{}
	}
	return Set{numbers: m, FetchedAt: fetchedAt}
}

// Contains reports whether change number n is watched.
func (s Set) Contains(n int) bool {
	_, ok := s.numbers[n]
	return ok
}

// Len returns the number of watched changes.
func (s Set) Len() int {
	return len(s.numbers)
}

// Numbers returns the watched change numbers in ascending order.
func (s Set) Numbers() []int {
	out := make([]int, 0, len(s.numbers))
	for n := range s.numbers {
		out = append(out, n)
	}
	slices.Sort(out)
	return out
}

// Fetched reports whether the set came from a successful query.
func (s Set) Fetched() bool {
	return !s.FetchedAt.IsZero()
}

// Age returns how long ago the set was fetched, relative to now.
func (s Set) Age(now time.Time) time.Duration {
	return now.Sub(s.FetchedAt)
}
