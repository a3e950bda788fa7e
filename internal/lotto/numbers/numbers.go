// Package numbers holds the shape rules for lotto number sets: six distinct
// integers in [1,45], stored sorted ascending.
package numbers

import (
	"math/rand"
	"slices"
)

const (
	// SetSize is the number of values in a complete set.
	SetSize = 6
	// Min and Max bound the value range, inclusive.
	Min = 1
	Max = 45
	// MaxBonus matches Max; the bonus number shares the range.
	MaxBonus = Max
)

// Validate normalizes a candidate number set. Values outside [1,45] are
// filtered, duplicates removed preserving order; a candidate that retains
// fewer than six values is rejected. The result is the first six survivors,
// sorted ascending.
func Validate(candidate []int) ([]int, bool) {
	seen := make(map[int]struct{}, len(candidate))
	valid := make([]int, 0, len(candidate))
	for _, n := range candidate {
		if n < Min || n > Max {
			continue
		}
		if _, ok := seen[n]; ok {
			continue
		}
		seen[n] = struct{}{}
		valid = append(valid, n)
	}

	if len(valid) < SetSize {
		return nil, false
	}

	valid = valid[:SetSize]
	slices.Sort(valid)
	return valid, true
}

// InBonusRange reports whether a bonus number is usable.
func InBonusRange(n int) bool {
	return n >= Min && n <= MaxBonus
}

// Random produces a local fallback set: six distinct uniform values in
// [1,45], sorted. It never touches the network and always terminates; over a
// 45-value domain the rejection loop finishes in a handful of draws.
func Random() []int {
	picked := make(map[int]struct{}, SetSize)
	result := make([]int, 0, SetSize)
	for len(result) < SetSize {
		n := rand.Intn(Max-Min+1) + Min
		if _, ok := picked[n]; ok {
			continue
		}
		picked[n] = struct{}{}
		result = append(result, n)
	}
	slices.Sort(result)
	return result
}

// MatchCount returns the size of the intersection of two number sets.
func MatchCount(a, b []int) int {
	inB := make(map[int]struct{}, len(b))
	for _, n := range b {
		inB[n] = struct{}{}
	}
	count := 0
	for _, n := range a {
		if _, ok := inB[n]; ok {
			count++
		}
	}
	return count
}
