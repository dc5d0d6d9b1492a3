// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

// Package sample reduces record sets to a bounded uniform random sample.
package sample

import (
	"math/rand/v2"
	"slices"
)

// NewRand returns a PCG-backed source. A negative seed draws a fresh seed
// from the runtime's entropy; any other value gives a reproducible stream.
func NewRand(seed int64) *rand.Rand {
	if seed < 0 {
		return rand.New(rand.NewPCG(rand.Uint64(), rand.Uint64()))
	}
	return rand.New(rand.NewPCG(uint64(seed), 0))
}

// ResolveSeed returns seed unchanged when it is non-negative and a freshly
// drawn non-negative seed otherwise, so a random run can be repeated.
func ResolveSeed(seed int64) int64 {
	if seed >= 0 {
		return seed
	}
	return rand.Int64()
}

// Derive returns a source for one input file. Files processed in the same run
// get independent streams, and the stream for a given (seed, key) pair does
// not depend on which other files were processed.
func Derive(seed int64, key int) *rand.Rand {
	if seed < 0 {
		return NewRand(seed)
	}
	return rand.New(rand.NewPCG(uint64(seed), uint64(key)))
}

// Sample returns min(len(items), maxSize) items chosen uniformly at random
// without replacement. Every item has the same chance of selection regardless
// of position. The chosen items keep their relative input order. The input
// slice is not modified.
func Sample[T any](items []T, maxSize int, rng *rand.Rand) []T {
	if maxSize <= 0 || len(items) == 0 {
		return []T{}
	}
	if len(items) <= maxSize {
		return slices.Clone(items)
	}

	// Partial Fisher-Yates over positions: after k steps idx[:k] is a
	// uniform k-subset of [0, n).
	n := len(items)
	idx := make([]int, n)
	for i := range idx {
		idx[i] = i
	}
	for i := 0; i < maxSize; i++ {
		j := i + rng.IntN(n-i)
		idx[i], idx[j] = idx[j], idx[i]
	}
	chosen := idx[:maxSize]
	slices.Sort(chosen)

	out := make([]T, maxSize)
	for i, pos := range chosen {
		out[i] = items[pos]
	}
	return out
}
