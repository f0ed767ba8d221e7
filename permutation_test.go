package main

import (
	"testing"

	"github.com/leanovate/gopter"
	"github.com/leanovate/gopter/gen"
	"github.com/leanovate/gopter/prop"
	"github.com/stretchr/testify/require"
)

func TestPermutation(t *testing.T) {
	require.Equal(t, []int{0, 1, 2}, Permutation(3, 0))
	require.Equal(t, []int{1, 2, 0}, Permutation(3, 1))
	require.Equal(t, []int{2, 0, 1}, Permutation(3, 5))
	require.Equal(t, []int{}, Permutation(0, 7))
}

func TestPermutationProperties(t *testing.T) {
	parameters := gopter.DefaultTestParameters()
	parameters.MinSuccessfulTests = 200
	properties := gopter.NewProperties(parameters)

	properties.Property("permutation visits every query exactly once", prop.ForAll(
		func(n, seed int) bool {
			seen := make(map[int]bool)
			for _, index := range Permutation(n, seed) {
				if index < 0 || index >= n || seen[index] {
					return false
				}
				seen[index] = true
			}
			return len(seen) == n
		},
		gen.IntRange(0, 64),
		gen.IntRange(0, 1000),
	))

	properties.Property("permutation is deterministic", prop.ForAll(
		func(n, seed int) bool {
			first, second := Permutation(n, seed), Permutation(n, seed)
			for i := range first {
				if first[i] != second[i] {
					return false
				}
			}
			return true
		},
		gen.IntRange(0, 64),
		gen.IntRange(0, 1000),
	))

	properties.Property("different streams start at different queries", prop.ForAll(
		func(n int) bool {
			starts := make(map[int]bool)
			for stream := 0; stream < n; stream++ {
				starts[Permutation(n, stream)[0]] = true
			}
			return len(starts) == n
		},
		gen.IntRange(1, 64),
	))

	properties.TestingRun(t)
}
