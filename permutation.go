package main

// Permutation returns the order in which a throughput stream visits n queries.
// The order is a rotation by seed, so streams 0..n-1 start at different queries
// and never visit the same query at the same position.
func Permutation(n int, seed int) []int {
	order := make([]int, n)
	if n == 0 {
		return order
	}
	shift := ((seed % n) + n) % n
	for i := range order {
		order[i] = (i + shift) % n
	}
	return order
}
