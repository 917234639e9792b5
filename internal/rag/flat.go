package rag

import (
	"math"
	"sort"
)

// FlatIndex is an exact brute-force nearest-neighbor index over an immutable
// vector set. Search compares the query against every stored vector, so the
// index is O(n·d) in both space and query time — acceptable while per-tenant
// record counts stay small. The index is read-only after construction and
// therefore safe for concurrent use.
type FlatIndex struct {
	// vectors is the stored vector set; index i is document i.
	vectors [][]float32
}

// NewFlatIndex builds a FlatIndex over the given vectors. The slice is
// retained as-is; callers must not mutate it afterwards.
func NewFlatIndex(vectors [][]float32) *FlatIndex {
	return &FlatIndex{vectors: vectors}
}

// Len returns the number of stored vectors.
func (f *FlatIndex) Len() int { return len(f.vectors) }

// Search returns the indices of up to min(k, Len()) stored vectors ordered
// by non-decreasing Euclidean distance to query. Ties are broken by lower
// insertion index. An empty index or k <= 0 yields an empty result.
func (f *FlatIndex) Search(query []float32, k int) []int {
	n := len(f.vectors)
	if n == 0 || k <= 0 {
		return nil
	}
	if k > n {
		k = n
	}

	dists := make([]float64, n)
	order := make([]int, n)
	for i, v := range f.vectors {
		dists[i] = sqDistance(query, v)
		order[i] = i
	}

	// Stable sort on an identity permutation keeps equal-distance entries in
	// insertion order.
	sort.SliceStable(order, func(a, b int) bool {
		return dists[order[a]] < dists[order[b]]
	})

	return order[:k]
}

// sqDistance returns the squared Euclidean distance between a and b.
// Squared distance preserves ordering, so the square root is skipped.
// Dimension mismatches are tolerated by comparing the shared prefix and
// counting the remainder of the longer vector as-is.
func sqDistance(a, b []float32) float64 {
	n := len(a)
	if len(b) < n {
		n = len(b)
	}
	var sum float64
	for i := 0; i < n; i++ {
		d := float64(a[i]) - float64(b[i])
		sum += d * d
	}
	for i := n; i < len(a); i++ {
		sum += float64(a[i]) * float64(a[i])
	}
	for i := n; i < len(b); i++ {
		sum += float64(b[i]) * float64(b[i])
	}
	if math.IsNaN(sum) {
		return math.Inf(1)
	}
	return sum
}
