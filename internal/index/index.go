// Package index provides a concurrency-safe ordered index keyed by a value-derived key.
package index

import (
	"bytes"
	"cmp"
	"errors"
	"iter"
	"sync"

	"github.com/google/btree"
)

// ErrDuplicateKey is returned by Insert when the key is already present.
var ErrDuplicateKey = errors.New("index: duplicate key")

const degree = 32

type entry[K, V any] struct {
	key K
	val V
}

// Index maps keys derived from stored values to those values, kept in key order.
// Readers run concurrently; Insert is exclusive.
type Index[K, V any] struct {
	mu      sync.RWMutex
	tree    *btree.BTreeG[entry[K, V]]
	keyOf   func(V) K
	compare func(a, b K) int
}

// New creates an empty index. compare must be a total three-way order over keys.
func New[K, V any](keyOf func(V) K, compare func(a, b K) int) *Index[K, V] {
	less := func(a, b entry[K, V]) bool { return compare(a.key, b.key) < 0 }
	return &Index[K, V]{
		tree:    btree.NewG(degree, less),
		keyOf:   keyOf,
		compare: compare,
	}
}

// Insert stores v under keyOf(v). An existing entry is never overwritten.
func (x *Index[K, V]) Insert(v V) error {
	e := entry[K, V]{key: x.keyOf(v), val: v}
	x.mu.Lock()
	defer x.mu.Unlock()
	if x.tree.Has(e) {
		return ErrDuplicateKey
	}
	x.tree.ReplaceOrInsert(e)
	return nil
}

// Search returns the value stored under k.
func (x *Index[K, V]) Search(k K) (V, bool) {
	x.mu.RLock()
	defer x.mu.RUnlock()
	e, ok := x.tree.Get(entry[K, V]{key: k})
	return e.val, ok
}

// Contains reports whether k is present.
func (x *Index[K, V]) Contains(k K) bool {
	x.mu.RLock()
	defer x.mu.RUnlock()
	return x.tree.Has(entry[K, V]{key: k})
}

// Len returns the number of stored values.
func (x *Index[K, V]) Len() int {
	x.mu.RLock()
	defer x.mu.RUnlock()
	return x.tree.Len()
}

// All returns an in-order sequence of the stored values. Each call to the
// sequence walks a snapshot taken at that moment, so it can be ranged over repeatedly.
func (x *Index[K, V]) All() iter.Seq[V] {
	return func(yield func(V) bool) {
		for _, v := range x.snapshot() {
			if !yield(v) {
				return
			}
		}
	}
}

func (x *Index[K, V]) snapshot() []V {
	x.mu.RLock()
	defer x.mu.RUnlock()
	out := make([]V, 0, x.tree.Len())
	x.tree.Ascend(func(e entry[K, V]) bool {
		out = append(out, e.val)
		return true
	})
	return out
}

// CompareID orders numeric identifiers.
func CompareID(a, b uint64) int {
	return cmp.Compare(a, b)
}

// CompareBytes orders fixed-size binary keys lexicographically.
func CompareBytes[K ~[32]byte](a, b K) int {
	return bytes.Compare(a[:], b[:])
}
