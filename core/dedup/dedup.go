// Package dedup provides generic key-based reconciliation primitives
// shared by the resolver, the merge engine and the batch facade.
package dedup

import (
	"sort"
	"sync"
	"time"
)

// FirstSeen returns the items whose key occurs for the first time,
// preserving input order.
func FirstSeen[T any, K comparable](items []T, key func(T) K) []T {
	if len(items) == 0 {
		return items
	}

	seen := make(map[K]struct{}, len(items))
	kept := make([]T, 0, len(items))
	for _, item := range items {
		k := key(item)
		if _, ok := seen[k]; ok {
			continue
		}
		seen[k] = struct{}{}
		kept = append(kept, item)
	}
	return kept
}

// Duplicates returns the second and later occurrences of each key,
// preserving input order.
func Duplicates[T any, K comparable](items []T, key func(T) K) []T {
	seen := make(map[K]struct{}, len(items))
	var duplicates []T
	for _, item := range items {
		k := key(item)
		if _, ok := seen[k]; ok {
			duplicates = append(duplicates, item)
			continue
		}
		seen[k] = struct{}{}
	}
	return duplicates
}

// Merge collapses items sharing a key into a single item using the
// caller-supplied reducer, keeping the position of each key's first
// occurrence.
func Merge[T any, K comparable](items []T, key func(T) K, reduce func(acc, next T) T) []T {
	if len(items) == 0 {
		return items
	}

	position := make(map[K]int, len(items))
	merged := make([]T, 0, len(items))
	for _, item := range items {
		k := key(item)
		if i, ok := position[k]; ok {
			merged[i] = reduce(merged[i], item)
			continue
		}
		position[k] = len(merged)
		merged = append(merged, item)
	}
	return merged
}

// WithinWindow sorts items by timestamp (stable, so equal timestamps keep
// input order) and drops repeats of a key that fall within the rolling
// window of the last kept occurrence. An item outside the window is kept
// again and restarts the window for its key.
func WithinWindow[T any, K comparable](items []T, key func(T) K, ts func(T) time.Time, window time.Duration) []T {
	if len(items) == 0 {
		return items
	}

	sorted := make([]T, len(items))
	copy(sorted, items)
	sort.SliceStable(sorted, func(i, j int) bool {
		return ts(sorted[i]).Before(ts(sorted[j]))
	})

	lastKept := make(map[K]time.Time, len(sorted))
	kept := make([]T, 0, len(sorted))
	for _, item := range sorted {
		k := key(item)
		t := ts(item)
		if last, ok := lastKept[k]; ok && t.Sub(last) < window {
			continue
		}
		lastKept[k] = t
		kept = append(kept, item)
	}
	return kept
}

// Context is a stateful dedup whose seen set persists across calls until
// explicitly cleared. Safe for concurrent use.
type Context[K comparable] struct {
	mu   sync.Mutex
	seen map[K]struct{}
}

// NewContext creates an empty dedup context.
func NewContext[K comparable]() *Context[K] {
	return &Context[K]{seen: map[K]struct{}{}}
}

// Observe records the key and reports whether it was newly seen.
func (c *Context[K]) Observe(key K) bool {
	c.mu.Lock()
	defer c.mu.Unlock()

	if _, ok := c.seen[key]; ok {
		return false
	}
	c.seen[key] = struct{}{}
	return true
}

// Seen reports whether the key has been observed without recording it.
func (c *Context[K]) Seen(key K) bool {
	c.mu.Lock()
	defer c.mu.Unlock()

	_, ok := c.seen[key]
	return ok
}

// Len returns the number of observed keys.
func (c *Context[K]) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()

	return len(c.seen)
}

// Clear resets the seen set.
func (c *Context[K]) Clear() {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.seen = map[K]struct{}{}
}

// Filter returns the items of one call that are newly seen by the context.
func Filter[T any, K comparable](c *Context[K], items []T, key func(T) K) []T {
	kept := make([]T, 0, len(items))
	for _, item := range items {
		if c.Observe(key(item)) {
			kept = append(kept, item)
		}
	}
	return kept
}

// Stream consumes a sequence of batches and yields only the newly seen
// items of each batch. The seen set grows lazily as batches arrive; no
// full seen set is materialized up front. The output channel is closed
// once the input channel is closed.
func Stream[T any, K comparable](batches <-chan []T, key func(T) K) <-chan []T {
	out := make(chan []T)
	go func() {
		defer close(out)
		ctx := NewContext[K]()
		for batch := range batches {
			out <- Filter(ctx, batch, key)
		}
	}()
	return out
}
