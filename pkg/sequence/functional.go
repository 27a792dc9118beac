// Package sequence provides lazy, chainable iteration helpers and a small
// priority queue, shared by the reporters.
package sequence

import (
	"iter"
	"slices"
)

// Iterator chains lazy transformations over a sequence of T. Nothing runs
// until a terminal call (Collect, First, Count, Reduce) drains it.
type Iterator[T any] struct {
	seq iter.Seq[T]
}

// From wraps a slice. The iterator reads the slice live, so mutations made
// before draining are visible.
func From[T any](data []T) *Iterator[T] {
	return &Iterator[T]{seq: slices.Values(data)}
}

// Over wraps an existing sequence.
func Over[T any](seq iter.Seq[T]) *Iterator[T] {
	return &Iterator[T]{seq: seq}
}

// Seq exposes the underlying sequence for range-over-func loops.
func (i *Iterator[T]) Seq() iter.Seq[T] {
	return i.seq
}

// Pull converts the iterator to pull style. The caller must invoke stop when
// abandoning the sequence early.
func (i *Iterator[T]) Pull() (next func() (T, bool), stop func()) {
	return iter.Pull(i.seq)
}

// Filter keeps the elements pred accepts.
func (i *Iterator[T]) Filter(pred func(T) bool) *Iterator[T] {
	src := i.seq
	return Over[T](func(yield func(T) bool) {
		for v := range src {
			if pred(v) && !yield(v) {
				return
			}
		}
	})
}

// Take limits the sequence to its first n elements.
func (i *Iterator[T]) Take(n int) *Iterator[T] {
	src := i.seq
	return Over[T](func(yield func(T) bool) {
		left := n
		for v := range src {
			if left <= 0 || !yield(v) {
				return
			}
			left--
		}
	})
}

// Sort materializes the sequence, orders it stably by less, and iterates the
// ordered copy.
func (i *Iterator[T]) Sort(less func(a, b T) bool) *Iterator[T] {
	data := i.Collect()
	slices.SortStableFunc(data, func(a, b T) int {
		switch {
		case less(a, b):
			return -1
		case less(b, a):
			return 1
		default:
			return 0
		}
	})
	return From(data)
}

// Collect drains the sequence into a fresh slice.
func (i *Iterator[T]) Collect() []T {
	return slices.Collect(i.seq)
}

// First returns the first element, or false for an empty sequence.
func (i *Iterator[T]) First() (T, bool) {
	for v := range i.seq {
		return v, true
	}
	var zero T
	return zero, false
}

// Count drains the sequence and reports how many elements it produced.
func (i *Iterator[T]) Count() int {
	n := 0
	for range i.seq {
		n++
	}
	return n
}

// Reduce folds the sequence into a single value, starting from init.
func (i *Iterator[T]) Reduce(init T, fold func(acc, v T) T) T {
	acc := init
	for v := range i.seq {
		acc = fold(acc, v)
	}
	return acc
}

// ToArray maps every element through fn into a new slice, changing the
// element type.
func ToArray[T, S any](it *Iterator[T], fn func(T) S) []S {
	var out []S
	for v := range it.seq {
		out = append(out, fn(v))
	}
	return out
}
