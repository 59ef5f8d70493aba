// Package xiter contains helpers for range-over-func iterators.
package xiter

import (
	"iter"
)

// Enumerate pairs every value of seq with its zero-based position.
func Enumerate[T any](seq iter.Seq[T]) iter.Seq2[int, T] {
	return func(yield func(int, T) bool) {
		idx := 0
		for v := range seq {
			if !yield(idx, v) {
				return
			}

			idx++
		}
	}
}
