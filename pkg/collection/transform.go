package collection

import "iter"

// Enumerable is the read surface shared by Collection and Tracked.
type Enumerable[T any] interface {
	All() iter.Seq2[Key, T]
}

// Map returns fn applied to every item of e, in order.
func Map[T, U any](e Enumerable[T], fn func(T) U) []U {
	var out []U
	for _, v := range e.All() {
		out = append(out, fn(v))
	}
	return out
}

// Filter returns the items of e for which keep returns true, in order.
func Filter[T any](e Enumerable[T], keep func(T) bool) []T {
	var out []T
	for _, v := range e.All() {
		if keep(v) {
			out = append(out, v)
		}
	}
	return out
}

// Reduce folds the items of e into an accumulator starting from seed.
func Reduce[T, A any](e Enumerable[T], fn func(acc A, item T) A, seed A) A {
	acc := seed
	for _, v := range e.All() {
		acc = fn(acc, v)
	}
	return acc
}
