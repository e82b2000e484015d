package topk

import "container/heap"

// Elem is a scored value. Key breaks score ties (smaller key ranks first) so
// selection is deterministic regardless of push order.
type Elem[T any] struct {
	Value T
	Key   string
	Score float64
}

// better reports whether a ranks strictly ahead of b.
func better[T any](a, b Elem[T]) bool {
	if a.Score != b.Score {
		return a.Score > b.Score
	}
	return a.Key < b.Key
}

// elemHeap keeps the worst retained element on top.
type elemHeap[T any] []Elem[T]

func (h elemHeap[T]) Len() int           { return len(h) }
func (h elemHeap[T]) Less(i, j int) bool { return better(h[j], h[i]) }
func (h elemHeap[T]) Swap(i, j int)      { h[i], h[j] = h[j], h[i] }

func (h *elemHeap[T]) Push(x any) { *h = append(*h, x.(Elem[T])) }

func (h *elemHeap[T]) Pop() any {
	old := *h
	n := len(old)
	x := old[n-1]
	*h = old[:n-1]
	return x
}

// Filter retains the k best elements pushed into it.
type Filter[T any] struct {
	h elemHeap[T]
	k int
}

// New creates a filter keeping at most k elements. k <= 0 keeps nothing.
func New[T any](k int) *Filter[T] {
	return &Filter[T]{k: k}
}

// Push offers an element. The complexity is O(log k).
func (f *Filter[T]) Push(value T, key string, score float64) {
	if f.k <= 0 {
		return
	}
	e := Elem[T]{Value: value, Key: key, Score: score}
	if len(f.h) == f.k {
		if !better(e, f.h[0]) {
			return
		}
		f.h[0] = e
		heap.Fix(&f.h, 0)
		return
	}
	heap.Push(&f.h, e)
}

func (f *Filter[T]) Len() int {
	return len(f.h)
}

// PopAll drains the filter, best element first.
func (f *Filter[T]) PopAll() []Elem[T] {
	out := make([]Elem[T], len(f.h))
	for i := len(out) - 1; i >= 0; i-- {
		out[i] = heap.Pop(&f.h).(Elem[T])
	}
	return out
}

// PopAllValues drains the filter and returns only the values.
func (f *Filter[T]) PopAllValues() []T {
	elems := f.PopAll()
	out := make([]T, len(elems))
	for i, e := range elems {
		out[i] = e.Value
	}
	return out
}
