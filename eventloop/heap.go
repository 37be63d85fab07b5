package eventloop

import "container/heap"

// timerHeap is a binary min-heap over *callback keyed by (expiresAt, seq),
// giving O(log n) insert/remove and O(1) peek, with ties broken by
// insertion order.
type timerHeap []*callback

func (h timerHeap) Len() int { return len(h) }

func (h timerHeap) Less(i, j int) bool {
	if h[i].expiresAt != h[j].expiresAt {
		return h[i].expiresAt < h[j].expiresAt
	}
	return h[i].seq < h[j].seq
}

func (h timerHeap) Swap(i, j int) {
	h[i], h[j] = h[j], h[i]
	h[i].heapIndex = i
	h[j].heapIndex = j
}

func (h *timerHeap) Push(x any) {
	cb := x.(*callback)
	cb.heapIndex = len(*h)
	*h = append(*h, cb)
}

func (h *timerHeap) Pop() any {
	old := *h
	n := len(old)
	cb := old[n-1]
	old[n-1] = nil
	*h = old[:n-1]
	cb.heapIndex = -1
	return cb
}

// push inserts cb, maintaining the heap invariant.
func (h *timerHeap) push(cb *callback) {
	heap.Push(h, cb)
}

// peek returns the earliest-expiring callback without removing it.
func (h timerHeap) peek() *callback {
	if len(h) == 0 {
		return nil
	}
	return h[0]
}

// remove deletes cb from the heap if still present; a no-op otherwise.
func (h *timerHeap) remove(cb *callback) {
	if cb.heapIndex < 0 || cb.heapIndex >= len(*h) || (*h)[cb.heapIndex] != cb {
		return
	}
	heap.Remove(h, cb.heapIndex)
}

// fix re-establishes heap order after cb.expiresAt changes in place.
func (h *timerHeap) fix(cb *callback) {
	if cb.heapIndex < 0 || cb.heapIndex >= len(*h) {
		return
	}
	heap.Fix(h, cb.heapIndex)
}
