package eventrpc

import "container/heap"

// seqItem is one pending record awaiting delivery, keyed by sequence
// number (spec.md §4.8 Ordered discipline).
type seqItem struct {
	seq int64
	rec []byte
}

// seqHeap is a min-heap on seq, replacing the original's O(n²) linear
// insertion into an ordered list (spec.md §9 REDESIGN FLAGS: "Ordered
// event list with linear insertion... A min-heap keyed on seq... is a
// direct replacement").
type seqHeap []seqItem

func (h seqHeap) Len() int            { return len(h) }
func (h seqHeap) Less(i, j int) bool  { return h[i].seq < h[j].seq }
func (h seqHeap) Swap(i, j int)       { h[i], h[j] = h[j], h[i] }
func (h *seqHeap) Push(x interface{}) { *h = append(*h, x.(seqItem)) }
func (h *seqHeap) Pop() interface{} {
	old := *h
	n := len(old)
	item := old[n-1]
	*h = old[:n-1]
	return item
}

// reorderBuffer restores delivery order per spec.md §4.8: Ordered mode
// pops only when the head's seq equals nextExpected; Unordered mode pops
// every queued record unconditionally, so unordered clients never block on
// a gap. Both modes share the heap, so unordered records within one drain
// come out in ascending seq order; arrival order is not tracked.
type reorderBuffer struct {
	ordered      bool
	heap         seqHeap
	nextExpected int64
}

func newReorderBuffer(ordered bool, startSeq int64) *reorderBuffer {
	rb := &reorderBuffer{ordered: ordered, nextExpected: startSeq}
	heap.Init(&rb.heap)
	return rb
}

// push inserts one record for later delivery.
func (rb *reorderBuffer) push(seq int64, rec []byte) {
	heap.Push(&rb.heap, seqItem{seq: seq, rec: rec})
}

// drain returns every record currently deliverable, in order. For Ordered
// buffers this stops at the first gap (missing seq), leaving later
// out-of-order arrivals queued until the gap fills (spec.md §7 Resource:
// "the receiver will see a gap and... block waiting for it").
func (rb *reorderBuffer) drain() [][]byte {
	var out [][]byte
	for rb.heap.Len() > 0 {
		head := rb.heap[0]
		if rb.ordered && head.seq != rb.nextExpected {
			break
		}
		heap.Pop(&rb.heap)
		out = append(out, head.rec)
		rb.nextExpected = head.seq + 1
	}
	return out
}

func (rb *reorderBuffer) pending() int { return rb.heap.Len() }
