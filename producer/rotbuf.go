package producer

import (
	"context"
	"fmt"
	"sync"

	"github.com/c2h5oh/datasize"
)

// rotBufState tracks whether a list is accepting writers or blocked on a
// consumer (spec.md §3 RotBuf: ACTIVE / WAITING).
type rotBufState uint8

const (
	stateFree rotBufState = iota
	stateActive
	stateWaiting
)

// WriteHandle identifies one reserved write for write_complete (spec.md §4.1
// reserve_write/write_complete).
type WriteHandle struct {
	list  int
	index int
}

// rotList is one buffer list in the ring: a chain of reserved byte records
// totaling at most allocSize, with reservation/completion counters (spec.md
// §3 RotBuf fields pending_writers/completed_writers/used_slots).
type rotList struct {
	mu    sync.Mutex
	cond  *sync.Cond
	state rotBufState

	pending   uint64
	completed uint64
	used      datasize.ByteSize
	allocSize datasize.ByteSize

	records [][]byte
	seqStart int64
	seqLen   int64
}

func newRotList(allocSize datasize.ByteSize) *rotList {
	l := &rotList{allocSize: allocSize}
	l.cond = sync.NewCond(&l.mu)
	return l
}

// rotBuf is a fixed ring of N buffer lists with writer reservation and
// completion counting (spec.md §4.1, grounded on
// modules/pdump/controlplane/ring.go's multi-worker ring with atomic
// write/read indices, adapted here to a pure in-process, non-shared-memory
// form, since producer and dispatcher share one address space; see
// SPEC_FULL.md §4.3).
type rotBuf struct {
	ringMu  sync.Mutex
	lists   []*rotList
	current int
	nextSeq int64
}

// SequenceFn assigns [seq_start, seq_len] to a retiring list under the ring
// lock, matching the seqfn argument to get_buffer in spec.md §4.1.
type SequenceFn func(seqStart int64, numRecords int) (assignedStart int64, assignedLen int64)

func newRotBuf(n int, allocSize datasize.ByteSize) *rotBuf {
	if n < 2 {
		n = 2
	}
	rb := &rotBuf{lists: make([]*rotList, n)}
	for i := range rb.lists {
		rb.lists[i] = newRotList(allocSize)
	}
	rb.lists[0].state = stateActive
	return rb
}

// ErrWouldStarve is returned by reserveWrite when the current list already
// holds records and has no room left for rec; reserveWrite does not rotate
// (spec.md §4.1 WouldStarve).
var ErrWouldStarve = fmt.Errorf("rotbuf: would starve")

// reserveWrite appends rec to the current list, reserving len(rec) bytes and
// incrementing pending_writers (spec.md §4.1 reserve_write).
func (rb *rotBuf) reserveWrite(rec []byte) (WriteHandle, error) {
	rb.ringMu.Lock()
	cur := rb.current
	l := rb.lists[cur]
	rb.ringMu.Unlock()

	l.mu.Lock()
	defer l.mu.Unlock()
	if l.used+datasize.ByteSize(len(rec)) > l.allocSize && len(l.records) > 0 {
		return WriteHandle{}, ErrWouldStarve
	}
	idx := len(l.records)
	l.records = append(l.records, rec)
	l.used += datasize.ByteSize(len(rec))
	l.pending++
	return WriteHandle{list: cur, index: idx}, nil
}

// writeComplete increments completed_writers and wakes a waiting consumer
// once pending == completed (spec.md §4.1 write_complete).
func (rb *rotBuf) writeComplete(h WriteHandle) {
	l := rb.lists[h.list]
	l.mu.Lock()
	defer l.mu.Unlock()
	l.completed++
	if l.state == stateWaiting && l.pending == l.completed {
		l.cond.Broadcast()
	}
}

type getBufferResult int

const (
	Empty getBufferResult = iota
	Consumable
	Busy
)

// getBuffer rotates current to the next free list and, if the retiring list
// has data, assigns it a sequence range and returns it for consumption
// (spec.md §4.1 get_buffer). Rotation is refused (Busy) when the next list
// is still active or not yet returned to the freelist by
// wait_for_completion.
func (rb *rotBuf) getBuffer(seqfn SequenceFn) (*rotList, getBufferResult) {
	rb.ringMu.Lock()
	defer rb.ringMu.Unlock()

	retiring := rb.lists[rb.current]
	next := (rb.current + 1) % len(rb.lists)
	nextList := rb.lists[next]

	nextList.mu.Lock()
	nextFree := nextList.state == stateFree
	nextList.mu.Unlock()
	if !nextFree {
		return nil, Busy
	}

	retiring.mu.Lock()
	defer retiring.mu.Unlock()
	if len(retiring.records) == 0 {
		return nil, Empty
	}
	// Retired: not free again until waitForCompletion returns it, so a
	// later rotation cannot land on it while its records are unconsumed.
	retiring.state = stateWaiting
	start, length := seqfn(rb.nextSeq, len(retiring.records))
	retiring.seqStart, retiring.seqLen = start, length
	rb.nextSeq = start + length

	nextList.mu.Lock()
	nextList.state = stateActive
	nextList.mu.Unlock()
	rb.current = next

	return retiring, Consumable
}

// DispatchFn delivers a consumable list's records without holding the
// list's lock (spec.md §4.1 wait_for_completion dispatchfn argument).
type DispatchFn func(records [][]byte, seqStart, seqLen int64)

// waitForCompletion blocks until every reservation on list has completed,
// invokes dispatch outside the list lock, then returns the list to the
// freelist (spec.md §4.1 wait_for_completion).
func (rb *rotBuf) waitForCompletion(ctx context.Context, l *rotList, dispatch DispatchFn) error {
	stop := make(chan struct{})
	defer close(stop)
	go func() {
		select {
		case <-ctx.Done():
			l.mu.Lock()
			l.cond.Broadcast()
			l.mu.Unlock()
		case <-stop:
		}
	}()

	l.mu.Lock()
	for l.pending != l.completed {
		if ctx.Err() != nil {
			l.mu.Unlock()
			return ctx.Err()
		}
		l.state = stateWaiting
		l.cond.Wait()
	}
	records, start, length := l.records, l.seqStart, l.seqLen
	l.mu.Unlock()

	dispatch(records, start, length)

	l.mu.Lock()
	l.records = nil
	l.used = 0
	l.pending, l.completed = 0, 0
	l.state = stateFree
	l.mu.Unlock()
	return nil
}
