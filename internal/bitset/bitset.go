package bitset

import (
	"fmt"
	"iter"
	"math/bits"
)

// MaxBitsetWords bounds TinyBitset to 1024 bits, comfortably more than
// eventrpc.EventType ever needs for a per-connection filter mask.
const MaxBitsetWords = 16

// TinyBitset is a fixed-size bitmask used as a per-consumer EventType
// filter (spec.md §4.7 PROBE_FILTER): bit i set means events of type i
// pass the filter. Comparable, so it can sit in a map key or struct
// value without indirection.
type TinyBitset struct {
	words [MaxBitsetWords]uint64
}

// Count returns the number of EventTypes set in the filter.
func (m *TinyBitset) Count() uint {
	count := uint(0)
	for _, word := range m.words {
		count += uint(bits.OnesCount64(word))
	}

	return count
}

// Insert adds idx (an eventrpc.EventType value) to the filter.
func (m *TinyBitset) Insert(idx uint32) {
	if idx >= 64*MaxBitsetWords {
		panic(fmt.Sprintf("index %d is too big: must be less than %d", idx, 64*MaxBitsetWords))
	}

	m.words[idx/64] |= 1 << (idx % 64)
}

// Traverse calls fn for each set bit, least significant first, stopping
// early if fn returns false.
func (m *TinyBitset) Traverse(fn func(uint32) bool) {
	for wordIdx, word := range m.words {
		for word > 0 {
			r := bits.TrailingZeros64(word)
			word &= word - 1 // clear the lowest set bit

			if !fn(64*uint32(wordIdx) + uint32(r)) {
				return
			}
		}
	}
}

// Iter returns an iterator over the set bits, for range-over-func use.
func (m *TinyBitset) Iter() iter.Seq[uint32] {
	return func(yield func(uint32) bool) {
		m.Traverse(yield)
	}
}
