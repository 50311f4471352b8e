package eventrpc

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestReorderBufferOrderedReordersOutOfOrderArrivals(t *testing.T) {
	rb := newReorderBuffer(true, 0)
	rb.push(1, []byte("b"))
	rb.push(0, []byte("a"))

	out := rb.drain()
	require.Equal(t, [][]byte{[]byte("a"), []byte("b")}, out)
	require.Equal(t, int64(2), rb.nextExpected)
}

func TestReorderBufferOrderedBlocksOnMissingSeq(t *testing.T) {
	rb := newReorderBuffer(true, 0)
	rb.push(0, []byte("a"))
	rb.push(2, []byte("c"))

	out := rb.drain()
	require.Equal(t, [][]byte{[]byte("a")}, out)
	require.Equal(t, 1, rb.pending())

	rb.push(1, []byte("b"))
	out = rb.drain()
	require.Equal(t, [][]byte{[]byte("b"), []byte("c")}, out)
	require.Equal(t, 0, rb.pending())
}

func TestReorderBufferUnorderedDeliversImmediately(t *testing.T) {
	rb := newReorderBuffer(false, 0)
	rb.push(5, []byte("late"))
	rb.push(1, []byte("early"))

	out := rb.drain()
	require.Len(t, out, 2)
	require.Equal(t, 0, rb.pending())
}

func TestReorderBufferStartSeqOffset(t *testing.T) {
	rb := newReorderBuffer(true, 10)
	rb.push(10, []byte("a"))
	rb.push(11, []byte("b"))

	out := rb.drain()
	require.Equal(t, [][]byte{[]byte("a"), []byte("b")}, out)
	require.Equal(t, int64(12), rb.nextExpected)
}
