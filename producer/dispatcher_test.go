package producer

import (
	"context"
	"testing"
	"time"

	"github.com/c2h5oh/datasize"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/gluster/changelog/eventrpc"
	"github.com/gluster/changelog/internal/bitset"
)

func TestIdentitySeq(t *testing.T) {
	start, length := identitySeq(42, 3)
	require.Equal(t, int64(42), start)
	require.Equal(t, int64(3), length)
}

func TestDispatcherRegisterUnregister(t *testing.T) {
	d := newDispatcher(newRotBuf(2, 4*datasize.KB), zap.NewNop().Sugar())

	d.register("c1", eventrpc.NewConnector("/tmp/nonexistent.sock", zap.NewNop().Sugar()), bitset.TinyBitset{})
	d.mu.RLock()
	_, ok := d.clients["c1"]
	d.mu.RUnlock()
	require.True(t, ok)

	d.unregister("c1")
	d.mu.RLock()
	_, ok = d.clients["c1"]
	d.mu.RUnlock()
	require.False(t, ok)
}

func TestFilterRecordsEmptyFilterPassesAll(t *testing.T) {
	ev := &eventrpc.Event{Type: eventrpc.EventJournal, Journal: &eventrpc.JournalEvent{Path: "x"}}
	enc, err := eventrpc.EncodeEvent(ev)
	require.NoError(t, err)

	out := filterRecords([][]byte{enc, enc}, bitset.TinyBitset{})
	require.Len(t, out, 2)
}

func TestFilterRecordsRestrictsByType(t *testing.T) {
	journalEv, _ := eventrpc.EncodeEvent(&eventrpc.Event{Type: eventrpc.EventJournal, Journal: &eventrpc.JournalEvent{Path: "x"}})
	createEv, _ := eventrpc.EncodeEvent(&eventrpc.Event{Type: eventrpc.EventCreate, Create: &eventrpc.CreateEvent{}})

	var filter bitset.TinyBitset
	filter.Insert(uint32(eventrpc.EventCreate))

	out := filterRecords([][]byte{journalEv, createEv}, filter)
	require.Len(t, out, 1)

	got, err := eventrpc.DecodeEvent(out[0])
	require.NoError(t, err)
	require.Equal(t, eventrpc.EventCreate, got.Type)
}

func TestFilterAccepts(t *testing.T) {
	var filter bitset.TinyBitset
	filter.Insert(uint32(eventrpc.EventOpen))

	require.True(t, filterAccepts(filter, eventrpc.EventOpen))
	require.False(t, filterAccepts(filter, eventrpc.EventCreate))
}

func TestDispatcherDrainOnceWithNoClients(t *testing.T) {
	rb := newRotBuf(2, 4*datasize.KB)
	d := newDispatcher(rb, zap.NewNop().Sugar())

	h, err := rb.reserveWrite([]byte("rec"))
	require.NoError(t, err)
	rb.writeComplete(h)

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	require.NoError(t, d.drainOnce(ctx))
}
