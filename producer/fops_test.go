package producer

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/c2h5oh/datasize"
	"github.com/stretchr/testify/require"

	"github.com/gluster/changelog/internal/gfid"
)

func testEngine(t *testing.T) *Engine {
	t.Helper()
	cfg := DefaultConfig()
	cfg.Enabled = true
	cfg.Dir = t.TempDir()
	cfg.RotBufAllocSize = 64 * datasize.KB
	e, err := New(cfg)
	require.NoError(t, err)
	t.Cleanup(func() { _ = e.journal.close(); _ = e.htime.close() })
	return e
}

func mustTargetGfid(t *testing.T, tail byte) gfid.Gfid {
	t.Helper()
	var raw [16]byte
	raw[15] = tail
	g, err := gfid.FromBytes(raw[:])
	require.NoError(t, err)
	return g
}

func liveJournalContents(t *testing.T, e *Engine) string {
	t.Helper()
	data, err := os.ReadFile(filepath.Join(e.cfg.Dir, liveJournalName))
	require.NoError(t, err)
	return string(data)
}

func TestEngineCreateWritesEntryRecord(t *testing.T) {
	e := testEngine(t)
	parent := mustTargetGfid(t, 1)
	target := mustTargetGfid(t, 2)

	require.NoError(t, e.Create(parent, target, "f", 0o100644, 1000, 1000))

	contents := liveJournalContents(t, e)
	require.Contains(t, contents, "CREATE")
	require.Contains(t, contents, target.String())
}

func TestEngineWriteSlicingCollapsesRepeats(t *testing.T) {
	e := testEngine(t)
	target := mustTargetGfid(t, 3)

	require.NoError(t, e.Write(target))
	require.NoError(t, e.Write(target))
	require.NoError(t, e.Write(target))

	contents := liveJournalContents(t, e)
	require.Equal(t, 1, countOccurrences(contents, "D "+target.String()))
}

func TestEngineWriteEmitsAgainAfterSliceAdvance(t *testing.T) {
	e := testEngine(t)
	target := mustTargetGfid(t, 4)

	require.NoError(t, e.Write(target))
	e.slice.advance()
	require.NoError(t, e.Write(target))

	contents := liveJournalContents(t, e)
	require.Equal(t, 2, countOccurrences(contents, "D "+target.String()))
}

func TestEngineSetxattrEmitsMetadataRecord(t *testing.T) {
	e := testEngine(t)
	target := mustTargetGfid(t, 5)

	require.NoError(t, e.Setxattr(target))

	contents := liveJournalContents(t, e)
	require.Contains(t, contents, "M "+target.String()+" SETXATTR")
}

func TestEngineFsyncBypassesJournal(t *testing.T) {
	e := testEngine(t)
	before := liveJournalContents(t, e)

	require.NoError(t, e.Fsync(mustTargetGfid(t, 6)))

	after := liveJournalContents(t, e)
	require.Equal(t, before, after)
}

func TestEngineRenameRecordsBothEndpoints(t *testing.T) {
	e := testEngine(t)
	parent := mustTargetGfid(t, 7)

	require.NoError(t, e.Rename(parent, "old", parent, "new"))

	contents := liveJournalContents(t, e)
	require.Contains(t, contents, "RENAME")
}

func TestEngineEntryFopParksDuringBarrier(t *testing.T) {
	e := testEngine(t)
	parent := mustTargetGfid(t, 8)
	target := mustTargetGfid(t, 9)

	ctx := context.Background()
	require.NoError(t, e.BarrierOn(ctx))

	done := make(chan error, 1)
	go func() { done <- e.Mkdir(parent, target, "d", 0o755, 0, 0) }()

	select {
	case <-done:
		t.Fatal("Mkdir returned before barrier was turned off")
	default:
	}

	require.NoError(t, e.BarrierOff(ctx))

	err := <-done
	require.NoError(t, err)
}

func TestEngineNotifyCreateBypassesJournal(t *testing.T) {
	e := testEngine(t)
	before := liveJournalContents(t, e)

	require.NoError(t, e.NotifyCreate(mustTargetGfid(t, 10), 0))

	after := liveJournalContents(t, e)
	require.Equal(t, before, after)
}

func countOccurrences(s, substr string) int {
	count := 0
	for i := 0; i+len(substr) <= len(s); i++ {
		if s[i:i+len(substr)] == substr {
			count++
			i += len(substr) - 1
		}
	}
	return count
}
