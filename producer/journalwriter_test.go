package producer

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

type noopDrainer struct{}

func (noopDrainer) toggleAndDrain(context.Context) error { return nil }

func newTestJournalWriter(t *testing.T, dir string) (*journalWriter, *htimeIndex) {
	t.Helper()
	ht, err := openHtime(filepath.Join(dir, "htime"), 1000)
	require.NoError(t, err)
	w, err := newJournalWriter(dir, EncodingASCII, ht, noopDrainer{}, newRotBuf(2, 64*1024), newSlice(), zap.NewNop().Sugar())
	require.NoError(t, err)
	t.Cleanup(func() { _ = w.close(); _ = ht.close() })
	return w, ht
}

func TestJournalWriterOpenLiveWritesHeader(t *testing.T) {
	dir := t.TempDir()
	w, _ := newTestJournalWriter(t, dir)

	data, err := os.ReadFile(w.livePath())
	require.NoError(t, err)
	require.Contains(t, string(data), "GlusterFS Changelog")
	require.Contains(t, string(data), "encoding : 2")
}

func TestJournalWriterAppendAccumulatesBytes(t *testing.T) {
	dir := t.TempDir()
	w, _ := newTestJournalWriter(t, dir)

	require.NoError(t, w.append([]byte("rec1\x00")))
	require.NoError(t, w.append([]byte("rec2\x00")))

	data, err := os.ReadFile(w.livePath())
	require.NoError(t, err)
	require.Contains(t, string(data), "rec1\x00rec2\x00")
}

func TestJournalWriterRolloverArchivesNonEmptyJournal(t *testing.T) {
	dir := t.TempDir()
	w, _ := newTestJournalWriter(t, dir)

	require.NoError(t, w.append([]byte("rec\x00")))
	require.NoError(t, w.rollover(context.Background(), false))

	_, err := os.Stat(w.livePath())
	require.NoError(t, err, "a fresh live journal should be reopened after rollover")

	matches, _ := filepath.Glob(filepath.Join(dir, "*", "*", "*", "CHANGELOG.*"))
	require.Len(t, matches, 1)
}

func TestJournalWriterRolloverAdvancesSlice(t *testing.T) {
	dir := t.TempDir()
	w, _ := newTestJournalWriter(t, dir)

	before := w.slice.snapshot()
	require.NoError(t, w.append([]byte("rec\x00")))
	require.NoError(t, w.rollover(context.Background(), false))
	after := w.slice.snapshot()

	for i := range before {
		require.Greater(t, after[i], before[i])
	}
}

func TestJournalWriterRolloverSkipsEmptyJournal(t *testing.T) {
	dir := t.TempDir()
	w, _ := newTestJournalWriter(t, dir)

	require.NoError(t, w.rollover(context.Background(), false))

	matches, _ := filepath.Glob(filepath.Join(dir, "*", "*", "*", "CHANGELOG.*"))
	require.Empty(t, matches)
}

func TestJournalWriterRolloverLoopRespectsExplicitTrigger(t *testing.T) {
	dir := t.TempDir()
	w, _ := newTestJournalWriter(t, dir)
	require.NoError(t, w.append([]byte("rec\x00")))

	ctx, cancel := context.WithCancel(context.Background())
	loopDone := make(chan error, 1)
	go func() { loopDone <- w.rolloverLoop(ctx, time.Hour) }()

	w.requestRollover()

	require.Eventually(t, func() bool {
		matches, _ := filepath.Glob(filepath.Join(dir, "*", "*", "*", "CHANGELOG.*"))
		return len(matches) == 1
	}, 3*time.Second, 10*time.Millisecond)

	cancel()
	select {
	case err := <-loopDone:
		require.ErrorIs(t, err, context.Canceled)
	case <-time.After(3 * time.Second):
		t.Fatal("rolloverLoop did not exit after cancel")
	}
}

func TestJournalWriterFsyncLoopNoIntervalBlocksUntilCancel(t *testing.T) {
	dir := t.TempDir()
	w, _ := newTestJournalWriter(t, dir)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- w.fsyncLoop(ctx, 0) }()

	select {
	case <-done:
		t.Fatal("fsyncLoop returned before cancel with zero interval")
	case <-time.After(20 * time.Millisecond):
	}

	cancel()
	select {
	case err := <-done:
		require.ErrorIs(t, err, context.Canceled)
	case <-time.After(time.Second):
		t.Fatal("fsyncLoop did not exit after cancel")
	}
}
