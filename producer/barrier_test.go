package producer

import (
	"context"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func testBarrier(t *testing.T) *barrier {
	t.Helper()
	return newBarrier(filepath.Join(t.TempDir(), "csnap"), time.Minute, zap.NewNop().Sugar())
}

func TestBarrierTagUntagDrain(t *testing.T) {
	b := testBarrier(t)

	c1 := b.tag()
	c2 := b.tag()
	require.Equal(t, c1, c2)

	done := make(chan struct{})
	go func() {
		_ = b.toggleAndDrain(context.Background())
		close(done)
	}()

	// Give toggleAndDrain a chance to block on the retired color.
	time.Sleep(10 * time.Millisecond)
	select {
	case <-done:
		t.Fatal("toggleAndDrain returned before the retired color drained")
	default:
	}

	b.untag(c1)
	b.untag(c2)

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("toggleAndDrain never woke after drain")
	}
}

func TestBarrierToggleAndDrainContextCancel(t *testing.T) {
	b := testBarrier(t)
	b.tag()

	ctx, cancel := context.WithCancel(context.Background())
	errCh := make(chan error, 1)
	go func() { errCh <- b.toggleAndDrain(ctx) }()

	time.Sleep(10 * time.Millisecond)
	cancel()

	select {
	case err := <-errCh:
		require.ErrorIs(t, err, context.Canceled)
	case <-time.After(time.Second):
		t.Fatal("toggleAndDrain did not observe context cancellation")
	}
}

func TestBarrierOnOffRejectsDouble(t *testing.T) {
	b := testBarrier(t)
	ctx := context.Background()

	require.NoError(t, b.On(ctx))
	require.Error(t, b.On(ctx))
	require.NoError(t, b.Off(ctx))
	require.Error(t, b.Off(ctx))
}

func TestBarrierParksAndResumesEntryFops(t *testing.T) {
	b := testBarrier(t)
	ctx := context.Background()
	require.NoError(t, b.On(ctx))

	var mu sync.Mutex
	var ran bool
	parked := b.parkIfBarrier(func() {
		mu.Lock()
		ran = true
		mu.Unlock()
	})
	require.True(t, parked)

	mu.Lock()
	require.False(t, ran)
	mu.Unlock()

	require.NoError(t, b.Off(ctx))

	mu.Lock()
	defer mu.Unlock()
	require.True(t, ran)
}

func TestBarrierOffWithNoBarrierDoesNotPark(t *testing.T) {
	b := testBarrier(t)
	var ran bool
	parked := b.parkIfBarrier(func() { ran = true })
	require.False(t, parked)
	require.False(t, ran)
}

func TestBarrierWritesCSnapWhileOn(t *testing.T) {
	b := testBarrier(t)
	ctx := context.Background()

	require.NoError(t, b.writeCSnap([]byte("ignored\n")))

	require.NoError(t, b.On(ctx))
	require.NoError(t, b.writeCSnap([]byte("recorded\n")))
	require.NoError(t, b.Off(ctx))

	data, err := os.ReadFile(filepath.Join(b.csnapDir, "CHANGELOG.SNAP"))
	require.NoError(t, err)
	require.Equal(t, "recorded\n", string(data))
}

func TestBarrierWatchdogForcesOff(t *testing.T) {
	b := newBarrier(filepath.Join(t.TempDir(), "csnap"), 20*time.Millisecond, zap.NewNop().Sugar())
	require.NoError(t, b.On(context.Background()))

	require.Eventually(t, func() bool { return !b.isOn() }, time.Second, 5*time.Millisecond)
}
