package producer

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/gluster/changelog/eventrpc"
	"github.com/gluster/changelog/internal/bitset"
)

func TestNewRejectsDisabledConfig(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Dir = t.TempDir()
	cfg.Enabled = false

	_, err := New(cfg)
	require.Error(t, err)
}

func TestNewWithLogOption(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Enabled = true
	cfg.Dir = t.TempDir()

	log := zap.NewNop().Sugar()
	e, err := New(cfg, WithLog(log))
	require.NoError(t, err)
	t.Cleanup(func() { _ = e.journal.close(); _ = e.htime.close() })

	require.Same(t, log, e.log)
}

func TestEngineRunAndClose(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Enabled = true
	cfg.Dir = t.TempDir()
	cfg.RolloverTime = time.Hour
	cfg.FsyncInterval = time.Hour

	e, err := New(cfg)
	require.NoError(t, err)

	runDone := make(chan error, 1)
	go func() { runDone <- e.Run(context.Background()) }()

	// Let the background loops start before closing.
	time.Sleep(20 * time.Millisecond)
	require.NoError(t, e.Close())

	select {
	case err := <-runDone:
		require.ErrorIs(t, err, context.Canceled)
	case <-time.After(time.Second):
		t.Fatal("Run did not return after Close")
	}
}

func TestEngineRegisterUnregisterConsumer(t *testing.T) {
	e := testEngine(t)

	conn := eventrpc.NewConnector("/tmp/nonexistent.sock", zap.NewNop().Sugar())
	e.RegisterConsumer("c1", conn, bitset.TinyBitset{})
	e.dispatcher.mu.RLock()
	_, ok := e.dispatcher.clients["c1"]
	e.dispatcher.mu.RUnlock()
	require.True(t, ok)

	e.UnregisterConsumer("c1")
	e.dispatcher.mu.RLock()
	_, ok = e.dispatcher.clients["c1"]
	e.dispatcher.mu.RUnlock()
	require.False(t, ok)
}
