package producer

import (
	"context"
	"fmt"
	"path/filepath"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/gluster/changelog/eventrpc"
	"github.com/gluster/changelog/internal/bitset"
)

// Engine owns every producer-side component (C1-C6) for one brick and
// drives their background loops under one errgroup (spec.md §2 "Dependency
// order", §9 REDESIGN FLAGS: no package-level mutable state, every
// instance of Engine is independent, so multiple bricks can run in one
// process, unlike the original's `priv_t *this->private` singleton).
type Engine struct {
	cfg *Config
	log *zap.SugaredLogger

	slice    *slice
	inodes   *inodeTable
	slicer   *slicer
	recorder *recorder
	rotbuf   *rotBuf
	htime    *htimeIndex
	barrier  *barrier
	journal  *journalWriter

	dispatcher *dispatcher

	group  *errgroup.Group
	cancel context.CancelFunc
}

// Option configures an Engine at construction, a functional-options
// idiom matching controlplane/pkg/yncp's WithLog.
type Option func(*Engine)

func WithLog(log *zap.SugaredLogger) Option {
	return func(e *Engine) { e.log = log }
}

// New builds an Engine for cfg, opening the live journal and the current
// HTIME index (the CSNAP barrier directory is created later, on the first
// barrier ON), but does not yet start its
// background loops (spec.md §4.4 C4 construction order).
func New(cfg *Config, opts ...Option) (*Engine, error) {
	if !cfg.Enabled {
		return nil, fmt.Errorf("producer: changelog is disabled in config")
	}

	e := &Engine{cfg: cfg, log: zap.NewNop().Sugar()}
	for _, opt := range opts {
		opt(e)
	}

	e.slice = newSlice()
	e.inodes = newInodeTable()
	e.slicer = newSlicer(e.slice, e.inodes)
	e.recorder = newRecorder(cfg.Encoding)
	e.rotbuf = newRotBuf(cfg.RotBufLists, cfg.RotBufAllocSize)

	htimeDir := filepath.Join(cfg.Dir, "htime")
	ht, err := openHtime(htimeDir, time.Now().Unix())
	if err != nil {
		return nil, err
	}
	e.htime = ht

	csnapDir := filepath.Join(cfg.Dir, "csnap")
	e.barrier = newBarrier(csnapDir, cfg.BarrierTimeout, e.log)

	jw, err := newJournalWriter(cfg.Dir, cfg.Encoding, e.htime, e.barrier, e.rotbuf, e.slice, e.log)
	if err != nil {
		e.htime.close()
		return nil, err
	}
	e.journal = jw
	e.barrier.bindJournal(jw)

	e.dispatcher = newDispatcher(e.rotbuf, e.log)

	return e, nil
}

// Run starts the rollover, fsync and dispatch loops and blocks until ctx is
// cancelled or one of them returns an error (spec.md §4.4/§4.6 background
// threads), supervised with errgroup.WithContext as controlplane/pkg/yncp
// does.
func (e *Engine) Run(ctx context.Context) error {
	ctx, cancel := context.WithCancel(ctx)
	e.cancel = cancel

	group, gctx := errgroup.WithContext(ctx)
	e.group = group

	group.Go(func() error { return e.journal.rolloverLoop(gctx, e.cfg.RolloverTime) })
	group.Go(func() error { return e.journal.fsyncLoop(gctx, e.cfg.FsyncInterval) })
	group.Go(func() error { return e.dispatcher.run(gctx) })

	return group.Wait()
}

// Close stops every background loop and releases the journal/HTIME file
// handles.
func (e *Engine) Close() error {
	if e.cancel != nil {
		e.cancel()
	}
	if e.group != nil {
		_ = e.group.Wait()
	}
	var firstErr error
	if err := e.journal.close(); err != nil && firstErr == nil {
		firstErr = err
	}
	if err := e.htime.close(); err != nil && firstErr == nil {
		firstErr = err
	}
	return firstErr
}

// BarrierOn and BarrierOff drive C5 from the protocol handler (spec.md §7
// Protocol "barrier ON"/"barrier OFF").
func (e *Engine) BarrierOn(ctx context.Context) error  { return e.barrier.On(ctx) }
func (e *Engine) BarrierOff(ctx context.Context) error { return e.barrier.Off(ctx) }

// RegisterConsumer installs a reverse-connected consumer's event-type
// filter with the dispatcher (spec.md §4.7 InstallFilter / register()).
func (e *Engine) RegisterConsumer(clientID string, conn *eventrpc.Connector, filter bitset.TinyBitset) {
	e.dispatcher.register(clientID, conn, filter)
}

func (e *Engine) UnregisterConsumer(clientID string) {
	e.dispatcher.unregister(clientID)
}
