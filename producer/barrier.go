package producer

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"go.uber.org/zap"
)

// FopColor is the two-color drain tag described in spec.md §3 FopColor.
type FopColor int

const (
	Black FopColor = iota
	White
)

// barrier implements spec.md §4.5 Barrier (C5): parking entry-type fops
// during a snapshot, the CSNAP side journal for DATA/METADATA fops, and the
// two-color drain the rollover thread waits on.
type barrier struct {
	mu      sync.Mutex
	on      bool
	current FopColor
	counts  [2]int64
	drained *sync.Cond
	queue   []func()

	csnapMu   sync.Mutex
	csnapFile *os.File
	csnapDir  string

	watchdog *time.Timer
	timeout  time.Duration

	journal *journalWriter
	log     *zap.SugaredLogger
}

func newBarrier(csnapDir string, timeout time.Duration, log *zap.SugaredLogger) *barrier {
	b := &barrier{csnapDir: csnapDir, timeout: timeout, log: log}
	b.drained = sync.NewCond(&b.mu)
	return b
}

func (b *barrier) bindJournal(w *journalWriter) { b.journal = w }

// tag atomically assigns the current color to a new fop and increments its
// counter, satisfying spec.md §4.5's race rule: "color tagging and counter
// increment MUST happen atomically under the priv lock".
func (b *barrier) tag() FopColor {
	b.mu.Lock()
	defer b.mu.Unlock()
	c := b.current
	b.counts[c]++
	return c
}

// untag decrements the tagged color's counter and wakes a drain waiter
// when it reaches zero.
func (b *barrier) untag(c FopColor) {
	b.mu.Lock()
	b.counts[c]--
	if b.counts[c] == 0 {
		b.drained.Broadcast()
	}
	b.mu.Unlock()
}

// toggleAndDrain implements colorDrainer for the rollover thread: toggle
// current_color, then block until the retired color's counter reaches zero
// (spec.md §4.4 Rollover trigger paragraph 2 / §3 FopColor invariant).
func (b *barrier) toggleAndDrain(ctx context.Context) error {
	b.mu.Lock()
	retired := b.current
	b.current = opposite(retired)
	for b.counts[retired] != 0 {
		if ctx.Err() != nil {
			b.mu.Unlock()
			return ctx.Err()
		}
		b.drained.Wait()
	}
	b.mu.Unlock()
	return nil
}

func opposite(c FopColor) FopColor {
	if c == Black {
		return White
	}
	return Black
}

// On turns the barrier on, parking subsequent ENTRY fops and starting the
// watchdog; rejects with a protocol error if already on (spec.md §7
// Protocol: "barrier ON received while already ON... reject, log, leave
// state unchanged").
func (b *barrier) On(ctx context.Context) error {
	b.mu.Lock()
	if b.on {
		b.mu.Unlock()
		return fmt.Errorf("producer: barrier already ON")
	}
	b.on = true
	b.mu.Unlock()

	if err := b.openCSnap(); err != nil {
		b.log.Errorw("failed to open csnap journal", "error", err)
	}

	b.watchdog = time.AfterFunc(b.timeout, func() {
		b.log.Warnw("barrier watchdog fired, forcing OFF", "timeout", b.timeout)
		_ = b.Off(ctx)
	})

	if b.journal != nil {
		b.journal.requestRollover()
	}
	return nil
}

// Off turns the barrier off, resuming every parked continuation and
// closing CSNAP; rejects if already off.
func (b *barrier) Off(ctx context.Context) error {
	b.mu.Lock()
	if !b.on {
		b.mu.Unlock()
		return fmt.Errorf("producer: barrier already OFF")
	}
	b.on = false
	queue := b.queue
	b.queue = nil
	b.mu.Unlock()

	if b.watchdog != nil {
		b.watchdog.Stop()
	}
	b.closeCSnap()

	for _, fn := range queue {
		fn()
	}
	return nil
}

// parkIfBarrier parks fn for later execution if the barrier is on,
// reporting true; otherwise reports false so the caller runs fn inline.
func (b *barrier) parkIfBarrier(fn func()) bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	if !b.on {
		return false
	}
	b.queue = append(b.queue, fn)
	return true
}

func (b *barrier) isOn() bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.on
}

func (b *barrier) openCSnap() error {
	if err := os.MkdirAll(b.csnapDir, 0o750); err != nil {
		return fmt.Errorf("producer: mkdir csnap dir: %w", err)
	}
	f, err := os.OpenFile(filepath.Join(b.csnapDir, "CHANGELOG.SNAP"), os.O_CREATE|os.O_RDWR|os.O_APPEND, 0o640)
	if err != nil {
		return fmt.Errorf("producer: open csnap journal: %w", err)
	}
	b.csnapMu.Lock()
	b.csnapFile = f
	b.csnapMu.Unlock()
	return nil
}

func (b *barrier) closeCSnap() {
	b.csnapMu.Lock()
	defer b.csnapMu.Unlock()
	if b.csnapFile != nil {
		b.csnapFile.Close()
		b.csnapFile = nil
	}
}

// writeCSnap appends rec to the CSNAP side journal; DATA/METADATA fops get
// their record written here in addition to the regular journal while the
// barrier is on (spec.md §4.5).
func (b *barrier) writeCSnap(rec []byte) error {
	b.csnapMu.Lock()
	defer b.csnapMu.Unlock()
	if b.csnapFile == nil {
		return nil
	}
	_, err := b.csnapFile.Write(rec)
	return err
}
