package consumer

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"sync/atomic"

	"go.uber.org/zap"

	"github.com/gluster/changelog/eventrpc"
	"github.com/gluster/changelog/internal/bitset"
	"github.com/gluster/changelog/internal/xerror"
)

// Journal is the consumer-side C7 Journal engine for one brick: the
// scratch-directory state machine, the reverse-RPC endpoint it drives, and
// the pull API exposed to the end consumer (spec.md §4.7).
type Journal struct {
	brick   string
	scratch *scratchDirs
	tracker *tracker

	endpoint  *eventrpc.Endpoint
	connected atomic.Bool

	pending chan string
	wg      sync.WaitGroup
	cancel  context.CancelFunc

	hist *historyState

	log *zap.SugaredLogger
}

// Register implements spec.md §4.7 register(): creates the scratch tree,
// the tracker file, and the reverse-RPC endpoint (C8), then starts the
// journal-processing thread. maxReconnects is accepted and ignored per
// spec.md §5 ("accepted for backward compatibility only").
func Register(ctx context.Context, brickPath, scratchDir string, maxReconnects int, log *zap.SugaredLogger) (*Journal, error) {
	_ = maxReconnects

	s := newScratchDirs(scratchDir)
	if err := s.init(); err != nil {
		return nil, err
	}

	tr, err := newTracker(filepath.Join(scratchDir, ".tracker"))
	if err != nil {
		return nil, err
	}

	j := &Journal{
		brick:    brickPath,
		scratch:  s,
		tracker:  tr,
		endpoint: eventrpc.NewEndpoint(log),
		pending:  make(chan string, 256),
		hist:     newHistoryState(scratchDir, log),
		log:      log,
	}

	runCtx, cancel := context.WithCancel(ctx)
	j.cancel = cancel

	j.endpoint.Register(brickPath, bitset.TinyBitset{}, true, 0, j.onEvent)
	j.connected.Store(true)

	j.wg.Add(1)
	go j.processLoop(runCtx)

	return j, nil
}

// Endpoint exposes the reverse-RPC server so the caller can bind it to a
// UNIX socket listener (spec.md §4.8 C8).
func (j *Journal) Endpoint() *eventrpc.Endpoint { return j.endpoint }

// onEvent is the C8 delivery callback: JOURNAL events get queued for the
// processor thread, other event types are ignored by this package (spec.md
// §4.7: "Consumes JOURNAL events posted by C8 into an internal list").
func (j *Journal) onEvent(ev *eventrpc.Event) {
	if ev.Type != eventrpc.EventJournal || ev.Journal == nil {
		return
	}
	select {
	case j.pending <- ev.Journal.Path:
	default:
		j.log.Warnw("journal processing queue full, dropping event", "path", ev.Journal.Path)
	}
}

func (j *Journal) processLoop(ctx context.Context) {
	defer j.wg.Done()
	for {
		select {
		case <-ctx.Done():
			return
		case path := <-j.pending:
			if err := j.consume(path); err != nil {
				j.log.Errorw("journal parse failed", "path", path, "error", err)
			}
		}
	}
}

// consume implements spec.md §4.7 steps 1-5 for one journal path, arriving
// relative to the brick's changelog directory.
func (j *Journal) consume(relPath string) error {
	return consumeInto(j.scratch, filepath.Join(j.brick, relPath))
}

// Scan implements spec.md §4.7 scan(): truncate the tracker, list
// `.processing/`, write one path per line, return the count.
func (j *Journal) Scan() (int, error) {
	if !j.connected.Load() {
		return -1, xerror.ErrNotConnected
	}
	entries, err := os.ReadDir(j.scratch.processing)
	if err != nil {
		return -1, fmt.Errorf("consumer: scan processing dir: %w", err)
	}
	paths := make([]string, 0, len(entries))
	for _, e := range entries {
		if e.Name() == "." || e.Name() == ".." {
			continue
		}
		paths = append(paths, filepath.Join(j.scratch.processing, e.Name()))
	}
	return j.tracker.fill(paths)
}

// NextChange implements spec.md §4.7 next_change(): one tracker line per
// call, ok=false once exhausted.
func (j *Journal) NextChange() (string, bool, error) {
	if !j.connected.Load() {
		return "", false, xerror.ErrNotConnected
	}
	return j.tracker.next()
}

// Done implements spec.md §4.7 done(): path must resolve inside the
// scratch tree; it is moved to `.processed/`.
func (j *Journal) Done(path string) error {
	if !j.connected.Load() {
		return xerror.ErrNotConnected
	}
	return doneInto(j.scratch.root, j.scratch.processed, path)
}

// StartFresh implements spec.md §6 start_fresh(): truncates the tracker.
func (j *Journal) StartFresh() error {
	return j.tracker.reset()
}

// History implements spec.md §4.7 history().
func (j *Journal) History(htimeDir string, rangeStart, rangeEnd int64, parallelism int) (int, int64, error) {
	return j.hist.run(htimeDir, rangeStart, rangeEnd, parallelism)
}

func (j *Journal) HistoryScan() (int, error)                { return j.hist.scan() }
func (j *Journal) HistoryNextChange() (string, bool, error) { return j.hist.next() }
func (j *Journal) HistoryDone(path string) error            { return j.hist.done(path) }

func (j *Journal) Close() error {
	j.connected.Store(false)
	if j.cancel != nil {
		j.cancel()
	}
	j.wg.Wait()
	return j.tracker.close()
}
