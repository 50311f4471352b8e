package consumer

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"
	"sync"
	"sync/atomic"

	"go.uber.org/zap"

	"github.com/gluster/changelog/internal/xerror"
)

// maxParallels bounds history() worker fan-out (spec.md §4.7 MAX_PARALLELS=10).
const maxParallels = 10

// historyState is the historical-range replay side of C7: its own
// `.history` scratch namespace (so a history() call never races the live
// cursor) with the same scan/next/done API shape (spec.md §4.7 "history_scan/
// next_change/done mirror the live calls").
type historyState struct {
	mu      sync.Mutex
	root    string
	scratch *scratchDirs
	tracker *tracker

	status atomic.Int32

	log *zap.SugaredLogger
}

func newHistoryState(scratchDir string, log *zap.SugaredLogger) *historyState {
	return &historyState{root: filepath.Join(scratchDir, ".history"), log: log}
}

func (h *historyState) ensureInit() error {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.scratch != nil {
		return nil
	}
	s := newScratchDirs(h.root)
	if err := s.init(); err != nil {
		return err
	}
	tr, err := newTracker(filepath.Join(h.root, ".tracker"))
	if err != nil {
		return err
	}
	h.scratch, h.tracker = s, tr
	return nil
}

type htimeEntry struct {
	ts   int64
	path string
}

// listHtimeFiles returns every HTIME.<ts> file under dir, sorted ascending
// by its declared start time (spec.md §4.7: "locates the HTIME file
// covering range_start by reading its CHANGELOG-ENABLE-TIME xattr"; the
// start time is also embedded in the filename, which this module reads
// directly rather than re-opening each file for its xattr).
func listHtimeFiles(dir string) ([]htimeEntry, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, fmt.Errorf("consumer: read htime dir: %w", err)
	}
	var out []htimeEntry
	for _, e := range entries {
		if !strings.HasPrefix(e.Name(), "HTIME.") {
			continue
		}
		ts, err := strconv.ParseInt(strings.TrimPrefix(e.Name(), "HTIME."), 10, 64)
		if err != nil {
			continue
		}
		out = append(out, htimeEntry{ts: ts, path: filepath.Join(dir, e.Name())})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ts < out[j].ts })
	return out, nil
}

func readLines(path string) ([]string, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("consumer: read htime file: %w", err)
	}
	var out []string
	for _, line := range strings.Split(string(raw), "\n") {
		if line != "" {
			out = append(out, line)
		}
	}
	return out, nil
}

// parseJournalTS extracts the trailing <ts> from a recorded HTIME line,
// e.g. "2026/07/31/CHANGELOG.1690800000" or the lowercase empty-rollover
// form "2026/07/31/changelog.1690800000" (spec.md §4.4 Append step 4).
func parseJournalTS(line string) (int64, bool) {
	idx := strings.LastIndexByte(line, '.')
	if idx < 0 {
		return 0, false
	}
	ts, err := strconv.ParseInt(line[idx+1:], 10, 64)
	if err != nil {
		return 0, false
	}
	return ts, true
}

// run implements spec.md §4.7 history(): locate the covering HTIME file,
// walk forward collecting journal paths within [rangeStart, rangeEnd], and
// fan parse workers out over them in groups of at most maxParallels.
func (h *historyState) run(htimeDir string, rangeStart, rangeEnd int64, parallelism int) (int, int64, error) {
	if err := h.ensureInit(); err != nil {
		h.status.Store(-1)
		return -1, 0, err
	}
	h.status.Store(1)

	entries, err := listHtimeFiles(htimeDir)
	if err != nil {
		h.status.Store(-1)
		return -1, 0, err
	}

	startIdx := -1
	for i, e := range entries {
		if e.ts <= rangeStart {
			startIdx = i
		} else {
			break
		}
	}
	if startIdx < 0 {
		h.status.Store(-2)
		return -2, 0, xerror.ErrUnavailable
	}

	changelogDir := filepath.Dir(htimeDir)
	var targets []string
	var actualEnd int64
	complete := false

loop:
	for _, e := range entries[startIdx:] {
		lines, err := readLines(e.path)
		if err != nil {
			h.status.Store(-1)
			return -1, actualEnd, err
		}
		for _, line := range lines {
			ts, ok := parseJournalTS(line)
			if !ok || ts < rangeStart {
				continue
			}
			targets = append(targets, filepath.Join(changelogDir, line))
			actualEnd = ts
			if ts >= rangeEnd {
				complete = true
				break loop
			}
		}
	}

	if parallelism <= 0 || parallelism > maxParallels {
		parallelism = maxParallels
	}

	if err := h.dispatch(targets, parallelism); err != nil {
		h.status.Store(-1)
		return -1, actualEnd, err
	}

	if complete {
		h.status.Store(0)
		return 0, actualEnd, nil
	}
	h.status.Store(1)
	return 1, actualEnd, nil
}

// dispatch runs consumeInto over targets with at most parallelism workers
// in flight, joining all of them before returning the first error reported.
// Each worker promotes its own journal into .processing as soon as that
// journal parses; a failing worker does not withdraw the journals other
// workers have already promoted.
func (h *historyState) dispatch(targets []string, parallelism int) error {
	sem := make(chan struct{}, parallelism)
	var wg sync.WaitGroup
	errs := make(chan error, len(targets))

	for _, t := range targets {
		wg.Add(1)
		sem <- struct{}{}
		go func(src string) {
			defer wg.Done()
			defer func() { <-sem }()
			if err := consumeInto(h.scratch, src); err != nil {
				errs <- err
			}
		}(t)
	}
	wg.Wait()
	close(errs)

	for err := range errs {
		return err
	}
	return nil
}

func (h *historyState) scan() (int, error) {
	if h.scratch == nil {
		return -1, xerror.ErrNotConnected
	}
	entries, err := os.ReadDir(h.scratch.processing)
	if err != nil {
		return -1, fmt.Errorf("consumer: scan history processing dir: %w", err)
	}
	paths := make([]string, 0, len(entries))
	for _, e := range entries {
		paths = append(paths, filepath.Join(h.scratch.processing, e.Name()))
	}
	return h.tracker.fill(paths)
}

func (h *historyState) next() (string, bool, error) {
	if h.tracker == nil {
		return "", false, xerror.ErrNotConnected
	}
	return h.tracker.next()
}

func (h *historyState) done(path string) error {
	if h.scratch == nil {
		return xerror.ErrNotConnected
	}
	return doneInto(h.scratch.root, h.scratch.processed, path)
}
