// Package consumer implements the client-side journal engine (C7): the
// scratch-directory state machine, the binary/ASCII parser, the tracker
// file pull API, and historical HTIME replay (spec.md §4.7).
package consumer

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/gluster/changelog/internal/xerror"
)

// scratchDirs is the three-directory lifecycle described in spec.md §3
// ConsumerJournal: `.current/` (in-progress parse target), `.processing/`
// (ready for the pull API), `.processed/` (archive, preserved across
// restarts).
type scratchDirs struct {
	root       string
	current    string
	processing string
	processed  string
}

func newScratchDirs(root string) *scratchDirs {
	return &scratchDirs{
		root:       root,
		current:    filepath.Join(root, ".current"),
		processing: filepath.Join(root, ".processing"),
		processed:  filepath.Join(root, ".processed"),
	}
}

// init resets `.current` and `.processing` to empty on every register(),
// but preserves `.processed` (spec.md §3: "fresh on each init... .processed
// is preserved").
func (s *scratchDirs) init() error {
	if err := os.MkdirAll(s.root, 0o750); err != nil {
		return fmt.Errorf("consumer: mkdir scratch root: %w", err)
	}
	for _, dir := range []string{s.current, s.processing} {
		if err := os.RemoveAll(dir); err != nil {
			return fmt.Errorf("consumer: reset %s: %w", dir, err)
		}
		if err := os.MkdirAll(dir, 0o750); err != nil {
			return fmt.Errorf("consumer: mkdir %s: %w", dir, err)
		}
	}
	if err := os.MkdirAll(s.processed, 0o750); err != nil {
		return fmt.Errorf("consumer: mkdir %s: %w", s.processed, err)
	}
	return nil
}

// doneInto resolves path and moves it into processedDir, rejecting any
// path that does not resolve inside root (spec.md §4.7 done(): "Resolves
// path with realpath, asserts it lies inside the working directory").
func doneInto(root, processedDir, path string) error {
	real, err := filepath.Abs(path)
	if err != nil {
		return fmt.Errorf("%w: %v", xerror.ErrInvalid, err)
	}
	absRoot, err := filepath.Abs(root)
	if err != nil {
		return err
	}
	rel, err := filepath.Rel(absRoot, real)
	if err != nil || rel == ".." || strings.HasPrefix(rel, ".."+string(filepath.Separator)) {
		return fmt.Errorf("%w: %s is outside scratch dir", xerror.ErrInvalid, path)
	}
	if err := os.Rename(real, filepath.Join(processedDir, filepath.Base(real))); err != nil {
		if os.IsNotExist(err) {
			// Already moved by an earlier done() (or never published).
			return fmt.Errorf("%w: %v", xerror.ErrInvalid, err)
		}
		return err
	}
	return nil
}
