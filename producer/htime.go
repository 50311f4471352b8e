package producer

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"sync"

	"golang.org/x/sys/unix"
)

const (
	xattrHtime        = "trusted.glusterfs.htime"
	xattrCurrentHtime = "trusted.glusterfs.current_htime"
	xattrEnableTime   = "CHANGELOG-ENABLE-TIME"
)

// htimeIndex is the per-start-time append-only index described in spec.md
// §3 (HTIME file) / §6 (xattrs): one path per rollover, plus an xattr
// recording the highest timestamp written.
type htimeIndex struct {
	mu      sync.Mutex
	dir     string
	file    *os.File
	startTS int64
	maxTS   int64
}

// openHtime creates (or re-opens) the HTIME file for startTS under dir,
// records CHANGELOG-ENABLE-TIME, and sets the directory-level
// current_htime pointer so gf_history_changelog's range resolver can find
// it (spec.md §9 Open Questions).
func openHtime(dir string, startTS int64) (*htimeIndex, error) {
	if err := os.MkdirAll(dir, 0o750); err != nil {
		return nil, fmt.Errorf("producer: mkdir htime dir: %w", err)
	}

	name := fmt.Sprintf("HTIME.%d", startTS)
	path := filepath.Join(dir, name)
	f, err := os.OpenFile(path, os.O_CREATE|os.O_RDWR|os.O_APPEND, 0o640)
	if err != nil {
		return nil, fmt.Errorf("producer: open htime file: %w", err)
	}

	if err := unix.Fsetxattr(int(f.Fd()), xattrEnableTime, []byte(strconv.FormatInt(startTS, 10)), 0); err != nil && !isXattrUnsupported(err) {
		f.Close()
		return nil, fmt.Errorf("producer: set %s: %w", xattrEnableTime, err)
	}
	if err := unix.Setxattr(dir, xattrCurrentHtime, []byte(name), 0); err != nil && !isXattrUnsupported(err) {
		f.Close()
		return nil, fmt.Errorf("producer: set %s: %w", xattrCurrentHtime, err)
	}

	return &htimeIndex{dir: dir, file: f, startTS: startTS}, nil
}

// append records journalPath's rollover and advances the max-timestamp
// xattr (spec.md §3 HTIME invariant: append-only, strictly increasing ts;
// §8 invariant 8).
func (h *htimeIndex) append(journalPath string, ts int64) error {
	h.mu.Lock()
	defer h.mu.Unlock()

	if ts < h.maxTS {
		return fmt.Errorf("producer: htime regression: %d < %d", ts, h.maxTS)
	}
	if _, err := h.file.WriteString(journalPath + "\n"); err != nil {
		return fmt.Errorf("producer: append htime: %w", err)
	}
	if err := h.file.Sync(); err != nil {
		return fmt.Errorf("producer: sync htime: %w", err)
	}
	h.maxTS = ts
	if err := unix.Fsetxattr(int(h.file.Fd()), xattrHtime, []byte(strconv.FormatInt(ts, 10)), 0); err != nil && !isXattrUnsupported(err) {
		return fmt.Errorf("producer: update %s: %w", xattrHtime, err)
	}
	return nil
}

func (h *htimeIndex) close() error {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.file.Close()
}

// isXattrUnsupported treats ENOTSUP/EOPNOTSUPP as non-fatal, since the
// scratch filesystem backing tests may not support xattrs at all (tmpfs
// mounted without user_xattr, overlayfs, etc); the journal itself is the
// durable source of truth, the xattr is only an optimization for the
// history range resolver.
func isXattrUnsupported(err error) bool {
	return err == unix.ENOTSUP || err == unix.EOPNOTSUPP
}
