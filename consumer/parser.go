package consumer

import (
	"bytes"
	"fmt"
	"os"
	"path/filepath"

	"github.com/gluster/changelog/internal/changerec"
)

const (
	journalEncodingBinary = 1
	journalEncodingASCII  = 2
)

// parseResult reports whether a source journal carried any records, so the
// caller can apply spec.md §4.7 step 4 ("if the source had only a header,
// unlink the .current copy").
type parseResult struct {
	empty bool
}

// parseJournal reconstructs srcPath's records as newline-separated
// canonical ASCII text at dstPath (spec.md §4.7 Journal processor thread
// steps 2-3). It reads the source in whole, not via mmap: DESIGN.md
// explains the original's PRIVATE mmap is replaced here by an ordinary
// read since the module has no reason to share these pages with another
// process.
func parseJournal(srcPath, dstPath string) (parseResult, error) {
	info, err := os.Stat(srcPath)
	if err != nil {
		return parseResult{}, fmt.Errorf("consumer: stat source journal: %w", err)
	}
	if !info.Mode().IsRegular() {
		return parseResult{}, fmt.Errorf("consumer: %s is not a regular file", srcPath)
	}

	raw, err := os.ReadFile(srcPath)
	if err != nil {
		return parseResult{}, fmt.Errorf("consumer: read source journal: %w", err)
	}

	headerEnd := bytes.IndexByte(raw, 0)
	if headerEnd < 0 {
		return parseResult{}, fmt.Errorf("consumer: missing journal header in %s", srcPath)
	}
	encoding, err := parseHeaderEncoding(string(raw[:headerEnd]))
	if err != nil {
		return parseResult{}, err
	}
	body := raw[headerEnd+1:]
	if len(body) == 0 {
		return parseResult{empty: true}, nil
	}

	dst, err := os.OpenFile(dstPath, os.O_CREATE|os.O_TRUNC|os.O_WRONLY, 0o640)
	if err != nil {
		return parseResult{}, fmt.Errorf("consumer: create %s: %w", dstPath, err)
	}
	defer dst.Close()

	n, err := walkRecords(body, encoding, dst)
	if err != nil {
		return parseResult{}, fmt.Errorf("consumer: parse error in %s: %w", srcPath, err)
	}
	return parseResult{empty: n == 0}, nil
}

// parseHeaderEncoding extracts the trailing "encoding : N" field from the
// journal header line (spec.md §6 "Journal header (both encodings)").
func parseHeaderEncoding(header string) (int, error) {
	idx := bytes.LastIndexByte([]byte(header), ':')
	if idx < 0 || idx+2 > len(header) {
		return 0, fmt.Errorf("consumer: malformed journal header %q", header)
	}
	var n int
	if _, err := fmt.Sscanf(header[idx+1:], " %d", &n); err != nil {
		return 0, fmt.Errorf("consumer: malformed journal header %q: %w", header, err)
	}
	return n, nil
}

// walkRecords decodes every record in body and writes its reconstituted
// ASCII text followed by '\n' to dst, returning the record count (spec.md
// §4.7 step 3).
func walkRecords(body []byte, encoding int, dst *os.File) (int, error) {
	count := 0
	switch encoding {
	case journalEncodingASCII:
		for len(body) > 0 {
			idx := bytes.IndexByte(body, 0)
			if idx < 0 {
				return count, fmt.Errorf("unterminated ascii record")
			}
			line := string(body[:idx])
			body = body[idx+1:]
			if line == "" {
				continue
			}
			rec, err := changerec.DecodeASCII(line)
			if err != nil {
				return count, err
			}
			if err := writeReconstituted(dst, rec); err != nil {
				return count, err
			}
			count++
		}

	case journalEncodingBinary:
		for len(body) > 0 {
			rec, n, err := changerec.DecodeBinaryPrefix(body)
			if err != nil {
				return count, err
			}
			body = body[n:]
			if len(body) > 0 && body[0] == 0 {
				body = body[1:]
			}
			if err := writeReconstituted(dst, rec); err != nil {
				return count, err
			}
			count++
		}

	default:
		return 0, fmt.Errorf("unknown journal encoding %d", encoding)
	}
	return count, nil
}

func writeReconstituted(dst *os.File, rec *changerec.Record) error {
	text, err := changerec.EncodeASCII(rec)
	if err != nil {
		return err
	}
	_, err = dst.WriteString(text + "\n")
	return err
}

// consumeInto runs the shared parse-then-promote routine (spec.md §4.7
// steps 2-5) against scratch's `.current`/`.processing` pair; both the live
// and historical processing paths use it, writing into their own scratch
// namespace (SPEC_FULL.md §4.7: "a separate .history scratch namespace").
func consumeInto(scratch *scratchDirs, srcPath string) error {
	basename := filepath.Base(srcPath)
	cur := filepath.Join(scratch.current, basename)

	result, err := parseJournal(srcPath, cur)
	if err != nil {
		return err
	}
	if result.empty {
		// A header-only source never creates cur; only a body whose records
		// all turned out empty leaves a file behind to unlink.
		if err := os.Remove(cur); err != nil && !os.IsNotExist(err) {
			return err
		}
		return nil
	}
	return os.Rename(cur, filepath.Join(scratch.processing, basename))
}
