// Package changerec defines the on-disk ChangeRecord model shared by the
// producer's Recorder (C2) and the consumer's journal parser (C7), together
// with the ASCII/BINARY codecs described in spec.md §3/§4.2/§4.7.
//
// Both sides import this package rather than one importing the other, since
// the producer constructs records and the consumer only ever reconstructs
// their canonical ASCII text form; keeping the fop table and grammar in one
// place is what keeps encode(decode(x)) == x (invariant 5).
package changerec

import (
	"bytes"
	"fmt"
	"strconv"

	"github.com/gluster/changelog/internal/gfid"
	"github.com/gluster/changelog/internal/rfc3986"
)

// ChangeType is the leading mark of a journal record.
type ChangeType uint8

const (
	Data ChangeType = iota
	Metadata
	Entry
)

func (t ChangeType) mark() byte {
	switch t {
	case Data:
		return 'D'
	case Metadata:
		return 'M'
	case Entry:
		return 'E'
	}
	panic("changerec: invalid ChangeType")
}

func (t ChangeType) String() string {
	switch t {
	case Data:
		return "DATA"
	case Metadata:
		return "METADATA"
	case Entry:
		return "ENTRY"
	}
	return "UNKNOWN"
}

// FopCode identifies the filesystem operation behind a METADATA or ENTRY
// record. DATA records carry no fop (spec.md §3 grammar: "D-payload := gfid").
type FopCode uint8

const (
	FopNone FopCode = iota
	FopMknod
	FopMkdir
	FopCreate
	FopUnlink
	FopRmdir
	FopSymlink
	FopLink
	FopRename
	FopSetattr
	FopSetxattr
	FopRemovexattr
	// FopFsync has no wire name and is never encoded; the producer's fsync
	// paths call fsync directly without building a record for it.
	FopFsync
)

var fopNames = map[FopCode]string{
	FopMknod:       "MKNOD",
	FopMkdir:       "MKDIR",
	FopCreate:      "CREATE",
	FopUnlink:      "UNLINK",
	FopRmdir:       "RMDIR",
	FopSymlink:     "SYMLINK",
	FopLink:        "LINK",
	FopRename:      "RENAME",
	FopSetattr:     "SETATTR",
	FopSetxattr:    "SETXATTR",
	FopRemovexattr: "REMOVEXATTR",
}

var fopByName = func() map[string]FopCode {
	m := make(map[string]FopCode, len(fopNames))
	for code, name := range fopNames {
		m[name] = code
	}
	return m
}()

func (f FopCode) String() string {
	if name, ok := fopNames[f]; ok {
		return name
	}
	return "UNKNOWN"
}

// ParseFopName maps a symbolic fop name (as emitted on the wire) back to its
// FopCode.
func ParseFopName(name string) (FopCode, bool) {
	f, ok := fopByName[name]
	return f, ok
}

// entrySpec describes how an ENTRY fop is laid out, per the
// nr_gfids/nr_extra_recs table in spec.md §4.7.
type entrySpec struct {
	// extras is the count of decimal mode/uid/gid fields that precede the
	// (pargfid, basename) pair.
	extras int
	// carriesEntryGfid is true for fops that remove or alias an existing
	// entry (UNLINK/RMDIR/SYMLINK/LINK): the worked examples
	// (spec.md §8 S4) show these carrying the affected entry's own gfid as
	// a standalone field ahead of the pair, which then reuses the leading
	// parent gfid rather than the entry's own gfid.
	carriesEntryGfid bool
}

var entrySpecs = map[FopCode]entrySpec{
	FopMknod:   {extras: 3},
	FopMkdir:   {extras: 3},
	FopCreate:  {extras: 3},
	FopUnlink:  {carriesEntryGfid: true},
	FopRmdir:   {carriesEntryGfid: true},
	FopSymlink: {carriesEntryGfid: true},
	FopLink:    {carriesEntryGfid: true},
	// RENAME is handled separately: two (pargfid, basename) pairs and no
	// standalone entry gfid.
}

// RenameInfo carries the two (parent, name) endpoints of a rename, as
// described in the ChangeRecord data model (spec.md §3).
type RenameInfo struct {
	OldParent gfid.Gfid
	OldName   string
	NewParent gfid.Gfid
	NewName   string
}

// Record is one mutating filesystem operation, ready for encoding.
type Record struct {
	Type   ChangeType
	Fop    FopCode
	Target gfid.Gfid // the record's own subject: file gfid for D/M, entry's own gfid for create-like E
	Parent gfid.Gfid // containing directory's gfid; leading field for E records

	Mode, UID, GID uint32
	Basename       string

	// DeletedPath is set only for UNLINK when capture_del_path is enabled.
	DeletedPath string

	Rename *RenameInfo
}

// EncodeASCII renders r in the space-separated textual grammar of spec.md §3
// and returns it without a trailing NUL; the caller (Recorder/journal writer)
// appends the record separator.
func EncodeASCII(r *Record) (string, error) {
	var b bytes.Buffer
	b.WriteByte(r.Type.mark())

	switch r.Type {
	case Data:
		fmt.Fprintf(&b, " %s", r.Target)

	case Metadata:
		// No extras: the binary-to-ASCII converter never emitted them for
		// METADATA (spec.md Open Questions), and we keep both sides of
		// the codec symmetric on that choice.
		fmt.Fprintf(&b, " %s %s", r.Target, r.Fop)

	case Entry:
		if r.Fop == FopRename {
			if r.Rename == nil {
				return "", fmt.Errorf("changerec: RENAME record missing Rename info")
			}
			fmt.Fprintf(&b, " %s %s %s%s %s%s",
				r.Rename.OldParent, r.Fop,
				r.Rename.OldParent, rfc3986.Encode("/"+r.Rename.OldName),
				r.Rename.NewParent, rfc3986.Encode("/"+r.Rename.NewName))
			break
		}

		spec, ok := entrySpecs[r.Fop]
		if !ok {
			return "", fmt.Errorf("changerec: unsupported entry fop %s", r.Fop)
		}
		fmt.Fprintf(&b, " %s %s", r.Parent, r.Fop)
		if spec.extras > 0 {
			fmt.Fprintf(&b, " %d %d %d", r.Mode, r.UID, r.GID)
		}
		pairGfid := r.Target
		if spec.carriesEntryGfid {
			fmt.Fprintf(&b, " %s", r.Target)
			pairGfid = r.Parent
		}
		fmt.Fprintf(&b, " %s%s", pairGfid, rfc3986.Encode("/"+r.Basename))
		if spec.carriesEntryGfid && r.DeletedPath != "" {
			fmt.Fprintf(&b, " %s", r.DeletedPath)
		}
	}

	return b.String(), nil
}

// DecodeASCII parses one record, as produced by EncodeASCII, back into a
// Record. It is the inverse used by invariant 5 (round-trip) and by the
// consumer parser when the source journal is already ASCII-encoded.
func DecodeASCII(line string) (*Record, error) {
	fields := splitFields(line)
	if len(fields) < 2 {
		return nil, fmt.Errorf("changerec: short record %q", line)
	}

	r := &Record{}
	switch fields[0] {
	case "D":
		r.Type = Data
		g, err := gfid.Parse(fields[1])
		if err != nil {
			return nil, err
		}
		r.Target = g
		return r, nil

	case "M":
		r.Type = Metadata
		if len(fields) < 3 {
			return nil, fmt.Errorf("changerec: short METADATA record %q", line)
		}
		g, err := gfid.Parse(fields[1])
		if err != nil {
			return nil, err
		}
		fop, ok := ParseFopName(fields[2])
		if !ok {
			return nil, fmt.Errorf("changerec: unknown fop %q", fields[2])
		}
		r.Target, r.Fop = g, fop
		return r, nil

	case "E":
		return decodeEntryASCII(fields, line)

	default:
		return nil, fmt.Errorf("changerec: unknown mark %q", fields[0])
	}
}

func decodeEntryASCII(fields []string, line string) (*Record, error) {
	if len(fields) < 4 {
		return nil, fmt.Errorf("changerec: short ENTRY record %q", line)
	}
	leading, err := gfid.Parse(fields[1])
	if err != nil {
		return nil, err
	}
	fop, ok := ParseFopName(fields[2])
	if !ok {
		return nil, fmt.Errorf("changerec: unknown fop %q", fields[2])
	}

	r := &Record{Type: Entry, Fop: fop, Parent: leading}
	rest := fields[3:]

	if fop == FopRename {
		if len(rest) != 2 {
			return nil, fmt.Errorf("changerec: RENAME wants 2 pairs, got %d: %q", len(rest), line)
		}
		oldG, oldName, err := decodePair(rest[0])
		if err != nil {
			return nil, err
		}
		newG, newName, err := decodePair(rest[1])
		if err != nil {
			return nil, err
		}
		r.Rename = &RenameInfo{OldParent: oldG, OldName: oldName, NewParent: newG, NewName: newName}
		return r, nil
	}

	spec, ok := entrySpecs[fop]
	if !ok {
		return nil, fmt.Errorf("changerec: unsupported entry fop %s", fop)
	}
	if spec.extras > 0 {
		if len(rest) < spec.extras {
			return nil, fmt.Errorf("changerec: want %d extras, got %d: %q", spec.extras, len(rest), line)
		}
		mode, err := strconv.ParseUint(rest[0], 10, 32)
		if err != nil {
			return nil, fmt.Errorf("changerec: bad mode %q: %w", rest[0], err)
		}
		uid, err := strconv.ParseUint(rest[1], 10, 32)
		if err != nil {
			return nil, fmt.Errorf("changerec: bad uid %q: %w", rest[1], err)
		}
		gidv, err := strconv.ParseUint(rest[2], 10, 32)
		if err != nil {
			return nil, fmt.Errorf("changerec: bad gid %q: %w", rest[2], err)
		}
		r.Mode, r.UID, r.GID = uint32(mode), uint32(uid), uint32(gidv)
		rest = rest[spec.extras:]
	}

	if spec.carriesEntryGfid {
		if len(rest) < 1 {
			return nil, fmt.Errorf("changerec: missing entry gfid: %q", line)
		}
		g, err := gfid.Parse(rest[0])
		if err != nil {
			return nil, err
		}
		r.Target = g
		rest = rest[1:]
	}

	if len(rest) < 1 {
		return nil, fmt.Errorf("changerec: missing (pargfid, basename) pair: %q", line)
	}
	pairGfid, basename, err := decodePair(rest[0])
	if err != nil {
		return nil, err
	}
	r.Basename = basename
	if !spec.carriesEntryGfid {
		r.Target = pairGfid
	}
	rest = rest[1:]

	if spec.carriesEntryGfid && len(rest) > 0 {
		r.DeletedPath = rest[0]
	}

	return r, nil
}

// decodePair splits a "<gfid><encoded-/basename>" token, e.g. "G1%2Fd" ->
// (G1, "d").
func decodePair(tok string) (gfid.Gfid, string, error) {
	if len(tok) < gfid.Len+3 {
		return gfid.Gfid{}, "", fmt.Errorf("changerec: malformed pair %q", tok)
	}
	g, err := gfid.Parse(tok[:gfid.Len])
	if err != nil {
		return gfid.Gfid{}, "", err
	}
	encodedPath := tok[gfid.Len:]
	decoded := rfc3986.Decode(encodedPath)
	if len(decoded) == 0 || decoded[0] != '/' {
		return gfid.Gfid{}, "", fmt.Errorf("changerec: malformed pair suffix %q", encodedPath)
	}
	return g, decoded[1:], nil
}

func splitFields(s string) []string {
	var fields []string
	start := -1
	for i := 0; i < len(s); i++ {
		if s[i] == ' ' {
			if start >= 0 {
				fields = append(fields, s[start:i])
				start = -1
			}
			continue
		}
		if start < 0 {
			start = i
		}
	}
	if start >= 0 {
		fields = append(fields, s[start:])
	}
	return fields
}
