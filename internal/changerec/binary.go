package changerec

import (
	"bytes"
	"fmt"
	"strconv"

	"github.com/gluster/changelog/internal/gfid"
)

// EncodeBinary renders r in the compact on-disk form: raw 16-byte gfids,
// with the fop number and any decimal extras kept as NUL-terminated ASCII
// text so the consumer parser's field-walking logic (spec.md §4.7) is
// identical regardless of source encoding; only the gfid representation
// differs between BINARY and ASCII journals.
func EncodeBinary(r *Record) ([]byte, error) {
	var b bytes.Buffer
	b.WriteByte(r.Type.mark())

	switch r.Type {
	case Data:
		b.Write(r.Target.Bytes())

	case Metadata:
		b.Write(r.Target.Bytes())
		writeNulDecimal(&b, uint64(r.Fop))

	case Entry:
		if r.Fop == FopRename {
			if r.Rename == nil {
				return nil, fmt.Errorf("changerec: RENAME record missing Rename info")
			}
			b.Write(r.Rename.OldParent.Bytes())
			writeNulDecimal(&b, uint64(r.Fop))
			b.Write(r.Rename.OldParent.Bytes())
			writeNulString(&b, r.Rename.OldName)
			b.Write(r.Rename.NewParent.Bytes())
			writeNulString(&b, r.Rename.NewName)
			break
		}

		spec, ok := entrySpecs[r.Fop]
		if !ok {
			return nil, fmt.Errorf("changerec: unsupported entry fop %s", r.Fop)
		}
		b.Write(r.Parent.Bytes())
		writeNulDecimal(&b, uint64(r.Fop))
		if spec.extras > 0 {
			writeNulDecimal(&b, uint64(r.Mode))
			writeNulDecimal(&b, uint64(r.UID))
			writeNulDecimal(&b, uint64(r.GID))
		}
		pairGfid := r.Target
		if spec.carriesEntryGfid {
			b.Write(r.Target.Bytes())
			pairGfid = r.Parent
		}
		b.Write(pairGfid.Bytes())
		writeNulString(&b, r.Basename)
		if spec.carriesEntryGfid && r.DeletedPath != "" {
			writeNulString(&b, r.DeletedPath)
		}
	}

	return b.Bytes(), nil
}

func writeNulDecimal(b *bytes.Buffer, v uint64) {
	b.WriteString(strconv.FormatUint(v, 10))
	b.WriteByte(0)
}

func writeNulString(b *bytes.Buffer, s string) {
	b.WriteString(s)
	b.WriteByte(0)
}

// binaryCursor walks one binary record's fields. DecodeBinaryPrefix gives it
// the whole remaining journal tail, and the cursor position tells how many
// bytes the record used (see consumer/parser.go).
type binaryCursor struct {
	buf []byte
	pos int
}

func newBinaryCursor(buf []byte) *binaryCursor {
	return &binaryCursor{buf: buf}
}

func (c *binaryCursor) gfid() (gfid.Gfid, error) {
	if c.pos+gfid.Size > len(c.buf) {
		return gfid.Gfid{}, fmt.Errorf("changerec: truncated binary gfid")
	}
	g, err := gfid.FromBytes(c.buf[c.pos : c.pos+gfid.Size])
	c.pos += gfid.Size
	return g, err
}

func (c *binaryCursor) nulField() (string, error) {
	idx := bytes.IndexByte(c.buf[c.pos:], 0)
	if idx < 0 {
		return "", fmt.Errorf("changerec: unterminated binary field")
	}
	s := string(c.buf[c.pos : c.pos+idx])
	c.pos += idx + 1
	return s, nil
}

func (c *binaryCursor) decimal() (uint64, error) {
	s, err := c.nulField()
	if err != nil {
		return 0, err
	}
	return strconv.ParseUint(s, 10, 32)
}

// DecodeBinaryPrefix parses the single binary record at the start of buf
// and reports how many bytes it consumed, without requiring buf to be
// pre-sliced to exactly one record. Binary gfids are raw bytes and may
// themselves contain 0x00, so the consumer journal reader cannot rely on
// the outer NUL separator alone to find record boundaries in BINARY mode;
// it instead decodes each record from the remaining file tail and skips
// the single separator NUL that follows the returned length (consumer
// parser.go).
func DecodeBinaryPrefix(buf []byte) (*Record, int, error) {
	if len(buf) < 1 {
		return nil, 0, fmt.Errorf("changerec: empty binary record")
	}
	mark := buf[0]
	c := newBinaryCursor(buf[1:])

	var r *Record
	var err error
	switch mark {
	case 'D':
		var g gfid.Gfid
		if g, err = c.gfid(); err == nil {
			r = &Record{Type: Data, Target: g}
		}
	case 'M':
		var g gfid.Gfid
		var fopNum uint64
		if g, err = c.gfid(); err == nil {
			if fopNum, err = c.decimal(); err == nil {
				r = &Record{Type: Metadata, Target: g, Fop: FopCode(fopNum)}
			}
		}
	case 'E':
		r, err = decodeEntryBinary(c)
	default:
		err = fmt.Errorf("changerec: unknown binary mark %q", mark)
	}
	if err != nil {
		return nil, 0, err
	}
	return r, 1 + c.pos, nil
}

// DecodeBinary parses one mark-prefixed binary record and reconstructs the
// canonical Record, from which EncodeASCII reproduces byte-for-byte the same
// text a native ASCII journal would have held (invariant 5).
func DecodeBinary(buf []byte) (*Record, error) {
	if len(buf) < 1 {
		return nil, fmt.Errorf("changerec: empty binary record")
	}
	mark := buf[0]
	c := newBinaryCursor(buf[1:])

	r := &Record{}
	switch mark {
	case 'D':
		g, err := c.gfid()
		if err != nil {
			return nil, err
		}
		r.Type, r.Target = Data, g
		return r, nil

	case 'M':
		g, err := c.gfid()
		if err != nil {
			return nil, err
		}
		fopNum, err := c.decimal()
		if err != nil {
			return nil, err
		}
		r.Type, r.Target, r.Fop = Metadata, g, FopCode(fopNum)
		return r, nil

	case 'E':
		return decodeEntryBinary(c)

	default:
		return nil, fmt.Errorf("changerec: unknown binary mark %q", mark)
	}
}

func decodeEntryBinary(c *binaryCursor) (*Record, error) {
	leading, err := c.gfid()
	if err != nil {
		return nil, err
	}
	fopNum, err := c.decimal()
	if err != nil {
		return nil, err
	}
	fop := FopCode(fopNum)
	r := &Record{Type: Entry, Fop: fop, Parent: leading}

	if fop == FopRename {
		oldG, err := c.gfid()
		if err != nil {
			return nil, err
		}
		oldName, err := c.nulField()
		if err != nil {
			return nil, err
		}
		newG, err := c.gfid()
		if err != nil {
			return nil, err
		}
		newName, err := c.nulField()
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
		mode, err := c.decimal()
		if err != nil {
			return nil, err
		}
		uid, err := c.decimal()
		if err != nil {
			return nil, err
		}
		gidv, err := c.decimal()
		if err != nil {
			return nil, err
		}
		r.Mode, r.UID, r.GID = uint32(mode), uint32(uid), uint32(gidv)
	}
	if spec.carriesEntryGfid {
		g, err := c.gfid()
		if err != nil {
			return nil, err
		}
		r.Target = g
	}
	pairGfid, err := c.gfid()
	if err != nil {
		return nil, err
	}
	basename, err := c.nulField()
	if err != nil {
		return nil, err
	}
	r.Basename = basename
	if !spec.carriesEntryGfid {
		r.Target = pairGfid
	}
	if spec.carriesEntryGfid && c.pos < len(c.buf) {
		if deletedPath, err := c.nulField(); err == nil {
			r.DeletedPath = deletedPath
		}
	}
	return r, nil
}
