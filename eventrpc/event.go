// Package eventrpc implements the reverse-RPC link between the producer's
// event dispatcher (C6) and the consumer's reverse RPC endpoint (C8), per
// spec.md §4.6/§4.8/§6 "Events on the wire".
package eventrpc

import (
	"bytes"
	"encoding/gob"
	"fmt"

	"github.com/gluster/changelog/internal/gfid"
)

// EventType is the fixed-size discriminant of the wire Event union
// (spec.md §6: "Fixed-size Event { u32 type; union {...} }").
type EventType uint32

const (
	EventUnknown EventType = iota
	EventCreate
	EventOpen
	EventRelease
	EventJournal
)

func (t EventType) String() string {
	switch t {
	case EventCreate:
		return "CREATE"
	case EventOpen:
		return "OPEN"
	case EventRelease:
		return "RELEASE"
	case EventJournal:
		return "JOURNAL"
	default:
		return "UNKNOWN"
	}
}

// CreateEvent/OpenEvent/ReleaseEvent mirror the "struct{u8 gfid[16]; u32
// flags;}" arm of the wire union.
type CreateEvent struct {
	Gfid  gfid.Gfid
	Flags uint32
}

type OpenEvent struct {
	Gfid  gfid.Gfid
	Flags uint32
}

type ReleaseEvent struct {
	Gfid  gfid.Gfid
	Flags uint32
}

// JournalEvent mirrors the "struct{u8 path[PATH_MAX];}" arm; Path is
// relative to the brick's changelog directory.
type JournalEvent struct {
	Path string
}

// Event is the decoded form of one wire event. Exactly one of the pointer
// fields is non-nil, selected by Type.
type Event struct {
	Type    EventType
	Create  *CreateEvent
	Open    *OpenEvent
	Release *ReleaseEvent
	Journal *JournalEvent
}

// EncodeEvent serializes e with gob. gob (not the binary Event struct
// layout implied by spec.md's C union) is used because this module has no
// protoc toolchain available to generate typed wire messages; gob is the
// standard-library serialization the rest of the Go ecosystem reaches for
// in that situation, and it round-trips Go's tagged-union-via-pointers
// encoding of Event without a hand-rolled discriminated encoder.
func EncodeEvent(e *Event) ([]byte, error) {
	var buf bytes.Buffer
	if err := gob.NewEncoder(&buf).Encode(e); err != nil {
		return nil, fmt.Errorf("eventrpc: encode event: %w", err)
	}
	return buf.Bytes(), nil
}

// DecodeEvent is the inverse of EncodeEvent.
func DecodeEvent(b []byte) (*Event, error) {
	var e Event
	if err := gob.NewDecoder(bytes.NewReader(b)).Decode(&e); err != nil {
		return nil, fmt.Errorf("eventrpc: decode event: %w", err)
	}
	return &e, nil
}
