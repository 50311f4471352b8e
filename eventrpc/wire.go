package eventrpc

import (
	"bytes"
	"encoding/gob"
	"fmt"

	"google.golang.org/protobuf/types/known/wrapperspb"

	"github.com/gluster/changelog/internal/bitset"
)

// EventEnvelope carries one dispatcher batch: a contiguous [seq_start,
// seq_len] run of already gob-encoded events. The dispatcher sends one
// retired RotBuf list per call; it is not split further.
type EventEnvelope struct {
	SeqStart int64
	SeqLen   int64
	Records  [][]byte
}

// EventAck is the producer-visible result of Deliver; clients may ack to
// enable future retransmission, though the current design never
// retransmits (spec.md §4.6).
type EventAck struct {
	NextExpectedSeq int64
}

// FilterRequest installs a consumer's event-type filter bitmask on the
// producer side (spec.md §4.7 register: "issues a PROBE_FILTER RPC back to
// the producer to install its event filter").
type FilterRequest struct {
	ClientID string
	Types    bitset.TinyBitset
	Ordered  bool
}

type FilterResponse struct {
	Installed bool
}

// gobToBytesValue wraps a gob-encoded payload in the stock
// wrapperspb.BytesValue message so the link runs on real, already-compiled
// protobuf/grpc machinery without a protoc-generated .proto (SPEC_FULL.md
// §4.4).
func gobToBytesValue(v any) (*wrapperspb.BytesValue, error) {
	var buf bytes.Buffer
	if err := gob.NewEncoder(&buf).Encode(v); err != nil {
		return nil, fmt.Errorf("eventrpc: gob encode: %w", err)
	}
	return wrapperspb.Bytes(buf.Bytes()), nil
}

func bytesValueToGob(bv *wrapperspb.BytesValue, out any) error {
	if bv == nil {
		return fmt.Errorf("eventrpc: nil envelope")
	}
	if err := gob.NewDecoder(bytes.NewReader(bv.GetValue())).Decode(out); err != nil {
		return fmt.Errorf("eventrpc: gob decode: %w", err)
	}
	return nil
}
