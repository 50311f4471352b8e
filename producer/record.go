package producer

import (
	"fmt"

	"github.com/gluster/changelog/internal/changerec"
)

// recorder assembles one ChangeRecord into the configured on-disk encoding,
// NUL-terminated, ready for the journal writer (spec.md §4.2 C2).
type recorder struct {
	encoding Encoding
}

func newRecorder(enc Encoding) *recorder {
	return &recorder{encoding: enc}
}

// encode renders rec in the recorder's configured encoding plus the
// trailing NUL record separator (spec.md §3 JournalFile: "records separated
// by \0").
func (r *recorder) encode(rec *changerec.Record) ([]byte, error) {
	switch r.encoding {
	case EncodingASCII:
		s, err := changerec.EncodeASCII(rec)
		if err != nil {
			return nil, fmt.Errorf("producer: encode ascii record: %w", err)
		}
		out := make([]byte, len(s)+1)
		copy(out, s)
		return out, nil

	case EncodingBinary:
		b, err := changerec.EncodeBinary(rec)
		if err != nil {
			return nil, fmt.Errorf("producer: encode binary record: %w", err)
		}
		return append(b, 0), nil

	default:
		return nil, fmt.Errorf("producer: unknown encoding %v", r.encoding)
	}
}
