package producer

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/gluster/changelog/internal/changerec"
	"github.com/gluster/changelog/internal/gfid"
)

func TestRecorderEncodeASCIIAppendsNul(t *testing.T) {
	r := newRecorder(EncodingASCII)
	var raw [16]byte
	raw[15] = 1
	g, err := gfid.FromBytes(raw[:])
	require.NoError(t, err)

	enc, err := r.encode(&changerec.Record{Type: changerec.Data, Target: g})
	require.NoError(t, err)

	require.Equal(t, byte(0), enc[len(enc)-1])
	require.Equal(t, "D "+g.String(), string(enc[:len(enc)-1]))
}

func TestRecorderEncodeBinaryAppendsNul(t *testing.T) {
	r := newRecorder(EncodingBinary)
	var raw [16]byte
	raw[15] = 2
	g, err := gfid.FromBytes(raw[:])
	require.NoError(t, err)

	enc, err := r.encode(&changerec.Record{Type: changerec.Data, Target: g})
	require.NoError(t, err)
	require.Equal(t, byte(0), enc[len(enc)-1])
}
