package gfid_test

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/gluster/changelog/internal/gfid"
)

func TestStringParseRoundTrip(t *testing.T) {
	raw := []byte{
		0xf4, 0x7a, 0xc1, 0x0b,
		0x58, 0xcc,
		0x43, 0x72,
		0xa5, 0x67,
		0x0e, 0x02, 0xb2, 0xc3, 0xd4, 0x79,
	}
	g, err := gfid.FromBytes(raw)
	require.NoError(t, err)
	require.Equal(t, "f47ac10b-58cc-4372-a567-0e02b2c3d479", g.String())

	parsed, err := gfid.Parse(g.String())
	require.NoError(t, err)
	require.Equal(t, g, parsed)
	require.Equal(t, raw, parsed.Bytes())
}

func TestParseRejectsMalformed(t *testing.T) {
	_, err := gfid.Parse("too-short")
	require.Error(t, err)

	_, err = gfid.Parse("f47ac10b558cc-4372-a567-0e02b2c3d479")
	require.Error(t, err)

	_, err = gfid.Parse("zzzzzzzz-58cc-4372-a567-0e02b2c3d479")
	require.Error(t, err)
}

func TestNilIsZero(t *testing.T) {
	require.True(t, gfid.Nil.IsNil())
	require.Equal(t, "00000000-0000-0000-0000-000000000000", gfid.Nil.String())
}
