package rfc3986_test

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/gluster/changelog/internal/rfc3986"
)

func TestEncodeDecodeRoundTrip(t *testing.T) {
	cases := []struct {
		name string
		in   string
		want string
	}{
		{"plain", "file.txt", "file.txt"},
		{"space", "my file", "my%20file"},
		{"gfid-path", "d41d8cd9-8f00/f", "d41d8cd9-8f00%2Ff"},
		{"unreserved-passthrough", "a~b-c._d", "a~b-c._d"},
		{"unicode", "café", "caf%C3%A9"},
	}

	for _, c := range cases {
		t.Run(c.name, func(t *testing.T) {
			got := rfc3986.Encode(c.in)
			require.Equal(t, c.want, got)
			require.Equal(t, c.in, rfc3986.Decode(got))
		})
	}
}

func TestDecodeLenientOnMalformedEscape(t *testing.T) {
	require.Equal(t, "100% done", rfc3986.Decode("100% done"))
	require.Equal(t, "100%2 done", rfc3986.Decode("100%2 done"))
}
