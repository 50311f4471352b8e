package consumer

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/gluster/changelog/internal/changerec"
	"github.com/gluster/changelog/internal/gfid"
)

func testGfid(t *testing.T, tail byte) gfid.Gfid {
	t.Helper()
	var raw [16]byte
	raw[15] = tail
	g, err := gfid.FromBytes(raw[:])
	require.NoError(t, err)
	return g
}

func asciiJournalHeader() []byte {
	return append([]byte("GlusterFS Changelog | version: v1.2 | encoding : 2"), 0)
}

func binaryJournalHeader() []byte {
	return append([]byte("GlusterFS Changelog | version: v1.2 | encoding : 1"), 0)
}

func writeJournal(t *testing.T, path string, header []byte, records [][]byte) {
	t.Helper()
	var body []byte
	body = append(body, header...)
	for _, r := range records {
		body = append(body, r...)
	}
	require.NoError(t, os.WriteFile(path, body, 0o640))
}

func TestParseJournalASCIIRoundTrip(t *testing.T) {
	g2 := testGfid(t, 2)
	rec := &changerec.Record{Type: changerec.Metadata, Fop: changerec.FopSetxattr, Target: g2}
	line, err := changerec.EncodeASCII(rec)
	require.NoError(t, err)

	dir := t.TempDir()
	src := filepath.Join(dir, "CHANGELOG.100")
	writeJournal(t, src, asciiJournalHeader(), [][]byte{append([]byte(line), 0)})

	dst := filepath.Join(dir, "out")
	result, err := parseJournal(src, dst)
	require.NoError(t, err)
	require.False(t, result.empty)

	data, err := os.ReadFile(dst)
	require.NoError(t, err)
	require.Equal(t, line+"\n", string(data))
}

func TestParseJournalBinaryRoundTrip(t *testing.T) {
	g1 := testGfid(t, 9)
	rec := &changerec.Record{Type: changerec.Data, Target: g1}
	bin, err := changerec.EncodeBinary(rec)
	require.NoError(t, err)

	dir := t.TempDir()
	src := filepath.Join(dir, "CHANGELOG.101")
	writeJournal(t, src, binaryJournalHeader(), [][]byte{append(bin, 0)})

	dst := filepath.Join(dir, "out")
	result, err := parseJournal(src, dst)
	require.NoError(t, err)
	require.False(t, result.empty)

	wantLine, err := changerec.EncodeASCII(rec)
	require.NoError(t, err)

	data, err := os.ReadFile(dst)
	require.NoError(t, err)
	require.Equal(t, wantLine+"\n", string(data))
}

func TestParseJournalEmptyBodyReportsEmpty(t *testing.T) {
	dir := t.TempDir()
	src := filepath.Join(dir, "CHANGELOG.102")
	writeJournal(t, src, asciiJournalHeader(), nil)

	result, err := parseJournal(src, filepath.Join(dir, "out"))
	require.NoError(t, err)
	require.True(t, result.empty)
}

func TestConsumeIntoPromotesNonEmptyAndRemovesEmpty(t *testing.T) {
	root := filepath.Join(t.TempDir(), "scratch")
	s := newScratchDirs(root)
	require.NoError(t, s.init())

	g := testGfid(t, 3)
	rec := &changerec.Record{Type: changerec.Data, Target: g}
	line, err := changerec.EncodeASCII(rec)
	require.NoError(t, err)

	srcDir := t.TempDir()
	nonEmpty := filepath.Join(srcDir, "CHANGELOG.1")
	writeJournal(t, nonEmpty, asciiJournalHeader(), [][]byte{append([]byte(line), 0)})

	require.NoError(t, consumeInto(s, nonEmpty))
	_, err = os.Stat(filepath.Join(s.processing, "CHANGELOG.1"))
	require.NoError(t, err)

	empty := filepath.Join(srcDir, "CHANGELOG.2")
	writeJournal(t, empty, asciiJournalHeader(), nil)

	require.NoError(t, consumeInto(s, empty))
	_, err = os.Stat(filepath.Join(s.current, "CHANGELOG.2"))
	require.True(t, os.IsNotExist(err))
	_, err = os.Stat(filepath.Join(s.processing, "CHANGELOG.2"))
	require.True(t, os.IsNotExist(err))
}
