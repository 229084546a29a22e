package odb

import (
	"bytes"
	"compress/zlib"
	"hash/crc32"
	"path/filepath"
	"testing"

	"github.com/objectdb/gitcore/bundle"
	"github.com/objectdb/gitcore/hash"
	"github.com/objectdb/gitcore/idxfile"
	"github.com/objectdb/gitcore/looseobject"
	"github.com/objectdb/gitcore/packfile"
	"github.com/stretchr/testify/require"
)

func deflate(t *testing.T, data []byte) []byte {
	t.Helper()
	var buf bytes.Buffer
	w := zlib.NewWriter(&buf)
	_, err := w.Write(data)
	require.NoError(t, err)
	require.NoError(t, w.Close())
	return buf.Bytes()
}

type byteReaderAt []byte

func (b byteReaderAt) ReadAt(p []byte, off int64) (int, error) {
	return bytes.NewReader(b).ReadAt(p, off)
}

// buildBundle assembles a one-blob pack plus matching v2 idx.
func buildBundle(t *testing.T, content []byte) *bundle.Bundle {
	t.Helper()

	eh := packfile.EntryHeader{Type: packfile.TypeBlob, Size: int64(len(content))}
	hdr, err := packfile.EncodeEntryHeader(eh)
	require.NoError(t, err)

	header := packfile.Header{Version: packfile.SupportedVersion, ObjectsQty: 1}

	var body bytes.Buffer
	body.Write(header.Encode())
	offset := int64(body.Len())
	body.Write(hdr)
	compressed := deflate(t, content)
	body.Write(compressed)

	trailer := hash.Sum(body.Bytes())
	body.Write(trailer.Bytes())

	packBytes := body.Bytes()
	p, err := packfile.OpenPack(byteReaderAt(packBytes), int64(len(packBytes)))
	require.NoError(t, err)

	id := hash.HashObject(hash.KindBlob, content)
	crc := crc32Of(compressed)
	idxBytes, err := idxfile.Encode([]idxfile.Entry{{ID: id, Offset: uint64(offset), CRC32: crc}}, trailer)
	require.NoError(t, err)
	idx, err := idxfile.Open(byteReaderAt(idxBytes), int64(len(idxBytes)))
	require.NoError(t, err)

	b, err := bundle.Open(p, idx)
	require.NoError(t, err)
	return b
}

func crc32Of(parts ...[]byte) uint32 {
	h := crc32.NewIEEE()
	for _, p := range parts {
		h.Write(p)
	}
	return h.Sum32()
}

func TestCompoundFindPrefersPackThenLoose(t *testing.T) {
	dir := t.TempDir()
	loose := looseobject.Open(filepath.Join(dir, "objects"))

	packContent := []byte("packed blob")
	b := buildBundle(t, packContent)

	looseContent := []byte("loose blob")
	looseID, err := loose.Write(hash.KindBlob, looseContent)
	require.NoError(t, err)

	c := NewCompound(loose, b)

	data, kind, err := c.Find(hash.HashObject(hash.KindBlob, packContent))
	require.NoError(t, err)
	require.Equal(t, packContent, data)
	require.Equal(t, hash.KindBlob, kind)

	data, kind, err = c.Find(looseID)
	require.NoError(t, err)
	require.Equal(t, looseContent, data)
	require.Equal(t, hash.KindBlob, kind)

	_, _, err = c.Find(hash.HashObject(hash.KindBlob, []byte("absent")))
	require.ErrorIs(t, err, ErrNotFound)
}

func TestCompoundContains(t *testing.T) {
	dir := t.TempDir()
	loose := looseobject.Open(filepath.Join(dir, "objects"))
	content := []byte("hello world")
	b := buildBundle(t, content)
	c := NewCompound(loose, b)

	ok, err := c.Contains(hash.HashObject(hash.KindBlob, content))
	require.NoError(t, err)
	require.True(t, ok)

	ok, err = c.Contains(hash.HashObject(hash.KindBlob, []byte("nope")))
	require.NoError(t, err)
	require.False(t, ok)
}

func TestCompoundLocationOf(t *testing.T) {
	dir := t.TempDir()
	loose := looseobject.Open(filepath.Join(dir, "objects"))
	content := []byte("hello world")
	b := buildBundle(t, content)
	c := NewCompound(loose, b)

	id := hash.HashObject(hash.KindBlob, content)
	loc, err := c.LocationOf(id)
	require.NoError(t, err)
	require.Equal(t, b.ID, loc.PackID)
	require.Greater(t, loc.Size, int64(0))
}

func TestCompoundResolvePrefix(t *testing.T) {
	dir := t.TempDir()
	loose := looseobject.Open(filepath.Join(dir, "objects"))
	content := []byte("hello world")
	b := buildBundle(t, content)
	c := NewCompound(loose, b)

	id := hash.HashObject(hash.KindBlob, content)
	p, err := hash.NewPrefix(id.String()[:8])
	require.NoError(t, err)

	got, err := c.ResolvePrefix(p)
	require.NoError(t, err)
	require.Equal(t, id, got)
}

func TestCompoundIterDeduplicatesAcrossLayers(t *testing.T) {
	dir := t.TempDir()
	loose := looseobject.Open(filepath.Join(dir, "objects"))
	content := []byte("hello world")
	b := buildBundle(t, content)
	c := NewCompound(loose, b)

	looseID, err := loose.Write(hash.KindBlob, []byte("another"))
	require.NoError(t, err)

	seen := map[hash.HashID]int{}
	require.NoError(t, c.Iter(func(id hash.HashID) error {
		seen[id]++
		return nil
	}))
	require.Equal(t, 1, seen[hash.HashObject(hash.KindBlob, content)])
	require.Equal(t, 1, seen[looseID])
	require.Len(t, seen, 2)
}

func TestLinkedFallsThroughToAlternate(t *testing.T) {
	primaryDir := t.TempDir()
	altDir := t.TempDir()

	primaryLoose := looseobject.Open(filepath.Join(primaryDir, "objects"))
	altLoose := looseobject.Open(filepath.Join(altDir, "objects"))

	primary := NewCompound(primaryLoose)
	alt := NewCompound(altLoose)

	altContent := []byte("lives only in the alternate")
	altID, err := altLoose.Write(hash.KindBlob, altContent)
	require.NoError(t, err)

	linked := NewLinked(primary, alt)

	data, _, err := linked.Find(altID)
	require.NoError(t, err)
	require.Equal(t, altContent, data)

	ok, err := linked.Contains(altID)
	require.NoError(t, err)
	require.True(t, ok)
}

func TestLinkedIterFirstWins(t *testing.T) {
	primaryDir := t.TempDir()
	altDir := t.TempDir()
	primaryLoose := looseobject.Open(filepath.Join(primaryDir, "objects"))
	altLoose := looseobject.Open(filepath.Join(altDir, "objects"))

	shared := []byte("shared content")
	id, err := primaryLoose.Write(hash.KindBlob, shared)
	require.NoError(t, err)
	_, err = altLoose.Write(hash.KindBlob, shared)
	require.NoError(t, err)

	linked := NewLinked(NewCompound(primaryLoose), NewCompound(altLoose))

	count := 0
	require.NoError(t, linked.Iter(func(got hash.HashID) error {
		require.Equal(t, id, got)
		count++
		return nil
	}))
	require.Equal(t, 1, count)
}
