package bundle

import (
	"bytes"
	"compress/zlib"
	"testing"

	"github.com/objectdb/gitcore/hash"
	"github.com/objectdb/gitcore/idxfile"
	"github.com/objectdb/gitcore/packfile"
	"github.com/stretchr/testify/require"
)

type byteReaderAt []byte

func (b byteReaderAt) ReadAt(p []byte, off int64) (int, error) {
	return bytes.NewReader(b).ReadAt(p, off)
}

func deflate(t *testing.T, data []byte) []byte {
	t.Helper()
	var buf bytes.Buffer
	w := zlib.NewWriter(&buf)
	_, err := w.Write(data)
	require.NoError(t, err)
	require.NoError(t, w.Close())
	return buf.Bytes()
}

// buildBundle assembles a one-object pack (a single blob) and its index.
func buildBundle(t *testing.T) (*Bundle, hash.HashID) {
	t.Helper()

	content := []byte("hello world")
	objHash := hash.HashObject(hash.KindBlob, content)

	eh := packfile.EntryHeader{Type: packfile.TypeBlob, Size: int64(len(content))}
	hdr, err := packfile.EncodeEntryHeader(eh)
	require.NoError(t, err)
	deflated := deflate(t, content)

	packHeader := packfile.Header{Version: packfile.SupportedVersion, ObjectsQty: 1}

	var body bytes.Buffer
	body.Write(packHeader.Encode())
	entryOffset := int64(body.Len())
	body.Write(hdr)
	crcStart := body.Len()
	body.Write(deflated)
	entryBytes := body.Bytes()[entryOffset:]
	_ = crcStart

	trailer := hash.Sum(body.Bytes())
	body.Write(trailer.Bytes())

	packBytes := body.Bytes()
	p, err := packfile.OpenPack(byteReaderAt(packBytes), int64(len(packBytes)))
	require.NoError(t, err)

	idxEntries := []idxfile.Entry{{ID: objHash, Offset: uint64(entryOffset), CRC32: 0}}
	idxBytes, err := idxfile.Encode(idxEntries, trailer)
	require.NoError(t, err)
	idx, err := idxfile.Open(byteReaderAt(idxBytes), int64(len(idxBytes)))
	require.NoError(t, err)

	b, err := Open(p, idx)
	require.NoError(t, err)

	_ = entryBytes
	return b, objHash
}

func TestBundleFind(t *testing.T) {
	b, objHash := buildBundle(t)

	data, typ, err := b.Find(objHash, nil)
	require.NoError(t, err)
	require.Equal(t, packfile.TypeBlob, typ)
	require.Equal(t, "hello world", string(data))
}

func TestBundleLocationOf(t *testing.T) {
	b, objHash := buildBundle(t)

	loc, err := b.LocationOf(objHash)
	require.NoError(t, err)
	require.Greater(t, loc.EntrySize, int64(0))

	raw, err := b.EntryBytes(loc)
	require.NoError(t, err)
	require.Len(t, raw, int(loc.EntrySize))
}

func TestBundleContains(t *testing.T) {
	b, objHash := buildBundle(t)

	ok, err := b.Contains(objHash)
	require.NoError(t, err)
	require.True(t, ok)

	missing := hash.EmptyTree()
	ok, err = b.Contains(missing)
	require.NoError(t, err)
	require.False(t, ok)
}
