package packwrite

import (
	"bytes"
	"compress/zlib"
	"os"
	"testing"

	objhash "github.com/objectdb/gitcore/hash"
	"github.com/objectdb/gitcore/idxfile"
	"github.com/objectdb/gitcore/packfile"
	"github.com/objectdb/gitcore/packstream"
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

// buildInputStream assembles a two-entry pack stream: a blob, and an
// ofs-delta patching it to a new value.
func buildInputStream(t *testing.T) []byte {
	t.Helper()

	baseContent := []byte("hello world")
	baseEH := packfile.EntryHeader{Type: packfile.TypeBlob, Size: int64(len(baseContent))}
	baseHdr, err := packfile.EncodeEntryHeader(baseEH)
	require.NoError(t, err)

	header := packfile.Header{Version: packfile.SupportedVersion, ObjectsQty: 2}

	var body bytes.Buffer
	body.Write(header.Encode())
	baseOffset := int64(body.Len())
	body.Write(baseHdr)
	body.Write(deflate(t, baseContent))

	deltaOffset := int64(body.Len())
	delta := []byte{11, 11, 0x90, 6, 5, 't', 'h', 'e', 'r', 'e'} // -> "hello there"
	deltaEH := packfile.EntryHeader{Type: packfile.TypeOfsDelta, Size: int64(len(delta)), BaseOffset: deltaOffset - baseOffset}
	deltaHdr, err := packfile.EncodeEntryHeader(deltaEH)
	require.NoError(t, err)
	body.Write(deltaHdr)
	body.Write(deflate(t, delta))

	trailer := objhash.Sum(body.Bytes())
	body.Write(trailer.Bytes())

	return body.Bytes()
}

func TestWriteProducesValidPackAndIndex(t *testing.T) {
	dir := t.TempDir()

	stream := buildInputStream(t)
	it, err := packstream.New(bytes.NewReader(stream), packstream.Options{Trailer: packstream.AsIs, KeepCompressed: true})
	require.NoError(t, err)

	result, err := Write(dir, it, nil)
	require.NoError(t, err)
	require.NoError(t, it.Err())

	require.FileExists(t, result.PackPath)
	require.FileExists(t, result.IdxPath)
	require.FileExists(t, result.KeepPath)

	packBytes, err := os.ReadFile(result.PackPath)
	require.NoError(t, err)
	p, err := packfile.OpenPack(byteReaderAt(packBytes), int64(len(packBytes)))
	require.NoError(t, err)
	require.NoError(t, p.VerifyChecksum())
	require.Equal(t, result.PackHash, p.Trailer())

	idxBytes, err := os.ReadFile(result.IdxPath)
	require.NoError(t, err)
	idx, err := idxfile.Open(byteReaderAt(idxBytes), int64(len(idxBytes)))
	require.NoError(t, err)
	require.Equal(t, 2, idx.Count())
	require.Equal(t, p.Trailer(), idx.PackChecksum())

	baseHash := objhash.HashObject(objhash.KindBlob, []byte("hello world"))
	deltaHash := objhash.HashObject(objhash.KindBlob, []byte("hello there"))

	ok, err := idx.Contains(baseHash)
	require.NoError(t, err)
	require.True(t, ok)

	ok, err = idx.Contains(deltaHash)
	require.NoError(t, err)
	require.True(t, ok)
}

type byteReaderAt []byte

func (b byteReaderAt) ReadAt(p []byte, off int64) (int, error) {
	return bytes.NewReader(b).ReadAt(p, off)
}
