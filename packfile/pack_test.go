package packfile

import (
	"bytes"
	"compress/zlib"
	"testing"

	"github.com/objectdb/gitcore/hash"
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

// buildPack assembles a minimal two-entry pack: one blob, and one ref-delta
// whose base is that blob, patching it to a new value.
func buildPack(t *testing.T) ([]byte, int64, int64) {
	t.Helper()

	baseContent := []byte("hello world")
	baseEH := EntryHeader{Type: TypeBlob, Size: int64(len(baseContent))}
	baseHdr, err := EncodeEntryHeader(baseEH)
	require.NoError(t, err)
	baseDeflated := deflate(t, baseContent)

	var baseEntry bytes.Buffer
	baseEntry.Write(baseHdr)
	baseEntry.Write(baseDeflated)

	baseObjHash := hash.HashObject(hash.KindBlob, baseContent)

	delta := []byte{11, 11, 0x90, 6, 5, 't', 'h', 'e', 'r', 'e'} // -> "hello there"
	deltaEH := EntryHeader{Type: TypeRefDelta, Size: 11, BaseHash: baseObjHash}
	deltaHdr, err := EncodeEntryHeader(deltaEH)
	require.NoError(t, err)
	deltaDeflated := deflate(t, delta)

	var deltaEntry bytes.Buffer
	deltaEntry.Write(deltaHdr)
	deltaEntry.Write(deltaDeflated)

	header := Header{Version: SupportedVersion, ObjectsQty: 2}

	var body bytes.Buffer
	body.Write(header.Encode())
	baseOffset := int64(body.Len())
	body.Write(baseEntry.Bytes())
	deltaOffset := int64(body.Len())
	body.Write(deltaEntry.Bytes())

	trailer := hash.Sum(body.Bytes())
	body.Write(trailer.Bytes())

	return body.Bytes(), baseOffset, deltaOffset
}

type mapResolver map[hash.HashID]int64

func (m mapResolver) ResolveRef(id hash.HashID) (int64, error) {
	off, ok := m[id]
	if !ok {
		return 0, ErrDeltaBaseUnresolved
	}
	return off, nil
}

func TestOpenPackAndVerifyChecksum(t *testing.T) {
	data, _, _ := buildPack(t)
	p, err := OpenPack(byteReaderAt(data), int64(len(data)))
	require.NoError(t, err)
	require.Equal(t, SupportedVersion, p.Header().Version)
	require.Equal(t, uint32(2), p.Header().ObjectsQty)
	require.NoError(t, p.VerifyChecksum())
}

func TestDecodeEntryResolvesRefDelta(t *testing.T) {
	data, baseOffset, deltaOffset := buildPack(t)
	p, err := OpenPack(byteReaderAt(data), int64(len(data)))
	require.NoError(t, err)

	baseObjHash := hash.HashObject(hash.KindBlob, []byte("hello world"))
	resolver := mapResolver{baseObjHash: baseOffset}

	got, typ, err := p.DecodeEntry(deltaOffset, resolver, nil)
	require.NoError(t, err)
	require.Equal(t, TypeBlob, typ)
	require.Equal(t, "hello there", string(got))
}

func TestDecodeEntryUnresolvedRefDelta(t *testing.T) {
	data, _, deltaOffset := buildPack(t)
	p, err := OpenPack(byteReaderAt(data), int64(len(data)))
	require.NoError(t, err)

	_, _, err = p.DecodeEntry(deltaOffset, nil, nil)
	require.ErrorIs(t, err, ErrDeltaBaseUnresolved)
}
