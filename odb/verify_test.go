package odb

import (
	"bytes"
	"context"
	"testing"

	"github.com/objectdb/gitcore/bundle"
	"github.com/objectdb/gitcore/hash"
	"github.com/objectdb/gitcore/idxfile"
	"github.com/objectdb/gitcore/packfile"
	"github.com/stretchr/testify/require"
)

// buildBundleWithID is buildBundle but lets the caller record the entry
// under an arbitrary id, so a hash mismatch can be provoked deliberately
// without forging a fake idxfile.Index implementation (Bundle.Index is a
// concrete *idxfile.Index, not an interface).
func buildBundleWithID(t *testing.T, content []byte, id hash.HashID) *bundle.Bundle {
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

	crc := crc32Of(compressed)
	idxBytes, err := idxfile.Encode([]idxfile.Entry{{ID: id, Offset: uint64(offset), CRC32: crc}}, trailer)
	require.NoError(t, err)
	idx, err := idxfile.Open(byteReaderAt(idxBytes), int64(len(idxBytes)))
	require.NoError(t, err)

	b, err := bundle.Open(p, idx)
	require.NoError(t, err)
	return b
}

func TestVerifyLookupReportsEveryObject(t *testing.T) {
	content := []byte("a blob worth verifying")
	b := buildBundle(t, content)

	report, err := Verify(context.Background(), b, Options{Algorithm: Lookup})
	require.NoError(t, err)
	require.Empty(t, report.Errors)
	require.Len(t, report.Objects, 1)

	obj := report.Objects[0]
	require.Equal(t, hash.HashObject(hash.KindBlob, content), obj.ID)
	require.Equal(t, hash.KindBlob, obj.Kind)
	require.Equal(t, int64(len(content)), obj.Size)
}

func TestVerifyDeltaTreeLookupReportsEveryObject(t *testing.T) {
	content := []byte("a blob shared across a delta chain, in spirit")
	b := buildBundle(t, content)

	report, err := Verify(context.Background(), b, Options{Algorithm: DeltaTreeLookup, ThreadLimit: 2})
	require.NoError(t, err)
	require.Empty(t, report.Errors)
	require.Len(t, report.Objects, 1)
	require.Equal(t, hash.HashObject(hash.KindBlob, content), report.Objects[0].ID)
}

func TestVerifyDetectsObjectHashMismatchAndAborts(t *testing.T) {
	content := []byte("original content")
	bogus := hash.HashObject(hash.KindBlob, []byte("not the real content"))
	b := buildBundleWithID(t, content, bogus)

	_, err := Verify(context.Background(), b, Options{Algorithm: Lookup})
	require.Error(t, err)
	require.Contains(t, err.Error(), "hash mismatch")
}

func TestVerifySkipAndContinueAccumulatesErrors(t *testing.T) {
	content := []byte("original content")
	bogus := hash.HashObject(hash.KindBlob, []byte("not the real content"))
	b := buildBundleWithID(t, content, bogus)

	report, err := Verify(context.Background(), b, Options{Check: SkipAndContinueOnDecodeError})
	require.NoError(t, err)
	require.Empty(t, report.Objects)
	require.Len(t, report.Errors, 1)
	require.Contains(t, report.Errors[0].Error(), "hash mismatch")
}

func TestVerifySkipFileAndObjectChecksumSkipsHashCheck(t *testing.T) {
	content := []byte("original content")
	bogus := hash.HashObject(hash.KindBlob, []byte("not the real content"))
	b := buildBundleWithID(t, content, bogus)

	report, err := Verify(context.Background(), b, Options{Check: SkipFileAndObjectChecksum})
	require.NoError(t, err)
	require.Empty(t, report.Errors)
	require.Len(t, report.Objects, 1)
	require.Equal(t, bogus, report.Objects[0].ID)
}
