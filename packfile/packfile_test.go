package packfile

import (
	"bufio"
	"bytes"
	"testing"

	"github.com/objectdb/gitcore/hash"
	"github.com/stretchr/testify/require"
)

func TestHeaderRoundTrip(t *testing.T) {
	h := Header{Version: SupportedVersion, ObjectsQty: 42}
	got, err := DecodeHeader(h.Encode())
	require.NoError(t, err)
	require.Equal(t, h, got)
}

func TestDecodeHeaderRejectsBadSignature(t *testing.T) {
	buf := []byte("XXXX\x00\x00\x00\x02\x00\x00\x00\x00")
	_, err := DecodeHeader(buf)
	require.ErrorIs(t, err, ErrBadSignature)
}

func TestEntryHeaderRoundTripNonDelta(t *testing.T) {
	for _, size := range []int64{0, 1, 15, 16, 127, 128, 1 << 20, 1 << 40} {
		eh := EntryHeader{Type: TypeBlob, Size: size}
		enc, err := EncodeEntryHeader(eh)
		require.NoError(t, err)

		got, err := DecodeEntryHeader(bufio.NewReader(bytes.NewReader(enc)))
		require.NoError(t, err)
		require.Equal(t, eh.Type, got.Type)
		require.Equal(t, eh.Size, got.Size)
	}
}

func TestEntryHeaderRoundTripRefDelta(t *testing.T) {
	base := hash.EmptyTree()
	eh := EntryHeader{Type: TypeRefDelta, Size: 30, BaseHash: base}
	enc, err := EncodeEntryHeader(eh)
	require.NoError(t, err)

	got, err := DecodeEntryHeader(bufio.NewReader(bytes.NewReader(enc)))
	require.NoError(t, err)
	require.Equal(t, TypeRefDelta, got.Type)
	require.Equal(t, base, got.BaseHash)
}

func TestEntryHeaderRoundTripOfsDelta(t *testing.T) {
	for _, off := range []int64{1, 127, 128, 16383, 16384, 1 << 30} {
		eh := EntryHeader{Type: TypeOfsDelta, Size: 30, BaseOffset: off}
		enc, err := EncodeEntryHeader(eh)
		require.NoError(t, err)

		got, err := DecodeEntryHeader(bufio.NewReader(bytes.NewReader(enc)))
		require.NoError(t, err)
		require.Equal(t, off, got.BaseOffset)
	}
}

func TestPatchDelta(t *testing.T) {
	src := []byte("hello world")
	delta := []byte{11, 11, 0x90, 6, 5, 't', 'h', 'e', 'r', 'e'}

	got, err := PatchDelta(src, delta)
	require.NoError(t, err)
	require.Equal(t, "hello there", string(got))
}

func TestPatchDeltaRejectsSourceSizeMismatch(t *testing.T) {
	src := []byte("short")
	delta := []byte{11, 11, 0x90, 6, 5, 't', 'h', 'e', 'r', 'e'}
	_, err := PatchDelta(src, delta)
	require.ErrorIs(t, err, ErrInvalidDelta)
}

func TestPatchDeltaRejectsOutOfBoundsCopy(t *testing.T) {
	src := []byte("hi")
	// target size 6, copy offset=0 size=6 (exceeds 2-byte source).
	delta := []byte{2, 6, 0x90, 6}
	_, err := PatchDelta(src, delta)
	require.ErrorIs(t, err, ErrInvalidDelta)
}
