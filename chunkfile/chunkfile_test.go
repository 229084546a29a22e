package chunkfile

import (
	"bytes"
	"encoding/binary"
	"testing"

	"github.com/stretchr/testify/require"
)

func buildFile(t *testing.T, headerLen uint64, chunks map[string][]byte, order []string) []byte {
	t.Helper()
	w := NewWriter(headerLen)
	for _, name := range order {
		var id ID
		copy(id[:], name)
		w.Add(id, chunks[name])
	}
	header := bytes.Repeat([]byte{0xAA}, int(headerLen))
	return append(header, w.Bytes()...)
}

func TestChunkfileRoundTrip(t *testing.T) {
	chunks := map[string][]byte{
		"OIDF": {1, 2, 3, 4},
		"CDAT": {5, 6, 7, 8, 9, 10},
	}
	order := []string{"OIDF", "CDAT"}
	data := buildFile(t, 8, chunks, order)

	idx, err := Decode(bytes.NewReader(data[8:]), len(order), uint64(len(data)))
	require.NoError(t, err)

	for _, name := range order {
		var id ID
		copy(id[:], name)
		start, end, ok := idx.OffsetByID(id)
		require.True(t, ok)
		require.Equal(t, chunks[name], data[start:end])
	}

	require.Equal(t, []ID{idChunk("OIDF"), idChunk("CDAT")}, idx.Chunks())
}

func idChunk(s string) ID {
	var id ID
	copy(id[:], s)
	return id
}

func TestDecodeRejectsEmptyTable(t *testing.T) {
	_, err := Decode(bytes.NewReader(nil), 0, 0)
	require.ErrorIs(t, err, ErrEmptyTable)
}

func TestDecodeRejectsTocTooSmall(t *testing.T) {
	_, err := Decode(bytes.NewReader(make([]byte, 5)), 2, 100)
	require.ErrorIs(t, err, ErrTocTooSmall)
}

func TestDecodeRejectsDuplicateIDs(t *testing.T) {
	var buf bytes.Buffer
	writeEntry(&buf, "OIDF", 24)
	writeEntry(&buf, "OIDF", 40)
	writeEntry(&buf, zeroID, 40)

	_, err := Decode(&buf, 2, 40)
	require.ErrorIs(t, err, ErrDuplicateChunkID)
}

func TestDecodeRejectsNonIncreasingOffsets(t *testing.T) {
	var buf bytes.Buffer
	writeEntry(&buf, "OIDF", 24)
	writeEntry(&buf, "CDAT", 20)
	writeEntry(&buf, zeroID, 40)

	_, err := Decode(&buf, 2, 40)
	require.ErrorIs(t, err, ErrNonIncreasingOffsets)
}

func TestDecodeRejectsMissingSentinel(t *testing.T) {
	var buf bytes.Buffer
	writeEntry(&buf, "OIDF", 24)
	writeEntry(&buf, "CDAT", 40)

	_, err := Decode(&buf, 2, 40)
	require.Error(t, err)
}

func writeEntry(buf *bytes.Buffer, id interface{}, offset uint64) {
	var idBytes [4]byte
	switch v := id.(type) {
	case string:
		copy(idBytes[:], v)
	case ID:
		idBytes = v
	}
	var rec [12]byte
	copy(rec[:4], idBytes[:])
	binary.BigEndian.PutUint64(rec[4:12], offset)
	buf.Write(rec[:])
}
