package chunkfile

import (
	"bytes"
	"encoding/binary"
)

// Writer accumulates named chunk bodies and emits a table of contents
// followed by their concatenated bytes, matching the layout Decode parses.
// headerLen is the size of whatever fixed header the caller already wrote
// before the TOC begins (commit-graph and multi-pack index each have one);
// offsets recorded in the TOC are relative to the start of that header.
type Writer struct {
	headerLen uint64
	ids       []ID
	bodies    [][]byte
}

// NewWriter starts a chunk-file body builder. headerLen must equal the
// number of bytes the caller will have written before calling Bytes.
func NewWriter(headerLen uint64) *Writer {
	return &Writer{headerLen: headerLen}
}

// Add appends a chunk. Order of calls determines on-disk order.
func (w *Writer) Add(id ID, body []byte) {
	w.ids = append(w.ids, id)
	w.bodies = append(w.bodies, body)
}

// Bytes renders the table of contents plus chunk bodies, ready to be
// appended directly after the caller's fixed header.
func (w *Writer) Bytes() []byte {
	var buf bytes.Buffer

	offset := w.headerLen + uint64(len(w.ids)+1)*12
	var rec [12]byte
	for i, id := range w.ids {
		copy(rec[:4], id[:])
		binary.BigEndian.PutUint64(rec[4:12], offset)
		buf.Write(rec[:])
		offset += uint64(len(w.bodies[i]))
	}
	copy(rec[:4], zeroID[:])
	binary.BigEndian.PutUint64(rec[4:12], offset)
	buf.Write(rec[:])

	for _, b := range w.bodies {
		buf.Write(b)
	}
	return buf.Bytes()
}
