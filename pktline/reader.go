package pktline

import (
	"bufio"
	"io"
)

// Reader wraps an io.Reader with pkt-line framing and a peek operation,
// grounded on plumbing/format/pktline/reader.go, extended with PeekLine so
// callers implementing a StreamingPeekableIter (packp capability/ref
// listings) can decide whether the next line is a delimiter or data without
// consuming it.
type Reader struct {
	r *bufio.Reader

	// delims, when non-empty, are Status values that AtDelim/ReadUntilDelim treat
	// as terminating an iteration rather than as ordinary data.
	delims map[int]bool
}

func NewReader(r io.Reader) *Reader {
	return &Reader{r: bufio.NewReaderSize(r, MaxSize)}
}

// SetDelims configures which zero-length special lines end the current
// section; e.g. a v2 ls-refs reply ends on Flush, while a capability section
// inside a v2 negotiation ends on Delim.
func (rd *Reader) SetDelims(statuses ...int) {
	rd.delims = make(map[int]bool, len(statuses))
	for _, s := range statuses {
		rd.delims[s] = true
	}
}

// Peek returns the next n bytes without advancing the reader.
func (rd *Reader) Peek(n int) ([]byte, error) {
	return rd.r.Peek(n)
}

// PeekLine reports the Status of the next pkt-line (Flush/Delim/ResponseEnd,
// or the encoded length of a data line — 4 or greater, never colliding with
// a sentinel) without consuming it.
func (rd *Reader) PeekLine() (Status, error) {
	head, err := rd.r.Peek(lenSize)
	if err != nil {
		return Err, err
	}
	return ParseLength(head)
}

// AtDelim reports whether the next line is one of the statuses configured
// via SetDelims.
func (rd *Reader) AtDelim() (bool, error) {
	if len(rd.delims) == 0 {
		return false, nil
	}
	status, err := rd.PeekLine()
	if err != nil {
		return false, err
	}
	return rd.delims[status], nil
}

// ReadPacket reads and returns the next pkt-line payload. Flush/Delim/
// ResponseEnd lines return a nil payload and their Status as l; an "ERR "
// payload returns alongside a non-nil *ErrorLine error.
func (rd *Reader) ReadPacket() (l int, p []byte, err error) {
	return ReadPacket(rd.r)
}

// ReadPacketString is ReadPacket with the payload converted to a string.
func (rd *Reader) ReadPacketString() (int, string, error) {
	return ReadPacketString(rd.r)
}

// ReadUntilDelim reads data lines (skipping nothing) until a line matching
// SetDelims is seen (consumed) or a Flush/EOF is reached, returning the
// collected payloads.
func (rd *Reader) ReadUntilDelim() ([][]byte, error) {
	var lines [][]byte
	for {
		l, p, err := rd.ReadPacket()
		if err != nil {
			if _, ok := err.(*ErrorLine); ok {
				return lines, err
			}
			return lines, err
		}
		if l == Flush || rd.delims[l] {
			return lines, nil
		}
		lines = append(lines, p)
	}
}
