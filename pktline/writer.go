package pktline

import (
	"fmt"
	"io"
)

// Writer wraps an io.Writer with pkt-line framing helpers.
type Writer struct {
	w io.Writer
}

var _ io.Writer = (*Writer)(nil)

func NewWriter(w io.Writer) *Writer {
	if wtr, ok := w.(*Writer); ok {
		return wtr
	}
	return &Writer{w: w}
}

func (w *Writer) Write(p []byte) (int, error) { return w.w.Write(p) }

func (w *Writer) WriteData(p []byte) (int, error)       { return WritePacket(w.w, p) }
func (w *Writer) WritePacketString(s string) (int, error) { return WritePacket(w.w, []byte(s)) }

func (w *Writer) WritePacketf(format string, a ...interface{}) (int, error) {
	if len(a) == 0 {
		return w.WritePacketString(format)
	}
	return w.WritePacketString(fmt.Sprintf(format, a...))
}

func (w *Writer) WriteFlush() error       { return WriteFlush(w.w) }
func (w *Writer) WriteDelimiter() error   { return WriteDelim(w.w) }
func (w *Writer) WriteResponseEnd() error { return WriteResponseEnd(w.w) }

func (w *Writer) WriteError(e error) (int, error) {
	return w.WritePacketString("ERR " + e.Error() + "\n")
}
