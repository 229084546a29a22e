package sideband

import (
	"io"

	"github.com/objectdb/gitcore/pktline"
)

// Muxer is an io.Writer that wraps written pack-data bytes in PackData
// sideband packets, splitting them into chunks no larger than the
// SidebandType's maximum packed size.
type Muxer struct {
	t SidebandType
	w io.Writer
}

func NewMuxer(t SidebandType, w io.Writer) *Muxer {
	return &Muxer{t: t, w: w}
}

// WriteChannel writes one sideband packet on the given channel and returns
// the number of payload bytes written (excluding the channel byte and
// pkt-line framing).
func (m *Muxer) WriteChannel(ch Channel, p []byte) (int, error) {
	if _, err := pktline.WritePacket(m.w, ch.WithPayload(p)); err != nil {
		return 0, err
	}
	return len(p), nil
}

// Write implements io.Writer by chunking p into PackData packets.
func (m *Muxer) Write(p []byte) (int, error) {
	chunkSize := m.t.maxPackedSize() - 1
	var written int
	for len(p) > 0 {
		n := chunkSize
		if n > len(p) {
			n = len(p)
		}
		wn, err := m.WriteChannel(PackData, p[:n])
		written += wn
		if err != nil {
			return written, err
		}
		p = p[n:]
	}
	return written, nil
}
