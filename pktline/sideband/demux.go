package sideband

import (
	"fmt"
	"io"

	"github.com/objectdb/gitcore/pktline"
)

// Demuxer is an io.Reader that splits PackData channel payloads out of a
// sideband-multiplexed stream, writing ProgressMessage payloads to Progress
// (if set) and failing the read on an ErrorMessage payload or an oversized
// packet.
type Demuxer struct {
	// Progress, if set, receives every ProgressMessage payload.
	Progress io.Writer

	t       SidebandType
	r       *pktline.Reader
	pending []byte
}

func NewDemuxer(t SidebandType, r io.Reader) *Demuxer {
	return &Demuxer{t: t, r: pktline.NewReader(r)}
}

// Read fills p with pack-data bytes, looping internally over as many
// sideband packets as needed (skipping progress messages) until p is full,
// a flush or EOF line is seen, or an error/error-message line is reached.
func (d *Demuxer) Read(p []byte) (int, error) {
	var n int
	for n < len(p) {
		if len(d.pending) > 0 {
			c := copy(p[n:], d.pending)
			n += c
			d.pending = d.pending[c:]
			continue
		}

		l, data, err := d.r.ReadPacket()
		if err != nil {
			if n > 0 {
				return n, nil
			}
			return 0, err
		}

		if l == pktline.Flush {
			if n > 0 {
				return n, nil
			}
			return 0, io.EOF
		}
		if len(data) == 0 {
			continue
		}
		if len(data) > d.t.maxPackedSize() {
			return n, ErrMaxPackedExceeded
		}

		channel := Channel(data[0])
		payload := data[1:]
		switch channel {
		case PackData:
			d.pending = payload
		case ProgressMessage:
			if d.Progress != nil {
				if _, werr := d.Progress.Write(payload); werr != nil {
					return n, werr
				}
			}
		case ErrorMessage:
			return n, fmt.Errorf("unexpected error: %s", payload)
		default:
			return n, fmt.Errorf("unknown channel %s", data)
		}
	}
	return n, nil
}
