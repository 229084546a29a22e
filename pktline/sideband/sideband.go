// Package sideband implements the sideband multiplexing used on top of
// pkt-line framing to carry pack data, progress messages and error messages
// over a single stream during a fetch/push negotiation.
//
// Grounded on plumbing/protocol/packp/sideband/{demux_test,muxer_test}.go;
// no implementation files for this package were present in the retrieved
// snapshot (only the two *_test.go files), so Demuxer/Muxer below are
// reconstructed directly from those tests' exact byte-level expectations
// (see DESIGN.md).
package sideband

import "errors"

// Channel is the one-byte sideband channel selector prefixing every
// multiplexed payload.
type Channel byte

const (
	PackData        Channel = 1
	ProgressMessage Channel = 2
	ErrorMessage    Channel = 3
)

// WithPayload prepends the channel selector to p.
func (ch Channel) WithPayload(p []byte) []byte {
	out := make([]byte, 0, len(p)+1)
	out = append(out, byte(ch))
	out = append(out, p...)
	return out
}

// SidebandType selects the maximum packed (channel+payload) size a side.
type SidebandType int

const (
	// Sideband is the original 1000-byte-capped sideband.
	Sideband SidebandType = iota
	// Sideband64k is the larger-capacity sideband advertised as
	// "side-band-64k".
	Sideband64k
)

// MaxPackedSize is the largest channel+payload size a Sideband packet may
// carry; Sideband64k permits a much larger chunk.
const MaxPackedSize = 1000

// maxPackedSize64k is the largest channel+payload a Sideband64k packet may
// carry: a 65520-byte pkt-line minus its 4-byte length prefix.
const maxPackedSize64k = 65516

func (t SidebandType) maxPackedSize() int {
	if t == Sideband64k {
		return maxPackedSize64k
	}
	return MaxPackedSize
}

// ErrMaxPackedExceeded is returned by Demuxer.Read when a packet's
// channel+payload exceeds the sideband type's maximum packed size.
var ErrMaxPackedExceeded = errors.New("sideband: max packed size exceeded")
