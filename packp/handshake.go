package packp

import (
	"fmt"

	"github.com/objectdb/gitcore/pktline"
)

// Handshake performs the client side of a protocol v2 capability
// negotiation over an already-connected pkt-line stream: it sends the
// desired version and reads back the server's capability advertisement,
// verifying a "version 2" line is present (the only version this module
// understands). Transport setup (dialing, auth, side-band wrapping) is the
// caller's concern; Handshake only drives the pkt-line exchange.
func Handshake(w *pktline.Writer, r *pktline.Reader) (*Capabilities, error) {
	if _, err := w.WritePacketString("version 2\n"); err != nil {
		return nil, fmt.Errorf("packp: sending version request: %w", err)
	}
	if err := w.WriteFlush(); err != nil {
		return nil, fmt.Errorf("packp: sending version request: %w", err)
	}

	caps, err := DecodeAdvertisement(r)
	if err != nil {
		return nil, fmt.Errorf("packp: decoding capability advertisement: %w", err)
	}
	if caps.Version != 2 {
		return nil, ErrUnknownVersion
	}
	return caps, nil
}

// LsRefs runs the ls-refs command against an already-negotiated v2
// connection and returns the server's ref listing.
func LsRefs(w *pktline.Writer, r *pktline.Reader, cmd *LsRefsCommand) ([]RefRecord, error) {
	if err := cmd.Encode(w); err != nil {
		return nil, fmt.Errorf("packp: sending ls-refs command: %w", err)
	}
	refs, err := DecodeLsRefsReply(r)
	if err != nil {
		return nil, fmt.Errorf("packp: decoding ls-refs reply: %w", err)
	}
	return refs, nil
}
