// Package packp implements the protocol v2 records this module covers:
// the capability advertisement handshake and the ls-refs command and its
// reply. Everything above packet-line framing that negotiates an actual
// transport (upload-pack/receive-pack session state, fetch/push argument
// lists, shallow handling) is out of scope; see spec's Non-goals.
//
// Grounded on plumbing/format/packp/capabilities.go for the Capability
// value-list shape and plumbing/protocol/packp/common.go for the small
// "name" or "name=value" line-splitting helper; the v2-specific framing
// (line-per-capability instead of one space-joined v1 line, the ls-refs
// command/reply grammar) is modeled directly off spec's wire grammar since
// plumbing/protocol/v2 held only *_test.go files in the retrieved snapshot.
package packp

import "errors"

var (
	ErrNoVersionLine  = errors.New("packp: capability advertisement missing \"version 2\" line")
	ErrUnknownVersion = errors.New("packp: unsupported protocol version")
	ErrMalformedLine  = errors.New("packp: malformed line")
)
