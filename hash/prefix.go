package hash

import (
	"bytes"
	"strings"
)

// Prefix is an unambiguous short identifier: a HashID together with the
// number of hex nibbles that are actually significant. Bytes past hexLen
// nibbles are always zero.
type Prefix struct {
	bytes  HashID
	hexLen int
}

// NewPrefix builds a Prefix from a hex string, validating its length.
func NewPrefix(hex string) (Prefix, error) {
	if len(hex) < MinPrefixHexLen {
		return Prefix{}, ErrTooShortPrefix
	}
	if len(hex) > HexSize {
		return Prefix{}, ErrTooLongPrefix
	}

	// FromHex requires a full HexSize-length string; right-pad the
	// abbreviation with zero nibbles so a short prefix still decodes.
	full, err := FromHex(hex + strings.Repeat("0", HexSize-len(hex)))
	if err != nil {
		return Prefix{}, err
	}

	return full.Prefix(len(hex)), nil
}

// HexLen returns the number of significant hex nibbles.
func (p Prefix) HexLen() int { return p.hexLen }

// Bytes returns the underlying HashID; bytes beyond HexLen nibbles are zero.
func (p Prefix) Bytes() HashID { return p.bytes }

// String renders only the significant nibbles.
func (p Prefix) String() string {
	full := p.bytes.String()
	return full[:p.hexLen]
}

// CompareOID performs a three-way comparison against a full hash, comparing
// only the prefix's significant nibbles.
func (p Prefix) CompareOID(id HashID) int {
	fullNibbles := p.hexLen / 2
	if c := bytes.Compare(p.bytes[:fullNibbles], id[:fullNibbles]); c != 0 {
		return c
	}
	if p.hexLen%2 == 0 {
		return 0
	}

	// Odd nibble count: compare only the high nibble of the boundary byte.
	pNib := p.bytes[fullNibbles] >> 4
	idNib := id[fullNibbles] >> 4
	switch {
	case pNib < idNib:
		return -1
	case pNib > idNib:
		return 1
	default:
		return 0
	}
}

// Matches reports whether id shares this prefix's significant nibbles.
func (p Prefix) Matches(id HashID) bool {
	return p.CompareOID(id) == 0
}
