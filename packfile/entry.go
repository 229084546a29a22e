package packfile

import (
	"fmt"
	"io"

	"github.com/objectdb/gitcore/hash"
)

// byteReader is the minimal interface DecodeEntryHeader needs: byte-at-a-time
// reads for the variable-length header fields, and bulk reads for the fixed
// delta-base reference. *bufio.Reader satisfies it, as does any reader
// wrapped by this package's own unbuffered pack cursor.
type byteReader interface {
	io.Reader
	io.ByteReader
}

// DecodeEntryHeader reads one entry's type+size header from r, plus its
// delta base reference when the type is a delta type. r must be positioned
// exactly at the start of the entry.
func DecodeEntryHeader(r byteReader) (EntryHeader, error) {
	first, err := r.ReadByte()
	if err != nil {
		return EntryHeader{}, fmt.Errorf("%w: %v", ErrMalformed, err)
	}

	typ := ObjectType((first & maskEntryType) >> entryTypeShift)
	if !typ.Valid() {
		return EntryHeader{}, fmt.Errorf("%w: invalid entry type %d", ErrMalformed, typ)
	}

	size := uint64(first & maskEntryLength)
	shift := uint(4)
	cont := first&maskContinue != 0
	for cont {
		b, err := r.ReadByte()
		if err != nil {
			return EntryHeader{}, fmt.Errorf("%w: %v", ErrMalformed, err)
		}
		size |= uint64(b&0x7F) << shift
		shift += 7
		cont = b&maskContinue != 0
	}

	eh := EntryHeader{Type: typ, Size: int64(size)}

	switch typ {
	case TypeOfsDelta:
		off, err := decodeOffsetDelta(r)
		if err != nil {
			return EntryHeader{}, err
		}
		eh.BaseOffset = off
	case TypeRefDelta:
		var raw [hash.Size]byte
		if _, err := io.ReadFull(r, raw[:]); err != nil {
			return EntryHeader{}, fmt.Errorf("%w: %v", ErrMalformed, err)
		}
		id, err := hash.FromBytes(raw[:])
		if err != nil {
			return EntryHeader{}, err
		}
		eh.BaseHash = id
	}

	return eh, nil
}

// decodeOffsetDelta reads git's big-endian, base-128-with-bias varint used
// for ofs-delta base offsets: the result is the (positive) distance to
// subtract from the entry's own offset to find its base's offset.
func decodeOffsetDelta(r io.ByteReader) (int64, error) {
	b, err := r.ReadByte()
	if err != nil {
		return 0, fmt.Errorf("%w: %v", ErrMalformed, err)
	}
	offset := int64(b & 0x7F)
	for b&maskContinue != 0 {
		b, err = r.ReadByte()
		if err != nil {
			return 0, fmt.Errorf("%w: %v", ErrMalformed, err)
		}
		offset++
		offset = (offset << 7) | int64(b&0x7F)
	}
	return offset, nil
}
