package packfile

import (
	"bytes"
	"errors"
)

// See https://github.com/git/git/blob/master/delta.h and patch-delta.c for
// details of the copy/insert instruction format this decodes.

var (
	ErrInvalidDelta = errors.New("packfile: invalid delta")
	ErrDeltaCommand = errors.New("packfile: unrecognized delta command")
)

const maxCopySize = 0x10000

type bitfield struct {
	mask  byte
	shift uint
}

var copyOffsetFields = []bitfield{
	{mask: 0x01, shift: 0},
	{mask: 0x02, shift: 8},
	{mask: 0x04, shift: 16},
	{mask: 0x08, shift: 24},
}

var copySizeFields = []bitfield{
	{mask: 0x10, shift: 0},
	{mask: 0x20, shift: 8},
	{mask: 0x40, shift: 16},
}

// PatchDelta applies a git delta to src, returning the reconstructed target
// bytes. delta must begin with the LEB128-encoded source and target sizes
// that every git delta carries, and the decoded source size must match
// len(src) exactly.
func PatchDelta(src, delta []byte) ([]byte, error) {
	if len(src) == 0 || len(delta) < 4 {
		return nil, ErrInvalidDelta
	}

	srcSz, delta, ok := decodeDeltaSize(delta)
	if !ok || srcSz != uint64(len(src)) {
		return nil, ErrInvalidDelta
	}

	targetSz, delta, ok := decodeDeltaSize(delta)
	if !ok {
		return nil, ErrInvalidDelta
	}

	dst := bytes.NewBuffer(make([]byte, 0, targetSz))
	remaining := targetSz

	for remaining > 0 {
		if len(delta) == 0 {
			return nil, ErrInvalidDelta
		}
		cmd := delta[0]
		delta = delta[1:]

		switch {
		case cmd&0x80 != 0:
			var offset, size uint64
			var err error
			offset, delta, err = decodeCopyField(cmd, delta, copyOffsetFields)
			if err != nil {
				return nil, err
			}
			size, delta, err = decodeCopyField(cmd, delta, copySizeFields)
			if err != nil {
				return nil, err
			}
			if size == 0 {
				size = maxCopySize
			}
			if size > remaining || offset+size < offset || offset+size > srcSz {
				return nil, ErrInvalidDelta
			}
			dst.Write(src[offset : offset+size])
			remaining -= size

		case cmd != 0:
			size := uint64(cmd)
			if size > remaining || uint64(len(delta)) < size {
				return nil, ErrInvalidDelta
			}
			dst.Write(delta[:size])
			delta = delta[size:]
			remaining -= size

		default:
			return nil, ErrDeltaCommand
		}
	}

	return dst.Bytes(), nil
}

func decodeCopyField(cmd byte, delta []byte, fields []bitfield) (uint64, []byte, error) {
	var v uint64
	for _, f := range fields {
		if cmd&f.mask == 0 {
			continue
		}
		if len(delta) == 0 {
			return 0, nil, ErrInvalidDelta
		}
		v |= uint64(delta[0]) << f.shift
		delta = delta[1:]
	}
	return v, delta, nil
}

// decodeDeltaSize decodes the plain (non-biased) LEB128 varint git uses for
// a delta's embedded source/target size fields.
func decodeDeltaSize(b []byte) (uint64, []byte, bool) {
	var v uint64
	var shift uint
	for i := 0; i < len(b); i++ {
		v |= uint64(b[i]&0x7F) << shift
		if b[i]&0x80 == 0 {
			return v, b[i+1:], true
		}
		shift += 7
	}
	return 0, nil, false
}
