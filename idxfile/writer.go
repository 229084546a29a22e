package idxfile

import (
	"bytes"
	"encoding/binary"
	"fmt"
	"sort"

	"github.com/objectdb/gitcore/hash"
)

// Encode renders a v2 pack index from entries, which need not be
// pre-sorted: Encode sorts a copy by id before emitting the fanout table,
// matching spec.md's index-entry invariant that names are strictly
// ascending. packChecksum is the trailing hash of the paired pack file.
func Encode(entries []Entry, packChecksum hash.HashID) ([]byte, error) {
	sorted := make([]Entry, len(entries))
	copy(sorted, entries)
	sort.Slice(sorted, func(i, j int) bool { return sorted[i].ID.Compare(sorted[j].ID.Bytes()) < 0 })

	for i := 1; i < len(sorted); i++ {
		if sorted[i-1].ID.Compare(sorted[i].ID.Bytes()) == 0 {
			return nil, fmt.Errorf("%w: duplicate object id %s", ErrInvalidIndex, sorted[i].ID)
		}
	}

	var buf bytes.Buffer
	buf.Write(V2Header[:])
	writeU32(&buf, SupportedVersion)

	var fanout [256]uint32
	fi := 0
	for b := 0; b < 256; b++ {
		for fi < len(sorted) && int(sorted[fi].ID.Bytes()[0]) <= b {
			fanout[b]++
			fi++
		}
		if b > 0 {
			fanout[b] += fanout[b-1]
		}
	}
	for _, v := range fanout {
		writeU32(&buf, v)
	}

	for _, e := range sorted {
		buf.Write(e.ID.Bytes())
	}
	for _, e := range sorted {
		writeU32(&buf, e.CRC32)
	}

	var big []uint64
	for _, e := range sorted {
		if e.Offset > 0x7FFFFFFF {
			writeU32(&buf, is64BitMask|uint32(len(big)))
			big = append(big, e.Offset)
		} else {
			writeU32(&buf, uint32(e.Offset))
		}
	}
	for _, off := range big {
		writeU64(&buf, off)
	}

	buf.Write(packChecksum.Bytes())

	selfSum := hash.Sum(buf.Bytes())
	buf.Write(selfSum.Bytes())

	return buf.Bytes(), nil
}

func writeU32(buf *bytes.Buffer, v uint32) {
	var b [4]byte
	binary.BigEndian.PutUint32(b[:], v)
	buf.Write(b[:])
}

func writeU64(buf *bytes.Buffer, v uint64) {
	var b [8]byte
	binary.BigEndian.PutUint64(b[:], v)
	buf.Write(b[:])
}
