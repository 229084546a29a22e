package ewah

import "encoding/binary"

// Encode renders a bitmap to the wire format Decode parses, from an
// ascending, deduplicated list of set-bit indices. It always emits a single
// run-length word (with a zero-length run) followed by one literal word for
// every 64-bit span of numBits, including spans with no set bit, which is
// simple and correct though not run-length-optimal; callers needing compact output should coalesce
// runs themselves before calling Encode.
func Encode(numBits uint32, setBits []uint32) []byte {
	var numWords uint32
	if numBits > 0 {
		numWords = (numBits + 63) / 64
	}
	words := make([]uint64, numWords)
	for _, bit := range setBits {
		if bit >= numBits {
			continue
		}
		words[bit/64] |= 1 << uint(bit%64)
	}

	rlw := uint64(numWords) << 33 // running bit=0, running len=0, literal count=numWords

	out := make([]byte, 0, 8+8*len(words)+4)
	var hdr [8]byte
	binary.BigEndian.PutUint32(hdr[0:4], numBits)
	binary.BigEndian.PutUint32(hdr[4:8], uint32(len(words))+1)
	out = append(out, hdr[:]...)

	var rlwBuf [8]byte
	binary.BigEndian.PutUint64(rlwBuf[:], rlw)
	out = append(out, rlwBuf[:]...)

	buf := make([]byte, 8)
	for _, w := range words {
		binary.BigEndian.PutUint64(buf, w)
		out = append(out, buf...)
	}

	var tail [4]byte
	binary.BigEndian.PutUint32(tail[:], 0) // rlw head points at the single running-length word
	out = append(out, tail[:]...)

	return out
}
