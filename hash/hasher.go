package hash

import (
	"hash"
	"strconv"

	"github.com/pjbgf/sha1cd"
)

// ObjectKind identifies one of the four persisted object kinds. Defined here
// (rather than imported from package object) to avoid an import cycle, since
// both object and packfile need to compute hashes.
type ObjectKind byte

const (
	KindInvalid ObjectKind = 0
	KindCommit  ObjectKind = 1
	KindTree    ObjectKind = 2
	KindBlob    ObjectKind = 3
	KindTag     ObjectKind = 4
)

// String returns the on-disk textual header name for the kind.
func (k ObjectKind) String() string {
	switch k {
	case KindCommit:
		return "commit"
	case KindTree:
		return "tree"
	case KindBlob:
		return "blob"
	case KindTag:
		return "tag"
	default:
		return "invalid"
	}
}

// Hasher computes the git object hash: sha1(header || content), where header
// is "<kind> <decimal-size>\x00".
type Hasher struct {
	h hash.Hash
}

// NewHasher returns a Hasher reset for the given kind and content size.
func NewHasher(kind ObjectKind, size int64) Hasher {
	h := Hasher{h: sha1cd.New()}
	h.Reset(kind, size)
	return h
}

// Reset rewinds the hasher and rewrites the object header.
func (h Hasher) Reset(kind ObjectKind, size int64) {
	h.h.Reset()
	h.h.Write([]byte(kind.String()))
	h.h.Write([]byte(" "))
	h.h.Write([]byte(strconv.FormatInt(size, 10)))
	h.h.Write([]byte{0})
}

// Write feeds object content bytes into the running hash.
func (h Hasher) Write(p []byte) (int, error) {
	return h.h.Write(p)
}

// Sum returns the computed HashID.
func (h Hasher) Sum() HashID {
	var out HashID
	copy(out[:], h.h.Sum(nil))
	return out
}

// HashObject computes the HashID of kind/data in one call.
func HashObject(kind ObjectKind, data []byte) HashID {
	h := NewHasher(kind, int64(len(data)))
	h.Write(data)
	return h.Sum()
}

// Sum computes a plain digest of data with no git object header, the form
// used for pack and index file trailing checksums.
func Sum(data []byte) HashID {
	h := sha1cd.New()
	h.Write(data)
	var out HashID
	copy(out[:], h.Sum(nil))
	return out
}

// NewRawHasher returns a stdlib hash.Hash computing the same plain digest as
// Sum, for callers that must feed it bytes incrementally (e.g. hashing a
// streamed pack as its bytes go by) rather than from one in-memory buffer.
func NewRawHasher() hash.Hash {
	return sha1cd.New()
}
