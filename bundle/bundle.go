// Package bundle pairs a pack data file with its index and offers the
// combined (pack, idx) operations spec.md's object database layers build on:
// lookup by id, zero-copy location resolution, and full decode with delta
// resolution.
//
// Grounded on the teacher's storage/filesystem/object.go, which keeps a
// per-pack (*packfile.Packfile, idxfile.Index) pair and arbitrates lookups
// across all of them; Bundle here is that per-pack pair pulled out as its
// own type, independent of any particular storage layout.
package bundle

import (
	"errors"
	"fmt"
	"io"

	"github.com/objectdb/gitcore/hash"
	"github.com/objectdb/gitcore/idxfile"
	"github.com/objectdb/gitcore/packfile"
)

var (
	ErrObjectNotFound   = errors.New("bundle: object not found")
	ErrChecksumMismatch = errors.New("bundle: idx/pack checksum mismatch")
)

// Bundle is one pack data file plus its parsed index.
type Bundle struct {
	ID    hash.HashID // the pack's own name, conventionally its trailing checksum
	Pack  *packfile.Pack
	Index *idxfile.Index
}

// Open builds a Bundle from an already-opened pack and index, validating
// that the index's stored pack checksum matches the pack's own trailer, per
// spec.md's invariant that "the trailing hash stored in the .idx equals the
// hash stored at the end of the paired .pack".
func Open(pack *packfile.Pack, index *idxfile.Index) (*Bundle, error) {
	if pack.Trailer() != index.PackChecksum() {
		return nil, fmt.Errorf("%w: pack=%s idx-recorded=%s", ErrChecksumMismatch, pack.Trailer(), index.PackChecksum())
	}
	return &Bundle{ID: pack.Trailer(), Pack: pack, Index: index}, nil
}

// Location is a zero-copy handle to an entry's raw bytes within the pack:
// enough to stream the compressed entry through to a peer without decoding
// it, or to slice out exactly the bytes a CRC check needs.
type Location struct {
	PackOffset int64
	EntrySize  int64 // compressed entry size, header to next entry's offset
}

var _ packfile.RefResolver = (*Bundle)(nil)

// ResolveRef implements packfile.RefResolver by consulting this bundle's own
// index, the common case for ref-deltas within a single non-thin pack.
func (b *Bundle) ResolveRef(id hash.HashID) (int64, error) {
	off, err := b.Index.FindOffset(id)
	if err != nil {
		return 0, fmt.Errorf("%w: %s", ErrObjectNotFound, id)
	}
	return int64(off), nil
}

// Contains reports whether id is present in this bundle's index.
func (b *Bundle) Contains(id hash.HashID) (bool, error) {
	return b.Index.Contains(id)
}

// LocationOf resolves id to its pack-relative byte range, without decoding
// it. EntrySize is derived from the distance to the next entry in offset
// order, or to the start of the trailing checksum for the last entry.
func (b *Bundle) LocationOf(id hash.HashID) (Location, error) {
	offset, err := b.Index.FindOffset(id)
	if err != nil {
		return Location{}, fmt.Errorf("%w: %s", ErrObjectNotFound, id)
	}

	byOffset, err := b.Index.EntriesByOffset()
	if err != nil {
		return Location{}, err
	}

	end := b.Pack.Size() - int64(hash.Size)
	for i, e := range byOffset {
		if e.Offset != offset {
			continue
		}
		if i+1 < len(byOffset) {
			end = int64(byOffset[i+1].Offset)
		}
		return Location{PackOffset: int64(offset), EntrySize: end - int64(offset)}, nil
	}

	return Location{}, fmt.Errorf("%w: %s", ErrObjectNotFound, id)
}

// EntryBytes streams the raw, still-compressed bytes of a located entry,
// e.g. to forward a pack entry to a peer verbatim.
func (b *Bundle) EntryBytes(loc Location) ([]byte, error) {
	buf := make([]byte, loc.EntrySize)
	n, err := readAtFull(b.Pack, buf, loc.PackOffset)
	if err != nil {
		return nil, err
	}
	return buf[:n], nil
}

func readAtFull(r io.ReaderAt, buf []byte, offset int64) (int, error) {
	total := 0
	for total < len(buf) {
		n, err := r.ReadAt(buf[total:], offset+int64(total))
		total += n
		if err != nil {
			if err == io.EOF && total == len(buf) {
				return total, nil
			}
			return total, err
		}
	}
	return total, nil
}

// Find looks up id and fully decodes it, resolving any delta chain via this
// bundle's own index and the supplied cache (nil is fine).
func (b *Bundle) Find(id hash.HashID, cache packfile.EntryCache) ([]byte, packfile.ObjectType, error) {
	offset, err := b.Index.FindOffset(id)
	if err != nil {
		return nil, 0, fmt.Errorf("%w: %s", ErrObjectNotFound, id)
	}
	return b.Pack.DecodeEntry(int64(offset), b, cache)
}
