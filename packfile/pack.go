package packfile

import (
	"bytes"
	"compress/zlib"
	"fmt"
	"io"

	"github.com/objectdb/gitcore/hash"
)

// atCursor is an unbuffered, position-tracking reader over an io.ReaderAt,
// used to decode entry headers byte-by-byte without bufio's read-ahead
// making it impossible to know exactly how many header bytes were consumed.
type atCursor struct {
	r   io.ReaderAt
	pos int64
}

func (c *atCursor) ReadByte() (byte, error) {
	var b [1]byte
	if _, err := c.r.ReadAt(b[:], c.pos); err != nil {
		return 0, err
	}
	c.pos++
	return b[0], nil
}

func (c *atCursor) Read(p []byte) (int, error) {
	n, err := c.r.ReadAt(p, c.pos)
	c.pos += int64(n)
	return n, err
}

// Pack is a read-only view over a pack data file's bytes, exposed via
// io.ReaderAt so the backing storage may be a memory-mapped region, as
// spec.md requires, or a plain *os.File.
type Pack struct {
	r       io.ReaderAt
	size    int64
	header  Header
	trailer hash.HashID
}

// OpenPack validates the 12-byte header and reads the trailing checksum.
// It does not validate the checksum against the entry bytes; call
// VerifyChecksum for that.
func OpenPack(r io.ReaderAt, size int64) (*Pack, error) {
	if size < 12+int64(hash.Size) {
		return nil, fmt.Errorf("%w: file too small", ErrMalformed)
	}

	var hdr [12]byte
	if _, err := r.ReadAt(hdr[:], 0); err != nil {
		return nil, fmt.Errorf("%w: reading header: %v", ErrMalformed, err)
	}
	h, err := DecodeHeader(hdr[:])
	if err != nil {
		return nil, err
	}

	var trailerBuf [hash.Size]byte
	if _, err := r.ReadAt(trailerBuf[:], size-int64(hash.Size)); err != nil {
		return nil, fmt.Errorf("%w: reading trailer: %v", ErrMalformed, err)
	}
	trailer, err := hash.FromBytes(trailerBuf[:])
	if err != nil {
		return nil, err
	}

	return &Pack{r: r, size: size, header: h, trailer: trailer}, nil
}

func (p *Pack) Header() Header       { return p.header }
func (p *Pack) Trailer() hash.HashID { return p.trailer }
func (p *Pack) Size() int64          { return p.size }

// ReadAt exposes the pack's backing storage directly, e.g. to slice out a
// raw, still-compressed entry for forwarding to a peer.
func (p *Pack) ReadAt(b []byte, off int64) (int, error) { return p.r.ReadAt(b, off) }

// VerifyChecksum hashes every byte except the trailing checksum itself and
// compares it against the stored trailer.
func (p *Pack) VerifyChecksum() error {
	n := p.size - int64(hash.Size)
	buf := make([]byte, n)
	if _, err := p.r.ReadAt(buf, 0); err != nil {
		return fmt.Errorf("%w: reading body: %v", ErrMalformed, err)
	}
	got := hash.Sum(buf)
	if got != p.trailer {
		return fmt.Errorf("%w: got %s want %s", ErrChecksumMismatch, got, p.trailer)
	}
	return nil
}

// EntryAt reads the entry header at offset and returns it along with the
// byte offset its deflated content begins at.
func (p *Pack) EntryAt(offset int64) (EntryHeader, int64, error) {
	cur := &atCursor{r: p.r, pos: offset}
	eh, err := DecodeEntryHeader(cur)
	if err != nil {
		return EntryHeader{}, 0, err
	}
	return eh, cur.pos, nil
}

// InflateAt zlib-decompresses the entry content beginning at dataOffset,
// returning the decompressed bytes. The caller is expected to already know
// (or not care about) the inflated size; InflateAt reads until the zlib
// stream signals its own end.
func (p *Pack) InflateAt(dataOffset int64) ([]byte, error) {
	sr := io.NewSectionReader(p.r, dataOffset, p.size-dataOffset)
	zr, err := zlib.NewReader(sr)
	if err != nil {
		return nil, fmt.Errorf("%w: zlib: %v", ErrMalformed, err)
	}
	defer zr.Close()

	var out bytes.Buffer
	if _, err := io.Copy(&out, zr); err != nil {
		return nil, fmt.Errorf("%w: inflate: %v", ErrMalformed, err)
	}
	return out.Bytes(), nil
}

// RefResolver translates a ref-delta's base object id to its offset within
// the same pack, as required to resolve thin-pack-internal ref-deltas.
// Implementations typically consult a bundle's index.
type RefResolver interface {
	ResolveRef(id hash.HashID) (offset int64, err error)
}

// EntryCache short-circuits delta chain resolution for previously decoded
// entries, keyed by the offset of their pack entry.
type EntryCache interface {
	Get(offset int64) ([]byte, ObjectType, bool)
	Put(offset int64, data []byte, typ ObjectType)
}

// ErrDeltaBaseUnresolved is returned when a ref-delta's base id cannot be
// translated to an in-pack offset by the supplied resolver.
var ErrDeltaBaseUnresolved = fmt.Errorf("%w: delta base unresolved", ErrMalformed)

// DecodeEntry fully materializes the object at offset, following ofs-delta
// and ref-delta chains recursively. resolve and cache may be nil.
func (p *Pack) DecodeEntry(offset int64, resolve RefResolver, cache EntryCache) ([]byte, ObjectType, error) {
	if cache != nil {
		if data, typ, ok := cache.Get(offset); ok {
			return data, typ, nil
		}
	}

	eh, dataOffset, err := p.EntryAt(offset)
	if err != nil {
		return nil, 0, err
	}

	var result []byte
	var typ ObjectType

	switch eh.Type {
	case TypeOfsDelta, TypeRefDelta:
		var baseOffset int64
		if eh.Type == TypeOfsDelta {
			baseOffset = offset - eh.BaseOffset
		} else {
			if resolve == nil {
				return nil, 0, ErrDeltaBaseUnresolved
			}
			baseOffset, err = resolve.ResolveRef(eh.BaseHash)
			if err != nil {
				return nil, 0, fmt.Errorf("%w: %v", ErrDeltaBaseUnresolved, err)
			}
		}

		baseData, baseType, err := p.DecodeEntry(baseOffset, resolve, cache)
		if err != nil {
			return nil, 0, err
		}

		deltaBytes, err := p.InflateAt(dataOffset)
		if err != nil {
			return nil, 0, err
		}

		result, err = PatchDelta(baseData, deltaBytes)
		if err != nil {
			return nil, 0, err
		}
		typ = baseType

	default:
		result, err = p.InflateAt(dataOffset)
		if err != nil {
			return nil, 0, err
		}
		if int64(len(result)) != eh.Size {
			return nil, 0, fmt.Errorf("%w: declared size %d got %d", ErrMalformed, eh.Size, len(result))
		}
		typ = eh.Type
	}

	if cache != nil {
		cache.Put(offset, result, typ)
	}

	return result, typ, nil
}
