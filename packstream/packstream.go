// Package packstream provides a sequential, forward-only iterator over a
// pack data stream, the shape a network fetch or `index-pack`-style
// operation consumes a pack in as it arrives rather than through a
// materialized io.ReaderAt.
//
// Grounded on the teacher's plumbing/format/packfile/scanner.go (the general
// header/entry/footer state machine, crc32-per-entry accumulation) adapted
// away from that file's storage-writing side effects: this package only
// frames entries and hands them to the caller; packwrite and odb decide what
// to do with them.
package packstream

import (
	"bufio"
	"bytes"
	"compress/zlib"
	"errors"
	"fmt"
	"hash"
	"hash/crc32"
	"io"

	objhash "github.com/objectdb/gitcore/hash"
	"github.com/objectdb/gitcore/internal/trace"
	"github.com/objectdb/gitcore/packfile"
)

// TrailerPolicy controls how the iterator treats the 20-byte checksum that
// follows the last entry.
type TrailerPolicy int

const (
	// AsIs passes through whatever bytes follow the last entry, unexamined.
	AsIs TrailerPolicy = iota
	// Verify hashes every entry byte seen and compares it to the trailing
	// checksum, failing on mismatch.
	Verify
	// Restore tolerates a truncated or missing trailer, synthesizing the
	// correct trailing hash from the entries actually read.
	Restore
)

var (
	ErrEmpty             = errors.New("packstream: empty pack")
	ErrTruncatedTrailer  = errors.New("packstream: truncated trailer")
	ErrTrailerMismatch   = errors.New("packstream: trailer checksum mismatch")
	ErrUnexpectedEOF     = errors.New("packstream: unexpected end of entries")
	ErrNothingRestorable = errors.New("packstream: no complete entries to restore a trailer from")
)

// Options configures what an Entry retains, beyond its header.
type Options struct {
	Trailer        TrailerPolicy
	KeepCompressed bool // retain the raw, still-deflated entry bytes
	KeepInflated   bool // retain the decompressed payload
}

// Entry is one decoded pack entry plus whatever the caller asked to keep.
type Entry struct {
	Header     packfile.EntryHeader
	Offset     int64
	CRC32      uint32
	Compressed []byte // nil unless Options.KeepCompressed
	Inflated   []byte // nil unless Options.KeepInflated
}

// countingByteReader tracks how many bytes have been read through it and
// feeds every byte to an optional running hash, so the iterator can hash
// exactly the bytes that belong to entries without double-buffering them.
type countingByteReader struct {
	r       *bufio.Reader
	n       int64
	running hash.Hash
}

func (c *countingByteReader) ReadByte() (byte, error) {
	b, err := c.r.ReadByte()
	if err != nil {
		return 0, err
	}
	c.n++
	if c.running != nil {
		c.running.Write([]byte{b})
	}
	return b, nil
}

func (c *countingByteReader) Read(p []byte) (int, error) {
	n, err := c.r.Read(p)
	c.n += int64(n)
	if c.running != nil && n > 0 {
		c.running.Write(p[:n])
	}
	return n, err
}

// Iterator yields entries from a pack data stream in order.
type Iterator struct {
	src     *countingByteReader
	opts    Options
	header  packfile.Header
	index   uint32
	done    bool
	trailer objhash.HashID
	err     error
}

// New reads and validates the 12-byte pack header from r, returning an
// Iterator ready to yield ObjectsQty entries.
func New(r io.Reader, opts Options) (*Iterator, error) {
	br := bufio.NewReader(r)

	var running hash.Hash
	if opts.Trailer == Verify || opts.Trailer == Restore {
		running = objhash.NewRawHasher()
	}
	cr := &countingByteReader{r: br, running: running}

	var hdr [12]byte
	if _, err := io.ReadFull(cr, hdr[:]); err != nil {
		if err == io.ErrUnexpectedEOF || err == io.EOF {
			return nil, ErrEmpty
		}
		return nil, err
	}
	h, err := packfile.DecodeHeader(hdr[:])
	if err != nil {
		return nil, err
	}
	if h.ObjectsQty == 0 {
		return nil, ErrEmpty
	}

	trace.Packet.Printf("packstream: opened pack version=%d objects=%d", h.Version, h.ObjectsQty)
	return &Iterator{src: cr, opts: opts, header: h}, nil
}

// Header returns the parsed pack header.
func (it *Iterator) Header() packfile.Header { return it.header }

// Err returns the error that stopped iteration, if any, distinct from the
// ordinary end of the entry stream.
func (it *Iterator) Err() error { return it.err }

// Trailer returns the pack's trailing checksum, available only after Next
// has returned false and Err is nil.
func (it *Iterator) Trailer() objhash.HashID { return it.trailer }

// Next decodes the next entry, or returns false when the entry stream is
// exhausted (check Err to distinguish a clean finish from a failure).
func (it *Iterator) Next() (Entry, bool) {
	if it.done {
		return Entry{}, false
	}

	if it.index >= it.header.ObjectsQty {
		it.done = true
		if err := it.finish(); err != nil {
			it.err = err
		}
		return Entry{}, false
	}

	offset := it.src.n
	eh, err := packfile.DecodeEntryHeader(it.src)
	if err != nil {
		it.done = true
		it.err = err
		return Entry{}, false
	}

	entry := Entry{Header: eh, Offset: offset}

	crcW := crc32.NewIEEE()
	var compressed *bytes.Buffer
	var sink io.Writer = crcW
	if it.opts.KeepCompressed {
		compressed = &bytes.Buffer{}
		sink = io.MultiWriter(crcW, compressed)
	}
	// tbr must satisfy packfile's byteReader (Read+ReadByte): flate only
	// avoids extra internal buffering, and therefore only consumes exactly
	// its own stream's bytes, when its source already implements ReadByte —
	// the same reasoning packfile.atCursor was built around.
	tbr := &teeByteReader{src: it.src, w: sink}

	zr, err := zlib.NewReader(tbr)
	if err != nil {
		it.done = true
		it.err = fmt.Errorf("packstream: zlib: %w", err)
		return Entry{}, false
	}

	inflated, err := io.ReadAll(zr)
	zr.Close()
	if err != nil {
		it.done = true
		it.err = fmt.Errorf("packstream: inflate: %w", err)
		return Entry{}, false
	}
	if int64(len(inflated)) != eh.Size {
		// For delta entries eh.Size is the inflated length of the delta
		// instruction stream itself, not the patched target's size, so the
		// same check holds for every entry type.
		it.done = true
		it.err = fmt.Errorf("packstream: declared size %d got %d", eh.Size, len(inflated))
		return Entry{}, false
	}

	entry.CRC32 = crcW.Sum32()
	if it.opts.KeepInflated {
		entry.Inflated = inflated
	}
	if it.opts.KeepCompressed {
		entry.Compressed = compressed.Bytes()
	}

	it.index++
	trace.Packet.Printf("packstream: entry %d/%d type=%d offset=%d size=%d", it.index, it.header.ObjectsQty, eh.Type, offset, eh.Size)
	return entry, true
}

// teeByteReader reads through src while also writing every consumed byte to
// w, implementing both Read and ReadByte so it can stand in wherever a plain
// byteReader is expected (e.g. as zlib's underlying source) without losing
// the exact-consumption property that motivates packfile.atCursor.
type teeByteReader struct {
	src *countingByteReader
	w   io.Writer
}

func (t *teeByteReader) ReadByte() (byte, error) {
	b, err := t.src.ReadByte()
	if err != nil {
		return 0, err
	}
	t.w.Write([]byte{b})
	return b, nil
}

func (t *teeByteReader) Read(p []byte) (int, error) {
	n, err := t.src.Read(p)
	if n > 0 {
		t.w.Write(p[:n])
	}
	return n, err
}

func (it *Iterator) finish() error {
	switch it.opts.Trailer {
	case AsIs:
		var buf [objhash.Size]byte
		if _, err := io.ReadFull(it.src, buf[:]); err != nil {
			return fmt.Errorf("%w: %v", ErrTruncatedTrailer, err)
		}
		trailer, err := objhash.FromBytes(buf[:])
		if err != nil {
			return err
		}
		it.trailer = trailer
		return nil

	case Verify:
		sum := it.src.running.Sum(nil)
		var buf [objhash.Size]byte
		if _, err := io.ReadFull(it.src, buf[:]); err != nil {
			return fmt.Errorf("%w: %v", ErrTruncatedTrailer, err)
		}
		want, err := objhash.FromBytes(buf[:])
		if err != nil {
			return err
		}
		got, err := objhash.FromBytes(sum)
		if err != nil {
			return err
		}
		if got != want {
			return fmt.Errorf("%w: got %s want %s", ErrTrailerMismatch, got, want)
		}
		it.trailer = got
		return nil

	case Restore:
		if it.index == 0 {
			return ErrNothingRestorable
		}
		sum := it.src.running.Sum(nil)
		trailer, err := objhash.FromBytes(sum)
		if err != nil {
			return err
		}
		var buf [objhash.Size]byte
		n, _ := io.ReadFull(it.src, buf[:])
		if n == objhash.Size {
			if got, err := objhash.FromBytes(buf[:]); err == nil && got == trailer {
				it.trailer = got
				return nil
			}
		}
		it.trailer = trailer
		return nil

	default:
		return fmt.Errorf("packstream: unknown trailer policy %d", it.opts.Trailer)
	}
}
