package odb

import (
	"context"
	"fmt"
	"hash/crc32"
	"sync"

	"github.com/objectdb/gitcore/bundle"
	"github.com/objectdb/gitcore/concurrent"
	"github.com/objectdb/gitcore/hash"
	"github.com/objectdb/gitcore/idxfile"
	"github.com/objectdb/gitcore/internal/trace"
	"github.com/objectdb/gitcore/packfile"
)

// Algorithm selects how integrity traversal resolves each entry's delta
// chain. Both produce identical results; they differ only in work shape.
type Algorithm int

const (
	// Lookup resolves each entry's delta chain independently, with no
	// cross-entry cache: low memory, but a base shared by many entries is
	// decompressed once per dependent.
	Lookup Algorithm = iota
	// DeltaTreeLookup shares one decode cache across the whole traversal,
	// so a base reachable from many entries is decompressed once overall.
	DeltaTreeLookup
)

// CheckMode selects which validations a Verify run performs and whether a
// failure aborts the run, mirroring spec's SafetyCheck options.
type CheckMode int

const (
	// CheckAll verifies the pack's trailing checksum, every entry's CRC32,
	// and every object's content hash; the first error aborts the run.
	CheckAll CheckMode = iota
	// SkipFileChecksum skips the whole-pack trailing-checksum verification
	// but still checks every entry's CRC32 and object hash.
	SkipFileChecksum
	// SkipFileAndObjectChecksum additionally skips the decoded object's
	// hash-vs-index-name comparison, leaving only per-entry CRC32 checks.
	SkipFileAndObjectChecksum
	// SkipAndContinueOnDecodeError runs every check CheckAll does but
	// accumulates errors instead of aborting on the first one.
	SkipAndContinueOnDecodeError
)

// Options configures a Verify run.
type Options struct {
	Algorithm   Algorithm
	ThreadLimit int
	Check       CheckMode
}

// ObjectReport is the per-object outcome of a successful verification.
type ObjectReport struct {
	ID     hash.HashID
	Offset int64
	Kind   hash.ObjectKind
	Size   int64
}

// VerifyError wraps a single entry's verification failure with the
// location that failed, so SkipAndContinueOnDecodeError runs can report
// every bad entry rather than just the first.
type VerifyError struct {
	ID     hash.HashID
	Offset int64
	Err    error
}

func (e *VerifyError) Error() string {
	return fmt.Sprintf("odb: verify %s at offset %d: %v", e.ID, e.Offset, e.Err)
}

func (e *VerifyError) Unwrap() error { return e.Err }

// Report is the outcome of a full Verify run.
type Report struct {
	Objects []ObjectReport
	Errors  []*VerifyError
}

// memCache is a mutex-guarded, map-backed packfile.EntryCache, letting
// DeltaTreeLookup share decoded bases across concurrent workers.
type memCache struct {
	mu   sync.Mutex
	data map[int64]memEntry
}

type memEntry struct {
	data []byte
	typ  packfile.ObjectType
}

func newMemCache() *memCache { return &memCache{data: make(map[int64]memEntry)} }

func (c *memCache) Get(offset int64) ([]byte, packfile.ObjectType, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	e, ok := c.data[offset]
	return e.data, e.typ, ok
}

func (c *memCache) Put(offset int64, data []byte, typ packfile.ObjectType) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.data[offset] = memEntry{data: data, typ: typ}
}

// Verify performs integrity traversal over every entry in b's index: per
// spec, it computes each object's decompressed size, compares its entry's
// declared CRC32 against the CRC32 of the raw (still-compressed) entry
// bytes, and compares the fully decoded object's hash against the name the
// index stored it under.
func Verify(ctx context.Context, b *bundle.Bundle, opts Options) (*Report, error) {
	if opts.Check != SkipFileChecksum && opts.Check != SkipFileAndObjectChecksum {
		if err := b.Pack.VerifyChecksum(); err != nil {
			return nil, err
		}
	}

	entries, err := b.Index.Entries()
	if err != nil {
		return nil, err
	}
	trace.Performance.Printf("odb: verifying %d entries algorithm=%d", len(entries), opts.Algorithm)

	var cache packfile.EntryCache
	if opts.Algorithm == DeltaTreeLookup {
		cache = newMemCache()
	}

	continueOnError := opts.Check == SkipAndContinueOnDecodeError
	checkObjectHash := opts.Check != SkipFileAndObjectChecksum

	type chunkResult struct {
		objects []ObjectReport
		errs    []*VerifyError
	}

	results, err := concurrent.MapChunks(ctx, entries, opts.ThreadLimit, func(_ context.Context, chunk []idxfile.Entry) (chunkResult, error) {
		var cr chunkResult
		for _, e := range chunk {
			obj, err := verifyOne(b, e, cache, checkObjectHash)
			if err != nil {
				ve := &VerifyError{ID: e.ID, Offset: int64(e.Offset), Err: err}
				if !continueOnError {
					return cr, ve
				}
				cr.errs = append(cr.errs, ve)
				continue
			}
			cr.objects = append(cr.objects, obj)
		}
		return cr, nil
	})
	if err != nil {
		return nil, err
	}

	report := &Report{}
	for _, r := range results {
		report.Objects = append(report.Objects, r.objects...)
		report.Errors = append(report.Errors, r.errs...)
	}
	return report, nil
}

func verifyOne(b *bundle.Bundle, e idxfile.Entry, cache packfile.EntryCache, checkObjectHash bool) (ObjectReport, error) {
	loc, err := b.LocationOf(e.ID)
	if err != nil {
		return ObjectReport{}, err
	}

	if b.Index.SupportsCRC32() {
		_, dataOffset, err := b.Pack.EntryAt(loc.PackOffset)
		if err != nil {
			return ObjectReport{}, err
		}
		headerLen := int(dataOffset - loc.PackOffset)

		raw, err := b.EntryBytes(loc)
		if err != nil {
			return ObjectReport{}, err
		}
		if got := crc32.ChecksumIEEE(raw[headerLen:]); got != e.CRC32 {
			return ObjectReport{}, fmt.Errorf("%w: crc32 got %x want %x", bundle.ErrChecksumMismatch, got, e.CRC32)
		}
	}

	data, typ, err := b.Pack.DecodeEntry(int64(e.Offset), b, cache)
	if err != nil {
		return ObjectReport{}, err
	}

	kind := kindOf(typ)
	if checkObjectHash {
		got := hash.HashObject(kind, data)
		if got != e.ID {
			return ObjectReport{}, fmt.Errorf("odb: object hash mismatch: got %s want %s", got, e.ID)
		}
	}

	return ObjectReport{ID: e.ID, Offset: int64(e.Offset), Kind: kind, Size: int64(len(data))}, nil
}
