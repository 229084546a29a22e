// Package commitgraph decodes git's commit-graph file format: per-commit
// root tree id, parent links, generation number and committer timestamp,
// addressable either by index position or by commit hash, across a single
// file or a split chain of files (oldest first).
//
// Grounded on the teacher's plumbing/format/commitgraph/v2/{file,chain,
// commitgraph}.go, reusing this module's own chunkfile package (itself
// already generalized from that same file's readChunkHeaders) for the
// table-of-contents instead of a one-off parser, and its fileIndex/parent
// delegation shape for the split-chain case.
package commitgraph

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"time"

	"github.com/objectdb/gitcore/chunkfile"
	"github.com/objectdb/gitcore/hash"
)

var (
	ErrUnsupportedVersion  = errors.New("commitgraph: unsupported file version")
	ErrUnsupportedHash     = errors.New("commitgraph: unsupported hash kind")
	ErrMalformed           = errors.New("commitgraph: malformed file")
	ErrNotFound            = errors.New("commitgraph: commit not found")
	ErrCommitCountExceeded = errors.New("commitgraph: commit count exceeds implementation limit")
)

// MaxCommits bounds the total number of commits a chain may index, per
// spec.md's "total commit count does not exceed the implementation's
// MAX_COMMITS" invariant.
const MaxCommits = 1 << 31

var signature = [4]byte{'C', 'G', 'P', 'H'}

const (
	chunkOIDFanout  = "OIDF"
	chunkOIDLookup  = "OIDL"
	chunkCommitData = "CDAT"
	chunkExtraEdges = "EDGE"
)

func chunkID(s string) chunkfile.ID {
	var id chunkfile.ID
	copy(id[:], s)
	return id
}

const commitDataSize = 16 // tree(handled separately) + parent1 + parent2 + genAndTime

const (
	parentNone        = uint32(0x70000000)
	parentOctopusUsed = uint32(0x80000000)
	parentOctopusMask = uint32(0x7fffffff)
	parentLast        = uint32(0x80000000)
)

// GenerationUnknown is the sentinel spec.md §4.10 calls for when a
// generation number overflows the encoding's range: callers must fall back
// to timestamp-based ordering for any commit carrying it.
const GenerationUnknown uint64 = 0

// CommitInGraph is one commit's reduced record as stored in a commit-graph
// file: enough to walk ancestry without opening the commit object itself.
type CommitInGraph struct {
	TreeHash      hash.HashID
	ParentIndexes []uint32
	ParentHashes  []hash.HashID
	Generation    uint64
	When          time.Time
}

// File is a single parsed commit-graph file (or chain link), optionally
// chained to an older File covering lower indexes — the same "parent"
// delegation the teacher's fileIndex uses for split commit-graphs.
type File struct {
	r       io.ReaderAt
	toc     *chunkfile.Index
	fanout  [256]uint32
	hashLen int
	parent  *File
}

// Open parses a single commit-graph file with no parent link. size is the
// file's total length, used to bound the table-of-contents and its final
// chunk.
func Open(r io.ReaderAt, size int64) (*File, error) {
	return OpenWithParent(r, size, nil)
}

// OpenWithParent parses a commit-graph file whose indexes continue where
// parent's leave off — the shape OpenChainIndex builds incrementally, link
// by link, from oldest to newest.
func OpenWithParent(r io.ReaderAt, size int64, parent *File) (*File, error) {
	if size < 8 {
		return nil, fmt.Errorf("%w: too short", ErrMalformed)
	}

	var hdr [8]byte
	if _, err := r.ReadAt(hdr[:], 0); err != nil {
		return nil, err
	}
	if !bytes.Equal(hdr[:4], signature[:]) {
		return nil, fmt.Errorf("%w: bad signature", ErrMalformed)
	}
	if hdr[4] != 1 {
		return nil, ErrUnsupportedVersion
	}

	var hashLen int
	switch hdr[5] {
	case 1:
		hashLen = hash.Size
	default:
		return nil, ErrUnsupportedHash
	}

	numChunks := int(hdr[6])
	toc, err := chunkfile.Decode(io.NewSectionReader(r, 8, size-8), numChunks, uint64(size))
	if err != nil {
		return nil, err
	}

	f := &File{r: r, toc: toc, hashLen: hashLen, parent: parent}

	fanoutStart, _, ok := toc.OffsetByID(chunkID(chunkOIDFanout))
	if !ok {
		return nil, fmt.Errorf("%w: missing OIDF chunk", ErrMalformed)
	}
	if _, _, ok := toc.OffsetByID(chunkID(chunkOIDLookup)); !ok {
		return nil, fmt.Errorf("%w: missing OIDL chunk", ErrMalformed)
	}
	if _, _, ok := toc.OffsetByID(chunkID(chunkCommitData)); !ok {
		return nil, fmt.Errorf("%w: missing CDAT chunk", ErrMalformed)
	}

	fanoutReader := io.NewSectionReader(r, int64(fanoutStart), 256*4)
	var buf [4]byte
	for i := 0; i < 256; i++ {
		if _, err := io.ReadFull(fanoutReader, buf[:]); err != nil {
			return nil, err
		}
		v := be32(buf[:])
		if v > 0x7fffffff {
			return nil, fmt.Errorf("%w: bad fanout value", ErrMalformed)
		}
		f.fanout[i] = v
	}

	total := uint64(f.fanout[255])
	if parent != nil {
		total += uint64(parent.totalCount())
	}
	if total > MaxCommits {
		return nil, ErrCommitCountExceeded
	}

	return f, nil
}

// count is the number of commits this single file (not counting any
// parent) contributes.
func (f *File) count() uint32 { return f.fanout[255] }

// totalCount is the number of commits visible through this file, including
// everything reachable via parent.
func (f *File) totalCount() uint32 {
	n := f.count()
	if f.parent != nil {
		n += f.parent.totalCount()
	}
	return n
}

// MaximumNumberOfHashes returns the total indexable commit count across
// this file and any parent chain.
func (f *File) MaximumNumberOfHashes() uint32 { return f.totalCount() }

func (f *File) oidLookupOffset(pos uint32) int64 {
	start, _, _ := f.toc.OffsetByID(chunkID(chunkOIDLookup))
	return int64(start) + int64(pos)*int64(f.hashLen)
}

// IndexByHash finds id's position in the graph, searching this file's own
// fanout/lookup table first, then (if not found) delegating to parent with
// indexes shifted by this file's own commit count — the position space is
// [this file's indexes..., parent's indexes...].
func (f *File) IndexByHash(id hash.HashID) (uint32, error) {
	want := id.Bytes()
	first := want[0]

	var low uint32
	if first > 0 {
		low = f.fanout[first-1]
	}
	high := f.fanout[first]

	var buf [hash.Size]byte
	for low < high {
		mid := (low + high) / 2
		if _, err := f.r.ReadAt(buf[:f.hashLen], f.oidLookupOffset(mid)); err != nil {
			return 0, err
		}
		cmp := bytes.Compare(want, buf[:f.hashLen])
		switch {
		case cmp < 0:
			high = mid
		case cmp == 0:
			return mid, nil
		default:
			low = mid + 1
		}
	}

	if f.parent != nil {
		idx, err := f.parent.IndexByHash(id)
		if err != nil {
			return 0, err
		}
		return idx + f.count(), nil
	}

	return 0, ErrNotFound
}

// HashByIndex resolves a global position — this file's own commits occupy
// [0, count), an older parent's occupy [count, count+parent's total) — to
// its commit hash. Matches the teacher's fileIndex: the newest file in a
// chain owns the low end of the index space, not the oldest.
func (f *File) HashByIndex(pos uint32) (hash.HashID, error) {
	if pos >= f.count() {
		if f.parent != nil {
			return f.parent.HashByIndex(pos - f.count())
		}
		return hash.HashID{}, ErrNotFound
	}
	var buf [hash.Size]byte
	if _, err := f.r.ReadAt(buf[:f.hashLen], f.oidLookupOffset(pos)); err != nil {
		return hash.HashID{}, err
	}
	return hash.FromBytes(buf[:f.hashLen])
}

// CommitAt decodes the commit data at a global index position.
func (f *File) CommitAt(pos uint32) (CommitInGraph, error) {
	if pos >= f.count() {
		if f.parent != nil {
			data, err := f.parent.CommitAt(pos - f.count())
			if err != nil {
				return CommitInGraph{}, err
			}
			for i := range data.ParentIndexes {
				data.ParentIndexes[i] += f.count()
			}
			return data, nil
		}
		return CommitInGraph{}, ErrNotFound
	}

	start, _, _ := f.toc.OffsetByID(chunkID(chunkCommitData))
	recordSize := int64(f.hashLen + commitDataSize)
	rec := io.NewSectionReader(f.r, int64(start)+int64(pos)*recordSize, recordSize)

	var treeBuf [hash.Size]byte
	if _, err := io.ReadFull(rec, treeBuf[:f.hashLen]); err != nil {
		return CommitInGraph{}, err
	}
	treeHash, err := hash.FromBytes(treeBuf[:f.hashLen])
	if err != nil {
		return CommitInGraph{}, err
	}

	var word [4]byte
	if _, err := io.ReadFull(rec, word[:]); err != nil {
		return CommitInGraph{}, err
	}
	parent1 := be32(word[:])
	if _, err := io.ReadFull(rec, word[:]); err != nil {
		return CommitInGraph{}, err
	}
	parent2 := be32(word[:])

	var genTimeBuf [8]byte
	if _, err := io.ReadFull(rec, genTimeBuf[:]); err != nil {
		return CommitInGraph{}, err
	}
	genAndTime := be64(genTimeBuf[:])

	var parentIdx []uint32
	switch {
	case parent2&parentOctopusUsed == parentOctopusUsed:
		parentIdx = []uint32{parent1 & parentOctopusMask}
		edgeStart, _, ok := f.toc.OffsetByID(chunkID(chunkExtraEdges))
		if !ok {
			return CommitInGraph{}, fmt.Errorf("%w: octopus merge without EDGE chunk", ErrMalformed)
		}
		offset := int64(edgeStart) + 4*int64(parent2&parentOctopusMask)
		var buf [4]byte
		for {
			if _, err := f.r.ReadAt(buf[:], offset); err != nil {
				return CommitInGraph{}, err
			}
			v := be32(buf[:])
			offset += 4
			parentIdx = append(parentIdx, v&parentOctopusMask)
			if v&parentLast == parentLast {
				break
			}
		}
	case parent2 != parentNone:
		parentIdx = []uint32{parent1 & parentOctopusMask, parent2 & parentOctopusMask}
	case parent1 != parentNone:
		parentIdx = []uint32{parent1 & parentOctopusMask}
	}

	parentHashes := make([]hash.HashID, len(parentIdx))
	for i, idx := range parentIdx {
		h, err := f.HashByIndex(idx)
		if err != nil {
			return CommitInGraph{}, err
		}
		parentHashes[i] = h
	}

	return CommitInGraph{
		TreeHash:      treeHash,
		ParentIndexes: parentIdx,
		ParentHashes:  parentHashes,
		Generation:    genAndTime >> 34,
		When:          time.Unix(int64(genAndTime&0x3FFFFFFFF), 0),
	}, nil
}

// Close closes the underlying reader, if it implements io.Closer, then any
// parent link in turn.
func (f *File) Close() error {
	var err error
	if c, ok := f.r.(io.Closer); ok {
		err = c.Close()
	}
	if f.parent != nil {
		if perr := f.parent.Close(); err == nil {
			err = perr
		}
	}
	return err
}

// CommitByID is IndexByHash followed by CommitAt, the common caller path.
func (f *File) CommitByID(id hash.HashID) (CommitInGraph, error) {
	pos, err := f.IndexByHash(id)
	if err != nil {
		return CommitInGraph{}, err
	}
	return f.CommitAt(pos)
}

// Hashes returns every commit hash indexed by this file and its parent
// chain, in index order.
func (f *File) Hashes() ([]hash.HashID, error) {
	n := f.totalCount()
	out := make([]hash.HashID, n)
	for i := uint32(0); i < n; i++ {
		h, err := f.HashByIndex(i)
		if err != nil {
			return nil, err
		}
		out[i] = h
	}
	return out, nil
}

func be32(b []byte) uint32 {
	return uint32(b[0])<<24 | uint32(b[1])<<16 | uint32(b[2])<<8 | uint32(b[3])
}

func be64(b []byte) uint64 {
	return uint64(be32(b[:4]))<<32 | uint64(be32(b[4:]))
}
