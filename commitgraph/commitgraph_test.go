package commitgraph

import (
	"bytes"
	"encoding/binary"
	"testing"
	"time"

	"github.com/objectdb/gitcore/hash"
	"github.com/stretchr/testify/require"
)

type byteReaderAt []byte

func (b byteReaderAt) ReadAt(p []byte, off int64) (int, error) {
	return bytes.NewReader(b).ReadAt(p, off)
}

// commitSpec is one commit to bake into a test commit-graph file.
type commitSpec struct {
	id       hash.HashID
	tree     hash.HashID
	parents  []hash.HashID
	when     time.Time
	genV1    uint64
}

// buildGraph assembles a minimal single-file commit-graph with OIDF/OIDL/CDAT
// chunks (no EDGE chunk; every commit here has at most 2 parents), in the
// layout verifyFileHeader/readChunkHeaders/readFanout expect. external
// supplies the already-resolved global index for any parent hash not in
// commits (i.e. one that lives in an older parent file in a chain): per
// fileIndex's convention, this file's own commits occupy the low end of the
// global index space, so such a parent's global index is
// (its position in the parent file) + len(commits).
func buildGraph(t *testing.T, commits []commitSpec, external map[hash.HashID]uint32) []byte {
	t.Helper()

	sorted := append([]commitSpec(nil), commits...)
	for i := 1; i < len(sorted); i++ {
		for j := i; j > 0 && bytes.Compare(sorted[j].id.Bytes(), sorted[j-1].id.Bytes()) < 0; j-- {
			sorted[j], sorted[j-1] = sorted[j-1], sorted[j]
		}
	}
	posOf := make(map[hash.HashID]uint32, len(sorted)+len(external))
	for i, c := range sorted {
		posOf[c.id] = uint32(i)
	}
	for id, pos := range external {
		posOf[id] = pos
	}

	const chunkHeaderLen = 8
	const tocLen = 4 * 12 // OIDF, OIDL, CDAT, sentinel

	oidfSize := 256 * 4
	oidlSize := len(sorted) * hash.Size
	cdatSize := len(sorted) * (hash.Size + commitDataSize)

	oidfOff := chunkHeaderLen + tocLen
	oidlOff := oidfOff + oidfSize
	cdatOff := oidlOff + oidlSize
	fileSize := cdatOff + cdatSize

	var buf bytes.Buffer
	buf.Write(signature[:])
	buf.WriteByte(1) // version
	buf.WriteByte(1) // sha1
	buf.WriteByte(3) // numChunks
	buf.WriteByte(0) // reserved

	writeTOCEntry := func(id string, offset int) {
		var idb [4]byte
		copy(idb[:], id)
		buf.Write(idb[:])
		var off [8]byte
		binary.BigEndian.PutUint64(off[:], uint64(offset))
		buf.Write(off[:])
	}
	writeTOCEntry(chunkOIDFanout, oidfOff)
	writeTOCEntry(chunkOIDLookup, oidlOff)
	writeTOCEntry(chunkCommitData, cdatOff)
	writeTOCEntry("\x00\x00\x00\x00", fileSize)

	require.Equal(t, oidfOff, buf.Len())

	var fanout [256]uint32
	for _, c := range sorted {
		fanout[c.id.Bytes()[0]]++
	}
	for i := 1; i < 256; i++ {
		fanout[i] += fanout[i-1]
	}
	for _, v := range fanout {
		var b [4]byte
		binary.BigEndian.PutUint32(b[:], v)
		buf.Write(b[:])
	}

	require.Equal(t, oidlOff, buf.Len())
	for _, c := range sorted {
		buf.Write(c.id.Bytes())
	}

	require.Equal(t, cdatOff, buf.Len())
	for _, c := range sorted {
		buf.Write(c.tree.Bytes())

		var p1, p2 uint32 = parentNone, parentNone
		if len(c.parents) >= 1 {
			p1 = posOf[c.parents[0]]
		}
		if len(c.parents) >= 2 {
			p2 = posOf[c.parents[1]]
		}
		var w [4]byte
		binary.BigEndian.PutUint32(w[:], p1)
		buf.Write(w[:])
		binary.BigEndian.PutUint32(w[:], p2)
		buf.Write(w[:])

		genAndTime := (c.genV1 << 34) | uint64(c.when.Unix())
		var gt [8]byte
		binary.BigEndian.PutUint64(gt[:], genAndTime)
		buf.Write(gt[:])
	}

	require.Equal(t, fileSize, buf.Len())
	return buf.Bytes()
}

func TestFileCommitByIDRoot(t *testing.T) {
	root := commitSpec{
		id:    hash.HashObject(hash.KindCommit, []byte("root")),
		tree:  hash.HashObject(hash.KindTree, []byte("root-tree")),
		when:  time.Unix(1000, 0),
		genV1: 1,
	}
	data := buildGraph(t, []commitSpec{root}, nil)

	f, err := Open(byteReaderAt(data), int64(len(data)))
	require.NoError(t, err)

	got, err := f.CommitByID(root.id)
	require.NoError(t, err)
	require.Equal(t, root.tree, got.TreeHash)
	require.Empty(t, got.ParentHashes)
	require.EqualValues(t, 1, got.Generation)
	require.Equal(t, int64(1000), got.When.Unix())
}

func TestFileCommitWithParents(t *testing.T) {
	root := commitSpec{
		id:    hash.HashObject(hash.KindCommit, []byte("root")),
		tree:  hash.HashObject(hash.KindTree, []byte("root-tree")),
		when:  time.Unix(1000, 0),
		genV1: 1,
	}
	child := commitSpec{
		id:      hash.HashObject(hash.KindCommit, []byte("child")),
		tree:    hash.HashObject(hash.KindTree, []byte("child-tree")),
		parents: []hash.HashID{root.id},
		when:    time.Unix(2000, 0),
		genV1:   2,
	}
	data := buildGraph(t, []commitSpec{root, child}, nil)

	f, err := Open(byteReaderAt(data), int64(len(data)))
	require.NoError(t, err)

	got, err := f.CommitByID(child.id)
	require.NoError(t, err)
	require.Equal(t, []hash.HashID{root.id}, got.ParentHashes)
	require.Greater(t, got.Generation, uint64(1))

	rootData, err := f.CommitByID(root.id)
	require.NoError(t, err)
	require.Less(t, rootData.Generation, got.Generation)
}

func TestFileCommitNotFound(t *testing.T) {
	root := commitSpec{
		id:    hash.HashObject(hash.KindCommit, []byte("root")),
		tree:  hash.HashObject(hash.KindTree, []byte("root-tree")),
		when:  time.Unix(1000, 0),
		genV1: 1,
	}
	data := buildGraph(t, []commitSpec{root}, nil)
	f, err := Open(byteReaderAt(data), int64(len(data)))
	require.NoError(t, err)

	_, err = f.CommitByID(hash.HashObject(hash.KindCommit, []byte("absent")))
	require.ErrorIs(t, err, ErrNotFound)
}

func TestFileHashes(t *testing.T) {
	root := commitSpec{
		id:    hash.HashObject(hash.KindCommit, []byte("root")),
		tree:  hash.HashObject(hash.KindTree, []byte("root-tree")),
		when:  time.Unix(1000, 0),
		genV1: 1,
	}
	child := commitSpec{
		id:      hash.HashObject(hash.KindCommit, []byte("child")),
		tree:    hash.HashObject(hash.KindTree, []byte("child-tree")),
		parents: []hash.HashID{root.id},
		when:    time.Unix(2000, 0),
		genV1:   2,
	}
	data := buildGraph(t, []commitSpec{root, child}, nil)
	f, err := Open(byteReaderAt(data), int64(len(data)))
	require.NoError(t, err)

	hashes, err := f.Hashes()
	require.NoError(t, err)
	require.ElementsMatch(t, []hash.HashID{root.id, child.id}, hashes)
	require.EqualValues(t, 2, f.MaximumNumberOfHashes())
}

func TestFileWithParentChain(t *testing.T) {
	root := commitSpec{
		id:    hash.HashObject(hash.KindCommit, []byte("root")),
		tree:  hash.HashObject(hash.KindTree, []byte("root-tree")),
		when:  time.Unix(1000, 0),
		genV1: 1,
	}
	oldData := buildGraph(t, []commitSpec{root}, nil)
	oldFile, err := Open(byteReaderAt(oldData), int64(len(oldData)))
	require.NoError(t, err)

	child := commitSpec{
		id:      hash.HashObject(hash.KindCommit, []byte("child")),
		tree:    hash.HashObject(hash.KindTree, []byte("child-tree")),
		parents: []hash.HashID{root.id},
		when:    time.Unix(2000, 0),
		genV1:   2,
	}
	newData := buildGraph(t, []commitSpec{child}, map[hash.HashID]uint32{root.id: 1})
	newFile, err := OpenWithParent(byteReaderAt(newData), int64(len(newData)), oldFile)
	require.NoError(t, err)

	require.EqualValues(t, 2, newFile.MaximumNumberOfHashes())

	got, err := newFile.CommitByID(child.id)
	require.NoError(t, err)
	require.Equal(t, []hash.HashID{root.id}, got.ParentHashes)

	rootGot, err := newFile.CommitByID(root.id)
	require.NoError(t, err)
	require.Equal(t, root.tree, rootGot.TreeHash)
}
