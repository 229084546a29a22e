package object

import (
	"bytes"
	"fmt"
	"sort"
	"strconv"

	"github.com/objectdb/gitcore/hash"
)

// FileMode is a tree entry's git file mode, e.g. 0100644 for a regular
// file, 040000 for a subtree, 0120000 for a symlink, 0160000 for a gitlink.
type FileMode uint32

const (
	ModeFile       FileMode = 0o100644
	ModeExecutable FileMode = 0o100755
	ModeSymlink    FileMode = 0o120000
	ModeDir        FileMode = 0o040000
	ModeGitlink    FileMode = 0o160000
)

// IsDir reports whether the mode denotes a subtree.
func (m FileMode) IsDir() bool { return m == ModeDir }

// TreeEntry is one (mode, name, id) triple of a Tree.
type TreeEntry struct {
	Mode FileMode
	Name string
	ID   hash.HashID
}

// Tree is an ordered, git-sorted sequence of entries.
type Tree struct {
	Entries []TreeEntry
}

// sortKey returns the name used for ordering: directories compare as if
// suffixed with "/", so that "foo" sorts after "foo.txt" but before
// "foo/bar" would if it existed as a literal entry named "foo/bar" (which
// can't happen directly, but this keeps subtrees correctly interleaved with
// files that share a common prefix).
func sortKey(e TreeEntry) string {
	if e.Mode.IsDir() {
		return e.Name + "/"
	}
	return e.Name
}

// validateEntry enforces §3's name invariants.
func validateEntry(e TreeEntry) error {
	if e.Name == "" {
		return fmt.Errorf("%w: empty tree entry name", ErrMalformed)
	}
	for i := 0; i < len(e.Name); i++ {
		switch e.Name[i] {
		case '/', 0:
			return fmt.Errorf("%w: tree entry name contains '/' or NUL", ErrMalformed)
		}
	}
	return nil
}

// Sort reorders entries into git's canonical tree order in place.
func (t *Tree) Sort() {
	sort.Slice(t.Entries, func(i, j int) bool {
		return sortKey(t.Entries[i]) < sortKey(t.Entries[j])
	})
}

// IsSorted reports whether Entries already satisfy git's ordering rule.
func (t Tree) IsSorted() bool {
	for i := 1; i < len(t.Entries); i++ {
		if sortKey(t.Entries[i-1]) >= sortKey(t.Entries[i]) {
			return false
		}
	}
	return true
}

// Encode serializes the tree to its canonical on-disk form. The caller must
// ensure entries are sorted (Sort) and valid; Encode does not re-sort.
func (t Tree) Encode() ([]byte, error) {
	var buf bytes.Buffer
	for _, e := range t.Entries {
		if err := validateEntry(e); err != nil {
			return nil, err
		}
		fmt.Fprintf(&buf, "%o %s\x00", e.Mode, e.Name)
		buf.Write(e.ID.Bytes())
	}
	return buf.Bytes(), nil
}

// DecodeTree parses a tree object's payload. It does not copy id bytes out
// of data for entries beyond what HashID's value semantics already do, so
// borrowing data's lifetime only matters for the Name strings if the caller
// later mutates the buffer; callers that need a fully standalone Tree should
// treat the returned value as owned once decoded, since Go strings/arrays
// here are already copies.
func DecodeTree(data []byte) (Tree, error) {
	var t Tree
	for len(data) > 0 {
		sp := bytes.IndexByte(data, ' ')
		if sp < 0 {
			return Tree{}, fmt.Errorf("%w: tree entry missing mode separator", ErrMalformed)
		}
		modeStr := data[:sp]
		mode, err := strconv.ParseUint(string(modeStr), 8, 32)
		if err != nil {
			return Tree{}, fmt.Errorf("%w: bad mode %q", ErrMalformed, modeStr)
		}

		rest := data[sp+1:]
		nul := bytes.IndexByte(rest, 0)
		if nul < 0 {
			return Tree{}, fmt.Errorf("%w: tree entry missing name terminator", ErrMalformed)
		}
		name := string(rest[:nul])

		after := rest[nul+1:]
		if len(after) < hash.Size {
			return Tree{}, fmt.Errorf("%w: tree entry truncated id", ErrMalformed)
		}

		id, err := hash.FromBytes(after[:hash.Size])
		if err != nil {
			return Tree{}, err
		}

		e := TreeEntry{Mode: FileMode(mode), Name: name, ID: id}
		if err := validateEntry(e); err != nil {
			return Tree{}, err
		}
		t.Entries = append(t.Entries, e)

		data = after[hash.Size:]
	}

	if !t.IsSorted() {
		return Tree{}, fmt.Errorf("%w: tree entries not in git order", ErrMalformed)
	}

	return t, nil
}
