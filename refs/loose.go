package refs

import (
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/objectdb/gitcore/hash"
	"github.com/objectdb/gitcore/tempfile"
)

// LockTimeout bounds how long a loose-ref transaction waits to acquire one
// reference's lockfile before giving up.
const LockTimeout = 500 * time.Millisecond

// Peeler resolves a tag object's own target, letting Peel walk through
// annotated tags without the refs package depending on odb directly.
type Peeler interface {
	// PeelOnce returns the object a tag points at, and whether id names a
	// tag at all (false, nil means id is not a tag and peeling stops here).
	PeelOnce(id hash.HashID) (next hash.HashID, isTag bool, err error)
}

// LooseStore is the refs/... plus top-level pseudo-ref files under one
// git-common directory, matching addRefsFromRefDir/addRefFromHEAD/
// readReferenceFile's file-per-ref layout.
type LooseStore struct {
	root string // git-common directory, containing "refs" and pseudo-refs
}

// OpenLoose opens the loose reference store rooted at commonDir.
func OpenLoose(commonDir string) *LooseStore {
	return &LooseStore{root: commonDir}
}

func (s *LooseStore) path(n Name) string {
	return filepath.Join(s.root, filepath.FromSlash(string(n)))
}

// FindExact reads n's own file; it performs no DWIM resolution.
func (s *LooseStore) FindExact(n Name) (Reference, error) {
	b, err := os.ReadFile(s.path(n))
	if err != nil {
		if os.IsNotExist(err) {
			return Reference{}, ErrReferenceNotFound
		}
		return Reference{}, err
	}
	if len(b) == 0 {
		return Reference{}, ErrReferenceNotFound
	}
	return decodeLine(n, string(b))
}

// Find applies git's DWIM resolution order: try n as-is, then refs/<n>,
// refs/tags/<n>, refs/heads/<n>, refs/remotes/<n>, refs/remotes/<n>/HEAD.
func (s *LooseStore) Find(partial string) (Reference, error) {
	var last error = ErrReferenceNotFound
	for _, cand := range dwimCandidates(partial) {
		ref, err := s.FindExact(cand)
		if err == nil {
			return ref, nil
		}
		if err != ErrReferenceNotFound {
			last = err
		}
	}
	return Reference{}, last
}

// Iter walks every loose reference under refs/ (not pseudo-refs), in
// ascending fullname order.
func (s *LooseStore) Iter() ([]Reference, error) {
	return s.IterPrefixed("refs/")
}

// IterPrefixed walks loose references whose name has the given prefix.
func (s *LooseStore) IterPrefixed(prefix string) ([]Reference, error) {
	var refs []Reference

	// "HEAD" and other single-segment pseudo-refs sit directly under root,
	// not under refs/; collect those here, then narrow prefix to "refs/" so
	// the walk below covers only the refs/ subtree and doesn't revisit these
	// same root-level files a second time.
	if prefix == "" {
		entries, err := os.ReadDir(s.root)
		if err != nil {
			return nil, err
		}
		for _, e := range entries {
			if e.IsDir() {
				continue
			}
			ref, err := s.FindExact(Name(e.Name()))
			if err != nil {
				continue
			}
			refs = append(refs, ref)
		}
		prefix = "refs/"
	}

	walkRoot := s.root
	relPrefix := strings.TrimSuffix(prefix, "/")
	startDir := filepath.Join(s.root, filepath.FromSlash(relPrefix))

	err := filepath.WalkDir(startDir, func(p string, d fs.DirEntry, err error) error {
		if err != nil {
			if os.IsNotExist(err) {
				return nil
			}
			return err
		}
		if d.IsDir() {
			return nil
		}
		rel, err := filepath.Rel(walkRoot, p)
		if err != nil {
			return err
		}
		n := Name(filepath.ToSlash(rel))
		if !strings.HasPrefix(string(n), prefix) {
			return nil
		}
		ref, err := s.FindExact(n)
		if err != nil {
			return nil
		}
		refs = append(refs, ref)
		return nil
	})
	if err != nil {
		return nil, err
	}

	sort.Slice(refs, func(i, j int) bool { return refs[i].Name < refs[j].Name })
	return refs, nil
}

// Peel follows r's symbolic chain (bounded by MaxPeelDepth) and, once it
// reaches a direct reference, dereferences through annotated tags via
// peeler until a non-tag object is reached.
func (s *LooseStore) Peel(r Reference, peeler Peeler) (hash.HashID, error) {
	depth := 0
	for r.IsSymbolic() {
		depth++
		if depth > MaxPeelDepth {
			return hash.HashID{}, ErrMaxDepthExceeded
		}
		next, err := s.FindExact(r.Symbolic)
		if err != nil {
			return hash.HashID{}, fmt.Errorf("%w: %s", ErrSymRefTargetNotFound, r.Symbolic)
		}
		r = next
	}

	id := r.Hash
	for {
		next, isTag, err := peeler.PeelOnce(id)
		if err != nil {
			return hash.HashID{}, err
		}
		if !isTag {
			return id, nil
		}
		id = next
	}
}

// setRef writes content into n's loose file, honoring expected's
// precondition and locking the file for the duration of the check+write.
// Standalone callers (not already holding n's lockfile via a
// PreparedTransaction) use this; Commit, which locks each edit's target in
// Prepare, writes directly through writeLocked instead.
func (s *LooseStore) setRef(n Name, newRef Reference, expected ExpectedValue) error {
	path := s.path(n)
	if err := os.MkdirAll(filepath.Dir(path), 0o777); err != nil {
		return err
	}
	lockPath := path + ".lock"
	if _, err := tempfile.AcquireLock(lockPath, LockTimeout); err != nil {
		return err
	}
	defer os.Remove(lockPath)

	current, err := s.FindExact(n)
	var currentPtr *Reference
	if err == nil {
		currentPtr = &current
	} else if err != ErrReferenceNotFound {
		return err
	}
	if err := checkExpected(Edit{Name: n, Expected: expected}, currentPtr); err != nil {
		return err
	}
	return s.writeLocked(n, newRef)
}

// removeRef deletes n's loose file, honoring expected's precondition; see
// setRef's locking note.
func (s *LooseStore) removeRef(n Name, expected ExpectedValue) error {
	path := s.path(n)
	if err := os.MkdirAll(filepath.Dir(path), 0o777); err != nil {
		return err
	}
	lockPath := path + ".lock"
	if _, err := tempfile.AcquireLock(lockPath, LockTimeout); err != nil {
		return err
	}
	defer os.Remove(lockPath)

	current, err := s.FindExact(n)
	var currentPtr *Reference
	if err == nil {
		currentPtr = &current
	} else if err != ErrReferenceNotFound {
		return err
	}
	if err := checkExpected(Edit{Name: n, Expected: expected}, currentPtr); err != nil {
		return err
	}
	return s.removeLocked(n)
}

// writeLocked writes newRef to n's file, assuming the caller already holds
// n's lockfile (or has otherwise serialized access).
func (s *LooseStore) writeLocked(n Name, newRef Reference) error {
	path := s.path(n)
	if err := os.MkdirAll(filepath.Dir(path), 0o777); err != nil {
		return err
	}
	tmp, err := tempfile.Create(path, tempfile.CreateDirRaceProof, tempfile.RemoveTempfileOnly, s.root)
	if err != nil {
		return err
	}
	if err := tmp.WithMut(func(f *os.File) error {
		if _, err := f.WriteString(encodeLine(newRef)); err != nil {
			return err
		}
		return f.Sync()
	}); err != nil {
		tmp.Remove()
		return err
	}
	return tmp.Persist(path)
}

// removeLocked deletes n's file, assuming the caller already holds n's
// lockfile (or has otherwise serialized access).
func (s *LooseStore) removeLocked(n Name) error {
	if err := os.Remove(s.path(n)); err != nil && !os.IsNotExist(err) {
		return err
	}
	return nil
}
