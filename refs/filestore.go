package refs

import (
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/objectdb/gitcore/hash"
	"github.com/objectdb/gitcore/internal/trace"
	"github.com/objectdb/gitcore/tempfile"
)

// FileStore overlays a LooseStore and PackedStore under one (common-dir,
// git-dir) pair, matching storage/filesystem.ReferenceStorage's load/merge
// behavior but without caching the merged result, since PackedStore already
// snapshots on mtime and LooseStore reads are cheap single-file reads.
//
// Worktree namespacing: refs under "worktrees/<name>/" resolve against
// gitDir (the per-worktree directory); everything else, including the
// per-worktree "HEAD" pseudo-ref, resolves against commonDir when gitDir
// equals commonDir (the main worktree) and against gitDir otherwise for HEAD
// specifically.
type FileStore struct {
	commonDir string
	gitDir    string

	commonLoose *LooseStore
	worktree    *LooseStore // nil when gitDir == commonDir
	packed      *PackedStore

	logAllRefUpdates bool
}

// OpenFileStore opens the overlay store for a repository whose shared
// objects/refs live under commonDir and whose current worktree-specific
// files (HEAD, per-worktree refs) live under gitDir. For the main worktree,
// commonDir == gitDir.
func OpenFileStore(commonDir, gitDir string, logAllRefUpdates bool) *FileStore {
	fs := &FileStore{
		commonDir:        commonDir,
		gitDir:           gitDir,
		commonLoose:      OpenLoose(commonDir),
		packed:           OpenPackedStore(commonDir),
		logAllRefUpdates: logAllRefUpdates,
	}
	if gitDir != commonDir {
		fs.worktree = OpenLoose(gitDir)
	}
	return fs
}

// storeFor routes n to the worktree-local loose store when it is a
// per-worktree pseudo-ref or lives under worktrees/<name>/, else to the
// shared common-dir loose store.
func (s *FileStore) storeFor(n Name) *LooseStore {
	if s.worktree == nil {
		return s.commonLoose
	}
	if strings.HasPrefix(string(n), "worktrees/") {
		return s.worktree
	}
	if n == "HEAD" {
		return s.worktree
	}
	return s.commonLoose
}

// Find resolves a partial or full name: loose (with DWIM) first, then
// packed.
func (s *FileStore) Find(partial string) (Reference, error) {
	store := s.storeFor(Name(partial))
	ref, err := store.Find(partial)
	if err == nil {
		return ref, nil
	}
	if err != ErrReferenceNotFound {
		return Reference{}, err
	}
	return s.packed.Find(Name(partial))
}

// Iter merges the loose and packed iterators by fullname, preferring the
// loose entry whenever a name appears in both.
func (s *FileStore) Iter() ([]Reference, error) {
	return s.IterPrefixed("")
}

// IterPrefixed is Iter restricted to names with the given prefix.
func (s *FileStore) IterPrefixed(prefix string) ([]Reference, error) {
	loose, err := s.commonLoose.IterPrefixed(prefix)
	if err != nil {
		return nil, err
	}
	if s.worktree != nil {
		wtRefs, err := s.worktree.IterPrefixed(prefix)
		if err != nil {
			return nil, err
		}
		loose = append(loose, wtRefs...)
	}
	packed, err := s.packed.IterPrefixed(prefix)
	if err != nil {
		return nil, err
	}

	sort.Slice(loose, func(i, j int) bool { return loose[i].Name < loose[j].Name })
	sort.Slice(packed, func(i, j int) bool { return packed[i].Name < packed[j].Name })

	seen := make(map[Name]bool, len(loose))
	merged := make([]Reference, 0, len(loose)+len(packed))
	for _, r := range loose {
		seen[r.Name] = true
		merged = append(merged, r)
	}
	for _, r := range packed {
		if !seen[r.Name] {
			merged = append(merged, r)
		}
	}
	sort.Slice(merged, func(i, j int) bool { return merged[i].Name < merged[j].Name })
	return merged, nil
}

// SetReference is the single-call convenience path for a non-transactional
// update, matching storage/filesystem.ReferenceStorage.Set: it writes
// straight to the loose store (packed-refs is left untouched; a ref
// previously living only in packed-refs simply gains a shadowing loose
// file, exactly as dotgit.setRef behaves) and appends a reflog entry when
// n's category and the store's logAllRefUpdates setting qualify.
func (s *FileStore) SetReference(ref Reference) error {
	store := s.storeFor(ref.Name)
	if err := store.setRef(ref.Name, ref, ExpectAnyValue()); err != nil {
		return err
	}
	if !ref.IsSymbolic() && logAllRefUpdatesQualifies(ref.Name, s.logAllRefUpdates) {
		_ = AppendReflog(s.commonDir, ref.Name, ReflogEntry{New: ref.Hash})
	}
	return nil
}

// RemoveReference is the single-call convenience path for deleting a loose
// reference outside of a transaction.
func (s *FileStore) RemoveReference(n Name) error {
	return s.storeFor(n).removeRef(n, ExpectAnyValue())
}

// Peel resolves ref through loose symbolic chains and annotated tags, using
// the shared common-dir loose store for symbolic lookups.
func (s *FileStore) Peel(ref Reference, peeler Peeler) (hash.HashID, error) {
	return s.commonLoose.Peel(ref, peeler)
}

// PreparedTransaction is a set of staged edits, each holding its own
// lockfile, awaiting Commit or Rollback.
type PreparedTransaction struct {
	store      *FileStore
	edits      []Edit
	looseLocks []string // lockfile paths already acquired, for Rollback cleanup
	packedUsed bool
}

// Prepare validates and locks every edit's target reference. Every edit,
// including one for a reference that exists solely in packed-refs, locks its
// own loose lockfile immediately, per spec's per-edit
// lock-then-check-then-stage flow; deletions are also folded into the packed
// rewrite at Commit time.
func (s *FileStore) Prepare(edits []Edit) (*PreparedTransaction, error) {
	tx := &PreparedTransaction{store: s, edits: edits}

	for _, e := range edits {
		store := s.storeFor(e.Name)
		path := store.path(e.Name)
		if err := os.MkdirAll(filepath.Dir(path), 0o777); err != nil {
			s.unlockAll(tx.looseLocks)
			return nil, err
		}
		lockPath := path + ".lock"
		if _, err := tempfile.AcquireLock(lockPath, LockTimeout); err != nil {
			s.unlockAll(tx.looseLocks)
			return nil, err
		}
		tx.looseLocks = append(tx.looseLocks, lockPath)

		current, err := store.FindExact(e.Name)
		var currentPtr *Reference
		if err == nil {
			currentPtr = &current
		} else if err == ErrReferenceNotFound {
			if packedRef, perr := s.packed.Find(e.Name); perr == nil {
				currentPtr = &packedRef
				tx.packedUsed = true
			}
		} else {
			s.unlockAll(tx.looseLocks)
			return nil, err
		}

		if err := checkExpected(e, currentPtr); err != nil {
			s.unlockAll(tx.looseLocks)
			return nil, err
		}
	}

	return tx, nil
}

func (s *FileStore) unlockAll(paths []string) {
	for _, p := range paths {
		os.Remove(p)
	}
}

// Commit applies every staged edit: packed-refs updates first (so a ref
// being moved loose->packed or deleted from packed never resurrects), then
// loose writes/deletes/reflog appends in ascending fullname order, matching
// spec's deterministic-ordering requirement. Rename/write errors on later
// edits do not roll back earlier ones, per spec (matches git's behavior).
func (tx *PreparedTransaction) Commit() error {
	defer tx.store.unlockAll(tx.looseLocks)
	trace.General.Printf("refs: committing %d edit(s)", len(tx.edits))

	ordered := append([]Edit(nil), tx.edits...)
	sort.Slice(ordered, func(i, j int) bool { return ordered[i].Name < ordered[j].Name })

	var packedEdits []Edit
	for _, e := range ordered {
		if e.Delete {
			packedEdits = append(packedEdits, e)
		}
	}
	if len(packedEdits) > 0 {
		if err := tx.store.packed.Rewrite(packedEdits); err != nil {
			return err
		}
	}

	var firstErr error
	for _, e := range ordered {
		store := tx.store.storeFor(e.Name)
		var err error
		if e.Delete {
			err = store.removeLocked(e.Name)
		} else {
			err = store.writeLocked(e.Name, e.New)
			if err == nil && !e.New.IsSymbolic() {
				if logAllRefUpdatesQualifies(e.Name, tx.store.logAllRefUpdates) {
					_ = AppendReflog(tx.store.commonDir, e.Name, ReflogEntry{New: e.New.Hash})
				}
			}
		}
		if err != nil && firstErr == nil {
			firstErr = err
		}
	}
	return firstErr
}

// Rollback releases every lock the transaction acquired without applying
// any edit.
func (tx *PreparedTransaction) Rollback() {
	tx.store.unlockAll(tx.looseLocks)
}

// ExpectAnyValue is the no-precondition ExpectedValue, used by the
// single-call SetReference and RemoveReference paths.
func ExpectAnyValue() ExpectedValue { return ExpectedValue{Kind: ExpectAny} }
