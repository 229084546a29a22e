package odb

import (
	"errors"

	"github.com/objectdb/gitcore/hash"
)

// Linked is a primary Compound plus zero or more alternate Compounds
// discovered from objects/info/alternates files. The first element to
// contain an id wins, matching the teacher's EncodedObject walking
// s.dir.Alternates() only after its own dotgit has come up empty.
type Linked struct {
	compounds []*Compound // index 0 is the primary
}

// NewLinked builds a Linked store with primary as the first probe target
// and alternates probed afterward, in order.
func NewLinked(primary *Compound, alternates ...*Compound) *Linked {
	return &Linked{compounds: append([]*Compound{primary}, alternates...)}
}

// Contains reports whether id is present in the primary or any alternate.
func (l *Linked) Contains(id hash.HashID) (bool, error) {
	for _, c := range l.compounds {
		ok, err := c.Contains(id)
		if err != nil {
			return false, err
		}
		if ok {
			return true, nil
		}
	}
	return false, nil
}

// Find resolves id against the primary first, then each alternate in turn.
func (l *Linked) Find(id hash.HashID) ([]byte, hash.ObjectKind, error) {
	for _, c := range l.compounds {
		data, kind, err := c.Find(id)
		if err == nil {
			return data, kind, nil
		}
		if !errors.Is(err, ErrNotFound) {
			return nil, 0, err
		}
	}
	return nil, 0, ErrNotFound
}

// LocationOf resolves id's raw pack-entry location against the primary
// first, then each alternate.
func (l *Linked) LocationOf(id hash.HashID) (EntryLocation, error) {
	for _, c := range l.compounds {
		loc, err := c.LocationOf(id)
		if err == nil {
			return loc, nil
		}
		if !errors.Is(err, ErrNotFound) {
			return EntryLocation{}, err
		}
	}
	return EntryLocation{}, ErrNotFound
}

// ResolvePrefix disambiguates a short id across every compound. A match
// that is unique within one compound but also present (even identically)
// in another still resolves cleanly, since it is the same object; genuinely
// distinct matches anywhere in the chain report ErrAmbiguousPrefix.
func (l *Linked) ResolvePrefix(p hash.Prefix) (hash.HashID, error) {
	var found hash.HashID
	var have bool

	for _, c := range l.compounds {
		id, err := c.ResolvePrefix(p)
		if err != nil {
			if errors.Is(err, ErrNotFound) {
				continue
			}
			return hash.HashID{}, err
		}
		if have && id != found {
			return hash.HashID{}, ErrAmbiguousPrefix
		}
		found, have = id, true
	}

	if !have {
		return hash.HashID{}, ErrNotFound
	}
	return found, nil
}

// Iter visits every distinct object id reachable from the primary or any
// alternate, in probe order, the first compound to report an id winning.
func (l *Linked) Iter(visit func(hash.HashID) error) error {
	seen := make(map[hash.HashID]struct{})
	for _, c := range l.compounds {
		if err := c.Iter(func(id hash.HashID) error {
			if _, dup := seen[id]; dup {
				return nil
			}
			seen[id] = struct{}{}
			return visit(id)
		}); err != nil {
			return err
		}
	}
	return nil
}
