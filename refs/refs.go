// Package refs implements the reference store: loose refs under refs/ and
// pseudo-refs at the top level, the packed-refs snapshot, and a file store
// overlay combining the two, plus reflogs and lockfile-guarded transactions.
//
// Grounded on storage/filesystem/internal/dotgit/refs.go (packed-refs line
// parsing, reference-tree walk) and storage/filesystem/dotgit/dotgit_setref.go
// plus dotgit_rewrite_packed_refs.go (lock-then-rename write path), adapted
// from go-billy filesystem handles to plain os/tempfile.
package refs

import (
	"errors"
	"fmt"
	"strings"

	"github.com/objectdb/gitcore/hash"
)

var (
	ErrReferenceNotFound    = errors.New("refs: reference not found")
	ErrReferenceHasChanged  = errors.New("refs: reference value changed since read")
	ErrPackedRefsBadFormat  = errors.New("refs: malformed packed-refs entry")
	ErrSymRefTargetNotFound = errors.New("refs: symbolic reference target not found")
	ErrMaxDepthExceeded     = errors.New("refs: symbolic reference chain too deep")
	ErrInvalidName          = errors.New("refs: invalid reference name")
)

// MaxPeelDepth bounds symbolic-reference chases in Peel.
const MaxPeelDepth = 5

// Name is a fully-qualified reference name, e.g. "refs/heads/main" or the
// pseudo-ref "HEAD".
type Name string

// String returns n unmodified; it exists so Name satisfies fmt.Stringer.
func (n Name) String() string { return string(n) }

// Category classifies a reference name for reflog/peel policy decisions.
type Category int

const (
	CategoryOther Category = iota
	CategoryPseudoRef
	CategoryBranch
	CategoryTag
	CategoryRemote
	CategoryNote
)

// CategoryOf classifies n by its prefix, mirroring git's refs/<kind>/ layout.
func CategoryOf(n Name) Category {
	s := string(n)
	switch {
	case !strings.Contains(s, "/"):
		return CategoryPseudoRef
	case strings.HasPrefix(s, "refs/heads/"):
		return CategoryBranch
	case strings.HasPrefix(s, "refs/tags/"):
		return CategoryTag
	case strings.HasPrefix(s, "refs/remotes/"):
		return CategoryRemote
	case strings.HasPrefix(s, "refs/notes/"):
		return CategoryNote
	default:
		return CategoryOther
	}
}

// Reference is either a direct reference (Hash is a concrete object id) or
// a symbolic one (Symbolic names another reference to follow).
type Reference struct {
	Name      Name
	Hash      hash.HashID
	Symbolic  Name // non-empty for symbolic references; Hash is zero in that case
	Peeled    hash.HashID
	HasPeeled bool
}

// IsSymbolic reports whether r is a "ref: <target>" indirection.
func (r Reference) IsSymbolic() bool { return r.Symbolic != "" }

// NewHashReference builds a direct reference.
func NewHashReference(n Name, id hash.HashID) Reference {
	return Reference{Name: n, Hash: id}
}

// NewSymbolicReference builds a "ref: <target>" reference.
func NewSymbolicReference(n, target Name) Reference {
	return Reference{Name: n, Symbolic: target}
}

// dwimPrefixes is the resolution order applied by Find when given a partial
// name, per git's "DWIM" rules: try the name as-is first, then each of these
// prefixes in turn.
var dwimPrefixes = []string{
	"",
	"refs/",
	"refs/tags/",
	"refs/heads/",
	"refs/remotes/",
	"refs/remotes/%s/HEAD",
}

// dwimCandidates returns, in resolution order, the exact names Find should
// probe for partial name s.
func dwimCandidates(s string) []Name {
	candidates := make([]Name, 0, len(dwimPrefixes))
	for _, p := range dwimPrefixes {
		if strings.Contains(p, "%s") {
			candidates = append(candidates, Name(fmt.Sprintf(p, s)))
			continue
		}
		candidates = append(candidates, Name(p+s))
	}
	return candidates
}

// ExpectedValue is the precondition a transaction edit checks against a
// reference's current value before applying.
type ExpectedValue struct {
	Kind  ExpectedKind
	Match Reference // used only when Kind == ExpectMatch
}

type ExpectedKind int

const (
	ExpectAny ExpectedKind = iota
	ExpectMustExist
	ExpectMustNotExist
	ExpectMatch
)

// Edit is one staged change in a transaction: set New (Clear if New is the
// zero Reference and Delete is true).
type Edit struct {
	Name     Name
	New      Reference
	Delete   bool
	Expected ExpectedValue
}

// RefEditRejected reports a transaction edit whose precondition did not hold:
// Expected is what the edit required, Actual is what the store held at check
// time (nil if the reference did not exist). It unwraps to
// ErrReferenceHasChanged so existing errors.Is(err, ErrReferenceHasChanged)
// callers keep working; callers that need the values use errors.As.
type RefEditRejected struct {
	Name     Name
	Expected ExpectedValue
	Actual   *Reference
}

func (e *RefEditRejected) Error() string {
	return fmt.Sprintf("refs: %s: expected %s, found %s", e.Name, describeExpected(e.Expected), describeActual(e.Actual))
}

func (e *RefEditRejected) Unwrap() error { return ErrReferenceHasChanged }

func describeExpected(ev ExpectedValue) string {
	switch ev.Kind {
	case ExpectMustExist:
		return "a reference to exist"
	case ExpectMustNotExist:
		return "no reference"
	case ExpectMatch:
		return describeActual(&ev.Match)
	default:
		return "any value"
	}
}

func describeActual(r *Reference) string {
	if r == nil {
		return "no reference"
	}
	if r.IsSymbolic() {
		return "ref: " + string(r.Symbolic)
	}
	return r.Hash.String()
}

// checkExpected validates current (nil if absent) against e's precondition.
func checkExpected(e Edit, current *Reference) error {
	rejected := func() error {
		return &RefEditRejected{Name: e.Name, Expected: e.Expected, Actual: current}
	}
	switch e.Expected.Kind {
	case ExpectAny:
		return nil
	case ExpectMustExist:
		if current == nil {
			return rejected()
		}
		return nil
	case ExpectMustNotExist:
		if current != nil {
			return rejected()
		}
		return nil
	case ExpectMatch:
		if current == nil {
			return rejected()
		}
		if current.IsSymbolic() != e.Expected.Match.IsSymbolic() {
			return rejected()
		}
		if current.IsSymbolic() {
			if current.Symbolic != e.Expected.Match.Symbolic {
				return rejected()
			}
			return nil
		}
		if current.Hash != e.Expected.Match.Hash {
			return rejected()
		}
		return nil
	default:
		return fmt.Errorf("refs: unknown expected-kind %d", e.Expected.Kind)
	}
}

// encodeLine renders r's loose-ref-file content (without trailing sync).
func encodeLine(r Reference) string {
	if r.IsSymbolic() {
		return "ref: " + string(r.Symbolic) + "\n"
	}
	return r.Hash.String() + "\n"
}

// decodeLine parses one reference file's trimmed content into a Reference
// named n.
func decodeLine(n Name, line string) (Reference, error) {
	line = strings.TrimSpace(line)
	if strings.HasPrefix(line, "ref: ") {
		return NewSymbolicReference(n, Name(strings.TrimSpace(line[len("ref: "):]))), nil
	}
	id, err := hash.FromHex(line)
	if err != nil {
		return Reference{}, fmt.Errorf("%w: %q: %v", ErrInvalidName, line, err)
	}
	return NewHashReference(n, id), nil
}
