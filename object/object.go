// Package object decodes and encodes the four persisted git object kinds:
// blob, tree, commit, and tag. Each kind has a borrowed form that reads
// directly out of a caller-supplied buffer and an owned form that copies
// everything it needs and may cross goroutines freely.
package object

import (
	"errors"
	"fmt"

	"github.com/objectdb/gitcore/hash"
)

// Kind identifies one of the four object kinds. Re-exported from hash to
// give callers of this package a conventional name without an extra import.
type Kind = hash.ObjectKind

const (
	KindCommit = hash.KindCommit
	KindTree   = hash.KindTree
	KindBlob   = hash.KindBlob
	KindTag    = hash.KindTag
)

// ErrMalformed is returned when an object's payload cannot be parsed
// according to its kind's grammar.
var ErrMalformed = errors.New("object: malformed payload")

// KindFromString maps a loose-object header token to a Kind.
func KindFromString(s string) (Kind, error) {
	switch s {
	case "commit":
		return KindCommit, nil
	case "tree":
		return KindTree, nil
	case "blob":
		return KindBlob, nil
	case "tag":
		return KindTag, nil
	default:
		return hash.KindInvalid, fmt.Errorf("%w: unknown kind %q", ErrMalformed, s)
	}
}
