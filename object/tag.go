package object

import (
	"bytes"
	"fmt"

	"github.com/objectdb/gitcore/hash"
)

// pgpSignatureMarker delimits a trailing detached signature block appended
// after a tag's message.
const pgpSignatureMarker = "-----BEGIN PGP SIGNATURE-----"

// Tag is an annotated tag: a name pointing at a target object of a known
// kind, an optional tagger signature, a message, and an optional trailing
// PGP signature block.
type Tag struct {
	TargetID   hash.HashID
	TargetKind Kind
	Name       string
	Tagger     *Signature
	Message    string
	PGPSig     string
}

// Encode serializes the tag to its canonical on-disk form.
func (t Tag) Encode() ([]byte, error) {
	var buf bytes.Buffer
	fmt.Fprintf(&buf, "object %s\n", t.TargetID.String())
	fmt.Fprintf(&buf, "type %s\n", t.TargetKind.String())
	fmt.Fprintf(&buf, "tag %s\n", t.Name)
	if t.Tagger != nil {
		fmt.Fprintf(&buf, "tagger %s\n", t.Tagger.Encode())
	}
	buf.WriteByte('\n')
	buf.WriteString(t.Message)
	if t.PGPSig != "" {
		if t.Message != "" && !bytes.HasSuffix(buf.Bytes(), []byte("\n")) {
			buf.WriteByte('\n')
		}
		buf.WriteString(t.PGPSig)
	}
	return buf.Bytes(), nil
}

// DecodeTag parses a tag object's payload.
func DecodeTag(data []byte) (Tag, error) {
	var t Tag

	if idx := bytes.Index(data, []byte(pgpSignatureMarker)); idx >= 0 {
		t.PGPSig = string(data[idx:])
		data = data[:idx]
	}

	lines := bytes.SplitN(data, []byte("\n\n"), 2)
	header := lines[0]
	if len(lines) == 2 {
		t.Message = string(lines[1])
	}

	hasObject, hasType, hasTag := false, false, false
	for _, line := range bytes.Split(header, []byte("\n")) {
		if len(line) == 0 {
			continue
		}
		sp := bytes.IndexByte(line, ' ')
		if sp < 0 {
			return Tag{}, fmt.Errorf("%w: malformed tag header %q", ErrMalformed, line)
		}
		key := string(line[:sp])
		val := string(line[sp+1:])

		switch key {
		case "object":
			id, err := hash.FromHex(val)
			if err != nil {
				return Tag{}, fmt.Errorf("%w: bad object id", ErrMalformed)
			}
			t.TargetID = id
			hasObject = true
		case "type":
			kind, err := KindFromString(val)
			if err != nil {
				return Tag{}, err
			}
			t.TargetKind = kind
			hasType = true
		case "tag":
			t.Name = val
			hasTag = true
		case "tagger":
			sig, err := ParseSignature([]byte(val))
			if err != nil {
				return Tag{}, err
			}
			t.Tagger = &sig
		default:
			return Tag{}, fmt.Errorf("%w: unknown tag header %q", ErrMalformed, key)
		}
	}

	if !hasObject || !hasType || !hasTag {
		return Tag{}, fmt.Errorf("%w: tag missing required header", ErrMalformed)
	}

	return t, nil
}
