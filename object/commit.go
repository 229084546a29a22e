package object

import (
	"bytes"
	"fmt"
	"strings"

	"github.com/objectdb/gitcore/hash"
)

// Header is a raw, ordered "key value" commit header outside the fixed set
// (tree/parent/author/committer/encoding), e.g. gpgsig or mergetag.
type Header struct {
	Key   string
	Value string
}

// Commit is a point-in-time snapshot: one tree, zero or more parents, two
// signatures, optional encoding, arbitrary ordered extra headers, and a
// message.
type Commit struct {
	TreeID       hash.HashID
	ParentIDs    []hash.HashID
	Author       Signature
	Committer    Signature
	Encoding     string
	ExtraHeaders []Header
	Message      string
}

// Encode serializes the commit to its canonical on-disk form.
func (c Commit) Encode() ([]byte, error) {
	var buf bytes.Buffer

	fmt.Fprintf(&buf, "tree %s\n", c.TreeID.String())
	for _, p := range c.ParentIDs {
		fmt.Fprintf(&buf, "parent %s\n", p.String())
	}
	fmt.Fprintf(&buf, "author %s\n", c.Author.Encode())
	fmt.Fprintf(&buf, "committer %s\n", c.Committer.Encode())
	if c.Encoding != "" {
		fmt.Fprintf(&buf, "encoding %s\n", c.Encoding)
	}
	for _, h := range c.ExtraHeaders {
		writeFoldedHeader(&buf, h.Key, h.Value)
	}

	buf.WriteByte('\n')
	buf.WriteString(c.Message)

	return buf.Bytes(), nil
}

// writeFoldedHeader writes a header value, folding embedded newlines onto
// continuation lines prefixed by a single space, as git does for multi-line
// values like gpgsig.
func writeFoldedHeader(buf *bytes.Buffer, key, value string) {
	lines := strings.Split(value, "\n")
	fmt.Fprintf(buf, "%s %s\n", key, lines[0])
	for _, l := range lines[1:] {
		buf.WriteByte(' ')
		buf.WriteString(l)
		buf.WriteByte('\n')
	}
}

// DecodeCommit parses a commit object's payload.
func DecodeCommit(data []byte) (Commit, error) {
	var c Commit
	treeSeen := false

	lines := splitHeaderLines(data)
	i := 0
	for ; i < len(lines); i++ {
		line := lines[i]
		if len(line) == 0 {
			i++
			break
		}

		sp := bytes.IndexByte(line, ' ')
		if sp < 0 {
			return Commit{}, fmt.Errorf("%w: malformed commit header %q", ErrMalformed, line)
		}
		key := string(line[:sp])
		val := string(line[sp+1:])

		switch key {
		case "tree":
			id, err := hash.FromHex(val)
			if err != nil {
				return Commit{}, fmt.Errorf("%w: bad tree id", ErrMalformed)
			}
			c.TreeID = id
			treeSeen = true
		case "parent":
			id, err := hash.FromHex(val)
			if err != nil {
				return Commit{}, fmt.Errorf("%w: bad parent id", ErrMalformed)
			}
			c.ParentIDs = append(c.ParentIDs, id)
		case "author":
			sig, err := ParseSignature([]byte(val))
			if err != nil {
				return Commit{}, err
			}
			c.Author = sig
		case "committer":
			sig, err := ParseSignature([]byte(val))
			if err != nil {
				return Commit{}, err
			}
			c.Committer = sig
		case "encoding":
			c.Encoding = val
		default:
			c.ExtraHeaders = append(c.ExtraHeaders, Header{Key: key, Value: val})
		}
	}

	if !treeSeen {
		return Commit{}, fmt.Errorf("%w: commit missing tree", ErrMalformed)
	}

	var msg bytes.Buffer
	for j := i; j < len(lines); j++ {
		msg.Write(lines[j])
		if j != len(lines)-1 {
			msg.WriteByte('\n')
		}
	}
	c.Message = msg.String()

	return c, nil
}

// splitHeaderLines splits data on '\n', re-joining any continuation lines
// (those beginning with a single space) onto the preceding header line with
// an embedded '\n', matching git's folded multi-line header values.
func splitHeaderLines(data []byte) [][]byte {
	raw := bytes.Split(data, []byte("\n"))
	var out [][]byte
	inHeaders := true
	for _, line := range raw {
		if inHeaders && len(out) > 0 && len(line) > 0 && line[0] == ' ' {
			out[len(out)-1] = append(append(out[len(out)-1], '\n'), line[1:]...)
			continue
		}
		if len(line) == 0 && inHeaders {
			inHeaders = false
		}
		out = append(out, line)
	}
	return out
}
