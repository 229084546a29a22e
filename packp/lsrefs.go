package packp

import (
	"fmt"
	"strings"

	"github.com/objectdb/gitcore/hash"
	"github.com/objectdb/gitcore/pktline"
)

// LsRefsCommand is a protocol v2 "command=ls-refs" request.
type LsRefsCommand struct {
	Peel      bool
	Symrefs   bool
	Unborn    bool
	RefPrefix []string
}

// Encode writes the command request: the "command=ls-refs" line, one
// argument line per enabled option, then a flush, per spec's ls-refs
// grammar.
func (c *LsRefsCommand) Encode(w *pktline.Writer) error {
	if _, err := w.WritePacketString("command=ls-refs\n"); err != nil {
		return err
	}
	if c.Peel {
		if _, err := w.WritePacketString("peel\n"); err != nil {
			return err
		}
	}
	if c.Symrefs {
		if _, err := w.WritePacketString("symrefs\n"); err != nil {
			return err
		}
	}
	if c.Unborn {
		if _, err := w.WritePacketString("unborn\n"); err != nil {
			return err
		}
	}
	for _, prefix := range c.RefPrefix {
		if _, err := w.WritePacketString("ref-prefix " + prefix + "\n"); err != nil {
			return err
		}
	}
	return w.WriteFlush()
}

// RefRecord is one line of an ls-refs reply.
type RefRecord struct {
	Hash         hash.HashID
	Name         string
	SymrefTarget string
	Peeled       hash.HashID
	HasPeeled    bool
	Unborn       bool
}

// DecodeLsRefsReply reads an ls-refs reply: lines of
// "<hex-id> <fullname> [<attr>=<value>]*" terminated by a flush.
func DecodeLsRefsReply(r *pktline.Reader) ([]RefRecord, error) {
	var out []RefRecord
	for {
		l, line, err := r.ReadPacketString()
		if err != nil {
			return nil, err
		}
		if l == pktline.Flush {
			return out, nil
		}

		line = strings.TrimSuffix(line, "\n")
		fields := strings.Split(line, " ")
		if len(fields) < 2 {
			return nil, fmt.Errorf("%w: ls-refs line %q", ErrMalformedLine, line)
		}

		rec := RefRecord{Name: fields[1]}
		if fields[0] == "unborn" {
			rec.Unborn = true
		} else {
			id, err := hash.FromHex(fields[0])
			if err != nil {
				return nil, fmt.Errorf("%w: %v", ErrMalformedLine, err)
			}
			rec.Hash = id
		}

		for _, attr := range fields[2:] {
			switch {
			case strings.HasPrefix(attr, "symref-target:"):
				rec.SymrefTarget = strings.TrimPrefix(attr, "symref-target:")
			case strings.HasPrefix(attr, "peeled:"):
				id, err := hash.FromHex(strings.TrimPrefix(attr, "peeled:"))
				if err != nil {
					return nil, fmt.Errorf("%w: %v", ErrMalformedLine, err)
				}
				rec.Peeled = id
				rec.HasPeeled = true
			case attr == "unborn":
				rec.Unborn = true
			}
		}

		out = append(out, rec)
	}
}
