package packp

import (
	"sort"
	"strings"

	"github.com/objectdb/gitcore/pktline"
)

// Capability is one advertised server capability, carrying its optional
// values in encounter order, mirroring plumbing/format/packp.Capability.
type Capability struct {
	Name   string
	Values []string
}

// Capabilities holds a v2 capability advertisement: one capability per
// pkt-line, rather than v1's single space-joined line.
type Capabilities struct {
	Version int

	m map[string]*Capability
	o []string
}

func NewCapabilities() *Capabilities {
	return &Capabilities{m: make(map[string]*Capability)}
}

func (c *Capabilities) IsEmpty() bool { return len(c.o) == 0 }

func (c *Capabilities) Supports(name string) bool {
	_, ok := c.m[name]
	return ok
}

func (c *Capabilities) Get(name string) *Capability { return c.m[name] }

func (c *Capabilities) Add(name string, values ...string) {
	if !c.Supports(name) {
		c.m[name] = &Capability{Name: name}
		c.o = append(c.o, name)
	}
	if len(values) > 0 {
		c.m[name].Values = append(c.m[name].Values, values...)
	}
}

// Names returns every advertised capability name, in advertisement order.
func (c *Capabilities) Names() []string {
	out := make([]string, len(c.o))
	copy(out, c.o)
	return out
}

// Sort orders the advertised capability names alphabetically, matching
// Capabilities.Sort in the v1 format for deterministic re-encoding.
func (c *Capabilities) Sort() { sort.Strings(c.o) }

// readCapabilityLine splits one "<name>" or "<name>=<value>" advertisement
// line, as plumbing/protocol/packp/common.go's readCapability does for the
// space-separated v1 form.
func readCapabilityLine(line string) (name string, value string, hasValue bool) {
	if i := strings.IndexByte(line, '='); i >= 0 {
		return line[:i], line[i+1:], true
	}
	return line, "", false
}

// DecodeAdvertisement reads a v2 capability advertisement: a "version 2"
// line followed by one capability per pkt-line, terminated by a flush.
func DecodeAdvertisement(r *pktline.Reader) (*Capabilities, error) {
	caps := NewCapabilities()
	sawVersion := false

	for {
		l, line, err := r.ReadPacketString()
		if err != nil {
			return nil, err
		}
		if l == pktline.Flush {
			break
		}

		line = strings.TrimSuffix(line, "\n")
		if line == "" {
			continue
		}
		if !sawVersion {
			if line != "version 2" {
				return nil, ErrNoVersionLine
			}
			caps.Version = 2
			sawVersion = true
			continue
		}

		name, value, hasValue := readCapabilityLine(line)
		if hasValue {
			caps.Add(name, value)
		} else {
			caps.Add(name)
		}
	}

	if !sawVersion {
		return nil, ErrNoVersionLine
	}
	return caps, nil
}

// EncodeAdvertisement writes caps back out in the same version-line-then-
// one-capability-per-line-then-flush shape DecodeAdvertisement expects, for
// servers implementing the advertisement side of the handshake.
func EncodeAdvertisement(w *pktline.Writer, caps *Capabilities) error {
	if _, err := w.WritePacketString("version 2\n"); err != nil {
		return err
	}
	for _, name := range caps.o {
		cap := caps.m[name]
		line := name
		for _, v := range cap.Values {
			if v == "" {
				continue
			}
			line = name + "=" + v
			break
		}
		if _, err := w.WritePacketString(line + "\n"); err != nil {
			return err
		}
	}
	return w.WriteFlush()
}
