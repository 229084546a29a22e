package pktline

import "io"

// Scanner provides bufio.Scanner-style iteration over pkt-lines: call Scan
// in a loop, then Bytes/Text for the current payload, Err for any terminal
// error. Flush/Delim/ResponseEnd lines surface as a zero-length Bytes with
// no error, matching plumbing/format/pktline/scanner.go. Scan does not stop
// at a Flush: the caller checks Status and stops there, or calls Scan again
// to read a following section.
type Scanner struct {
	r       io.Reader
	payload []byte
	status  int
	err     error
}

func NewScanner(r io.Reader) *Scanner {
	return &Scanner{r: r}
}

// Scan reads the next pkt-line. It returns false at EOF or on the first
// error, which Err then reports (io.EOF itself is not reported as an Err).
func (s *Scanner) Scan() bool {
	if s.err != nil {
		return false
	}

	l, p, err := ReadPacket(s.r)
	if err != nil {
		if _, ok := err.(*ErrorLine); ok {
			s.err = err
			s.payload = p
			s.status = l
			return false
		}
		if err != io.EOF {
			s.err = err
		}
		return false
	}

	s.status = l
	if l == Flush || l == Delim || l == ResponseEnd {
		s.payload = nil
	} else {
		s.payload = p
	}
	return true
}

// Err returns the first non-EOF error encountered by Scan, if any.
func (s *Scanner) Err() error { return s.err }

// Bytes returns the payload of the most recent Scan.
func (s *Scanner) Bytes() []byte { return s.payload }

// Text is Bytes converted to a string.
func (s *Scanner) Text() string { return string(s.payload) }

// Len returns the payload length of the most recent Scan.
func (s *Scanner) Len() int { return len(s.payload) }

// Status returns the Status of the most recent Scan (Flush/Delim/
// ResponseEnd, or the data line's encoded length).
func (s *Scanner) Status() int { return s.status }
