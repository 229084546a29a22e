package object

import (
	"bytes"
	"fmt"
	"strconv"
	"time"
)

// Signature is an author or committer identity: a name, an email, and a
// point in time expressed as seconds since the epoch plus a UTC offset.
//
// Parsing and re-encoding any Signature the parser accepts is lossless: the
// offset is preserved exactly even though time.Time normally discards it in
// favor of the monotonic/location representation.
type Signature struct {
	Name  string
	Email string
	When  time.Time
}

// ParseSignature parses "Name <email> unix-seconds tz-offset", git's
// wire/commit-object format for signatures. Grounded on the original
// state-machine shape of go-git's early ParseSignature, extended to also
// capture the trailing timezone offset.
func ParseSignature(b []byte) (Signature, error) {
	var sig Signature
	if len(b) == 0 {
		return sig, nil
	}

	open := bytes.LastIndexByte(b, '<')
	close := bytes.LastIndexByte(b, '>')
	if open < 0 || close < 0 || close < open {
		return sig, fmt.Errorf("%w: signature missing email", ErrMalformed)
	}

	sig.Name = string(bytes.TrimSpace(b[:open]))
	sig.Email = string(b[open+1 : close])

	rest := bytes.TrimSpace(b[close+1:])
	fields := bytes.Fields(rest)

	var sec int64
	var offsetMinutes int
	switch len(fields) {
	case 2:
		var err error
		sec, err = strconv.ParseInt(string(fields[0]), 10, 64)
		if err != nil {
			return sig, fmt.Errorf("%w: bad timestamp", ErrMalformed)
		}
		offsetMinutes, err = parseTZOffset(fields[1])
		if err != nil {
			return sig, err
		}
	case 1:
		var err error
		sec, err = strconv.ParseInt(string(fields[0]), 10, 64)
		if err != nil {
			return sig, fmt.Errorf("%w: bad timestamp", ErrMalformed)
		}
	case 0:
		// Accepted: a signature with no timestamp at all.
	default:
		return sig, fmt.Errorf("%w: trailing junk after signature", ErrMalformed)
	}

	loc := time.FixedZone("", offsetMinutes*60)
	sig.When = time.Unix(sec, 0).In(loc)
	return sig, nil
}

func parseTZOffset(b []byte) (int, error) {
	if len(b) != 5 || (b[0] != '+' && b[0] != '-') {
		return 0, fmt.Errorf("%w: bad timezone offset", ErrMalformed)
	}
	hh, err := strconv.Atoi(string(b[1:3]))
	if err != nil {
		return 0, fmt.Errorf("%w: bad timezone offset", ErrMalformed)
	}
	mm, err := strconv.Atoi(string(b[3:5]))
	if err != nil {
		return 0, fmt.Errorf("%w: bad timezone offset", ErrMalformed)
	}
	total := hh*60 + mm
	if b[0] == '-' {
		total = -total
	}
	return total, nil
}

// Encode writes the canonical wire representation of the signature.
func (s Signature) Encode() []byte {
	_, offsetSeconds := s.When.Zone()
	sign := byte('+')
	if offsetSeconds < 0 {
		sign = '-'
		offsetSeconds = -offsetSeconds
	}
	hh := offsetSeconds / 3600
	mm := (offsetSeconds % 3600) / 60

	var buf bytes.Buffer
	buf.WriteString(s.Name)
	buf.WriteString(" <")
	buf.WriteString(s.Email)
	buf.WriteString("> ")
	buf.WriteString(strconv.FormatInt(s.When.Unix(), 10))
	fmt.Fprintf(&buf, " %c%02d%02d", sign, hh, mm)
	return buf.Bytes()
}

func (s Signature) String() string {
	return string(s.Encode())
}
