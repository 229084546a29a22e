package refs

import (
	"bufio"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/objectdb/gitcore/hash"
	"github.com/objectdb/gitcore/object"
)

// ReflogEntry is one line of a reference's reflog.
type ReflogEntry struct {
	Old     hash.HashID
	New     hash.HashID
	Who     object.Signature
	Message string
}

// encode renders e in git's reflog line format:
// "<old> <new> <name> <email> <when>", a tab, then "<message>" and a newline.
func (e ReflogEntry) encode() string {
	return fmt.Sprintf("%s %s %s\t%s\n", e.Old.String(), e.New.String(), e.Who.Encode(), e.Message)
}

func decodeReflogLine(line string) (ReflogEntry, error) {
	fields := strings.SplitN(line, " ", 3)
	if len(fields) != 3 {
		return ReflogEntry{}, fmt.Errorf("refs: malformed reflog line %q", line)
	}
	oldID, err := hash.FromHex(fields[0])
	if err != nil {
		return ReflogEntry{}, fmt.Errorf("refs: malformed reflog old id: %w", err)
	}
	newID, err := hash.FromHex(fields[1])
	if err != nil {
		return ReflogEntry{}, fmt.Errorf("refs: malformed reflog new id: %w", err)
	}

	rest := fields[2]
	tab := strings.IndexByte(rest, '\t')
	var sigPart, msg string
	if tab < 0 {
		sigPart, msg = rest, ""
	} else {
		sigPart, msg = rest[:tab], rest[tab+1:]
	}
	sig, err := object.ParseSignature([]byte(sigPart))
	if err != nil {
		return ReflogEntry{}, fmt.Errorf("refs: malformed reflog signature: %w", err)
	}
	return ReflogEntry{Old: oldID, New: newID, Who: sig, Message: msg}, nil
}

// logAllRefUpdatesQualifies mirrors core.logAllRefUpdates: which categories of
// reference get a reflog appended on update.
func logAllRefUpdatesQualifies(n Name, enabled bool) bool {
	if !enabled {
		return CategoryOf(n) == CategoryPseudoRef
	}
	switch CategoryOf(n) {
	case CategoryPseudoRef, CategoryBranch, CategoryRemote, CategoryNote:
		return true
	default:
		return false
	}
}

func reflogPath(commonDir string, n Name) string {
	return filepath.Join(commonDir, "logs", filepath.FromSlash(string(n)))
}

// AppendReflog appends one entry to n's reflog, creating the file and its
// parent directories if needed.
func AppendReflog(commonDir string, n Name, e ReflogEntry) error {
	path := reflogPath(commonDir, n)
	if err := os.MkdirAll(filepath.Dir(path), 0o777); err != nil {
		return err
	}
	f, err := os.OpenFile(path, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0o666)
	if err != nil {
		return err
	}
	defer f.Close()
	if _, err := f.WriteString(e.encode()); err != nil {
		return err
	}
	return f.Sync()
}

// ReadReflog returns every entry in n's reflog, oldest first.
func ReadReflog(commonDir string, n Name) ([]ReflogEntry, error) {
	f, err := os.Open(reflogPath(commonDir, n))
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, err
	}
	defer f.Close()

	var entries []ReflogEntry
	sc := bufio.NewScanner(f)
	for sc.Scan() {
		line := sc.Text()
		if line == "" {
			continue
		}
		e, err := decodeReflogLine(line)
		if err != nil {
			return nil, err
		}
		entries = append(entries, e)
	}
	if err := sc.Err(); err != nil {
		return nil, err
	}
	return entries, nil
}

// ReflogAt resolves "@{n}" by counting back n entries from the most recent.
// It reads and parses the whole reflog through ReadReflog; it does not scan
// the file tail-to-head in blocks.
func ReflogAt(commonDir string, n Name, stepsBack int) (ReflogEntry, error) {
	entries, err := ReadReflog(commonDir, n)
	if err != nil {
		return ReflogEntry{}, err
	}
	idx := len(entries) - 1 - stepsBack
	if idx < 0 || idx >= len(entries) {
		return ReflogEntry{}, fmt.Errorf("refs: @{%d} out of range (have %d entries)", stepsBack, len(entries))
	}
	return entries[idx], nil
}

// ReverseReflog returns entries newest first, the order @{n} lookups and
// `git reflog show` walk in.
func ReverseReflog(commonDir string, n Name) ([]ReflogEntry, error) {
	entries, err := ReadReflog(commonDir, n)
	if err != nil {
		return nil, err
	}
	out := make([]ReflogEntry, len(entries))
	for i, e := range entries {
		out[len(entries)-1-i] = e
	}
	return out, nil
}

// parseAtSyntax extracts n from a "@{n}" suffix, used by callers resolving
// "<ref>@{<n>}" revision syntax against this package's reflog.
func parseAtSyntax(s string) (stepsBack int, ok bool) {
	if !strings.HasSuffix(s, "}") {
		return 0, false
	}
	i := strings.LastIndex(s, "@{")
	if i < 0 {
		return 0, false
	}
	n, err := strconv.Atoi(s[i+2 : len(s)-1])
	if err != nil {
		return 0, false
	}
	return n, true
}
