package odb

import (
	"bufio"
	"os"
	"path/filepath"
	"strings"
)

// ReadAlternates parses an objects/info/alternates file: one object-store
// directory path per line, blank lines and "#"-prefixed comments ignored,
// relative paths resolved against objectsDir (the directory the alternates
// file itself lives under). Not present in this retrieval's
// storage/filesystem/dotgit (only its test file, dotgit_test.go, survived),
// so the line format here follows git's own documented convention rather
// than a copied implementation.
func ReadAlternates(objectsDir string) ([]string, error) {
	f, err := os.Open(filepath.Join(objectsDir, "info", "alternates"))
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, err
	}
	defer f.Close()

	var out []string
	scanner := bufio.NewScanner(f)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		if !filepath.IsAbs(line) {
			line = filepath.Join(objectsDir, line)
		}
		out = append(out, filepath.Clean(line))
	}
	if err := scanner.Err(); err != nil {
		return nil, err
	}
	return out, nil
}
