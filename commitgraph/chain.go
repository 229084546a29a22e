package commitgraph

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"

	"github.com/objectdb/gitcore/hash"
)

// ReadChainFile parses a commit-graph-chain file: one graph file hash per
// line, oldest first.
func ReadChainFile(r io.Reader) ([]hash.HashID, error) {
	scanner := bufio.NewScanner(r)
	var chain []hash.HashID
	for scanner.Scan() {
		line := scanner.Text()
		if line == "" {
			continue
		}
		id, err := hash.FromHex(line)
		if err != nil {
			return nil, fmt.Errorf("%w: chain entry %q: %v", ErrMalformed, line, err)
		}
		chain = append(chain, id)
	}
	if err := scanner.Err(); err != nil {
		return nil, err
	}
	return chain, nil
}

// OpenSingle opens objectsDir/info/commit-graph, the unsplit layout.
func OpenSingle(objectsDir string) (*File, error) {
	path := filepath.Join(objectsDir, "info", "commit-graph")
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	info, err := f.Stat()
	if err != nil {
		f.Close()
		return nil, err
	}
	idx, err := Open(f, info.Size())
	if err != nil {
		f.Close()
		return nil, err
	}
	return idx, nil
}

// OpenChain opens objectsDir/info/commit-graphs/commit-graph-chain and the
// graph-<hash>.graph files it names, building a File whose parent links run
// oldest-first, matching OpenChainIndex's incremental fold.
func OpenChain(objectsDir string) (*File, error) {
	chainDir := filepath.Join(objectsDir, "info", "commit-graphs")
	chainFile, err := os.Open(filepath.Join(chainDir, "commit-graph-chain"))
	if err != nil {
		return nil, err
	}
	ids, err := ReadChainFile(chainFile)
	chainFile.Close()
	if err != nil {
		return nil, err
	}

	var current *File
	for _, id := range ids {
		path := filepath.Join(chainDir, "graph-"+id.String()+".graph")
		f, err := os.Open(path)
		if err != nil {
			if current != nil {
				current.Close()
			}
			return nil, err
		}
		info, err := f.Stat()
		if err != nil {
			f.Close()
			if current != nil {
				current.Close()
			}
			return nil, err
		}
		next, err := OpenWithParent(f, info.Size(), current)
		if err != nil {
			f.Close()
			if current != nil {
				current.Close()
			}
			return nil, err
		}
		current = next
	}

	if current == nil {
		return nil, fmt.Errorf("%w: empty chain", ErrMalformed)
	}
	return current, nil
}

// OpenAny tries the single-file layout first, falling back to the split
// chain, matching OpenChainOrFileIndex's probing order.
func OpenAny(objectsDir string) (*File, error) {
	idx, err := OpenSingle(objectsDir)
	if err == nil {
		return idx, nil
	}
	if !errors.Is(err, os.ErrNotExist) {
		return nil, err
	}
	return OpenChain(objectsDir)
}
