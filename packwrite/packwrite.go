// Package packwrite consumes a sequential pack entry stream and writes the
// three artifacts a new pack needs on disk: the pack data file, its index,
// and a `.keep` marker created ahead of the rename so a concurrent gc can't
// mistake the half-written pack for garbage.
//
// Grounded on the teacher's plumbing/format/packfile/encoder.go for the
// header/entry/footer emission shape, and the v4-era
// storage/filesystem/internal/dotgit's PackWriter.save for the
// tempfile-then-rename dance. The index is built from the entries collected
// while the pack is written (their offsets, CRC32s and compressed bytes);
// the written pack file is not read back.
package packwrite

import (
	"bytes"
	"compress/zlib"
	"fmt"
	"io"
	"os"
	"path/filepath"

	objhash "github.com/objectdb/gitcore/hash"
	"github.com/objectdb/gitcore/idxfile"
	"github.com/objectdb/gitcore/packfile"
	"github.com/objectdb/gitcore/packstream"
	"github.com/objectdb/gitcore/tempfile"
)

// ExternalResolver supplies the bytes of a ref-delta base that isn't itself
// present in the stream being written — the thin-pack case, where the base
// is expected to already live in some other bundle.
type ExternalResolver interface {
	ResolveExternal(id objhash.HashID) (data []byte, kind packfile.ObjectType, err error)
}

// Result names the three artifacts Write produced.
type Result struct {
	PackHash objhash.HashID
	PackPath string
	IdxPath  string
	KeepPath string
}

// Write drains src to completion, writing destDir/pack-<hash>.{pack,idx,keep}.
// If src ends in error, the partially written pack tempfile is discarded and
// the error is returned as-is, tainting nothing on disk.
func Write(destDir string, src *packstream.Iterator, resolve ExternalResolver) (Result, error) {
	tmp, err := tempfile.Create(filepath.Join(destDir, "pack-incoming"), tempfile.DirMustExist, tempfile.RemoveTempfileOnly, destDir)
	if err != nil {
		return Result{}, err
	}

	runningHash := objhash.NewRawHasher()
	var entries []packstream.Entry

	writeErr := tmp.WithMut(func(f *os.File) error {
		w := io.MultiWriter(f, runningHash)
		if _, err := w.Write(src.Header().Encode()); err != nil {
			return err
		}

		for {
			e, ok := src.Next()
			if !ok {
				return src.Err()
			}
			hdrBytes, err := packfile.EncodeEntryHeader(e.Header)
			if err != nil {
				return err
			}
			if _, err := w.Write(hdrBytes); err != nil {
				return err
			}
			if _, err := w.Write(e.Compressed); err != nil {
				return err
			}
			entries = append(entries, e)
		}
	})

	if writeErr != nil {
		tmp.Remove()
		return Result{}, writeErr
	}

	packHash, err := objhash.FromBytes(runningHash.Sum(nil))
	if err != nil {
		tmp.Remove()
		return Result{}, err
	}

	if err := tmp.WithMut(func(f *os.File) error {
		_, err := f.Write(packHash.Bytes())
		return err
	}); err != nil {
		tmp.Remove()
		return Result{}, err
	}

	idxEntries, err := buildIndex(entries, resolve)
	if err != nil {
		tmp.Remove()
		return Result{}, fmt.Errorf("packwrite: building index: %w", err)
	}
	idxBytes, err := idxfile.Encode(idxEntries, packHash)
	if err != nil {
		tmp.Remove()
		return Result{}, err
	}

	base := fmt.Sprintf("pack-%s", packHash)
	keepPath := filepath.Join(destDir, base+".keep")
	keepFile, err := os.OpenFile(keepPath, os.O_CREATE|os.O_EXCL|os.O_WRONLY, 0o666)
	if err != nil {
		tmp.Remove()
		return Result{}, err
	}
	keepFile.Close()

	idxPath := filepath.Join(destDir, base+".idx")
	idxTmp, err := tempfile.Create(idxPath, tempfile.DirMustExist, tempfile.RemoveTempfileOnly, destDir)
	if err != nil {
		tmp.Remove()
		os.Remove(keepPath)
		return Result{}, err
	}
	if err := idxTmp.WithMut(func(f *os.File) error {
		_, err := f.Write(idxBytes)
		return err
	}); err != nil {
		tmp.Remove()
		idxTmp.Remove()
		os.Remove(keepPath)
		return Result{}, err
	}
	if err := idxTmp.Persist(idxPath); err != nil {
		tmp.Remove()
		os.Remove(keepPath)
		return Result{}, err
	}

	packPath := filepath.Join(destDir, base+".pack")
	if err := tmp.Persist(packPath); err != nil {
		os.Remove(keepPath)
		os.Remove(idxPath)
		return Result{}, err
	}

	return Result{PackHash: packHash, PackPath: packPath, IdxPath: idxPath, KeepPath: keepPath}, nil
}

// resolved memoizes one entry's fully-decoded (bytes, type), keyed by its
// index in the entries slice, so a base referenced by more than one delta is
// decoded only once.
type resolved struct {
	data []byte
	kind packfile.ObjectType
	id   objhash.HashID
	done bool
}

func buildIndex(entries []packstream.Entry, ext ExternalResolver) ([]idxfile.Entry, error) {
	byOffset := make(map[int64]int, len(entries))
	for i, e := range entries {
		byOffset[e.Offset] = i
	}

	cache := make([]resolved, len(entries))
	byHash := make(map[objhash.HashID]int, len(entries))

	var resolve func(i int) (resolved, error)
	resolve = func(i int) (resolved, error) {
		if cache[i].done {
			return cache[i], nil
		}

		e := entries[i]
		switch e.Header.Type {
		case packfile.TypeOfsDelta:
			baseIdx, ok := byOffset[e.Offset-e.Header.BaseOffset]
			if !ok {
				return resolved{}, fmt.Errorf("ofs-delta base offset %d not found", e.Offset-e.Header.BaseOffset)
			}
			base, err := resolve(baseIdx)
			if err != nil {
				return resolved{}, err
			}
			patched, err := applyDelta(base.data, e)
			if err != nil {
				return resolved{}, err
			}
			id := objhash.HashObject(kindOf(base.kind), patched)
			r := resolved{data: patched, kind: base.kind, id: id, done: true}
			cache[i] = r
			byHash[id] = i
			return r, nil

		case packfile.TypeRefDelta:
			var base resolved
			if baseIdx, ok := byHash[e.Header.BaseHash]; ok {
				var err error
				base, err = resolve(baseIdx)
				if err != nil {
					return resolved{}, err
				}
			} else {
				if ext == nil {
					return resolved{}, fmt.Errorf("%w: %s", packfile.ErrDeltaBaseUnresolved, e.Header.BaseHash)
				}
				data, kind, err := ext.ResolveExternal(e.Header.BaseHash)
				if err != nil {
					return resolved{}, fmt.Errorf("%w: %v", packfile.ErrDeltaBaseUnresolved, err)
				}
				base = resolved{data: data, kind: kind, id: e.Header.BaseHash, done: true}
			}
			patched, err := applyDelta(base.data, e)
			if err != nil {
				return resolved{}, err
			}
			id := objhash.HashObject(kindOf(base.kind), patched)
			r := resolved{data: patched, kind: base.kind, id: id, done: true}
			cache[i] = r
			byHash[id] = i
			return r, nil

		default:
			data, err := inflate(e.Compressed)
			if err != nil {
				return resolved{}, err
			}
			id := objhash.HashObject(kindOf(e.Header.Type), data)
			r := resolved{data: data, kind: e.Header.Type, id: id, done: true}
			cache[i] = r
			byHash[id] = i
			return r, nil
		}
	}

	out := make([]idxfile.Entry, len(entries))
	for i, e := range entries {
		r, err := resolve(i)
		if err != nil {
			return nil, err
		}
		out[i] = idxfile.Entry{ID: r.id, Offset: uint64(e.Offset), CRC32: e.CRC32}
	}
	return out, nil
}

func applyDelta(base []byte, e packstream.Entry) ([]byte, error) {
	delta, err := inflate(e.Compressed)
	if err != nil {
		return nil, err
	}
	return packfile.PatchDelta(base, delta)
}

func inflate(compressed []byte) ([]byte, error) {
	zr, err := zlib.NewReader(bytes.NewReader(compressed))
	if err != nil {
		return nil, err
	}
	defer zr.Close()
	return io.ReadAll(zr)
}

func kindOf(t packfile.ObjectType) objhash.ObjectKind {
	switch t {
	case packfile.TypeCommit:
		return objhash.KindCommit
	case packfile.TypeTree:
		return objhash.KindTree
	case packfile.TypeBlob:
		return objhash.KindBlob
	case packfile.TypeTag:
		return objhash.KindTag
	default:
		return objhash.KindInvalid
	}
}
