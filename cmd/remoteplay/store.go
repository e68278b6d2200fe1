package main

import (
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/google/renameio/v2"
)

// MediaStore owns the bytes of uploaded media in a single directory.
// It never touches playback state.
type MediaStore struct {
	dir string
}

// StoredFile is one entry of the media directory.
type StoredFile struct {
	Name string
	Path string
	Size int64
}

var errInvalidFileName = errors.New("invalid file name")

func NewMediaStore(dir string) (*MediaStore, error) {
	dir = ExpandPath(dir)
	if dir == "" {
		return nil, errors.New("media dir is empty")
	}
	abs, err := filepath.Abs(dir)
	if err != nil {
		return nil, fmt.Errorf("resolve media dir: %w", err)
	}
	if err := os.MkdirAll(abs, 0o755); err != nil {
		return nil, &StoreIOError{Op: "init", Name: abs, Err: err}
	}
	return &MediaStore{dir: abs}, nil
}

func (s *MediaStore) Dir() string { return s.dir }

// cleanName reduces a client-supplied name to a bare file name inside the store.
func cleanName(name string) (string, error) {
	name = strings.ReplaceAll(name, "\\", "/")
	name = filepath.Base(name)
	switch {
	case name == "", name == ".", name == "..", name == "/":
		return "", errInvalidFileName
	case strings.HasPrefix(name, "."):
		// Hidden names collide with in-flight temp files.
		return "", errInvalidFileName
	}
	return name, nil
}

// Path resolves a stored name to its absolute path.
func (s *MediaStore) Path(name string) (string, error) {
	clean, err := cleanName(name)
	if err != nil {
		return "", err
	}
	return filepath.Join(s.dir, clean), nil
}

// Save streams r into the store under name, replacing any existing file
// atomically. Readers never observe a partially written file.
func (s *MediaStore) Save(name string, r io.Reader) (StoredFile, error) {
	path, err := s.Path(name)
	if err != nil {
		return StoredFile{}, &StoreIOError{Op: "save", Name: name, Err: err}
	}

	pending, err := renameio.NewPendingFile(path, renameio.WithPermissions(0o644))
	if err != nil {
		return StoredFile{}, &StoreIOError{Op: "save", Name: name, Err: err}
	}
	defer func() { _ = pending.Cleanup() }()

	n, err := io.Copy(pending, r)
	if err != nil {
		return StoredFile{}, &StoreIOError{Op: "save", Name: name, Err: err}
	}
	if err := pending.CloseAtomicallyReplace(); err != nil {
		return StoredFile{}, &StoreIOError{Op: "save", Name: name, Err: err}
	}

	return StoredFile{Name: filepath.Base(path), Path: path, Size: n}, nil
}

// List returns regular, non-hidden files sorted by name.
func (s *MediaStore) List() ([]StoredFile, error) {
	entries, err := os.ReadDir(s.dir)
	if err != nil {
		return nil, &StoreIOError{Op: "list", Err: err}
	}

	files := make([]StoredFile, 0, len(entries))
	for _, e := range entries {
		if !e.Type().IsRegular() || strings.HasPrefix(e.Name(), ".") {
			continue
		}
		info, err := e.Info()
		if err != nil {
			if errors.Is(err, fs.ErrNotExist) {
				continue
			}
			return nil, &StoreIOError{Op: "list", Name: e.Name(), Err: err}
		}
		files = append(files, StoredFile{
			Name: e.Name(),
			Path: filepath.Join(s.dir, e.Name()),
			Size: info.Size(),
		})
	}
	sort.Slice(files, func(i, j int) bool { return files[i].Name < files[j].Name })
	return files, nil
}

func (s *MediaStore) Delete(name string) error {
	path, err := s.Path(name)
	if err != nil {
		return &StoreIOError{Op: "delete", Name: name, Err: err}
	}
	if err := os.Remove(path); err != nil {
		return &StoreIOError{Op: "delete", Name: name, Err: err}
	}
	return nil
}
