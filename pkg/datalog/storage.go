package datalog

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"

	"github.com/spf13/afero"
)

// Sink receives the bytes of one session file.
type Sink interface {
	io.Writer
	Sync() error
	Close() error
}

// Storage is the device session files are created on.
type Storage interface {
	// Exists reports whether name is taken.
	Exists(name string) (bool, error)
	// Create creates name exclusively; it fails if name exists.
	Create(name string) (Sink, error)
	// Remove deletes name.
	Remove(name string) error
}

// FsStorage keeps session files in a directory of an afero filesystem.
type FsStorage struct {
	Fs  afero.Fs
	Dir string
}

// Mount prepares dir on fs for session files. It fails when dir cannot be
// created or is not a directory.
func Mount(fs afero.Fs, dir string) (*FsStorage, error) {
	if err := fs.MkdirAll(dir, 0755); err != nil {
		return nil, fmt.Errorf("mount %s: %w", dir, err)
	}
	info, err := fs.Stat(dir)
	if err != nil {
		return nil, fmt.Errorf("mount %s: %w", dir, err)
	}
	if !info.IsDir() {
		return nil, fmt.Errorf("mount %s: not a directory", dir)
	}
	return &FsStorage{Fs: fs, Dir: dir}, nil
}

// Exists implements Storage.
func (s *FsStorage) Exists(name string) (bool, error) {
	return afero.Exists(s.Fs, s.Path(name))
}

// Create implements Storage.
func (s *FsStorage) Create(name string) (Sink, error) {
	return s.Fs.OpenFile(s.Path(name), os.O_WRONLY|os.O_CREATE|os.O_EXCL, 0644)
}

// Remove implements Storage.
func (s *FsStorage) Remove(name string) error {
	return s.Fs.Remove(s.Path(name))
}

// Path returns the full path of a session file.
func (s *FsStorage) Path(name string) string {
	return filepath.Join(s.Dir, name)
}

// Open opens a session file for reading.
func (s *FsStorage) Open(name string) (afero.File, error) {
	return s.Fs.Open(s.Path(name))
}

// FileInfo describes a stored session file.
type FileInfo struct {
	Name string `json:"name"`
	Size int64  `json:"size"`
}

// List returns the regular files in the storage directory sorted by name.
func (s *FsStorage) List() ([]FileInfo, error) {
	infos, err := afero.ReadDir(s.Fs, s.Dir)
	if err != nil {
		return nil, err
	}
	files := make([]FileInfo, 0, len(infos))
	for _, info := range infos {
		if info.Mode().IsRegular() {
			files = append(files, FileInfo{Name: info.Name(), Size: info.Size()})
		}
	}
	sort.Slice(files, func(i, j int) bool { return files[i].Name < files[j].Name })
	return files, nil
}
