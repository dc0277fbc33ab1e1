package mlworkflow

import (
	"errors"
	"os"
	"path/filepath"
)

// DirBlobStore keeps each side value as one plain file in a directory,
// under exactly its name. This is the default store of a collection:
// side values land beside the log file where they can be inspected and
// copied with ordinary tools.
type DirBlobStore struct {
	dir string
}

func NewDirBlobStore(dir string) *DirBlobStore {
	return &DirBlobStore{dir: dir}
}

func (s *DirBlobStore) Put(name string, data []byte) error {
	f, err := os.Create(filepath.Join(s.dir, name))
	if err != nil {
		return err
	}
	var ok bool
	defer closeAndDeleteUnlessOK(f, &ok)
	if _, err := f.Write(data); err != nil {
		return err
	}
	if err := f.Sync(); err != nil {
		return err
	}
	if err := f.Close(); err != nil {
		return err
	}
	ok = true
	return nil
}

func (s *DirBlobStore) Get(name string) ([]byte, error) {
	data, err := os.ReadFile(filepath.Join(s.dir, name))
	if errors.Is(err, os.ErrNotExist) {
		return nil, keyErrf(name)
	}
	return data, err
}

func (s *DirBlobStore) Close() error { return nil }
