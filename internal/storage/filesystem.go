package storage

import (
	"context"
	"errors"
	"io/fs"
	"os"
	"path/filepath"
	"sort"

	"github.com/rotisserie/eris"
)

// FSStore maps containers to directories under a root.
// Blob names may contain '/' and are stored as nested paths.
type FSStore struct {
	root string
}

// NewFSStore creates a filesystem store rooted at dir, creating it if needed
func NewFSStore(dir string) (*FSStore, error) {
	abs, err := filepath.Abs(dir)
	if err != nil {
		return nil, eris.Wrapf(err, "failed to resolve storage root %s", dir)
	}
	if err := os.MkdirAll(abs, 0755); err != nil {
		return nil, eris.Wrapf(err, "failed to create storage root %s", abs)
	}
	return &FSStore{root: abs}, nil
}

func (s *FSStore) blobPath(container, name string) string {
	return filepath.Join(s.root, container, filepath.FromSlash(name))
}

// Get reads a blob from disk
func (s *FSStore) Get(_ context.Context, container, name string) ([]byte, error) {
	if err := ValidateName(container, name); err != nil {
		return nil, err
	}
	data, err := os.ReadFile(s.blobPath(container, name))
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, eris.Wrapf(ErrNotFound, "%s/%s", container, name)
		}
		return nil, eris.Wrapf(err, "failed to read %s/%s", container, name)
	}
	return data, nil
}

// Put writes a blob atomically by renaming a temp file into place
func (s *FSStore) Put(_ context.Context, container, name string, data []byte) error {
	if err := ValidateName(container, name); err != nil {
		return err
	}
	target := s.blobPath(container, name)
	if err := os.MkdirAll(filepath.Dir(target), 0755); err != nil {
		return eris.Wrapf(err, "failed to create directory for %s/%s", container, name)
	}

	tmp, err := os.CreateTemp(filepath.Dir(target), ".upload-*")
	if err != nil {
		return eris.Wrapf(err, "failed to create temp file for %s/%s", container, name)
	}
	tmpName := tmp.Name()
	if _, err := tmp.Write(data); err != nil {
		_ = tmp.Close()
		_ = os.Remove(tmpName)
		return eris.Wrapf(err, "failed to write %s/%s", container, name)
	}
	if err := tmp.Close(); err != nil {
		_ = os.Remove(tmpName)
		return eris.Wrapf(err, "failed to close %s/%s", container, name)
	}
	if err := os.Rename(tmpName, target); err != nil {
		_ = os.Remove(tmpName)
		return eris.Wrapf(err, "failed to move %s/%s into place", container, name)
	}
	return nil
}

// List walks a container directory and returns slash-separated blob names
func (s *FSStore) List(_ context.Context, container string) ([]BlobInfo, error) {
	dir := filepath.Join(s.root, container)
	info, err := os.Stat(dir)
	if err != nil || !info.IsDir() {
		return nil, eris.Wrapf(ErrNotFound, "container %s", container)
	}

	var out []BlobInfo
	err = filepath.WalkDir(dir, func(p string, d fs.DirEntry, walkErr error) error {
		if walkErr != nil {
			return walkErr
		}
		if d.IsDir() || filepath.Base(p)[0] == '.' {
			return nil
		}
		rel, err := filepath.Rel(dir, p)
		if err != nil {
			return err
		}
		fi, err := d.Info()
		if err != nil {
			return err
		}
		out = append(out, BlobInfo{Name: filepath.ToSlash(rel), Size: fi.Size()})
		return nil
	})
	if err != nil {
		return nil, eris.Wrapf(err, "failed to list container %s", container)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out, nil
}
