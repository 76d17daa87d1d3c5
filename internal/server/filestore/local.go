package filestore

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"

	"github.com/dmitrijs2005/healthvault/internal/common"
	"github.com/dmitrijs2005/healthvault/internal/filex"
)

// LocalStore writes files under a root directory.
type LocalStore struct {
	root string
}

func NewLocalStore(dir string) (*LocalStore, error) {
	root, err := filex.EnsureDir(dir)
	if err != nil {
		return nil, err
	}
	return &LocalStore{root: root}, nil
}

func (s *LocalStore) path(ref string) (string, error) {
	if err := validRef(ref); err != nil {
		return "", err
	}
	return filepath.Join(s.root, filepath.FromSlash(ref)), nil
}

// Store writes to a temp file and renames it into place so readers never see
// a partial file.
func (s *LocalStore) Store(_ context.Context, ownerID string, data []byte, contentType string) (string, error) {
	ref := NewKey(ownerID, contentType)
	p, err := s.path(ref)
	if err != nil {
		return "", err
	}
	if _, err := filex.EnsureDir(filepath.Dir(p)); err != nil {
		return "", err
	}

	tmp, err := os.CreateTemp(filepath.Dir(p), ".upload-*")
	if err != nil {
		return "", fmt.Errorf("create temp: %w", err)
	}
	defer func() { _, _ = filex.RemoveIfExists(tmp.Name()) }()

	if _, err := tmp.Write(data); err != nil {
		_ = tmp.Close()
		return "", fmt.Errorf("write %s: %w", ref, err)
	}
	if err := tmp.Close(); err != nil {
		return "", fmt.Errorf("close %s: %w", ref, err)
	}
	if err := os.Rename(tmp.Name(), p); err != nil {
		return "", fmt.Errorf("rename %s: %w", ref, err)
	}
	return ref, nil
}

func (s *LocalStore) Remove(_ context.Context, ref string) (bool, error) {
	p, err := s.path(ref)
	if err != nil {
		return false, err
	}
	return filex.RemoveIfExists(p)
}

func (s *LocalStore) Read(_ context.Context, ref string) ([]byte, error) {
	p, err := s.path(ref)
	if err != nil {
		return nil, err
	}
	data, err := os.ReadFile(p)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, common.ErrorNotFound
		}
		return nil, fmt.Errorf("read %s: %w", ref, err)
	}
	return data, nil
}

func (s *LocalStore) Exists(_ context.Context, ref string) (bool, error) {
	p, err := s.path(ref)
	if err != nil {
		return false, err
	}
	_, err = os.Stat(p)
	switch {
	case err == nil:
		return true, nil
	case errors.Is(err, fs.ErrNotExist):
		return false, nil
	default:
		return false, fmt.Errorf("stat %s: %w", ref, err)
	}
}
