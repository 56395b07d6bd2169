// Package filestore persists uploaded files on local disk under a single
// uploads directory. Stored names are uuid-prefixed so several uploads of the
// same filename never collide.
package filestore

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"regexp"

	"github.com/google/uuid"
	"github.com/pkg/errors"

	"github.com/trezcool/alama/core"
)

var unsafeChars = regexp.MustCompile(`[^a-zA-Z0-9.\-_]+`)

type localStore struct {
	dir string
}

var _ core.FileStore = (*localStore)(nil) // interface compliance check

func NewLocalStore(dir string) (*localStore, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, errors.Wrap(err, "creating uploads dir")
	}
	return &localStore{dir: dir}, nil
}

func sanitizeFilename(name string) string {
	return unsafeChars.ReplaceAllString(filepath.Base(name), "_")
}

func (st *localStore) Save(name string, r io.Reader) (string, error) {
	stored := fmt.Sprintf("%s-%s", uuid.New().String(), sanitizeFilename(name))
	f, err := os.Create(filepath.Join(st.dir, stored))
	if err != nil {
		return "", errors.Wrap(err, "creating file")
	}
	defer func() { _ = f.Close() }()

	if _, err = io.Copy(f, r); err != nil {
		_ = os.Remove(f.Name())
		return "", errors.Wrap(err, "writing file")
	}
	return stored, nil
}

func (st *localStore) Open(stored string) (io.ReadCloser, error) {
	// stored names never contain separators; reject traversal attempts
	if stored != filepath.Base(stored) || stored == "" || stored == "." {
		return nil, errors.New("invalid file name")
	}
	f, err := os.Open(filepath.Join(st.dir, stored))
	if err != nil {
		if os.IsNotExist(err) {
			return nil, core.NewNotFoundError("file not found")
		}
		return nil, errors.Wrap(err, "opening file")
	}
	return f, nil
}

func (st *localStore) Delete(stored string) error {
	if stored == "" || stored != filepath.Base(stored) {
		return nil
	}
	if err := os.Remove(filepath.Join(st.dir, stored)); err != nil && !os.IsNotExist(err) {
		return errors.Wrap(err, "deleting file")
	}
	return nil
}
