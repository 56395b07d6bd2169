package core

import "io"

// FileStore is any service that can persist uploaded files and serve them
// back. Save returns an opaque stored name; callers keep the original
// filename themselves (downloads and change detection need it).
type FileStore interface {
	Save(name string, r io.Reader) (string, error)
	Open(stored string) (io.ReadCloser, error)
	Delete(stored string) error
}
