package storage

import (
	"io"
	"os"
	"path/filepath"

	"github.com/google/renameio"
	"github.com/pkg/errors"
	. "github.com/stevegt/goadapt"
)

// FS is the default Provider, rooted at a directory on the local
// filesystem, using a WORM write pattern: write to a temp name and
// only expose the final name once the write is known good.
type FS struct {
	Dir string
}

// NewFS returns a Provider rooted at dir. dir need not exist yet:
// List reports a missing directory as empty, and CreateAppend and
// CreateAtomic create missing directories before writing.
func NewFS(dir string) *FS {
	return &FS{Dir: dir}
}

func (f *FS) abs(name string) string {
	return filepath.Join(f.Dir, name)
}

// OpenRead implements Provider.
func (f *FS) OpenRead(name string) (io.ReadCloser, error) {
	fh, err := os.Open(f.abs(name))
	if err != nil {
		return nil, errors.Wrapf(err, "storage: open %s", name)
	}
	return fh, nil
}

// CreateAppend implements Provider.
func (f *FS) CreateAppend(name string) (io.WriteCloser, error) {
	abs := f.abs(name)
	if err := os.MkdirAll(filepath.Dir(abs), 0755); err != nil {
		return nil, errors.Wrapf(err, "storage: mkdir for %s", name)
	}
	fh, err := os.OpenFile(abs, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0644)
	if err != nil {
		return nil, errors.Wrapf(err, "storage: create-append %s", name)
	}
	return fh, nil
}

// CreateAtomic implements Provider.
func (f *FS) CreateAtomic(name string) (AtomicWriter, error) {
	abs := f.abs(name)
	if err := os.MkdirAll(filepath.Dir(abs), 0755); err != nil {
		return nil, errors.Wrapf(err, "storage: mkdir for %s", name)
	}
	pf, err := renameio.TempFile(filepath.Dir(abs), abs)
	if err != nil {
		return nil, errors.Wrapf(err, "storage: tempfile for %s", name)
	}
	return &fsAtomicWriter{pf: pf}, nil
}

// List implements Provider.
func (f *FS) List(dir string) (names []string, err error) {
	defer Return(&err)
	entries, err := os.ReadDir(f.abs(dir))
	if os.IsNotExist(err) {
		return nil, nil
	}
	Ck(err)
	for _, e := range entries {
		if e.IsDir() {
			continue
		}
		names = append(names, e.Name())
	}
	return
}

// Remove implements Provider.
func (f *FS) Remove(name string) error {
	err := os.Remove(f.abs(name))
	if err != nil {
		return errors.Wrapf(err, "storage: remove %s", name)
	}
	return nil
}

type fsAtomicWriter struct {
	pf *renameio.PendingFile
}

func (w *fsAtomicWriter) Write(p []byte) (int, error) {
	return w.pf.Write(p)
}

// Commit finalizes the write by renaming the temp file into place.
func (w *fsAtomicWriter) Commit() error {
	return w.pf.CloseAtomicallyReplace()
}

// Abort discards the temp file without ever making it visible.
func (w *fsAtomicWriter) Abort() error {
	return w.pf.Cleanup()
}
