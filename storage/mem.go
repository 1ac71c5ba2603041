package storage

import (
	"bytes"
	"fmt"
	"io"
	"path"
	"sort"
	"sync"
)

// Mem is an in-memory Provider, used by the packages' own tests in
// place of a real filesystem (spec.md §6: "in-memory implementations
// are used in tests").
type Mem struct {
	mu    sync.Mutex
	files map[string][]byte
}

// NewMem returns an empty in-memory Provider.
func NewMem() *Mem {
	return &Mem{files: make(map[string][]byte)}
}

// OpenRead implements Provider.
func (m *Mem) OpenRead(name string) (io.ReadCloser, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	buf, ok := m.files[name]
	if !ok {
		return nil, fmt.Errorf("storage: no such file: %s", name)
	}
	return io.NopCloser(bytes.NewReader(buf)), nil
}

// CreateAppend implements Provider.
func (m *Mem) CreateAppend(name string) (io.WriteCloser, error) {
	return &memAppendWriter{m: m, name: name}, nil
}

// CreateAtomic implements Provider.
func (m *Mem) CreateAtomic(name string) (AtomicWriter, error) {
	return &memAtomicWriter{m: m, name: name}, nil
}

// List implements Provider.
func (m *Mem) List(dir string) ([]string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	want := path.Clean(dir)
	var names []string
	for name := range m.files {
		if path.Dir(path.Clean(name)) == want {
			names = append(names, path.Base(name))
		}
	}
	sort.Strings(names)
	return names, nil
}

// Remove implements Provider.
func (m *Mem) Remove(name string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.files[name]; !ok {
		return fmt.Errorf("storage: no such file: %s", name)
	}
	delete(m.files, name)
	return nil
}

type memAppendWriter struct {
	m    *Mem
	name string
}

func (w *memAppendWriter) Write(p []byte) (int, error) {
	w.m.mu.Lock()
	defer w.m.mu.Unlock()
	w.m.files[w.name] = append(w.m.files[w.name], p...)
	return len(p), nil
}

func (w *memAppendWriter) Close() error { return nil }

type memAtomicWriter struct {
	m    *Mem
	name string
	buf  bytes.Buffer
}

func (w *memAtomicWriter) Write(p []byte) (int, error) {
	return w.buf.Write(p)
}

// Commit publishes the buffered bytes under name, all at once.
func (w *memAtomicWriter) Commit() error {
	w.m.mu.Lock()
	defer w.m.mu.Unlock()
	w.m.files[w.name] = append([]byte{}, w.buf.Bytes()...)
	return nil
}

// Abort discards the buffered bytes without publishing them.
func (w *memAtomicWriter) Abort() error {
	w.buf.Reset()
	return nil
}
