package storage

import (
	"io"
	"os"
	"path/filepath"
	"testing"
)

func tassert(t *testing.T, cond bool, txt string, args ...interface{}) {
	t.Helper()
	if !cond {
		t.Fatalf(txt, args...)
	}
}

func testProviders(t *testing.T) map[string]Provider {
	return map[string]Provider{
		"mem": NewMem(),
		"fs":  NewFS(t.TempDir()),
	}
}

func TestCreateAtomicNotVisibleUntilCommit(t *testing.T) {
	for label, p := range testProviders(t) {
		w, err := p.CreateAtomic("snapshot.0001.pip")
		tassert(t, err == nil, "%s: CreateAtomic: %v", label, err)
		_, err = w.Write([]byte("hello"))
		tassert(t, err == nil, "%s: Write: %v", label, err)

		_, err = p.OpenRead("snapshot.0001.pip")
		tassert(t, err != nil, "%s: expected read to fail before commit", label)

		err = w.Commit()
		tassert(t, err == nil, "%s: Commit: %v", label, err)

		rc, err := p.OpenRead("snapshot.0001.pip")
		tassert(t, err == nil, "%s: OpenRead after commit: %v", label, err)
		defer rc.Close()
		buf, err := io.ReadAll(rc)
		tassert(t, err == nil, "%s: ReadAll: %v", label, err)
		tassert(t, string(buf) == "hello", "%s: got %q", label, buf)
	}
}

func TestCreateAtomicAbortLeavesNothing(t *testing.T) {
	for label, p := range testProviders(t) {
		w, err := p.CreateAtomic("partition.0001.piplog")
		tassert(t, err == nil, "%s: CreateAtomic: %v", label, err)
		_, err = w.Write([]byte("junk"))
		tassert(t, err == nil, "%s: Write: %v", label, err)
		err = w.Abort()
		tassert(t, err == nil, "%s: Abort: %v", label, err)

		_, err = p.OpenRead("partition.0001.piplog")
		tassert(t, err != nil, "%s: expected no file after abort", label)
	}
}

func TestCreateAppendGrowsAcrossCalls(t *testing.T) {
	for label, p := range testProviders(t) {
		w1, err := p.CreateAppend("partition.0001.piplog")
		tassert(t, err == nil, "%s: CreateAppend: %v", label, err)
		_, err = w1.Write([]byte("AAA"))
		tassert(t, err == nil, "%s: Write: %v", label, err)
		tassert(t, w1.Close() == nil, "%s: Close", label)

		w2, err := p.CreateAppend("partition.0001.piplog")
		tassert(t, err == nil, "%s: CreateAppend 2: %v", label, err)
		_, err = w2.Write([]byte("BBB"))
		tassert(t, err == nil, "%s: Write 2: %v", label, err)
		tassert(t, w2.Close() == nil, "%s: Close 2", label)

		rc, err := p.OpenRead("partition.0001.piplog")
		tassert(t, err == nil, "%s: OpenRead: %v", label, err)
		defer rc.Close()
		buf, err := io.ReadAll(rc)
		tassert(t, err == nil, "%s: ReadAll: %v", label, err)
		tassert(t, string(buf) == "AAABBB", "%s: got %q", label, buf)
	}
}

func TestListAndRemove(t *testing.T) {
	for label, p := range testProviders(t) {
		w, err := p.CreateAtomic("a.pip")
		tassert(t, err == nil, "%s: CreateAtomic a: %v", label, err)
		tassert(t, w.Commit() == nil, "%s: commit a", label)

		w2, err := p.CreateAtomic("b.pip")
		tassert(t, err == nil, "%s: CreateAtomic b: %v", label, err)
		tassert(t, w2.Commit() == nil, "%s: commit b", label)

		names, err := p.List(".")
		tassert(t, err == nil, "%s: List: %v", label, err)
		tassert(t, len(names) == 2, "%s: expected 2 names, got %v", label, names)

		tassert(t, p.Remove("a.pip") == nil, "%s: Remove a", label)
		names, err = p.List(".")
		tassert(t, err == nil, "%s: List after remove: %v", label, err)
		tassert(t, len(names) == 1, "%s: expected 1 name, got %v", label, names)
	}
}

func TestFSListOnMissingDirReturnsEmpty(t *testing.T) {
	p := NewFS(filepath.Join(t.TempDir(), "does-not-exist"))
	names, err := p.List(".")
	tassert(t, err == nil, "List: %v", err)
	tassert(t, len(names) == 0, "expected no names, got %v", names)
}

func TestFSCreateAppendCreatesFile(t *testing.T) {
	dir := t.TempDir()
	p := NewFS(dir)
	w, err := p.CreateAppend("log.piplog")
	tassert(t, err == nil, "CreateAppend: %v", err)
	_, err = w.Write([]byte("x"))
	tassert(t, err == nil, "Write: %v", err)
	tassert(t, w.Close() == nil, "Close")

	_, err = os.Stat(filepath.Join(dir, "log.piplog"))
	tassert(t, err == nil, "stat: %v", err)
}
