package partition

import (
	"path/filepath"

	"github.com/fsnotify/fsnotify"
	. "github.com/stevegt/goadapt"
)

// Watcher is an advisory notifier for files appearing under a
// partition's directory — another handle's new log or snapshot
// showing up on disk. It does not itself reload anything; a caller
// that wants to pick up a sibling's writes still calls Open again
// (spec.md §9: "watching is an optional convenience, not a
// correctness requirement").
type Watcher struct {
	fsw    *fsnotify.Watcher
	Events chan fsnotify.Event
	Errors chan error
}

// WatchDir opens an fsnotify watch on the directory holding base
// (spec.md §4.6's discovery directory, resolved the same way Discover
// resolves it for BaseNames that nest under a subdirectory).
func WatchDir(dir, base string) (w *Watcher, err error) {
	defer Return(&err)
	subdir, _ := splitBase(base)

	fsw, err := fsnotify.NewWatcher()
	Ck(err)

	target := filepath.Join(dir, subdir)
	if err = fsw.Add(target); err != nil {
		fsw.Close()
		return nil, err
	}

	w = &Watcher{fsw: fsw, Events: fsw.Events, Errors: fsw.Errors}
	return w, nil
}

// Close stops watching.
func (w *Watcher) Close() error {
	return w.fsw.Close()
}
