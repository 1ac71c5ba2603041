// Package storage implements Pippin's stream provider: the narrow
// capability set {list, open_read, create_append} the core engine
// consumes instead of talking to a filesystem directly (spec.md §6),
// plus an atomic-write capability the partition layer uses for
// snapshots.
package storage

import "io"

// Provider is the stream provider contract a partition is opened
// against. A filesystem Provider and an in-memory Provider both
// satisfy it, so the history/partition layers never import "os"
// directly.
type Provider interface {
	// OpenRead opens name for reading. The caller must Close it.
	OpenRead(name string) (io.ReadCloser, error)

	// CreateAppend opens name for appending, creating it if absent.
	// Used for commit-log files, which grow by appending records and
	// are never rewritten in place.
	CreateAppend(name string) (io.WriteCloser, error)

	// CreateAtomic begins an atomic write of name: nothing under that
	// name is visible until the returned AtomicWriter is committed.
	// Used for snapshot files, which are always written whole and
	// swapped into place (spec.md §4.6's snapshot policy).
	CreateAtomic(name string) (AtomicWriter, error)

	// List returns the names present directly under dir, in
	// unspecified order.
	List(dir string) ([]string, error)

	// Remove deletes name. Used only by compaction, on log/snapshot
	// files a caller has already determined are safe to remove
	// (partition.CompactionCandidates).
	Remove(name string) error
}

// AtomicWriter is a write handle that has no visible effect until
// Commit succeeds; Abort (or simply not calling Commit) leaves the
// namespace unchanged.
type AtomicWriter interface {
	io.Writer
	Commit() error
	Abort() error
}
