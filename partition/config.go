// Package partition implements Pippin's partition engine: discovery
// of on-disk snapshot/log files, loading and replaying them into a
// history.Dag, commit creation from in-memory mutations, the
// owned-in-session log write policy, the snapshot policy, compaction
// candidate listing, and a directory-change watcher (spec.md §4.6,
// §5, §7).
package partition

import (
	log "github.com/sirupsen/logrus"
	"github.com/stevegt/pippin/storage"
)

// DefaultSnapshotThreshold is the aggregate log-bytes-since-snapshot
// size at which Commit writes a fresh snapshot automatically, absent
// an explicit Config.SnapshotThreshold.
const DefaultSnapshotThreshold = 1 << 20 // 1 MiB

// Config identifies one partition's on-disk location and identity
// (spec.md §7's "Configuration" — a plain struct passed to
// Open/Create, no external config file format in the core).
type Config struct {
	// Dir is the directory holding the partition's files. Ignored if
	// Provider is set explicitly.
	Dir string
	// BaseName may contain "/" to nest the partition under a
	// subdirectory of Dir (spec.md §6).
	BaseName string
	// PartitionId is this partition's 40-bit identifier (spec.md §3).
	// It is not masked: the full value enters every state sum, and
	// element id allocation asserts that it fits in 40 bits.
	PartitionId uint64
	// RepoName is stored in every file's header (spec.md §4.2).
	RepoName string
	// SnapshotThreshold is the aggregate log-bytes-since-snapshot size
	// that triggers an automatic snapshot on commit. Zero means
	// DefaultSnapshotThreshold.
	SnapshotThreshold int64
	// Provider is the stream provider to use. If nil, a
	// storage.FS rooted at Dir is constructed.
	Provider storage.Provider
}

func (c Config) provider() storage.Provider {
	if c.Provider != nil {
		return c.Provider
	}
	return storage.NewFS(c.Dir)
}

func (c Config) threshold() int64 {
	if c.SnapshotThreshold > 0 {
		return c.SnapshotThreshold
	}
	return DefaultSnapshotThreshold
}

func (c Config) logger() *log.Entry {
	return log.WithField("partition", c.BaseName)
}
