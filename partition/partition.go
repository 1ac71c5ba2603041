package partition

import (
	"fmt"
	"sync"
	"time"

	. "github.com/stevegt/goadapt"
	"github.com/stevegt/pippin/codec"
	"github.com/stevegt/pippin/history"
	"github.com/stevegt/pippin/storage"
)

// Partition is one open handle on a partition's on-disk files: a
// replayed history.Dag plus the session-local bookkeeping needed to
// obey the log ownership and snapshot policies (spec.md §4.6, §5).
type Partition struct {
	mu sync.Mutex

	cfg      Config
	provider storage.Provider

	dag *history.Dag

	// snapshotNum is the snapshot this handle is actually built on —
	// the one it loaded from (which may be lower than the highest
	// snapshot file present, if that one was corrupt and a fallback
	// was used), or the one its own Snapshot() last wrote. New commits
	// are bound to this number, not to the highest known one, so a
	// rejected snapshot never silently gains orphaned descendants
	// (spec.md §4.6 "Snapshot policy").
	snapshotNum     int
	nextSnapshotNum int
	nextLogNum      int

	// ownedLogs are log files created by this session; only these may
	// be appended to (spec.md §5 "Shared-resource policy").
	ownedLogs      map[string]bool
	currentLogName string

	bytesSinceSnapshot int64

	Report *LoadReport
}

// PartitionId returns the 40-bit partition identifier this handle
// uses for state-sum computation (cfg.PartitionId, unmasked).
func (p *Partition) PartitionId() uint64 {
	return p.cfg.PartitionId
}

// Dag exposes the replayed history DAG directly, for callers that
// need lower-level access (verify, CLI `log`).
func (p *Partition) Dag() *history.Dag {
	return p.dag
}

// Tips returns every current tip state.
func (p *Partition) Tips() []*history.PartState {
	return p.dag.Tips()
}

// Tip returns the single current tip, and ok=false if the partition
// currently has more than one (spec.md §6: "tip() → State |
// MultipleTips").
func (p *Partition) Tip() (st *history.PartState, ok bool) {
	tips := p.dag.Tips()
	if len(tips) != 1 {
		return nil, false
	}
	return tips[0], true
}

// Open discovers, loads, and replays the partition identified by cfg
// (spec.md §4.6 "Discovery"/"Load", §6 "open(dir, base_name)"). If
// replay leaves more than one tip, Open succeeds anyway: the caller
// must Merge before writing (spec.md §4.5).
func Open(cfg Config) (p *Partition, err error) {
	defer Return(&err)
	provider := cfg.provider()
	logger := cfg.logger()

	groups, err := Discover(provider, cfg.BaseName)
	Ck(err)

	body, commits, report, err := loadGroup(provider, groups)
	Ck(err)

	result := history.Replay(cfg.PartitionId, []codec.SnapshotBody{body}, commits)
	for _, d := range result.Dropped {
		report.Dropped = append(report.Dropped, fmt.Sprintf("commit number %d: %s", d.Record.Meta.CommitNumber, d.Reason))
	}
	for _, r := range result.Rejected {
		report.Rejected = append(report.Rejected, fmt.Sprintf("commit number %d: %v", r.Record.Meta.CommitNumber, r.Err))
	}
	for _, reason := range append(append([]string{}, report.Dropped...), report.Rejected...) {
		logger.Warn(reason)
	}

	chosen, ok := groups[report.UsedSnapshot]
	Assert(ok, "partition: used snapshot %d missing from discovered groups", report.UsedSnapshot)

	p = &Partition{
		cfg:             cfg,
		provider:        provider,
		dag:             result.Dag,
		snapshotNum:     report.UsedSnapshot,
		nextSnapshotNum: maxGroupNum(groups) + 1,
		nextLogNum:      maxLogNum(chosen) + 1,
		ownedLogs:       make(map[string]bool),
		Report:          report,
	}
	return p, nil
}

// Create writes a brand-new empty snapshot (ss0) and returns an open
// handle on it (spec.md §6: "create(dir, base_name, partition_id,
// repo_name) → Partition — writes ss0 empty snapshot").
func Create(cfg Config) (p *Partition, err error) {
	defer Return(&err)
	provider := cfg.provider()

	root := history.NewRoot(cfg.PartitionId, time.Now())
	dag := history.NewDag()
	dag.Add(root)

	p = &Partition{
		cfg:             cfg,
		provider:        provider,
		dag:             dag,
		snapshotNum:     0,
		nextSnapshotNum: 1,
		nextLogNum:      1,
		ownedLogs:       make(map[string]bool),
		Report:          &LoadReport{UsedSnapshot: 0},
	}
	err = p.writeSnapshot(0, []*history.PartState{root})
	Ck(err)
	return p, nil
}
