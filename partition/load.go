package partition

import (
	"io"
	"sort"

	log "github.com/sirupsen/logrus"
	"github.com/pkg/errors"
	. "github.com/stevegt/goadapt"
	"github.com/stevegt/pippin/codec"
	"github.com/stevegt/pippin/storage"
)

// LoadReport carries the diagnostics from one Load/Open call: which
// snapshot was used, which (if any) were tried and rejected first,
// which logs were truncated, and what history.Replay dropped or
// rejected (spec.md §7: "every dropped record is reported").
type LoadReport struct {
	UsedSnapshot     int
	SkippedSnapshots []int // higher-numbered snapshots tried and rejected before UsedSnapshot
	TruncatedLogs    []string
	Dropped          []string // human-readable, from history.ReplayResult.Dropped
	Rejected         []string // human-readable, from history.ReplayResult.Rejected and bad snapshots
}

// decodeSnapshotFile reads and verifies the Header and SnapshotBody
// stored at name.
func decodeSnapshotFile(provider storage.Provider, name string) (body codec.SnapshotBody, err error) {
	defer Return(&err)
	rc, err := provider.OpenRead(name)
	Ck(err)
	defer rc.Close()

	_, err = codec.ReadHeader(rc, codec.KindSnapshot)
	Ck(err)
	body, err = codec.DecodeSnapshotBody(rc)
	Ck(err)
	return body, nil
}

// decodeLogFile reads every commit record out of the log stored at
// name, tolerating a corrupt or truncated tail: everything up to the
// last intact integrity sum is kept, and truncated reports whether
// anything had to be discarded (spec.md §4.6 "Load").
func decodeLogFile(provider storage.Provider, name string) (records []codec.CommitRecord, truncated bool, err error) {
	rc, err := provider.OpenRead(name)
	if err != nil {
		return nil, false, err
	}
	defer rc.Close()

	if _, err = codec.ReadHeader(rc, codec.KindCommitLog); err != nil {
		return nil, false, err
	}
	if err = codec.DecodeCommitLogOpen(rc); err != nil {
		return nil, false, err
	}

	for {
		rec, derr := codec.DecodeCommitRecord(rc)
		if derr == io.EOF {
			break
		}
		if derr != nil {
			log.WithField("log", name).Warnf("truncated log, stopping replay of this file: %v", derr)
			return records, true, nil
		}
		records = append(records, rec)
	}
	return records, false, nil
}

// loadGroup decodes the highest-numbered snapshot that verifies (trying
// progressively older snapshots on failure, per spec.md §4.6) and every log bound
// to that snapshot number or any higher one. A fallback to an older
// snapshot J after rejecting corrupt snapshots up to K must still
// replay the logs recorded between J and K — those commits happened
// after J was written but were never recaptured by a later snapshot,
// so dropping them would silently lose history (spec.md §4.6 scenario
// 4, mirroring the original's load_latest scanning `num..ss_len`).
func loadGroup(provider storage.Provider, groups map[int]*Group) (body codec.SnapshotBody, logs []codec.CommitRecord, report *LoadReport, err error) {
	report = &LoadReport{}
	nums := sortedSnapshotNumsDescending(groups)
	if len(nums) == 0 {
		return codec.SnapshotBody{}, nil, report, &ErrNoPartition{}
	}

	var chosen *Group
	for _, n := range nums {
		g := groups[n]
		b, derr := decodeSnapshotFile(provider, g.SnapshotName)
		if derr != nil {
			log.WithField("snapshot", g.SnapshotName).Warnf("snapshot rejected, falling back: %v", derr)
			report.SkippedSnapshots = append(report.SkippedSnapshots, n)
			report.Rejected = append(report.Rejected, g.SnapshotName+": "+derr.Error())
			continue
		}
		chosen = g
		body = b
		report.UsedSnapshot = n
		break
	}
	if chosen == nil {
		return codec.SnapshotBody{}, nil, report, errors.Wrap(&ErrNoPartition{}, "every discovered snapshot failed to verify")
	}

	for n := report.UsedSnapshot; n <= maxGroupNum(groups); n++ {
		g, ok := groups[n]
		if !ok {
			continue
		}
		clNums := make([]int, 0, len(g.Logs))
		for cl := range g.Logs {
			clNums = append(clNums, cl)
		}
		sort.Ints(clNums)
		for _, cl := range clNums {
			name := g.Logs[cl]
			recs, truncated, derr := decodeLogFile(provider, name)
			if derr != nil {
				log.WithField("log", name).Warnf("log unreadable, skipping: %v", derr)
				report.Rejected = append(report.Rejected, name+": "+derr.Error())
				continue
			}
			if truncated {
				report.TruncatedLogs = append(report.TruncatedLogs, name)
			}
			logs = append(logs, recs...)
		}
	}
	return body, logs, report, nil
}
