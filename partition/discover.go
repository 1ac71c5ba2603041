package partition

import (
	"fmt"
	"path"
	"regexp"
	"sort"
	"strconv"

	"github.com/stevegt/pippin/storage"
)

// Group is one snapshot number's files: the snapshot itself (if
// present) and every log file bound to it, keyed by its cl number
// (spec.md §4.6 "Discovery": "A partition has one or more snapshots
// and zero or more log files each bound to one snapshot number").
type Group struct {
	Num          int
	SnapshotName string // "" if this snapshot number has no snapshot file, only orphaned logs
	HasSnapshot  bool
	Logs         map[int]string // cl number -> file name
}

// splitBase separates a BaseName that may contain "/" into the
// subdirectory to list and the literal name prefix within it
// (spec.md §6: "BASENAME may contain /, denoting subdirectory").
func splitBase(base string) (subdir, name string) {
	subdir, name = path.Split(base)
	subdir = path.Clean(subdir)
	return
}

func snapshotPattern(name string) *regexp.Regexp {
	prefix := ""
	if name != "" {
		prefix = regexp.QuoteMeta(name) + "-?"
	}
	return regexp.MustCompile(`^` + prefix + `ss([0-9]+)\.pip$`)
}

func logPattern(name string) *regexp.Regexp {
	prefix := ""
	if name != "" {
		prefix = regexp.QuoteMeta(name) + "-?"
	}
	return regexp.MustCompile(`^` + prefix + `ss([0-9]+)-cl([0-9]+)\.piplog$`)
}

// SnapshotFileName builds the on-disk name for snapshot number n
// under base.
func SnapshotFileName(base string, n int) string {
	subdir, name := splitBase(base)
	fname := fmt.Sprintf("ss%d.pip", n)
	if name != "" {
		fname = fmt.Sprintf("%s-ss%d.pip", name, n)
	}
	return path.Join(subdir, fname)
}

// LogFileName builds the on-disk name for log number m bound to
// snapshot number n under base.
func LogFileName(base string, n, m int) string {
	subdir, name := splitBase(base)
	fname := fmt.Sprintf("ss%d-cl%d.piplog", n, m)
	if name != "" {
		fname = fmt.Sprintf("%s-ss%d-cl%d.piplog", name, n, m)
	}
	return path.Join(subdir, fname)
}

// Discover enumerates every snapshot and log file belonging to base
// within provider, grouped by snapshot number (spec.md §4.6
// "Discovery").
func Discover(provider storage.Provider, base string) (map[int]*Group, error) {
	subdir, name := splitBase(base)
	entries, err := provider.List(subdir)
	if err != nil {
		return nil, err
	}

	ssRe := snapshotPattern(name)
	clRe := logPattern(name)
	groups := make(map[int]*Group)

	groupFor := func(n int) *Group {
		g, ok := groups[n]
		if !ok {
			g = &Group{Num: n, Logs: make(map[int]string)}
			groups[n] = g
		}
		return g
	}

	for _, entry := range entries {
		if m := ssRe.FindStringSubmatch(entry); m != nil {
			n, _ := strconv.Atoi(m[1])
			g := groupFor(n)
			g.HasSnapshot = true
			g.SnapshotName = path.Join(subdir, entry)
			continue
		}
		if m := clRe.FindStringSubmatch(entry); m != nil {
			n, _ := strconv.Atoi(m[1])
			cl, _ := strconv.Atoi(m[2])
			g := groupFor(n)
			g.Logs[cl] = path.Join(subdir, entry)
		}
	}
	return groups, nil
}

// sortedSnapshotNumsDescending returns groups' keys, highest first —
// the order Load tries them in (spec.md §4.6 "Load": "Select the
// highest-numbered snapshot whose integrity sum verifies").
func sortedSnapshotNumsDescending(groups map[int]*Group) []int {
	nums := make([]int, 0, len(groups))
	for n, g := range groups {
		if g.HasSnapshot {
			nums = append(nums, n)
		}
	}
	sort.Sort(sort.Reverse(sort.IntSlice(nums)))
	return nums
}

func maxGroupNum(groups map[int]*Group) int {
	max := -1
	for n := range groups {
		if n > max {
			max = n
		}
	}
	return max
}

func maxLogNum(g *Group) int {
	max := -1
	for cl := range g.Logs {
		if cl > max {
			max = cl
		}
	}
	return max
}
