package partition

// CompactionCandidate names a log file that is safe to fold into a
// snapshot and remove, annotated with whether this session owns it
// (spec.md §4.6 "Compaction": "logs bound to any snapshot number
// below the current one may be compacted away; only the owning
// session may safely remove a log it created").
type CompactionCandidate struct {
	Name        string
	SnapshotNum int
	LogNum      int
	OwnedHere   bool
}

// CompactionCandidates re-discovers the partition's on-disk files and
// lists every log bound to a snapshot number below the current one —
// the files a compaction pass could fold into a fresh snapshot and
// then remove. It does not remove anything itself.
func (p *Partition) CompactionCandidates() ([]CompactionCandidate, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	groups, err := Discover(p.provider, p.cfg.BaseName)
	if err != nil {
		return nil, err
	}

	var out []CompactionCandidate
	for n, g := range groups {
		if n >= p.snapshotNum {
			continue
		}
		for cl, name := range g.Logs {
			out = append(out, CompactionCandidate{
				Name:        name,
				SnapshotNum: n,
				LogNum:      cl,
				OwnedHere:   p.ownedLogs[name],
			})
		}
	}
	return out, nil
}

// Compact removes every candidate this session owns from a prior
// CompactionCandidates call. Logs not owned by this session are left
// alone even if passed in, per spec.md §5's shared-resource policy —
// only the creating session may safely judge a log file done with.
func (p *Partition) Compact(candidates []CompactionCandidate) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	for _, c := range candidates {
		if !c.OwnedHere || !p.ownedLogs[c.Name] {
			continue
		}
		if err := p.provider.Remove(c.Name); err != nil {
			return err
		}
		delete(p.ownedLogs, c.Name)
	}
	return nil
}
