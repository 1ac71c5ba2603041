package partition

import (
	"bytes"
	"io"

	"github.com/pkg/errors"
	. "github.com/stevegt/goadapt"
	"github.com/stevegt/pippin/codec"
	"github.com/stevegt/pippin/element"
	"github.com/stevegt/pippin/history"
)

// writeSnapshot encodes tips as a fresh snapshot at number n, publishes
// it atomically under its final name, then re-reads the published file
// to verify it. p.snapshotNum and p.bytesSinceSnapshot change only when
// that verification succeeds; a file that fails verification has
// already been published and is left in place.
func (p *Partition) writeSnapshot(n int, tips []*history.PartState) (err error) {
	defer Return(&err)

	name := SnapshotFileName(p.cfg.BaseName, n)
	w, err := p.provider.CreateAtomic(name)
	Ck(err)

	body := snapshotBodyFromTips(tips)
	_, err = codec.WriteHeader(w, codec.KindSnapshot, p.cfg.RepoName, nil)
	if err != nil {
		w.Abort()
		return errors.Wrapf(err, "partition: writing snapshot header %s", name)
	}
	_, err = codec.EncodeSnapshotBody(w, body)
	if err != nil {
		w.Abort()
		return errors.Wrapf(err, "partition: encoding snapshot body %s", name)
	}
	if err = w.Commit(); err != nil {
		return errors.Wrapf(err, "partition: committing snapshot %s", name)
	}

	// Re-open and re-read to verify the durable copy, per spec.md §5's
	// atomic-append verification discipline.
	rc, err := p.provider.OpenRead(name)
	Ck(err)
	defer rc.Close()
	if _, err = codec.ReadHeader(rc, codec.KindSnapshot); err != nil {
		return errors.Wrapf(err, "partition: verifying snapshot %s", name)
	}
	if _, err = codec.DecodeSnapshotBody(rc); err != nil {
		return errors.Wrapf(err, "partition: verifying snapshot %s", name)
	}

	p.snapshotNum = n
	p.bytesSinceSnapshot = 0
	return nil
}

// snapshotBodyFromTips packs tips[0]'s elements, meta, parent list and
// state sum into one SnapshotBody. Any further tips are ignored; a
// SnapshotBody holds a single meta. Snapshot refuses a multi-tip
// partition (see ErrMultipleTips in snapshot.go).
func snapshotBodyFromTips(tips []*history.PartState) codec.SnapshotBody {
	Assert(len(tips) >= 1, "partition: snapshotBodyFromTips needs at least one tip")
	t := tips[0]
	return codec.SnapshotBody{
		Meta:     t.Meta,
		Parents:  t.Parents,
		Elements: elementsOf(t),
		StateSum: t.Sum,
	}
}

// elementsOf flattens a PartState's live element set into the record
// slice SnapshotBody stores on disk.
func elementsOf(t *history.PartState) []codec.ElementRecord {
	var out []codec.ElementRecord
	t.Set.Each(func(e element.Element) {
		out = append(out, codec.ElementRecord{Id: uint64(e.Id), Payload: e.Payload, Sum: e.Sum})
	})
	return out
}

// ensureOwnedLog returns the name of the log file this session should
// append the next commit to, creating a fresh owned log if none is
// open yet (spec.md §5: "only logs created by this session may be
// written; pre-existing logs are read-only"). The log number is
// resolved from a fresh Discover right before creating, not from a
// number cached at Open time: two handles opened before either has
// committed would otherwise both compute the same "next" number and
// collide on the same file the moment they first write.
func (p *Partition) ensureOwnedLog() (name string, err error) {
	defer Return(&err)
	if p.currentLogName != "" {
		return p.currentLogName, nil
	}

	next := p.nextLogNum
	groups, derr := Discover(p.provider, p.cfg.BaseName)
	if derr == nil {
		if g, ok := groups[p.snapshotNum]; ok {
			if fresh := maxLogNum(g) + 1; fresh > next {
				next = fresh
			}
		}
	}

	for {
		name = LogFileName(p.cfg.BaseName, p.snapshotNum, next)
		if p.logExists(name) {
			next++
			continue
		}
		break
	}
	p.nextLogNum = next + 1

	w, err := p.provider.CreateAtomic(name)
	Ck(err)
	_, err = codec.WriteHeader(w, codec.KindCommitLog, p.cfg.RepoName, nil)
	if err != nil {
		w.Abort()
		return "", errors.Wrapf(err, "partition: writing log header %s", name)
	}
	if err = codec.EncodeCommitLogOpen(w); err != nil {
		w.Abort()
		return "", errors.Wrapf(err, "partition: writing log open marker %s", name)
	}
	if err = w.Commit(); err != nil {
		return "", errors.Wrapf(err, "partition: creating log %s", name)
	}

	p.ownedLogs[name] = true
	p.currentLogName = name
	return name, nil
}

// logExists reports whether name is already present according to the
// provider, the check ensureOwnedLog uses to avoid overwriting a
// sibling session's just-created log.
func (p *Partition) logExists(name string) bool {
	rc, err := p.provider.OpenRead(name)
	if err != nil {
		return false
	}
	rc.Close()
	return true
}

// appendCommit appends rec to the session's owned log, verifying the
// write by re-reading the whole file back and re-decoding every
// record (spec.md §5's "atomic append verified by re-read"). On
// verification failure it abandons the current log and opens a fresh
// one, per spec.md's sibling-log fallback.
func (p *Partition) appendCommit(rec codec.CommitRecord) (n int64, err error) {
	defer Return(&err)

	name, err := p.ensureOwnedLog()
	Ck(err)
	if !p.ownedLogs[name] {
		return 0, &ErrPolicyViolation{LogName: name}
	}

	var buf bytes.Buffer
	_, err = codec.EncodeCommitRecord(&buf, rec)
	Ck(err)

	w, err := p.provider.CreateAppend(name)
	Ck(err)
	written, err := w.Write(buf.Bytes())
	if err == nil {
		err = w.Close()
	} else {
		w.Close()
	}
	if err != nil {
		return 0, errors.Wrapf(err, "partition: appending commit to %s", name)
	}

	if verr := p.verifyLog(name); verr != nil {
		log := p.cfg.logger()
		log.Warnf("owned log %s failed re-read verification, opening a fresh log: %v", name, verr)
		p.currentLogName = ""
		delete(p.ownedLogs, name)
		// Retry once against a brand-new log file.
		newName, err2 := p.ensureOwnedLog()
		Ck(err2)
		w2, err2 := p.provider.CreateAppend(newName)
		Ck(err2)
		written, err2 = w2.Write(buf.Bytes())
		if err2 == nil {
			err2 = w2.Close()
		} else {
			w2.Close()
		}
		if err2 != nil {
			return 0, errors.Wrapf(err2, "partition: appending commit to fallback log %s", newName)
		}
		if verr2 := p.verifyLog(newName); verr2 != nil {
			return 0, errors.Wrapf(verr2, "partition: fallback log %s also failed verification", newName)
		}
	}

	return int64(written), nil
}

// verifyLog re-reads name from the top and decodes every record in
// it, returning the first decode error encountered (including a
// truncated tail on the record it just appended).
func (p *Partition) verifyLog(name string) error {
	rc, err := p.provider.OpenRead(name)
	if err != nil {
		return err
	}
	defer rc.Close()

	if _, err = codec.ReadHeader(rc, codec.KindCommitLog); err != nil {
		return err
	}
	if err = codec.DecodeCommitLogOpen(rc); err != nil {
		return err
	}
	for {
		_, derr := codec.DecodeCommitRecord(rc)
		if derr == io.EOF {
			return nil
		}
		if derr != nil {
			return derr
		}
	}
}
