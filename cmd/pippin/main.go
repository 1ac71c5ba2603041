// Command pippin is an example CLI consumer of the partition engine:
// get/put/del/list/log/merge/snapshot/verify/compact over a single
// on-disk partition, driven by docopt argument parsing and a logrus
// caller-aware formatter.
package main

import (
	"fmt"
	"io/ioutil"
	"os"
	"runtime"
	"sort"
	"strconv"
	"strings"

	"github.com/docopt/docopt-go"
	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"
	log "github.com/sirupsen/logrus"

	"github.com/stevegt/pippin/codec"
	"github.com/stevegt/pippin/element"
	"github.com/stevegt/pippin/mergedrv"
	"github.com/stevegt/pippin/partition"
)

func init() {
	if os.Getenv("DEBUG") == "1" {
		log.SetLevel(log.DebugLevel)
	}
	logrus.SetReportCaller(true)
	formatter := &logrus.TextFormatter{
		CallerPrettyfier: caller(),
		FieldMap: logrus.FieldMap{
			logrus.FieldKeyFile: "caller",
		},
	}
	formatter.TimestampFormat = "15:04:05.999999999"
	logrus.SetFormatter(formatter)
}

// caller mirrors cmd/pb's CallerPrettyfier: a bare "/path/to/file.go:line"
// instead of logrus's default fully-qualified function name, which is
// mostly noise for a single-binary CLI.
func caller() func(*runtime.Frame) (function string, file string) {
	return func(f *runtime.Frame) (function string, file string) {
		p, _ := os.Getwd()
		return "", fmt.Sprintf("%s:%d", strings.TrimPrefix(f.File, p), f.Line)
	}
}

// Exit codes: 0 ok, 1 usage, 2 corruption, 3 I/O.
const (
	exitOK         = 0
	exitUsage      = 1
	exitCorruption = 2
	exitIO         = 3
)

type Opts struct {
	Init     bool
	Get      bool
	Put      bool
	Del      bool
	List     bool
	Log      bool
	Merge    bool
	Snapshot bool
	Verify   bool
	Compact  bool

	Partid string
	Id     string
	Prefer string `docopt:"--prefer"`
}

func main() {
	os.Exit(run())
}

func run() (rc int) {
	usage := `pippin

Usage:
  pippin init <partid>
  pippin get <id>
  pippin put
  pippin del <id>
  pippin list
  pippin log
  pippin merge [--prefer=<side>]
  pippin snapshot
  pippin verify
  pippin compact

Options:
  -h --help        Show this screen.
  --version        Show version.
  --prefer=<side>   Which side wins an unresolved merge conflict: left or right [default: left]

Environment:
  PIPPIN_DIR   directory holding the partition's files (default: current directory)
  PIPPIN_BASE  partition base name (default: "pippin")
`
	parser := &docopt.Parser{OptionsFirst: false}
	o, err := parser.ParseArgs(usage, os.Args[1:], "0.0")
	if err != nil {
		log.Error(err)
		return exitUsage
	}
	var opts Opts
	err = o.Bind(&opts)
	if err != nil {
		log.Error(err)
		return exitUsage
	}
	log.Debug(opts)

	switch true {
	case opts.Init:
		return cmdInit(opts.Partid)
	case opts.Get:
		return cmdGet(opts.Id)
	case opts.Put:
		return cmdPut()
	case opts.Del:
		return cmdDel(opts.Id)
	case opts.List:
		return cmdList()
	case opts.Log:
		return cmdLog()
	case opts.Merge:
		return cmdMerge(opts.Prefer)
	case opts.Snapshot:
		return cmdSnapshot()
	case opts.Verify:
		return cmdVerify()
	case opts.Compact:
		return cmdCompact()
	}
	return exitUsage
}

func partDir() string {
	dir := os.Getenv("PIPPIN_DIR")
	if dir == "" {
		dir, _ = os.Getwd()
	}
	return dir
}

func baseName() string {
	base := os.Getenv("PIPPIN_BASE")
	if base == "" {
		base = "pippin"
	}
	return base
}

func cfg() partition.Config {
	return partition.Config{
		Dir:      partDir(),
		BaseName: baseName(),
		RepoName: baseName(),
	}
}

func parsePartId(s string) (uint64, error) {
	s = strings.TrimPrefix(s, "0x")
	id, err := strconv.ParseUint(s, 16, 64)
	if err != nil {
		return 0, fmt.Errorf("invalid partition id %q: %w", s, err)
	}
	if id > uint64(element.MaxPartitionId) {
		return 0, fmt.Errorf("partition id %#x exceeds 40 bits", id)
	}
	return id, nil
}

func parseElementId(s string) (element.Id, error) {
	s = strings.TrimPrefix(s, "0x")
	v, err := strconv.ParseUint(s, 16, 64)
	if err != nil {
		return 0, fmt.Errorf("invalid element id %q: %w", s, err)
	}
	return element.Id(v), nil
}

func cmdInit(partidArg string) int {
	partid, err := parsePartId(partidArg)
	if err != nil {
		log.Error(err)
		return exitUsage
	}
	c := cfg()
	c.PartitionId = partid
	p, err := partition.Create(c)
	if err != nil {
		log.Error(err)
		return exitIO
	}
	tip, _ := p.Tip()
	fmt.Printf("initialized empty partition %s in %s, root state %s\n", c.BaseName, c.Dir, tip.Sum)
	return exitOK
}

func cmdGet(idArg string) int {
	p, err := partition.Open(cfg())
	if exitErr := handleOpenErr(err); exitErr != exitOK {
		return exitErr
	}
	tip, ok := p.Tip()
	if !ok {
		log.Error("multiple tips present; run `pippin merge` first")
		return exitUsage
	}
	id, perr := parseElementId(idArg)
	if perr != nil {
		log.Error(perr)
		return exitUsage
	}
	e, ok := tip.Set.Get(id)
	if !ok {
		log.Errorf("no such element %s", id)
		return exitUsage
	}
	_, err = os.Stdout.Write(e.Payload)
	if err != nil {
		log.Error(err)
		return exitIO
	}
	return exitOK
}

func cmdPut() int {
	buf, err := ioutil.ReadAll(os.Stdin)
	if err != nil {
		log.Error(err)
		return exitIO
	}
	p, err := partition.Open(cfg())
	if exitErr := handleOpenErr(err); exitErr != exitOK {
		return exitErr
	}
	m, err := p.Working()
	if err != nil {
		log.Error(err)
		return exitUsage
	}
	id, err := m.Insert(buf)
	if err != nil {
		log.Error(err)
		return exitIO
	}
	_, err = p.Commit(m, [2]byte{}, nil)
	if err != nil {
		log.Error(err)
		return exitIO
	}
	fmt.Println(id)
	return exitOK
}

func cmdDel(idArg string) int {
	id, perr := parseElementId(idArg)
	if perr != nil {
		log.Error(perr)
		return exitUsage
	}
	p, err := partition.Open(cfg())
	if exitErr := handleOpenErr(err); exitErr != exitOK {
		return exitErr
	}
	m, err := p.Working()
	if err != nil {
		log.Error(err)
		return exitUsage
	}
	if err = m.Remove(id); err != nil {
		log.Error(err)
		return exitUsage
	}
	_, err = p.Commit(m, [2]byte{}, nil)
	if err != nil {
		log.Error(err)
		return exitIO
	}
	return exitOK
}

func cmdList() int {
	p, err := partition.Open(cfg())
	if exitErr := handleOpenErr(err); exitErr != exitOK {
		return exitErr
	}
	tip, ok := p.Tip()
	if !ok {
		log.Error("multiple tips present; run `pippin merge` first")
		return exitUsage
	}
	var ids []element.Id
	tip.Set.Each(func(e element.Element) {
		ids = append(ids, e.Id)
	})
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
	for _, id := range ids {
		fmt.Println(id)
	}
	return exitOK
}

func cmdLog() int {
	p, err := partition.Open(cfg())
	if exitErr := handleOpenErr(err); exitErr != exitOK {
		return exitErr
	}
	for _, t := range p.Tips() {
		for s := range p.Dag().Ancestors(t.Sum) {
			st, ok := p.Dag().Get(s)
			if !ok {
				continue
			}
			fmt.Printf("commit %d\nsum %s\nparents %d\ntime %d\n\n",
				st.Meta.CommitNumber, st.Sum, len(st.Parents), st.Meta.Timestamp)
		}
	}
	return exitOK
}

func cmdMerge(prefer string) int {
	p, err := partition.Open(cfg())
	if exitErr := handleOpenErr(err); exitErr != exitOK {
		return exitErr
	}
	if prefer == "" {
		prefer = "left"
	}
	var resolution mergedrv.Resolution
	switch prefer {
	case "left":
		resolution = mergedrv.KeepLeft
	case "right":
		resolution = mergedrv.KeepRight
	default:
		log.Errorf("invalid --prefer value %q, want left or right", prefer)
		return exitUsage
	}
	resolver := mergedrv.ResolverFunc(func(c mergedrv.Conflict) (mergedrv.Resolution, []byte) {
		return resolution, nil
	})
	st, err := p.Merge(resolver, [2]byte{}, nil)
	if err != nil {
		log.Error(err)
		return exitUsage
	}
	fmt.Printf("merged to %s\n", st.Sum)
	return exitOK
}

func cmdSnapshot() int {
	p, err := partition.Open(cfg())
	if exitErr := handleOpenErr(err); exitErr != exitOK {
		return exitErr
	}
	n, err := p.Snapshot()
	if err != nil {
		log.Error(err)
		return exitUsage
	}
	fmt.Printf("wrote snapshot %d\n", n)
	return exitOK
}

func cmdVerify() int {
	p, err := partition.Open(cfg())
	if exitErr := handleOpenErr(err); exitErr != exitOK {
		return exitErr
	}
	report := p.Verify()
	for _, e := range report.Entries {
		switch e.Outcome {
		case partition.VerifyMatched:
			fmt.Printf("ok       %s\n", e.Sum)
		case partition.VerifyMismatched:
			fmt.Printf("mismatch %s: %s\n", e.Sum, e.Detail)
		case partition.VerifyMissingAncestor:
			fmt.Printf("missing  %s: %s\n", e.Sum, e.Detail)
		}
	}
	if !report.OK() {
		return exitCorruption
	}
	return exitOK
}

func cmdCompact() int {
	p, err := partition.Open(cfg())
	if exitErr := handleOpenErr(err); exitErr != exitOK {
		return exitErr
	}
	candidates, err := p.CompactionCandidates()
	if err != nil {
		log.Error(err)
		return exitIO
	}
	if err = p.Compact(candidates); err != nil {
		log.Error(err)
		return exitIO
	}
	for _, c := range candidates {
		if c.OwnedHere {
			fmt.Printf("removed %s\n", c.Name)
		} else {
			fmt.Printf("skipped %s (not owned this session)\n", c.Name)
		}
	}
	return exitOK
}

func handleOpenErr(err error) int {
	if err == nil {
		return exitOK
	}
	cause := errors.Cause(err)
	if _, ok := cause.(*partition.ErrNoPartition); ok {
		log.Error("no partition here; run `pippin init <partid>` first")
		return exitUsage
	}
	log.Error(err)
	if isCorruptionErr(cause) {
		return exitCorruption
	}
	return exitIO
}

// isCorruptionErr reports whether err reflects a damaged on-disk file
// rather than a genuine I/O failure, so callers can pick the right
// exit code.
func isCorruptionErr(err error) bool {
	switch err.(type) {
	case *codec.ErrIntegrity, *codec.ErrBadMagic, *codec.UnknownShapeError:
		return true
	}
	return false
}
