package partition

import "github.com/stevegt/pippin/sum"

// ErrNoPartition means discovery found no snapshot file that could be
// read, so there is nothing to Open (use Create instead).
type ErrNoPartition struct {
	Base string
}

func (e *ErrNoPartition) Error() string {
	return "partition: no readable snapshot found for " + e.Base
}

// ErrMultipleTips is returned by operations that require a single
// current tip (Working, Snapshot) when the partition has more than
// one and has not yet been merged (spec.md §4.5: "the partition stays
// with multiple tips and is readable but not writable").
type ErrMultipleTips struct {
	Tips []sum.Sum
}

func (e *ErrMultipleTips) Error() string {
	return "partition: multiple tips present, merge required before writing"
}

// ErrPolicyViolation means an operation tried to write to a log file
// not created by this session (spec.md §7 "Policy violation").
type ErrPolicyViolation struct {
	LogName string
}

func (e *ErrPolicyViolation) Error() string {
	return "partition: log not owned in this session: " + e.LogName
}

// ErrIdentifierClash is returned when a fresh element id could not be
// allocated within a partition's 24-bit suffix space (spec.md §7
// "Identifier clash").
type ErrIdentifierClash struct {
	Err error
}

func (e *ErrIdentifierClash) Error() string {
	return "partition: identifier allocation failed: " + e.Err.Error()
}
