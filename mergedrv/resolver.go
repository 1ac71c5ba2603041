// Package mergedrv implements Pippin's merge driver: a breadth-first
// common-ancestor walk followed by a three-way per-element decision
// table, delegating unresolvable conflicts to a caller-supplied
// MergeResolver (spec.md §4.5).
package mergedrv

import "github.com/stevegt/pippin/element"

// Resolution is what a MergeResolver decides for one conflicting
// element.
type Resolution int

const (
	// KeepLeft keeps the left tip's version of the element.
	KeepLeft Resolution = iota
	// KeepRight keeps the right tip's version.
	KeepRight
	// KeepAncestor reverts to the common ancestor's version; only
	// valid when an ancestor version exists.
	KeepAncestor
	// Fresh supplies a brand-new payload, returned as the second
	// result of Resolver.Resolve.
	Fresh
	// Decline means the resolver could not decide; merging fails and
	// the partition keeps its multiple tips (spec.md §4.5).
	Decline
)

// Conflict describes one element whose three-way comparison could
// not be resolved mechanically (spec.md §4.5's "X | Y | Z (Y≠Z)" and
// "X | Y | — " rows).
type Conflict struct {
	Id       element.Id
	Ancestor *element.Element // nil if the id did not exist in the ancestor
	Left     *element.Element // nil if deleted on the left
	Right    *element.Element // nil if deleted on the right
}

// Resolver is the external collaborator spec.md §4.5 and §6 describe:
// for each conflict it must return one of keep-left, keep-right,
// keep-ancestor (only if present), or a fresh payload. Returning
// Decline (or a nil Resolver altogether) fails the merge.
type Resolver interface {
	Resolve(c Conflict) (Resolution, []byte)
}

// ResolverFunc adapts a plain function to the Resolver interface.
type ResolverFunc func(c Conflict) (Resolution, []byte)

// Resolve calls f.
func (f ResolverFunc) Resolve(c Conflict) (Resolution, []byte) {
	return f(c)
}
