package mergedrv

import (
	"fmt"

	"github.com/stevegt/pippin/element"
)

// ErrMergeDeclined is returned when a resolver declines a conflict,
// or no resolver is configured: the partition stays with multiple
// tips and remains readable but not writable (spec.md §4.5).
type ErrMergeDeclined struct {
	Conflicts []Conflict
}

func (e *ErrMergeDeclined) Error() string {
	return fmt.Sprintf("mergedrv: %d conflict(s) could not be resolved", len(e.Conflicts))
}

// ThreeWay merges left and right against their common ancestor,
// element by element, following spec.md §4.5's table. Mechanically
// resolvable cases are applied directly; anything left ambiguous is
// handed to resolver. A nil resolver is equivalent to one that
// declines every conflict.
func ThreeWay(ancestor, left, right *element.Set, resolver Resolver) (*element.Set, error) {
	ids := map[element.Id]bool{}
	collectIds(ancestor, ids)
	collectIds(left, ids)
	collectIds(right, ids)

	out := element.NewSet()
	var declined []Conflict

	for id := range ids {
		a, aok := ancestor.Get(id)
		l, lok := left.Get(id)
		r, rok := right.Get(id)

		switch {
		case aok && lok && rok && l.Sum == a.Sum && r.Sum == a.Sum:
			// X X X -> X
			out.ApplyRaw(a)
		case aok && lok && rok && l.Sum == a.Sum && r.Sum != a.Sum:
			// X X Y -> Y (only right changed)
			out.ApplyRaw(r)
		case aok && lok && rok && r.Sum == a.Sum && l.Sum != a.Sum:
			// X Y X -> Y (only left changed)
			out.ApplyRaw(l)
		case aok && lok && rok && l.Sum == r.Sum:
			// both changed identically: no conflict
			out.ApplyRaw(l)
		case !aok && lok && !rok:
			// — A — -> A (inserted on left only)
			out.ApplyRaw(l)
		case !aok && !lok && rok:
			// — — B -> B (inserted on right only)
			out.ApplyRaw(r)
		case aok && !lok && !rok:
			// X — — -> deleted
			// nothing to insert
		case aok && !lok && rok && r.Sum == a.Sum:
			// X — X -> deleted (left deleted, right untouched)
			// nothing to insert
		case aok && lok && !rok && l.Sum == a.Sum:
			// X X — -> deleted (right deleted, left untouched)
			// nothing to insert
		default:
			conflict := Conflict{Id: id}
			if aok {
				conflict.Ancestor = &a
			}
			if lok {
				conflict.Left = &l
			}
			if rok {
				conflict.Right = &r
			}
			resolved, payload := resolveConflict(conflict, resolver)
			switch resolved {
			case KeepLeft:
				if lok {
					out.ApplyRaw(l)
				}
			case KeepRight:
				if rok {
					out.ApplyRaw(r)
				}
			case KeepAncestor:
				if aok {
					out.ApplyRaw(a)
				} else {
					declined = append(declined, conflict)
				}
			case Fresh:
				out.ApplyRaw(element.New(id, payload))
			default:
				declined = append(declined, conflict)
			}
		}
	}

	if len(declined) > 0 {
		return nil, &ErrMergeDeclined{Conflicts: declined}
	}
	return out, nil
}

func resolveConflict(c Conflict, resolver Resolver) (Resolution, []byte) {
	if resolver == nil {
		return Decline, nil
	}
	return resolver.Resolve(c)
}

func collectIds(s *element.Set, into map[element.Id]bool) {
	s.Each(func(e element.Element) { into[e.Id] = true })
}
