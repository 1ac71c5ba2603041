package element

import (
	"github.com/stevegt/pippin/sum"
)

// Element is one stored value together with the identity and
// checksum bookkeeping the history layer needs (spec.md §4.3). An
// Element only exists while it is live in some ElementSet; deletion
// removes the entry rather than tombstoning it in place.
type Element struct {
	Id      Id
	Payload []byte
	Sum     sum.Sum // sum.ElementSum(uint64(Id), Payload)
}

// New builds an Element and computes its sum.
func New(id Id, payload []byte) Element {
	return Element{Id: id, Payload: payload, Sum: sum.ElementSum(uint64(id), payload)}
}
