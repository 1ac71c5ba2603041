package sum

import "encoding/binary"

// MetaSum computes the metadata sum that anchors a state's identity to
// its ancestry (spec.md §4.1):
//
//	BLAKE2b(partition_id_u64_be ‖ "CNUM" ‖ commit_number_u32_be ‖
//	        timestamp_i64_be ‖ parent_sum_1 ‖ … ‖ parent_sum_k ‖
//	        extra_metadata_bytes)
//
// Including the parent sums here is what makes a revert commit's state
// sum differ from the state it reverts to: the parent chain differs
// even though the element contents are identical.
func MetaSum(partitionID uint64, commitNumber uint32, timestamp int64, parents []Sum, extra []byte) Sum {
	h := NewHasher()

	var idbuf [8]byte
	binary.BigEndian.PutUint64(idbuf[:], partitionID)
	h.Write(idbuf[:])

	h.Write([]byte("CNUM"))

	var cnbuf [4]byte
	binary.BigEndian.PutUint32(cnbuf[:], commitNumber)
	h.Write(cnbuf[:])

	var tsbuf [8]byte
	binary.BigEndian.PutUint64(tsbuf[:], uint64(timestamp))
	h.Write(tsbuf[:])

	for _, p := range parents {
		h.Write(p[:])
	}

	h.Write(extra)

	return Load(h.Sum(nil))
}

// StateSum computes the state sum of a state from its metadata sum
// and the set of its elements' per-element sums (spec.md §4.1):
//
//	state_sum = meta_sum XOR (element_sum_1 XOR … XOR element_sum_n)
//
// Because XOR is commutative and associative, the caller may pass the
// element sums in any order, and may instead pass a single already-
// accumulated XOR aggregate as the sole entry.
func StateSum(metaSum Sum, elementSums ...Sum) Sum {
	out := metaSum
	for _, es := range elementSums {
		out = out.Xor(es)
	}
	return out
}
