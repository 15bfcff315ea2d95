package hostrpc

import "sync/atomic"

// VarSeqKind is the wire width of a sequence number.
type VarSeqKind int

const (
	SeqKind1 VarSeqKind = iota
	SeqKind2
	SeqKind4
)

// Bytes returns the number of wire bytes a sequence number of this kind
// occupies.
func (k VarSeqKind) Bytes() int {
	switch k {
	case SeqKind1:
		return 1
	case SeqKind2:
		return 2
	default:
		return 4
	}
}

// VarSeq is a sequence number tagged with its wire width.
type VarSeq struct {
	value uint32
	kind  VarSeqKind
}

// NewVarSeq tags a raw sequence value at the full 4-byte width.
func NewVarSeq(v uint32) VarSeq {
	return VarSeq{value: v, kind: SeqKind4}
}

// Resize changes the wire width used to encode this sequence number,
// truncating the value if necessary. Unlike key width, sequence width is a
// fixed per-client policy (spec §6 Config.seq_kind), not a negotiated one.
func (v VarSeq) Resize(k VarSeqKind) VarSeq {
	out := VarSeq{value: v.value, kind: k}
	switch k {
	case SeqKind1:
		out.value = v.value & 0xFF
	case SeqKind2:
		out.value = v.value & 0xFFFF
	}
	return out
}

// Value returns the raw numeric sequence value.
func (v VarSeq) Value() uint32 { return v.value }

// Kind returns the configured wire width.
func (v VarSeq) Kind() VarSeqKind { return v.kind }

// Bytes returns the little-endian wire representation of v at its
// configured width.
func (v VarSeq) Bytes() []byte {
	n := v.kind.Bytes()
	out := make([]byte, n)
	val := v.value
	for i := 0; i < n; i++ {
		out[i] = byte(val)
		val >>= 8
	}
	return out
}

// Equal compares two VarSeqs by value only; wire width does not affect
// identity once both sides have been resized to the session's policy.
func (v VarSeq) Equal(other VarSeq) bool {
	return v.value == other.value
}

// seqCounter is the process-wide, per-HostContext monotonic sequence
// counter shared by every clone of a HostClient (spec §5 "Ordering
// guarantees").
type seqCounter struct {
	v uint32
}

// next reads-and-increments the counter, returning the value to use for
// the next outbound request.
func (c *seqCounter) next() uint32 {
	return atomic.AddUint32(&c.v, 1) - 1
}
