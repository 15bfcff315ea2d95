package hostrpc

import (
	"bytes"
	"fmt"
	"sync"
)

// Key is an 8-byte opaque identifier derived from a (path, schema) pair.
// Keys are value-equal and totally ordered, but carry no structure visible
// to callers.
type Key [8]byte

// Equal reports whether two keys are byte-identical.
func (k Key) Equal(other Key) bool {
	return k == other
}

// Compare orders two keys lexicographically by their bytes.
func (k Key) Compare(other Key) int {
	return bytes.Compare(k[:], other[:])
}

func (k Key) String() string {
	return fmt.Sprintf("%x", k[:])
}

// VarKeyKind is the negotiated narrowing width of a VarKey.
type VarKeyKind int

const (
	KeyKind1 VarKeyKind = iota
	KeyKind2
	KeyKind4
	KeyKind8
)

// Bytes returns the number of wire bytes a key of this kind occupies.
func (k VarKeyKind) Bytes() int {
	switch k {
	case KeyKind1:
		return 1
	case KeyKind2:
		return 2
	case KeyKind4:
		return 4
	default:
		return 8
	}
}

func (k VarKeyKind) String() string {
	switch k {
	case KeyKind1:
		return "Key1"
	case KeyKind2:
		return "Key2"
	case KeyKind4:
		return "Key4"
	default:
		return "Key8"
	}
}

// narrower reports whether k is a strictly smaller width than other.
func (k VarKeyKind) narrower(other VarKeyKind) bool {
	return k.Bytes() < other.Bytes()
}

// Tag returns the 1-byte wire discriminant for this width. A frame's key
// width is self-describing on the wire (see EncodeHeader/DecodeHeader in
// header.go) precisely because the receiver's own negotiated width policy
// is what narrowing updates in response to what it observes — it cannot
// also be the thing the receiver uses to decode, or narrowing could never
// be observed from a real peer frame (spec §3 "Key-width negotiation").
func (k VarKeyKind) Tag() byte { return byte(k) }

// keyKindFromTag parses a wire discriminant byte back into a VarKeyKind.
func keyKindFromTag(tag byte) (VarKeyKind, bool) {
	switch VarKeyKind(tag) {
	case KeyKind1, KeyKind2, KeyKind4, KeyKind8:
		return VarKeyKind(tag), true
	default:
		return 0, false
	}
}

// VarKey is a Key truncated to a negotiated width. Widths 1/2/4 are
// truncations of the leading bytes of the full 8-byte key.
type VarKey struct {
	full  Key
	width VarKeyKind
}

// NewVarKey wraps a full 8-byte key at width 8.
func NewVarKey(k Key) VarKey {
	return VarKey{full: k, width: KeyKind8}
}

// Kind reports the current narrowing width of this key.
func (v VarKey) Kind() VarKeyKind { return v.width }

// ShrinkTo truncates the key to the given width. Widening is never
// performed: if w is wider than the key's current width, the call is a
// no-op, matching the "keys arriving wider than policy are treated as
// truncated" rule in spec §4.D.
func (v VarKey) ShrinkTo(w VarKeyKind) VarKey {
	if w.Bytes() >= v.width.Bytes() {
		return v
	}
	return VarKey{full: v.full, width: w}
}

// Bytes returns the wire representation of the key at its current width.
func (v VarKey) Bytes() []byte {
	n := v.width.Bytes()
	out := make([]byte, n)
	copy(out, v.full[:n])
	return out
}

// Equal compares two VarKeys honouring width normalization: comparison is
// performed over the narrower of the two widths' worth of leading bytes.
func (v VarKey) Equal(other VarKey) bool {
	n := v.width.Bytes()
	if other.width.Bytes() < n {
		n = other.width.Bytes()
	}
	return bytes.Equal(v.full[:n], other.full[:n])
}

// Matches reports whether v's observed bytes agree with full over v's own
// width. Used to test a possibly width-narrowed incoming key against an
// installed full-width key, such as a SubscriptionTable topic registration
// (spec §4.C: "looks up by frame.header.key (equality honours width
// normalization)").
func (v VarKey) Matches(full Key) bool {
	n := v.width.Bytes()
	return bytes.Equal(v.full[:n], full[:n])
}

// keyWidthCell is the process-global (per HostContext) readers/writer cell
// holding the negotiated VarKeyKind. Reads are expected to be hot; writes
// are rare and must be monotonically non-increasing (spec §4.D, §5).
type keyWidthCell struct {
	mu   sync.RWMutex
	kind VarKeyKind
}

func newKeyWidthCell() *keyWidthCell {
	return &keyWidthCell{kind: KeyKind8}
}

func (c *keyWidthCell) Load() VarKeyKind {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.kind
}

// Narrow updates the cell to w if, and only if, w is strictly narrower than
// the current value. Concurrent narrowing races resolve in favour of the
// smaller width (read-compare-write under the write lock).
func (c *keyWidthCell) Narrow(w VarKeyKind) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if w.narrower(c.kind) {
		c.kind = w
	}
}
