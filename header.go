package hostrpc

// VarHeader is the ledger lookup key: a width-tagged key plus a width-tagged
// sequence number. Two headers are equal iff both components compare equal
// after width normalization (spec §3).
type VarHeader struct {
	Key VarKey
	Seq VarSeq
}

// Equal compares two headers honouring key-width normalization.
func (h VarHeader) Equal(other VarHeader) bool {
	return h.Key.Equal(other.Key) && h.Seq.Equal(other.Seq)
}

// RpcFrame is the wire unit: a header and an opaque body.
type RpcFrame struct {
	Header VarHeader
	Body   []byte
}

// Bytes serializes the frame as header bytes followed by body bytes (spec
// §6 "Wire frame layout").
func (f RpcFrame) Bytes() []byte {
	hdr := EncodeHeader(f.Header)
	out := make([]byte, 0, len(hdr)+len(f.Body))
	out = append(out, hdr...)
	out = append(out, f.Body...)
	return out
}

// EncodeHeader renders a VarHeader as a 1-byte key-width tag, the key bytes
// at that width, then sequence bytes (1/2/4, per its configured width).
//
// The tag byte is what lets DecodeHeader learn a frame's actual key width
// straight from the wire, rather than from whatever width the receiver's
// own policy currently holds. Key width only ever narrows in response to
// what a receiver observes (spec §3 Invariant 2), so the policy cannot also
// be the input to decoding without becoming circular: a decoder that always
// decodes at its own current width can never observe a frame narrower than
// that width in the first place.
func EncodeHeader(h VarHeader) []byte {
	out := make([]byte, 0, 1+h.Key.width.Bytes()+h.Seq.kind.Bytes())
	out = append(out, h.Key.width.Tag())
	out = append(out, h.Key.Bytes()...)
	out = append(out, h.Seq.Bytes()...)
	return out
}

// DecodeHeader parses a VarHeader out of the front of buf: a key-width tag
// byte, that many key bytes, then seqKind-many sequence bytes. seqKind is
// supplied by the caller because sequence width is a fixed per-client
// policy that is never negotiated (spec §6 Config.seq_kind) — only the key
// width is self-describing on the wire. It returns the decoded header and
// the remaining (body) bytes.
func DecodeHeader(buf []byte, seqKind VarSeqKind) (VarHeader, []byte, bool) {
	if len(buf) < 1 {
		return VarHeader{}, nil, false
	}
	keyKind, ok := keyKindFromTag(buf[0])
	if !ok {
		return VarHeader{}, nil, false
	}
	buf = buf[1:]

	kn := keyKind.Bytes()
	sn := seqKind.Bytes()
	if len(buf) < kn+sn {
		return VarHeader{}, nil, false
	}
	var full Key
	copy(full[:], buf[:kn])
	seqBytes := buf[kn : kn+sn]
	var seqVal uint32
	for i := sn - 1; i >= 0; i-- {
		seqVal = seqVal<<8 | uint32(seqBytes[i])
	}
	hdr := VarHeader{
		Key: VarKey{full: full, width: keyKind},
		Seq: VarSeq{value: seqVal, kind: seqKind},
	}
	return hdr, buf[kn+sn:], true
}
