package hostrpc

import (
	"bytes"
	"testing"
)

func TestEncodeDecodeHeader_RoundTrip(t *testing.T) {
	key := NewVarKey(Key{1, 2, 3, 4, 5, 6, 7, 8}).ShrinkTo(KeyKind4)
	seq := NewVarSeq(0xCAFEF00D).Resize(SeqKind4)
	h := VarHeader{Key: key, Seq: seq}

	encoded := EncodeHeader(h)
	if len(encoded) != 1+KeyKind4.Bytes()+SeqKind4.Bytes() {
		t.Fatalf("encoded length = %d, want %d", len(encoded), 1+KeyKind4.Bytes()+SeqKind4.Bytes())
	}

	decoded, rest, ok := DecodeHeader(encoded, SeqKind4)
	if !ok {
		t.Fatal("DecodeHeader returned ok=false")
	}
	if len(rest) != 0 {
		t.Fatalf("rest = %d bytes, want 0", len(rest))
	}
	if !decoded.Equal(h) {
		t.Fatalf("decoded header %+v != original %+v", decoded, h)
	}
	if decoded.Key.Kind() != KeyKind4 {
		t.Fatalf("decoded key width = %v, want KeyKind4 (read from the wire tag)", decoded.Key.Kind())
	}
	if decoded.Seq.Value() != 0xCAFEF00D {
		t.Fatalf("decoded seq = %#x, want 0xcafef00d", decoded.Seq.Value())
	}
}

func TestDecodeHeader_ShortBufferFails(t *testing.T) {
	_, _, ok := DecodeHeader([]byte{1, 2, 3}, SeqKind4)
	if ok {
		t.Fatal("expected DecodeHeader to fail on a too-short buffer")
	}
}

func TestDecodeHeader_EmptyBufferFails(t *testing.T) {
	_, _, ok := DecodeHeader(nil, SeqKind4)
	if ok {
		t.Fatal("expected DecodeHeader to fail on an empty buffer")
	}
}

func TestDecodeHeader_InvalidWidthTagFails(t *testing.T) {
	_, _, ok := DecodeHeader([]byte{0xFF, 0, 0, 0, 0}, SeqKind4)
	if ok {
		t.Fatal("expected DecodeHeader to reject an unrecognized width tag")
	}
}

func TestDecodeHeader_LeavesBodyIntact(t *testing.T) {
	h := VarHeader{Key: NewVarKey(Key{9, 9}).ShrinkTo(KeyKind1), Seq: NewVarSeq(5).Resize(SeqKind1)}
	body := []byte("payload")
	frame := RpcFrame{Header: h, Body: body}

	decodedHeader, decodedBody, ok := DecodeHeader(frame.Bytes(), SeqKind1)
	if !ok {
		t.Fatal("DecodeHeader failed")
	}
	if !bytes.Equal(decodedBody, body) {
		t.Fatalf("decoded body = %q, want %q", decodedBody, body)
	}
	if !decodedHeader.Equal(h) {
		t.Fatalf("decoded header mismatch")
	}
}

func TestDecodeHeader_WidthIsSelfDescribingNotPolicyDependent(t *testing.T) {
	// A peer that has already narrowed to KeyKind2 puts only 2 key bytes (plus
	// the width tag) on the wire. DecodeHeader must recover width 2 from the
	// tag alone: nothing here tells it what width any prior policy believed.
	full := Key{1, 2, 0xAA, 0xBB, 0xCC, 0xDD, 0xEE, 0xFF}
	h := VarHeader{Key: NewVarKey(full).ShrinkTo(KeyKind2), Seq: NewVarSeq(1).Resize(SeqKind1)}

	decoded, _, ok := DecodeHeader(EncodeHeader(h), SeqKind1)
	if !ok {
		t.Fatal("DecodeHeader failed")
	}
	if decoded.Key.Kind() != KeyKind2 {
		t.Fatalf("decoded width = %v, want KeyKind2", decoded.Key.Kind())
	}
	// Bytes beyond the observed width were never on the wire and must read
	// back as zero, not as the sender's true (unknowable to the receiver)
	// trailing bytes.
	want := Key{1, 2, 0, 0, 0, 0, 0, 0}
	if decoded.Key.full != want {
		t.Fatalf("decoded key bytes beyond observed width were not zero")
	}
}
