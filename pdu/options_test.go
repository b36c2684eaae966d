package pdu

import (
	"bytes"
	"testing"
)

func TestOptionsRoundTripPreservesOrder(t *testing.T) {
	o := NewOptions()
	o.Set(TagUserMessageReference, []byte{0x00, 0x01})
	o.Set(TagSarTotalSegments, []byte{0x03})
	o.Set(TagID(0x9999), []byte{0xAB, 0xCD}) // unrecognized tag, must still round-trip

	b, err := o.MarshalBinary()
	if err != nil {
		t.Fatalf("MarshalBinary() error: %s", err)
	}

	got := NewOptions()
	if err := got.UnmarshalBinary(b); err != nil {
		t.Fatalf("UnmarshalBinary() error: %s", err)
	}

	b2, err := got.MarshalBinary()
	if err != nil {
		t.Fatalf("re-MarshalBinary() error: %s", err)
	}
	if !bytes.Equal(b, b2) {
		t.Errorf("round trip changed byte order:\n%X\n%X", b, b2)
	}
	if got.Len() != 3 {
		t.Fatalf("Len() => %d, expected 3", got.Len())
	}
	if tag := got.fields[2].tag; tag != TagID(0x9999) {
		t.Errorf("fields[2].tag => %X, expected unrecognized tag to be preserved", tag)
	}
}

func TestOptionsSetReplacesInPlace(t *testing.T) {
	o := NewOptions()
	o.SetSarTotalSegments(2)
	o.SetUserMessageReference(1)
	o.SetSarTotalSegments(5)

	if o.Len() != 2 {
		t.Fatalf("Len() => %d, expected 2 (update must not append)", o.Len())
	}
	if got := o.SarTotalSegments(); got != 5 {
		t.Errorf("SarTotalSegments() => %d, expected 5", got)
	}
	if o.fields[0].tag != TagSarTotalSegments {
		t.Errorf("updating a field must preserve its original position")
	}
}

func TestOptionsUnmarshalRejectsTruncatedTLV(t *testing.T) {
	// tag + length header present, but declared length exceeds remaining bytes.
	buf := []byte{0x02, 0x0C, 0x00, 0x10, 0x01}
	o := NewOptions()
	if err := o.UnmarshalBinary(buf); err == nil {
		t.Error("UnmarshalBinary() on truncated TLV => nil error, expected failure")
	}
}
