package pdu

import (
	"encoding/binary"
	"fmt"
)

// option is a single TLV optional parameter. Keeping these in a slice
// instead of a map preserves the order parameters were set or decoded
// in, so re-encoding a decoded PDU reproduces the original bytes.
type option struct {
	tag TagID
	val []byte
}

// Options holds a PDU's optional parameters in encounter order. Tags
// not present in the TagID registry are kept and round-tripped
// verbatim; only the typed helpers below are restricted to known tags.
type Options struct {
	fields []option
}

// NewOptions creates an empty option set.
func NewOptions() *Options {
	return &Options{}
}

func (o *Options) indexOf(tag TagID) int {
	for i := range o.fields {
		if o.fields[i].tag == tag {
			return i
		}
	}
	return -1
}

// Set assigns a TLV field, replacing any existing value for tag in
// place so order is preserved across updates.
func (o *Options) Set(tag TagID, val []byte) *Options {
	if i := o.indexOf(tag); i >= 0 {
		o.fields[i].val = val
		return o
	}
	o.fields = append(o.fields, option{tag: tag, val: val})
	return o
}

// SetSingle assigns a TLV field with a one byte value.
func (o *Options) SetSingle(tag TagID, val int) *Options {
	return o.Set(tag, []byte{byte(val)})
}

// SetDouble assigns a TLV field with a two byte value.
func (o *Options) SetDouble(tag TagID, val int) *Options {
	b := make([]byte, 2)
	binary.BigEndian.PutUint16(b, uint16(val))
	return o.Set(tag, b)
}

// SetString assigns a TLV field with a raw string value.
func (o *Options) SetString(tag TagID, val string) *Options {
	return o.Set(tag, []byte(val))
}

// SetCString assigns a TLV field with a NUL terminated string value.
func (o *Options) SetCString(tag TagID, val string) *Options {
	return o.Set(tag, append([]byte(val), 0))
}

// Len reports the number of optional parameters present.
func (o *Options) Len() int {
	return len(o.fields)
}

// Get tries to get the byte value of a TLV field if present.
func (o *Options) Get(tag TagID) ([]byte, bool) {
	if i := o.indexOf(tag); i >= 0 {
		return o.fields[i].val, true
	}
	return nil, false
}

// GetSingle returns a tag's value as a one byte integer.
func (o *Options) GetSingle(tag TagID) (int, bool) {
	val, ok := o.Get(tag)
	if !ok || len(val) == 0 {
		return 0, false
	}
	return int(val[0]), true
}

// GetDouble returns a tag's value as a two byte integer.
func (o *Options) GetDouble(tag TagID) (int, bool) {
	val, ok := o.Get(tag)
	if !ok || len(val) < 2 {
		return 0, false
	}
	return int(binary.BigEndian.Uint16(val)), true
}

// GetString returns a tag's value as a raw string.
func (o *Options) GetString(tag TagID) (string, bool) {
	val, ok := o.Get(tag)
	if !ok {
		return "", false
	}
	return string(val), true
}

// GetCString returns a tag's value as a string with its trailing NUL
// stripped.
func (o *Options) GetCString(tag TagID) (string, bool) {
	val, ok := o.Get(tag)
	if !ok || len(val) == 0 {
		return "", false
	}
	return string(val[:len(val)-1]), true
}

// UserMessageReference is a helper for getting this option.
func (o *Options) UserMessageReference() int {
	val, _ := o.GetDouble(TagUserMessageReference)
	return val
}

// SarMsgRefNum is a helper for getting this option.
func (o *Options) SarMsgRefNum() int {
	val, _ := o.GetDouble(TagSarMsgRefNum)
	return val
}

// SarTotalSegments is a helper for getting this option.
func (o *Options) SarTotalSegments() int {
	val, _ := o.GetSingle(TagSarTotalSegments)
	return val
}

// SarSegmentSeqnum is a helper for getting this option.
func (o *Options) SarSegmentSeqnum() int {
	val, _ := o.GetSingle(TagSarSegmentSeqnum)
	return val
}

// ScInterfaceVersion is a helper for getting this option.
func (o *Options) ScInterfaceVersion() int {
	val, _ := o.GetSingle(TagScInterfaceVersion)
	return val
}

// MessagePayload is a helper for getting this option.
func (o *Options) MessagePayload() string {
	val, _ := o.GetString(TagMessagePayload)
	return val
}

// MessageState is a helper for getting this option.
func (o *Options) MessageState() int {
	val, _ := o.GetSingle(TagMessageState)
	return val
}

// ReceiptedMessageID is a helper for getting this option.
func (o *Options) ReceiptedMessageID() string {
	val, _ := o.GetCString(TagReceiptedMessageID)
	return val
}

// SetUserMessageReference is a helper for setting this option.
func (o *Options) SetUserMessageReference(val int) *Options {
	return o.SetDouble(TagUserMessageReference, val)
}

// SetSarMsgRefNum is a helper for setting this option.
func (o *Options) SetSarMsgRefNum(val int) *Options {
	return o.SetDouble(TagSarMsgRefNum, val)
}

// SetSarTotalSegments is a helper for setting this option.
func (o *Options) SetSarTotalSegments(val int) *Options {
	return o.SetSingle(TagSarTotalSegments, val)
}

// SetSarSegmentSeqnum is a helper for setting this option.
func (o *Options) SetSarSegmentSeqnum(val int) *Options {
	return o.SetSingle(TagSarSegmentSeqnum, val)
}

// SetScInterfaceVersion is a helper for setting this option.
func (o *Options) SetScInterfaceVersion(val int) *Options {
	return o.SetSingle(TagScInterfaceVersion, val)
}

// SetMessagePayload is a helper for setting this option.
func (o *Options) SetMessagePayload(val string) *Options {
	return o.SetString(TagMessagePayload, val)
}

// SetMessageState is a helper for setting this option.
func (o *Options) SetMessageState(val int) *Options {
	return o.SetSingle(TagMessageState, val)
}

// SetReceiptedMessageID is a helper for setting this option.
func (o *Options) SetReceiptedMessageID(val string) *Options {
	return o.SetCString(TagReceiptedMessageID, val)
}

// MarshalBinary implements encoding.BinaryMarshaler. Fields are
// written in the order they were set or decoded.
func (o *Options) MarshalBinary() ([]byte, error) {
	var out []byte
	for _, f := range o.fields {
		tlv := make([]byte, 4+len(f.val))
		binary.BigEndian.PutUint16(tlv[:2], uint16(f.tag))
		binary.BigEndian.PutUint16(tlv[2:4], uint16(len(f.val)))
		copy(tlv[4:], f.val)
		out = append(out, tlv...)
	}
	return out, nil
}

// UnmarshalBinary implements encoding.BinaryUnmarshaler. Fields are
// appended in wire order so a subsequent MarshalBinary reproduces the
// input byte for byte.
func (o *Options) UnmarshalBinary(buf []byte) error {
	n := 0
	for n < len(buf) {
		if len(buf)-n < 4 {
			return fmt.Errorf("smpp/pdu: truncated optional parameter header")
		}
		tag := TagID(binary.BigEndian.Uint16(buf[n : n+2]))
		l := int(binary.BigEndian.Uint16(buf[n+2 : n+4]))
		if n+4+l > len(buf) {
			return fmt.Errorf("smpp/pdu: invalid optional parameter length (tag=0x%04X len=%d)", tag, l)
		}
		val := make([]byte, l)
		copy(val, buf[n+4:n+4+l])
		o.fields = append(o.fields, option{tag: tag, val: val})
		n += 4 + l
	}
	return nil
}
