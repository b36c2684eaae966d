package pdu

// Unknown represents a PDU whose command_id is not part of the
// supported command set. It round-trips its raw body unchanged so a
// session can still reply with generic_nack/ESME_RINVCMDID, or relay
// the bytes, without the decoder ever panicking on adversarial input.
type Unknown struct {
	ID   CommandID
	Body []byte
}

// CommandID implements pdu.PDU interface.
func (p Unknown) CommandID() CommandID {
	return p.ID
}

// MarshalBinary implements encoding.BinaryMarshaler interface.
func (p Unknown) MarshalBinary() ([]byte, error) {
	return p.Body, nil
}

// UnmarshalBinary implements encoding.BinaryUnmarshaler interface.
func (p *Unknown) UnmarshalBinary(body []byte) error {
	p.Body = append([]byte(nil), body...)
	return nil
}
