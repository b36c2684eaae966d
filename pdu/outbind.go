package pdu

import "fmt"

// Outbind is sent by an SMSC to request that an ESME bind back to it.
// This implementation only decodes it: a Client session that has not
// yet bound passes a received outbind to ClientHooks.OnPDUReceived and
// sends no reply; neither Client nor Server originates one.
type Outbind struct {
	SystemID string
	Password string
}

// CommandID implements pdu.PDU interface.
func (p Outbind) CommandID() CommandID {
	return OutbindID
}

// MarshalBinary implements encoding.BinaryMarshaler interface.
func (p Outbind) MarshalBinary() ([]byte, error) {
	out := append([]byte(p.SystemID), 0)
	out = append(out, append([]byte(p.Password), 0)...)
	return out, nil
}

// UnmarshalBinary implements encoding.BinaryUnmarshaler interface.
func (p *Outbind) UnmarshalBinary(body []byte) error {
	buf := newBuffer(body)
	res, err := buf.ReadCString(MaxSystemIDLen)
	if err != nil {
		return fmt.Errorf("smpp/pdu: decoding system_id %s", err)
	}
	p.SystemID = string(res)
	res, err = buf.ReadCString(MaxPasswordLen)
	if err != nil {
		return fmt.Errorf("smpp/pdu: decoding password %s", err)
	}
	p.Password = string(res)
	return nil
}
