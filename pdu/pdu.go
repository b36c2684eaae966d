package pdu

import (
	"bytes"
	"encoding"
	"errors"
	"fmt"
	"io"
	"time"

	"github.com/codcod/smppai/frame"
	smpptime "github.com/codcod/smppai/time"
)

// errShortMessageAndPayload is returned by SubmitSm/DeliverSm when both
// short_message and the message_payload TLV are set; SMPP v3.4 allows
// only one of the two.
var errShortMessageAndPayload = errors.New("smpp/pdu: short_message and message_payload are mutually exclusive")

// PDU defines the interface for PDU structures.
type PDU interface {
	CommandID() CommandID
	encoding.BinaryMarshaler
	encoding.BinaryUnmarshaler
}

// EsmClass is used to indicate special message attributes associated with the short message.
type EsmClass struct {
	Mode    int
	Type    int
	Feature int
}

// Byte converts EsmClass into a single byte for pdu encoding.
func (ec EsmClass) Byte() byte {
	out := byte(0)
	out |= byte(ec.Mode)
	out |= byte(ec.Type) << 2
	out |= byte(ec.Feature) << 6
	return out
}

// ParseEsmClass parses esm_class from a pdu.
func ParseEsmClass(b byte) EsmClass {
	out := EsmClass{}
	out.Mode = int(b & 0x03)
	out.Type = int((b >> 2) & 0x0F)
	out.Feature = int(b >> 6)
	return out
}

const (
	DefaultEsmMode         = 0x0
	DatagramEsmMode        = 0x1
	ForwardEsmMode         = 0x2
	StoreAndForwardEsmMode = 0x3
	NotApplicableEsmMode   = 0x7
)

const (
	DefaultEsmType = 0x0
	DelRecEsmType  = 0x1
	DelAckEsmType  = 0x2
	UsrAckEsmType  = 0x4
	ConAbtEsmType  = 0x6
	IDNEsmType     = 0x8
)

const (
	NoEsmFeat          = 0x0
	UDHIEsmFeat        = 0x1
	RepPathEsmFeat     = 0x2
	UDHIRepPathEsmFeat = 0x3
)

// RegisteredDelivery is used to request an SMSC delivery receipt and/or SME
// originated acknowledgements.
type RegisteredDelivery struct {
	Receipt           int
	SMEAck            int
	InterNotification int
}

// Byte converts RegisteredDelivery into a single byte for pdu encoding.
func (rd RegisteredDelivery) Byte() byte {
	out := byte(0)
	out |= byte(rd.Receipt)
	out |= byte(rd.SMEAck) << 2
	out |= byte(rd.InterNotification) << 4
	return out
}

// ParseRegisteredDelivery parses registered_delivery from a pdu.
func ParseRegisteredDelivery(b byte) RegisteredDelivery {
	out := RegisteredDelivery{}
	out.Receipt = int(b & 0x03)
	out.SMEAck = int((b >> 2) & 0x0F)
	out.InterNotification = int((b >> 4) & 0x01)
	return out
}

const (
	NoDeliveryReceipt   = 0x0
	YesDeliveryReceipt  = 0x1
	FailDeliveryReceipt = 0x2
)

const (
	NoSMEAck     = 0x0
	YesSMEAck    = 0x1
	ManualSMEAck = 0x2
	AllSMEAck    = 0x3
)

const (
	NoInterNotification  = 0x0
	YesInterNotification = 0x1
)

func writeTime(layout smpptime.Layout, t time.Time) ([]byte, error) {
	var schedDel []byte
	if !t.IsZero() {
		out, err := smpptime.Format(layout, t)
		if err != nil {
			return nil, err
		}
		schedDel = []byte(out)
	}
	return append(schedDel, 0), nil
}

type pduReader struct {
	*bytes.Buffer
}

func newBuffer(buf []byte) *pduReader {
	return &pduReader{
		Buffer: bytes.NewBuffer(buf),
	}
}

func (r *pduReader) ReadCString(limit int) ([]byte, error) {
	var out []byte
	i := 0
	for {
		i++
		b, err := r.ReadByte()
		if err != nil {
			return nil, err
		}
		if b == 0x0 {
			return out, nil
		}
		if i == limit {
			return nil, errors.New("smpp/pdu: c-octet string exceeds field limit")
		}
		out = append(out, b)
	}
}

func (r *pduReader) ReadString(limit int) ([]byte, error) {
	l, err := r.ReadByte()
	if err != nil {
		return nil, err
	}
	if int(l) > limit {
		return nil, errors.New("smpp/pdu: octet string exceeds field limit")
	}
	out := make([]byte, l)
	n, err := r.Read(out)
	if err != nil {
		return nil, err
	}
	if n != int(l) {
		return nil, errors.New("smpp/pdu: octet string read count mismatch")
	}
	return out, nil
}

func cStringOptsRespUnmarshal(body []byte) (string, *Options, error) {
	n := -1
	for i := 0; i < len(body); i++ {
		if body[i] == 0 {
			n = i + 1
			break
		}
	}
	if n < 0 {
		return "", nil, errors.New("smpp/pdu: c-octet string is not terminated")
	}
	var opts *Options
	if len(body[n:]) > 0 {
		opts = NewOptions()
		if err := opts.UnmarshalBinary(body[n:]); err != nil {
			return "", nil, err
		}
	}
	return string(body[:n-1]), opts, nil
}

func cStringOptsRespMarshal(str string, opts *Options) ([]byte, error) {
	out := append([]byte(str), 0)
	if opts == nil {
		return out, nil
	}
	o, err := opts.MarshalBinary()
	if err != nil {
		return nil, err
	}
	return append(out, o...), nil
}

// Sequencer provides a way of altering default PDU sequencing. This
// can be useful for load balancing requests across multiple encoders
// sharing one session.
type Sequencer interface {
	Next() uint32
}

// NewSequencer creates a new sequencer with its starting value set to
// n. Valid sequence_numbers range from 0x00000001 to 0x7FFFFFFF;
// Next wraps back to 1 after reaching the top of that range.
func NewSequencer(n uint32) Sequencer {
	if n == 0 || n > 0x7FFFFFFF {
		n = 1
	}
	return &defaultSequencer{n}
}

type defaultSequencer struct {
	n uint32
}

func (seq *defaultSequencer) Next() uint32 {
	n := seq.n
	if seq.n >= 0x7FFFFFFF {
		seq.n = 1
	} else {
		seq.n++
	}
	return n
}

// Encoder encodes a PDU structure and writes it to a writer as one
// size-bounded frame.
type Encoder struct {
	fw  *frame.Writer
	seq Sequencer
}

// NewEncoder instantiates a pdu encoder. A nil seq uses the default
// sequencer starting at 1.
func NewEncoder(w io.Writer, seq Sequencer) *Encoder {
	if seq == nil {
		seq = NewSequencer(1)
	}
	return &Encoder{
		fw:  frame.NewWriter(w),
		seq: seq,
	}
}

type encoderOpts struct {
	seq    uint32
	status Status
}

// Encode marshals a PDU and writes header plus body as one frame.
func (en *Encoder) Encode(p PDU, opts ...EncoderOption) (uint32, error) {
	body, err := p.MarshalBinary()
	if err != nil {
		return 0, err
	}

	eOpts := encoderOpts{}
	for _, o := range opts {
		o(&eOpts)
	}
	if eOpts.seq == 0 {
		eOpts.seq = en.seq.Next()
	}

	if err := en.fw.WriteFrame(uint32(p.CommandID()), uint32(eOpts.status), eOpts.seq, body); err != nil {
		return eOpts.seq, fmt.Errorf("smpp/pdu: %w", err)
	}
	return eOpts.seq, nil
}

// EncoderOption customizes a single Encode call.
type EncoderOption func(*encoderOpts)

// EncodeSeq forces a specific sequence_number instead of drawing the
// next one from the encoder's Sequencer. Used when replying, since a
// response's sequence_number must echo its request's.
func EncodeSeq(seq uint32) EncoderOption {
	return func(eOpts *encoderOpts) {
		eOpts.seq = seq
	}
}

// EncodeStatus sets command_status. Used when replying with a
// non-zero status.
func EncodeStatus(status Status) EncoderOption {
	return func(eOpts *encoderOpts) {
		eOpts.status = status
	}
}

// Decoder reads PDUs from a reader, one command_length frame at a
// time.
type Decoder struct {
	fr *frame.Reader
}

// NewDecoder initializes a new PDU decoder.
func NewDecoder(r io.Reader) *Decoder {
	return &Decoder{
		fr: frame.NewReader(r),
	}
}

// Decode reads one frame and unmarshals its body. Unrecognized
// command_ids decode into an *Unknown carrying the raw body rather
// than failing; callers reply with generic_nack/ESME_RINVCMDID.
func (d *Decoder) Decode() (Header, PDU, error) {
	headerBytes, bodyBytes, err := d.fr.ReadFrame()
	if err != nil {
		if err == io.EOF {
			return nil, nil, err
		}
		return nil, nil, fmt.Errorf("smpp/pdu: %w", err)
	}

	hdr := &header{}
	if err := hdr.UnmarshalBinary(headerBytes[:]); err != nil {
		return hdr, nil, err
	}

	p := NewPDU(hdr.commandID)
	if len(bodyBytes) == 0 {
		return hdr, p, nil
	}

	if err := p.UnmarshalBinary(bodyBytes); err != nil {
		return hdr, p, err
	}

	return hdr, p, nil
}

// NewPDU creates a zero-value PDU for commandID. Unrecognized ids
// never panic; they produce an *Unknown that carries commandID so
// callers can still reply or log it.
func NewPDU(commandID CommandID) PDU {
	switch commandID {
	case GenericNackID:
		return &GenericNack{}
	case BindReceiverID:
		return &BindRx{}
	case BindReceiverRespID:
		return &BindRxResp{}
	case BindTransmitterID:
		return &BindTx{}
	case BindTransmitterRespID:
		return &BindTxResp{}
	case BindTransceiverID:
		return &BindTRx{}
	case BindTransceiverRespID:
		return &BindTRxResp{}
	case EnquireLinkID:
		return &EnquireLink{}
	case EnquireLinkRespID:
		return &EnquireLinkResp{}
	case SubmitSmID:
		return &SubmitSm{}
	case SubmitSmRespID:
		return &SubmitSmResp{}
	case DeliverSmID:
		return &DeliverSm{}
	case DeliverSmRespID:
		return &DeliverSmResp{}
	case UnbindID:
		return &Unbind{}
	case UnbindRespID:
		return &UnbindResp{}
	case OutbindID:
		return &Outbind{}
	default:
		return &Unknown{ID: commandID}
	}
}

// IsRequest reports whether id is a request command, as opposed to a
// response (its RespMask bit is set) or generic_nack.
func IsRequest(id CommandID) bool {
	return !IsResponse(id)
}

// SystemID extracts the system_id value from a PDU if it carries one.
func SystemID(p PDU) string {
	switch v := p.(type) {
	case *BindRx:
		return v.SystemID
	case *BindTx:
		return v.SystemID
	case *BindTRx:
		return v.SystemID
	case *BindRxResp:
		return v.SystemID
	case *BindTxResp:
		return v.SystemID
	case *BindTRxResp:
		return v.SystemID
	}
	return ""
}

// SeparateUDH splits c into its leading User Data Header and the
// remaining content, per the UDHL-prefixed format used when
// esm_class signals UDHI.
func SeparateUDH(c []byte) ([]byte, []byte, error) {
	if len(c) == 0 {
		return nil, c, errors.New("smpp/pdu: empty udh")
	}
	l := int(c[0])
	if l >= len(c) {
		return nil, c, errors.New("smpp/pdu: udh length exceeds content")
	}
	return c[:l+1], c[l+1:], nil
}
