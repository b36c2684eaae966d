package smpp

import (
	"context"
	"net"
	"time"

	"github.com/codcod/smppai/pdu"
	"github.com/codcod/smppai/smpperr"
	"github.com/codcod/smppai/smpplog"
)

// ClientHooks lets an embedder observe inbound PDUs and connection
// loss without handing the client a mutable function field per event.
type ClientHooks interface {
	// OnPDUReceived is called for every inbound request PDU the
	// session hands to the client, before the client's own handling of
	// it. Responses to the client's own requests, enquire_link_resp
	// included, are not passed to it.
	OnPDUReceived(p pdu.PDU)
	// OnConnectionLost is called once, when the underlying session
	// transitions to StateClosed.
	OnConnectionLost(err error)
	// OnDeliveryReceipt is called for an inbound deliver_sm whose
	// esm_class marks it as an SMSC delivery receipt and whose message
	// body parses as one. A deliver_sm that carries the receipt
	// esm_class but fails to parse is acknowledged like any other
	// deliver_sm and does not reach this hook.
	OnDeliveryReceipt(sessionID string, receipt *pdu.DeliveryReceipt)
}

// NoopClientHooks implements ClientHooks with no-op methods; embedded
// in ClientConf's default so callers only override what they need.
type NoopClientHooks struct{}

// OnPDUReceived implements ClientHooks.
func (NoopClientHooks) OnPDUReceived(pdu.PDU) {}

// OnConnectionLost implements ClientHooks.
func (NoopClientHooks) OnConnectionLost(error) {}

// OnDeliveryReceipt implements ClientHooks.
func (NoopClientHooks) OnDeliveryReceipt(string, *pdu.DeliveryReceipt) {}

// ClientConf configures a Client's connection, bind credentials and
// timers.
type ClientConf struct {
	// Addr is the SMSC's host:port, dialed by Connect.
	Addr string

	SystemID   string
	Password   string
	SystemType string
	AddrTon    int
	AddrNpi    int
	AddrRange  string

	// BindTimeout bounds how long a bind request waits for its
	// bind_*_resp.
	BindTimeout time.Duration
	// ResponseTimeout bounds every other Send call, including
	// SubmitSm and EnquireLink.
	ResponseTimeout time.Duration
	// EnquireLinkInterval drives Session's own keepAlive behavior;
	// NewClient sets it to 60s when left zero.
	EnquireLinkInterval time.Duration

	Hooks  ClientHooks
	Logger smpplog.Logger
}

// Client is the ESME side of an SMPP session: it dials the SMSC,
// binds, and exposes the bound operations a message originator needs.
type Client struct {
	conf ClientConf
	sess *Session
}

// NewClient creates a Client that is not yet connected; call Connect
// before any bind method.
func NewClient(conf ClientConf) *Client {
	if conf.BindTimeout == 0 {
		conf.BindTimeout = 10 * time.Second
	}
	if conf.ResponseTimeout == 0 {
		conf.ResponseTimeout = 30 * time.Second
	}
	if conf.EnquireLinkInterval == 0 {
		conf.EnquireLinkInterval = 60 * time.Second
	}
	if conf.Hooks == nil {
		conf.Hooks = NoopClientHooks{}
	}
	if conf.Logger == nil {
		conf.Logger = smpplog.Default()
	}
	return &Client{conf: conf}
}

// Connect dials the SMSC and starts the underlying session, unbound.
// Call one of the Bind* methods next.
func (c *Client) Connect(ctx context.Context) error {
	var d net.Dialer
	conn, err := d.DialContext(ctx, "tcp", c.conf.Addr)
	if err != nil {
		return smpperr.Connection(err, "dialing %s", c.conf.Addr)
	}
	c.sess = NewSession(conn, SessionConf{
		Type:                ESME,
		SystemID:            c.conf.SystemID,
		ResponseTimeout:     c.conf.ResponseTimeout,
		EnquireLinkInterval: c.conf.EnquireLinkInterval,
		Logger:              c.conf.Logger,
		Handler:             HandlerFunc(c.serveSMPP),
	})
	go c.watchClose()
	return nil
}

func (c *Client) serveSMPP(ctx *Context) {
	c.conf.Hooks.OnPDUReceived(ctx.PDU())
	switch ctx.CommandID() {
	case pdu.EnquireLinkID:
		ctx.Respond(&pdu.EnquireLinkResp{}, pdu.StatusOK)
	case pdu.UnbindID:
		// Server-originated unbind, e.g. during a graceful shutdown:
		// ack it and tear down our side of the connection.
		ctx.Respond(&pdu.UnbindResp{}, pdu.StatusOK)
		ctx.CloseSession()
	case pdu.DeliverSmID:
		dsm, err := ctx.DeliverSm()
		if err != nil {
			ctx.Respond(&pdu.GenericNack{}, pdu.StatusSysErr)
			return
		}
		if dsm.EsmClass.Type == pdu.DelRecEsmType {
			if receipt, err := pdu.ParseDeliveryReceipt(dsm.Message()); err == nil {
				c.conf.Hooks.OnDeliveryReceipt(ctx.SessionID(), receipt)
			}
		}
		ctx.Respond(dsm.Response(""), pdu.StatusOK)
	case pdu.OutbindID:
	default:
		ctx.Respond(&pdu.GenericNack{}, pdu.StatusInvCmdID)
	}
}

func (c *Client) watchClose() {
	<-c.sess.NotifyClosed()
	c.conf.Hooks.OnConnectionLost(smpperr.Connection(nil, "session closed"))
}

func (c *Client) bind(ctx context.Context, req pdu.PDU) error {
	bindCtx, cancel := context.WithTimeout(ctx, c.conf.BindTimeout)
	defer cancel()
	_, err := c.sess.Send(bindCtx, req)
	return err
}

// BindTransmitter binds the session as a transmitter, permitting
// SubmitSm and rejecting inbound DeliverSm.
func (c *Client) BindTransmitter(ctx context.Context) error {
	return c.bind(ctx, &pdu.BindTx{
		SystemID:         c.conf.SystemID,
		Password:         c.conf.Password,
		SystemType:       c.conf.SystemType,
		InterfaceVersion: Version,
		AddrTon:          c.conf.AddrTon,
		AddrNpi:          c.conf.AddrNpi,
		AddressRange:     c.conf.AddrRange,
	})
}

// BindReceiver binds the session as a receiver, permitting inbound
// DeliverSm and rejecting SubmitSm.
func (c *Client) BindReceiver(ctx context.Context) error {
	return c.bind(ctx, &pdu.BindRx{
		SystemID:         c.conf.SystemID,
		Password:         c.conf.Password,
		SystemType:       c.conf.SystemType,
		InterfaceVersion: Version,
		AddrTon:          c.conf.AddrTon,
		AddrNpi:          c.conf.AddrNpi,
		AddressRange:     c.conf.AddrRange,
	})
}

// BindTransceiver binds the session as a transceiver, permitting both
// SubmitSm and inbound DeliverSm.
func (c *Client) BindTransceiver(ctx context.Context) error {
	return c.bind(ctx, &pdu.BindTRx{
		SystemID:         c.conf.SystemID,
		Password:         c.conf.Password,
		SystemType:       c.conf.SystemType,
		InterfaceVersion: Version,
		AddrTon:          c.conf.AddrTon,
		AddrNpi:          c.conf.AddrNpi,
		AddressRange:     c.conf.AddrRange,
	})
}

// SubmitSm sends a short message. A ShortMessage longer than the
// 254-octet field limit is moved into the message_payload TLV
// automatically, with sm_length left at 0, per SMPP v3.4's allowance
// for long messages.
func (c *Client) SubmitSm(ctx context.Context, req *pdu.SubmitSm) (*pdu.SubmitSmResp, error) {
	if len(req.ShortMessage) > pdu.MaxShortMessageLen {
		promoted := *req
		if promoted.Options == nil {
			promoted.Options = pdu.NewOptions()
		} else {
			opts := *promoted.Options
			promoted.Options = &opts
		}
		promoted.Options.SetMessagePayload(promoted.ShortMessage)
		promoted.ShortMessage = ""
		req = &promoted
	}
	resp, err := c.sess.Send(ctx, req)
	if err != nil {
		return nil, err
	}
	sm, ok := resp.(*pdu.SubmitSmResp)
	if !ok {
		return nil, smpperr.Protocol(nil, "unexpected response type %s to submit_sm", resp.CommandID())
	}
	return sm, nil
}

// EnquireLink sends a keep-alive request outside of the session's own
// automatic keepAlive ticker, useful for callers that want to probe
// liveness on demand.
func (c *Client) EnquireLink(ctx context.Context) error {
	_, err := c.sess.Send(ctx, &pdu.EnquireLink{})
	return err
}

// Unbind sends unbind and waits for unbind_resp, leaving the
// underlying connection open; call Disconnect to close it.
func (c *Client) Unbind(ctx context.Context) error {
	_, err := c.sess.Send(ctx, &pdu.Unbind{})
	return err
}

// Disconnect closes the underlying session and connection.
func (c *Client) Disconnect() error {
	if c.sess == nil {
		return nil
	}
	return c.sess.Close()
}

// SessionID returns the ID of the underlying session, once connected.
func (c *Client) SessionID() string {
	if c.sess == nil {
		return ""
	}
	return c.sess.ID()
}

// State returns the underlying session's bind state.
func (c *Client) State() SessionState {
	if c.sess == nil {
		return StateClosed
	}
	return c.sess.State()
}

// NotifyClosed returns a channel closed once the underlying session
// reaches StateClosed, whether from Disconnect, a server-originated
// unbind, or a connection failure.
func (c *Client) NotifyClosed() <-chan struct{} {
	return c.sess.NotifyClosed()
}
