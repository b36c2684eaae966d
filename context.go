package smpp

import (
	"context"
	"errors"
	"fmt"

	"github.com/codcod/smppai/pdu"
)

// Context carries everything a Handler needs to process one inbound
// PDU: the request itself, the session it arrived on, and a way to
// send the matching response.
type Context struct {
	sess   *Session
	status pdu.Status
	ctx    context.Context
	seq    uint32
	req    pdu.PDU
	resp   pdu.PDU
	close  bool
}

// SystemID returns the system_id of the bound peer the request came from.
func (ctx *Context) SystemID() string {
	return ctx.sess.SystemID()
}

// SessionID returns the ID of the session handling this request.
func (ctx *Context) SessionID() string {
	return ctx.sess.ID()
}

// CommandID returns the command_id of the PDU request.
func (ctx *Context) CommandID() pdu.CommandID {
	return ctx.req.CommandID()
}

// PDU returns the raw request PDU, for callers that want to dispatch
// on its concrete type themselves instead of calling the per-command
// accessors below.
func (ctx *Context) PDU() pdu.PDU {
	return ctx.req
}

// RemoteAddr returns the network address of the bound peer.
func (ctx *Context) RemoteAddr() string {
	return ctx.sess.remoteAddr()
}

// Context returns the request's cancellation context.
func (ctx *Context) Context() context.Context {
	return ctx.ctx
}

// Status returns the command_status the handler responded with, once
// Respond has been called.
func (ctx *Context) Status() pdu.Status {
	return ctx.status
}

// Respond sends resp back to the bound peer with its sequence_number
// set to the request's, per SMPP v3.4 section 4.1.
func (ctx *Context) Respond(resp pdu.PDU, status pdu.Status) error {
	if resp == nil {
		return errors.New("smpp: responding with nil PDU")
	}
	ctx.status = status
	ctx.resp = resp

	ctx.sess.mu.Lock()
	if err := ctx.sess.makeTransition(resp.CommandID(), false); err != nil {
		ctx.sess.conf.Logger.ErrorF("transitioning resp pdu: %s %v", ctx.sess, err)
		ctx.sess.mu.Unlock()
		return err
	}
	_, err := ctx.sess.enc.Encode(resp, pdu.EncodeStatus(status), pdu.EncodeSeq(ctx.seq))
	if err != nil {
		ctx.sess.conf.Logger.ErrorF("error encoding pdu: %s %v", ctx.sess, err)
		ctx.sess.mu.Unlock()
		return err
	}
	ctx.sess.conf.Logger.InfoF("sent response: %s %s", ctx.sess, resp.CommandID())
	ctx.sess.mu.Unlock()

	return nil
}

// CloseSession initiates session shutdown once the handler returns.
func (ctx *Context) CloseSession() {
	ctx.close = true
}

func castErr(id pdu.CommandID) error {
	return fmt.Errorf("smpp: invalid cast, request PDU is of type %s", id)
}

// GenericNack returns the request PDU as *pdu.GenericNack.
func (ctx *Context) GenericNack() (*pdu.GenericNack, error) {
	if p, ok := ctx.req.(*pdu.GenericNack); ok {
		return p, nil
	}
	return nil, castErr(ctx.req.CommandID())
}

// BindRx returns the request PDU as *pdu.BindRx.
func (ctx *Context) BindRx() (*pdu.BindRx, error) {
	if p, ok := ctx.req.(*pdu.BindRx); ok {
		return p, nil
	}
	return nil, castErr(ctx.req.CommandID())
}

// BindRxResp returns the request PDU as *pdu.BindRxResp.
func (ctx *Context) BindRxResp() (*pdu.BindRxResp, error) {
	if p, ok := ctx.req.(*pdu.BindRxResp); ok {
		return p, nil
	}
	return nil, castErr(ctx.req.CommandID())
}

// BindTx returns the request PDU as *pdu.BindTx.
func (ctx *Context) BindTx() (*pdu.BindTx, error) {
	if p, ok := ctx.req.(*pdu.BindTx); ok {
		return p, nil
	}
	return nil, castErr(ctx.req.CommandID())
}

// BindTxResp returns the request PDU as *pdu.BindTxResp.
func (ctx *Context) BindTxResp() (*pdu.BindTxResp, error) {
	if p, ok := ctx.req.(*pdu.BindTxResp); ok {
		return p, nil
	}
	return nil, castErr(ctx.req.CommandID())
}

// BindTRx returns the request PDU as *pdu.BindTRx.
func (ctx *Context) BindTRx() (*pdu.BindTRx, error) {
	if p, ok := ctx.req.(*pdu.BindTRx); ok {
		return p, nil
	}
	return nil, castErr(ctx.req.CommandID())
}

// BindTRxResp returns the request PDU as *pdu.BindTRxResp.
func (ctx *Context) BindTRxResp() (*pdu.BindTRxResp, error) {
	if p, ok := ctx.req.(*pdu.BindTRxResp); ok {
		return p, nil
	}
	return nil, castErr(ctx.req.CommandID())
}

// Outbind returns the request PDU as *pdu.Outbind.
func (ctx *Context) Outbind() (*pdu.Outbind, error) {
	if p, ok := ctx.req.(*pdu.Outbind); ok {
		return p, nil
	}
	return nil, castErr(ctx.req.CommandID())
}

// SubmitSm returns the request PDU as *pdu.SubmitSm.
func (ctx *Context) SubmitSm() (*pdu.SubmitSm, error) {
	if p, ok := ctx.req.(*pdu.SubmitSm); ok {
		return p, nil
	}
	return nil, castErr(ctx.req.CommandID())
}

// SubmitSmResp returns the request PDU as *pdu.SubmitSmResp.
func (ctx *Context) SubmitSmResp() (*pdu.SubmitSmResp, error) {
	if p, ok := ctx.req.(*pdu.SubmitSmResp); ok {
		return p, nil
	}
	return nil, castErr(ctx.req.CommandID())
}

// DeliverSm returns the request PDU as *pdu.DeliverSm.
func (ctx *Context) DeliverSm() (*pdu.DeliverSm, error) {
	if p, ok := ctx.req.(*pdu.DeliverSm); ok {
		return p, nil
	}
	return nil, castErr(ctx.req.CommandID())
}

// DeliverSmResp returns the request PDU as *pdu.DeliverSmResp.
func (ctx *Context) DeliverSmResp() (*pdu.DeliverSmResp, error) {
	if p, ok := ctx.req.(*pdu.DeliverSmResp); ok {
		return p, nil
	}
	return nil, castErr(ctx.req.CommandID())
}

// Unbind returns the request PDU as *pdu.Unbind.
func (ctx *Context) Unbind() (*pdu.Unbind, error) {
	if p, ok := ctx.req.(*pdu.Unbind); ok {
		return p, nil
	}
	return nil, castErr(ctx.req.CommandID())
}

// UnbindResp returns the request PDU as *pdu.UnbindResp.
func (ctx *Context) UnbindResp() (*pdu.UnbindResp, error) {
	if p, ok := ctx.req.(*pdu.UnbindResp); ok {
		return p, nil
	}
	return nil, castErr(ctx.req.CommandID())
}

// EnquireLink returns the request PDU as *pdu.EnquireLink.
func (ctx *Context) EnquireLink() (*pdu.EnquireLink, error) {
	if p, ok := ctx.req.(*pdu.EnquireLink); ok {
		return p, nil
	}
	return nil, castErr(ctx.req.CommandID())
}

// EnquireLinkResp returns the request PDU as *pdu.EnquireLinkResp.
func (ctx *Context) EnquireLinkResp() (*pdu.EnquireLinkResp, error) {
	if p, ok := ctx.req.(*pdu.EnquireLinkResp); ok {
		return p, nil
	}
	return nil, castErr(ctx.req.CommandID())
}

// Unknown returns the request PDU as *pdu.Unknown, for handlers that
// want to inspect or log an unrecognized command_id before the
// session replies with generic_nack.
func (ctx *Context) Unknown() (*pdu.Unknown, error) {
	if p, ok := ctx.req.(*pdu.Unknown); ok {
		return p, nil
	}
	return nil, castErr(ctx.req.CommandID())
}
