package smpp

import (
	"context"
	"fmt"
	"io"
	"net"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/codcod/smppai/pdu"
	"github.com/codcod/smppai/smpperr"
	"github.com/codcod/smppai/smpplog"
)

// SessionState describes a session's position in the SMPP v3.4 bind
// lifecycle.
type SessionState int

const (
	// StateOpen is the initial session state, connected but unbound.
	StateOpen SessionState = iota
	// StateBinding session has started binding. All communication is
	// blocked until the bind completes.
	StateBinding
	// StateBoundTx session is bound as transmitter.
	StateBoundTx
	// StateBoundRx session is bound as receiver.
	StateBoundRx
	// StateBoundTRx session is bound as transceiver.
	StateBoundTRx
	// StateUnbinding session has started unbinding. Prevents further
	// communication until the unbind completes.
	StateUnbinding
	// StateClosing session is tearing down gracefully.
	StateClosing
	// StateClosed session is closed; the underlying connection is gone.
	StateClosed
)

// SessionType defines whether a session behaves as an ESME (client) or
// an SMSC (server) for the purposes of the state machine's direction
// rules.
type SessionType int

const (
	// ESME is the client side of a session.
	ESME SessionType = iota
	// SMSC is the server side of a session.
	SMSC
)

func (s SessionState) String() string {
	switch s {
	case StateOpen:
		return "open"
	case StateBinding:
		return "binding"
	case StateBoundTx:
		return "bound_tx"
	case StateBoundRx:
		return "bound_rx"
	case StateBoundTRx:
		return "bound_trx"
	case StateUnbinding:
		return "unbinding"
	case StateClosing:
		return "closing"
	case StateClosed:
		return "closed"
	default:
		return "unknown"
	}
}

func (t SessionType) String() string {
	if t == SMSC {
		return "SMSC"
	}
	return "ESME"
}

// Handler handles inbound SMPP requests.
type Handler interface {
	ServeSMPP(ctx *Context)
}

// HandlerFunc wraps a func into a Handler.
type HandlerFunc func(ctx *Context)

// ServeSMPP implements Handler interface.
func (hc HandlerFunc) ServeSMPP(ctx *Context) {
	hc(ctx)
}

type defaultHandler struct{}

func (h defaultHandler) ServeSMPP(ctx *Context) {
	ctx.Respond(&pdu.GenericNack{}, pdu.StatusInvCmdID)
}

func genSessionID() string {
	return uuid.NewString()
}

// RemoteAddresser is an abstraction to keep Session from depending on
// net.Conn directly; any ReadWriteCloser that also exposes RemoteAddr
// gets it logged.
type RemoteAddresser interface {
	RemoteAddr() net.Addr
}

// SessionConf structures session configuration.
type SessionConf struct {
	Type SessionType
	// SendWinSize bounds how many requests this session may have
	// outstanding (sent but not yet responded to) at once.
	SendWinSize int
	// ReqWinSize bounds how many inbound requests may be dispatched
	// to Handler concurrently; beyond it, requests are throttled.
	ReqWinSize int
	// ResponseTimeout is how long Send waits for a response before
	// giving up, independent of the caller's context deadline.
	ResponseTimeout time.Duration
	// EnquireLinkInterval, when non-zero, emits enquire_link on each
	// tick of this interval, and tears the session down if two
	// consecutive ticks pass without any PDU received from the peer.
	EnquireLinkInterval time.Duration
	SessionState        func(sessionID, systemID string, state SessionState)
	SystemID             string
	ID                   string
	Logger               smpplog.Logger
	Handler              Handler
	Sequencer            pdu.Sequencer
}

type response struct {
	resp pdu.PDU
	err  error
}

// Session is the engine that coordinates the SMPP protocol for one
// bound peer: it owns a single ReadWriteCloser, decodes incoming PDUs
// on its own goroutine, matches responses to outstanding requests,
// and enforces the bind state machine.
type Session struct {
	conf        *SessionConf
	rwc         io.ReadWriteCloser
	enc         *pdu.Encoder
	dec         *pdu.Decoder
	wg          sync.WaitGroup
	mu          sync.Mutex
	reqCount    int
	sent        map[uint32]chan response
	sentAt      map[uint32]time.Time
	state       SessionState
	systemID    string
	peerType    string
	peerIfVer   int
	closed      chan struct{}
	activity    chan struct{}
}

// NewSession creates a new SMPP session and starts the goroutine that
// reads incoming PDUs, so Session.Close must be called once the
// session is no longer needed to avoid leaking it. Session takes
// ownership of rwc and closes it during shutdown.
func NewSession(rwc io.ReadWriteCloser, conf SessionConf) *Session {
	if conf.SendWinSize == 0 {
		conf.SendWinSize = 10
	}
	if conf.Logger == nil {
		conf.Logger = smpplog.Default()
	}
	if conf.Handler == nil {
		conf.Handler = &defaultHandler{}
	}
	if conf.ResponseTimeout == 0 {
		conf.ResponseTimeout = 30 * time.Second
	}
	if conf.ReqWinSize == 0 {
		conf.ReqWinSize = 10
	}
	if conf.ID == "" {
		conf.ID = genSessionID()
	}
	sess := &Session{
		conf:     &conf,
		rwc:      rwc,
		enc:      pdu.NewEncoder(rwc, conf.Sequencer),
		dec:      pdu.NewDecoder(rwc),
		sent:     make(map[uint32]chan response, conf.SendWinSize),
		sentAt:   make(map[uint32]time.Time, conf.SendWinSize),
		closed:   make(chan struct{}),
		activity: make(chan struct{}, 1),
	}
	sess.wg.Add(1)
	go sess.serve()
	if conf.EnquireLinkInterval > 0 {
		sess.wg.Add(1)
		go sess.keepAlive()
	}
	sess.wg.Add(1)
	go sess.sweepPending()
	return sess
}

// ID uniquely identifies the session.
func (sess *Session) ID() string {
	return sess.conf.ID
}

// SystemID returns SessionConf.SystemID when set (a Client sets it to
// its own system_id); otherwise the system_id learned from the bind
// PDU or bind response received, or "-" before one arrives.
func (sess *Session) SystemID() string {
	if sess.conf.SystemID != "" {
		return sess.conf.SystemID
	}
	if sess.systemID != "" {
		return sess.systemID
	}
	return "-"
}

// PeerSystemType returns the system_type the peer presented in its
// bind PDU, or "" if the session has not yet bound.
func (sess *Session) PeerSystemType() string {
	sess.mu.Lock()
	defer sess.mu.Unlock()
	return sess.peerType
}

// PeerInterfaceVersion returns the interface_version the peer
// presented in its bind PDU, or 0 if the session has not yet bound.
func (sess *Session) PeerInterfaceVersion() int {
	sess.mu.Lock()
	defer sess.mu.Unlock()
	return sess.peerIfVer
}

// State reports the session's current bind state.
func (sess *Session) State() SessionState {
	sess.mu.Lock()
	defer sess.mu.Unlock()
	return sess.state
}

func (sess *Session) String() string {
	return fmt.Sprintf("(%s:%s:%s)", sess.conf.Type, sess.SystemID(), sess.conf.ID)
}

func (sess *Session) remoteAddr() string {
	if ra, ok := sess.rwc.(RemoteAddresser); ok {
		return ra.RemoteAddr().String()
	}
	return ""
}

func (sess *Session) markActivity() {
	select {
	case sess.activity <- struct{}{}:
	default:
	}
}

// keepAlive emits enquire_link on each EnquireLinkInterval tick, and
// closes the session if two consecutive ticks pass without any PDU,
// request or response, received from the peer. Only inbound PDUs count
// as activity; the session's own sends do not.
func (sess *Session) keepAlive() {
	defer sess.wg.Done()
	ticker := time.NewTicker(sess.conf.EnquireLinkInterval)
	defer ticker.Stop()
	missed := 0
	for {
		select {
		case <-sess.closed:
			return
		case <-sess.activity:
			missed = 0
		case <-ticker.C:
			select {
			case <-sess.activity:
				missed = 0
				continue
			default:
			}
			if missed >= 1 {
				sess.conf.Logger.ErrorF("enquire_link keep-alive expired: %s", sess)
				sess.shutdown()
				return
			}
			missed++
			ctx, cancel := context.WithTimeout(context.Background(), sess.conf.ResponseTimeout)
			_, err := sess.Send(ctx, &pdu.EnquireLink{})
			cancel()
			if err != nil {
				sess.conf.Logger.ErrorF("enquire_link keep-alive: %s %v", sess, err)
			}
		}
	}
}

// sweepPending is a backstop against leaked entries in sent/sentAt: in
// normal operation Send's own timer always resolves a pending request,
// but this catches anything left behind by a future bug well past its
// ResponseTimeout instead of leaking memory forever.
func (sess *Session) sweepPending() {
	defer sess.wg.Done()
	interval := sess.conf.ResponseTimeout
	if interval <= 0 {
		interval = 30 * time.Second
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-sess.closed:
			return
		case now := <-ticker.C:
			sess.mu.Lock()
			for seq, at := range sess.sentAt {
				if now.Sub(at) > 2*sess.conf.ResponseTimeout {
					sess.conf.Logger.ErrorF("stale pending request swept: %s seq=%d", sess, seq)
					if l, ok := sess.sent[seq]; ok {
						delete(sess.sent, seq)
						close(l)
					}
					delete(sess.sentAt, seq)
				}
			}
			sess.mu.Unlock()
		}
	}
}

// serve decodes incoming PDUs and either dispatches requests to the
// Handler or matches responses to an outstanding Send call.
func (sess *Session) serve() {
	defer sess.wg.Done()
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	for {
		h, p, err := sess.dec.Decode()
		if err != nil {
			if err == io.EOF {
				sess.conf.Logger.InfoF("decoding pdu: %s %v", sess, err)
			} else {
				sess.conf.Logger.ErrorF("decoding pdu: %s %v", sess, err)
			}
			sess.shutdown()
			return
		}
		sess.markActivity()
		sess.mu.Lock()
		if sess.systemID == "" {
			if sid := pdu.SystemID(p); sid != "" {
				sess.systemID = sid
			}
			switch v := p.(type) {
			case *pdu.BindTx:
				sess.peerType, sess.peerIfVer = v.SystemType, v.InterfaceVersion
			case *pdu.BindRx:
				sess.peerType, sess.peerIfVer = v.SystemType, v.InterfaceVersion
			case *pdu.BindTRx:
				sess.peerType, sess.peerIfVer = v.SystemType, v.InterfaceVersion
			}
		}
		if _, unknown := p.(*pdu.Unknown); unknown {
			sess.conf.Logger.ErrorF("unrecognized command_id: %s 0x%08X", sess, uint32(h.CommandID()))
			sess.mu.Unlock()
			sess.replyNack(h.Sequence(), pdu.StatusInvCmdID)
			continue
		}
		if err := sess.makeTransition(h.CommandID(), true); err != nil {
			sess.conf.Logger.ErrorF("transitioning upon receive: %s %v", sess, err)
			sess.mu.Unlock()
			if pdu.IsRequest(h.CommandID()) {
				sess.replyNack(h.Sequence(), pdu.StatusInvBnd)
			}
			continue
		}
		if pdu.IsRequest(h.CommandID()) {
			sess.conf.Logger.InfoF("received request: %s %s", sess, p.CommandID())
			if sess.reqCount == sess.conf.ReqWinSize {
				sess.mu.Unlock()
				sess.throttle(h.Sequence())
			} else {
				sess.reqCount++
				sess.wg.Add(1)
				sess.mu.Unlock()
				go sess.handleRequest(ctx, h, p)
			}
			continue
		}
		if l, ok := sess.sent[h.Sequence()]; ok {
			sess.conf.Logger.InfoF("received response: %s %s", sess, p.CommandID())
			delete(sess.sent, h.Sequence())
			delete(sess.sentAt, h.Sequence())
			sess.mu.Unlock()
			l <- response{
				resp: p,
				err:  statusError(h.Status()),
			}
			continue
		}
		sess.conf.Logger.ErrorF("unexpected response: %s %s seq=%d", sess, p.CommandID(), h.Sequence())
		sess.mu.Unlock()
	}
}

func (sess *Session) replyNack(seq uint32, status pdu.Status) {
	sess.mu.Lock()
	defer sess.mu.Unlock()
	if _, err := sess.enc.Encode(&pdu.GenericNack{}, pdu.EncodeStatus(status), pdu.EncodeSeq(seq)); err != nil {
		sess.conf.Logger.ErrorF("encoding generic_nack: %s %v", sess, err)
	}
}

func (sess *Session) throttle(seq uint32) {
	sess.mu.Lock()
	defer sess.mu.Unlock()
	if _, err := sess.enc.Encode(&pdu.GenericNack{}, pdu.EncodeStatus(pdu.StatusThrottled), pdu.EncodeSeq(seq)); err != nil {
		sess.conf.Logger.ErrorF("encoding throttle response: %s %v", sess, err)
	}
}

func (sess *Session) handleRequest(ctx context.Context, h pdu.Header, req pdu.PDU) {
	ctx, cancel := context.WithTimeout(ctx, sess.conf.ResponseTimeout)
	defer func() {
		cancel()
		sess.mu.Lock()
		sess.reqCount--
		sess.mu.Unlock()
		sess.wg.Done()
	}()
	sessCtx := &Context{
		sess: sess,
		ctx:  ctx,
		seq:  h.Sequence(),
		req:  req,
	}
	sess.conf.Handler.ServeSMPP(sessCtx)

	if sessCtx.close {
		sess.shutdown()
	}
}

func (sess *Session) shutdown() {
	go sess.Close()
}

// Close disposes the session cleanly: it refuses new sends, drops any
// pending waiters, closes the underlying connection and waits for all
// in-flight handlers to finish before returning. Safe to call more
// than once.
func (sess *Session) Close() error {
	sess.mu.Lock()
	if sess.state == StateClosing || sess.state == StateClosed {
		sess.mu.Unlock()
		return nil
	}
	if err := sess.setState(StateClosing); err != nil {
		sess.mu.Unlock()
		return err
	}
	for k, l := range sess.sent {
		delete(sess.sent, k)
		delete(sess.sentAt, k)
		close(l)
	}
	sess.rwc.Close()
	if err := sess.setState(StateClosed); err != nil {
		sess.mu.Unlock()
		return err
	}
	sess.mu.Unlock()
	sess.wg.Wait()
	sess.conf.Logger.InfoF("session closed: %s", sess)
	close(sess.closed)
	return nil
}

// Must be guarded by mutex.
func (sess *Session) setState(state SessionState) error {
	if sess.state == state {
		return fmt.Errorf("smpp: setting same state twice %s", state)
	}
	switch sess.state {
	case StateOpen:
		if state != StateBinding && state != StateClosing {
			return fmt.Errorf("smpp: setting open session to invalid state %s", state)
		}
	case StateBinding:
		switch state {
		case StateOpen, StateBoundRx, StateBoundTRx, StateBoundTx, StateClosing:
		default:
			return fmt.Errorf("smpp: setting binding session to invalid state %s", state)
		}
	case StateBoundRx, StateBoundTRx, StateBoundTx:
		switch state {
		case StateUnbinding, StateClosing:
		default:
			return fmt.Errorf("smpp: setting bound session to invalid state %s", state)
		}
	case StateUnbinding:
		if state != StateClosing {
			return fmt.Errorf("smpp: setting unbinding session to invalid state %s", state)
		}
	case StateClosing:
		if state != StateClosed {
			return fmt.Errorf("smpp: setting closing session to invalid state %s", state)
		}
	case StateClosed:
		return fmt.Errorf("smpp: session %s already in closed state", sess)
	}
	sess.state = state
	if hook := sess.conf.SessionState; hook != nil {
		hook(sess.conf.ID, sess.SystemID(), sess.state)
	}
	return nil
}

// Send writes a PDU to the bound peer and waits for its matching
// response. The session's ResponseTimeout bounds the wait in addition
// to ctx; whichever fires first wins.
func (sess *Session) Send(ctx context.Context, req pdu.PDU) (pdu.PDU, error) {
	if req == nil {
		return nil, smpperr.Protocol(nil, "sending nil pdu")
	}
	sess.mu.Lock()
	if sess.state == StateClosing || sess.state == StateClosed {
		sess.mu.Unlock()
		return nil, smpperr.InvalidState("session is closed")
	}
	if len(sess.sent) == sess.conf.SendWinSize {
		sess.mu.Unlock()
		return nil, smpperr.Capacity("send window is full")
	}
	if err := sess.makeTransition(req.CommandID(), false); err != nil {
		sess.conf.Logger.ErrorF("transitioning before send: %s %v", sess, err)
		sess.mu.Unlock()
		return nil, err
	}
	seq, err := sess.enc.Encode(req)
	if err != nil {
		sess.mu.Unlock()
		return nil, smpperr.Connection(err, "encoding request")
	}
	if _, collision := sess.sent[seq]; collision {
		sess.mu.Unlock()
		return nil, smpperr.Protocol(nil, "sequence_number %d already pending", seq)
	}
	l := make(chan response, 1)
	sess.sent[seq] = l
	sess.sentAt[seq] = time.Now()
	sess.conf.Logger.InfoF("request sent: %s %s", sess, req.CommandID())
	sess.mu.Unlock()

	timeout := time.NewTimer(sess.conf.ResponseTimeout)
	defer timeout.Stop()
	select {
	case resp, ok := <-l:
		if !ok {
			return nil, smpperr.InvalidState("session closed before receiving response")
		}
		if resp.err != nil {
			return resp.resp, resp.err
		}
		return resp.resp, nil
	case <-ctx.Done():
		sess.dropWaiter(seq)
		return nil, smpperr.Cancelled()
	case <-timeout.C:
		sess.dropWaiter(seq)
		return nil, smpperr.Timeout("no response to %s within %s", req.CommandID(), sess.conf.ResponseTimeout)
	}
}

func (sess *Session) dropWaiter(seq uint32) {
	sess.mu.Lock()
	defer sess.mu.Unlock()
	if l, ok := sess.sent[seq]; ok {
		delete(sess.sent, seq)
		delete(sess.sentAt, seq)
		close(l)
	}
}

// makeTransition checks whether processing command ID in the current
// session state is a valid operation and, if so, transitions to the
// new state it triggers.
//
// Must be guarded by mutex.
func (sess *Session) makeTransition(id pdu.CommandID, received bool) error {
	// Sending from an ESME or receiving on an SMSC follow the same rules.
	if (sess.conf.Type == ESME && !received) || (sess.conf.Type == SMSC && received) {
		switch sess.state {
		case StateOpen:
			switch id {
			case pdu.BindTransceiverID, pdu.BindTransmitterID, pdu.BindReceiverID:
				return sess.setState(StateBinding)
			}
		case StateBinding:
			if id == pdu.GenericNackID {
				return sess.setState(StateOpen)
			}
		case StateBoundTx:
			switch id {
			case pdu.UnbindID:
				return sess.setState(StateUnbinding)
			case pdu.UnbindRespID, pdu.DeliverSmRespID, pdu.SubmitSmID,
				pdu.EnquireLinkID, pdu.EnquireLinkRespID, pdu.GenericNackID:
				return nil
			}
		case StateBoundRx:
			switch id {
			case pdu.UnbindID:
				return sess.setState(StateUnbinding)
			case pdu.UnbindRespID, pdu.DeliverSmRespID,
				pdu.EnquireLinkID, pdu.EnquireLinkRespID, pdu.GenericNackID:
				return nil
			}
		case StateBoundTRx:
			switch id {
			case pdu.UnbindID:
				return sess.setState(StateUnbinding)
			case pdu.SubmitSmID, pdu.SubmitSmRespID, pdu.DeliverSmRespID,
				pdu.EnquireLinkID, pdu.EnquireLinkRespID, pdu.GenericNackID:
				return nil
			}
		case StateUnbinding:
			if id == pdu.UnbindRespID {
				return nil
			}
		case StateClosing, StateClosed:
		}
		// Sending from an SMSC or receiving on an ESME follow the same rules.
	} else if (sess.conf.Type == SMSC && !received) || (sess.conf.Type == ESME && received) {
		switch sess.state {
		case StateOpen:
			if id == pdu.OutbindID {
				return nil
			}
		case StateBinding:
			switch id {
			case pdu.BindTransceiverRespID:
				return sess.setState(StateBoundTRx)
			case pdu.BindTransmitterRespID:
				return sess.setState(StateBoundTx)
			case pdu.BindReceiverRespID:
				return sess.setState(StateBoundRx)
			case pdu.GenericNackID:
				return sess.setState(StateOpen)
			}
		case StateBoundTx:
			switch id {
			case pdu.UnbindID:
				return sess.setState(StateUnbinding)
			case pdu.SubmitSmRespID, pdu.EnquireLinkID, pdu.EnquireLinkRespID, pdu.GenericNackID:
				return nil
			}
		case StateBoundRx:
			switch id {
			case pdu.UnbindID:
				return sess.setState(StateUnbinding)
			case pdu.DeliverSmID, pdu.EnquireLinkID, pdu.EnquireLinkRespID, pdu.GenericNackID:
				return nil
			}
		case StateBoundTRx:
			switch id {
			case pdu.UnbindID:
				return sess.setState(StateUnbinding)
			case pdu.SubmitSmRespID, pdu.DeliverSmID,
				pdu.EnquireLinkID, pdu.EnquireLinkRespID, pdu.GenericNackID:
				return nil
			}
		case StateUnbinding:
			if id == pdu.UnbindRespID {
				return nil
			}
		case StateClosing, StateClosed:
		}
	}
	return smpperr.InvalidState("processing %s in session state %s", id, sess.state)
}

// NotifyClosed returns a channel closed once the session enters
// StateClosed.
func (sess *Session) NotifyClosed() <-chan struct{} {
	return sess.closed
}

// statusError turns a non-zero command_status on a response into an
// error; StatusOK maps to nil so callers can treat Send's error return
// as the sole success signal.
func statusError(status pdu.Status) error {
	if status == pdu.StatusOK {
		return nil
	}
	return smpperr.Bind(status)
}
