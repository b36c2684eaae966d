package smpp

import (
	"context"
	"net"
	"sync"
	"time"

	"github.com/cenkalti/backoff/v4"
	"golang.org/x/sync/semaphore"

	"github.com/codcod/smppai/internal/registry"
	"github.com/codcod/smppai/internal/shutdown"
	"github.com/codcod/smppai/pdu"
	"github.com/codcod/smppai/smpperr"
	"github.com/codcod/smppai/smpplog"
)

// tcpKeepAliveListener sets TCP keep-alive timeouts on accepted
// connections. It's used by ListenAndServe so dead TCP connections
// (e.g. closing laptop mid-download) eventually go away.
type tcpKeepAliveListener struct {
	*net.TCPListener
}

func (ln tcpKeepAliveListener) Accept() (c net.Conn, err error) {
	tc, err := ln.AcceptTCP()
	if err != nil {
		return
	}
	tc.SetKeepAlive(true)
	tc.SetKeepAlivePeriod(3 * time.Minute)
	return tc, nil
}

// ServerHooks lets an embedder authenticate binds and observe client
// lifecycle and inbound messages, without handing Server a single
// catch-all callback for every event.
type ServerHooks interface {
	// Authenticate is called on every bind request before a
	// bind_*_resp is sent. A non-nil error rejects the bind with
	// ESME_RINVPASWD and closes the session.
	Authenticate(systemID, password string) error
	// OnClientConnected is called once a TCP connection is accepted
	// and its session created, before any bind.
	OnClientConnected(sessionID, remoteAddr string)
	// OnClientBound is called once a bind succeeds.
	OnClientBound(sessionID, systemID string, bindState SessionState)
	// OnClientDisconnected is called once the session closes, bound
	// or not.
	OnClientDisconnected(sessionID string)
	// OnMessageReceived is called for every submit_sm accepted from a
	// bound client; the returned message_id is echoed in submit_sm_resp.
	OnMessageReceived(sessionID, systemID string, sm *pdu.SubmitSm) (messageID string, err error)
}

// NoopServerHooks implements ServerHooks with no-op/always-allow
// methods, the default for ServerConf.Hooks.
type NoopServerHooks struct{}

// Authenticate implements ServerHooks; accepts every bind.
func (NoopServerHooks) Authenticate(string, string) error { return nil }

// OnClientConnected implements ServerHooks.
func (NoopServerHooks) OnClientConnected(string, string) {}

// OnClientBound implements ServerHooks.
func (NoopServerHooks) OnClientBound(string, string, SessionState) {}

// OnClientDisconnected implements ServerHooks.
func (NoopServerHooks) OnClientDisconnected(string) {}

// OnMessageReceived implements ServerHooks; accepts the message with
// an empty message_id.
func (NoopServerHooks) OnMessageReceived(string, string, *pdu.SubmitSm) (string, error) {
	return "", nil
}

// ServerConf configures a Server's listener, timers and capacity.
type ServerConf struct {
	// Addr is the address ListenAndServe listens on; defaults to
	// ":2775".
	Addr string
	// MaxConnections bounds concurrently accepted sessions; beyond
	// it, the accept still completes but the session is immediately
	// failed with ESME_RSYSERR. Defaults to 1000.
	MaxConnections int
	// BindTimeout is how long a connected-but-unbound session is
	// kept open before being closed. Defaults to 10s.
	BindTimeout time.Duration
	// ResponseTimeout and EnquireLinkInterval are applied to every
	// accepted session's SessionConf.
	ResponseTimeout     time.Duration
	EnquireLinkInterval time.Duration

	Hooks  ServerHooks
	Logger smpplog.Logger
}

// Server is the SMSC (acceptor) side of SMPP: it listens for TCP
// connections, runs one Session per connection, authenticates binds
// through ServerHooks, and routes DeliverSm by system_id through an
// internal session registry.
type Server struct {
	conf     ServerConf
	sem      *semaphore.Weighted
	registry *registry.Registry
	coord    *shutdown.Coordinator

	wg         sync.WaitGroup
	mu         sync.Mutex
	listeners  map[net.Listener]struct{}
	doneChan   chan struct{}
	activeSess map[string]*Session
}

// NewServer creates a Server ready to Serve or ListenAndServe.
func NewServer(conf ServerConf) *Server {
	if conf.Addr == "" {
		conf.Addr = ":2775"
	}
	if conf.MaxConnections == 0 {
		conf.MaxConnections = 1000
	}
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
		conf.Hooks = NoopServerHooks{}
	}
	if conf.Logger == nil {
		conf.Logger = smpplog.Default()
	}
	return &Server{
		conf:       conf,
		sem:        semaphore.NewWeighted(int64(conf.MaxConnections)),
		registry:   registry.New(),
		coord:      shutdown.New(),
		activeSess: make(map[string]*Session),
	}
}

// ListenAndServe listens on ServerConf.Addr and serves it. Blocking.
func (srv *Server) ListenAndServe() error {
	ln, err := net.Listen("tcp", srv.conf.Addr)
	if err != nil {
		return err
	}
	return srv.Serve(tcpKeepAliveListener{ln.(*net.TCPListener)})
}

// Serve accepts connections on ln and runs one Session per connection
// until Stop or Close is called. Blocking.
func (srv *Server) Serve(ln net.Listener) error {
	defer ln.Close()
	srv.trackListener(ln, true)

	bo := backoff.NewExponentialBackOff()
	bo.InitialInterval = 5 * time.Millisecond
	bo.MaxInterval = 1 * time.Second
	bo.MaxElapsedTime = 0
	for {
		conn, err := ln.Accept()
		if err != nil {
			select {
			case <-srv.getDoneChan():
				return nil
			default:
			}
			if ne, ok := err.(net.Error); ok && ne.Temporary() {
				d := bo.NextBackOff()
				srv.conf.Logger.ErrorF("accept temporary error, retrying in %s: %v", d, err)
				time.Sleep(d)
				continue
			}
			return err
		}
		bo.Reset()
		srv.wg.Add(1)
		done := srv.coord.Track()
		go func() {
			defer srv.wg.Done()
			defer done()
			srv.handleConn(conn)
		}()
	}
}

func (srv *Server) handleConn(conn net.Conn) {
	if !srv.sem.TryAcquire(1) {
		srv.rejectCapacity(conn)
		return
	}
	defer srv.sem.Release(1)

	sess := NewSession(conn, SessionConf{
		Type:                SMSC,
		ResponseTimeout:     srv.conf.ResponseTimeout,
		EnquireLinkInterval: srv.conf.EnquireLinkInterval,
		Logger:              srv.conf.Logger,
		Handler:             HandlerFunc(srv.serveSMPP),
	})
	srv.trackSess(sess)
	srv.conf.Hooks.OnClientConnected(sess.ID(), sess.remoteAddr())

	bindDeadline := time.AfterFunc(srv.conf.BindTimeout, func() {
		if sess.State() == StateOpen || sess.State() == StateBinding {
			sess.conf.Logger.ErrorF("bind_timeout exceeded: %s", sess)
			sess.Close()
		}
	})
	<-sess.NotifyClosed()
	bindDeadline.Stop()

	srv.registry.Remove(sess.ID())
	srv.untrackSess(sess.ID())
	srv.conf.Hooks.OnClientDisconnected(sess.ID())
}

func (srv *Server) rejectCapacity(conn net.Conn) {
	capHandler := HandlerFunc(func(ctx *Context) {
		ctx.Respond(&pdu.GenericNack{}, pdu.StatusSysErr)
		ctx.CloseSession()
	})
	sess := NewSession(conn, SessionConf{Type: SMSC, Logger: srv.conf.Logger, Handler: capHandler})
	srv.conf.Logger.ErrorF("max_connections exceeded, rejecting: %s", sess)
	<-sess.NotifyClosed()
}

func (srv *Server) serveSMPP(ctx *Context) {
	switch ctx.CommandID() {
	case pdu.BindTransmitterID:
		req, err := ctx.BindTx()
		if err != nil {
			return
		}
		srv.handleBind(ctx, req.SystemID, req.Password, req.Response(req.SystemID), false)
	case pdu.BindReceiverID:
		req, err := ctx.BindRx()
		if err != nil {
			return
		}
		srv.handleBind(ctx, req.SystemID, req.Password, req.Response(req.SystemID), true)
	case pdu.BindTransceiverID:
		req, err := ctx.BindTRx()
		if err != nil {
			return
		}
		srv.handleBind(ctx, req.SystemID, req.Password, req.Response(req.SystemID), true)
	case pdu.EnquireLinkID:
		ctx.Respond(&pdu.EnquireLinkResp{}, pdu.StatusOK)
	case pdu.SubmitSmID:
		srv.handleSubmitSm(ctx)
	case pdu.UnbindID:
		ctx.Respond(&pdu.UnbindResp{}, pdu.StatusOK)
		ctx.CloseSession()
	default:
		ctx.Respond(&pdu.GenericNack{}, pdu.StatusInvCmdID)
	}
}

func (srv *Server) handleBind(ctx *Context, systemID, password string, resp pdu.PDU, canReceive bool) {
	if err := srv.conf.Hooks.Authenticate(systemID, password); err != nil {
		ctx.Respond(&pdu.GenericNack{}, pdu.StatusInvPaswd)
		ctx.CloseSession()
		return
	}
	if err := ctx.Respond(resp, pdu.StatusOK); err != nil {
		return
	}
	srv.registry.Put(registry.Entry{
		SessionID:  ctx.SessionID(),
		SystemID:   systemID,
		CanReceive: canReceive,
	})
	srv.conf.Hooks.OnClientBound(ctx.SessionID(), systemID, ctx.sess.State())
}

func (srv *Server) handleSubmitSm(ctx *Context) {
	req, err := ctx.SubmitSm()
	if err != nil {
		return
	}
	msgID, err := srv.conf.Hooks.OnMessageReceived(ctx.SessionID(), ctx.SystemID(), req)
	if err != nil {
		ctx.Respond(&pdu.GenericNack{}, pdu.StatusSysErr)
		return
	}
	ctx.Respond(req.Response(msgID), pdu.StatusOK)
}

// DeliverSm routes a short message to one bound, receive-capable
// session registered under targetSystemID. Returns
// smpperr.NoSuchPeer if none is bound.
func (srv *Server) DeliverSm(ctx context.Context, targetSystemID string, req *pdu.DeliverSm) (*pdu.DeliverSmResp, error) {
	ids := srv.registry.Lookup(targetSystemID)
	if len(ids) == 0 {
		return nil, smpperr.NoSuchPeer(targetSystemID)
	}
	srv.mu.Lock()
	sess, ok := srv.activeSess[ids[0]]
	srv.mu.Unlock()
	if !ok {
		return nil, smpperr.NoSuchPeer(targetSystemID)
	}
	resp, err := sess.Send(ctx, req)
	if err != nil {
		return nil, err
	}
	dr, ok := resp.(*pdu.DeliverSmResp)
	if !ok {
		return nil, smpperr.Protocol(nil, "unexpected response type %s to deliver_sm", resp.CommandID())
	}
	return dr, nil
}

// Stop gracefully shuts the server down: it stops accepting new
// connections, sends unbind to every bound session, then waits up to
// ctx's deadline for in-flight sessions to close on their own before
// force-closing whatever remains.
func (srv *Server) Stop(ctx context.Context) error {
	srv.mu.Lock()
	srv.closeDoneChanLocked()
	if err := srv.closeListenersLocked(); err != nil {
		srv.conf.Logger.ErrorF("closing listeners during Stop: %v", err)
	}
	for _, sess := range srv.activeSess {
		go sess.Send(ctx, &pdu.Unbind{})
	}
	srv.mu.Unlock()

	if err := srv.coord.Wait(ctx); err != nil {
		return srv.Close()
	}
	return srv.Close()
}

// Close closes every listener and active session immediately.
func (srv *Server) Close() error {
	srv.mu.Lock()
	srv.closeDoneChanLocked()
	err := srv.closeListenersLocked()
	sessions := make([]*Session, 0, len(srv.activeSess))
	for _, sess := range srv.activeSess {
		sessions = append(sessions, sess)
	}
	srv.mu.Unlock()
	for _, sess := range sessions {
		sess.Close()
	}
	srv.wg.Wait()
	return err
}

func (srv *Server) getDoneChan() <-chan struct{} {
	srv.mu.Lock()
	defer srv.mu.Unlock()
	return srv.getDoneChanLocked()
}

func (srv *Server) getDoneChanLocked() chan struct{} {
	if srv.doneChan == nil {
		srv.doneChan = make(chan struct{})
	}
	return srv.doneChan
}

func (srv *Server) closeDoneChanLocked() {
	ch := srv.getDoneChanLocked()
	select {
	case <-ch:
	default:
		close(ch)
	}
}

func (srv *Server) trackListener(ln net.Listener, add bool) {
	srv.mu.Lock()
	defer srv.mu.Unlock()
	if srv.listeners == nil {
		srv.listeners = make(map[net.Listener]struct{})
	}
	if add {
		if len(srv.listeners) == 0 && len(srv.activeSess) == 0 {
			srv.doneChan = nil
		}
		srv.listeners[ln] = struct{}{}
	} else {
		delete(srv.listeners, ln)
	}
}

func (srv *Server) closeListenersLocked() error {
	var err error
	for ln := range srv.listeners {
		if cerr := ln.Close(); cerr != nil && err == nil {
			err = cerr
		}
		delete(srv.listeners, ln)
	}
	return err
}

func (srv *Server) trackSess(sess *Session) {
	srv.mu.Lock()
	defer srv.mu.Unlock()
	srv.activeSess[sess.ID()] = sess
}

func (srv *Server) untrackSess(id string) {
	srv.mu.Lock()
	defer srv.mu.Unlock()
	delete(srv.activeSess, id)
}
