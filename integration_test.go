package smpp_test

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/codcod/smppai"
	"github.com/codcod/smppai/pdu"
	"github.com/codcod/smppai/smpperr"
)

// acceptingHooks authenticates (c1,p1) and acks every submit_sm with a
// fixed message_id, exercising the S1/S2 happy path end to end.
type acceptingHooks struct {
	smpp.NoopServerHooks
	bound chan string
}

func (h acceptingHooks) Authenticate(systemID, password string) error {
	if systemID == "c1" && password == "p1" {
		return nil
	}
	return errors.New("invalid credentials")
}

func (h acceptingHooks) OnClientBound(sessionID, systemID string, state smpp.SessionState) {
	if h.bound != nil {
		h.bound <- systemID
	}
}

func (acceptingHooks) OnMessageReceived(sessionID, systemID string, sm *pdu.SubmitSm) (string, error) {
	return "MSG_000001", nil
}

// neverRespondHooks authenticates (c1,p1) but blocks forever on every
// submit_sm, so the client's own response timer is what fires.
type neverRespondHooks struct {
	smpp.NoopServerHooks
}

func (neverRespondHooks) Authenticate(systemID, password string) error {
	if systemID == "c1" && password == "p1" {
		return nil
	}
	return errors.New("invalid credentials")
}

func (neverRespondHooks) OnMessageReceived(sessionID, systemID string, sm *pdu.SubmitSm) (string, error) {
	select {}
}

func TestIntegrationBindUnbindRoundTrip(t *testing.T) {
	addr := "127.0.0.1:31401"
	srv := smpp.NewServer(smpp.ServerConf{Addr: addr, Hooks: acceptingHooks{}})
	go srv.ListenAndServe()
	defer srv.Close()
	time.Sleep(20 * time.Millisecond)

	c := smpp.NewClient(smpp.ClientConf{Addr: addr, SystemID: "c1", Password: "p1"})
	if err := c.Connect(context.Background()); err != nil {
		t.Fatalf("Connect: %v", err)
	}
	defer c.Disconnect()

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	if err := c.BindTransceiver(ctx); err != nil {
		t.Fatalf("BindTransceiver: %v", err)
	}
	if got, want := c.State(), smpp.StateBoundTRx; got != want {
		t.Errorf("client state after bind = %v, want %v", got, want)
	}

	if err := c.Unbind(ctx); err != nil {
		t.Fatalf("Unbind: %v", err)
	}
	if err := c.Disconnect(); err != nil {
		t.Fatalf("Disconnect: %v", err)
	}
	select {
	case <-c.NotifyClosed():
	case <-time.After(time.Second):
		t.Fatal("client session did not close after unbind")
	}
	if got, want := c.State(), smpp.StateClosed; got != want {
		t.Errorf("client state after unbind+disconnect = %v, want %v", got, want)
	}
}

func TestIntegrationSubmitSmHappyPath(t *testing.T) {
	addr := "127.0.0.1:31402"
	srv := smpp.NewServer(smpp.ServerConf{Addr: addr, Hooks: acceptingHooks{}})
	go srv.ListenAndServe()
	defer srv.Close()
	time.Sleep(20 * time.Millisecond)

	c := smpp.NewClient(smpp.ClientConf{Addr: addr, SystemID: "c1", Password: "p1"})
	if err := c.Connect(context.Background()); err != nil {
		t.Fatalf("Connect: %v", err)
	}
	defer c.Disconnect()

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	if err := c.BindTransceiver(ctx); err != nil {
		t.Fatalf("BindTransceiver: %v", err)
	}

	resp, err := c.SubmitSm(ctx, &pdu.SubmitSm{
		SourceAddr:         "1234",
		DestinationAddr:    "5678",
		ShortMessage:       "Hello",
		DataCoding:         0,
		RegisteredDelivery: 0,
	})
	if err != nil {
		t.Fatalf("SubmitSm: %v", err)
	}
	if resp.MessageID != "MSG_000001" {
		t.Errorf("MessageID = %q, want %q", resp.MessageID, "MSG_000001")
	}
}

func TestIntegrationBindRejected(t *testing.T) {
	addr := "127.0.0.1:31403"
	srv := smpp.NewServer(smpp.ServerConf{Addr: addr, Hooks: acceptingHooks{}})
	go srv.ListenAndServe()
	defer srv.Close()
	time.Sleep(20 * time.Millisecond)

	c := smpp.NewClient(smpp.ClientConf{Addr: addr, SystemID: "c1", Password: "wrong"})
	if err := c.Connect(context.Background()); err != nil {
		t.Fatalf("Connect: %v", err)
	}
	defer c.Disconnect()

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	err := c.BindTransmitter(ctx)
	if err == nil {
		t.Fatal("BindTransmitter() => nil error, expected ESME_RINVPASWD")
	}
	var serr *smpperr.Error
	if !errors.As(err, &serr) {
		t.Fatalf("error type = %T, want *smpperr.Error", err)
	}
	if serr.Status != pdu.StatusInvPaswd {
		t.Errorf("status = 0x%08X, want 0x%08X", uint32(serr.Status), uint32(pdu.StatusInvPaswd))
	}

	select {
	case <-c.NotifyClosed():
	case <-time.After(time.Second):
		t.Fatal("client session did not close after rejected bind")
	}
}

func TestIntegrationSubmitSmResponseTimeout(t *testing.T) {
	addr := "127.0.0.1:31404"
	// neverRespondHooks authenticates but blocks on every submit_sm,
	// forcing the client's own response timer to fire.
	srv := smpp.NewServer(smpp.ServerConf{Addr: addr, Hooks: neverRespondHooks{}})
	go srv.ListenAndServe()
	defer srv.Close()
	time.Sleep(20 * time.Millisecond)

	c := smpp.NewClient(smpp.ClientConf{
		Addr:            addr,
		SystemID:        "c1",
		Password:        "p1",
		ResponseTimeout: 200 * time.Millisecond,
	})
	if err := c.Connect(context.Background()); err != nil {
		t.Fatalf("Connect: %v", err)
	}
	defer c.Disconnect()

	bctx, bcancel := context.WithTimeout(context.Background(), time.Second)
	defer bcancel()
	if err := c.BindTransceiver(bctx); err != nil {
		t.Fatalf("BindTransceiver: %v", err)
	}

	sctx, scancel := context.WithTimeout(context.Background(), time.Second)
	defer scancel()
	_, err := c.SubmitSm(sctx, &pdu.SubmitSm{
		SourceAddr:      "1234",
		DestinationAddr: "5678",
		ShortMessage:    "times out",
	})
	if err == nil {
		t.Fatal("SubmitSm() => nil error, expected timeout")
	}
	var serr *smpperr.Error
	if errors.As(err, &serr) && serr.Kind != smpperr.KindTimeout {
		t.Errorf("error kind = %v, want %v", serr.Kind, smpperr.KindTimeout)
	}
	if got, want := c.State(), smpp.StateBoundTRx; got != want {
		t.Errorf("session state after timeout = %v, want %v (session must stay usable)", got, want)
	}
}

func TestIntegrationEnquireLinkKeepsSessionAlive(t *testing.T) {
	addr := "127.0.0.1:31405"
	srv := smpp.NewServer(smpp.ServerConf{
		Addr:                addr,
		Hooks:               acceptingHooks{},
		EnquireLinkInterval: 100 * time.Millisecond,
	})
	go srv.ListenAndServe()
	defer srv.Close()
	time.Sleep(20 * time.Millisecond)

	counter := &enquireLinkCounter{}
	c := smpp.NewClient(smpp.ClientConf{
		Addr:                addr,
		SystemID:            "c1",
		Password:            "p1",
		EnquireLinkInterval: 100 * time.Millisecond,
		Hooks:               counter,
	})
	if err := c.Connect(context.Background()); err != nil {
		t.Fatalf("Connect: %v", err)
	}
	defer c.Disconnect()

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	if err := c.BindTransceiver(ctx); err != nil {
		t.Fatalf("BindTransceiver: %v", err)
	}

	time.Sleep(time.Second)

	if got, want := c.State(), smpp.StateBoundTRx; got != want {
		t.Errorf("state after idle period = %v, want %v", got, want)
	}
	if n := counter.count(); n < 4 {
		t.Errorf("enquire_link_resp count over 1s idle = %d, want >= 4", n)
	}
}

// enquireLinkCounter counts enquire_link_resp PDUs the client received,
// one per keep-alive round trip the session's idle ticker drove.
type enquireLinkCounter struct {
	smpp.NoopClientHooks
	mu sync.Mutex
	n  int
}

func (c *enquireLinkCounter) OnPDUReceived(p pdu.PDU) {
	if p.CommandID() == pdu.EnquireLinkRespID {
		c.mu.Lock()
		c.n++
		c.mu.Unlock()
	}
}

func (c *enquireLinkCounter) count() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.n
}

// receiptCapture records delivery receipts surfaced through
// ClientHooks.OnDeliveryReceipt.
type receiptCapture struct {
	smpp.NoopClientHooks
	mu       sync.Mutex
	receipts []*pdu.DeliveryReceipt
}

func (c *receiptCapture) OnDeliveryReceipt(sessionID string, r *pdu.DeliveryReceipt) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.receipts = append(c.receipts, r)
}

func (c *receiptCapture) get() []*pdu.DeliveryReceipt {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]*pdu.DeliveryReceipt(nil), c.receipts...)
}

func TestIntegrationDeliveryReceiptSurfaced(t *testing.T) {
	addr := "127.0.0.1:31407"
	bound := make(chan string, 1)
	srv := smpp.NewServer(smpp.ServerConf{Addr: addr, Hooks: acceptingHooks{bound: bound}})
	go srv.ListenAndServe()
	defer srv.Close()
	time.Sleep(20 * time.Millisecond)

	capture := &receiptCapture{}
	c := smpp.NewClient(smpp.ClientConf{Addr: addr, SystemID: "c1", Password: "p1", Hooks: capture})
	if err := c.Connect(context.Background()); err != nil {
		t.Fatalf("Connect: %v", err)
	}
	defer c.Disconnect()

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	if err := c.BindTransceiver(ctx); err != nil {
		t.Fatalf("BindTransceiver: %v", err)
	}
	select {
	case <-bound:
	case <-time.After(time.Second):
		t.Fatal("server never reported client bound")
	}

	receiptText := "id:1234567890 sub:001 dlvrd:001 submit date:2601301200 done date:2601301201 stat:DELIVRD err:000 text:"
	_, err := srv.DeliverSm(ctx, "c1", &pdu.DeliverSm{
		SourceAddr:      "5678",
		DestinationAddr: "1234",
		ShortMessage:    receiptText,
		EsmClass:        pdu.EsmClass{Type: pdu.DelRecEsmType},
	})
	if err != nil {
		t.Fatalf("DeliverSm: %v", err)
	}

	deadline := time.Now().Add(time.Second)
	for len(capture.get()) == 0 && time.Now().Before(deadline) {
		time.Sleep(5 * time.Millisecond)
	}
	got := capture.get()
	if len(got) != 1 {
		t.Fatalf("receipts captured = %d, want 1", len(got))
	}
	if got[0].Id != "1234567890" {
		t.Errorf("receipt Id = %q, want %q", got[0].Id, "1234567890")
	}
	if got[0].Stat != pdu.DelStatDelivered {
		t.Errorf("receipt Stat = %q, want %q", got[0].Stat, pdu.DelStatDelivered)
	}
}

func TestIntegrationGracefulShutdown(t *testing.T) {
	addr := "127.0.0.1:31406"
	bound := make(chan string, 2)
	srv := smpp.NewServer(smpp.ServerConf{
		Addr:  addr,
		Hooks: acceptingHooks{bound: bound},
	})
	go srv.ListenAndServe()
	time.Sleep(20 * time.Millisecond)

	c1 := smpp.NewClient(smpp.ClientConf{Addr: addr, SystemID: "c1", Password: "p1"})
	c2 := smpp.NewClient(smpp.ClientConf{Addr: addr, SystemID: "c1", Password: "p1"})
	if err := c1.Connect(context.Background()); err != nil {
		t.Fatalf("c1 Connect: %v", err)
	}
	if err := c2.Connect(context.Background()); err != nil {
		t.Fatalf("c2 Connect: %v", err)
	}
	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	if err := c1.BindTransceiver(ctx); err != nil {
		t.Fatalf("c1 BindTransceiver: %v", err)
	}
	if err := c2.BindTransceiver(ctx); err != nil {
		t.Fatalf("c2 BindTransceiver: %v", err)
	}
	for i := 0; i < 2; i++ {
		select {
		case <-bound:
		case <-time.After(time.Second):
			t.Fatal("server never reported both clients bound")
		}
	}

	sctx, scancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer scancel()
	start := time.Now()
	if err := srv.Stop(sctx); err != nil {
		t.Fatalf("Stop: %v", err)
	}
	if elapsed := time.Since(start); elapsed > 2*time.Second {
		t.Errorf("Stop took %s, want <= grace period", elapsed)
	}

	for name, c := range map[string]*smpp.Client{"c1": c1, "c2": c2} {
		select {
		case <-c.NotifyClosed():
		case <-time.After(time.Second):
			t.Errorf("%s session did not close after server Stop", name)
		}
		if got, want := c.State(), smpp.StateClosed; got != want {
			t.Errorf("%s state = %v, want %v", name, got, want)
		}
	}
}
