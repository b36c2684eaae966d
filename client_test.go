package smpp_test

import (
	"bytes"
	"context"
	"io"
	"log"
	"net"
	"testing"
	"time"

	"github.com/codcod/smppai"
	"github.com/codcod/smppai/pdu"
)

type mockServer struct {
	Addr    string
	Respond func(c net.Conn, in pdu.PDU, i int) []byte
}

func startServer(server *mockServer, n int) {
	l, err := net.Listen("tcp", server.Addr)
	if err != nil {
		log.Fatal(err)
	}
	defer l.Close()

	tcpConn, err := l.Accept()
	if err != nil {
		log.Fatal(err)
	}
	defer tcpConn.Close()

	for i := 0; i < n; i++ {
		server.Serve(tcpConn, i)
	}
}

func (s *mockServer) Serve(c net.Conn, i int) {
	d := pdu.NewDecoder(c)
	_, p, err := d.Decode()
	if err != nil {
		if err != io.EOF {
			log.Fatalf("serve decode %v %d", err, i)
		}
		return
	}
	if p == nil {
		log.Fatal("decode returned nil")
	}
	res := s.Respond(c, p, i)
	if res == nil {
		return
	}
	if _, err := c.Write(res); err != nil {
		log.Fatalf("connection write %v", err)
	}
}

func newBindingServer(addr string) *mockServer {
	b := &bytes.Buffer{}
	e := pdu.NewEncoder(b, nil)
	return &mockServer{
		Addr: addr,
		Respond: func(c net.Conn, in pdu.PDU, i int) []byte {
			var res pdu.PDU
			switch in.CommandID() {
			case pdu.BindTransceiverID:
				res = &pdu.BindTRxResp{
					SystemID: "testing",
					Options:  pdu.NewOptions().SetScInterfaceVersion(0x34),
				}
			case pdu.UnbindID:
				res = &pdu.UnbindResp{}
			}
			b.Reset()
			if _, err := e.Encode(res); err != nil {
				panic("Can't encode pdu")
			}
			return b.Bytes()
		},
	}
}

func TestClientBindingUnbinding(t *testing.T) {
	addr := "127.0.0.1:32222"
	finished := make(chan struct{})
	server := newBindingServer(addr)
	go func() {
		startServer(server, 2)
		finished <- struct{}{}
	}()
	time.Sleep(10 * time.Millisecond)

	c := smpp.NewClient(smpp.ClientConf{Addr: addr})
	if err := c.Connect(context.Background()); err != nil {
		t.Fatalf("Connect: %v", err)
	}
	ctx, cancel := context.WithTimeout(context.Background(), 100*time.Millisecond)
	defer cancel()
	if err := c.BindTransceiver(ctx); err != nil {
		t.Fatalf("BindTransceiver: %v", err)
	}
	if err := c.Unbind(context.Background()); err != nil {
		t.Fatalf("Unbind: %v", err)
	}
	if err := c.Disconnect(); err != nil {
		t.Errorf("Disconnect: %v", err)
	}
	select {
	case <-finished:
	case <-time.After(100 * time.Millisecond):
		t.Error("mock server didn't close")
	}
}

func TestClientConnectToDeadEnd(t *testing.T) {
	c := smpp.NewClient(smpp.ClientConf{Addr: "127.0.0.1:1"})
	ctx, cancel := context.WithTimeout(context.Background(), 200*time.Millisecond)
	defer cancel()
	if err := c.Connect(ctx); err == nil {
		t.Error("Connect() => nil error, expected dial failure")
	}
}

func TestClientSubmitSmPromotesLongMessage(t *testing.T) {
	addr := "127.0.0.1:32223"
	captured := make(chan *pdu.SubmitSm, 1)
	finished := make(chan struct{})
	b := &bytes.Buffer{}
	e := pdu.NewEncoder(b, nil)
	server := &mockServer{
		Addr: addr,
		Respond: func(c net.Conn, in pdu.PDU, i int) []byte {
			var res pdu.PDU
			switch p := in.(type) {
			case *pdu.BindTRx:
				res = &pdu.BindTRxResp{SystemID: "testing"}
			case *pdu.SubmitSm:
				captured <- p
				res = p.Response("id0")
			}
			b.Reset()
			if _, err := e.Encode(res); err != nil {
				panic("Can't encode pdu")
			}
			return b.Bytes()
		},
	}
	go func() {
		startServer(server, 2)
		close(finished)
	}()
	time.Sleep(10 * time.Millisecond)

	c := smpp.NewClient(smpp.ClientConf{Addr: addr})
	if err := c.Connect(context.Background()); err != nil {
		t.Fatalf("Connect: %v", err)
	}
	defer c.Disconnect()
	ctx, cancel := context.WithTimeout(context.Background(), 200*time.Millisecond)
	defer cancel()
	if err := c.BindTransceiver(ctx); err != nil {
		t.Fatalf("BindTransceiver: %v", err)
	}

	long := make([]byte, 300)
	for i := range long {
		long[i] = 'a'
	}
	sctx, scancel := context.WithTimeout(context.Background(), 200*time.Millisecond)
	defer scancel()
	if _, err := c.SubmitSm(sctx, &pdu.SubmitSm{
		SourceAddr:      "src",
		DestinationAddr: "dst",
		ShortMessage:    string(long),
	}); err != nil {
		t.Fatalf("SubmitSm: %v", err)
	}

	select {
	case sm := <-captured:
		if sm.ShortMessage != "" {
			t.Errorf("ShortMessage = %q, want empty after promotion", sm.ShortMessage)
		}
		if sm.Message() != string(long) {
			t.Errorf("Message() did not round-trip the promoted payload")
		}
	case <-time.After(200 * time.Millisecond):
		t.Fatal("submit_sm not received in time")
	}
	<-finished
}
