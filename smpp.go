// Package smpp implements the client (ESME) and server (SMSC) sides
// of the SMPP protocol v3.4.
//
// A Client dials a remote SMSC, binds, and exposes Send helpers for
// the PDUs an ESME originates:
//
//	c := smpp.NewClient(smpp.ClientConf{Addr: "smsc.example.com:2775", SystemID: "user", Password: "pass"})
//	if err := c.Connect(ctx); err != nil { ... }
//	if err := c.BindTransceiver(ctx); err != nil { ... }
//	resp, err := c.SubmitSm(ctx, &pdu.SubmitSm{...})
//
// A Server listens for inbound ESME connections, authenticates their
// bind requests through ServerHooks, and tracks bound peers by
// system_id so DeliverSm can route a reply to the right session:
//
//	s := smpp.NewServer(smpp.ServerConf{Addr: ":2775", Hooks: myHooks})
//	if err := s.ListenAndServe(); err != nil { ... }
//
// Both sides share the Session engine, which enforces the bind state
// machine and the PDU codec in package pdu.
package smpp

// Version of the SMPP protocol this package implements.
const Version = 0x34
