// SPDX-License-Identifier: AGPL-3.0-or-later
package gateway

import (
	"errors"
	"io"
	"sync"
	"testing"
	"time"

	"lydia-device/telemetry"
	"lydia-device/wire"
)

// fakeConn is an in-memory Conn double: Recv replays a scripted sequence
// of inbound frames, then returns io.EOF; Send records every outbound
// frame for assertions.
type fakeConn struct {
	mu      sync.Mutex
	inbound [][]byte
	idx     int
	sent    []wire.Frame
	closed  bool
}

func (f *fakeConn) Send(payload []byte) error {
	frame, err := wire.Decode(payload)
	if err != nil {
		return err
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	f.sent = append(f.sent, frame)
	return nil
}

func (f *fakeConn) Recv() ([]byte, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.idx >= len(f.inbound) {
		return nil, io.EOF
	}
	b := f.inbound[f.idx]
	f.idx++
	return b, nil
}

func (f *fakeConn) Close() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.closed = true
	return nil
}

func (f *fakeConn) framesByType(t string) []wire.Frame {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []wire.Frame
	for _, fr := range f.sent {
		if fr.String("type") == t {
			out = append(out, fr)
		}
	}
	return out
}

type fakeExecer struct {
	responses map[string]string
	err       error
}

func (f *fakeExecer) Exec(cmd string, timeout time.Duration) (string, error) {
	if f.err != nil {
		return "", f.err
	}
	return f.responses[cmd], nil
}

func encodeOrDie(t *testing.T, f wire.Frame) []byte {
	t.Helper()
	b, err := wire.Encode(f)
	if err != nil {
		t.Fatalf("encode: %v", err)
	}
	return b
}

func TestServeGreetsWithGetAll(t *testing.T) {
	exec := &fakeExecer{responses: map[string]string{"getall": ".SN: ABC\n"}}
	h := NewHandler(exec, telemetry.NewHub(), nil, nil)
	conn := &fakeConn{}

	h.Serve(conn)

	greets := conn.framesByType("event")
	if len(greets) == 0 || greets[0].String("name") != "getall" {
		t.Fatalf("expected a getall greet event, got %+v", conn.sent)
	}
}

func TestServeGreetsWithGetAllErrorOnFailure(t *testing.T) {
	exec := &fakeExecer{err: errors.New("device offline")}
	h := NewHandler(exec, telemetry.NewHub(), nil, nil)
	conn := &fakeConn{}

	h.Serve(conn)

	greets := conn.framesByType("event")
	if len(greets) == 0 || greets[0].String("name") != "getall_error" {
		t.Fatalf("expected a getall_error event, got %+v", conn.sent)
	}
}

func TestServeSubscribeAck(t *testing.T) {
	exec := &fakeExecer{responses: map[string]string{"getall": ""}}
	h := NewHandler(exec, telemetry.NewHub(), nil, nil)
	conn := &fakeConn{inbound: [][]byte{encodeOrDie(t, wire.Frame{"type": "subscribe"})}}

	h.Serve(conn)

	acks := conn.framesByType("ack")
	if len(acks) != 1 || acks[0].String("op") != "subscribe" {
		t.Fatalf("expected one subscribe ack, got %+v", conn.sent)
	}
}

func TestServeUnknownTypeError(t *testing.T) {
	exec := &fakeExecer{responses: map[string]string{"getall": ""}}
	h := NewHandler(exec, telemetry.NewHub(), nil, nil)
	conn := &fakeConn{inbound: [][]byte{encodeOrDie(t, wire.Frame{"type": "bogus"})}}

	h.Serve(conn)

	errs := conn.framesByType("error")
	if len(errs) != 1 {
		t.Fatalf("expected one error frame, got %+v", conn.sent)
	}
}

func TestServeDisallowedCommandRejected(t *testing.T) {
	exec := &fakeExecer{responses: map[string]string{"getall": ""}}
	h := NewHandler(exec, telemetry.NewHub(), nil, nil)
	conn := &fakeConn{inbound: [][]byte{
		encodeOrDie(t, wire.Frame{"type": "exec", "id": "1", "cmd": "reboot"}),
	}}

	h.Serve(conn)

	results := conn.framesByType("result")
	if len(results) != 1 {
		t.Fatalf("expected one result frame, got %+v", conn.sent)
	}
	if ok, _ := results[0]["ok"].(bool); ok {
		t.Fatalf("reboot should not be allowed")
	}
}

func TestServeExecStatusParses(t *testing.T) {
	exec := &fakeExecer{responses: map[string]string{
		"getall": "",
		"status": "Work State: RUN\nmsh >\n",
	}}
	h := NewHandler(exec, telemetry.NewHub(), nil, nil)
	conn := &fakeConn{inbound: [][]byte{
		encodeOrDie(t, wire.Frame{"type": "exec", "id": "7", "cmd": "status"}),
	}}

	h.Serve(conn)

	results := conn.framesByType("result")
	if len(results) != 1 {
		t.Fatalf("expected one result frame, got %+v", conn.sent)
	}
	r := results[0]
	if ok, _ := r["ok"].(bool); !ok {
		t.Fatalf("expected ok=true, got %+v", r)
	}
	if r["parsed"] == nil {
		t.Fatalf("expected parsed status payload, got nil")
	}
	if r.String("id") != "7" {
		t.Fatalf("id = %q, want 7", r.String("id"))
	}
}

func TestServeRegistersAndDeregistersWithHub(t *testing.T) {
	exec := &fakeExecer{responses: map[string]string{"getall": ""}}
	hub := telemetry.NewHub()
	h := NewHandler(exec, hub, nil, nil)
	conn := &fakeConn{}

	h.Serve(conn)

	// Broadcasting after Serve returns must reach nobody: the conn was
	// deregistered on exit.
	if err := hub.Broadcast(wire.EventHeartbeat(1, 1)); err != nil {
		t.Fatalf("broadcast: %v", err)
	}
	if len(conn.framesByType("event")) > 1 {
		t.Fatalf("conn should not still be registered after Serve returns")
	}
}
