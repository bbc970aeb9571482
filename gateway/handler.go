// SPDX-License-Identifier: AGPL-3.0-or-later

// Package gateway implements the per-connection Client Handler: the
// WebSocket-facing state machine that greets a new client with an initial
// getall, then dispatches subscribe/exec requests against the policy and
// serial session, registering and deregistering itself with the
// telemetry hub around its lifetime.
package gateway

import (
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"

	"lydia-device/audit"
	"lydia-device/metricsx"
	"lydia-device/parse"
	"lydia-device/policy"
	"lydia-device/telemetry"
	"lydia-device/wire"
)

// Execer is the serial session capability the handler needs.
type Execer interface {
	Exec(cmd string, timeout time.Duration) (string, error)
}

// Conn is the transport capability a Client Handler drives: send an
// encoded frame, receive the next raw frame, and close. It is also a
// valid telemetry.Sink, so a Conn can be registered with the Hub
// directly.
type Conn interface {
	Send(payload []byte) error
	Recv() ([]byte, error)
	Close() error
}

const execTimeout = 5 * time.Second

// Handler holds the collaborators shared by every connection: the serial
// session, the telemetry hub, the audit sink, and optional metrics.
type Handler struct {
	exec     Execer
	hub      *telemetry.Hub
	auditlog *audit.Sink
	metrics  *metricsx.Metrics
}

// NewHandler builds a Handler. auditlog and metrics may be nil.
func NewHandler(exec Execer, hub *telemetry.Hub, auditlog *audit.Sink, metrics *metricsx.Metrics) *Handler {
	return &Handler{exec: exec, hub: hub, auditlog: auditlog, metrics: metrics}
}

// Serve runs one connection's full lifecycle: register, greet, dispatch
// loop, deregister. It returns once the connection ends for any reason;
// that is never treated as a crash.
func (h *Handler) Serve(conn Conn) {
	connID := uuid.NewString()

	h.hub.Add(conn)
	if h.metrics != nil {
		h.metrics.ActiveConnections.Inc()
	}
	h.auditlog.Log(audit.Event{"kind": "connect", "conn_id": connID})

	defer func() {
		h.hub.Remove(conn)
		if h.metrics != nil {
			h.metrics.ActiveConnections.Dec()
		}
		h.auditlog.Log(audit.Event{"kind": "disconnect", "conn_id": connID})
	}()

	h.greet(conn)

	for {
		raw, err := conn.Recv()
		if err != nil {
			return
		}
		frame, err := wire.Decode(raw)
		if err != nil {
			h.send(conn, wire.ErrorFrame("malformed frame: "+err.Error()))
			continue
		}
		h.dispatch(conn, frame, connID)
	}
}

func (h *Handler) greet(conn Conn) {
	stdout, err := h.exec.Exec("getall", execTimeout)
	tsMs := time.Now().UnixMilli()
	if err != nil {
		h.send(conn, wire.EventGetAllError(tsMs, err.Error()))
		return
	}
	parsed := parse.ParseGetAll(stdout)
	h.send(conn, wire.EventGetAll(tsMs, parsed))
}

func (h *Handler) dispatch(conn Conn, frame wire.Frame, connID string) {
	switch frame.String("type") {
	case "subscribe":
		h.send(conn, wire.AckSubscribe())
	case "exec":
		h.handleExec(conn, frame, connID)
	default:
		h.send(conn, wire.ErrorFrame(fmt.Sprintf("Unknown message type: %v", frame["type"])))
	}
}

func (h *Handler) handleExec(conn Conn, frame wire.Frame, connID string) {
	id := frame.String("id")
	cmd := frame.String("cmd")

	allowed, reason := policy.IsAllowed(cmd)
	h.auditlog.Log(audit.Event{
		"kind": "exec", "conn_id": connID,
		"cmd": cmd, "allowed": allowed, "reason": reason,
	})

	if !allowed {
		h.recordOutcome(cmd, "rejected")
		h.send(conn, wire.ResultRejected(id, reason, time.Now().UnixMilli()))
		return
	}

	t0 := time.Now()
	stdout, err := h.exec.Exec(cmd, execTimeout)
	latencyMs := time.Since(t0).Milliseconds()
	tsMs := time.Now().UnixMilli()

	if err != nil {
		h.recordOutcome(cmd, "error")
		h.send(conn, wire.ResultError(id, err.Error(), tsMs))
		return
	}

	h.recordOutcome(cmd, "ok")
	h.send(conn, wire.ResultOK(id, stdout, parseByVerb(cmd, stdout), latencyMs, tsMs))
}

func (h *Handler) recordOutcome(cmd, outcome string) {
	if h.metrics == nil {
		return
	}
	h.metrics.ExecResults.WithLabelValues(verbOf(cmd), outcome).Inc()
}

func verbOf(cmd string) string {
	fields := strings.Fields(cmd)
	if len(fields) == 0 {
		return ""
	}
	return strings.ToLower(fields[0])
}

// parseByVerb runs the parser matching cmd's verb, or returns nil if the
// verb has no structured parse (spec §4.7: parsed is null otherwise).
func parseByVerb(cmd, stdout string) any {
	switch verbOf(cmd) {
	case "status":
		return parse.ParseStatus(stdout)
	case "cur_pro", "feeder_pro":
		return parse.ParseProcess(stdout)
	case "getall":
		return parse.ParseGetAll(stdout)
	default:
		return nil
	}
}

func (h *Handler) send(conn Conn, f wire.Frame) {
	payload, err := wire.Encode(f)
	if err != nil {
		slog.Error("gateway: failed to encode frame", "error", err)
		return
	}
	if err := conn.Send(payload); err != nil {
		slog.Debug("gateway: send failed", "error", err)
	}
}
