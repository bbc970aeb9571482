// SPDX-License-Identifier: AGPL-3.0-or-later

// Package wire defines the CBOR-encoded message envelopes exchanged
// between the gateway and its clients. Messages are modeled as ordinary
// maps rather than a closed set of structs: the frame shapes in the
// external interface are heterogeneous by field, and callers building one
// only ever need to set the fields that shape defines.
package wire

import (
	"fmt"

	"github.com/fxamacker/cbor/v2"
)

// Frame is one encoded message, server→client or client→server.
type Frame map[string]any

// Encode serializes a Frame as CBOR.
func Encode(f Frame) ([]byte, error) {
	b, err := cbor.Marshal(f)
	if err != nil {
		return nil, fmt.Errorf("wire: encode: %w", err)
	}
	return b, nil
}

// Decode parses a CBOR-encoded frame into a Frame.
func Decode(data []byte) (Frame, error) {
	var f Frame
	if err := cbor.Unmarshal(data, &f); err != nil {
		return nil, fmt.Errorf("wire: decode: %w", err)
	}
	return f, nil
}

// String reads a string field, returning "" if absent or not a string.
func (f Frame) String(key string) string {
	v, _ := f[key].(string)
	return v
}

// --- Server -> client frame constructors ---

// EventGetAll is the initial greet event sent on successful connect.
func EventGetAll(tsMs int64, parsed any) Frame {
	return Frame{"type": "event", "name": "getall", "ts_ms": tsMs, "parsed": parsed}
}

// EventGetAllError replaces EventGetAll when the initial getall exec fails.
func EventGetAllError(tsMs int64, errText string) Frame {
	return Frame{"type": "event", "name": "getall_error", "ts_ms": tsMs, "error": errText}
}

// EventHeartbeat is broadcast on every poll iteration, regardless of
// whether status changed.
func EventHeartbeat(tsMs, latencyMs int64) Frame {
	return Frame{"type": "event", "name": "heartbeat", "ts_ms": tsMs, "latency_ms": latencyMs}
}

// EventStatus is broadcast only when the hub's debounce detects a change.
func EventStatus(tsMs, latencyMs int64, parsed any) Frame {
	return Frame{"type": "event", "name": "status", "ts_ms": tsMs, "latency_ms": latencyMs, "parsed": parsed}
}

// EventStatusError replaces the heartbeat/status pair when the poll
// loop's status exec itself fails.
func EventStatusError(tsMs, latencyMs int64, errText string) Frame {
	return Frame{"type": "event", "name": "status_error", "ts_ms": tsMs, "latency_ms": latencyMs, "error": errText}
}

// AckSubscribe acknowledges a "subscribe" request. Subscription is
// advisory: fan-out to every connected client is unconditional.
func AckSubscribe() Frame {
	return Frame{"type": "ack", "op": "subscribe"}
}

// ResultOK is the successful reply to an "exec" request.
func ResultOK(id string, stdout string, parsed any, latencyMs, tsMs int64) Frame {
	return Frame{
		"type": "result", "id": id, "ok": true,
		"stdout": stdout, "parsed": parsed,
		"latency_ms": latencyMs, "ts_ms": tsMs,
	}
}

// ResultRejected is the reply when Policy disallows the command.
func ResultRejected(id string, reason string, tsMs int64) Frame {
	return Frame{
		"type": "result", "id": id, "ok": false,
		"error": "Command not allowed by policy", "reason": reason, "ts_ms": tsMs,
	}
}

// ResultError is the reply when the exec itself failed (timeout or I/O).
func ResultError(id string, errText string, tsMs int64) Frame {
	return Frame{"type": "result", "id": id, "ok": false, "error": errText, "ts_ms": tsMs}
}

// ErrorFrame replies to any message of unrecognized type.
func ErrorFrame(errText string) Frame {
	return Frame{"type": "error", "error": errText}
}
