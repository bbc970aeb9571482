// SPDX-License-Identifier: AGPL-3.0-or-later
package wire

import "testing"

func TestEncodeDecodeRoundTrip(t *testing.T) {
	f := ResultOK("abc123", "ok\n", map[string]any{"x": 1}, 12, 1700000000000)
	b, err := Encode(f)
	if err != nil {
		t.Fatalf("encode: %v", err)
	}
	got, err := Decode(b)
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	if got.String("type") != "result" || got.String("id") != "abc123" {
		t.Fatalf("decoded = %+v", got)
	}
}

func TestDecodeClientExecFrame(t *testing.T) {
	b, err := Encode(Frame{"type": "exec", "id": "1", "cmd": "status"})
	if err != nil {
		t.Fatalf("encode: %v", err)
	}
	got, err := Decode(b)
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	if got.String("type") != "exec" || got.String("cmd") != "status" {
		t.Fatalf("decoded = %+v", got)
	}
}
