// SPDX-License-Identifier: AGPL-3.0-or-later
package audit

import (
	"bufio"
	"encoding/json"
	"os"
	"path/filepath"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	dto "github.com/prometheus/client_model/go"

	"lydia-device/metricsx"
)

func TestStopDrainsEventsInOrder(t *testing.T) {
	path := filepath.Join(t.TempDir(), "audit.jsonl")
	s, err := Start(path, 16, 1, nil)
	if err != nil {
		t.Fatalf("Start: %v", err)
	}

	s.Log(Event{"kind": "one"})
	s.Log(Event{"kind": "two"})
	s.Stop()

	lines := readLines(t, path)
	if len(lines) != 2 {
		t.Fatalf("got %d lines, want 2: %v", len(lines), lines)
	}
	if lines[0]["kind"] != "one" || lines[1]["kind"] != "two" {
		t.Fatalf("kinds = %v, %v; want one, two", lines[0]["kind"], lines[1]["kind"])
	}
	for _, l := range lines {
		if _, ok := l["ts_ms"]; !ok {
			t.Fatalf("line missing ts_ms: %v", l)
		}
		if _, ok := l["pid"]; !ok {
			t.Fatalf("line missing pid: %v", l)
		}
	}
}

func TestLogOnNilSinkIsNoOp(t *testing.T) {
	var s *Sink
	s.Log(Event{"kind": "ignored"})
	s.Stop() // must not panic
}

func TestOverflowDropsAndSynthesizesDropEvent(t *testing.T) {
	path := filepath.Join(t.TempDir(), "audit.jsonl")
	s, err := Start(path, 1, 1000, nil)
	if err != nil {
		t.Fatalf("Start: %v", err)
	}

	// Flood far beyond the queue capacity before the writer gets a
	// chance to drain; some sends are guaranteed to overflow.
	for i := 0; i < 500; i++ {
		s.Log(Event{"kind": "spam", "i": i})
	}
	s.Stop()

	if s.dropped.Load() == 0 {
		t.Fatalf("expected at least one dropped event under flood")
	}

	lines := readLines(t, path)
	sawDrop := false
	for _, l := range lines {
		if l["kind"] == "audit_drop" {
			sawDrop = true
		}
	}
	if !sawDrop {
		t.Fatalf("expected at least one synthetic audit_drop event among %d lines", len(lines))
	}
}

func TestOverflowIncrementsAuditDropMetric(t *testing.T) {
	path := filepath.Join(t.TempDir(), "audit.jsonl")
	metrics := metricsx.New(prometheus.NewRegistry())
	s, err := Start(path, 1, 1000, metrics)
	if err != nil {
		t.Fatalf("Start: %v", err)
	}

	for i := 0; i < 500; i++ {
		s.Log(Event{"kind": "spam", "i": i})
	}
	s.Stop()

	var m dto.Metric
	if err := metrics.AuditDropTotal.Write(&m); err != nil {
		t.Fatalf("write metric: %v", err)
	}
	if m.GetCounter().GetValue() == 0 {
		t.Fatalf("expected lydia_device_audit_drop_total to be incremented")
	}
}

func readLines(t *testing.T, path string) []map[string]any {
	t.Helper()
	f, err := os.Open(path)
	if err != nil {
		t.Fatalf("open %s: %v", path, err)
	}
	defer f.Close()

	var out []map[string]any
	scanner := bufio.NewScanner(f)
	for scanner.Scan() {
		var m map[string]any
		if err := json.Unmarshal(scanner.Bytes(), &m); err != nil {
			t.Fatalf("decode line %q: %v", scanner.Text(), err)
		}
		out = append(out, m)
	}
	if err := scanner.Err(); err != nil {
		t.Fatalf("scan: %v", err)
	}
	return out
}
