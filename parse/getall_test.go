// SPDX-License-Identifier: AGPL-3.0-or-later
package parse

import (
	"testing"

	"github.com/google/go-cmp/cmp"
)

func TestParseGetAllScenario(t *testing.T) {
	text := ".SN: 6832CEC4\n.MAXPOWER: 700 W\n.PRESMIN: 30.00 Kpa\n.IPADDR: 192.168.16.200\n"
	got := ParseGetAll(text)

	wantKeys := []string{"sn", "maxpower", "presmin", "ipaddr"}
	if diff := cmp.Diff(wantKeys, got.Keys); diff != "" {
		t.Fatalf("keys mismatch (-want +got):\n%s", diff)
	}

	maxpower := got.Values["maxpower"]
	if maxpower.Value == nil || *maxpower.Value != 700 || maxpower.Unit != "W" {
		t.Fatalf("maxpower = %+v, want value=700 unit=W", maxpower)
	}
	presmin := got.Values["presmin"]
	if presmin.Value == nil || *presmin.Value != 30 || presmin.Unit != "Kpa" {
		t.Fatalf("presmin = %+v, want value=30 unit=Kpa", presmin)
	}
	ipaddr := got.Values["ipaddr"]
	if ipaddr.Value != nil {
		t.Fatalf("ipaddr.Value = %v, want nil (not numeric)", *ipaddr.Value)
	}
	if ipaddr.Raw != "192.168.16.200" {
		t.Fatalf("ipaddr.Raw = %q", ipaddr.Raw)
	}
}

func TestParseGetAllIgnoresBlankAndPromptLines(t *testing.T) {
	text := "\n.SN: ABC\n\nmsh >\n.FOO: 1\n"
	got := ParseGetAll(text)
	if len(got.Keys) != 2 {
		t.Fatalf("keys = %v, want 2 entries", got.Keys)
	}
}

func TestParseGetAllDuplicateKeyLastWriteWinsOrderPreserved(t *testing.T) {
	text := ".A: 1\n.B: 2\n.A: 3\n"
	got := ParseGetAll(text)
	if diff := cmp.Diff([]string{"a", "b"}, got.Keys); diff != "" {
		t.Fatalf("keys mismatch (-want +got):\n%s", diff)
	}
	if *got.Values["a"].Value != 3 {
		t.Fatalf("a.Value = %v, want 3 (last write wins)", *got.Values["a"].Value)
	}
}
