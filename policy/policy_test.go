// SPDX-License-Identifier: AGPL-3.0-or-later
package policy

import (
	"strings"
	"testing"

	"pgregory.net/rapid"
)

func TestIsAllowedScenarios(t *testing.T) {
	cases := []struct {
		cmd         string
		wantAllowed bool
		wantReason  string // substring, case-insensitive
	}{
		{"status", true, ""},
		{"STATUS ", true, ""},
		{"reboot", false, "blocked"},
		{"fan", false, "param"},
		{"fan 1", true, ""},
		{"maxpower", false, "param"},
		{"maxpower 700", true, ""},
		{"status\nreboot", false, "multiline"},
		{"status; reboot", false, "semicolon"},
		{"   ", false, "empty"},
		{"\t \t", false, "empty"},
	}
	for _, tc := range cases {
		allowed, reason := IsAllowed(tc.cmd)
		if allowed != tc.wantAllowed {
			t.Errorf("IsAllowed(%q) allowed = %v, want %v (reason=%q)", tc.cmd, allowed, tc.wantAllowed, reason)
		}
		if tc.wantReason != "" && !strings.Contains(strings.ToLower(reason), tc.wantReason) {
			t.Errorf("IsAllowed(%q) reason = %q, want substring %q", tc.cmd, reason, tc.wantReason)
		}
	}
}

func TestIsAllowedReasonNonEmptyIffRejected(t *testing.T) {
	rapid.Check(t, func(t *rapid.T) {
		cmd := rapid.String().Draw(t, "cmd")
		allowed, reason := IsAllowed(cmd)
		if allowed && reason != "" {
			t.Fatalf("IsAllowed(%q) allowed with non-empty reason %q", cmd, reason)
		}
		if !allowed && reason == "" {
			t.Fatalf("IsAllowed(%q) rejected with empty reason", cmd)
		}
	})
}

func TestIsAllowedPureAndDeterministic(t *testing.T) {
	rapid.Check(t, func(t *rapid.T) {
		cmd := rapid.String().Draw(t, "cmd")
		a1, r1 := IsAllowed(cmd)
		a2, r2 := IsAllowed(cmd)
		if a1 != a2 || r1 != r2 {
			t.Fatalf("IsAllowed(%q) not deterministic: (%v,%q) vs (%v,%q)", cmd, a1, r1, a2, r2)
		}
	})
}

func TestIsAllowedRejectsControlChars(t *testing.T) {
	rapid.Check(t, func(t *rapid.T) {
		base := rapid.StringMatching(`[a-z]+`).Draw(t, "verb")
		sep := rapid.SampledFrom([]string{"\n", "\r", ";"}).Draw(t, "sep")
		tail := rapid.StringMatching(`[a-z ]*`).Draw(t, "tail")
		cmd := base + sep + tail
		allowed, _ := IsAllowed(cmd)
		if allowed {
			t.Fatalf("IsAllowed(%q) allowed a command containing %q", cmd, sep)
		}
	})
}

func TestIsAllowedCaseInsensitiveVerb(t *testing.T) {
	lower, _ := IsAllowed("status")
	upper, _ := IsAllowed("STATUS")
	mixed, _ := IsAllowed("StAtUs")
	if !lower || !upper || !mixed {
		t.Fatalf("verb matching should be case-insensitive: lower=%v upper=%v mixed=%v", lower, upper, mixed)
	}
}
