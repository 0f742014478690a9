package sod

import (
	"reflect"
	"testing"
	"time"
)

func TestMatchRule(t *testing.T) {
	tests := []struct {
		name        string
		conflicting []string
		held        []string
		wantMatched []string
		wantHit     bool
	}{
		{
			name:        "two of three held",
			conflicting: []string{"b", "a", "c"},
			held:        []string{"c", "a", "x"},
			wantMatched: []string{"a", "c"},
			wantHit:     true,
		},
		{
			name:        "single overlap is not a violation",
			conflicting: []string{"a", "b"},
			held:        []string{"a", "x", "y"},
			wantMatched: []string{"a"},
			wantHit:     false,
		},
		{
			name:        "no overlap",
			conflicting: []string{"a", "b"},
			held:        []string{"x"},
			wantHit:     false,
		},
		{
			name:        "duplicate rule entries counted once",
			conflicting: []string{"a", "a", "b"},
			held:        []string{"a"},
			wantMatched: []string{"a"},
			wantHit:     false,
		},
		{
			name:        "empty held set",
			conflicting: []string{"a", "b"},
			held:        nil,
			wantHit:     false,
		},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			matched, hit := MatchRule(tc.conflicting, tc.held)
			if hit != tc.wantHit {
				t.Fatalf("hit = %v, want %v", hit, tc.wantHit)
			}
			if !reflect.DeepEqual(matched, tc.wantMatched) {
				t.Fatalf("matched = %v, want %v", matched, tc.wantMatched)
			}
		})
	}
}

func TestMatchRuleDeterministic(t *testing.T) {
	first, _ := MatchRule([]string{"c", "a", "b"}, []string{"b", "c", "a"})
	second, _ := MatchRule([]string{"a", "b", "c"}, []string{"a", "c", "b"})
	if !reflect.DeepEqual(first, second) {
		t.Fatalf("snapshot differs across runs: %v vs %v", first, second)
	}
}

func TestValidateRuleRoles(t *testing.T) {
	if err := ValidateRuleRoles([]string{"a", "b"}); err != nil {
		t.Fatalf("two distinct roles should be valid: %v", err)
	}
	if err := ValidateRuleRoles([]string{"a", "a"}); err == nil {
		t.Fatal("duplicate-only role list should be rejected")
	}
	if err := ValidateRuleRoles([]string{"a"}); err == nil {
		t.Fatal("single role should be rejected")
	}
	if err := ValidateRuleRoles([]string{"a", ""}); err == nil {
		t.Fatal("empty role id should be rejected")
	}
}

func TestValidateResolution(t *testing.T) {
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

	if err := ValidateResolution(ResolutionRevoked, nil, now); err != nil {
		t.Fatalf("revoked needs no expiry: %v", err)
	}
	if err := ValidateResolution("dismissed", nil, now); err == nil {
		t.Fatal("unknown action should be rejected")
	}

	future := now.AddDate(0, 0, 30)
	if err := ValidateResolution(ResolutionRevoked, &future, now); err == nil {
		t.Fatal("expiry on a revoked resolution should be rejected")
	}
	if err := ValidateResolution(ResolutionMitigatingControl, &future, now); err == nil {
		t.Fatal("expiry on a mitigating-control resolution should be rejected")
	}

	if err := ValidateResolution(ResolutionExceptionGranted, nil, now); err == nil {
		t.Fatal("exception without expiry should be rejected")
	}
	past := now.AddDate(0, 0, -1)
	if err := ValidateResolution(ResolutionExceptionGranted, &past, now); err == nil {
		t.Fatal("past expiry should be rejected")
	}
	tooFar := now.AddDate(0, 0, 91)
	if err := ValidateResolution(ResolutionExceptionGranted, &tooFar, now); err == nil {
		t.Fatal("expiry beyond 90 days should be rejected")
	}
	boundary := now.AddDate(0, 0, 90)
	if err := ValidateResolution(ResolutionExceptionGranted, &boundary, now); err != nil {
		t.Fatalf("expiry exactly 90 days out should be accepted: %v", err)
	}
}

func TestFlagReason(t *testing.T) {
	got := FlagReason("Payment entry vs approval", SeverityCritical)
	want := "SOD violation: Payment entry vs approval (critical severity)"
	if got != want {
		t.Fatalf("FlagReason = %q, want %q", got, want)
	}
}
