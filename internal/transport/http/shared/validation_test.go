package shared

import (
	"testing"
	"time"
)

func TestValidatorCollectsIssues(t *testing.T) {
	v := NewValidator()
	v.Required("name", "", "name is required")
	v.Required("type", "manager_review", "type is required")
	v.Enum("type", "bogus", []string{"manager_review", "ad_hoc"}, "unknown type")

	if !v.HasIssues() {
		t.Fatal("expected issues")
	}
	issues := v.Issues()
	if len(issues) != 2 {
		t.Fatalf("issues = %v", issues)
	}
	// Sorted by field.
	if issues[0].Field != "name" || issues[1].Field != "type" {
		t.Fatalf("issue order = %v", issues)
	}
}

func TestValidatorEnumIgnoresEmpty(t *testing.T) {
	v := NewValidator()
	v.Enum("status", "", []string{"draft"}, "unknown status")
	if v.HasIssues() {
		t.Fatalf("empty value should be skipped, got %v", v.Issues())
	}
}

func TestValidatorDate(t *testing.T) {
	v := NewValidator()
	parsed, ok := v.Date("endDate", "2026-03-15")
	if !ok || parsed.IsZero() {
		t.Fatalf("valid date rejected: %v", v.Issues())
	}
	if _, ok := v.Date("startDate", "15/03/2026"); ok {
		t.Fatal("malformed date accepted")
	}
}

func TestValidatorDateOrder(t *testing.T) {
	start := time.Date(2026, 6, 1, 0, 0, 0, 0, time.UTC)
	end := time.Date(2026, 5, 1, 0, 0, 0, 0, time.UTC)

	v := NewValidator()
	v.DateOrder("startDate", start, "endDate", end)
	if !v.HasIssues() {
		t.Fatal("end before start should be rejected")
	}

	v = NewValidator()
	v.DateOrder("startDate", end, "endDate", start)
	if v.HasIssues() {
		t.Fatalf("ordered dates rejected: %v", v.Issues())
	}
}

func TestParseDate(t *testing.T) {
	if parsed, err := ParseDate("2026-01-31"); err != nil || parsed.Day() != 31 {
		t.Fatalf("plain date: %v %v", parsed, err)
	}
	if parsed, err := ParseDate("2026-01-31T10:30:00Z"); err != nil || parsed.Hour() != 10 {
		t.Fatalf("rfc3339: %v %v", parsed, err)
	}
	if parsed, err := ParseDate(""); err != nil || !parsed.IsZero() {
		t.Fatalf("empty should be zero: %v %v", parsed, err)
	}
}
