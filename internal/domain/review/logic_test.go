package review

import (
	"errors"
	"strings"
	"testing"

	"accessgov/internal/domain/fault"
)

func TestValidateDecision(t *testing.T) {
	tests := []struct {
		name    string
		in      DecisionInput
		wantErr bool
	}{
		{"approve without rationale", DecisionInput{Decision: DecisionApproved}, false},
		{"revoke with rationale", DecisionInput{Decision: DecisionRevoked, Rationale: "left the team"}, false},
		{"revoke without rationale", DecisionInput{Decision: DecisionRevoked}, true},
		{"revoke with blank rationale", DecisionInput{Decision: DecisionRevoked, Rationale: "   "}, true},
		{"exception", DecisionInput{Decision: DecisionException, Rationale: "quarter-end close"}, false},
		{"delegate with target", DecisionInput{Decision: DecisionDelegated, DelegateTo: "user-2"}, false},
		{"delegate without target", DecisionInput{Decision: DecisionDelegated}, true},
		{"pending is not submittable", DecisionInput{Decision: DecisionPending}, true},
		{"unknown decision", DecisionInput{Decision: "maybe"}, true},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			err := ValidateDecision(tc.in)
			if (err != nil) != tc.wantErr {
				t.Fatalf("err = %v, wantErr = %v", err, tc.wantErr)
			}
			if err != nil {
				var verr *fault.ValidationError
				if !errors.As(err, &verr) {
					t.Fatalf("expected validation error, got %T", err)
				}
			}
		})
	}
}

func TestCheckDecidable(t *testing.T) {
	if err := CheckDecidable("active", DecisionPending, "rev-1", "rev-1"); err != nil {
		t.Fatalf("decidable item rejected: %v", err)
	}

	err := CheckDecidable("active", DecisionPending, "rev-1", "rev-2")
	var authErr *fault.AuthorizationError
	if !errors.As(err, &authErr) {
		t.Fatalf("wrong reviewer should be forbidden, got %v", err)
	}

	err = CheckDecidable("completed", DecisionPending, "rev-1", "rev-1")
	var conflict *fault.StateConflictError
	if !errors.As(err, &conflict) {
		t.Fatalf("inactive campaign should conflict, got %v", err)
	}

	err = CheckDecidable("active", DecisionApproved, "rev-1", "rev-1")
	if !errors.As(err, &conflict) {
		t.Fatalf("decided item should conflict, got %v", err)
	}
}

func TestCheckDecidableOwnershipBeforeState(t *testing.T) {
	err := CheckDecidable("completed", DecisionApproved, "rev-1", "rev-2")
	var authErr *fault.AuthorizationError
	if !errors.As(err, &authErr) {
		t.Fatalf("ownership must be checked first, got %v", err)
	}
}

func TestValidateBulkIDs(t *testing.T) {
	ids, err := ValidateBulkIDs([]string{"a", "b", "a", " c "})
	if err != nil {
		t.Fatalf("ValidateBulkIDs: %v", err)
	}
	if len(ids) != 3 {
		t.Fatalf("ids = %v", ids)
	}

	if _, err := ValidateBulkIDs(nil); err == nil {
		t.Fatal("empty list should be rejected")
	}
	if _, err := ValidateBulkIDs([]string{"a", ""}); err == nil {
		t.Fatal("blank id should be rejected")
	}

	over := make([]string, MaxBulkItems+1)
	for i := range over {
		over[i] = strings.Repeat("x", 3) + string(rune('a'+i%26)) + string(rune('0'+i/26))
	}
	if _, err := ValidateBulkIDs(over); err == nil {
		t.Fatal("over-limit list should be rejected")
	}

	atLimit := make([]string, MaxBulkItems)
	for i := range atLimit {
		atLimit[i] = string(rune('a'+i%26)) + string(rune('0'+i/26))
	}
	if _, err := ValidateBulkIDs(atLimit); err != nil {
		t.Fatalf("list at the limit should pass: %v", err)
	}
}
