package sod

import (
	"fmt"
	"sort"
	"time"

	"accessgov/internal/domain/fault"
)

// MatchRule intersects a rule's conflicting role set with the roles a user
// actively holds. A violation exists when the user holds at least two of
// the conflicting roles. The matched set is returned sorted so repeated
// detection runs produce identical snapshots.
func MatchRule(conflictingRoleIDs, heldRoleIDs []string) ([]string, bool) {
	held := make(map[string]struct{}, len(heldRoleIDs))
	for _, id := range heldRoleIDs {
		held[id] = struct{}{}
	}

	seen := make(map[string]struct{}, len(conflictingRoleIDs))
	var matched []string
	for _, id := range conflictingRoleIDs {
		if _, dup := seen[id]; dup {
			continue
		}
		seen[id] = struct{}{}
		if _, ok := held[id]; ok {
			matched = append(matched, id)
		}
	}
	sort.Strings(matched)
	return matched, len(matched) >= 2
}

// ValidateRuleRoles enforces that a rule names at least two distinct roles.
func ValidateRuleRoles(roleIDs []string) error {
	distinct := make(map[string]struct{}, len(roleIDs))
	for _, id := range roleIDs {
		if id == "" {
			return fault.Validationf("conflictingRoleIds", "role ids must be non-empty")
		}
		distinct[id] = struct{}{}
	}
	if len(distinct) < 2 {
		return fault.Validationf("conflictingRoleIds", "at least two distinct roles are required")
	}
	return nil
}

// ValidateResolution checks the resolution action and, for exceptions, that
// the expiry is in the future and within the allowed window. An expiry is
// only meaningful on exception_granted and is rejected on any other action.
func ValidateResolution(action string, exceptionExpiry *time.Time, now time.Time) error {
	valid := false
	for _, candidate := range ResolutionActions {
		if action == candidate {
			valid = true
			break
		}
	}
	if !valid {
		return fault.Validationf("resolutionAction", "must be one of revoked, exception_granted, mitigating_control")
	}
	if action != ResolutionExceptionGranted {
		if exceptionExpiry != nil {
			return fault.Validationf("exceptionExpiresAt", "only valid when granting an exception")
		}
		return nil
	}
	if exceptionExpiry == nil {
		return fault.Validationf("exceptionExpiresAt", "required when granting an exception")
	}
	if !exceptionExpiry.After(now) {
		return fault.Validationf("exceptionExpiresAt", "must be in the future")
	}
	if exceptionExpiry.After(now.AddDate(0, 0, MaxExceptionDays)) {
		return fault.Validationf("exceptionExpiresAt", "must be within 90 days")
	}
	return nil
}

// FlagReason renders the annotation stamped on review items whose subject
// violates the given rule.
func FlagReason(ruleName, severity string) string {
	return fmt.Sprintf("SOD violation: %s (%s severity)", ruleName, severity)
}
