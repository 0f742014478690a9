package review

import (
	"strings"

	"accessgov/internal/domain/fault"
)

type DecisionInput struct {
	Decision   string
	Rationale  string
	DelegateTo string
}

// ValidateDecision checks the payload shape independent of any item state.
// Revocations must carry a rationale; delegations must name a delegate.
func ValidateDecision(in DecisionInput) error {
	valid := false
	for _, candidate := range Decisions {
		if in.Decision == candidate {
			valid = true
			break
		}
	}
	if !valid {
		return fault.Validationf("decision", "must be one of approved, revoked, exception, delegated")
	}
	if in.Decision == DecisionRevoked && strings.TrimSpace(in.Rationale) == "" {
		return fault.Validationf("rationale", "required when revoking access")
	}
	if in.Decision == DecisionDelegated && strings.TrimSpace(in.DelegateTo) == "" {
		return fault.Validationf("delegateTo", "required when delegating a review")
	}
	return nil
}

// CheckDecidable enforces who may decide and when. Ownership is checked
// before state so a non-reviewer learns nothing about item progress.
func CheckDecidable(campaignStatus, itemDecision, itemReviewerID, actorID string) error {
	if itemReviewerID != actorID {
		return fault.Forbidden("review item is assigned to a different reviewer")
	}
	if campaignStatus != "active" {
		return fault.Conflictf("campaign is %s, decisions are only accepted while active", campaignStatus)
	}
	if itemDecision != DecisionPending {
		return fault.Conflictf("item already decided as %s", itemDecision)
	}
	return nil
}

// ValidateBulkIDs normalizes and bounds a bulk approval id list.
func ValidateBulkIDs(ids []string) ([]string, error) {
	seen := make(map[string]struct{}, len(ids))
	out := make([]string, 0, len(ids))
	for _, id := range ids {
		id = strings.TrimSpace(id)
		if id == "" {
			return nil, fault.Validationf("itemIds", "ids must be non-empty")
		}
		if _, dup := seen[id]; dup {
			continue
		}
		seen[id] = struct{}{}
		out = append(out, id)
	}
	if len(out) == 0 {
		return nil, fault.Validationf("itemIds", "at least one id is required")
	}
	if len(out) > MaxBulkItems {
		return nil, fault.Validationf("itemIds", "at most 50 items per bulk request")
	}
	return out, nil
}
