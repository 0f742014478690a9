package campaign

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"

	"accessgov/internal/domain/fault"
)

// grantCandidate is one active grant considered for inclusion in a launch.
type grantCandidate struct {
	GrantID         string
	UserID          string
	UserEmail       string
	UserName        string
	DepartmentName  *string
	RoleName        string
	RiskLevel       string
	ApplicationName string
	OwnerUserID     *string
	ManagerUserID   *string
	GrantedAt       time.Time
	LastUsedAt      *time.Time
}

// accessSnapshot is the immutable copy of grant context frozen into each
// review item. Later directory edits never change what the reviewer saw.
type accessSnapshot struct {
	UserEmail       string     `json:"userEmail"`
	UserName        string     `json:"userName"`
	Department      *string    `json:"department,omitempty"`
	RoleName        string     `json:"roleName"`
	ApplicationName string     `json:"applicationName"`
	RiskLevel       string     `json:"riskLevel"`
	GrantedAt       time.Time  `json:"grantedAt"`
	LastUsedAt      *time.Time `json:"lastUsedAt,omitempty"`
}

// resolveReviewer picks who certifies a grant. Manager-driven campaigns
// route to the subject's primary manager. Owner-driven campaigns route to
// the application owner, falling back to the manager when the application
// has no owner or the owner is the subject themselves. Ad hoc campaigns
// route everything to the campaign creator. Grants with no resolvable
// reviewer are skipped, never self-assigned.
func resolveReviewer(campaignType, createdBy string, g grantCandidate) (string, bool) {
	manager := ""
	if g.ManagerUserID != nil && *g.ManagerUserID != g.UserID {
		manager = *g.ManagerUserID
	}
	owner := ""
	if g.OwnerUserID != nil && *g.OwnerUserID != g.UserID {
		owner = *g.OwnerUserID
	}

	switch campaignType {
	case TypeManagerReview, TypeBoth:
		if manager != "" {
			return manager, true
		}
	case TypeApplicationOwner:
		if owner != "" {
			return owner, true
		}
		if manager != "" {
			return manager, true
		}
	case TypeAdHoc:
		if createdBy != "" && createdBy != g.UserID {
			return createdBy, true
		}
	}
	return "", false
}

type LaunchResult struct {
	Campaign          *Campaign `json:"campaign"`
	ItemsCreated      int       `json:"itemsCreated"`
	ReviewersAssigned int       `json:"reviewersAssigned"`
	Skipped           int       `json:"skipped"`
}

// Launch transitions a draft campaign to active and materializes its review
// items in one transaction. Either the campaign goes active with its full
// item set and reviewer assignments, or nothing changes.
func (s *Service) Launch(ctx context.Context, orgID, campaignID string) (*LaunchResult, error) {
	flagged, err := s.SOD.OpenViolationFlags(ctx, orgID)
	if err != nil {
		return nil, err
	}

	tx, err := s.DB.Begin(ctx)
	if err != nil {
		return nil, err
	}
	defer tx.Rollback(ctx)

	row := tx.QueryRow(ctx, fmt.Sprintf(`
    SELECT %s FROM campaigns WHERE organization_id = $1 AND id = $2 FOR UPDATE
  `, campaignColumns), orgID, campaignID)
	c, err := scanCampaign(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, fault.NotFound("campaign", campaignID)
	}
	if err != nil {
		return nil, err
	}
	if c.Status != StatusDraft {
		return nil, fault.Conflictf("campaign is %s, only draft campaigns can be launched", c.Status)
	}

	scope, err := ParseScope(c.Scope)
	if err != nil {
		return nil, err
	}
	candidates, err := collectCandidates(ctx, tx, orgID, scope)
	if err != nil {
		return nil, err
	}

	result := &LaunchResult{}
	for _, g := range candidates {
		reviewerID, ok := resolveReviewer(c.Type, c.CreatedBy, g)
		if !ok {
			result.Skipped++
			continue
		}
		snapshot, err := json.Marshal(accessSnapshot{
			UserEmail:       g.UserEmail,
			UserName:        g.UserName,
			Department:      g.DepartmentName,
			RoleName:        g.RoleName,
			ApplicationName: g.ApplicationName,
			RiskLevel:       g.RiskLevel,
			GrantedAt:       g.GrantedAt,
			LastUsedAt:      g.LastUsedAt,
		})
		if err != nil {
			return nil, err
		}

		var flagReason *string
		reason, isFlagged := flagged[g.UserID]
		if isFlagged {
			flagReason = &reason
		}
		if _, err := tx.Exec(ctx, `
      INSERT INTO review_items (organization_id, campaign_id, grant_id, user_id, reviewer_id,
                                access_details, is_flagged, flag_reason, decision)
      VALUES ($1,$2,$3,$4,$5,$6,$7,$8,'pending')
    `, orgID, campaignID, g.GrantID, g.UserID, reviewerID, snapshot, isFlagged, flagReason); err != nil {
			return nil, err
		}
		result.ItemsCreated++
	}

	tag, err := tx.Exec(ctx, `
    INSERT INTO campaign_reviewers (campaign_id, reviewer_id, total_items, completed_items, progress_pct)
    SELECT campaign_id, reviewer_id, COUNT(1), 0, 0
    FROM review_items WHERE campaign_id = $1
    GROUP BY campaign_id, reviewer_id
    ON CONFLICT (campaign_id, reviewer_id)
    DO UPDATE SET total_items = EXCLUDED.total_items
  `, campaignID)
	if err != nil {
		return nil, err
	}
	result.ReviewersAssigned = int(tag.RowsAffected())

	launched := tx.QueryRow(ctx, fmt.Sprintf(`
    UPDATE campaigns
    SET status = 'active', launched_at = NOW(), total_reviews = $3, completed_reviews = 0, progress_pct = 0, updated_at = NOW()
    WHERE organization_id = $1 AND id = $2
    RETURNING %s
  `, campaignColumns), orgID, campaignID, result.ItemsCreated)
	result.Campaign, err = scanCampaign(launched)
	if err != nil {
		return nil, err
	}

	if err := tx.Commit(ctx); err != nil {
		return nil, err
	}
	s.invalidateStats(ctx, campaignID)
	return result, nil
}

// collectCandidates enumerates active grants of active users within scope,
// with the joins reviewer resolution and snapshots need. Unknown department
// codes or application ids in the scope match nothing.
func collectCandidates(ctx context.Context, tx pgx.Tx, orgID string, scope Scope) ([]grantCandidate, error) {
	query := `
    SELECT ua.id, u.id, u.email, u.first_name || ' ' || u.last_name, d.name,
           er.name, er.risk_level, app.name, app.owner_user_id, mm.manager_user_id,
           ua.granted_at, ua.last_used_at
    FROM user_access ua
    JOIN users u ON u.id = ua.user_id AND u.status = 'active'
    LEFT JOIN departments d ON d.id = u.department_id
    JOIN entitlement_roles er ON er.id = ua.role_id
    JOIN applications app ON app.id = er.application_id
    LEFT JOIN manager_mappings mm ON mm.employee_user_id = u.id AND mm.is_primary
    WHERE ua.organization_id = $1 AND ua.is_active
  `
	clause, scopeArgs := scope.GrantFilter(2)
	query += clause + " ORDER BY ua.granted_at"
	args := append([]any{orgID}, scopeArgs...)

	rows, err := tx.Query(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []grantCandidate
	for rows.Next() {
		var g grantCandidate
		if err := rows.Scan(&g.GrantID, &g.UserID, &g.UserEmail, &g.UserName, &g.DepartmentName,
			&g.RoleName, &g.RiskLevel, &g.ApplicationName, &g.OwnerUserID, &g.ManagerUserID,
			&g.GrantedAt, &g.LastUsedAt); err != nil {
			return nil, err
		}
		out = append(out, g)
	}
	return out, rows.Err()
}
