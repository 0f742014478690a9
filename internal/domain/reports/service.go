package reports

import (
	"context"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"

	"accessgov/internal/domain/campaign"
	"accessgov/internal/domain/directory"
	"accessgov/internal/domain/sod"
)

type Service struct {
	DB        *pgxpool.Pool
	Directory *directory.Service
	Campaigns *campaign.Service
	SOD       *sod.Service
}

func New(db *pgxpool.Pool, dir *directory.Service, campaigns *campaign.Service, sodSvc *sod.Service) *Service {
	return &Service{DB: db, Directory: dir, Campaigns: campaigns, SOD: sodSvc}
}

type UserAccessReport struct {
	User       *directory.User         `json:"user"`
	Grants     []directory.GrantDetail `json:"grants"`
	Violations []sod.Violation         `json:"violations"`
}

// UserAccessReport is the full access picture for one user: active grants
// with their application context plus any recorded conflicts.
func (s *Service) UserAccessReport(ctx context.Context, orgID, userID string) (*UserAccessReport, error) {
	user, err := s.Directory.GetUser(ctx, orgID, userID)
	if err != nil {
		return nil, err
	}
	grants, err := s.Directory.ListUserGrants(ctx, orgID, userID, true)
	if err != nil {
		return nil, err
	}
	violations, err := s.SOD.ListViolations(ctx, orgID, sod.ViolationFilter{UserID: userID}, 100, 0)
	if err != nil {
		return nil, err
	}
	return &UserAccessReport{User: user, Grants: grants, Violations: violations}, nil
}

type DormantGrant struct {
	GrantID         string     `json:"grantId"`
	UserID          string     `json:"userId"`
	UserEmail       string     `json:"userEmail"`
	UserName        string     `json:"userName"`
	RoleName        string     `json:"roleName"`
	ApplicationName string     `json:"applicationName"`
	RiskLevel       string     `json:"riskLevel"`
	GrantedAt       time.Time  `json:"grantedAt"`
	LastUsedAt      *time.Time `json:"lastUsedAt,omitempty"`
	LastLoginAt     *time.Time `json:"lastLoginAt,omitempty"`
}

// DormantAccounts lists active grants that have not been exercised within
// the window. A grant that was never used counts from its grant date.
func (s *Service) DormantAccounts(ctx context.Context, orgID string, days int) ([]DormantGrant, error) {
	if days <= 0 {
		days = 90
	}
	cutoff := time.Now().AddDate(0, 0, -days)

	rows, err := s.DB.Query(ctx, `
    SELECT ua.id, u.id, u.email, u.first_name || ' ' || u.last_name,
           er.name, app.name, er.risk_level, ua.granted_at, ua.last_used_at, u.last_login_at
    FROM user_access ua
    JOIN users u ON u.id = ua.user_id AND u.status = 'active'
    JOIN entitlement_roles er ON er.id = ua.role_id
    JOIN applications app ON app.id = er.application_id
    WHERE ua.organization_id = $1 AND ua.is_active
      AND COALESCE(ua.last_used_at, ua.granted_at) < $2
    ORDER BY COALESCE(ua.last_used_at, ua.granted_at)
  `, orgID, cutoff)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []DormantGrant
	for rows.Next() {
		var g DormantGrant
		if err := rows.Scan(&g.GrantID, &g.UserID, &g.UserEmail, &g.UserName,
			&g.RoleName, &g.ApplicationName, &g.RiskLevel, &g.GrantedAt, &g.LastUsedAt, &g.LastLoginAt); err != nil {
			return nil, err
		}
		out = append(out, g)
	}
	return out, rows.Err()
}

type CampaignSummary struct {
	CampaignID   string     `json:"campaignId"`
	Name         string     `json:"name"`
	Type         string     `json:"type"`
	Status       string     `json:"status"`
	LaunchedAt   *time.Time `json:"launchedAt,omitempty"`
	CompletedAt  *time.Time `json:"completedAt,omitempty"`
	TotalReviews int        `json:"totalReviews"`
	Approved     int        `json:"approved"`
	Revoked      int        `json:"revoked"`
	Exceptions   int        `json:"exceptions"`
	ProgressPct  float64    `json:"progressPct"`
}

// RecertificationSummary rolls up decision outcomes per campaign for the
// compliance record.
func (s *Service) RecertificationSummary(ctx context.Context, orgID string) ([]CampaignSummary, error) {
	rows, err := s.DB.Query(ctx, `
    SELECT c.id, c.name, c.campaign_type, c.status, c.launched_at, c.completed_at,
           c.total_reviews, c.progress_pct,
           COUNT(ri.id) FILTER (WHERE ri.decision = 'approved'),
           COUNT(ri.id) FILTER (WHERE ri.decision = 'revoked'),
           COUNT(ri.id) FILTER (WHERE ri.decision = 'exception')
    FROM campaigns c
    LEFT JOIN review_items ri ON ri.campaign_id = c.id
    WHERE c.organization_id = $1 AND c.status IN ('active','completed')
    GROUP BY c.id
    ORDER BY c.launched_at DESC NULLS LAST
  `, orgID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []CampaignSummary
	for rows.Next() {
		var cs CampaignSummary
		if err := rows.Scan(&cs.CampaignID, &cs.Name, &cs.Type, &cs.Status, &cs.LaunchedAt, &cs.CompletedAt,
			&cs.TotalReviews, &cs.ProgressPct, &cs.Approved, &cs.Revoked, &cs.Exceptions); err != nil {
			return nil, err
		}
		out = append(out, cs)
	}
	return out, rows.Err()
}

type DashboardStats struct {
	ActiveCampaigns  int     `json:"activeCampaigns"`
	PendingReviews   int     `json:"pendingReviews"`
	OverallProgress  float64 `json:"overallProgress"`
	OpenViolations   int     `json:"openViolations"`
	ActiveUsers      int     `json:"activeUsers"`
	ActiveGrants     int     `json:"activeGrants"`
	PendingRevokes   int     `json:"pendingRevocations"`
	FlaggedPending   int     `json:"flaggedPending"`
}

// Dashboard aggregates the landing-page counters in one round trip per
// subject area.
func (s *Service) Dashboard(ctx context.Context, orgID string) (*DashboardStats, error) {
	var stats DashboardStats
	var totalReviews, completedReviews int

	err := s.DB.QueryRow(ctx, `
    SELECT COUNT(1) FILTER (WHERE status = 'active'),
           COALESCE(SUM(total_reviews) FILTER (WHERE status = 'active'), 0),
           COALESCE(SUM(completed_reviews) FILTER (WHERE status = 'active'), 0)
    FROM campaigns WHERE organization_id = $1
  `, orgID).Scan(&stats.ActiveCampaigns, &totalReviews, &completedReviews)
	if err != nil {
		return nil, err
	}
	stats.OverallProgress = campaign.Progress(totalReviews, completedReviews)

	if err := s.DB.QueryRow(ctx, `
    SELECT COUNT(1) FILTER (WHERE ri.decision = 'pending'),
           COUNT(1) FILTER (WHERE ri.decision = 'pending' AND ri.is_flagged)
    FROM review_items ri
    JOIN campaigns c ON c.id = ri.campaign_id AND c.status = 'active'
    WHERE ri.organization_id = $1
  `, orgID).Scan(&stats.PendingReviews, &stats.FlaggedPending); err != nil {
		return nil, err
	}

	if err := s.DB.QueryRow(ctx, `
    SELECT COUNT(1) FROM sod_violations WHERE organization_id = $1 AND status = 'open'
  `, orgID).Scan(&stats.OpenViolations); err != nil {
		return nil, err
	}

	if err := s.DB.QueryRow(ctx, `
    SELECT (SELECT COUNT(1) FROM users WHERE organization_id = $1 AND status = 'active'),
           (SELECT COUNT(1) FROM user_access WHERE organization_id = $1 AND is_active),
           (SELECT COUNT(1) FROM user_access WHERE organization_id = $1 AND remediation_status = 'pending')
  `, orgID).Scan(&stats.ActiveUsers, &stats.ActiveGrants, &stats.PendingRevokes); err != nil {
		return nil, err
	}

	return &stats, nil
}
