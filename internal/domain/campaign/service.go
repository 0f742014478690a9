package campaign

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"accessgov/internal/domain/fault"
	"accessgov/internal/domain/sod"
	"accessgov/internal/platform/cache"
)

type Service struct {
	DB    *pgxpool.Pool
	Cache *cache.Service
	SOD   *sod.Service
}

func New(db *pgxpool.Pool, cacheSvc *cache.Service, sodSvc *sod.Service) *Service {
	return &Service{DB: db, Cache: cacheSvc, SOD: sodSvc}
}

const campaignColumns = `id, name, description, campaign_type, status, scope, start_date, end_date,
  created_by, launched_at, completed_at, total_reviews, completed_reviews, progress_pct, created_at`

func scanCampaign(row pgx.Row) (*Campaign, error) {
	var c Campaign
	err := row.Scan(&c.ID, &c.Name, &c.Description, &c.Type, &c.Status, &c.Scope, &c.StartDate, &c.EndDate,
		&c.CreatedBy, &c.LaunchedAt, &c.CompletedAt, &c.TotalReviews, &c.CompletedReviews, &c.ProgressPct, &c.CreatedAt)
	if err != nil {
		return nil, err
	}
	return &c, nil
}

type CreateInput struct {
	Name        string
	Description string
	Type        string
	Scope       json.RawMessage
	StartDate   *time.Time
	EndDate     *time.Time
	CreatedBy   string
}

func (s *Service) Create(ctx context.Context, orgID string, in CreateInput) (*Campaign, error) {
	scope, err := ParseScope(in.Scope)
	if err != nil {
		return nil, err
	}
	scopeJSON, err := json.Marshal(scope)
	if err != nil {
		return nil, err
	}

	row := s.DB.QueryRow(ctx, fmt.Sprintf(`
    INSERT INTO campaigns (organization_id, name, description, campaign_type, status, scope, start_date, end_date, created_by)
    VALUES ($1,$2,$3,$4,'draft',$5,$6,$7,$8)
    RETURNING %s
  `, campaignColumns), orgID, in.Name, in.Description, in.Type, scopeJSON, in.StartDate, in.EndDate, in.CreatedBy)
	return scanCampaign(row)
}

func (s *Service) Get(ctx context.Context, orgID, campaignID string) (*Campaign, error) {
	row := s.DB.QueryRow(ctx, fmt.Sprintf(`
    SELECT %s FROM campaigns WHERE organization_id = $1 AND id = $2
  `, campaignColumns), orgID, campaignID)
	c, err := scanCampaign(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, fault.NotFound("campaign", campaignID)
	}
	return c, err
}

type Filter struct {
	Status string
	Type   string
}

func (s *Service) Count(ctx context.Context, orgID string, filter Filter) (int, error) {
	query, args := buildCampaignQuery("SELECT COUNT(1)", orgID, filter)
	var total int
	if err := s.DB.QueryRow(ctx, query, args...).Scan(&total); err != nil {
		return 0, err
	}
	return total, nil
}

func (s *Service) List(ctx context.Context, orgID string, filter Filter, limit, offset int) ([]Campaign, error) {
	query, args := buildCampaignQuery("SELECT "+campaignColumns, orgID, filter)
	query += fmt.Sprintf(" ORDER BY created_at DESC LIMIT $%d OFFSET $%d", len(args)+1, len(args)+2)
	args = append(args, limit, offset)

	rows, err := s.DB.Query(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []Campaign
	for rows.Next() {
		c, err := scanCampaign(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, *c)
	}
	return out, nil
}

func buildCampaignQuery(prefix, orgID string, filter Filter) (string, []any) {
	query := prefix + " FROM campaigns WHERE organization_id = $1"
	args := []any{orgID}
	if filter.Status != "" {
		query += fmt.Sprintf(" AND status = $%d", len(args)+1)
		args = append(args, filter.Status)
	}
	if filter.Type != "" {
		query += fmt.Sprintf(" AND campaign_type = $%d", len(args)+1)
		args = append(args, filter.Type)
	}
	return query, args
}

var campaignUpdatableFields = map[string]string{
	"name":        "name",
	"description": "description",
	"startDate":   "start_date",
	"endDate":     "end_date",
}

// Update edits a draft campaign through the static field allow-list. Scope
// changes go through the same path but are re-parsed and normalized first.
// Launched campaigns are immutable apart from status transitions.
func (s *Service) Update(ctx context.Context, orgID, campaignID string, fields map[string]any, scope json.RawMessage) (*Campaign, error) {
	current, err := s.Get(ctx, orgID, campaignID)
	if err != nil {
		return nil, err
	}
	if current.Status != StatusDraft {
		return nil, fault.Conflict("only draft campaigns can be edited")
	}

	set := make([]string, 0, len(fields)+1)
	args := []any{orgID, campaignID}
	for _, key := range []string{"description", "endDate", "name", "startDate"} {
		value, ok := fields[key]
		if !ok {
			continue
		}
		set = append(set, fmt.Sprintf("%s = $%d", campaignUpdatableFields[key], len(args)+1))
		args = append(args, value)
	}
	if scope != nil {
		parsed, err := ParseScope(scope)
		if err != nil {
			return nil, err
		}
		scopeJSON, err := json.Marshal(parsed)
		if err != nil {
			return nil, err
		}
		set = append(set, fmt.Sprintf("scope = $%d", len(args)+1))
		args = append(args, scopeJSON)
	}
	if len(set) == 0 {
		return current, nil
	}

	row := s.DB.QueryRow(ctx, fmt.Sprintf(`
    UPDATE campaigns SET %s, updated_at = NOW()
    WHERE organization_id = $1 AND id = $2 AND status = 'draft'
    RETURNING %s
  `, strings.Join(set, ", "), campaignColumns), args...)
	c, err := scanCampaign(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, fault.Conflict("campaign changed state during edit")
	}
	return c, err
}

// Cancel stops a draft or active campaign. Pending items under a cancelled
// campaign stay pending; they are excluded from queues by campaign status.
func (s *Service) Cancel(ctx context.Context, orgID, campaignID string) (*Campaign, error) {
	row := s.DB.QueryRow(ctx, fmt.Sprintf(`
    UPDATE campaigns SET status = 'cancelled', updated_at = NOW()
    WHERE organization_id = $1 AND id = $2 AND status IN ('draft','active')
    RETURNING %s
  `, campaignColumns), orgID, campaignID)
	c, err := scanCampaign(row)
	if errors.Is(err, pgx.ErrNoRows) {
		if _, getErr := s.Get(ctx, orgID, campaignID); getErr != nil {
			return nil, getErr
		}
		return nil, fault.Conflict("campaign cannot be cancelled from its current status")
	}
	if err != nil {
		return nil, err
	}
	s.invalidateStats(ctx, campaignID)
	return c, nil
}

// Complete closes an active campaign. Remaining pending items are left as
// they are; completion records the certification cut-off.
func (s *Service) Complete(ctx context.Context, orgID, campaignID string) (*Campaign, error) {
	row := s.DB.QueryRow(ctx, fmt.Sprintf(`
    UPDATE campaigns SET status = 'completed', completed_at = NOW(), updated_at = NOW()
    WHERE organization_id = $1 AND id = $2 AND status = 'active'
    RETURNING %s
  `, campaignColumns), orgID, campaignID)
	c, err := scanCampaign(row)
	if errors.Is(err, pgx.ErrNoRows) {
		if _, getErr := s.Get(ctx, orgID, campaignID); getErr != nil {
			return nil, getErr
		}
		return nil, fault.Conflict("only active campaigns can be completed")
	}
	if err != nil {
		return nil, err
	}
	s.invalidateStats(ctx, campaignID)
	return c, nil
}

// Delete removes a draft or cancelled campaign and everything hanging off
// it. Active and completed campaigns are retained for the audit trail.
func (s *Service) Delete(ctx context.Context, orgID, campaignID string) error {
	current, err := s.Get(ctx, orgID, campaignID)
	if err != nil {
		return err
	}
	if current.Status != StatusDraft && current.Status != StatusCancelled {
		return fault.Conflict("only draft or cancelled campaigns can be deleted")
	}

	tx, err := s.DB.Begin(ctx)
	if err != nil {
		return err
	}
	defer tx.Rollback(ctx)

	if _, err := tx.Exec(ctx, `
    DELETE FROM review_item_comments
    WHERE review_item_id IN (SELECT id FROM review_items WHERE campaign_id = $1)
  `, campaignID); err != nil {
		return err
	}
	if _, err := tx.Exec(ctx, `
    DELETE FROM review_items WHERE organization_id = $1 AND campaign_id = $2
  `, orgID, campaignID); err != nil {
		return err
	}
	if _, err := tx.Exec(ctx, `
    DELETE FROM campaign_reviewers WHERE campaign_id = $1
  `, campaignID); err != nil {
		return err
	}
	if _, err := tx.Exec(ctx, `
    DELETE FROM campaigns WHERE organization_id = $1 AND id = $2
  `, orgID, campaignID); err != nil {
		return err
	}
	if err := tx.Commit(ctx); err != nil {
		return err
	}
	s.invalidateStats(ctx, campaignID)
	return nil
}

func statsCacheKey(campaignID string) string {
	return "campaign:stats:" + campaignID
}

func (s *Service) invalidateStats(ctx context.Context, campaignID string) {
	s.Cache.Invalidate(ctx, statsCacheKey(campaignID))
}

// GetStats returns derived statistics for a campaign, preferring the cache.
func (s *Service) GetStats(ctx context.Context, orgID, campaignID string) (*Stats, error) {
	var cached Stats
	if s.Cache.Get(ctx, statsCacheKey(campaignID), &cached) {
		return &cached, nil
	}
	if _, err := s.Get(ctx, orgID, campaignID); err != nil {
		return nil, err
	}
	stats, err := s.computeStats(ctx, orgID, campaignID)
	if err != nil {
		return nil, err
	}
	s.Cache.Set(ctx, statsCacheKey(campaignID), stats)
	return stats, nil
}

func (s *Service) computeStats(ctx context.Context, orgID, campaignID string) (*Stats, error) {
	rows, err := s.DB.Query(ctx, `
    SELECT decision, COUNT(1) FROM review_items
    WHERE organization_id = $1 AND campaign_id = $2
    GROUP BY decision
  `, orgID, campaignID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	counts := DecisionCounts{}
	for rows.Next() {
		var decision string
		var n int
		if err := rows.Scan(&decision, &n); err != nil {
			return nil, err
		}
		counts[decision] = n
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	var flagged int
	if err := s.DB.QueryRow(ctx, `
    SELECT COUNT(1) FROM review_items
    WHERE organization_id = $1 AND campaign_id = $2 AND is_flagged
  `, orgID, campaignID).Scan(&flagged); err != nil {
		return nil, err
	}

	stats := ComputeStats(counts, flagged)
	return &stats, nil
}

// RecalculateStats recomputes campaign and per-reviewer counters from the
// items table and writes them back. Called after every decision so the
// stored counters are always derivable state, never drift.
func (s *Service) RecalculateStats(ctx context.Context, orgID, campaignID string) (*Stats, error) {
	stats, err := s.computeStats(ctx, orgID, campaignID)
	if err != nil {
		return nil, err
	}

	if _, err := s.DB.Exec(ctx, `
    UPDATE campaigns
    SET total_reviews = $3, completed_reviews = $4, progress_pct = $5, updated_at = NOW()
    WHERE organization_id = $1 AND id = $2
  `, orgID, campaignID, stats.TotalReviews, stats.CompletedReviews, stats.ProgressPct); err != nil {
		return nil, err
	}

	if _, err := s.DB.Exec(ctx, `
    UPDATE campaign_reviewers cr
    SET total_items = agg.total, completed_items = agg.completed,
        progress_pct = ROUND(CASE WHEN agg.total = 0 THEN 0 ELSE agg.completed::numeric / agg.total * 100 END, 2)
    FROM (
      SELECT reviewer_id,
             COUNT(1) AS total,
             COUNT(1) FILTER (WHERE decision <> 'pending') AS completed
      FROM review_items WHERE campaign_id = $1
      GROUP BY reviewer_id
    ) agg
    WHERE cr.campaign_id = $1 AND cr.reviewer_id = agg.reviewer_id
  `, campaignID); err != nil {
		return nil, err
	}

	s.Cache.Set(ctx, statsCacheKey(campaignID), stats)
	return stats, nil
}

func (s *Service) ReviewerProgress(ctx context.Context, orgID, campaignID string) ([]ReviewerProgress, error) {
	if _, err := s.Get(ctx, orgID, campaignID); err != nil {
		return nil, err
	}
	rows, err := s.DB.Query(ctx, `
    SELECT cr.reviewer_id, u.first_name || ' ' || u.last_name, u.email,
           cr.total_items, cr.completed_items, cr.progress_pct
    FROM campaign_reviewers cr
    JOIN users u ON u.id = cr.reviewer_id
    WHERE cr.campaign_id = $1
    ORDER BY u.last_name, u.first_name
  `, campaignID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []ReviewerProgress
	for rows.Next() {
		var p ReviewerProgress
		if err := rows.Scan(&p.ReviewerID, &p.ReviewerName, &p.ReviewerEmail, &p.TotalItems, &p.CompletedItems, &p.ProgressPct); err != nil {
			return nil, err
		}
		out = append(out, p)
	}
	return out, nil
}
