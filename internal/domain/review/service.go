package review

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"accessgov/internal/domain/campaign"
	"accessgov/internal/domain/fault"
)

type Service struct {
	DB        *pgxpool.Pool
	Campaigns *campaign.Service
}

func New(db *pgxpool.Pool, campaigns *campaign.Service) *Service {
	return &Service{DB: db, Campaigns: campaigns}
}

const itemColumns = `ri.id, ri.campaign_id, c.name, ri.grant_id, ri.user_id, ri.reviewer_id,
  ri.access_details, ri.is_flagged, ri.flag_reason, ri.decision, ri.rationale, ri.delegated_to,
  ri.decided_at, ri.created_at`

func scanItem(row pgx.Row) (*Item, error) {
	var it Item
	err := row.Scan(&it.ID, &it.CampaignID, &it.CampaignName, &it.GrantID, &it.UserID, &it.ReviewerID,
		&it.AccessDetails, &it.IsFlagged, &it.FlagReason, &it.Decision, &it.Rationale, &it.DelegatedTo,
		&it.DecidedAt, &it.CreatedAt)
	if err != nil {
		return nil, err
	}
	return &it, nil
}

type QueueFilter struct {
	CampaignID  string
	FlaggedOnly bool
}

// CountPending and PendingForReviewer cover the reviewer work queue: pending
// items on active campaigns assigned to the reviewer.
func (s *Service) CountPending(ctx context.Context, orgID, reviewerID string, filter QueueFilter) (int, error) {
	query, args := buildQueueQuery("SELECT COUNT(1)", orgID, reviewerID, filter)
	var total int
	if err := s.DB.QueryRow(ctx, query, args...).Scan(&total); err != nil {
		return 0, err
	}
	return total, nil
}

func (s *Service) PendingForReviewer(ctx context.Context, orgID, reviewerID string, filter QueueFilter, limit, offset int) ([]Item, error) {
	query, args := buildQueueQuery("SELECT "+itemColumns, orgID, reviewerID, filter)
	query += fmt.Sprintf(" ORDER BY ri.is_flagged DESC, ri.created_at LIMIT $%d OFFSET $%d", len(args)+1, len(args)+2)
	args = append(args, limit, offset)

	rows, err := s.DB.Query(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []Item
	for rows.Next() {
		it, err := scanItem(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, *it)
	}
	return out, nil
}

func buildQueueQuery(prefix, orgID, reviewerID string, filter QueueFilter) (string, []any) {
	query := prefix + `
    FROM review_items ri
    JOIN campaigns c ON c.id = ri.campaign_id AND c.status = 'active'
    WHERE ri.organization_id = $1 AND ri.reviewer_id = $2 AND ri.decision = 'pending'
  `
	args := []any{orgID, reviewerID}
	if filter.CampaignID != "" {
		query += fmt.Sprintf(" AND ri.campaign_id = $%d", len(args)+1)
		args = append(args, filter.CampaignID)
	}
	if filter.FlaggedOnly {
		query += " AND ri.is_flagged"
	}
	return query, args
}

func (s *Service) GetItem(ctx context.Context, orgID, itemID string) (*Item, error) {
	row := s.DB.QueryRow(ctx, fmt.Sprintf(`
    SELECT %s FROM review_items ri
    JOIN campaigns c ON c.id = ri.campaign_id
    WHERE ri.organization_id = $1 AND ri.id = $2
  `, itemColumns), orgID, itemID)
	it, err := scanItem(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, fault.NotFound("review item", itemID)
	}
	return it, err
}

// ListCampaignItems is the compliance view of a campaign's items, any
// decision state included.
func (s *Service) ListCampaignItems(ctx context.Context, orgID, campaignID, decision string, limit, offset int) ([]Item, int, error) {
	query := `
    FROM review_items ri
    JOIN campaigns c ON c.id = ri.campaign_id
    WHERE ri.organization_id = $1 AND ri.campaign_id = $2
  `
	args := []any{orgID, campaignID}
	if decision != "" {
		query += fmt.Sprintf(" AND ri.decision = $%d", len(args)+1)
		args = append(args, decision)
	}

	var total int
	if err := s.DB.QueryRow(ctx, "SELECT COUNT(1) "+query, args...).Scan(&total); err != nil {
		return nil, 0, err
	}

	listQuery := "SELECT " + itemColumns + query +
		fmt.Sprintf(" ORDER BY ri.created_at LIMIT $%d OFFSET $%d", len(args)+1, len(args)+2)
	args = append(args, limit, offset)

	rows, err := s.DB.Query(ctx, listQuery, args...)
	if err != nil {
		return nil, 0, err
	}
	defer rows.Close()

	var out []Item
	for rows.Next() {
		it, err := scanItem(rows)
		if err != nil {
			return nil, 0, err
		}
		out = append(out, *it)
	}
	return out, total, nil
}

// SubmitDecision applies a reviewer's decision to a pending item. The
// update is conditional on the item still being pending so concurrent
// submissions fail closed. A revocation deactivates the underlying grant
// in the same transaction; a delegation records the delegate on the item
// itself without creating a new one.
func (s *Service) SubmitDecision(ctx context.Context, orgID, itemID, actorID string, in DecisionInput) (*Item, error) {
	if err := ValidateDecision(in); err != nil {
		return nil, err
	}

	item, err := s.GetItem(ctx, orgID, itemID)
	if err != nil {
		return nil, err
	}
	var campaignStatus string
	if err := s.DB.QueryRow(ctx, `
    SELECT status FROM campaigns WHERE id = $1
  `, item.CampaignID).Scan(&campaignStatus); err != nil {
		return nil, err
	}
	if err := CheckDecidable(campaignStatus, item.Decision, item.ReviewerID, actorID); err != nil {
		return nil, err
	}
	if in.Decision == DecisionDelegated {
		if in.DelegateTo == actorID {
			return nil, fault.Validationf("delegateTo", "cannot delegate to yourself")
		}
		if err := s.verifyDelegate(ctx, orgID, in.DelegateTo); err != nil {
			return nil, err
		}
	}

	tx, err := s.DB.Begin(ctx)
	if err != nil {
		return nil, err
	}
	defer tx.Rollback(ctx)

	var rationale, delegateTo *string
	if v := strings.TrimSpace(in.Rationale); v != "" {
		rationale = &v
	}
	if in.Decision == DecisionDelegated {
		delegateTo = &in.DelegateTo
	}

	tag, err := tx.Exec(ctx, `
    UPDATE review_items
    SET decision = $4, rationale = $5, delegated_to = $6, decided_at = NOW()
    WHERE organization_id = $1 AND id = $2 AND reviewer_id = $3 AND decision = 'pending'
  `, orgID, itemID, actorID, in.Decision, rationale, delegateTo)
	if err != nil {
		return nil, err
	}
	if tag.RowsAffected() == 0 {
		return nil, fault.Conflict("item was decided concurrently")
	}

	if in.Decision == DecisionRevoked {
		if _, err := tx.Exec(ctx, `
      UPDATE user_access
      SET is_active = FALSE, deactivated_at = NOW(), remediation_status = 'pending'
      WHERE organization_id = $1 AND id = $2 AND is_active
    `, orgID, item.GrantID); err != nil {
			return nil, err
		}
	}

	if err := tx.Commit(ctx); err != nil {
		return nil, err
	}

	// The decision is already committed; a failed recompute must not surface
	// as a decision error. The next recompute repairs the rollup.
	if _, err := s.Campaigns.RecalculateStats(ctx, orgID, item.CampaignID); err != nil {
		slog.Warn("campaign stats recompute failed", "campaignId", item.CampaignID, "err", err)
	}
	return s.GetItem(ctx, orgID, itemID)
}

func (s *Service) verifyDelegate(ctx context.Context, orgID, delegateID string) error {
	var exists bool
	if err := s.DB.QueryRow(ctx, `
    SELECT EXISTS (SELECT 1 FROM users WHERE organization_id = $1 AND id = $2 AND status = 'active')
  `, orgID, delegateID).Scan(&exists); err != nil {
		return err
	}
	if !exists {
		return fault.Validationf("delegateTo", "must be an active user")
	}
	return nil
}

type BulkResult struct {
	Approved  int      `json:"approved"`
	Campaigns []string `json:"campaigns"`
}

// BulkApprove approves up to MaxBulkItems pending items in one shot. The
// batch is all-or-nothing: if any named item is missing, not the caller's,
// already decided, or on an inactive campaign, nothing is approved.
func (s *Service) BulkApprove(ctx context.Context, orgID, actorID string, itemIDs []string, rationale string) (*BulkResult, error) {
	ids, err := ValidateBulkIDs(itemIDs)
	if err != nil {
		return nil, err
	}
	if strings.TrimSpace(rationale) == "" {
		rationale = DefaultBulkRationale
	}

	tx, err := s.DB.Begin(ctx)
	if err != nil {
		return nil, err
	}
	defer tx.Rollback(ctx)

	rows, err := tx.Query(ctx, `
    SELECT ri.id, ri.campaign_id
    FROM review_items ri
    JOIN campaigns c ON c.id = ri.campaign_id AND c.status = 'active'
    WHERE ri.organization_id = $1 AND ri.id::text = ANY($2)
      AND ri.reviewer_id = $3 AND ri.decision = 'pending'
    FOR UPDATE OF ri
  `, orgID, ids, actorID)
	if err != nil {
		return nil, err
	}
	campaignSet := make(map[string]struct{})
	eligible := 0
	for rows.Next() {
		var itemID, campaignID string
		if err := rows.Scan(&itemID, &campaignID); err != nil {
			rows.Close()
			return nil, err
		}
		campaignSet[campaignID] = struct{}{}
		eligible++
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return nil, err
	}
	if eligible != len(ids) {
		return nil, fault.Conflictf("%d of %d items are not eligible for bulk approval", len(ids)-eligible, len(ids))
	}

	if _, err := tx.Exec(ctx, `
    UPDATE review_items
    SET decision = 'approved', rationale = $4, decided_at = NOW()
    WHERE organization_id = $1 AND id::text = ANY($2) AND reviewer_id = $3 AND decision = 'pending'
  `, orgID, ids, actorID, rationale); err != nil {
		return nil, err
	}
	if err := tx.Commit(ctx); err != nil {
		return nil, err
	}

	result := &BulkResult{Approved: len(ids)}
	for campaignID := range campaignSet {
		if _, err := s.Campaigns.RecalculateStats(ctx, orgID, campaignID); err != nil {
			slog.Warn("campaign stats recompute failed", "campaignId", campaignID, "err", err)
		}
		result.Campaigns = append(result.Campaigns, campaignID)
	}
	return result, nil
}

// AddComment appends to the item's comment thread. Comments are immutable
// once written.
func (s *Service) AddComment(ctx context.Context, orgID, itemID, authorID, body string) (*Comment, error) {
	body = strings.TrimSpace(body)
	if body == "" {
		return nil, fault.Validationf("body", "comment body is required")
	}
	if _, err := s.GetItem(ctx, orgID, itemID); err != nil {
		return nil, err
	}

	var c Comment
	err := s.DB.QueryRow(ctx, `
    INSERT INTO review_item_comments (review_item_id, author_user_id, body)
    VALUES ($1,$2,$3)
    RETURNING id, review_item_id, author_user_id, body, created_at
  `, itemID, authorID, body).Scan(&c.ID, &c.ReviewItemID, &c.AuthorID, &c.Body, &c.CreatedAt)
	if err != nil {
		return nil, err
	}
	return &c, nil
}

func (s *Service) ListComments(ctx context.Context, orgID, itemID string) ([]Comment, error) {
	if _, err := s.GetItem(ctx, orgID, itemID); err != nil {
		return nil, err
	}
	rows, err := s.DB.Query(ctx, `
    SELECT rc.id, rc.review_item_id, rc.author_user_id, u.first_name || ' ' || u.last_name, rc.body, rc.created_at
    FROM review_item_comments rc
    JOIN users u ON u.id = rc.author_user_id
    WHERE rc.review_item_id = $1
    ORDER BY rc.created_at
  `, itemID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []Comment
	for rows.Next() {
		var c Comment
		if err := rows.Scan(&c.ID, &c.ReviewItemID, &c.AuthorID, &c.AuthorName, &c.Body, &c.CreatedAt); err != nil {
			return nil, err
		}
		out = append(out, c)
	}
	return out, nil
}

type ReviewerSummary struct {
	Pending   int `json:"pending"`
	Completed int `json:"completed"`
	Flagged   int `json:"flagged"`
	Campaigns int `json:"campaigns"`
}

// Summary aggregates the reviewer's standing across active campaigns.
func (s *Service) Summary(ctx context.Context, orgID, reviewerID string) (*ReviewerSummary, error) {
	var sum ReviewerSummary
	err := s.DB.QueryRow(ctx, `
    SELECT COUNT(1) FILTER (WHERE ri.decision = 'pending'),
           COUNT(1) FILTER (WHERE ri.decision <> 'pending'),
           COUNT(1) FILTER (WHERE ri.is_flagged AND ri.decision = 'pending'),
           COUNT(DISTINCT ri.campaign_id)
    FROM review_items ri
    JOIN campaigns c ON c.id = ri.campaign_id AND c.status = 'active'
    WHERE ri.organization_id = $1 AND ri.reviewer_id = $2
  `, orgID, reviewerID).Scan(&sum.Pending, &sum.Completed, &sum.Flagged, &sum.Campaigns)
	if err != nil {
		return nil, err
	}
	return &sum, nil
}
