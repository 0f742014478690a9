package notifications

import (
	"context"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"

	"accessgov/internal/domain/fault"
)

type Notification struct {
	ID        string     `json:"id"`
	UserID    string     `json:"userId"`
	Kind      string     `json:"kind"`
	Title     string     `json:"title"`
	Body      string     `json:"body"`
	EntityID  *string    `json:"entityId,omitempty"`
	ReadAt    *time.Time `json:"readAt,omitempty"`
	CreatedAt time.Time  `json:"createdAt"`
}

const (
	KindReviewAssigned    = "review_assigned"
	KindCampaignReminder  = "campaign_reminder"
	KindViolationDetected = "violation_detected"
)

type Service struct {
	DB *pgxpool.Pool
}

func New(db *pgxpool.Pool) *Service {
	return &Service{DB: db}
}

func (s *Service) Create(ctx context.Context, orgID, userID, kind, title, body string, entityID *string) error {
	_, err := s.DB.Exec(ctx, `
    INSERT INTO notifications (organization_id, user_id, kind, title, body, entity_id)
    VALUES ($1,$2,$3,$4,$5,$6)
  `, orgID, userID, kind, title, body, entityID)
	return err
}

func (s *Service) ListForUser(ctx context.Context, orgID, userID string, unreadOnly bool, limit, offset int) ([]Notification, error) {
	query := `
    SELECT id, user_id, kind, title, body, entity_id, read_at, created_at
    FROM notifications
    WHERE organization_id = $1 AND user_id = $2
  `
	if unreadOnly {
		query += " AND read_at IS NULL"
	}
	query += " ORDER BY created_at DESC LIMIT $3 OFFSET $4"

	rows, err := s.DB.Query(ctx, query, orgID, userID, limit, offset)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []Notification
	for rows.Next() {
		var n Notification
		if err := rows.Scan(&n.ID, &n.UserID, &n.Kind, &n.Title, &n.Body, &n.EntityID, &n.ReadAt, &n.CreatedAt); err != nil {
			return nil, err
		}
		out = append(out, n)
	}
	return out, nil
}

func (s *Service) UnreadCount(ctx context.Context, orgID, userID string) (int, error) {
	var count int
	err := s.DB.QueryRow(ctx, `
    SELECT COUNT(1) FROM notifications
    WHERE organization_id = $1 AND user_id = $2 AND read_at IS NULL
  `, orgID, userID).Scan(&count)
	return count, err
}

func (s *Service) MarkRead(ctx context.Context, orgID, userID, notificationID string) error {
	tag, err := s.DB.Exec(ctx, `
    UPDATE notifications SET read_at = NOW()
    WHERE organization_id = $1 AND user_id = $2 AND id = $3 AND read_at IS NULL
  `, orgID, userID, notificationID)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return fault.NotFound("notification", notificationID)
	}
	return nil
}

func (s *Service) MarkAllRead(ctx context.Context, orgID, userID string) (int, error) {
	tag, err := s.DB.Exec(ctx, `
    UPDATE notifications SET read_at = NOW()
    WHERE organization_id = $1 AND user_id = $2 AND read_at IS NULL
  `, orgID, userID)
	if err != nil {
		return 0, err
	}
	return int(tag.RowsAffected()), nil
}

// NotifyAssignedReviewers fans one assignment notification out to each
// reviewer of a freshly launched campaign.
func (s *Service) NotifyAssignedReviewers(ctx context.Context, orgID, campaignID, campaignName string) (int, error) {
	tag, err := s.DB.Exec(ctx, `
    INSERT INTO notifications (organization_id, user_id, kind, title, body, entity_id)
    SELECT $1, cr.reviewer_id, $3, $4, $5, $2
    FROM campaign_reviewers cr WHERE cr.campaign_id = $2
  `, orgID, campaignID, KindReviewAssigned,
		"Access reviews assigned",
		"You have been assigned access reviews in campaign \""+campaignName+"\".")
	if err != nil {
		return 0, err
	}
	return int(tag.RowsAffected()), nil
}
