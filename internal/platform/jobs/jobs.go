package jobs

import (
	"context"
	"log/slog"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"

	"accessgov/internal/domain/notifications"
)

// Runner drives the periodic reminder sweep for active campaigns that are
// approaching or past their deadline.
type Runner struct {
	DB            *pgxpool.Pool
	Notifications *notifications.Service
	Interval      time.Duration

	done chan struct{}
}

func New(db *pgxpool.Pool, notif *notifications.Service, interval time.Duration) *Runner {
	return &Runner{DB: db, Notifications: notif, Interval: interval, done: make(chan struct{})}
}

func (r *Runner) Start(ctx context.Context) {
	if r.Interval <= 0 {
		close(r.done)
		return
	}
	go func() {
		defer close(r.done)
		ticker := time.NewTicker(r.Interval)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				if err := r.RemindPendingReviewers(ctx); err != nil {
					slog.Error("reminder sweep failed", "err", err)
				}
			}
		}
	}()
}

func (r *Runner) Wait() {
	<-r.done
}

// RemindPendingReviewers notifies reviewers who still have pending items on
// active campaigns due within seven days or already overdue. Reminders per
// reviewer and campaign are throttled to one per day.
func (r *Runner) RemindPendingReviewers(ctx context.Context) error {
	rows, err := r.DB.Query(ctx, `
    SELECT c.organization_id, c.id, c.name, c.end_date, cr.reviewer_id,
           cr.total_items - cr.completed_items
    FROM campaigns c
    JOIN campaign_reviewers cr ON cr.campaign_id = c.id
    WHERE c.status = 'active'
      AND c.end_date IS NOT NULL
      AND c.end_date < NOW() + INTERVAL '7 days'
      AND cr.completed_items < cr.total_items
      AND (cr.last_reminded_at IS NULL OR cr.last_reminded_at < NOW() - INTERVAL '1 day')
  `)
	if err != nil {
		return err
	}

	type reminder struct {
		orgID, campaignID, name, reviewerID string
		endDate                             *time.Time
		pending                             int
	}
	var reminders []reminder
	for rows.Next() {
		var rem reminder
		if err := rows.Scan(&rem.orgID, &rem.campaignID, &rem.name, &rem.endDate, &rem.reviewerID, &rem.pending); err != nil {
			rows.Close()
			return err
		}
		reminders = append(reminders, rem)
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return err
	}

	for _, rem := range reminders {
		body := "Campaign \"" + rem.name + "\" has reviews waiting on you."
		if rem.endDate != nil {
			body = "Campaign \"" + rem.name + "\" is due " + rem.endDate.Format("2006-01-02") + " and has reviews waiting on you."
		}
		if err := r.Notifications.Create(ctx, rem.orgID, rem.reviewerID,
			notifications.KindCampaignReminder, "Access reviews due", body, &rem.campaignID); err != nil {
			return err
		}
		if _, err := r.DB.Exec(ctx, `
      UPDATE campaign_reviewers SET last_reminded_at = NOW()
      WHERE campaign_id = $1 AND reviewer_id = $2
    `, rem.campaignID, rem.reviewerID); err != nil {
			return err
		}
		slog.Info("reminder sent", "campaign", rem.campaignID, "reviewer", rem.reviewerID, "pending", rem.pending)
	}
	return nil
}
