package campaign

import (
	"encoding/json"
	"time"
)

type Campaign struct {
	ID               string          `json:"id"`
	Name             string          `json:"name"`
	Description      string          `json:"description"`
	Type             string          `json:"type"`
	Status           string          `json:"status"`
	Scope            json.RawMessage `json:"scope"`
	StartDate        *time.Time      `json:"startDate,omitempty"`
	EndDate          *time.Time      `json:"endDate,omitempty"`
	CreatedBy        string          `json:"createdBy"`
	LaunchedAt       *time.Time      `json:"launchedAt,omitempty"`
	CompletedAt      *time.Time      `json:"completedAt,omitempty"`
	TotalReviews     int             `json:"totalReviews"`
	CompletedReviews int             `json:"completedReviews"`
	ProgressPct      float64         `json:"progressPct"`
	CreatedAt        time.Time       `json:"createdAt"`
}

type ReviewerProgress struct {
	ReviewerID     string  `json:"reviewerId"`
	ReviewerName   string  `json:"reviewerName,omitempty"`
	ReviewerEmail  string  `json:"reviewerEmail,omitempty"`
	TotalItems     int     `json:"totalItems"`
	CompletedItems int     `json:"completedItems"`
	ProgressPct    float64 `json:"progressPct"`
}

type Stats struct {
	TotalReviews     int     `json:"totalReviews"`
	CompletedReviews int     `json:"completedReviews"`
	ProgressPct      float64 `json:"progressPct"`
	Approved         int     `json:"approved"`
	Revoked          int     `json:"revoked"`
	Exceptions       int     `json:"exceptions"`
	Delegated        int     `json:"delegated"`
	Pending          int     `json:"pending"`
	Flagged          int     `json:"flagged"`
}

const (
	StatusDraft     = "draft"
	StatusActive    = "active"
	StatusCompleted = "completed"
	StatusCancelled = "cancelled"

	TypeManagerReview    = "manager_review"
	TypeApplicationOwner = "application_owner"
	TypeBoth             = "both"
	TypeAdHoc            = "ad_hoc"
)

var Types = []string{TypeManagerReview, TypeApplicationOwner, TypeBoth, TypeAdHoc}

var Statuses = []string{StatusDraft, StatusActive, StatusCompleted, StatusCancelled}
