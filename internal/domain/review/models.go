package review

import (
	"encoding/json"
	"time"
)

type Item struct {
	ID            string          `json:"id"`
	CampaignID    string          `json:"campaignId"`
	CampaignName  string          `json:"campaignName,omitempty"`
	GrantID       string          `json:"grantId"`
	UserID        string          `json:"userId"`
	ReviewerID    string          `json:"reviewerId"`
	AccessDetails json.RawMessage `json:"accessDetails"`
	IsFlagged     bool            `json:"isFlagged"`
	FlagReason    *string         `json:"flagReason,omitempty"`
	Decision      string          `json:"decision"`
	Rationale     *string         `json:"rationale,omitempty"`
	DelegatedTo   *string         `json:"delegatedTo,omitempty"`
	DecidedAt     *time.Time      `json:"decidedAt,omitempty"`
	CreatedAt     time.Time       `json:"createdAt"`
}

type Comment struct {
	ID           string    `json:"id"`
	ReviewItemID string    `json:"reviewItemId"`
	AuthorID     string    `json:"authorId"`
	AuthorName   string    `json:"authorName,omitempty"`
	Body         string    `json:"body"`
	CreatedAt    time.Time `json:"createdAt"`
}

const (
	DecisionPending   = "pending"
	DecisionApproved  = "approved"
	DecisionRevoked   = "revoked"
	DecisionException = "exception"
	DecisionDelegated = "delegated"
)

// Decisions a reviewer may submit. Pending is the initial state only.
var Decisions = []string{DecisionApproved, DecisionRevoked, DecisionException, DecisionDelegated}

// MaxBulkItems caps a single bulk approval request.
const MaxBulkItems = 50

// DefaultBulkRationale is recorded when a bulk approval carries none.
const DefaultBulkRationale = "Bulk approved"
