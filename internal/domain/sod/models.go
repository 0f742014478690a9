package sod

import "time"

type Rule struct {
	ID                 string   `json:"id"`
	Name               string   `json:"name"`
	Description        string   `json:"description"`
	ConflictingRoleIDs []string `json:"conflictingRoleIds"`
	Severity           string   `json:"severity"`
	ProcessArea        string   `json:"processArea"`
	// ApplicationIDs bounds detection to grants under these applications.
	// Empty means the rule applies across all applications.
	ApplicationIDs            []string  `json:"applicationIds"`
	AutoRemediate             bool      `json:"autoRemediate"`
	RequiresExceptionApproval bool      `json:"requiresExceptionApproval"`
	IsActive                  bool      `json:"isActive"`
	CreatedBy                 *string   `json:"createdBy,omitempty"`
	CreatedAt                 time.Time `json:"createdAt"`
	OpenViolations            int       `json:"openViolations"`
}

type Violation struct {
	ID                string     `json:"id"`
	RuleID            string     `json:"ruleId"`
	RuleName          string     `json:"ruleName,omitempty"`
	Severity          string     `json:"severity,omitempty"`
	UserID            string     `json:"userId"`
	UserEmail         string     `json:"userEmail,omitempty"`
	MatchedRoleIDs    []string   `json:"matchedRoleIds"`
	Status            string     `json:"status"`
	DetectedAt        time.Time  `json:"detectedAt"`
	LastDetectedAt    time.Time  `json:"lastDetectedAt"`
	ResolvedBy         *string    `json:"resolvedBy,omitempty"`
	ResolvedAt         *time.Time `json:"resolvedAt,omitempty"`
	ResolutionAction   *string    `json:"resolutionAction,omitempty"`
	ResolutionNotes    *string    `json:"resolutionNotes,omitempty"`
	ExceptionExpiresAt *time.Time `json:"exceptionExpiresAt,omitempty"`
}

const (
	ViolationOpen     = "open"
	ViolationResolved = "resolved"

	ResolutionRevoked           = "revoked"
	ResolutionExceptionGranted  = "exception_granted"
	ResolutionMitigatingControl = "mitigating_control"

	SeverityLow      = "low"
	SeverityMedium   = "medium"
	SeverityHigh     = "high"
	SeverityCritical = "critical"
)

// MaxExceptionDays bounds how far out a granted exception may expire.
const MaxExceptionDays = 90

var ResolutionActions = []string{ResolutionRevoked, ResolutionExceptionGranted, ResolutionMitigatingControl}

var Severities = []string{SeverityLow, SeverityMedium, SeverityHigh, SeverityCritical}
