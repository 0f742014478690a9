package directory

import "time"

type User struct {
	ID           string     `json:"id"`
	Email        string     `json:"email"`
	FirstName    string     `json:"firstName"`
	LastName     string     `json:"lastName"`
	Role         string     `json:"role"`
	DepartmentID *string    `json:"departmentId,omitempty"`
	Status       string     `json:"status"`
	LastLoginAt  *time.Time `json:"lastLoginAt,omitempty"`
	CreatedAt    time.Time  `json:"createdAt"`
}

type Department struct {
	ID        string    `json:"id"`
	Code      string    `json:"code"`
	Name      string    `json:"name"`
	CreatedAt time.Time `json:"createdAt"`
}

type Application struct {
	ID          string    `json:"id"`
	Name        string    `json:"name"`
	Description string    `json:"description"`
	OwnerUserID *string   `json:"ownerUserId,omitempty"`
	Criticality string    `json:"criticality"`
	Status      string    `json:"status"`
	CreatedAt   time.Time `json:"createdAt"`
}

// EntitlementRole is a grantable role within an application, distinct from
// the platform role on User that drives authorization.
type EntitlementRole struct {
	ID            string    `json:"id"`
	ApplicationID string    `json:"applicationId"`
	Name          string    `json:"name"`
	Description   string    `json:"description"`
	RiskLevel     string    `json:"riskLevel"`
	CreatedAt     time.Time `json:"createdAt"`
}

type AccessGrant struct {
	ID                string     `json:"id"`
	UserID            string     `json:"userId"`
	RoleID            string     `json:"roleId"`
	GrantedAt         time.Time  `json:"grantedAt"`
	GrantedBy         *string    `json:"grantedBy,omitempty"`
	IsActive          bool       `json:"isActive"`
	LastUsedAt        *time.Time `json:"lastUsedAt,omitempty"`
	RemediationStatus string     `json:"remediationStatus"`
}

// GrantDetail is an access grant joined with the user, role, application and
// department context needed to build review items and reports.
type GrantDetail struct {
	GrantID         string
	UserID          string
	UserEmail       string
	UserName        string
	DepartmentID    *string
	DepartmentCode  *string
	DepartmentName  *string
	RoleID          string
	RoleName        string
	RiskLevel       string
	ApplicationID   string
	ApplicationName string
	OwnerUserID     *string
	ManagerUserID   *string
	GrantedAt       time.Time
	LastUsedAt      *time.Time
}

type ManagerMapping struct {
	ID             string    `json:"id"`
	EmployeeUserID string    `json:"employeeUserId"`
	ManagerUserID  string    `json:"managerUserId"`
	IsPrimary      bool      `json:"isPrimary"`
	CreatedAt      time.Time `json:"createdAt"`
}

const (
	UserStatusActive   = "active"
	UserStatusInactive = "inactive"

	RiskLow      = "low"
	RiskMedium   = "medium"
	RiskHigh     = "high"
	RiskCritical = "critical"

	RemediationNone      = "none"
	RemediationPending   = "pending"
	RemediationCompleted = "completed"
)
