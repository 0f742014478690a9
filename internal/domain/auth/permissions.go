package auth

const (
	RoleAdmin             = "admin"
	RoleComplianceManager = "compliance_manager"
	RoleManager           = "manager"
	RoleApplicationOwner  = "application_owner"
	RoleAuditor           = "auditor"
	RoleEmployee          = "employee"
)

const (
	PermCampaignsRead   = "campaigns.read"
	PermCampaignsWrite  = "campaigns.write"
	PermCampaignsLaunch = "campaigns.launch"
	PermReviewsRead     = "reviews.read"
	PermReviewsDecide   = "reviews.decide"
	PermSODRead         = "sod.read"
	PermSODWrite        = "sod.write"
	PermSODResolve      = "sod.resolve"
	PermDirectoryRead   = "directory.read"
	PermDirectoryWrite  = "directory.write"
	PermAccessWrite     = "access.write"
	PermReportsRead     = "reports.read"
	PermAuditRead       = "audit.read"
)

var RolePermissions = map[string][]string{
	RoleAdmin: {
		PermCampaignsRead,
		PermCampaignsWrite,
		PermCampaignsLaunch,
		PermReviewsRead,
		PermReviewsDecide,
		PermSODRead,
		PermSODWrite,
		PermSODResolve,
		PermDirectoryRead,
		PermDirectoryWrite,
		PermAccessWrite,
		PermReportsRead,
		PermAuditRead,
	},
	RoleComplianceManager: {
		PermCampaignsRead,
		PermCampaignsWrite,
		PermCampaignsLaunch,
		PermReviewsRead,
		PermReviewsDecide,
		PermSODRead,
		PermSODWrite,
		PermSODResolve,
		PermDirectoryRead,
		PermReportsRead,
		PermAuditRead,
	},
	RoleManager: {
		PermCampaignsRead,
		PermReviewsRead,
		PermReviewsDecide,
		PermDirectoryRead,
		PermReportsRead,
	},
	RoleApplicationOwner: {
		PermCampaignsRead,
		PermReviewsRead,
		PermReviewsDecide,
		PermDirectoryRead,
	},
	RoleAuditor: {
		PermCampaignsRead,
		PermSODRead,
		PermDirectoryRead,
		PermReportsRead,
		PermAuditRead,
	},
	RoleEmployee: {
		PermDirectoryRead,
	},
}

func RoleHasPermission(role, permission string) bool {
	for _, perm := range RolePermissions[role] {
		if perm == permission {
			return true
		}
	}
	return false
}
