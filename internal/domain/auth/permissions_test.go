package auth

import (
	"testing"
	"time"
)

func TestRoleHasPermission(t *testing.T) {
	tests := []struct {
		role       string
		permission string
		want       bool
	}{
		{RoleAdmin, PermCampaignsLaunch, true},
		{RoleAdmin, PermAuditRead, true},
		{RoleComplianceManager, PermSODResolve, true},
		{RoleComplianceManager, PermDirectoryWrite, false},
		{RoleManager, PermReviewsDecide, true},
		{RoleManager, PermCampaignsWrite, false},
		{RoleApplicationOwner, PermReviewsDecide, true},
		{RoleApplicationOwner, PermSODRead, false},
		{RoleAuditor, PermAuditRead, true},
		{RoleAuditor, PermReviewsDecide, false},
		{RoleEmployee, PermDirectoryRead, true},
		{RoleEmployee, PermCampaignsRead, false},
		{"unknown", PermDirectoryRead, false},
	}
	for _, tc := range tests {
		if got := RoleHasPermission(tc.role, tc.permission); got != tc.want {
			t.Errorf("RoleHasPermission(%q, %q) = %v, want %v", tc.role, tc.permission, got, tc.want)
		}
	}
}

func TestTokenRoundTrip(t *testing.T) {
	secret := "unit-test-secret"
	token, err := GenerateToken(secret, Claims{UserID: "u1", OrgID: "o1", Role: RoleManager}, time.Minute)
	if err != nil {
		t.Fatalf("GenerateToken: %v", err)
	}
	claims, err := ParseToken(secret, token)
	if err != nil {
		t.Fatalf("ParseToken: %v", err)
	}
	if claims.UserID != "u1" || claims.OrgID != "o1" || claims.Role != RoleManager {
		t.Fatalf("claims = %+v", claims)
	}
	if _, err := ParseToken("wrong-secret", token); err == nil {
		t.Fatal("token should not verify with the wrong secret")
	}
}
