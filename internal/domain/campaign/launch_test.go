package campaign

import "testing"

func strPtr(s string) *string { return &s }

func TestResolveReviewer(t *testing.T) {
	grant := grantCandidate{
		UserID:        "user-1",
		OwnerUserID:   strPtr("owner-1"),
		ManagerUserID: strPtr("mgr-1"),
	}

	tests := []struct {
		name         string
		campaignType string
		createdBy    string
		grant        grantCandidate
		wantReviewer string
		wantOK       bool
	}{
		{
			name:         "manager review routes to manager",
			campaignType: TypeManagerReview,
			grant:        grant,
			wantReviewer: "mgr-1",
			wantOK:       true,
		},
		{
			name:         "both routes to manager",
			campaignType: TypeBoth,
			grant:        grant,
			wantReviewer: "mgr-1",
			wantOK:       true,
		},
		{
			name:         "owner review routes to application owner",
			campaignType: TypeApplicationOwner,
			grant:        grant,
			wantReviewer: "owner-1",
			wantOK:       true,
		},
		{
			name:         "owner review falls back to manager when no owner",
			campaignType: TypeApplicationOwner,
			grant:        grantCandidate{UserID: "user-1", ManagerUserID: strPtr("mgr-1")},
			wantReviewer: "mgr-1",
			wantOK:       true,
		},
		{
			name:         "owner review falls back when owner is the subject",
			campaignType: TypeApplicationOwner,
			grant:        grantCandidate{UserID: "user-1", OwnerUserID: strPtr("user-1"), ManagerUserID: strPtr("mgr-1")},
			wantReviewer: "mgr-1",
			wantOK:       true,
		},
		{
			name:         "manager review skips grant with no manager",
			campaignType: TypeManagerReview,
			grant:        grantCandidate{UserID: "user-1", OwnerUserID: strPtr("owner-1")},
			wantOK:       false,
		},
		{
			name:         "self managed grant is skipped",
			campaignType: TypeManagerReview,
			grant:        grantCandidate{UserID: "user-1", ManagerUserID: strPtr("user-1")},
			wantOK:       false,
		},
		{
			name:         "ad hoc routes to creator",
			campaignType: TypeAdHoc,
			createdBy:    "creator-1",
			grant:        grantCandidate{UserID: "user-1"},
			wantReviewer: "creator-1",
			wantOK:       true,
		},
		{
			name:         "ad hoc skips creator's own grants",
			campaignType: TypeAdHoc,
			createdBy:    "user-1",
			grant:        grantCandidate{UserID: "user-1"},
			wantOK:       false,
		},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			reviewer, ok := resolveReviewer(tc.campaignType, tc.createdBy, tc.grant)
			if ok != tc.wantOK {
				t.Fatalf("ok = %v, want %v", ok, tc.wantOK)
			}
			if ok && reviewer != tc.wantReviewer {
				t.Fatalf("reviewer = %q, want %q", reviewer, tc.wantReviewer)
			}
		})
	}
}
