package server

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"os"
	"strings"
	"testing"
	"time"

	"accessgov/internal/platform/config"
)

// TestCertificationJourney drives the whole engine end to end against a real
// database: directory setup, conflict detection, campaign launch, reviewer
// decisions and violation resolution. Set TEST_DATABASE_URL to run it.
func TestCertificationJourney(t *testing.T) {
	dbURL := os.Getenv("TEST_DATABASE_URL")
	if dbURL == "" {
		t.Skip("TEST_DATABASE_URL not set")
	}

	suffix := fmt.Sprintf("%d", time.Now().UnixNano())
	cfg := config.Load()
	cfg.DatabaseURL = dbURL
	cfg.JWTSecret = "journey-test-secret"
	cfg.RunMigrations = true
	cfg.RunSeed = true
	cfg.SeedOrgName = "Journey Org " + suffix
	cfg.SeedAdminEmail = "admin+" + suffix + "@example.test"
	cfg.SeedAdminPassword = "admin-password-1"
	cfg.RedisAddr = ""
	cfg.ReminderInterval = 0
	cfg.MetricsEnabled = false

	app, err := New(context.Background(), cfg)
	if err != nil {
		t.Fatalf("server.New: %v", err)
	}
	defer app.Close()

	ts := httptest.NewServer(app.Handler())
	defer ts.Close()

	adminToken := login(t, ts.URL, cfg.SeedAdminEmail, cfg.SeedAdminPassword)

	// Directory setup: one department, one application with two roles, a
	// manager and an employee reporting to them.
	dept := postJSON(t, ts.URL+"/api/directory/departments", adminToken, map[string]any{
		"code": "ENG" + suffix[len(suffix)-6:], "name": "Engineering",
	}, http.StatusCreated)
	deptCode := dept["code"].(string)
	deptID := dept["id"].(string)

	mgr := postJSON(t, ts.URL+"/api/directory/users", adminToken, map[string]any{
		"email": "mgr+" + suffix + "@example.test", "password": "manager-pass-1",
		"firstName": "Mara", "lastName": "Vance", "role": "manager", "departmentId": deptID,
	}, http.StatusCreated)
	emp := postJSON(t, ts.URL+"/api/directory/users", adminToken, map[string]any{
		"email": "emp+" + suffix + "@example.test", "password": "employee-pass-1",
		"firstName": "Eli", "lastName": "Ward", "departmentId": deptID,
	}, http.StatusCreated)

	putJSON(t, ts.URL+"/api/directory/users/"+emp["id"].(string)+"/manager", adminToken, map[string]any{
		"managerUserId": mgr["id"].(string), "primary": true,
	}, http.StatusOK)

	appRec := postJSON(t, ts.URL+"/api/directory/applications", adminToken, map[string]any{
		"name": "Ledger " + suffix, "criticality": "high",
	}, http.StatusCreated)
	roleA := postJSON(t, ts.URL+"/api/directory/roles", adminToken, map[string]any{
		"applicationId": appRec["id"], "name": "ap-clerk", "riskLevel": "high",
	}, http.StatusCreated)
	roleB := postJSON(t, ts.URL+"/api/directory/roles", adminToken, map[string]any{
		"applicationId": appRec["id"], "name": "ap-approver", "riskLevel": "high",
	}, http.StatusCreated)

	postJSON(t, ts.URL+"/api/directory/access", adminToken, map[string]any{
		"userId": emp["id"], "roleId": roleA["id"],
	}, http.StatusCreated)
	postJSON(t, ts.URL+"/api/directory/access", adminToken, map[string]any{
		"userId": emp["id"], "roleId": roleB["id"],
	}, http.StatusCreated)

	// Conflicting roles held by the same user become an open violation.
	rule := postJSON(t, ts.URL+"/api/sod/rules", adminToken, map[string]any{
		"name":               "Clerk vs approver " + suffix,
		"conflictingRoleIds": []any{roleA["id"], roleB["id"]},
		"severity":           "critical",
		"processArea":        "payables",
		"applicationIds":     []any{appRec["id"]},
		"autoRemediate":      false,
	}, http.StatusCreated)
	if rule["processArea"] != "payables" || rule["requiresExceptionApproval"] != true {
		t.Fatalf("rule fields = %+v", rule)
	}
	detection := postJSON(t, ts.URL+"/api/sod/detect", adminToken, nil, http.StatusOK)
	if got := detection["newViolations"].(float64); got != 1 {
		t.Fatalf("newViolations = %v, want 1", got)
	}
	// Re-running detection reconfirms rather than duplicates.
	again := postJSON(t, ts.URL+"/api/sod/detect", adminToken, nil, http.StatusOK)
	if got := again["newViolations"].(float64); got != 0 {
		t.Fatalf("second run newViolations = %v, want 0", got)
	}

	// Per-user detection returns the subject's open violations.
	perUser := postJSON(t, ts.URL+"/api/sod/detect/"+emp["id"].(string), adminToken, nil, http.StatusOK)
	if got := len(perUser["data"].([]any)); got != 1 {
		t.Fatalf("per-user detection = %d violations, want 1", got)
	}

	// The subject was notified when the violation was first recorded.
	empToken := login(t, ts.URL, "emp+"+suffix+"@example.test", "employee-pass-1")
	empUnread := getJSON(t, ts.URL+"/api/notifications/unread-count", empToken)
	if empUnread["data"].(map[string]any)["unread"].(float64) < 1 {
		t.Fatal("expected a violation notification for the subject")
	}

	// Campaign over the department launches with both grants flagged.
	camp := postJSON(t, ts.URL+"/api/campaigns", adminToken, map[string]any{
		"name": "Q3 cert " + suffix,
		"type": "manager_review",
		"scope": map[string]any{
			"departments": []any{deptCode},
		},
	}, http.StatusCreated)
	campID := camp["id"].(string)

	launch := postJSON(t, ts.URL+"/api/campaigns/"+campID+"/launch", adminToken, nil, http.StatusOK)
	if got := launch["itemsCreated"].(float64); got != 2 {
		t.Fatalf("itemsCreated = %v, want 2", got)
	}
	// Launch is draft-only; a second attempt conflicts.
	postJSON(t, ts.URL+"/api/campaigns/"+campID+"/launch", adminToken, nil, http.StatusConflict)

	mgrToken := login(t, ts.URL, "mgr+"+suffix+"@example.test", "manager-pass-1")
	queue := getJSON(t, ts.URL+"/api/reviews/pending", mgrToken)
	items := queue["data"].([]any)
	if len(items) != 2 {
		t.Fatalf("pending queue = %d items, want 2", len(items))
	}
	first := items[0].(map[string]any)
	second := items[1].(map[string]any)
	if first["isFlagged"] != true {
		t.Fatalf("expected flagged item, got %+v", first)
	}
	if reason, _ := first["flagReason"].(string); !strings.Contains(reason, "Clerk vs approver") {
		t.Fatalf("flag reason should name the violated rule, got %q", reason)
	}

	// Revoke without rationale is rejected; with rationale it deactivates
	// the grant.
	postJSON(t, ts.URL+"/api/reviews/"+first["id"].(string)+"/decision", mgrToken, map[string]any{
		"decision": "revoked",
	}, http.StatusBadRequest)
	postJSON(t, ts.URL+"/api/reviews/"+first["id"].(string)+"/decision", mgrToken, map[string]any{
		"decision": "revoked", "rationale": "conflicting duties",
	}, http.StatusOK)
	// A decided item cannot be decided again.
	postJSON(t, ts.URL+"/api/reviews/"+first["id"].(string)+"/decision", mgrToken, map[string]any{
		"decision": "approved",
	}, http.StatusConflict)
	// The admin is not the assigned reviewer.
	postJSON(t, ts.URL+"/api/reviews/"+second["id"].(string)+"/decision", adminToken, map[string]any{
		"decision": "approved",
	}, http.StatusForbidden)

	postJSON(t, ts.URL+"/api/reviews/"+second["id"].(string)+"/decision", mgrToken, map[string]any{
		"decision": "approved",
	}, http.StatusOK)

	stats := getJSON(t, ts.URL+"/api/campaigns/"+campID+"/stats", adminToken)
	data := stats["data"].(map[string]any)
	if data["progressPct"].(float64) != 100 {
		t.Fatalf("progressPct = %v, want 100", data["progressPct"])
	}
	if data["revoked"].(float64) != 1 || data["approved"].(float64) != 1 {
		t.Fatalf("breakdown = %+v", data)
	}

	// The revoked grant is now inactive with remediation pending.
	access := getJSON(t, ts.URL+"/api/directory/users/"+emp["id"].(string)+"/access", adminToken)
	if got := len(access["data"].([]any)); got != 1 {
		t.Fatalf("active grants after revoke = %d, want 1", got)
	}

	// Resolve the violation with a bounded exception.
	violations := getJSON(t, ts.URL+"/api/sod/violations?status=open", adminToken)
	open := violations["data"].([]any)
	if len(open) != 1 {
		t.Fatalf("open violations = %d, want 1", len(open))
	}
	violationID := open[0].(map[string]any)["id"].(string)
	expiry := time.Now().AddDate(0, 0, 30).Format("2006-01-02")
	postJSON(t, ts.URL+"/api/sod/violations/"+violationID+"/resolve", adminToken, map[string]any{
		"action": "exception_granted", "notes": "mitigated by dual control", "exceptionExpiresAt": expiry,
	}, http.StatusOK)
	postJSON(t, ts.URL+"/api/sod/violations/"+violationID+"/resolve", adminToken, map[string]any{
		"action": "revoked",
	}, http.StatusConflict)

	// The reviewer picked up an assignment notification at launch.
	unread := getJSON(t, ts.URL+"/api/notifications/unread-count", mgrToken)
	if unread["data"].(map[string]any)["unread"].(float64) < 1 {
		t.Fatal("expected at least one notification for the reviewer")
	}

	// A second campaign exercises delegation, comments and bulk approval.
	me := getJSON(t, ts.URL+"/api/auth/me", adminToken)
	adminID := me["data"].(map[string]any)["id"].(string)

	dept2 := postJSON(t, ts.URL+"/api/directory/departments", adminToken, map[string]any{
		"code": "FIN" + suffix[len(suffix)-6:], "name": "Finance",
	}, http.StatusCreated)
	emp2 := postJSON(t, ts.URL+"/api/directory/users", adminToken, map[string]any{
		"email": "emp2+" + suffix + "@example.test", "password": "employee-pass-2",
		"firstName": "Noor", "lastName": "Hale", "departmentId": dept2["id"],
	}, http.StatusCreated)
	putJSON(t, ts.URL+"/api/directory/users/"+emp2["id"].(string)+"/manager", adminToken, map[string]any{
		"managerUserId": mgr["id"].(string), "primary": true,
	}, http.StatusOK)
	for _, name := range []string{"fin-viewer", "fin-poster", "fin-admin"} {
		role := postJSON(t, ts.URL+"/api/directory/roles", adminToken, map[string]any{
			"applicationId": appRec["id"], "name": name, "riskLevel": "medium",
		}, http.StatusCreated)
		postJSON(t, ts.URL+"/api/directory/access", adminToken, map[string]any{
			"userId": emp2["id"], "roleId": role["id"],
		}, http.StatusCreated)
	}

	camp2 := postJSON(t, ts.URL+"/api/campaigns", adminToken, map[string]any{
		"name": "Finance cert " + suffix,
		"type": "manager_review",
		"scope": map[string]any{
			"departments": []any{dept2["code"]},
		},
	}, http.StatusCreated)
	camp2ID := camp2["id"].(string)
	launch2 := postJSON(t, ts.URL+"/api/campaigns/"+camp2ID+"/launch", adminToken, nil, http.StatusOK)
	if got := launch2["itemsCreated"].(float64); got != 3 {
		t.Fatalf("second campaign itemsCreated = %v, want 3", got)
	}

	queue2 := getJSON(t, ts.URL+"/api/reviews/pending?campaignId="+camp2ID, mgrToken)
	items2 := queue2["data"].([]any)
	if len(items2) != 3 {
		t.Fatalf("second campaign queue = %d items, want 3", len(items2))
	}
	itemA := items2[0].(map[string]any)["id"].(string)
	itemB := items2[1].(map[string]any)["id"].(string)
	itemC := items2[2].(map[string]any)["id"].(string)

	// Delegation records the target on the item without re-queueing the
	// grant for the delegate.
	delegated := postJSON(t, ts.URL+"/api/reviews/"+itemA+"/decision", mgrToken, map[string]any{
		"decision": "delegated", "delegateTo": adminID,
	}, http.StatusOK)
	if delegated["decision"] != "delegated" || delegated["delegatedTo"] != adminID {
		t.Fatalf("delegated item = %+v", delegated)
	}
	adminQueue := getJSON(t, ts.URL+"/api/reviews/pending?campaignId="+camp2ID, adminToken)
	if got := adminQueue["meta"].(map[string]any)["total"].(float64); got != 0 {
		t.Fatalf("delegate queue = %v items, want 0", got)
	}
	stats2 := getJSON(t, ts.URL+"/api/campaigns/"+camp2ID+"/stats", adminToken)
	data2 := stats2["data"].(map[string]any)
	if data2["totalReviews"].(float64) != 3 || data2["delegated"].(float64) != 1 {
		t.Fatalf("stats after delegation = %+v", data2)
	}

	// Bulk approval is all-or-nothing: one ineligible item rejects the
	// whole batch and leaves the rest pending.
	postJSON(t, ts.URL+"/api/reviews/bulk-approve", mgrToken, map[string]any{
		"itemIds": []any{itemA, itemB, itemC},
	}, http.StatusConflict)
	itemBAfter := getJSON(t, ts.URL+"/api/reviews/"+itemB, mgrToken)
	if got := itemBAfter["data"].(map[string]any)["decision"]; got != "pending" {
		t.Fatalf("item decision after rejected batch = %v, want pending", got)
	}

	bulk := postJSON(t, ts.URL+"/api/reviews/bulk-approve", mgrToken, map[string]any{
		"itemIds": []any{itemB, itemC},
	}, http.StatusOK)
	if got := bulk["approved"].(float64); got != 2 {
		t.Fatalf("bulk approved = %v, want 2", got)
	}
	stats2 = getJSON(t, ts.URL+"/api/campaigns/"+camp2ID+"/stats", adminToken)
	data2 = stats2["data"].(map[string]any)
	if data2["totalReviews"].(float64) != 3 || data2["progressPct"].(float64) != 100 {
		t.Fatalf("stats after bulk approval = %+v", data2)
	}

	// Comments thread on an item.
	postJSON(t, ts.URL+"/api/reviews/"+itemB+"/comments", mgrToken, map[string]any{
		"body": "kept for quarter close",
	}, http.StatusCreated)
	comments := getJSON(t, ts.URL+"/api/reviews/"+itemB+"/comments", mgrToken)
	if got := len(comments["data"].([]any)); got != 1 {
		t.Fatalf("comments = %d, want 1", got)
	}
}

func login(t *testing.T, baseURL, email, password string) string {
	t.Helper()
	resp := postJSON(t, baseURL+"/api/auth/login", "", map[string]any{
		"email": email, "password": password,
	}, http.StatusOK)
	return resp["token"].(string)
}

func postJSON(t *testing.T, url, token string, body map[string]any, wantStatus int) map[string]any {
	t.Helper()
	return doJSON(t, http.MethodPost, url, token, body, wantStatus)
}

func putJSON(t *testing.T, url, token string, body map[string]any, wantStatus int) map[string]any {
	t.Helper()
	return doJSON(t, http.MethodPut, url, token, body, wantStatus)
}

func doJSON(t *testing.T, method, url, token string, body map[string]any, wantStatus int) map[string]any {
	t.Helper()
	var payload bytes.Buffer
	if body != nil {
		if err := json.NewEncoder(&payload).Encode(body); err != nil {
			t.Fatalf("encode body: %v", err)
		}
	}
	req, err := http.NewRequest(method, url, &payload)
	if err != nil {
		t.Fatalf("new request: %v", err)
	}
	req.Header.Set("Content-Type", "application/json")
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatalf("%s %s: %v", method, url, err)
	}
	defer resp.Body.Close()

	var envelope map[string]any
	if err := json.NewDecoder(resp.Body).Decode(&envelope); err != nil {
		t.Fatalf("decode response from %s: %v", url, err)
	}
	if resp.StatusCode != wantStatus {
		t.Fatalf("%s %s = %d, want %d (body %v)", method, url, resp.StatusCode, wantStatus, envelope)
	}
	if data, ok := envelope["data"].(map[string]any); ok && resp.StatusCode < 300 {
		return data
	}
	return envelope
}

func getJSON(t *testing.T, url, token string) map[string]any {
	t.Helper()
	req, err := http.NewRequest(http.MethodGet, url, nil)
	if err != nil {
		t.Fatalf("new request: %v", err)
	}
	req.Header.Set("Authorization", "Bearer "+token)
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatalf("GET %s: %v", url, err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("GET %s = %d, want 200", url, resp.StatusCode)
	}

	var envelope map[string]any
	if err := json.NewDecoder(resp.Body).Decode(&envelope); err != nil {
		t.Fatalf("decode response from %s: %v", url, err)
	}
	return envelope
}
