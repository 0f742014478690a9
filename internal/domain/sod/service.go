package sod

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"accessgov/internal/domain/fault"
	"accessgov/internal/domain/notifications"
)

type Service struct {
	DB            *pgxpool.Pool
	Notifications *notifications.Service
}

func New(db *pgxpool.Pool, notif *notifications.Service) *Service {
	return &Service{DB: db, Notifications: notif}
}

type CreateRuleInput struct {
	Name                      string
	Description               string
	ConflictingRoleIDs        []string
	Severity                  string
	ProcessArea               string
	ApplicationIDs            []string
	AutoRemediate             bool
	RequiresExceptionApproval bool
	CreatedBy                 string
}

func (s *Service) CreateRule(ctx context.Context, orgID string, in CreateRuleInput) (*Rule, error) {
	if err := ValidateRuleRoles(in.ConflictingRoleIDs); err != nil {
		return nil, err
	}
	if err := s.verifyRolesExist(ctx, orgID, in.ConflictingRoleIDs); err != nil {
		return nil, err
	}
	if err := s.verifyApplicationsExist(ctx, orgID, in.ApplicationIDs); err != nil {
		return nil, err
	}
	if in.ApplicationIDs == nil {
		in.ApplicationIDs = []string{}
	}

	var rule Rule
	err := s.DB.QueryRow(ctx, `
    INSERT INTO sod_rules (organization_id, name, description, conflicting_role_ids, severity,
                           process_area, application_ids, auto_remediate, requires_exception_approval,
                           is_active, created_by)
    VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,TRUE,$10)
    RETURNING id, name, description, conflicting_role_ids, severity, process_area, application_ids,
              auto_remediate, requires_exception_approval, is_active, created_by, created_at
  `, orgID, in.Name, in.Description, in.ConflictingRoleIDs, in.Severity,
		in.ProcessArea, in.ApplicationIDs, in.AutoRemediate, in.RequiresExceptionApproval, in.CreatedBy).
		Scan(&rule.ID, &rule.Name, &rule.Description, &rule.ConflictingRoleIDs, &rule.Severity,
			&rule.ProcessArea, &rule.ApplicationIDs, &rule.AutoRemediate, &rule.RequiresExceptionApproval,
			&rule.IsActive, &rule.CreatedBy, &rule.CreatedAt)
	if err != nil {
		return nil, err
	}
	return &rule, nil
}

var ruleUpdatableFields = map[string]string{
	"name":                      "name",
	"description":               "description",
	"severity":                  "severity",
	"processArea":               "process_area",
	"autoRemediate":             "auto_remediate",
	"requiresExceptionApproval": "requires_exception_approval",
}

// UpdateRule applies the static field allow-list. The conflicting role set
// and application scope are handled separately because they need existence
// validation; nil leaves either untouched.
func (s *Service) UpdateRule(ctx context.Context, orgID, ruleID string, fields map[string]any, roleIDs, appIDs []string) (*Rule, error) {
	set := make([]string, 0, len(fields)+2)
	args := []any{orgID, ruleID}
	for _, key := range []string{"autoRemediate", "description", "name", "processArea", "requiresExceptionApproval", "severity"} {
		value, ok := fields[key]
		if !ok {
			continue
		}
		set = append(set, fmt.Sprintf("%s = $%d", ruleUpdatableFields[key], len(args)+1))
		args = append(args, value)
	}
	if roleIDs != nil {
		if err := ValidateRuleRoles(roleIDs); err != nil {
			return nil, err
		}
		if err := s.verifyRolesExist(ctx, orgID, roleIDs); err != nil {
			return nil, err
		}
		set = append(set, fmt.Sprintf("conflicting_role_ids = $%d", len(args)+1))
		args = append(args, roleIDs)
	}
	if appIDs != nil {
		if err := s.verifyApplicationsExist(ctx, orgID, appIDs); err != nil {
			return nil, err
		}
		set = append(set, fmt.Sprintf("application_ids = $%d", len(args)+1))
		args = append(args, appIDs)
	}
	if len(set) == 0 {
		return s.GetRule(ctx, orgID, ruleID)
	}

	query := fmt.Sprintf(`
    UPDATE sod_rules SET %s, updated_at = NOW()
    WHERE organization_id = $1 AND id = $2
    RETURNING id, name, description, conflicting_role_ids, severity, process_area, application_ids,
              auto_remediate, requires_exception_approval, is_active, created_by, created_at
  `, strings.Join(set, ", "))

	var rule Rule
	err := s.DB.QueryRow(ctx, query, args...).
		Scan(&rule.ID, &rule.Name, &rule.Description, &rule.ConflictingRoleIDs, &rule.Severity,
			&rule.ProcessArea, &rule.ApplicationIDs, &rule.AutoRemediate, &rule.RequiresExceptionApproval,
			&rule.IsActive, &rule.CreatedBy, &rule.CreatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, fault.NotFound("sod rule", ruleID)
	}
	if err != nil {
		return nil, err
	}
	return &rule, nil
}

// DeactivateRule soft-deletes a rule. Open violations recorded under it
// stay open; deactivation only stops future detection runs.
func (s *Service) DeactivateRule(ctx context.Context, orgID, ruleID string) error {
	tag, err := s.DB.Exec(ctx, `
    UPDATE sod_rules SET is_active = FALSE, updated_at = NOW()
    WHERE organization_id = $1 AND id = $2 AND is_active
  `, orgID, ruleID)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		var exists bool
		if err := s.DB.QueryRow(ctx, `
      SELECT EXISTS (SELECT 1 FROM sod_rules WHERE organization_id = $1 AND id = $2)
    `, orgID, ruleID).Scan(&exists); err != nil {
			return err
		}
		if !exists {
			return fault.NotFound("sod rule", ruleID)
		}
		return fault.Conflict("rule is already inactive")
	}
	return nil
}

func (s *Service) GetRule(ctx context.Context, orgID, ruleID string) (*Rule, error) {
	var rule Rule
	err := s.DB.QueryRow(ctx, `
    SELECT r.id, r.name, r.description, r.conflicting_role_ids, r.severity, r.process_area, r.application_ids,
           r.auto_remediate, r.requires_exception_approval, r.is_active, r.created_by, r.created_at,
           (SELECT COUNT(1) FROM sod_violations v WHERE v.rule_id = r.id AND v.status = 'open')
    FROM sod_rules r
    WHERE r.organization_id = $1 AND r.id = $2
  `, orgID, ruleID).
		Scan(&rule.ID, &rule.Name, &rule.Description, &rule.ConflictingRoleIDs, &rule.Severity,
			&rule.ProcessArea, &rule.ApplicationIDs, &rule.AutoRemediate, &rule.RequiresExceptionApproval,
			&rule.IsActive, &rule.CreatedBy, &rule.CreatedAt, &rule.OpenViolations)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, fault.NotFound("sod rule", ruleID)
	}
	if err != nil {
		return nil, err
	}
	return &rule, nil
}

func (s *Service) ListRules(ctx context.Context, orgID string, includeInactive bool) ([]Rule, error) {
	query := `
    SELECT r.id, r.name, r.description, r.conflicting_role_ids, r.severity, r.process_area, r.application_ids,
           r.auto_remediate, r.requires_exception_approval, r.is_active, r.created_by, r.created_at,
           (SELECT COUNT(1) FROM sod_violations v WHERE v.rule_id = r.id AND v.status = 'open')
    FROM sod_rules r
    WHERE r.organization_id = $1
  `
	if !includeInactive {
		query += " AND r.is_active"
	}
	query += " ORDER BY r.created_at DESC"

	rows, err := s.DB.Query(ctx, query, orgID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []Rule
	for rows.Next() {
		var rule Rule
		if err := rows.Scan(&rule.ID, &rule.Name, &rule.Description, &rule.ConflictingRoleIDs, &rule.Severity,
			&rule.ProcessArea, &rule.ApplicationIDs, &rule.AutoRemediate, &rule.RequiresExceptionApproval,
			&rule.IsActive, &rule.CreatedBy, &rule.CreatedAt, &rule.OpenViolations); err != nil {
			return nil, err
		}
		out = append(out, rule)
	}
	return out, nil
}

func (s *Service) verifyRolesExist(ctx context.Context, orgID string, roleIDs []string) error {
	distinct := make(map[string]struct{}, len(roleIDs))
	for _, id := range roleIDs {
		distinct[id] = struct{}{}
	}
	ids := make([]string, 0, len(distinct))
	for id := range distinct {
		ids = append(ids, id)
	}
	var count int
	if err := s.DB.QueryRow(ctx, `
    SELECT COUNT(1) FROM entitlement_roles
    WHERE organization_id = $1 AND id::text = ANY($2)
  `, orgID, ids).Scan(&count); err != nil {
		return err
	}
	if count != len(ids) {
		return fault.Validationf("conflictingRoleIds", "contains unknown role ids")
	}
	return nil
}

func (s *Service) verifyApplicationsExist(ctx context.Context, orgID string, appIDs []string) error {
	if len(appIDs) == 0 {
		return nil
	}
	distinct := make(map[string]struct{}, len(appIDs))
	for _, id := range appIDs {
		if id == "" {
			return fault.Validationf("applicationIds", "application ids must be non-empty")
		}
		distinct[id] = struct{}{}
	}
	var count int
	if err := s.DB.QueryRow(ctx, `
    SELECT COUNT(1) FROM applications
    WHERE organization_id = $1 AND id::text = ANY($2)
  `, orgID, appIDs).Scan(&count); err != nil {
		return err
	}
	if count != len(distinct) {
		return fault.Validationf("applicationIds", "contains unknown application ids")
	}
	return nil
}

type DetectionResult struct {
	RulesEvaluated int `json:"rulesEvaluated"`
	NewViolations  int `json:"newViolations"`
	Reconfirmed    int `json:"reconfirmed"`
}

// DetectViolations evaluates every active rule against current active
// grants. An already-open violation for the same rule and user is
// reconfirmed in place rather than duplicated, so repeated runs converge.
func (s *Service) DetectViolations(ctx context.Context, orgID string) (*DetectionResult, error) {
	rules, err := s.ListRules(ctx, orgID, false)
	if err != nil {
		return nil, err
	}

	result := &DetectionResult{RulesEvaluated: len(rules)}
	for _, rule := range rules {
		holders, err := s.usersHoldingRoles(ctx, orgID, rule.ConflictingRoleIDs, rule.ApplicationIDs)
		if err != nil {
			return nil, err
		}
		for userID, held := range holders {
			matched, hit := MatchRule(rule.ConflictingRoleIDs, held)
			if !hit {
				continue
			}
			created, err := s.recordViolation(ctx, orgID, rule, userID, matched)
			if err != nil {
				return nil, err
			}
			if created {
				result.NewViolations++
			} else {
				result.Reconfirmed++
			}
		}
	}
	return result, nil
}

// DetectForUser evaluates every active rule against a single user's held
// roles and returns that user's open violations, newly recorded ones
// included. The upsert semantics match the org-wide run.
func (s *Service) DetectForUser(ctx context.Context, orgID, userID string) ([]Violation, error) {
	var exists bool
	if err := s.DB.QueryRow(ctx, `
    SELECT EXISTS (SELECT 1 FROM users WHERE organization_id = $1 AND id = $2)
  `, orgID, userID).Scan(&exists); err != nil {
		return nil, err
	}
	if !exists {
		return nil, fault.NotFound("user", userID)
	}

	rules, err := s.ListRules(ctx, orgID, false)
	if err != nil {
		return nil, err
	}
	for _, rule := range rules {
		held, err := s.rolesHeldByUser(ctx, orgID, userID, rule.ConflictingRoleIDs, rule.ApplicationIDs)
		if err != nil {
			return nil, err
		}
		matched, hit := MatchRule(rule.ConflictingRoleIDs, held)
		if !hit {
			continue
		}
		if _, err := s.recordViolation(ctx, orgID, rule, userID, matched); err != nil {
			return nil, err
		}
	}

	violations, err := s.ListViolations(ctx, orgID, ViolationFilter{UserID: userID, Status: ViolationOpen}, 100, 0)
	if err != nil {
		return nil, err
	}
	return violations, nil
}

// usersHoldingRoles maps user id to the subset of the given roles the user
// actively holds, optionally bounded to roles under the given applications.
// Users with fewer than two held roles cannot violate and are filtered in
// SQL.
func (s *Service) usersHoldingRoles(ctx context.Context, orgID string, roleIDs, appIDs []string) (map[string][]string, error) {
	appClause := ""
	args := []any{orgID, roleIDs}
	if len(appIDs) > 0 {
		appClause = " AND er.application_id::text = ANY($3)"
		args = append(args, appIDs)
	}
	rows, err := s.DB.Query(ctx, `
    SELECT ua.user_id, ua.role_id
    FROM user_access ua
    JOIN users u ON u.id = ua.user_id
    JOIN entitlement_roles er ON er.id = ua.role_id
    WHERE ua.organization_id = $1 AND ua.is_active AND u.status = 'active'
      AND ua.role_id::text = ANY($2)`+appClause+`
      AND ua.user_id IN (
        SELECT ua2.user_id FROM user_access ua2
        JOIN entitlement_roles er ON er.id = ua2.role_id
        WHERE ua2.organization_id = $1 AND ua2.is_active AND ua2.role_id::text = ANY($2)`+appClause+`
        GROUP BY ua2.user_id HAVING COUNT(DISTINCT ua2.role_id) >= 2
      )
  `, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	holders := make(map[string][]string)
	for rows.Next() {
		var userID, roleID string
		if err := rows.Scan(&userID, &roleID); err != nil {
			return nil, err
		}
		holders[userID] = append(holders[userID], roleID)
	}
	return holders, rows.Err()
}

func (s *Service) rolesHeldByUser(ctx context.Context, orgID, userID string, roleIDs, appIDs []string) ([]string, error) {
	appClause := ""
	args := []any{orgID, userID, roleIDs}
	if len(appIDs) > 0 {
		appClause = " AND er.application_id::text = ANY($4)"
		args = append(args, appIDs)
	}
	rows, err := s.DB.Query(ctx, `
    SELECT ua.role_id
    FROM user_access ua
    JOIN entitlement_roles er ON er.id = ua.role_id
    WHERE ua.organization_id = $1 AND ua.user_id = $2 AND ua.is_active
      AND ua.role_id::text = ANY($3)`+appClause, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var held []string
	for rows.Next() {
		var roleID string
		if err := rows.Scan(&roleID); err != nil {
			return nil, err
		}
		held = append(held, roleID)
	}
	return held, rows.Err()
}

func (s *Service) recordViolation(ctx context.Context, orgID string, rule Rule, userID string, matched []string) (bool, error) {
	var violationID string
	var created bool
	err := s.DB.QueryRow(ctx, `
    INSERT INTO sod_violations (organization_id, rule_id, user_id, matched_role_ids, status)
    VALUES ($1,$2,$3,$4,'open')
    ON CONFLICT (rule_id, user_id) WHERE status = 'open'
    DO UPDATE SET last_detected_at = NOW(), matched_role_ids = EXCLUDED.matched_role_ids
    RETURNING id, (xmax = 0)
  `, orgID, rule.ID, userID, matched).Scan(&violationID, &created)
	if err != nil {
		return false, err
	}
	if created && s.Notifications != nil {
		if err := s.Notifications.Create(ctx, orgID, userID, notifications.KindViolationDetected,
			"Access conflict detected",
			"Your access matches the conflict rule \""+rule.Name+"\".", &violationID); err != nil {
			slog.Warn("violation notification failed", "violationId", violationID, "err", err)
		}
	}
	return created, nil
}

type ViolationFilter struct {
	Status   string
	RuleID   string
	UserID   string
	Severity string
}

func (s *Service) CountViolations(ctx context.Context, orgID string, filter ViolationFilter) (int, error) {
	query, args := buildViolationQuery("SELECT COUNT(1)", orgID, filter)
	var total int
	if err := s.DB.QueryRow(ctx, query, args...).Scan(&total); err != nil {
		return 0, err
	}
	return total, nil
}

func (s *Service) ListViolations(ctx context.Context, orgID string, filter ViolationFilter, limit, offset int) ([]Violation, error) {
	query, args := buildViolationQuery(`
    SELECT v.id, v.rule_id, r.name, r.severity, v.user_id, u.email, v.matched_role_ids,
           v.status, v.detected_at, v.last_detected_at,
           v.resolved_by, v.resolved_at, v.resolution_action, v.resolution_notes, v.exception_expires_at
  `, orgID, filter)
	query += fmt.Sprintf(" ORDER BY v.detected_at DESC LIMIT $%d OFFSET $%d", len(args)+1, len(args)+2)
	args = append(args, limit, offset)

	rows, err := s.DB.Query(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []Violation
	for rows.Next() {
		var v Violation
		if err := rows.Scan(&v.ID, &v.RuleID, &v.RuleName, &v.Severity, &v.UserID, &v.UserEmail, &v.MatchedRoleIDs,
			&v.Status, &v.DetectedAt, &v.LastDetectedAt,
			&v.ResolvedBy, &v.ResolvedAt, &v.ResolutionAction, &v.ResolutionNotes, &v.ExceptionExpiresAt); err != nil {
			return nil, err
		}
		out = append(out, v)
	}
	return out, nil
}

func buildViolationQuery(prefix, orgID string, filter ViolationFilter) (string, []any) {
	query := prefix + `
    FROM sod_violations v
    JOIN sod_rules r ON r.id = v.rule_id
    JOIN users u ON u.id = v.user_id
    WHERE v.organization_id = $1
  `
	args := []any{orgID}
	if filter.Status != "" {
		query += fmt.Sprintf(" AND v.status = $%d", len(args)+1)
		args = append(args, filter.Status)
	}
	if filter.RuleID != "" {
		query += fmt.Sprintf(" AND v.rule_id = $%d", len(args)+1)
		args = append(args, filter.RuleID)
	}
	if filter.UserID != "" {
		query += fmt.Sprintf(" AND v.user_id = $%d", len(args)+1)
		args = append(args, filter.UserID)
	}
	if filter.Severity != "" {
		query += fmt.Sprintf(" AND r.severity = $%d", len(args)+1)
		args = append(args, filter.Severity)
	}
	return query, args
}

type ResolveInput struct {
	Action          string
	Notes           string
	ExceptionExpiry *time.Time
}

// ResolveViolation closes an open violation. Resolution is terminal: a
// resolved violation is never reopened, a fresh detection run records a
// new one instead.
func (s *Service) ResolveViolation(ctx context.Context, orgID, violationID, actorID string, in ResolveInput) (*Violation, error) {
	if err := ValidateResolution(in.Action, in.ExceptionExpiry, time.Now()); err != nil {
		return nil, err
	}

	var status string
	err := s.DB.QueryRow(ctx, `
    SELECT status FROM sod_violations WHERE organization_id = $1 AND id = $2
  `, orgID, violationID).Scan(&status)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, fault.NotFound("sod violation", violationID)
	}
	if err != nil {
		return nil, err
	}
	if status != ViolationOpen {
		return nil, fault.Conflict("violation is already resolved")
	}

	var v Violation
	err = s.DB.QueryRow(ctx, `
    UPDATE sod_violations
    SET status = 'resolved', resolved_by = $3, resolved_at = NOW(),
        resolution_action = $4, resolution_notes = $5, exception_expires_at = $6
    WHERE organization_id = $1 AND id = $2 AND status = 'open'
    RETURNING id, rule_id, user_id, matched_role_ids, status, detected_at, last_detected_at,
              resolved_by, resolved_at, resolution_action, resolution_notes, exception_expires_at
  `, orgID, violationID, actorID, in.Action, in.Notes, in.ExceptionExpiry).
		Scan(&v.ID, &v.RuleID, &v.UserID, &v.MatchedRoleIDs, &v.Status, &v.DetectedAt, &v.LastDetectedAt,
			&v.ResolvedBy, &v.ResolvedAt, &v.ResolutionAction, &v.ResolutionNotes, &v.ExceptionExpiresAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, fault.Conflict("violation was resolved concurrently")
	}
	if err != nil {
		return nil, err
	}
	return &v, nil
}

// OpenViolationFlags maps each user with at least one open violation to a
// flag annotation naming the violated rule. When a user violates several
// rules the most severe one wins. Campaign launch uses this to flag review
// items.
func (s *Service) OpenViolationFlags(ctx context.Context, orgID string) (map[string]string, error) {
	rows, err := s.DB.Query(ctx, `
    SELECT DISTINCT ON (v.user_id) v.user_id, r.name, r.severity
    FROM sod_violations v
    JOIN sod_rules r ON r.id = v.rule_id
    WHERE v.organization_id = $1 AND v.status = 'open'
    ORDER BY v.user_id,
      CASE r.severity WHEN 'critical' THEN 0 WHEN 'high' THEN 1 WHEN 'medium' THEN 2 ELSE 3 END
  `, orgID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	flagged := make(map[string]string)
	for rows.Next() {
		var userID, ruleName, severity string
		if err := rows.Scan(&userID, &ruleName, &severity); err != nil {
			return nil, err
		}
		flagged[userID] = FlagReason(ruleName, severity)
	}
	return flagged, rows.Err()
}
