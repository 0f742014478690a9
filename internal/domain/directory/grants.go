package directory

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"

	"accessgov/internal/domain/fault"
)

func (s *Service) GrantAccess(ctx context.Context, orgID, userID, roleID string, grantedBy *string) (*AccessGrant, error) {
	if _, err := s.GetUser(ctx, orgID, userID); err != nil {
		return nil, err
	}
	var exists bool
	if err := s.DB.QueryRow(ctx, `
    SELECT EXISTS (SELECT 1 FROM entitlement_roles WHERE organization_id = $1 AND id = $2)
  `, orgID, roleID).Scan(&exists); err != nil {
		return nil, err
	}
	if !exists {
		return nil, fault.NotFound("role", roleID)
	}

	var g AccessGrant
	err := s.DB.QueryRow(ctx, `
    INSERT INTO user_access (organization_id, user_id, role_id, granted_by, is_active, remediation_status)
    VALUES ($1,$2,$3,$4,TRUE,'none')
    ON CONFLICT (user_id, role_id) WHERE is_active
    DO UPDATE SET granted_by = EXCLUDED.granted_by
    RETURNING id, user_id, role_id, granted_at, granted_by, is_active, last_used_at, remediation_status
  `, orgID, userID, roleID, grantedBy).
		Scan(&g.ID, &g.UserID, &g.RoleID, &g.GrantedAt, &g.GrantedBy, &g.IsActive, &g.LastUsedAt, &g.RemediationStatus)
	if err != nil {
		return nil, err
	}
	return &g, nil
}

func (s *Service) DeactivateGrant(ctx context.Context, orgID, grantID string) error {
	tag, err := s.DB.Exec(ctx, `
    UPDATE user_access SET is_active = FALSE, deactivated_at = NOW()
    WHERE organization_id = $1 AND id = $2 AND is_active
  `, orgID, grantID)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return fault.NotFound("access grant", grantID)
	}
	return nil
}

// ListUserGrants returns the user's grants with role and application context.
func (s *Service) ListUserGrants(ctx context.Context, orgID, userID string, activeOnly bool) ([]GrantDetail, error) {
	query := grantDetailSelect + " WHERE ua.organization_id = $1 AND ua.user_id = $2"
	if activeOnly {
		query += " AND ua.is_active"
	}
	query += " ORDER BY app.name, er.name"

	rows, err := s.DB.Query(ctx, query, orgID, userID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return scanGrantDetails(rows)
}

// ActiveRoleIDs returns the ids of entitlement roles the user actively
// holds. Used by conflict detection.
func (s *Service) ActiveRoleIDs(ctx context.Context, orgID, userID string) ([]string, error) {
	rows, err := s.DB.Query(ctx, `
    SELECT role_id FROM user_access
    WHERE organization_id = $1 AND user_id = $2 AND is_active
  `, orgID, userID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		out = append(out, id)
	}
	return out, nil
}

const grantDetailSelect = `
  SELECT ua.id, ua.user_id, u.email, u.first_name || ' ' || u.last_name,
         u.department_id, d.code, d.name,
         ua.role_id, er.name, er.risk_level,
         app.id, app.name, app.owner_user_id,
         mm.manager_user_id,
         ua.granted_at, ua.last_used_at
  FROM user_access ua
  JOIN users u ON u.id = ua.user_id
  LEFT JOIN departments d ON d.id = u.department_id
  JOIN entitlement_roles er ON er.id = ua.role_id
  JOIN applications app ON app.id = er.application_id
  LEFT JOIN manager_mappings mm ON mm.employee_user_id = u.id AND mm.is_primary`

func scanGrantDetails(rows pgx.Rows) ([]GrantDetail, error) {
	var out []GrantDetail
	for rows.Next() {
		var g GrantDetail
		if err := rows.Scan(
			&g.GrantID, &g.UserID, &g.UserEmail, &g.UserName,
			&g.DepartmentID, &g.DepartmentCode, &g.DepartmentName,
			&g.RoleID, &g.RoleName, &g.RiskLevel,
			&g.ApplicationID, &g.ApplicationName, &g.OwnerUserID,
			&g.ManagerUserID,
			&g.GrantedAt, &g.LastUsedAt,
		); err != nil {
			return nil, err
		}
		out = append(out, g)
	}
	return out, rows.Err()
}

// SetManager records a reporting line. A user cannot report to themselves,
// and marking a mapping primary demotes any existing primary.
func (s *Service) SetManager(ctx context.Context, orgID, employeeID, managerID string, primary bool) (*ManagerMapping, error) {
	if employeeID == managerID {
		return nil, fault.Validationf("managerUserId", "user cannot report to themselves")
	}
	if _, err := s.GetUser(ctx, orgID, employeeID); err != nil {
		return nil, err
	}
	if _, err := s.GetUser(ctx, orgID, managerID); err != nil {
		return nil, err
	}

	tx, err := s.DB.Begin(ctx)
	if err != nil {
		return nil, err
	}
	defer tx.Rollback(ctx)

	if primary {
		if _, err := tx.Exec(ctx, `
      UPDATE manager_mappings SET is_primary = FALSE
      WHERE organization_id = $1 AND employee_user_id = $2 AND is_primary
    `, orgID, employeeID); err != nil {
			return nil, err
		}
	}

	var m ManagerMapping
	err = tx.QueryRow(ctx, `
    INSERT INTO manager_mappings (organization_id, employee_user_id, manager_user_id, is_primary)
    VALUES ($1,$2,$3,$4)
    ON CONFLICT (employee_user_id, manager_user_id)
    DO UPDATE SET is_primary = EXCLUDED.is_primary
    RETURNING id, employee_user_id, manager_user_id, is_primary, created_at
  `, orgID, employeeID, managerID, primary).
		Scan(&m.ID, &m.EmployeeUserID, &m.ManagerUserID, &m.IsPrimary, &m.CreatedAt)
	if err != nil {
		return nil, err
	}
	if err := tx.Commit(ctx); err != nil {
		return nil, err
	}
	return &m, nil
}

func (s *Service) PrimaryManager(ctx context.Context, orgID, employeeID string) (*User, error) {
	var managerID string
	err := s.DB.QueryRow(ctx, `
    SELECT manager_user_id FROM manager_mappings
    WHERE organization_id = $1 AND employee_user_id = $2 AND is_primary
  `, orgID, employeeID).Scan(&managerID)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return s.GetUser(ctx, orgID, managerID)
}

func (s *Service) ListDirectReports(ctx context.Context, orgID, managerID string) ([]User, error) {
	rows, err := s.DB.Query(ctx, fmt.Sprintf(`
    SELECT %s FROM users u
    JOIN manager_mappings mm ON mm.employee_user_id = u.id
    WHERE mm.organization_id = $1 AND mm.manager_user_id = $2 AND mm.is_primary
    ORDER BY u.last_name, u.first_name
  `, "u.id, u.email, u.first_name, u.last_name, u.role, u.department_id, u.status, u.last_login_at, u.created_at"), orgID, managerID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []User
	for rows.Next() {
		var u User
		if err := rows.Scan(&u.ID, &u.Email, &u.FirstName, &u.LastName, &u.Role, &u.DepartmentID, &u.Status, &u.LastLoginAt, &u.CreatedAt); err != nil {
			return nil, err
		}
		out = append(out, u)
	}
	return out, nil
}
