package directory

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"accessgov/internal/domain/fault"
)

type Service struct {
	DB *pgxpool.Pool
}

func New(db *pgxpool.Pool) *Service {
	return &Service{DB: db}
}

type UserFilter struct {
	DepartmentID string
	Status       string
	Role         string
	Search       string
}

func (s *Service) CountUsers(ctx context.Context, orgID string, filter UserFilter) (int, error) {
	query, args := buildUserQuery("SELECT COUNT(1)", orgID, filter)
	var total int
	if err := s.DB.QueryRow(ctx, query, args...).Scan(&total); err != nil {
		return 0, err
	}
	return total, nil
}

func (s *Service) ListUsers(ctx context.Context, orgID string, filter UserFilter, limit, offset int) ([]User, error) {
	query, args := buildUserQuery(
		"SELECT id, email, first_name, last_name, role, department_id, status, last_login_at, created_at",
		orgID, filter,
	)
	query += fmt.Sprintf(" ORDER BY last_name, first_name LIMIT $%d OFFSET $%d", len(args)+1, len(args)+2)
	args = append(args, limit, offset)

	rows, err := s.DB.Query(ctx, query, args...)
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

func buildUserQuery(prefix, orgID string, filter UserFilter) (string, []any) {
	query := prefix + " FROM users WHERE organization_id = $1"
	args := []any{orgID}
	if filter.DepartmentID != "" {
		query += fmt.Sprintf(" AND department_id = $%d", len(args)+1)
		args = append(args, filter.DepartmentID)
	}
	if filter.Status != "" {
		query += fmt.Sprintf(" AND status = $%d", len(args)+1)
		args = append(args, filter.Status)
	}
	if filter.Role != "" {
		query += fmt.Sprintf(" AND role = $%d", len(args)+1)
		args = append(args, filter.Role)
	}
	if filter.Search != "" {
		pattern := "%" + strings.ToLower(strings.TrimSpace(filter.Search)) + "%"
		query += fmt.Sprintf(" AND (LOWER(email) LIKE $%d OR LOWER(first_name || ' ' || last_name) LIKE $%d)", len(args)+1, len(args)+1)
		args = append(args, pattern)
	}
	return query, args
}

func (s *Service) GetUser(ctx context.Context, orgID, userID string) (*User, error) {
	var u User
	err := s.DB.QueryRow(ctx, `
    SELECT id, email, first_name, last_name, role, department_id, status, last_login_at, created_at
    FROM users WHERE organization_id = $1 AND id = $2
  `, orgID, userID).Scan(&u.ID, &u.Email, &u.FirstName, &u.LastName, &u.Role, &u.DepartmentID, &u.Status, &u.LastLoginAt, &u.CreatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, fault.NotFound("user", userID)
	}
	if err != nil {
		return nil, err
	}
	return &u, nil
}

type CreateUserInput struct {
	Email        string
	PasswordHash string
	FirstName    string
	LastName     string
	Role         string
	DepartmentID *string
}

func (s *Service) CreateUser(ctx context.Context, orgID string, in CreateUserInput) (*User, error) {
	var u User
	err := s.DB.QueryRow(ctx, `
    INSERT INTO users (organization_id, email, password_hash, first_name, last_name, role, department_id, status)
    VALUES ($1, LOWER($2), $3, $4, $5, $6, $7, 'active')
    RETURNING id, email, first_name, last_name, role, department_id, status, last_login_at, created_at
  `, orgID, in.Email, in.PasswordHash, in.FirstName, in.LastName, in.Role, in.DepartmentID).
		Scan(&u.ID, &u.Email, &u.FirstName, &u.LastName, &u.Role, &u.DepartmentID, &u.Status, &u.LastLoginAt, &u.CreatedAt)
	if err != nil {
		if isUniqueViolation(err) {
			return nil, fault.Validationf("email", "already registered")
		}
		return nil, err
	}
	return &u, nil
}

// UpdateUser applies only fields from the static allow-list; unknown keys
// in the payload are ignored by the handler before it reaches here.
func (s *Service) UpdateUser(ctx context.Context, orgID, userID string, fields map[string]any) (*User, error) {
	set, args := buildUpdateSet(userUpdatableFields, fields, 2)
	if len(set) == 0 {
		return s.GetUser(ctx, orgID, userID)
	}
	args = append([]any{orgID, userID}, args...)
	query := fmt.Sprintf(`
    UPDATE users SET %s, updated_at = NOW()
    WHERE organization_id = $1 AND id = $2
    RETURNING id, email, first_name, last_name, role, department_id, status, last_login_at, created_at
  `, strings.Join(set, ", "))

	var u User
	err := s.DB.QueryRow(ctx, query, args...).
		Scan(&u.ID, &u.Email, &u.FirstName, &u.LastName, &u.Role, &u.DepartmentID, &u.Status, &u.LastLoginAt, &u.CreatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, fault.NotFound("user", userID)
	}
	if err != nil {
		return nil, err
	}
	return &u, nil
}

func (s *Service) ListDepartments(ctx context.Context, orgID string) ([]Department, error) {
	rows, err := s.DB.Query(ctx, `
    SELECT id, code, name, created_at FROM departments
    WHERE organization_id = $1 ORDER BY code
  `, orgID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []Department
	for rows.Next() {
		var d Department
		if err := rows.Scan(&d.ID, &d.Code, &d.Name, &d.CreatedAt); err != nil {
			return nil, err
		}
		out = append(out, d)
	}
	return out, nil
}

func (s *Service) CreateDepartment(ctx context.Context, orgID, code, name string) (*Department, error) {
	var d Department
	err := s.DB.QueryRow(ctx, `
    INSERT INTO departments (organization_id, code, name)
    VALUES ($1, UPPER($2), $3)
    RETURNING id, code, name, created_at
  `, orgID, code, name).Scan(&d.ID, &d.Code, &d.Name, &d.CreatedAt)
	if err != nil {
		if isUniqueViolation(err) {
			return nil, fault.Validationf("code", "already in use")
		}
		return nil, err
	}
	return &d, nil
}

func (s *Service) ListApplications(ctx context.Context, orgID string) ([]Application, error) {
	rows, err := s.DB.Query(ctx, `
    SELECT id, name, description, owner_user_id, criticality, status, created_at
    FROM applications WHERE organization_id = $1 ORDER BY name
  `, orgID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []Application
	for rows.Next() {
		var a Application
		if err := rows.Scan(&a.ID, &a.Name, &a.Description, &a.OwnerUserID, &a.Criticality, &a.Status, &a.CreatedAt); err != nil {
			return nil, err
		}
		out = append(out, a)
	}
	return out, nil
}

func (s *Service) GetApplication(ctx context.Context, orgID, appID string) (*Application, error) {
	var a Application
	err := s.DB.QueryRow(ctx, `
    SELECT id, name, description, owner_user_id, criticality, status, created_at
    FROM applications WHERE organization_id = $1 AND id = $2
  `, orgID, appID).Scan(&a.ID, &a.Name, &a.Description, &a.OwnerUserID, &a.Criticality, &a.Status, &a.CreatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, fault.NotFound("application", appID)
	}
	if err != nil {
		return nil, err
	}
	return &a, nil
}

type CreateApplicationInput struct {
	Name        string
	Description string
	OwnerUserID *string
	Criticality string
}

func (s *Service) CreateApplication(ctx context.Context, orgID string, in CreateApplicationInput) (*Application, error) {
	var a Application
	err := s.DB.QueryRow(ctx, `
    INSERT INTO applications (organization_id, name, description, owner_user_id, criticality, status)
    VALUES ($1,$2,$3,$4,$5,'active')
    RETURNING id, name, description, owner_user_id, criticality, status, created_at
  `, orgID, in.Name, in.Description, in.OwnerUserID, in.Criticality).
		Scan(&a.ID, &a.Name, &a.Description, &a.OwnerUserID, &a.Criticality, &a.Status, &a.CreatedAt)
	if err != nil {
		return nil, err
	}
	return &a, nil
}

func (s *Service) UpdateApplication(ctx context.Context, orgID, appID string, fields map[string]any) (*Application, error) {
	set, args := buildUpdateSet(applicationUpdatableFields, fields, 2)
	if len(set) == 0 {
		return s.GetApplication(ctx, orgID, appID)
	}
	args = append([]any{orgID, appID}, args...)
	query := fmt.Sprintf(`
    UPDATE applications SET %s
    WHERE organization_id = $1 AND id = $2
    RETURNING id, name, description, owner_user_id, criticality, status, created_at
  `, strings.Join(set, ", "))

	var a Application
	err := s.DB.QueryRow(ctx, query, args...).
		Scan(&a.ID, &a.Name, &a.Description, &a.OwnerUserID, &a.Criticality, &a.Status, &a.CreatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, fault.NotFound("application", appID)
	}
	if err != nil {
		return nil, err
	}
	return &a, nil
}

func (s *Service) ListRoles(ctx context.Context, orgID, applicationID string) ([]EntitlementRole, error) {
	query := `
    SELECT id, application_id, name, description, risk_level, created_at
    FROM entitlement_roles WHERE organization_id = $1
  `
	args := []any{orgID}
	if applicationID != "" {
		query += " AND application_id = $2"
		args = append(args, applicationID)
	}
	query += " ORDER BY name"

	rows, err := s.DB.Query(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []EntitlementRole
	for rows.Next() {
		var role EntitlementRole
		if err := rows.Scan(&role.ID, &role.ApplicationID, &role.Name, &role.Description, &role.RiskLevel, &role.CreatedAt); err != nil {
			return nil, err
		}
		out = append(out, role)
	}
	return out, nil
}

type CreateRoleInput struct {
	ApplicationID string
	Name          string
	Description   string
	RiskLevel     string
}

func (s *Service) CreateRole(ctx context.Context, orgID string, in CreateRoleInput) (*EntitlementRole, error) {
	if _, err := s.GetApplication(ctx, orgID, in.ApplicationID); err != nil {
		return nil, err
	}
	var role EntitlementRole
	err := s.DB.QueryRow(ctx, `
    INSERT INTO entitlement_roles (organization_id, application_id, name, description, risk_level)
    VALUES ($1,$2,$3,$4,$5)
    RETURNING id, application_id, name, description, risk_level, created_at
  `, orgID, in.ApplicationID, in.Name, in.Description, in.RiskLevel).
		Scan(&role.ID, &role.ApplicationID, &role.Name, &role.Description, &role.RiskLevel, &role.CreatedAt)
	if err != nil {
		return nil, err
	}
	return &role, nil
}

func isUniqueViolation(err error) bool {
	return err != nil && strings.Contains(err.Error(), "23505")
}
