package db

import (
	"context"
	"log/slog"

	"github.com/jackc/pgx/v5/pgxpool"
	"golang.org/x/crypto/bcrypt"
)

// Seed ensures the bootstrap organization and its admin account exist.
// It is idempotent and safe to run on every start.
func Seed(ctx context.Context, pool *pgxpool.Pool, orgName, adminEmail, adminPassword string) error {
	var orgID string
	err := pool.QueryRow(ctx, `
    INSERT INTO organizations (name)
    VALUES ($1)
    ON CONFLICT (name) DO UPDATE SET name = EXCLUDED.name
    RETURNING id
  `, orgName).Scan(&orgID)
	if err != nil {
		return err
	}

	var exists bool
	if err := pool.QueryRow(ctx, `
    SELECT EXISTS (SELECT 1 FROM users WHERE organization_id = $1 AND email = LOWER($2))
  `, orgID, adminEmail).Scan(&exists); err != nil {
		return err
	}
	if exists {
		return nil
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(adminPassword), bcrypt.DefaultCost)
	if err != nil {
		return err
	}
	if _, err := pool.Exec(ctx, `
    INSERT INTO users (organization_id, email, password_hash, first_name, last_name, role, status)
    VALUES ($1, LOWER($2), $3, 'System', 'Admin', 'admin', 'active')
  `, orgID, adminEmail, string(hash)); err != nil {
		return err
	}
	slog.Info("seeded admin account", "org", orgName, "email", adminEmail)
	return nil
}
