package database

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
)

var ErrAdminNotFound = errors.New("admin user not found")

// AdminRepository provides operations on administrator accounts.
type AdminRepository struct {
	db *DB
}

// NewAdminRepository creates a new AdminRepository.
func NewAdminRepository(db *DB) *AdminRepository {
	return &AdminRepository{db: db}
}

// Create inserts a new admin user.
func (r *AdminRepository) Create(ctx context.Context, admin *AdminUser) error {
	_, err := r.db.Pool.Exec(ctx, `
		INSERT INTO admin_users (id, username, password_hash, created_at)
		VALUES ($1, $2, $3, $4)
	`,
		admin.ID,
		admin.Username,
		admin.PasswordHash,
		admin.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to create admin user: %w", err)
	}
	return nil
}

// GetByUsername retrieves an admin user by username.
func (r *AdminRepository) GetByUsername(ctx context.Context, username string) (*AdminUser, error) {
	admin := &AdminUser{}
	err := r.db.Pool.QueryRow(ctx, `
		SELECT id, username, password_hash, created_at
		FROM admin_users WHERE username = $1
	`, username).Scan(
		&admin.ID,
		&admin.Username,
		&admin.PasswordHash,
		&admin.CreatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrAdminNotFound
		}
		return nil, fmt.Errorf("failed to get admin user: %w", err)
	}
	return admin, nil
}

// GetByID retrieves an admin user by ID.
func (r *AdminRepository) GetByID(ctx context.Context, id string) (*AdminUser, error) {
	admin := &AdminUser{}
	err := r.db.Pool.QueryRow(ctx, `
		SELECT id, username, password_hash, created_at
		FROM admin_users WHERE id = $1
	`, id).Scan(
		&admin.ID,
		&admin.Username,
		&admin.PasswordHash,
		&admin.CreatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrAdminNotFound
		}
		return nil, fmt.Errorf("failed to get admin user: %w", err)
	}
	return admin, nil
}

// UpdatePassword replaces an admin's password hash.
func (r *AdminRepository) UpdatePassword(ctx context.Context, id, passwordHash string) error {
	tag, err := r.db.Pool.Exec(ctx,
		"UPDATE admin_users SET password_hash = $1 WHERE id = $2", passwordHash, id)
	if err != nil {
		return fmt.Errorf("failed to update admin password: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrAdminNotFound
	}
	return nil
}

// Count returns the number of admin accounts.
func (r *AdminRepository) Count(ctx context.Context) (int64, error) {
	var n int64
	if err := r.db.Pool.QueryRow(ctx, "SELECT COUNT(*) FROM admin_users").Scan(&n); err != nil {
		return 0, fmt.Errorf("failed to count admin users: %w", err)
	}
	return n, nil
}
