// Package user provides user and role lookups.
package user

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"go.uber.org/zap"
)

// ErrNotFound indicates the user does not exist.
var ErrNotFound = errors.New("user not found")

// Role discriminates patients from clinicians. Every workflow decision that
// depends on who is acting takes the role as an explicit parameter.
type Role int

const (
	RolePatient   Role = 0
	RoleClinician Role = 1
)

// String returns the role's display name.
func (r Role) String() string {
	switch r {
	case RolePatient:
		return "patient"
	case RoleClinician:
		return "clinician"
	}
	return fmt.Sprintf("role(%d)", int(r))
}

// User is one account row.
type User struct {
	ID       int64  `json:"id"`
	FullName string `json:"full_name"`
	Role     Role   `json:"role"`
}

// Repository provides user lookups.
type Repository struct {
	pool   *pgxpool.Pool
	logger *zap.Logger
}

// NewRepository creates a new repository.
func NewRepository(pool *pgxpool.Pool, logger *zap.Logger) *Repository {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Repository{pool: pool, logger: logger}
}

// GetByID retrieves one user.
func (r *Repository) GetByID(ctx context.Context, id int64) (*User, error) {
	var u User
	var role int
	err := r.pool.QueryRow(ctx, `
		SELECT user_id, full_name, role
		FROM users
		WHERE user_id = $1
	`, id).Scan(&u.ID, &u.FullName, &role)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("get user: %w", err)
	}
	u.Role = Role(role)
	return &u, nil
}

// GetRole returns the user's role.
func (r *Repository) GetRole(ctx context.Context, id int64) (Role, error) {
	u, err := r.GetByID(ctx, id)
	if err != nil {
		return RolePatient, err
	}
	return u.Role, nil
}

// DisplayName returns the user's full name.
func (r *Repository) DisplayName(ctx context.Context, id int64) (string, error) {
	u, err := r.GetByID(ctx, id)
	if err != nil {
		return "", err
	}
	return u.FullName, nil
}
