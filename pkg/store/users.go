package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/analystcopilot/core/pkg/apperrors"
	"github.com/analystcopilot/core/pkg/models"
	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
)

// UserRepo persists users, roles, and API keys.
type UserRepo struct {
	db *sqlx.DB
}

// NewUserRepo constructs a UserRepo.
func NewUserRepo(db *sqlx.DB) *UserRepo { return &UserRepo{db: db} }

// Create inserts a new user.
func (r *UserRepo) Create(ctx context.Context, u *models.User) error {
	if u.ID == "" {
		u.ID = uuid.NewString()
	}
	_, err := r.db.ExecContext(ctx, `
		INSERT INTO users (id, username, password_hash, roles, disabled)
		VALUES ($1, $2, $3, $4, $5)`, u.ID, u.Username, u.PasswordHash, u.Roles, u.Disabled)
	if err != nil {
		return fmt.Errorf("inserting user: %w", err)
	}
	return nil
}

// GetByID fetches a user by ID.
func (r *UserRepo) GetByID(ctx context.Context, id string) (*models.User, error) {
	return r.getOne(ctx, `SELECT * FROM users WHERE id = $1`, id)
}

// GetByUsername fetches a user by username, used during login.
func (r *UserRepo) GetByUsername(ctx context.Context, username string) (*models.User, error) {
	return r.getOne(ctx, `SELECT * FROM users WHERE username = $1`, username)
}

func (r *UserRepo) getOne(ctx context.Context, query string, arg any) (*models.User, error) {
	var u models.User
	err := r.db.GetContext(ctx, &u, query, arg)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, apperrors.NotFound
	}
	if err != nil {
		return nil, fmt.Errorf("fetching user: %w", err)
	}
	return &u, nil
}

// SetDisabled toggles account access without deleting history.
func (r *UserRepo) SetDisabled(ctx context.Context, id string, disabled bool) error {
	_, err := r.db.ExecContext(ctx, `UPDATE users SET disabled = $2 WHERE id = $1`, id, disabled)
	return err
}

// RoleRepo persists role-to-permission mappings.
type RoleRepo struct {
	db *sqlx.DB
}

// NewRoleRepo constructs a RoleRepo.
func NewRoleRepo(db *sqlx.DB) *RoleRepo { return &RoleRepo{db: db} }

// Upsert creates or replaces a role's permission set.
func (r *RoleRepo) Upsert(ctx context.Context, role *models.Role) error {
	_, err := r.db.ExecContext(ctx, `
		INSERT INTO roles (name, permissions) VALUES ($1, $2)
		ON CONFLICT (name) DO UPDATE SET permissions = EXCLUDED.permissions`,
		role.Name, role.Permissions)
	return err
}

// Get fetches a role by name.
func (r *RoleRepo) Get(ctx context.Context, name string) (*models.Role, error) {
	var role models.Role
	err := r.db.GetContext(ctx, &role, `SELECT * FROM roles WHERE name = $1`, name)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, apperrors.NotFound
	}
	if err != nil {
		return nil, fmt.Errorf("fetching role: %w", err)
	}
	return &role, nil
}

// ListAll returns every defined role, used to resolve a user's role list
// into a flattened permission set at login time.
func (r *RoleRepo) ListAll(ctx context.Context) ([]*models.Role, error) {
	var roles []*models.Role
	if err := r.db.SelectContext(ctx, &roles, `SELECT * FROM roles`); err != nil {
		return nil, fmt.Errorf("listing roles: %w", err)
	}
	return roles, nil
}

// APIKeyRepo persists API key hashes.
type APIKeyRepo struct {
	db *sqlx.DB
}

// NewAPIKeyRepo constructs an APIKeyRepo.
func NewAPIKeyRepo(db *sqlx.DB) *APIKeyRepo { return &APIKeyRepo{db: db} }

// Create inserts a new API key record; the plaintext key is never stored,
// only KeyHash.
func (r *APIKeyRepo) Create(ctx context.Context, k *models.APIKey) error {
	if k.ID == "" {
		k.ID = uuid.NewString()
	}
	_, err := r.db.ExecContext(ctx, `
		INSERT INTO api_keys (id, user_id, name, key_hash) VALUES ($1, $2, $3, $4)`,
		k.ID, k.UserID, k.Name, k.KeyHash)
	return err
}

// GetByHash looks up an API key by its hash, the only way it's ever
// queried (plaintext keys are never persisted or compared directly).
func (r *APIKeyRepo) GetByHash(ctx context.Context, hash string) (*models.APIKey, error) {
	var k models.APIKey
	err := r.db.GetContext(ctx, &k, `SELECT * FROM api_keys WHERE key_hash = $1 AND NOT revoked`, hash)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, apperrors.NotFound
	}
	if err != nil {
		return nil, fmt.Errorf("fetching api key: %w", err)
	}
	return &k, nil
}

// TouchLastUsed stamps last_used_at on successful authentication.
func (r *APIKeyRepo) TouchLastUsed(ctx context.Context, id string) error {
	_, err := r.db.ExecContext(ctx, `UPDATE api_keys SET last_used_at = now() WHERE id = $1`, id)
	return err
}

// Revoke marks a key unusable without deleting its audit trail.
func (r *APIKeyRepo) Revoke(ctx context.Context, id string) error {
	_, err := r.db.ExecContext(ctx, `UPDATE api_keys SET revoked = true WHERE id = $1`, id)
	return err
}
