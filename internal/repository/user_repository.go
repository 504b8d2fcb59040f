package repository

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"

	"github.com/campushq/tutorhub-api/internal/models"
)

// UserRepository handles persistence for users and refresh tokens.
type UserRepository struct {
	db *sqlx.DB
}

// NewUserRepository creates a new repository instance.
func NewUserRepository(db *sqlx.DB) *UserRepository {
	return &UserRepository{db: db}
}

const userColumns = `id, username, email, password_hash, full_name, role, active, last_login, created_at, updated_at`

// FindByEmail returns a user by email.
func (r *UserRepository) FindByEmail(ctx context.Context, email string) (*models.User, error) {
	query := fmt.Sprintf(`SELECT %s FROM users WHERE LOWER(email) = LOWER($1)`, userColumns)
	var user models.User
	if err := r.db.GetContext(ctx, &user, query, email); err != nil {
		return nil, err
	}
	return &user, nil
}

// FindByID returns a user by id.
func (r *UserRepository) FindByID(ctx context.Context, id string) (*models.User, error) {
	query := fmt.Sprintf(`SELECT %s FROM users WHERE id = $1`, userColumns)
	var user models.User
	if err := r.db.GetContext(ctx, &user, query, id); err != nil {
		return nil, err
	}
	return &user, nil
}

// UpdateLastLogin stamps the last successful login.
func (r *UserRepository) UpdateLastLogin(ctx context.Context, id string, ts time.Time) error {
	if _, err := r.db.ExecContext(ctx, `UPDATE users SET last_login = $1, updated_at = $1 WHERE id = $2`, ts, id); err != nil {
		return fmt.Errorf("update last login: %w", err)
	}
	return nil
}

// UpdatePassword replaces a user's password hash.
func (r *UserRepository) UpdatePassword(ctx context.Context, id, passwordHash string, updatedAt time.Time) error {
	if _, err := r.db.ExecContext(ctx, `UPDATE users SET password_hash = $1, updated_at = $2 WHERE id = $3`, passwordHash, updatedAt, id); err != nil {
		return fmt.Errorf("update password: %w", err)
	}
	return nil
}

// CreateRefreshToken persists a refresh token session.
func (r *UserRepository) CreateRefreshToken(ctx context.Context, token *models.RefreshToken) error {
	if token.ID == "" {
		token.ID = uuid.NewString()
	}
	const query = `INSERT INTO refresh_tokens (id, user_id, token, expires_at, created_at, revoked, ip_address, user_agent)
VALUES (:id, :user_id, :token, :expires_at, :created_at, :revoked, :ip_address, :user_agent)`
	if _, err := r.db.NamedExecContext(ctx, query, token); err != nil {
		return fmt.Errorf("create refresh token: %w", err)
	}
	return nil
}

// FindRefreshToken looks up a stored refresh token by its value.
func (r *UserRepository) FindRefreshToken(ctx context.Context, token string) (*models.RefreshToken, error) {
	const query = `SELECT id, user_id, token, expires_at, created_at, revoked, revoked_at, ip_address, user_agent
FROM refresh_tokens WHERE token = $1`
	var stored models.RefreshToken
	if err := r.db.GetContext(ctx, &stored, query, token); err != nil {
		return nil, err
	}
	return &stored, nil
}

// RevokeRefreshToken marks a refresh token as revoked.
func (r *UserRepository) RevokeRefreshToken(ctx context.Context, id string, revokedAt time.Time) error {
	if _, err := r.db.ExecContext(ctx, `UPDATE refresh_tokens SET revoked = TRUE, revoked_at = $1 WHERE id = $2`, revokedAt, id); err != nil {
		return fmt.Errorf("revoke refresh token: %w", err)
	}
	return nil
}

// RevokeUserRefreshTokens revokes every active token belonging to a user.
func (r *UserRepository) RevokeUserRefreshTokens(ctx context.Context, userID string) error {
	if _, err := r.db.ExecContext(ctx, `UPDATE refresh_tokens SET revoked = TRUE, revoked_at = NOW() WHERE user_id = $1 AND revoked = FALSE`, userID); err != nil {
		return fmt.Errorf("revoke user refresh tokens: %w", err)
	}
	return nil
}
