// Copyright 2025 Oliver Andrich
// Licensed under the EUPL-1.2

package repository

import (
	"context"
	"time"

	"codeberg.org/oliverandrich/go-authflow/internal/models"
)

const userColumns = `id, username, email, password_hash, is_verified, verification_token,
	reset_token, token_issued_at, created_at, updated_at`

// CreateUser inserts a new user and fills in its ID and timestamps.
// A clash on username or email returns ErrDuplicate.
func (r *Repository) CreateUser(ctx context.Context, user *models.User) error {
	now := r.timestamp()
	user.CreatedAt = now
	user.UpdatedAt = now

	query := r.db.Rebind(`INSERT INTO users
		(username, email, password_hash, is_verified, verification_token, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?) RETURNING id`)

	err := r.db.QueryRowxContext(ctx, query,
		user.Username, user.Email, user.PasswordHash, user.IsVerified,
		user.VerificationToken, user.CreatedAt, user.UpdatedAt,
	).Scan(&user.ID)
	return wrapError(err)
}

// GetUserByID retrieves a user by ID.
func (r *Repository) GetUserByID(ctx context.Context, id int64) (*models.User, error) {
	return r.getUser(ctx, `SELECT `+userColumns+` FROM users WHERE id = ?`, id)
}

// GetUserByEmail retrieves a user by email, ignoring case.
func (r *Repository) GetUserByEmail(ctx context.Context, email string) (*models.User, error) {
	return r.getUser(ctx, `SELECT `+userColumns+` FROM users WHERE lower(email) = lower(?)`, email)
}

// GetUserByUsername retrieves a user by username, ignoring case.
func (r *Repository) GetUserByUsername(ctx context.Context, username string) (*models.User, error) {
	return r.getUser(ctx, `SELECT `+userColumns+` FROM users WHERE lower(username) = lower(?)`, username)
}

// GetUserByLogin retrieves a user whose email or username matches identifier,
// ignoring case. An email match wins over a username match.
func (r *Repository) GetUserByLogin(ctx context.Context, identifier string) (*models.User, error) {
	return r.getUser(ctx, `SELECT `+userColumns+` FROM users
		WHERE lower(email) = lower(?) OR lower(username) = lower(?)
		ORDER BY CASE WHEN lower(email) = lower(?) THEN 0 ELSE 1 END
		LIMIT 1`, identifier, identifier, identifier)
}

func (r *Repository) getUser(ctx context.Context, query string, args ...any) (*models.User, error) {
	var user models.User
	if err := r.db.GetContext(ctx, &user, r.db.Rebind(query), args...); err != nil {
		return nil, wrapError(err)
	}
	return &user, nil
}

// SetVerificationToken records the id of the outstanding verification link.
func (r *Repository) SetVerificationToken(ctx context.Context, userID int64, tokenID string) error {
	return r.exec(ctx, `UPDATE users SET verification_token = ?, updated_at = ? WHERE id = ?`,
		tokenID, r.timestamp(), userID)
}

// MarkUserVerified flags the user as verified and drops any pending verification link.
func (r *Repository) MarkUserVerified(ctx context.Context, userID int64) error {
	return r.exec(ctx, `UPDATE users SET is_verified = ?, verification_token = NULL, updated_at = ? WHERE id = ?`,
		true, r.timestamp(), userID)
}

// SetResetToken records the id and issue time of the outstanding reset link.
func (r *Repository) SetResetToken(ctx context.Context, userID int64, tokenID string, issuedAt time.Time) error {
	return r.exec(ctx, `UPDATE users SET reset_token = ?, token_issued_at = ?, updated_at = ? WHERE id = ?`,
		tokenID, issuedAt.UTC(), r.timestamp(), userID)
}

// ClearResetToken drops the outstanding reset link and its timestamp together.
func (r *Repository) ClearResetToken(ctx context.Context, userID int64) error {
	return r.exec(ctx, `UPDATE users SET reset_token = NULL, token_issued_at = NULL, updated_at = ? WHERE id = ?`,
		r.timestamp(), userID)
}

// ResetUserPassword replaces the password hash and consumes the reset link in
// one statement. It returns ErrNotFound when tokenID is no longer the
// outstanding link, so a link can be redeemed at most once.
func (r *Repository) ResetUserPassword(ctx context.Context, userID int64, tokenID, passwordHash string) error {
	query := r.db.Rebind(`UPDATE users
		SET password_hash = ?, reset_token = NULL, token_issued_at = NULL, updated_at = ?
		WHERE id = ? AND reset_token = ?`)

	res, err := r.db.ExecContext(ctx, query, passwordHash, r.timestamp(), userID, tokenID)
	if err != nil {
		return wrapError(err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return ErrNotFound
	}
	return nil
}

func (r *Repository) exec(ctx context.Context, query string, args ...any) error {
	res, err := r.db.ExecContext(ctx, r.db.Rebind(query), args...)
	if err != nil {
		return wrapError(err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return ErrNotFound
	}
	return nil
}
