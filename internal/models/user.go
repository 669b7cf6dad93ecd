// Copyright 2025 Oliver Andrich
// Licensed under the EUPL-1.2

// Package models holds the persisted row types.
package models

import "time"

// User is an account row. VerificationToken and ResetToken hold the ids of
// the outstanding signed links, nil when none is pending.
type User struct { //nolint:govet // fieldalignment: readability over optimization
	ID                int64      `db:"id" json:"id"`
	Username          string     `db:"username" json:"username"`
	Email             string     `db:"email" json:"email"`
	PasswordHash      string     `db:"password_hash" json:"-"`
	IsVerified        bool       `db:"is_verified" json:"is_verified"`
	VerificationToken *string    `db:"verification_token" json:"-"`
	ResetToken        *string    `db:"reset_token" json:"-"`
	TokenIssuedAt     *time.Time `db:"token_issued_at" json:"-"`
	CreatedAt         time.Time  `db:"created_at" json:"created_at"`
	UpdatedAt         time.Time  `db:"updated_at" json:"updated_at"`
}

// HasPendingReset reports whether a reset link is outstanding.
func (u *User) HasPendingReset() bool {
	return u.ResetToken != nil && *u.ResetToken != ""
}

// PendingVerification reports whether tokenID is the outstanding verification link.
func (u *User) PendingVerification(tokenID string) bool {
	return u.VerificationToken != nil && *u.VerificationToken == tokenID
}
