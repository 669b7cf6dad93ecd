// Copyright 2025 Oliver Andrich
// Licensed under the EUPL-1.2

package models_test

import (
	"testing"

	"codeberg.org/oliverandrich/go-authflow/internal/models"
	"github.com/stretchr/testify/assert"
)

func ptr(s string) *string { return &s }

func TestUser_HasPendingReset(t *testing.T) {
	assert.False(t, (&models.User{}).HasPendingReset())
	assert.False(t, (&models.User{ResetToken: ptr("")}).HasPendingReset())
	assert.True(t, (&models.User{ResetToken: ptr("abc")}).HasPendingReset())
}

func TestUser_PendingVerification(t *testing.T) {
	user := &models.User{VerificationToken: ptr("jti-1")}

	assert.True(t, user.PendingVerification("jti-1"))
	assert.False(t, user.PendingVerification("jti-2"))
	assert.False(t, (&models.User{}).PendingVerification("jti-1"))
}
