// Copyright 2025 Oliver Andrich
// Licensed under the EUPL-1.2

package i18n_test

import (
	"context"
	"os"
	"testing"

	"codeberg.org/oliverandrich/go-authflow/internal/i18n"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/text/language"
)

func TestMain(m *testing.M) {
	if err := i18n.Init(); err != nil {
		panic(err)
	}
	os.Exit(m.Run())
}

func TestLanguages(t *testing.T) {
	tags := i18n.Languages()

	require.NotEmpty(t, tags)
	assert.Equal(t, language.English, tags[0])
	assert.Contains(t, tags, language.German)
}

func TestT(t *testing.T) {
	en := i18n.WithLocale(context.Background(), language.English)
	de := i18n.WithLocale(context.Background(), language.German)

	assert.Equal(t, "You have been logged out.", i18n.T(en, "flash_logged_out"))
	assert.Equal(t, "Du wurdest abgemeldet.", i18n.T(de, "flash_logged_out"))
}

func TestT_UnknownKey(t *testing.T) {
	ctx := i18n.WithLocale(context.Background(), language.English)

	assert.Equal(t, "unknown_key_that_does_not_exist", i18n.T(ctx, "unknown_key_that_does_not_exist"))
}

func TestT_NoLocaleContext(t *testing.T) {
	assert.Equal(t, "Please log in to continue.", i18n.T(context.Background(), "flash_login_required"))
}

func TestTData(t *testing.T) {
	ctx := i18n.WithLocale(context.Background(), language.English)

	result := i18n.TData(ctx, "flash_welcome", map[string]any{"Username": "alice"})

	assert.Equal(t, "Welcome back, alice!", result)
}

func TestTCount(t *testing.T) {
	en := i18n.WithLocale(context.Background(), language.English)
	de := i18n.WithLocale(context.Background(), language.German)

	tests := []struct {
		ctx   context.Context
		id    string
		count int
		data  map[string]any
		want  string
	}{
		{en, "flash_invalid_credentials", 1, map[string]any{"AttemptsLeft": 1}, "Invalid username or password. 1 attempt left."},
		{en, "flash_invalid_credentials", 4, map[string]any{"AttemptsLeft": 4}, "Invalid username or password. 4 attempts left."},
		{en, "flash_locked", 1, map[string]any{"Minutes": 1}, "Too many failed attempts. Try again in 1 minute."},
		{en, "flash_locked", 15, map[string]any{"Minutes": 15}, "Too many failed attempts. Try again in 15 minutes."},
		{de, "flash_invalid_credentials", 1, map[string]any{"AttemptsLeft": 1}, "Benutzername oder Passwort falsch. Noch 1 Versuch."},
		{de, "flash_locked", 15, map[string]any{"Minutes": 15}, "Zu viele Fehlversuche. Versuche es in 15 Minuten erneut."},
	}
	for _, tt := range tests {
		t.Run(tt.want, func(t *testing.T) {
			assert.Equal(t, tt.want, i18n.TCount(tt.ctx, tt.id, tt.count, tt.data))
		})
	}
}

func TestTCount_DoesNotModifyData(t *testing.T) {
	data := map[string]any{"Minutes": 15}

	i18n.TCount(context.Background(), "flash_locked", 15, data)

	assert.NotContains(t, data, "Count")
}

func TestMatchLanguage(t *testing.T) {
	tests := []struct {
		expected       language.Tag
		acceptLanguage string
	}{
		{language.English, "en"},
		{language.English, "en-US"},
		{language.German, "de"},
		{language.German, "de-DE"},
		{language.German, "de-AT"},
		{language.English, "fr"}, // fallback to English
		{language.English, ""},   // empty defaults to English
		{language.German, "de, en;q=0.9"},
		{language.English, "en, de;q=0.9"},
	}

	for _, tt := range tests {
		t.Run(tt.acceptLanguage, func(t *testing.T) {
			tag := i18n.MatchLanguage(tt.acceptLanguage)
			// Compare base language (ignore region)
			assert.Equal(t, tt.expected.String()[:2], tag.String()[:2])
		})
	}
}

func TestWithLocale(t *testing.T) {
	ctx := i18n.WithLocale(context.Background(), language.German)

	assert.Equal(t, "de", i18n.GetLocale(ctx))
}

func TestGetLocale_Default(t *testing.T) {
	assert.Equal(t, "en", i18n.GetLocale(context.Background()))
}
