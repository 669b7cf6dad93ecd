// Copyright 2025 Oliver Andrich
// Licensed under the EUPL-1.2

// Package session keeps the logged-in user and one-shot flash messages in
// signed cookies.
package session

import (
	"encoding/hex"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"codeberg.org/oliverandrich/go-authflow/internal/config"
	"github.com/gorilla/securecookie"
)

const keyLength = 32

// Flash kinds, matching the alert styles of the pages.
const (
	FlashSuccess = "success"
	FlashInfo    = "info"
	FlashWarning = "warning"
	FlashDanger  = "danger"
)

// Data is the content of a session cookie.
type Data struct {
	UserID    int64
	Username  string
	ExpiresAt time.Time
}

// Flash is a message shown once on the next page.
type Flash struct {
	Kind    string
	Message string
}

// Manager encodes and decodes session and flash cookies.
type Manager struct {
	codec      *securecookie.SecureCookie
	cookieName string
	maxAge     int
	secure     bool
}

// NewManager creates a Manager. An empty hash key is replaced by a random
// one, which invalidates all sessions on restart.
func NewManager(cfg *config.SessionConfig, secure bool) (*Manager, error) {
	var hashKey []byte
	if cfg.HashKey == "" {
		slog.Warn("no session hash key configured, generating a temporary one")
		hashKey = securecookie.GenerateRandomKey(keyLength)
		if hashKey == nil {
			return nil, errors.New("failed to generate session hash key")
		}
	} else {
		key, err := decodeKey(cfg.HashKey, "hash")
		if err != nil {
			return nil, err
		}
		hashKey = key
	}

	var blockKey []byte
	if cfg.BlockKey != "" {
		key, err := decodeKey(cfg.BlockKey, "block")
		if err != nil {
			return nil, err
		}
		blockKey = key
	}

	codec := securecookie.New(hashKey, blockKey)
	codec.MaxAge(cfg.MaxAge)

	return &Manager{
		codec:      codec,
		cookieName: cfg.CookieName,
		maxAge:     cfg.MaxAge,
		secure:     secure,
	}, nil
}

func decodeKey(value, name string) ([]byte, error) {
	key, err := hex.DecodeString(value)
	if err != nil {
		return nil, fmt.Errorf("invalid session %s key: %w", name, err)
	}
	if len(key) != keyLength {
		return nil, fmt.Errorf("invalid session %s key: must be %d bytes, got %d", name, keyLength, len(key))
	}
	return key, nil
}

// Create returns a session cookie for the given user.
func (m *Manager) Create(userID int64, username string) (*http.Cookie, error) {
	data := Data{
		UserID:    userID,
		Username:  username,
		ExpiresAt: time.Now().Add(time.Duration(m.maxAge) * time.Second),
	}

	value, err := m.codec.Encode(m.cookieName, data)
	if err != nil {
		return nil, fmt.Errorf("failed to encode session: %w", err)
	}

	return m.cookie(m.cookieName, value, m.maxAge), nil
}

// Parse reads the session from r. A missing, invalid or expired cookie
// yields nil without an error.
func (m *Manager) Parse(r *http.Request) (*Data, error) {
	cookie, err := r.Cookie(m.cookieName)
	if err != nil {
		return nil, nil //nolint:nilerr // no cookie means no session
	}

	var data Data
	if err := m.codec.Decode(m.cookieName, cookie.Value, &data); err != nil {
		return nil, nil //nolint:nilerr // undecodable cookies are treated as logged out
	}
	if time.Now().After(data.ExpiresAt) {
		return nil, nil
	}

	return &data, nil
}

// Clear returns a cookie that removes the session.
func (m *Manager) Clear() *http.Cookie {
	return m.cookie(m.cookieName, "", -1)
}

func (m *Manager) flashName() string {
	return m.cookieName + "_flash"
}

// SetFlash stores f for the next request.
func (m *Manager) SetFlash(w http.ResponseWriter, f Flash) error {
	value, err := m.codec.Encode(m.flashName(), f)
	if err != nil {
		return fmt.Errorf("failed to encode flash: %w", err)
	}
	http.SetCookie(w, m.cookie(m.flashName(), value, 0))
	return nil
}

// PopFlash returns the pending flash message and removes it.
func (m *Manager) PopFlash(w http.ResponseWriter, r *http.Request) *Flash {
	cookie, err := r.Cookie(m.flashName())
	if err != nil {
		return nil
	}
	http.SetCookie(w, m.cookie(m.flashName(), "", -1))

	var f Flash
	if err := m.codec.Decode(m.flashName(), cookie.Value, &f); err != nil {
		return nil
	}
	return &f
}

func (m *Manager) cookie(name, value string, maxAge int) *http.Cookie {
	return &http.Cookie{
		Name:     name,
		Value:    value,
		Path:     "/",
		MaxAge:   maxAge,
		HttpOnly: true,
		Secure:   m.secure,
		SameSite: http.SameSiteLaxMode,
	}
}
