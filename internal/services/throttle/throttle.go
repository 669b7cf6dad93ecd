// Copyright 2025 Oliver Andrich
// Licensed under the EUPL-1.2

// Package throttle tracks failed logins per identifier and locks an
// identifier out for a while after too many failures.
package throttle

import (
	"context"
	"fmt"
	"strings"
	"time"
)

const (
	DefaultThreshold = 5
	DefaultLockout   = 15 * time.Minute
)

// Entry is the stored state for one identifier.
type Entry struct {
	Failures    int
	LockedUntil time.Time
}

// Store persists entries. An entry is dropped once its ttl has passed; a ttl
// of zero means the entry does not expire.
type Store interface {
	Get(ctx context.Context, key string) (Entry, error)
	Put(ctx context.Context, key string, entry Entry, ttl time.Duration) error
	Delete(ctx context.Context, key string) error
}

// Status is the outcome of Check or RecordFailure.
type Status struct {
	Locked       bool
	Remaining    time.Duration // time left on the lockout when Locked
	AttemptsLeft int           // failures left before lockout when not Locked
}

// Throttle enforces the lockout policy on top of a Store. Failures below the
// threshold are forgotten one lockout duration after the latest of them.
type Throttle struct {
	store     Store
	threshold int
	lockout   time.Duration
	now       func() time.Time
}

// Option configures a Throttle.
type Option func(*Throttle)

// WithThreshold sets how many failures trigger a lockout.
func WithThreshold(n int) Option {
	return func(t *Throttle) {
		if n > 0 {
			t.threshold = n
		}
	}
}

// WithLockout sets how long a lockout lasts.
func WithLockout(d time.Duration) Option {
	return func(t *Throttle) {
		if d > 0 {
			t.lockout = d
		}
	}
}

// WithClock overrides the time source.
func WithClock(now func() time.Time) Option {
	return func(t *Throttle) {
		t.now = now
	}
}

// New creates a Throttle backed by store.
func New(store Store, opts ...Option) *Throttle {
	t := &Throttle{
		store:     store,
		threshold: DefaultThreshold,
		lockout:   DefaultLockout,
		now:       time.Now,
	}
	for _, opt := range opts {
		opt(t)
	}
	return t
}

// Normalize maps an identifier to the key shared with the credential lookup.
func Normalize(identifier string) string {
	return strings.ToLower(strings.TrimSpace(identifier))
}

// Check reports whether identifier is currently locked out. An expired
// lockout is cleared here.
func (t *Throttle) Check(ctx context.Context, identifier string) (Status, error) {
	key := Normalize(identifier)
	entry, err := t.store.Get(ctx, key)
	if err != nil {
		return Status{}, fmt.Errorf("reading throttle state: %w", err)
	}

	if !entry.LockedUntil.IsZero() {
		now := t.now()
		if now.Before(entry.LockedUntil) {
			return Status{Locked: true, Remaining: entry.LockedUntil.Sub(now)}, nil
		}
		if err := t.store.Delete(ctx, key); err != nil {
			return Status{}, fmt.Errorf("clearing expired lockout: %w", err)
		}
		entry = Entry{}
	}

	return Status{AttemptsLeft: t.threshold - entry.Failures}, nil
}

// RecordFailure counts a failed attempt and starts a lockout once the
// threshold is reached.
func (t *Throttle) RecordFailure(ctx context.Context, identifier string) (Status, error) {
	key := Normalize(identifier)
	entry, err := t.store.Get(ctx, key)
	if err != nil {
		return Status{}, fmt.Errorf("reading throttle state: %w", err)
	}

	now := t.now()
	if !entry.LockedUntil.IsZero() && !now.Before(entry.LockedUntil) {
		entry = Entry{}
	}

	entry.Failures++
	if entry.Failures >= t.threshold {
		entry.LockedUntil = now.Add(t.lockout)
		if err := t.store.Put(ctx, key, entry, t.lockout); err != nil {
			return Status{}, fmt.Errorf("storing lockout: %w", err)
		}
		return Status{Locked: true, Remaining: t.lockout}, nil
	}

	if err := t.store.Put(ctx, key, entry, t.lockout); err != nil {
		return Status{}, fmt.Errorf("storing failure: %w", err)
	}
	return Status{AttemptsLeft: t.threshold - entry.Failures}, nil
}

// RecordSuccess clears all state for identifier.
func (t *Throttle) RecordSuccess(ctx context.Context, identifier string) error {
	if err := t.store.Delete(ctx, Normalize(identifier)); err != nil {
		return fmt.Errorf("clearing throttle state: %w", err)
	}
	return nil
}
