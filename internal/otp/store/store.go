// Package store provides the credential store holding live OTP entries,
// with interchangeable volatile (in-memory) and durable (git-backed)
// backends.
package store

import (
	"context"
	"errors"

	"member-portal/internal/otp/domain"
)

var (
	// ErrNotFound is returned for missing or expired entries. Callers must
	// not distinguish the two cases.
	ErrNotFound = errors.New("otp entry not found")
	// ErrConflict is returned when an atomic update lost a race against a
	// concurrent writer.
	ErrConflict = errors.New("otp entry changed concurrently")
	// ErrUnavailable is returned when the backend could not complete the
	// operation; the caller may retry with a fresh request.
	ErrUnavailable = errors.New("otp store unavailable")
)

// Store holds at most one live OTP entry per identity key.
type Store interface {
	// Put creates or replaces the entry for key. Replacing implicitly
	// invalidates any prior code for the same identity.
	Put(ctx context.Context, key string, entry *domain.Entry) error
	// Get returns the live entry for key. Expired entries are deleted
	// eagerly and reported as ErrNotFound.
	Get(ctx context.Context, key string) (*domain.Entry, error)
	// Delete removes the entry for key. Idempotent.
	Delete(ctx context.Context, key string) error
	// IncrementAttempts atomically bumps the attempt counter and returns
	// the updated entry. Fails with ErrConflict if the stored state changed
	// since it was observed; never overwrites blindly.
	IncrementAttempts(ctx context.Context, key string) (*domain.Entry, error)
}
