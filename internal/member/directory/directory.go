// Package directory reads the authoritative member list. The directory is
// read-only for this service: mutations go through change proposals and an
// external, human-gated approval.
package directory

import (
	"context"
	"errors"

	"member-portal/internal/member/domain"
)

// ErrNotFound is returned when no member matches the given email.
var ErrNotFound = errors.New("member not found")

// Directory is the identity directory consumed by auth and mutation flows.
type Directory interface {
	// Find returns the member whose E-Mail matches email (case-insensitive).
	Find(ctx context.Context, email string) (domain.Member, error)
	// Load returns the full member list in file order.
	Load(ctx context.Context) ([]domain.Member, error)
}
