package domain

import (
	"time"

	memberdomain "member-portal/internal/member/domain"
)

// Entry is one live OTP, keyed by the identity-key hash of the email it
// was issued for. At most one live entry exists per key: a new issuance
// replaces and implicitly invalidates any prior one.
type Entry struct {
	// Code is the 6-digit one-time code.
	Code string `json:"code"`
	// ExpiresAt is the absolute expiry time.
	ExpiresAt time.Time `json:"expires_at"`
	// Attempts counts failed verifications; the verifier enforces the ceiling.
	Attempts int `json:"attempts"`
	// Role is the role resolved at issuance time.
	Role memberdomain.Role `json:"role"`
	// Snapshot is the identity snapshot captured at issuance.
	Snapshot memberdomain.Snapshot `json:"member"`
}

// Expired reports whether the entry is past its expiry at the given time.
func (e *Entry) Expired(now time.Time) bool {
	return now.After(e.ExpiresAt)
}
