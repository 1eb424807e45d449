// Package domain holds the member record model shared by the directory,
// auth, and mutation components.
package domain

import (
	"encoding/json"
	"fmt"
	"strings"
)

// Role is the self-service role derived from a member's board function.
type Role string

const (
	// RoleMember is a regular club member; may edit a subset of their own record.
	RoleMember Role = "member"
	// RoleBoard is a board member; may edit other members' records.
	RoleBoard Role = "board"
)

// Member field names as they appear in mitglieder_data.json.
const (
	FieldFirstName = "Vorname"
	FieldLastName  = "Name"
	FieldEmail     = "E-Mail"
	FieldFunktion  = "Funktion"
	FieldStatus    = "Status"
)

// Member statuses that grant self-service access.
const (
	StatusActive   = "Aktivmitglied"
	StatusHonorary = "Ehrenmitglied"
)

// boardFunctions are the Funktion values that mark a member as board.
var boardFunctions = []string{
	"Vorstand", "Präsident", "Kassier", "Aktuar", "Materialwart", "Revisor",
}

// Member is one record from the authoritative member list. The list is a
// JSON array of flat objects; values are kept as strings so arbitrary
// fields survive a round trip unchanged.
type Member map[string]string

// UnmarshalJSON coerces scalar values (numbers, booleans) to strings so
// records written by other tools still parse.
func (m *Member) UnmarshalJSON(data []byte) error {
	var raw map[string]any
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	out := make(Member, len(raw))
	for k, v := range raw {
		switch val := v.(type) {
		case string:
			out[k] = val
		case nil:
			out[k] = ""
		case float64:
			out[k] = strings.TrimSuffix(fmt.Sprintf("%v", val), ".0")
		default:
			out[k] = fmt.Sprintf("%v", val)
		}
	}
	*m = out
	return nil
}

// Email returns the member's email address.
func (m Member) Email() string { return m[FieldEmail] }

// Funktion returns the member's club function (e.g. "Kassier").
func (m Member) Funktion() string { return m[FieldFunktion] }

// Active reports whether the member's status grants self-service access.
func (m Member) Active() bool {
	return m[FieldStatus] == StatusActive || m[FieldStatus] == StatusHonorary
}

// RoleOf derives the self-service role from the member's Funktion.
// Board iff the Funktion contains one of the board function names
// (case-insensitive substring, matching the original member list data).
func RoleOf(m Member) Role {
	funktion := strings.ToLower(m.Funktion())
	for _, f := range boardFunctions {
		if strings.Contains(funktion, strings.ToLower(f)) {
			return RoleBoard
		}
	}
	return RoleMember
}

// Snapshot is the immutable identity snapshot captured at code issuance.
// Later steps (token minting, mutation authorship) use the snapshot and
// never re-query the directory mid-flow.
type Snapshot struct {
	FirstName string `json:"vorname"`
	LastName  string `json:"name"`
	Email     string `json:"email"`
	Funktion  string `json:"funktion,omitempty"`
}

// SnapshotOf captures the identity snapshot of a member record.
func SnapshotOf(m Member) Snapshot {
	return Snapshot{
		FirstName: m[FieldFirstName],
		LastName:  m[FieldLastName],
		Email:     NormalizeEmail(m.Email()),
		Funktion:  m.Funktion(),
	}
}

// NormalizeEmail case-folds and trims an email address. All lookups and
// store keys use the normalized form so casing never causes a miss.
func NormalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}
