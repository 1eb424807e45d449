// Package domain holds the change proposal model.
package domain

import (
	"fmt"
	"sort"
	"strings"
	"time"

	memberdomain "member-portal/internal/member/domain"
)

// ChangeProposal is a pending, reviewable edit of one member record. It is
// pending by construction: approval or rejection happens outside this
// service, by a human merging or discarding the proposal branch.
type ChangeProposal struct {
	ID          string            `json:"id"`
	TargetEmail string            `json:"target_email"`
	OldValues   map[string]string `json:"old_values"`
	NewValues   map[string]string `json:"new_values"`
	Author      string            `json:"author"`
	AuthorRole  memberdomain.Role `json:"author_role"`
	CreatedAt   time.Time         `json:"created_at"`
}

// Fields returns the changed field names in stable order.
func (p *ChangeProposal) Fields() []string {
	fields := make([]string, 0, len(p.NewValues))
	for f := range p.NewValues {
		fields = append(fields, f)
	}
	sort.Strings(fields)
	return fields
}

// BranchName returns the isolated history line the proposal is published on.
func (p *ChangeProposal) BranchName() string {
	return "proposal/" + p.ID
}

// Description renders the human-readable summary used as the commit
// message: who changed what, old → new per field, on whose behalf.
func (p *ChangeProposal) Description() string {
	var b strings.Builder
	if p.Author == p.TargetEmail {
		fmt.Fprintf(&b, "Datenänderung: %s\n", p.TargetEmail)
	} else {
		fmt.Fprintf(&b, "Datenänderung: %s (durch %s)\n", p.TargetEmail, p.Author)
	}
	for _, f := range p.Fields() {
		old := p.OldValues[f]
		if old == "" {
			old = "–"
		}
		fmt.Fprintf(&b, "\n%s: %s → %s", f, old, p.NewValues[f])
	}
	return b.String()
}
