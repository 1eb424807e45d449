// Package service turns an authorized edit request into a change proposal
// on an isolated branch. The authoritative record is never written here:
// merging a proposal is an external, human-gated step.
package service

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"maps"
	"time"

	"github.com/google/uuid"

	"member-portal/internal/audit"
	"member-portal/internal/authz"
	"member-portal/internal/gitstore"
	"member-portal/internal/member/directory"
	memberdomain "member-portal/internal/member/domain"
	mutationdomain "member-portal/internal/mutation/domain"
	"member-portal/internal/security"
)

var (
	// ErrForbidden is returned when a non-board requester targets another
	// member's record.
	ErrForbidden = errors.New("not allowed to edit this record")
	// ErrMemberNotFound is returned when the target record does not exist.
	ErrMemberNotFound = errors.New("target member not found")
	// ErrStoreUnavailable is transient; the caller may retry.
	ErrStoreUnavailable = errors.New("proposal store unavailable")
)

// MutationService validates, authorizes, and records profile edits.
type MutationService struct {
	tokens       *security.TokenProvider
	fields       *authz.Authorizer
	directory    directory.Directory
	contents     gitstore.Contents
	auditLog     audit.AuditLogger
	dataBranch   string
	membersFile  string
	storeTimeout time.Duration
	nowF         func() time.Time
	newID        func() string
}

// NewMutationService returns a MutationService with the given dependencies.
func NewMutationService(
	tokens *security.TokenProvider,
	fields *authz.Authorizer,
	dir directory.Directory,
	contents gitstore.Contents,
	auditLog audit.AuditLogger,
	dataBranch, membersFile string,
	storeTimeout time.Duration,
) *MutationService {
	return &MutationService{
		tokens:       tokens,
		fields:       fields,
		directory:    dir,
		contents:     contents,
		auditLog:     auditLog,
		dataBranch:   dataBranch,
		membersFile:  membersFile,
		storeTimeout: storeTimeout,
		nowF:         time.Now,
		newID:        func() string { return uuid.New().String() },
	}
}

// Propose validates rawToken, authorizes the requested changes per field,
// and publishes the surviving edit as a proposal branch. Returns the
// proposal id. targetEmail may be empty (self-edit); setting it to another
// member's address requires the board role.
func (s *MutationService) Propose(ctx context.Context, rawToken, targetEmail string, changes map[string]string) (string, error) {
	claims, err := s.tokens.Validate(rawToken)
	if err != nil {
		return "", err
	}
	subject := memberdomain.NormalizeEmail(claims.Subject)

	target := subject
	if t := memberdomain.NormalizeEmail(targetEmail); t != "" && t != subject {
		if claims.Role != memberdomain.RoleBoard {
			return "", ErrForbidden
		}
		target = t
	}

	accepted, rejected, err := s.fields.Filter(ctx, claims.Role, changes)
	if err != nil {
		return "", err
	}

	sctx, cancel := context.WithTimeout(ctx, s.storeTimeout)
	defer cancel()

	members, err := s.directory.Load(sctx)
	if err != nil {
		if errors.Is(err, context.DeadlineExceeded) || errors.Is(err, gitstore.ErrNotFound) {
			return "", ErrStoreUnavailable
		}
		return "", err
	}
	idx := -1
	for i, m := range members {
		if memberdomain.NormalizeEmail(m.Email()) == target {
			idx = i
			break
		}
	}
	if idx < 0 {
		return "", ErrMemberNotFound
	}

	old := make(map[string]string, len(accepted))
	updated := maps.Clone(members[idx])
	for field, value := range accepted {
		old[field] = members[idx][field]
		updated[field] = value
	}
	members[idx] = updated

	proposal := &mutationdomain.ChangeProposal{
		ID:          s.newID(),
		TargetEmail: target,
		OldValues:   old,
		NewValues:   accepted,
		Author:      subject,
		AuthorRole:  claims.Role,
		CreatedAt:   s.nowF().UTC(),
	}

	memberData, err := json.MarshalIndent(members, "", "  ")
	if err != nil {
		return "", err
	}
	proposalData, err := json.MarshalIndent(proposal, "", "  ")
	if err != nil {
		return "", err
	}
	files := map[string][]byte{
		s.membersFile:                       memberData,
		"proposals/" + proposal.ID + ".json": proposalData,
	}

	// One commit, one new branch: either the whole proposal lands or
	// nothing does.
	err = s.contents.PublishBranch(sctx, proposal.BranchName(), s.dataBranch, proposal.Description(), files)
	if err != nil {
		if errors.Is(err, context.DeadlineExceeded) || errors.Is(err, gitstore.ErrConflict) {
			return "", ErrStoreUnavailable
		}
		return "", fmt.Errorf("publish proposal: %w", err)
	}

	meta := fmt.Sprintf("fields=%d rejected=%d target=%s", len(accepted), len(rejected), proposal.BranchName())
	s.auditLog.LogEvent(ctx, subject, "mutation.propose", proposal.BranchName(), meta)
	return proposal.ID, nil
}
