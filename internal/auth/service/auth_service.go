// Package service implements the OTP login flow: code issuance bound to an
// identity snapshot, and verification that redeems the code for a signed
// bearer token.
package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"member-portal/internal/audit"
	"member-portal/internal/mailer"
	"member-portal/internal/member/directory"
	memberdomain "member-portal/internal/member/domain"
	"member-portal/internal/otp"
	otpdomain "member-portal/internal/otp/domain"
	otpstore "member-portal/internal/otp/store"
	"member-portal/internal/security"
)

// Sentinel errors for the auth service; the HTTP layer maps them to codes.
var (
	// ErrCodeExpired covers both "expired" and "never requested" so a
	// caller cannot probe which addresses have live codes.
	ErrCodeExpired = errors.New("code expired or not requested")
	// ErrTooManyAttempts is terminal: the entry is gone and a fresh
	// RequestCode is required.
	ErrTooManyAttempts = errors.New("too many failed attempts")
	// ErrStoreUnavailable is transient; the caller may retry.
	ErrStoreUnavailable = errors.New("credential store unavailable")
)

// InvalidCodeError is returned on a code mismatch and carries how many
// attempts remain before the entry is invalidated.
type InvalidCodeError struct {
	Remaining int
}

func (e *InvalidCodeError) Error() string {
	return fmt.Sprintf("invalid code, %d attempts remaining", e.Remaining)
}

// RedeemResult is the outcome of a successful code redemption.
type RedeemResult struct {
	Token     string
	ExpiresAt time.Time
	Role      memberdomain.Role
	Member    memberdomain.Snapshot
}

// AuthService issues and verifies one-time codes.
type AuthService struct {
	store        otpstore.Store
	directory    directory.Directory
	mailer       mailer.Mailer
	tokens       *security.TokenProvider
	auditLog     audit.AuditLogger
	keySecret    []byte
	codeTTL      time.Duration
	maxAttempts  int
	storeTimeout time.Duration
	nowF         func() time.Time
	generate     func() (string, error)
}

// NewAuthService returns an AuthService with the given dependencies.
func NewAuthService(
	store otpstore.Store,
	dir directory.Directory,
	m mailer.Mailer,
	tokens *security.TokenProvider,
	auditLog audit.AuditLogger,
	keySecret []byte,
	codeTTL time.Duration,
	maxAttempts int,
	storeTimeout time.Duration,
) *AuthService {
	return &AuthService{
		store:        store,
		directory:    dir,
		mailer:       m,
		tokens:       tokens,
		auditLog:     auditLog,
		keySecret:    keySecret,
		codeTTL:      codeTTL,
		maxAttempts:  maxAttempts,
		storeTimeout: storeTimeout,
		nowF:         time.Now,
		generate:     otp.GenerateCode,
	}
}

// RequestCode issues a one-time code for email and hands it to the mail
// collaborator. Unknown or inactive addresses succeed without sending, so
// the response never reveals whether an address is on the member list.
// A new issuance replaces any prior live code for the same identity.
func (s *AuthService) RequestCode(ctx context.Context, email string) error {
	email = memberdomain.NormalizeEmail(email)

	member, err := s.findMember(ctx, email)
	if errors.Is(err, directory.ErrNotFound) {
		return nil
	}
	if err != nil {
		return err
	}
	if !member.Active() {
		return nil
	}

	code, err := s.generate()
	if err != nil {
		return fmt.Errorf("generate code: %w", err)
	}
	role := memberdomain.RoleOf(member)
	snapshot := memberdomain.SnapshotOf(member)
	key := security.IdentityKey(s.keySecret, email)
	entry := &otpdomain.Entry{
		Code:      code,
		ExpiresAt: s.nowF().Add(s.codeTTL),
		Attempts:  0,
		Role:      role,
		Snapshot:  snapshot,
	}

	sctx, cancel := context.WithTimeout(ctx, s.storeTimeout)
	defer cancel()
	if err := s.store.Put(sctx, key, entry); err != nil {
		return s.storeErr(err)
	}

	subject, body := mailer.CodeEmail(code, int(s.codeTTL.Minutes()))
	if err := s.mailer.Send(ctx, snapshot.Email, subject, body); err != nil {
		// Undo the issuance so a failed delivery leaves no residual state.
		dctx, dcancel := context.WithTimeout(context.WithoutCancel(ctx), s.storeTimeout)
		defer dcancel()
		_ = s.store.Delete(dctx, key)
		return fmt.Errorf("send code: %w", err)
	}

	s.auditLog.LogEvent(ctx, shortKey(key), "otp.issue", "otp/"+shortKey(key), string(role))
	return nil
}

// RedeemCode validates the submitted code and mints a bearer token. The
// checks run in a fixed order: expiry, then attempt exhaustion, then the
// code comparison, so a stale or exhausted entry never gets a fresh
// comparison chance. A matching code consumes the entry.
func (s *AuthService) RedeemCode(ctx context.Context, email, code string) (*RedeemResult, error) {
	email = memberdomain.NormalizeEmail(email)
	key := security.IdentityKey(s.keySecret, email)

	sctx, cancel := context.WithTimeout(ctx, s.storeTimeout)
	defer cancel()

	entry, err := s.store.Get(sctx, key)
	if errors.Is(err, otpstore.ErrNotFound) {
		return nil, ErrCodeExpired
	}
	if err != nil {
		return nil, s.storeErr(err)
	}

	if entry.Expired(s.nowF()) {
		_ = s.store.Delete(sctx, key)
		return nil, ErrCodeExpired
	}

	if entry.Attempts >= s.maxAttempts {
		if err := s.store.Delete(sctx, key); err != nil {
			return nil, s.storeErr(err)
		}
		s.auditLog.LogEvent(ctx, shortKey(key), "otp.exhausted", "otp/"+shortKey(key), "")
		return nil, ErrTooManyAttempts
	}

	if entry.Code != code {
		updated, err := s.store.IncrementAttempts(sctx, key)
		if errors.Is(err, otpstore.ErrNotFound) {
			return nil, ErrCodeExpired
		}
		if err != nil {
			return nil, s.storeErr(err)
		}
		return nil, &InvalidCodeError{Remaining: s.maxAttempts - updated.Attempts}
	}

	// One-time use: consume before minting.
	if err := s.store.Delete(sctx, key); err != nil {
		return nil, s.storeErr(err)
	}

	token, expiresAt, err := s.tokens.Mint(entry.Snapshot, entry.Role)
	if err != nil {
		return nil, fmt.Errorf("mint token: %w", err)
	}
	s.auditLog.LogEvent(ctx, shortKey(key), "otp.redeem", "otp/"+shortKey(key), string(entry.Role))
	return &RedeemResult{
		Token:     token,
		ExpiresAt: expiresAt,
		Role:      entry.Role,
		Member:    entry.Snapshot,
	}, nil
}

func (s *AuthService) findMember(ctx context.Context, email string) (memberdomain.Member, error) {
	dctx, cancel := context.WithTimeout(ctx, s.storeTimeout)
	defer cancel()
	member, err := s.directory.Find(dctx, email)
	if err != nil && !errors.Is(err, directory.ErrNotFound) {
		return nil, s.storeErr(err)
	}
	return member, err
}

// storeErr maps backend and timeout failures to the transient sentinel.
func (s *AuthService) storeErr(err error) error {
	if errors.Is(err, context.DeadlineExceeded) || errors.Is(err, otpstore.ErrUnavailable) {
		return ErrStoreUnavailable
	}
	return err
}

func shortKey(key string) string {
	if len(key) > 12 {
		return key[:12]
	}
	return key
}
