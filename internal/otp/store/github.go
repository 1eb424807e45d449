package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"member-portal/internal/gitstore"
	"member-portal/internal/otp/domain"
)

// putRetries bounds how often a Put or Delete re-applies its intended end
// state after losing a compare-and-swap race.
const putRetries = 4

// GitHubStore is the durable Store backend. Each entry is one JSON file on
// a dedicated orphan branch, so OTP churn never pollutes the primary
// history. Every mutation is one commit; updates carry the observed blob
// SHA, turning each publish into a compare-and-swap.
type GitHubStore struct {
	contents gitstore.Contents
	branch   string
	nowF     func() time.Time
}

// NewGitHubStore returns a durable store on the given state branch. The
// branch is created as an orphan line of history if it does not exist.
func NewGitHubStore(ctx context.Context, contents gitstore.Contents, branch string) (*GitHubStore, error) {
	if err := contents.EnsureOrphanBranch(ctx, branch); err != nil {
		return nil, fmt.Errorf("ensure state branch: %w", err)
	}
	return &GitHubStore{contents: contents, branch: branch, nowF: time.Now}, nil
}

func entryPath(key string) string { return "otp/" + key + ".json" }

// shortKey truncates an identity key for commit messages. Raw emails never
// appear on the state branch.
func shortKey(key string) string {
	if len(key) > 12 {
		return key[:12]
	}
	return key
}

// Put writes the entry as the new state for key, replacing any prior one.
// On a lost race it refreshes the observed SHA and re-applies the same
// intended end state, up to putRetries times, then reports ErrUnavailable.
func (s *GitHubStore) Put(ctx context.Context, key string, entry *domain.Entry) error {
	data, err := json.MarshalIndent(entry, "", "  ")
	if err != nil {
		return err
	}
	msg := fmt.Sprintf("otp: issue %s", shortKey(key))
	for i := 0; i < putRetries; i++ {
		_, sha, err := s.contents.GetFile(ctx, s.branch, entryPath(key))
		if err != nil && !errors.Is(err, gitstore.ErrNotFound) {
			return fmt.Errorf("%w: %v", ErrUnavailable, err)
		}
		_, err = s.contents.PutFile(ctx, s.branch, entryPath(key), data, msg, sha)
		if err == nil {
			return nil
		}
		if !errors.Is(err, gitstore.ErrConflict) {
			return fmt.Errorf("%w: %v", ErrUnavailable, err)
		}
	}
	return fmt.Errorf("%w: put conflict persisted after %d retries", ErrUnavailable, putRetries)
}

// Get returns the live entry for key. Expired entries are deleted
// (best-effort) and reported as ErrNotFound.
func (s *GitHubStore) Get(ctx context.Context, key string) (*domain.Entry, error) {
	data, sha, err := s.contents.GetFile(ctx, s.branch, entryPath(key))
	if err != nil {
		if errors.Is(err, gitstore.ErrNotFound) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	var entry domain.Entry
	if err := json.Unmarshal(data, &entry); err != nil {
		return nil, fmt.Errorf("%w: corrupt entry: %v", ErrUnavailable, err)
	}
	if entry.Expired(s.nowF()) {
		msg := fmt.Sprintf("otp: expire %s", shortKey(key))
		_ = s.contents.DeleteFile(ctx, s.branch, entryPath(key), msg, sha)
		return nil, ErrNotFound
	}
	return &entry, nil
}

// Delete removes the entry for key. Idempotent; a lost race is retried
// against the refreshed SHA.
func (s *GitHubStore) Delete(ctx context.Context, key string) error {
	msg := fmt.Sprintf("otp: consume %s", shortKey(key))
	for i := 0; i < putRetries; i++ {
		_, sha, err := s.contents.GetFile(ctx, s.branch, entryPath(key))
		if errors.Is(err, gitstore.ErrNotFound) {
			return nil
		}
		if err != nil {
			return fmt.Errorf("%w: %v", ErrUnavailable, err)
		}
		err = s.contents.DeleteFile(ctx, s.branch, entryPath(key), msg, sha)
		if err == nil || errors.Is(err, gitstore.ErrNotFound) {
			return nil
		}
		if !errors.Is(err, gitstore.ErrConflict) {
			return fmt.Errorf("%w: %v", ErrUnavailable, err)
		}
	}
	return fmt.Errorf("%w: delete conflict persisted after %d retries", ErrUnavailable, putRetries)
}

// IncrementAttempts bumps the attempt counter with a single compare-and-swap.
// A lost race surfaces as ErrConflict: the intended end state depends on the
// observed counter, so re-applying it blindly would miscount.
func (s *GitHubStore) IncrementAttempts(ctx context.Context, key string) (*domain.Entry, error) {
	data, sha, err := s.contents.GetFile(ctx, s.branch, entryPath(key))
	if err != nil {
		if errors.Is(err, gitstore.ErrNotFound) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	var entry domain.Entry
	if err := json.Unmarshal(data, &entry); err != nil {
		return nil, fmt.Errorf("%w: corrupt entry: %v", ErrUnavailable, err)
	}
	entry.Attempts++
	updated, err := json.MarshalIndent(&entry, "", "  ")
	if err != nil {
		return nil, err
	}
	msg := fmt.Sprintf("otp: attempt %d on %s", entry.Attempts, shortKey(key))
	if _, err := s.contents.PutFile(ctx, s.branch, entryPath(key), updated, msg, sha); err != nil {
		if errors.Is(err, gitstore.ErrConflict) {
			return nil, ErrConflict
		}
		return nil, fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	return &entry, nil
}
