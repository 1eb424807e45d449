package directory

import (
	"context"
	"encoding/json"
	"fmt"

	"member-portal/internal/gitstore"
	"member-portal/internal/member/domain"
)

// GitHubDirectory reads the member list from the data branch of the
// repository that holds the authoritative records.
type GitHubDirectory struct {
	contents gitstore.Contents
	branch   string
	path     string
}

// NewGitHubDirectory returns a directory over path (the members JSON file)
// on branch.
func NewGitHubDirectory(contents gitstore.Contents, branch, path string) *GitHubDirectory {
	return &GitHubDirectory{contents: contents, branch: branch, path: path}
}

// Load returns the full member list.
func (d *GitHubDirectory) Load(ctx context.Context) ([]domain.Member, error) {
	data, _, err := d.contents.GetFile(ctx, d.branch, d.path)
	if err != nil {
		return nil, fmt.Errorf("directory: load %s: %w", d.path, err)
	}
	var members []domain.Member
	if err := json.Unmarshal(data, &members); err != nil {
		return nil, fmt.Errorf("directory: parse %s: %w", d.path, err)
	}
	return members, nil
}

// Find returns the member whose E-Mail matches email, case-insensitively.
func (d *GitHubDirectory) Find(ctx context.Context, email string) (domain.Member, error) {
	members, err := d.Load(ctx)
	if err != nil {
		return nil, err
	}
	want := domain.NormalizeEmail(email)
	for _, m := range members {
		if domain.NormalizeEmail(m.Email()) == want {
			return m, nil
		}
	}
	return nil, ErrNotFound
}
