// Package gitstore wraps the GitHub contents and git data APIs as a small
// conflict-detecting file store. Every write is one commit; updates carry
// the previous blob SHA so a concurrent writer surfaces as ErrConflict
// instead of being overwritten.
package gitstore

import (
	"context"
	"errors"
	"fmt"
	"net/http"

	"github.com/google/go-github/v81/github"
	"golang.org/x/oauth2"
)

var (
	// ErrNotFound is returned when the requested file or ref does not exist.
	ErrNotFound = errors.New("gitstore: not found")
	// ErrConflict is returned when a write lost a race: the stored state
	// changed since it was last observed (stale SHA or existing ref).
	ErrConflict = errors.New("gitstore: conflict")
)

// Contents is the storage surface the stores and the proposer build on.
type Contents interface {
	// GetFile returns the content and blob SHA of path on branch.
	GetFile(ctx context.Context, branch, path string) (data []byte, sha string, err error)
	// PutFile creates (sha == "") or updates (sha set) path on branch as a
	// single commit. Returns the new blob SHA. A stale sha yields ErrConflict.
	PutFile(ctx context.Context, branch, path string, data []byte, message, sha string) (newSHA string, err error)
	// DeleteFile removes path on branch. A stale sha yields ErrConflict;
	// a missing file yields ErrNotFound.
	DeleteFile(ctx context.Context, branch, path, message, sha string) error
	// EnsureOrphanBranch creates branch as a parentless history line if it
	// does not exist yet. Existing branches are left untouched.
	EnsureOrphanBranch(ctx context.Context, branch string) error
	// PublishBranch creates branch from the head of baseBranch with exactly
	// one commit containing files. An existing branch yields ErrConflict.
	PublishBranch(ctx context.Context, branch, baseBranch, message string, files map[string][]byte) error
}

// Client implements Contents against a single GitHub repository.
type Client struct {
	gh    *github.Client
	owner string
	repo  string
}

// NewClient returns a Client authenticated with the given token.
func NewClient(ctx context.Context, token, owner, repo string) *Client {
	ts := oauth2.StaticTokenSource(&oauth2.Token{AccessToken: token})
	return &Client{
		gh:    github.NewClient(oauth2.NewClient(ctx, ts)),
		owner: owner,
		repo:  repo,
	}
}

// GetFile returns the content and blob SHA of path on branch.
func (c *Client) GetFile(ctx context.Context, branch, path string) ([]byte, string, error) {
	fc, _, resp, err := c.gh.Repositories.GetContents(ctx, c.owner, c.repo, path,
		&github.RepositoryContentGetOptions{Ref: branch})
	if err != nil {
		if resp != nil && resp.StatusCode == http.StatusNotFound {
			return nil, "", ErrNotFound
		}
		return nil, "", fmt.Errorf("gitstore: get %s@%s: %w", path, branch, err)
	}
	if fc == nil {
		return nil, "", ErrNotFound
	}
	content, err := fc.GetContent()
	if err != nil {
		return nil, "", fmt.Errorf("gitstore: decode %s@%s: %w", path, branch, err)
	}
	return []byte(content), fc.GetSHA(), nil
}

// PutFile creates or updates path on branch as a single commit.
func (c *Client) PutFile(ctx context.Context, branch, path string, data []byte, message, sha string) (string, error) {
	opts := &github.RepositoryContentFileOptions{
		Message: github.Ptr(message),
		Content: data,
		Branch:  github.Ptr(branch),
	}
	var (
		rc   *github.RepositoryContentResponse
		resp *github.Response
		err  error
	)
	if sha == "" {
		rc, resp, err = c.gh.Repositories.CreateFile(ctx, c.owner, c.repo, path, opts)
	} else {
		opts.SHA = github.Ptr(sha)
		rc, resp, err = c.gh.Repositories.UpdateFile(ctx, c.owner, c.repo, path, opts)
	}
	if err != nil {
		if isConflict(resp) {
			return "", ErrConflict
		}
		return "", fmt.Errorf("gitstore: put %s@%s: %w", path, branch, err)
	}
	return rc.Content.GetSHA(), nil
}

// DeleteFile removes path on branch.
func (c *Client) DeleteFile(ctx context.Context, branch, path, message, sha string) error {
	opts := &github.RepositoryContentFileOptions{
		Message: github.Ptr(message),
		SHA:     github.Ptr(sha),
		Branch:  github.Ptr(branch),
	}
	_, resp, err := c.gh.Repositories.DeleteFile(ctx, c.owner, c.repo, path, opts)
	if err != nil {
		if resp != nil && resp.StatusCode == http.StatusNotFound {
			return ErrNotFound
		}
		if isConflict(resp) {
			return ErrConflict
		}
		return fmt.Errorf("gitstore: delete %s@%s: %w", path, branch, err)
	}
	return nil
}

// EnsureOrphanBranch creates branch as a parentless history line if missing.
// The branch starts from a commit with no parents, so its churn never shows
// up in the primary history.
func (c *Client) EnsureOrphanBranch(ctx context.Context, branch string) error {
	_, resp, err := c.gh.Git.GetRef(ctx, c.owner, c.repo, "refs/heads/"+branch)
	if err == nil {
		return nil
	}
	if resp == nil || resp.StatusCode != http.StatusNotFound {
		return fmt.Errorf("gitstore: get ref %s: %w", branch, err)
	}

	blob, _, err := c.gh.Git.CreateBlob(ctx, c.owner, c.repo, github.Blob{
		Content:  github.Ptr("Ephemeral state branch. Do not merge.\n"),
		Encoding: github.Ptr("utf-8"),
	})
	if err != nil {
		return fmt.Errorf("gitstore: create blob: %w", err)
	}
	tree, _, err := c.gh.Git.CreateTree(ctx, c.owner, c.repo, "", []*github.TreeEntry{{
		Path: github.Ptr("README.md"),
		Mode: github.Ptr("100644"),
		Type: github.Ptr("blob"),
		SHA:  blob.SHA,
	}})
	if err != nil {
		return fmt.Errorf("gitstore: create tree: %w", err)
	}
	commit, _, err := c.gh.Git.CreateCommit(ctx, c.owner, c.repo, github.Commit{
		Message: github.Ptr(fmt.Sprintf("init %s state branch", branch)),
		Tree:    tree,
	}, nil)
	if err != nil {
		return fmt.Errorf("gitstore: create commit: %w", err)
	}
	_, resp, err = c.gh.Git.CreateRef(ctx, c.owner, c.repo, github.CreateRef{
		Ref: "refs/heads/" + branch,
		SHA: commit.GetSHA(),
	})
	if err != nil {
		// Lost an init race: another process created the branch first.
		if isConflict(resp) {
			return nil
		}
		return fmt.Errorf("gitstore: create ref %s: %w", branch, err)
	}
	return nil
}

// PublishBranch creates branch from the head of baseBranch with one commit
// containing files. The base branch itself is never written.
func (c *Client) PublishBranch(ctx context.Context, branch, baseBranch, message string, files map[string][]byte) error {
	baseRef, resp, err := c.gh.Git.GetRef(ctx, c.owner, c.repo, "refs/heads/"+baseBranch)
	if err != nil {
		if resp != nil && resp.StatusCode == http.StatusNotFound {
			return ErrNotFound
		}
		return fmt.Errorf("gitstore: get ref %s: %w", baseBranch, err)
	}
	baseSHA := baseRef.Object.GetSHA()
	baseCommit, _, err := c.gh.Git.GetCommit(ctx, c.owner, c.repo, baseSHA)
	if err != nil {
		return fmt.Errorf("gitstore: get commit %s: %w", baseSHA, err)
	}

	entries := make([]*github.TreeEntry, 0, len(files))
	for path, data := range files {
		blob, _, err := c.gh.Git.CreateBlob(ctx, c.owner, c.repo, github.Blob{
			Content:  github.Ptr(string(data)),
			Encoding: github.Ptr("utf-8"),
		})
		if err != nil {
			return fmt.Errorf("gitstore: create blob %s: %w", path, err)
		}
		entries = append(entries, &github.TreeEntry{
			Path: github.Ptr(path),
			Mode: github.Ptr("100644"),
			Type: github.Ptr("blob"),
			SHA:  blob.SHA,
		})
	}
	tree, _, err := c.gh.Git.CreateTree(ctx, c.owner, c.repo, baseCommit.Tree.GetSHA(), entries)
	if err != nil {
		return fmt.Errorf("gitstore: create tree: %w", err)
	}
	commit, _, err := c.gh.Git.CreateCommit(ctx, c.owner, c.repo, github.Commit{
		Message: github.Ptr(message),
		Tree:    tree,
		Parents: []*github.Commit{{SHA: github.Ptr(baseSHA)}},
	}, nil)
	if err != nil {
		return fmt.Errorf("gitstore: create commit: %w", err)
	}
	_, resp, err = c.gh.Git.CreateRef(ctx, c.owner, c.repo, github.CreateRef{
		Ref: "refs/heads/" + branch,
		SHA: commit.GetSHA(),
	})
	if err != nil {
		if isConflict(resp) {
			return ErrConflict
		}
		return fmt.Errorf("gitstore: create ref %s: %w", branch, err)
	}
	return nil
}

// isConflict reports whether the response signals a lost write race. The
// contents API answers 409 for stale SHAs and 422 for refs that already
// exist or SHA mismatches.
func isConflict(resp *github.Response) bool {
	return resp != nil &&
		(resp.StatusCode == http.StatusConflict || resp.StatusCode == http.StatusUnprocessableEntity)
}
