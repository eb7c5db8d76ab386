package github

import (
	"context"
	"fmt"
	"strings"

	gh "github.com/google/go-github/v60/github"

	ferrors "github.com/flowforge-ai/flowforge/internal/errors"
)

// splitRepo parses an "owner/name" repository reference.
func splitRepo(repo string) (owner, name string, err error) {
	parts := strings.SplitN(repo, "/", 2)
	if len(parts) != 2 || parts[0] == "" || parts[1] == "" {
		return "", "", fmt.Errorf("%w: repository must be owner/name, got %q", ferrors.ErrValidation, repo)
	}
	return parts[0], parts[1], nil
}

// CreateBranch creates a new branch from the tip of base. An existing branch
// with the same name is left untouched.
func (c *Client) CreateBranch(ctx context.Context, repo, base, branch string) error {
	owner, name, err := splitRepo(repo)
	if err != nil {
		return err
	}
	client, err := c.installationClient(ctx)
	if err != nil {
		return err
	}

	if _, resp, err := client.Git.GetRef(ctx, owner, name, "refs/heads/"+branch); err == nil {
		c.logger.Debug().Str("repo", repo).Str("branch", branch).Msg("branch already exists")
		return nil
	} else if resp == nil || resp.StatusCode != 404 {
		return fmt.Errorf("checking branch %s: %w", branch, err)
	}

	baseRef, _, err := client.Git.GetRef(ctx, owner, name, "refs/heads/"+base)
	if err != nil {
		return fmt.Errorf("getting base ref %s: %w", base, err)
	}

	newRef := &gh.Reference{
		Ref:    gh.String("refs/heads/" + branch),
		Object: &gh.GitObject{SHA: baseRef.Object.SHA},
	}
	if _, _, err := client.Git.CreateRef(ctx, owner, name, newRef); err != nil {
		return fmt.Errorf("creating branch %s: %w", branch, err)
	}

	c.logger.Info().Str("repo", repo).Str("branch", branch).Str("base", base).Msg("created branch")
	return nil
}

// OpenPullRequest opens a PR from branch into the repository's default base
// and returns its HTML URL.
func (c *Client) OpenPullRequest(ctx context.Context, repo, branch, title, body string) (string, error) {
	owner, name, err := splitRepo(repo)
	if err != nil {
		return "", err
	}
	client, err := c.installationClient(ctx)
	if err != nil {
		return "", err
	}

	repoInfo, _, err := client.Repositories.Get(ctx, owner, name)
	if err != nil {
		return "", fmt.Errorf("getting repository %s: %w", repo, err)
	}

	pr, _, err := client.PullRequests.Create(ctx, owner, name, &gh.NewPullRequest{
		Title: gh.String(title),
		Head:  gh.String(branch),
		Base:  repoInfo.DefaultBranch,
		Body:  gh.String(body),
	})
	if err != nil {
		return "", fmt.Errorf("opening pull request for %s: %w", branch, err)
	}

	c.logger.Info().Str("repo", repo).Int("number", pr.GetNumber()).Msg("opened pull request")
	return pr.GetHTMLURL(), nil
}

// CommentOnPullRequest posts a comment on a PR. PR comments live on the issue
// side of the GitHub API.
func (c *Client) CommentOnPullRequest(ctx context.Context, repo string, number int, comment string) error {
	owner, name, err := splitRepo(repo)
	if err != nil {
		return err
	}
	client, err := c.installationClient(ctx)
	if err != nil {
		return err
	}

	_, _, err = client.Issues.CreateComment(ctx, owner, name, number, &gh.IssueComment{
		Body: gh.String(comment),
	})
	if err != nil {
		return fmt.Errorf("commenting on %s#%d: %w", repo, number, err)
	}
	return nil
}
