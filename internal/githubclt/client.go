// Package githubclt implements the vcs backend contracts against the GitHub
// API.
package githubclt

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/google/go-github/v43/github"
	"go.uber.org/zap"
	"golang.org/x/oauth2"

	"github.com/simplesurance/mergegate/internal/logfields"
	"github.com/simplesurance/mergegate/internal/mergeerr"
	"github.com/simplesurance/mergegate/internal/vcs"
)

const DefaultHTTPClientTimeout = time.Minute

const loggerName = "github_client"

// New returns a new github api client.
func New(oauthAPItoken string) *Client {
	return &Client{
		restClt: github.NewClient(newHTTPClient(oauthAPItoken)),
		logger:  zap.L().Named(loggerName),
	}
}

func newHTTPClient(apiToken string) *http.Client {
	if apiToken == "" {
		return &http.Client{
			Timeout: DefaultHTTPClientTimeout,
		}
	}

	ts := oauth2.StaticTokenSource(
		&oauth2.Token{AccessToken: apiToken},
	)

	tc := oauth2.NewClient(context.Background(), ts)
	tc.Timeout = DefaultHTTPClientTimeout

	return tc
}

// Client implements vcs.AncestryOracle and vcs.Merger against the GitHub
// REST API.
// Rate-limit and server errors are wrapped as mergeerr.RetryableError.
type Client struct {
	restClt *github.Client
	logger  *zap.Logger
}

var _ vcs.AncestryOracle = (*Client)(nil)
var _ vcs.Merger = (*Client)(nil)

// BranchesMerged reports whether sourceRef is fully merged into targetRef by
// comparing the two refs: when sourceRef is not ahead of targetRef by any
// commit, everything reachable from it is contained in targetRef.
func (clt *Client) BranchesMerged(ctx context.Context, repo vcs.Repository, targetRef, sourceRef string) (bool, error) {
	cmp, _, err := clt.restClt.Repositories.CompareCommits(
		ctx, repo.ProjectKey, repo.Name, targetRef, sourceRef,
		&github.ListOptions{PerPage: 1},
	)
	if err != nil {
		return false, clt.wrapErr("compare-commits", err)
	}

	if cmp.AheadBy == nil {
		return false, mergeerr.NewRetryableAnytimeError(errors.New("github returned a nil AheadBy field"))
	}

	return *cmp.AheadBy == 0, nil
}

// LogAncestors counts the changesets reachable from sourceRef but not from
// sinceRef, capped at limit.
func (clt *Client) LogAncestors(ctx context.Context, repo vcs.Repository, sourceRef, sinceRef string, limit int) (int, error) {
	cmp, _, err := clt.restClt.Repositories.CompareCommits(
		ctx, repo.ProjectKey, repo.Name, sinceRef, sourceRef,
		&github.ListOptions{PerPage: 1},
	)
	if err != nil {
		return 0, clt.wrapErr("compare-commits", err)
	}

	count := cmp.GetTotalCommits()
	if count > limit {
		count = limit
	}

	return count, nil
}

// ModifiedFiles returns the paths the given revision touches.
func (clt *Client) ModifiedFiles(ctx context.Context, repo vcs.Repository, revision string) ([]string, error) {
	commit, _, err := clt.restClt.Repositories.GetCommit(
		ctx, repo.ProjectKey, repo.Name, revision, nil,
	)
	if err != nil {
		return nil, clt.wrapErr("get-commit", err)
	}

	result := make([]string, 0, len(commit.Files))
	for _, file := range commit.Files {
		result = append(result, file.GetFilename())
	}

	return result, nil
}

// Merge merges sourceRef into targetRef and returns the SHA of the merge
// commit.
func (clt *Client) Merge(ctx context.Context, repo vcs.Repository, targetRef, sourceRef, message string) (string, error) {
	commit, _, err := clt.restClt.Repositories.Merge(ctx, repo.ProjectKey, repo.Name, &github.RepositoryMergeRequest{
		Base:          &targetRef,
		Head:          &sourceRef,
		CommitMessage: &message,
	})
	if err != nil {
		return "", clt.wrapErr("merge", err)
	}

	sha := commit.GetSHA()
	if sha == "" {
		return "", errors.New("github returned a merge commit without SHA")
	}

	clt.logger.Debug(
		"merge commit created",
		logfields.Repository(repo.String()),
		logfields.TargetBranch(targetRef),
		logfields.SourceBranch(sourceRef),
		logfields.Changeset(sha),
		logfields.Event("github_merge_commit_created"),
	)

	return sha, nil
}

func (clt *Client) DeleteBranch(ctx context.Context, repo vcs.Repository, branch string) error {
	_, err := clt.restClt.Git.DeleteRef(ctx, repo.ProjectKey, repo.Name, "refs/heads/"+branch)
	if err != nil {
		return clt.wrapErr("delete-ref", err)
	}

	return nil
}

// SupportsMerge reports whether merges are possible, which is the case for
// every repository GitHub hosts.
func (clt *Client) SupportsMerge(context.Context, vcs.Repository) (bool, error) {
	return true, nil
}

func (clt *Client) wrapErr(op string, err error) error {
	switch v := err.(type) {
	case *github.RateLimitError:
		clt.logger.Info(
			"rate limit exceeded",
			logfields.Event("github_api_rate_limit_exceeded"),
			zap.Int("github_api_rate_limit", v.Rate.Limit),
			zap.Time("github_api_rate_limit_reset_time", v.Rate.Reset.Time),
		)

		return mergeerr.NewRetryableError(err, v.Rate.Reset.Time)

	case *github.ErrorResponse:
		if v.Response.StatusCode == http.StatusNotFound {
			return fmt.Errorf("%s: %s: %w", op, err, mergeerr.ErrNotFound)
		}

		if v.Response.StatusCode >= 500 && v.Response.StatusCode < 600 {
			return mergeerr.NewRetryableAnytimeError(mergeerr.NewBackendError(op, err))
		}
	}

	return mergeerr.NewBackendError(op, err)
}
