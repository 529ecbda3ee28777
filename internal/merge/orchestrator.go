package merge

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"github.com/simplesurance/mergegate/internal/logfields"
	"github.com/simplesurance/mergegate/internal/mergeerr"
	"github.com/simplesurance/mergegate/internal/permission"
	"github.com/simplesurance/mergegate/internal/protect"
	"github.com/simplesurance/mergegate/internal/reconcile"
	"github.com/simplesurance/mergegate/internal/store"
	"github.com/simplesurance/mergegate/internal/vcs"
)

const loggerName = "merge-orchestrator"

// CommitMetadata describes the merge changeset to create.
type CommitMetadata struct {
	Message string
	// Author is recorded as a Merged-by trailer of the commit message,
	// the backend merge API does not accept committer metadata.
	Author string
}

// Options control a single merge operation.
type Options struct {
	// DeleteSourceBranch removes the source branch after a successful
	// merge.
	DeleteSourceBranch bool
}

// Orchestrator verifies that no obstacles block a merge, performs it on the
// backend and transitions the pull request to MERGED.
type Orchestrator struct {
	prs        *store.PullRequestStore
	merger     vcs.Merger
	providers  []ObstacleProvider
	authorizer permission.Authorizer
	notifier   reconcile.Notifier
	logger     *zap.Logger
}

func NewOrchestrator(
	prs *store.PullRequestStore,
	merger vcs.Merger,
	authorizer permission.Authorizer,
	notifier reconcile.Notifier,
	providers ...ObstacleProvider,
) *Orchestrator {
	return &Orchestrator{
		prs:        prs,
		merger:     merger,
		providers:  providers,
		authorizer: authorizer,
		notifier:   notifier,
		logger:     zap.L().Named(loggerName),
	}
}

// CollectObstacles runs every registered provider and concatenates their
// obstacles in provider order.
func (o *Orchestrator) CollectObstacles(ctx context.Context, repo vcs.Repository, pr *store.PullRequest, actor string) ([]Obstacle, error) {
	var result []Obstacle

	for _, provider := range o.providers {
		obstacles, err := provider.Obstacles(ctx, repo, pr, actor)
		if err != nil {
			return nil, fmt.Errorf("collecting merge obstacles for pull request %d of %s failed: %w", pr.ID, repo, err)
		}

		result = append(result, obstacles...)
	}

	return result, nil
}

// VerifyNoObstacles fails with a *mergeerr.MergeNotAllowedError when
// obstacles block the merge.
// Without the emergency-merge permission any obstacle blocks. With it,
// overridable obstacles are bypassed and returned for surfacing, while
// non-overridable ones still block.
func (o *Orchestrator) VerifyNoObstacles(ctx context.Context, mayPerformEmergencyMerge bool, repo vcs.Repository, pr *store.PullRequest, actor string) (bypassed []Obstacle, err error) {
	obstacles, err := o.CollectObstacles(ctx, repo, pr, actor)
	if err != nil {
		return nil, err
	}

	if len(obstacles) == 0 {
		return nil, nil
	}

	if !mayPerformEmergencyMerge {
		return nil, &mergeerr.MergeNotAllowedError{Messages: obstacleMessages(obstacles)}
	}

	var blocking []Obstacle

	for _, obstacle := range obstacles {
		if obstacle.Overridable {
			bypassed = append(bypassed, obstacle)
			continue
		}

		blocking = append(blocking, obstacle)
	}

	if len(blocking) != 0 {
		return nil, &mergeerr.MergeNotAllowedError{Messages: obstacleMessages(blocking)}
	}

	return bypassed, nil
}

// Merge merges the pull request after verifying that nothing blocks it.
// actor is the user performing the operation, their emergency-merge
// permission decides whether overridable obstacles are bypassed.
func (o *Orchestrator) Merge(ctx context.Context, repo vcs.Repository, prID int64, actor string, meta CommitMetadata, opts Options) (*store.PullRequest, error) {
	pr, err := o.prs.Get(ctx, repo, prID)
	if err != nil {
		return nil, err
	}

	logger := o.logger.With(append(repo.LogFields(), pr.LogFields()...)...)

	if pr.Status != store.StatusOpen {
		return nil, fmt.Errorf(
			"pull request %d of %s is %s, only open pull requests can be merged: %w",
			prID, repo, pr.Status, mergeerr.ErrInvalidTransition,
		)
	}

	mayPerformEmergencyMerge := o.authorizer.IsPermitted(actor, permission.ActionEmergencyMerge, repo.String())

	bypassed, err := o.VerifyNoObstacles(ctx, mayPerformEmergencyMerge, repo, pr, actor)
	if err != nil {
		metrics.BlockedMergesInc(repo.String())
		return nil, err
	}

	if len(bypassed) != 0 {
		logger.Info(
			"emergency merge bypasses obstacles",
			logfields.Event("merge_obstacles_bypassed"),
			zap.Strings("bypassed_obstacles", obstacleMessages(bypassed)),
		)
	}

	message := meta.Message
	if message == "" {
		message = fmt.Sprintf("Merge pull request #%d (%s into %s)", pr.ID, pr.SourceBranch, pr.TargetBranch)
	}

	if meta.Author != "" {
		message = fmt.Sprintf("%s\n\nMerged-by: %s", message, meta.Author)
	}

	// The push produced by the merge is privileged: the derived context
	// carries the internal-merge marker, the write-protection guard lets
	// it pass. The suppression ends with the scope of mergeCtx, also when
	// the backend call fails.
	mergeCtx := protect.WithInternalMerge(ctx)

	commitID, err := o.merger.Merge(mergeCtx, repo, pr.TargetBranch, pr.SourceBranch, message)
	if err != nil {
		return nil, fmt.Errorf("merging pull request %d of %s failed: %w", prID, repo, err)
	}

	logger = logger.With(logfields.Changeset(commitID))

	record := *pr
	record.Status = store.StatusMerged
	record.StatusCause = ""

	updated, err := o.prs.Update(ctx, repo, &record)
	if err != nil {
		return nil, fmt.Errorf("persisting merge of pull request %d in %s failed: %w", prID, repo, err)
	}

	logger.Info("pull request merged", logfields.Event("pull_request_merged"))
	metrics.MergesInc(repo.String())

	summary := fmt.Sprintf(
		"pull request #%d merged: %q was merged into %q by %s",
		updated.ID, updated.SourceBranch, updated.TargetBranch, actor,
	)
	o.notifier.PullRequestMerged(ctx, repo, updated, summary)

	if opts.DeleteSourceBranch {
		if err := o.merger.DeleteBranch(mergeCtx, repo, pr.SourceBranch); err != nil {
			// the merge itself succeeded, a leftover source branch
			// is not worth failing the operation
			logger.Warn(
				"deleting source branch after merge failed",
				logfields.Event("source_branch_deletion_failed"),
				zap.Error(err),
			)
		}
	}

	return updated, nil
}

// DryRun collects the obstacles that currently block or would be bypassed
// for a merge of the pull request, without merging.
func (o *Orchestrator) DryRun(ctx context.Context, repo vcs.Repository, prID int64, actor string) ([]Obstacle, error) {
	pr, err := o.prs.Get(ctx, repo, prID)
	if err != nil {
		return nil, err
	}

	return o.CollectObstacles(ctx, repo, pr, actor)
}

func obstacleMessages(obstacles []Obstacle) []string {
	result := make([]string, 0, len(obstacles))

	for _, obstacle := range obstacles {
		result = append(result, obstacle.Message)
	}

	return result
}
