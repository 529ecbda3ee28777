// Package reconcile recomputes pull-request lifecycle states after pushes.
// For every push event it checks the open pull requests whose branches are
// affected: a source branch that became fully merged into its target
// transitions the record to MERGED, a deleted source branch transitions it
// to REJECTED. Terminal records are never touched, redelivered events are
// harmless.
package reconcile

import (
	"context"
	"errors"
	"fmt"

	"go.uber.org/zap"

	"github.com/simplesurance/mergegate/internal/logfields"
	"github.com/simplesurance/mergegate/internal/mergeerr"
	"github.com/simplesurance/mergegate/internal/store"
	"github.com/simplesurance/mergegate/internal/vcs"
)

const loggerName = "reconciler"

// RejectionCauseBranchDeleted is recorded when an open pull request is
// rejected because its source branch was deleted.
const RejectionCauseBranchDeleted = "branch deleted"

type Reconciler struct {
	prs      *store.PullRequestStore
	oracle   vcs.AncestryOracle
	merger   vcs.Merger
	notifier Notifier
	logger   *zap.Logger
}

func New(prs *store.PullRequestStore, oracle vcs.AncestryOracle, merger vcs.Merger, notifier Notifier) *Reconciler {
	return &Reconciler{
		prs:      prs,
		oracle:   oracle,
		merger:   merger,
		notifier: notifier,
		logger:   zap.L().Named(loggerName),
	}
}

// ProcessPush reconciles the pull requests of the repository against the
// branch changes of one completed push.
// Ancestry queries that fail abort the pass, the caller retries at the
// transport layer.
func (r *Reconciler) ProcessPush(ctx context.Context, event *vcs.PushEvent) error {
	logger := r.logger.With(event.Repository.LogFields()...)

	supported, err := r.merger.SupportsMerge(ctx, event.Repository)
	if err != nil {
		return fmt.Errorf("querying merge capability of %s failed: %w", event.Repository, err)
	}

	if !supported {
		logger.Debug(
			"repository does not support merges, push skipped",
			logfields.Event("push_reconciliation_skipped"),
		)

		return nil
	}

	prs, err := r.prs.List(ctx, event.Repository)
	if err != nil {
		return err
	}

	changed := branchSet(event.Changed)
	deleted := branchSet(event.Deleted)

	mergedIDs := map[int64]struct{}{}

	// pass 1: open pull requests whose source or target branch changed
	// may have become fully merged
	for _, pr := range prs {
		if pr.Status != store.StatusOpen {
			continue
		}

		_, sourceChanged := changed[pr.SourceBranch]
		_, targetChanged := changed[pr.TargetBranch]

		if !sourceChanged && !targetChanged {
			continue
		}

		merged, err := r.oracle.BranchesMerged(ctx, event.Repository, pr.TargetBranch, pr.SourceBranch)
		if err != nil {
			return fmt.Errorf(
				"ancestry query for pull request %d of %s failed: %w",
				pr.ID, event.Repository, err,
			)
		}

		if !merged {
			r.notifier.PullRequestUpdated(ctx, event.Repository, pr)
			continue
		}

		if err := r.transitionToMerged(ctx, event.Repository, pr); err != nil {
			return err
		}

		mergedIDs[pr.ID] = struct{}{}
	}

	// pass 2: open pull requests whose source branch was deleted without
	// having been merged are rejected
	for _, pr := range prs {
		if pr.Status != store.StatusOpen {
			continue
		}

		if _, wasMerged := mergedIDs[pr.ID]; wasMerged {
			continue
		}

		if _, sourceDeleted := deleted[pr.SourceBranch]; !sourceDeleted {
			continue
		}

		if err := r.transitionToRejected(ctx, event.Repository, pr); err != nil {
			return err
		}
	}

	metrics.ProcessedPushesInc()

	return nil
}

func (r *Reconciler) transitionToMerged(ctx context.Context, repo vcs.Repository, pr *store.PullRequest) error {
	record := *pr
	record.Status = store.StatusMerged
	record.StatusCause = ""

	updated, err := r.prs.Update(ctx, repo, &record)
	if err != nil {
		if r.reachedTerminalStatusConcurrently(ctx, repo, pr, err) {
			return nil
		}

		return fmt.Errorf("persisting merge of pull request %d in %s failed: %w", pr.ID, repo, err)
	}

	r.logger.Info(
		"pull request became merged",
		append(repo.LogFields(),
			append(updated.LogFields(), logfields.Event("pull_request_became_merged"))...,
		)...,
	)

	metrics.TransitionsInc(repo.String(), string(store.StatusMerged))

	summary := fmt.Sprintf(
		"pull request #%d merged: %q is now fully merged into %q",
		updated.ID, updated.SourceBranch, updated.TargetBranch,
	)
	r.notifier.PullRequestMerged(ctx, repo, updated, summary)

	return nil
}

func (r *Reconciler) transitionToRejected(ctx context.Context, repo vcs.Repository, pr *store.PullRequest) error {
	record := *pr
	record.Status = store.StatusRejected
	record.StatusCause = RejectionCauseBranchDeleted

	updated, err := r.prs.Update(ctx, repo, &record)
	if err != nil {
		if r.reachedTerminalStatusConcurrently(ctx, repo, pr, err) {
			return nil
		}

		return fmt.Errorf("persisting rejection of pull request %d in %s failed: %w", pr.ID, repo, err)
	}

	r.logger.Info(
		"pull request rejected, source branch was deleted",
		append(repo.LogFields(),
			append(updated.LogFields(), logfields.Event("pull_request_became_rejected"))...,
		)...,
	)

	metrics.TransitionsInc(repo.String(), string(store.StatusRejected))

	r.notifier.PullRequestRejected(ctx, repo, updated, RejectionCauseBranchDeleted)

	return nil
}

// reachedTerminalStatusConcurrently reports whether a transition failed
// because a concurrent pass persisted a terminal status after this pass
// listed the pull request as open.
// The store rejects the stale write with an invalid-transition error, the
// event is then treated like a redelivery for an already terminal record.
func (r *Reconciler) reachedTerminalStatusConcurrently(_ context.Context, repo vcs.Repository, pr *store.PullRequest, err error) bool {
	if !errors.Is(err, mergeerr.ErrInvalidTransition) {
		return false
	}

	r.logger.Debug(
		"pull request became terminal concurrently, transition skipped",
		append(repo.LogFields(),
			append(pr.LogFields(), logfields.Event("push_reconciliation_superseded"))...,
		)...,
	)

	return true
}

func branchSet(changes []vcs.RefChange) map[string]struct{} {
	result := make(map[string]struct{}, len(changes))

	for _, change := range changes {
		result[change.Branch] = struct{}{}
	}

	return result
}
