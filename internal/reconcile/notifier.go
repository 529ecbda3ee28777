package reconcile

import (
	"context"

	"go.uber.org/zap"

	"github.com/simplesurance/mergegate/internal/logfields"
	"github.com/simplesurance/mergegate/internal/store"
	"github.com/simplesurance/mergegate/internal/vcs"
)

// Notifier receives lifecycle notifications emitted by the reconciler and
// the merge orchestrator.
// Rendering them into e-mails or other transports happens outside the core.
type Notifier interface {
	PullRequestMerged(ctx context.Context, repo vcs.Repository, pr *store.PullRequest, summary string)
	PullRequestUpdated(ctx context.Context, repo vcs.Repository, pr *store.PullRequest)
	PullRequestRejected(ctx context.Context, repo vcs.Repository, pr *store.PullRequest, cause string)
}

// LogNotifier writes notifications to the log.
type LogNotifier struct {
	logger *zap.Logger
}

func NewLogNotifier() *LogNotifier {
	return &LogNotifier{logger: zap.L().Named("notifier")}
}

func (n *LogNotifier) PullRequestMerged(_ context.Context, repo vcs.Repository, pr *store.PullRequest, summary string) {
	n.logger.Info(
		summary,
		append(repo.LogFields(),
			append(pr.LogFields(), logfields.Event("pull_request_merged"))...,
		)...,
	)
}

func (n *LogNotifier) PullRequestUpdated(_ context.Context, repo vcs.Repository, pr *store.PullRequest) {
	n.logger.Info(
		"pull request updated",
		append(repo.LogFields(),
			append(pr.LogFields(), logfields.Event("pull_request_updated"))...,
		)...,
	)
}

func (n *LogNotifier) PullRequestRejected(_ context.Context, repo vcs.Repository, pr *store.PullRequest, cause string) {
	n.logger.Info(
		"pull request rejected",
		append(repo.LogFields(),
			append(pr.LogFields(),
				logfields.Event("pull_request_rejected"),
				zap.String("cause", cause),
			)...,
		)...,
	)
}
