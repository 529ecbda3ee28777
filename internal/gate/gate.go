// Package gate wires the merge-gate components together and exposes the
// operations the host's transport layer calls.
package gate

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"github.com/simplesurance/mergegate/internal/logfields"
	"github.com/simplesurance/mergegate/internal/merge"
	"github.com/simplesurance/mergegate/internal/mergeerr"
	"github.com/simplesurance/mergegate/internal/permission"
	"github.com/simplesurance/mergegate/internal/protect"
	"github.com/simplesurance/mergegate/internal/reconcile"
	"github.com/simplesurance/mergegate/internal/store"
	"github.com/simplesurance/mergegate/internal/vcs"
	"github.com/simplesurance/mergegate/internal/workflow"
)

const loggerName = "gate"

// Gate is the facade of the merge-gate core.
type Gate struct {
	prs          *store.PullRequestStore
	configs      *workflow.ConfigStore
	configurator *workflow.Configurator
	engine       *workflow.Engine
	orchestrator *merge.Orchestrator
	guard        *protect.Guard
	reconciler   *reconcile.Reconciler
	authorizer   permission.Authorizer
	logger       *zap.Logger
}

func New(
	prs *store.PullRequestStore,
	configs *workflow.ConfigStore,
	configurator *workflow.Configurator,
	engine *workflow.Engine,
	orchestrator *merge.Orchestrator,
	guard *protect.Guard,
	reconciler *reconcile.Reconciler,
	authorizer permission.Authorizer,
) *Gate {
	return &Gate{
		prs:          prs,
		configs:      configs,
		configurator: configurator,
		engine:       engine,
		orchestrator: orchestrator,
		guard:        guard,
		reconciler:   reconciler,
		authorizer:   authorizer,
		logger:       zap.L().Named(loggerName),
	}
}

// AddPullRequest creates and persists a new pull request.
// It is created OPEN, or as a DRAFT when draft is set. Drafts are ignored
// by reconciliation and can not be merged until they are opened via
// UpdateStatus.
func (g *Gate) AddPullRequest(ctx context.Context, repo vcs.Repository, sourceBranch, targetBranch, author, title, description string, draft bool) (*store.PullRequest, error) {
	pr, err := store.NewPullRequest(sourceBranch, targetBranch, author, title, description)
	if err != nil {
		return nil, err
	}

	if draft {
		pr.Status = store.StatusDraft
	}

	stored, err := g.prs.Add(ctx, repo, pr)
	if err != nil {
		return nil, err
	}

	g.logger.Info(
		"pull request created",
		append(repo.LogFields(), stored.LogFields()...)...,
	)

	return stored, nil
}

func (g *Gate) GetPullRequest(ctx context.Context, repo vcs.Repository, id int64) (*store.PullRequest, error) {
	return g.prs.Get(ctx, repo, id)
}

func (g *Gate) ListPullRequests(ctx context.Context, repo vcs.Repository) ([]*store.PullRequest, error) {
	return g.prs.List(ctx, repo)
}

// UpdateStatus transitions a pull request to the given status.
// Illegal transitions fail with an error wrapping
// mergeerr.ErrInvalidTransition. A transition to MERGED must go through
// Merge instead.
func (g *Gate) UpdateStatus(ctx context.Context, repo vcs.Repository, id int64, next store.Status, cause string) (*store.PullRequest, error) {
	pr, err := g.prs.Get(ctx, repo, id)
	if err != nil {
		return nil, err
	}

	if next == store.StatusMerged {
		return nil, fmt.Errorf(
			"pull request %d of %s can only become merged via the merge operation: %w",
			id, repo, mergeerr.ErrInvalidTransition,
		)
	}

	if !pr.Status.CanTransitionTo(next) {
		return nil, fmt.Errorf(
			"pull request %d of %s can not transition from %s to %s: %w",
			id, repo, pr.Status, next, mergeerr.ErrInvalidTransition,
		)
	}

	record := *pr
	record.Status = next
	record.StatusCause = cause

	updated, err := g.prs.Update(ctx, repo, &record)
	if err != nil {
		return nil, err
	}

	g.logger.Info(
		"pull request status updated",
		append(repo.LogFields(), updated.LogFields()...)...,
	)

	return updated, nil
}

// Validate runs the effective workflow rules against the pull request.
func (g *Gate) Validate(ctx context.Context, repo vcs.Repository, id int64) (workflow.Results, error) {
	pr, err := g.prs.Get(ctx, repo, id)
	if err != nil {
		return nil, err
	}

	return g.engine.Validate(ctx, repo, pr)
}

// Merge performs the privileged merge operation for the pull request.
func (g *Gate) Merge(ctx context.Context, repo vcs.Repository, id int64, actor string, meta merge.CommitMetadata, opts merge.Options) (*store.PullRequest, error) {
	return g.orchestrator.Merge(ctx, repo, id, actor, meta, opts)
}

// DryRunMerge reports the obstacles a merge of the pull request would face,
// without merging.
func (g *Gate) DryRunMerge(ctx context.Context, repo vcs.Repository, id int64, actor string) ([]merge.Obstacle, error) {
	return g.orchestrator.DryRun(ctx, repo, id, actor)
}

// CheckPush validates a push that is about to be accepted against the
// branch protection settings.
// The host must call it synchronously so a rejection can block the push
// transactionally.
func (g *Gate) CheckPush(ctx context.Context, event *vcs.PushEvent) error {
	return g.guard.CheckPush(ctx, event)
}

// ProcessPush reconciles pull-request states after a completed push.
func (g *Gate) ProcessPush(ctx context.Context, event *vcs.PushEvent) error {
	return g.reconciler.ProcessPush(ctx, event)
}

func (g *Gate) GetGlobalEngineConfiguration(ctx context.Context) (*workflow.GlobalConfiguration, error) {
	return g.configs.GetGlobal(ctx)
}

// SetGlobalEngineConfiguration validates and stores the global engine
// configuration. subject needs the configuration-write permission.
func (g *Gate) SetGlobalEngineConfiguration(ctx context.Context, subject string, cfg *workflow.GlobalConfiguration) error {
	if !g.authorizer.IsPermitted(subject, permission.ActionConfigurationWrite, "global") {
		return fmt.Errorf(
			"subject %q may not write the global engine configuration: %w",
			subject, mergeerr.ErrPermissionDenied,
		)
	}

	if err := g.configurator.Validate(&cfg.EngineConfiguration); err != nil {
		return err
	}

	if err := g.configs.SetGlobal(ctx, cfg); err != nil {
		return err
	}

	g.logger.Info(
		"global engine configuration updated",
		logfields.Event("engine_configuration_updated"),
		zap.String("subject", subject),
		zap.Bool("enabled", cfg.Enabled),
		zap.Int("rule_count", len(cfg.Rules)),
	)

	return nil
}

func (g *Gate) GetEngineConfiguration(ctx context.Context, repo vcs.Repository) (*workflow.EngineConfiguration, error) {
	return g.configs.GetRepository(ctx, repo)
}

// SetEngineConfiguration validates and stores the engine configuration of a
// repository. subject needs the configuration-write permission.
func (g *Gate) SetEngineConfiguration(ctx context.Context, subject string, repo vcs.Repository, cfg *workflow.EngineConfiguration) error {
	if !g.authorizer.IsPermitted(subject, permission.ActionConfigurationWrite, repo.String()) {
		return fmt.Errorf(
			"subject %q may not write the engine configuration of %s: %w",
			subject, repo, mergeerr.ErrPermissionDenied,
		)
	}

	if err := g.configurator.Validate(cfg); err != nil {
		return err
	}

	if err := g.configs.SetRepository(ctx, repo, cfg); err != nil {
		return err
	}

	g.logger.Info(
		"engine configuration updated",
		append(repo.LogFields(),
			logfields.Event("engine_configuration_updated"),
			zap.String("subject", subject),
			zap.Bool("enabled", cfg.Enabled),
			zap.Int("rule_count", len(cfg.Rules)),
		)...,
	)

	return nil
}
