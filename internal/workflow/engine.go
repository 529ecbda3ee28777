package workflow

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"github.com/simplesurance/mergegate/internal/logfields"
	"github.com/simplesurance/mergegate/internal/store"
	"github.com/simplesurance/mergegate/internal/vcs"
)

const engineLoggerName = "workflow-engine"

// Engine executes the effective rule list of a repository against a pull
// request.
type Engine struct {
	configurator *Configurator
	logger       *zap.Logger
}

func NewEngine(configurator *Configurator) *Engine {
	return &Engine{
		configurator: configurator,
		logger:       zap.L().Named(engineLoggerName),
	}
}

// Validate runs every resolved rule in configuration order and collects the
// results.
// A rule that errors or panics yields a failed result tagged with its
// identity, a single misbehaving rule must not mask the signal of the
// remaining rules.
func (e *Engine) Validate(ctx context.Context, repo vcs.Repository, pr *store.PullRequest) (Results, error) {
	instances, err := e.configurator.GetRules(ctx, repo)
	if err != nil {
		return nil, fmt.Errorf("resolving workflow rules of %s failed: %w", repo, err)
	}

	results := make(Results, 0, len(instances))

	for _, instance := range instances {
		logger := e.logger.With(
			logfields.Repository(repo.String()),
			logfields.PullRequest(pr.ID),
			logfields.Rule(instance.Rule.Name()),
		)

		result := e.runRule(ctx, instance, repo, pr)
		result.Overridable = instance.Overridable()

		if result.Failed {
			logger.Debug(
				"workflow rule failed",
				logfields.Event("workflow_rule_failed"),
				zap.String("failure_message", result.Message),
			)
		}

		results = append(results, result)
	}

	return results, nil
}

func (e *Engine) runRule(ctx context.Context, instance *RuleInstance, repo vcs.Repository, pr *store.PullRequest) (result Result) {
	name := instance.Rule.Name()

	defer func() {
		if r := recover(); r != nil {
			e.logger.Error(
				"workflow rule panicked",
				logfields.Event("workflow_rule_panicked"),
				logfields.Rule(name),
				zap.String("panic", fmt.Sprintf("%v", r)),
				zap.StackSkip("stacktrace", 1),
			)

			result = FailedResult(name, fmt.Sprintf("rule execution panicked: %v", r), nil)
		}
	}()

	return instance.Rule.Validate(ctx, &Context{
		Repository:    repo,
		PullRequest:   pr,
		Configuration: instance.Configuration,
	})
}
