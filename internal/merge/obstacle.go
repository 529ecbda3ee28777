// Package merge aggregates merge obstacles and performs the privileged merge
// operation.
package merge

import (
	"context"
	"fmt"

	"github.com/simplesurance/mergegate/internal/store"
	"github.com/simplesurance/mergegate/internal/vcs"
	"github.com/simplesurance/mergegate/internal/workflow"
)

// Obstacle is a reason that blocks a merge.
type Obstacle struct {
	// Key identifies the obstacle kind stably across evaluations.
	Key     string
	Message string
	// Overridable obstacles do not block emergency merges.
	Overridable bool
}

func (o *Obstacle) String() string {
	return fmt.Sprintf("%s: %s", o.Key, o.Message)
}

// ObstacleProvider contributes obstacles for a pull request.
// actor is the user requesting the merge.
type ObstacleProvider interface {
	Obstacles(ctx context.Context, repo vcs.Repository, pr *store.PullRequest, actor string) ([]Obstacle, error)
}

// WorkflowObstacles wraps failed workflow rule results as obstacles.
// Failures are non-overridable unless the rule declares otherwise.
type WorkflowObstacles struct {
	engine *workflow.Engine
}

func NewWorkflowObstacles(engine *workflow.Engine) *WorkflowObstacles {
	return &WorkflowObstacles{engine: engine}
}

func (p *WorkflowObstacles) Obstacles(ctx context.Context, repo vcs.Repository, pr *store.PullRequest, _ string) ([]Obstacle, error) {
	results, err := p.engine.Validate(ctx, repo, pr)
	if err != nil {
		return nil, err
	}

	failures := results.Failures()
	obstacles := make([]Obstacle, 0, len(failures))

	for _, failure := range failures {
		obstacles = append(obstacles, Obstacle{
			Key:         "workflow:" + failure.RuleName,
			Message:     failure.Message,
			Overridable: failure.Overridable,
		})
	}

	return obstacles, nil
}

// SelfMergeGuard blocks authors from merging their own pull requests.
// The obstacle is overridable, users with the emergency-merge permission may
// bypass it.
type SelfMergeGuard struct{}

func NewSelfMergeGuard() *SelfMergeGuard {
	return &SelfMergeGuard{}
}

func (p *SelfMergeGuard) Obstacles(_ context.Context, _ vcs.Repository, pr *store.PullRequest, actor string) ([]Obstacle, error) {
	if pr.Author == "" || actor == "" || pr.Author != actor {
		return nil, nil
	}

	return []Obstacle{{
		Key:         "self-merge",
		Message:     fmt.Sprintf("author %q can not merge their own pull request", actor),
		Overridable: true,
	}}, nil
}
