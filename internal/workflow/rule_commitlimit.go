package workflow

import (
	"context"
	"fmt"

	"github.com/simplesurance/mergegate/internal/vcs"
)

const commitLimitRuleName = "commit-limit"
const defCommitLimit = 100

// CommitLimitRuleConfig caps the number of changesets a pull request may be
// ahead of its target branch.
type CommitLimitRuleConfig struct {
	MaxChangesets int `json:"max_changesets"`
}

// CommitLimitRule queries the ancestry oracle for the changesets reachable
// from the source but not the target branch and fails when they exceed the
// configured maximum.
// The rule is overridable, an oversized pull request may still be merged via
// an emergency merge.
type CommitLimitRule struct {
	oracle vcs.AncestryOracle
}

func NewCommitLimitRule(oracle vcs.AncestryOracle) Rule {
	return &CommitLimitRule{oracle: oracle}
}

func (r *CommitLimitRule) Name() string {
	return commitLimitRuleName
}

func (r *CommitLimitRule) NewConfiguration() any {
	return &CommitLimitRuleConfig{MaxChangesets: defCommitLimit}
}

func (r *CommitLimitRule) Overridable() bool {
	return true
}

func (r *CommitLimitRule) Validate(ctx context.Context, ruleCtx *Context) Result {
	cfg, ok := ruleCtx.Configuration.(*CommitLimitRuleConfig)
	if !ok || cfg.MaxChangesets <= 0 {
		return FailedResult(commitLimitRuleName, "rule is configured without a positive changeset limit", nil)
	}

	pr := ruleCtx.PullRequest

	count, err := r.oracle.LogAncestors(
		ctx,
		ruleCtx.Repository,
		pr.SourceBranch,
		pr.TargetBranch,
		cfg.MaxChangesets+1,
	)
	if err != nil {
		return FailedResult(
			commitLimitRuleName,
			fmt.Sprintf("counting changesets ahead of %q failed: %s", pr.TargetBranch, err),
			nil,
		)
	}

	if count > cfg.MaxChangesets {
		return FailedResult(
			commitLimitRuleName,
			fmt.Sprintf(
				"pull request is more than %d changesets ahead of %q",
				cfg.MaxChangesets, pr.TargetBranch,
			),
			map[string]any{
				"max_changesets": cfg.MaxChangesets,
				"changesets":     count,
			},
		)
	}

	return SuccessResult(commitLimitRuleName)
}
