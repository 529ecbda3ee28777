package workflow

import (
	"context"
	"fmt"
	"regexp"
)

const branchPatternRuleName = "branch-pattern"

// BranchPatternRuleConfig constrains the branch names of a pull request.
// An empty pattern imposes no constraint.
type BranchPatternRuleConfig struct {
	SourcePattern string `json:"source_pattern,omitempty"`
	TargetPattern string `json:"target_pattern,omitempty"`
}

// BranchPatternRule fails when the source or target branch of the pull
// request does not match the configured regular expressions.
type BranchPatternRule struct{}

func NewBranchPatternRule() Rule {
	return &BranchPatternRule{}
}

func (r *BranchPatternRule) Name() string {
	return branchPatternRuleName
}

func (r *BranchPatternRule) NewConfiguration() any {
	return &BranchPatternRuleConfig{}
}

func (r *BranchPatternRule) Validate(_ context.Context, ruleCtx *Context) Result {
	cfg, ok := ruleCtx.Configuration.(*BranchPatternRuleConfig)
	if !ok {
		return FailedResult(branchPatternRuleName, "rule is configured without patterns", nil)
	}

	pr := ruleCtx.PullRequest

	if result, matched := matchPattern(cfg.SourcePattern, pr.SourceBranch, "source"); !matched {
		return result
	}

	if result, matched := matchPattern(cfg.TargetPattern, pr.TargetBranch, "target"); !matched {
		return result
	}

	return SuccessResult(branchPatternRuleName)
}

func matchPattern(pattern, branch, kind string) (Result, bool) {
	if pattern == "" {
		return Result{}, true
	}

	re, err := regexp.Compile(pattern)
	if err != nil {
		return FailedResult(
			branchPatternRuleName,
			fmt.Sprintf("compiling %s branch pattern %q failed: %s", kind, pattern, err),
			nil,
		), false
	}

	if !re.MatchString(branch) {
		return FailedResult(
			branchPatternRuleName,
			fmt.Sprintf("%s branch %q does not match pattern %q", kind, branch, pattern),
			map[string]any{
				"branch":  branch,
				"pattern": pattern,
				"kind":    kind,
			},
		), false
	}

	return Result{}, true
}
