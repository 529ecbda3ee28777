package workflow

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/itchyny/gojq"

	"github.com/simplesurance/mergegate/internal/store"
	"github.com/simplesurance/mergegate/internal/vcs"
)

const jqRuleName = "jq-expression"

// JQRuleConfig holds the jq filter of a jq-expression rule.
// The filter is evaluated against the JSON representation of the repository
// and the pull request and must return a single boolean.
type JQRuleConfig struct {
	Query string `json:"query"`
}

// JQRule evaluates a configured jq expression as merge check.
// It allows operators to define custom checks, e.g.
// `.pull_request.target_branch == "master"`, without writing a rule
// implementation.
type JQRule struct{}

func NewJQRule() Rule {
	return &JQRule{}
}

func (r *JQRule) Name() string {
	return jqRuleName
}

func (r *JQRule) NewConfiguration() any {
	return &JQRuleConfig{}
}

func (r *JQRule) Validate(ctx context.Context, ruleCtx *Context) Result {
	cfg, ok := ruleCtx.Configuration.(*JQRuleConfig)
	if !ok || cfg.Query == "" {
		return FailedResult(jqRuleName, "rule is configured without a query", nil)
	}

	query, err := gojq.Parse(cfg.Query)
	if err != nil {
		return FailedResult(
			jqRuleName,
			fmt.Sprintf("parsing query %q failed: %s", cfg.Query, err),
			nil,
		)
	}

	doc, err := validationDocument(ruleCtx.Repository, ruleCtx.PullRequest)
	if err != nil {
		return FailedResult(jqRuleName, err.Error(), nil)
	}

	result, errs := jqIterToSlice(query.RunWithContext(ctx, doc))
	if len(errs) != 0 {
		return FailedResult(
			jqRuleName,
			fmt.Sprintf("query %q returned errors: %s", cfg.Query, errs[0]),
			nil,
		)
	}

	if len(result) != 1 {
		return FailedResult(
			jqRuleName,
			fmt.Sprintf("query %q returned %d results, expected 1", cfg.Query, len(result)),
			nil,
		)
	}

	val, isBool := result[0].(bool)
	if !isBool {
		return FailedResult(
			jqRuleName,
			fmt.Sprintf("query %q returned non-bool result: %+v (%T)", cfg.Query, result[0], result[0]),
			nil,
		)
	}

	if !val {
		return FailedResult(
			jqRuleName,
			fmt.Sprintf("expression %q evaluated to false", cfg.Query),
			map[string]any{"query": cfg.Query},
		)
	}

	return SuccessResult(jqRuleName)
}

// validationDocument builds the JSON document the jq filter is evaluated
// against.
func validationDocument(repo vcs.Repository, pr *store.PullRequest) (any, error) {
	raw, err := json.Marshal(map[string]any{
		"repository": map[string]any{
			"project_key": repo.ProjectKey,
			"name":        repo.Name,
		},
		"pull_request": pr,
	})
	if err != nil {
		return nil, fmt.Errorf("marshaling validation document failed: %w", err)
	}

	var doc any
	if err := json.Unmarshal(raw, &doc); err != nil {
		return nil, fmt.Errorf("unmarshaling validation document failed: %w", err)
	}

	return doc, nil
}

func jqIterToSlice(iter gojq.Iter) ([]any, []error) {
	var result []any
	var errs []error

	for {
		res, ok := iter.Next()
		if !ok {
			return result, errs
		}

		if err, isErr := res.(error); isErr {
			errs = append(errs, err)
			continue
		}

		result = append(result, res)
	}
}
