// Package workflow implements the configurable merge-check engine.
// Rules are registered under stable names, bound to optional typed
// configurations via the global or per-repository engine configuration and
// executed in configuration order against a (repository, pull request)
// context.
package workflow

import (
	"context"

	"github.com/simplesurance/mergegate/internal/store"
	"github.com/simplesurance/mergegate/internal/vcs"
)

// Context is passed to every rule execution.
type Context struct {
	Repository  vcs.Repository
	PullRequest *store.PullRequest
	// Configuration is the rule's resolved configuration instance, nil
	// when the rule declares none.
	Configuration any
}

// Rule is a pluggable merge check.
// Rules must be side-effect free with respect to engine state, any state a
// rule needs lives in injected collaborators.
type Rule interface {
	// Name returns the stable identifier the rule is configured by.
	Name() string
	Validate(ctx context.Context, ruleCtx *Context) Result
}

// ConfigurableRule is implemented by rules that declare a configuration
// payload type.
// NewConfiguration returns a pointer to a zero configuration value, the
// engine deserializes the applied-rule payload into it.
type ConfigurableRule interface {
	Rule
	NewConfiguration() any
}

// OverridableRule is implemented by rules whose failures may be bypassed via
// an emergency merge. Failures of rules that do not implement it block
// unconditionally.
type OverridableRule interface {
	Rule
	Overridable() bool
}

// Result is the outcome of a single rule execution.
type Result struct {
	RuleName string
	Failed   bool
	// Overridable reports whether the failure may be bypassed via an
	// emergency merge. The engine sets it from the rule's declaration,
	// failures are non-overridable by default.
	Overridable bool
	// Message is a human-readable failure description, empty on success.
	Message string
	// Context carries rule-specific diagnostic data. The engine does not
	// interpret it, it is serialized as-is for the caller.
	Context map[string]any
}

func SuccessResult(ruleName string) Result {
	return Result{RuleName: ruleName}
}

func FailedResult(ruleName, message string, context map[string]any) Result {
	return Result{
		RuleName: ruleName,
		Failed:   true,
		Message:  message,
		Context:  context,
	}
}

// Results is the ordered collection of rule outcomes of one validation run.
type Results []Result

// IsValid reports whether all results succeeded.
func (rr Results) IsValid() bool {
	for _, r := range rr {
		if r.Failed {
			return false
		}
	}

	return true
}

// Failures returns the failed results in execution order.
func (rr Results) Failures() []Result {
	var result []Result

	for _, r := range rr {
		if r.Failed {
			result = append(result, r)
		}
	}

	return result
}
