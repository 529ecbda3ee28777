package workflow

import (
	"fmt"
	"sort"

	"github.com/simplesurance/mergegate/internal/mergeerr"
	"github.com/simplesurance/mergegate/internal/vcs"
)

// RuleFactory returns a new rule instance.
// Factories capture the collaborators the rule needs.
type RuleFactory func() Rule

// Registry maps the stable rule names to their factories.
// A configured name that is not registered is a data error, not a type
// error: it is rejected when new configuration is written and dropped with a
// warning when existing configuration is read.
type Registry struct {
	factories map[string]RuleFactory
}

func NewRegistry() *Registry {
	return &Registry{factories: map[string]RuleFactory{}}
}

// Register adds a factory under the name of the rule it produces.
// Registering the same name twice is a programming error and panics.
func (r *Registry) Register(factory RuleFactory) {
	name := factory().Name()

	if _, exist := r.factories[name]; exist {
		panic(fmt.Sprintf("workflow rule %q is already registered", name))
	}

	r.factories[name] = factory
}

// New instantiates the rule registered under name.
// It fails with an error wrapping mergeerr.ErrUnknownRule when the name is
// not registered.
func (r *Registry) New(name string) (Rule, error) {
	factory, exist := r.factories[name]
	if !exist {
		return nil, fmt.Errorf("rule %q: %w", name, mergeerr.ErrUnknownRule)
	}

	return factory(), nil
}

// NewDefaultRegistry returns a registry with the builtin rules registered.
func NewDefaultRegistry(oracle vcs.AncestryOracle) *Registry {
	registry := NewRegistry()

	registry.Register(NewJQRule)
	registry.Register(NewBranchPatternRule)
	registry.Register(func() Rule { return NewCommitLimitRule(oracle) })

	return registry
}

// Names returns the registered rule names in lexical order.
func (r *Registry) Names() []string {
	result := make([]string, 0, len(r.factories))

	for name := range r.factories {
		result = append(result, name)
	}

	sort.Strings(result)

	return result
}
