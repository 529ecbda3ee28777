package workflow

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"go.uber.org/zap"

	"github.com/simplesurance/mergegate/internal/logfields"
	"github.com/simplesurance/mergegate/internal/mergeerr"
	"github.com/simplesurance/mergegate/internal/vcs"
)

const configuratorLoggerName = "workflow-configurator"

// RuleInstance is a resolved (rule, configuration) pair ready to execute.
type RuleInstance struct {
	Rule          Rule
	Configuration any
}

// Overridable reports whether failures of the rule may be bypassed via an
// emergency merge. Rules are non-overridable unless they say otherwise.
func (i *RuleInstance) Overridable() bool {
	if r, ok := i.Rule.(OverridableRule); ok {
		return r.Overridable()
	}

	return false
}

// Configurator resolves the effective engine configuration of a repository
// into executable rule instances.
type Configurator struct {
	registry *Registry
	configs  *ConfigStore
	logger   *zap.Logger
}

func NewConfigurator(registry *Registry, configs *ConfigStore) *Configurator {
	return &Configurator{
		registry: registry,
		configs:  configs,
		logger:   zap.L().Named(configuratorLoggerName),
	}
}

// effectiveConfiguration returns the repository configuration when the
// global scope permits overrides and the repository's own configuration is
// enabled, the global configuration otherwise.
func (c *Configurator) effectiveConfiguration(ctx context.Context, repo vcs.Repository) (*EngineConfiguration, error) {
	global, err := c.configs.GetGlobal(ctx)
	if err != nil {
		return nil, err
	}

	if global.DisableRepositoryConfiguration {
		return &global.EngineConfiguration, nil
	}

	repoCfg, err := c.configs.GetRepository(ctx, repo)
	if err != nil {
		return nil, err
	}

	if repoCfg.Enabled {
		return repoCfg, nil
	}

	return &global.EngineConfiguration, nil
}

// GetRules returns the ordered rule instances of the effective
// configuration. A disabled configuration yields no rules.
// Entries referencing unknown rule names are dropped with a warning, the
// configuration may predate a plugin removal.
func (c *Configurator) GetRules(ctx context.Context, repo vcs.Repository) ([]*RuleInstance, error) {
	cfg, err := c.effectiveConfiguration(ctx, repo)
	if err != nil {
		return nil, err
	}

	if !cfg.Enabled {
		return nil, nil
	}

	result := make([]*RuleInstance, 0, len(cfg.Rules))

	for _, applied := range cfg.Rules {
		instance, err := c.resolve(&applied)
		if err != nil {
			if errors.Is(err, mergeerr.ErrUnknownRule) {
				c.logger.Warn(
					"configured rule is not registered, entry skipped",
					logfields.Event("workflow_rule_unknown"),
					logfields.Repository(repo.String()),
					logfields.Rule(applied.RuleName),
				)

				continue
			}

			return nil, err
		}

		result = append(result, instance)
	}

	return result, nil
}

func (c *Configurator) resolve(applied *AppliedRule) (*RuleInstance, error) {
	rule, err := c.registry.New(applied.RuleName)
	if err != nil {
		return nil, err
	}

	instance := RuleInstance{Rule: rule}

	if configurable, ok := rule.(ConfigurableRule); ok {
		cfg := configurable.NewConfiguration()

		if len(applied.Configuration) != 0 {
			if err := json.Unmarshal(applied.Configuration, cfg); err != nil {
				return nil, fmt.Errorf("unmarshaling configuration of rule %q failed: %w", applied.RuleName, err)
			}
		}

		instance.Configuration = cfg
	}

	return &instance, nil
}

// Validate checks a configuration before it is written.
// Unlike GetRules it fails fast: a configuration referencing an unknown rule
// name or carrying an undecodable payload is rejected.
func (c *Configurator) Validate(cfg *EngineConfiguration) error {
	for _, applied := range cfg.Rules {
		if _, err := c.resolve(&applied); err != nil {
			return err
		}
	}

	return nil
}
