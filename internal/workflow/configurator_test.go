package workflow

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zaptest"

	"github.com/simplesurance/mergegate/internal/kv"
	"github.com/simplesurance/mergegate/internal/mergeerr"
)

func newTestConfigurator(t *testing.T, registry *Registry) (*Configurator, *ConfigStore) {
	t.Helper()
	t.Cleanup(zap.ReplaceGlobals(zaptest.NewLogger(t).Named(t.Name())))

	configs := NewConfigStore(kv.NewMemoryStore())

	return NewConfigurator(registry, configs), configs
}

func registryWithStaticRules(names ...string) *Registry {
	registry := NewRegistry()

	for _, name := range names {
		name := name
		registry.Register(func() Rule {
			return &staticRule{name: name, result: SuccessResult(name)}
		})
	}

	return registry
}

func TestGetRulesReturnsNothingWithoutConfiguration(t *testing.T) {
	configurator, _ := newTestConfigurator(t, registryWithStaticRules("first"))

	instances, err := configurator.GetRules(context.Background(), testRepo(t))
	require.NoError(t, err)
	assert.Empty(t, instances)
}

func TestGetRulesDropsUnknownRuleNames(t *testing.T) {
	configurator, configs := newTestConfigurator(t, registryWithStaticRules("known"))

	err := configs.SetGlobal(context.Background(), enabledGlobalCfg(
		AppliedRule{RuleName: "removed-plugin-rule"},
		AppliedRule{RuleName: "known"},
	))
	require.NoError(t, err)

	instances, err := configurator.GetRules(context.Background(), testRepo(t))
	require.NoError(t, err)

	require.Len(t, instances, 1)
	assert.Equal(t, "known", instances[0].Rule.Name())
}

func TestValidateRejectsUnknownRuleNames(t *testing.T) {
	configurator, _ := newTestConfigurator(t, registryWithStaticRules("known"))

	err := configurator.Validate(&EngineConfiguration{
		Enabled: true,
		Rules:   []AppliedRule{{RuleName: "removed-plugin-rule"}},
	})
	require.ErrorIs(t, err, mergeerr.ErrUnknownRule)
}

func TestRepositoryConfigurationOverridesGlobal(t *testing.T) {
	configurator, configs := newTestConfigurator(t, registryWithStaticRules("global-rule", "repo-rule"))
	repo := testRepo(t)

	err := configs.SetGlobal(context.Background(), enabledGlobalCfg(AppliedRule{RuleName: "global-rule"}))
	require.NoError(t, err)

	err = configs.SetRepository(context.Background(), repo, &EngineConfiguration{
		Enabled: true,
		Rules:   []AppliedRule{{RuleName: "repo-rule"}},
	})
	require.NoError(t, err)

	instances, err := configurator.GetRules(context.Background(), repo)
	require.NoError(t, err)

	require.Len(t, instances, 1)
	assert.Equal(t, "repo-rule", instances[0].Rule.Name())
}

func TestDisabledRepositoryConfigurationFallsBackToGlobal(t *testing.T) {
	configurator, configs := newTestConfigurator(t, registryWithStaticRules("global-rule", "repo-rule"))
	repo := testRepo(t)

	err := configs.SetGlobal(context.Background(), enabledGlobalCfg(AppliedRule{RuleName: "global-rule"}))
	require.NoError(t, err)

	err = configs.SetRepository(context.Background(), repo, &EngineConfiguration{
		Enabled: false,
		Rules:   []AppliedRule{{RuleName: "repo-rule"}},
	})
	require.NoError(t, err)

	instances, err := configurator.GetRules(context.Background(), repo)
	require.NoError(t, err)

	require.Len(t, instances, 1)
	assert.Equal(t, "global-rule", instances[0].Rule.Name())
}

func TestGlobalConfigurationCanDisableRepositoryOverrides(t *testing.T) {
	configurator, configs := newTestConfigurator(t, registryWithStaticRules("global-rule", "repo-rule"))
	repo := testRepo(t)

	globalCfg := enabledGlobalCfg(AppliedRule{RuleName: "global-rule"})
	globalCfg.DisableRepositoryConfiguration = true

	err := configs.SetGlobal(context.Background(), globalCfg)
	require.NoError(t, err)

	err = configs.SetRepository(context.Background(), repo, &EngineConfiguration{
		Enabled: true,
		Rules:   []AppliedRule{{RuleName: "repo-rule"}},
	})
	require.NoError(t, err)

	instances, err := configurator.GetRules(context.Background(), repo)
	require.NoError(t, err)

	require.Len(t, instances, 1)
	assert.Equal(t, "global-rule", instances[0].Rule.Name())
}

func TestRegistryNewFailsForUnknownName(t *testing.T) {
	registry := registryWithStaticRules("known")

	_, err := registry.New("unknown")
	require.ErrorIs(t, err, mergeerr.ErrUnknownRule)
}

func TestRegistryRejectsDuplicateRegistration(t *testing.T) {
	registry := registryWithStaticRules("dup")

	assert.Panics(t, func() {
		registry.Register(func() Rule {
			return &staticRule{name: "dup", result: SuccessResult("dup")}
		})
	})
}
