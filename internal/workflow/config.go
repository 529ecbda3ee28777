package workflow

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/simplesurance/mergegate/internal/kv"
	"github.com/simplesurance/mergegate/internal/vcs"
)

const configStoreName = "workflow-config"
const configKey = "configuration"
const globalNamespace = "global"

// AppliedRule binds a rule name to a serialized configuration instance.
type AppliedRule struct {
	RuleName      string          `json:"rule_name"`
	Configuration json.RawMessage `json:"configuration,omitempty"`
}

// EngineConfiguration is the per-repository scope of the engine
// configuration.
type EngineConfiguration struct {
	Enabled bool          `json:"enabled"`
	Rules   []AppliedRule `json:"rules"`
}

// GlobalConfiguration is the global scope. When
// DisableRepositoryConfiguration is set, per-repository configurations are
// never consulted.
type GlobalConfiguration struct {
	EngineConfiguration
	DisableRepositoryConfiguration bool `json:"disable_repository_configuration"`
}

// ConfigStore persists engine configurations in the key/value store.
// Configurations are created lazily, reading an absent one yields the
// empty, disabled default.
type ConfigStore struct {
	kv kv.Store
}

func NewConfigStore(kvStore kv.Store) *ConfigStore {
	return &ConfigStore{kv: kvStore}
}

func (s *ConfigStore) GetGlobal(ctx context.Context) (*GlobalConfiguration, error) {
	raw, err := s.kv.Get(ctx, configStoreName, globalNamespace, configKey)
	if err != nil {
		if errors.Is(err, kv.ErrNotFound) {
			return &GlobalConfiguration{}, nil
		}

		return nil, fmt.Errorf("reading global engine configuration failed: %w", err)
	}

	var result GlobalConfiguration
	if err := json.Unmarshal(raw, &result); err != nil {
		return nil, fmt.Errorf("unmarshaling global engine configuration failed: %w", err)
	}

	return &result, nil
}

func (s *ConfigStore) SetGlobal(ctx context.Context, cfg *GlobalConfiguration) error {
	raw, err := json.Marshal(cfg)
	if err != nil {
		return fmt.Errorf("marshaling global engine configuration failed: %w", err)
	}

	if err := s.kv.Put(ctx, configStoreName, globalNamespace, configKey, raw); err != nil {
		return fmt.Errorf("storing global engine configuration failed: %w", err)
	}

	return nil
}

func (s *ConfigStore) GetRepository(ctx context.Context, repo vcs.Repository) (*EngineConfiguration, error) {
	raw, err := s.kv.Get(ctx, configStoreName, repo.String(), configKey)
	if err != nil {
		if errors.Is(err, kv.ErrNotFound) {
			return &EngineConfiguration{}, nil
		}

		return nil, fmt.Errorf("reading engine configuration of %s failed: %w", repo, err)
	}

	var result EngineConfiguration
	if err := json.Unmarshal(raw, &result); err != nil {
		return nil, fmt.Errorf("unmarshaling engine configuration of %s failed: %w", repo, err)
	}

	return &result, nil
}

func (s *ConfigStore) SetRepository(ctx context.Context, repo vcs.Repository, cfg *EngineConfiguration) error {
	raw, err := json.Marshal(cfg)
	if err != nil {
		return fmt.Errorf("marshaling engine configuration of %s failed: %w", repo, err)
	}

	if err := s.kv.Put(ctx, configStoreName, repo.String(), configKey, raw); err != nil {
		return fmt.Errorf("storing engine configuration of %s failed: %w", repo, err)
	}

	return nil
}
