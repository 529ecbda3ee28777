package cfg

import (
	"io"
	"io/ioutil"

	"github.com/pelletier/go-toml"
)

type Config struct {
	HTTPListenAddr            string `toml:"http_server_listen_addr"`
	HTTPSListenAddr           string `toml:"https_server_listen_addr"`
	HTTPSCertFile             string `toml:"https_ssl_cert_file"`
	HTTPSKeyFile              string `toml:"https_ssl_key_file"`
	HTTPGithubWebhookEndpoint string `toml:"github_webhook_endpoint"`
	GithubWebHookSecret       string `toml:"github_webhook_secret"`
	GithubAPIToken            string `toml:"github_api_token"`
	LogFormat                 string `toml:"log_format"`
	LogLevel                  string `toml:"log_level"`
	LogTimeKey                string `toml:"log_time_key"`

	Storage Storage `toml:"storage"`

	// EmergencyMergers may bypass overridable merge obstacles.
	EmergencyMergers []string `toml:"emergency_mergers"`
	// ConfigurationWriters may change the workflow engine configuration.
	ConfigurationWriters []string `toml:"configuration_writers"`

	ProtectedBranches []ProtectedBranch `toml:"protected_branch"`

	Workflow WorkflowConfig `toml:"workflow"`
}

// Storage selects the key-value store backing the pull-request records and
// the workflow configuration.
type Storage struct {
	// Driver is "memory" or "postgres".
	Driver      string `toml:"driver" default:"memory"`
	PostgresDSN string `toml:"postgres_dsn"`
}

// ProtectedBranch rejects direct pushes to a branch of a repository.
type ProtectedBranch struct {
	ProjectKey     string   `toml:"project_key"`
	Repository     string   `toml:"repository"`
	Branch         string   `toml:"branch"`
	PathExceptions []string `toml:"path_exceptions"`
}

// WorkflowConfig is the global workflow engine configuration.
// It is written to the configuration store on startup, changes made via the
// configuration API do not survive a restart.
type WorkflowConfig struct {
	Enabled                        bool            `toml:"enabled"`
	DisableRepositoryConfiguration bool            `toml:"disable_repository_configuration"`
	Rules                          []*WorkflowRule `toml:"rule"`
}

type WorkflowRule struct {
	Name string `toml:"name"`
	// Configuration is the JSON document the rule is instantiated with.
	Configuration string `toml:"configuration"`
}

func Load(reader io.Reader) (*Config, error) {
	var result Config

	data, err := ioutil.ReadAll(reader)
	if err != nil {
		return nil, err
	}

	if err := toml.Unmarshal(data, &result); err != nil {
		return nil, err
	}

	return &result, nil
}

func (r *Config) Marshal(writer io.Writer) error {
	return toml.NewEncoder(writer).Encode(r)
}
