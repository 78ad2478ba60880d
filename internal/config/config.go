// Package config loads the engine configuration from a YAML file layered
// over defaults, then applies environment overrides.
package config

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/khanzadigithubid/AI-Employee-System/internal/health"
	"github.com/khanzadigithubid/AI-Employee-System/internal/logging"
	"github.com/khanzadigithubid/AI-Employee-System/internal/orchestrator"
	"github.com/khanzadigithubid/AI-Employee-System/internal/policy"
	"github.com/khanzadigithubid/AI-Employee-System/internal/spool"
)

// Environment variables read by Load.
const (
	EnvConfig   = "AIEMPLOYEE_CONFIG"
	EnvDB       = "AIEMPLOYEE_DB"
	EnvLogLevel = "AIEMPLOYEE_LOG_LEVEL"
	EnvSpoolDir = "AIEMPLOYEE_SPOOL_DIR"
)

// Defaults for paths.
const (
	DefaultDBPath   = "aiemployee.db"
	DefaultSpoolDir = "spool"
)

// Config holds every setting the engine reads at startup.
type Config struct {
	Database     DatabaseConfig     `yaml:"database"`
	Logging      LoggingConfig      `yaml:"logging"`
	Taxonomy     TaxonomyConfig     `yaml:"taxonomy"`
	Policy       policy.Policy      `yaml:"policy"`
	Health       HealthConfig       `yaml:"health"`
	Orchestrator OrchestratorConfig `yaml:"orchestrator"`
	Spool        SpoolConfig        `yaml:"spool"`
	Collectors   []CollectorConfig  `yaml:"collectors"`
}

// DatabaseConfig locates the SQLite file.
type DatabaseConfig struct {
	Path string `yaml:"path"`
}

// LoggingConfig selects the slog handler.
type LoggingConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
}

// TaxonomyConfig points at an optional CUE taxonomy replacing the
// embedded default. KnownDomains are trusted in addition to the
// taxonomy's own list.
type TaxonomyConfig struct {
	Path         string   `yaml:"path"`
	KnownDomains []string `yaml:"known_domains"`
}

// HealthConfig mirrors health.Config with YAML durations.
type HealthConfig struct {
	HealthyThreshold Duration `yaml:"healthy_threshold"`
	FailedThreshold  Duration `yaml:"failed_threshold"`
	FailureThreshold int      `yaml:"failure_threshold"`
	BaseBackoff      Duration `yaml:"base_backoff"`
	MaxBackoff       Duration `yaml:"max_backoff"`
	MaxRestarts      int      `yaml:"max_restarts"`
	RestartWindow    Duration `yaml:"restart_window"`
	CheckInterval    Duration `yaml:"check_interval"`
}

// Monitor converts c to a health.Config.
func (c HealthConfig) Monitor() health.Config {
	return health.Config{
		HealthyThreshold: c.HealthyThreshold.Std(),
		FailedThreshold:  c.FailedThreshold.Std(),
		FailureThreshold: c.FailureThreshold,
		BaseBackoff:      c.BaseBackoff.Std(),
		MaxBackoff:       c.MaxBackoff.Std(),
		MaxRestarts:      c.MaxRestarts,
		RestartWindow:    c.RestartWindow.Std(),
		CheckInterval:    c.CheckInterval.Std(),
	}
}

// OrchestratorConfig bounds the ingestion queue and persistence retries.
type OrchestratorConfig struct {
	QueueSize      int      `yaml:"queue_size"`
	RetryAttempts  int      `yaml:"retry_attempts"`
	RetryBaseDelay Duration `yaml:"retry_base_delay"`
	RetryMaxDelay  Duration `yaml:"retry_max_delay"`
}

// Retry converts the retry settings.
func (c OrchestratorConfig) Retry() orchestrator.RetryConfig {
	return orchestrator.RetryConfig{
		Attempts:  c.RetryAttempts,
		BaseDelay: c.RetryBaseDelay.Std(),
		MaxDelay:  c.RetryMaxDelay.Std(),
	}
}

// SpoolConfig locates the spool tree and paces its pollers.
type SpoolConfig struct {
	Dir          string   `yaml:"dir"`
	PollInterval Duration `yaml:"poll_interval"`
	PollTimeout  Duration `yaml:"poll_timeout"`
}

// CollectorConfig declares one inbox collector.
type CollectorConfig struct {
	Name     string `yaml:"name"`
	Disabled bool   `yaml:"disabled"`
}

// Default returns the configuration used when no file is given.
func Default() Config {
	hc := health.DefaultConfig()
	retry := orchestrator.DefaultRetry()
	return Config{
		Database: DatabaseConfig{Path: DefaultDBPath},
		Logging:  LoggingConfig{Level: "info", Format: "text"},
		Policy:   policy.Default(),
		Health: HealthConfig{
			HealthyThreshold: Duration(hc.HealthyThreshold),
			FailedThreshold:  Duration(hc.FailedThreshold),
			FailureThreshold: hc.FailureThreshold,
			BaseBackoff:      Duration(hc.BaseBackoff),
			MaxBackoff:       Duration(hc.MaxBackoff),
			MaxRestarts:      hc.MaxRestarts,
			RestartWindow:    Duration(hc.RestartWindow),
			CheckInterval:    Duration(hc.CheckInterval),
		},
		Orchestrator: OrchestratorConfig{
			QueueSize:      orchestrator.DefaultQueueSize,
			RetryAttempts:  retry.Attempts,
			RetryBaseDelay: Duration(retry.BaseDelay),
			RetryMaxDelay:  Duration(retry.MaxDelay),
		},
		Spool: SpoolConfig{
			Dir:          DefaultSpoolDir,
			PollInterval: Duration(spool.DefaultPollInterval),
			PollTimeout:  Duration(spool.DefaultPollTimeout),
		},
		Collectors: []CollectorConfig{{Name: "gmail"}, {Name: "chat"}},
	}
}

// Load reads path (or $AIEMPLOYEE_CONFIG when path is empty) over the
// defaults, applies environment overrides and validates the result.
// With neither set, the defaults are used.
func Load(path string) (Config, error) {
	cfg := Default()
	if path == "" {
		path = os.Getenv(EnvConfig)
	}
	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return Config{}, fmt.Errorf("read config: %w", err)
		}
		if err := cfg.decode(data); err != nil {
			return Config{}, fmt.Errorf("parse config %s: %w", path, err)
		}
	}
	cfg.applyEnvOverrides()
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// Parse decodes YAML over the defaults without reading the environment.
func Parse(data []byte) (Config, error) {
	cfg := Default()
	if err := cfg.decode(data); err != nil {
		return Config{}, err
	}
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// decode unmarshals data into c. Keys absent from data keep their current
// values; unknown keys are errors.
func (c *Config) decode(data []byte) error {
	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)
	if err := dec.Decode(c); err != nil && !errors.Is(err, io.EOF) {
		return err
	}
	return nil
}

func (c *Config) applyEnvOverrides() {
	if v := os.Getenv(EnvDB); v != "" {
		c.Database.Path = v
	}
	if v := os.Getenv(EnvLogLevel); v != "" {
		c.Logging.Level = v
	}
	if v := os.Getenv(EnvSpoolDir); v != "" {
		c.Spool.Dir = v
	}
}

// EnabledCollectors returns the names of collectors not disabled.
func (c Config) EnabledCollectors() []string {
	var names []string
	for _, cc := range c.Collectors {
		if !cc.Disabled {
			names = append(names, cc.Name)
		}
	}
	return names
}

// Validate reports every invalid setting.
func (c Config) Validate() error {
	var errs []error
	if strings.TrimSpace(c.Database.Path) == "" {
		errs = append(errs, errors.New("database.path is required"))
	}
	switch strings.ToLower(c.Logging.Format) {
	case "text", "json":
	default:
		errs = append(errs, fmt.Errorf("logging.format must be text or json, got %q", c.Logging.Format))
	}
	if _, err := logging.ParseLevel(c.Logging.Level); err != nil {
		errs = append(errs, fmt.Errorf("logging.level: %w", err))
	}
	if err := c.Policy.Validate(); err != nil {
		errs = append(errs, fmt.Errorf("policy: %w", err))
	}
	if err := c.Health.Monitor().Validate(); err != nil {
		errs = append(errs, fmt.Errorf("health: %w", err))
	}
	if c.Orchestrator.QueueSize <= 0 {
		errs = append(errs, fmt.Errorf("orchestrator.queue_size must be positive, got %d", c.Orchestrator.QueueSize))
	}
	if c.Orchestrator.RetryAttempts <= 0 {
		errs = append(errs, fmt.Errorf("orchestrator.retry_attempts must be positive, got %d", c.Orchestrator.RetryAttempts))
	}
	if c.Orchestrator.RetryMaxDelay < c.Orchestrator.RetryBaseDelay {
		errs = append(errs, errors.New("orchestrator.retry_max_delay is below retry_base_delay"))
	}
	if c.Spool.PollInterval <= 0 || c.Spool.PollTimeout <= 0 {
		errs = append(errs, errors.New("spool.poll_interval and spool.poll_timeout must be positive"))
	}
	seen := map[string]bool{}
	for i, cc := range c.Collectors {
		switch {
		case strings.TrimSpace(cc.Name) == "":
			errs = append(errs, fmt.Errorf("collectors[%d].name is required", i))
		case strings.ContainsAny(cc.Name, `/\`) || cc.Name == spool.DecisionWatcherName:
			errs = append(errs, fmt.Errorf("collectors[%d].name %q is not allowed", i, cc.Name))
		case seen[cc.Name]:
			errs = append(errs, fmt.Errorf("collectors[%d].name %q is duplicated", i, cc.Name))
		}
		seen[cc.Name] = true
	}
	return errors.Join(errs...)
}

// Duration is a time.Duration written as a string ("30s", "10m") in YAML.
type Duration time.Duration

// Std returns d as a time.Duration.
func (d Duration) Std() time.Duration {
	return time.Duration(d)
}

// String formats d like time.Duration.
func (d Duration) String() string {
	return time.Duration(d).String()
}

// UnmarshalYAML parses a duration string.
func (d *Duration) UnmarshalYAML(node *yaml.Node) error {
	var s string
	if err := node.Decode(&s); err != nil {
		return fmt.Errorf("line %d: duration must be a string", node.Line)
	}
	v, err := time.ParseDuration(strings.TrimSpace(s))
	if err != nil {
		return fmt.Errorf("line %d: %w", node.Line, err)
	}
	*d = Duration(v)
	return nil
}

// MarshalYAML writes d as a string.
func (d Duration) MarshalYAML() (any, error) {
	return d.String(), nil
}
