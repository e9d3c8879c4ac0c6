// Package config provides configuration loading and validation for the
// runtime: a root struct with a nested yaml-tagged section per
// subsystem, loaded with Load and hot-reloadable via Holder.
package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// Config is the root configuration structure.
type Config struct {
	Server   ServerConfig   `yaml:"server"`
	Registry RegistryConfig `yaml:"registry"`
	Schema   SchemaConfig   `yaml:"schema"`
	ACL      ACLConfig      `yaml:"acl"`
	Approval ApprovalConfig `yaml:"approval"`
	Tracing  TracingConfig  `yaml:"tracing"`
	Metrics  MetricsConfig  `yaml:"metrics"`
	Logging  LoggingConfig  `yaml:"logging"`
	Safety   SafetyConfig   `yaml:"safety"`
}

// ServerConfig configures the admin HTTP surface.
type ServerConfig struct {
	Host         string        `yaml:"host"`
	Port         int           `yaml:"port"`
	ReadTimeout  time.Duration `yaml:"read_timeout"`
	WriteTimeout time.Duration `yaml:"write_timeout"`
}

// RegistryConfig configures module discovery and hot-reload.
type RegistryConfig struct {
	Roots       []string `yaml:"roots"`
	WatchReload bool     `yaml:"watch_reload"`
	MaxDepth    int      `yaml:"max_depth"`
}

// SchemaConfig configures schema resolution behavior.
type SchemaConfig struct {
	StrictAdditionalProperties bool   `yaml:"strict_additional_properties"`
	MaxRefDepth                int    `yaml:"max_ref_depth"`
	RefBaseDir                 string `yaml:"ref_base_dir"`
}

// ACLConfig configures the access-control layer. RulesFile, when set, is
// loaded as the rule list; DefaultEffect applies when no rule matches.
type ACLConfig struct {
	RulesFile     string `yaml:"rules_file,omitempty"`
	DefaultEffect string `yaml:"default_effect"` // "allow" or "deny"
}

// ApprovalConfig configures the approval gate backend.
type ApprovalConfig struct {
	Mode       string        `yaml:"mode"` // "auto_approve", "in_memory", "none"
	TokenTTL   time.Duration `yaml:"token_ttl"`
	AuditLevel string        `yaml:"audit_level"` // "off", "decisions", "full"
}

// TracingConfig configures the tracing middleware.
type TracingConfig struct {
	Strategy     string  `yaml:"strategy"` // "full", "proportional", "error_first", "off"
	SamplingRate float64 `yaml:"sampling_rate"`
	Exporter     string  `yaml:"exporter"` // "stdout", "memory", "otlp", "sqlite"
	OTLPEndpoint string  `yaml:"otlp_endpoint,omitempty"`
	SQLiteDSN    string  `yaml:"sqlite_dsn,omitempty"`
}

// MetricsConfig configures the Prometheus metrics surface.
type MetricsConfig struct {
	Enabled bool   `yaml:"enabled"`
	Path    string `yaml:"path"`
}

// LoggingConfig configures structured logging.
type LoggingConfig struct {
	Level           string `yaml:"level"`  // "trace", "debug", "info", "warn", "error", "fatal"
	Format          string `yaml:"format"` // "json" or "text"
	RedactSensitive bool   `yaml:"redact_sensitive"`
	IncludeInputs   bool   `yaml:"include_inputs"`
	IncludeOutput   bool   `yaml:"include_output"`
}

// SafetyConfig configures call-chain limits.
type SafetyConfig struct {
	MaxCallDepth    int `yaml:"max_call_depth"`
	MaxModuleRepeat int `yaml:"max_module_repeat"`
}

// Load reads configuration from a YAML file, applying environment
// overrides and defaults, per the teacher's config.Load shape.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config: %w", err)
	}

	data = []byte(os.ExpandEnv(string(data)))

	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("parse config: %w", err)
	}

	applyEnvOverrides(&cfg)
	setDefaults(&cfg)

	if err := validate(&cfg); err != nil {
		return nil, fmt.Errorf("validate config: %w", err)
	}

	return &cfg, nil
}

// LoadFromEnv builds configuration entirely from environment variables,
// useful for container deployments where no config file is mounted.
func LoadFromEnv() (*Config, error) {
	var cfg Config

	applyEnvOverrides(&cfg)
	setDefaults(&cfg)

	if err := validate(&cfg); err != nil {
		return nil, fmt.Errorf("validate config: %w", err)
	}

	return &cfg, nil
}

// LoadWithFallback tries to load from file, falling back to environment
// variables when the file does not exist.
func LoadWithFallback(path string) (*Config, error) {
	if path != "" {
		if _, err := os.Stat(path); err == nil {
			return Load(path)
		}
	}
	return LoadFromEnv()
}

// applyEnvOverrides applies APCORE_* environment variables on top of the
// parsed config; these always win over file-based values.
func applyEnvOverrides(cfg *Config) {
	if v := os.Getenv("APCORE_SERVER_HOST"); v != "" {
		cfg.Server.Host = v
	}
	if v := os.Getenv("APCORE_SERVER_PORT"); v != "" {
		if port, err := strconv.Atoi(v); err == nil {
			cfg.Server.Port = port
		}
	}
	if v := os.Getenv("APCORE_REGISTRY_ROOTS"); v != "" {
		cfg.Registry.Roots = strings.Split(v, ",")
	}
	if v := os.Getenv("APCORE_REGISTRY_WATCH"); v != "" {
		cfg.Registry.WatchReload = parseBool(v)
	}
	if v := os.Getenv("APCORE_ACL_DEFAULT_EFFECT"); v != "" {
		cfg.ACL.DefaultEffect = v
	}
	if v := os.Getenv("APCORE_APPROVAL_MODE"); v != "" {
		cfg.Approval.Mode = v
	}
	if v := os.Getenv("APCORE_TRACING_STRATEGY"); v != "" {
		cfg.Tracing.Strategy = v
	}
	if v := os.Getenv("APCORE_TRACING_EXPORTER"); v != "" {
		cfg.Tracing.Exporter = v
	}
	if v := os.Getenv("APCORE_METRICS_ENABLED"); v != "" {
		cfg.Metrics.Enabled = parseBool(v)
	}
	if v := os.Getenv("APCORE_LOG_LEVEL"); v != "" {
		cfg.Logging.Level = v
	}
	if v := os.Getenv("APCORE_LOG_FORMAT"); v != "" {
		cfg.Logging.Format = v
	}
	if v := os.Getenv("APCORE_SAFETY_MAX_CALL_DEPTH"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			cfg.Safety.MaxCallDepth = n
		}
	}
}

func parseBool(v string) bool {
	v = strings.ToLower(strings.TrimSpace(v))
	return v == "true" || v == "1" || v == "yes" || v == "on"
}

func setDefaults(cfg *Config) {
	if cfg.Server.Host == "" {
		cfg.Server.Host = "0.0.0.0"
	}
	if cfg.Server.Port == 0 {
		cfg.Server.Port = 8080
	}
	if cfg.Server.ReadTimeout == 0 {
		cfg.Server.ReadTimeout = 30 * time.Second
	}
	if cfg.Server.WriteTimeout == 0 {
		cfg.Server.WriteTimeout = 60 * time.Second
	}

	if cfg.Registry.MaxDepth == 0 {
		cfg.Registry.MaxDepth = 8
	}

	if cfg.Schema.MaxRefDepth == 0 {
		cfg.Schema.MaxRefDepth = 32
	}

	if cfg.ACL.DefaultEffect == "" {
		cfg.ACL.DefaultEffect = "deny"
	}

	if cfg.Approval.Mode == "" {
		cfg.Approval.Mode = "none"
	}
	if cfg.Approval.TokenTTL == 0 {
		cfg.Approval.TokenTTL = 15 * time.Minute
	}
	if cfg.Approval.AuditLevel == "" {
		cfg.Approval.AuditLevel = "decisions"
	}

	if cfg.Tracing.Strategy == "" {
		cfg.Tracing.Strategy = "error_first"
	}
	if cfg.Tracing.SamplingRate == 0 {
		cfg.Tracing.SamplingRate = 1.0
	}
	if cfg.Tracing.Exporter == "" {
		cfg.Tracing.Exporter = "stdout"
	}

	cfg.Metrics.Enabled = true
	if cfg.Metrics.Path == "" {
		cfg.Metrics.Path = "/metrics"
	}

	if cfg.Logging.Level == "" {
		cfg.Logging.Level = "info"
	}
	if cfg.Logging.Format == "" {
		cfg.Logging.Format = "json"
	}

	if cfg.Safety.MaxCallDepth == 0 {
		cfg.Safety.MaxCallDepth = 50
	}
	if cfg.Safety.MaxModuleRepeat == 0 {
		cfg.Safety.MaxModuleRepeat = 5
	}
}

func validate(cfg *Config) error {
	validEffects := map[string]bool{"allow": true, "deny": true}
	if !validEffects[cfg.ACL.DefaultEffect] {
		return fmt.Errorf("acl.default_effect must be 'allow' or 'deny', got %q", cfg.ACL.DefaultEffect)
	}

	validApprovalModes := map[string]bool{"auto_approve": true, "in_memory": true, "none": true}
	if !validApprovalModes[cfg.Approval.Mode] {
		return fmt.Errorf("approval.mode must be one of: auto_approve, in_memory, none, got %q", cfg.Approval.Mode)
	}

	validStrategies := map[string]bool{"full": true, "proportional": true, "error_first": true, "off": true}
	if !validStrategies[cfg.Tracing.Strategy] {
		return fmt.Errorf("tracing.strategy must be one of: full, proportional, error_first, off, got %q", cfg.Tracing.Strategy)
	}
	if cfg.Tracing.SamplingRate < 0 || cfg.Tracing.SamplingRate > 1 {
		return fmt.Errorf("tracing.sampling_rate must be in [0,1], got %v", cfg.Tracing.SamplingRate)
	}

	validExporters := map[string]bool{"stdout": true, "memory": true, "otlp": true, "sqlite": true}
	if !validExporters[cfg.Tracing.Exporter] {
		return fmt.Errorf("tracing.exporter must be one of: stdout, memory, otlp, sqlite, got %q", cfg.Tracing.Exporter)
	}
	if cfg.Tracing.Exporter == "otlp" && cfg.Tracing.OTLPEndpoint == "" {
		return fmt.Errorf("tracing.otlp_endpoint is required when tracing.exporter is 'otlp'")
	}
	if cfg.Tracing.Exporter == "sqlite" && cfg.Tracing.SQLiteDSN == "" {
		return fmt.Errorf("tracing.sqlite_dsn is required when tracing.exporter is 'sqlite'")
	}

	if cfg.Safety.MaxCallDepth <= 0 {
		return fmt.Errorf("safety.max_call_depth must be positive")
	}
	if cfg.Safety.MaxModuleRepeat <= 0 {
		return fmt.Errorf("safety.max_module_repeat must be positive")
	}

	return nil
}
