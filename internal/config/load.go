package config

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"strings"
)

const (
	attacheDir = ".attache"
	configFile = "config.json"
	storeFile  = "attache.db"
)

// envVarPattern matches ${VAR_NAME} references in string values.
var envVarPattern = regexp.MustCompile(`\$\{([^}]+)\}`)

// Dir returns the attache home directory, ~/.attache.
func Dir() (string, error) {
	home, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("get home directory: %w", err)
	}
	return filepath.Join(home, attacheDir), nil
}

// DefaultPath returns the default config file location,
// ~/.attache/config.json.
func DefaultPath() (string, error) {
	dir, err := Dir()
	if err != nil {
		return "", err
	}
	return filepath.Join(dir, configFile), nil
}

// Exists reports whether a config file is present at path, or at the
// default location when path is empty.
func Exists(path string) bool {
	if path == "" {
		var err error
		if path, err = DefaultPath(); err != nil {
			return false
		}
	}
	_, err := os.Stat(path)
	return err == nil
}

// Load reads the config file at path (default ~/.attache/config.json),
// resolves ${VAR} references, applies ATTACHE_* environment overrides
// and defaults, and validates the result.
func Load(path string) (*Config, error) {
	if path == "" {
		var err error
		if path, err = DefaultPath(); err != nil {
			return nil, err
		}
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config %s: %w", path, err)
	}

	var cfg Config
	resolved := resolveEnvVars(string(data))
	if err := json.Unmarshal([]byte(resolved), &cfg); err != nil {
		return nil, fmt.Errorf("parse config %s: %w", path, err)
	}

	applyEnv(&cfg)
	if err := applyDefaults(&cfg); err != nil {
		return nil, err
	}
	if err := validate(&cfg); err != nil {
		return nil, fmt.Errorf("config validation: %w", err)
	}

	return &cfg, nil
}

// Save writes cfg as indented JSON at path (default location when
// empty), creating the directory if needed. The file is written 0600
// since it holds API credentials.
func Save(path string, cfg *Config) error {
	if path == "" {
		var err error
		if path, err = DefaultPath(); err != nil {
			return err
		}
	}

	if err := os.MkdirAll(filepath.Dir(path), 0700); err != nil {
		return fmt.Errorf("create config dir: %w", err)
	}

	data, err := json.MarshalIndent(cfg, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal config: %w", err)
	}
	data = append(data, '\n')
	return os.WriteFile(path, data, 0600)
}

// resolveEnvVars replaces all ${VAR_NAME} patterns in s with the
// corresponding environment variable values. Unset variables resolve
// to "".
func resolveEnvVars(s string) string {
	return envVarPattern.ReplaceAllStringFunc(s, func(match string) string {
		varName := match[2 : len(match)-1] // strip ${ and }
		return os.Getenv(varName)
	})
}

// applyEnv overrides config fields from ATTACHE_* environment
// variables. Set variables win over file values; unset ones change
// nothing.
func applyEnv(cfg *Config) {
	overrides := []struct {
		env    string
		target *string
	}{
		{"ATTACHE_SLACK_BOT_TOKEN", &cfg.Slack.BotToken},
		{"ATTACHE_SLACK_APP_TOKEN", &cfg.Slack.AppToken},
		{"ATTACHE_OPENROUTER_API_KEY", &cfg.OpenRouter.APIKey},
		{"ATTACHE_MODEL", &cfg.OpenRouter.Model},
		{"ATTACHE_EXA_API_KEY", &cfg.Exa.APIKey},
		{"ATTACHE_QDRANT_URL", &cfg.Qdrant.URL},
		{"ATTACHE_QDRANT_API_KEY", &cfg.Qdrant.APIKey},
		{"ATTACHE_CATALOG_URL", &cfg.Catalog.BaseURL},
		{"ATTACHE_CATALOG_API_KEY", &cfg.Catalog.APIKey},
		{"ATTACHE_IMAGES_URL", &cfg.Images.BaseURL},
		{"ATTACHE_IMAGES_API_KEY", &cfg.Images.APIKey},
		{"ATTACHE_MEM0_API_KEY", &cfg.Mem0.APIKey},
		{"ATTACHE_PERSONA", &cfg.Persona},
	}
	for _, o := range overrides {
		if v := os.Getenv(o.env); v != "" {
			*o.target = v
		}
	}
}

// applyDefaults fills in the optional fields the daemon expects to be
// set.
func applyDefaults(cfg *Config) error {
	if cfg.Persona == "" {
		cfg.Persona = "assistant"
	}
	if cfg.Qdrant.Collection == "" {
		cfg.Qdrant.Collection = "knowledge"
	}
	if cfg.Limits.MaxRunsPerHour == 0 {
		cfg.Limits.MaxRunsPerHour = 60
	}
	if cfg.StorePath == "" {
		dir, err := Dir()
		if err != nil {
			return err
		}
		cfg.StorePath = filepath.Join(dir, storeFile)
	}
	return nil
}

// validate checks that all required fields are present.
func validate(cfg *Config) error {
	var errs []string

	if cfg.Slack.BotToken == "" {
		errs = append(errs, "slack.botToken is required")
	}
	if cfg.Slack.AppToken == "" {
		errs = append(errs, "slack.appToken is required")
	}
	if cfg.OpenRouter.APIKey == "" {
		errs = append(errs, "openrouter.apiKey is required")
	}

	if len(errs) > 0 {
		return fmt.Errorf("missing required fields:\n  - %s", strings.Join(errs, "\n  - "))
	}
	return nil
}
