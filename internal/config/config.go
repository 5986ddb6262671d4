// Package config reads and writes the human-editable configuration
// document at "${config_dir}/dev-peace/config.json".
package config

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"

	"github.com/mateuslacerda/devpeace/internal/rules"
)

// Monitoring controls the filesystem watcher's behavior.
type Monitoring struct {
	Recursive      bool     `json:"recursive"`
	IgnorePatterns []string `json:"ignore_patterns"`
}

// Config is the full recognized configuration document.
type Config struct {
	JiraURL   string `json:"jira_url"`
	JiraUser  string `json:"jira_user"`
	JiraToken string `json:"jira_token"`

	AutoWorklog                bool   `json:"auto_worklog"`
	MinSessionMinutes          int    `json:"min_session_minutes"`
	CommitCommentThreshold     int    `json:"commit_comment_threshold"`
	WorklogDescriptionTemplate string `json:"worklog_description_template"`

	Monitoring Monitoring `json:"monitoring"`

	StatusAutomation rules.RuleDocument `json:"status_automation"`
}

// DefaultConfig returns the documented out-of-the-box defaults.
func DefaultConfig() *Config {
	return &Config{
		AutoWorklog:            true,
		MinSessionMinutes:      5,
		CommitCommentThreshold: 1,
		Monitoring: Monitoring{
			Recursive: true,
		},
		StatusAutomation: rules.DefaultRuleSet(),
	}
}

// rawMonitoring mirrors Monitoring but leaves Recursive as a pointer so
// UnmarshalJSON can distinguish "absent" from an explicit false, the way
// the scalar Config fields already do with their own *bool/*int fields.
type rawMonitoring struct {
	Recursive      *bool    `json:"recursive"`
	IgnorePatterns []string `json:"ignore_patterns"`
}

// rawConfig mirrors Config but leaves status_automation as raw JSON so
// UnmarshalJSON can detect and convert the legacy rules-shaped document
// before committing to the authoritative events-shaped RuleDocument.
type rawConfig struct {
	JiraURL                    string          `json:"jira_url"`
	JiraUser                   string          `json:"jira_user"`
	JiraToken                  string          `json:"jira_token"`
	AutoWorklog                *bool           `json:"auto_worklog"`
	MinSessionMinutes          *int            `json:"min_session_minutes"`
	CommitCommentThreshold     *int            `json:"commit_comment_threshold"`
	WorklogDescriptionTemplate string          `json:"worklog_description_template"`
	Monitoring                 rawMonitoring   `json:"monitoring"`
	StatusAutomation           json.RawMessage `json:"status_automation"`
}

// UnmarshalJSON accepts either shape of the status-automation document,
// converting the legacy one on read, and leaves every key it does not
// find in data at the zero-value defaults already present on *c (callers
// are expected to start from DefaultConfig() and unmarshal on top).
func (c *Config) UnmarshalJSON(data []byte) error {
	var raw rawConfig
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}

	if raw.JiraURL != "" {
		c.JiraURL = raw.JiraURL
	}
	if raw.JiraUser != "" {
		c.JiraUser = raw.JiraUser
	}
	if raw.JiraToken != "" {
		c.JiraToken = raw.JiraToken
	}
	if raw.AutoWorklog != nil {
		c.AutoWorklog = *raw.AutoWorklog
	}
	if raw.MinSessionMinutes != nil {
		c.MinSessionMinutes = *raw.MinSessionMinutes
	}
	if raw.CommitCommentThreshold != nil {
		c.CommitCommentThreshold = *raw.CommitCommentThreshold
	}
	if raw.WorklogDescriptionTemplate != "" {
		c.WorklogDescriptionTemplate = raw.WorklogDescriptionTemplate
	}
	if raw.Monitoring.Recursive != nil {
		c.Monitoring.Recursive = *raw.Monitoring.Recursive
	}
	if raw.Monitoring.IgnorePatterns != nil {
		c.Monitoring.IgnorePatterns = raw.Monitoring.IgnorePatterns
	}

	if len(raw.StatusAutomation) == 0 {
		return nil
	}
	if rules.IsLegacyShape(raw.StatusAutomation) {
		doc, err := rules.ParseLegacy(raw.StatusAutomation)
		if err != nil {
			return fmt.Errorf("parse legacy status_automation: %w", err)
		}
		c.StatusAutomation = doc
		return nil
	}
	var doc rules.RuleDocument
	if err := json.Unmarshal(raw.StatusAutomation, &doc); err != nil {
		return fmt.Errorf("parse status_automation: %w", err)
	}
	c.StatusAutomation = doc
	return nil
}

// Load loads configuration from the default path using the real
// environment.
func Load() (*Config, error) {
	return LoadWithEnv(os.Getenv)
}

// LoadWithEnv loads configuration using the provided environment lookup
// function, so tests can supply isolated environment values without
// touching the process environment.
func LoadWithEnv(getenv func(string) string) (*Config, error) {
	cfg := DefaultConfig()

	path := pathWithEnv(getenv)
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return cfg, nil
		}
		return nil, fmt.Errorf("read config file: %w", err)
	}

	if err := json.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parse config file: %w", err)
	}
	return cfg, nil
}

// Save writes cfg as JSON to the default path, creating its directory if
// necessary.
func Save(cfg *Config) error {
	return SaveWithEnv(cfg, os.Getenv)
}

// SaveWithEnv is Save with an injectable environment lookup, mirroring
// LoadWithEnv.
func SaveWithEnv(cfg *Config, getenv func(string) string) error {
	path := pathWithEnv(getenv)
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return fmt.Errorf("create config directory: %w", err)
	}
	data, err := json.MarshalIndent(cfg, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal config: %w", err)
	}
	return os.WriteFile(path, data, 0600)
}

// Path returns the default config file path using the real environment.
func Path() string {
	return pathWithEnv(os.Getenv)
}

func pathWithEnv(getenv func(string) string) string {
	if xdgConfig := getenv("XDG_CONFIG_HOME"); xdgConfig != "" {
		return filepath.Join(xdgConfig, "dev-peace", "config.json")
	}
	home := getenv("HOME")
	if home == "" {
		home, _ = os.UserHomeDir()
	}
	return filepath.Join(home, ".config", "dev-peace", "config.json")
}
