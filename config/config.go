package config

import (
	"os"
	"path/filepath"

	"github.com/m4xw311/trialdesk/errors"
	"gopkg.in/yaml.v3"
)

// FilesystemAccess restricts what the agents may touch inside a workspace.
// Patterns are doublestar globs relative to the workspace root.
type FilesystemAccess struct {
	Hidden   []string `yaml:"hidden"`
	ReadOnly []string `yaml:"read_only"`
}

// MCPServer overrides how one of the auxiliary tool servers is launched.
type MCPServer struct {
	Name    string   `yaml:"name"`
	Command string   `yaml:"command"`
	Args    []string `yaml:"args"`
}

// Config is the application configuration. It is constructed once in main
// and passed by reference; there is no package-level instance.
type Config struct {
	LLMClient string `yaml:"llm"`
	Model     string `yaml:"model"`

	// AppDataDir holds the database, transcripts and prompt store.
	AppDataDir    string `yaml:"app_data_dir"`
	WorkspacesDir string `yaml:"workspaces_dir"`
	DatabasePath  string `yaml:"database_path"`

	// Credentials resolved from the environment, never from YAML.
	AnthropicAPIKey string `yaml:"-"`
	BraveAPIKey     string `yaml:"-"`

	MCPServers       []MCPServer      `yaml:"mcp_servers"`
	FilesystemAccess FilesystemAccess `yaml:"filesystem_access"`

	LogLevel string `yaml:"log_level"`
	LogFile  string `yaml:"log_file"`
}

const defaultModel = "claude-sonnet-4-20250514"

// Load builds the configuration from defaults, the user-level and
// project-level YAML files, and finally the environment.
func Load() (*Config, error) {
	home, err := os.UserHomeDir()
	if err != nil {
		return nil, errors.Wrapf(err, "could not resolve home directory")
	}

	cfg := &Config{
		LLMClient:     "anthropic",
		Model:         defaultModel,
		AppDataDir:    filepath.Join(home, ".trialdesk"),
		WorkspacesDir: filepath.Join(home, ".trialdesk", "workspaces"),
		LogLevel:      "info",
	}
	// Keep the assistant out of its own bookkeeping files.
	cfg.FilesystemAccess.Hidden = append(cfg.FilesystemAccess.Hidden, ".trialdesk", ".trialdesk/**")

	userConfigPath := filepath.Join(home, ".trialdesk", "config.yaml")
	if _, err := os.Stat(userConfigPath); err == nil {
		if err := loadFromFile(userConfigPath, cfg); err != nil {
			return nil, errors.Wrapf(err, "error loading user config")
		}
	}

	// Project-level config overrides user-level.
	wd, err := os.Getwd()
	if err != nil {
		return nil, errors.Wrapf(err, "could not get working directory")
	}
	projectConfigPath := filepath.Join(wd, ".trialdesk", "config.yaml")
	if _, err := os.Stat(projectConfigPath); err == nil {
		if err := loadFromFile(projectConfigPath, cfg); err != nil {
			return nil, errors.Wrapf(err, "error loading project config")
		}
	}

	cfg.applyEnv()

	if cfg.DatabasePath == "" {
		cfg.DatabasePath = filepath.Join(cfg.AppDataDir, "trialdesk.db")
	}
	if err := cfg.ensureDirs(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func loadFromFile(path string, cfg *Config) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return err
	}
	// Unmarshal overwrites fields present in the YAML, which gives a
	// simple merge where project-level config replaces user-level.
	return yaml.Unmarshal(data, cfg)
}

func (c *Config) applyEnv() {
	if v := os.Getenv("TRIALDESK_DATA_DIR"); v != "" {
		c.AppDataDir = v
		c.WorkspacesDir = filepath.Join(v, "workspaces")
		c.DatabasePath = filepath.Join(v, "trialdesk.db")
	}
	if v := os.Getenv("TRIALDESK_WORKSPACES_DIR"); v != "" {
		c.WorkspacesDir = v
	}
	if v := os.Getenv("TRIALDESK_DATABASE_PATH"); v != "" {
		c.DatabasePath = v
	}
	if v := os.Getenv("TRIALDESK_MODEL"); v != "" {
		c.Model = v
	}
	if v := os.Getenv("TRIALDESK_LLM"); v != "" {
		c.LLMClient = v
	}
	if v := os.Getenv("TRIALDESK_LOG_LEVEL"); v != "" {
		c.LogLevel = v
	}
	if v := os.Getenv("TRIALDESK_LOG_FILE"); v != "" {
		c.LogFile = v
	}
	c.AnthropicAPIKey = os.Getenv("ANTHROPIC_API_KEY")
	c.BraveAPIKey = os.Getenv("BRAVE_API_KEY")
}

func (c *Config) ensureDirs() error {
	for _, dir := range []string{c.AppDataDir, c.WorkspacesDir} {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return errors.Wrapf(err, "could not create directory '%s'", dir)
		}
	}
	return nil
}

// Validate reports configuration problems worth surfacing before startup.
func (c *Config) Validate() []string {
	var problems []string
	if c.LLMClient == "anthropic" && c.AnthropicAPIKey == "" {
		problems = append(problems, "ANTHROPIC_API_KEY is not set")
	}
	return problems
}
