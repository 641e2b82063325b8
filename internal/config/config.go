// internal/config/config.go
//
// This package handles configuration and the .crewflow directory structure.
// Every project that runs crewflow workflows gets a .crewflow/ folder in its root.

package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"

	"github.com/kingrea/crewflow/internal/dispatch"
)

const (
	// ProjectDirName is the name of the directory we create in each project
	ProjectDirName = ".crewflow"

	defaultMaxWorkers   = 4
	defaultMaxBackups   = 3
	defaultWorkflowsDir = "workflows"
	defaultPluginsDir   = "actions"

	envMaxWorkers = "CREWFLOW_MAX_WORKERS"
	envLogLevel   = "CREWFLOW_LOG_LEVEL"
)

const defaultProjectConfigYAML = `# crewflow project configuration
version: 1

pool:
  # Maximum number of steps or ad-hoc tasks running at once.
  max_workers: 4

# Extra keywords appended to the built-in tier tables.
classifier:
  keywords:
    high: []
    medium: []
    low: []

logging:
  level: info
  format: console
  max_size_mb: 10
  max_backups: 3

workflows:
  dir: workflows

plugins:
  dir: actions
`

// PoolConfig sizes the worker pool.
type PoolConfig struct {
	MaxWorkers int `yaml:"max_workers"`
}

// ClassifierConfig extends the built-in keyword tables.
type ClassifierConfig struct {
	Keywords dispatch.Rules `yaml:"keywords"`
}

// LoggingConfig controls the project log file.
type LoggingConfig struct {
	Level      string `yaml:"level"`
	Format     string `yaml:"format"`
	MaxSizeMB  int    `yaml:"max_size_mb"`
	MaxBackups int    `yaml:"max_backups"`
}

// DirConfig points at a directory relative to .crewflow/.
type DirConfig struct {
	Dir string `yaml:"dir"`
}

// ProjectConfig models .crewflow/config.yaml.
type ProjectConfig struct {
	Version    int              `yaml:"version"`
	Pool       PoolConfig       `yaml:"pool"`
	Classifier ClassifierConfig `yaml:"classifier"`
	Logging    LoggingConfig    `yaml:"logging"`
	Workflows  DirConfig        `yaml:"workflows"`
	Plugins    DirConfig        `yaml:"plugins"`
}

// Config holds the runtime configuration for crewflow.
type Config struct {
	// ProjectDir is the directory where the user ran `crewflow` from
	ProjectDir string

	// StateRoot is ProjectDir/.crewflow
	StateRoot string

	Project ProjectConfig
}

// InitProjectDir creates the .crewflow directory structure in the given project directory.
//
// Structure created:
// .crewflow/
// ├── config.yaml
// ├── logs/       <- crewflow.log and runs.log
// ├── state/      <- last run report
// ├── workflows/  <- YAML workflow definitions
// └── actions/    <- Go source action plugins
func InitProjectDir(projectDir string) error {
	root := filepath.Join(projectDir, ProjectDirName)
	dirs := []string{
		filepath.Join(root, "logs"),
		filepath.Join(root, "state"),
		filepath.Join(root, defaultWorkflowsDir),
		filepath.Join(root, defaultPluginsDir),
	}
	for _, dir := range dirs {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return err
		}
	}
	return ensureProjectConfig(filepath.Join(root, "config.yaml"))
}

// NewConfig creates a new Config instance populated with project settings.
// A .env file in the project directory is loaded first; environment
// variables then override the YAML values.
func NewConfig(projectDir string) (*Config, error) {
	if err := loadDotEnv(filepath.Join(projectDir, ".env")); err != nil {
		return nil, err
	}
	cfg := &Config{
		ProjectDir: projectDir,
		StateRoot:  filepath.Join(projectDir, ProjectDirName),
		Project:    defaultProjectConfig(),
	}
	if err := cfg.loadProjectConfig(); err != nil {
		return nil, err
	}
	if err := cfg.Project.applyEnv(os.LookupEnv); err != nil {
		return nil, fmt.Errorf("config: %w", err)
	}
	return cfg, nil
}

func loadDotEnv(path string) error {
	if _, err := os.Stat(path); err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil
		}
		return fmt.Errorf("config: stat %s: %w", path, err)
	}
	if err := godotenv.Load(path); err != nil {
		return fmt.Errorf("config: load %s: %w", path, err)
	}
	return nil
}

// LogsDir returns the path to the logs directory
func (c *Config) LogsDir() string {
	return filepath.Join(c.StateRoot, "logs")
}

// StateDir returns the path to the state directory
func (c *Config) StateDir() string {
	return filepath.Join(c.StateRoot, "state")
}

// RunJournalPath is where run and step events are journaled.
func (c *Config) RunJournalPath() string {
	return filepath.Join(c.LogsDir(), "runs.log")
}

// LastRunPath is where the most recent run report is stored.
func (c *Config) LastRunPath() string {
	return filepath.Join(c.StateDir(), "last-run.json")
}

// WorkflowsDir returns the directory holding workflow definitions.
func (c *Config) WorkflowsDir() string {
	return c.Project.Workflows.Dir
}

// PluginsDir returns the directory holding Go action plugins.
func (c *Config) PluginsDir() string {
	return c.Project.Plugins.Dir
}

// MaxWorkers returns the configured pool size.
func (c *Config) MaxWorkers() int {
	return c.Project.Pool.MaxWorkers
}

// ClassifierRules returns the built-in keyword tables extended by the config.
func (c *Config) ClassifierRules() dispatch.Rules {
	return dispatch.DefaultRules().Merge(c.Project.Classifier.Keywords)
}

// ProjectConfigPath returns the on-disk location for the project config file.
func (c *Config) ProjectConfigPath() string {
	return filepath.Join(c.StateRoot, "config.yaml")
}

// SetMaxWorkers updates the pool size and persists it to .crewflow/config.yaml.
// Only the pool size is written; environment overrides stay out of the file.
func (c *Config) SetMaxWorkers(n int) error {
	if n < 1 {
		return fmt.Errorf("config: max workers must be >= 1")
	}
	onDisk, err := c.readProjectConfig()
	if err != nil {
		return err
	}
	onDisk.Pool.MaxWorkers = n
	if err := c.saveProjectConfig(onDisk); err != nil {
		return err
	}
	c.Project.Pool.MaxWorkers = n
	return nil
}

func (c *Config) loadProjectConfig() error {
	parsed, err := c.readProjectConfig()
	if err != nil {
		return err
	}
	c.Project = parsed
	return nil
}

// readProjectConfig parses config.yaml without environment overrides. A
// missing file yields the defaults.
func (c *Config) readProjectConfig() (ProjectConfig, error) {
	path := c.ProjectConfigPath()
	data, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			pc := defaultProjectConfig()
			pc.normalize(c.StateRoot)
			return pc, nil
		}
		return ProjectConfig{}, fmt.Errorf("config: read %s: %w", path, err)
	}

	var parsed ProjectConfig
	if err := yaml.Unmarshal(data, &parsed); err != nil {
		return ProjectConfig{}, fmt.Errorf("config: parse %s: %w", path, err)
	}

	parsed.applyDefaults()
	parsed.normalize(c.StateRoot)
	if err := parsed.validate(); err != nil {
		return ProjectConfig{}, fmt.Errorf("config: %w", err)
	}
	return parsed, nil
}

func defaultProjectConfig() ProjectConfig {
	pc := ProjectConfig{}
	pc.applyDefaults()
	return pc
}

func (pc *ProjectConfig) applyDefaults() {
	if pc.Version == 0 {
		pc.Version = 1
	}
	if pc.Pool.MaxWorkers == 0 {
		pc.Pool.MaxWorkers = defaultMaxWorkers
	}
	if pc.Logging.Level == "" {
		pc.Logging.Level = "info"
	}
	if pc.Logging.Format == "" {
		pc.Logging.Format = "console"
	}
	if pc.Logging.MaxSizeMB == 0 {
		pc.Logging.MaxSizeMB = 10
	}
	if pc.Logging.MaxBackups == 0 {
		pc.Logging.MaxBackups = defaultMaxBackups
	}
	if pc.Workflows.Dir == "" {
		pc.Workflows.Dir = defaultWorkflowsDir
	}
	if pc.Plugins.Dir == "" {
		pc.Plugins.Dir = defaultPluginsDir
	}
}

func (pc *ProjectConfig) normalize(base string) {
	pc.Logging.Level = strings.ToLower(strings.TrimSpace(pc.Logging.Level))
	pc.Logging.Format = strings.ToLower(strings.TrimSpace(pc.Logging.Format))
	pc.Workflows.Dir = resolvePath(base, pc.Workflows.Dir)
	pc.Plugins.Dir = resolvePath(base, pc.Plugins.Dir)
}

func (pc *ProjectConfig) validate() error {
	if pc.Version < 1 {
		return fmt.Errorf("config version must be >= 1")
	}
	if pc.Pool.MaxWorkers < 1 {
		return fmt.Errorf("pool.max_workers must be >= 1")
	}
	switch pc.Logging.Level {
	case "debug", "info", "warn", "error":
	default:
		return fmt.Errorf("logging.level must be one of debug, info, warn, error")
	}
	switch pc.Logging.Format {
	case "console", "json":
	default:
		return fmt.Errorf("logging.format must be 'console' or 'json'")
	}
	if _, err := dispatch.NewClassifier(pc.Classifier.Keywords); err != nil {
		return fmt.Errorf("classifier.keywords: %w", err)
	}
	return nil
}

func (pc *ProjectConfig) applyEnv(lookup func(string) (string, bool)) error {
	if raw, ok := lookup(envMaxWorkers); ok && strings.TrimSpace(raw) != "" {
		n, err := strconv.Atoi(strings.TrimSpace(raw))
		if err != nil {
			return fmt.Errorf("%s: %w", envMaxWorkers, err)
		}
		pc.Pool.MaxWorkers = n
	}
	if raw, ok := lookup(envLogLevel); ok && strings.TrimSpace(raw) != "" {
		pc.Logging.Level = strings.ToLower(strings.TrimSpace(raw))
	}
	return pc.validate()
}

func resolvePath(base, candidate string) string {
	trimmed := strings.TrimSpace(candidate)
	if trimmed == "" {
		return ""
	}
	if filepath.IsAbs(trimmed) {
		return filepath.Clean(trimmed)
	}
	return filepath.Clean(filepath.Join(base, trimmed))
}

func ensureProjectConfig(path string) error {
	if _, err := os.Stat(path); err == nil {
		return nil
	} else if !errors.Is(err, fs.ErrNotExist) {
		return err
	}
	return os.WriteFile(path, []byte(defaultProjectConfigYAML), 0644)
}

func (c *Config) saveProjectConfig(out ProjectConfig) error {
	if c == nil {
		return fmt.Errorf("config: nil receiver")
	}
	out.applyDefaults()
	if err := out.validate(); err != nil {
		return fmt.Errorf("config: %w", err)
	}
	if err := os.MkdirAll(c.StateRoot, 0o755); err != nil {
		return fmt.Errorf("config: ensure %s: %w", ProjectDirName, err)
	}
	out.Workflows.Dir = relativeTo(c.StateRoot, out.Workflows.Dir)
	out.Plugins.Dir = relativeTo(c.StateRoot, out.Plugins.Dir)
	data, err := yaml.Marshal(out)
	if err != nil {
		return fmt.Errorf("config: encode config: %w", err)
	}
	if err := os.WriteFile(c.ProjectConfigPath(), data, 0644); err != nil {
		return fmt.Errorf("config: write project config: %w", err)
	}
	return nil
}

func relativeTo(base, path string) string {
	if rel, err := filepath.Rel(base, path); err == nil && !strings.HasPrefix(rel, "..") {
		return rel
	}
	return path
}
