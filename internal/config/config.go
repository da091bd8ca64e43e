package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
)

const (
	// DefaultFileName is looked up in the project root when no config file is given
	DefaultFileName = "fixturesync.yaml"

	// GrammarPlaceholder is replaced by the grammar name in Fixtures.URLTemplate
	GrammarPlaceholder = "{grammar}"

	DefaultManifest      = "test/fixtures/fixtures.json"
	DefaultGrammarsDir   = "test/fixtures/grammars"
	DefaultURLTemplate   = "https://github.com/tree-sitter/tree-sitter-" + GrammarPlaceholder
	DefaultDepth         = 1
	DefaultJobs          = 1
	DefaultEmsdkURL      = "https://github.com/emscripten-core/emsdk.git"
	DefaultEmsdkDir      = "target/emsdk"
	DefaultEmsdkVersion  = "4.0.4"
	DefaultGitExecutable = "git"
)

// Config represents the complete fixturesync configuration
type Config struct {
	Root     string         `yaml:"root" toml:"root" json:"root"`
	Git      GitConfig      `yaml:"git" toml:"git" json:"git"`
	Fixtures FixturesConfig `yaml:"fixtures" toml:"fixtures" json:"fixtures"`
	Emsdk    EmsdkConfig    `yaml:"emsdk" toml:"emsdk" json:"emsdk"`
	Auth     AuthConfig     `yaml:"auth" toml:"auth" json:"auth"`
}

// GitConfig configures the git executable
type GitConfig struct {
	Path string `yaml:"path" toml:"path" json:"path"`
}

// FixturesConfig configures where grammar fixtures come from and go to
type FixturesConfig struct {
	Manifest    string `yaml:"manifest" toml:"manifest" json:"manifest"`
	GrammarsDir string `yaml:"grammars_dir" toml:"grammars_dir" json:"grammars_dir"`
	URLTemplate string `yaml:"url_template" toml:"url_template" json:"url_template"`

	// Depth is the clone depth; nil uses DefaultDepth and 0 clones the full history
	Depth *int `yaml:"depth" toml:"depth" json:"depth"`
	Jobs  int  `yaml:"jobs" toml:"jobs" json:"jobs"`
}

// EmsdkConfig configures the Emscripten SDK checkout
type EmsdkConfig struct {
	URL     string `yaml:"url" toml:"url" json:"url"`
	Dir     string `yaml:"dir" toml:"dir" json:"dir"`
	Version string `yaml:"version" toml:"version" json:"version"`
}

// AuthConfig configures Git authentication for private grammar mirrors
type AuthConfig struct {
	SSHKeyFile     string `yaml:"ssh_key_file" toml:"ssh_key_file" json:"ssh_key_file"`
	HTTPSTokenFile string `yaml:"https_token_file" toml:"https_token_file" json:"https_token_file"`
}

// Load reads and parses the configuration file. The root defaults to the
// directory containing the file when the file does not set one.
func Load(path string) (*Config, error) {
	return LoadWithRoot(path, "")
}

// LoadWithRoot is Load with the project root forced to root when non-empty
func LoadWithRoot(path, root string) (*Config, error) {
	// Expand environment variables in path
	path = os.ExpandEnv(path)

	var cfg Config
	if err := decodeFile(path, &cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config file: %w", err)
	}

	switch {
	case root != "":
		cfg.Root = root
	case cfg.Root == "":
		cfg.Root = filepath.Dir(path)
	}

	return cfg.finish()
}

// Default returns the configuration used when no config file exists
func Default(root string) (*Config, error) {
	cfg := Config{Root: root}
	return cfg.finish()
}

func (c Config) finish() (*Config, error) {
	c.expandEnv()
	c.applyDefaults()
	if err := c.resolvePaths(); err != nil {
		return nil, err
	}
	if err := c.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	return &c, nil
}

// expandEnv expands environment variables in all string fields
func (c *Config) expandEnv() {
	c.Root = os.ExpandEnv(c.Root)
	c.Git.Path = os.ExpandEnv(c.Git.Path)
	c.Fixtures.Manifest = os.ExpandEnv(c.Fixtures.Manifest)
	c.Fixtures.GrammarsDir = os.ExpandEnv(c.Fixtures.GrammarsDir)
	c.Fixtures.URLTemplate = os.ExpandEnv(c.Fixtures.URLTemplate)
	c.Emsdk.URL = os.ExpandEnv(c.Emsdk.URL)
	c.Emsdk.Dir = os.ExpandEnv(c.Emsdk.Dir)
	c.Emsdk.Version = os.ExpandEnv(c.Emsdk.Version)
	c.Auth.SSHKeyFile = os.ExpandEnv(c.Auth.SSHKeyFile)
	c.Auth.HTTPSTokenFile = os.ExpandEnv(c.Auth.HTTPSTokenFile)
}

// applyDefaults fills in zero-value fields with sensible defaults.
func (c *Config) applyDefaults() {
	if c.Root == "" {
		c.Root = "."
	}
	if c.Git.Path == "" {
		c.Git.Path = DefaultGitExecutable
	}
	if c.Fixtures.Manifest == "" {
		c.Fixtures.Manifest = DefaultManifest
	}
	if c.Fixtures.GrammarsDir == "" {
		c.Fixtures.GrammarsDir = DefaultGrammarsDir
	}
	if c.Fixtures.URLTemplate == "" {
		c.Fixtures.URLTemplate = DefaultURLTemplate
	}
	if c.Fixtures.Depth == nil {
		depth := DefaultDepth
		c.Fixtures.Depth = &depth
	}
	if c.Fixtures.Jobs == 0 {
		c.Fixtures.Jobs = DefaultJobs
	}
	if c.Emsdk.URL == "" {
		c.Emsdk.URL = DefaultEmsdkURL
	}
	if c.Emsdk.Dir == "" {
		c.Emsdk.Dir = DefaultEmsdkDir
	}
	if c.Emsdk.Version == "" {
		c.Emsdk.Version = DefaultEmsdkVersion
	}
}

// resolvePaths makes the root absolute and anchors relative paths at it
func (c *Config) resolvePaths() error {
	root, err := filepath.Abs(c.Root)
	if err != nil {
		return fmt.Errorf("failed to resolve root %q: %w", c.Root, err)
	}
	c.Root = root

	for _, p := range []*string{&c.Fixtures.Manifest, &c.Fixtures.GrammarsDir, &c.Emsdk.Dir} {
		if !filepath.IsAbs(*p) {
			*p = filepath.Join(root, filepath.FromSlash(*p))
		}
	}
	return nil
}

// Validate checks the configuration for errors
func (c *Config) Validate() error {
	if !strings.Contains(c.Fixtures.URLTemplate, GrammarPlaceholder) {
		return fmt.Errorf("fixtures.url_template must contain %s: %s", GrammarPlaceholder, c.Fixtures.URLTemplate)
	}
	if c.Fixtures.Depth != nil && *c.Fixtures.Depth < 0 {
		return fmt.Errorf("fixtures.depth must not be negative: %d", *c.Fixtures.Depth)
	}
	if c.Fixtures.Jobs < 1 {
		return fmt.Errorf("fixtures.jobs must be at least 1: %d", c.Fixtures.Jobs)
	}
	if c.Emsdk.Version == "" {
		return fmt.Errorf("emsdk.version is required")
	}

	// Validate auth: only one auth method may be configured
	if c.Auth.SSHKeyFile != "" && c.Auth.HTTPSTokenFile != "" {
		return fmt.Errorf("auth: only one of ssh_key_file or https_token_file may be set")
	}

	return nil
}

// GrammarURL returns the clone URL of a grammar
func (c *Config) GrammarURL(grammar string) string {
	return strings.ReplaceAll(c.Fixtures.URLTemplate, GrammarPlaceholder, grammar)
}

// CloneDepth returns the configured clone depth, where 0 means full history
func (c *Config) CloneDepth() int {
	if c.Fixtures.Depth == nil {
		return DefaultDepth
	}
	return *c.Fixtures.Depth
}

// GrammarDir returns the path where a grammar fixture is checked out
func (c *Config) GrammarDir(grammar string) string {
	return filepath.Join(c.Fixtures.GrammarsDir, grammar)
}

// AuthMethod returns a description of the configured auth method
func (c *Config) AuthMethod() string {
	if c.Auth.SSHKeyFile != "" {
		return "ssh"
	}
	if c.Auth.HTTPSTokenFile != "" {
		return "https"
	}
	return "none"
}
