package config

import (
	"errors"
	"flag"
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/BurntSushi/toml"
	"gopkg.in/yaml.v3"
)

// Defaults.
const (
	DefaultPort                = 8080
	DefaultTrackerURL          = "http://localhost:3000"
	DefaultFetchTimeout        = 10 * time.Second
	DefaultStatusTimeout       = 10 * time.Second
	DefaultDownloadURLTemplate = "/api/download/file/{jobId}"
	DefaultMaxConcurrent       = 1
	DefaultArchiveTTL          = time.Hour
	DefaultWorkspaceTTL        = 6 * time.Hour
	DefaultSweepInterval       = 10 * time.Minute
	DefaultLogLevel            = "INFO"
	DefaultWriteTimeout        = 30 * time.Minute
	DefaultAcquireTimeout      = 120 * time.Second
)

// Duration is a time.Duration read from a string such as "90s" or "2m".
type Duration struct {
	time.Duration
}

// UnmarshalText implements encoding.TextUnmarshaler for TOML.
func (d *Duration) UnmarshalText(text []byte) error {
	v, err := time.ParseDuration(strings.TrimSpace(string(text)))
	if err != nil {
		return err
	}
	d.Duration = v
	return nil
}

// UnmarshalYAML implements yaml.Unmarshaler.
func (d *Duration) UnmarshalYAML(node *yaml.Node) error {
	var s string
	if err := node.Decode(&s); err != nil {
		return err
	}
	return d.UnmarshalText([]byte(s))
}

// AcquirerConfig describes one external download command.
type AcquirerConfig struct {
	Name        string   `toml:"name" yaml:"name"`
	Pattern     string   `toml:"pattern" yaml:"pattern"`
	Command     string   `toml:"command" yaml:"command"`
	Args        []string `toml:"args" yaml:"args"`
	Module      string   `toml:"module" yaml:"module"`
	Quality     string   `toml:"quality" yaml:"quality"`
	Filename    string   `toml:"filename" yaml:"filename"`
	Timeout     Duration `toml:"timeout" yaml:"timeout"`
	UsernameEnv string   `toml:"username_env" yaml:"username_env"`
	PasswordEnv string   `toml:"password_env" yaml:"password_env"`
}

// DefaultAcquirer returns the built-in tidal acquirer.
func DefaultAcquirer() AcquirerConfig {
	return AcquirerConfig{
		Name:        "tidal",
		Pattern:     `^https?://([a-z]+\.)?tidal\.com/`,
		Command:     "python",
		Args:        []string{"-m", "orpheus", "--config", "{config}", "{url}"},
		Module:      "tidal",
		Quality:     "hifi",
		Filename:    "{artist} - {title}.{ext}",
		Timeout:     Duration{DefaultAcquireTimeout},
		UsernameEnv: "TIDAL_USERNAME",
		PasswordEnv: "TIDAL_PASSWORD",
	}
}

// withDefaults fills unset fields from DefaultAcquirer.
func (ac AcquirerConfig) withDefaults() AcquirerConfig {
	def := DefaultAcquirer()
	if ac.Name == "" {
		ac.Name = def.Name
	}
	if ac.Pattern == "" {
		ac.Pattern = ".*"
	}
	if ac.Command == "" {
		ac.Command = def.Command
		if ac.Args == nil {
			ac.Args = def.Args
		}
	}
	if ac.Module == "" {
		ac.Module = def.Module
	}
	if ac.Quality == "" {
		ac.Quality = def.Quality
	}
	if ac.Filename == "" {
		ac.Filename = def.Filename
	}
	if ac.Timeout.Duration == 0 {
		ac.Timeout = def.Timeout
	}
	if ac.UsernameEnv == "" {
		ac.UsernameEnv = def.UsernameEnv
	}
	if ac.PasswordEnv == "" {
		ac.PasswordEnv = def.PasswordEnv
	}
	return ac
}

// Config holds application configuration.
type Config struct {
	Port                int              `toml:"port" yaml:"port"`
	TrackerURL          string           `toml:"tracker_url" yaml:"tracker_url"`
	FetchTimeout        Duration         `toml:"fetch_timeout" yaml:"fetch_timeout"`
	StatusTimeout       Duration         `toml:"status_timeout" yaml:"status_timeout"`
	WorkDir             string           `toml:"work_dir" yaml:"work_dir"`
	ArchiveDir          string           `toml:"archive_dir" yaml:"archive_dir"`
	DownloadURLTemplate string           `toml:"download_url_template" yaml:"download_url_template"`
	MaxConcurrent       int              `toml:"max_concurrent_downloads" yaml:"max_concurrent_downloads"`
	ArchiveTTL          Duration         `toml:"archive_ttl" yaml:"archive_ttl"`
	WorkspaceTTL        Duration         `toml:"workspace_ttl" yaml:"workspace_ttl"`
	SweepInterval       Duration         `toml:"sweep_interval" yaml:"sweep_interval"`
	LogLevel            string           `toml:"log_level" yaml:"log_level"`
	WriteTimeout        Duration         `toml:"write_timeout" yaml:"write_timeout"`
	Acquirers           []AcquirerConfig `toml:"acquirers" yaml:"acquirers"`

	// ConfigPath is the file the config was read from, if any.
	ConfigPath string `toml:"-" yaml:"-"`
}

// DefaultWorkDir returns the default working directory root using XDG_CACHE_HOME.
func DefaultWorkDir() string {
	return filepath.Join(cacheDir(), "mixpack", "work")
}

// DefaultArchiveDir returns the default directory placed archives live in.
func DefaultArchiveDir() string {
	return filepath.Join(os.TempDir(), "mixpack")
}

// DefaultConfigPath returns the default config file path using XDG_CONFIG_HOME.
func DefaultConfigPath() string {
	configDir := os.Getenv("XDG_CONFIG_HOME")
	if configDir == "" {
		home, _ := os.UserHomeDir()
		configDir = filepath.Join(home, ".config")
	}
	return filepath.Join(configDir, "mixpack", "config.toml")
}

func cacheDir() string {
	dir := os.Getenv("XDG_CACHE_HOME")
	if dir == "" {
		home, _ := os.UserHomeDir()
		dir = filepath.Join(home, ".cache")
	}
	return dir
}

// ExpandPath expands a leading ~ to the user's home directory.
func ExpandPath(path string) string {
	if path == "~" || strings.HasPrefix(path, "~/") {
		home, err := os.UserHomeDir()
		if err != nil {
			return path
		}
		return filepath.Join(home, strings.TrimPrefix(path, "~"))
	}
	return path
}

// Default returns a Config with every field at its default.
func Default() *Config {
	return &Config{
		Port:                DefaultPort,
		TrackerURL:          DefaultTrackerURL,
		FetchTimeout:        Duration{DefaultFetchTimeout},
		StatusTimeout:       Duration{DefaultStatusTimeout},
		WorkDir:             DefaultWorkDir(),
		ArchiveDir:          DefaultArchiveDir(),
		DownloadURLTemplate: DefaultDownloadURLTemplate,
		MaxConcurrent:       DefaultMaxConcurrent,
		ArchiveTTL:          Duration{DefaultArchiveTTL},
		WorkspaceTTL:        Duration{DefaultWorkspaceTTL},
		SweepInterval:       Duration{DefaultSweepInterval},
		LogLevel:            DefaultLogLevel,
		WriteTimeout:        Duration{DefaultWriteTimeout},
	}
}

// Load builds Config from defaults, flags, an optional config file and
// environment overrides, in that order. Flags given explicitly win over the
// file.
func Load(args []string) (*Config, error) {
	cfg := Default()

	fs := flag.NewFlagSet("mixpack", flag.ContinueOnError)
	configPath := fs.String("config", "", "Config file path (TOML, or YAML by extension)")
	port := fs.Int("port", cfg.Port, "HTTP server port")
	trackerURL := fs.String("tracker-url", cfg.TrackerURL, "Job tracker base URL")
	workDir := fs.String("work-dir", cfg.WorkDir, "Working directory root")
	archiveDir := fs.String("archive-dir", cfg.ArchiveDir, "Directory placed archives are served from")
	logLevel := fs.String("log-level", cfg.LogLevel, "Log level (DEBUG, INFO, WARN, ERROR)")
	if err := fs.Parse(args); err != nil {
		return nil, err
	}

	path := *configPath
	explicit := path != ""
	if !explicit {
		path = DefaultConfigPath()
	}
	if err := loadFile(cfg, ExpandPath(path), explicit); err != nil {
		return nil, err
	}

	set := make(map[string]bool)
	fs.Visit(func(f *flag.Flag) { set[f.Name] = true })
	if set["port"] {
		cfg.Port = *port
	}
	if set["tracker-url"] {
		cfg.TrackerURL = *trackerURL
	}
	if set["work-dir"] {
		cfg.WorkDir = *workDir
	}
	if set["archive-dir"] {
		cfg.ArchiveDir = *archiveDir
	}
	if set["log-level"] {
		cfg.LogLevel = *logLevel
	}

	applyEnv(cfg)

	cfg.WorkDir = ExpandPath(cfg.WorkDir)
	cfg.ArchiveDir = ExpandPath(cfg.ArchiveDir)
	if len(cfg.Acquirers) == 0 {
		cfg.Acquirers = []AcquirerConfig{DefaultAcquirer()}
	}
	for i := range cfg.Acquirers {
		cfg.Acquirers[i] = cfg.Acquirers[i].withDefaults()
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func loadFile(cfg *Config, path string, required bool) error {
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) && !required {
			return nil
		}
		return fmt.Errorf("read config %s: %w", path, err)
	}

	switch strings.ToLower(filepath.Ext(path)) {
	case ".yaml", ".yml":
		err = yaml.Unmarshal(data, cfg)
	default:
		err = toml.Unmarshal(data, cfg)
	}
	if err != nil {
		return fmt.Errorf("parse config %s: %w", path, err)
	}
	cfg.ConfigPath = path
	return nil
}

func applyEnv(cfg *Config) {
	if u := os.Getenv("NEXTJS_URL"); u != "" {
		cfg.TrackerURL = u
	}
	if port := os.Getenv("MIXPACK_PORT"); port != "" {
		if p, err := strconv.Atoi(port); err == nil {
			cfg.Port = p
		}
	}
	if dir := os.Getenv("MIXPACK_WORK_DIR"); dir != "" {
		cfg.WorkDir = dir
	}
	if dir := os.Getenv("MIXPACK_ARCHIVE_DIR"); dir != "" {
		cfg.ArchiveDir = dir
	}
	if level := os.Getenv("MIXPACK_LOG_LEVEL"); level != "" {
		cfg.LogLevel = level
	}
}

// Validate reports every problem with cfg at once.
func (c *Config) Validate() error {
	var errs []error
	if c.Port <= 0 || c.Port > 65535 {
		errs = append(errs, fmt.Errorf("port %d out of range", c.Port))
	}
	if strings.TrimSpace(c.TrackerURL) == "" {
		errs = append(errs, errors.New("tracker_url is empty"))
	}
	if strings.TrimSpace(c.WorkDir) == "" {
		errs = append(errs, errors.New("work_dir is empty"))
	}
	if strings.TrimSpace(c.ArchiveDir) == "" {
		errs = append(errs, errors.New("archive_dir is empty"))
	}
	if c.MaxConcurrent < 1 {
		errs = append(errs, fmt.Errorf("max_concurrent_downloads must be at least 1, got %d", c.MaxConcurrent))
	}
	for name, d := range map[string]Duration{
		"fetch_timeout":  c.FetchTimeout,
		"status_timeout": c.StatusTimeout,
		"archive_ttl":    c.ArchiveTTL,
		"workspace_ttl":  c.WorkspaceTTL,
		"sweep_interval": c.SweepInterval,
		"write_timeout":  c.WriteTimeout,
	} {
		if d.Duration <= 0 {
			errs = append(errs, fmt.Errorf("%s must be positive", name))
		}
	}
	switch strings.ToUpper(c.LogLevel) {
	case "DEBUG", "INFO", "WARN", "WARNING", "ERROR":
	default:
		errs = append(errs, fmt.Errorf("unknown log_level %q", c.LogLevel))
	}
	for i, ac := range c.Acquirers {
		if err := ac.Validate(); err != nil {
			errs = append(errs, fmt.Errorf("acquirers[%d]: %w", i, err))
		}
	}
	return errors.Join(errs...)
}

// Validate checks one acquirer entry.
func (ac AcquirerConfig) Validate() error {
	if strings.TrimSpace(ac.Command) == "" {
		return fmt.Errorf("%s: command is empty", ac.Name)
	}
	if _, err := regexp.Compile(ac.Pattern); err != nil {
		return fmt.Errorf("%s: invalid pattern %q: %w", ac.Name, ac.Pattern, err)
	}
	if ac.Timeout.Duration <= 0 {
		return fmt.Errorf("%s: timeout must be positive", ac.Name)
	}
	return nil
}
