package config

import (
	"bytes"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path"
	"path/filepath"
	"strings"

	"github.com/BurntSushi/toml"
	"github.com/robfig/cron/v3"
	"gopkg.in/yaml.v3"

	"rehabcal/internal/importer"
	appLog "rehabcal/internal/log"
)

const (
	defaultListen       = "127.0.0.1:8080"
	defaultRefreshCron  = "*/30 * * * *"
	defaultCacheDir     = "./var/export-cache"
	defaultJournalPath  = "./var/imports.db"
	defaultMaxBodyBytes = 5 << 20
)

// SourceConfig describes one calendar export that the scheduler re-imports.
// Exactly one of URL and Path is expected.
type SourceConfig struct {
	// ID is an internal identifier used for the journal and logging.
	ID string `yaml:"id" json:"id" toml:"id"`
	// Name is a human-friendly label.
	Name string `yaml:"name" json:"name" toml:"name"`
	// URL is a remote export endpoint (fetched with ETag caching).
	URL string `yaml:"url,omitempty" json:"url,omitempty" toml:"url,omitempty"`
	// Path is a local export file.
	Path string `yaml:"path,omitempty" json:"path,omitempty" toml:"path,omitempty"`
	// Format is "ics", "json" or "csv". When empty it is inferred from the
	// URL/Path extension.
	Format string `yaml:"format" json:"format" toml:"format"`
}

// BasicAuthConfig holds HTTP Basic Auth credentials for the API.
type BasicAuthConfig struct {
	Username string `yaml:"username" json:"username" toml:"username"`
	Password string `yaml:"password" json:"password" toml:"password"`
}

// Config is the top-level application configuration.
type Config struct {
	// Listen is the HTTP listen address for the import API.
	Listen string `yaml:"listen" json:"listen" toml:"listen"`

	// LogLevel is one of debug, info, warn, error.
	LogLevel string `yaml:"log_level" json:"log_level" toml:"log_level"`

	// RefreshCron is a standard 5-field cron schedule for re-importing
	// Sources.
	RefreshCron string `yaml:"refresh" json:"refresh" toml:"refresh"`

	// CacheDir holds ETag/Last-Modified metadata and bodies of remote exports.
	CacheDir string `yaml:"cache_dir" json:"cache_dir" toml:"cache_dir"`

	// JournalPath is the sqlite file recording import runs.
	JournalPath string `yaml:"journal_path" json:"journal_path" toml:"journal_path"`

	// MaxBodyBytes bounds uploaded and fetched exports.
	MaxBodyBytes int64 `yaml:"max_body_bytes" json:"max_body_bytes" toml:"max_body_bytes"`

	Sources []SourceConfig `yaml:"sources" json:"sources" toml:"sources"`

	// BasicAuth, if non-nil, enables HTTP Basic Authentication on all endpoints
	// except /health.
	BasicAuth *BasicAuthConfig `yaml:"basic_auth,omitempty" json:"basic_auth,omitempty" toml:"basic_auth,omitempty"`
}

// DefaultConfig returns an in-memory default configuration.
func DefaultConfig() *Config {
	return &Config{
		Listen:       defaultListen,
		LogLevel:     "info",
		RefreshCron:  defaultRefreshCron,
		CacheDir:     defaultCacheDir,
		JournalPath:  defaultJournalPath,
		MaxBodyBytes: defaultMaxBodyBytes,
		Sources:      []SourceConfig{},
		BasicAuth:    nil,
	}
}

// Normalize fills in missing/zero values with sensible defaults so that
// partially-filled configs still behave correctly.
func (c *Config) Normalize() {
	if c.Listen == "" {
		c.Listen = defaultListen
	}
	if _, ok := appLog.ParseLevel(c.LogLevel); !ok {
		appLog.Warn("unknown log level; using info", "log_level", c.LogLevel)
		c.LogLevel = "info"
	}
	if c.RefreshCron == "" {
		c.RefreshCron = defaultRefreshCron
	}
	if _, err := cron.ParseStandard(c.RefreshCron); err != nil {
		appLog.Warn("invalid refresh schedule; using default", "refresh", c.RefreshCron, "default", defaultRefreshCron)
		c.RefreshCron = defaultRefreshCron
	}
	if c.CacheDir == "" {
		c.CacheDir = defaultCacheDir
	}
	if c.JournalPath == "" {
		c.JournalPath = defaultJournalPath
	}
	if c.MaxBodyBytes <= 0 {
		c.MaxBodyBytes = defaultMaxBodyBytes
	}
	if c.Sources == nil {
		c.Sources = []SourceConfig{}
	}
	for i := range c.Sources {
		s := &c.Sources[i]
		if s.Format == "" {
			s.Format = inferFormat(s.URL, s.Path)
		}
		s.Format = strings.ToLower(s.Format)
		if s.ID == "" {
			switch {
			case s.Name != "":
				s.ID = s.Name
			case s.URL != "":
				s.ID = s.URL
			default:
				s.ID = s.Path
			}
		}
	}
}

// Validate reports sources that can never be imported.
func (c *Config) Validate() error {
	var errs []error
	seen := make(map[string]bool, len(c.Sources))
	for i, s := range c.Sources {
		if (s.URL == "") == (s.Path == "") {
			errs = append(errs, fmt.Errorf("sources[%d]: exactly one of url and path is required", i))
		}
		if _, err := importer.ParseFormat(s.Format); err != nil {
			errs = append(errs, fmt.Errorf("sources[%d]: %w", i, err))
		}
		if seen[s.ID] {
			errs = append(errs, fmt.Errorf("sources[%d]: duplicate id %q", i, s.ID))
		}
		seen[s.ID] = true
	}
	return errors.Join(errs...)
}

func inferFormat(url, p string) string {
	target := p
	if target == "" {
		target = url
		if i := strings.IndexAny(target, "?#"); i >= 0 {
			target = target[:i]
		}
	}
	return strings.TrimPrefix(strings.ToLower(path.Ext(target)), ".")
}

// Load loads configuration from the given path. ".toml" files are read as
// TOML, everything else as YAML.
//
// Behavior:
//   - If the file does not exist:
//   - create parent directory if needed
//   - write a default config with 0600 perms
//   - return the default config
//   - If the file exists:
//   - read and unmarshal into Config
//   - normalize defaults and validate sources
func Load(path string) (*Config, error) {
	if path == "" {
		return nil, errors.New("config path is empty")
	}

	data, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			// First run: create default config file.
			cfg := DefaultConfig()
			if err := Save(path, cfg); err != nil {
				// Even if save fails, return cfg with error so caller can decide.
				return cfg, err
			}
			return cfg, nil
		}
		return nil, err
	}

	var cfg Config
	if isTOML(path) {
		err = toml.Unmarshal(data, &cfg)
	} else {
		err = yaml.Unmarshal(data, &cfg)
	}
	if err != nil {
		return nil, fmt.Errorf("parse config %s: %w", path, err)
	}
	cfg.Normalize()
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("config %s: %w", path, err)
	}

	return &cfg, nil
}

// Save writes the given configuration to the specified path.
//
// Implementation details:
//   - Ensures parent directory exists (0700).
//   - Marshals cfg to TOML or YAML depending on the extension.
//   - Writes atomically via a temp file + rename.
//   - Ensures final file permissions are 0600.
func Save(path string, cfg *Config) error {
	if path == "" {
		return errors.New("config path is empty")
	}
	if cfg == nil {
		return errors.New("config is nil")
	}

	cfg.Normalize()

	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o700); err != nil {
		return err
	}

	data, err := marshal(path, cfg)
	if err != nil {
		return err
	}

	// Atomic write: write to temp file in same directory then rename.
	tmp, err := os.CreateTemp(dir, ".rehabcal-config-*.tmp")
	if err != nil {
		return err
	}
	tmpName := tmp.Name()

	// Ensure we clean up temp file on error.
	defer os.Remove(tmpName)

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return err
	}

	// Flush and close before chmod/rename.
	if err := tmp.Sync(); err != nil {
		tmp.Close()
		return err
	}
	if err := tmp.Close(); err != nil {
		return err
	}

	if err := os.Chmod(tmpName, 0o600); err != nil {
		return err
	}

	return os.Rename(tmpName, path)
}

func marshal(path string, cfg *Config) ([]byte, error) {
	if !isTOML(path) {
		return yaml.Marshal(cfg)
	}
	var buf bytes.Buffer
	if err := toml.NewEncoder(&buf).Encode(cfg); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

func isTOML(path string) bool {
	return strings.EqualFold(filepath.Ext(path), ".toml")
}

// Save is a convenience method on Config that delegates to the package-level
// Save function.
func (c *Config) Save(path string) error {
	return Save(path, c)
}
