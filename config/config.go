// Package config reads the .snippetsync.yaml configuration file.
//
// The file declares where resource files live, which locale targets exist,
// which database holds the translation table and where failure reports go.
// Every field has a default, so a missing file yields a usable configuration
// for a local SQLite run.
package config

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/reqsercom/snippetsync/locales"
)

// ---------------------------------------------------------------------------
// YAML schema
// ---------------------------------------------------------------------------

// File is the top-level .snippetsync.yaml structure.
type File struct {
	// Root is the tree scanned for resource files, relative to the config file.
	Root string `yaml:"root,omitempty"`
	// Extensions are the resource file extensions to parse (default [json]).
	Extensions []string `yaml:"extensions,omitempty"`
	// Exclude lists doublestar globs, relative to Root, of directories to skip.
	Exclude []string `yaml:"exclude,omitempty"`
	// Author is the author tag the engine writes and owns (default "snippetsync").
	Author string `yaml:"author,omitempty"`
	// ShopID identifies this installation in failure reports.
	ShopID string `yaml:"shop_id,omitempty"`
	// Schedule is the cron spec used by "serve" (default "@daily").
	Schedule string `yaml:"schedule,omitempty"`
	// LogMode is "dev" or "prod".
	LogMode string `yaml:"log_mode,omitempty"`
	// DataDir holds the default SQLite database and the run state file.
	DataDir string `yaml:"data_dir,omitempty"`

	Locales  Locales  `yaml:"locales"`
	Database Database `yaml:"database"`
	Reporter Reporter `yaml:"reporter"`
	Lock     Lock     `yaml:"lock"`

	// dir is the directory the file was loaded from.
	dir string `yaml:"-"`
}

// Locales selects where locale targets come from.
type Locales struct {
	// Source: "config" (the Targets list below) or "store" (locale_targets table).
	Source  string         `yaml:"source,omitempty"`
	Targets []LocaleTarget `yaml:"targets,omitempty"`
}

// LocaleTarget is one entry of locales.targets.
type LocaleTarget struct {
	ID   string `yaml:"id"`
	Code string `yaml:"code"`
	Base bool   `yaml:"base,omitempty"`
	// Enabled defaults to true when omitted.
	Enabled *bool `yaml:"enabled,omitempty"`
}

// Database configures the translation store.
type Database struct {
	// Driver: "sqlite" or "postgres".
	Driver string `yaml:"driver,omitempty"`
	DSN    string `yaml:"dsn,omitempty"`
	// Migrate creates missing tables and indexes on start (default true).
	Migrate *bool `yaml:"migrate,omitempty"`
}

// Reporter configures outbound failure reports.
type Reporter struct {
	// Endpoint is the collection URL; empty disables reporting.
	Endpoint string        `yaml:"endpoint,omitempty"`
	Timeout  time.Duration `yaml:"timeout,omitempty"`
	// MaxReports caps the reports sent per run.
	MaxReports int `yaml:"max_reports,omitempty"`
}

// Lock configures the optional cross-process run lease.
type Lock struct {
	// RedisAddr enables the Redis lease when set.
	RedisAddr string        `yaml:"redis_addr,omitempty"`
	Key       string        `yaml:"key,omitempty"`
	TTL       time.Duration `yaml:"ttl,omitempty"`
}

const (
	LocalesFromConfig = "config"
	LocalesFromStore  = "store"

	DriverSQLite   = "sqlite"
	DriverPostgres = "postgres"
)

// FileName is the default config file name.
const FileName = ".snippetsync.yaml"

// Defaults.
const (
	DefaultAuthor     = "snippetsync"
	DefaultSchedule   = "@daily"
	DefaultTimeout    = 5 * time.Second
	DefaultMaxReports = 50
	DefaultLockKey    = "snippetsync:run"
	DefaultLockTTL    = 6 * time.Hour
	DatabaseFileName  = "snippetsync.db"
)

var supportedExtensions = map[string]bool{"json": true, "yaml": true, "yml": true}

// ---------------------------------------------------------------------------
// Loading
// ---------------------------------------------------------------------------

// Load reads the config file at path, applies environment overrides and
// defaults, and validates the result. A missing file is not an error.
func Load(path string) (*File, error) {
	f := &File{dir: filepath.Dir(path)}

	data, err := os.ReadFile(path)
	if err != nil && !os.IsNotExist(err) {
		return nil, fmt.Errorf("reading %s: %w", path, err)
	}
	if len(bytes.TrimSpace(data)) > 0 {
		dec := yaml.NewDecoder(bytes.NewReader(data))
		dec.KnownFields(true)
		if err := dec.Decode(f); err != nil && !errors.Is(err, io.EOF) {
			return nil, fmt.Errorf("parsing %s: %w", path, err)
		}
	}

	applyEnv(f)
	if err := f.applyDefaults(); err != nil {
		return nil, err
	}
	if err := f.validate(); err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return f, nil
}

func (f *File) applyDefaults() error {
	if f.Root == "" {
		f.Root = "."
	}
	if len(f.Extensions) == 0 {
		f.Extensions = []string{"json"}
	}
	for i, ext := range f.Extensions {
		f.Extensions[i] = strings.ToLower(strings.TrimPrefix(strings.TrimSpace(ext), "."))
	}
	if f.Author == "" {
		f.Author = DefaultAuthor
	}
	if f.Schedule == "" {
		f.Schedule = DefaultSchedule
	}
	if f.LogMode == "" {
		f.LogMode = "dev"
	}
	if f.DataDir == "" {
		dir, err := DataDir()
		if err != nil {
			return err
		}
		f.DataDir = dir
	}
	if f.Locales.Source == "" {
		f.Locales.Source = LocalesFromConfig
	}
	if f.Database.Driver == "" {
		f.Database.Driver = DriverSQLite
	}
	if f.Database.Driver == DriverSQLite && f.Database.DSN == "" {
		f.Database.DSN = filepath.Join(f.DataDir, DatabaseFileName)
	}
	if f.Database.Migrate == nil {
		migrate := true
		f.Database.Migrate = &migrate
	}
	if f.Reporter.Timeout <= 0 {
		f.Reporter.Timeout = DefaultTimeout
	}
	if f.Reporter.MaxReports <= 0 {
		f.Reporter.MaxReports = DefaultMaxReports
	}
	if f.Lock.Key == "" {
		f.Lock.Key = DefaultLockKey
	}
	if f.Lock.TTL <= 0 {
		f.Lock.TTL = DefaultLockTTL
	}
	return nil
}

func (f *File) validate() error {
	for _, ext := range f.Extensions {
		if !supportedExtensions[ext] {
			return fmt.Errorf("unsupported extension %q (valid: json, yaml, yml)", ext)
		}
	}

	switch f.Locales.Source {
	case LocalesFromConfig:
		seen := make(map[string]bool, len(f.Locales.Targets))
		for i, t := range f.Locales.Targets {
			if t.ID == "" {
				return fmt.Errorf("locale target #%d has no id", i+1)
			}
			if t.Code == "" {
				return fmt.Errorf("locale target %q has no code", t.ID)
			}
			if seen[t.ID] {
				return fmt.Errorf("locale target %q declared twice", t.ID)
			}
			seen[t.ID] = true
		}
	case LocalesFromStore:
		if len(f.Locales.Targets) > 0 {
			return fmt.Errorf("locales.targets must be empty when locales.source is %q", LocalesFromStore)
		}
	default:
		return fmt.Errorf("unknown locales.source %q (valid: config, store)", f.Locales.Source)
	}

	switch f.Database.Driver {
	case DriverSQLite:
	case DriverPostgres:
		if f.Database.DSN == "" {
			return fmt.Errorf("database.dsn is required for driver %q", DriverPostgres)
		}
	default:
		return fmt.Errorf("unknown database.driver %q (valid: sqlite, postgres)", f.Database.Driver)
	}
	return nil
}

// ---------------------------------------------------------------------------
// Resolving
// ---------------------------------------------------------------------------

// AbsRoot returns the scan root resolved against the config file directory.
func (f *File) AbsRoot() (string, error) {
	root := f.Root
	if !filepath.IsAbs(root) {
		root = filepath.Join(f.dir, root)
	}
	return filepath.Abs(root)
}

// SetRoot overrides the scan root (e.g. from the --root flag).
func (f *File) SetRoot(root string) {
	f.Root = root
	f.dir = ""
}

// LocaleTargets converts the configured targets for the locales package.
func (f *File) LocaleTargets() []locales.Target {
	out := make([]locales.Target, 0, len(f.Locales.Targets))
	for _, t := range f.Locales.Targets {
		enabled := t.Enabled == nil || *t.Enabled
		out = append(out, locales.Target{ID: t.ID, Code: t.Code, Base: t.Base, Enabled: enabled})
	}
	return out
}
