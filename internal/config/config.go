// Package config provides configuration management for the OMERO repository
// service.
package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"gopkg.in/ini.v1"
)

// Dialect values accepted for the remote API grammar.
const (
	DialectDirect  = "direct"
	DialectGateway = "gateway"
)

// Config option names readable through the Store interface.
const (
	KeyEndpoint       = "omero_restendpoint"
	KeyAPIKey         = "omero_key"
	KeyAPISecret      = "omero_secret"
	KeyAPIDialect     = "omero_apiversion"
	KeyCacheLimit     = "omero_cachelimit"
	KeyRequestTimeout = "omero_requesttimeout"
)

// Validation errors
var (
	ErrMissingEndpoint = errors.New("omero endpoint is empty")
	ErrBadDialect      = errors.New("api_dialect must be 'direct' or 'gateway'")
	ErrBadCacheLimit   = errors.New("cache_limit_bytes must be >= 0")
	ErrBadSyncInterval = errors.New("sync interval_minutes must be > 0")
)

// Store is the read-only configuration surface the core components consume.
// Components never parse raw config storage themselves.
type Store interface {
	// Value returns the named option, or "" when unset.
	Value(name string) string
}

// Config holds the service configuration.
//
// Config file location:
//   - Unix: ~/.config/omero-repo/config.ini
//
// INI format:
//
//	[omero]
//	endpoint = http://omero.example.org:8080/webgateway
//	api_key = <key>
//	api_secret = <secret>
//	api_dialect = direct
//	cache_limit_bytes = 0
//	blacklist = Atlante, Melanomi e nevi, slide_seminar_CAAP2015, 2015-08-11, TEST
//	request_timeout_seconds = 30
//
//	[sync]
//	interval_minutes = 1440
//	timeout_seconds = 60
//
//	[server]
//	listen = :8095
//	references_db = /var/lib/omero-repo/references.db
type Config struct {
	// Remote connection settings
	Endpoint   string `ini:"endpoint"`
	APIKey     string `ini:"api_key"`
	APISecret  string `ini:"api_secret"`
	APIDialect string `ini:"api_dialect"`

	// CacheLimitBytes caps the size of files imported into the local cache.
	// 0 means unbounded.
	CacheLimitBytes int64 `ini:"cache_limit_bytes"`

	// Blacklist lists display names hidden from every listing.
	Blacklist []string `ini:"blacklist"`

	// RequestTimeoutSeconds is passed down to every remote call. 0 disables
	// the timeout.
	RequestTimeoutSeconds int `ini:"request_timeout_seconds"`

	Sync   SyncConfig
	Server ServerConfig
}

// SyncConfig contains settings for the reference sync sweep.
type SyncConfig struct {
	// IntervalMinutes is how often the serve-mode background sweep runs.
	// Default: 1440 (daily).
	IntervalMinutes int `ini:"interval_minutes"`

	// TimeoutSeconds is the per-file timeout during the sweep.
	TimeoutSeconds int `ini:"timeout_seconds"`
}

// ServerConfig contains settings for the HTTP front end.
type ServerConfig struct {
	// Listen is the HTTP listen address.
	Listen string `ini:"listen"`

	// ReferencesDB is the bbolt file holding persisted file references.
	ReferencesDB string `ini:"references_db"`
}

// DefaultBlacklist mirrors the dataset names historically hidden from
// listings (known-broken or staging content on the production server).
var DefaultBlacklist = []string{
	"Atlante", "Melanomi e nevi", "slide_seminar_CAAP2015", "2015-08-11", "TEST",
}

// Default returns a Config populated with defaults.
func Default() *Config {
	return &Config{
		Endpoint:              "http://omero.crs4.it:8080/webgateway",
		APIDialect:            DialectDirect,
		CacheLimitBytes:       0,
		Blacklist:             append([]string(nil), DefaultBlacklist...),
		RequestTimeoutSeconds: 30,
		Sync: SyncConfig{
			IntervalMinutes: 1440,
			TimeoutSeconds:  60,
		},
		Server: ServerConfig{
			Listen:       ":8095",
			ReferencesDB: filepath.Join(defaultStateDir(), "references.db"),
		},
	}
}

// DefaultConfigPath returns the config file location.
func DefaultConfigPath() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return filepath.Join(".", "config.ini")
	}
	return filepath.Join(home, ".config", "omero-repo", "config.ini")
}

func defaultStateDir() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return "."
	}
	return filepath.Join(home, ".local", "share", "omero-repo")
}

// Load reads the config file at path, applying defaults for missing keys.
// A missing file is not an error: defaults are returned.
func Load(path string) (*Config, error) {
	cfg := Default()

	if _, err := os.Stat(path); os.IsNotExist(err) {
		return cfg, nil
	}

	file, err := ini.Load(path)
	if err != nil {
		return nil, fmt.Errorf("failed to load config %s: %w", path, err)
	}

	omero := file.Section("omero")
	if omero.HasKey("endpoint") {
		cfg.Endpoint = strings.TrimRight(omero.Key("endpoint").String(), "/")
	}
	if omero.HasKey("api_key") {
		cfg.APIKey = omero.Key("api_key").String()
	}
	if omero.HasKey("api_secret") {
		cfg.APISecret = omero.Key("api_secret").String()
	}
	if omero.HasKey("api_dialect") {
		cfg.APIDialect = omero.Key("api_dialect").String()
	}
	if omero.HasKey("cache_limit_bytes") {
		cfg.CacheLimitBytes = omero.Key("cache_limit_bytes").MustInt64(0)
	}
	if omero.HasKey("blacklist") {
		cfg.Blacklist = splitList(omero.Key("blacklist").String())
	}
	if omero.HasKey("request_timeout_seconds") {
		cfg.RequestTimeoutSeconds = omero.Key("request_timeout_seconds").MustInt(30)
	}

	syncSec := file.Section("sync")
	if syncSec.HasKey("interval_minutes") {
		cfg.Sync.IntervalMinutes = syncSec.Key("interval_minutes").MustInt(1440)
	}
	if syncSec.HasKey("timeout_seconds") {
		cfg.Sync.TimeoutSeconds = syncSec.Key("timeout_seconds").MustInt(60)
	}

	server := file.Section("server")
	if server.HasKey("listen") {
		cfg.Server.Listen = server.Key("listen").String()
	}
	if server.HasKey("references_db") {
		cfg.Server.ReferencesDB = server.Key("references_db").String()
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate checks the configuration for internal consistency.
func (c *Config) Validate() error {
	if strings.TrimSpace(c.Endpoint) == "" {
		return ErrMissingEndpoint
	}
	if c.APIDialect != DialectDirect && c.APIDialect != DialectGateway {
		return fmt.Errorf("%w: got %q", ErrBadDialect, c.APIDialect)
	}
	if c.CacheLimitBytes < 0 {
		return ErrBadCacheLimit
	}
	if c.Sync.IntervalMinutes <= 0 {
		return fmt.Errorf("%w: got %d", ErrBadSyncInterval, c.Sync.IntervalMinutes)
	}
	return nil
}

// Value implements Store. Unknown names return "".
func (c *Config) Value(name string) string {
	switch name {
	case KeyEndpoint:
		return c.Endpoint
	case KeyAPIKey:
		return c.APIKey
	case KeyAPISecret:
		return c.APISecret
	case KeyAPIDialect:
		return c.APIDialect
	case KeyCacheLimit:
		return strconv.FormatInt(c.CacheLimitBytes, 10)
	case KeyRequestTimeout:
		return strconv.Itoa(c.RequestTimeoutSeconds)
	}
	return ""
}

func splitList(s string) []string {
	var out []string
	for _, part := range strings.Split(s, ",") {
		if p := strings.TrimSpace(part); p != "" {
			out = append(out, p)
		}
	}
	return out
}
