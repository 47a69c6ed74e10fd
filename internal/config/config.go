// Package config loads the extension configuration (hierarchicalroutes.yml),
// the menu definition file and the content-type catalog.
package config

import (
	"errors"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/spf13/viper"
	"go.uber.org/zap"

	"github.com/conduit-lang/hierroutes/internal/content"
	"github.com/conduit-lang/hierroutes/internal/hierarchy"
	"github.com/conduit-lang/hierroutes/internal/linkgen"
)

// FileName is the base name of the extension configuration file
const FileName = "hierarchicalroutes"

// EnvPrefix prefixes environment overrides, e.g. HIERROUTES_CACHE_BACKEND
const EnvPrefix = "HIERROUTES"

// Config represents the extension configuration
type Config struct {
	MenuFile string         `mapstructure:"menu-file"`
	Settings SettingsConfig `mapstructure:"settings"`
	Cache    CacheConfig    `mapstructure:"cache"`
	Content  ContentConfig  `mapstructure:"content"`
	Server   ServerConfig   `mapstructure:"server"`
	Auth     AuthConfig     `mapstructure:"auth"`

	// Menus lists the menu names to import; "menu" may be a string or a list
	Menus []string `mapstructure:"-"`
	// Rules are the valid rules; invalid ones are dropped at load time
	Rules []hierarchy.Rule `mapstructure:"-"`
	// ContentTypes is the catalog declared under "contenttypes"
	ContentTypes content.StaticCatalog `mapstructure:"-"`

	// File is the configuration file actually read, empty when running on
	// defaults
	File string `mapstructure:"-"`

	reader *Reader
}

// SettingsConfig holds the import and link settings
type SettingsConfig struct {
	OverwriteDuplicates bool `mapstructure:"overwrite-duplicates"`
	OverrideSlugs       bool `mapstructure:"override-slugs"`
	EnableRouting       bool `mapstructure:"enable-routing"`
	BypassURLGenerator  bool `mapstructure:"bypass-url-generator"`
}

// CacheConfig holds the route cache configuration
type CacheConfig struct {
	Enabled bool `mapstructure:"enabled"`
	// Duration is the blob lifetime in seconds; 0 keeps blobs until the next write
	Duration int         `mapstructure:"duration"`
	Backend  string      `mapstructure:"backend"` // memory or redis
	Prefix   string      `mapstructure:"prefix"`
	Redis    RedisConfig `mapstructure:"redis"`
}

// TTL returns Duration as a time.Duration
func (c CacheConfig) TTL() time.Duration {
	return time.Duration(c.Duration) * time.Second
}

// RedisConfig holds the redis connection settings
type RedisConfig struct {
	Addr     string `mapstructure:"addr"`
	Password string `mapstructure:"password"`
	DB       int    `mapstructure:"db"`
}

// ContentConfig selects the content database
type ContentConfig struct {
	Driver string `mapstructure:"driver"` // sqlite3, pgx or postgres (lib/pq)
	DSN    string `mapstructure:"dsn"`
	Table  string `mapstructure:"table"`
}

// ServerConfig represents server configuration
type ServerConfig struct {
	Address string `mapstructure:"address"`
}

// AuthConfig holds the admin token settings
type AuthConfig struct {
	Secret string `mapstructure:"secret"`
	Issuer string `mapstructure:"issuer"`
	// Users may exchange basic credentials for a token. Names are lower
	// cased by the loader.
	Users map[string]UserConfig `mapstructure:"users"`
}

// UserConfig is one admin account
type UserConfig struct {
	PasswordHash string   `mapstructure:"password-hash"`
	Roles        []string `mapstructure:"roles"`
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("menu", "main")
	v.SetDefault("menu-file", "menu.yml")
	v.SetDefault("settings.overwrite-duplicates", true)
	v.SetDefault("settings.override-slugs", false)
	v.SetDefault("settings.enable-routing", true)
	v.SetDefault("settings.bypass-url-generator", false)
	v.SetDefault("cache.enabled", true)
	v.SetDefault("cache.duration", 0)
	v.SetDefault("cache.backend", "memory")
	v.SetDefault("cache.prefix", "hierarchicalroutes:")
	v.SetDefault("cache.redis.addr", "localhost:6379")
	v.SetDefault("content.driver", "sqlite3")
	v.SetDefault("content.dsn", "content.db")
	v.SetDefault("content.table", "content")
	v.SetDefault("server.address", ":8080")
	v.SetDefault("auth.issuer", "hierroutes")
}

// Load reads the configuration from path, or from hierarchicalroutes.yml in
// the working directory or ./config when path is empty. A missing file is
// not an error in the search case; the defaults apply.
func Load(path string, logger *zap.Logger) (*Config, error) {
	if logger == nil {
		logger = zap.NewNop()
	}

	v := viper.New()
	setDefaults(v)

	if path != "" {
		v.SetConfigFile(path)
	} else {
		v.SetConfigName(FileName)
		v.SetConfigType("yaml")
		v.AddConfigPath(".")
		v.AddConfigPath("config")
	}

	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_", "-", "_"))
	v.AutomaticEnv()

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}
	cfg.File = v.ConfigFileUsed()
	cfg.reader = NewReader(v.AllSettings())
	cfg.Menus = cfg.reader.Strings("menu", []string{"main"})

	var rules []hierarchy.Rule
	if err := v.UnmarshalKey("rules", &rules); err != nil {
		return nil, fmt.Errorf("failed to unmarshal rules: %w", err)
	}
	cfg.Rules = ValidRules(rules, logger)

	catalog, err := loadCatalog(v)
	if err != nil {
		return nil, err
	}
	cfg.ContentTypes = catalog

	if err := validateConfig(&cfg); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Reader returns the scoped reader over every loaded setting
func (c *Config) Reader() *Reader {
	if c.reader == nil {
		return NewReader(nil)
	}
	return c.reader
}

// BuilderOptions returns the hierarchy import options
func (c *Config) BuilderOptions() hierarchy.Options {
	return hierarchy.Options{
		OverwriteDuplicates: c.Settings.OverwriteDuplicates,
		OverrideSlugs:       c.Settings.OverrideSlugs,
	}
}

// LinkOptions returns the link generator options
func (c *Config) LinkOptions() linkgen.Options {
	return linkgen.Options{
		EnableRouting:      c.Settings.EnableRouting,
		BypassURLGenerator: c.Settings.BypassURLGenerator,
	}
}

// loadCatalog decodes the "contenttypes" map into a catalog ordered by key
func loadCatalog(v *viper.Viper) (content.StaticCatalog, error) {
	var raw map[string]content.ContentType
	if err := v.UnmarshalKey("contenttypes", &raw); err != nil {
		return nil, fmt.Errorf("failed to unmarshal contenttypes: %w", err)
	}

	catalog := make(content.StaticCatalog, 0, len(raw))
	for key, ct := range raw {
		ct.Key = key
		if ct.Slug == "" {
			ct.Slug = key
		}
		catalog = append(catalog, ct)
	}
	sort.Slice(catalog, func(i, j int) bool { return catalog[i].Key < catalog[j].Key })
	return catalog, nil
}

// validateConfig validates the configuration
func validateConfig(cfg *Config) error {
	switch cfg.Cache.Backend {
	case "memory", "redis":
	default:
		return fmt.Errorf("cache.backend must be memory or redis, got: %s", cfg.Cache.Backend)
	}
	if cfg.Cache.Duration < 0 {
		return fmt.Errorf("cache.duration must not be negative, got: %d", cfg.Cache.Duration)
	}
	switch cfg.Content.Driver {
	case "sqlite3", "pgx", "postgres":
	default:
		return fmt.Errorf("content.driver must be sqlite3, pgx or postgres, got: %s", cfg.Content.Driver)
	}
	return nil
}
