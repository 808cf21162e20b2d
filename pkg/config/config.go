// Package config loads kinship settings.
//
// Settings are layered, later layers winning:
//
//  1. built-in defaults ([Default])
//  2. the TOML file, ~/.config/kinship/config.toml unless overridden
//  3. a .env file in the working directory (existing variables are kept)
//  4. KINSHIP_* environment variables
//
// The merged result is checked with struct tags before use.
package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/BurntSushi/toml"
	"github.com/go-playground/validator/v10"
	"github.com/joho/godotenv"

	"github.com/matzehuels/kinship/pkg/layout"
)

// AppName names the config and cache directories.
const AppName = "kinship"

// EnvPrefix prefixes every environment variable read by [Load].
const EnvPrefix = "KINSHIP_"

// Feed transports.
const (
	FeedRealtime = "realtime"
	FeedRedis    = "redis"
	FeedMongo    = "mongo"
	FeedNone     = "none"
)

// Cache backends.
const (
	CacheFile  = "file"
	CacheRedis = "redis"
	CacheNone  = "none"
)

// Config is the complete configuration.
type Config struct {
	Backend Backend       `toml:"backend"`
	Feed    Feed          `toml:"feed"`
	Layout  layout.Config `toml:"layout"`
	Render  Render        `toml:"render"`
	Cache   Cache         `toml:"cache"`
	Serve   Serve         `toml:"serve"`
	Log     Log           `toml:"log"`
}

// Backend locates the hosted backend.
type Backend struct {
	// URL is the project URL; REST, realtime and functions hang off it.
	URL         string        `toml:"url" validate:"omitempty,url"`
	AnonKey     string        `toml:"anon_key"`
	AccessToken string        `toml:"access_token"`
	// DatabaseURL is a direct Postgres connection string.
	DatabaseURL string        `toml:"database_url"`
	Timeout     time.Duration `toml:"timeout" validate:"gte=0"`
}

// Feed selects and configures the change feed transport.
type Feed struct {
	Transport     string        `toml:"transport" validate:"oneof=realtime redis mongo none"`
	RedisAddr     string        `toml:"redis_addr" validate:"required_if=Transport redis"`
	MongoURI      string        `toml:"mongo_uri" validate:"required_if=Transport mongo"`
	MongoDatabase string        `toml:"mongo_database"`
	Reconnect     time.Duration `toml:"reconnect" validate:"gte=0"`
	Heartbeat     time.Duration `toml:"heartbeat" validate:"gte=0"`
}

// Render holds default render options.
type Render struct {
	Renderer string   `toml:"renderer" validate:"oneof=diagram nodelink"`
	Style    string   `toml:"style" validate:"oneof=simple mono"`
	Scale    float64  `toml:"scale" validate:"gt=0,lte=8"`
	Formats  []string `toml:"formats" validate:"dive,oneof=svg png pdf dot json"`
}

// Cache selects the artifact cache.
type Cache struct {
	Backend   string `toml:"backend" validate:"oneof=file redis none"`
	Dir       string `toml:"dir"`
	RedisAddr string `toml:"redis_addr" validate:"omitempty,hostname_port"`
}

// Serve configures the HTTP server.
type Serve struct {
	Addr         string        `toml:"addr" validate:"required,hostname_port"`
	ReadTimeout  time.Duration `toml:"read_timeout" validate:"gte=0"`
	WriteTimeout time.Duration `toml:"write_timeout" validate:"gte=0"`
	Metrics      bool          `toml:"metrics"`
}

// Log sets the log level.
type Log struct {
	Level string `toml:"level" validate:"oneof=debug info warn error"`
}

// Default returns the built-in configuration.
func Default() Config {
	return Config{
		Backend: Backend{Timeout: 15 * time.Second},
		Feed: Feed{
			Transport:     FeedRealtime,
			MongoDatabase: AppName,
			Reconnect:     2 * time.Second,
			Heartbeat:     30 * time.Second,
		},
		Layout: layout.DefaultConfig(),
		Render: Render{Renderer: "diagram", Style: "simple", Scale: 2, Formats: []string{"svg"}},
		Cache:  Cache{Backend: CacheFile},
		Serve:  Serve{Addr: "127.0.0.1:8080", ReadTimeout: 10 * time.Second, WriteTimeout: 30 * time.Second, Metrics: true},
		Log:    Log{Level: "info"},
	}
}

// =============================================================================
// Loading
// =============================================================================

// Load builds the configuration from path (or [DefaultPath] when empty),
// the .env file and the environment. A missing file is not an error when
// path is empty.
func Load(path string) (*Config, error) {
	cfg := Default()

	explicit := path != ""
	if !explicit {
		var err error
		if path, err = DefaultPath(); err != nil {
			path = ""
		}
	}
	if path != "" {
		if err := cfg.decodeFile(path); err != nil {
			if !explicit && errors.Is(err, fs.ErrNotExist) {
				err = nil
			}
			if err != nil {
				return nil, err
			}
		}
	}

	if err := godotenv.Load(); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return nil, fmt.Errorf("load .env: %w", err)
	}
	if err := cfg.applyEnv(os.LookupEnv); err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Parse decodes TOML on top of the defaults without touching the
// environment.
func Parse(data string) (*Config, error) {
	cfg := Default()
	md, err := toml.Decode(data, &cfg)
	if err != nil {
		return nil, fmt.Errorf("parse config: %w", err)
	}
	if err := undecoded(md); err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func (c *Config) decodeFile(path string) error {
	md, err := toml.DecodeFile(path, c)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return err
		}
		return fmt.Errorf("parse %s: %w", path, err)
	}
	if err := undecoded(md); err != nil {
		return fmt.Errorf("%s: %w", path, err)
	}
	return nil
}

func undecoded(md toml.MetaData) error {
	keys := md.Undecoded()
	if len(keys) == 0 {
		return nil
	}
	names := make([]string, len(keys))
	for i, k := range keys {
		names[i] = k.String()
	}
	sort.Strings(names)
	return fmt.Errorf("unknown config keys: %s", strings.Join(names, ", "))
}

// DefaultPath returns ~/.config/kinship/config.toml, honoring
// XDG_CONFIG_HOME.
func DefaultPath() (string, error) {
	if dir := os.Getenv("XDG_CONFIG_HOME"); dir != "" {
		return filepath.Join(dir, AppName, "config.toml"), nil
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(home, ".config", AppName, "config.toml"), nil
}

// CacheDir returns the configured cache directory or ~/.cache/kinship,
// honoring XDG_CACHE_HOME.
func (c *Config) CacheDir() (string, error) {
	if c.Cache.Dir != "" {
		return c.Cache.Dir, nil
	}
	if dir := os.Getenv("XDG_CACHE_HOME"); dir != "" {
		return filepath.Join(dir, AppName), nil
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(home, ".cache", AppName), nil
}

// =============================================================================
// Environment
// =============================================================================

// envVars maps variable names (without prefix) to setters.
func (c *Config) envVars() map[string]func(string) error {
	str := func(dst *string) func(string) error {
		return func(v string) error { *dst = v; return nil }
	}
	dur := func(dst *time.Duration) func(string) error {
		return func(v string) error {
			d, err := time.ParseDuration(v)
			if err != nil {
				return err
			}
			*dst = d
			return nil
		}
	}
	num := func(dst *float64) func(string) error {
		return func(v string) error {
			f, err := strconv.ParseFloat(v, 64)
			if err != nil {
				return err
			}
			*dst = f
			return nil
		}
	}
	return map[string]func(string) error{
		"BACKEND_URL":     str(&c.Backend.URL),
		"ANON_KEY":        str(&c.Backend.AnonKey),
		"ACCESS_TOKEN":    str(&c.Backend.AccessToken),
		"DATABASE_URL":    str(&c.Backend.DatabaseURL),
		"BACKEND_TIMEOUT": dur(&c.Backend.Timeout),
		"FEED":            str(&c.Feed.Transport),
		"REDIS_ADDR":      str(&c.Feed.RedisAddr),
		"MONGO_URI":       str(&c.Feed.MongoURI),
		"MONGO_DATABASE":  str(&c.Feed.MongoDatabase),
		"BRANCH_MODE":     func(v string) error { return c.Layout.BranchMode.UnmarshalText([]byte(v)) },
		"BRANCH_FRACTION": num(&c.Layout.BranchFraction),
		"RENDERER":        str(&c.Render.Renderer),
		"STYLE":           str(&c.Render.Style),
		"CACHE":           str(&c.Cache.Backend),
		"CACHE_DIR":       str(&c.Cache.Dir),
		"CACHE_REDIS":     str(&c.Cache.RedisAddr),
		"ADDR":            str(&c.Serve.Addr),
		"LOG_LEVEL":       str(&c.Log.Level),
	}
}

func (c *Config) applyEnv(lookup func(string) (string, bool)) error {
	vars := c.envVars()
	names := make([]string, 0, len(vars))
	for name := range vars {
		names = append(names, name)
	}
	sort.Strings(names)
	for _, name := range names {
		v, ok := lookup(EnvPrefix + name)
		if !ok {
			continue
		}
		if err := vars[name](strings.TrimSpace(v)); err != nil {
			return fmt.Errorf("%s%s: %w", EnvPrefix, name, err)
		}
	}
	return nil
}

// EnvNames lists every environment variable Load reads, sorted.
func EnvNames() []string {
	var c Config
	out := make([]string, 0)
	for name := range c.envVars() {
		out = append(out, EnvPrefix+name)
	}
	sort.Strings(out)
	return out
}

// =============================================================================
// Validation
// =============================================================================

var validate = validator.New(validator.WithRequiredStructEnabled())

// Validate checks every field against its constraints.
func (c *Config) Validate() error {
	if err := validate.Struct(c); err != nil {
		var verrs validator.ValidationErrors
		if errors.As(err, &verrs) {
			msgs := make([]string, len(verrs))
			for i, fe := range verrs {
				msgs[i] = fmt.Sprintf("%s: failed %s", fieldPath(fe.Namespace()), fe.Tag())
			}
			return fmt.Errorf("invalid config: %s", strings.Join(msgs, "; "))
		}
		return fmt.Errorf("invalid config: %w", err)
	}
	if c.Cache.Backend == CacheRedis && c.Cache.RedisAddr == "" && c.Feed.RedisAddr == "" {
		return fmt.Errorf("invalid config: cache.redis_addr is required for the redis cache")
	}
	return nil
}

// RedisAddr returns the Redis address for the cache, falling back to the
// feed's.
func (c *Config) RedisAddr() string {
	if c.Cache.RedisAddr != "" {
		return c.Cache.RedisAddr
	}
	return c.Feed.RedisAddr
}

// fieldPath turns "Config.Feed.RedisAddr" into "Feed.RedisAddr".
func fieldPath(ns string) string {
	_, rest, ok := strings.Cut(ns, ".")
	if !ok {
		return ns
	}
	return rest
}
