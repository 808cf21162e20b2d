// Package cli implements the kinship command-line interface.
package cli

import (
	"io"
	"strings"

	"github.com/charmbracelet/log"
	"github.com/redis/go-redis/v9"
	"github.com/spf13/cobra"

	"github.com/matzehuels/kinship/pkg/buildinfo"
	"github.com/matzehuels/kinship/pkg/cache"
	"github.com/matzehuels/kinship/pkg/config"
	"github.com/matzehuels/kinship/pkg/pipeline"
)

// =============================================================================
// Constants
// =============================================================================

// appName is the application name used for directories and display.
const appName = config.AppName

// Log levels exported for use in main.go.
const (
	LogDebug = log.DebugLevel
	LogInfo  = log.InfoLevel
)

// =============================================================================
// CLI - Central CLI State
// =============================================================================

// CLI holds shared state for all commands.
type CLI struct {
	Logger *log.Logger
	Config *config.Config

	configPath string
	verbose    bool
}

// New creates a new CLI instance with a default logger and configuration.
// The configuration is replaced by the loaded one before any command runs.
func New(w io.Writer, level log.Level) *CLI {
	cfg := config.Default()
	return &CLI{
		Logger: newLogger(w, level),
		Config: &cfg,
	}
}

// SetLogLevel updates the logger's level.
func (c *CLI) SetLogLevel(level log.Level) {
	c.Logger.SetLevel(level)
}

// RootCommand creates the root cobra command with all subcommands registered.
func (c *CLI) RootCommand() *cobra.Command {
	root := &cobra.Command{
		Use:   appName,
		Short: "Kinship mirrors shared family trees and draws them",
		Long: `Kinship keeps a local, live copy of a collaboratively edited family tree
and lays it out as a diagram in which parents meet at a shared hub and
children hang from a common bus.`,
		Version:           buildinfo.Version,
		SilenceUsage:      true,
		SilenceErrors:     true,
		PersistentPreRunE: c.setup,
	}

	root.SetVersionTemplate(buildinfo.Template())
	root.PersistentFlags().BoolVarP(&c.verbose, "verbose", "v", false, "enable verbose logging")
	root.PersistentFlags().StringVar(&c.configPath, "config", "", "config file (default: ~/.config/kinship/config.toml)")

	root.AddCommand(c.layoutCommand())
	root.AddCommand(c.renderCommand())
	root.AddCommand(c.watchCommand())
	root.AddCommand(c.serveCommand())
	root.AddCommand(c.inviteCommand())
	root.AddCommand(c.accountCommand())
	root.AddCommand(c.cacheCommand())
	root.AddCommand(c.completionCommand())

	return root
}

// setup loads the configuration and attaches the logger to the command
// context.
func (c *CLI) setup(cmd *cobra.Command, _ []string) error {
	cfg, err := config.Load(c.configPath)
	if err != nil {
		return err
	}
	c.Config = cfg

	level := LogDebug
	if !c.verbose {
		if level, err = log.ParseLevel(cfg.Log.Level); err != nil {
			level = LogInfo
		}
	}
	c.SetLogLevel(level)
	cmd.SetContext(withLogger(cmd.Context(), c.Logger))
	return nil
}

// =============================================================================
// Runner Factory
// =============================================================================

// newRunner creates a pipeline runner for CLI use.
func (c *CLI) newRunner(noCache bool) (*pipeline.Runner, error) {
	cc, err := c.newCache(noCache)
	if err != nil {
		return nil, err
	}
	return pipeline.NewRunner(cc, nil, c.Logger), nil
}

// newCache opens the configured artifact cache. A cache directory that
// cannot be determined degrades to no caching.
func (c *CLI) newCache(noCache bool) (cache.Cache, error) {
	if noCache {
		return cache.NewNullCache(), nil
	}
	switch c.Config.Cache.Backend {
	case config.CacheNone:
		return cache.NewNullCache(), nil
	case config.CacheRedis:
		client := redis.NewClient(&redis.Options{Addr: c.Config.RedisAddr()})
		return &ownedRedisCache{RedisCache: cache.NewRedisCache(client), client: client}, nil
	}
	dir, err := c.Config.CacheDir()
	if err != nil {
		c.Logger.Debug("no cache directory", "err", err)
		return cache.NewNullCache(), nil
	}
	return cache.NewFileCache(dir)
}

// ownedRedisCache closes the client it was opened with.
type ownedRedisCache struct {
	*cache.RedisCache
	client *redis.Client
}

func (c *ownedRedisCache) Close() error { return c.client.Close() }

// pipelineOptions returns the pipeline options derived from the
// configuration.
func (c *CLI) pipelineOptions() pipeline.Options {
	r := c.Config.Render
	return pipeline.Options{
		Layout:   c.Config.Layout,
		Renderer: r.Renderer,
		Style:    r.Style,
		Scale:    r.Scale,
		Formats:  append([]string(nil), r.Formats...),
		Logger:   c.Logger,
	}
}

// =============================================================================
// Options Helpers
// =============================================================================

// parseFormats parses a comma-separated format string into a slice. An
// empty string yields nil so the configured formats apply.
func parseFormats(s string) []string {
	if strings.TrimSpace(s) == "" {
		return nil
	}
	parts := strings.Split(s, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		if p = strings.ToLower(strings.TrimSpace(p)); p != "" {
			out = append(out, p)
		}
	}
	return out
}
