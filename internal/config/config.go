// Package config loads and validates storyteller configuration via Viper.
package config

import (
	"errors"
	"fmt"
	"regexp"
	"slices"
	"strings"
	"time"

	"github.com/spf13/viper"

	"github.com/JakeFAU/storyteller/pkg/storyteller"
)

// Handler names accepted in the handlers list.
const (
	HandlerJSON     = "json"
	HandlerTerminal = "terminal"
	HandlerLog      = "log"
	HandlerMetrics  = "metrics"
	HandlerPublish  = "publish"
	HandlerStore    = "store"
)

var knownHandlers = []string{
	HandlerJSON,
	HandlerTerminal,
	HandlerLog,
	HandlerMetrics,
	HandlerPublish,
	HandlerStore,
}

var tableName = regexp.MustCompile(`^[a-z_][a-z0-9_]*$`)

// Config captures all knobs of the storyteller binary loaded via Viper.
type Config struct {
	Logging  LoggingConfig  `mapstructure:"logging"`
	Game     GameConfig     `mapstructure:"game"`
	Reporter ReporterConfig `mapstructure:"reporter"`
	Handlers []string       `mapstructure:"handlers"`
	Publish  PublishConfig  `mapstructure:"publish"`
	Store    StoreConfig    `mapstructure:"store"`
	Metrics  MetricsConfig  `mapstructure:"metrics"`
	Server   ServerConfig   `mapstructure:"server"`
}

// ServerConfig controls the run history API served by the serve command.
type ServerConfig struct {
	Listen string `mapstructure:"listen"`
	APIKey string `mapstructure:"api_key"`
}

// MetricsConfig exposes Prometheus collectors over HTTP while a command runs.
type MetricsConfig struct {
	Listen string `mapstructure:"listen"`
}

// LoggingConfig toggles zap development features.
type LoggingConfig struct {
	Development bool   `mapstructure:"development"`
	Level       string `mapstructure:"level"`
}

// GameConfig drives the dice game producers.
type GameConfig struct {
	Rounds       int           `mapstructure:"rounds"`
	Players      int           `mapstructure:"players"`
	WinThreshold int           `mapstructure:"win_threshold"`
	Delay        time.Duration `mapstructure:"delay"`
	Seed         uint64        `mapstructure:"seed"`
}

// ReporterConfig selects the shutdown handshake.
type ReporterConfig struct {
	Mode            string        `mapstructure:"mode"`
	AckPolicy       string        `mapstructure:"ack_policy"`
	ShutdownTimeout time.Duration `mapstructure:"shutdown_timeout"`
}

// PublishConfig holds Pub/Sub settings for the publish handler.
type PublishConfig struct {
	ProjectID string        `mapstructure:"project_id"`
	Topic     string        `mapstructure:"topic"`
	Timeout   time.Duration `mapstructure:"timeout"`
}

// StoreConfig controls the Postgres event log.
type StoreConfig struct {
	DSN   string `mapstructure:"dsn"`
	Table string `mapstructure:"table"`
}

// Load builds a Config from disk/environment.
func Load(path string) (Config, error) {
	v := viper.New()
	v.SetEnvPrefix("STORYTELLER")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	setDefaults(v)

	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return Config{}, fmt.Errorf("read config: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return Config{}, fmt.Errorf("unmarshal config: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}

	return cfg, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("logging.development", true)
	v.SetDefault("logging.level", "")
	v.SetDefault("game.rounds", 100)
	v.SetDefault("game.players", 1)
	v.SetDefault("game.win_threshold", 3)
	v.SetDefault("game.delay", "0s")
	v.SetDefault("game.seed", 0)
	v.SetDefault("reporter.mode", string(storyteller.ModeFinalize))
	v.SetDefault("reporter.ack_policy", "tolerant")
	v.SetDefault("reporter.shutdown_timeout", "30s")
	v.SetDefault("handlers", []string{HandlerJSON})
	v.SetDefault("publish.project_id", "")
	v.SetDefault("publish.topic", "")
	v.SetDefault("publish.timeout", "10s")
	v.SetDefault("store.dsn", "")
	v.SetDefault("store.table", "story_events")
	v.SetDefault("metrics.listen", "")
	v.SetDefault("server.listen", ":8080")
	v.SetDefault("server.api_key", "")
}

// Validate enforces required values and reasonable limits.
func (c Config) Validate() error {
	if c.Game.Rounds <= 0 {
		return errors.New("game.rounds must be > 0")
	}
	if c.Game.Players <= 0 {
		return errors.New("game.players must be > 0")
	}
	if c.Game.WinThreshold < 1 || c.Game.WinThreshold > 6 {
		return errors.New("game.win_threshold must be between 1 and 6")
	}
	if c.Game.Delay < 0 {
		return errors.New("game.delay must be >= 0")
	}
	if _, err := storyteller.ParseMode(c.Reporter.Mode); err != nil {
		return fmt.Errorf("reporter.mode: %w", err)
	}
	if _, err := storyteller.ParseAckPolicy(c.Reporter.AckPolicy); err != nil {
		return fmt.Errorf("reporter.ack_policy: %w", err)
	}
	if c.Reporter.ShutdownTimeout <= 0 {
		return errors.New("reporter.shutdown_timeout must be > 0")
	}
	if len(c.Handlers) == 0 {
		return errors.New("handlers must name at least one handler")
	}
	for _, name := range c.Handlers {
		if !slices.Contains(knownHandlers, name) {
			return fmt.Errorf("handlers: unknown handler %q", name)
		}
	}
	if c.Enabled(HandlerPublish) && (c.Publish.ProjectID == "" || c.Publish.Topic == "") {
		return errors.New("publish.project_id and publish.topic must be set when the publish handler is enabled")
	}
	if c.Enabled(HandlerStore) {
		if c.Store.DSN == "" {
			return errors.New("store.dsn must be set when the store handler is enabled")
		}
		if !tableName.MatchString(c.Store.Table) {
			return fmt.Errorf("store.table %q is not a valid table name", c.Store.Table)
		}
	}
	return nil
}

// Enabled reports whether the named handler is configured.
func (c Config) Enabled(handler string) bool {
	return slices.Contains(c.Handlers, handler)
}

// Mode returns the parsed reporter mode. Call after Validate.
func (c Config) Mode() storyteller.Mode {
	mode, _ := storyteller.ParseMode(c.Reporter.Mode)
	return mode
}

// AckPolicy returns the parsed acknowledgment policy. Call after Validate.
func (c Config) AckPolicy() storyteller.AckPolicy {
	policy, _ := storyteller.ParseAckPolicy(c.Reporter.AckPolicy)
	return policy
}
