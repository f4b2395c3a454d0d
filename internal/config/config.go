// File: internal/config/config.go
package config

import (
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Interface exposes read access to each configuration section. Components take
// the narrowest section they need rather than the whole tree.
type Interface interface {
	Logger() LoggerConfig
	Database() DatabaseConfig
	Server() ServerConfig
	Auth() AuthConfig
	Browser() BrowserConfig
	Resolver() ResolverConfig
	Executor() ExecutorConfig
	Turn() TurnConfig
	Pending() PendingConfig
	Intent() IntentConfig
}

// Config is the root configuration for the voicepilot engine.
type Config struct {
	LoggerCfg   LoggerConfig   `mapstructure:"logger" yaml:"logger"`
	DatabaseCfg DatabaseConfig `mapstructure:"database" yaml:"database"`
	ServerCfg   ServerConfig   `mapstructure:"server" yaml:"server"`
	AuthCfg     AuthConfig     `mapstructure:"auth" yaml:"auth"`
	BrowserCfg  BrowserConfig  `mapstructure:"browser" yaml:"browser"`
	ResolverCfg ResolverConfig `mapstructure:"resolver" yaml:"resolver"`
	ExecutorCfg ExecutorConfig `mapstructure:"executor" yaml:"executor"`
	TurnCfg     TurnConfig     `mapstructure:"turn" yaml:"turn"`
	PendingCfg  PendingConfig  `mapstructure:"pending" yaml:"pending"`
	IntentCfg   IntentConfig   `mapstructure:"intent" yaml:"intent"`
}

var _ Interface = (*Config)(nil)

func (c *Config) Logger() LoggerConfig     { return c.LoggerCfg }
func (c *Config) Database() DatabaseConfig { return c.DatabaseCfg }
func (c *Config) Server() ServerConfig     { return c.ServerCfg }
func (c *Config) Auth() AuthConfig         { return c.AuthCfg }
func (c *Config) Browser() BrowserConfig   { return c.BrowserCfg }
func (c *Config) Resolver() ResolverConfig { return c.ResolverCfg }
func (c *Config) Executor() ExecutorConfig { return c.ExecutorCfg }
func (c *Config) Turn() TurnConfig         { return c.TurnCfg }
func (c *Config) Pending() PendingConfig   { return c.PendingCfg }
func (c *Config) Intent() IntentConfig     { return c.IntentCfg }

// LoggerConfig holds all the configuration for the logger.
type LoggerConfig struct {
	Level       string      `mapstructure:"level" yaml:"level"`
	Format      string      `mapstructure:"format" yaml:"format"`
	AddSource   bool        `mapstructure:"add_source" yaml:"add_source"`
	ServiceName string      `mapstructure:"service_name" yaml:"service_name"`
	LogFile     string      `mapstructure:"log_file" yaml:"log_file"`
	MaxSize     int         `mapstructure:"max_size" yaml:"max_size"`
	MaxBackups  int         `mapstructure:"max_backups" yaml:"max_backups"`
	MaxAge      int         `mapstructure:"max_age" yaml:"max_age"`
	Compress    bool        `mapstructure:"compress" yaml:"compress"`
	Colors      ColorConfig `mapstructure:"colors" yaml:"colors"`
}

// ColorConfig names the terminal color used for each log level.
type ColorConfig struct {
	Debug string `mapstructure:"debug" yaml:"debug"`
	Info  string `mapstructure:"info" yaml:"info"`
	Warn  string `mapstructure:"warn" yaml:"warn"`
	Error string `mapstructure:"error" yaml:"error"`
	Fatal string `mapstructure:"fatal" yaml:"fatal"`
}

// DatabaseConfig holds the database connection details. An empty URL selects
// the in-memory pending-action store.
type DatabaseConfig struct {
	URL string `mapstructure:"url" yaml:"url"`
}

// ServerConfig configures the HTTP and WebSocket surface.
type ServerConfig struct {
	Addr            string        `mapstructure:"addr" yaml:"addr"`
	ReadTimeout     time.Duration `mapstructure:"read_timeout" yaml:"read_timeout"`
	WriteTimeout    time.Duration `mapstructure:"write_timeout" yaml:"write_timeout"`
	ShutdownTimeout time.Duration `mapstructure:"shutdown_timeout" yaml:"shutdown_timeout"`
	AllowedOrigins  []string      `mapstructure:"allowed_origins" yaml:"allowed_origins"`
}

// AuthConfig configures bearer token verification. With auth disabled every
// request is attributed to the "local" user.
type AuthConfig struct {
	Enabled   bool   `mapstructure:"enabled" yaml:"enabled"`
	JWTSecret string `mapstructure:"jwt_secret" yaml:"jwt_secret"`
	Issuer    string `mapstructure:"issuer" yaml:"issuer"`
}

// BrowserConfig selects and configures the page implementation driven by the
// executor. Mode "session" runs the in-process DOM session; "remote" drives a
// Chrome tab over the DevTools protocol.
type BrowserConfig struct {
	Mode              string        `mapstructure:"mode" yaml:"mode"`
	BaseURL           string        `mapstructure:"base_url" yaml:"base_url"`
	StaticDir         string        `mapstructure:"static_dir" yaml:"static_dir"`
	StartRoute        string        `mapstructure:"start_route" yaml:"start_route"`
	Headless          bool          `mapstructure:"headless" yaml:"headless"`
	NavigationTimeout time.Duration `mapstructure:"navigation_timeout" yaml:"navigation_timeout"`
}

// ResolverConfig tunes element resolution.
type ResolverConfig struct {
	FuzzyThreshold float64 `mapstructure:"fuzzy_threshold" yaml:"fuzzy_threshold"`
}

// ExecutorConfig tunes action execution.
type ExecutorConfig struct {
	ClickSpacing     time.Duration `mapstructure:"click_spacing" yaml:"click_spacing"`
	StabilityQuiet   time.Duration `mapstructure:"stability_quiet" yaml:"stability_quiet"`
	StabilityMaxWait time.Duration `mapstructure:"stability_max_wait" yaml:"stability_max_wait"`
	ActionTimeout    time.Duration `mapstructure:"action_timeout" yaml:"action_timeout"`
}

// TurnConfig holds the conversational timing values.
type TurnConfig struct {
	Debounce          time.Duration `mapstructure:"debounce" yaml:"debounce"`
	Freshness         time.Duration `mapstructure:"freshness" yaml:"freshness"`
	EchoWindow        time.Duration `mapstructure:"echo_window" yaml:"echo_window"`
	DispatchTimeout   time.Duration `mapstructure:"dispatch_timeout" yaml:"dispatch_timeout"`
	WordsPerMinute    int           `mapstructure:"words_per_minute" yaml:"words_per_minute"`
	MinSpeechDuration time.Duration `mapstructure:"min_speech_duration" yaml:"min_speech_duration"`
	NoisePhrases      []string      `mapstructure:"noise_phrases" yaml:"noise_phrases"`
}

// PendingConfig configures the cross-navigation action queue.
type PendingConfig struct {
	TTL              time.Duration `mapstructure:"ttl" yaml:"ttl"`
	NotifySuperseded bool          `mapstructure:"notify_superseded" yaml:"notify_superseded"`
}

// IntentConfig points at the conversational backend that turns transcripts
// into actions.
type IntentConfig struct {
	Endpoint       string        `mapstructure:"endpoint" yaml:"endpoint"`
	Timeout        time.Duration `mapstructure:"timeout" yaml:"timeout"`
	MaxRetries     int           `mapstructure:"max_retries" yaml:"max_retries"`
	InitialBackoff time.Duration `mapstructure:"initial_backoff" yaml:"initial_backoff"`
}

// NewDefaultConfig creates a configuration populated only with defaults.
func NewDefaultConfig() *Config {
	v := viper.New()
	SetDefaults(v)

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		// Defaults are static, so this only trips on a programming error.
		panic(fmt.Sprintf("failed to unmarshal default config: %v", err))
	}
	return &cfg
}

// SetDefaults registers default values for every configuration key.
func SetDefaults(v *viper.Viper) {
	// -- Logger --
	v.SetDefault("logger.level", "info")
	v.SetDefault("logger.format", "console")
	v.SetDefault("logger.add_source", false)
	v.SetDefault("logger.service_name", "voicepilot")
	v.SetDefault("logger.log_file", "")
	v.SetDefault("logger.max_size", 100)
	v.SetDefault("logger.max_backups", 5)
	v.SetDefault("logger.max_age", 30)
	v.SetDefault("logger.compress", true)
	v.SetDefault("logger.colors.debug", "cyan")
	v.SetDefault("logger.colors.info", "green")
	v.SetDefault("logger.colors.warn", "yellow")
	v.SetDefault("logger.colors.error", "red")
	v.SetDefault("logger.colors.fatal", "magenta")

	// -- Server --
	v.SetDefault("server.addr", ":8088")
	v.SetDefault("server.read_timeout", "15s")
	v.SetDefault("server.write_timeout", "15s")
	v.SetDefault("server.shutdown_timeout", "10s")
	v.SetDefault("server.allowed_origins", []string{})

	// -- Auth --
	v.SetDefault("auth.enabled", false)
	v.SetDefault("auth.issuer", "voicepilot")

	// -- Browser --
	v.SetDefault("browser.mode", "session")
	v.SetDefault("browser.start_route", "/")
	v.SetDefault("browser.headless", true)
	v.SetDefault("browser.navigation_timeout", "30s")

	// -- Resolver --
	v.SetDefault("resolver.fuzzy_threshold", 0.5)

	// -- Executor --
	v.SetDefault("executor.click_spacing", "500ms")
	v.SetDefault("executor.stability_quiet", "300ms")
	v.SetDefault("executor.stability_max_wait", "5s")
	v.SetDefault("executor.action_timeout", "10s")

	// -- Turn --
	v.SetDefault("turn.debounce", "500ms")
	v.SetDefault("turn.freshness", "3s")
	v.SetDefault("turn.echo_window", "10s")
	v.SetDefault("turn.dispatch_timeout", "20s")
	v.SetDefault("turn.words_per_minute", 150)
	v.SetDefault("turn.min_speech_duration", "1s")
	v.SetDefault("turn.noise_phrases", []string{"i can't help with that", "i cannot help with that"})

	// -- Pending --
	v.SetDefault("pending.ttl", "60s")
	v.SetDefault("pending.notify_superseded", false)

	// -- Intent --
	v.SetDefault("intent.timeout", "15s")
	v.SetDefault("intent.max_retries", 3)
	v.SetDefault("intent.initial_backoff", "200ms")
}

// NewConfigFromViper unmarshals and validates configuration from a viper
// instance that already has defaults, files and env bindings applied.
func NewConfigFromViper(v *viper.Viper) (*Config, error) {
	var cfg Config

	// Secrets come from the environment rather than the config file.
	_ = v.BindEnv("auth.jwt_secret", "VOICEPILOT_JWT_SECRET")
	_ = v.BindEnv("database.url", "VOICEPILOT_DATABASE_URL")

	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("error unmarshaling config: %w", err)
	}
	if cfg.AuthCfg.Enabled && cfg.AuthCfg.JWTSecret == "" {
		cfg.AuthCfg.JWTSecret = os.Getenv("VOICEPILOT_JWT_SECRET")
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	return &cfg, nil
}

// Validate checks the configuration for required fields and sane values.
func (c *Config) Validate() error {
	if c.AuthCfg.Enabled && c.AuthCfg.JWTSecret == "" {
		return fmt.Errorf("auth.jwt_secret is required when auth is enabled")
	}
	if err := c.BrowserCfg.Validate(); err != nil {
		return fmt.Errorf("browser configuration invalid: %w", err)
	}
	if t := c.ResolverCfg.FuzzyThreshold; t <= 0 || t > 1 {
		return fmt.Errorf("resolver.fuzzy_threshold must be in (0, 1], got %v", t)
	}
	if c.ExecutorCfg.ClickSpacing < 0 {
		return fmt.Errorf("executor.click_spacing must not be negative")
	}
	if c.ExecutorCfg.StabilityQuiet <= 0 || c.ExecutorCfg.StabilityMaxWait < c.ExecutorCfg.StabilityQuiet {
		return fmt.Errorf("executor.stability_max_wait must be at least executor.stability_quiet, and both positive")
	}
	if err := c.TurnCfg.Validate(); err != nil {
		return fmt.Errorf("turn configuration invalid: %w", err)
	}
	if c.PendingCfg.TTL < 0 {
		return fmt.Errorf("pending.ttl must not be negative")
	}
	if c.IntentCfg.MaxRetries < 0 {
		return fmt.Errorf("intent.max_retries must not be negative")
	}
	return nil
}

// Validate checks the browser section.
func (b *BrowserConfig) Validate() error {
	switch strings.ToLower(b.Mode) {
	case "session":
	case "remote":
		if b.BaseURL == "" {
			return fmt.Errorf("base_url is required in remote mode")
		}
	default:
		return fmt.Errorf("unknown mode %q (want session or remote)", b.Mode)
	}
	return nil
}

// Validate checks the turn timing values.
func (t *TurnConfig) Validate() error {
	if t.Debounce <= 0 {
		return fmt.Errorf("debounce must be positive")
	}
	if t.Freshness < t.Debounce {
		return fmt.Errorf("freshness (%s) must not be shorter than debounce (%s)", t.Freshness, t.Debounce)
	}
	if t.EchoWindow <= 0 {
		return fmt.Errorf("echo_window must be positive")
	}
	if t.WordsPerMinute <= 0 {
		return fmt.Errorf("words_per_minute must be a positive integer")
	}
	return nil
}
