// File: internal/config/config.go
package config

import (
	"fmt"
	"time"

	"github.com/spf13/viper"
)

// Interface defines the contract for accessing application configuration.
// This allows for dependency injection and mocking in tests.
type Interface interface {
	Logger() LoggerConfig
	Browser() BrowserConfig
	Engine() EngineConfig
	Humanoid() HumanoidConfig
	Store() StoreConfig
	Control() ControlConfig

	// Browser Setters
	SetBrowserHeadless(bool)
	SetBrowserRemoteURL(string)
	SetBrowserStartURL(string)

	// Store Setters
	SetStoreBackend(string)

	// Control Setters
	SetControlStdin(bool)
	SetControlFile(string)
}

// Config holds the entire application configuration.
type Config struct {
	LoggerCfg   LoggerConfig   `mapstructure:"logger" yaml:"logger"`
	BrowserCfg  BrowserConfig  `mapstructure:"browser" yaml:"browser"`
	EngineCfg   EngineConfig   `mapstructure:"engine" yaml:"engine"`
	HumanoidCfg HumanoidConfig `mapstructure:"humanoid" yaml:"humanoid"`
	StoreCfg    StoreConfig    `mapstructure:"store" yaml:"store"`
	ControlCfg  ControlConfig  `mapstructure:"control" yaml:"control"`
}

var _ Interface = (*Config)(nil)

// --- Interface Method Implementations (Getters) ---

func (c *Config) Logger() LoggerConfig     { return c.LoggerCfg }
func (c *Config) Browser() BrowserConfig   { return c.BrowserCfg }
func (c *Config) Engine() EngineConfig     { return c.EngineCfg }
func (c *Config) Humanoid() HumanoidConfig { return c.HumanoidCfg }
func (c *Config) Store() StoreConfig       { return c.StoreCfg }
func (c *Config) Control() ControlConfig   { return c.ControlCfg }

// --- Interface Method Implementations (Setters) ---

func (c *Config) SetBrowserHeadless(b bool)    { c.BrowserCfg.Headless = b }
func (c *Config) SetBrowserRemoteURL(u string) { c.BrowserCfg.RemoteURL = u }
func (c *Config) SetBrowserStartURL(u string)  { c.BrowserCfg.StartURL = u }
func (c *Config) SetStoreBackend(b string)     { c.StoreCfg.Backend = b }
func (c *Config) SetControlStdin(b bool)       { c.ControlCfg.Stdin = b }
func (c *Config) SetControlFile(p string)      { c.ControlCfg.File = p }

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

type ColorConfig struct {
	Debug  string `mapstructure:"debug" yaml:"debug"`
	Info   string `mapstructure:"info" yaml:"info"`
	Warn   string `mapstructure:"warn" yaml:"warn"`
	Error  string `mapstructure:"error" yaml:"error"`
	DPanic string `mapstructure:"dpanic" yaml:"dpanic"`
	Panic  string `mapstructure:"panic" yaml:"panic"`
	Fatal  string `mapstructure:"fatal" yaml:"fatal"`
}

// BrowserConfig selects the tab the automation drives. With RemoteURL set the
// process attaches to an already running Chrome (the one the applicant signed
// in with); otherwise it launches one.
type BrowserConfig struct {
	Headless          bool          `mapstructure:"headless" yaml:"headless"`
	RemoteURL         string        `mapstructure:"remote_url" yaml:"remote_url"`
	ExecPath          string        `mapstructure:"exec_path" yaml:"exec_path"`
	UserDataDir       string        `mapstructure:"user_data_dir" yaml:"user_data_dir"`
	Args              []string      `mapstructure:"args" yaml:"args"`
	StartURL          string        `mapstructure:"start_url" yaml:"start_url"`
	NavigationTimeout time.Duration `mapstructure:"navigation_timeout" yaml:"navigation_timeout"`
	Locale            string        `mapstructure:"locale" yaml:"locale"`
	Timezone          string        `mapstructure:"timezone" yaml:"timezone"`
}

// EngineConfig holds the driver and executor timing.
type EngineConfig struct {
	MaxRepeats         int           `mapstructure:"max_repeats" yaml:"max_repeats"`
	SettleDelay        time.Duration `mapstructure:"settle_delay" yaml:"settle_delay"`
	RetryDelay         time.Duration `mapstructure:"retry_delay" yaml:"retry_delay"`
	NavigationFallback time.Duration `mapstructure:"navigation_fallback" yaml:"navigation_fallback"`
	NavigationDebounce time.Duration `mapstructure:"navigation_debounce" yaml:"navigation_debounce"`
	ElementTimeout     time.Duration `mapstructure:"element_timeout" yaml:"element_timeout"`
	PollInterval       time.Duration `mapstructure:"poll_interval" yaml:"poll_interval"`
	TriggerBuffer      int           `mapstructure:"trigger_buffer" yaml:"trigger_buffer"`
}

// HumanoidConfig holds the pacing persona.
type HumanoidConfig struct {
	Enabled             bool          `mapstructure:"enabled" yaml:"enabled"`
	PauseMeanMs         float64       `mapstructure:"pause_mean_ms" yaml:"pause_mean_ms"`
	PauseStdDevMs       float64       `mapstructure:"pause_stddev_ms" yaml:"pause_stddev_ms"`
	MinInterval         time.Duration `mapstructure:"min_interval" yaml:"min_interval"`
	FatigueIncreaseRate float64       `mapstructure:"fatigue_increase_rate" yaml:"fatigue_increase_rate"`
	FatigueRecoveryRate float64       `mapstructure:"fatigue_recovery_rate" yaml:"fatigue_recovery_rate"`
	DriftAmplitude      float64       `mapstructure:"drift_amplitude" yaml:"drift_amplitude"`
}

// Session store backends.
const (
	StoreBrowser  = "browser"
	StoreMemory   = "memory"
	StorePostgres = "postgres"
)

type StoreConfig struct {
	Backend   string         `mapstructure:"backend" yaml:"backend"`
	KeyPrefix string         `mapstructure:"key_prefix" yaml:"key_prefix"`
	Postgres  PostgresConfig `mapstructure:"postgres" yaml:"postgres"`
}

type PostgresConfig struct {
	URL       string `mapstructure:"url" yaml:"url"`
	Table     string `mapstructure:"table" yaml:"table"`
	Namespace string `mapstructure:"namespace" yaml:"namespace"`
}

// ControlConfig lists the sources control commands are read from.
type ControlConfig struct {
	Stdin   bool   `mapstructure:"stdin" yaml:"stdin"`
	File    string `mapstructure:"file" yaml:"file"`
	Binding string `mapstructure:"binding" yaml:"binding"`
}

func NewDefaultConfig() *Config {
	v := viper.New()
	SetDefaults(v)

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		panic(fmt.Sprintf("failed to unmarshal default config: %v", err))
	}
	return &cfg
}

func SetDefaults(v *viper.Viper) {
	// -- Logger --
	v.SetDefault("logger.level", "info")
	v.SetDefault("logger.format", "console")
	v.SetDefault("logger.add_source", false)
	v.SetDefault("logger.service_name", "isde-autofill")
	v.SetDefault("logger.log_file", "isde-autofill.log")
	v.SetDefault("logger.max_size", 20)
	v.SetDefault("logger.max_backups", 5)
	v.SetDefault("logger.max_age", 30)
	v.SetDefault("logger.compress", true)

	// -- Browser --
	// A person signs in with DigiD, so the window is visible by default.
	v.SetDefault("browser.headless", false)
	v.SetDefault("browser.start_url", "https://mijn.rvo.nl/")
	v.SetDefault("browser.navigation_timeout", "90s")
	v.SetDefault("browser.locale", "nl-NL")
	v.SetDefault("browser.timezone", "Europe/Amsterdam")

	// -- Engine --
	v.SetDefault("engine.max_repeats", 4)
	v.SetDefault("engine.settle_delay", "1500ms")
	v.SetDefault("engine.retry_delay", "3s")
	v.SetDefault("engine.navigation_fallback", "10s")
	v.SetDefault("engine.navigation_debounce", "5s")
	v.SetDefault("engine.element_timeout", "10s")
	v.SetDefault("engine.poll_interval", "250ms")
	v.SetDefault("engine.trigger_buffer", 16)

	// -- Humanoid --
	v.SetDefault("humanoid.enabled", true)
	v.SetDefault("humanoid.pause_mean_ms", 350.0)
	v.SetDefault("humanoid.pause_stddev_ms", 120.0)
	v.SetDefault("humanoid.min_interval", "150ms")
	v.SetDefault("humanoid.fatigue_increase_rate", 0.01)
	v.SetDefault("humanoid.fatigue_recovery_rate", 0.05)
	v.SetDefault("humanoid.drift_amplitude", 0.25)

	// -- Store --
	v.SetDefault("store.backend", StoreBrowser)
	v.SetDefault("store.key_prefix", "isde_autofill_")
	v.SetDefault("store.postgres.table", "automation_sessions")
	v.SetDefault("store.postgres.namespace", "default")

	// -- Control --
	v.SetDefault("control.stdin", true)
	v.SetDefault("control.binding", "isdeAutofillControl")
}

// NewConfigFromViper creates a new configuration instance from a viper object.
func NewConfigFromViper(v *viper.Viper) (*Config, error) {
	var cfg Config

	// Bind environment variables for sensitive data
	_ = v.BindEnv("store.postgres.url", "ISDE_DATABASE_URL")

	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("error unmarshaling config: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	return &cfg, nil
}

// Validate checks the configuration for required fields and sane values.
func (c *Config) Validate() error {
	if err := c.EngineCfg.Validate(); err != nil {
		return err
	}
	if err := c.StoreCfg.Validate(); err != nil {
		return fmt.Errorf("store configuration invalid: %w", err)
	}
	if c.HumanoidCfg.Enabled && c.HumanoidCfg.PauseStdDevMs < 0 {
		return fmt.Errorf("humanoid.pause_stddev_ms cannot be negative")
	}
	return nil
}

// Validate checks the engine timing.
func (e *EngineConfig) Validate() error {
	if e.MaxRepeats <= 0 {
		return fmt.Errorf("engine.max_repeats must be a positive integer")
	}
	if e.PollInterval <= 0 {
		return fmt.Errorf("engine.poll_interval must be a positive duration")
	}
	if e.ElementTimeout <= e.PollInterval {
		return fmt.Errorf("engine.element_timeout must be longer than engine.poll_interval")
	}
	if e.SettleDelay < 0 || e.RetryDelay <= 0 || e.NavigationFallback <= 0 {
		return fmt.Errorf("engine.settle_delay, engine.retry_delay and engine.navigation_fallback must be positive")
	}
	return nil
}

// Validate checks the store backend selection.
func (s *StoreConfig) Validate() error {
	switch s.Backend {
	case StoreBrowser, StoreMemory:
		return nil
	case StorePostgres:
		if s.Postgres.URL == "" {
			return fmt.Errorf("store.postgres.url is required for the postgres backend")
		}
		return nil
	default:
		return fmt.Errorf("unknown store backend %q", s.Backend)
	}
}
