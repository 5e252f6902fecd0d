// File: internal/config/config.go
package config

import (
	"fmt"
	"time"

	homedir "github.com/mitchellh/go-homedir"
	"github.com/spf13/viper"
)

// Config holds the entire application configuration.
type Config struct {
	Logger    LoggerConfig             `mapstructure:"logger" yaml:"logger"`
	Browser   BrowserConfig            `mapstructure:"browser" yaml:"browser"`
	Portal    PortalConfig             `mapstructure:"portal" yaml:"portal"`
	Artifacts ArtifactsConfig          `mapstructure:"artifacts" yaml:"artifacts"`
	Journal   JournalConfig            `mapstructure:"journal" yaml:"journal"`
	Companies map[string]CompanyConfig `mapstructure:"companies" yaml:"companies"`
}

// LoggerConfig holds all the configuration for the logger.
type LoggerConfig struct {
	Level       string `mapstructure:"level" yaml:"level"`
	Format      string `mapstructure:"format" yaml:"format"`
	AddSource   bool   `mapstructure:"add_source" yaml:"add_source"`
	ServiceName string `mapstructure:"service_name" yaml:"service_name"`
	LogFile     string `mapstructure:"log_file" yaml:"log_file"`
	MaxSize     int    `mapstructure:"max_size" yaml:"max_size"`
	MaxBackups  int    `mapstructure:"max_backups" yaml:"max_backups"`
	MaxAge      int    `mapstructure:"max_age" yaml:"max_age"`
	Compress    bool   `mapstructure:"compress" yaml:"compress"`
}

// BrowserConfig holds settings for the browser instances driven over CDP.
type BrowserConfig struct {
	Headless bool          `mapstructure:"headless" yaml:"headless"`
	Args     []string      `mapstructure:"args" yaml:"args"`
	Profile  ProfileConfig `mapstructure:"profile" yaml:"profile"`
	Typing   TypingConfig  `mapstructure:"typing" yaml:"typing"`
}

// ProfileConfig pins the fingerprint every session presents to the portal.
// Automated and manual-fallback sessions share the same profile so the
// portal sees one consistent client.
type ProfileConfig struct {
	UserAgent      string `mapstructure:"user_agent" yaml:"user_agent"`
	Locale         string `mapstructure:"locale" yaml:"locale"`
	Timezone       string `mapstructure:"timezone" yaml:"timezone"`
	ViewportWidth  int    `mapstructure:"viewport_width" yaml:"viewport_width"`
	ViewportHeight int    `mapstructure:"viewport_height" yaml:"viewport_height"`
}

// TypingConfig bounds the per-keystroke delay used when filling credential
// fields.
type TypingConfig struct {
	DelayMinMs int `mapstructure:"delay_min_ms" yaml:"delay_min_ms"`
	DelayMaxMs int `mapstructure:"delay_max_ms" yaml:"delay_max_ms"`
}

// PortalConfig describes the customs portal's login surface: where it lives,
// which elements to touch, and how long each step may take.
type PortalConfig struct {
	LoginURL         string `mapstructure:"login_url" yaml:"login_url"`
	TriggerSelector  string `mapstructure:"trigger_selector" yaml:"trigger_selector"`
	UsernameSelector string `mapstructure:"username_selector" yaml:"username_selector"`
	PasswordSelector string `mapstructure:"password_selector" yaml:"password_selector"`
	FormSelector     string `mapstructure:"form_selector" yaml:"form_selector"`
	// FailureMarker is matched against the post-submit URL; a hit means the
	// portal rejected the credentials.
	FailureMarker string `mapstructure:"failure_marker" yaml:"failure_marker"`
	// DashboardIframe, when present in the popup, is accepted as proof the
	// dashboard rendered even if the overlay heuristics are inconclusive.
	DashboardIframe string `mapstructure:"dashboard_iframe" yaml:"dashboard_iframe"`

	PopupWait         time.Duration `mapstructure:"popup_wait" yaml:"popup_wait"`
	NavigationTimeout time.Duration `mapstructure:"navigation_timeout" yaml:"navigation_timeout"`
	DashboardTimeout  time.Duration `mapstructure:"dashboard_timeout" yaml:"dashboard_timeout"`
	ReadinessPoll     time.Duration `mapstructure:"readiness_poll" yaml:"readiness_poll"`
	NetworkQuiet      time.Duration `mapstructure:"network_quiet" yaml:"network_quiet"`
	// AttemptInterval spaces login attempts across all concurrent sessions.
	// The portal locks accounts on rapid repeated submissions.
	AttemptInterval time.Duration `mapstructure:"attempt_interval" yaml:"attempt_interval"`
}

// ArtifactsConfig controls where diagnostic artifacts are written.
type ArtifactsConfig struct {
	Dir string `mapstructure:"dir" yaml:"dir"`
}

// JournalConfig configures the optional Postgres attempt journal. An empty
// DSN disables it.
type JournalConfig struct {
	DSN string `mapstructure:"dsn" yaml:"dsn"`
}

// SetDefaults initializes default values for various configuration parameters.
func SetDefaults(v *viper.Viper) {
	// -- Logger --
	v.SetDefault("logger.level", "info")
	v.SetDefault("logger.format", "console")
	v.SetDefault("logger.add_source", false)
	v.SetDefault("logger.service_name", "aduanet-cli")
	v.SetDefault("logger.log_file", "aduanet.log")
	v.SetDefault("logger.max_size", 100)
	v.SetDefault("logger.max_backups", 5)
	v.SetDefault("logger.max_age", 30)
	v.SetDefault("logger.compress", true)

	// -- Browser --
	v.SetDefault("browser.headless", true)
	v.SetDefault("browser.profile.user_agent",
		"Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/126.0.0.0 Safari/537.36")
	v.SetDefault("browser.profile.locale", "ro-RO")
	v.SetDefault("browser.profile.timezone", "Europe/Bucharest")
	v.SetDefault("browser.profile.viewport_width", 1366)
	v.SetDefault("browser.profile.viewport_height", 768)
	v.SetDefault("browser.typing.delay_min_ms", 45)
	v.SetDefault("browser.typing.delay_max_ms", 160)

	// -- Portal --
	v.SetDefault("portal.trigger_selector", "#loginBtn")
	v.SetDefault("portal.username_selector", "input[name='username']")
	v.SetDefault("portal.password_selector", "input[name='password']")
	v.SetDefault("portal.form_selector", "form")
	v.SetDefault("portal.failure_marker", "login_error")
	v.SetDefault("portal.popup_wait", "5s")
	v.SetDefault("portal.navigation_timeout", "30s")
	v.SetDefault("portal.dashboard_timeout", "10s")
	v.SetDefault("portal.readiness_poll", "250ms")
	v.SetDefault("portal.network_quiet", "1500ms")
	v.SetDefault("portal.attempt_interval", "10s")

	// -- Artifacts --
	v.SetDefault("artifacts.dir", "artifacts")
}

// NewDefaultConfig creates a configuration struct populated with defaults.
func NewDefaultConfig() *Config {
	v := viper.New()
	SetDefaults(v)

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		// Cannot happen with the static defaults above.
		panic(fmt.Sprintf("failed to unmarshal default config: %v", err))
	}
	return &cfg
}

// NewConfigFromViper creates a configuration instance from a viper object.
func NewConfigFromViper(v *viper.Viper) (*Config, error) {
	// Sensitive values come from the environment, never the config file.
	v.BindEnv("journal.dsn", "ADUANET_JOURNAL_DSN")

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("error unmarshaling config: %w", err)
	}

	if err := cfg.expandPaths(); err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	return &cfg, nil
}

// expandPaths resolves "~" in user-supplied paths.
func (c *Config) expandPaths() error {
	dir, err := homedir.Expand(c.Artifacts.Dir)
	if err != nil {
		return fmt.Errorf("cannot expand artifacts.dir: %w", err)
	}
	c.Artifacts.Dir = dir

	logFile, err := homedir.Expand(c.Logger.LogFile)
	if err != nil {
		return fmt.Errorf("cannot expand logger.log_file: %w", err)
	}
	c.Logger.LogFile = logFile
	return nil
}

// Validate checks the configuration for required fields and sane values.
func (c *Config) Validate() error {
	if c.Portal.LoginURL == "" {
		return &ConfigurationError{Key: "portal.login_url", Reason: "is required"}
	}
	if c.Portal.TriggerSelector == "" {
		return &ConfigurationError{Key: "portal.trigger_selector", Reason: "is required"}
	}
	if c.Browser.Typing.DelayMinMs < 0 || c.Browser.Typing.DelayMaxMs < c.Browser.Typing.DelayMinMs {
		return &ConfigurationError{Key: "browser.typing", Reason: "delay bounds must satisfy 0 <= min <= max"}
	}
	if c.Portal.PopupWait <= 0 || c.Portal.NavigationTimeout <= 0 || c.Portal.DashboardTimeout <= 0 {
		return &ConfigurationError{Key: "portal", Reason: "all step timeouts must be positive"}
	}
	if c.Portal.ReadinessPoll <= 0 {
		return &ConfigurationError{Key: "portal.readiness_poll", Reason: "must be a positive duration"}
	}
	if c.Portal.NetworkQuiet <= 0 {
		return &ConfigurationError{Key: "portal.network_quiet", Reason: "must be a positive duration"}
	}
	if c.Portal.AttemptInterval < 0 {
		return &ConfigurationError{Key: "portal.attempt_interval", Reason: "must not be negative"}
	}
	return nil
}
