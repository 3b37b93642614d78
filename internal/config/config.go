// File: internal/config/config.go
package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/mitchellh/go-homedir"
	"github.com/spf13/viper"
)

// Interface defines the contract for accessing application configuration.
// This allows for dependency injection and mocking in tests.
type Interface interface {
	Logger() LoggerConfig
	Browser() BrowserConfig
	Agent() AgentConfig
	LLM() LLMConfig
	Database() DatabaseConfig
	Trace() TraceConfig
	Metrics() MetricsConfig

	SetBrowserHeadless(bool)
	SetAgentMaxSteps(int)
	SetLLMModel(string)
	SetLLMProvider(LLMProvider)
	SetLLMEndpoint(string)
	SetTraceEnabled(bool)
}

// Config holds the entire application configuration.
type Config struct {
	LoggerCfg   LoggerConfig   `mapstructure:"logger" yaml:"logger"`
	BrowserCfg  BrowserConfig  `mapstructure:"browser" yaml:"browser"`
	AgentCfg    AgentConfig    `mapstructure:"agent" yaml:"agent"`
	LLMCfg      LLMConfig      `mapstructure:"llm" yaml:"llm"`
	DatabaseCfg DatabaseConfig `mapstructure:"database" yaml:"database"`
	TraceCfg    TraceConfig    `mapstructure:"trace" yaml:"trace"`
	MetricsCfg  MetricsConfig  `mapstructure:"metrics" yaml:"metrics"`
}

var _ Interface = (*Config)(nil)

// --- Getters ---

func (c *Config) Logger() LoggerConfig     { return c.LoggerCfg }
func (c *Config) Browser() BrowserConfig   { return c.BrowserCfg }
func (c *Config) Agent() AgentConfig       { return c.AgentCfg }
func (c *Config) LLM() LLMConfig           { return c.LLMCfg }
func (c *Config) Database() DatabaseConfig { return c.DatabaseCfg }
func (c *Config) Trace() TraceConfig       { return c.TraceCfg }
func (c *Config) Metrics() MetricsConfig   { return c.MetricsCfg }

// --- Setters (CLI flag overrides) ---

func (c *Config) SetBrowserHeadless(b bool)    { c.BrowserCfg.Headless = b }
func (c *Config) SetAgentMaxSteps(n int)       { c.AgentCfg.MaxSteps = n }
func (c *Config) SetLLMModel(m string)         { c.LLMCfg.Model = m }
func (c *Config) SetLLMProvider(p LLMProvider) { c.LLMCfg.Provider = p }
func (c *Config) SetLLMEndpoint(e string)      { c.LLMCfg.Endpoint = e }
func (c *Config) SetTraceEnabled(b bool)       { c.TraceCfg.Enabled = b }

// LoggerConfig defines all the settings for the logging system.
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

// ColorConfig defines the color settings for different log levels.
type ColorConfig struct {
	Debug  string `mapstructure:"debug" yaml:"debug"`
	Info   string `mapstructure:"info" yaml:"info"`
	Warn   string `mapstructure:"warn" yaml:"warn"`
	Error  string `mapstructure:"error" yaml:"error"`
	DPanic string `mapstructure:"dpanic" yaml:"dpanic"`
	Panic  string `mapstructure:"panic" yaml:"panic"`
	Fatal  string `mapstructure:"fatal" yaml:"fatal"`
}

// BrowserConfig holds settings for the automation session.
type BrowserConfig struct {
	Headless          bool          `mapstructure:"headless" yaml:"headless"`
	ViewportWidth     int           `mapstructure:"viewport_width" yaml:"viewport_width"`
	ViewportHeight    int           `mapstructure:"viewport_height" yaml:"viewport_height"`
	UserAgent         string        `mapstructure:"user_agent" yaml:"user_agent"`
	LandingURL        string        `mapstructure:"landing_url" yaml:"landing_url"`
	ActionTimeout     time.Duration `mapstructure:"action_timeout" yaml:"action_timeout"`
	DragSteps         int           `mapstructure:"drag_steps" yaml:"drag_steps"`
	ScreenshotQuality int           `mapstructure:"screenshot_quality" yaml:"screenshot_quality"`
	// Args are extra Chrome flags, either "name" or "name=value".
	Args []string `mapstructure:"args" yaml:"args"`
	// Stealth hides automation markers and applies Languages and Timezone
	// to every page.
	Stealth   bool     `mapstructure:"stealth" yaml:"stealth"`
	Languages []string `mapstructure:"languages" yaml:"languages"`
	Timezone  string   `mapstructure:"timezone" yaml:"timezone"`
}

// AgentConfig holds settings for the perception-action loop.
type AgentConfig struct {
	MaxSteps        int           `mapstructure:"max_steps" yaml:"max_steps"`
	MaxHistory      int           `mapstructure:"max_history" yaml:"max_history"`
	KeepScreenshots int           `mapstructure:"keep_screenshots" yaml:"keep_screenshots"`
	StepInterval    time.Duration `mapstructure:"step_interval" yaml:"step_interval"`
	MaxWait         time.Duration `mapstructure:"max_wait" yaml:"max_wait"`
}

// LLMProvider defines the supported LLM providers.
type LLMProvider string

const (
	ProviderOllama LLMProvider = "ollama"
	ProviderGemini LLMProvider = "gemini"
)

// LLMConfig defines the vision model used to drive the browser.
type LLMConfig struct {
	Provider    LLMProvider   `mapstructure:"provider" yaml:"provider"`
	Model       string        `mapstructure:"model" yaml:"model"`
	APIKey      string        `mapstructure:"api_key" yaml:"api_key"`
	Endpoint    string        `mapstructure:"endpoint" yaml:"endpoint"`
	APITimeout  time.Duration `mapstructure:"api_timeout" yaml:"api_timeout"`
	Think       bool          `mapstructure:"think" yaml:"think"`
	Temperature float32       `mapstructure:"temperature" yaml:"temperature"`
	TopP        float32       `mapstructure:"top_p" yaml:"top_p"`
	TopK        int           `mapstructure:"top_k" yaml:"top_k"`
	MaxTokens   int           `mapstructure:"max_tokens" yaml:"max_tokens"`
}

// DatabaseConfig holds the optional run history database connection.
// An empty URL disables persistence.
type DatabaseConfig struct {
	URL string `mapstructure:"url" yaml:"url"`
}

// TraceConfig controls the compressed per-run step traces.
type TraceConfig struct {
	Enabled bool   `mapstructure:"enabled" yaml:"enabled"`
	Dir     string `mapstructure:"dir" yaml:"dir"`
}

// MetricsConfig controls the Prometheus endpoint. An empty Addr disables it.
type MetricsConfig struct {
	Addr string `mapstructure:"addr" yaml:"addr"`
}

// DefaultOllamaEndpoint is the address of a local Ollama server.
const DefaultOllamaEndpoint = "http://localhost:11434"

// DefaultUserAgent is the outbound identity string presented by the browser.
const DefaultUserAgent = "Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/120.0.0.0 Safari/537.36"

// NewDefaultConfig creates a new configuration struct populated with default values.
func NewDefaultConfig() *Config {
	v := viper.New()
	SetDefaults(v)

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		// Defaults are static; a failure here is a programming error.
		panic(fmt.Sprintf("failed to unmarshal default config: %v", err))
	}
	return &cfg
}

// SetDefaults initializes default values for all configuration parameters.
func SetDefaults(v *viper.Viper) {
	// -- Logger --
	v.SetDefault("logger.level", "info")
	v.SetDefault("logger.format", "console")
	v.SetDefault("logger.add_source", false)
	v.SetDefault("logger.service_name", "webpilot")
	v.SetDefault("logger.log_file", "webpilot.log")
	v.SetDefault("logger.max_size", 100)
	v.SetDefault("logger.max_backups", 5)
	v.SetDefault("logger.max_age", 30)
	v.SetDefault("logger.compress", true)
	v.SetDefault("logger.colors.debug", "cyan")
	v.SetDefault("logger.colors.info", "green")
	v.SetDefault("logger.colors.warn", "yellow")
	v.SetDefault("logger.colors.error", "red")
	v.SetDefault("logger.colors.dpanic", "magenta")
	v.SetDefault("logger.colors.panic", "magenta")
	v.SetDefault("logger.colors.fatal", "magenta")

	// -- Browser --
	v.SetDefault("browser.headless", false)
	v.SetDefault("browser.viewport_width", 1280)
	v.SetDefault("browser.viewport_height", 720)
	v.SetDefault("browser.user_agent", DefaultUserAgent)
	v.SetDefault("browser.landing_url", "https://www.google.com")
	v.SetDefault("browser.action_timeout", "30s")
	v.SetDefault("browser.drag_steps", 10)
	v.SetDefault("browser.screenshot_quality", 70)
	v.SetDefault("browser.stealth", true)
	v.SetDefault("browser.languages", []string{"en-US", "en"})

	// -- Agent --
	v.SetDefault("agent.max_steps", 50)
	v.SetDefault("agent.max_history", 20)
	v.SetDefault("agent.keep_screenshots", 3)
	v.SetDefault("agent.step_interval", "0s")
	v.SetDefault("agent.max_wait", "30s")

	// -- LLM --
	v.SetDefault("llm.provider", string(ProviderOllama))
	v.SetDefault("llm.model", "qwen3-vl:4b")
	v.SetDefault("llm.endpoint", DefaultOllamaEndpoint)
	v.SetDefault("llm.api_timeout", "5m")
	v.SetDefault("llm.think", true)
	v.SetDefault("llm.temperature", 1.0)
	v.SetDefault("llm.top_k", 20)
	v.SetDefault("llm.top_p", 0.95)
	v.SetDefault("llm.max_tokens", 0)

	// -- Persistence & telemetry --
	v.SetDefault("database.url", "")
	v.SetDefault("trace.enabled", true)
	v.SetDefault("trace.dir", "~/.webpilot/traces")
	v.SetDefault("metrics.addr", "")
}

// NewConfigFromViper creates a new configuration instance from a viper object.
func NewConfigFromViper(v *viper.Viper) (*Config, error) {
	var cfg Config

	// Secrets are usually provided through the environment.
	_ = v.BindEnv("llm.api_key", "WEBPILOT_LLM_API_KEY", "GEMINI_API_KEY")
	_ = v.BindEnv("database.url", "WEBPILOT_DATABASE_URL")

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

// expandPaths resolves a leading "~" in filesystem settings.
func (c *Config) expandPaths() error {
	dir, err := homedir.Expand(c.TraceCfg.Dir)
	if err != nil {
		return fmt.Errorf("failed to expand trace.dir %q: %w", c.TraceCfg.Dir, err)
	}
	c.TraceCfg.Dir = dir

	if c.LoggerCfg.LogFile != "" {
		logFile, err := homedir.Expand(c.LoggerCfg.LogFile)
		if err != nil {
			return fmt.Errorf("failed to expand logger.log_file %q: %w", c.LoggerCfg.LogFile, err)
		}
		c.LoggerCfg.LogFile = logFile
	}
	return nil
}

// Validate checks the configuration for required fields and sane values.
func (c *Config) Validate() error {
	if err := c.BrowserCfg.Validate(); err != nil {
		return fmt.Errorf("browser configuration invalid: %w", err)
	}
	if err := c.AgentCfg.Validate(); err != nil {
		return fmt.Errorf("agent configuration invalid: %w", err)
	}
	if err := c.LLMCfg.Validate(); err != nil {
		return fmt.Errorf("llm configuration invalid: %w", err)
	}
	if c.TraceCfg.Enabled && strings.TrimSpace(c.TraceCfg.Dir) == "" {
		return fmt.Errorf("trace.dir is required when trace.enabled is true")
	}
	return nil
}

// Validate checks the BrowserConfig settings.
func (b *BrowserConfig) Validate() error {
	if b.ViewportWidth <= 0 || b.ViewportHeight <= 0 {
		return fmt.Errorf("browser.viewport_width and browser.viewport_height must be positive integers")
	}
	if b.ScreenshotQuality < 1 || b.ScreenshotQuality > 100 {
		return fmt.Errorf("browser.screenshot_quality must be between 1 and 100")
	}
	if b.DragSteps <= 0 {
		return fmt.Errorf("browser.drag_steps must be a positive integer")
	}
	if b.ActionTimeout <= 0 {
		return fmt.Errorf("browser.action_timeout must be a positive duration")
	}
	return nil
}

// Validate checks the AgentConfig settings.
func (a *AgentConfig) Validate() error {
	if a.MaxSteps <= 0 {
		return fmt.Errorf("agent.max_steps must be a positive integer")
	}
	// System prompt plus the instruction are always kept.
	if a.MaxHistory < 2 {
		return fmt.Errorf("agent.max_history must be at least 2")
	}
	if a.KeepScreenshots < 1 {
		return fmt.Errorf("agent.keep_screenshots must be at least 1")
	}
	if a.StepInterval < 0 {
		return fmt.Errorf("agent.step_interval must not be negative")
	}
	if a.MaxWait <= 0 {
		return fmt.Errorf("agent.max_wait must be a positive duration")
	}
	return nil
}

// Validate checks the LLMConfig settings.
func (l *LLMConfig) Validate() error {
	switch l.Provider {
	case ProviderOllama:
		if l.Endpoint == "" {
			return fmt.Errorf("llm.endpoint is required for provider %q", l.Provider)
		}
	case ProviderGemini:
		if l.APIKey == "" {
			return fmt.Errorf("llm.api_key is required for provider %q. Set WEBPILOT_LLM_API_KEY or GEMINI_API_KEY", l.Provider)
		}
	default:
		return fmt.Errorf("unknown llm.provider %q. Supported: [%s, %s]", l.Provider, ProviderOllama, ProviderGemini)
	}
	if l.Model == "" {
		return fmt.Errorf("llm.model is required")
	}
	if l.APITimeout <= 0 {
		return fmt.Errorf("llm.api_timeout must be a positive duration")
	}
	return nil
}
