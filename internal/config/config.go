// Package config loads and validates the application configuration. All
// numeric knobs of the orchestration loop are tunable here; nothing in the
// agent packages hardcodes a threshold.
package config

import (
	"fmt"
	"time"

	"github.com/spf13/viper"
)

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

// ModelProvider identifies a vision-model backend.
type ModelProvider string

const (
	ProviderOpenAI     ModelProvider = "openai"
	ProviderAnthropic  ModelProvider = "anthropic"
	ProviderOpenRouter ModelProvider = "openrouter"
)

// ModelConfig defines the configuration for the vision model.
type ModelConfig struct {
	Provider    ModelProvider `mapstructure:"provider" yaml:"provider"`
	Name        string        `mapstructure:"name" yaml:"name"`
	APIKey      string        `mapstructure:"api_key" yaml:"-"`
	BaseURL     string        `mapstructure:"base_url" yaml:"base_url"`
	APITimeout  time.Duration `mapstructure:"api_timeout" yaml:"api_timeout"`
	MaxTokens   int           `mapstructure:"max_tokens" yaml:"max_tokens"`
	Temperature float32       `mapstructure:"temperature" yaml:"temperature"`
	// RequestsPerMinute throttles provider calls; 0 disables the limiter.
	RequestsPerMinute float64                `mapstructure:"requests_per_minute" yaml:"requests_per_minute"`
	MaxInstructionLen int                    `mapstructure:"max_instruction_len" yaml:"max_instruction_len"`
	Parameters        map[string]interface{} `mapstructure:"parameters" yaml:"parameters"`
}

// OperatorType identifies a control surface implementation.
type OperatorType string

const (
	OperatorScreen  OperatorType = "screen"
	OperatorInput   OperatorType = "input"
	OperatorBrowser OperatorType = "browser"
)

// BrowserSettings configures the chromedp-backed browser operator.
type BrowserSettings struct {
	Headless          bool          `mapstructure:"headless" yaml:"headless"`
	ExecPath          string        `mapstructure:"exec_path" yaml:"exec_path"`
	UserAgent         string        `mapstructure:"user_agent" yaml:"user_agent"`
	NavigationTimeout time.Duration `mapstructure:"navigation_timeout" yaml:"navigation_timeout"`
	// WaitTimeout bounds selector waits; a stalled page must not hang the loop.
	WaitTimeout  time.Duration `mapstructure:"wait_timeout" yaml:"wait_timeout"`
	PostLoadWait time.Duration `mapstructure:"post_load_wait" yaml:"post_load_wait"`
	WindowWidth  int           `mapstructure:"window_width" yaml:"window_width"`
	WindowHeight int           `mapstructure:"window_height" yaml:"window_height"`
}

// InputSettings configures the desktop input operator.
type InputSettings struct {
	CommandTimeout         time.Duration `mapstructure:"command_timeout" yaml:"command_timeout"`
	DefaultScrollDirection string        `mapstructure:"default_scroll_direction" yaml:"default_scroll_direction"`
	DefaultScrollClicks    int           `mapstructure:"default_scroll_clicks" yaml:"default_scroll_clicks"`
	TypeDelay              time.Duration `mapstructure:"type_delay" yaml:"type_delay"`
}

// ScreenSettings configures the screen capture operator.
type ScreenSettings struct {
	CommandTimeout time.Duration `mapstructure:"command_timeout" yaml:"command_timeout"`
	Display        string        `mapstructure:"display" yaml:"display"`
}

// OperatorConfig selects and configures the control surfaces.
type OperatorConfig struct {
	Type    OperatorType    `mapstructure:"type" yaml:"type"`
	Browser BrowserSettings `mapstructure:"browser" yaml:"browser"`
	Input   InputSettings   `mapstructure:"input" yaml:"input"`
	Screen  ScreenSettings  `mapstructure:"screen" yaml:"screen"`
}

// AgentSettings holds the loop tuning knobs. Every threshold the loop
// consults lives here so tests and operators can override all of them.
type AgentSettings struct {
	MaxIterations  int           `mapstructure:"max_iterations" yaml:"max_iterations"`
	IterationDelay time.Duration `mapstructure:"iteration_delay" yaml:"iteration_delay"`
	AutoScreenshot bool          `mapstructure:"auto_screenshot" yaml:"auto_screenshot"`
	ConfirmActions bool          `mapstructure:"confirm_actions" yaml:"confirm_actions"`
	Language       string        `mapstructure:"language" yaml:"language"`

	// Continuation policy. The loop stops when the trailing success rate or
	// the model confidence drops below these floors.
	SuccessRateWindow      int     `mapstructure:"success_rate_window" yaml:"success_rate_window"`
	MinSuccessRate         float64 `mapstructure:"min_success_rate" yaml:"min_success_rate"`
	MinConfidence          float64 `mapstructure:"min_confidence" yaml:"min_confidence"`
	FailureStreakThreshold int     `mapstructure:"failure_streak_threshold" yaml:"failure_streak_threshold"`

	// SessionMaxAge bounds how long terminal sessions are retained.
	SessionMaxAge time.Duration `mapstructure:"session_max_age" yaml:"session_max_age"`
}

// AgentVariant selects the orchestrator implementation.
type AgentVariant string

const (
	VariantLocal   AgentVariant = "local"
	VariantBrowser AgentVariant = "browser"
	VariantHybrid  AgentVariant = "hybrid"
)

// AgentConfig is the full configuration surface for one agent instance.
type AgentConfig struct {
	ID       string         `mapstructure:"id" yaml:"id"`
	Name     string         `mapstructure:"name" yaml:"name"`
	Variant  AgentVariant   `mapstructure:"variant" yaml:"variant"`
	Model    ModelConfig    `mapstructure:"model" yaml:"model"`
	Operator OperatorConfig `mapstructure:"operator" yaml:"operator"`
	Settings AgentSettings  `mapstructure:"settings" yaml:"settings"`
}

// Config holds the entire application configuration.
type Config struct {
	Logger LoggerConfig `mapstructure:"logger" yaml:"logger"`
	Agent  AgentConfig  `mapstructure:"agent" yaml:"agent"`
}

// SetDefaults initializes default values for every configuration parameter.
func SetDefaults(v *viper.Viper) {
	// -- Logger --
	v.SetDefault("logger.level", "info")
	v.SetDefault("logger.format", "console")
	v.SetDefault("logger.add_source", false)
	v.SetDefault("logger.service_name", "robin")
	v.SetDefault("logger.log_file", "robin.log")
	v.SetDefault("logger.max_size", 100)
	v.SetDefault("logger.max_backups", 5)
	v.SetDefault("logger.max_age", 30)
	v.SetDefault("logger.compress", true)

	// -- Agent --
	v.SetDefault("agent.name", "robin")
	v.SetDefault("agent.variant", "hybrid")

	// -- Model --
	v.SetDefault("agent.model.provider", "openai")
	v.SetDefault("agent.model.name", "gpt-4o")
	v.SetDefault("agent.model.api_timeout", "30s")
	v.SetDefault("agent.model.max_tokens", 2048)
	v.SetDefault("agent.model.temperature", 0.2)
	v.SetDefault("agent.model.requests_per_minute", 30.0)
	v.SetDefault("agent.model.max_instruction_len", 4000)

	// -- Operator --
	v.SetDefault("agent.operator.type", "browser")
	v.SetDefault("agent.operator.browser.headless", true)
	v.SetDefault("agent.operator.browser.navigation_timeout", "90s")
	v.SetDefault("agent.operator.browser.wait_timeout", "30s")
	v.SetDefault("agent.operator.browser.post_load_wait", "1500ms")
	v.SetDefault("agent.operator.browser.window_width", 1440)
	v.SetDefault("agent.operator.browser.window_height", 900)
	v.SetDefault("agent.operator.input.command_timeout", "10s")
	v.SetDefault("agent.operator.input.default_scroll_direction", "down")
	v.SetDefault("agent.operator.input.default_scroll_clicks", 3)
	v.SetDefault("agent.operator.input.type_delay", "15ms")
	v.SetDefault("agent.operator.screen.command_timeout", "10s")

	// -- Loop settings --
	v.SetDefault("agent.settings.max_iterations", 25)
	v.SetDefault("agent.settings.iteration_delay", "750ms")
	v.SetDefault("agent.settings.auto_screenshot", true)
	v.SetDefault("agent.settings.confirm_actions", false)
	v.SetDefault("agent.settings.language", "en")
	v.SetDefault("agent.settings.success_rate_window", 5)
	v.SetDefault("agent.settings.min_success_rate", 0.35)
	v.SetDefault("agent.settings.min_confidence", 0.2)
	v.SetDefault("agent.settings.failure_streak_threshold", 4)
	v.SetDefault("agent.settings.session_max_age", "24h")
}

// NewDefaultConfig creates a configuration populated with defaults only.
func NewDefaultConfig() *Config {
	v := viper.New()
	SetDefaults(v)

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		// Cannot happen with defaults only.
		panic(fmt.Sprintf("failed to unmarshal default config: %v", err))
	}
	return &cfg
}

// NewConfigFromViper creates a configuration instance from a viper object,
// binding sensitive values from the environment.
func NewConfigFromViper(v *viper.Viper) (*Config, error) {
	v.BindEnv("agent.model.api_key", "ROBIN_MODEL_API_KEY")

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("error unmarshaling config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Validate rejects configurations the loop cannot run with.
func (c *Config) Validate() error {
	s := c.Agent.Settings
	if s.MaxIterations <= 0 {
		return fmt.Errorf("agent.settings.max_iterations must be positive, got %d", s.MaxIterations)
	}
	if s.SuccessRateWindow < 3 || s.SuccessRateWindow > 5 {
		return fmt.Errorf("agent.settings.success_rate_window must be within [3,5], got %d", s.SuccessRateWindow)
	}
	if s.MinSuccessRate < 0 || s.MinSuccessRate > 1 {
		return fmt.Errorf("agent.settings.min_success_rate must be within [0,1], got %f", s.MinSuccessRate)
	}
	if s.MinConfidence < 0 || s.MinConfidence > 1 {
		return fmt.Errorf("agent.settings.min_confidence must be within [0,1], got %f", s.MinConfidence)
	}
	switch c.Agent.Variant {
	case VariantLocal, VariantBrowser, VariantHybrid:
	default:
		return fmt.Errorf("unknown agent.variant: %q", c.Agent.Variant)
	}
	switch c.Agent.Model.Provider {
	case ProviderOpenAI, ProviderAnthropic, ProviderOpenRouter:
	default:
		return fmt.Errorf("unknown agent.model.provider: %q", c.Agent.Model.Provider)
	}
	return nil
}
