// ABOUTME: Configuration loading and parsing for switchboard
// ABOUTME: Supports YAML or TOML files with environment variable expansion and duration parsing

package config

import (
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"strings"
	"time"

	"github.com/BurntSushi/toml"
	"gopkg.in/yaml.v3"
)

// Defaults applied when the file leaves a field empty.
const (
	DefaultHTTPAddr          = "0.0.0.0:8080"
	DefaultHeartbeatInterval = 30 * time.Second
	DefaultMaxMessageLength  = 5000
	DefaultSendBuffer        = 64
	DefaultPollMaxWait       = 30 * time.Second
	DefaultPollWait          = 25 * time.Second
	DefaultPollCheckInterval = 2 * time.Second
	DefaultPollSessionIdle   = 5 * time.Minute
	DefaultAssistantModel    = "gpt-4o"
	DefaultSystemPrompt      = "You are a helpful customer service assistant."
	DefaultMaxTokens         = 2000
	DefaultTemperature       = 0.7
	DefaultHistoryTurns      = 10
	DefaultAssistantTimeout  = 60 * time.Second
	DefaultNotifyTimeout     = 30 * time.Second
	DefaultSubjectPrefix     = "[SUPPORT]"
	DefaultThreadModifier    = "#SB"
)

// Config represents the complete switchboard configuration
type Config struct {
	Server    ServerConfig    `yaml:"server" toml:"server"`
	Database  DatabaseConfig  `yaml:"database" toml:"database"`
	Auth      AuthConfig      `yaml:"auth" toml:"auth"`
	Realtime  RealtimeConfig  `yaml:"realtime" toml:"realtime"`
	Polling   PollingConfig   `yaml:"polling" toml:"polling"`
	Assistant AssistantConfig `yaml:"assistant" toml:"assistant"`
	Notify    NotifyConfig    `yaml:"notify" toml:"notify"`
	Logging   LoggingConfig   `yaml:"logging" toml:"logging"`
}

// ServerConfig holds server address configuration
type ServerConfig struct {
	HTTPAddr string `yaml:"http_addr" toml:"http_addr"`
	// AllowedOrigins restricts websocket upgrades. Empty allows any origin.
	AllowedOrigins []string `yaml:"allowed_origins" toml:"allowed_origins"`
}

// DatabaseConfig holds database configuration
type DatabaseConfig struct {
	Path string `yaml:"path" toml:"path"`
}

// AuthConfig holds authentication configuration.
// An empty JWTSecret disables token verification for representative joins.
type AuthConfig struct {
	JWTSecret string `yaml:"jwt_secret" toml:"jwt_secret"`
}

// RealtimeConfig holds persistent-channel settings
type RealtimeConfig struct {
	HeartbeatInterval time.Duration `yaml:"-" toml:"-"`
	MaxMessageLength  int           `yaml:"max_message_length" toml:"max_message_length"`
	SendBuffer        int           `yaml:"send_buffer" toml:"send_buffer"`

	HeartbeatIntervalRaw string `yaml:"heartbeat_interval" toml:"heartbeat_interval"`
}

// PollingConfig holds long-poll fallback settings
type PollingConfig struct {
	MaxWait       time.Duration `yaml:"-" toml:"-"`
	DefaultWait   time.Duration `yaml:"-" toml:"-"`
	CheckInterval time.Duration `yaml:"-" toml:"-"`
	SessionIdle   time.Duration `yaml:"-" toml:"-"`

	MaxWaitRaw       string `yaml:"max_wait" toml:"max_wait"`
	DefaultWaitRaw   string `yaml:"default_wait" toml:"default_wait"`
	CheckIntervalRaw string `yaml:"check_interval" toml:"check_interval"`
	SessionIdleRaw   string `yaml:"session_idle" toml:"session_idle"`
}

// AssistantConfig configures the language-generation backend
type AssistantConfig struct {
	BaseURL      string  `yaml:"base_url" toml:"base_url"`
	APIKey       string  `yaml:"api_key" toml:"api_key"`
	Model        string  `yaml:"model" toml:"model"`
	SystemPrompt string  `yaml:"system_prompt" toml:"system_prompt"`
	MaxTokens    int     `yaml:"max_tokens" toml:"max_tokens"`
	Temperature  float32 `yaml:"temperature" toml:"temperature"`
	HistoryTurns int     `yaml:"history_turns" toml:"history_turns"`
	// AutoHandoff enables escalation classification. Nil means enabled.
	AutoHandoff *bool         `yaml:"auto_handoff" toml:"auto_handoff"`
	Timeout     time.Duration `yaml:"-" toml:"-"`

	TimeoutRaw string `yaml:"timeout" toml:"timeout"`
}

// Enabled reports whether an API key is configured.
func (a AssistantConfig) Enabled() bool {
	return a.APIKey != ""
}

// HandoffEnabled reports whether classification runs before generation.
func (a AssistantConfig) HandoffEnabled() bool {
	return a.AutoHandoff == nil || *a.AutoHandoff
}

// NotifyConfig holds outbound notification channels
type NotifyConfig struct {
	Email  EmailConfig  `yaml:"email" toml:"email"`
	Slack  SlackConfig  `yaml:"slack" toml:"slack"`
	Matrix MatrixConfig `yaml:"matrix" toml:"matrix"`

	Timeout    time.Duration `yaml:"-" toml:"-"`
	TimeoutRaw string        `yaml:"timeout" toml:"timeout"`
}

// EmailConfig holds SMTP notification settings
type EmailConfig struct {
	Enabled         bool     `yaml:"enabled" toml:"enabled"`
	SMTPHost        string   `yaml:"smtp_host" toml:"smtp_host"`
	SMTPPort        int      `yaml:"smtp_port" toml:"smtp_port"`
	SMTPUser        string   `yaml:"smtp_user" toml:"smtp_user"`
	SMTPPassword    string   `yaml:"smtp_password" toml:"smtp_password"`
	FromEmail       string   `yaml:"from_email" toml:"from_email"`
	FromName        string   `yaml:"from_name" toml:"from_name"`
	Recipients      []string `yaml:"recipients" toml:"recipients"`
	SubjectPrefix   string   `yaml:"subject_prefix" toml:"subject_prefix"`
	ThreadModifier  string   `yaml:"thread_modifier" toml:"thread_modifier"`
	EnableThreading bool     `yaml:"enable_threading" toml:"enable_threading"`
	// AppURL is used to build conversation links in the message body
	AppURL string `yaml:"app_url" toml:"app_url"`
}

// SlackConfig holds Slack incoming-webhook settings
type SlackConfig struct {
	Enabled    bool   `yaml:"enabled" toml:"enabled"`
	WebhookURL string `yaml:"webhook_url" toml:"webhook_url"`
	Channel    string `yaml:"channel" toml:"channel"`
}

// MatrixConfig holds Matrix room notification settings
type MatrixConfig struct {
	Enabled     bool   `yaml:"enabled" toml:"enabled"`
	Homeserver  string `yaml:"homeserver" toml:"homeserver"`
	UserID      string `yaml:"user_id" toml:"user_id"`
	AccessToken string `yaml:"access_token" toml:"access_token"`
	RoomID      string `yaml:"room_id" toml:"room_id"`
}

// LoggingConfig holds logging configuration
type LoggingConfig struct {
	Level  string `yaml:"level" toml:"level"`
	Format string `yaml:"format" toml:"format"`
}

// Load reads a configuration file from the given path and returns a parsed Config.
// Files ending in .toml are decoded as TOML, everything else as YAML.
// Environment variables in the format ${VAR_NAME} are expanded.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading config file: %w", err)
	}

	expanded := expandEnvVars(string(data))

	var cfg Config
	if strings.EqualFold(filepath.Ext(path), ".toml") {
		if _, err := toml.Decode(expanded, &cfg); err != nil {
			return nil, fmt.Errorf("parsing config file: %w", err)
		}
	} else {
		if err := yaml.Unmarshal([]byte(expanded), &cfg); err != nil {
			return nil, fmt.Errorf("parsing config file: %w", err)
		}
	}

	if err := parseDurations(&cfg); err != nil {
		return nil, fmt.Errorf("parsing durations: %w", err)
	}

	cfg.applyDefaults()

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("validating config: %w", err)
	}

	return &cfg, nil
}

var envVarPattern = regexp.MustCompile(`\$\{([^}]+)\}`)

// expandEnvVars replaces ${VAR_NAME} patterns with the corresponding environment variable values.
// Unset variables expand to the empty string.
func expandEnvVars(s string) string {
	return envVarPattern.ReplaceAllStringFunc(s, func(match string) string {
		return os.Getenv(envVarPattern.FindStringSubmatch(match)[1])
	})
}

// Validate checks that all required configuration fields are present and valid.
// Returns an error describing the first validation failure encountered.
func (c *Config) Validate() error {
	if c.Server.HTTPAddr == "" {
		return fmt.Errorf("server.http_addr is required")
	}
	if c.Database.Path == "" {
		return fmt.Errorf("database.path is required")
	}
	if c.Realtime.MaxMessageLength < 1 {
		return fmt.Errorf("realtime.max_message_length must be positive")
	}
	if c.Polling.CheckInterval < time.Second || c.Polling.CheckInterval > 2*time.Second {
		return fmt.Errorf("polling.check_interval must be between 1s and 2s, got %s", c.Polling.CheckInterval)
	}
	if c.Polling.DefaultWait > c.Polling.MaxWait {
		return fmt.Errorf("polling.default_wait (%s) exceeds polling.max_wait (%s)", c.Polling.DefaultWait, c.Polling.MaxWait)
	}
	if c.Assistant.HistoryTurns < 1 {
		return fmt.Errorf("assistant.history_turns must be positive")
	}

	email := c.Notify.Email
	if email.Enabled {
		if email.SMTPHost == "" {
			return fmt.Errorf("notify.email.smtp_host is required when email is enabled")
		}
		if email.FromEmail == "" {
			return fmt.Errorf("notify.email.from_email is required when email is enabled")
		}
		if len(email.Recipients) == 0 {
			return fmt.Errorf("notify.email.recipients must not be empty when email is enabled")
		}
	}
	if c.Notify.Slack.Enabled && c.Notify.Slack.WebhookURL == "" {
		return fmt.Errorf("notify.slack.webhook_url is required when slack is enabled")
	}
	m := c.Notify.Matrix
	if m.Enabled && (m.Homeserver == "" || m.AccessToken == "" || m.RoomID == "") {
		return fmt.Errorf("notify.matrix requires homeserver, access_token and room_id when enabled")
	}

	return nil
}

func (c *Config) applyDefaults() {
	if c.Server.HTTPAddr == "" {
		c.Server.HTTPAddr = DefaultHTTPAddr
	}

	if c.Realtime.HeartbeatInterval == 0 {
		c.Realtime.HeartbeatInterval = DefaultHeartbeatInterval
	}
	if c.Realtime.MaxMessageLength == 0 {
		c.Realtime.MaxMessageLength = DefaultMaxMessageLength
	}
	if c.Realtime.SendBuffer == 0 {
		c.Realtime.SendBuffer = DefaultSendBuffer
	}

	if c.Polling.MaxWait == 0 {
		c.Polling.MaxWait = DefaultPollMaxWait
	}
	if c.Polling.DefaultWait == 0 {
		c.Polling.DefaultWait = min(DefaultPollWait, c.Polling.MaxWait)
	}
	if c.Polling.CheckInterval == 0 {
		c.Polling.CheckInterval = DefaultPollCheckInterval
	}
	if c.Polling.SessionIdle == 0 {
		c.Polling.SessionIdle = DefaultPollSessionIdle
	}

	a := &c.Assistant
	if a.Model == "" {
		a.Model = DefaultAssistantModel
	}
	if a.SystemPrompt == "" {
		a.SystemPrompt = DefaultSystemPrompt
	}
	if a.MaxTokens == 0 {
		a.MaxTokens = DefaultMaxTokens
	}
	if a.Temperature == 0 {
		a.Temperature = DefaultTemperature
	}
	if a.HistoryTurns == 0 {
		a.HistoryTurns = DefaultHistoryTurns
	}
	if a.Timeout == 0 {
		a.Timeout = DefaultAssistantTimeout
	}

	if c.Notify.Timeout == 0 {
		c.Notify.Timeout = DefaultNotifyTimeout
	}
	e := &c.Notify.Email
	if e.SMTPPort == 0 {
		e.SMTPPort = 587
	}
	if e.SubjectPrefix == "" {
		e.SubjectPrefix = DefaultSubjectPrefix
	}
	if e.ThreadModifier == "" {
		e.ThreadModifier = DefaultThreadModifier
	}
	if e.FromName == "" {
		e.FromName = "Support"
	}

	if c.Logging.Level == "" {
		c.Logging.Level = "info"
	}
	if c.Logging.Format == "" {
		c.Logging.Format = "text"
	}
}

// parseDurations converts the raw duration strings into time.Duration values
func parseDurations(cfg *Config) error {
	fields := []struct {
		name string
		raw  string
		dst  *time.Duration
	}{
		{"realtime.heartbeat_interval", cfg.Realtime.HeartbeatIntervalRaw, &cfg.Realtime.HeartbeatInterval},
		{"polling.max_wait", cfg.Polling.MaxWaitRaw, &cfg.Polling.MaxWait},
		{"polling.default_wait", cfg.Polling.DefaultWaitRaw, &cfg.Polling.DefaultWait},
		{"polling.check_interval", cfg.Polling.CheckIntervalRaw, &cfg.Polling.CheckInterval},
		{"polling.session_idle", cfg.Polling.SessionIdleRaw, &cfg.Polling.SessionIdle},
		{"assistant.timeout", cfg.Assistant.TimeoutRaw, &cfg.Assistant.Timeout},
		{"notify.timeout", cfg.Notify.TimeoutRaw, &cfg.Notify.Timeout},
	}

	for _, f := range fields {
		if f.raw == "" {
			continue
		}
		d, err := time.ParseDuration(f.raw)
		if err != nil {
			return fmt.Errorf("parsing %s %q: %w", f.name, f.raw, err)
		}
		if d < 0 {
			return fmt.Errorf("parsing %s %q: must not be negative", f.name, f.raw)
		}
		*f.dst = d
	}

	return nil
}

// DefaultPath returns the config path to use when none is given:
// $SWITCHBOARD_CONFIG, then $XDG_CONFIG_HOME/switchboard/config.yaml,
// then ~/.config/switchboard/config.yaml.
func DefaultPath() string {
	if p := os.Getenv("SWITCHBOARD_CONFIG"); p != "" {
		return p
	}
	if xdg := os.Getenv("XDG_CONFIG_HOME"); xdg != "" {
		return filepath.Join(xdg, "switchboard", "config.yaml")
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return "config.yaml"
	}
	return filepath.Join(home, ".config", "switchboard", "config.yaml")
}
