// Package config provides configuration management for the trading panel.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

// Config holds all application configuration.
type Config struct {
	Panel       PanelConfig     `mapstructure:"panel"`
	Broker      BrokerConfig    `mapstructure:"broker"`
	Security    SecurityConfig  `mapstructure:"security"`
	Logging     LoggingConfig   `mapstructure:"logging"`
	Telemetry   TelemetryConfig `mapstructure:"telemetry"`
	Credentials Credentials     `mapstructure:"-"` // Loaded separately
}

// PanelConfig holds interactive panel configuration.
type PanelConfig struct {
	DefaultEnvironment string `mapstructure:"default_environment"` // prod, uat
	OutputFormat       string `mapstructure:"output_format"`       // text, json, yaml
	ColorEnabled       bool   `mapstructure:"color_enabled"`
}

// BrokerConfig selects and configures the trading client.
type BrokerConfig struct {
	Mode      string                  `mapstructure:"mode"` // "neo", "paper"
	Timeout   time.Duration           `mapstructure:"timeout"`
	NeoFinKey string                  `mapstructure:"neo_fin_key"`
	Endpoints map[string]NeoEndpoints `mapstructure:"endpoints"`
	Paper     PaperConfig             `mapstructure:"paper"`
}

// NeoEndpoints holds the API locations for one environment.
type NeoEndpoints struct {
	LoginURL    string `mapstructure:"login_url"`
	ValidateURL string `mapstructure:"validate_url"`
	LogoutURL   string `mapstructure:"logout_url"`
	// BaseURL is used when the validate response carries no baseUrl.
	BaseURL         string `mapstructure:"base_url"`
	OrderPath       string `mapstructure:"order_path"`
	OrderReportPath string `mapstructure:"order_report_path"`
	PositionsPath   string `mapstructure:"positions_path"`
	HoldingsPath    string `mapstructure:"holdings_path"`
}

// PaperConfig configures the simulated broker.
type PaperConfig struct {
	ReferencePrice float64 `mapstructure:"reference_price"`
}

// SecurityConfig holds security-related configuration.
type SecurityConfig struct {
	ReadOnlyMode bool   `mapstructure:"read_only_mode"`
	AuditEnabled bool   `mapstructure:"audit_enabled"`
	AuditPath    string `mapstructure:"audit_path"`
}

// LoggingConfig holds logger configuration.
type LoggingConfig struct {
	Level      string `mapstructure:"level"`
	Console    bool   `mapstructure:"console"`
	File       bool   `mapstructure:"file"`
	FilePath   string `mapstructure:"file_path"`
	MaxSize    int    `mapstructure:"max_size"`
	MaxBackups int    `mapstructure:"max_backups"`
	MaxAge     int    `mapstructure:"max_age"`
}

// TelemetryConfig controls span export around trading client calls.
type TelemetryConfig struct {
	Enabled bool   `mapstructure:"enabled"`
	Path    string `mapstructure:"path"`
}

// Credentials holds API credentials.
type Credentials struct {
	Neo NeoCredentials `mapstructure:"neo"`
}

// NeoCredentials holds Kotak Neo credentials. Every field is optional;
// the panel prompts for whatever is missing.
type NeoCredentials struct {
	ConsumerKey  string `mapstructure:"consumer_key"`
	MobileNumber string `mapstructure:"mobile_number"`
	UCC          string `mapstructure:"ucc"`
	MPIN         string `mapstructure:"mpin"`
	TOTPSecret   string `mapstructure:"totp_secret"` // For generating TOTP codes
}

// Environment variable overrides.
const (
	EnvConsumerKey  = "NEO_CONSUMER_KEY"
	EnvMobileNumber = "NEO_MOBILE_NUMBER"
	EnvUCC          = "NEO_UCC"
	EnvMPIN         = "NEO_MPIN"
	EnvTOTPSecret   = "NEO_TOTP_SECRET"
	EnvEnvironment  = "NEO_ENVIRONMENT"
	EnvBrokerMode   = "NEO_BROKER_MODE"
)

// Default Neo API locations.
const (
	DefaultLoginURL        = "https://mis.kotaksecurities.com/login/1.0/tradeApiLogin"
	DefaultValidateURL     = "https://mis.kotaksecurities.com/login/1.0/tradeApiValidate"
	DefaultOrderPath       = "/quick/order/rule/ms/place"
	DefaultOrderReportPath = "/quick/user/orders"
	DefaultPositionsPath   = "/quick/user/positions"
	DefaultHoldingsPath    = "/portfolio/v1/holdings"
)

// DefaultConfigDir returns the default configuration directory.
func DefaultConfigDir() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return ".config/neo-trader"
	}
	return filepath.Join(home, ".config", "neo-trader")
}

// Load loads configuration from the specified directory.
// If configDir is empty, uses the default config directory. Missing files
// are created from templates and defaults apply.
func Load(configDir string) (*Config, error) {
	if configDir == "" {
		configDir = DefaultConfigDir()
	}

	// .env in the working directory feeds the environment overrides
	if _, err := os.Stat(".env"); err == nil {
		if err := godotenv.Load(".env"); err != nil {
			return nil, fmt.Errorf("loading .env: %w", err)
		}
	}

	cfg := &Config{}

	// Load main config
	if err := loadConfigFile(configDir, cfg); err != nil {
		return nil, fmt.Errorf("loading config.toml: %w", err)
	}

	// Load credentials
	if err := loadCredentials(configDir, &cfg.Credentials); err != nil {
		return nil, fmt.Errorf("loading credentials.toml: %w", err)
	}

	// Apply environment variable overrides
	applyEnvOverrides(cfg)

	// Validate configuration
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("validating config: %w", err)
	}

	return cfg, nil
}

// Default returns the configuration used when no file is present.
func Default() *Config {
	v := viper.New()
	setDefaults(v, DefaultConfigDir())
	cfg := &Config{}
	if err := v.Unmarshal(cfg); err != nil {
		panic(fmt.Sprintf("config defaults do not decode: %v", err))
	}
	return cfg
}

func setDefaults(v *viper.Viper, configDir string) {
	v.SetDefault("panel.default_environment", "prod")
	v.SetDefault("panel.output_format", "text")
	v.SetDefault("panel.color_enabled", true)

	v.SetDefault("broker.mode", "neo")
	v.SetDefault("broker.timeout", 30*time.Second)
	v.SetDefault("broker.neo_fin_key", "neotradeapi")
	for _, env := range []string{"prod", "uat"} {
		prefix := "broker.endpoints." + env + "."
		v.SetDefault(prefix+"login_url", DefaultLoginURL)
		v.SetDefault(prefix+"validate_url", DefaultValidateURL)
		v.SetDefault(prefix+"logout_url", "")
		v.SetDefault(prefix+"base_url", "")
		v.SetDefault(prefix+"order_path", DefaultOrderPath)
		v.SetDefault(prefix+"order_report_path", DefaultOrderReportPath)
		v.SetDefault(prefix+"positions_path", DefaultPositionsPath)
		v.SetDefault(prefix+"holdings_path", DefaultHoldingsPath)
	}
	v.SetDefault("broker.paper.reference_price", 100.0)

	v.SetDefault("security.read_only_mode", false)
	v.SetDefault("security.audit_enabled", false)
	v.SetDefault("security.audit_path", filepath.Join(configDir, "logs", "audit.log"))

	v.SetDefault("logging.level", "info")
	v.SetDefault("logging.console", false)
	v.SetDefault("logging.file", true)
	v.SetDefault("logging.file_path", filepath.Join(configDir, "logs", "neo.log"))
	v.SetDefault("logging.max_size", 100)
	v.SetDefault("logging.max_backups", 7)
	v.SetDefault("logging.max_age", 30)

	v.SetDefault("telemetry.enabled", false)
	v.SetDefault("telemetry.path", filepath.Join(configDir, "logs", "traces.jsonl"))
}

func loadConfigFile(configDir string, cfg *Config) error {
	v := viper.New()
	v.SetConfigName("config")
	v.SetConfigType("toml")
	v.AddConfigPath(configDir)
	setDefaults(v, configDir)

	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return err
		}
		// Config file not found, write a template and continue on defaults
		if err := createTemplateConfig(configDir); err != nil {
			return err
		}
	}

	return v.Unmarshal(cfg)
}

func loadCredentials(configDir string, creds *Credentials) error {
	v := viper.New()
	v.SetConfigName("credentials")
	v.SetConfigType("toml")
	v.AddConfigPath(configDir)

	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return err
		}
		return createTemplateCredentials(configDir)
	}

	return v.Unmarshal(creds)
}

func applyEnvOverrides(cfg *Config) {
	// Neo credentials
	if v := os.Getenv(EnvConsumerKey); v != "" {
		cfg.Credentials.Neo.ConsumerKey = v
	}
	if v := os.Getenv(EnvMobileNumber); v != "" {
		cfg.Credentials.Neo.MobileNumber = v
	}
	if v := os.Getenv(EnvUCC); v != "" {
		cfg.Credentials.Neo.UCC = v
	}
	if v := os.Getenv(EnvMPIN); v != "" {
		cfg.Credentials.Neo.MPIN = v
	}
	if v := os.Getenv(EnvTOTPSecret); v != "" {
		cfg.Credentials.Neo.TOTPSecret = v
	}

	// Panel and broker selection
	if v := os.Getenv(EnvEnvironment); v != "" {
		cfg.Panel.DefaultEnvironment = v
	}
	if v := os.Getenv(EnvBrokerMode); v != "" {
		cfg.Broker.Mode = v
	}
}

// Validate validates the configuration.
func (c *Config) Validate() error {
	switch strings.ToLower(c.Panel.DefaultEnvironment) {
	case "prod", "production", "uat":
	default:
		return fmt.Errorf("invalid default_environment: %s (must be 'prod' or 'uat')", c.Panel.DefaultEnvironment)
	}

	switch c.Panel.OutputFormat {
	case "", "text", "json", "yaml":
	default:
		return fmt.Errorf("invalid output_format: %s (must be 'text', 'json' or 'yaml')", c.Panel.OutputFormat)
	}

	switch c.Broker.Mode {
	case "neo", "paper":
	default:
		return fmt.Errorf("invalid broker mode: %s (must be 'neo' or 'paper')", c.Broker.Mode)
	}

	if c.Broker.Timeout <= 0 {
		return fmt.Errorf("broker timeout must be positive")
	}

	if c.Broker.Mode == "neo" {
		for _, env := range []string{"prod", "uat"} {
			ep, ok := c.Broker.Endpoints[env]
			if !ok || ep.LoginURL == "" || ep.ValidateURL == "" {
				return fmt.Errorf("broker.endpoints.%s needs login_url and validate_url", env)
			}
		}
	}

	if c.Broker.Paper.ReferencePrice < 0 {
		return fmt.Errorf("paper reference_price must be non-negative")
	}

	return nil
}

// IsPaperMode returns true if the simulated broker is selected.
func (c *Config) IsPaperMode() bool {
	return c.Broker.Mode == "paper"
}

// ConfigPath returns the path of the main config file in configDir.
func ConfigPath(configDir string) string {
	if configDir == "" {
		configDir = DefaultConfigDir()
	}
	return filepath.Join(configDir, "config.toml")
}

// CredentialsPath returns the path of the credentials file in configDir.
func CredentialsPath(configDir string) string {
	if configDir == "" {
		configDir = DefaultConfigDir()
	}
	return filepath.Join(configDir, "credentials.toml")
}
