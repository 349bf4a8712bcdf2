// Package cli provides the command-line interface and interactive panel.
package cli

import (
	"context"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/rs/zerolog"
	"github.com/spf13/cobra"

	"neo-trader/internal/broker"
	"neo-trader/internal/config"
	"neo-trader/internal/logging"
	"neo-trader/internal/security"
	"neo-trader/internal/session"
	"neo-trader/internal/store"
	"neo-trader/internal/telemetry"
)

// Version information
const (
	Version   = "0.1.0"
	BuildDate = "2024-01-01"
)

// App holds the application dependencies.
type App struct {
	Config     *config.Config
	ConfigDir  string
	Logger     zerolog.Logger
	Controller *session.Controller
	Journal    store.Journal
	Access     *security.AccessController
	Audit      *security.AuditLogger
	Tracer     *telemetry.Tracer
}

// NewApp wires the trading client factory, journal, audit log and tracer
// into a session controller. Close releases them.
func NewApp(cfg *config.Config, configDir string, logger zerolog.Logger) (*App, error) {
	app := &App{
		Config:    cfg,
		ConfigDir: configDir,
		Logger:    logger,
		Tracer:    telemetry.Noop(),
	}

	factory, err := broker.NewFactory(cfg, logger)
	if err != nil {
		return nil, err
	}

	journal, err := store.NewSQLiteJournal()
	if err != nil {
		logger.Warn().Err(err).Msg("Failed to initialize journal, history will be unavailable")
	} else {
		app.Journal = journal
		logger.Debug().Msg("In-memory journal initialized")
	}

	if cfg.Security.AuditEnabled {
		auditCfg := security.DefaultAuditConfig()
		if cfg.Security.AuditPath != "" {
			auditCfg.Path = cfg.Security.AuditPath
		}
		audit, err := security.NewAuditLogger(auditCfg)
		if err != nil {
			logger.Warn().Err(err).Msg("Failed to initialize audit log")
		} else {
			app.Audit = audit
			logger.Debug().Str("session_id", audit.SessionID()).Msg("Audit log initialized")
		}
	}

	if cfg.Telemetry.Enabled {
		tracer, err := telemetry.New(telemetry.Config{
			Enabled: true,
			Path:    cfg.Telemetry.Path,
			Version: Version,
		})
		if err != nil {
			logger.Warn().Err(err).Msg("Failed to initialize tracing")
		} else {
			app.Tracer = tracer
		}
	}

	app.Access = security.NewAccessController(cfg.Security.ReadOnlyMode, app.Audit)

	opts := session.Options{
		Logger: logger,
		Tracer: app.Tracer,
		Audit:  app.Audit,
		Access: app.Access,
	}
	if app.Journal != nil {
		opts.Recorder = app.Journal
	}
	app.Controller = session.NewController(factory, opts)

	return app, nil
}

// Close flushes and releases the app's resources.
func (a *App) Close(ctx context.Context) error {
	var errs []string
	if a.Journal != nil {
		if err := a.Journal.Close(); err != nil {
			errs = append(errs, fmt.Sprintf("journal: %v", err))
		}
	}
	if a.Audit != nil {
		if err := a.Audit.Close(); err != nil {
			errs = append(errs, fmt.Sprintf("audit: %v", err))
		}
	}
	if a.Tracer != nil {
		if err := a.Tracer.Shutdown(ctx); err != nil {
			errs = append(errs, fmt.Sprintf("tracer: %v", err))
		}
	}
	if len(errs) > 0 {
		return fmt.Errorf("closing app: %s", strings.Join(errs, "; "))
	}
	return nil
}

// NewRootCmd creates the root command for the CLI. Without a subcommand it
// starts the interactive panel.
func NewRootCmd(app *App) *cobra.Command {
	rootCmd := &cobra.Command{
		Use:   "neo",
		Short: "Kotak Neo trade API session panel",
		Long: `neo is an interactive panel over the Kotak Neo trade API.

It keeps one session per environment (prod, uat) and walks each through
client creation, TOTP login with MPIN validation, order entry, reports and
logout. Broker responses are shown as returned.

Run 'neo' or 'neo panel' to start the panel, then type 'help'.`,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			debug, _ := cmd.Flags().GetBool("debug")
			if debug {
				logging.SetDebugLevel()
				app.Logger = app.Logger.Level(zerolog.DebugLevel)
			}
			readOnly, _ := cmd.Flags().GetBool("read-only")
			if readOnly && app.Access != nil {
				app.Access.SetReadOnly(true)
			}
			return nil
		},
		RunE: func(cmd *cobra.Command, args []string) error {
			return runPanel(cmd, app)
		},
	}

	rootCmd.PersistentFlags().Bool("debug", false, "enable debug logging")
	rootCmd.PersistentFlags().String("format", "", "output format: text, json or yaml (default: panel.output_format)")
	rootCmd.PersistentFlags().String("env", "", "initial environment: prod or uat (default: panel.default_environment)")
	rootCmd.PersistentFlags().Bool("read-only", false, "block order placement for this run")

	rootCmd.AddCommand(newVersionCmd(app))
	rootCmd.AddCommand(newConfigCmd(app))
	rootCmd.AddCommand(newPanelCmd(app))

	return rootCmd
}

func newPanelCmd(app *App) *cobra.Command {
	return &cobra.Command{
		Use:   "panel",
		Short: "Start the interactive session panel",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runPanel(cmd, app)
		},
	}
}

func runPanel(cmd *cobra.Command, app *App) error {
	format := outputFormat(cmd, app.Config)
	panel, err := NewPanel(app, cmd.InOrStdin(), cmd.OutOrStdout(), PanelOptions{
		Format:      format,
		Environment: flagString(cmd, "env"),
	})
	if err != nil {
		return err
	}
	return panel.Run(cmd.Context())
}

// outputFormat resolves --format against the configured default.
func outputFormat(cmd *cobra.Command, cfg *config.Config) string {
	if f := flagString(cmd, "format"); f != "" {
		return strings.ToLower(f)
	}
	return cfg.Panel.OutputFormat
}

func flagString(cmd *cobra.Command, name string) string {
	v, _ := cmd.Flags().GetString(name)
	return strings.TrimSpace(v)
}

// colorEnabled reports whether styled output should be used.
func colorEnabled(cfg *config.Config) bool {
	if !cfg.Panel.ColorEnabled {
		return false
	}
	if _, ok := os.LookupEnv("NO_COLOR"); ok {
		return false
	}
	return true
}

func newVersionCmd(app *App) *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print version information",
		RunE: func(cmd *cobra.Command, args []string) error {
			output := NewOutput(cmd.OutOrStdout(), outputFormat(cmd, app.Config), colorEnabled(app.Config))
			if output.IsStructured() {
				return output.Structured(map[string]string{
					"version":    Version,
					"build_date": BuildDate,
				})
			}
			output.Printf("neo-trader v%s\n", Version)
			output.Dim("Build date: %s", BuildDate)
			return nil
		},
	}
}

func newConfigCmd(app *App) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "config",
		Short: "Configuration management",
		Long:  "View and validate application configuration.",
	}

	cmd.AddCommand(&cobra.Command{
		Use:   "show",
		Short: "Show current configuration (credentials masked)",
		RunE: func(cmd *cobra.Command, args []string) error {
			output := NewOutput(cmd.OutOrStdout(), outputFormat(cmd, app.Config), colorEnabled(app.Config))
			view := newConfigView(app.Config)
			if output.IsStructured() {
				return output.Structured(view)
			}
			showConfig(output, view)
			return nil
		},
	})

	cmd.AddCommand(&cobra.Command{
		Use:   "path",
		Short: "Show configuration directory path",
		RunE: func(cmd *cobra.Command, args []string) error {
			output := NewOutput(cmd.OutOrStdout(), outputFormat(cmd, app.Config), colorEnabled(app.Config))
			if output.IsStructured() {
				return output.Structured(map[string]string{
					"path":        app.ConfigDir,
					"config":      config.ConfigPath(app.ConfigDir),
					"credentials": config.CredentialsPath(app.ConfigDir),
				})
			}
			output.Println(app.ConfigDir)
			return nil
		},
	})

	cmd.AddCommand(&cobra.Command{
		Use:   "validate",
		Short: "Validate configuration",
		RunE: func(cmd *cobra.Command, args []string) error {
			output := NewOutput(cmd.OutOrStdout(), outputFormat(cmd, app.Config), colorEnabled(app.Config))
			if err := app.Config.Validate(); err != nil {
				output.Error("Configuration validation failed: %v", err)
				return err
			}
			if output.IsStructured() {
				return output.Structured(map[string]bool{"valid": true})
			}
			output.Success("Configuration is valid")
			return nil
		},
	})

	return cmd
}

// configView is the displayable configuration. Credentials are masked.
type configView struct {
	Environment   string            `json:"default_environment" yaml:"default_environment"`
	OutputFormat  string            `json:"output_format" yaml:"output_format"`
	BrokerMode    string            `json:"broker_mode" yaml:"broker_mode"`
	Timeout       string            `json:"timeout" yaml:"timeout"`
	LoginURLs     map[string]string `json:"login_urls" yaml:"login_urls"`
	ReadOnly      bool              `json:"read_only" yaml:"read_only"`
	AuditEnabled  bool              `json:"audit_enabled" yaml:"audit_enabled"`
	LogLevel      string            `json:"log_level" yaml:"log_level"`
	LogFile       string            `json:"log_file,omitempty" yaml:"log_file,omitempty"`
	Tracing       bool              `json:"tracing" yaml:"tracing"`
	ConsumerKey   string            `json:"consumer_key" yaml:"consumer_key"`
	MobileNumber  string            `json:"mobile_number" yaml:"mobile_number"`
	UCC           string            `json:"ucc" yaml:"ucc"`
	MPIN          string            `json:"mpin" yaml:"mpin"`
	TOTPSecretSet bool              `json:"totp_secret_set" yaml:"totp_secret_set"`
}

func newConfigView(cfg *config.Config) configView {
	creds := cfg.Credentials.Neo
	v := configView{
		Environment:   cfg.Panel.DefaultEnvironment,
		OutputFormat:  cfg.Panel.OutputFormat,
		BrokerMode:    cfg.Broker.Mode,
		Timeout:       cfg.Broker.Timeout.String(),
		LoginURLs:     make(map[string]string, len(cfg.Broker.Endpoints)),
		ReadOnly:      cfg.Security.ReadOnlyMode,
		AuditEnabled:  cfg.Security.AuditEnabled,
		LogLevel:      cfg.Logging.Level,
		Tracing:       cfg.Telemetry.Enabled,
		ConsumerKey:   security.MaskCredential(creds.ConsumerKey),
		MobileNumber:  security.MaskMobile(creds.MobileNumber),
		UCC:           creds.UCC,
		MPIN:          security.MaskCredential(creds.MPIN),
		TOTPSecretSet: creds.TOTPSecret != "",
	}
	if cfg.Logging.File {
		v.LogFile = cfg.Logging.FilePath
	}
	for env, ep := range cfg.Broker.Endpoints {
		v.LoginURLs[env] = ep.LoginURL
	}
	return v
}

func showConfig(output *Output, v configView) {
	output.Header("Panel")
	output.KeyValue([][2]string{
		{"Default environment", v.Environment},
		{"Output format", v.OutputFormat},
	})
	output.Println()

	output.Header("Broker")
	pairs := [][2]string{
		{"Mode", v.BrokerMode},
		{"Timeout", v.Timeout},
	}
	for _, env := range []string{"prod", "uat"} {
		if u, ok := v.LoginURLs[env]; ok {
			pairs = append(pairs, [2]string{"Login URL (" + env + ")", u})
		}
	}
	output.KeyValue(pairs)
	output.Println()

	output.Header("Security")
	output.KeyValue([][2]string{
		{"Read-only", fmt.Sprintf("%v", v.ReadOnly)},
		{"Audit log", fmt.Sprintf("%v", v.AuditEnabled)},
		{"Log level", v.LogLevel},
		{"Tracing", fmt.Sprintf("%v", v.Tracing)},
	})
	output.Println()

	output.Header("Credentials")
	output.KeyValue([][2]string{
		{"Consumer key", orNotSet(v.ConsumerKey)},
		{"Mobile number", orNotSet(v.MobileNumber)},
		{"UCC", orNotSet(v.UCC)},
		{"MPIN", orNotSet(v.MPIN)},
		{"TOTP secret", map[bool]string{true: "configured", false: "not set"}[v.TOTPSecretSet]},
	})
}

func orNotSet(s string) string {
	if s == "" {
		return "not set"
	}
	return s
}

// actionTimeout bounds a single panel action.
func actionTimeout(cfg *config.Config) time.Duration {
	if cfg.Broker.Timeout > 0 {
		return cfg.Broker.Timeout
	}
	return 30 * time.Second
}
