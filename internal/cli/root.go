// Package cli provides the command-line interface for the trading journal.
package cli

import (
	"context"
	"os"
	"time"

	"github.com/rs/zerolog"
	"github.com/spf13/cobra"

	"nepse-journal/internal/config"
	"nepse-journal/internal/ledger"
	"nepse-journal/internal/logging"
	"nepse-journal/internal/portfolio"
	"nepse-journal/internal/security"
	"nepse-journal/internal/store"
)

// Version information
const (
	Version   = "0.1.0"
	BuildDate = "2024-06-01"
)

// DefaultUser is the journal owner when neither --user nor JOURNAL_USER is set.
const DefaultUser = "default"

// commandTimeout bounds a single CLI command.
const commandTimeout = 30 * time.Second

// skipStoreAnnotation marks commands that run without opening the database.
const skipStoreAnnotation = "skip-store"

// App holds the application dependencies.
type App struct {
	Config     *config.Config
	Logger     zerolog.Logger
	Store      *store.SQLiteStore
	Portfolios *portfolio.Service
	Ledger     *ledger.Service
	Validator  *security.InputValidator
	Access     *security.AccessController
	Audit      *security.AuditLogger
	UserID     string
}

// NewApp opens the store and wires the journal services.
func NewApp(cfg *config.Config, logger zerolog.Logger) (*App, error) {
	ds, err := store.NewSQLiteStoreWithOptions(cfg.Database.Path, store.Options{
		BusyTimeout: cfg.Database.BusyTimeout,
	})
	if err != nil {
		return nil, err
	}

	app := &App{
		Config:    cfg,
		Logger:    logger,
		Store:     ds,
		Validator: security.NewInputValidator(cfg.Security.StrictValidation),
	}

	if cfg.Security.AuditEnabled {
		auditCfg := security.DefaultAuditConfig()
		auditCfg.LogDir = cfg.Security.AuditDir
		app.Audit, err = security.NewAuditLogger(auditCfg)
		if err != nil {
			logger.Warn().Err(err).Msg("Audit trail unavailable")
		}
	}
	app.Access = security.NewAccessController(cfg.Security.ReadOnlyMode, app.Audit)

	reconciler := portfolio.NewReconciler(logger)
	app.Portfolios = portfolio.NewService(ds, reconciler, logger,
		portfolio.WithLocation(cfg.Location()),
		portfolio.WithRecentTransactions(cfg.UI.RecentTransactions),
	)
	app.Ledger = ledger.NewService(ds, reconciler, logger,
		ledger.WithValidator(app.Validator),
		ledger.WithAccessController(app.Access),
		ledger.WithAuditLogger(app.Audit),
		ledger.WithRetry(cfg.Database.MaxRetries+1, cfg.Database.RetryInterval),
	)

	return app, nil
}

// Close releases the store and the audit trail.
func (a *App) Close() error {
	if a == nil {
		return nil
	}
	if a.Audit != nil {
		_ = a.Audit.Close()
	}
	if a.Store != nil {
		return a.Store.Close()
	}
	return nil
}

// output returns an Output honoring the color setting.
func (a *App) output(cmd *cobra.Command) *Output {
	o := NewOutput(cmd)
	if a.Config != nil && !a.Config.UI.ColorEnabled {
		o.DisableColor()
	}
	return o
}

// location returns the display time zone.
func (a *App) location() *time.Location {
	if a.Portfolios != nil {
		return a.Portfolios.Location()
	}
	if a.Config != nil {
		return a.Config.Location()
	}
	return time.UTC
}

// nowIn returns the current time in the display time zone.
func (a *App) nowIn() time.Time {
	return time.Now().In(a.location())
}

// commandContext returns the context of a single command run.
func commandContext(cmd *cobra.Command) (context.Context, context.CancelFunc) {
	ctx := cmd.Context()
	if ctx == nil {
		ctx = context.Background()
	}
	return context.WithTimeout(ctx, commandTimeout)
}

// NewRootCmd creates the root command for the CLI.
func NewRootCmd() *cobra.Command {
	app := &App{}

	rootCmd := &cobra.Command{
		Use:   "journal",
		Short: "NEPSE trading journal",
		Long: `NEPSE Journal records trades, deposits and withdrawals for the Nepal Stock
Exchange and keeps each portfolio's balance reconciled with its ledgers.

The balance is always initial capital + deposits - withdrawals + realized P&L
of closed trades. Every write recomputes it; 'journal admin recalculate'
repairs every stored balance at once.`,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			return app.init(cmd)
		},
		PersistentPostRunE: func(cmd *cobra.Command, args []string) error {
			return app.Close()
		},
	}

	// Global flags
	rootCmd.PersistentFlags().String("config", "", "config directory (default: ~/.config/nepse-journal)")
	rootCmd.PersistentFlags().String("user", "", "journal owner (default: $JOURNAL_USER or \"default\")")
	rootCmd.PersistentFlags().Bool("json", false, "output in JSON format")
	rootCmd.PersistentFlags().Bool("debug", false, "enable debug logging")

	addCoreCommands(rootCmd, app)
	addPortfolioCommands(rootCmd, app)
	addTradeCommands(rootCmd, app)
	addStrategyCommands(rootCmd, app)
	addStatsCommands(rootCmd, app)
	addExportCommands(rootCmd, app)
	addAdminCommands(rootCmd, app)
	addServeCommand(rootCmd, app)
	addHelpCommands(rootCmd)

	return rootCmd
}

// init loads configuration, the logger and, unless the command opts out,
// the store and services.
func (a *App) init(cmd *cobra.Command) error {
	configDir, _ := cmd.Flags().GetString("config")
	cfg, err := config.Load(configDir)
	if err != nil {
		return err
	}

	debug, _ := cmd.Flags().GetBool("debug")
	if debug {
		cfg.Log.Level = "debug"
	}
	logger := logging.NewLoggerWithConfig(logging.LogConfig{
		Level:      cfg.Log.Level,
		Console:    cfg.Log.Console,
		Stderr:     true,
		File:       cfg.Log.File,
		FilePath:   cfg.Log.FilePath,
		MaxSize:    cfg.Log.MaxSize,
		MaxBackups: cfg.Log.MaxBackups,
		MaxAge:     cfg.Log.MaxAge,
	})
	if debug {
		logging.SetDebugLevel()
	}

	a.Config = cfg
	a.Logger = logger

	if cmd.Annotations[skipStoreAnnotation] == "true" {
		return nil
	}

	user, _ := cmd.Flags().GetString("user")
	if user == "" {
		user = os.Getenv("JOURNAL_USER")
	}
	if user == "" {
		user = DefaultUser
	}
	validator := security.NewInputValidator(cfg.Security.StrictValidation)
	if err := validator.ValidateID("user", user); err != nil {
		return err
	}

	built, err := NewApp(cfg, logger)
	if err != nil {
		return err
	}
	*a = *built
	a.UserID = user

	logger.Debug().
		Str("db", cfg.Database.Path).
		Str("user", user).
		Bool("read_only", cfg.Security.ReadOnlyMode).
		Msg("Journal initialized")
	return nil
}

// addCoreCommands adds core utility commands.
func addCoreCommands(rootCmd *cobra.Command, app *App) {
	rootCmd.AddCommand(newVersionCmd())
	rootCmd.AddCommand(newConfigCmd(app))
}

func newVersionCmd() *cobra.Command {
	return &cobra.Command{
		Use:         "version",
		Short:       "Print version information",
		Annotations: map[string]string{skipStoreAnnotation: "true"},
		Run: func(cmd *cobra.Command, args []string) {
			output := NewOutput(cmd)
			if output.IsJSON() {
				output.JSON(map[string]string{
					"version":    Version,
					"build_date": BuildDate,
				})
			} else {
				output.Printf("NEPSE Journal v%s\n", Version)
				output.Dim("Build date: %s", BuildDate)
			}
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
		Use:         "show",
		Short:       "Show current configuration",
		Annotations: map[string]string{skipStoreAnnotation: "true"},
		RunE: func(cmd *cobra.Command, args []string) error {
			output := app.output(cmd)
			if output.IsJSON() {
				return output.JSON(app.Config)
			}
			return showConfig(output, app.Config)
		},
	})

	cmd.AddCommand(&cobra.Command{
		Use:         "path",
		Short:       "Show configuration directory path",
		Annotations: map[string]string{skipStoreAnnotation: "true"},
		Run: func(cmd *cobra.Command, args []string) {
			output := app.output(cmd)
			if output.IsJSON() {
				output.JSON(map[string]string{"path": app.Config.Dir})
			} else {
				output.Println(app.Config.Dir)
			}
		},
	})

	cmd.AddCommand(&cobra.Command{
		Use:         "validate",
		Short:       "Validate configuration files",
		Annotations: map[string]string{skipStoreAnnotation: "true"},
		RunE: func(cmd *cobra.Command, args []string) error {
			output := app.output(cmd)
			if err := app.Config.Validate(); err != nil {
				output.Error("Configuration validation failed: %v", err)
				return err
			}
			if output.IsJSON() {
				return output.JSON(map[string]bool{"valid": true})
			}
			output.Success("✓ Configuration is valid")
			return nil
		},
	})

	return cmd
}

func showConfig(output *Output, cfg *config.Config) error {
	output.Bold("Database")
	output.Printf("  Path:            %s\n", cfg.Database.Path)
	output.Printf("  Busy Timeout:    %s\n", cfg.Database.BusyTimeout)
	output.Printf("  Max Retries:     %d\n", cfg.Database.MaxRetries)
	output.Println()

	output.Bold("Security")
	output.Printf("  Read Only:       %v\n", cfg.Security.ReadOnlyMode)
	output.Printf("  Strict Amounts:  %v\n", cfg.Security.StrictValidation)
	output.Printf("  Audit Trail:     %v\n", cfg.Security.AuditEnabled)
	if cfg.Security.ReadOnlyMode {
		output.Dim("  Blocked operations:")
		for _, op := range security.WriteOperations() {
			output.Dim("    - %s", security.OperationDescription(op))
		}
	}
	output.Println()

	output.Bold("Server")
	output.Printf("  Address:         %s\n", cfg.Server.Addr)
	output.Printf("  Rate Limit:      %.1f req/s (burst %d)\n", cfg.Server.RateLimit, cfg.Server.RateBurst)
	schedule := cfg.Admin.RepairSchedule
	if schedule == "" {
		schedule = "disabled"
	}
	output.Printf("  Repair Schedule: %s\n", schedule)
	output.Println()

	output.Bold("Display")
	output.Printf("  Time Zone:       %s\n", cfg.UI.Timezone)
	output.Printf("  Recent Txns:     %d\n", cfg.UI.RecentTransactions)
	output.Printf("  Log Level:       %s\n", cfg.Log.Level)

	return nil
}
