package main

import (
	"context"
	"log/slog"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/lineage-dev/lineage/internal/config"
	"github.com/lineage-dev/lineage/internal/database"
	"github.com/lineage-dev/lineage/internal/provider"
)

// app holds the wired dependencies for one command invocation.
type app struct {
	cfg        *config.Config
	db         *database.DB
	plans      database.PlanDAO
	composites database.CompositeDAO
	activities database.ActivityDAO
	providers  *provider.Registry
	converters *provider.ConverterRegistry
	logger     *slog.Logger
}

var currentApp *app

var rootCmd = &cobra.Command{
	Use:   "lineage",
	Short: "Lineage - reproducibility tracking for computational workflows",
	Long: `Lineage records the commands of a computational project as plans,
composes them into workflows, re-parametrizes and re-executes them, and
keeps a verifiable provenance graph of every execution.`,
	PersistentPreRunE:  setupApp,
	PersistentPostRunE: teardownApp,
	SilenceUsage:       true,
	SilenceErrors:      true,
}

// Execute runs the root command with signal handling.
func Execute(ctx context.Context) error {
	ctx, cancel := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	return rootCmd.ExecuteContext(ctx)
}

// setupApp loads configuration and wires the dependencies before any
// command runs.
func setupApp(cmd *cobra.Command, args []string) error {
	if err := ValidateGlobalFlags(cmd); err != nil {
		return err
	}

	switch cmd.Name() {
	case "version", "help", "completion":
		return nil
	}

	configFile := globalFlags.ConfigFile
	if configFile == "" {
		configFile = config.DefaultConfigPath()
	}

	cfg, err := config.NewLoader(config.NewValidator()).LoadWithDefaults(configFile)
	if err != nil {
		return err
	}
	if globalFlags.DatabasePath != "" {
		cfg.Database.Path = globalFlags.DatabasePath
	}

	logger := newLogger(cfg.Logging)
	slog.SetDefault(logger)

	if err := os.MkdirAll(filepath.Dir(cfg.Database.Path), 0o755); err != nil {
		return err
	}
	db, err := database.Open(cfg.Database.Path)
	if err != nil {
		return err
	}
	if err := database.NewMigrator(db).Migrate(cmd.Context()); err != nil {
		db.Close()
		return err
	}

	currentApp = &app{
		cfg:        cfg,
		db:         db,
		plans:      database.NewPlanDAO(db),
		composites: database.NewCompositeDAO(db),
		activities: database.NewActivityDAO(db),
		providers:  provider.DefaultRegistry(),
		converters: provider.NewConverterRegistry(),
		logger:     logger,
	}
	return nil
}

func teardownApp(cmd *cobra.Command, args []string) error {
	if currentApp != nil && currentApp.db != nil {
		return currentApp.db.Close()
	}
	return nil
}

func newLogger(cfg config.LoggingConfig) *slog.Logger {
	level := slog.LevelInfo
	switch cfg.Level {
	case "debug":
		level = slog.LevelDebug
	case "warn":
		level = slog.LevelWarn
	case "error":
		level = slog.LevelError
	}
	if globalFlags.Verbose {
		level = slog.LevelDebug
	}
	if globalFlags.Quiet {
		level = slog.LevelError
	}

	opts := &slog.HandlerOptions{Level: level}
	if cfg.Format == "json" {
		return slog.New(slog.NewJSONHandler(os.Stderr, opts))
	}
	return slog.New(slog.NewTextHandler(os.Stderr, opts))
}

func init() {
	RegisterGlobalFlags(rootCmd)

	rootCmd.AddCommand(versionCmd)
	rootCmd.AddCommand(planCmd)
	rootCmd.AddCommand(workflowCmd)
	rootCmd.AddCommand(activityCmd)
}
