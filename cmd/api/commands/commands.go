package commands

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/golang-migrate/migrate/v4"
	"github.com/golang-migrate/migrate/v4/database/postgres"
	_ "github.com/golang-migrate/migrate/v4/source/file"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/taskmaster/taskview/internal/adapters/notifications"
	"github.com/taskmaster/taskview/internal/application/services"
	"github.com/taskmaster/taskview/internal/domain/entities"
	"github.com/taskmaster/taskview/internal/infrastructure/config"
	"github.com/taskmaster/taskview/internal/infrastructure/database"
	"github.com/taskmaster/taskview/internal/infrastructure/logger"
	"github.com/taskmaster/taskview/internal/infrastructure/metrics"
	"github.com/taskmaster/taskview/internal/infrastructure/server"
)

// Build information, set with -ldflags at release time.
var (
	Version   = "dev"
	BuildDate = "unknown"
	GitCommit = "development"
)

// NewRootCommand wires every subcommand under the taskview binary
func NewRootCommand() *cobra.Command {
	rootCmd := &cobra.Command{
		Use:           "taskview",
		Short:         "TaskView task normalization and reminder service",
		Long:          `TaskView normalizes raw task records and keeps the reminder notifications of each task scheduled.`,
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	rootCmd.PersistentFlags().String("config", "", "Path to a config file (yaml, json or toml)")

	rootCmd.AddCommand(NewServeCommand())
	rootCmd.AddCommand(NewMigrateCommand())
	rootCmd.AddCommand(NewNormalizeCommand())
	rootCmd.AddCommand(NewNotificationsCommand())
	rootCmd.AddCommand(NewVersionCommand())

	return rootCmd
}

// NewServeCommand creates the serve command
func NewServeCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Start the TaskView API server",
		Long:  "Start the TaskView API server with all configured routes and middleware",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runServer(cmd)
		},
	}
}

// NewMigrateCommand creates the migrate command with subcommands
func NewMigrateCommand() *cobra.Command {
	migrateCmd := &cobra.Command{
		Use:   "migrate",
		Short: "Database migration commands",
		Long:  "Manage the notification store schema (up, down, version)",
	}

	upCmd := &cobra.Command{
		Use:   "up",
		Short: "Run up migrations",
		RunE: func(cmd *cobra.Command, args []string) error {
			steps, _ := cmd.Flags().GetInt("steps")
			return runMigration(cmd, "up", steps)
		},
	}
	upCmd.Flags().Int("steps", 0, "Number of migrations to apply (0 = all)")
	migrateCmd.AddCommand(upCmd)

	downCmd := &cobra.Command{
		Use:   "down",
		Short: "Run down migrations",
		RunE: func(cmd *cobra.Command, args []string) error {
			steps, _ := cmd.Flags().GetInt("steps")
			return runMigration(cmd, "down", steps)
		},
	}
	downCmd.Flags().Int("steps", 0, "Number of migrations to roll back (0 = all)")
	migrateCmd.AddCommand(downCmd)

	migrateCmd.AddCommand(&cobra.Command{
		Use:   "version",
		Short: "Print current migration version",
		RunE: func(cmd *cobra.Command, args []string) error {
			return showMigrationVersion(cmd)
		},
	})

	return migrateCmd
}

// NewNormalizeCommand creates the normalize command
func NewNormalizeCommand() *cobra.Command {
	normalizeCmd := &cobra.Command{
		Use:   "normalize [file]",
		Short: "Normalize raw task records",
		Long: `Read one raw task record or an array of them from a file (or stdin when the
file is omitted or "-") and print the normalized task views.`,
		Args: cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			output, _ := cmd.Flags().GetString("output")
			sync, _ := cmd.Flags().GetBool("sync")
			raw, _ := cmd.Flags().GetBool("raw")

			path := "-"
			if len(args) == 1 {
				path = args[0]
			}
			return runNormalize(cmd, path, output, sync, raw)
		},
	}

	normalizeCmd.Flags().StringP("output", "o", "json", "Output format (json, yaml)")
	normalizeCmd.Flags().Bool("sync", false, "Also sync reminder notifications against the configured store")
	normalizeCmd.Flags().Bool("raw", false, "Print the normalized tasks in the raw record form the server accepts")

	return normalizeCmd
}

// NewNotificationsCommand creates the notifications command with subcommands
func NewNotificationsCommand() *cobra.Command {
	notificationsCmd := &cobra.Command{
		Use:   "notifications",
		Short: "Inspect and cancel scheduled reminder notifications",
	}

	listCmd := &cobra.Command{
		Use:   "list",
		Short: "List the notifications scheduled for a task",
		RunE: func(cmd *cobra.Command, args []string) error {
			taskID, _ := cmd.Flags().GetInt64("task-id")
			includeTriggered, _ := cmd.Flags().GetBool("include-triggered")
			output, _ := cmd.Flags().GetString("output")
			return runListNotifications(cmd, taskID, includeTriggered, output)
		},
	}
	listCmd.Flags().Int64("task-id", 0, "Task id (required)")
	listCmd.Flags().Bool("include-triggered", false, "Include notifications that already fired")
	listCmd.Flags().StringP("output", "o", "json", "Output format (json, yaml)")
	_ = listCmd.MarkFlagRequired("task-id")
	notificationsCmd.AddCommand(listCmd)

	cancelCmd := &cobra.Command{
		Use:   "cancel",
		Short: "Cancel every notification scheduled for a task",
		RunE: func(cmd *cobra.Command, args []string) error {
			taskID, _ := cmd.Flags().GetInt64("task-id")
			return runCancelNotifications(cmd, taskID)
		},
	}
	cancelCmd.Flags().Int64("task-id", 0, "Task id (required)")
	_ = cancelCmd.MarkFlagRequired("task-id")
	notificationsCmd.AddCommand(cancelCmd)

	return notificationsCmd
}

// NewVersionCommand creates the version command
func NewVersionCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print TaskView version",
		Run: func(cmd *cobra.Command, args []string) {
			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "TaskView %s\n", Version)
			fmt.Fprintf(out, "Build Date: %s\n", BuildDate)
			fmt.Fprintf(out, "Git Commit: %s\n", GitCommit)
		},
	}
}

// app is what every command needs once configuration is loaded
type app struct {
	cfg        *config.Config
	logger     *logger.Logger
	registry   *prometheus.Registry
	taskView   *services.TaskViewService
	closeStore func() error
}

func loadConfig(cmd *cobra.Command) (*config.Config, error) {
	path, _ := cmd.Flags().GetString("config")
	cfg, err := config.Load(path)
	if err != nil {
		return nil, fmt.Errorf("failed to load configuration: %w", err)
	}
	return cfg, nil
}

// newApp loads configuration and wires the services. CLI commands other than
// serve log to stderr so stdout only carries results.
func newApp(cmd *cobra.Command, logToStderr bool) (*app, error) {
	cfg, err := loadConfig(cmd)
	if err != nil {
		return nil, err
	}

	if logToStderr && cfg.Logger.Output != "file" {
		cfg.Logger.Output = "stderr"
	}

	appLogger, err := logger.New(cfg.Logger)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize logger: %w", err)
	}

	capability, closeStore, err := notifications.Open(cmd.Context(), cfg, appLogger)
	if err != nil {
		return nil, err
	}

	registry := prometheus.NewRegistry()
	notificationService := services.NewNotificationService(capability, cfg.Notifications, metrics.NewNotificationMetrics(registry), appLogger)

	return &app{
		cfg:        cfg,
		logger:     appLogger,
		registry:   registry,
		taskView:   services.NewTaskViewService(notificationService, appLogger),
		closeStore: closeStore,
	}, nil
}

func (a *app) Close() {
	if err := a.closeStore(); err != nil {
		a.logger.Warnw("Failed to close notification store", "error", err)
	}
	_ = a.logger.Close()
}

func runServer(cmd *cobra.Command) error {
	a, err := newApp(cmd, false)
	if err != nil {
		return err
	}
	defer a.Close()

	srv, err := server.New(a.cfg, a.taskView, a.registry, a.logger)
	if err != nil {
		return fmt.Errorf("failed to initialize server: %w", err)
	}

	a.logger.Infow("Starting TaskView API server",
		"port", a.cfg.Server.Port,
		"environment", a.cfg.App.Environment,
		"notification_store", a.cfg.Notifications.Store,
	)

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	errCh := make(chan error, 1)
	go func() {
		errCh <- srv.Start(fmt.Sprintf("%s:%d", a.cfg.Server.Host, a.cfg.Server.Port))
	}()

	select {
	case err := <-errCh:
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("server failed: %w", err)
		}
		return nil
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()

	return srv.Shutdown(shutdownCtx)
}

func newMigrator(cfg *config.Config) (*migrate.Migrate, *database.DB, error) {
	db, err := database.New(cfg.Database)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to connect to database: %w", err)
	}

	driver, err := postgres.WithInstance(db.DB.DB, &postgres.Config{})
	if err != nil {
		db.Close()
		return nil, nil, fmt.Errorf("failed to create migration driver: %w", err)
	}

	m, err := migrate.NewWithDatabaseInstance(cfg.Database.MigrationsPath, "postgres", driver)
	if err != nil {
		db.Close()
		return nil, nil, fmt.Errorf("failed to create migration instance: %w", err)
	}

	return m, db, nil
}

func runMigration(cmd *cobra.Command, direction string, steps int) error {
	cfg, err := loadConfig(cmd)
	if err != nil {
		return err
	}

	m, db, err := newMigrator(cfg)
	if err != nil {
		return err
	}
	defer db.Close()

	switch direction {
	case "up":
		if steps > 0 {
			err = m.Steps(steps)
		} else {
			err = m.Up()
		}
	case "down":
		if steps > 0 {
			err = m.Steps(-steps)
		} else {
			err = m.Down()
		}
	}

	if err != nil && !errors.Is(err, migrate.ErrNoChange) {
		return fmt.Errorf("migration failed: %w", err)
	}

	if errors.Is(err, migrate.ErrNoChange) {
		fmt.Fprintln(cmd.OutOrStdout(), "No migrations to run")
	} else {
		fmt.Fprintf(cmd.OutOrStdout(), "Migration %s completed successfully\n", direction)
	}
	return nil
}

func showMigrationVersion(cmd *cobra.Command) error {
	cfg, err := loadConfig(cmd)
	if err != nil {
		return err
	}

	m, db, err := newMigrator(cfg)
	if err != nil {
		return err
	}
	defer db.Close()

	version, dirty, err := m.Version()
	if errors.Is(err, migrate.ErrNilVersion) {
		fmt.Fprintln(cmd.OutOrStdout(), "No migrations applied")
		return nil
	}
	if err != nil {
		return fmt.Errorf("failed to get migration version: %w", err)
	}

	fmt.Fprintf(cmd.OutOrStdout(), "Current migration version: %d\n", version)
	fmt.Fprintf(cmd.OutOrStdout(), "Dirty: %t\n", dirty)
	return nil
}

// normalizeResult is what the normalize command prints. Tasks holds either
// task views or, with --raw, their records.
type normalizeResult struct {
	Tasks   interface{}           `json:"tasks"`
	Reports []services.SyncReport `json:"reports,omitempty"`
}

func runNormalize(cmd *cobra.Command, path, output string, sync, raw bool) error {
	var (
		data []byte
		err  error
	)
	if path == "-" {
		data, err = io.ReadAll(cmd.InOrStdin())
	} else {
		data, err = os.ReadFile(path)
	}
	if err != nil {
		return fmt.Errorf("failed to read task records: %w", err)
	}

	records, err := entities.RecordsFromJSON(data)
	if err != nil {
		return err
	}

	a, err := newApp(cmd, true)
	if err != nil {
		return err
	}
	defer a.Close()

	views := a.taskView.NormalizeAll(records)
	result := normalizeResult{Tasks: views}
	if sync {
		result.Reports = a.taskView.Sync(cmd.Context(), views)
	}
	if raw {
		out := make([]entities.Record, 0, len(views))
		for _, v := range views {
			out = append(out, v.Record())
		}
		result.Tasks = out
	}

	return writeOutput(cmd.OutOrStdout(), output, result)
}

func runListNotifications(cmd *cobra.Command, taskID int64, includeTriggered bool, output string) error {
	a, err := newApp(cmd, true)
	if err != nil {
		return err
	}
	defer a.Close()

	scheduled, err := a.taskView.Notifications().Scheduled(cmd.Context(), taskID, includeTriggered)
	if err != nil {
		return err
	}

	return writeOutput(cmd.OutOrStdout(), output, map[string]interface{}{
		"taskID":        taskID,
		"tag":           a.taskView.Notifications().Tag(taskID),
		"notifications": scheduled,
	})
}

func runCancelNotifications(cmd *cobra.Command, taskID int64) error {
	a, err := newApp(cmd, true)
	if err != nil {
		return err
	}
	defer a.Close()

	cancelled, state := a.taskView.Notifications().CancelScheduled(cmd.Context(), taskID)
	fmt.Fprintf(cmd.OutOrStdout(), "Cancelled %d notification(s) for task %d (%s)\n", cancelled, taskID, state)
	return nil
}

// writeOutput prints v as indented JSON or as YAML. YAML goes through JSON
// first so both formats use the same field names.
func writeOutput(w io.Writer, format string, v interface{}) error {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to encode output: %w", err)
	}

	switch format {
	case "json":
		_, err = fmt.Fprintln(w, string(data))
		return err
	case "yaml", "yml":
		var generic interface{}
		if err := json.Unmarshal(data, &generic); err != nil {
			return fmt.Errorf("failed to encode output: %w", err)
		}
		enc := yaml.NewEncoder(w)
		enc.SetIndent(2)
		if err := enc.Encode(generic); err != nil {
			return fmt.Errorf("failed to encode output: %w", err)
		}
		return enc.Close()
	default:
		return fmt.Errorf("unknown output format %q", format)
	}
}
