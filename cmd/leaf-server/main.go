package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/labstack/echo/v4"
	echomw "github.com/labstack/echo/v4/middleware"
	"github.com/rs/zerolog"
	"github.com/spf13/cobra"

	"github.com/uwrit/leafgo/internal/api"
	"github.com/uwrit/leafgo/internal/config"
	"github.com/uwrit/leafgo/internal/domain/cohort"
	"github.com/uwrit/leafgo/internal/domain/compiler"
	"github.com/uwrit/leafgo/internal/domain/concept"
	"github.com/uwrit/leafgo/internal/domain/dataset"
	"github.com/uwrit/leafgo/internal/domain/demographic"
	"github.com/uwrit/leafgo/internal/domain/panel"
	"github.com/uwrit/leafgo/internal/domain/preflight"
	"github.com/uwrit/leafgo/internal/platform/auth"
	"github.com/uwrit/leafgo/internal/platform/db"
	"github.com/uwrit/leafgo/internal/platform/middleware"
)

func main() {
	rootCmd := &cobra.Command{
		Use:   "leaf-server",
		Short: "Clinical cohort discovery API server",
	}

	rootCmd.AddCommand(serveCmd())
	rootCmd.AddCommand(migrateCmd())

	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

func migrateCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "migrate",
		Short: "Manage the application database schema",
	}

	upCmd := &cobra.Command{
		Use:   "up",
		Short: "Apply pending migrations to the app database",
		RunE: func(cmd *cobra.Command, args []string) error {
			dir, _ := cmd.Flags().GetString("dir")

			cfg, err := config.Load()
			if err != nil {
				return err
			}
			ctx := context.Background()
			pool, err := db.NewPool(ctx, cfg.AppDatabaseURL, cfg.AppDBMaxConns, cfg.AppDBMinConns)
			if err != nil {
				return err
			}
			defer pool.Close()

			count, err := db.NewMigrator(pool, dir).Up(ctx)
			if err != nil {
				return fmt.Errorf("migration failed: %w", err)
			}
			fmt.Printf("Applied %d migration(s).\n", count)
			return nil
		},
	}
	upCmd.Flags().String("dir", "./migrations", "Path to migrations directory")
	cmd.AddCommand(upCmd)

	statusCmd := &cobra.Command{
		Use:   "status",
		Short: "Show migration status",
		RunE: func(cmd *cobra.Command, args []string) error {
			dir, _ := cmd.Flags().GetString("dir")

			cfg, err := config.Load()
			if err != nil {
				return err
			}
			ctx := context.Background()
			pool, err := db.NewPool(ctx, cfg.AppDatabaseURL, cfg.AppDBMaxConns, cfg.AppDBMinConns)
			if err != nil {
				return err
			}
			defer pool.Close()

			statuses, err := db.NewMigrator(pool, dir).Status(ctx)
			if err != nil {
				return fmt.Errorf("migration status: %w", err)
			}
			fmt.Printf("%-10s %-40s %-10s %s\n", "VERSION", "NAME", "STATUS", "APPLIED AT")
			for _, s := range statuses {
				status, appliedAt := "pending", ""
				if s.Applied {
					status = "applied"
					if s.AppliedAt != nil {
						appliedAt = s.AppliedAt.Format("2006-01-02 15:04:05")
					}
				}
				fmt.Printf("%-10d %-40s %-10s %s\n", s.Version, s.Name, status, appliedAt)
			}
			return nil
		},
	}
	statusCmd.Flags().String("dir", "./migrations", "Path to migrations directory")
	cmd.AddCommand(statusCmd)

	return cmd
}

func serveCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Start the cohort discovery server",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runServer()
		},
	}
}

func runServer() error {
	logger := zerolog.New(os.Stdout).With().Timestamp().Logger()
	if os.Getenv("ENV") == "development" {
		logger = zerolog.New(zerolog.ConsoleWriter{Out: os.Stdout}).With().Timestamp().Logger()
	}

	cfg, err := config.Load()
	if err != nil {
		logger.Fatal().Err(err).Msg("failed to load config")
	}
	if err := cfg.Validate(); err != nil {
		logger.Fatal().Err(err).Msg("invalid config")
	}

	ctx := context.Background()

	// Application database: saved queries, cached cohorts, dataset
	// definitions.
	appPool, err := db.NewPool(ctx, cfg.AppDatabaseURL, cfg.AppDBMaxConns, cfg.AppDBMinConns)
	if err != nil {
		logger.Fatal().Err(err).Msg("failed to connect to app database")
	}
	defer appPool.Close()
	logger.Info().Msg("connected to app database")

	// Clinical database: read-only, queried with compiled cohort SQL.
	// In gateway mode no clinical connection exists and counts are
	// aggregated from federated partners instead.
	var clinPool *pgxpool.Pool
	if !cfg.IsGateway() {
		clinPool, err = db.NewPool(ctx, cfg.ClinDatabaseURL, cfg.AppDBMaxConns, cfg.AppDBMinConns)
		if err != nil {
			logger.Fatal().Err(err).Msg("failed to connect to clinical database")
		}
		defer clinPool.Close()
		logger.Info().Str("dialect", cfg.ClinDialect).Msg("connected to clinical database")
	}

	e := echo.New()
	e.HideBanner = true
	e.HidePort = true

	e.Use(echomw.Recover())
	e.Use(middleware.RequestID())
	e.Use(middleware.Logger(logger))

	e.GET("/health", func(c echo.Context) error {
		return c.JSON(http.StatusOK, map[string]string{"status": "ok"})
	})

	apiGroup := e.Group("/api")
	if cfg.IsDev() {
		apiGroup.Use(auth.DevMiddleware())
	} else {
		apiGroup.Use(auth.Middleware(auth.JWTConfig{
			Issuer:     cfg.AuthIssuer,
			SigningKey: []byte(cfg.AuthSigningKey),
		}))
	}

	dialect, err := compiler.NewDialect(cfg.ClinDialect)
	if err != nil {
		logger.Fatal().Err(err).Msg("unsupported clinical dialect")
	}
	opts := compiler.Options{
		Alias:            cfg.CompilerAlias,
		FieldPersonID:    cfg.FieldPersonID,
		FieldEncounterID: cfg.FieldEncounterID,
		AppDB:            cfg.AppDBName,
	}
	synth := preflight.SyntheticOpts{
		FieldPersonID: cfg.FieldPersonID,
		AppDB:         cfg.AppDBName,
	}

	concepts := concept.NewReaderPG(appPool)
	checker := preflight.NewChecker(preflight.NewRepoPG(appPool, concepts), logger)
	resolver := panel.NewResolver(checker, synth, logger)
	validator := panel.NewValidator(logger)
	comp := compiler.New(opts, dialect, logger)

	var exec db.Executor
	if clinPool != nil {
		exec = db.NewPgxExecutor(clinPool)
	}
	runner := cohort.NewRunner(exec, cfg.ClinMaxParallel, cfg.QueryTimeout(), logger)
	cache := cohort.NewCachePG(appPool, cfg.CohortRowLimit, cfg.CohortExportLimit, logger)
	obfuscator := cohort.Obfuscator{
		Enabled:          cfg.ObfuscationEnabled,
		Shift:            cfg.ObfuscationShift,
		LowCellThreshold: cfg.LowCellThreshold,
	}

	counts := cohort.NewCountService(resolver, validator, comp, runner, cache, obfuscator, cfg.IsGateway(), logger)

	// Row-level endpoints need the clinical connection, so gateway nodes
	// leave them unwired.
	var datasets *dataset.Service
	var demographics *demographic.Service
	if clinPool != nil {
		datasets = dataset.NewService(dataset.NewRepoPG(appPool), cache, exec, opts, cfg.QueryTimeout(), logger)
		demographics = demographic.NewService(demographic.NewRepoPG(appPool), cache, exec, opts, cfg.QueryTimeout(), logger)
	}

	api.NewHandler(counts, datasets, demographics).RegisterRoutes(apiGroup)

	go func() {
		logger.Info().Str("port", cfg.Port).Str("mode", cfg.RuntimeMode).Msg("starting server")
		if err := e.Start(":" + cfg.Port); err != nil && err != http.ErrServerClosed {
			logger.Fatal().Err(err).Msg("server error")
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	logger.Info().Msg("shutting down")
	shutdownCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()
	if err := e.Shutdown(shutdownCtx); err != nil {
		logger.Error().Err(err).Msg("forced shutdown")
		return err
	}
	return nil
}
