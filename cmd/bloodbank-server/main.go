package main

import (
	"context"
	"fmt"
	"io/fs"
	"net/http"
	"os"
	"os/signal"
	"sort"
	"syscall"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/labstack/echo/v4"
	echomw "github.com/labstack/echo/v4/middleware"
	"github.com/rs/zerolog"
	"github.com/spf13/cobra"

	"github.com/bloodbank/bloodbank/internal/config"
	"github.com/bloodbank/bloodbank/internal/domain/analytics"
	"github.com/bloodbank/bloodbank/internal/domain/audit"
	"github.com/bloodbank/bloodbank/internal/domain/bloodbag"
	"github.com/bloodbank/bloodbank/internal/domain/booking"
	"github.com/bloodbank/bloodbank/internal/domain/expiry"
	"github.com/bloodbank/bloodbank/internal/domain/inventory"
	"github.com/bloodbank/bloodbank/internal/domain/patient"
	"github.com/bloodbank/bloodbank/internal/platform/auth"
	"github.com/bloodbank/bloodbank/internal/platform/cache"
	"github.com/bloodbank/bloodbank/internal/platform/db"
	"github.com/bloodbank/bloodbank/internal/platform/middleware"
	"github.com/bloodbank/bloodbank/internal/platform/scope"
	"github.com/bloodbank/bloodbank/migrations"
)

const version = "0.1.0"

func main() {
	rootCmd := &cobra.Command{
		Use:   "bloodbank-server",
		Short: "Blood bank booking and inventory API server",
	}

	rootCmd.AddCommand(serveCmd())
	rootCmd.AddCommand(migrateCmd())
	rootCmd.AddCommand(expireCmd())

	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

func newLogger(env string) zerolog.Logger {
	if env == "development" {
		return zerolog.New(zerolog.ConsoleWriter{Out: os.Stdout}).With().Timestamp().Logger()
	}
	return zerolog.New(os.Stdout).With().Timestamp().Logger()
}

// loadConfig reads and validates configuration.
func loadConfig() (*config.Config, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// migrationSource returns dir as a filesystem, or the embedded migrations
// when dir is empty.
func migrationSource(dir string) fs.FS {
	if dir == "" {
		return migrations.FS
	}
	return os.DirFS(dir)
}

func serveCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Start the API server",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runServer()
		},
	}
}

func migrateCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "migrate",
		Short: "Run database migrations",
	}

	withMigrator := func(cmd *cobra.Command, fn func(ctx context.Context, m *db.Migrator) error) error {
		cfg, err := config.Load()
		if err != nil {
			return err
		}
		dir, _ := cmd.Flags().GetString("dir")
		if dir == "" {
			dir = cfg.MigrationsDir
		}

		ctx := context.Background()
		pool, err := db.NewPool(ctx, cfg.DatabaseURL, cfg.DBMaxConns, cfg.DBMinConns)
		if err != nil {
			return err
		}
		defer pool.Close()
		return fn(ctx, db.NewMigrator(pool, migrationSource(dir)))
	}

	upCmd := &cobra.Command{
		Use:   "up",
		Short: "Apply pending migrations",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withMigrator(cmd, func(ctx context.Context, m *db.Migrator) error {
				count, err := m.Up(ctx)
				if err != nil {
					return fmt.Errorf("migration failed: %w", err)
				}
				fmt.Printf("Applied %d migration(s) successfully.\n", count)
				return nil
			})
		},
	}
	upCmd.Flags().String("dir", "", "Migrations directory (default: embedded migrations)")
	cmd.AddCommand(upCmd)

	statusCmd := &cobra.Command{
		Use:   "status",
		Short: "Show migration status",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withMigrator(cmd, func(ctx context.Context, m *db.Migrator) error {
				statuses, err := m.Status(ctx)
				if err != nil {
					return fmt.Errorf("failed to get migration status: %w", err)
				}
				fmt.Printf("%-10s %-40s %-10s %s\n", "VERSION", "NAME", "STATUS", "APPLIED AT")
				fmt.Println("---------- ---------------------------------------- ---------- --------------------")
				for _, s := range statuses {
					status := "pending"
					appliedAt := ""
					if s.Applied {
						status = "applied"
						if s.AppliedAt != nil {
							appliedAt = s.AppliedAt.Format("2006-01-02 15:04:05")
						}
					}
					fmt.Printf("%-10d %-40s %-10s %s\n", s.Version, s.Name, status, appliedAt)
				}
				return nil
			})
		},
	}
	statusCmd.Flags().String("dir", "", "Migrations directory (default: embedded migrations)")
	cmd.AddCommand(statusCmd)

	return cmd
}

func expireCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "expire",
		Short: "Mark bags, components and inventory units past their expiry date as expired",
		RunE: func(cmd *cobra.Command, args []string) error {
			hospital, _ := cmd.Flags().GetString("hospital")
			if hospital != "" {
				if err := (scope.Scope{HospitalID: hospital}).Validate(); err != nil {
					return fmt.Errorf("invalid --hospital: %w", err)
				}
			}

			cfg, err := config.Load()
			if err != nil {
				return err
			}
			logger := newLogger(cfg.Env)

			ctx := context.Background()
			pool, err := db.NewPool(ctx, cfg.DatabaseURL, cfg.DBMaxConns, cfg.DBMinConns)
			if err != nil {
				return err
			}
			defer pool.Close()

			counts, err := newSweeper(pool).Run(ctx, hospital)
			types := make([]string, 0, len(counts))
			total := 0
			for t, n := range counts {
				types = append(types, t)
				total += n
			}
			sort.Strings(types)
			for _, t := range types {
				logger.Info().Str("entity_type", t).Int("expired", counts[t]).Str("hospital_id", hospital).Msg("expiry sweep")
			}
			if total > 0 {
				invalidateDashboards(ctx, cfg, pool, hospital, logger)
			}
			return err
		},
	}
	cmd.Flags().String("hospital", "", "Limit the sweep to one hospital (default: all)")
	return cmd
}

// invalidateDashboards drops cached dashboards after a sweep changed stock.
// A sweep across all hospitals clears every snapshot.
func invalidateDashboards(ctx context.Context, cfg *config.Config, pool *pgxpool.Pool, hospital string, logger zerolog.Logger) {
	if cfg.RedisURL == "" {
		return
	}
	dashCache, err := cache.New(ctx, cfg.RedisURL, "bloodbank:")
	if err != nil {
		logger.Warn().Err(err).Msg("redis unavailable, cached dashboards expire with their TTL")
		return
	}
	defer dashCache.Close()

	dashboard := analytics.NewService(analytics.NewRepoPG(pool), dashCache, cfg.DashboardCacheTTL, logger)
	if hospital != "" {
		dashboard.Invalidate(ctx, hospital)
		return
	}
	dashboard.InvalidateAll(ctx)
}

func newSweeper(pool *pgxpool.Pool) *expiry.Sweeper {
	bags := bloodbag.NewBagRepoPG(pool)
	comps := bloodbag.NewComponentRepoPG(pool)
	units := inventory.NewRepoPG(pool)
	return expiry.NewSweeper(audit.NewRepoPG(pool), db.NewTxRunner(pool),
		expiry.Target{EntityType: audit.EntityBloodBag, Expire: bags.ExpireDue},
		expiry.Target{EntityType: audit.EntityComponent, Expire: comps.ExpireDue},
		expiry.Target{EntityType: audit.EntityInventory, Expire: units.ExpireDue},
	)
}

// newEcho builds the HTTP server with every route registered. pool may be
// nil in tests that never reach the database.
func newEcho(cfg *config.Config, pool *pgxpool.Pool, dashCache *cache.Cache, logger zerolog.Logger) *echo.Echo {
	e := echo.New()
	e.HideBanner = true
	e.HidePort = true
	e.HTTPErrorHandler = middleware.ErrorHandler(logger, cfg.IsProduction())

	e.Use(middleware.Recovery(logger))
	e.Use(middleware.RequestID())
	e.Use(middleware.Logger(logger))
	e.Use(echomw.CORSWithConfig(echomw.CORSConfig{
		AllowOrigins: cfg.CORSOrigins,
		AllowMethods: []string{http.MethodGet, http.MethodPost, http.MethodPut, http.MethodDelete},
		AllowHeaders: []string{"Authorization", "Content-Type", middleware.RequestIDHeader, scope.HeaderHospitalID},
	}))

	e.GET("/health", func(c echo.Context) error {
		return c.JSON(http.StatusOK, map[string]string{"status": "ok", "version": version})
	})
	if pool != nil {
		e.GET("/health/db", db.HealthHandler(pool, db.DependencyCheck{Name: "redis", Check: dashCache.Ping, Optional: true}))
	}

	var authMW echo.MiddlewareFunc
	if cfg.ResolvedAuthMode() == "development" {
		authMW = auth.DevAuthMiddleware()
	} else {
		authMW = auth.JWTMiddleware(auth.JWTConfig{
			Issuer:     cfg.AuthIssuer,
			Audience:   cfg.AuthAudience,
			SigningKey: []byte(cfg.AuthSigningKey),
		})
	}

	rateLimitCfg := middleware.RateLimitConfig{
		RequestsPerSecond: cfg.RateLimitRPS,
		BurstSize:         cfg.RateLimitBurst,
	}
	if rateLimitCfg.RequestsPerSecond <= 0 {
		rateLimitCfg = middleware.DefaultRateLimitConfig()
	}

	dashboard := analytics.NewService(analytics.NewRepoPG(pool), dashCache, cfg.DashboardCacheTTL, logger)
	apiV1 := e.Group("/api/v1", authMW, scope.Middleware(), middleware.RateLimit(rateLimitCfg),
		analytics.InvalidateOnWrite(dashboard))

	tx := db.NewTxRunner(pool)
	auditRepo := audit.NewRepoPG(pool)

	audit.NewHandler(audit.NewService(auditRepo)).RegisterRoutes(apiV1)
	booking.NewHandler(booking.NewService(booking.NewRepoPG(pool), auditRepo, tx)).RegisterRoutes(apiV1)
	bloodbag.NewHandler(bloodbag.NewService(
		bloodbag.NewBagRepoPG(pool), bloodbag.NewComponentRepoPG(pool), auditRepo, tx,
	)).RegisterRoutes(apiV1)
	inventory.NewHandler(inventory.NewService(inventory.NewRepoPG(pool), auditRepo, tx)).RegisterRoutes(apiV1)
	patient.NewHandler(patient.NewService(patient.NewRepoPG(pool), auditRepo, tx)).RegisterRoutes(apiV1)
	analytics.NewHandler(dashboard).RegisterRoutes(apiV1)

	return e
}

func runServer() error {
	logger := newLogger(os.Getenv("ENV"))

	cfg, err := loadConfig()
	if err != nil {
		logger.Fatal().Err(err).Msg("failed to load config")
	}
	logger = newLogger(cfg.Env)

	ctx := context.Background()
	pool, err := db.NewPool(ctx, cfg.DatabaseURL, cfg.DBMaxConns, cfg.DBMinConns)
	if err != nil {
		logger.Fatal().Err(err).Msg("failed to connect to database")
	}
	defer pool.Close()
	logger.Info().Msg("connected to database")

	dashCache, err := cache.New(ctx, cfg.RedisURL, "bloodbank:")
	if err != nil {
		logger.Warn().Err(err).Msg("redis unavailable, dashboard caching disabled")
		dashCache, _ = cache.New(ctx, "", "bloodbank:")
	}
	defer dashCache.Close()
	if dashCache.Enabled() {
		logger.Info().Msg("connected to redis")
	}

	e := newEcho(cfg, pool, dashCache, logger)
	logger.Info().Str("auth_mode", cfg.ResolvedAuthMode()).Str("env", cfg.Env).Msg("routes registered")

	go func() {
		addr := ":" + cfg.Port
		logger.Info().Str("addr", addr).Msg("starting server")
		if err := e.Start(addr); err != nil && err != http.ErrServerClosed {
			logger.Fatal().Err(err).Msg("server error")
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	logger.Info().Msg("shutting down server")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := e.Shutdown(shutdownCtx); err != nil {
		logger.Fatal().Err(err).Msg("server shutdown failed")
	}
	logger.Info().Msg("server stopped")
	return nil
}
