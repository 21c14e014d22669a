package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/golang-migrate/migrate/v4"
	_ "github.com/golang-migrate/migrate/v4/database/postgres"
	_ "github.com/golang-migrate/migrate/v4/source/file"
	"github.com/jmoiron/sqlx"
	_ "github.com/lib/pq"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog/log"

	"rdmquota/internal/auth"
	"rdmquota/internal/cache"
	"rdmquota/internal/config"
	"rdmquota/internal/handler"
	"rdmquota/internal/logging"
	"rdmquota/internal/repository"
	"rdmquota/internal/service"
)

func connectWithRetry(cfg *config.DatabaseConfig, maxAttempts int, delay time.Duration) (*sqlx.DB, error) {
	dsn := cfg.GetDSN()

	// The postgres system database always exists; use it to create ours.
	pgDSN := strings.Replace(dsn, "dbname="+cfg.Name, "dbname=postgres", 1)
	pgDB, err := sqlx.Connect("postgres", pgDSN)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to postgres database: %v", err)
	}
	defer pgDB.Close()

	var exists bool
	err = pgDB.Get(&exists, "SELECT EXISTS(SELECT datname FROM pg_catalog.pg_database WHERE datname = $1)", cfg.Name)
	if err != nil {
		return nil, fmt.Errorf("failed to check database existence: %v", err)
	}

	if !exists {
		log.Info().Str("database", cfg.Name).Msg("database does not exist, creating")
		_, err = pgDB.Exec(fmt.Sprintf("CREATE DATABASE %s", cfg.Name))
		if err != nil {
			return nil, fmt.Errorf("failed to create database: %v", err)
		}
	}

	var db *sqlx.DB
	for i := 0; i < maxAttempts; i++ {
		db, err = sqlx.Connect("postgres", dsn)
		if err == nil {
			return db, nil
		}

		log.Warn().Err(err).Int("attempt", i+1).Int("max_attempts", maxAttempts).Msg("failed to connect to database")
		time.Sleep(delay)
	}

	return nil, fmt.Errorf("failed to connect after %d attempts: %v", maxAttempts, err)
}

func runMigrations(cfg *config.Config) error {
	databaseURL := fmt.Sprintf(
		"postgres://%s:%s@%s:%s/%s?sslmode=%s",
		cfg.Database.User,
		cfg.Database.Password,
		cfg.Database.Host,
		cfg.Database.Port,
		cfg.Database.Name,
		cfg.Database.SSLMode,
	)

	var m *migrate.Migrate
	var err error

	for i := 0; i < 5; i++ {
		m, err = migrate.New("file://migrations", databaseURL)
		if err == nil {
			break
		}
		log.Warn().Err(err).Int("attempt", i+1).Msg("failed to create migrate instance")
		time.Sleep(time.Second * 5)
	}

	if err != nil {
		return fmt.Errorf("failed to create migrate instance after retries: %w", err)
	}
	defer m.Close()

	version, dirty, err := m.Version()
	if err != nil && err != migrate.ErrNilVersion {
		return fmt.Errorf("failed to get migration version: %w", err)
	}

	if dirty {
		log.Warn().Uint("version", version).Msg("found dirty database state, forcing version")
		if err := m.Force(int(version)); err != nil {
			return fmt.Errorf("failed to force version: %w", err)
		}
	}

	if err := m.Up(); err != nil && err != migrate.ErrNoChange {
		return fmt.Errorf("failed to run migrations: %w", err)
	}

	return nil
}

func main() {
	appConfig, err := config.NewConfig(".app.env")
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to load config: %v\n", err)
		os.Exit(1)
	}

	logging.Init(appConfig.Server.Development)

	db, err := connectWithRetry(&appConfig.Database, 5, time.Second*5)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to connect to database after retries")
	}
	defer db.Close()

	if err := runMigrations(appConfig); err != nil {
		log.Fatal().Err(err).Msg("failed to run migrations")
	}

	db.SetMaxOpenConns(25)
	db.SetMaxIdleConns(5)
	db.SetConnMaxLifetime(5 * time.Minute)

	if err := db.Ping(); err != nil {
		log.Fatal().Err(err).Msg("failed to ping database")
	}

	authConfig, err := auth.NewConfig(".auth.env")
	if err != nil {
		log.Fatal().Err(err).Msg("failed to load auth config")
	}
	auth.Init(authConfig)

	redisClient := redis.NewClient(&redis.Options{
		Addr:     appConfig.Redis.Addr,
		Password: appConfig.Redis.Password,
		DB:       appConfig.Redis.DB,
	})
	if err := redisClient.Ping(context.Background()).Err(); err != nil {
		// The classification cache degrades to in-process memory.
		log.Warn().Err(err).Msg("redis unavailable, caching locally only")
	}

	regionRepo := repository.NewRegionRepository(db)
	projectRepo := repository.NewProjectRepository(db)
	fileNodeRepo := repository.NewFileNodeRepository(db)
	fileInfoRepo := repository.NewFileInfoRepository(db)
	quotaRepo := repository.NewQuotaRepository(db)

	storageTypeCache := cache.NewStorageTypeCache(redisClient, 10*time.Minute)

	niiRegionID := appConfig.Quota.NIIStorageRegionID
	catalogService := service.NewCatalogService(regionRepo)
	classifierService := service.NewClassifierService(projectRepo, storageTypeCache)
	resolverService := service.NewResolverService(fileNodeRepo)
	ledgerService := service.NewLedgerService(
		projectRepo,
		fileNodeRepo,
		fileInfoRepo,
		quotaRepo,
		catalogService,
		classifierService,
		resolverService,
		niiRegionID,
		log.Logger,
	)
	recalcService := service.NewRecalcService(
		projectRepo,
		fileNodeRepo,
		regionRepo,
		quotaRepo,
		niiRegionID,
		log.Logger,
	)
	queryService := service.NewQueryService(
		projectRepo,
		classifierService,
		catalogService,
		quotaRepo,
		recalcService,
		log.Logger,
	)

	quotaHandler := handler.NewQuotaHandler(queryService, recalcService)
	eventHandler := handler.NewEventHandler(ledgerService)

	r := chi.NewRouter()

	r.Use(chimiddleware.RequestID)
	r.Use(chimiddleware.Recoverer)
	r.Use(chimiddleware.Timeout(60 * time.Second))
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   []string{"*"},
		AllowedMethods:   []string{"GET", "POST", "PUT", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type"},
		AllowCredentials: true,
		MaxAge:           300,
	}))

	r.Route("/v1", func(r chi.Router) {
		r.Route("/quota", func(r chi.Router) {
			r.Get("/{guid}", quotaHandler.GetQuotaInfo)
			r.Get("/{guid}/institutional-storage", quotaHandler.GetInstitutionStorageQuotaInfo)
			r.Put("/institutional-storage/limit", quotaHandler.UpdateStorageMaxQuota)
		})
	})

	r.Route("/internal/v1", func(r chi.Router) {
		r.Get("/quota/{guid}", quotaHandler.GetQuotaInfoInternal)
		r.Post("/quota/recalculate", quotaHandler.Recalculate)
		r.Post("/events", eventHandler.HandleFileEvent)
	})

	httpServer := &http.Server{
		Addr:    fmt.Sprintf(":%s", appConfig.Server.Port),
		Handler: r,
	}

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)

	go func() {
		log.Info().Str("port", appConfig.Server.Port).Msg("starting HTTP server")
		if err := httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatal().Err(err).Msg("failed to start HTTP server")
		}
	}()

	// Counters drift when events are lost; sweep them back into line.
	if appConfig.Quota.RecalcIntervalMinutes > 0 {
		recalcTicker := time.NewTicker(time.Duration(appConfig.Quota.RecalcIntervalMinutes) * time.Minute)
		go func() {
			for {
				select {
				case <-recalcTicker.C:
					ctx := context.Background()
					if err := recalcService.RecalculateAll(ctx); err != nil {
						log.Error().Err(err).Msg("error during quota recalculation sweep")
					}
				case <-quit:
					recalcTicker.Stop()
					return
				}
			}
		}()
	}

	<-quit
	log.Info().Msg("shutting down server")

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := httpServer.Shutdown(ctx); err != nil {
		log.Error().Err(err).Msg("HTTP server forced to shutdown")
	}

	if err := redisClient.Close(); err != nil {
		log.Error().Err(err).Msg("error closing redis connection")
	}

	if err := db.Close(); err != nil {
		log.Error().Err(err).Msg("error closing database connection")
	}

	log.Info().Msg("server exited properly")
}
