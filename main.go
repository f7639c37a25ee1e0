package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/cors"
	"github.com/spf13/pflag"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
	gormlogger "gorm.io/gorm/logger"

	"github.com/camden-git/familytree/config"
	"github.com/camden-git/familytree/database"
	"github.com/camden-git/familytree/handlers"
	"github.com/camden-git/familytree/layout"
	"github.com/camden-git/familytree/logging"
	"github.com/camden-git/familytree/realtime"
	"github.com/camden-git/familytree/repository"
	"github.com/camden-git/familytree/services"
	"github.com/camden-git/familytree/storage"
	"github.com/camden-git/familytree/workers"
)

func main() {
	envFile := pflag.String("env-file", ".env", "path of the .env file to load")
	portFlag := pflag.StringP("port", "p", "", "listen port, overrides PORT")
	pflag.Parse()

	bootstrap, _ := logging.New("info", "console")
	restore := logging.Install(bootstrap)

	if err := godotenv.Load(*envFile); err != nil {
		zap.S().Infof("No .env file found or error loading %s: %v", *envFile, err)
	}
	cfg, err := config.LoadConfig()
	if err != nil {
		zap.S().Fatalf("FATAL: Failed to load configuration: %v", err)
	}
	if *portFlag != "" {
		cfg.Port = *portFlag
	}
	if err := cfg.Validate(); err != nil {
		zap.S().Fatalf("FATAL: Invalid configuration: %v", err)
	}

	logger, err := logging.New(cfg.LogLevel, cfg.LogFormat)
	if err != nil {
		zap.S().Fatalf("FATAL: Failed to build logger: %v", err)
	}
	restore()
	defer logging.Install(logger)()
	defer logger.Sync() //nolint:errcheck

	storagePaths := []string{cfg.StoragePath, cfg.ExportsPath, filepath.Dir(cfg.DatabasePath)}
	for _, p := range storagePaths {
		zap.S().Infof("Ensuring storage directory exists: %s", p)
		if err := os.MkdirAll(p, 0755); err != nil {
			zap.S().Fatalf("FATAL: Failed to create storage directory %s: %v", p, err)
		}
	}

	gormLevel := gormlogger.Warn
	if cfg.LogLevel == "debug" {
		gormLevel = gormlogger.Info
	}
	db, err := database.InitGormDB(cfg.DatabasePath, logging.Gorm(logger, gormLevel))
	if err != nil {
		zap.S().Fatalf("FATAL: Failed to initialize database: %v", err)
	}
	if err := database.AutoMigrateModels(db); err != nil {
		zap.S().Fatalf("FATAL: %v", err)
	}
	sqlDB, err := db.DB()
	if err != nil {
		zap.S().Fatalf("FATAL: Failed to get database handle: %v", err)
	}
	defer sqlDB.Close()

	layoutParams, err := layout.ApplyOverrides(layout.DefaultParams(), cfg.LayoutParams)
	if err != nil {
		zap.S().Fatalf("FATAL: %v", err)
	}

	files, err := storage.NewLocalStorage(cfg.StoragePath, map[storage.AssetType]string{
		storage.AssetTypeExport: filepath.Base(cfg.ExportsPath),
	})
	if err != nil {
		zap.S().Fatalf("FATAL: Failed to initialize export storage: %v", err)
	}

	hub := realtime.NewHub()
	store := repository.NewTreeRepository(db)
	treeService := services.NewTreeService(store, hub, cfg.MaxUploadBytes)
	treeService.Files = files
	layoutService := services.NewLayoutService(treeService, hub, services.LayoutOptions{
		Params:          layoutParams,
		TickInterval:    cfg.LayoutTickInterval,
		BroadcastEvery:  cfg.LayoutBroadcastEvery,
		MaxTicks:        cfg.LayoutMaxTicks,
		RestartDebounce: cfg.LayoutRestartDebounce,
	})
	treeService.OnChange(layoutService.TreeChanged)

	zap.S().Infof("Initializing tree worker pool (Workers: %d, Queue Size: %d)...", cfg.NumTreeWorkers, cfg.TreeQueueSize)
	treeProcessor := workers.NewTreeProcessor(treeService, store, hub, cfg.TreeQueueSize, cfg.NumTreeWorkers)
	if n, err := treeProcessor.QueueReindexAll(); err != nil {
		zap.S().Errorf("Failed to queue boot reindex: %v", err)
	} else {
		zap.S().Infof("Queued person index rebuild for %d tree(s)", n)
	}

	zap.S().Infof("Using database: %s", cfg.DatabasePath)
	zap.S().Infof("Writing exports to: %s", cfg.ExportsPath)
	zap.S().Infof("Max upload size: %d bytes", cfg.MaxUploadBytes)

	r := chi.NewRouter()

	corsOptions := cors.Options{
		AllowedOrigins:   cfg.AllowedOrigins,
		AllowedMethods:   []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Content-Type", "X-CSRF-Token"},
		ExposedHeaders:   []string{"Content-Disposition"},
		AllowCredentials: true,
		MaxAge:           300,
	}

	corsHandler := cors.New(corsOptions)

	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)
	r.Use(handlers.RequestMetrics)
	r.Use(corsHandler.Handler)

	treeHandler := handlers.NewTreeHandler(treeService, layoutService, treeProcessor)

	r.Route("/api", func(r chi.Router) {
		r.Use(middleware.Timeout(60 * time.Second))
		r.Mount("/trees", treeHandler.Routes())
		r.Get(fmt.Sprintf("/%s/*", filepath.Base(cfg.ExportsPath)), handlers.ExportServer(cfg.ExportsPath, fmt.Sprintf("/api/%s/", filepath.Base(cfg.ExportsPath))))
	})
	r.Get("/ws", hub.ServeWS)
	r.Handle("/metrics", promhttp.Handler())

	serverAddr := ":" + cfg.Port
	zap.S().Infof("Server listening on %s", serverAddr)
	server := &http.Server{
		Addr:              serverAddr,
		Handler:           r,
		ReadHeaderTimeout: 10 * time.Second,
		IdleTimeout:       120 * time.Second,
		// no read/write timeouts: they would cut long-lived websocket streams
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		return hub.Run(gctx)
	})
	g.Go(func() error {
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("http server failed: %w", err)
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		zap.S().Info("Shutting down server...")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		return server.Shutdown(shutdownCtx)
	})

	if err := g.Wait(); err != nil {
		zap.S().Errorf("Server stopped with error: %v", err)
	}

	layoutService.Shutdown()
	treeProcessor.Stop()
	zap.S().Info("Shutdown complete")
}
