package main

import (
	"context"
	"database/sql"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"school-fees/internal/clients"
	"school-fees/internal/config"
	"school-fees/internal/lock"
	"school-fees/internal/repository"
	"school-fees/internal/repository/memory"
	"school-fees/internal/service"
	"school-fees/internal/transport/auth"
	"school-fees/internal/transport/rest"
	"school-fees/internal/transport/websocket"
	"school-fees/pkg/database/postgres"

	"github.com/go-chi/chi/v5"
	_ "github.com/jackc/pgx/v5/stdlib"
	"github.com/joho/godotenv"
	"go.uber.org/zap"
)

type repositories struct {
	heads      service.FeeHeadRepository
	structures service.FeeStructureRepository
	roster     service.RosterRepository
	invoices   service.InvoiceRepository
	close      func()
}

func main() {
	envErr := godotenv.Load()

	// top-level context which we can cancel on shutdown
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	cfg := config.Load()

	logger := mustInitLogger(cfg)
	defer func() { _ = logger.Sync() }()
	zap.ReplaceGlobals(logger)
	if envErr != nil {
		logger.Info("no .env file found, using system env or defaults")
	}
	if len(cfg.APITokens) == 0 {
		logger.Warn("API_TOKENS is empty, every protected request will be rejected")
	}

	repos := mustInitRepositories(ctx, cfg, logger)
	defer repos.close()

	// generation and export status go through redis when it is enabled so several
	// instances share them; a single instance keeps both in process
	var (
		locker      service.Locker        = lock.NewKeyedMutex()
		exportCache service.KeyValueStore = clients.NewMemoryCache()
		redisClient *clients.RedisClient
	)
	if cfg.Redis.Enabled {
		redisClient = mustInitRedis(cfg)
		defer redisClient.Close()
		locker = redisClient
		exportCache = redisClient
	}

	storageClient, err := clients.NewLocalStorage(cfg.ExportDir, cfg.FilesPublicPrefix, cfg.ExternalURL)
	if err != nil {
		logger.Fatal("storage init error", zap.Error(err))
	}
	var files service.FileStore = storageClient
	if cfg.S3.Enabled {
		files = mustInitS3(ctx, cfg)
	}

	wsHub := websocket.NewHub(logger)
	go wsHub.Run(ctx)
	wsClient := clients.NewWebSocketClient(wsHub)

	generator := service.NewInvoiceGenerator(repos.heads, repos.structures, repos.roster, repos.invoices, locker, wsClient, logger)
	ledger := service.NewPaymentLedger(repos.invoices, wsClient, logger, cfg.PaymentMaxRetries)
	querySvc := service.NewQueryService(repos.roster, repos.invoices)
	feeConfig := service.NewFeeConfigService(repos.heads, repos.structures)
	exportSvc := service.NewExportService(querySvc, exportCache, files, wsClient, logger, cfg.ExportPrefix, cfg.ExportTTL)

	tokenMiddleware := auth.TokenMiddleware(cfg.APITokens, logger)

	handler := rest.NewHandler(generator, ledger, querySvc, feeConfig, exportSvc, logger)
	router := handler.InitRouterWithAuth(tokenMiddleware)

	// create a public root router and mount the api router underneath so
	// /files stays public while the api routes remain protected
	root := chi.NewRouter()

	root.Get(strings.TrimSuffix(cfg.FilesPublicPrefix, "/")+"/{file}", func(w http.ResponseWriter, r *http.Request) {
		file := chi.URLParam(r, "file")
		path, ok := storageClient.Resolve(file)
		if !ok {
			http.NotFound(w, r)
			return
		}

		w.Header().Set("Content-Disposition", fmt.Sprintf("attachment; filename=%q", clients.OriginalName(file)))
		http.ServeFile(w, r, path)
	})

	// protected websocket endpoint; operators always receive their own export events
	router.With(tokenMiddleware).Get("/ws", func(w http.ResponseWriter, r *http.Request) {
		operatorID, err := auth.GetOperatorID(r.Context())
		if err != nil {
			http.Error(w, "Unauthorized", http.StatusUnauthorized)
			return
		}

		topics := []string{clients.OperatorTopic(operatorID)}
		for _, t := range r.URL.Query()["topic"] {
			if t = strings.TrimSpace(t); t != "" && !strings.HasPrefix(t, "operator#") {
				topics = append(topics, t)
			}
		}

		logger.Info("ws connected", zap.Int64("operator_id", operatorID), zap.Strings("topics", topics))
		wsHub.HandleWebSocket(w, r, topics)
	})

	root.Mount("/", router)

	corsHandler := withCORS(root)

	srv := &http.Server{
		Addr:         ":" + cfg.Port,
		Handler:      corsHandler,
		ReadTimeout:  30 * time.Second,
		WriteTimeout: 70 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	// Run HTTP server in goroutine so we can listen for shutdown signals
	srvErr := make(chan error, 1)
	go func() {
		logger.Info("HTTP server listening", zap.String("addr", srv.Addr), zap.String("storage", cfg.StorageDriver))
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			srvErr <- err
			return
		}
		srvErr <- nil
	}()

	// exports written to local disk expire together with their status
	if !cfg.S3.Enabled {
		go cleanupExports(ctx, storageClient, cfg.ExportTTL, logger)
	}

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, os.Interrupt, syscall.SIGTERM)

	select {
	case err := <-srvErr:
		if err != nil {
			logger.Fatal("HTTP server error", zap.Error(err))
		}
	case sig := <-stop:
		logger.Info("shutdown signal received", zap.String("signal", sig.String()))

		shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer shutdownCancel()

		if err := srv.Shutdown(shutdownCtx); err != nil {
			logger.Error("HTTP server shutdown error", zap.Error(err))
		}

		// let running exports finish before their stores go away
		exportSvc.Wait()

		// Cancel top-level context so background services (websocket hub) stop
		cancel()

		logger.Info("shutdown complete")
	}
}

func mustInitLogger(cfg config.AppConfig) *zap.Logger {
	var (
		logger *zap.Logger
		err    error
	)
	if cfg.IsDev() {
		logger, err = zap.NewDevelopment()
	} else {
		logger, err = zap.NewProduction()
	}
	if err != nil {
		fmt.Fprintf(os.Stderr, "logger init error: %v\n", err)
		os.Exit(1)
	}
	return logger
}

func mustInitRepositories(ctx context.Context, cfg config.AppConfig, logger *zap.Logger) repositories {
	if cfg.StorageDriver == config.DriverMemory {
		store := memory.NewStore()
		if cfg.RosterSeedFile != "" {
			mustSeedRoster(store, cfg.RosterSeedFile, logger)
		}
		return repositories{
			heads:      store,
			structures: store,
			roster:     store,
			invoices:   store,
			close:      func() {},
		}
	}

	db := mustInitPostgres(ctx, cfg.Postgres, logger)
	return repositories{
		heads:      repository.NewFeeHeadRepository(db),
		structures: repository.NewFeeStructureRepository(db),
		roster:     repository.NewRosterRepository(db),
		invoices:   repository.NewInvoiceRepository(db),
		close:      func() { postgres.Close(db) },
	}
}

func mustSeedRoster(store *memory.Store, path string, logger *zap.Logger) {
	f, err := os.Open(path)
	if err != nil {
		logger.Fatal("open roster seed", zap.String("path", path), zap.Error(err))
	}
	defer f.Close()

	n, err := store.LoadRoster(f)
	if err != nil {
		logger.Fatal("load roster seed", zap.String("path", path), zap.Error(err))
	}
	logger.Info("roster seeded", zap.Int("students", n))
}

func mustInitPostgres(ctx context.Context, cfg config.PostgresConfig, logger *zap.Logger) *sql.DB {
	db, err := postgres.NewPostgresConnection(postgres.ConnectionInfo{
		Host:     cfg.Host,
		Port:     cfg.Port,
		Username: cfg.User,
		DBName:   cfg.DBName,
		SSLMode:  cfg.SSLMode,
		Password: cfg.Password,
	})
	if err != nil {
		logger.Fatal("postgres init error", zap.Error(err))
	}

	if cfg.Migrate {
		if err := postgres.Migrate(ctx, db); err != nil {
			logger.Fatal("postgres migrate error", zap.Error(err))
		}
	}
	return db
}

func mustInitRedis(cfg config.AppConfig) *clients.RedisClient {
	client, err := clients.NewRedisClient(clients.RedisConfig{
		Addr:        cfg.Redis.Addr,
		Password:    cfg.Redis.Password,
		DB:          cfg.Redis.DB,
		MaxRetries:  cfg.Redis.MaxRetries,
		DialTimeout: time.Duration(cfg.Redis.DialTimeout) * time.Second,
		Timeout:     time.Duration(cfg.Redis.Timeout) * time.Second,
		Prefix:      cfg.Redis.Prefix,
		LockTTL:     cfg.GenerateLockTTL,
	})
	if err != nil {
		zap.L().Fatal("redis init error", zap.Error(err))
	}
	return client
}

func mustInitS3(ctx context.Context, cfg config.AppConfig) *clients.S3Client {
	client, err := clients.NewS3Client(ctx, clients.S3Config{
		Endpoint:        cfg.S3.Endpoint,
		AccessKeyID:     cfg.S3.AccessKeyID,
		SecretAccessKey: cfg.S3.SecretAccessKey,
		Bucket:          cfg.S3.Bucket,
		UseSSL:          cfg.S3.UseSSL,
		Region:          cfg.S3.Region,
		Prefix:          cfg.S3.Prefix,
		URLExpiry:       cfg.ExportTTL,
	})
	if err != nil {
		zap.L().Fatal("s3 init error", zap.Error(err))
	}
	return client
}

func cleanupExports(ctx context.Context, storage *clients.StorageClient, maxAge time.Duration, logger *zap.Logger) {
	ticker := time.NewTicker(5 * time.Minute)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if err := storage.CleanupOlderThan(maxAge); err != nil {
				logger.Warn("storage cleanup error", zap.Error(err))
			}
		}
	}
}

func withCORS(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		origin := r.Header.Get("Origin")
		if origin != "" {
			w.Header().Set("Access-Control-Allow-Origin", origin)
			w.Header().Set("Vary", "Origin")

			w.Header().Set("Access-Control-Allow-Credentials", "true")
			w.Header().Set("Access-Control-Allow-Methods", "GET,POST,PUT,PATCH,OPTIONS")
			w.Header().Set("Access-Control-Allow-Headers", "Content-Type, Authorization, X-Requested-With")
		}

		if r.Method == http.MethodOptions {
			w.WriteHeader(http.StatusNoContent)
			return
		}

		next.ServeHTTP(w, r)
	})
}
