package main

import (
	"context"
	"database/sql"
	"errors"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"falldetect/internal/auth"
	sisfall "falldetect/internal/corpus/infrastructure/sisfall"
	"falldetect/internal/evaluation/application"
	evaluation "falldetect/internal/evaluation/domain"
	"falldetect/internal/evaluation/infrastructure/cache"
	"falldetect/internal/evaluation/infrastructure/memory"
	evalrepo "falldetect/internal/evaluation/infrastructure/postgres"
	"falldetect/internal/evaluation/interfaces/export"
	evalhttp "falldetect/internal/evaluation/interfaces/http"
	"falldetect/internal/evaluation/notify"
	"falldetect/internal/observability/metrics"

	"github.com/gorilla/handlers"
	"github.com/gorilla/mux"
	_ "github.com/jackc/pgx/v5/stdlib"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

func main() {
	cfg := loadConfig()
	logger := log.New(os.Stdout, "", log.LstdFlags)

	appCfg, err := application.LoadConfig()
	if err != nil {
		logger.Fatalf("config error: %v", err)
	}

	var db *sql.DB
	var repo evaluation.RunRepository
	if cfg.DatabaseURL != "" {
		db, err = sql.Open("pgx", cfg.DatabaseURL)
		if err != nil {
			logger.Fatalf("db open error: %v", err)
		}
		defer db.Close()
		if err := db.Ping(); err != nil {
			logger.Fatalf("db ping error: %v", err)
		}
		repo = evalrepo.NewRunRepository(db)
	} else {
		logger.Printf("DATABASE_URL not set, search runs are kept in memory")
		repo = memory.NewRunRepository()
	}
	metrics.Init(db, logger)

	loader, err := sisfall.NewLoader(appCfg.Corpus.Root, sisfall.Options{
		SamplingFreq: appCfg.Corpus.SamplingFreq,
		Range:        appCfg.Corpus.Range,
		Resolution:   appCfg.Corpus.Resolution,
	}, logger)
	if err != nil {
		logger.Fatalf("corpus loader error: %v", err)
	}

	evaluator := evaluation.NewEvaluator(
		evaluation.WithWorkers(appCfg.Workers.Recordings),
		evaluation.WithRecordingTimeout(appCfg.RecordingTimeout),
		evaluation.WithLogger(logger),
		evaluation.WithRecordingObserver(func(res evaluation.RecordingResult) {
			metrics.ObserveRecording(string(res.Outcome), res.Duration)
		}),
	)

	opts := []application.ServiceOption{
		application.WithServiceLogger(logger),
		application.WithDetectorDefaults(appCfg.Detector),
		application.WithGrid(appCfg.Grid),
		application.WithPublicBaseURL(appCfg.PublicBaseURL),
		application.WithSearchOptions(
			evaluation.WithSearchWorkers(appCfg.Workers.Cells),
			evaluation.WithCellTimeout(appCfg.CellTimeout),
			evaluation.WithSearchLogger(logger),
			evaluation.WithCellObserver(observeCell),
		),
	}
	if appCfg.Cache.RedisURL != "" {
		redisCache, err := cache.NewRedisCacheFromURL(context.Background(), appCfg.Cache.RedisURL, appCfg.Cache.TTL)
		if err != nil {
			logger.Fatalf("redis cache error: %v", err)
		}
		defer redisCache.Close()
		opts = append(opts, application.WithResultCache(redisCache))
	} else {
		opts = append(opts, application.WithResultCache(cache.NewMemoryCache()))
	}
	if appCfg.WebhookURL != "" {
		opts = append(opts, application.WithNotifier(notify.NewWebhookNotifier(appCfg.WebhookURL, appCfg.WebhookTimeout)))
	}
	if appCfg.StorageRoot != "" {
		writer, err := export.NewFileWriter(appCfg.StorageRoot)
		if err != nil {
			logger.Fatalf("report writer error: %v", err)
		}
		opts = append(opts, application.WithReportWriter(writer))
	}

	service, err := application.NewSearchService(repo, loader, evaluator, opts...)
	if err != nil {
		logger.Fatalf("search service error: %v", err)
	}
	handler, err := evalhttp.NewHandler(service, logger)
	if err != nil {
		logger.Fatalf("evaluation handler error: %v", err)
	}

	router := mux.NewRouter()
	handler.Register(router)
	router.Handle("/metrics", promhttp.Handler())
	router.HandleFunc("/healthz", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	})

	policy := auth.NewDefaultPolicy([]string{"/healthz", "/metrics"}, nil)
	authMiddleware := auth.NewMiddleware([]byte(cfg.JWTSecret), policy, logger)

	var root http.Handler = authMiddleware.Wrap(router)
	root = handlers.LoggingHandler(os.Stdout, root)
	root = handlers.RecoveryHandler(handlers.RecoveryLogger(logger), handlers.PrintRecoveryStack(true))(root)

	server := &http.Server{
		Addr:              cfg.HTTPAddr,
		Handler:           root,
		ReadHeaderTimeout: 10 * time.Second,
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	go func() {
		logger.Printf("http listening on %s corpus=%s cells=%d", cfg.HTTPAddr, loader.Root(), appCfg.Grid.Size())
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Fatalf("http server error: %v", err)
		}
	}()
	<-ctx.Done()

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Printf("http shutdown error: %v", err)
	}
	if err := service.Shutdown(shutdownCtx); err != nil {
		logger.Printf("search service shutdown error: %v", err)
	}
}

func observeCell(res evaluation.CellResult) {
	result := metrics.ResultSuccess
	switch {
	case res.Invalid:
		result = "invalid"
	case res.Err != nil:
		result = metrics.ResultError
	}
	metrics.ObserveSearchCell(result, res.Duration)
}

type config struct {
	DatabaseURL     string
	HTTPAddr        string
	JWTSecret       string
	ShutdownTimeout time.Duration
}

func loadConfig() config {
	cfg := config{
		DatabaseURL:     getenvDefault("DATABASE_URL", getenvDefault("PG_DSN", "")),
		HTTPAddr:        getenvDefault("HTTP_ADDR", ":8080"),
		JWTSecret:       getenvDefault("AUTH_JWT_SECRET", getenvDefault("JWT_SECRET", "")),
		ShutdownTimeout: getenvDuration("SHUTDOWN_TIMEOUT", 30*time.Second),
	}
	if cfg.JWTSecret == "" {
		log.Fatal("AUTH_JWT_SECRET is required")
	}
	return cfg
}

func getenvDefault(key, fallback string) string {
	value := os.Getenv(key)
	if value == "" {
		return fallback
	}
	return value
}

func getenvDuration(key string, fallback time.Duration) time.Duration {
	value := os.Getenv(key)
	if value == "" {
		return fallback
	}
	parsed, err := time.ParseDuration(value)
	if err != nil {
		return fallback
	}
	return parsed
}
