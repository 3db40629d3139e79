package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-redis/redis/v8"

	"github.com/bobarin/lessoncast/internal/api"
	"github.com/bobarin/lessoncast/internal/config"
	"github.com/bobarin/lessoncast/internal/db"
	"github.com/bobarin/lessoncast/internal/logger"
	"github.com/bobarin/lessoncast/internal/metrics"
	"github.com/bobarin/lessoncast/internal/pipeline"
	"github.com/bobarin/lessoncast/internal/queue"
	"github.com/bobarin/lessoncast/internal/services"
	"github.com/bobarin/lessoncast/internal/storage"
	"github.com/bobarin/lessoncast/internal/usage"
	"github.com/bobarin/lessoncast/internal/worker"
)

func main() {
	// Load configuration
	cfg, err := config.Load()
	if err != nil {
		bootLog, _ := logger.New("dev")
		bootLog.Fatal("failed to load config", "error", err)
	}

	log, err := logger.New(cfg.LogMode)
	if err != nil {
		panic(err)
	}
	defer log.Sync()

	log.Info("starting lessoncast api", "env", cfg.AppEnv, "dispatch", cfg.DispatchMode, "usage_backend", cfg.UsageBackend)
	m := metrics.New()

	// Connect to database
	database, err := db.New(cfg.DatabaseURL)
	if err != nil {
		log.Fatal("failed to connect to database", "error", err)
	}
	defer database.Close()
	if err := database.Migrate(context.Background()); err != nil {
		log.Fatal("failed to migrate database", "error", err)
	}
	log.Info("connected to database")

	// Redis is shared by the queue, lesson locks and the usage ledger
	var rdb *redis.Client
	if cfg.NeedsRedis() {
		rdb, err = queue.Connect(cfg.RedisURL)
		if err != nil {
			log.Fatal("failed to connect to redis", "error", err)
		}
		defer rdb.Close()
		log.Info("connected to redis")
	}

	var ledger usage.Ledger = usage.NewMemoryLedger()
	if cfg.UsageBackend == "redis" {
		ledger = usage.NewRedisLedger(rdb)
	}

	// Initialize storage
	stor := storage.New(cfg.SupabaseURL, cfg.SupabaseServiceKey, cfg.SupabaseStorageBucket, log)
	log.Info("initialized supabase storage", "bucket", cfg.SupabaseStorageBucket)

	// Providers are fixed for the lifetime of the process
	textProvider := services.SelectTextProvider(services.TextProviderConfig{
		OpenAIKey:   cfg.OpenAIKey,
		OpenAIModel: cfg.OpenAIModel,
		GeminiKey:   cfg.GeminiKey,
		GeminiModel: cfg.GeminiModel,
	})
	if textProvider != nil {
		log.Info("script provider selected", "provider", textProvider.Name())
	} else {
		log.Warn("no script provider configured, using fallback scripts")
	}

	speechProvider := services.SelectSpeechProvider(services.SpeechProviderConfig{
		ElevenLabsKey:     cfg.ElevenLabsKey,
		ElevenLabsVoiceID: cfg.ElevenLabsVoiceID,
		ElevenLabsModel:   cfg.ElevenLabsModel,
		CartesiaKey:       cfg.CartesiaKey,
		CartesiaURL:       cfg.CartesiaURL,
		CartesiaVoiceID:   cfg.CartesiaVoiceID,
	}, log)
	if speechProvider != nil {
		log.Info("speech provider selected", "provider", speechProvider.Name())
	} else {
		log.Warn("no speech provider configured, narration will be silent mock audio")
	}

	scripts := services.NewScriptGenerator(textProvider, cfg.ScriptTimeout, log, m)
	speech := services.NewSpeechSynthesizer(speechProvider, ledger, stor, services.SpeechConfig{
		Production:       cfg.IsProduction(),
		MonthlyCharLimit: cfg.TTSMonthlyCharLimit,
		MaxScriptChars:   cfg.TTSMaxScriptChars,
		Timeout:          cfg.TTSTimeout,
	}, log, m)

	frames, err := services.NewFrameRenderer()
	if err != nil {
		log.Fatal("failed to load frame fonts", "error", err)
	}
	encoder := services.NewFFmpegService(log)

	assembler := pipeline.NewAssembler(scripts, speech, frames, encoder, stor, cfg.TTSCallDelay, log)

	var locker pipeline.Locker = pipeline.NewMemoryLocker()
	if rdb != nil {
		locker = queue.NewLessonLock(rdb, cfg.LessonLockTTL)
	}
	orchestrator := pipeline.NewOrchestrator(database, assembler, stor, locker, cfg.TempDir, log, m)

	// Background work outlives individual requests but not the process
	workerCtx, workerCancel := context.WithCancel(context.Background())
	defer workerCancel()

	var (
		dispatcher worker.Dispatcher
		inline     *worker.InlineDispatcher
		workerDone = make(chan struct{})
	)
	switch cfg.DispatchMode {
	case "inline":
		inline = worker.NewInlineDispatcher(workerCtx, database, orchestrator, cfg.LessonLockTTL, log)
		dispatcher = inline
		close(workerDone)
	default:
		q := queue.NewWithClient(rdb)
		dispatcher = worker.NewQueueDispatcher(database, q, cfg.LessonLockTTL)
		if cfg.WorkerEnabled {
			w := worker.New(q, database, orchestrator, log)
			go func() {
				w.Start(workerCtx, cfg.MaxConcurrentJobs)
				close(workerDone)
			}()
		} else {
			log.Info("worker disabled, jobs are only enqueued")
			close(workerDone)
		}
	}

	handler := api.NewHandler(database, dispatcher, orchestrator, speech, log)
	router := api.NewRouter(handler, api.RouterConfig{
		BackendAPIKey:      cfg.BackendAPIKey,
		CorsAllowedOrigins: cfg.CorsAllowedOrigins,
	}, log)

	if cfg.BackendAPIKey != "" {
		log.Info("api key authentication enabled")
	} else {
		log.Warn("no BACKEND_API_KEY set, API is unprotected (dev mode)")
	}

	server := &http.Server{
		Addr:              ":" + cfg.APIPort,
		Handler:           router,
		ReadHeaderTimeout: 10 * time.Second,
	}

	go func() {
		log.Info("api server listening", "port", cfg.APIPort)
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatal("server error", "error", err)
		}
	}()

	// Wait for interrupt signal
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Info("shutting down")

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := server.Shutdown(ctx); err != nil {
		log.Error("server forced to shutdown", "error", err)
	}

	// In-flight runs see a cancelled context and persist their failure.
	workerCancel()
	<-workerDone
	if inline != nil {
		inline.Wait()
	}

	log.Info("server exited")
}
