package main

import (
	"context"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/hibiken/asynq"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/redis/go-redis/v9"

	"github.com/nexusflow/backend/internal/api"
	"github.com/nexusflow/backend/internal/api/handlers"
	"github.com/nexusflow/backend/internal/cache"
	"github.com/nexusflow/backend/internal/config"
	"github.com/nexusflow/backend/internal/database"
	"github.com/nexusflow/backend/internal/document"
	"github.com/nexusflow/backend/internal/email"
	"github.com/nexusflow/backend/internal/embedding"
	"github.com/nexusflow/backend/internal/llm"
	"github.com/nexusflow/backend/internal/outreach"
	"github.com/nexusflow/backend/internal/queue"
	"github.com/nexusflow/backend/internal/queue/workers"
	"github.com/nexusflow/backend/internal/rag"
	"github.com/nexusflow/backend/internal/stats"
	"github.com/nexusflow/backend/internal/vectorstore"
	"github.com/nexusflow/backend/pkg/chunker"
)

func main() {
	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelInfo}))
	slog.SetDefault(logger)

	cfg, err := config.Load()
	if err != nil {
		slog.Error("failed to load config", "error", err)
		os.Exit(1)
	}
	if err := cfg.Validate(); err != nil {
		slog.Error("invalid config", "error", err)
		os.Exit(1)
	}

	ctx := context.Background()

	// Database is only required for the postgres vector backend.
	var db *pgxpool.Pool
	if cfg.Database.URL != "" {
		db, err = database.NewPool(ctx, cfg.Database)
		if err != nil {
			slog.Warn("database unavailable, falling back to file vector store", "error", err)
			db = nil
		} else {
			defer db.Close()
		}
	}

	// Redis backs the job queue and the context-summary cache. The service
	// runs without it; background work then happens in-process.
	rdb := redis.NewClient(&redis.Options{
		Addr:     cfg.Redis.Addr,
		Password: cfg.Redis.Password,
		DB:       cfg.Redis.DB,
	})
	redisUp := true
	if err := rdb.Ping(ctx).Err(); err != nil {
		slog.Warn("redis unavailable, running without queue and cache", "error", err)
		redisUp = false
		rdb.Close()
		rdb = nil
	} else {
		defer rdb.Close()
	}

	gateway := llm.NewGateway(cfg.LLM)
	embedSvc := embedding.NewService(gateway, cfg.LLM.EmbeddingModel)

	docs := document.NewStore(cfg.Knowledge.Dir, chunker.Options{
		ChunkSize:   cfg.Knowledge.ChunkSize,
		Terminators: chunker.DefaultOptions().Terminators,
	})

	var vectors vectorstore.Store
	if cfg.Knowledge.VectorBackend == "postgres" && db != nil {
		vectors = vectorstore.NewPgStore(db)
		slog.Info("using postgres vector backend")
	} else {
		vectors = vectorstore.NewFileStore(cfg.Knowledge.VectorFile)
	}

	engine := rag.NewEngine(docs, vectors, embedSvc, rag.Options{
		MinScore:      cfg.Knowledge.MinScore,
		BackfillBatch: cfg.Knowledge.BackfillBatch,
		EmbedThrottle: cfg.Knowledge.EmbedThrottle,
	})
	if err := engine.Initialize(ctx); err != nil {
		slog.Error("knowledge base initialization failed", "error", err)
		os.Exit(1)
	}
	kbStats := engine.Stats(ctx)
	slog.Info("knowledge base ready",
		"documents", kbStats.TotalDocuments,
		"chunks", kbStats.TotalChunks,
		"coverage", kbStats.VectorCoverage,
	)

	prompts, err := outreach.LoadPrompts(cfg.Knowledge.PromptsFile)
	if err != nil {
		slog.Warn("campaign prompts unavailable, using defaults", "error", err)
	}

	summaryCache := cache.NewCache(rdb)
	outreachSvc := outreach.NewService(gateway, engine, prompts, summaryCache, cfg.LLM.ReasoningModel)
	statsSvc := stats.NewService(cfg.Stats.File)

	var initialSender email.Sender
	if cfg.SMTP.Username != "" && cfg.SMTP.Password != "" {
		initialSender = email.NewSMTPSender(email.SMTPConfig{
			Host:       cfg.SMTP.Host,
			Port:       cfg.SMTP.Port,
			Username:   cfg.SMTP.Username,
			Password:   cfg.SMTP.Password,
			SenderName: cfg.SMTP.SenderName,
		})
	} else {
		initialSender = email.NewMockSender()
	}
	emailMgr := email.NewManager(initialSender)

	// The backfill worker shares the in-memory engine, so the asynq server
	// is embedded in this process rather than a separate binary.
	var enqueuer handlers.BackfillEnqueuer
	var asynqSrv *asynq.Server
	if redisUp {
		queueClient := queue.NewClient(cfg.Redis)
		defer queueClient.Close()
		enqueuer = queueClient

		asynqSrv = asynq.NewServer(
			asynq.RedisClientOpt{Addr: cfg.Redis.Addr, Password: cfg.Redis.Password, DB: cfg.Redis.DB},
			asynq.Config{Concurrency: 1},
		)
		mux := asynq.NewServeMux()
		mux.Handle(queue.TypeKnowledgeBackfill, workers.NewBackfillWorker(engine))
		if err := asynqSrv.Start(mux); err != nil {
			slog.Error("failed to start job worker", "error", err)
			os.Exit(1)
		}

		if err := queueClient.EnqueueKnowledgeBackfill(queue.BackfillPayload{Reason: "startup"}); err != nil {
			slog.Warn("startup backfill enqueue failed", "error", err)
		}
	} else {
		go func() {
			if _, err := engine.BackfillMissing(context.Background()); err != nil {
				slog.Error("startup backfill failed", "error", err)
			}
		}()
	}

	router := api.NewRouter(api.Deps{
		Cfg:      cfg,
		Engine:   engine,
		Outreach: outreachSvc,
		Email:    emailMgr,
		Stats:    statsSvc,
		Enqueuer: enqueuer,
		DB:       db,
		Redis:    rdb,
	})

	srv := &http.Server{
		Addr:         cfg.Addr(),
		Handler:      router.Setup(),
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 60 * time.Second,
		IdleTimeout:  120 * time.Second,
	}

	go func() {
		slog.Info("starting API server", "addr", cfg.Addr())
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			slog.Error("server error", "error", err)
			os.Exit(1)
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	slog.Info("shutting down server...")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if asynqSrv != nil {
		asynqSrv.Shutdown()
	}
	if err := srv.Shutdown(shutdownCtx); err != nil {
		slog.Error("server forced shutdown", "error", err)
	}
	slog.Info("server stopped")
}
