// Package main - точка входа HTTP-сервиса табелей успеваемости.
//
// Сервис отдаёт табели учеников 10 класса, AI-анализ успеваемости,
// чат с цифровым наставником и голосового ассистента.
//
// Архитектура следует принципам Clean Architecture:
// - Domain: ученики, экзамены, посещаемость, сессии чата и голоса
// - Application: use cases (Commands/Queries)
// - Infrastructure: разбор реестра, Gemini, Postgres, Redis
// - Interface: HTTP API, терминальный табель
package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/sppzpp/reportcard-hub/config"

	// Application layer
	"github.com/sppzpp/reportcard-hub/internal/application/command"
	"github.com/sppzpp/reportcard-hub/internal/application/query"

	// Domain layer
	"github.com/sppzpp/reportcard-hub/internal/domain/analysis"
	"github.com/sppzpp/reportcard-hub/internal/domain/chat"

	// Infrastructure layer
	"github.com/sppzpp/reportcard-hub/internal/infrastructure/external/gemini"
	"github.com/sppzpp/reportcard-hub/internal/infrastructure/persistence/memory"
	"github.com/sppzpp/reportcard-hub/internal/infrastructure/persistence/postgres"
	"github.com/sppzpp/reportcard-hub/internal/infrastructure/persistence/redis"
	"github.com/sppzpp/reportcard-hub/internal/infrastructure/roster"
	"github.com/sppzpp/reportcard-hub/internal/infrastructure/service"

	// Interface layer
	httpserver "github.com/sppzpp/reportcard-hub/internal/interface/http"
	"github.com/sppzpp/reportcard-hub/internal/interface/http/handlers"

	// Packages
	"github.com/sppzpp/reportcard-hub/pkg/logger"
)

func main() {
	// Корневой контекст отменяется по SIGINT/SIGTERM.
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := run(ctx); err != nil {
		fmt.Fprintf(os.Stderr, "fatal error: %v\n", err)
		os.Exit(1)
	}
}

func run(ctx context.Context) error {
	// ─────────────────────────────────────────────────────────────────────────
	// 1. ЗАГРУЗКА КОНФИГУРАЦИИ
	// ─────────────────────────────────────────────────────────────────────────
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}

	// ─────────────────────────────────────────────────────────────────────────
	// 2. НАСТРОЙКА ЛОГИРОВАНИЯ
	// ─────────────────────────────────────────────────────────────────────────
	log := setupLogger(cfg)
	log.Info("starting report card hub",
		logger.String("env", string(cfg.App.Environment)),
		logger.String("version", cfg.App.Version),
		logger.String("school", cfg.School.Name),
	)

	// ─────────────────────────────────────────────────────────────────────────
	// 3. ЗАГРУЗКА РЕЕСТРА
	// Ошибка разметки колонок или пустой реестр останавливают запуск.
	// ─────────────────────────────────────────────────────────────────────────
	students, report, err := roster.Load(ctx, roster.LoadOptions{
		Path:             cfg.Roster.Path,
		CheckConsistency: cfg.Features.IsEnabled(config.FeatureConsistencyCheck, nil),
	}, log)
	if err != nil {
		return fmt.Errorf("failed to load roster: %w", err)
	}
	if report.SkippedRows > 0 {
		log.Warn("roster has malformed rows", logger.Int("skipped", report.SkippedRows))
	}

	health := handlers.NewCompositeHealthChecker(cfg.App.Version)
	health.AddCheck("roster", handlers.NewRosterCheck(students))
	health.AddOptionalCheck("gemini", handlers.NewConfiguredCheck(cfg.Gemini.Configured(), "GEMINI_API_KEY"))

	// ─────────────────────────────────────────────────────────────────────────
	// 4. ХРАНИЛИЩА
	// Postgres и Redis опциональны: без них работают in-memory хранилища.
	// ─────────────────────────────────────────────────────────────────────────
	fallback := memory.NewAnalysisStore()
	chatMem := memory.NewChatStore()

	var analysisRepo analysis.Repository = fallback
	var analysisCache analysis.Cache = fallback
	var chatStore chat.HistoryStore = chatMem
	var transcripts chat.TranscriptRepository = chatMem

	if cfg.Database.URL != "" {
		log.Info("connecting to database...")
		dbConn, err := postgres.NewConnection(ctx, postgresConfig(cfg.Database))
		if err != nil {
			return fmt.Errorf("failed to connect to database: %w", err)
		}
		defer func() {
			log.Info("closing database connection...")
			dbConn.Close()
		}()

		if cfg.Database.AutoMigrate {
			applied, err := postgres.NewMigrator(dbConn).Migrate(ctx)
			if err != nil {
				return fmt.Errorf("failed to run migrations: %w", err)
			}
			log.Info("migrations completed", logger.Int("applied", applied))
		}

		analysisRepo = postgres.NewAnalysisRepository(dbConn)
		transcripts = postgres.NewChatTranscriptRepository(dbConn)
		health.AddCheck("postgres", handlers.NewPingCheck(dbConn))
	} else {
		log.Warn("DATABASE_URL is not set, analyses and transcripts are kept in memory")
	}

	if !cfg.Redis.Disabled {
		log.Info("connecting to Redis...")
		cache, err := redis.NewCache(ctx, redisConfig(cfg.Redis))
		if err != nil {
			// Redis - только кэш, без него сервис работает.
			log.Warn("failed to connect to Redis, using in-memory caches", logger.Err(err))
		} else {
			defer cache.Close()
			analysisCache = redis.NewAnalysisCache(cache)
			chatStore = redis.NewChatHistoryStore(cache, cfg.Redis.ChatTTL)
			health.AddOptionalCheck("redis", handlers.NewPingCheck(cache))
		}
	}

	// ─────────────────────────────────────────────────────────────────────────
	// 5. GEMINI И СЕРВИСЫ
	// ─────────────────────────────────────────────────────────────────────────
	geminiCfg := gemini.DefaultClientConfig(cfg.Gemini.BaseURL, cfg.Gemini.APIKey)
	geminiCfg.LiveBaseURL = cfg.Gemini.LiveBaseURL
	geminiCfg.Timeout = cfg.Gemini.RequestTimeout
	geminiCfg.MaxRetries = cfg.Gemini.MaxRetries
	geminiCfg.CircuitBreakerThreshold = cfg.Gemini.CircuitBreakerThreshold
	geminiCfg.CircuitBreakerTimeout = cfg.Gemini.CircuitBreakerTimeout
	geminiCfg.Logger = log
	geminiClient := gemini.NewClient(geminiCfg)

	if !cfg.Gemini.Configured() {
		log.Warn("GEMINI_API_KEY is not set, AI features answer with fallbacks")
	}

	prompts := promptsFor(cfg.School)

	analysisSvc := service.NewAnalysisService(service.AnalysisServiceConfig{
		Gateway:  service.NewGeminiAnalysisGateway(geminiClient, cfg.Gemini.AnalysisModel, prompts),
		Repo:     analysisRepo,
		Cache:    analysisCache,
		CacheTTL: cfg.Redis.AnalysisTTL,
		Model:    cfg.Gemini.AnalysisModel,
		Logger:   log,
	})
	chatSvc := service.NewChatService(
		service.NewGeminiChatGateway(geminiClient, cfg.Gemini.ChatModel),
		chatStore, transcripts, prompts, log,
	)
	voiceSvc := service.NewVoiceService(
		service.GeminiLiveDialer{Client: geminiClient},
		prompts, cfg.Gemini.VoiceModel, cfg.Gemini.VoiceName, log,
	)

	// ─────────────────────────────────────────────────────────────────────────
	// 6. APPLICATION LAYER (Commands, Queries)
	// ─────────────────────────────────────────────────────────────────────────
	features := cfg.Features

	httpDeps := httpserver.Dependencies{
		ListStudents:       query.NewListStudentsHandler(students),
		GetStudent:         query.NewGetStudentHandler(students),
		GetReportCard:      query.NewGetReportCardHandler(students, cfg.School, features, log),
		GetChatHistory:     query.NewGetChatHistoryHandler(students, chatSvc),
		GetAnalysisHistory: query.NewGetAnalysisHistoryHandler(students, analysisSvc),

		AnalyzeStudent:    command.NewAnalyzeStudentHandler(students, analysisSvc, features, log),
		SendChatMessage:   command.NewSendChatMessageHandler(students, chatSvc, features, log),
		EndChatSession:    command.NewEndChatSessionHandler(students, chatSvc),
		StartVoiceSession: command.NewStartVoiceSessionHandler(students, features, cfg.Gemini.Configured()),

		Voice:         voiceSvc,
		Logger:        log,
		HealthChecker: health,
	}
	if cfg.IsDevelopment() {
		// Флаги можно переключать на лету только в разработке.
		httpDeps.Features = features
		log.Warn("admin feature routes are enabled")
	}

	// ─────────────────────────────────────────────────────────────────────────
	// 7. HTTP SERVER
	// ─────────────────────────────────────────────────────────────────────────
	httpConfig := httpserver.DefaultConfig()
	httpConfig.Host = cfg.HTTP.Host
	httpConfig.Port = cfg.HTTP.Port
	httpConfig.ReadTimeout = cfg.HTTP.ReadTimeout
	httpConfig.WriteTimeout = cfg.HTTP.WriteTimeout
	httpConfig.IdleTimeout = cfg.HTTP.IdleTimeout
	httpConfig.AllowedOrigins = cfg.HTTP.AllowedOrigins
	httpConfig.RateLimitPerMinute = cfg.HTTP.RateLimitPerMin

	httpServer := httpserver.NewServer(httpConfig, httpDeps)
	// Голосовые сессии живут в hijacked-соединениях; их контексты
	// отменяются вместе с корневым.
	httpServer.BaseContext(ctx)

	errCh := httpServer.StartAsync()

	log.Info("report card hub is running",
		logger.String("http_address", httpConfig.Address()),
		logger.Int("students", students.Len()),
	)

	// ─────────────────────────────────────────────────────────────────────────
	// 8. GRACEFUL SHUTDOWN
	// ─────────────────────────────────────────────────────────────────────────
	select {
	case <-ctx.Done():
		log.Info("received shutdown signal")
	case err, ok := <-errCh:
		if ok && err != nil {
			log.Error("http server error", logger.Err(err))
			return err
		}
	}

	log.Info("starting graceful shutdown...", logger.Duration("timeout", cfg.App.ShutdownTimeout))

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.App.ShutdownTimeout)
	defer cancel()

	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		log.Error("failed to stop HTTP server gracefully", logger.Err(err))
		return err
	}

	log.Info("shutdown completed successfully")
	return nil
}

// ══════════════════════════════════════════════════════════════════════════════
// HELPERS
// ══════════════════════════════════════════════════════════════════════════════

// setupLogger настраивает структурированное логирование.
func setupLogger(cfg *config.Config) *logger.Logger {
	opts := logger.DefaultOptions()
	opts.Level = logger.ParseLevel(cfg.Observability.LogLevel)
	opts.Format = logger.ParseFormat(cfg.Observability.LogFormat)
	if cfg.IsProduction() {
		opts.Format = logger.FormatJSON
	}
	if cfg.App.Debug {
		opts.Level = logger.LevelDebug
	}
	log := logger.New(opts).With(logger.String("service", cfg.App.Name))
	slog.SetDefault(log.Slog())
	return log
}

func postgresConfig(c config.DatabaseConfig) postgres.Config {
	pc := postgres.DefaultConfig()
	pc.URL = c.URL
	if c.MaxOpenConns > 0 {
		pc.MaxConns = int32(c.MaxOpenConns)
	}
	if c.MaxIdleConns > 0 {
		pc.MinConns = int32(c.MaxIdleConns)
	}
	pc.MaxConnLifetime = c.ConnMaxLifetime
	pc.MaxConnIdleTime = c.ConnMaxIdleTime
	return pc
}

func redisConfig(c config.RedisConfig) redis.Config {
	rc := redis.DefaultConfig()
	rc.URL = c.URL
	rc.Host = c.Host
	rc.Port = c.Port
	rc.Password = c.Password
	rc.DB = c.DB
	rc.PoolSize = c.PoolSize
	rc.MinIdleConns = c.MinIdleConns
	rc.DialTimeout = c.DialTimeout
	rc.ReadTimeout = c.ReadTimeout
	rc.WriteTimeout = c.WriteTimeout
	return rc
}

// promptsFor переносит профиль школы в промпты модели.
func promptsFor(school *config.SchoolProfile) service.Prompts {
	p := service.DefaultPrompts()
	if school == nil {
		return p
	}
	p.School = school.Name
	p.Grade = school.Grade
	p.Exam = school.ExamEvent()
	if school.WorkingDaysUntilNov > 0 {
		p.WorkingDays = school.WorkingDaysUntilNov
	}
	return p
}
