// Package http implements the REST, streaming and websocket API of the
// report card hub: roster browsing, report cards, AI analysis, the mentor
// chat over server-sent events and the voice assistant relay.
package http

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"strconv"
	"sync/atomic"
	"time"

	"github.com/sppzpp/reportcard-hub/internal/application/command"
	"github.com/sppzpp/reportcard-hub/internal/application/query"
	"github.com/sppzpp/reportcard-hub/internal/interface/http/handlers"
	"github.com/sppzpp/reportcard-hub/pkg/logger"
)

// ══════════════════════════════════════════════════════════════════════════════
// CONFIG
// ══════════════════════════════════════════════════════════════════════════════

// Config of the HTTP server.
type Config struct {
	Host string
	Port int

	ReadTimeout    time.Duration
	WriteTimeout   time.Duration // chat streams and the voice socket reset their own deadlines
	IdleTimeout    time.Duration
	MaxHeaderBytes int
	MaxBodyBytes   int64 // JSON bodies of analysis and chat requests

	// AllowedOrigins applies to CORS and to the voice websocket handshake.
	// "*" allows any origin.
	AllowedOrigins []string

	// RateLimitPerMinute per client IP; 0 disables the limiter.
	RateLimitPerMinute int

	// ReportMaxAge is how long browsers may keep roster reads.
	ReportMaxAge time.Duration
}

// DefaultConfig serves on :8080 with limits suited to a parent-facing page.
func DefaultConfig() Config {
	return Config{
		Host:               "0.0.0.0",
		Port:               8080,
		ReadTimeout:        15 * time.Second,
		WriteTimeout:       30 * time.Second,
		IdleTimeout:        60 * time.Second,
		MaxHeaderBytes:     1 << 20,
		MaxBodyBytes:       16 << 10,
		AllowedOrigins:     []string{"*"},
		RateLimitPerMinute: 120,
		ReportMaxAge:       5 * time.Minute,
	}
}

// Address returns host:port.
func (c Config) Address() string {
	return net.JoinHostPort(c.Host, strconv.Itoa(c.Port))
}

// Dependencies of the handlers. Any nil handler makes its routes answer 501,
// so a server without Gemini still serves report cards.
type Dependencies struct {
	// Чтение
	ListStudents       *query.ListStudentsHandler
	GetStudent         *query.GetStudentHandler
	GetReportCard      *query.GetReportCardHandler
	GetChatHistory     *query.GetChatHistoryHandler
	GetAnalysisHistory *query.GetAnalysisHistoryHandler

	// Запись
	AnalyzeStudent    *command.AnalyzeStudentHandler
	SendChatMessage   *command.SendChatMessageHandler
	EndChatSession    *command.EndChatSessionHandler
	StartVoiceSession *command.StartVoiceSessionHandler

	Voice VoiceRunner

	// Features enables the admin flag routes. Left nil outside development.
	Features FeatureAdmin

	Logger        *logger.Logger
	HealthChecker handlers.HealthChecker
}

// ══════════════════════════════════════════════════════════════════════════════
// SERVER
// ══════════════════════════════════════════════════════════════════════════════

// Server is the HTTP front of the service.
type Server struct {
	config     Config
	deps       Dependencies
	router     *http.ServeMux
	httpServer *http.Server
	logger     *logger.Logger
	limiter    *ipLimiter // nil when disabled

	startedAt atomic.Pointer[time.Time] // nil while stopped
}

// NewServer wires routes and middleware. Nothing listens until Start.
func NewServer(config Config, deps Dependencies) *Server {
	log := deps.Logger
	if log == nil {
		log = logger.Nop()
	}

	s := &Server{
		config: config,
		deps:   deps,
		router: http.NewServeMux(),
		logger: log.With(logger.Component("http")),
	}
	if config.RateLimitPerMinute > 0 {
		s.limiter = newIPLimiter(config.RateLimitPerMinute, time.Minute)
	}
	s.setupRoutes()

	s.httpServer = &http.Server{
		Addr:           config.Address(),
		Handler:        s.Handler(),
		ReadTimeout:    config.ReadTimeout,
		WriteTimeout:   config.WriteTimeout,
		IdleTimeout:    config.IdleTimeout,
		MaxHeaderBytes: config.MaxHeaderBytes,
	}
	return s
}

// Handler returns the router behind the global middleware. Tests drive it
// directly with httptest.
func (s *Server) Handler() http.Handler {
	return s.middleware(s.router)
}

// ══════════════════════════════════════════════════════════════════════════════
// ROUTING
// ══════════════════════════════════════════════════════════════════════════════

// setupRoutes configures all HTTP routes.
func (s *Server) setupRoutes() {
	// ─────────────────────────────────────────────────────────────────────────
	// Health & Status Endpoints
	// ─────────────────────────────────────────────────────────────────────────
	s.router.HandleFunc("GET /health", s.handleHealth)
	s.router.HandleFunc("GET /healthz", s.handleHealth)
	s.router.HandleFunc("GET /ready", s.handleReady)
	s.router.HandleFunc("GET /live", s.handleLive)
	s.router.HandleFunc("GET /{$}", s.handleRoot)

	cached := handlers.Chain(handlers.CacheControlMiddleware(s.config.ReportMaxAge))
	noCache := handlers.Chain(handlers.NoCacheMiddleware)
	body := handlers.Chain(handlers.NoCacheMiddleware, handlers.RequestSizeLimitMiddleware(s.maxBody()))

	// ─────────────────────────────────────────────────────────────────────────
	// Roster & Report Cards
	// ─────────────────────────────────────────────────────────────────────────
	s.router.Handle("GET /api/v1/students", cached(http.HandlerFunc(s.handleListStudents)))
	s.router.Handle("GET /api/v1/sections/{section}/first", cached(http.HandlerFunc(s.handleFirstInSection)))
	s.router.Handle("GET /api/v1/students/{id}", cached(http.HandlerFunc(s.handleGetStudent)))
	s.router.Handle("GET /api/v1/students/{id}/report", cached(http.HandlerFunc(s.handleGetReportCard)))

	// ─────────────────────────────────────────────────────────────────────────
	// AI Endpoints
	// ─────────────────────────────────────────────────────────────────────────
	s.router.Handle("POST /api/v1/students/{id}/analysis", body(http.HandlerFunc(s.handleAnalyze)))
	s.router.Handle("GET /api/v1/students/{id}/analysis/history", noCache(http.HandlerFunc(s.handleAnalysisHistory)))
	s.router.Handle("GET /api/v1/chat/questions", cached(http.HandlerFunc(s.handleQuickQuestions)))
	s.router.Handle("POST /api/v1/students/{id}/chat", body(http.HandlerFunc(s.handleChat)))
	s.router.Handle("GET /api/v1/students/{id}/chat/{session}", noCache(http.HandlerFunc(s.handleChatHistory)))
	s.router.Handle("DELETE /api/v1/students/{id}/chat/{session}", noCache(http.HandlerFunc(s.handleEndChat)))
	s.router.HandleFunc("GET /api/v1/students/{id}/voice", s.handleVoice)

	// ─────────────────────────────────────────────────────────────────────────
	// Admin
	// ─────────────────────────────────────────────────────────────────────────
	if s.deps.Features != nil {
		s.router.Handle("GET /api/v1/admin/features", noCache(http.HandlerFunc(s.handleListFeatures)))
		s.router.Handle("PUT /api/v1/admin/features/{name}", body(http.HandlerFunc(s.handleSetFeature)))
	}
}

func (s *Server) maxBody() int64 {
	if s.config.MaxBodyBytes > 0 {
		return s.config.MaxBodyBytes
	}
	return 16 << 10
}

// ══════════════════════════════════════════════════════════════════════════════
// LIFECYCLE
// ══════════════════════════════════════════════════════════════════════════════

// Start listens and blocks until Shutdown.
func (s *Server) Start() error {
	now := time.Now()
	if !s.startedAt.CompareAndSwap(nil, &now) {
		return errors.New("server already running")
	}

	s.logger.Info("starting HTTP server", logger.String("address", s.config.Address()))
	if err := s.httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		s.startedAt.Store(nil)
		return fmt.Errorf("server error: %w", err)
	}
	return nil
}

// StartAsync runs Start in a goroutine. The channel yields the listen error,
// if any, and is closed when the server stops.
func (s *Server) StartAsync() <-chan error {
	errCh := make(chan error, 1)
	go func() {
		defer close(errCh)
		if err := s.Start(); err != nil {
			errCh <- err
		}
	}()
	return errCh
}

// Shutdown drains in-flight requests. Hijacked voice sockets are not
// tracked by net/http; they end with the context given to BaseContext.
func (s *Server) Shutdown(ctx context.Context) error {
	if s.startedAt.Swap(nil) == nil {
		return nil
	}
	s.logger.Info("shutting down HTTP server")
	return s.httpServer.Shutdown(ctx)
}

// BaseContext makes ctx the parent of every request context.
func (s *Server) BaseContext(ctx context.Context) {
	s.httpServer.BaseContext = func(net.Listener) context.Context { return ctx }
}

// Uptime is zero while the server is stopped.
func (s *Server) Uptime() time.Duration {
	if t := s.startedAt.Load(); t != nil {
		return time.Since(*t)
	}
	return 0
}
