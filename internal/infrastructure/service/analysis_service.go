package service

import (
	"context"
	"time"

	"golang.org/x/sync/singleflight"

	"github.com/sppzpp/reportcard-hub/internal/domain/analysis"
	"github.com/sppzpp/reportcard-hub/internal/domain/shared"
	"github.com/sppzpp/reportcard-hub/internal/domain/student"
	"github.com/sppzpp/reportcard-hub/internal/infrastructure/external/gemini"
	"github.com/sppzpp/reportcard-hub/pkg/logger"
)

// ══════════════════════════════════════════════════════════════════════════════
// GEMINI GATEWAY
// ══════════════════════════════════════════════════════════════════════════════

// GeminiAnalysisGateway adapts gemini.Client to analysis.Gateway.
type GeminiAnalysisGateway struct {
	client  *gemini.Client
	model   string
	prompts Prompts
}

// NewGeminiAnalysisGateway creates the gateway.
func NewGeminiAnalysisGateway(client *gemini.Client, model string, prompts Prompts) *GeminiAnalysisGateway {
	return &GeminiAnalysisGateway{client: client, model: model, prompts: prompts}
}

// Model returns the model name recorded with stored analyses.
func (g *GeminiAnalysisGateway) Model() string {
	return g.model
}

// RequestAnalysis implements analysis.Gateway.
func (g *GeminiAnalysisGateway) RequestAnalysis(ctx context.Context, s *student.Student) (analysis.AIAnalysis, error) {
	req := gemini.JSONRequest(g.prompts.Analysis(s),
		gemini.ObjectSchema(analysisFields, analysisFieldDescriptions))

	var out analysis.AIAnalysis
	if err := g.client.GenerateJSON(ctx, g.model, req, &out); err != nil {
		return analysis.AIAnalysis{}, err
	}
	if err := out.Validate(); err != nil {
		return analysis.AIAnalysis{}, shared.WrapError("gemini", "RequestAnalysis",
			shared.ErrGeminiInvalidResponse, "incomplete analysis", err)
	}
	return out, nil
}

// ══════════════════════════════════════════════════════════════════════════════
// ANALYSIS SERVICE
// ══════════════════════════════════════════════════════════════════════════════

// AnalysisService resolves an analysis through cache, store and gateway.
// Any gateway failure yields the fixed fallback text, never an error.
type AnalysisService struct {
	gateway analysis.Gateway
	repo    analysis.Repository // optional
	cache   analysis.Cache      // optional
	ttl     time.Duration
	model   string
	log     *logger.Logger
	now     func() time.Time

	group singleflight.Group
}

// AnalysisServiceConfig wires the service.
type AnalysisServiceConfig struct {
	Gateway  analysis.Gateway
	Repo     analysis.Repository
	Cache    analysis.Cache
	CacheTTL time.Duration
	Model    string
	Logger   *logger.Logger
}

// NewAnalysisService creates a new AnalysisService.
func NewAnalysisService(cfg AnalysisServiceConfig) *AnalysisService {
	if cfg.Logger == nil {
		cfg.Logger = logger.Nop()
	}
	if cfg.CacheTTL <= 0 {
		cfg.CacheTTL = 24 * time.Hour
	}
	return &AnalysisService{
		gateway: cfg.Gateway,
		repo:    cfg.Repo,
		cache:   cfg.Cache,
		ttl:     cfg.CacheTTL,
		model:   cfg.Model,
		log:     cfg.Logger.With(logger.Component("analysis")),
		now:     time.Now,
	}
}

// Analyze returns the analysis for the student's current data. Concurrent
// requests for the same data share one gateway call.
func (s *AnalysisService) Analyze(ctx context.Context, st *student.Student) analysis.Result {
	fp := st.Fingerprint()
	log := s.log.With(logger.StudentID(st.ID), logger.String("fingerprint", fp))

	// 1. Try cache if available
	if s.cache != nil {
		rec, err := s.cache.Get(ctx, st.ID, fp)
		if err == nil && rec != nil {
			return analysis.Result{Analysis: rec.Analysis, Source: analysis.SourceCache, CreatedAt: rec.CreatedAt}
		}
		if err != nil && !shared.IsNotFound(err) {
			log.Warn("analysis cache read failed", logger.Err(err))
		}
	}

	// 2. Try repository
	if s.repo != nil {
		rec, err := s.repo.Get(ctx, st.ID, fp)
		if err == nil && rec != nil {
			s.warmCache(ctx, rec, log)
			return analysis.Result{Analysis: rec.Analysis, Source: analysis.SourceStore, CreatedAt: rec.CreatedAt}
		}
		if err != nil && !shared.IsNotFound(err) {
			log.Warn("analysis store read failed", logger.Err(err))
		}
	}

	// 3. Ask the model
	v, _, _ := s.group.Do(analysis.Key(st), func() (any, error) {
		return s.request(ctx, st, fp, log), nil
	})
	return v.(analysis.Result)
}

func (s *AnalysisService) request(ctx context.Context, st *student.Student, fp string, log *logger.Logger) analysis.Result {
	if s.gateway == nil {
		log.Warn("analysis gateway not configured, using fallback")
		return s.fallback()
	}

	start := time.Now()
	a, err := s.gateway.RequestAnalysis(ctx, st)
	if err != nil {
		log.Error("analysis request failed, using fallback",
			logger.Err(err),
			logger.Latency(time.Since(start)))
		return s.fallback()
	}

	rec := &analysis.Record{
		StudentID:   st.ID,
		Fingerprint: fp,
		Model:       s.model,
		Analysis:    a,
		CreatedAt:   s.now().UTC(),
	}
	log.Info("analysis generated", logger.Model(s.model), logger.Latency(time.Since(start)))

	// Storage failures do not fail the request: the analysis is already in hand.
	if s.repo != nil {
		if err := s.repo.Save(ctx, rec); err != nil {
			log.Warn("analysis store write failed", logger.Err(err))
		}
	}
	s.warmCache(ctx, rec, log)

	return analysis.Result{Analysis: a, Source: analysis.SourceModel, CreatedAt: rec.CreatedAt}
}

func (s *AnalysisService) warmCache(ctx context.Context, rec *analysis.Record, log *logger.Logger) {
	if s.cache == nil {
		return
	}
	if err := s.cache.Set(ctx, rec, s.ttl); err != nil {
		log.Warn("analysis cache write failed", logger.Err(err))
	}
}

func (s *AnalysisService) fallback() analysis.Result {
	return analysis.Result{
		Analysis:  analysis.Fallback(),
		Source:    analysis.SourceFallback,
		Fallback:  true,
		CreatedAt: s.now().UTC(),
	}
}

// History returns stored analyses for a student, newest first. Without a
// store it returns an empty list.
func (s *AnalysisService) History(ctx context.Context, studentID string, limit int) ([]*analysis.Record, error) {
	if s.repo == nil {
		return []*analysis.Record{}, nil
	}
	if limit <= 0 || limit > 50 {
		limit = 10
	}
	return s.repo.History(ctx, studentID, limit)
}
