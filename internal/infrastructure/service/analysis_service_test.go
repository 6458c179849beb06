package service

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sppzpp/reportcard-hub/internal/domain/analysis"
	"github.com/sppzpp/reportcard-hub/internal/domain/shared"
	"github.com/sppzpp/reportcard-hub/internal/domain/student"
	"github.com/sppzpp/reportcard-hub/internal/infrastructure/persistence/memory"
)

var sampleAnalysis = analysis.AIAnalysis{
	Success:      "బాగుంది",
	Decline:      "తగ్గింది",
	WeakSubjects: "గణితం",
}

func countingGateway(calls *atomic.Int32, a analysis.AIAnalysis, err error) analysis.Gateway {
	return analysis.GatewayFunc(func(ctx context.Context, s *student.Student) (analysis.AIAnalysis, error) {
		calls.Add(1)
		return a, err
	})
}

func TestAnalysisService_ModelThenCache(t *testing.T) {
	var calls atomic.Int32
	store := memory.NewAnalysisStore()
	svc := NewAnalysisService(AnalysisServiceConfig{
		Gateway: countingGateway(&calls, sampleAnalysis, nil),
		Repo:    store,
		Cache:   store,
		Model:   "gemini-test",
	})
	s := testStudent()

	first := svc.Analyze(context.Background(), s)
	assert.Equal(t, analysis.SourceModel, first.Source)
	assert.False(t, first.Fallback)
	assert.Equal(t, sampleAnalysis, first.Analysis)

	second := svc.Analyze(context.Background(), s)
	assert.Equal(t, analysis.SourceCache, second.Source)
	assert.Equal(t, sampleAnalysis, second.Analysis)
	assert.Equal(t, int32(1), calls.Load())

	hist, err := svc.History(context.Background(), s.ID, 0)
	require.NoError(t, err)
	require.Len(t, hist, 1)
	assert.Equal(t, "gemini-test", hist[0].Model)
	assert.Equal(t, s.Fingerprint(), hist[0].Fingerprint)
}

func TestAnalysisService_DataChangeRecomputes(t *testing.T) {
	var calls atomic.Int32
	store := memory.NewAnalysisStore()
	svc := NewAnalysisService(AnalysisServiceConfig{
		Gateway: countingGateway(&calls, sampleAnalysis, nil),
		Cache:   store,
	})
	s := testStudent()

	svc.Analyze(context.Background(), s)
	s.SA1.Total = "455"
	res := svc.Analyze(context.Background(), s)

	assert.Equal(t, analysis.SourceModel, res.Source)
	assert.Equal(t, int32(2), calls.Load())
}

func TestAnalysisService_Fallback(t *testing.T) {
	t.Run("gateway error", func(t *testing.T) {
		var calls atomic.Int32
		store := memory.NewAnalysisStore()
		svc := NewAnalysisService(AnalysisServiceConfig{
			Gateway: countingGateway(&calls, analysis.AIAnalysis{}, shared.ErrGeminiUnavailable),
			Repo:    store,
			Cache:   store,
		})

		res := svc.Analyze(context.Background(), testStudent())

		assert.True(t, res.Fallback)
		assert.Equal(t, analysis.SourceFallback, res.Source)
		assert.Equal(t, analysis.Fallback(), res.Analysis)

		hist, _ := store.History(context.Background(), "std-3", 10)
		assert.Empty(t, hist, "fallback is never stored")
	})

	t.Run("no gateway", func(t *testing.T) {
		svc := NewAnalysisService(AnalysisServiceConfig{})
		res := svc.Analyze(context.Background(), testStudent())
		assert.True(t, res.Fallback)
	})
}

func TestAnalysisService_StoreWarmsCache(t *testing.T) {
	repo := memory.NewAnalysisStore()
	cache := memory.NewAnalysisStore()
	s := testStudent()
	require.NoError(t, repo.Save(context.Background(), &analysis.Record{
		StudentID: s.ID, Fingerprint: s.Fingerprint(), Analysis: sampleAnalysis, CreatedAt: time.Now(),
	}))

	var calls atomic.Int32
	svc := NewAnalysisService(AnalysisServiceConfig{
		Gateway: countingGateway(&calls, analysis.AIAnalysis{}, errors.New("unused")),
		Repo:    repo,
		Cache:   cache,
	})

	res := svc.Analyze(context.Background(), s)
	assert.Equal(t, analysis.SourceStore, res.Source)
	assert.Equal(t, int32(0), calls.Load())

	_, err := cache.Get(context.Background(), s.ID, s.Fingerprint())
	assert.NoError(t, err)
}

func TestAnalysisService_ConcurrentRequestsShareCall(t *testing.T) {
	var calls atomic.Int32
	release := make(chan struct{})
	gw := analysis.GatewayFunc(func(ctx context.Context, s *student.Student) (analysis.AIAnalysis, error) {
		calls.Add(1)
		<-release
		return sampleAnalysis, nil
	})
	svc := NewAnalysisService(AnalysisServiceConfig{Gateway: gw, Cache: memory.NewAnalysisStore()})
	s := testStudent()

	var wg sync.WaitGroup
	results := make([]analysis.Result, 5)
	for i := range results {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			results[i] = svc.Analyze(context.Background(), s)
		}(i)
	}

	require.Eventually(t, func() bool { return calls.Load() == 1 }, time.Second, time.Millisecond)
	time.Sleep(50 * time.Millisecond)
	close(release)
	wg.Wait()

	assert.Equal(t, int32(1), calls.Load())
	for _, r := range results {
		assert.Equal(t, sampleAnalysis, r.Analysis)
	}
}

func TestAnalysisService_HistoryWithoutStore(t *testing.T) {
	svc := NewAnalysisService(AnalysisServiceConfig{})
	hist, err := svc.History(context.Background(), "std-0", 5)
	require.NoError(t, err)
	assert.NotNil(t, hist)
	assert.Empty(t, hist)
}
