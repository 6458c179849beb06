package redis

import (
	"context"
	"errors"
	"time"

	"github.com/sppzpp/reportcard-hub/internal/domain/analysis"
	"github.com/sppzpp/reportcard-hub/internal/domain/shared"
)

// AnalysisCache implements analysis.Cache on top of Cache.
type AnalysisCache struct {
	cache *Cache
}

// NewAnalysisCache creates a new AnalysisCache.
func NewAnalysisCache(cache *Cache) *AnalysisCache {
	return &AnalysisCache{cache: cache}
}

var _ analysis.Cache = (*AnalysisCache)(nil)

// Get returns the cached record or an error matching shared.ErrNotFound.
func (a *AnalysisCache) Get(ctx context.Context, studentID, fingerprint string) (*analysis.Record, error) {
	var rec analysis.Record
	if err := a.cache.Get(ctx, AnalysisKey(studentID, fingerprint), &rec); err != nil {
		if errors.Is(err, ErrCacheMiss) {
			return nil, shared.WrapError("redis", "AnalysisCache.Get", shared.ErrNotFound, "analysis not cached", err)
		}
		return nil, err
	}
	return &rec, nil
}

// Set stores a record. A zero ttl falls back to TTLAnalysis.
func (a *AnalysisCache) Set(ctx context.Context, rec *analysis.Record, ttl time.Duration) error {
	if rec == nil {
		return ErrCacheNilValue
	}
	if ttl == 0 {
		ttl = TTLAnalysis
	}
	return a.cache.Set(ctx, AnalysisKey(rec.StudentID, rec.Fingerprint), rec, ttl)
}
