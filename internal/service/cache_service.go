package service

import (
	"context"
	"errors"
	"strings"
	"time"

	"go.uber.org/zap"

	appErrors "github.com/noah-isme/invigilation-api/pkg/errors"
)

// Keys are "<namespace>:<name>". Every namespace here is derived from exam
// assignments and is dropped whenever a booking changes.
const (
	dashboardCacheNamespace = "dash"
	workloadCacheNamespace  = "workload"

	dashboardCacheKey = dashboardCacheNamespace + ":summary"
	workloadCacheKey  = workloadCacheNamespace + ":upcoming"

	defaultCacheTTL = 10 * time.Minute
)

var scheduleCacheNamespaces = []string{dashboardCacheNamespace, workloadCacheNamespace}

// CacheRepository abstracts persistence for cached payloads.
type CacheRepository interface {
	Get(ctx context.Context, key string, dest interface{}) error
	Set(ctx context.Context, key string, value interface{}, ttl time.Duration) error
	DeleteByPattern(ctx context.Context, pattern string) error
}

// CacheService fronts Redis for the dashboard and workload views. A nil or
// disabled service reports misses and drops writes.
type CacheService struct {
	repo       CacheRepository
	metrics    *MetricsService
	defaultTTL time.Duration
	logger     *zap.Logger
	enabled    bool
}

// NewCacheService constructs a cache service.
func NewCacheService(repo CacheRepository, metrics *MetricsService, defaultTTL time.Duration, logger *zap.Logger, enabled bool) *CacheService {
	if defaultTTL <= 0 {
		defaultTTL = defaultCacheTTL
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &CacheService{repo: repo, metrics: metrics, defaultTTL: defaultTTL, logger: logger, enabled: enabled}
}

// Enabled indicates whether caching is active.
func (s *CacheService) Enabled() bool {
	return s != nil && s.enabled && s.repo != nil
}

// Get loads key into dest and reports whether it was a hit. Lookups are
// counted per namespace as hit, miss or error.
func (s *CacheService) Get(ctx context.Context, key string, dest interface{}) (bool, error) {
	if !s.Enabled() {
		return false, nil
	}
	start := time.Now()
	err := s.repo.Get(ctx, key, dest)
	result := "hit"
	switch {
	case errors.Is(err, appErrors.ErrCacheMiss):
		result, err = "miss", nil
	case err != nil:
		result = "error"
		s.logger.Warn("cache get failed", zap.String("key", key), zap.Error(err))
	}
	s.metrics.RecordCacheOperation(cacheNamespace(key), result, time.Since(start))
	return result == "hit", err
}

// Set stores value under key. A non-positive ttl uses the service default.
func (s *CacheService) Set(ctx context.Context, key string, value interface{}, ttl time.Duration) error {
	if !s.Enabled() {
		return nil
	}
	if ttl <= 0 {
		ttl = s.defaultTTL
	}
	start := time.Now()
	err := s.repo.Set(ctx, key, value, ttl)
	s.metrics.ObserveCacheWrite(time.Since(start))
	if err != nil {
		s.logger.Warn("cache set failed", zap.String("key", key), zap.Error(err))
	}
	return err
}

// InvalidateSchedule drops every namespace derived from exam assignments.
// Failures are logged and skipped; stale entries expire with their TTL.
func (s *CacheService) InvalidateSchedule(ctx context.Context) {
	if !s.Enabled() {
		return
	}
	for _, namespace := range scheduleCacheNamespaces {
		if err := s.repo.DeleteByPattern(ctx, namespace+":*"); err != nil {
			s.logger.Debug("schedule cache invalidation skipped", zap.String("namespace", namespace), zap.Error(err))
		}
	}
}

func cacheNamespace(key string) string {
	namespace, _, found := strings.Cut(key, ":")
	if !found {
		return "other"
	}
	return namespace
}
