package application

import (
	"context"
	"log"

	detection "falldetect/internal/detection/domain"
	evaluation "falldetect/internal/evaluation/domain"
	"falldetect/internal/evaluation/infrastructure/cache"
	"falldetect/internal/observability/metrics"
)

// cachedEvaluator consults the cache before evaluating a config on a fingerprinted corpus.
type cachedEvaluator struct {
	inner       evaluation.CorpusEvaluator
	cache       ResultCache
	fingerprint string
	logger      *log.Logger
}

func (c cachedEvaluator) Evaluate(ctx context.Context, corpus []evaluation.Recording, cfg detection.DetectorConfig) (evaluation.ConfusionMatrix, error) {
	if c.cache == nil {
		return c.inner.Evaluate(ctx, corpus, cfg)
	}
	key := cache.Key(cfg, c.fingerprint)
	m, ok, err := c.cache.Get(ctx, key)
	if err != nil {
		c.logf("event=matrix_cache_get_failed key=%s error=%v", key, err)
	} else if ok {
		metrics.IncCacheLookup(metrics.CacheHit)
		return m, nil
	}
	metrics.IncCacheLookup(metrics.CacheMiss)

	m, err = c.inner.Evaluate(ctx, corpus, cfg)
	if err != nil {
		return m, err
	}
	if err := c.cache.Set(ctx, key, m); err != nil {
		c.logf("event=matrix_cache_set_failed key=%s error=%v", key, err)
	}
	return m, nil
}

func (c cachedEvaluator) logf(format string, args ...any) {
	if c.logger == nil {
		return
	}
	c.logger.Printf(format, args...)
}
