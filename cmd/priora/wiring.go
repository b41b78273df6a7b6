package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"

	"github.com/fentz26/priora/internal/audit"
	"github.com/fentz26/priora/internal/config"
	"github.com/fentz26/priora/internal/difficulty"
	"github.com/fentz26/priora/internal/embedding"
	"github.com/fentz26/priora/internal/engine"
	"github.com/fentz26/priora/internal/estimator"
	"github.com/fentz26/priora/internal/logging"
	"github.com/fentz26/priora/internal/mcdm"
	"github.com/fentz26/priora/internal/scheduler"
	"github.com/fentz26/priora/internal/similarity"
	"github.com/fentz26/priora/internal/store"
)

// runtime holds the wired engine and the resources that must be released.
type runtime struct {
	service *engine.Service
	repo    store.Repository
	closers []func() error
}

func (r *runtime) Close() {
	for i := len(r.closers) - 1; i >= 0; i-- {
		if err := r.closers[i](); err != nil {
			fmt.Fprintf(os.Stderr, "close: %v\n", err)
		}
	}
}

func newLogger(cfg *config.Config) *slog.Logger {
	return logging.New(os.Stderr, cfg.Logging)
}

// buildRuntime wires the store, the external services and the engine from cfg.
// The classifier and the embedder are built once and shared by every request.
func buildRuntime(ctx context.Context, cfg *config.Config, logger *slog.Logger) (*runtime, error) {
	repo, err := store.Open(cfg.Store.Driver, cfg.Store.DSN)
	if err != nil {
		return nil, fmt.Errorf("open store: %w", err)
	}
	rt := &runtime{repo: repo, closers: []func() error{repo.Close}}
	logger.Info("store opened", "driver", cfg.Store.Driver)

	var classifier difficulty.Classifier
	if cfg.Classifier.URL != "" {
		classifier = difficulty.NewHTTPClassifier(cfg.Classifier.URL, cfg.Classifier.Timeout, cfg.Retry.RetryPolicy())
		logger.Info("difficulty classifier configured", "url", cfg.Classifier.URL)
	} else {
		logger.Warn("no difficulty classifier configured; difficulty uses the fallback rating", "fallback", cfg.Classifier.Fallback)
	}
	resolver := difficulty.NewResolver(classifier,
		difficulty.WithThreshold(cfg.Classifier.ConfidenceThreshold),
		difficulty.WithFallback(cfg.Classifier.Fallback),
		difficulty.WithLogger(logger))

	var embedder embedding.Embedder
	if cfg.Embedding.URL != "" {
		httpEmbedder := embedding.NewHTTPEmbedder(embedding.HTTPConfig{
			URL:        cfg.Embedding.URL,
			Model:      cfg.Embedding.Model,
			Dimensions: cfg.Embedding.Dimensions,
			Timeout:    cfg.Embedding.Timeout,
			Retry:      cfg.Retry.RetryPolicy(),
		})
		embedder = httpEmbedder

		if cfg.Cache.RedisAddr != "" {
			cache, err := embedding.NewRedisCache(ctx, embedding.RedisConfig{
				Addr:     cfg.Cache.RedisAddr,
				Password: cfg.Cache.RedisPassword,
				DB:       cfg.Cache.RedisDB,
				TTL:      cfg.Cache.TTL,
			})
			if err != nil {
				// Caching is an optimization; run uncached.
				logger.Warn("embedding cache unavailable", "addr", cfg.Cache.RedisAddr, "error", err)
			} else {
				rt.closers = append(rt.closers, cache.Close)
				embedder = embedding.NewCachedEmbedder(httpEmbedder, cache, httpEmbedder.Model(), logger)
				logger.Info("embedding cache enabled", "addr", cfg.Cache.RedisAddr, "ttl", cfg.Cache.TTL)
			}
		}
	} else {
		logger.Warn("no embedding service configured; every prediction is a cold start")
	}

	searcher := similarity.NewSearcher(repo,
		similarity.WithDefaults(cfg.Estimator.Threshold, cfg.Estimator.TopK),
		similarity.WithLogger(logger))
	sched := scheduler.New(&scheduler.Config{MaxWorkers: cfg.Estimator.Workers}, logger)
	predictor := estimator.New(embedder, searcher, repo,
		estimator.WithScheduler(sched),
		estimator.WithLogger(logger))

	rt.service = engine.NewService(engine.Deps{
		Resolver:  resolver,
		Pipeline:  mcdm.NewPipeline(cfg.Scoring),
		Predictor: predictor,
		Repo:      repo,
		Audit:     audit.NewWriter(repo, logger),
		Logger:    logger,
	})
	return rt, nil
}
