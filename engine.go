package main

import (
	"context"
	"errors"
	"sync"

	"golang.org/x/sync/errgroup"
)

const maxConcurrentFetches = 4

// FreshNewsSource produces summarized articles by category for a set of preferences
type FreshNewsSource interface {
	FetchFresh(ctx context.Context, prefs UserPreferences) (map[string][]Article, error)
}

// NewsEngine fetches raw articles per category and summarizes each category
// in one batch call. Every batch call must pass the rate limiter first.
type NewsEngine struct {
	source     NewsSource
	summarizer Summarizer
	limiter    *RateLimiter
	logger     Logger
	metrics    *Metrics
}

// NewNewsEngine wires the fetch+summarize pipeline
func NewNewsEngine(source NewsSource, summarizer Summarizer, limiter *RateLimiter, logger Logger, metrics *Metrics) *NewsEngine {
	return &NewsEngine{
		source:     source,
		summarizer: summarizer,
		limiter:    limiter,
		logger:     logger,
		metrics:    metrics,
	}
}

// FetchFresh implements FreshNewsSource. Categories the news API cannot
// serve are skipped; the call fails only if none could be fetched or if any
// summarization fails.
func (e *NewsEngine) FetchFresh(ctx context.Context, prefs UserPreferences) (map[string][]Article, error) {
	prefs.Categories = normalizeCategories(prefs.Categories)
	raw, err := e.fetchAll(ctx, prefs)
	if err != nil {
		return nil, err
	}

	summarized := make(map[string][]Article, len(raw))
	for _, category := range prefs.Categories {
		articles := raw[category]
		if len(articles) == 0 {
			continue
		}

		if !e.limiter.TryAcquire() {
			e.metrics.LimiterRejected.Inc()
			e.logger.Warn("Summarization rejected by rate limiter",
				String("category", category),
				String("reason", KindRateLimited.String()),
			)
			return nil, newError(KindRateLimited, "summarize "+category, "", nil)
		}
		e.metrics.LimiterAdmitted.Inc()

		summaries, err := e.summarizer.Summarize(ctx, articles)
		if err != nil {
			return nil, newError(KindUpstreamUnavailable, "summarize "+category, "", err)
		}

		remaining := e.limiter.Remaining()
		e.logger.Info("Summarized category",
			String("category", category),
			Int("articles", len(summaries)),
			Int("minute_remaining", remaining.MinuteRemaining),
			Int("day_remaining", remaining.DayRemaining),
		)
		summarized[category] = mergeSummaries(articles, summaries)
	}
	return summarized, nil
}

// fetchAll queries every category concurrently; the result map is keyed by category
func (e *NewsEngine) fetchAll(ctx context.Context, prefs UserPreferences) (map[string][]Article, error) {
	var (
		mu       sync.Mutex
		raw      = make(map[string][]Article, len(prefs.Categories))
		failures []error
	)

	// Per-category failures are collected, not returned, so one bad
	// category never cancels the others. The group only bounds and joins.
	var g errgroup.Group
	g.SetLimit(maxConcurrentFetches)
	for _, category := range prefs.Categories {
		g.Go(func() error {
			articles, err := e.source.FetchCategory(ctx, NewsQuery{
				Category: category,
				Language: prefs.Language,
				Country:  prefs.Country,
			})

			mu.Lock()
			defer mu.Unlock()
			if err != nil {
				var unknown *ErrUnknownCategory
				if errors.As(err, &unknown) {
					e.logger.Warn("Skipping unknown category", String("category", category))
				} else {
					e.logger.Warn("Fetching category failed", String("category", category), Err(err))
				}
				failures = append(failures, err)
				return nil
			}
			raw[category] = articles
			return nil
		})
	}
	_ = g.Wait()

	if len(prefs.Categories) > 0 && len(failures) == len(prefs.Categories) {
		return nil, newError(KindUpstreamUnavailable, "fetch news", "", errors.Join(failures...))
	}
	return raw, nil
}

// mergeSummaries pairs each summary with its original article; unmatched items are dropped
func mergeSummaries(originals []Article, summaries []Summary) []Article {
	n := min(len(originals), len(summaries))
	merged := make([]Article, 0, n)
	for i := 0; i < n; i++ {
		article := originals[i]
		article.Title = summaries[i].Title
		article.Body = summaries[i].Body
		merged = append(merged, article)
	}
	return merged
}
