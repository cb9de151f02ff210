package main

import (
	"context"
	"time"

	"github.com/google/uuid"
)

const (
	defaultMaxAge      = 60 * time.Minute
	defaultQuota       = 5
	defaultCallTimeout = 30 * time.Second

	msgFreshSent          = "Fresh news sent"
	msgCachedSent         = "Cached news sent"
	msgNoNews             = "no news available"
	msgSendFailed         = "failed to send news"
	msgLookupFailed       = "failed to load user preferences"
	msgInvalidCredentials = "invalid credentials"
)

// OrchestratorConfig holds the freshness and delivery knobs
type OrchestratorConfig struct {
	MaxAge      time.Duration
	Quota       int
	CallTimeout time.Duration
}

func (c OrchestratorConfig) withDefaults() OrchestratorConfig {
	if c.MaxAge <= 0 {
		c.MaxAge = defaultMaxAge
	}
	if c.Quota <= 0 {
		c.Quota = defaultQuota
	}
	if c.CallTimeout <= 0 {
		c.CallTimeout = defaultCallTimeout
	}
	return c
}

// FreshnessOrchestrator decides per request whether to serve cached
// articles or fetch fresh ones, and hands the selection to the mailer.
type FreshnessOrchestrator struct {
	profiles ProfileLookup
	cache    *RecencyCache
	fresh    FreshNewsSource
	mailer   Mailer
	config   OrchestratorConfig
	logger   Logger
	metrics  *Metrics
}

// NewFreshnessOrchestrator creates an orchestrator; zero config values take the defaults
func NewFreshnessOrchestrator(profiles ProfileLookup, cache *RecencyCache, fresh FreshNewsSource, mailer Mailer, config OrchestratorConfig, logger Logger, metrics *Metrics) *FreshnessOrchestrator {
	return &FreshnessOrchestrator{
		profiles: profiles,
		cache:    cache,
		fresh:    fresh,
		mailer:   mailer,
		config:   config.withDefaults(),
		logger:   logger,
		metrics:  metrics,
	}
}

// DeliverNews runs one delivery request end to end. Every external call is
// attempted once; failures fall back to stale cache where possible.
func (o *FreshnessOrchestrator) DeliverNews(ctx context.Context, email, password string) DeliveryResult {
	logger := o.logger.With(String("request_id", uuid.NewString()), String("email", email))
	result := o.deliver(ctx, logger, email, password)

	o.metrics.Deliveries.WithLabelValues(string(result.Status), string(result.Source)).Inc()
	if result.Status == StatusSuccess {
		logger.Info("Delivery completed",
			String("source", string(result.Source)),
			Int("articles", len(result.Delivered)),
		)
	} else {
		logger.Warn("Delivery failed",
			String("kind", KindOf(result.Err).String()),
			String("message", result.Message),
			Err(result.Err),
		)
	}
	return result
}

func (o *FreshnessOrchestrator) deliver(ctx context.Context, logger Logger, email, password string) DeliveryResult {
	prefs, err := o.resolvePreferences(ctx, email, password)
	if err != nil {
		return failed(err, userMessage(err))
	}
	prefs.Categories = normalizeCategories(prefs.Categories)
	logger.Debug("Resolved preferences",
		String("language", prefs.Language),
		String("country", prefs.Country),
		Strings("categories", prefs.Categories),
	)

	if cached, ok := o.checkCache(ctx, logger, prefs); ok {
		return o.send(ctx, prefs, cached, SourceCached)
	}

	fresh, err := o.fetchFresh(ctx, prefs)
	if err != nil || countArticles(fresh) == 0 {
		if err != nil {
			o.metrics.FreshFetchFails.WithLabelValues(KindOf(err).String()).Inc()
			logger.Warn("Fresh fetch failed, falling back to cache",
				String("kind", KindOf(err).String()),
				Err(err),
			)
		} else {
			logger.Info("Fresh fetch returned nothing, falling back to cache")
		}
		return o.fallback(ctx, logger, prefs)
	}

	o.updateCache(ctx, logger, prefs, fresh)
	return o.send(ctx, prefs, fresh, SourceFresh)
}

func (o *FreshnessOrchestrator) resolvePreferences(ctx context.Context, email, password string) (UserPreferences, error) {
	ctx, cancel := context.WithTimeout(ctx, o.config.CallTimeout)
	defer cancel()
	return o.profiles.ResolvePreferences(ctx, email, password)
}

// checkCache reports whether the fresh cache alone holds more than a quota
// of articles. An unreachable cache counts as a miss.
func (o *FreshnessOrchestrator) checkCache(ctx context.Context, logger Logger, prefs UserPreferences) (map[string][]Article, bool) {
	cached, err := o.readCache(ctx, prefs, o.config.MaxAge)
	if err != nil {
		o.metrics.CacheReads.WithLabelValues("unavailable").Inc()
		logger.Warn("Cache unavailable during freshness check", Err(err))
		return nil, false
	}

	total := countArticles(cached)
	if total > o.config.Quota {
		o.metrics.CacheReads.WithLabelValues("hit").Inc()
		logger.Debug("Serving from fresh cache", Int("cached", total))
		return cached, true
	}
	o.metrics.CacheReads.WithLabelValues("miss").Inc()
	logger.Debug("Fresh cache below quota", Int("cached", total), Int("quota", o.config.Quota))
	return nil, false
}

func (o *FreshnessOrchestrator) fetchFresh(ctx context.Context, prefs UserPreferences) (map[string][]Article, error) {
	ctx, cancel := context.WithTimeout(ctx, o.config.CallTimeout)
	defer cancel()

	fresh, err := o.fresh.FetchFresh(ctx, prefs)
	if err != nil {
		if KindOf(err) == KindUnknown {
			return nil, newError(KindUpstreamUnavailable, "fetch fresh", "", err)
		}
		return nil, err
	}
	return fresh, nil
}

// fallback serves whatever the cache holds regardless of age
func (o *FreshnessOrchestrator) fallback(ctx context.Context, logger Logger, prefs UserPreferences) DeliveryResult {
	cached, err := o.readCache(ctx, prefs, unboundedAge)
	if err != nil {
		logger.Warn("Cache unavailable during fallback", Err(err))
		return failed(newError(KindNoContent, "fallback", msgNoNews, err), msgNoNews)
	}
	if countArticles(cached) == 0 {
		return failed(newError(KindNoContent, "fallback", msgNoNews, nil), msgNoNews)
	}
	return o.send(ctx, prefs, cached, SourceFallback)
}

// updateCache writes fresh articles per category. Failures are logged and
// counted; they never block delivery.
func (o *FreshnessOrchestrator) updateCache(ctx context.Context, logger Logger, prefs UserPreferences, fresh map[string][]Article) {
	for category, articles := range fresh {
		key := NewCacheKey(category, prefs.Language, prefs.Country)
		wctx, cancel := context.WithTimeout(ctx, o.config.CallTimeout)
		err := o.cache.Write(wctx, key, articles)
		cancel()
		if err != nil {
			o.metrics.CacheWriteFails.Inc()
			logger.Warn("Cache write failed", String("key", key.String()), Err(err))
		}
	}
}

// readCache reads every preferred category. Each pool is ordered newest insert first.
func (o *FreshnessOrchestrator) readCache(ctx context.Context, prefs UserPreferences, maxAge time.Duration) (map[string][]Article, error) {
	ctx, cancel := context.WithTimeout(ctx, o.config.CallTimeout)
	defer cancel()

	cached := make(map[string][]Article, len(prefs.Categories))
	for _, category := range prefs.Categories {
		articles, err := o.cache.ReadFresh(ctx, NewCacheKey(category, prefs.Language, prefs.Country), maxAge)
		if err != nil {
			return nil, err
		}
		if len(articles) == 0 {
			continue
		}
		newestFirst := make([]Article, 0, len(articles))
		for i := len(articles) - 1; i >= 0; i-- {
			newestFirst = append(newestFirst, articles[i])
		}
		cached[category] = append(cached[category], newestFirst...)
	}
	return cached, nil
}

func (o *FreshnessOrchestrator) send(ctx context.Context, prefs UserPreferences, byCategory map[string][]Article, source DeliverySource) DeliveryResult {
	selected := selectArticles(groupByCategory(byCategory, prefs.Categories), o.config.Quota)
	if len(selected) == 0 {
		return failed(newError(KindNoContent, "select", msgNoNews, nil), msgNoNews)
	}

	ctx, cancel := context.WithTimeout(ctx, o.config.CallTimeout)
	defer cancel()
	if err := o.mailer.Deliver(ctx, prefs.Email, selected); err != nil {
		if KindOf(err) == KindUnknown {
			err = newError(KindUpstreamUnavailable, "deliver", msgSendFailed, err)
		}
		result := failed(err, msgSendFailed)
		result.Source = source
		return result
	}

	message := msgCachedSent
	if source == SourceFresh {
		message = msgFreshSent
	}
	return DeliveryResult{
		Status:    StatusSuccess,
		Message:   message,
		Source:    source,
		Delivered: selected,
	}
}

func failed(err error, message string) DeliveryResult {
	return DeliveryResult{Status: StatusError, Message: message, Err: err}
}

// userMessage picks the text shown to the caller; internal error text never leaks
func userMessage(err error) string {
	if reason := ReasonOf(err); reason != "" {
		return reason
	}
	if KindOf(err) == KindAuth {
		return msgInvalidCredentials
	}
	return msgLookupFailed
}

func countArticles(byCategory map[string][]Article) int {
	total := 0
	for _, articles := range byCategory {
		total += len(articles)
	}
	return total
}
