package main

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeProfiles struct {
	prefs UserPreferences
	err   error
}

func (f *fakeProfiles) ResolvePreferences(context.Context, string, string) (UserPreferences, error) {
	return f.prefs, f.err
}

type fakeFresh struct {
	result map[string][]Article
	err    error
	block  bool
	calls  int
}

func (f *fakeFresh) FetchFresh(ctx context.Context, _ UserPreferences) (map[string][]Article, error) {
	f.calls++
	if f.block {
		<-ctx.Done()
		return nil, ctx.Err()
	}
	return f.result, f.err
}

type fakeMailer struct {
	to    string
	sent  []Article
	calls int
	err   error
}

func (f *fakeMailer) Deliver(_ context.Context, email string, articles []Article) error {
	f.calls++
	if f.err != nil {
		return f.err
	}
	f.to = email
	f.sent = append([]Article(nil), articles...)
	return nil
}

type orchestratorFixture struct {
	profiles *fakeProfiles
	fresh    *fakeFresh
	mailer   *fakeMailer
	cache    *RecencyCache
	clock    *fakeClock
	metrics  *Metrics
	prefs    UserPreferences
	orch     *FreshnessOrchestrator
}

func newOrchestratorFixture(t *testing.T, store CacheStore, capacity int) *orchestratorFixture {
	t.Helper()
	if store == nil {
		store = NewMemoryStore()
	}

	f := &orchestratorFixture{
		fresh:   &fakeFresh{},
		mailer:  &fakeMailer{},
		clock:   newFakeClock(),
		metrics: newTestMetrics(),
		prefs: UserPreferences{
			Email:      "reader@example.com",
			Language:   "english",
			Country:    "us",
			Categories: []string{"politics", "technology"},
		},
	}
	f.profiles = &fakeProfiles{prefs: f.prefs}
	f.cache = NewRecencyCache(store, capacity, WithCacheClock(f.clock.Now))
	f.orch = NewFreshnessOrchestrator(f.profiles, f.cache, f.fresh, f.mailer, OrchestratorConfig{}, NewNopLogger(), f.metrics)
	return f
}

func (f *orchestratorFixture) seed(t *testing.T, category string, articles []Article) {
	t.Helper()
	require.NoError(t, f.cache.Write(context.Background(), NewCacheKey(category, f.prefs.Language, f.prefs.Country), articles))
}

func (f *orchestratorFixture) cached(t *testing.T, category string) []CacheEntry {
	t.Helper()
	entries, err := f.cache.Read(context.Background(), NewCacheKey(category, f.prefs.Language, f.prefs.Country))
	require.NoError(t, err)
	return entries
}

func TestDeliverNewsFreshFetch(t *testing.T) {
	f := newOrchestratorFixture(t, nil, 10)
	f.fresh.result = map[string][]Article{
		"politics":   testArticles("politics", 3),
		"technology": testArticles("technology", 3),
	}

	result := f.orch.DeliverNews(context.Background(), "reader@example.com", "secret")

	require.Equal(t, StatusSuccess, result.Status, result.Message)
	assert.Equal(t, "Fresh news sent", result.Message)
	assert.Equal(t, SourceFresh, result.Source)
	assert.Equal(t, 1, f.fresh.calls)
	assert.Len(t, f.mailer.sent, 5)
	assert.Equal(t, "reader@example.com", f.mailer.to)
	assert.Equal(t, []string{"politics-0", "technology-0", "politics-1", "technology-1", "politics-2"}, titles(f.mailer.sent))

	assert.Len(t, f.cached(t, "politics"), 3)
	assert.Len(t, f.cached(t, "technology"), 3)
	assert.Equal(t, 1.0, testutil.ToFloat64(f.metrics.Deliveries.WithLabelValues("success", "fresh")))
}

func TestDeliverNewsFreshFetchTrimsCache(t *testing.T) {
	f := newOrchestratorFixture(t, nil, 2)
	f.fresh.result = map[string][]Article{
		"politics":   testArticles("politics", 3),
		"technology": testArticles("technology", 3),
	}

	result := f.orch.DeliverNews(context.Background(), "reader@example.com", "secret")

	require.Equal(t, StatusSuccess, result.Status)
	assert.Len(t, f.mailer.sent, 5)
	assert.Len(t, f.cached(t, "politics"), 2)
	assert.Len(t, f.cached(t, "technology"), 2)
}

func TestDeliverNewsCacheHitSkipsFetch(t *testing.T) {
	f := newOrchestratorFixture(t, nil, 10)
	f.seed(t, "politics", testArticles("politics", 4))
	f.seed(t, "technology", testArticles("technology", 3))

	result := f.orch.DeliverNews(context.Background(), "reader@example.com", "secret")

	require.Equal(t, StatusSuccess, result.Status)
	assert.Equal(t, "Cached news sent", result.Message)
	assert.Equal(t, SourceCached, result.Source)
	assert.Zero(t, f.fresh.calls)
	assert.Len(t, f.mailer.sent, 5)
	for _, a := range f.mailer.sent {
		assert.Contains(t, []string{"politics", "technology"}, a.Category)
	}
	assert.Equal(t, 1.0, testutil.ToFloat64(f.metrics.CacheReads.WithLabelValues("hit")))
}

func TestDeliverNewsRepeatedCategoriesCountOnce(t *testing.T) {
	tests := []struct {
		name       string
		categories []string
	}{
		{"repeated", []string{"technology", "technology"}},
		{"mixed case", []string{"technology", "Technology"}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newOrchestratorFixture(t, nil, 10)
			f.profiles.prefs.Categories = tt.categories
			f.seed(t, "technology", testArticles("technology", 3))
			f.fresh.result = map[string][]Article{"technology": testArticles("fresh", 4)}

			result := f.orch.DeliverNews(context.Background(), "reader@example.com", "secret")

			require.Equal(t, StatusSuccess, result.Status, result.Message)
			assert.Equal(t, 1, f.fresh.calls)
			assert.Equal(t, SourceFresh, result.Source)
			assert.Equal(t, []string{"fresh-0", "fresh-1", "fresh-2", "fresh-3"}, titles(f.mailer.sent))
			assert.Equal(t, 1.0, testutil.ToFloat64(f.metrics.CacheReads.WithLabelValues("miss")))
		})
	}
}

func TestDeliverNewsFallbackDoesNotRepeatArticles(t *testing.T) {
	f := newOrchestratorFixture(t, nil, 10)
	f.profiles.prefs.Categories = []string{"Technology", "technology"}
	f.seed(t, "technology", testArticles("technology", 3))
	f.fresh.err = newError(KindUpstreamUnavailable, "fetch", "", errors.New("news API down"))

	result := f.orch.DeliverNews(context.Background(), "reader@example.com", "secret")

	require.Equal(t, StatusSuccess, result.Status)
	assert.Equal(t, SourceFallback, result.Source)
	assert.Equal(t, []string{"technology-2", "technology-1", "technology-0"}, titles(f.mailer.sent))
}

func TestDeliverNewsCacheAtQuotaStillFetches(t *testing.T) {
	f := newOrchestratorFixture(t, nil, 10)
	f.seed(t, "politics", testArticles("politics", 5))
	f.fresh.result = map[string][]Article{"technology": testArticles("technology", 2)}

	result := f.orch.DeliverNews(context.Background(), "reader@example.com", "secret")

	require.Equal(t, StatusSuccess, result.Status)
	assert.Equal(t, 1, f.fresh.calls)
	assert.Equal(t, SourceFresh, result.Source)
	assert.Equal(t, []string{"technology-0", "technology-1"}, titles(f.mailer.sent))
}

func TestDeliverNewsStaleCacheIsNotFresh(t *testing.T) {
	f := newOrchestratorFixture(t, nil, 10)
	f.seed(t, "politics", testArticles("politics", 8))
	f.clock.Advance(61 * time.Minute)
	f.fresh.result = map[string][]Article{"politics": testArticles("fresh", 1)}

	result := f.orch.DeliverNews(context.Background(), "reader@example.com", "secret")

	require.Equal(t, StatusSuccess, result.Status)
	assert.Equal(t, 1, f.fresh.calls)
	assert.Equal(t, []string{"fresh-0"}, titles(f.mailer.sent))
}

func TestDeliverNewsFallbackToFewerThanQuota(t *testing.T) {
	f := newOrchestratorFixture(t, nil, 10)
	f.seed(t, "politics", testArticles("politics", 2))
	f.seed(t, "technology", testArticles("technology", 1))
	f.fresh.err = newError(KindUpstreamUnavailable, "fetch", "", errors.New("news API down"))

	result := f.orch.DeliverNews(context.Background(), "reader@example.com", "secret")

	require.Equal(t, StatusSuccess, result.Status)
	assert.Equal(t, SourceFallback, result.Source)
	assert.Equal(t, "Cached news sent", result.Message)
	assert.Len(t, f.mailer.sent, 3)
	assert.Len(t, f.cached(t, "politics"), 2)
}

func TestDeliverNewsFallbackServesStaleEntries(t *testing.T) {
	f := newOrchestratorFixture(t, nil, 10)
	f.seed(t, "technology", testArticles("technology", 2))
	f.clock.Advance(48 * time.Hour)

	result := f.orch.DeliverNews(context.Background(), "reader@example.com", "secret")

	require.Equal(t, StatusSuccess, result.Status)
	assert.Equal(t, SourceFallback, result.Source)
	assert.Len(t, f.mailer.sent, 2)
}

func TestDeliverNewsNoContent(t *testing.T) {
	tests := []struct {
		name  string
		fresh *fakeFresh
	}{
		{"fetch fails", &fakeFresh{err: errors.New("boom")}},
		{"fetch returns nothing", &fakeFresh{result: map[string][]Article{}}},
		{"fetch returns empty categories", &fakeFresh{result: map[string][]Article{"politics": {}}}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newOrchestratorFixture(t, nil, 10)
			f.orch.fresh = tt.fresh

			result := f.orch.DeliverNews(context.Background(), "reader@example.com", "secret")

			assert.Equal(t, StatusError, result.Status)
			assert.Equal(t, "no news available", result.Message)
			assert.Equal(t, KindNoContent, KindOf(result.Err))
			assert.Zero(t, f.mailer.calls)
		})
	}
}

func TestDeliverNewsAuthFailure(t *testing.T) {
	tests := []struct {
		name    string
		err     error
		message string
	}{
		{"unknown user", newError(KindAuth, "resolve", "user not found", nil), "user not found"},
		{"wrong password", newError(KindAuth, "resolve", "invalid password", nil), "invalid password"},
		{"auth without reason", newError(KindAuth, "resolve", "", nil), "invalid credentials"},
		{"profile store down", newError(KindUpstreamUnavailable, "resolve", "", errors.New("dial tcp: refused")), "failed to load user preferences"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newOrchestratorFixture(t, nil, 10)
			f.seed(t, "politics", testArticles("politics", 8))
			f.profiles.err = tt.err

			result := f.orch.DeliverNews(context.Background(), "reader@example.com", "bad")

			assert.Equal(t, StatusError, result.Status)
			assert.Equal(t, tt.message, result.Message)
			assert.Zero(t, f.fresh.calls)
			assert.Zero(t, f.mailer.calls)
		})
	}
}

func TestDeliverNewsCacheUnavailable(t *testing.T) {
	t.Run("check treats it as a miss", func(t *testing.T) {
		f := newOrchestratorFixture(t, failingStore{err: errors.New("redis down")}, 10)
		f.fresh.result = map[string][]Article{"politics": testArticles("politics", 2)}

		result := f.orch.DeliverNews(context.Background(), "reader@example.com", "secret")

		require.Equal(t, StatusSuccess, result.Status)
		assert.Equal(t, SourceFresh, result.Source)
		assert.Len(t, f.mailer.sent, 2)
		assert.Equal(t, 1.0, testutil.ToFloat64(f.metrics.CacheReads.WithLabelValues("unavailable")))
		assert.Equal(t, 1.0, testutil.ToFloat64(f.metrics.CacheWriteFails))
	})

	t.Run("fallback escalates to no content", func(t *testing.T) {
		f := newOrchestratorFixture(t, failingStore{err: errors.New("redis down")}, 10)
		f.fresh.err = errors.New("news API down")

		result := f.orch.DeliverNews(context.Background(), "reader@example.com", "secret")

		assert.Equal(t, StatusError, result.Status)
		assert.Equal(t, "no news available", result.Message)
		assert.Equal(t, KindNoContent, KindOf(result.Err))
	})
}

func TestDeliverNewsRateLimitedIsCountedSeparately(t *testing.T) {
	f := newOrchestratorFixture(t, nil, 10)
	f.seed(t, "politics", testArticles("politics", 1))

	f.fresh.err = newError(KindRateLimited, "summarize politics", "", nil)
	result := f.orch.DeliverNews(context.Background(), "reader@example.com", "secret")
	require.Equal(t, StatusSuccess, result.Status)
	assert.Equal(t, SourceFallback, result.Source)

	f.fresh.err = errors.New("connection reset")
	result = f.orch.DeliverNews(context.Background(), "reader@example.com", "secret")
	require.Equal(t, StatusSuccess, result.Status)

	assert.Equal(t, 1.0, testutil.ToFloat64(f.metrics.FreshFetchFails.WithLabelValues("rate_limited")))
	assert.Equal(t, 1.0, testutil.ToFloat64(f.metrics.FreshFetchFails.WithLabelValues("upstream_unavailable")))
}

func TestDeliverNewsFetchTimeout(t *testing.T) {
	f := newOrchestratorFixture(t, nil, 10)
	f.orch.config.CallTimeout = 20 * time.Millisecond
	f.fresh.block = true
	f.seed(t, "technology", testArticles("technology", 1))

	result := f.orch.DeliverNews(context.Background(), "reader@example.com", "secret")

	require.Equal(t, StatusSuccess, result.Status)
	assert.Equal(t, SourceFallback, result.Source)
	assert.Equal(t, 1.0, testutil.ToFloat64(f.metrics.FreshFetchFails.WithLabelValues("upstream_unavailable")))
}

func TestDeliverNewsMailerFailure(t *testing.T) {
	f := newOrchestratorFixture(t, nil, 10)
	f.fresh.result = map[string][]Article{"politics": testArticles("politics", 2)}
	f.mailer.err = errors.New("sendgrid: 401 unauthorized api key sk-123")

	result := f.orch.DeliverNews(context.Background(), "reader@example.com", "secret")

	assert.Equal(t, StatusError, result.Status)
	assert.Equal(t, "failed to send news", result.Message)
	assert.Equal(t, KindUpstreamUnavailable, KindOf(result.Err))
	assert.NotContains(t, result.Message, "sk-123")
	// the fetched articles are cached even though delivery failed
	assert.Len(t, f.cached(t, "politics"), 2)
}

func TestDeliverNewsCachedPrefersNewestInserts(t *testing.T) {
	f := newOrchestratorFixture(t, nil, 10)
	f.orch.config.Quota = 2
	f.seed(t, "politics", []Article{{Title: "older", Category: "politics"}})
	f.clock.Advance(time.Minute)
	f.seed(t, "politics", []Article{{Title: "newer", Category: "politics"}, {Title: "newest", Category: "politics"}})

	result := f.orch.DeliverNews(context.Background(), "reader@example.com", "secret")

	require.Equal(t, StatusSuccess, result.Status)
	assert.Equal(t, SourceCached, result.Source)
	assert.Equal(t, []string{"newest", "newer"}, titles(f.mailer.sent))
}

func TestDeliverNewsCachedSpreadsAcrossCategories(t *testing.T) {
	f := newOrchestratorFixture(t, nil, 10)
	for i := 0; i < 4; i++ {
		f.seed(t, "politics", []Article{{Title: fmt.Sprintf("p%d", i), Category: "politics"}})
	}
	f.seed(t, "technology", []Article{
		{Title: "t0", Category: "technology"},
		{Title: "t1", Category: "technology", URL: "https://t1"},
	})

	result := f.orch.DeliverNews(context.Background(), "reader@example.com", "secret")

	require.Equal(t, StatusSuccess, result.Status)
	assert.Equal(t, []string{"p3", "t1", "p2", "t0", "p1"}, titles(f.mailer.sent))
}
