package main

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"time"

	md "github.com/JohannesKaufmann/html-to-markdown"
	"golang.org/x/time/rate"
)

const (
	defaultNewsAPIURL          = "https://eventregistry.org/api/v1/article/getArticles"
	defaultArticlesPerCategory = 10
	newsAPIDateLayout          = "2006-01-02"
)

var countryURIs = map[string]string{
	"us":     "http://en.wikipedia.org/wiki/United_States",
	"israel": "http://en.wikipedia.org/wiki/Israel",
	"uk":     "http://en.wikipedia.org/wiki/United_Kingdom",
	"france": "http://en.wikipedia.org/wiki/France",
}

var categoryURIs = map[string]string{
	"politics":               "news/Politics",
	"business":               "news/Business",
	"technology":             "news/Technology",
	"health":                 "news/Health",
	"sports":                 "news/Sports",
	"environment":            "news/Environment",
	"science":                "news/Science",
	"arts_and_entertainment": "news/Arts_and_Entertainment",
}

var languageCodes = map[string]string{
	"english": "eng",
	"hebrew":  "heb",
	"french":  "fra",
}

// NewsQuery selects the articles of one category
type NewsQuery struct {
	Category string
	Language string
	Country  string
}

// NewsSource fetches raw, unsummarized articles for one category
type NewsSource interface {
	FetchCategory(ctx context.Context, query NewsQuery) ([]Article, error)
}

// NewsFetcher queries the Event Registry article search API
type NewsFetcher struct {
	client    *http.Client
	limiter   *rate.Limiter
	converter *md.Converter
	endpoint  string
	apiKey    string
	count     int
	clock     func() time.Time
}

// NewNewsFetcher creates a fetcher; requestsPerSecond bounds outgoing calls
func NewNewsFetcher(apiKey, endpoint string, articlesPerCategory int, requestsPerSecond float64) *NewsFetcher {
	if endpoint == "" {
		endpoint = defaultNewsAPIURL
	}
	if articlesPerCategory <= 0 {
		articlesPerCategory = defaultArticlesPerCategory
	}
	limit := rate.Inf
	if requestsPerSecond > 0 {
		limit = rate.Limit(requestsPerSecond)
	}

	return &NewsFetcher{
		client:    &http.Client{},
		limiter:   rate.NewLimiter(limit, 1),
		converter: md.NewConverter("", true, nil),
		endpoint:  endpoint,
		apiKey:    apiKey,
		count:     articlesPerCategory,
		clock:     time.Now,
	}
}

type newsAPIRequest struct {
	Action                    string   `json:"action"`
	CategoryURI               string   `json:"categoryUri"`
	SourceLocationURI         string   `json:"sourceLocationUri"`
	Lang                      string   `json:"lang"`
	DateStart                 string   `json:"dateStart"`
	DateEnd                   string   `json:"dateEnd"`
	DataType                  []string `json:"dataType"`
	ResultType                string   `json:"resultType"`
	ArticlesSortBy            string   `json:"articlesSortBy"`
	ArticlesCount             int      `json:"articlesCount"`
	StartSourceRankPercentile int      `json:"startSourceRankPercentile"`
	EndSourceRankPercentile   int      `json:"endSourceRankPercentile"`
	APIKey                    string   `json:"apiKey"`
}

type newsAPIResponse struct {
	Articles struct {
		Results []newsAPIArticle `json:"results"`
	} `json:"articles"`
	Error string `json:"error"`
}

type newsAPIArticle struct {
	Title       string `json:"title"`
	Body        string `json:"body"`
	Image       string `json:"image"`
	URL         string `json:"url"`
	DateTimePub string `json:"dateTimePub"`
}

// ErrUnknownCategory is returned for categories the news API cannot query
type ErrUnknownCategory struct {
	Category string
}

func (e *ErrUnknownCategory) Error() string {
	return fmt.Sprintf("unknown news category %q", e.Category)
}

// FetchCategory implements NewsSource
func (f *NewsFetcher) FetchCategory(ctx context.Context, query NewsQuery) ([]Article, error) {
	categoryURI, ok := categoryURIs[strings.ToLower(query.Category)]
	if !ok {
		return nil, &ErrUnknownCategory{Category: query.Category}
	}
	countryURI, ok := countryURIs[strings.ToLower(query.Country)]
	if !ok {
		return nil, fmt.Errorf("unknown country %q", query.Country)
	}
	lang, ok := languageCodes[strings.ToLower(query.Language)]
	if !ok {
		return nil, fmt.Errorf("unknown language %q", query.Language)
	}

	end := f.clock()
	start := end.Add(-24 * time.Hour)
	payload, err := json.Marshal(newsAPIRequest{
		Action:                  "getArticles",
		CategoryURI:             categoryURI,
		SourceLocationURI:       countryURI,
		Lang:                    lang,
		DateStart:               start.Format(newsAPIDateLayout),
		DateEnd:                 end.Format(newsAPIDateLayout),
		DataType:                []string{"news"},
		ResultType:              "articles",
		ArticlesSortBy:          "date",
		ArticlesCount:           f.count,
		EndSourceRankPercentile: 30,
		APIKey:                  f.apiKey,
	})
	if err != nil {
		return nil, fmt.Errorf("encoding news query: %w", err)
	}

	if err := f.limiter.Wait(ctx); err != nil {
		return nil, fmt.Errorf("waiting for news API slot: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, f.endpoint, bytes.NewReader(payload))
	if err != nil {
		return nil, fmt.Errorf("building news request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := f.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("fetching %s news: %w", query.Category, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, &HTTPError{StatusCode: resp.StatusCode, URL: f.endpoint}
	}

	var decoded newsAPIResponse
	if err := json.NewDecoder(resp.Body).Decode(&decoded); err != nil {
		return nil, fmt.Errorf("decoding news response: %w", err)
	}
	if decoded.Error != "" {
		return nil, fmt.Errorf("news API error: %s", decoded.Error)
	}

	articles := make([]Article, 0, len(decoded.Articles.Results))
	for _, raw := range decoded.Articles.Results {
		articles = append(articles, f.toArticle(raw, query.Category))
	}
	return articles, nil
}

func (f *NewsFetcher) toArticle(raw newsAPIArticle, category string) Article {
	article := Article{
		Title:    strings.TrimSpace(raw.Title),
		Body:     f.cleanBody(raw.Body),
		Image:    strings.TrimSpace(raw.Image),
		URL:      strings.TrimSpace(raw.URL),
		Category: category,
	}
	if article.Title == "" {
		article.Title = "No Title"
	}
	if article.Body == "" {
		article.Body = "No Body"
	}
	if published, err := time.Parse(time.RFC3339, raw.DateTimePub); err == nil {
		article.PublishedAt = published
	}
	return article
}

// cleanBody converts HTML bodies to markdown; plain text passes through
func (f *NewsFetcher) cleanBody(body string) string {
	body = strings.TrimSpace(body)
	if !strings.Contains(body, "<") {
		return body
	}
	markdown, err := f.converter.ConvertString(body)
	if err != nil {
		return body
	}
	return strings.TrimSpace(markdown)
}
