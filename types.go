package main

import (
	"fmt"
	"strings"
	"time"
)

// Article represents one summarized news article ready for delivery
type Article struct {
	Title       string    `json:"title"`
	Body        string    `json:"body"`
	Image       string    `json:"image,omitempty"`
	URL         string    `json:"url,omitempty"`
	PublishedAt time.Time `json:"published_at"`
	Category    string    `json:"category"`
}

// HasURL reports whether the article links back to its source
func (a Article) HasURL() bool {
	return strings.TrimSpace(a.URL) != ""
}

// HasImage reports whether the article carries an image
func (a Article) HasImage() bool {
	return strings.TrimSpace(a.Image) != ""
}

// CacheKey identifies one cache partition
type CacheKey struct {
	Category string
	Language string
	Country  string
}

// NewCacheKey builds a case-normalized cache key
func NewCacheKey(category, language, country string) CacheKey {
	return CacheKey{
		Category: normalizeKeyPart(category),
		Language: normalizeKeyPart(language),
		Country:  normalizeKeyPart(country),
	}
}

// String renders the key in the "news:{category}:{language}:{country}" form
func (k CacheKey) String() string {
	return fmt.Sprintf("news:%s:%s:%s", k.Category, k.Language, k.Country)
}

func normalizeKeyPart(part string) string {
	return strings.ToLower(strings.TrimSpace(part))
}

// normalizeCategories lowercases categories and drops blanks and repeats,
// keeping first-seen order
func normalizeCategories(categories []string) []string {
	seen := make(map[string]struct{}, len(categories))
	normalized := make([]string, 0, len(categories))
	for _, category := range categories {
		category = normalizeKeyPart(category)
		if category == "" {
			continue
		}
		if _, ok := seen[category]; ok {
			continue
		}
		seen[category] = struct{}{}
		normalized = append(normalized, category)
	}
	return normalized
}

// CacheEntry is one article held by the recency cache
type CacheEntry struct {
	Article    Article
	InsertedAt time.Time
}

// UserPreferences holds what a user wants delivered
type UserPreferences struct {
	Email      string
	Language   string
	Country    string
	Categories []string
}

// DeliveryStatus represents the outcome status of one delivery request
type DeliveryStatus string

const (
	StatusSuccess DeliveryStatus = "success"
	StatusError   DeliveryStatus = "error"
)

// DeliverySource records where the delivered articles came from
type DeliverySource string

const (
	SourceFresh    DeliverySource = "fresh"
	SourceCached   DeliverySource = "cached"
	SourceFallback DeliverySource = "fallback"
)

// DeliveryResult tracks the outcome of one DeliverNews call
type DeliveryResult struct {
	Status    DeliveryStatus `json:"status"`
	Message   string         `json:"message"`
	Source    DeliverySource `json:"-"`
	Delivered []Article      `json:"-"`
	Err       error          `json:"-"`
}
