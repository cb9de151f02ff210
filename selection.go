package main

import "sort"

// categoryPool is the remaining candidates for one category, in provided order
type categoryPool struct {
	category string
	articles []Article
}

// articlePriority scores how complete an article is: one point each for a link and an image
func articlePriority(a Article) int {
	p := 0
	if a.HasURL() {
		p++
	}
	if a.HasImage() {
		p++
	}
	return p
}

// groupByCategory orders pools by the preferred category order, then any
// remaining categories lexically. Empty categories are dropped.
func groupByCategory(byCategory map[string][]Article, preferred []string) []categoryPool {
	pools := make([]categoryPool, 0, len(byCategory))
	seen := make(map[string]bool, len(byCategory))

	for _, category := range preferred {
		if seen[category] {
			continue
		}
		seen[category] = true
		if articles := byCategory[category]; len(articles) > 0 {
			pools = append(pools, categoryPool{category: category, articles: articles})
		}
	}

	var rest []string
	for category, articles := range byCategory {
		if !seen[category] && len(articles) > 0 {
			rest = append(rest, category)
		}
	}
	sort.Strings(rest)
	for _, category := range rest {
		pools = append(pools, categoryPool{category: category, articles: byCategory[category]})
	}
	return pools
}

// selectArticles picks min(quota, total) articles round-robin across pools,
// taking the highest-priority article of each pool in turn. Among equal
// priorities the one earliest in the pool wins.
func selectArticles(pools []categoryPool, quota int) []Article {
	if quota <= 0 {
		return nil
	}

	remaining := make([][]Article, len(pools))
	total := 0
	for i, pool := range pools {
		remaining[i] = append([]Article(nil), pool.articles...)
		total += len(pool.articles)
	}

	want := min(quota, total)
	selected := make([]Article, 0, want)
	for i := 0; len(selected) < want; i = (i + 1) % len(remaining) {
		pool := remaining[i]
		if len(pool) == 0 {
			continue
		}

		best := 0
		for j := 1; j < len(pool); j++ {
			if articlePriority(pool[j]) > articlePriority(pool[best]) {
				best = j
			}
		}
		selected = append(selected, pool[best])
		remaining[i] = append(pool[:best], pool[best+1:]...)
	}
	return selected
}
