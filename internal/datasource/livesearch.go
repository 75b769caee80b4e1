package datasource

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/PuerkitoBio/goquery"
	"github.com/mmcdole/gofeed"

	"sectorpulse/pkg/models"
)

// FeedProvider is one live news source. Providers are queried in the order
// they are configured and results keep that order.
type FeedProvider struct {
	Name   string
	RSSURL string
}

// DefaultFeedProviders lists the configured financial news RSS feeds.
var DefaultFeedProviders = []FeedProvider{
	{
		Name:   "Yahoo Finance",
		RSSURL: "https://finance.yahoo.com/news/rssindex",
	},
	{
		Name:   "CNBC Markets",
		RSSURL: "https://search.cnbc.com/rs/search/combinedcms/view.xml?partnerId=wrss01&id=20910258",
	},
	{
		Name:   "MarketWatch",
		RSSURL: "https://feeds.content.dowjones.io/public/rss/mw_topstories",
	},
}

// maxLiveNewsItems caps the result list regardless of provider volume.
const maxLiveNewsItems = 10

// LiveSearch fetches current headlines matching a query from RSS providers.
type LiveSearch struct {
	providers []FeedProvider
	cache     *Cache
	limiter   *RateLimiter
	parser    *gofeed.Parser
}

// NewLiveSearch creates a live news client with the default providers.
func NewLiveSearch() *LiveSearch {
	return NewLiveSearchWithProviders(DefaultFeedProviders)
}

// NewLiveSearchWithProviders creates a live news client with custom providers.
func NewLiveSearchWithProviders(providers []FeedProvider) *LiveSearch {
	return &LiveSearch{
		providers: providers,
		cache:     NewCache(10 * time.Minute),
		limiter:   NewRateLimiter(2, time.Second), // conservative: 2 req/s
		parser:    gofeed.NewParser(),
	}
}

// Search returns up to 10 current headlines matching query, in provider
// order. When every provider fails it returns an empty (non-nil) item list
// together with the last provider error so the caller can flag the slot as
// degraded rather than abort.
func (ls *LiveSearch) Search(ctx context.Context, query string) (*models.LiveNewsResult, error) {
	cacheKey := "live:" + strings.ToLower(query)
	if cached, ok := ls.cache.Get(cacheKey); ok {
		return cached.(*models.LiveNewsResult), nil
	}

	result := &models.LiveNewsResult{
		Query: query,
		Items: []models.NewsItem{},
	}
	terms := queryTerms(query)

	var lastErr error
	reached := 0
	for _, p := range ls.providers {
		if len(result.Items) >= maxLiveNewsItems {
			break
		}
		items, err := ls.fetchProvider(ctx, p, terms, maxLiveNewsItems-len(result.Items))
		if err != nil {
			lastErr = err
			continue // a dead feed never sinks the search
		}
		reached++
		result.Items = append(result.Items, items...)
	}

	if reached == 0 && lastErr != nil {
		return result, fmt.Errorf("live news: all providers failed: %w", lastErr)
	}

	ls.cache.Set(cacheKey, result)
	return result, nil
}

func (ls *LiveSearch) fetchProvider(ctx context.Context, p FeedProvider, terms []string, limit int) ([]models.NewsItem, error) {
	if err := ls.limiter.Wait(ctx); err != nil {
		return nil, err
	}

	feed, err := ls.parser.ParseURLWithContext(p.RSSURL, ctx)
	if err != nil {
		return nil, fmt.Errorf("parse RSS %s: %w", p.Name, err)
	}

	var items []models.NewsItem
	for _, item := range feed.Items {
		if len(items) >= limit {
			break
		}
		summary := cleanHTML(item.Description)
		if !matchesAny(item.Title+" "+summary, terms) {
			continue
		}
		items = append(items, models.NewsItem{
			Title:   item.Title,
			URL:     item.Link,
			Summary: summary,
		})
	}
	return items, nil
}

// cleanHTML strips HTML tags from a string using goquery.
func cleanHTML(s string) string {
	if s == "" {
		return ""
	}
	doc, err := goquery.NewDocumentFromReader(strings.NewReader("<body>" + s + "</body>"))
	if err != nil {
		return s
	}
	return strings.TrimSpace(doc.Text())
}

// queryTerms splits a query into lowercase match terms, dropping one- and
// two-letter noise words.
func queryTerms(query string) []string {
	var terms []string
	for _, f := range strings.Fields(strings.ToLower(query)) {
		if len(f) > 2 {
			terms = append(terms, f)
		}
	}
	return terms
}

// matchesAny reports whether text contains any of the terms. An empty term
// list matches everything.
func matchesAny(text string, terms []string) bool {
	if len(terms) == 0 {
		return true
	}
	lower := strings.ToLower(text)
	for _, t := range terms {
		if strings.Contains(lower, t) {
			return true
		}
	}
	return false
}
