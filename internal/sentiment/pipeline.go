package sentiment

import (
	"context"
	"errors"
	"log"
	"sync"

	"sectorpulse/pkg/models"
)

// Common pipeline errors.
var (
	// ErrClassifierUnavailable marks the Tier-2 capability as absent. It is a
	// detected state, not a runtime failure: the pipeline degrades to Tier 1.
	ErrClassifierUnavailable = errors.New("sentiment: model classifier unavailable")

	// ErrCacheUnavailable is reported when the cache store cannot be reached;
	// classification continues uncached on Tier 1 and Tier 2.
	ErrCacheUnavailable = errors.New("sentiment: cache store unavailable")
)

// Classifier is the optional model-backed Tier-2 capability.
type Classifier interface {
	// Classify scores a single text. Implementations return label, score and
	// confidence; the pipeline assigns the tier.
	Classify(ctx context.Context, text string) (models.Sentiment, error)

	// Ping probes availability. Called once at pipeline construction.
	Ping(ctx context.Context) error
}

// CacheStore persists classification results keyed by content hash.
//
// Upsert is upgrade-only: an implementation must keep the existing entry
// whenever it has a higher tier, or the same tier with higher confidence,
// than the candidate. The comparison and write must be atomic per key, which
// makes the cache convergent under concurrent writers.
type CacheStore interface {
	Get(ctx context.Context, contentHash string) (models.Sentiment, bool, error)
	Upsert(ctx context.Context, contentHash string, s models.Sentiment) error
}

// Pipeline classifies document text through the cheapest sufficient tier.
type Pipeline struct {
	classifier Classifier
	cache      CacheStore

	modelAvailable bool
	cacheWarn      sync.Once
}

// NewPipeline builds a pipeline, probing the Tier-2 classifier exactly once.
// Both classifier and cache may be nil; the pipeline then runs lexicon-only
// and uncached respectively.
func NewPipeline(ctx context.Context, classifier Classifier, cache CacheStore) *Pipeline {
	p := &Pipeline{classifier: classifier, cache: cache}
	if classifier != nil {
		if err := classifier.Ping(ctx); err == nil {
			p.modelAvailable = true
		} else {
			log.Printf("sentiment: tier-2 classifier not available, using lexicon only: %v", err)
		}
	}
	return p
}

// ModelAvailable reports whether the Tier-2 classifier passed its startup
// probe. The probe is never repeated.
func (p *Pipeline) ModelAvailable() bool { return p.modelAvailable }

// targetTier is the strongest tier this pipeline can produce.
func (p *Pipeline) targetTier() models.SentimentTier {
	if p.modelAvailable {
		return models.TierModel
	}
	return models.TierLexical
}

// Classify returns the sentiment for text, consulting the cache first. A
// cached entry at or above the pipeline's target tier is returned unchanged.
// Otherwise the needed tier is computed and upserted; the store's
// upgrade-only rule guarantees a concurrent stronger write is never clobbered.
func (p *Pipeline) Classify(ctx context.Context, text string) (models.Sentiment, error) {
	hash := models.ContentHash(text)

	if cached, ok := p.cacheGet(ctx, hash); ok && cached.Tier >= p.targetTier() {
		return cached, nil
	}

	result := p.classify(ctx, text)
	p.cachePut(ctx, hash, result)

	// A concurrent writer may have stored a stronger entry between our read
	// and upsert; the cache kept the stronger one, and so do we.
	if cached, ok := p.cacheGet(ctx, hash); ok && stronger(cached, result) {
		return cached, nil
	}
	return result, nil
}

// ClassifyBatch classifies each text independently. Distinct documents are
// embarrassingly parallel; the per-key atomic upsert makes shared-hash
// collisions safe.
func (p *Pipeline) ClassifyBatch(ctx context.Context, texts []string) []models.Sentiment {
	results := make([]models.Sentiment, len(texts))
	var wg sync.WaitGroup
	for i, text := range texts {
		wg.Add(1)
		go func(idx int, t string) {
			defer wg.Done()
			s, _ := p.Classify(ctx, t)
			results[idx] = s
		}(i, text)
	}
	wg.Wait()
	return results
}

// classify computes the strongest tier currently available.
func (p *Pipeline) classify(ctx context.Context, text string) models.Sentiment {
	lexical := ScoreText(text)
	if !p.modelAvailable {
		return lexical
	}

	modeled, err := p.classifier.Classify(ctx, text)
	if err != nil {
		// Runtime failure of an available classifier degrades this one
		// classification to Tier 1; availability is not re-evaluated.
		return lexical
	}
	modeled.Tier = models.TierModel
	return modeled
}

func (p *Pipeline) cacheGet(ctx context.Context, hash string) (models.Sentiment, bool) {
	if p.cache == nil {
		return models.Sentiment{}, false
	}
	s, ok, err := p.cache.Get(ctx, hash)
	if err != nil {
		p.warnCache(err)
		return models.Sentiment{}, false
	}
	return s, ok
}

func (p *Pipeline) cachePut(ctx context.Context, hash string, s models.Sentiment) {
	if p.cache == nil {
		return
	}
	if err := p.cache.Upsert(ctx, hash, s); err != nil {
		p.warnCache(err)
	}
}

func (p *Pipeline) warnCache(err error) {
	p.cacheWarn.Do(func() {
		log.Printf("sentiment: cache store unreachable, running uncached: %v", err)
	})
}

// stronger reports whether a should win over b under the upgrade-only rule.
func stronger(a, b models.Sentiment) bool {
	if a.Tier != b.Tier {
		return a.Tier > b.Tier
	}
	return a.Confidence > b.Confidence
}

// MemoryCache is an in-process CacheStore used in tests and as a fallback
// when no durable store is configured.
type MemoryCache struct {
	mu      sync.Mutex
	entries map[string]models.Sentiment
}

// NewMemoryCache creates an empty in-memory cache.
func NewMemoryCache() *MemoryCache {
	return &MemoryCache{entries: make(map[string]models.Sentiment)}
}

// Get returns the cached sentiment for a content hash.
func (c *MemoryCache) Get(_ context.Context, hash string) (models.Sentiment, bool, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	s, ok := c.entries[hash]
	return s, ok, nil
}

// Upsert stores s under hash unless an existing entry is stronger.
func (c *MemoryCache) Upsert(_ context.Context, hash string, s models.Sentiment) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if existing, ok := c.entries[hash]; ok && stronger(existing, s) {
		return nil
	}
	c.entries[hash] = s
	return nil
}

// Len returns the number of cached entries.
func (c *MemoryCache) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.entries)
}
