package llm

import (
	"context"
	"errors"
	"fmt"
	"log"
	"sync"
	"time"
)

// Router fans a chat request over a primary provider and an ordered
// fallback chain, with bounded retries per provider.
type Router struct {
	mu         sync.RWMutex
	providers  map[string]Provider
	primary    string
	fallbacks  []string
	maxRetries int
	retryDelay time.Duration
}

// RouterOption configures the router.
type RouterOption func(*Router)

// WithFallbacks sets the fallback provider chain.
func WithFallbacks(names ...string) RouterOption {
	return func(r *Router) { r.fallbacks = names }
}

// WithMaxRetries sets retry attempts per provider.
func WithMaxRetries(n int) RouterOption {
	return func(r *Router) { r.maxRetries = n }
}

// WithRetryDelay sets the base delay between retries.
func WithRetryDelay(d time.Duration) RouterOption {
	return func(r *Router) { r.retryDelay = d }
}

// NewRouter creates a router with the given primary provider name.
func NewRouter(primary string, opts ...RouterOption) *Router {
	r := &Router{
		providers:  make(map[string]Provider),
		primary:    primary,
		maxRetries: 2,
		retryDelay: time.Second,
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Register adds a provider to the router.
func (r *Router) Register(p Provider) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.providers[p.Name()] = p
}

// Get returns a registered provider by name.
func (r *Router) Get(name string) (Provider, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	p, ok := r.providers[name]
	return p, ok
}

// Name identifies the router as a provider.
func (r *Router) Name() string { return "router" }

// Models lists the primary provider's models.
func (r *Router) Models() []string {
	if p, ok := r.Get(r.primary); ok {
		return p.Models()
	}
	return nil
}

// Ping probes the primary provider. Used by the orchestrator's fail-fast
// check at request start.
func (r *Router) Ping(ctx context.Context) error {
	p, ok := r.Get(r.primary)
	if !ok {
		return fmt.Errorf("%w: primary %q not registered", ErrNoProviders, r.primary)
	}
	return p.Ping(ctx)
}

// Chat tries the primary provider, then the fallbacks in order.
func (r *Router) Chat(ctx context.Context, messages []Message, tools []Tool, opts *ChatOptions) (*Response, error) {
	chain := append([]string{r.primary}, r.fallbacks...)

	var lastErr error
	for _, name := range chain {
		p, ok := r.Get(name)
		if !ok {
			continue
		}

		resp, err := r.chatWithRetry(ctx, p, messages, tools, opts)
		if err == nil {
			return resp, nil
		}
		lastErr = err
		log.Printf("llm/router: provider %s failed: %v, trying next", name, err)

		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		if errors.Is(err, ErrNoAPIKey) {
			return nil, err // a bad key will not heal on another attempt
		}
	}

	if lastErr == nil {
		return nil, ErrNoProviders
	}
	return nil, fmt.Errorf("llm/router: all providers failed: %w", lastErr)
}

func (r *Router) chatWithRetry(ctx context.Context, p Provider, messages []Message, tools []Tool, opts *ChatOptions) (*Response, error) {
	var lastErr error
	for attempt := 0; attempt <= r.maxRetries; attempt++ {
		if attempt > 0 {
			select {
			case <-ctx.Done():
				return nil, ctx.Err()
			case <-time.After(r.retryDelay * time.Duration(attempt)):
			}
		}
		resp, err := p.Chat(ctx, messages, tools, opts)
		if err == nil {
			return resp, nil
		}
		lastErr = err
		if errors.Is(err, ErrNoAPIKey) || ctx.Err() != nil {
			return nil, err
		}
	}
	return nil, lastErr
}
