package llm

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/nexusrun/coreagent/pkg/models"
)

// staticDescriptors is the compiled-in model table, seeded with the
// models each built-in adapter is known to support. It is intentionally
// small and conservative; anything missing can be added by a dynamic
// Source or by a caller calling Catalog.Put directly.
var staticDescriptors = []models.ModelDescriptor{
	{
		ID: "claude-opus-4", Provider: "anthropic", DisplayName: "Claude Opus 4",
		ContextWindow: 200000, MaxOutputTokens: 32000,
		SupportsTools: true, SupportsVision: true, SupportsThinking: true,
	},
	{
		ID: "claude-sonnet-4", Provider: "anthropic", DisplayName: "Claude Sonnet 4",
		ContextWindow: 200000, MaxOutputTokens: 64000,
		SupportsTools: true, SupportsVision: true, SupportsThinking: true,
	},
	{
		ID: "gpt-4o", Provider: "openai", DisplayName: "GPT-4o",
		ContextWindow: 128000, MaxOutputTokens: 16384,
		SupportsTools: true, SupportsVision: true,
	},
	{
		ID: "gpt-4o-mini", Provider: "openai", DisplayName: "GPT-4o mini",
		ContextWindow: 128000, MaxOutputTokens: 16384,
		SupportsTools: true, SupportsVision: true,
	},
}

// Source refreshes model descriptors from a remote catalog (e.g. a
// provider's /models endpoint). Implementations should be inexpensive to
// call repeatedly; Catalog handles TTL-based throttling.
type Source interface {
	Fetch(ctx context.Context) ([]models.ModelDescriptor, error)
}

// Catalog is the model descriptor table: a static compiled-in base,
// optionally refreshed from one or more dynamic Sources on a TTL.
type Catalog struct {
	mu          sync.RWMutex
	descriptors map[string]models.ModelDescriptor // keyed by provider/id

	sources     []Source
	ttl         time.Duration
	lastRefresh time.Time
}

// NewCatalog creates a Catalog seeded with the compiled-in static
// descriptors.
func NewCatalog() *Catalog {
	c := &Catalog{
		descriptors: make(map[string]models.ModelDescriptor, len(staticDescriptors)),
		ttl:         10 * time.Minute,
	}
	for _, d := range staticDescriptors {
		c.descriptors[catalogKey(d.Provider, d.ID)] = d
	}
	return c
}

// AddSource registers a dynamic Source consulted on refresh.
func (c *Catalog) AddSource(s Source) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.sources = append(c.sources, s)
}

// SetTTL overrides the default refresh interval.
func (c *Catalog) SetTTL(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.ttl = d
}

func catalogKey(provider, id string) string {
	return provider + "/" + id
}

// Put inserts or overwrites a descriptor directly, bypassing sources.
func (c *Catalog) Put(d models.ModelDescriptor) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.descriptors[catalogKey(d.Provider, d.ID)] = d
}

// Get returns the descriptor for provider/id, refreshing from sources
// first if the TTL has elapsed.
func (c *Catalog) Get(ctx context.Context, provider, id string) (models.ModelDescriptor, error) {
	c.refreshIfStale(ctx)

	c.mu.RLock()
	defer c.mu.RUnlock()
	d, ok := c.descriptors[catalogKey(provider, id)]
	if !ok {
		return models.ModelDescriptor{}, fmt.Errorf("llm: unknown model %s/%s", provider, id)
	}
	return d, nil
}

// List returns every known descriptor for provider, or every descriptor
// across all providers when provider is empty.
func (c *Catalog) List(ctx context.Context, provider string) []models.ModelDescriptor {
	c.refreshIfStale(ctx)

	c.mu.RLock()
	defer c.mu.RUnlock()
	out := make([]models.ModelDescriptor, 0, len(c.descriptors))
	for _, d := range c.descriptors {
		if provider == "" || d.Provider == provider {
			out = append(out, d)
		}
	}
	return out
}

func (c *Catalog) refreshIfStale(ctx context.Context) {
	c.mu.RLock()
	stale := time.Since(c.lastRefresh) > c.ttl
	sources := c.sources
	c.mu.RUnlock()
	if !stale || len(sources) == 0 {
		return
	}

	for _, src := range sources {
		fetched, err := src.Fetch(ctx)
		if err != nil {
			continue // a failed refresh keeps the existing, possibly-stale entries
		}
		c.mu.Lock()
		for _, d := range fetched {
			c.descriptors[catalogKey(d.Provider, d.ID)] = d
		}
		c.mu.Unlock()
	}

	c.mu.Lock()
	c.lastRefresh = time.Now()
	c.mu.Unlock()
}
