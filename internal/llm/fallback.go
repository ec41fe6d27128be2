package llm

import (
	"context"
	"fmt"

	"github.com/nexusrun/coreagent/pkg/models"
)

// ResolveModel looks up provider/id in the catalog and, if that
// descriptor is marked Retired, follows its FallbackID chain (at most
// maxFallbackHops times, to guard against a misconfigured cycle) until it
// lands on a non-retired descriptor.
func ResolveModel(ctx context.Context, catalog *Catalog, provider, id string) (models.ModelDescriptor, error) {
	const maxFallbackHops = 5

	current := id
	for hop := 0; hop < maxFallbackHops; hop++ {
		d, err := catalog.Get(ctx, provider, current)
		if err != nil {
			return models.ModelDescriptor{}, err
		}
		if !d.Retired {
			return d, nil
		}
		if d.FallbackID == "" {
			return models.ModelDescriptor{}, fmt.Errorf("llm: model %s/%s is retired with no fallback", provider, current)
		}
		current = d.FallbackID
	}
	return models.ModelDescriptor{}, fmt.Errorf("llm: fallback chain for %s/%s exceeded %d hops", provider, id, maxFallbackHops)
}
