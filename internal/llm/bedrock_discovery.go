package llm

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"sync"

	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/bedrock"
	"github.com/aws/aws-sdk-go-v2/service/bedrock/types"

	"github.com/nexusrun/coreagent/pkg/models"
)

// DefaultBedrockContextWindow and DefaultBedrockMaxTokens are applied to a
// discovered model when AWS doesn't report either figure directly.
const (
	DefaultBedrockContextWindow = 32000
	DefaultBedrockMaxTokens     = 4096
)

// BedrockDiscoveryConfig configures a BedrockSource.
type BedrockDiscoveryConfig struct {
	// Region is the AWS region to query foundation models in.
	Region string

	// ProviderFilter limits discovery to specific upstream model
	// providers (e.g. "anthropic", "amazon", "meta"). Empty means all.
	ProviderFilter []string

	DefaultContextWindow int
	DefaultMaxTokens     int
}

// bedrockClient is the subset of the Bedrock API this package calls,
// narrowed so tests can substitute a fake.
type bedrockClient interface {
	ListFoundationModels(ctx context.Context, params *bedrock.ListFoundationModelsInput, optFns ...func(*bedrock.Options)) (*bedrock.ListFoundationModelsOutput, error)
}

// BedrockSource is a Catalog Source that discovers Bedrock-hosted
// foundation models via ListFoundationModels, for the C10 model-discovery
// component: providers beyond the statically-wired Anthropic/OpenAI
// adapters are surfaced by querying AWS directly rather than hand-listing
// every Bedrock-hosted model in staticDescriptors.
type BedrockSource struct {
	cfg    BedrockDiscoveryConfig
	logger *slog.Logger

	mu            sync.Mutex
	clientFactory func(ctx context.Context, region string) (bedrockClient, error)
}

// NewBedrockSource creates a Source that can be registered with a Catalog
// via Catalog.AddSource.
func NewBedrockSource(cfg BedrockDiscoveryConfig, logger *slog.Logger) *BedrockSource {
	if logger == nil {
		logger = slog.Default()
	}
	if cfg.Region == "" {
		cfg.Region = "us-east-1"
	}
	if cfg.DefaultContextWindow <= 0 {
		cfg.DefaultContextWindow = DefaultBedrockContextWindow
	}
	if cfg.DefaultMaxTokens <= 0 {
		cfg.DefaultMaxTokens = DefaultBedrockMaxTokens
	}
	return &BedrockSource{cfg: cfg, logger: logger}
}

// SetClientFactory overrides how the AWS client is constructed, for tests.
func (s *BedrockSource) SetClientFactory(factory func(ctx context.Context, region string) (bedrockClient, error)) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.clientFactory = factory
}

// Fetch implements llm.Source.
func (s *BedrockSource) Fetch(ctx context.Context) ([]models.ModelDescriptor, error) {
	client, err := s.client(ctx)
	if err != nil {
		return nil, fmt.Errorf("bedrock discovery: create client: %w", err)
	}

	out, err := client.ListFoundationModels(ctx, &bedrock.ListFoundationModelsInput{})
	if err != nil {
		return nil, fmt.Errorf("bedrock discovery: list foundation models: %w", err)
	}

	filter := normalizeProviderFilter(s.cfg.ProviderFilter)
	var descriptors []models.ModelDescriptor
	for _, summary := range out.ModelSummaries {
		if !s.shouldInclude(summary, filter) {
			continue
		}
		descriptors = append(descriptors, s.toDescriptor(summary))
	}

	s.logger.Debug("bedrock discovery complete",
		"total", len(out.ModelSummaries), "included", len(descriptors))
	return descriptors, nil
}

func (s *BedrockSource) client(ctx context.Context) (bedrockClient, error) {
	s.mu.Lock()
	factory := s.clientFactory
	s.mu.Unlock()
	if factory != nil {
		return factory(ctx, s.cfg.Region)
	}

	awsCfg, err := config.LoadDefaultConfig(ctx, config.WithRegion(s.cfg.Region))
	if err != nil {
		return nil, err
	}
	return bedrock.NewFromConfig(awsCfg), nil
}

func (s *BedrockSource) shouldInclude(summary types.FoundationModelSummary, filter []string) bool {
	if summary.ModelId == nil || *summary.ModelId == "" {
		return false
	}
	if summary.ResponseStreamingSupported == nil || !*summary.ResponseStreamingSupported {
		return false
	}
	if !hasTextModality(summary.OutputModalities) {
		return false
	}
	if summary.ModelLifecycle == nil || summary.ModelLifecycle.Status != types.FoundationModelLifecycleStatusActive {
		return false
	}
	if len(filter) == 0 {
		return true
	}
	providerName := extractProviderName(summary)
	for _, p := range filter {
		if strings.EqualFold(p, providerName) {
			return true
		}
	}
	return false
}

func (s *BedrockSource) toDescriptor(summary types.FoundationModelSummary) models.ModelDescriptor {
	id := *summary.ModelId
	name := id
	if summary.ModelName != nil && *summary.ModelName != "" {
		name = *summary.ModelName
	}

	var supportsVision bool
	for _, m := range summary.InputModalities {
		if m == types.ModelModalityImage {
			supportsVision = true
		}
	}

	var supportsTools bool
	for _, inf := range summary.InferenceTypesSupported {
		if inf == types.InferenceTypeOnDemand {
			supportsTools = true
		}
	}

	supportsThinking := strings.Contains(strings.ToLower(id), "reason") ||
		strings.Contains(strings.ToLower(id), "think")

	return models.ModelDescriptor{
		ID:               id,
		Provider:         "bedrock",
		DisplayName:      name,
		ContextWindow:    s.cfg.DefaultContextWindow,
		MaxOutputTokens:  s.cfg.DefaultMaxTokens,
		SupportsTools:    supportsTools,
		SupportsVision:   supportsVision,
		SupportsThinking: supportsThinking,
	}
}

func extractProviderName(summary types.FoundationModelSummary) string {
	if summary.ProviderName != nil && *summary.ProviderName != "" {
		return strings.ToLower(*summary.ProviderName)
	}
	if summary.ModelId != nil {
		if parts := strings.SplitN(*summary.ModelId, ".", 2); len(parts) > 0 {
			return strings.ToLower(parts[0])
		}
	}
	return ""
}

func hasTextModality(modalities []types.ModelModality) bool {
	for _, m := range modalities {
		if m == types.ModelModalityText {
			return true
		}
	}
	return false
}

func normalizeProviderFilter(filter []string) []string {
	if len(filter) == 0 {
		return nil
	}
	seen := make(map[string]bool, len(filter))
	out := make([]string, 0, len(filter))
	for _, p := range filter {
		p = strings.TrimSpace(strings.ToLower(p))
		if p != "" && !seen[p] {
			seen[p] = true
			out = append(out, p)
		}
	}
	return out
}
