package llm

import (
	"context"
	"errors"
	"testing"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/bedrock"
	"github.com/aws/aws-sdk-go-v2/service/bedrock/types"
)

type fakeBedrockClient struct {
	summaries []types.FoundationModelSummary
	err       error
}

func (f *fakeBedrockClient) ListFoundationModels(ctx context.Context, params *bedrock.ListFoundationModelsInput, optFns ...func(*bedrock.Options)) (*bedrock.ListFoundationModelsOutput, error) {
	if f.err != nil {
		return nil, f.err
	}
	return &bedrock.ListFoundationModelsOutput{ModelSummaries: f.summaries}, nil
}

func activeLifecycle() *types.FoundationModelLifecycle {
	return &types.FoundationModelLifecycle{Status: types.FoundationModelLifecycleStatusActive}
}

func TestBedrockSourceFetchFiltersToActiveStreamingTextModels(t *testing.T) {
	streaming := true
	notStreaming := false

	client := &fakeBedrockClient{summaries: []types.FoundationModelSummary{
		{
			ModelId:                    aws.String("anthropic.claude-3-sonnet"),
			ModelName:                  aws.String("Claude 3 Sonnet"),
			ProviderName:               aws.String("Anthropic"),
			ResponseStreamingSupported: &streaming,
			OutputModalities:           []types.ModelModality{types.ModelModalityText},
			InputModalities:            []types.ModelModality{types.ModelModalityText, types.ModelModalityImage},
			ModelLifecycle:             activeLifecycle(),
			InferenceTypesSupported:    []types.InferenceType{types.InferenceTypeOnDemand},
		},
		{
			// Not streaming-capable: must be excluded.
			ModelId:                    aws.String("amazon.titan-text-lite"),
			ResponseStreamingSupported: &notStreaming,
			OutputModalities:           []types.ModelModality{types.ModelModalityText},
			ModelLifecycle:             activeLifecycle(),
		},
		{
			// Missing model ID: must be excluded.
			ResponseStreamingSupported: &streaming,
			OutputModalities:           []types.ModelModality{types.ModelModalityText},
			ModelLifecycle:             activeLifecycle(),
		},
	}}

	src := NewBedrockSource(BedrockDiscoveryConfig{Region: "us-east-1"}, nil)
	src.SetClientFactory(func(ctx context.Context, region string) (bedrockClient, error) {
		return client, nil
	})

	descriptors, err := src.Fetch(context.Background())
	if err != nil {
		t.Fatalf("Fetch: %v", err)
	}
	if len(descriptors) != 1 {
		t.Fatalf("expected 1 descriptor, got %d: %+v", len(descriptors), descriptors)
	}
	d := descriptors[0]
	if d.ID != "anthropic.claude-3-sonnet" {
		t.Errorf("expected claude-3-sonnet, got %s", d.ID)
	}
	if d.Provider != "bedrock" {
		t.Errorf("expected provider bedrock, got %s", d.Provider)
	}
	if !d.SupportsVision {
		t.Error("expected SupportsVision true given image input modality")
	}
	if !d.SupportsTools {
		t.Error("expected SupportsTools true given on-demand inference support")
	}
}

func TestBedrockSourceFetchAppliesProviderFilter(t *testing.T) {
	streaming := true
	client := &fakeBedrockClient{summaries: []types.FoundationModelSummary{
		{
			ModelId:                    aws.String("anthropic.claude-3-haiku"),
			ProviderName:               aws.String("Anthropic"),
			ResponseStreamingSupported: &streaming,
			OutputModalities:           []types.ModelModality{types.ModelModalityText},
			ModelLifecycle:             activeLifecycle(),
		},
		{
			ModelId:                    aws.String("amazon.titan-text-express"),
			ProviderName:               aws.String("Amazon"),
			ResponseStreamingSupported: &streaming,
			OutputModalities:           []types.ModelModality{types.ModelModalityText},
			ModelLifecycle:             activeLifecycle(),
		},
	}}

	src := NewBedrockSource(BedrockDiscoveryConfig{
		Region:         "us-east-1",
		ProviderFilter: []string{"anthropic"},
	}, nil)
	src.SetClientFactory(func(ctx context.Context, region string) (bedrockClient, error) {
		return client, nil
	})

	descriptors, err := src.Fetch(context.Background())
	if err != nil {
		t.Fatalf("Fetch: %v", err)
	}
	if len(descriptors) != 1 || descriptors[0].ID != "anthropic.claude-3-haiku" {
		t.Fatalf("expected only the anthropic model, got %+v", descriptors)
	}
}

func TestBedrockSourceFetchPropagatesClientError(t *testing.T) {
	client := &fakeBedrockClient{err: errors.New("throttled")}
	src := NewBedrockSource(BedrockDiscoveryConfig{Region: "us-east-1"}, nil)
	src.SetClientFactory(func(ctx context.Context, region string) (bedrockClient, error) {
		return client, nil
	})

	if _, err := src.Fetch(context.Background()); err == nil {
		t.Fatal("expected error to propagate from ListFoundationModels")
	}
}

func TestBedrockSourceRegistersAsCatalogSource(t *testing.T) {
	streaming := true
	client := &fakeBedrockClient{summaries: []types.FoundationModelSummary{
		{
			ModelId:                    aws.String("anthropic.claude-3-opus"),
			ResponseStreamingSupported: &streaming,
			OutputModalities:           []types.ModelModality{types.ModelModalityText},
			ModelLifecycle:             activeLifecycle(),
		},
	}}

	src := NewBedrockSource(BedrockDiscoveryConfig{Region: "us-east-1"}, nil)
	src.SetClientFactory(func(ctx context.Context, region string) (bedrockClient, error) {
		return client, nil
	})

	catalog := NewCatalog()
	catalog.AddSource(src)
	catalog.SetTTL(0) // force refresh on next List/Get call

	descriptors := catalog.List(context.Background(), "bedrock")
	if len(descriptors) != 1 {
		t.Fatalf("expected bedrock model to be registered with catalog, got %d", len(descriptors))
	}
}
