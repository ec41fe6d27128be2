package models

// ModelDescriptor describes a model a provider exposes: its context window,
// output cap, and capability flags, used for request validation and model
// selection/fallback.
type ModelDescriptor struct {
	ID               string  `json:"id"`
	Provider         string  `json:"provider"`
	DisplayName      string  `json:"display_name,omitempty"`
	ContextWindow    int     `json:"context_window"`
	MaxOutputTokens  int     `json:"max_output_tokens"`
	SupportsTools    bool    `json:"supports_tools"`
	SupportsVision   bool    `json:"supports_vision"`
	SupportsThinking bool    `json:"supports_thinking"`
	InputCostPerMTok float64 `json:"input_cost_per_mtok,omitempty"`
	OutputCostPerMTok float64 `json:"output_cost_per_mtok,omitempty"`
	Retired          bool    `json:"retired,omitempty"`
	FallbackID       string  `json:"fallback_id,omitempty"` // model to use when this one is Retired
}
