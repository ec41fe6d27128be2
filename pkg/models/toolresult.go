package models

// ToolCallResult is what a tool execution returns: a one-line summary for
// UI display, the text fed back to the model as the tool-role message
// content, and optional machine-consumable detail.
type ToolCallResult struct {
	Title        string         `json:"title"`
	OutputText   string         `json:"output_text"`
	MetadataJSON map[string]any `json:"metadata_json,omitempty"`
	IsError      bool           `json:"is_error,omitempty"`
}
