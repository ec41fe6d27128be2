// Package policy implements C12, tool policy groups: which of the five
// built-in tools (read, write, edit, glob, grep) a session may invoke,
// layered as a named profile overridden by explicit allow/deny lists and,
// optionally, per-provider exceptions.
package policy

import "strings"

// Profile is a named starting point for a Policy, expanded by Resolver.
type Profile string

const (
	// ProfileReadOnly permits only the tools that cannot modify the
	// workspace: read, glob, grep.
	ProfileReadOnly Profile = "read_only"
	// ProfileFull permits all five built-in tools.
	ProfileFull Profile = "full"
)

// ToolGroup names a set of tool ids that get allowed or denied together,
// so a Policy can say "deny file_edit" instead of listing write and edit
// individually.
type ToolGroup struct {
	Name  string
	Tools []string
}

// DefaultGroups are the built-in groupings every Resolver starts with.
var DefaultGroups = []ToolGroup{
	{Name: "read_only", Tools: []string{"read", "glob", "grep"}},
	{Name: "file_edit", Tools: []string{"write", "edit"}},
}

// ProfileDefaults maps each Profile to the Policy it expands to before any
// caller-supplied Allow/Deny overrides are applied.
var ProfileDefaults = map[Profile]Policy{
	ProfileReadOnly: {Profile: ProfileReadOnly, Allow: []string{"read_only"}},
	ProfileFull:     {Profile: ProfileFull, Allow: []string{"read_only", "file_edit"}},
}

// Policy is a session or provider's tool authorization: a base Profile,
// narrowed or widened by explicit Allow/Deny entries (tool ids or group
// names), with optional per-provider overrides layered on top. Deny always
// wins over Allow for the same tool.
type Policy struct {
	Profile    Profile
	Allow      []string
	Deny       []string
	ByProvider map[string]Policy
}

// NormalizeTool lowercases and trims a tool id for comparison.
func NormalizeTool(id string) string {
	return strings.ToLower(strings.TrimSpace(id))
}

// NormalizeTools applies NormalizeTool to every entry.
func NormalizeTools(ids []string) []string {
	out := make([]string, len(ids))
	for i, id := range ids {
		out[i] = NormalizeTool(id)
	}
	return out
}

// UnifiedPolicyBuilder builds a Policy fluently; used by callers composing
// a session's effective policy from a base profile plus ad hoc rules.
type UnifiedPolicyBuilder struct {
	policy Policy
}

// NewUnifiedPolicy starts a builder from profile's defaults.
func NewUnifiedPolicy(profile Profile) *UnifiedPolicyBuilder {
	base := ProfileDefaults[profile]
	return &UnifiedPolicyBuilder{policy: base}
}

// Allow adds tool ids or group names to the allow list.
func (b *UnifiedPolicyBuilder) Allow(ids ...string) *UnifiedPolicyBuilder {
	b.policy.Allow = append(b.policy.Allow, ids...)
	return b
}

// Deny adds tool ids or group names to the deny list.
func (b *UnifiedPolicyBuilder) Deny(ids ...string) *UnifiedPolicyBuilder {
	b.policy.Deny = append(b.policy.Deny, ids...)
	return b
}

// ForProvider sets an override policy applied only when the active
// provider matches name.
func (b *UnifiedPolicyBuilder) ForProvider(name string, override Policy) *UnifiedPolicyBuilder {
	if b.policy.ByProvider == nil {
		b.policy.ByProvider = make(map[string]Policy)
	}
	b.policy.ByProvider[name] = override
	return b
}

// Build returns the assembled Policy.
func (b *UnifiedPolicyBuilder) Build() Policy {
	return b.policy
}
