package policy

import (
	"sort"
)

// Decision is the result of resolving a Policy against one tool id.
type Decision struct {
	Allowed bool
	Tool    string
	Reason  string
}

// Resolver expands tool groups and evaluates a Policy against a concrete
// tool id and, optionally, the active provider name.
type Resolver struct {
	groups map[string]ToolGroup
}

// NewResolver creates a Resolver seeded with DefaultGroups.
func NewResolver() *Resolver {
	r := &Resolver{groups: make(map[string]ToolGroup)}
	for _, g := range DefaultGroups {
		r.groups[g.Name] = g
	}
	return r
}

// AddGroup registers or replaces a named tool group.
func (r *Resolver) AddGroup(group ToolGroup) {
	r.groups[group.Name] = group
}

// ExpandGroups turns a list of tool ids and/or group names into a flat,
// deduplicated list of tool ids.
func (r *Resolver) ExpandGroups(entries []string) []string {
	seen := make(map[string]bool)
	var out []string
	for _, e := range entries {
		e = NormalizeTool(e)
		if group, ok := r.groups[e]; ok {
			for _, t := range group.Tools {
				t = NormalizeTool(t)
				if !seen[t] {
					seen[t] = true
					out = append(out, t)
				}
			}
			continue
		}
		if !seen[e] {
			seen[e] = true
			out = append(out, e)
		}
	}
	sort.Strings(out)
	return out
}

// Decide resolves whether toolName is permitted under p, optionally
// narrowed by a per-provider override. Deny always wins over Allow.
func (r *Resolver) Decide(p Policy, toolName string, provider string) Decision {
	toolName = NormalizeTool(toolName)
	effective := r.effectivePolicy(p, provider)

	deny := r.ExpandGroups(effective.Deny)
	for _, d := range deny {
		if d == toolName {
			return Decision{Allowed: false, Tool: toolName, Reason: "denied by policy"}
		}
	}

	allow := r.ExpandGroups(effective.Allow)
	for _, a := range allow {
		if a == toolName {
			return Decision{Allowed: true, Tool: toolName}
		}
	}

	return Decision{Allowed: false, Tool: toolName, Reason: "not in allow list"}
}

func (r *Resolver) effectivePolicy(p Policy, provider string) Policy {
	if provider == "" || p.ByProvider == nil {
		return p
	}
	override, ok := p.ByProvider[provider]
	if !ok {
		return p
	}
	merged := p
	merged.Allow = append(append([]string{}, p.Allow...), override.Allow...)
	merged.Deny = append(append([]string{}, p.Deny...), override.Deny...)
	return merged
}

// Merge combines policies in order: later entries' Allow/Deny append to
// earlier ones, so a later Deny still wins via Decide's deny-first check.
func Merge(policies ...Policy) Policy {
	var out Policy
	for _, p := range policies {
		if p.Profile != "" {
			out.Profile = p.Profile
		}
		out.Allow = append(out.Allow, p.Allow...)
		out.Deny = append(out.Deny, p.Deny...)
		if len(p.ByProvider) > 0 {
			if out.ByProvider == nil {
				out.ByProvider = make(map[string]Policy)
			}
			for k, v := range p.ByProvider {
				out.ByProvider[k] = v
			}
		}
	}
	return out
}

// NewPolicy creates a Policy from a profile.
func NewPolicy(profile Profile) Policy {
	return ProfileDefaults[profile]
}

// WithAllow returns a copy of p with additional allow entries.
func WithAllow(p Policy, ids ...string) Policy {
	p.Allow = append(append([]string{}, p.Allow...), ids...)
	return p
}

// WithDeny returns a copy of p with additional deny entries.
func WithDeny(p Policy, ids ...string) Policy {
	p.Deny = append(append([]string{}, p.Deny...), ids...)
	return p
}
