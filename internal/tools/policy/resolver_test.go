package policy

import "testing"

func TestDecideReadOnlyProfileAllowsReadDeniesWrite(t *testing.T) {
	r := NewResolver()
	p := NewPolicy(ProfileReadOnly)

	if d := r.Decide(p, "read", ""); !d.Allowed {
		t.Fatalf("expected read allowed, got denied: %s", d.Reason)
	}
	if d := r.Decide(p, "write", ""); d.Allowed {
		t.Fatalf("expected write denied under read_only profile")
	}
}

func TestDecideFullProfileAllowsAllFiveTools(t *testing.T) {
	r := NewResolver()
	p := NewPolicy(ProfileFull)

	for _, tool := range []string{"read", "write", "edit", "glob", "grep"} {
		if d := r.Decide(p, tool, ""); !d.Allowed {
			t.Fatalf("expected %s allowed under full profile, got denied: %s", tool, d.Reason)
		}
	}
}

func TestDenyWinsOverAllow(t *testing.T) {
	r := NewResolver()
	p := WithDeny(NewPolicy(ProfileFull), "write")

	if d := r.Decide(p, "write", ""); d.Allowed {
		t.Fatalf("expected write denied once explicitly denied")
	}
	if d := r.Decide(p, "edit", ""); !d.Allowed {
		t.Fatalf("expected edit to remain allowed")
	}
}

func TestByProviderOverrideNarrowsPolicy(t *testing.T) {
	r := NewResolver()
	p := NewUnifiedPolicy(ProfileFull).
		ForProvider("anthropic", Policy{Deny: []string{"write", "edit"}}).
		Build()

	if d := r.Decide(p, "write", "anthropic"); d.Allowed {
		t.Fatalf("expected write denied for anthropic override")
	}
	if d := r.Decide(p, "write", "openai"); !d.Allowed {
		t.Fatalf("expected write allowed for openai, which has no override")
	}
}

func TestMergeAppendsAllowAndDeny(t *testing.T) {
	r := NewResolver()
	merged := Merge(NewPolicy(ProfileReadOnly), Policy{Allow: []string{"file_edit"}})

	for _, tool := range []string{"read", "write", "edit"} {
		if d := r.Decide(merged, tool, ""); !d.Allowed {
			t.Fatalf("expected %s allowed after merge, got denied: %s", tool, d.Reason)
		}
	}
}
