package tools

import (
	"context"
	"testing"
	"time"

	"github.com/nexusrun/coreagent/internal/tools/policy"
	"github.com/nexusrun/coreagent/pkg/models"
)

func TestCheckAutoGrantsLowRisk(t *testing.T) {
	gate := NewPermissionGate(GatePolicy{Policy: policy.NewPolicy(policy.ProfileFull)})
	d, err := gate.Check(context.Background(), models.ToolCall{Name: "read"}, RiskLow, "s1", "")
	if err != nil {
		t.Fatalf("Check: %v", err)
	}
	if d.Outcome != OutcomeGranted {
		t.Fatalf("expected granted, got %v", d.Outcome)
	}
}

func TestCheckDeniesToolOutsidePolicy(t *testing.T) {
	gate := NewPermissionGate(GatePolicy{Policy: policy.NewPolicy(policy.ProfileReadOnly)})
	d, err := gate.Check(context.Background(), models.ToolCall{Name: "write"}, RiskLow, "s1", "")
	if err != nil {
		t.Fatalf("Check: %v", err)
	}
	if d.Outcome != OutcomeDenied {
		t.Fatalf("expected denied for write under read_only policy, got %v", d.Outcome)
	}
}

func TestCheckWaitsForConfirmationThenGrant(t *testing.T) {
	gate := NewPermissionGate(GatePolicy{
		Policy:         policy.NewPolicy(policy.ProfileFull),
		AutoGrantBelow: RiskCritical, // force everything below critical to confirm
		ConfirmTimeout: 2 * time.Second,
	})

	var requestID string
	gate.OnConfirmationRequired(func(toolName, sessionID, id string) {
		requestID = id
	})

	done := make(chan Decision, 1)
	go func() {
		d, err := gate.Check(context.Background(), models.ToolCall{Name: "write"}, RiskHigh, "s1", "")
		if err != nil {
			t.Errorf("Check: %v", err)
			return
		}
		done <- d
	}()

	deadline := time.Now().Add(time.Second)
	for requestID == "" && time.Now().Before(deadline) {
		time.Sleep(10 * time.Millisecond)
	}
	if requestID == "" {
		t.Fatalf("confirmation callback never fired")
	}
	if err := gate.Grant(requestID); err != nil {
		t.Fatalf("Grant: %v", err)
	}

	select {
	case d := <-done:
		if d.Outcome != OutcomeGranted {
			t.Fatalf("expected granted after Grant, got %v", d.Outcome)
		}
	case <-time.After(time.Second):
		t.Fatalf("Check never returned after Grant")
	}
}

func TestCheckTimesOutToDenied(t *testing.T) {
	gate := NewPermissionGate(GatePolicy{
		Policy:         policy.NewPolicy(policy.ProfileFull),
		AutoGrantBelow: RiskCritical,
		ConfirmTimeout: 50 * time.Millisecond,
	})
	d, err := gate.Check(context.Background(), models.ToolCall{Name: "write"}, RiskHigh, "s1", "")
	if err != nil {
		t.Fatalf("Check: %v", err)
	}
	if d.Outcome != OutcomeDenied {
		t.Fatalf("expected denied after timeout, got %v", d.Outcome)
	}
}
