package tools

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/nexusrun/coreagent/internal/tools/policy"
	"github.com/nexusrun/coreagent/pkg/models"
)

// RiskLevel classifies a tool call for the permission gate. Tools register
// a fixed risk at construction time (see Registry.Register); the gate
// decides per call whether that risk clears the auto-grant bar or needs a
// human confirmation round-trip.
type RiskLevel int

const (
	RiskLow RiskLevel = iota
	RiskMedium
	RiskHigh
	RiskCritical
)

func (r RiskLevel) String() string {
	switch r {
	case RiskLow:
		return "low"
	case RiskMedium:
		return "medium"
	case RiskHigh:
		return "high"
	case RiskCritical:
		return "critical"
	default:
		return "unknown"
	}
}

// Outcome is the result of a permission check.
type Outcome int

const (
	OutcomeGranted Outcome = iota
	OutcomeDenied
	OutcomeRequiresConfirmation
)

// Decision is what PermissionGate.Check returns once resolved.
type Decision struct {
	Outcome   Outcome
	Reason    string
	RequestID string
}

// confirmationStatus tracks an in-flight human decision.
type confirmationStatus int

const (
	statusPending confirmationStatus = iota
	statusGranted
	statusDenied
)

// confirmationRequest is a pending ask-the-human record. Check blocks on it
// until Grant or Deny resolves the status, the caller's context is
// cancelled, or it expires.
type confirmationRequest struct {
	id        string
	toolName  string
	sessionID string
	risk      RiskLevel
	requestedAt time.Time
	expiresAt time.Time

	mu     sync.Mutex
	status confirmationStatus
	reason string
}

// GatePolicy configures a PermissionGate.
type GatePolicy struct {
	// AutoGrantBelow auto-grants any call whose risk is strictly below this
	// level, skipping confirmation entirely. Defaults to RiskMedium if zero
	// value is used via NewPermissionGate (RiskLow tools always run).
	AutoGrantBelow RiskLevel

	// ConfirmTimeout bounds how long Check waits for a human decision
	// before treating the request as denied. Zero means 5 minutes.
	ConfirmTimeout time.Duration

	// AlwaysConfirm lists tool ids that require confirmation regardless of
	// risk classification (e.g. a destructive command an operator wants to
	// review every time).
	AlwaysConfirm map[string]bool

	// AlwaysAllow lists tool ids that are always auto-granted regardless of
	// risk classification.
	AlwaysAllow map[string]bool

	// Policy and Resolver gate which tools are reachable at all, checked
	// before risk-based confirmation: a tool the policy denies is refused
	// outright and never reaches the confirmation step.
	Policy   policy.Policy
	Resolver *policy.Resolver
}

// PermissionGate is C6's access-control chokepoint: every tool call passes
// through Check before it executes. Low-risk calls are auto-granted; calls
// at or above the configured threshold produce a pending confirmation that
// an operator (CLI prompt, UI, API) resolves via Grant or Deny.
type PermissionGate struct {
	policy GatePolicy

	mu      sync.Mutex
	pending map[string]*confirmationRequest
	seq     int64

	onConfirmationRequired func(*confirmationRequest)
}

// NewPermissionGate creates a gate. A nil-ish zero-value policy behaves as
// "confirm medium risk and above, five minute timeout".
func NewPermissionGate(gatePolicy GatePolicy) *PermissionGate {
	if gatePolicy.ConfirmTimeout <= 0 {
		gatePolicy.ConfirmTimeout = 5 * time.Minute
	}
	if gatePolicy.Resolver == nil {
		gatePolicy.Resolver = policy.NewResolver()
	}
	return &PermissionGate{
		policy:  gatePolicy,
		pending: make(map[string]*confirmationRequest),
	}
}

// OnConfirmationRequired registers a callback invoked (outside the gate's
// lock) whenever a call needs a human decision, so a CLI or UI layer can
// surface the prompt without polling ListPending.
func (g *PermissionGate) OnConfirmationRequired(fn func(toolName, sessionID, requestID string)) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.onConfirmationRequired = func(req *confirmationRequest) {
		if fn != nil {
			fn(req.toolName, req.sessionID, req.id)
		}
	}
}

// Check decides whether call may proceed. A tool the configured Policy
// doesn't allow is refused outright. Otherwise it blocks until the
// decision is final: granted immediately, denied immediately, or — for
// calls requiring confirmation — until Grant/Deny resolves the pending
// request, ctx is cancelled, or the confirmation times out (denied).
func (g *PermissionGate) Check(ctx context.Context, call models.ToolCall, risk RiskLevel, sessionID, provider string) (Decision, error) {
	if pd := g.policy.Resolver.Decide(g.policy.Policy, call.Name, provider); !pd.Allowed {
		return Decision{Outcome: OutcomeDenied, Reason: pd.Reason}, nil
	}

	if g.policy.AlwaysAllow[call.Name] {
		return Decision{Outcome: OutcomeGranted}, nil
	}
	if !g.policy.AlwaysConfirm[call.Name] && risk < g.autoGrantBelow() {
		return Decision{Outcome: OutcomeGranted}, nil
	}

	req := g.register(call.Name, sessionID, risk)
	if cb := g.onConfirmationRequired; cb != nil {
		cb(req)
	}
	return g.await(ctx, req)
}

func (g *PermissionGate) autoGrantBelow() RiskLevel {
	if g.policy.AutoGrantBelow == 0 {
		return RiskMedium
	}
	return g.policy.AutoGrantBelow
}

func (g *PermissionGate) register(toolName, sessionID string, risk RiskLevel) *confirmationRequest {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.seq++
	now := time.Now()
	req := &confirmationRequest{
		id:          fmt.Sprintf("confirm_%d", g.seq),
		toolName:    toolName,
		sessionID:   sessionID,
		risk:        risk,
		requestedAt: now,
		expiresAt:   now.Add(g.policy.ConfirmTimeout),
		status:      statusPending,
	}
	g.pending[req.id] = req
	return req
}

func (g *PermissionGate) await(ctx context.Context, req *confirmationRequest) (Decision, error) {
	ticker := time.NewTicker(100 * time.Millisecond)
	defer ticker.Stop()

	for {
		req.mu.Lock()
		status, reason := req.status, req.reason
		expired := time.Now().After(req.expiresAt)
		req.mu.Unlock()

		switch status {
		case statusGranted:
			g.forget(req.id)
			return Decision{Outcome: OutcomeGranted, RequestID: req.id}, nil
		case statusDenied:
			g.forget(req.id)
			return Decision{Outcome: OutcomeDenied, Reason: reason, RequestID: req.id}, nil
		}
		if expired {
			g.forget(req.id)
			return Decision{Outcome: OutcomeDenied, Reason: "confirmation timed out", RequestID: req.id}, nil
		}

		select {
		case <-ctx.Done():
			g.forget(req.id)
			return Decision{Outcome: OutcomeDenied, Reason: "cancelled", RequestID: req.id}, ctx.Err()
		case <-ticker.C:
		}
	}
}

func (g *PermissionGate) forget(id string) {
	g.mu.Lock()
	defer g.mu.Unlock()
	delete(g.pending, id)
}

// Grant approves a pending confirmation request.
func (g *PermissionGate) Grant(requestID string) error {
	req, err := g.find(requestID)
	if err != nil {
		return err
	}
	req.mu.Lock()
	defer req.mu.Unlock()
	if req.status != statusPending {
		return fmt.Errorf("tools: request %s already decided", requestID)
	}
	req.status = statusGranted
	return nil
}

// Deny rejects a pending confirmation request with a reason fed back to
// the model as the tool's error output.
func (g *PermissionGate) Deny(requestID, reason string) error {
	req, err := g.find(requestID)
	if err != nil {
		return err
	}
	req.mu.Lock()
	defer req.mu.Unlock()
	if req.status != statusPending {
		return fmt.Errorf("tools: request %s already decided", requestID)
	}
	req.status = statusDenied
	req.reason = reason
	return nil
}

func (g *PermissionGate) find(requestID string) (*confirmationRequest, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	req, ok := g.pending[requestID]
	if !ok {
		return nil, fmt.Errorf("tools: unknown confirmation request %s", requestID)
	}
	return req, nil
}

// ListPending returns ids and tool names of calls awaiting a decision, for
// a UI to render.
func (g *PermissionGate) ListPending() []string {
	g.mu.Lock()
	defer g.mu.Unlock()
	out := make([]string, 0, len(g.pending))
	for id, req := range g.pending {
		out = append(out, fmt.Sprintf("%s: %s (%s risk, session %s)", id, req.toolName, req.risk, req.sessionID))
	}
	return out
}
