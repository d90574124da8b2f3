// Package job holds audit job policies that do not depend on storage or transport.
package job

import (
	"errors"
	"time"
)

// ErrInvalidCallCap indicates the configured per-call cap is not positive.
var ErrInvalidCallCap = errors.New("per-call timeout cap must be positive")

// BudgetSource identifies which bound decided a call timeout.
type BudgetSource string

const (
	// BudgetSourceCap indicates the fixed per-call cap was smaller than the remaining budget.
	BudgetSourceCap BudgetSource = "cap"
	// BudgetSourceRemaining indicates the remaining audit budget was the binding bound.
	BudgetSourceRemaining BudgetSource = "remaining"
	// BudgetSourceExhausted indicates the audit deadline has already passed.
	BudgetSourceExhausted BudgetSource = "exhausted"
)

// CallBudget apportions an audit's overall deadline across collaborator calls.
// Every call gets min(remaining budget, cap) so no single collaborator can starve the rest.
type CallBudget struct {
	callCap time.Duration
}

// NewCallBudget constructs a CallBudget with the provided per-call cap.
func NewCallBudget(callCap time.Duration) (*CallBudget, error) {
	if callCap <= 0 {
		return nil, ErrInvalidCallCap
	}
	return &CallBudget{callCap: callCap}, nil
}

// Cap returns the configured per-call cap.
func (b *CallBudget) Cap() time.Duration {
	if b == nil {
		return 0
	}
	return b.callCap
}

// BudgetDecision captures the outcome of resolving one call's timeout.
type BudgetDecision struct {
	Timeout   time.Duration
	Source    BudgetSource
	Remaining time.Duration
}

// Exhausted reports whether no time is left for the call.
func (d BudgetDecision) Exhausted() bool {
	return d.Source == BudgetSourceExhausted
}

// Resolve returns the timeout for a call started at now against the audit deadline.
// A zero deadline means the audit is unbounded and only the cap applies.
func (b *CallBudget) Resolve(deadline, now time.Time) BudgetDecision {
	if b == nil {
		return BudgetDecision{Source: BudgetSourceExhausted}
	}
	if deadline.IsZero() {
		return BudgetDecision{Timeout: b.callCap, Source: BudgetSourceCap}
	}

	remaining := deadline.Sub(now)
	decision := BudgetDecision{Remaining: remaining}

	switch {
	case remaining <= 0:
		decision.Source = BudgetSourceExhausted
	case remaining < b.callCap:
		decision.Timeout = remaining
		decision.Source = BudgetSourceRemaining
	default:
		decision.Timeout = b.callCap
		decision.Source = BudgetSourceCap
	}
	return decision
}
