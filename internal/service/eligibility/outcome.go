package eligibility

import "github.com/church-space/church-space-sub003/internal/domain"

// Outcome classifies the result of an eligibility computation. Everything
// except OutcomeEligible is a structured skip the caller reports to the
// user; none of them are system faults.
type Outcome string

const (
	OutcomeEligible            Outcome = "eligible"
	OutcomeDeferred            Outcome = "deferred"
	OutcomeMissingPrecondition Outcome = "missing_precondition"
	OutcomeInvalidOwnership    Outcome = "invalid_ownership"
	OutcomeQuotaExceeded       Outcome = "quota_exceeded"
)

// Result is the pipeline's output. Recipients is keyed by the internal id of
// the mirrored email row and is only populated when Outcome is
// OutcomeEligible.
type Result struct {
	Outcome    Outcome                     `json:"outcome"`
	Reason     string                      `json:"reason,omitempty"`
	Recipients map[string]domain.Recipient `json:"recipients,omitempty"`
}

// Eligible reports whether the campaign may be handed to the dispatcher.
func (r *Result) Eligible() bool { return r.Outcome == OutcomeEligible }

func skip(outcome Outcome, reason string) *Result {
	return &Result{Outcome: outcome, Reason: reason}
}
