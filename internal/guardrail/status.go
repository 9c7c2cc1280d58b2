package guardrail

import (
	"k8s.io/apimachinery/pkg/api/meta"
	metav1 "k8s.io/apimachinery/pkg/apis/meta/v1"
)

// Phase is the simplified reconciliation signal derived from a claim.
type Phase string

const (
	PhaseGuardrailing Phase = "guardrailing"
	PhaseGuardrailed  Phase = "guardrailed"
	PhaseError        Phase = "error"
)

// Status is the worker-facing interpretation of a claim's reconciliation state.
type Status struct {
	Ready        bool
	Phase        Phase
	ErrorMessage string
}

// StatusOf derives the simplified status from a claim. Providers disagree on
// whether Ready or Synced is reported first, so interpretation is layered:
//
//  1. an explicit status error message wins
//  2. Synced=True means the composition has been applied: guardrailed
//  3. Synced=False with reason ReconcileError is a failure
//  4. Ready=True is a secondary confirmation: guardrailed
//  5. Ready=False with reason Creating is still in progress
//  6. anything else is treated as in progress
func StatusOf(claim *Claim) Status {
	if claim.Status.ErrorMessage != "" {
		return Status{
			Phase:        PhaseError,
			ErrorMessage: claim.Status.ErrorMessage,
		}
	}

	synced := meta.FindStatusCondition(claim.Status.Conditions, ConditionSynced)
	if synced != nil {
		if synced.Status == metav1.ConditionTrue {
			return Status{Ready: true, Phase: PhaseGuardrailed}
		}
		if synced.Status == metav1.ConditionFalse && synced.Reason == ReasonReconcileError {
			return Status{
				Phase:        PhaseError,
				ErrorMessage: "guardrail reconciliation failed: " + synced.Message,
			}
		}
	}

	ready := meta.FindStatusCondition(claim.Status.Conditions, ConditionReady)
	if ready != nil {
		if ready.Status == metav1.ConditionTrue {
			return Status{Ready: true, Phase: PhaseGuardrailed}
		}
		if ready.Status == metav1.ConditionFalse && ready.Reason == ReasonCreating {
			return Status{Phase: PhaseGuardrailing}
		}
	}

	return Status{Phase: PhaseGuardrailing}
}
