// Package guardrail defines the guardrail client port: a declarative claim
// resource reconciled by the cluster, applying security and compliance
// controls to a provisioned account. The worker treats the claim as opaque
// except for the simplified status signal derived from its conditions.
package guardrail

import (
	metav1 "k8s.io/apimachinery/pkg/apis/meta/v1"
)

// Condition types reported by the claim's reconciler.
const (
	// ConditionSynced reports whether the composition has been applied.
	ConditionSynced = "Synced"
	// ConditionReady reports whether the composed resources are available.
	ConditionReady = "Ready"
)

// Condition reasons the status derivation understands.
const (
	ReasonReconcileError = "ReconcileError"
	ReasonCreating       = "Creating"
)

// Defaults applied to a ClaimSpec when fields are unset.
const (
	DefaultBudgetAmount    = 100.0
	DefaultBudgetThreshold = 80
	DefaultPrimaryRegion   = "us-east-1"
)

// DefaultAllowedRegions returns the regions permitted when none are specified.
func DefaultAllowedRegions() []string {
	return []string{"us-east-1", "eu-west-1"}
}

// ClaimSpec declares the guardrail bundle for one account.
type ClaimSpec struct {
	AccountID   string `yaml:"accountId"`
	AccountName string `yaml:"accountName"`
	OwnerEmail  string `yaml:"ownerEmail"`

	// Policy toggles. Pointers distinguish "unset" from "explicitly off";
	// both CloudTrail and Config default to enabled.
	EnableCloudTrail *bool `yaml:"enableCloudTrail,omitempty"`
	EnableConfig     *bool `yaml:"enableConfig,omitempty"`

	// BudgetAmount is in USD. Defaults to 100 with an 80% alert threshold.
	BudgetAmount    float64 `yaml:"budgetAmount,omitempty"`
	BudgetThreshold int     `yaml:"budgetThreshold,omitempty"`

	PrimaryRegion  string   `yaml:"primaryRegion,omitempty"`
	AllowedRegions []string `yaml:"allowedRegions,omitempty"`
}

// applyDefaults fills unset spec fields with the documented defaults.
func (s *ClaimSpec) applyDefaults() {
	if s.EnableCloudTrail == nil {
		on := true
		s.EnableCloudTrail = &on
	}
	if s.EnableConfig == nil {
		on := true
		s.EnableConfig = &on
	}
	if s.BudgetAmount == 0 {
		s.BudgetAmount = DefaultBudgetAmount
	}
	if s.BudgetThreshold == 0 {
		s.BudgetThreshold = DefaultBudgetThreshold
	}
	if s.PrimaryRegion == "" {
		s.PrimaryRegion = DefaultPrimaryRegion
	}
	if len(s.AllowedRegions) == 0 {
		s.AllowedRegions = DefaultAllowedRegions()
	}
}

// ClaimStatus is the reconciler-owned status of a claim.
type ClaimStatus struct {
	Conditions []metav1.Condition `yaml:"conditions,omitempty"`
	// ErrorMessage is a provider-reported failure that short-circuits
	// condition interpretation.
	ErrorMessage string `yaml:"errorMessage,omitempty"`
}

// Claim is a declarative guardrail resource managed by the cluster.
type Claim struct {
	Name   string      `yaml:"name"`
	Spec   ClaimSpec   `yaml:"spec"`
	Status ClaimStatus `yaml:"status,omitempty"`
}

// ClaimName derives the claim name for an account id.
func ClaimName(accountID string) string {
	return "guardrails-" + accountID
}
