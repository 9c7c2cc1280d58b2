package models

import (
	"time"
)

// RequestStatus is the provisioning phase of an AccountRequest.
type RequestStatus string

const (
	StatusRequested    RequestStatus = "REQUESTED"
	StatusValidating   RequestStatus = "VALIDATING"
	StatusCreating     RequestStatus = "CREATING"
	StatusGuardrailing RequestStatus = "GUARDRAILING"
	StatusReady        RequestStatus = "READY"
	StatusFailed       RequestStatus = "FAILED"
)

// allowedTransitions is the strict forward-only transition table. A status not
// present here is terminal.
var allowedTransitions = map[RequestStatus][]RequestStatus{
	StatusRequested:    {StatusValidating, StatusFailed},
	StatusValidating:   {StatusCreating, StatusFailed},
	StatusCreating:     {StatusGuardrailing, StatusFailed},
	StatusGuardrailing: {StatusReady, StatusFailed},
}

// Valid reports whether s is one of the known statuses.
func (s RequestStatus) Valid() bool {
	switch s {
	case StatusRequested, StatusValidating, StatusCreating, StatusGuardrailing, StatusReady, StatusFailed:
		return true
	}
	return false
}

// IsTerminal reports whether no further transitions are possible from s.
func (s RequestStatus) IsTerminal() bool {
	return s == StatusReady || s == StatusFailed
}

// CanTransitionTo reports whether moving from s to next is allowed.
func (s RequestStatus) CanTransitionTo(next RequestStatus) bool {
	for _, allowed := range allowedTransitions[s] {
		if allowed == next {
			return true
		}
	}
	return false
}

// ActiveStatuses returns the non-terminal statuses the worker enumerates each tick.
func ActiveStatuses() []RequestStatus {
	return []RequestStatus{StatusRequested, StatusValidating, StatusCreating, StatusGuardrailing}
}

// AccountRequest is a single tracked request to provision an AWS account.
// User-supplied fields are immutable after creation; provisioning-derived
// fields are populated progressively by the worker.
type AccountRequest struct {
	ID          string `json:"id"`
	RequesterID string `json:"requesterId"`

	// User-supplied at creation.
	AccountName     string   `json:"accountName"`
	OwnerEmail      string   `json:"ownerEmail"`
	Purpose         string   `json:"purpose,omitempty"`
	PrimaryRegion   string   `json:"primaryRegion,omitempty"`
	BudgetAmount    float64  `json:"budgetAmount,omitempty"`
	BudgetThreshold int      `json:"budgetThreshold,omitempty"`
	AllowedRegions  []string `json:"allowedRegions,omitempty"`

	Status RequestStatus `json:"status"`

	// Provisioning-derived.
	AWSRequestID       string `json:"awsRequestId,omitempty"`
	AWSAccountID       string `json:"awsAccountId,omitempty"`
	GuardrailClaimName string `json:"guardrailClaimName,omitempty"`
	ErrorMessage       string `json:"errorMessage,omitempty"`

	CreatedAt   time.Time  `json:"createdAt"`
	UpdatedAt   time.Time  `json:"updatedAt"`
	CompletedAt *time.Time `json:"completedAt,omitempty"`
}
