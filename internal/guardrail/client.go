package guardrail

import (
	"context"
	"errors"
)

// Sentinel errors for common error conditions
var (
	ErrClaimNotFound = errors.New("guardrail claim not found")
	ErrMissingSpec   = errors.New("claim spec requires account id, name and owner email")
)

// Client manages guardrail claims on the cluster.
type Client interface {
	// CreateClaim submits a claim for reconciliation. Unset policy fields are
	// filled with the documented defaults before submission.
	CreateClaim(ctx context.Context, spec ClaimSpec) (*Claim, error)

	// GetClaim fetches the claim with its current reconciliation status.
	// Returns ErrClaimNotFound when the claim does not exist.
	GetClaim(ctx context.Context, name string) (*Claim, error)

	// DeleteClaim removes a claim. Deleting an absent claim is a success.
	DeleteClaim(ctx context.Context, name string) error
}
