package store

import (
	"context"
	"errors"

	"github.com/fluxkit/accountvendor/internal/models"
)

// Sentinel errors for common error conditions
var (
	ErrRequestNotFound   = errors.New("account request not found")
	ErrInvalidTransition = errors.New("invalid status transition")
	ErrInvalidStatus     = errors.New("invalid status")
)

// AccountRequestUpdate carries a partial update. Nil fields are left untouched.
// Status changes must go through UpdateStatus so the transition table and
// completion timestamp are enforced in one place.
type AccountRequestUpdate struct {
	AWSRequestID       *string
	AWSAccountID       *string
	GuardrailClaimName *string
	ErrorMessage       *string
}

// AccountRequestStore defines the interface for account request storage.
// Implementations must make per-record updates atomic; readers may observe a
// stale but internally consistent snapshot.
type AccountRequestStore interface {
	// Create assigns an ID when unset, defaults the status to REQUESTED and
	// stamps CreatedAt/UpdatedAt.
	Create(ctx context.Context, req *models.AccountRequest) (*models.AccountRequest, error)
	Get(ctx context.Context, id string) (*models.AccountRequest, error)
	List(ctx context.Context) ([]*models.AccountRequest, error)
	// ListByStatus returns all requests whose status matches any of the given
	// statuses. The worker uses this to enumerate pending work each tick.
	ListByStatus(ctx context.Context, statuses ...models.RequestStatus) ([]*models.AccountRequest, error)
	// Update merges the non-nil fields and bumps UpdatedAt.
	Update(ctx context.Context, id string, update AccountRequestUpdate) (*models.AccountRequest, error)
	// UpdateStatus transitions the request to status, recording errorMessage
	// when non-empty. It rejects transitions not in the allowed table with
	// ErrInvalidTransition and sets CompletedAt on entering a terminal status.
	UpdateStatus(ctx context.Context, id string, status models.RequestStatus, errorMessage string) (*models.AccountRequest, error)
	// Delete removes a request. This is an administrative operation; the
	// worker never deletes.
	Delete(ctx context.Context, id string) error
}
