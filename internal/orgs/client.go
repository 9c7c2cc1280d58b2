// Package orgs defines the organization client port: asynchronous account
// creation against AWS Organizations, plus a simulator for tests and local
// development.
package orgs

import (
	"context"
	"errors"
	"regexp"
)

// Sentinel errors for common error conditions
var (
	ErrInvalidEmail       = errors.New("invalid owner email")
	ErrInvalidAccountName = errors.New("invalid account name")
	ErrUnknownTrackingID  = errors.New("unknown tracking id")
)

// CreateState is the state of an asynchronous account-creation operation.
type CreateState string

const (
	CreateStateInProgress CreateState = "IN_PROGRESS"
	CreateStateSucceeded  CreateState = "SUCCEEDED"
	CreateStateFailed     CreateState = "FAILED"
)

// CreateStatus is the result of polling an account-creation operation.
type CreateStatus struct {
	State CreateState
	// AccountID is set once the operation has succeeded.
	AccountID string
	// FailureReason is set when the operation has failed.
	FailureReason string
}

// Client is the capability the worker needs from AWS Organizations.
type Client interface {
	// CreateAccount initiates an asynchronous account-creation operation and
	// returns a tracking id immediately. It fails only on clearly invalid
	// input; operational failures surface later through the status poll.
	CreateAccount(ctx context.Context, accountName, ownerEmail string) (string, error)

	// DescribeCreateAccountStatus polls the operation identified by
	// trackingID. The call is idempotent; callers poll until a terminal state.
	DescribeCreateAccountStatus(ctx context.Context, trackingID string) (*CreateStatus, error)
}

var emailPattern = regexp.MustCompile(`^[^@\s]+@[^@\s]+\.[^@\s]+$`)

// ValidateCreateInput rejects clearly malformed input before any remote call.
// The intake API applies the same checks so bad requests never reach a client.
func ValidateCreateInput(accountName, ownerEmail string) error {
	if accountName == "" {
		return ErrInvalidAccountName
	}
	if !emailPattern.MatchString(ownerEmail) {
		return ErrInvalidEmail
	}
	return nil
}
