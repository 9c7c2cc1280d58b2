package memory

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/fluxkit/accountvendor/internal/models"
	"github.com/fluxkit/accountvendor/internal/store"
)

// AccountRequestStore implements store.AccountRequestStore using in-memory
// storage. Data is lost on restart; intended for prototypes and tests.
type AccountRequestStore struct {
	mu sync.RWMutex

	requests map[string]*models.AccountRequest // request ID -> AccountRequest

	// nowFn is swappable for tests.
	nowFn func() time.Time
}

// NewAccountRequestStore creates a new in-memory account request store.
func NewAccountRequestStore() *AccountRequestStore {
	return &AccountRequestStore{
		requests: make(map[string]*models.AccountRequest),
		nowFn:    time.Now,
	}
}

// Create stores a new account request, assigning an ID and defaulting the
// status to REQUESTED.
func (s *AccountRequestStore) Create(ctx context.Context, req *models.AccountRequest) (*models.AccountRequest, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	clone := cloneRequest(req)
	if clone.ID == "" {
		clone.ID = uuid.Must(uuid.NewV7()).String()
	}
	if clone.Status == "" {
		clone.Status = models.StatusRequested
	}
	if !clone.Status.Valid() {
		return nil, fmt.Errorf("%w: %s", store.ErrInvalidStatus, clone.Status)
	}

	now := s.nowFn()
	clone.CreatedAt = now
	clone.UpdatedAt = now
	clone.CompletedAt = nil

	s.requests[clone.ID] = clone

	return cloneRequest(clone), nil
}

// Get retrieves an account request by ID.
func (s *AccountRequestStore) Get(ctx context.Context, id string) (*models.AccountRequest, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	req, exists := s.requests[id]
	if !exists {
		return nil, store.ErrRequestNotFound
	}

	return cloneRequest(req), nil
}

// List returns all account requests.
func (s *AccountRequestStore) List(ctx context.Context) ([]*models.AccountRequest, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	result := make([]*models.AccountRequest, 0, len(s.requests))
	for _, req := range s.requests {
		result = append(result, cloneRequest(req))
	}

	return result, nil
}

// ListByStatus returns all requests whose status matches any of the given statuses.
func (s *AccountRequestStore) ListByStatus(ctx context.Context, statuses ...models.RequestStatus) ([]*models.AccountRequest, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	match := make(map[models.RequestStatus]bool, len(statuses))
	for _, status := range statuses {
		match[status] = true
	}

	var result []*models.AccountRequest
	for _, req := range s.requests {
		if match[req.Status] {
			result = append(result, cloneRequest(req))
		}
	}

	return result, nil
}

// Update merges the non-nil fields of update into the request and bumps UpdatedAt.
func (s *AccountRequestStore) Update(ctx context.Context, id string, update store.AccountRequestUpdate) (*models.AccountRequest, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	req, exists := s.requests[id]
	if !exists {
		return nil, store.ErrRequestNotFound
	}

	if update.AWSRequestID != nil {
		req.AWSRequestID = *update.AWSRequestID
	}
	if update.AWSAccountID != nil {
		req.AWSAccountID = *update.AWSAccountID
	}
	if update.GuardrailClaimName != nil {
		req.GuardrailClaimName = *update.GuardrailClaimName
	}
	if update.ErrorMessage != nil {
		req.ErrorMessage = *update.ErrorMessage
	}
	req.UpdatedAt = s.nowFn()

	return cloneRequest(req), nil
}

// UpdateStatus transitions the request to status, enforcing the transition
// table and stamping CompletedAt on terminal entry.
func (s *AccountRequestStore) UpdateStatus(ctx context.Context, id string, status models.RequestStatus, errorMessage string) (*models.AccountRequest, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	req, exists := s.requests[id]
	if !exists {
		return nil, store.ErrRequestNotFound
	}

	if !status.Valid() {
		return nil, fmt.Errorf("%w: %s", store.ErrInvalidStatus, status)
	}
	if !req.Status.CanTransitionTo(status) {
		return nil, fmt.Errorf("%w: %s -> %s", store.ErrInvalidTransition, req.Status, status)
	}

	now := s.nowFn()
	req.Status = status
	req.UpdatedAt = now
	if errorMessage != "" {
		req.ErrorMessage = errorMessage
	}
	if status.IsTerminal() {
		completed := now
		req.CompletedAt = &completed
	}

	return cloneRequest(req), nil
}

// Delete removes an account request by ID.
func (s *AccountRequestStore) Delete(ctx context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.requests[id]; !exists {
		return store.ErrRequestNotFound
	}

	delete(s.requests, id)

	return nil
}

// cloneRequest copies a request so callers never share mutable state with the store.
func cloneRequest(req *models.AccountRequest) *models.AccountRequest {
	clone := *req
	if req.AllowedRegions != nil {
		clone.AllowedRegions = append([]string(nil), req.AllowedRegions...)
	}
	if req.CompletedAt != nil {
		completed := *req.CompletedAt
		clone.CompletedAt = &completed
	}
	return &clone
}
