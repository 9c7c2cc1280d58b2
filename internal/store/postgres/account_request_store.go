package postgres

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/rs/zerolog/log"

	"github.com/fluxkit/accountvendor/internal/models"
	"github.com/fluxkit/accountvendor/internal/store"
)

// AccountRequestStore implements store.AccountRequestStore using PostgreSQL.
// Requests survive process restarts, which the in-memory store does not offer.
type AccountRequestStore struct {
	pool *pgxpool.Pool
}

// NewAccountRequestStore creates a new PostgreSQL-backed account request store.
// It shares the connection pool with other stores.
func NewAccountRequestStore(pool *pgxpool.Pool) *AccountRequestStore {
	return &AccountRequestStore{
		pool: pool,
	}
}

const requestColumns = `
	id, requester_id, account_name, owner_email, purpose,
	primary_region, budget_amount, budget_threshold, allowed_regions,
	status, aws_request_id, aws_account_id, guardrail_claim_name,
	error_message, created_at, updated_at, completed_at
`

// Create inserts a new account request, assigning an ID and defaulting the
// status to REQUESTED.
func (s *AccountRequestStore) Create(ctx context.Context, req *models.AccountRequest) (*models.AccountRequest, error) {
	id := req.ID
	if id == "" {
		id = uuid.Must(uuid.NewV7()).String()
	}
	status := req.Status
	if status == "" {
		status = models.StatusRequested
	}
	if !status.Valid() {
		return nil, fmt.Errorf("%w: %s", store.ErrInvalidStatus, status)
	}

	now := time.Now()

	query := `
		INSERT INTO account_requests (
			id, requester_id, account_name, owner_email, purpose,
			primary_region, budget_amount, budget_threshold, allowed_regions,
			status, created_at, updated_at
		) VALUES (
			$1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $11
		)
		RETURNING ` + requestColumns

	row := s.pool.QueryRow(ctx, query,
		id,
		req.RequesterID,
		req.AccountName,
		req.OwnerEmail,
		req.Purpose,
		req.PrimaryRegion,
		req.BudgetAmount,
		req.BudgetThreshold,
		regionsParam(req.AllowedRegions),
		status,
		now,
	)

	created, err := scanRequest(row)
	if err != nil {
		return nil, fmt.Errorf("failed to create account request: %w", mapPostgresError(err))
	}

	log.Debug().Str("request_id", created.ID).Str("account_name", created.AccountName).Msg("Created account request")

	return created, nil
}

// Get retrieves an account request by ID.
func (s *AccountRequestStore) Get(ctx context.Context, id string) (*models.AccountRequest, error) {
	query := `SELECT ` + requestColumns + ` FROM account_requests WHERE id = $1`

	req, err := scanRequest(s.pool.QueryRow(ctx, query, id))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, store.ErrRequestNotFound
		}
		return nil, fmt.Errorf("failed to get account request: %w", mapPostgresError(err))
	}

	return req, nil
}

// List returns all account requests ordered by creation time.
func (s *AccountRequestStore) List(ctx context.Context) ([]*models.AccountRequest, error) {
	query := `SELECT ` + requestColumns + ` FROM account_requests ORDER BY created_at`

	rows, err := s.pool.Query(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("failed to list account requests: %w", mapPostgresError(err))
	}
	defer rows.Close()

	return collectRequests(rows)
}

// ListByStatus returns all requests whose status matches any of the given statuses.
func (s *AccountRequestStore) ListByStatus(ctx context.Context, statuses ...models.RequestStatus) ([]*models.AccountRequest, error) {
	if len(statuses) == 0 {
		return nil, nil
	}

	names := make([]string, 0, len(statuses))
	for _, status := range statuses {
		names = append(names, string(status))
	}

	query := `SELECT ` + requestColumns + ` FROM account_requests WHERE status = ANY($1) ORDER BY created_at`

	rows, err := s.pool.Query(ctx, query, names)
	if err != nil {
		return nil, fmt.Errorf("failed to list account requests by status: %w", mapPostgresError(err))
	}
	defer rows.Close()

	return collectRequests(rows)
}

// Update merges the non-nil fields of update into the request and bumps updated_at.
func (s *AccountRequestStore) Update(ctx context.Context, id string, update store.AccountRequestUpdate) (*models.AccountRequest, error) {
	// COALESCE keeps the stored value when the corresponding parameter is NULL.
	query := `
		UPDATE account_requests SET
			aws_request_id = COALESCE($2, aws_request_id),
			aws_account_id = COALESCE($3, aws_account_id),
			guardrail_claim_name = COALESCE($4, guardrail_claim_name),
			error_message = COALESCE($5, error_message),
			updated_at = now()
		WHERE id = $1
		RETURNING ` + requestColumns

	row := s.pool.QueryRow(ctx, query, id,
		update.AWSRequestID,
		update.AWSAccountID,
		update.GuardrailClaimName,
		update.ErrorMessage,
	)

	req, err := scanRequest(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, store.ErrRequestNotFound
		}
		return nil, fmt.Errorf("failed to update account request: %w", mapPostgresError(err))
	}

	return req, nil
}

// UpdateStatus transitions the request to status, enforcing the transition
// table inside the UPDATE so concurrent writers cannot race past it.
func (s *AccountRequestStore) UpdateStatus(ctx context.Context, id string, status models.RequestStatus, errorMessage string) (*models.AccountRequest, error) {
	if !status.Valid() {
		return nil, fmt.Errorf("%w: %s", store.ErrInvalidStatus, status)
	}

	// Statuses the target status may be entered from.
	var from []string
	for _, s := range models.ActiveStatuses() {
		if s.CanTransitionTo(status) {
			from = append(from, string(s))
		}
	}
	if len(from) == 0 {
		return nil, fmt.Errorf("%w: no status may enter %s", store.ErrInvalidTransition, status)
	}

	query := `
		UPDATE account_requests SET
			status = $2,
			error_message = CASE WHEN $3 = '' THEN error_message ELSE $3 END,
			completed_at = CASE WHEN $4 THEN now() ELSE completed_at END,
			updated_at = now()
		WHERE id = $1 AND status = ANY($5)
		RETURNING ` + requestColumns

	row := s.pool.QueryRow(ctx, query, id, string(status), errorMessage, status.IsTerminal(), from)

	req, err := scanRequest(row)
	if err == nil {
		return req, nil
	}
	if !errors.Is(err, pgx.ErrNoRows) {
		return nil, fmt.Errorf("failed to update account request status: %w", mapPostgresError(err))
	}

	// No row matched: either the request is missing or the transition is invalid.
	current, getErr := s.Get(ctx, id)
	if getErr != nil {
		return nil, getErr
	}
	return nil, fmt.Errorf("%w: %s -> %s", store.ErrInvalidTransition, current.Status, status)
}

// Delete removes an account request by ID.
func (s *AccountRequestStore) Delete(ctx context.Context, id string) error {
	tag, err := s.pool.Exec(ctx, `DELETE FROM account_requests WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("failed to delete account request: %w", mapPostgresError(err))
	}
	if tag.RowsAffected() == 0 {
		return store.ErrRequestNotFound
	}
	return nil
}

// regionsParam converts a nil slice to an empty array so the column's NOT NULL holds.
func regionsParam(regions []string) []string {
	if regions == nil {
		return []string{}
	}
	return regions
}

func scanRequest(row pgx.Row) (*models.AccountRequest, error) {
	var req models.AccountRequest
	var status string
	var completedAt *time.Time

	err := row.Scan(
		&req.ID,
		&req.RequesterID,
		&req.AccountName,
		&req.OwnerEmail,
		&req.Purpose,
		&req.PrimaryRegion,
		&req.BudgetAmount,
		&req.BudgetThreshold,
		&req.AllowedRegions,
		&status,
		&req.AWSRequestID,
		&req.AWSAccountID,
		&req.GuardrailClaimName,
		&req.ErrorMessage,
		&req.CreatedAt,
		&req.UpdatedAt,
		&completedAt,
	)
	if err != nil {
		return nil, err
	}

	req.Status = models.RequestStatus(status)
	req.CompletedAt = completedAt

	return &req, nil
}

func collectRequests(rows pgx.Rows) ([]*models.AccountRequest, error) {
	var result []*models.AccountRequest
	for rows.Next() {
		req, err := scanRequest(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan account request: %w", err)
		}
		result = append(result, req)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to read account requests: %w", mapPostgresError(err))
	}
	return result, nil
}
