package memory

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/fluxkit/accountvendor/internal/models"
	"github.com/fluxkit/accountvendor/internal/store"
)

func newRequest() *models.AccountRequest {
	return &models.AccountRequest{
		RequesterID: "user-123",
		AccountName: "sandbox-team-a",
		OwnerEmail:  "team-a@example.com",
		Purpose:     "sandbox experiments",
	}
}

func TestAccountRequestStore_Create(t *testing.T) {
	t.Run("assigns id and defaults", func(t *testing.T) {
		st := NewAccountRequestStore()
		ctx := context.Background()

		created, err := st.Create(ctx, newRequest())
		require.NoError(t, err)
		require.NotEmpty(t, created.ID)
		require.Equal(t, models.StatusRequested, created.Status)
		require.False(t, created.CreatedAt.IsZero())
		require.Equal(t, created.CreatedAt, created.UpdatedAt)
		require.Nil(t, created.CompletedAt)
	})

	t.Run("rejects unknown status", func(t *testing.T) {
		st := NewAccountRequestStore()
		req := newRequest()
		req.Status = models.RequestStatus("BOGUS")

		_, err := st.Create(context.Background(), req)
		require.ErrorIs(t, err, store.ErrInvalidStatus)
	})

	t.Run("does not share state with caller", func(t *testing.T) {
		st := NewAccountRequestStore()
		ctx := context.Background()

		req := newRequest()
		req.AllowedRegions = []string{"us-east-1"}
		created, err := st.Create(ctx, req)
		require.NoError(t, err)

		created.AllowedRegions[0] = "eu-central-1"
		created.AccountName = "mutated"

		stored, err := st.Get(ctx, created.ID)
		require.NoError(t, err)
		require.Equal(t, "sandbox-team-a", stored.AccountName)
		require.Equal(t, []string{"us-east-1"}, stored.AllowedRegions)
	})
}

func TestAccountRequestStore_Get(t *testing.T) {
	t.Run("missing request returns sentinel", func(t *testing.T) {
		st := NewAccountRequestStore()
		_, err := st.Get(context.Background(), "nonexistent")
		require.ErrorIs(t, err, store.ErrRequestNotFound)
	})
}

func TestAccountRequestStore_ListByStatus(t *testing.T) {
	st := NewAccountRequestStore()
	ctx := context.Background()

	first, err := st.Create(ctx, newRequest())
	require.NoError(t, err)
	second, err := st.Create(ctx, newRequest())
	require.NoError(t, err)

	_, err = st.UpdateStatus(ctx, second.ID, models.StatusValidating, "")
	require.NoError(t, err)

	requested, err := st.ListByStatus(ctx, models.StatusRequested)
	require.NoError(t, err)
	require.Len(t, requested, 1)
	require.Equal(t, first.ID, requested[0].ID)

	active, err := st.ListByStatus(ctx, models.ActiveStatuses()...)
	require.NoError(t, err)
	require.Len(t, active, 2)

	ready, err := st.ListByStatus(ctx, models.StatusReady)
	require.NoError(t, err)
	require.Empty(t, ready)
}

func TestAccountRequestStore_Update(t *testing.T) {
	st := NewAccountRequestStore()
	ctx := context.Background()

	created, err := st.Create(ctx, newRequest())
	require.NoError(t, err)

	st.nowFn = func() time.Time { return created.CreatedAt.Add(time.Second) }

	requestID := "car-abc123"
	updated, err := st.Update(ctx, created.ID, store.AccountRequestUpdate{AWSRequestID: &requestID})
	require.NoError(t, err)
	require.Equal(t, "car-abc123", updated.AWSRequestID)
	require.True(t, updated.UpdatedAt.After(created.UpdatedAt))
	// Untouched fields survive a partial update.
	require.Equal(t, created.AccountName, updated.AccountName)
	require.Empty(t, updated.AWSAccountID)

	_, err = st.Update(ctx, "nonexistent", store.AccountRequestUpdate{AWSRequestID: &requestID})
	require.ErrorIs(t, err, store.ErrRequestNotFound)
}

func TestAccountRequestStore_UpdateStatus(t *testing.T) {
	t.Run("walks the full happy path", func(t *testing.T) {
		st := NewAccountRequestStore()
		ctx := context.Background()

		created, err := st.Create(ctx, newRequest())
		require.NoError(t, err)

		for _, status := range []models.RequestStatus{
			models.StatusValidating,
			models.StatusCreating,
			models.StatusGuardrailing,
			models.StatusReady,
		} {
			updated, err := st.UpdateStatus(ctx, created.ID, status, "")
			require.NoError(t, err)
			require.Equal(t, status, updated.Status)
		}

		final, err := st.Get(ctx, created.ID)
		require.NoError(t, err)
		require.NotNil(t, final.CompletedAt)
	})

	t.Run("rejects invalid transition", func(t *testing.T) {
		st := NewAccountRequestStore()
		ctx := context.Background()

		created, err := st.Create(ctx, newRequest())
		require.NoError(t, err)

		_, err = st.UpdateStatus(ctx, created.ID, models.StatusGuardrailing, "")
		require.ErrorIs(t, err, store.ErrInvalidTransition)

		// Record is untouched after a rejected transition.
		current, err := st.Get(ctx, created.ID)
		require.NoError(t, err)
		require.Equal(t, models.StatusRequested, current.Status)
		require.Nil(t, current.CompletedAt)
	})

	t.Run("terminal statuses are frozen", func(t *testing.T) {
		st := NewAccountRequestStore()
		ctx := context.Background()

		created, err := st.Create(ctx, newRequest())
		require.NoError(t, err)

		_, err = st.UpdateStatus(ctx, created.ID, models.StatusFailed, "quota exceeded")
		require.NoError(t, err)

		_, err = st.UpdateStatus(ctx, created.ID, models.StatusValidating, "")
		require.ErrorIs(t, err, store.ErrInvalidTransition)
	})

	t.Run("completedAt set only on terminal entry", func(t *testing.T) {
		st := NewAccountRequestStore()
		ctx := context.Background()

		created, err := st.Create(ctx, newRequest())
		require.NoError(t, err)

		updated, err := st.UpdateStatus(ctx, created.ID, models.StatusValidating, "")
		require.NoError(t, err)
		require.Nil(t, updated.CompletedAt)

		failed, err := st.UpdateStatus(ctx, created.ID, models.StatusFailed, "validation rejected")
		require.NoError(t, err)
		require.NotNil(t, failed.CompletedAt)
		require.Equal(t, "validation rejected", failed.ErrorMessage)
	})
}

func TestAccountRequestStore_Delete(t *testing.T) {
	st := NewAccountRequestStore()
	ctx := context.Background()

	created, err := st.Create(ctx, newRequest())
	require.NoError(t, err)

	require.NoError(t, st.Delete(ctx, created.ID))
	require.ErrorIs(t, st.Delete(ctx, created.ID), store.ErrRequestNotFound)
}
