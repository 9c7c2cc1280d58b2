package orgs

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestSimulatedClient_CreateAccount(t *testing.T) {
	t.Run("returns tracking id immediately", func(t *testing.T) {
		client := NewSimulatedClient()

		trackingID, err := client.CreateAccount(context.Background(), "sandbox", "owner@example.com")
		require.NoError(t, err)
		require.NotEmpty(t, trackingID)
		require.Contains(t, trackingID, "car-")
	})

	t.Run("rejects malformed email", func(t *testing.T) {
		client := NewSimulatedClient()

		_, err := client.CreateAccount(context.Background(), "sandbox", "not-an-email")
		require.ErrorIs(t, err, ErrInvalidEmail)
	})

	t.Run("rejects empty account name", func(t *testing.T) {
		client := NewSimulatedClient()

		_, err := client.CreateAccount(context.Background(), "", "owner@example.com")
		require.ErrorIs(t, err, ErrInvalidAccountName)
	})
}

func TestSimulatedClient_DescribeCreateAccountStatus(t *testing.T) {
	t.Run("in progress until latency elapses", func(t *testing.T) {
		now := time.Now()
		client := NewSimulatedClient(
			WithLatency(4*time.Second),
			WithClock(func() time.Time { return now }),
		)
		ctx := context.Background()

		trackingID, err := client.CreateAccount(ctx, "sandbox", "owner@example.com")
		require.NoError(t, err)

		// Repeated polls before the latency elapses are stable.
		for range 3 {
			status, err := client.DescribeCreateAccountStatus(ctx, trackingID)
			require.NoError(t, err)
			require.Equal(t, CreateStateInProgress, status.State)
			require.Empty(t, status.AccountID)
		}

		now = now.Add(5 * time.Second)

		status, err := client.DescribeCreateAccountStatus(ctx, trackingID)
		require.NoError(t, err)
		require.Equal(t, CreateStateSucceeded, status.State)
		require.Len(t, status.AccountID, 12)

		// Terminal status is idempotent.
		again, err := client.DescribeCreateAccountStatus(ctx, trackingID)
		require.NoError(t, err)
		require.Equal(t, status.AccountID, again.AccountID)
	})

	t.Run("configured failure surfaces after latency", func(t *testing.T) {
		now := time.Now()
		client := NewSimulatedClient(
			WithLatency(time.Second),
			WithFailureReason("ACCOUNT_LIMIT_EXCEEDED"),
			WithClock(func() time.Time { return now }),
		)
		ctx := context.Background()

		trackingID, err := client.CreateAccount(ctx, "sandbox", "owner@example.com")
		require.NoError(t, err)

		now = now.Add(2 * time.Second)

		status, err := client.DescribeCreateAccountStatus(ctx, trackingID)
		require.NoError(t, err)
		require.Equal(t, CreateStateFailed, status.State)
		require.Equal(t, "ACCOUNT_LIMIT_EXCEEDED", status.FailureReason)
	})

	t.Run("unknown tracking id", func(t *testing.T) {
		client := NewSimulatedClient()

		_, err := client.DescribeCreateAccountStatus(context.Background(), "car-unknown")
		require.ErrorIs(t, err, ErrUnknownTrackingID)
	})
}
