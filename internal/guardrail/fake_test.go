package guardrail

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"
	"gopkg.in/yaml.v3"
	metav1 "k8s.io/apimachinery/pkg/apis/meta/v1"
)

func validSpec() ClaimSpec {
	return ClaimSpec{
		AccountID:   "123456789012",
		AccountName: "sandbox-team-a",
		OwnerEmail:  "team-a@example.com",
	}
}

func TestFakeClusterClient_CreateClaim(t *testing.T) {
	t.Run("applies defaults", func(t *testing.T) {
		client := NewFakeClusterClient()

		claim, err := client.CreateClaim(context.Background(), validSpec())
		require.NoError(t, err)
		require.Equal(t, "guardrails-123456789012", claim.Name)
		require.NotNil(t, claim.Spec.EnableCloudTrail)
		require.True(t, *claim.Spec.EnableCloudTrail)
		require.NotNil(t, claim.Spec.EnableConfig)
		require.True(t, *claim.Spec.EnableConfig)
		require.Equal(t, 100.0, claim.Spec.BudgetAmount)
		require.Equal(t, 80, claim.Spec.BudgetThreshold)
		require.Equal(t, "us-east-1", claim.Spec.PrimaryRegion)
		require.Equal(t, []string{"us-east-1", "eu-west-1"}, claim.Spec.AllowedRegions)
	})

	t.Run("keeps overrides", func(t *testing.T) {
		client := NewFakeClusterClient()

		off := false
		spec := validSpec()
		spec.EnableConfig = &off
		spec.BudgetAmount = 500
		spec.PrimaryRegion = "eu-west-1"
		spec.AllowedRegions = []string{"eu-west-1"}

		claim, err := client.CreateClaim(context.Background(), spec)
		require.NoError(t, err)
		require.False(t, *claim.Spec.EnableConfig)
		require.True(t, *claim.Spec.EnableCloudTrail)
		require.Equal(t, 500.0, claim.Spec.BudgetAmount)
		require.Equal(t, "eu-west-1", claim.Spec.PrimaryRegion)
		require.Equal(t, []string{"eu-west-1"}, claim.Spec.AllowedRegions)
	})

	t.Run("rejects incomplete spec", func(t *testing.T) {
		client := NewFakeClusterClient()

		spec := validSpec()
		spec.AccountID = ""
		_, err := client.CreateClaim(context.Background(), spec)
		require.ErrorIs(t, err, ErrMissingSpec)
	})

	t.Run("new claim starts creating", func(t *testing.T) {
		client := NewFakeClusterClient(WithPollsUntilSynced(2))

		claim, err := client.CreateClaim(context.Background(), validSpec())
		require.NoError(t, err)

		status := StatusOf(claim)
		require.False(t, status.Ready)
		require.Equal(t, PhaseGuardrailing, status.Phase)
	})
}

func TestFakeClusterClient_GetClaim(t *testing.T) {
	t.Run("syncs after configured polls", func(t *testing.T) {
		client := NewFakeClusterClient(WithPollsUntilSynced(2))
		ctx := context.Background()

		created, err := client.CreateClaim(ctx, validSpec())
		require.NoError(t, err)

		for range 2 {
			claim, err := client.GetClaim(ctx, created.Name)
			require.NoError(t, err)
			require.Equal(t, PhaseGuardrailing, StatusOf(claim).Phase)
		}

		claim, err := client.GetClaim(ctx, created.Name)
		require.NoError(t, err)
		status := StatusOf(claim)
		require.True(t, status.Ready)
		require.Equal(t, PhaseGuardrailed, status.Phase)
	})

	t.Run("reconcile error surfaces through conditions", func(t *testing.T) {
		client := NewFakeClusterClient(WithReconcileError("budget composition rejected"))
		ctx := context.Background()

		created, err := client.CreateClaim(ctx, validSpec())
		require.NoError(t, err)

		claim, err := client.GetClaim(ctx, created.Name)
		require.NoError(t, err)
		status := StatusOf(claim)
		require.Equal(t, PhaseError, status.Phase)
		require.Contains(t, status.ErrorMessage, "budget composition rejected")
	})

	t.Run("missing claim", func(t *testing.T) {
		client := NewFakeClusterClient()

		_, err := client.GetClaim(context.Background(), "guardrails-nope")
		require.ErrorIs(t, err, ErrClaimNotFound)
	})

	t.Run("pinned conditions override progression", func(t *testing.T) {
		client := NewFakeClusterClient()
		ctx := context.Background()

		created, err := client.CreateClaim(ctx, validSpec())
		require.NoError(t, err)

		require.NoError(t, client.SetConditions(created.Name, metav1.Condition{
			Type:   ConditionSynced,
			Status: metav1.ConditionFalse,
			Reason: ReasonReconcileError,
		}))

		claim, err := client.GetClaim(ctx, created.Name)
		require.NoError(t, err)
		require.Equal(t, PhaseError, StatusOf(claim).Phase)
	})
}

func TestFakeClusterClient_DeleteClaim(t *testing.T) {
	client := NewFakeClusterClient()
	ctx := context.Background()

	created, err := client.CreateClaim(ctx, validSpec())
	require.NoError(t, err)

	require.NoError(t, client.DeleteClaim(ctx, created.Name))
	// Deleting an absent claim is a success.
	require.NoError(t, client.DeleteClaim(ctx, created.Name))

	_, err = client.GetClaim(ctx, created.Name)
	require.ErrorIs(t, err, ErrClaimNotFound)
}

func TestRenderManifest(t *testing.T) {
	client := NewFakeClusterClient()

	claim, err := client.CreateClaim(context.Background(), validSpec())
	require.NoError(t, err)

	out, err := RenderManifest(claim)
	require.NoError(t, err)

	var doc map[string]any
	require.NoError(t, yaml.Unmarshal(out, &doc))
	require.Equal(t, "guardrails.fluxkit.io/v1alpha1", doc["apiVersion"])
	require.Equal(t, "GuardrailClaim", doc["kind"])

	metadata, ok := doc["metadata"].(map[string]any)
	require.True(t, ok)
	require.Equal(t, "guardrails-123456789012", metadata["name"])

	spec, ok := doc["spec"].(map[string]any)
	require.True(t, ok)
	require.Equal(t, "123456789012", spec["accountId"])
}
