package guardrail

import (
	"context"
	"fmt"
	"sync"

	"github.com/rs/zerolog/log"
	metav1 "k8s.io/apimachinery/pkg/apis/meta/v1"
)

// FakeClusterClient implements Client without a cluster. Claims progress from
// Ready=False/Creating to Synced=True after a configurable number of polls,
// mirroring the asynchronous reconciliation of a real provider. Tests can also
// pin a claim's conditions explicitly.
type FakeClusterClient struct {
	mu sync.Mutex

	claims map[string]*Claim // claim name -> Claim
	polls  map[string]int    // claim name -> GetClaim count

	// pollsUntilSynced is the number of GetClaim calls before a claim
	// reports Synced=True. Zero means claims are synced immediately.
	pollsUntilSynced int

	// reconcileError, when set, makes every claim end with a Synced=False
	// ReconcileError condition instead of syncing.
	reconcileError string
}

// FakeOption configures a FakeClusterClient.
type FakeOption func(*FakeClusterClient)

// WithPollsUntilSynced sets how many polls a claim stays in Creating.
func WithPollsUntilSynced(polls int) FakeOption {
	return func(c *FakeClusterClient) {
		c.pollsUntilSynced = polls
	}
}

// WithReconcileError makes reconciliation fail with the given message.
func WithReconcileError(message string) FakeOption {
	return func(c *FakeClusterClient) {
		c.reconcileError = message
	}
}

// NewFakeClusterClient creates a fake guardrail cluster client.
func NewFakeClusterClient(opts ...FakeOption) *FakeClusterClient {
	c := &FakeClusterClient{
		claims: make(map[string]*Claim),
		polls:  make(map[string]int),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// CreateClaim registers the claim with defaults applied and an initial
// Ready=False/Creating condition.
func (c *FakeClusterClient) CreateClaim(ctx context.Context, spec ClaimSpec) (*Claim, error) {
	if spec.AccountID == "" || spec.AccountName == "" || spec.OwnerEmail == "" {
		return nil, ErrMissingSpec
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	spec.applyDefaults()

	claim := &Claim{
		Name: ClaimName(spec.AccountID),
		Spec: spec,
		Status: ClaimStatus{
			Conditions: []metav1.Condition{{
				Type:               ConditionReady,
				Status:             metav1.ConditionFalse,
				Reason:             ReasonCreating,
				Message:            "claim accepted, waiting for composition",
				LastTransitionTime: metav1.Now(),
			}},
		},
	}

	c.claims[claim.Name] = claim
	c.polls[claim.Name] = 0

	if mf, err := RenderManifest(claim); err == nil {
		log.Debug().Str("claim", claim.Name).Str("manifest", string(mf)).Msg("Applied guardrail claim")
	}

	return cloneClaim(claim), nil
}

// GetClaim returns the claim, advancing the simulated reconciliation one step.
func (c *FakeClusterClient) GetClaim(ctx context.Context, name string) (*Claim, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	claim, exists := c.claims[name]
	if !exists {
		return nil, fmt.Errorf("%w: %s", ErrClaimNotFound, name)
	}

	c.polls[name]++
	if c.polls[name] > c.pollsUntilSynced {
		c.reconcile(claim)
	}

	return cloneClaim(claim), nil
}

// DeleteClaim removes the claim. Absent claims count as deleted.
func (c *FakeClusterClient) DeleteClaim(ctx context.Context, name string) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	delete(c.claims, name)
	delete(c.polls, name)

	return nil
}

// SetConditions pins a claim's conditions, overriding the scripted progression.
func (c *FakeClusterClient) SetConditions(name string, conditions ...metav1.Condition) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	claim, exists := c.claims[name]
	if !exists {
		return fmt.Errorf("%w: %s", ErrClaimNotFound, name)
	}

	claim.Status.Conditions = conditions
	// Freeze the scripted progression for this claim.
	c.polls[name] = -1 << 30

	return nil
}

// SetErrorMessage pins an explicit status error on a claim.
func (c *FakeClusterClient) SetErrorMessage(name, message string) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	claim, exists := c.claims[name]
	if !exists {
		return fmt.Errorf("%w: %s", ErrClaimNotFound, name)
	}

	claim.Status.ErrorMessage = message

	return nil
}

// reconcile moves the claim to its terminal condition set.
func (c *FakeClusterClient) reconcile(claim *Claim) {
	if c.reconcileError != "" {
		claim.Status.Conditions = []metav1.Condition{{
			Type:               ConditionSynced,
			Status:             metav1.ConditionFalse,
			Reason:             ReasonReconcileError,
			Message:            c.reconcileError,
			LastTransitionTime: metav1.Now(),
		}}
		return
	}

	claim.Status.Conditions = []metav1.Condition{
		{
			Type:               ConditionSynced,
			Status:             metav1.ConditionTrue,
			Reason:             "ReconcileSuccess",
			LastTransitionTime: metav1.Now(),
		},
		{
			Type:               ConditionReady,
			Status:             metav1.ConditionTrue,
			Reason:             "Available",
			LastTransitionTime: metav1.Now(),
		},
	}
}

func cloneClaim(claim *Claim) *Claim {
	clone := *claim
	clone.Spec.AllowedRegions = append([]string(nil), claim.Spec.AllowedRegions...)
	clone.Status.Conditions = append([]metav1.Condition(nil), claim.Status.Conditions...)
	if claim.Spec.EnableCloudTrail != nil {
		v := *claim.Spec.EnableCloudTrail
		clone.Spec.EnableCloudTrail = &v
	}
	if claim.Spec.EnableConfig != nil {
		v := *claim.Spec.EnableConfig
		clone.Spec.EnableConfig = &v
	}
	return &clone
}
