// Package provisioner contains the reconciliation worker that drives account
// requests through their provisioning phases. Each tick advances every
// non-terminal request by at most one phase, polling the organization and
// guardrail clients for the completion of asynchronous external operations.
package provisioner

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/cenkalti/backoff/v5"
	"github.com/rs/zerolog/log"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"

	"github.com/fluxkit/accountvendor/internal/guardrail"
	"github.com/fluxkit/accountvendor/internal/models"
	"github.com/fluxkit/accountvendor/internal/orgs"
	"github.com/fluxkit/accountvendor/internal/store"
	"github.com/fluxkit/accountvendor/internal/telemetry"
)

// DefaultInterval is the default delay between reconciliation ticks.
const DefaultInterval = 2 * time.Second

// ValidateFunc is the pre-flight hook run on REQUESTED requests before any
// external call. Returning an error fails the request with the error text.
type ValidateFunc func(ctx context.Context, req *models.AccountRequest) error

// Worker drives account requests through the provisioning state machine.
// Each instance owns its lifecycle; multiple independent workers can exist,
// though they should not share a store.
type Worker struct {
	store      store.AccountRequestStore
	orgs       orgs.Client
	guardrails guardrail.Client

	interval time.Duration
	validate ValidateFunc
	metrics  *telemetry.Metrics

	// Poll pacing for long-running external operations. Zero initial
	// interval disables pacing: every tick polls.
	backoffInitial time.Duration
	backoffMax     time.Duration
	pollState      map[string]*pollState // request ID -> pacing state

	nowFn func() time.Time

	mu      sync.Mutex
	running bool
	stopCh  chan struct{}
	doneCh  chan struct{}
}

type pollState struct {
	next    time.Time
	backoff *backoff.ExponentialBackOff
}

// Option configures a Worker.
type Option func(*Worker)

// WithInterval sets the delay between ticks.
func WithInterval(interval time.Duration) Option {
	return func(w *Worker) {
		w.interval = interval
	}
}

// WithValidateFunc installs the pre-flight validation hook.
func WithValidateFunc(validate ValidateFunc) Option {
	return func(w *Worker) {
		w.validate = validate
	}
}

// WithPollBackoff enables exponential poll pacing for requests stuck waiting
// on an external operation, bounded by max.
func WithPollBackoff(initial, max time.Duration) Option {
	return func(w *Worker) {
		w.backoffInitial = initial
		w.backoffMax = max
	}
}

// WithMetrics enables metric instrumentation.
func WithMetrics(metrics *telemetry.Metrics) Option {
	return func(w *Worker) {
		w.metrics = metrics
	}
}

// WithClock overrides the time source, used by tests.
func WithClock(nowFn func() time.Time) Option {
	return func(w *Worker) {
		w.nowFn = nowFn
	}
}

// New creates a provisioning worker. Start must be called to begin ticking;
// ProcessOnce can be used directly for deterministic single ticks.
func New(requestStore store.AccountRequestStore, orgClient orgs.Client, guardrailClient guardrail.Client, opts ...Option) *Worker {
	w := &Worker{
		store:      requestStore,
		orgs:       orgClient,
		guardrails: guardrailClient,
		interval:   DefaultInterval,
		pollState:  make(map[string]*pollState),
		nowFn:      time.Now,
	}
	for _, opt := range opts {
		opt(w)
	}
	return w
}

// Start begins the periodic reconciliation loop. Calling Start on a running
// worker is a no-op.
func (w *Worker) Start() {
	w.mu.Lock()
	defer w.mu.Unlock()

	if w.running {
		log.Info().Msg("Provisioning worker already running")
		return
	}

	w.running = true
	w.stopCh = make(chan struct{})
	w.doneCh = make(chan struct{})

	go w.run(w.stopCh, w.doneCh)

	log.Info().Dur("interval", w.interval).Msg("Provisioning worker started")
}

// Stop halts the loop and waits for any in-flight tick to finish. No tick
// starts after Stop returns. Calling Stop on a stopped worker is a no-op.
func (w *Worker) Stop() {
	w.mu.Lock()
	if !w.running {
		w.mu.Unlock()
		return
	}
	w.running = false
	close(w.stopCh)
	done := w.doneCh
	w.mu.Unlock()

	<-done

	log.Info().Msg("Provisioning worker stopped")
}

// Running reports whether the periodic loop is active.
func (w *Worker) Running() bool {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.running
}

// run executes ticks until stopped. Ticks run on this single goroutine, so
// two ticks can never overlap.
func (w *Worker) run(stopCh <-chan struct{}, doneCh chan<- struct{}) {
	defer close(doneCh)

	ticker := time.NewTicker(w.interval)
	defer ticker.Stop()

	for {
		select {
		case <-stopCh:
			return
		case <-ticker.C:
			if err := w.ProcessOnce(context.Background()); err != nil {
				log.Error().Err(err).Msg("Reconciliation tick failed")
			}
		}
	}
}

// ProcessOnce runs a single reconciliation tick: it enumerates every
// non-terminal request and advances each by at most one phase. Failures in
// one request never affect the others; only a failure to enumerate pending
// work is returned.
func (w *Worker) ProcessOnce(ctx context.Context) error {
	started := w.nowFn()

	pending, err := w.store.ListByStatus(ctx, models.ActiveStatuses()...)
	if err != nil {
		return fmt.Errorf("failed to list pending requests: %w", err)
	}

	for _, req := range pending {
		w.processRequest(ctx, req)
	}

	w.prunePollState(pending)

	if w.metrics != nil {
		w.metrics.TicksTotal.Add(ctx, 1)
		w.metrics.TickDuration.Record(ctx, float64(time.Since(started).Milliseconds()))
	}

	return nil
}

// processRequest advances one request by at most one phase. Any error or
// panic is converted into a FAILED transition on this request alone.
func (w *Worker) processRequest(ctx context.Context, req *models.AccountRequest) {
	defer func() {
		if r := recover(); r != nil {
			log.Error().Str("request_id", req.ID).Interface("panic", r).Msg("Panic while processing request")
			w.failRequest(ctx, req, fmt.Sprintf("worker error: panic: %v", r))
		}
	}()

	var err error
	switch req.Status {
	case models.StatusRequested:
		err = w.advanceRequested(ctx, req)
	case models.StatusValidating:
		err = w.advanceValidating(ctx, req)
	case models.StatusCreating:
		err = w.advanceCreating(ctx, req)
	case models.StatusGuardrailing:
		err = w.advanceGuardrailing(ctx, req)
	default:
		log.Warn().Str("request_id", req.ID).Str("status", string(req.Status)).Msg("Request in unexpected status, skipping")
	}

	if err != nil {
		// Errors reaching here are infrastructure failures, as opposed to
		// business failures recorded inside the phase handlers. The prefix
		// lets operators tell the two apart.
		w.failRequest(ctx, req, "worker error: "+err.Error())
	}
}

// advanceRequested runs the pre-flight hook and moves the request to VALIDATING.
func (w *Worker) advanceRequested(ctx context.Context, req *models.AccountRequest) error {
	if w.validate != nil {
		if err := w.validate(ctx, req); err != nil {
			w.failRequest(ctx, req, "validation failed: "+err.Error())
			return nil
		}
	}

	return w.transition(ctx, req, models.StatusValidating, store.AccountRequestUpdate{})
}

// advanceValidating starts the asynchronous account creation and moves the
// request to CREATING with the returned tracking id.
func (w *Worker) advanceValidating(ctx context.Context, req *models.AccountRequest) error {
	trackingID, err := w.orgs.CreateAccount(ctx, req.AccountName, req.OwnerEmail)
	if w.metrics != nil {
		w.metrics.OrgCallsTotal.Add(ctx, 1, metric.WithAttributes(attribute.String("operation", "create_account")))
	}
	if err != nil {
		return fmt.Errorf("account creation could not be started: %w", err)
	}

	log.Info().Str("request_id", req.ID).Str("tracking_id", trackingID).Msg("Account creation started")

	return w.transition(ctx, req, models.StatusCreating, store.AccountRequestUpdate{
		AWSRequestID: &trackingID,
	})
}

// advanceCreating polls the account-creation operation. The request stays in
// CREATING with no store write while the operation is in progress.
func (w *Worker) advanceCreating(ctx context.Context, req *models.AccountRequest) error {
	if req.AWSRequestID == "" {
		// Should be unreachable: CREATING is only entered with a tracking id.
		// Surface loudly instead of failing the request, so the defect is
		// visible without destroying evidence.
		log.Error().Str("request_id", req.ID).Msg("Request in CREATING without a tracking id, skipping")
		if w.metrics != nil {
			w.metrics.StuckRequestsTotal.Add(ctx, 1)
		}
		return nil
	}

	if w.skipPoll(req.ID) {
		return nil
	}

	status, err := w.orgs.DescribeCreateAccountStatus(ctx, req.AWSRequestID)
	if w.metrics != nil {
		w.metrics.OrgCallsTotal.Add(ctx, 1, metric.WithAttributes(attribute.String("operation", "describe_create_account_status")))
	}
	if err != nil {
		return fmt.Errorf("account creation status poll failed: %w", err)
	}

	switch status.State {
	case orgs.CreateStateSucceeded:
		if status.AccountID == "" {
			w.failRequest(ctx, req, "account creation succeeded without an account id")
			return nil
		}

		log.Info().Str("request_id", req.ID).Str("aws_account_id", status.AccountID).Msg("Account created")

		return w.transition(ctx, req, models.StatusGuardrailing, store.AccountRequestUpdate{
			AWSAccountID: &status.AccountID,
		})

	case orgs.CreateStateFailed:
		reason := status.FailureReason
		if reason == "" {
			reason = "no failure reason reported"
		}
		w.failRequest(ctx, req, "account creation failed: "+reason)
		return nil

	default:
		// Still in progress: revisit on a later tick.
		w.schedulePoll(req.ID)
		return nil
	}
}

// advanceGuardrailing creates the guardrail claim on first visit, then polls
// its reconciliation status until it is ready or has failed.
func (w *Worker) advanceGuardrailing(ctx context.Context, req *models.AccountRequest) error {
	if req.AWSAccountID == "" {
		// GUARDRAILING requires a provisioned account; see advanceCreating.
		log.Error().Str("request_id", req.ID).Msg("Request in GUARDRAILING without an account id, skipping")
		if w.metrics != nil {
			w.metrics.StuckRequestsTotal.Add(ctx, 1)
		}
		return nil
	}

	if req.GuardrailClaimName == "" {
		return w.createGuardrailClaim(ctx, req)
	}

	if w.skipPoll(req.ID) {
		return nil
	}

	claim, err := w.guardrails.GetClaim(ctx, req.GuardrailClaimName)
	if w.metrics != nil {
		w.metrics.GuardrailCallsTotal.Add(ctx, 1, metric.WithAttributes(attribute.String("operation", "get_claim")))
	}
	if err != nil {
		if errors.Is(err, guardrail.ErrClaimNotFound) {
			w.failRequest(ctx, req, fmt.Sprintf("guardrail claim %s no longer exists", req.GuardrailClaimName))
			return nil
		}
		return fmt.Errorf("guardrail claim poll failed: %w", err)
	}

	status := guardrail.StatusOf(claim)
	switch {
	case status.Ready:
		log.Info().Str("request_id", req.ID).Str("claim", claim.Name).Msg("Guardrails applied, account ready")
		return w.transition(ctx, req, models.StatusReady, store.AccountRequestUpdate{})

	case status.Phase == guardrail.PhaseError:
		w.failRequest(ctx, req, status.ErrorMessage)
		return nil

	default:
		w.schedulePoll(req.ID)
		return nil
	}
}

// createGuardrailClaim issues the claim once on GUARDRAILING entry. Polling
// begins on the next tick, mirroring the CREATING phase's async pattern.
func (w *Worker) createGuardrailClaim(ctx context.Context, req *models.AccountRequest) error {
	claim, err := w.guardrails.CreateClaim(ctx, guardrail.ClaimSpec{
		AccountID:       req.AWSAccountID,
		AccountName:     req.AccountName,
		OwnerEmail:      req.OwnerEmail,
		BudgetAmount:    req.BudgetAmount,
		BudgetThreshold: req.BudgetThreshold,
		PrimaryRegion:   req.PrimaryRegion,
		AllowedRegions:  req.AllowedRegions,
	})
	if w.metrics != nil {
		w.metrics.GuardrailCallsTotal.Add(ctx, 1, metric.WithAttributes(attribute.String("operation", "create_claim")))
	}
	if err != nil {
		return fmt.Errorf("guardrail claim creation failed: %w", err)
	}

	log.Info().Str("request_id", req.ID).Str("claim", claim.Name).Msg("Guardrail claim created")

	_, err = w.store.Update(ctx, req.ID, store.AccountRequestUpdate{
		GuardrailClaimName: &claim.Name,
	})
	if err != nil {
		return fmt.Errorf("failed to record guardrail claim name: %w", err)
	}

	return nil
}

// transition applies the field updates and then the status change, recording
// metrics on success.
func (w *Worker) transition(ctx context.Context, req *models.AccountRequest, status models.RequestStatus, update store.AccountRequestUpdate) error {
	if update != (store.AccountRequestUpdate{}) {
		if _, err := w.store.Update(ctx, req.ID, update); err != nil {
			return fmt.Errorf("failed to update request fields: %w", err)
		}
	}

	if _, err := w.store.UpdateStatus(ctx, req.ID, status, ""); err != nil {
		return fmt.Errorf("failed to transition request to %s: %w", status, err)
	}

	w.clearPollState(req.ID)

	if w.metrics != nil {
		w.metrics.TransitionsTotal.Add(ctx, 1, metric.WithAttributes(
			attribute.String("from", string(req.Status)),
			attribute.String("to", string(status)),
		))
	}

	return nil
}

// failRequest moves the request to FAILED with the given message. A store
// failure here is logged and skipped; it must never abort the tick.
func (w *Worker) failRequest(ctx context.Context, req *models.AccountRequest, message string) {
	log.Warn().Str("request_id", req.ID).Str("status", string(req.Status)).Str("error", message).Msg("Request failed")

	if _, err := w.store.UpdateStatus(ctx, req.ID, models.StatusFailed, message); err != nil {
		log.Error().Err(err).Str("request_id", req.ID).Msg("Failed to record request failure")
		return
	}

	w.clearPollState(req.ID)

	if w.metrics != nil {
		w.metrics.RequestsFailedTotal.Add(ctx, 1)
		w.metrics.TransitionsTotal.Add(ctx, 1, metric.WithAttributes(
			attribute.String("from", string(req.Status)),
			attribute.String("to", string(models.StatusFailed)),
		))
	}
}

// skipPoll reports whether the request's next poll is still in the future.
// Always false when poll pacing is disabled.
func (w *Worker) skipPoll(id string) bool {
	if w.backoffInitial == 0 {
		return false
	}

	w.mu.Lock()
	defer w.mu.Unlock()

	state, exists := w.pollState[id]
	return exists && w.nowFn().Before(state.next)
}

// schedulePoll pushes the request's next poll out by the next backoff interval.
func (w *Worker) schedulePoll(id string) {
	if w.backoffInitial == 0 {
		return
	}

	w.mu.Lock()
	defer w.mu.Unlock()

	state, exists := w.pollState[id]
	if !exists {
		b := backoff.NewExponentialBackOff()
		b.InitialInterval = w.backoffInitial
		b.MaxInterval = w.backoffMax
		b.RandomizationFactor = 0
		state = &pollState{backoff: b}
		w.pollState[id] = state
	}

	state.next = w.nowFn().Add(state.backoff.NextBackOff())
}

func (w *Worker) clearPollState(id string) {
	if w.backoffInitial == 0 {
		return
	}

	w.mu.Lock()
	defer w.mu.Unlock()

	delete(w.pollState, id)
}

// prunePollState drops pacing state for requests no longer pending.
func (w *Worker) prunePollState(pending []*models.AccountRequest) {
	if w.backoffInitial == 0 {
		return
	}

	w.mu.Lock()
	defer w.mu.Unlock()

	seen := make(map[string]bool, len(pending))
	for _, req := range pending {
		seen[req.ID] = true
	}
	for id := range w.pollState {
		if !seen[id] {
			delete(w.pollState, id)
		}
	}
}
