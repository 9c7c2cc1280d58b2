package orgs

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"
)

// SimulatedClient implements Client without touching AWS. Account creation
// reports IN_PROGRESS until the configured latency has elapsed, mirroring the
// multi-second asynchronous behavior of AWS Organizations so callers are
// forced to poll across multiple ticks.
type SimulatedClient struct {
	mu sync.Mutex

	latency    time.Duration
	operations map[string]*simulatedOperation // tracking id -> operation

	// failureReason, when set, makes every started operation end FAILED.
	failureReason string

	// nowFn is swappable for tests.
	nowFn func() time.Time
}

type simulatedOperation struct {
	accountName   string
	startedAt     time.Time
	accountID     string
	failureReason string
}

// SimulatedOption configures a SimulatedClient.
type SimulatedOption func(*SimulatedClient)

// WithLatency sets how long operations stay IN_PROGRESS. Default 4s.
func WithLatency(latency time.Duration) SimulatedOption {
	return func(c *SimulatedClient) {
		c.latency = latency
	}
}

// WithFailureReason makes every operation terminate in FAILED with the given reason.
func WithFailureReason(reason string) SimulatedOption {
	return func(c *SimulatedClient) {
		c.failureReason = reason
	}
}

// WithClock overrides the time source, used by tests to advance time manually.
func WithClock(nowFn func() time.Time) SimulatedOption {
	return func(c *SimulatedClient) {
		c.nowFn = nowFn
	}
}

// NewSimulatedClient creates a simulated organization client.
func NewSimulatedClient(opts ...SimulatedOption) *SimulatedClient {
	c := &SimulatedClient{
		latency:    4 * time.Second,
		operations: make(map[string]*simulatedOperation),
		nowFn:      time.Now,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// CreateAccount registers a simulated operation and returns its tracking id.
func (c *SimulatedClient) CreateAccount(ctx context.Context, accountName, ownerEmail string) (string, error) {
	if err := ValidateCreateInput(accountName, ownerEmail); err != nil {
		return "", err
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	trackingID := "car-" + strings.ReplaceAll(uuid.Must(uuid.NewV7()).String(), "-", "")

	c.operations[trackingID] = &simulatedOperation{
		accountName:   accountName,
		startedAt:     c.nowFn(),
		accountID:     generateAccountID(),
		failureReason: c.failureReason,
	}

	log.Debug().
		Str("account_name", accountName).
		Str("tracking_id", trackingID).
		Dur("latency", c.latency).
		Msg("Simulated account creation started")

	return trackingID, nil
}

// DescribeCreateAccountStatus reports IN_PROGRESS until the latency has
// elapsed, then SUCCEEDED (or FAILED when a failure reason is configured).
// Repeated calls after completion return the same terminal status.
func (c *SimulatedClient) DescribeCreateAccountStatus(ctx context.Context, trackingID string) (*CreateStatus, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	op, exists := c.operations[trackingID]
	if !exists {
		return nil, fmt.Errorf("%w: %s", ErrUnknownTrackingID, trackingID)
	}

	if c.nowFn().Sub(op.startedAt) < c.latency {
		return &CreateStatus{State: CreateStateInProgress}, nil
	}

	if op.failureReason != "" {
		return &CreateStatus{State: CreateStateFailed, FailureReason: op.failureReason}, nil
	}

	return &CreateStatus{State: CreateStateSucceeded, AccountID: op.accountID}, nil
}

// generateAccountID produces a 12-digit id in the shape AWS uses.
func generateAccountID() string {
	id := uuid.Must(uuid.NewV7())
	var digits [12]byte
	for i := range digits {
		digits[i] = '0' + id[i]%10
	}
	return string(digits[:])
}
