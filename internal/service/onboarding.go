package service

import (
	"context"
	"fmt"
	"runtime/debug"
	"sync"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/google/uuid"
	"github.com/mitchellh/copystructure"
	"github.com/sirupsen/logrus"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"golang.org/x/sync/semaphore"

	"netonboard/internal/domain"
	"netonboard/internal/driver"
	"netonboard/internal/metrics"
)

const pkgName = "netonboard/internal/service"

// Connector opens a device session and returns its raw facts.
type Connector interface {
	Connect(ctx context.Context, target driver.Target, creds domain.Credentials) (*domain.RawDeviceFacts, error)
}

// InventoryReconciler writes a descriptor into the inventory.
type InventoryReconciler interface {
	Reconcile(ctx context.Context, d domain.CanonicalDeviceDescriptor, opts ReconcileOptions) (*Reconciliation, error)
}

// ControllerConfig tunes job execution.
type ControllerConfig struct {
	// Concurrency bounds the number of jobs running at once.
	Concurrency int
	// MaxRetries is the number of retries after the first attempt.
	MaxRetries     int
	InitialBackoff time.Duration
	MaxBackoff     time.Duration
	// ReconcileTimeout bounds a reconcile, which ignores job cancellation.
	ReconcileTimeout time.Duration
}

// DefaultControllerConfig returns the stock settings.
func DefaultControllerConfig() ControllerConfig {
	return ControllerConfig{
		Concurrency:      4,
		MaxRetries:       2,
		InitialBackoff:   2 * time.Second,
		MaxBackoff:       30 * time.Second,
		ReconcileTimeout: 30 * time.Second,
	}
}

type job struct {
	id          string
	req         domain.OnboardingRequest
	state       domain.JobState
	attempt     int
	transitions []domain.Transition
	result      *domain.OnboardingResult
	cancel      context.CancelFunc
	done        chan struct{}
}

// Controller runs onboarding jobs through the connect, normalize and
// reconcile states, retrying transient failures.
type Controller struct {
	connector   Connector
	reconciler  InventoryReconciler
	credentials CredentialSource
	cfg         ControllerConfig
	eventBus    *EventBus
	logger      *logrus.Entry

	sem *semaphore.Weighted
	wg  sync.WaitGroup

	baseCtx    context.Context
	baseCancel context.CancelFunc

	mu    sync.RWMutex
	jobs  map[string]*job
	order []string
}

// NewController creates a job controller.
func NewController(connector Connector, reconciler InventoryReconciler, credentials CredentialSource, cfg ControllerConfig, eventBus *EventBus, logger *logrus.Entry) *Controller {
	if cfg.Concurrency <= 0 {
		cfg.Concurrency = 1
	}
	if cfg.MaxRetries < 0 {
		cfg.MaxRetries = 0
	}
	if cfg.ReconcileTimeout <= 0 {
		cfg.ReconcileTimeout = 30 * time.Second
	}
	if eventBus == nil {
		eventBus = NewEventBus()
	}
	if logger == nil {
		logger = logrus.NewEntry(logrus.StandardLogger())
	}

	ctx, cancel := context.WithCancel(context.Background())

	return &Controller{
		connector:   connector,
		reconciler:  reconciler,
		credentials: credentials,
		cfg:         cfg,
		eventBus:    eventBus,
		logger:      logger,
		sem:         semaphore.NewWeighted(int64(cfg.Concurrency)),
		baseCtx:     ctx,
		baseCancel:  cancel,
		jobs:        make(map[string]*job),
	}
}

// Submit validates and queues a request, returning its job ID.
func (c *Controller) Submit(req domain.OnboardingRequest) (string, error) {
	if err := req.Validate(); err != nil {
		return "", err
	}
	if req.ID == "" {
		req.ID = uuid.NewString()
	}

	ctx, cancel := context.WithCancel(c.baseCtx)
	j := &job{
		id:     req.ID,
		req:    req,
		cancel: cancel,
		done:   make(chan struct{}),
	}

	c.mu.Lock()
	if _, exists := c.jobs[j.id]; exists {
		c.mu.Unlock()
		cancel()
		return "", domain.Errorf(domain.KindConfig, "job %s already exists", j.id)
	}
	c.jobs[j.id] = j
	c.order = append(c.order, j.id)
	c.transitionLocked(j, domain.StatePending, 0)
	c.mu.Unlock()

	c.eventBus.Publish(Event{Type: EventJobSubmitted, JobID: j.id, Payload: req})

	c.wg.Add(1)
	go c.execute(ctx, j)

	return j.id, nil
}

// Run submits req and waits for its result. Cancelling ctx cancels the job.
func (c *Controller) Run(ctx context.Context, req domain.OnboardingRequest) (*domain.OnboardingResult, error) {
	id, err := c.Submit(req)
	if err != nil {
		return nil, err
	}

	res, err := c.Wait(ctx, id)
	if err == nil {
		return res, nil
	}

	_ = c.Cancel(id)
	return c.Wait(context.Background(), id)
}

// Wait blocks until the job finishes or ctx is done.
func (c *Controller) Wait(ctx context.Context, id string) (*domain.OnboardingResult, error) {
	c.mu.RLock()
	j, ok := c.jobs[id]
	c.mu.RUnlock()
	if !ok {
		return nil, domain.Errorf(domain.KindConfig, "job %s not found", id)
	}

	select {
	case <-j.done:
		st, _ := c.Status(id)
		return st.Result, nil
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

// Status returns a snapshot of the job.
func (c *Controller) Status(id string) (domain.JobStatus, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()

	j, ok := c.jobs[id]
	if !ok {
		return domain.JobStatus{}, false
	}
	return c.snapshotLocked(j), true
}

// List returns a snapshot of every job in submission order.
func (c *Controller) List() []domain.JobStatus {
	c.mu.RLock()
	defer c.mu.RUnlock()

	out := make([]domain.JobStatus, 0, len(c.order))
	for _, id := range c.order {
		out = append(out, c.snapshotLocked(c.jobs[id]))
	}
	return out
}

// Cancel requests cancellation. It is honored between state transitions; a
// reconcile in progress completes first.
func (c *Controller) Cancel(id string) error {
	c.mu.RLock()
	j, ok := c.jobs[id]
	c.mu.RUnlock()
	if !ok {
		return domain.Errorf(domain.KindConfig, "job %s not found", id)
	}

	j.cancel()
	return nil
}

// Shutdown cancels all jobs and waits for them to finish or ctx to expire.
func (c *Controller) Shutdown(ctx context.Context) error {
	c.baseCancel()

	done := make(chan struct{})
	go func() {
		c.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (c *Controller) snapshotLocked(j *job) domain.JobStatus {
	st := domain.JobStatus{
		ID:      j.id,
		Request: j.req,
		State:   j.state,
		Attempt: j.attempt,
	}
	if j.result != nil {
		st.Result = copyResult(j.result)
	}
	return st
}

// copyResult hands out a deep copy so callers cannot mutate stored results.
func copyResult(r *domain.OnboardingResult) *domain.OnboardingResult {
	cp, err := copystructure.Copy(r)
	if err != nil {
		// unreachable for plain data; fall back to a shallow copy
		shallow := *r
		return &shallow
	}
	return cp.(*domain.OnboardingResult)
}

func (c *Controller) transition(j *job, state domain.JobState, attempt int) {
	c.mu.Lock()
	t := c.transitionLocked(j, state, attempt)
	c.mu.Unlock()

	c.eventBus.Publish(Event{Type: EventJobTransition, JobID: j.id, Payload: t})
}

func (c *Controller) transitionLocked(j *job, state domain.JobState, attempt int) domain.Transition {
	t := domain.Transition{State: state, Attempt: attempt, At: time.Now().UTC()}
	j.state = state
	j.attempt = attempt
	j.transitions = append(j.transitions, t)
	return t
}

func (c *Controller) execute(ctx context.Context, j *job) {
	defer c.wg.Done()
	defer close(j.done)
	defer j.cancel()

	logger := c.logger.WithFields(logrus.Fields{"job_id": j.id, "address": j.req.Address})
	started := time.Now().UTC()

	ctx, span := otel.Tracer(pkgName).Start(ctx, "Controller.job",
		trace.WithNewRoot(),
		trace.WithAttributes(attribute.String("job_id", j.id), attribute.String("address", j.req.Address)),
	)
	defer span.End()

	defer func() {
		if r := recover(); r != nil {
			logger.WithFields(logrus.Fields{"panic": r, "stack": string(debug.Stack())}).Error("job panicked")
			c.finish(j, logger, started, nil, domain.Errorf(domain.KindInternal, "job panicked: %v", r))
		}
	}()

	if err := c.sem.Acquire(ctx, 1); err != nil {
		c.finish(j, logger, started, nil, domain.NewError(domain.KindCancelled, "cancelled while queued", err))
		return
	}
	metrics.JobsInFlight.Inc()
	defer func() {
		metrics.JobsInFlight.Dec()
		c.sem.Release(1)
	}()

	creds, err := c.credentials.Lookup(ctx, j.req.CredentialsRef)
	if err != nil {
		c.finish(j, logger, started, nil, err)
		return
	}

	bo := backoff.NewExponentialBackOff()
	bo.InitialInterval = c.cfg.InitialBackoff
	bo.MaxInterval = c.cfg.MaxBackoff
	bo.RandomizationFactor = 0
	bo.Multiplier = 2
	bo.MaxElapsedTime = 0
	bo.Reset()

	for attempt := 1; ; attempt++ {
		out, err := c.attempt(ctx, j, attempt, creds, logger)
		if err == nil {
			c.finish(j, logger, started, out, nil)
			return
		}

		kind := domain.KindOf(err)
		if !kind.Retryable() || attempt > c.cfg.MaxRetries || ctx.Err() != nil {
			span.SetStatus(codes.Error, string(kind))
			c.finish(j, logger, started, out, err)
			return
		}

		wait := bo.NextBackOff()
		logger.WithFields(logrus.Fields{
			"attempt":    attempt,
			"error_kind": kind,
			"backoff":    wait.String(),
		}).WithError(err).Warn("attempt failed, retrying")
		c.eventBus.Publish(Event{Type: EventJobRetrying, JobID: j.id, Payload: map[string]any{
			"attempt": attempt, "error_kind": kind, "error": err.Error(), "backoff": wait.String(),
		}})

		if err := sleepInContext(ctx, wait); err != nil {
			c.finish(j, logger, started, nil, domain.NewError(domain.KindCancelled, "cancelled during backoff", err))
			return
		}
	}
}

// attemptOutcome carries what an attempt produced, successful or not.
type attemptOutcome struct {
	facts          *domain.RawDeviceFacts
	reconciliation *Reconciliation
}

func (c *Controller) attempt(ctx context.Context, j *job, n int, creds domain.Credentials, logger *logrus.Entry) (*attemptOutcome, error) {
	metrics.JobAttemptsTotal.Inc()

	ctx, span := otel.Tracer(pkgName).Start(ctx, "Controller.attempt")
	defer span.End()
	span.SetAttributes(attribute.Int("attempt", n))

	out := &attemptOutcome{}

	if err := cancelled(ctx); err != nil {
		return out, err
	}
	c.transition(j, domain.StateConnecting, n)

	target := driver.Target{
		Address:  j.req.Address,
		Port:     j.req.Port,
		Protocol: j.req.Protocol,
		Platform: j.req.Platform,
		Timeout:  j.req.Timeout,
	}
	facts, err := c.connector.Connect(ctx, target, creds)
	if err != nil {
		return out, err
	}
	out.facts = facts

	if err := cancelled(ctx); err != nil {
		return out, err
	}
	c.transition(j, domain.StateNormalizing, n)

	desc, err := Normalize(*facts, facts.Driver)
	if err != nil {
		return out, err
	}

	if err := cancelled(ctx); err != nil {
		return out, err
	}
	c.transition(j, domain.StateReconciling, n)

	mgmt := j.req.Address
	if !j.req.IsIP() && facts.Extra["management_address"] != "" {
		mgmt = facts.Extra["management_address"]
	}

	// Once started, the reconcile runs to completion regardless of cancellation.
	rctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), c.cfg.ReconcileTimeout)
	defer cancel()

	rec, err := c.reconciler.Reconcile(rctx, desc, ReconcileOptions{
		Site:              j.req.Site,
		Role:              j.req.Role,
		ManagementAddress: mgmt,
	})
	if err != nil {
		return out, err
	}
	out.reconciliation = rec

	logger.WithFields(logrus.Fields{"driver": facts.Driver, "hostname": desc.Hostname}).Debug("attempt succeeded")
	return out, nil
}

func (c *Controller) finish(j *job, logger *logrus.Entry, started time.Time, out *attemptOutcome, err error) {
	res := &domain.OnboardingResult{
		RequestID: j.id,
		Address:   j.req.Address,
		Changes:   []domain.EntityChange{},
		StartedAt: started,
	}

	if out != nil && out.facts != nil {
		res.Driver = out.facts.Driver
		res.Hostname = out.facts.Hostname
	}

	state := domain.StateSucceeded
	if err != nil {
		state = domain.StateFailed
		res.ErrorKind = domain.KindOf(err)
		res.Error = err.Error()
	} else if out != nil && out.reconciliation != nil {
		res.DeviceID = out.reconciliation.DeviceID
		res.Changes = append(res.Changes, out.reconciliation.Changes...)
	}

	c.mu.Lock()
	c.transitionLocked(j, state, j.attempt)
	res.Status = state
	res.Attempts = j.attempt
	res.Transitions = append([]domain.Transition(nil), j.transitions...)
	res.FinishedAt = time.Now().UTC()
	j.result = res
	snapshot := copyResult(res)
	c.mu.Unlock()

	metrics.JobFinished(string(state), string(res.ErrorKind), started)
	c.eventBus.Publish(Event{Type: EventJobFinished, JobID: j.id, Payload: snapshot})

	fields := logrus.Fields{"status": state, "attempts": res.Attempts, "changes": len(res.Changes)}
	if err != nil {
		logger.WithFields(fields).WithField("error_kind", res.ErrorKind).WithError(err).Warn("onboarding failed")
		return
	}
	logger.WithFields(fields).Info("onboarding succeeded")
}

func cancelled(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return domain.NewError(domain.KindCancelled, "job cancelled", err)
	}
	return nil
}

// sleepInContext waits for d or until ctx is done.
func sleepInContext(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()

	select {
	case <-t.C:
		return nil
	case <-ctx.Done():
		return context.Canceled
	}
}

// String is used in log lines.
func (c ControllerConfig) String() string {
	return fmt.Sprintf("concurrency=%d max_retries=%d backoff=%s..%s", c.Concurrency, c.MaxRetries, c.InitialBackoff, c.MaxBackoff)
}
