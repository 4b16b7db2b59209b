// Package publisher delivers audit entries to an audit.Store.
//
// AsyncPublisher is the production recorder: Record enqueues and returns
// immediately, workers persist in the background, and Close drains whatever
// is queued. Delivery is at-most-once. An entry is lost if the queue is full,
// the publisher is closed, or the store write fails; every loss is logged and
// counted in shareledger_audit_entries_dropped_total.
//
// SyncPublisher persists inline and is intended for tests and tools.
package publisher

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"

	gobreaker "github.com/sony/gobreaker/v2"

	audit "shareledger/pkg/platform/audit"
	"shareledger/pkg/requestcontext"
)

const (
	defaultBuffer       = 1024
	defaultWorkers      = 2
	defaultWriteTimeout = 5 * time.Second

	defaultBreakerFailures = 5
	defaultBreakerTimeout  = 30 * time.Second
)

// Sink receives every persisted entry after the store write. Used to fan out
// security entries to an external stream.
type Sink interface {
	Forward(ctx context.Context, entry audit.Entry)
}

// AsyncPublisher is a non-blocking audit.Recorder.
type AsyncPublisher struct {
	store        audit.Store
	logger       *slog.Logger
	metrics      *audit.Metrics
	breaker      *gobreaker.CircuitBreaker[struct{}]
	sinks        []Sink
	now          func() time.Time
	buffer       int
	workers      int
	writeTimeout time.Duration

	queue  chan audit.Entry
	mu     sync.RWMutex
	closed bool
	wg     sync.WaitGroup
}

// Option configures a publisher.
type Option func(*options)

type options struct {
	logger       *slog.Logger
	metrics      *audit.Metrics
	sinks        []Sink
	now          func() time.Time
	buffer       int
	workers      int
	writeTimeout time.Duration
	breaker      *gobreaker.Settings
}

// WithLogger sets the diagnostic logger.
func WithLogger(logger *slog.Logger) Option {
	return func(o *options) { o.logger = logger }
}

// WithMetrics sets the metrics collector.
func WithMetrics(m *audit.Metrics) Option {
	return func(o *options) { o.metrics = m }
}

// WithSink adds a post-persist sink.
func WithSink(s Sink) Option {
	return func(o *options) { o.sinks = append(o.sinks, s) }
}

// WithClock overrides the time source used when entries carry no timestamp.
func WithClock(now func() time.Time) Option {
	return func(o *options) { o.now = now }
}

// WithBuffer sets the queue capacity.
func WithBuffer(n int) Option {
	return func(o *options) { o.buffer = n }
}

// WithWorkers sets the number of persisting goroutines.
func WithWorkers(n int) Option {
	return func(o *options) { o.workers = n }
}

// WithWriteTimeout bounds each store write.
func WithWriteTimeout(d time.Duration) Option {
	return func(o *options) { o.writeTimeout = d }
}

// WithBreaker overrides the circuit breaker settings for store writes.
func WithBreaker(st gobreaker.Settings) Option {
	return func(o *options) { o.breaker = &st }
}

func buildOptions(opts []Option) options {
	o := options{
		now:          time.Now,
		buffer:       defaultBuffer,
		workers:      defaultWorkers,
		writeTimeout: defaultWriteTimeout,
	}
	for _, opt := range opts {
		opt(&o)
	}
	if o.logger == nil {
		o.logger = slog.Default()
	}
	if o.buffer <= 0 {
		o.buffer = defaultBuffer
	}
	if o.workers <= 0 {
		o.workers = defaultWorkers
	}
	return o
}

// BreakerSettings opens after failures consecutive store errors and probes
// again with a single request once timeout has passed.
func BreakerSettings(name string, failures uint32, timeout time.Duration) gobreaker.Settings {
	if failures == 0 {
		failures = defaultBreakerFailures
	}
	return gobreaker.Settings{
		Name:        name,
		MaxRequests: 1,
		Timeout:     timeout,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= failures
		},
	}
}

func newBreaker(o options) *gobreaker.CircuitBreaker[struct{}] {
	st := BreakerSettings("audit-store", defaultBreakerFailures, defaultBreakerTimeout)
	if o.breaker != nil {
		st = *o.breaker
	}
	metrics, logger := o.metrics, o.logger
	prev := st.OnStateChange
	st.OnStateChange = func(name string, from, to gobreaker.State) {
		metrics.SetBreakerOpen(to == gobreaker.StateOpen)
		logger.Warn("audit store circuit breaker state change",
			"component", "audit",
			"breaker", name,
			"from", from.String(),
			"to", to.String(),
		)
		if prev != nil {
			prev(name, from, to)
		}
	}
	return gobreaker.NewCircuitBreaker[struct{}](st)
}

// NewAsync starts an asynchronous publisher. Call Close to drain.
func NewAsync(store audit.Store, opts ...Option) *AsyncPublisher {
	o := buildOptions(opts)
	p := &AsyncPublisher{
		store:        store,
		logger:       o.logger,
		metrics:      o.metrics,
		breaker:      newBreaker(o),
		sinks:        o.sinks,
		now:          o.now,
		buffer:       o.buffer,
		workers:      o.workers,
		writeTimeout: o.writeTimeout,
		queue:        make(chan audit.Entry, o.buffer),
	}
	for range p.workers {
		p.wg.Add(1)
		go p.run()
	}
	return p
}

// Record validates, classifies and enqueues the entry. It never blocks on
// persistence and never fails the caller.
func (p *AsyncPublisher) Record(ctx context.Context, entry audit.Entry) {
	e, ok := prepare(ctx, p.logger, p.metrics, p.now, entry)
	if !ok {
		return
	}

	p.mu.RLock()
	defer p.mu.RUnlock()
	if p.closed {
		p.drop(ctx, &e, audit.DropClosed, nil)
		return
	}
	select {
	case p.queue <- e:
		p.metrics.SetQueueDepth(len(p.queue))
	default:
		p.drop(ctx, &e, audit.DropQueueFull, nil)
	}
}

// Close stops intake and waits for queued entries to be written, or for ctx
// to expire, whichever comes first.
func (p *AsyncPublisher) Close(ctx context.Context) error {
	p.mu.Lock()
	if p.closed {
		p.mu.Unlock()
		return nil
	}
	p.closed = true
	close(p.queue)
	p.mu.Unlock()

	done := make(chan struct{})
	go func() {
		p.wg.Wait()
		close(done)
	}()
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Pending returns the number of queued entries.
func (p *AsyncPublisher) Pending() int {
	return len(p.queue)
}

func (p *AsyncPublisher) run() {
	defer p.wg.Done()
	for e := range p.queue {
		p.metrics.SetQueueDepth(len(p.queue))
		p.persist(e)
	}
}

func (p *AsyncPublisher) persist(e audit.Entry) {
	ctx, cancel := context.WithTimeout(context.Background(), p.writeTimeout)
	defer cancel()

	start := time.Now()
	_, err := p.breaker.Execute(func() (struct{}, error) {
		return struct{}{}, p.store.Append(ctx, e)
	})
	if err != nil {
		reason := audit.DropStoreFailed
		if errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests) {
			reason = audit.DropBreakerOpen
		} else {
			p.metrics.IncPersistFailures()
		}
		p.drop(ctx, &e, reason, err)
		return
	}
	p.metrics.ObservePersist(time.Since(start).Seconds())
	p.metrics.IncRecorded(e.Category)
	for _, s := range p.sinks {
		s.Forward(ctx, e)
	}
}

func (p *AsyncPublisher) drop(ctx context.Context, e *audit.Entry, reason string, err error) {
	p.metrics.IncDropped(reason)
	attrs := append(audit.LogAttrs(e), "component", "audit", "reason", reason)
	if err != nil {
		attrs = append(attrs, "error", err)
	}
	p.logger.ErrorContext(ctx, "audit entry dropped", attrs...)
}

// SyncPublisher persists inline. Store failures are logged, not returned.
type SyncPublisher struct {
	store   audit.Store
	logger  *slog.Logger
	metrics *audit.Metrics
	sinks   []Sink
	now     func() time.Time
}

// NewSync creates a synchronous publisher.
func NewSync(store audit.Store, opts ...Option) *SyncPublisher {
	o := buildOptions(opts)
	return &SyncPublisher{
		store:   store,
		logger:  o.logger,
		metrics: o.metrics,
		sinks:   o.sinks,
		now:     o.now,
	}
}

// Record persists the entry before returning. The write is detached from
// caller cancellation.
func (p *SyncPublisher) Record(ctx context.Context, entry audit.Entry) {
	e, ok := prepare(ctx, p.logger, p.metrics, p.now, entry)
	if !ok {
		return
	}
	writeCtx := context.WithoutCancel(ctx)
	if err := p.store.Append(writeCtx, e); err != nil {
		p.metrics.IncPersistFailures()
		p.metrics.IncDropped(audit.DropStoreFailed)
		p.logger.ErrorContext(ctx, "audit entry dropped",
			append(audit.LogAttrs(&e), "component", "audit", "reason", audit.DropStoreFailed, "error", err)...)
		return
	}
	p.metrics.IncRecorded(e.Category)
	for _, s := range p.sinks {
		s.Forward(writeCtx, e)
	}
}

// Close is a no-op for the synchronous publisher.
func (p *SyncPublisher) Close(context.Context) error {
	return nil
}

func prepare(ctx context.Context, logger *slog.Logger, metrics *audit.Metrics, now func() time.Time, entry audit.Entry) (audit.Entry, bool) {
	entry = audit.Enrich(ctx, entry)
	e, err := audit.Prepare(entry, now())
	if err != nil {
		metrics.IncDropped(audit.DropInvalid)
		logger.WarnContext(ctx, "audit entry rejected",
			"component", "audit",
			"action", string(entry.Action),
			"error", err,
		)
		return audit.Entry{}, false
	}
	requestcontext.MarkAudited(ctx)
	audit.LogEntry(ctx, logger, &e)
	return e, true
}
