// Package forwarder streams security-relevant audit entries to Kafka so
// external SIEM consumers see them without querying the audit store.
package forwarder

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/twmb/franz-go/pkg/kadm"
	"github.com/twmb/franz-go/pkg/kerr"
	"github.com/twmb/franz-go/pkg/kgo"

	audit "shareledger/pkg/platform/audit"
)

// Producer is the subset of *kgo.Client used for publishing.
type Producer interface {
	ProduceSync(ctx context.Context, rs ...*kgo.Record) kgo.ProduceResults
}

// Forwarder buffers qualifying entries and publishes them in batches.
// Forward never blocks: when the buffer is full the oldest entry is evicted.
type Forwarder struct {
	producer      Producer
	topic         string
	buffer        *RingBuffer
	batchSize     int
	flushInterval time.Duration
	filter        func(*audit.Entry) bool
	logger        *slog.Logger
	metrics       *audit.Metrics
}

// Option configures a Forwarder.
type Option func(*Forwarder)

func WithLogger(logger *slog.Logger) Option {
	return func(f *Forwarder) { f.logger = logger }
}

func WithMetrics(m *audit.Metrics) Option {
	return func(f *Forwarder) { f.metrics = m }
}

func WithBufferSize(n int) Option {
	return func(f *Forwarder) { f.buffer = NewRingBuffer(n) }
}

func WithBatchSize(n int) Option {
	return func(f *Forwarder) {
		if n > 0 {
			f.batchSize = n
		}
	}
}

func WithFlushInterval(d time.Duration) Option {
	return func(f *Forwarder) {
		if d > 0 {
			f.flushInterval = d
		}
	}
}

// WithFilter replaces the default security-alert predicate.
func WithFilter(fn func(*audit.Entry) bool) Option {
	return func(f *Forwarder) { f.filter = fn }
}

// New creates a forwarder publishing to topic.
func New(producer Producer, topic string, opts ...Option) *Forwarder {
	f := &Forwarder{
		producer:      producer,
		topic:         topic,
		buffer:        NewRingBuffer(10000),
		batchSize:     100,
		flushInterval: time.Second,
		filter:        audit.IsSecurityAlert,
		logger:        slog.Default(),
	}
	for _, opt := range opts {
		opt(f)
	}
	return f
}

// Forward buffers e if it qualifies.
func (f *Forwarder) Forward(_ context.Context, e audit.Entry) {
	if !f.filter(&e) {
		return
	}
	if f.buffer.Enqueue(e) {
		f.metrics.IncDropped("forward_evicted")
	}
}

// Run flushes on an interval until ctx is cancelled, then flushes once more.
func (f *Forwarder) Run(ctx context.Context) error {
	ticker := time.NewTicker(f.flushInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			flushCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 5*time.Second)
			defer cancel()
			_ = f.Flush(flushCtx)
			return nil
		case <-ticker.C:
			if err := f.Flush(ctx); err != nil {
				f.logger.WarnContext(ctx, "audit forward failed", "component", "audit", "error", err)
			}
		}
	}
}

// Flush publishes everything currently buffered. Entries in a failed batch
// are not re-queued.
func (f *Forwarder) Flush(ctx context.Context) error {
	var errs []error
	for {
		batch := f.buffer.DequeueBatch(f.batchSize)
		if len(batch) == 0 {
			return errors.Join(errs...)
		}
		records := make([]*kgo.Record, 0, len(batch))
		for i := range batch {
			value, err := json.Marshal(batch[i])
			if err != nil {
				errs = append(errs, fmt.Errorf("marshal audit entry %s: %w", batch[i].ID, err))
				continue
			}
			records = append(records, &kgo.Record{
				Topic: f.topic,
				Key:   []byte(partitionKey(&batch[i])),
				Value: value,
				Headers: []kgo.RecordHeader{
					{Key: "severity", Value: []byte(batch[i].Severity)},
					{Key: "category", Value: []byte(batch[i].Category)},
				},
			})
		}
		if err := f.producer.ProduceSync(ctx, records...).FirstErr(); err != nil {
			errs = append(errs, fmt.Errorf("produce audit batch: %w", err))
			continue
		}
		for range records {
			f.metrics.IncForwarded()
		}
	}
}

// Pending returns the number of buffered entries.
func (f *Forwarder) Pending() int {
	return f.buffer.Len()
}

func partitionKey(e *audit.Entry) string {
	if e.HasActor() {
		return e.ActorID.String()
	}
	if e.TargetEmail != "" {
		return e.TargetEmail
	}
	return e.IPAddress
}

// EnsureTopic creates topic if it does not exist.
func EnsureTopic(ctx context.Context, client *kgo.Client, topic string, partitions int32, replication int16) error {
	adm := kadm.NewClient(client)
	resp, err := adm.CreateTopic(ctx, partitions, replication, nil, topic)
	if err != nil {
		return fmt.Errorf("create topic %s: %w", topic, err)
	}
	if resp.Err != nil && !errors.Is(resp.Err, kerr.TopicAlreadyExists) {
		return fmt.Errorf("create topic %s: %w", topic, resp.Err)
	}
	return nil
}

// NewClient builds a franz-go client for the given seed brokers.
func NewClient(brokers []string, topic string) (*kgo.Client, error) {
	client, err := kgo.NewClient(
		kgo.SeedBrokers(brokers...),
		kgo.DefaultProduceTopic(topic),
		kgo.RequiredAcks(kgo.AllISRAcks()),
		kgo.ProducerBatchCompression(kgo.SnappyCompression()),
	)
	if err != nil {
		return nil, fmt.Errorf("create kafka client: %w", err)
	}
	return client, nil
}
