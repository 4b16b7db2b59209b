package publisher

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/google/uuid"
	gobreaker "github.com/sony/gobreaker/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	id "shareledger/pkg/domain"
	audit "shareledger/pkg/platform/audit"
	"shareledger/pkg/platform/audit/store/memory"
	"shareledger/pkg/requestcontext"
)

type failingStore struct {
	*memory.InMemoryStore
	calls atomic.Int32
}

func (f *failingStore) Append(context.Context, audit.Entry) error {
	f.calls.Add(1)
	return errors.New("db down")
}

type blockingStore struct {
	*memory.InMemoryStore
	release chan struct{}
}

func (b *blockingStore) Append(ctx context.Context, e audit.Entry) error {
	<-b.release
	return b.InMemoryStore.Append(ctx, e)
}

type captureSink struct {
	mu      sync.Mutex
	entries []audit.Entry
}

func (c *captureSink) Forward(_ context.Context, e audit.Entry) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.entries = append(c.entries, e)
}

func loginEntry(userID id.UserID) audit.Entry {
	return audit.Entry{ActorID: audit.Actor(userID), Action: audit.ActionLogin, Success: true}
}

func TestSyncPublisher_ClassifiesAndPersists(t *testing.T) {
	store := memory.NewInMemoryStore()
	pub := NewSync(store)

	userID := id.UserID(uuid.New())
	ctx := requestcontext.WithClientMetadata(context.Background(), "10.1.1.1", "agent/1.0")
	pub.Record(ctx, audit.Entry{ActorID: audit.Actor(userID), Action: audit.ActionUserDeleted, Success: true})

	entries, err := store.ListAll(context.Background())
	require.NoError(t, err)
	require.Len(t, entries, 1)
	e := entries[0]
	assert.NotEmpty(t, e.ID)
	assert.False(t, e.Timestamp.IsZero())
	assert.Equal(t, audit.SeverityHigh, e.Severity)
	assert.Equal(t, audit.CategoryUserMgmt, e.Category)
	assert.True(t, e.IsRisky())
	assert.Equal(t, "10.1.1.1", e.IPAddress)
	assert.Equal(t, "agent/1.0", e.UserAgent)
}

func TestSyncPublisher_RejectsMissingActor(t *testing.T) {
	store := memory.NewInMemoryStore()
	pub := NewSync(store)

	pub.Record(context.Background(), audit.Entry{Action: audit.ActionShareCreated, Success: true})
	pub.Record(context.Background(), audit.Entry{Action: audit.ActionLoginFailed, TargetEmail: "ghost@example.com"})

	entries, err := store.ListAll(context.Background())
	require.NoError(t, err)
	require.Len(t, entries, 1, "only the pre-auth entry with a target email is kept")
	assert.Nil(t, entries[0].ActorID)
	assert.Equal(t, "ghost@example.com", entries[0].TargetEmail)
}

func TestSyncPublisher_StoreFailureIsSwallowed(t *testing.T) {
	store := &failingStore{InMemoryStore: memory.NewInMemoryStore()}
	pub := NewSync(store)

	assert.NotPanics(t, func() {
		pub.Record(context.Background(), loginEntry(id.UserID(uuid.New())))
	})
	assert.Equal(t, int32(1), store.calls.Load())
}

func TestSyncPublisher_MarksRequestAudited(t *testing.T) {
	pub := NewSync(memory.NewInMemoryStore())
	ctx, marker := requestcontext.WithAuditMarker(context.Background())

	pub.Record(ctx, loginEntry(id.UserID(uuid.New())))

	assert.True(t, marker.Recorded())
}

func TestAsyncPublisher_DrainsOnClose(t *testing.T) {
	store := memory.NewInMemoryStore()
	pub := NewAsync(store, WithBuffer(100), WithWorkers(3))

	userID := id.UserID(uuid.New())
	for range 25 {
		pub.Record(context.Background(), loginEntry(userID))
	}

	require.NoError(t, pub.Close(context.Background()))

	entries, err := store.ListAll(context.Background())
	require.NoError(t, err)
	assert.Len(t, entries, 25, "all queued entries are written before Close returns")
}

func TestAsyncPublisher_SurvivesCallerCancellation(t *testing.T) {
	store := memory.NewInMemoryStore()
	pub := NewAsync(store)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	pub.Record(ctx, loginEntry(id.UserID(uuid.New())))

	require.NoError(t, pub.Close(context.Background()))
	entries, err := store.ListAll(context.Background())
	require.NoError(t, err)
	assert.Len(t, entries, 1)
}

func TestAsyncPublisher_DropsWhenFull(t *testing.T) {
	store := &blockingStore{InMemoryStore: memory.NewInMemoryStore(), release: make(chan struct{})}
	pub := NewAsync(store, WithBuffer(1), WithWorkers(1))

	userID := id.UserID(uuid.New())
	for range 10 {
		pub.Record(context.Background(), loginEntry(userID))
	}
	close(store.release)
	require.NoError(t, pub.Close(context.Background()))

	entries, err := store.ListAll(context.Background())
	require.NoError(t, err)
	assert.Less(t, len(entries), 10)
	assert.GreaterOrEqual(t, len(entries), 1)
}

func TestAsyncPublisher_RecordAfterCloseIsDropped(t *testing.T) {
	store := memory.NewInMemoryStore()
	pub := NewAsync(store)
	require.NoError(t, pub.Close(context.Background()))

	pub.Record(context.Background(), loginEntry(id.UserID(uuid.New())))

	entries, err := store.ListAll(context.Background())
	require.NoError(t, err)
	assert.Empty(t, entries)
	assert.NoError(t, pub.Close(context.Background()), "close is idempotent")
}

func TestAsyncPublisher_BreakerStopsHammeringStore(t *testing.T) {
	store := &failingStore{InMemoryStore: memory.NewInMemoryStore()}
	pub := NewAsync(store, WithWorkers(1), WithBreaker(gobreaker.Settings{
		Name:    "test",
		Timeout: time.Hour,
		ReadyToTrip: func(c gobreaker.Counts) bool {
			return c.ConsecutiveFailures >= 2
		},
	}))

	for range 10 {
		pub.Record(context.Background(), loginEntry(id.UserID(uuid.New())))
	}
	require.NoError(t, pub.Close(context.Background()))

	assert.Equal(t, int32(2), store.calls.Load(), "breaker opens after two failures")
}

func TestBreakerSettings(t *testing.T) {
	st := BreakerSettings("audit-store", 5, 30*time.Second)
	assert.Equal(t, "audit-store", st.Name)
	assert.Equal(t, uint32(1), st.MaxRequests)
	assert.Equal(t, 30*time.Second, st.Timeout)
	assert.False(t, st.ReadyToTrip(gobreaker.Counts{ConsecutiveFailures: 4}))
	assert.True(t, st.ReadyToTrip(gobreaker.Counts{ConsecutiveFailures: 5}))
}

func TestAsyncPublisher_DefaultBreakerToleratesTransientFailures(t *testing.T) {
	store := &failingStore{InMemoryStore: memory.NewInMemoryStore()}
	pub := NewAsync(store, WithWorkers(1))

	for range 4 {
		pub.Record(context.Background(), loginEntry(id.UserID(uuid.New())))
	}
	require.NoError(t, pub.Close(context.Background()))

	assert.Equal(t, int32(4), store.calls.Load(), "four failures stay below the trip threshold")
}

func TestAsyncPublisher_ForwardsToSinks(t *testing.T) {
	sink := &captureSink{}
	pub := NewAsync(memory.NewInMemoryStore(), WithSink(sink))

	pub.Record(context.Background(), loginEntry(id.UserID(uuid.New())))
	require.NoError(t, pub.Close(context.Background()))

	sink.mu.Lock()
	defer sink.mu.Unlock()
	assert.Len(t, sink.entries, 1)
}
