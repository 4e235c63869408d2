package sweeper

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/shaiso/ModuleTrack/internal/domain"
	"github.com/shaiso/ModuleTrack/internal/execution"
	"github.com/shaiso/ModuleTrack/internal/storetest"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type recordingPublisher struct {
	mu     sync.Mutex
	events []domain.AuditEvent
}

func (p *recordingPublisher) PublishEvent(_ context.Context, evt domain.AuditEvent) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.events = append(p.events, evt)
	return nil
}

type staticLeader struct {
	ok  bool
	err error
}

func (l staticLeader) TryAcquire(context.Context) (bool, error) { return l.ok, l.err }

var now = time.Date(2026, 3, 10, 12, 0, 0, 0, time.UTC)

type fixture struct {
	store     *storetest.Store
	tracker   *execution.MemoryTracker
	publisher *recordingPublisher
	pcb       *domain.PCB
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	ctx := context.Background()
	store := storetest.New()

	batch := &domain.Batch{Name: "B-001", HardwareVersion: "1.0"}
	require.NoError(t, store.Units().CreateBatch(ctx, batch))
	pcb := &domain.PCB{SerialNumber: "SN-0001", BatchID: batch.ID}
	require.NoError(t, store.Units().CreatePCB(ctx, pcb))

	return &fixture{
		store:     store,
		tracker:   execution.NewMemoryTracker(0),
		publisher: &recordingPublisher{},
		pcb:       pcb,
	}
}

// session создаёт сессию оператора, последний раз менявшуюся в updatedAt.
func (f *fixture) session(t *testing.T, operatorID string, updatedAt time.Time, verdict domain.Verdict) *domain.Session {
	t.Helper()
	ctx := context.Background()

	sess := &domain.Session{
		ID:         uuid.New(),
		PCBID:      f.pcb.ID,
		OperatorID: operatorID,
		Verdict:    verdict,
		StartedAt:  updatedAt,
		CreatedAt:  updatedAt,
		UpdatedAt:  updatedAt,
	}
	if verdict != domain.VerdictIncomplete {
		finished := updatedAt
		sess.FinishedAt = &finished
	}
	require.NoError(t, f.store.Sessions().Create(ctx, sess))
	require.NoError(t, f.tracker.Set(ctx, operatorID, sess.ID))
	return sess
}

func (f *fixture) sweeper(t *testing.T, leader Leader) *Sweeper {
	t.Helper()
	sw, err := New(Config{
		Sessions:     f.store.Sessions(),
		Tracker:      f.tracker,
		Publisher:    f.publisher,
		Leader:       leader,
		AbandonAfter: 12 * time.Hour,
		Logger:       slog.New(slog.NewTextHandler(io.Discard, nil)),
	})
	require.NoError(t, err)
	sw.now = func() time.Time { return now }
	return sw
}

func TestTick_AbandonsStaleSessions(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)

	stale := f.session(t, "tech1", now.Add(-13*time.Hour), domain.VerdictIncomplete)
	fresh := f.session(t, "tech2", now.Add(-time.Hour), domain.VerdictIncomplete)
	done := f.session(t, "tech3", now.Add(-48*time.Hour), domain.VerdictPassed)

	sw := f.sweeper(t, nil)
	n, err := sw.Tick(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, n)

	got, err := f.store.Sessions().GetByID(ctx, stale.ID)
	require.NoError(t, err)
	require.NotNil(t, got.AbandonedAt)
	assert.True(t, now.Equal(*got.AbandonedAt))
	assert.Equal(t, domain.VerdictIncomplete, got.Verdict)

	_, ok, err := f.tracker.Get(ctx, "tech1")
	require.NoError(t, err)
	assert.False(t, ok, "stale operator entry must be released")

	current, ok, err := f.tracker.Get(ctx, "tech2")
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, fresh.ID, current)

	current, ok, err = f.tracker.Get(ctx, "tech3")
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, done.ID, current)

	require.Len(t, f.publisher.events, 1)
	evt := f.publisher.events[0]
	assert.Equal(t, domain.EventSessionAbandoned, evt.Type)
	assert.Equal(t, stale.ID, evt.SessionID)
	assert.Equal(t, f.pcb.ID, evt.PCBID)
	assert.Equal(t, "tech1", evt.OperatorID)
	assert.Equal(t, "12h0m0s", evt.Payload["abandon_after"])
}

func TestTick_AbandonsUnfinishedSessionWithVerdict(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)

	// итог вычислен, но сессия не завершена техником
	sess := f.session(t, "tech1", now.Add(-24*time.Hour), domain.VerdictIncomplete)
	sess.Verdict = domain.VerdictPassed
	require.NoError(t, f.store.Sessions().Update(ctx, sess))

	sw := f.sweeper(t, nil)
	n, err := sw.Tick(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, n)

	got, err := f.store.Sessions().GetByID(ctx, sess.ID)
	require.NoError(t, err)
	assert.NotNil(t, got.AbandonedAt)
	assert.Equal(t, domain.VerdictPassed, got.Verdict)
}

func TestTick_DoesNotRepeat(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	f.session(t, "tech1", now.Add(-24*time.Hour), domain.VerdictIncomplete)

	sw := f.sweeper(t, nil)
	n, err := sw.Tick(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, n)

	n, err = sw.Tick(ctx)
	require.NoError(t, err)
	assert.Zero(t, n)
	assert.Len(t, f.publisher.events, 1)
}

func TestTick_KeepsNewerTrackerEntry(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	f.session(t, "tech1", now.Add(-24*time.Hour), domain.VerdictIncomplete)
	// оператор уже перешёл к другой сессии
	newer := f.session(t, "tech1", now.Add(-time.Minute), domain.VerdictIncomplete)

	n, err := f.sweeper(t, nil).Tick(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, n)

	current, ok, err := f.tracker.Get(ctx, "tech1")
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, newer.ID, current)
}

func TestTick_Leader(t *testing.T) {
	ctx := context.Background()

	t.Run("not leader", func(t *testing.T) {
		f := newFixture(t)
		f.session(t, "tech1", now.Add(-24*time.Hour), domain.VerdictIncomplete)

		n, err := f.sweeper(t, staticLeader{ok: false}).Tick(ctx)
		require.NoError(t, err)
		assert.Zero(t, n)
		assert.Empty(t, f.publisher.events)
	})

	t.Run("election error", func(t *testing.T) {
		f := newFixture(t)
		_, err := f.sweeper(t, staticLeader{err: errors.New("db down")}).Tick(ctx)
		require.Error(t, err)
	})

	t.Run("leader", func(t *testing.T) {
		f := newFixture(t)
		f.session(t, "tech1", now.Add(-24*time.Hour), domain.VerdictIncomplete)

		n, err := f.sweeper(t, staticLeader{ok: true}).Tick(ctx)
		require.NoError(t, err)
		assert.Equal(t, 1, n)
	})
}

func TestNew_InvalidCron(t *testing.T) {
	_, err := New(Config{Cron: "every minute"})
	require.Error(t, err)
	require.Error(t, ValidateCronExpr("61 * * * *"))
	require.NoError(t, ValidateCronExpr(DefaultCron))
}

func TestNextRun(t *testing.T) {
	schedule, err := parseCron(DefaultCron)
	require.NoError(t, err)

	from := time.Date(2026, 3, 10, 12, 7, 30, 0, time.UTC)
	assert.Equal(t, time.Date(2026, 3, 10, 12, 15, 0, 0, time.UTC), nextRun(schedule, from))
}
