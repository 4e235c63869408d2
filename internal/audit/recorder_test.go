package audit

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/shaiso/ModuleTrack/internal/domain"
	"github.com/shaiso/ModuleTrack/internal/mq"
	"github.com/shaiso/ModuleTrack/internal/storetest"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// failingStore имитирует недоступную БД.
type failingStore struct{}

func (failingStore) Insert(context.Context, *domain.AuditEvent) (bool, error) {
	return false, errors.New("connection refused")
}

func newRecorder(store EventStore) *Recorder {
	return New(Config{
		Store:  store,
		Logger: slog.New(slog.NewTextHandler(io.Discard, nil)),
	})
}

// deliver прогоняет сообщение через JSON так же, как consumer.
func deliver(t *testing.T, msg *mq.Message) *mq.Delivery {
	t.Helper()

	body, err := json.Marshal(msg)
	require.NoError(t, err)

	var decoded mq.Message
	require.NoError(t, json.Unmarshal(body, &decoded))
	return &mq.Delivery{Message: decoded}
}

func testEvent() domain.AuditEvent {
	return domain.AuditEvent{
		ID:         uuid.New(),
		Type:       domain.EventSessionCompleted,
		SessionID:  uuid.New(),
		PCBID:      uuid.New(),
		OperatorID: "tech1",
		Payload:    map[string]any{"verdict": "PASSED"},
		OccurredAt: time.Now().UTC().Truncate(time.Millisecond),
	}
}

func TestHandleEvent_Stores(t *testing.T) {
	ctx := context.Background()
	store := storetest.New()
	r := newRecorder(store.Audit())

	evt := testEvent()
	require.NoError(t, r.handleEvent(ctx, deliver(t, mq.NewEventMessage(evt))))

	events, err := store.Audit().ListBySession(ctx, evt.SessionID)
	require.NoError(t, err)
	require.Len(t, events, 1)
	assert.Equal(t, evt.ID, events[0].ID)
	assert.Equal(t, domain.EventSessionCompleted, events[0].Type)
	assert.Equal(t, "tech1", events[0].OperatorID)
	assert.Equal(t, "PASSED", events[0].Payload["verdict"])
	assert.True(t, evt.OccurredAt.Equal(events[0].OccurredAt))
}

func TestHandleEvent_Redelivery(t *testing.T) {
	ctx := context.Background()
	store := storetest.New()
	r := newRecorder(store.Audit())

	msg := mq.NewEventMessage(testEvent())
	require.NoError(t, r.handleEvent(ctx, deliver(t, msg)))
	require.NoError(t, r.handleEvent(ctx, deliver(t, msg)))

	events, err := store.Audit().ListBySession(ctx, msg.Payload.(domain.AuditEvent).SessionID)
	require.NoError(t, err)
	assert.Len(t, events, 1)
}

func TestHandleEvent_Poison(t *testing.T) {
	ctx := context.Background()
	r := newRecorder(storetest.New().Audit())

	noSession := testEvent()
	noSession.SessionID = uuid.Nil

	unknownType := testEvent()
	unknownType.Type = "session.exploded"

	tests := []struct {
		name string
		msg  *mq.Message
	}{
		{
			name: "payload is not an event",
			msg:  &mq.Message{ID: "1", Type: domain.EventStepRecorded, Payload: "garbage"},
		},
		{
			name: "event without session",
			msg:  mq.NewEventMessage(noSession),
		},
		{
			name: "unknown event type",
			msg:  mq.NewEventMessage(unknownType),
		},
		{
			name: "type mismatch",
			msg: func() *mq.Message {
				m := mq.NewEventMessage(testEvent())
				m.Type = domain.EventSessionSignedOff
				return m
			}(),
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := r.handleEvent(ctx, deliver(t, tt.msg))
			require.ErrorIs(t, err, mq.ErrPoison)
		})
	}
}

func TestHandleEvent_StoreFailureIsRetried(t *testing.T) {
	r := newRecorder(failingStore{})

	err := r.handleEvent(context.Background(), deliver(t, mq.NewEventMessage(testEvent())))
	require.Error(t, err)
	assert.NotErrorIs(t, err, mq.ErrPoison)
}
