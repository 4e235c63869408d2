package execution

import (
	"bytes"
	"context"
	"encoding/json"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/shaiso/ModuleTrack/internal/domain"
	"github.com/shaiso/ModuleTrack/internal/repo"
	"github.com/shaiso/ModuleTrack/internal/storetest"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// --- fakes ---

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

func (p *recordingPublisher) types() []domain.EventType {
	p.mu.Lock()
	defer p.mu.Unlock()
	out := make([]domain.EventType, len(p.events))
	for i, e := range p.events {
		out[i] = e.Type
	}
	return out
}

// --- fixture ---

type fixture struct {
	svc       *Service
	store     *storetest.Store
	tracker   *MemoryTracker
	publisher *recordingPublisher
	cfg       *domain.TestConfig
	batch     *domain.Batch
	pcb       *domain.PCB
	voltage   domain.Step
	question  domain.Step
}

var (
	technician = domain.Operator{ID: "tech1", Groups: []string{domain.GroupTestOperator}}
	qa         = domain.Operator{ID: "qa1", Groups: []string{domain.GroupQASignoff}}
)

// newFixture: процедура из напряжения 4.5–5.5 V и вопроса (ожидается "да").
func newFixture(t *testing.T) *fixture {
	t.Helper()
	ctx := context.Background()
	store := storetest.New()

	cfg := &domain.TestConfig{
		Name: "Power board",
		Steps: []domain.Step{
			domain.NewMeasurementStep(domain.StepKindVoltage, 1, "5V rail", 4.5, 5.5, ""),
			domain.NewQuestionStep(2, "Power LED on?", true),
		},
	}
	require.NoError(t, store.Configs().Create(ctx, cfg))

	batch := &domain.Batch{Name: "B-001", TestConfigID: cfg.ID, HardwareVersion: "1.0"}
	require.NoError(t, store.Units().CreateBatch(ctx, batch))

	pcb := &domain.PCB{SerialNumber: "SN-0001", BatchID: batch.ID}
	require.NoError(t, store.Units().CreatePCB(ctx, pcb))

	tracker := NewMemoryTracker(0)
	publisher := &recordingPublisher{}

	svc := New(Config{
		Configs:   store.Configs(),
		Units:     store.Units(),
		Sessions:  store.Sessions(),
		Results:   store.Results(),
		Tracker:   tracker,
		Publisher: publisher,
	})

	return &fixture{
		svc:       svc,
		store:     store,
		tracker:   tracker,
		publisher: publisher,
		cfg:       cfg,
		batch:     batch,
		pcb:       pcb,
		voltage:   cfg.Steps[0],
		question:  cfg.Steps[1],
	}
}

func (f *fixture) addPCB(t *testing.T, serial string) *domain.PCB {
	t.Helper()
	pcb := &domain.PCB{SerialNumber: serial, BatchID: f.batch.ID}
	require.NoError(t, f.store.Units().CreatePCB(context.Background(), pcb))
	return pcb
}

func (f *fixture) results(t *testing.T, sessionID uuid.UUID) []domain.StepResult {
	t.Helper()
	results, err := f.store.Results().ListBySession(context.Background(), sessionID)
	require.NoError(t, err)
	return results
}

func (f *fixture) session(t *testing.T, id uuid.UUID) *domain.Session {
	t.Helper()
	sess, err := f.store.Sessions().GetByID(context.Background(), id)
	require.NoError(t, err)
	return sess
}

// --- tests ---

func TestSubmitStep_Scenario(t *testing.T) {
	tests := []struct {
		name    string
		voltage string
		answer  string
		want    domain.Verdict
	}{
		{name: "in range and Yes", voltage: "5.0", answer: "Yes", want: domain.VerdictPassed},
		{name: "in range and lowercase yes", voltage: "5.0", answer: "yes", want: domain.VerdictPassed},
		{name: "out of range", voltage: "6.0", answer: "Yes", want: domain.VerdictFailed},
		{name: "min boundary", voltage: "4.5", answer: "true", want: domain.VerdictPassed},
		{name: "max boundary", voltage: "5.5", answer: "1", want: domain.VerdictPassed},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newFixture(t)
			ctx := context.Background()

			_, state, err := f.svc.SubmitStep(ctx, technician, f.pcb.ID, f.voltage.ID, tt.voltage)
			require.NoError(t, err)
			require.NotNil(t, state.NextStep)
			assert.Equal(t, f.question.ID, state.NextStep.ID)

			_, state, err = f.svc.SubmitStep(ctx, technician, f.pcb.ID, f.question.ID, tt.answer)
			require.NoError(t, err)
			assert.Nil(t, state.NextStep)
			assert.True(t, state.Progress.Done())

			sess, err := f.svc.Complete(ctx, technician, state.Session.ID, "")
			require.NoError(t, err)
			assert.Equal(t, tt.want, sess.Verdict)
		})
	}
}

func TestSubmitStep_LazySession(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	state, err := f.svc.State(ctx, technician, f.pcb.ID)
	require.NoError(t, err)
	assert.Nil(t, state.Session, "no session before first submission")
	require.NotNil(t, state.NextStep)
	assert.Equal(t, f.voltage.ID, state.NextStep.ID)
	assert.Zero(t, f.store.SessionCount())

	res, state, err := f.svc.SubmitStep(ctx, technician, f.pcb.ID, f.voltage.ID, "5.1")
	require.NoError(t, err)
	require.NotNil(t, state.Session)
	assert.Equal(t, state.Session.ID, res.SessionID)
	assert.Equal(t, domain.VerdictIncomplete, state.Session.Verdict)
	assert.Equal(t, f.cfg.ID, state.Session.TestConfigID)
	assert.Equal(t, technician.ID, state.Session.OperatorID)

	tracked, ok, err := f.tracker.Get(ctx, technician.ID)
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, state.Session.ID, tracked)

	// Второй шаг идёт в ту же сессию
	_, state2, err := f.svc.SubmitStep(ctx, technician, f.pcb.ID, f.question.ID, "yes")
	require.NoError(t, err)
	assert.Equal(t, state.Session.ID, state2.Session.ID)
	assert.Equal(t, 1, f.store.SessionCount())
}

func TestSubmitStep_InvalidInputNotRecorded(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	_, _, err := f.svc.SubmitStep(ctx, technician, f.pcb.ID, f.voltage.ID, "five volts")
	require.ErrorIs(t, err, ErrInvalidInput)

	assert.Zero(t, f.store.ResultCount())
	assert.Zero(t, f.store.SessionCount(), "rejected input must not open a session")
	assert.Empty(t, f.publisher.types())
}

func TestSubmitStep_LogsPCB(t *testing.T) {
	f := newFixture(t)
	var buf bytes.Buffer
	svc := New(Config{
		Configs:  f.store.Configs(),
		Units:    f.store.Units(),
		Sessions: f.store.Sessions(),
		Results:  f.store.Results(),
		Logger:   slog.New(slog.NewJSONHandler(&buf, nil)),
	})

	_, _, err := svc.SubmitStep(context.Background(), technician, f.pcb.ID, f.voltage.ID, "oops")
	require.ErrorIs(t, err, ErrInvalidInput)

	var entry map[string]any
	require.NoError(t, json.Unmarshal(buf.Bytes(), &entry))
	assert.Equal(t, "step input rejected", entry["msg"])
	assert.Equal(t, f.pcb.ID.String(), entry["pcb_id"])
	assert.Equal(t, f.voltage.ID.String(), entry["step_id"])
}

func TestSubmitStep_UnknownStep(t *testing.T) {
	f := newFixture(t)

	_, _, err := f.svc.SubmitStep(context.Background(), technician, f.pcb.ID, uuid.New(), "5")
	require.ErrorIs(t, err, ErrStepNotFound)
}

func TestSubmitStep_UnknownPCB(t *testing.T) {
	f := newFixture(t)

	_, _, err := f.svc.SubmitStep(context.Background(), technician, uuid.New(), f.voltage.ID, "5")
	require.ErrorIs(t, err, ErrPCBNotFound)
}

func TestSubmitStep_BatchWithoutConfig(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	batch := &domain.Batch{Name: "B-empty"}
	require.NoError(t, f.store.Units().CreateBatch(ctx, batch))
	pcb := &domain.PCB{SerialNumber: "SN-X", BatchID: batch.ID}
	require.NoError(t, f.store.Units().CreatePCB(ctx, pcb))

	_, err := f.svc.State(ctx, technician, pcb.ID)
	require.ErrorIs(t, err, ErrNoTestConfig)
}

func TestSubmitStep_DuplicatesAccumulate(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	var sessionID uuid.UUID
	for i := 0; i < 3; i++ {
		_, state, err := f.svc.SubmitStep(ctx, technician, f.pcb.ID, f.voltage.ID, "5.0")
		require.NoError(t, err)
		assert.Equal(t, 1, state.Progress.Completed)
		sessionID = state.Session.ID
	}

	results := f.results(t, sessionID)
	assert.Len(t, results, 3, "duplicate results are not deduplicated")

	next, err := f.svc.NextStep(ctx, sessionID)
	require.NoError(t, err)
	require.NotNil(t, next)
	assert.Equal(t, f.question.ID, next.ID)
}

func TestSubmitStep_SwitchingUnitOpensNewSession(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	other := f.addPCB(t, "SN-0002")

	_, first, err := f.svc.SubmitStep(ctx, technician, f.pcb.ID, f.voltage.ID, "5.0")
	require.NoError(t, err)

	_, second, err := f.svc.SubmitStep(ctx, technician, other.ID, f.voltage.ID, "5.0")
	require.NoError(t, err)
	assert.NotEqual(t, first.Session.ID, second.Session.ID)

	// Первая сессия остаётся INCOMPLETE
	stored := f.session(t, first.Session.ID)
	assert.Equal(t, domain.VerdictIncomplete, stored.Verdict)

	// Оператор отслеживается на новой сессии
	tracked, _, _ := f.tracker.Get(ctx, technician.ID)
	assert.Equal(t, second.Session.ID, tracked)
}

func TestSubmitStep_AbandonedSessionIsNotResumed(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	_, first, err := f.svc.SubmitStep(ctx, technician, f.pcb.ID, f.voltage.ID, "5.0")
	require.NoError(t, err)
	require.NoError(t, f.store.Sessions().MarkAbandoned(ctx, first.Session.ID, time.Now().UTC()))

	// запись трекера осталась, но сессия брошена
	_, second, err := f.svc.SubmitStep(ctx, technician, f.pcb.ID, f.voltage.ID, "5.0")
	require.NoError(t, err)
	assert.NotEqual(t, first.Session.ID, second.Session.ID)
	assert.Equal(t, 2, f.store.SessionCount())
}

func TestSubmitStep_OperatorsAreIndependent(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	other := domain.Operator{ID: "tech2", Groups: []string{domain.GroupTestOperator}}

	_, a, err := f.svc.SubmitStep(ctx, technician, f.pcb.ID, f.voltage.ID, "5.0")
	require.NoError(t, err)
	_, b, err := f.svc.SubmitStep(ctx, other, f.pcb.ID, f.voltage.ID, "5.0")
	require.NoError(t, err)

	assert.NotEqual(t, a.Session.ID, b.Session.ID)
}

func TestComplete(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	_, state, err := f.svc.SubmitStep(ctx, technician, f.pcb.ID, f.voltage.ID, "5.0")
	require.NoError(t, err)

	sess, err := f.svc.Complete(ctx, technician, state.Session.ID, "question skipped")
	require.NoError(t, err)
	assert.Equal(t, domain.VerdictFailed, sess.Verdict, "missing step fails the verdict")
	assert.Equal(t, "question skipped", sess.Notes)
	assert.NotNil(t, sess.FinishedAt)

	_, ok, _ := f.tracker.Get(ctx, technician.ID)
	assert.False(t, ok, "tracker released after completion")

	_, err = f.svc.Complete(ctx, technician, sess.ID, "")
	require.ErrorIs(t, err, ErrSessionFinalized)

	// После завершения следующий шаг открывает новую сессию
	_, next, err := f.svc.SubmitStep(ctx, technician, f.pcb.ID, f.voltage.ID, "5.0")
	require.NoError(t, err)
	assert.NotEqual(t, sess.ID, next.Session.ID)

	assert.Equal(t, []domain.EventType{
		domain.EventStepRecorded,
		domain.EventSessionCompleted,
		domain.EventStepRecorded,
	}, f.publisher.types())
}

func TestDetermineOverallResult_Persists(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	_, state, err := f.svc.SubmitStep(ctx, technician, f.pcb.ID, f.voltage.ID, "5.0")
	require.NoError(t, err)
	_, _, err = f.svc.SubmitStep(ctx, technician, f.pcb.ID, f.question.ID, "yes")
	require.NoError(t, err)

	verdict, err := f.svc.DetermineOverallResult(ctx, state.Session.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.VerdictPassed, verdict)

	stored := f.session(t, state.Session.ID)
	assert.Equal(t, domain.VerdictPassed, stored.Verdict)
}

func TestProgress(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	_, state, err := f.svc.SubmitStep(ctx, technician, f.pcb.ID, f.question.ID, "no")
	require.NoError(t, err)

	p, err := f.svc.Progress(ctx, state.Session.ID)
	require.NoError(t, err)
	assert.Equal(t, 1, p.Completed)
	assert.Equal(t, 2, p.Total)
	assert.InDelta(t, 0.5, p.Fraction, 1e-9)

	// Следующий шаг — первый невыполненный по порядку
	next, err := f.svc.NextStep(ctx, state.Session.ID)
	require.NoError(t, err)
	assert.Equal(t, f.voltage.ID, next.ID)
}

func TestSignOff(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	_, state, err := f.svc.SubmitStep(ctx, technician, f.pcb.ID, f.voltage.ID, "5.0")
	require.NoError(t, err)

	_, err = f.svc.SignOff(ctx, qa, state.Session.ID, "")
	require.ErrorIs(t, err, ErrSessionNotFinalized)

	_, err = f.svc.Complete(ctx, technician, state.Session.ID, "")
	require.NoError(t, err)

	so, err := f.svc.SignOff(ctx, qa, state.Session.ID, "looks good")
	require.NoError(t, err)
	assert.Equal(t, qa.ID, so.QAUserID)
	assert.Equal(t, "looks good", so.Notes)
	assert.False(t, so.SignedOffAt.IsZero())

	_, err = f.svc.SignOff(ctx, qa, state.Session.ID, "again")
	require.ErrorIs(t, err, ErrAlreadySignedOff)

	detail, err := f.svc.Detail(ctx, state.Session.ID)
	require.NoError(t, err)
	require.NotNil(t, detail.Signoff)
	assert.Equal(t, "looks good", detail.Signoff.Notes)
}

func TestSignOff_VerdictWithoutCompletion(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	_, state, err := f.svc.SubmitStep(ctx, technician, f.pcb.ID, f.voltage.ID, "5.0")
	require.NoError(t, err)
	_, _, err = f.svc.SubmitStep(ctx, technician, f.pcb.ID, f.question.ID, "yes")
	require.NoError(t, err)

	verdict, err := f.svc.DetermineOverallResult(ctx, state.Session.ID)
	require.NoError(t, err)
	require.Equal(t, domain.VerdictPassed, verdict)

	// Итог вычислен, но техник сессию не завершил
	_, err = f.svc.SignOff(ctx, qa, state.Session.ID, "")
	require.ErrorIs(t, err, ErrSessionNotFinalized)

	_, err = f.store.Sessions().GetSignoff(ctx, state.Session.ID)
	require.ErrorIs(t, err, repo.ErrNotFound)

	// Сессия остаётся открытой для техника
	_, next, err := f.svc.SubmitStep(ctx, technician, f.pcb.ID, f.voltage.ID, "9.9")
	require.NoError(t, err)
	assert.Equal(t, state.Session.ID, next.Session.ID)

	sess, err := f.svc.Complete(ctx, technician, state.Session.ID, "")
	require.NoError(t, err)
	assert.Equal(t, domain.VerdictFailed, sess.Verdict)

	_, err = f.svc.SignOff(ctx, qa, state.Session.ID, "")
	require.NoError(t, err)
}

func TestSubmitStep_SignedOffSessionIsNotResumed(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	_, first, err := f.svc.SubmitStep(ctx, technician, f.pcb.ID, f.voltage.ID, "5.0")
	require.NoError(t, err)

	// Подпись записана в обход Complete, трекер всё ещё указывает на сессию
	require.NoError(t, f.store.Sessions().CreateSignoff(ctx, &domain.QASignoff{
		SessionID:   first.Session.ID,
		QAUserID:    qa.ID,
		SignedOffAt: time.Now().UTC(),
	}))

	_, second, err := f.svc.SubmitStep(ctx, technician, f.pcb.ID, f.voltage.ID, "9.9")
	require.NoError(t, err)
	assert.NotEqual(t, first.Session.ID, second.Session.ID)
	assert.Len(t, f.results(t, first.Session.ID), 1)

	tracked, _, _ := f.tracker.Get(ctx, technician.ID)
	assert.Equal(t, second.Session.ID, tracked)
}

func TestComplete_AbandonedSession(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	_, state, err := f.svc.SubmitStep(ctx, technician, f.pcb.ID, f.voltage.ID, "5.0")
	require.NoError(t, err)
	require.NoError(t, f.store.Sessions().MarkAbandoned(ctx, state.Session.ID, time.Now().UTC()))

	_, err = f.svc.Complete(ctx, technician, state.Session.ID, "")
	require.ErrorIs(t, err, ErrSessionAbandoned)

	stored := f.session(t, state.Session.ID)
	assert.Equal(t, domain.VerdictIncomplete, stored.Verdict)
	assert.Nil(t, stored.FinishedAt)
}

func TestSignOff_UnknownSession(t *testing.T) {
	f := newFixture(t)

	_, err := f.svc.SignOff(context.Background(), qa, uuid.New(), "")
	require.ErrorIs(t, err, ErrSessionNotFound)
}

func TestReplaceResults(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	_, state, err := f.svc.SubmitStep(ctx, technician, f.pcb.ID, f.voltage.ID, "6.0")
	require.NoError(t, err)
	_, _, err = f.svc.SubmitStep(ctx, technician, f.pcb.ID, f.question.ID, "yes")
	require.NoError(t, err)
	sess, err := f.svc.Complete(ctx, technician, state.Session.ID, "")
	require.NoError(t, err)
	require.Equal(t, domain.VerdictFailed, sess.Verdict)

	detail, err := f.svc.ReplaceResults(ctx, technician, sess.ID, "re-measured", []StepInput{
		{StepID: f.voltage.ID, Raw: "5.2"},
		{StepID: f.question.ID, Raw: "yes"},
	})
	require.NoError(t, err)
	assert.Equal(t, domain.VerdictPassed, detail.Session.Verdict)
	assert.Equal(t, "re-measured", detail.Session.Notes)
	assert.Len(t, detail.Results, 2)
	assert.True(t, detail.AllPassed)
}

func TestReplaceResults_InvalidInputChangesNothing(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	_, state, err := f.svc.SubmitStep(ctx, technician, f.pcb.ID, f.voltage.ID, "5.0")
	require.NoError(t, err)

	_, err = f.svc.ReplaceResults(ctx, technician, state.Session.ID, "", []StepInput{
		{StepID: f.voltage.ID, Raw: "oops"},
	})
	require.ErrorIs(t, err, ErrInvalidInput)

	results := f.results(t, state.Session.ID)
	require.Len(t, results, 1)
	assert.Equal(t, "5.0", results[0].RawInput)
}

func TestReplaceResults_SignedOffSession(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	_, state, err := f.svc.SubmitStep(ctx, technician, f.pcb.ID, f.voltage.ID, "5.0")
	require.NoError(t, err)
	_, err = f.svc.Complete(ctx, technician, state.Session.ID, "")
	require.NoError(t, err)
	_, err = f.svc.SignOff(ctx, qa, state.Session.ID, "")
	require.NoError(t, err)

	_, err = f.svc.ReplaceResults(ctx, technician, state.Session.ID, "", nil)
	require.ErrorIs(t, err, ErrAlreadySignedOff)
}

func TestDelete(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	_, state, err := f.svc.SubmitStep(ctx, technician, f.pcb.ID, f.voltage.ID, "5.0")
	require.NoError(t, err)

	require.NoError(t, f.svc.Delete(ctx, state.Session.ID))
	assert.Zero(t, f.store.SessionCount())
	assert.Zero(t, f.store.ResultCount())

	_, ok, _ := f.tracker.Get(ctx, technician.ID)
	assert.False(t, ok)

	require.ErrorIs(t, f.svc.Delete(ctx, state.Session.ID), ErrSessionNotFound)
}

func TestState_RemovedStepKeepsLabel(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	_, state, err := f.svc.SubmitStep(ctx, technician, f.pcb.ID, f.voltage.ID, "5.0")
	require.NoError(t, err)

	// Шаг удалён из процедуры после записи результата
	edited := *f.cfg
	edited.Steps = []domain.Step{f.question}
	require.NoError(t, f.store.Configs().Update(ctx, &edited))

	detail, err := f.svc.Detail(ctx, state.Session.ID)
	require.NoError(t, err)
	require.Len(t, detail.Results, 1)
	assert.Equal(t, "5V rail", detail.Results[0].Label)
	assert.Equal(t, uuid.Nil, detail.Results[0].StepID)
	assert.Equal(t, 0, detail.Progress.Completed)
	assert.Equal(t, 1, detail.Progress.Total)
	assert.False(t, detail.AllPassed)
}
