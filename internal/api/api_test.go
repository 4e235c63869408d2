package api

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/google/uuid"
	"github.com/shaiso/ModuleTrack/internal/access"
	"github.com/shaiso/ModuleTrack/internal/domain"
	"github.com/shaiso/ModuleTrack/internal/engine"
	"github.com/shaiso/ModuleTrack/internal/execution"
	"github.com/shaiso/ModuleTrack/internal/storetest"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var (
	admin      = &domain.Operator{ID: "admin", Superuser: true}
	technician = &domain.Operator{ID: "tech1", Groups: []string{domain.GroupTestOperator}}
	qa         = &domain.Operator{ID: "qa1", Groups: []string{domain.GroupQASignoff}}
)

// auditPublisher пишет события сразу в журнал, минуя очередь.
type auditPublisher struct {
	log *storetest.AuditStore
}

func (p auditPublisher) PublishEvent(ctx context.Context, evt domain.AuditEvent) error {
	_, err := p.log.Insert(ctx, &evt)
	return err
}

type testAPI struct {
	t     *testing.T
	srv   *httptest.Server
	store *storetest.Store
}

func newTestAPI(t *testing.T) *testAPI {
	t.Helper()

	store := storetest.New()
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))

	svc := execution.New(execution.Config{
		Configs:   store.Configs(),
		Units:     store.Units(),
		Sessions:  store.Sessions(),
		Results:   store.Results(),
		Publisher: auditPublisher{store.Audit()},
		Logger:    logger,
	})

	h := NewHandler(Config{
		Configs:   store.Configs(),
		PCBTypes:  store.PCBTypes(),
		Units:     store.Units(),
		Sessions:  store.Sessions(),
		Audit:     store.Audit(),
		Execution: svc,
		Logger:    logger,
	})

	mux := http.NewServeMux()
	h.RegisterRoutes(mux)

	srv := httptest.NewServer(mux)
	t.Cleanup(srv.Close)

	return &testAPI{t: t, srv: srv, store: store}
}

// do выполняет запрос от имени op и декодирует поле data ответа в out.
// body типа string отправляется как есть, остальное — как JSON.
func (a *testAPI) do(op *domain.Operator, method, path string, body, out any) int {
	a.t.Helper()

	var reader io.Reader
	switch b := body.(type) {
	case nil:
	case string:
		reader = strings.NewReader(b)
	default:
		data, err := json.Marshal(b)
		require.NoError(a.t, err)
		reader = bytes.NewReader(data)
	}

	req, err := http.NewRequest(method, a.srv.URL+path, reader)
	require.NoError(a.t, err)
	if op != nil {
		access.SetHeaders(req.Header, *op)
	}

	resp, err := http.DefaultClient.Do(req)
	require.NoError(a.t, err)
	defer resp.Body.Close()

	if out != nil && resp.StatusCode < 300 {
		envelope := struct {
			Data any `json:"data"`
		}{Data: out}
		require.NoError(a.t, json.NewDecoder(resp.Body).Decode(&envelope))
	}
	return resp.StatusCode
}

// errorCode выполняет запрос и возвращает статус и код ошибки.
func (a *testAPI) errorCode(op *domain.Operator, method, path string, body any) (int, ErrorCode) {
	a.t.Helper()

	data, err := json.Marshal(body)
	require.NoError(a.t, err)
	req, err := http.NewRequest(method, a.srv.URL+path, bytes.NewReader(data))
	require.NoError(a.t, err)
	if op != nil {
		access.SetHeaders(req.Header, *op)
	}

	resp, err := http.DefaultClient.Do(req)
	require.NoError(a.t, err)
	defer resp.Body.Close()

	var errResp ErrorResponse
	require.NoError(a.t, json.NewDecoder(resp.Body).Decode(&errResp))
	return resp.StatusCode, errResp.Error.Code
}

type fixture struct {
	config TestConfigResponse
	batch  BatchResponse
	pcb    PCBResponse
}

func (a *testAPI) seed() fixture {
	a.t.Helper()

	var pcbType PCBTypeResponse
	require.Equal(a.t, http.StatusCreated, a.do(admin, http.MethodPost, "/api/v1/pcb-types",
		PCBTypeRequest{Name: "Power board"}, &pcbType))

	var cfg TestConfigResponse
	require.Equal(a.t, http.StatusCreated, a.do(admin, http.MethodPost, "/api/v1/test-configs",
		TestConfigRequest{
			Name: "Power bring-up",
			Steps: []StepRequest{
				{Kind: domain.StepKindVoltage, Measurement: &domain.MeasurementSpec{ParameterName: "5V rail", Min: 4.5, Max: 5.5}},
				{Kind: domain.StepKindQuestion, Question: &domain.QuestionSpec{Text: "LED lit?", RequiredAnswer: true}},
			},
		}, &cfg))

	var batch BatchResponse
	require.Equal(a.t, http.StatusCreated, a.do(admin, http.MethodPost, "/api/v1/batches",
		BatchRequest{Name: "B-001", PCBTypeID: pcbType.ID, TestConfigID: cfg.ID, HardwareVersion: "rev B"}, &batch))

	var pcb PCBResponse
	require.Equal(a.t, http.StatusCreated, a.do(admin, http.MethodPost, "/api/v1/batches/"+batch.ID.String()+"/pcbs",
		PCBRequest{SerialNumber: "SN-0001"}, &pcb))

	return fixture{config: cfg, batch: batch, pcb: pcb}
}

func TestWorkflow_PassedAndSignedOff(t *testing.T) {
	a := newTestAPI(t)
	f := a.seed()
	execPath := "/api/v1/pcbs/" + f.pcb.ID.String() + "/execution"

	var state ExecutionStateResponse
	require.Equal(t, http.StatusOK, a.do(technician, http.MethodGet, execPath, nil, &state))
	assert.Nil(t, state.Session)
	require.NotNil(t, state.NextStep)
	assert.Equal(t, f.config.Steps[0].ID, state.NextStep.ID)
	assert.Equal(t, "rev B", state.HardwareVersion)

	var submitted SubmitStepResponse
	require.Equal(t, http.StatusCreated, a.do(technician, http.MethodPost, execPath,
		SubmitStepRequest{StepID: f.config.Steps[0].ID, Value: "5.0"}, &submitted))
	assert.True(t, submitted.Result.Passed)
	require.NotNil(t, submitted.State.Session)
	sessionID := submitted.State.Session.ID
	assert.Equal(t, 1, submitted.State.Progress.Completed)

	require.Equal(t, http.StatusCreated, a.do(technician, http.MethodPost, execPath,
		SubmitStepRequest{StepID: f.config.Steps[1].ID, Value: "yes"}, &submitted))
	assert.Equal(t, sessionID, submitted.State.Session.ID)
	assert.Nil(t, submitted.State.NextStep)

	sessPath := "/api/v1/sessions/" + sessionID.String()

	var next NextStepResponse
	require.Equal(t, http.StatusOK, a.do(technician, http.MethodGet, sessPath+"/next-step", nil, &next))
	assert.True(t, next.Done)

	var progress engine.Progress
	require.Equal(t, http.StatusOK, a.do(technician, http.MethodGet, sessPath+"/progress", nil, &progress))
	assert.Equal(t, engine.Progress{Completed: 2, Total: 2, Fraction: 1}, progress)

	// Подпись до завершения невозможна
	status, code := a.errorCode(qa, http.MethodPost, sessPath+"/signoff", NotesRequest{})
	assert.Equal(t, http.StatusUnprocessableEntity, status)
	assert.Equal(t, ErrCodeInvalidState, code)

	var sess SessionResponse
	require.Equal(t, http.StatusOK, a.do(technician, http.MethodPost, sessPath+"/complete",
		NotesRequest{Notes: "all good"}, &sess))
	assert.Equal(t, domain.VerdictPassed, sess.Verdict)
	assert.NotNil(t, sess.FinishedAt)

	// Техник не может подписывать
	status, code = a.errorCode(technician, http.MethodPost, sessPath+"/signoff", NotesRequest{})
	assert.Equal(t, http.StatusForbidden, status)
	assert.Equal(t, ErrCodeForbidden, code)

	var so SignoffResponse
	require.Equal(t, http.StatusCreated, a.do(qa, http.MethodPost, sessPath+"/signoff", NotesRequest{Notes: "ok"}, &so))
	assert.Equal(t, "qa1", so.QAUserID)

	status, code = a.errorCode(qa, http.MethodPost, sessPath+"/signoff", NotesRequest{})
	assert.Equal(t, http.StatusConflict, status)
	assert.Equal(t, ErrCodeConflict, code)

	var detail SessionDetailResponse
	require.Equal(t, http.StatusOK, a.do(qa, http.MethodGet, sessPath, nil, &detail))
	assert.True(t, detail.AllPassed)
	require.NotNil(t, detail.Signoff)
	assert.Equal(t, "all good", detail.Session.Notes)
	assert.Len(t, detail.Results, 2)

	// Исправление после подписи запрещено
	status, _ = a.errorCode(technician, http.MethodPut, sessPath+"/results", ReplaceResultsRequest{})
	assert.Equal(t, http.StatusConflict, status)

	var events []AuditEventResponse
	require.Equal(t, http.StatusOK, a.do(qa, http.MethodGet, sessPath+"/events", nil, &events))
	types := make([]domain.EventType, len(events))
	for i, e := range events {
		types[i] = e.Type
	}
	assert.Equal(t, []domain.EventType{
		domain.EventStepRecorded,
		domain.EventStepRecorded,
		domain.EventSessionCompleted,
		domain.EventSessionSignedOff,
	}, types)
}

func TestWorkflow_FailedMeasurement(t *testing.T) {
	a := newTestAPI(t)
	f := a.seed()
	execPath := "/api/v1/pcbs/" + f.pcb.ID.String() + "/execution"

	var submitted SubmitStepResponse
	require.Equal(t, http.StatusCreated, a.do(technician, http.MethodPost, execPath,
		SubmitStepRequest{StepID: f.config.Steps[0].ID, Value: "6.0"}, &submitted))
	assert.False(t, submitted.Result.Passed)
	require.Equal(t, http.StatusCreated, a.do(technician, http.MethodPost, execPath,
		SubmitStepRequest{StepID: f.config.Steps[1].ID, Value: "yes"}, &submitted))

	var v VerdictResponse
	sessPath := "/api/v1/sessions/" + submitted.State.Session.ID.String()
	require.Equal(t, http.StatusOK, a.do(technician, http.MethodPost, sessPath+"/verdict", nil, &v))
	assert.Equal(t, domain.VerdictFailed, v.Verdict)

	// Вычисленный итог не завершает сессию, подписывать рано
	status, code := a.errorCode(qa, http.MethodPost, sessPath+"/signoff", NotesRequest{})
	assert.Equal(t, http.StatusUnprocessableEntity, status)
	assert.Equal(t, ErrCodeInvalidState, code)
}

func TestSubmitStep_InvalidInput(t *testing.T) {
	a := newTestAPI(t)
	f := a.seed()
	execPath := "/api/v1/pcbs/" + f.pcb.ID.String() + "/execution"

	status, code := a.errorCode(technician, http.MethodPost, execPath,
		SubmitStepRequest{StepID: f.config.Steps[0].ID, Value: "five volts"})
	assert.Equal(t, http.StatusBadRequest, status)
	assert.Equal(t, ErrCodeBadRequest, code)
	assert.Zero(t, a.store.ResultCount())
	assert.Zero(t, a.store.SessionCount())

	status, _ = a.errorCode(technician, http.MethodPost, execPath,
		SubmitStepRequest{StepID: uuid.New(), Value: "5"})
	assert.Equal(t, http.StatusNotFound, status)

	status, _ = a.errorCode(technician, http.MethodPost, "/api/v1/pcbs/"+uuid.NewString()+"/execution",
		SubmitStepRequest{StepID: f.config.Steps[0].ID, Value: "5"})
	assert.Equal(t, http.StatusNotFound, status)
}

func TestAccess(t *testing.T) {
	a := newTestAPI(t)

	status, code := a.errorCode(nil, http.MethodGet, "/api/v1/test-configs", nil)
	assert.Equal(t, http.StatusUnauthorized, status)
	assert.Equal(t, ErrCodeUnauthorized, code)

	require.Equal(t, http.StatusOK, a.do(technician, http.MethodGet, "/api/v1/test-configs", nil, nil))

	status, code = a.errorCode(technician, http.MethodPost, "/api/v1/test-configs", TestConfigRequest{Name: "x"})
	assert.Equal(t, http.StatusForbidden, status)
	assert.Equal(t, ErrCodeForbidden, code)

	author := &domain.Operator{ID: "eng1", Groups: []string{domain.GroupManageTestConfigs}}
	require.Equal(t, http.StatusCreated, a.do(author, http.MethodPost, "/api/v1/test-configs",
		TestConfigRequest{Name: "x"}, nil))
}

func TestTestConfig_Lifecycle(t *testing.T) {
	a := newTestAPI(t)
	f := a.seed()
	path := "/api/v1/test-configs/" + f.config.ID.String()

	status, code := a.errorCode(admin, http.MethodPost, "/api/v1/test-configs", TestConfigRequest{Name: "POWER BRING-UP"})
	assert.Equal(t, http.StatusConflict, status)
	assert.Equal(t, ErrCodeConflict, code)

	status, _ = a.errorCode(admin, http.MethodPost, "/api/v1/test-configs", TestConfigRequest{
		Name:  "bad bounds",
		Steps: []StepRequest{{Kind: domain.StepKindCurrent, Measurement: &domain.MeasurementSpec{ParameterName: "idle", Min: 2, Max: 1}}},
	})
	assert.Equal(t, http.StatusBadRequest, status)

	// Обновление: первый шаг сохраняет ID, второй заменяется новым
	keep := f.config.Steps[0]
	var updated TestConfigResponse
	require.Equal(t, http.StatusOK, a.do(admin, http.MethodPut, path, TestConfigRequest{
		Name: "Power bring-up",
		Steps: []StepRequest{
			{ID: keep.ID, Kind: keep.Kind, Measurement: keep.Measurement},
			{Kind: domain.StepKindInstruction, Instruction: &domain.InstructionSpec{Text: "Unplug"}},
		},
	}, &updated))
	require.Len(t, updated.Steps, 2)
	assert.Equal(t, keep.ID, updated.Steps[0].ID)
	assert.NotEqual(t, f.config.Steps[1].ID, updated.Steps[1].ID)
	assert.Equal(t, "V", updated.Steps[0].Measurement.Unit)

	// Перестановка
	var reordered TestConfigResponse
	require.Equal(t, http.StatusOK, a.do(admin, http.MethodPut, path+"/order",
		ReorderStepsRequest{StepIDs: []uuid.UUID{updated.Steps[1].ID, updated.Steps[0].ID}}, &reordered))
	assert.Equal(t, updated.Steps[1].ID, reordered.Steps[0].ID)

	status, _ = a.errorCode(admin, http.MethodPut, path+"/order",
		ReorderStepsRequest{StepIDs: []uuid.UUID{uuid.New(), updated.Steps[0].ID}})
	assert.Equal(t, http.StatusNotFound, status)

	var moved TestConfigResponse
	require.Equal(t, http.StatusOK, a.do(admin, http.MethodPost,
		path+"/steps/"+keep.ID.String()+"/move", MoveStepRequest{Direction: engine.DirectionUp}, &moved))
	assert.Equal(t, keep.ID, moved.Steps[0].ID)
	assert.Equal(t, 1, moved.Steps[0].Order)

	// Перемещение первого шага вверх ничего не меняет
	require.Equal(t, http.StatusOK, a.do(admin, http.MethodPost,
		path+"/steps/"+keep.ID.String()+"/move", MoveStepRequest{Direction: engine.DirectionUp}, &moved))
	assert.Equal(t, keep.ID, moved.Steps[0].ID)

	// Удаление требует подтверждения названием
	status, _ = a.errorCode(admin, http.MethodDelete, path, DeleteRequest{ConfirmName: "power bring-up"})
	assert.Equal(t, http.StatusBadRequest, status)
	require.Equal(t, http.StatusNoContent, a.do(admin, http.MethodDelete, path, DeleteRequest{ConfirmName: "Power bring-up"}, nil))
	status, _ = a.errorCode(admin, http.MethodGet, path, nil)
	assert.Equal(t, http.StatusNotFound, status)
}

func TestImportTestConfigs(t *testing.T) {
	a := newTestAPI(t)

	doc := "name: Sensor board\nsteps:\n  - kind: RESISTANCE\n    parameter_name: Pull-up\n    min: 9500\n    max: 10500\n"

	var res struct {
		Created []string `json:"created"`
	}
	require.Equal(t, http.StatusOK, a.do(admin, http.MethodPost, "/api/v1/test-configs/import", doc, &res))
	assert.Equal(t, []string{"Sensor board"}, res.Created)

	require.Equal(t, http.StatusConflict, a.do(admin, http.MethodPost, "/api/v1/test-configs/import", doc, nil))
	require.Equal(t, http.StatusOK, a.do(admin, http.MethodPost, "/api/v1/test-configs/import?replace=true", doc, nil))
	require.Equal(t, http.StatusBadRequest, a.do(admin, http.MethodPost, "/api/v1/test-configs/import", "name: [", nil))
}

func TestBatchesAndPCBs(t *testing.T) {
	a := newTestAPI(t)
	f := a.seed()

	status, _ := a.errorCode(admin, http.MethodPost, "/api/v1/batches",
		BatchRequest{Name: "B-002", PCBTypeID: uuid.New()})
	assert.Equal(t, http.StatusBadRequest, status, "unknown pcb type")

	status, _ = a.errorCode(admin, http.MethodPost, "/api/v1/batches/"+f.batch.ID.String()+"/pcbs",
		PCBRequest{SerialNumber: "SN-0001"})
	assert.Equal(t, http.StatusConflict, status, "duplicate serial")

	var found PCBResponse
	require.Equal(t, http.StatusOK, a.do(technician, http.MethodGet, "/api/v1/pcbs?serial_number=SN-0001", nil, &found))
	assert.Equal(t, f.pcb.ID, found.ID)

	var pcbs []PCBResponse
	require.Equal(t, http.StatusOK, a.do(technician, http.MethodGet, "/api/v1/batches/"+f.batch.ID.String()+"/pcbs", nil, &pcbs))
	assert.Len(t, pcbs, 1)

	var updated PCBResponse
	require.Equal(t, http.StatusOK, a.do(admin, http.MethodPut, "/api/v1/pcbs/"+f.pcb.ID.String(),
		PCBRequest{HardwareModified: true, ModifiedHardwareVersion: "rev B2"}, &updated))
	assert.Equal(t, "SN-0001", updated.SerialNumber)

	var state ExecutionStateResponse
	require.Equal(t, http.StatusOK, a.do(technician, http.MethodGet, "/api/v1/pcbs/"+f.pcb.ID.String()+"/execution", nil, &state))
	assert.Equal(t, "rev B2", state.HardwareVersion)

	require.Equal(t, http.StatusNoContent, a.do(admin, http.MethodDelete, "/api/v1/pcbs/"+f.pcb.ID.String(),
		DeleteRequest{ConfirmName: "SN-0001"}, nil))
}

func TestListSessions(t *testing.T) {
	a := newTestAPI(t)
	f := a.seed()
	execPath := "/api/v1/pcbs/" + f.pcb.ID.String() + "/execution"

	require.Equal(t, http.StatusCreated, a.do(technician, http.MethodPost, execPath,
		SubmitStepRequest{StepID: f.config.Steps[0].ID, Value: "5"}, nil))

	var items []SessionListItemResponse
	require.Equal(t, http.StatusOK, a.do(qa, http.MethodGet, "/api/v1/sessions?serial_number=SN-0001&order=-verdict", nil, &items))
	require.Len(t, items, 1)
	assert.Equal(t, "SN-0001", items[0].SerialNumber)
	assert.Equal(t, "tech1", items[0].OperatorID)
	assert.False(t, items[0].SignedOff)

	require.Equal(t, http.StatusOK, a.do(qa, http.MethodGet, "/api/v1/sessions?search=nobody", nil, &items))
	assert.Empty(t, items)

	status, code := a.errorCode(qa, http.MethodGet, "/api/v1/sessions?order=password", nil)
	assert.Equal(t, http.StatusBadRequest, status)
	assert.Equal(t, ErrCodeBadRequest, code)

	status, _ = a.errorCode(qa, http.MethodGet, "/api/v1/sessions?limit=-1", nil)
	assert.Equal(t, http.StatusBadRequest, status)
}

func TestDeleteSession(t *testing.T) {
	a := newTestAPI(t)
	f := a.seed()

	var submitted SubmitStepResponse
	require.Equal(t, http.StatusCreated, a.do(technician, http.MethodPost, "/api/v1/pcbs/"+f.pcb.ID.String()+"/execution",
		SubmitStepRequest{StepID: f.config.Steps[0].ID, Value: "5"}, &submitted))
	path := "/api/v1/sessions/" + submitted.State.Session.ID.String()

	require.Equal(t, http.StatusNoContent, a.do(technician, http.MethodDelete, path, nil, nil))
	assert.Zero(t, a.store.SessionCount())

	status, _ := a.errorCode(technician, http.MethodGet, path, nil)
	assert.Equal(t, http.StatusNotFound, status)
}
