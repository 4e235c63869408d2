package api

import (
	"time"

	"github.com/google/uuid"
	"github.com/shaiso/ModuleTrack/internal/domain"
	"github.com/shaiso/ModuleTrack/internal/engine"
	"github.com/shaiso/ModuleTrack/internal/execution"
	"github.com/shaiso/ModuleTrack/internal/repo"
)

// TestConfig DTOs

// StepRequest — шаг в запросе на создание или обновление процедуры.
// Шаг с ID существующего шага сохраняет его идентичность.
type StepRequest struct {
	ID          uuid.UUID               `json:"id,omitempty"`
	Kind        domain.StepKind         `json:"kind"`
	Order       int                     `json:"order,omitempty"`
	Measurement *domain.MeasurementSpec `json:"measurement,omitempty"`
	Question    *domain.QuestionSpec    `json:"question,omitempty"`
	Instruction *domain.InstructionSpec `json:"instruction,omitempty"`
}

// TestConfigRequest — запрос на создание или обновление процедуры.
type TestConfigRequest struct {
	Name        string        `json:"name"`
	Description string        `json:"description,omitempty"`
	Steps       []StepRequest `json:"steps"`
}

// ToDomain конвертирует запрос в domain.TestConfig.
func (r TestConfigRequest) ToDomain() *domain.TestConfig {
	cfg := &domain.TestConfig{
		Name:        r.Name,
		Description: r.Description,
		Steps:       make([]domain.Step, len(r.Steps)),
	}
	for i, s := range r.Steps {
		cfg.Steps[i] = domain.Step{
			ID:          s.ID,
			Kind:        s.Kind,
			Order:       s.Order,
			Measurement: s.Measurement,
			Question:    s.Question,
			Instruction: s.Instruction,
		}
	}
	return cfg
}

// StepResponse — ответ с шагом.
type StepResponse struct {
	ID          uuid.UUID               `json:"id"`
	Kind        domain.StepKind         `json:"kind"`
	Order       int                     `json:"order"`
	Label       string                  `json:"label"`
	Measurement *domain.MeasurementSpec `json:"measurement,omitempty"`
	Question    *domain.QuestionSpec    `json:"question,omitempty"`
	Instruction *domain.InstructionSpec `json:"instruction,omitempty"`
}

// StepFromDomain конвертирует domain.Step в StepResponse.
func StepFromDomain(s domain.Step) StepResponse {
	return StepResponse{
		ID:          s.ID,
		Kind:        s.Kind,
		Order:       s.Order,
		Label:       s.Label(),
		Measurement: s.Measurement,
		Question:    s.Question,
		Instruction: s.Instruction,
	}
}

// TestConfigResponse — ответ с процедурой.
type TestConfigResponse struct {
	ID          uuid.UUID               `json:"id"`
	Name        string                  `json:"name"`
	Description string                  `json:"description,omitempty"`
	Steps       []StepResponse          `json:"steps"`
	StepCounts  map[domain.StepKind]int `json:"step_counts"`
	CreatedAt   time.Time               `json:"created_at"`
	UpdatedAt   time.Time               `json:"updated_at"`
}

// TestConfigFromDomain конвертирует domain.TestConfig в TestConfigResponse.
func TestConfigFromDomain(c domain.TestConfig) TestConfigResponse {
	c.SortSteps()
	steps := make([]StepResponse, len(c.Steps))
	for i, s := range c.Steps {
		steps[i] = StepFromDomain(s)
	}
	return TestConfigResponse{
		ID:          c.ID,
		Name:        c.Name,
		Description: c.Description,
		Steps:       steps,
		StepCounts:  c.CountByKind(),
		CreatedAt:   c.CreatedAt,
		UpdatedAt:   c.UpdatedAt,
	}
}

// DeleteRequest — подтверждение удаления по названию.
type DeleteRequest struct {
	ConfirmName string `json:"confirm_name"`
}

// ReorderStepsRequest — новый порядок шагов.
type ReorderStepsRequest struct {
	StepIDs []uuid.UUID `json:"step_ids"`
}

// MoveStepRequest — перемещение шага на одну позицию.
type MoveStepRequest struct {
	Direction engine.Direction `json:"direction"`
}

// PCBType DTOs

// PCBTypeRequest — запрос на создание или обновление типа платы.
type PCBTypeRequest struct {
	Name        string `json:"name"`
	Description string `json:"description,omitempty"`
}

// PCBTypeResponse — ответ с типом платы.
type PCBTypeResponse struct {
	ID          uuid.UUID `json:"id"`
	Name        string    `json:"name"`
	Description string    `json:"description,omitempty"`
	CreatedAt   time.Time `json:"created_at"`
	UpdatedAt   time.Time `json:"updated_at"`
}

// PCBTypeFromDomain конвертирует domain.PCBType в PCBTypeResponse.
func PCBTypeFromDomain(t domain.PCBType) PCBTypeResponse {
	return PCBTypeResponse{
		ID:          t.ID,
		Name:        t.Name,
		Description: t.Description,
		CreatedAt:   t.CreatedAt,
		UpdatedAt:   t.UpdatedAt,
	}
}

// Batch DTOs

// BatchRequest — запрос на создание или обновление партии.
type BatchRequest struct {
	Name            string    `json:"name"`
	Description     string    `json:"description,omitempty"`
	PCBTypeID       uuid.UUID `json:"pcb_type_id"`
	TestConfigID    uuid.UUID `json:"test_config_id,omitempty"`
	HardwareVersion string    `json:"hardware_version,omitempty"`
}

// BatchResponse — ответ с партией.
type BatchResponse struct {
	ID              uuid.UUID  `json:"id"`
	Name            string     `json:"name"`
	Description     string     `json:"description,omitempty"`
	PCBTypeID       uuid.UUID  `json:"pcb_type_id"`
	TestConfigID    *uuid.UUID `json:"test_config_id,omitempty"`
	HardwareVersion string     `json:"hardware_version,omitempty"`
	CreatedAt       time.Time  `json:"created_at"`
	UpdatedAt       time.Time  `json:"updated_at"`
}

// BatchFromDomain конвертирует domain.Batch в BatchResponse.
func BatchFromDomain(b domain.Batch) BatchResponse {
	resp := BatchResponse{
		ID:              b.ID,
		Name:            b.Name,
		Description:     b.Description,
		PCBTypeID:       b.PCBTypeID,
		HardwareVersion: b.HardwareVersion,
		CreatedAt:       b.CreatedAt,
		UpdatedAt:       b.UpdatedAt,
	}
	if b.TestConfigID != uuid.Nil {
		resp.TestConfigID = &b.TestConfigID
	}
	return resp
}

// PCB DTOs

// PCBRequest — запрос на регистрацию или обновление платы.
type PCBRequest struct {
	SerialNumber            string    `json:"serial_number"`
	BatchID                 uuid.UUID `json:"batch_id,omitempty"`
	HardwareModified        bool      `json:"hardware_modified"`
	ModifiedHardwareVersion string    `json:"modified_hardware_version,omitempty"`
}

// PCBResponse — ответ с платой.
type PCBResponse struct {
	ID                      uuid.UUID `json:"id"`
	SerialNumber            string    `json:"serial_number"`
	BatchID                 uuid.UUID `json:"batch_id"`
	HardwareModified        bool      `json:"hardware_modified"`
	ModifiedHardwareVersion string    `json:"modified_hardware_version,omitempty"`
	CreatedAt               time.Time `json:"created_at"`
	UpdatedAt               time.Time `json:"updated_at"`
}

// PCBFromDomain конвертирует domain.PCB в PCBResponse.
func PCBFromDomain(p domain.PCB) PCBResponse {
	return PCBResponse{
		ID:                      p.ID,
		SerialNumber:            p.SerialNumber,
		BatchID:                 p.BatchID,
		HardwareModified:        p.HardwareModified,
		ModifiedHardwareVersion: p.ModifiedHardwareVersion,
		CreatedAt:               p.CreatedAt,
		UpdatedAt:               p.UpdatedAt,
	}
}

// Execution DTOs

// SubmitStepRequest — ввод оператора по шагу.
type SubmitStepRequest struct {
	StepID uuid.UUID `json:"step_id"`
	Value  string    `json:"value"`
}

// ResultResponse — ответ с результатом шага.
type ResultResponse struct {
	ID          uuid.UUID                  `json:"id"`
	SessionID   uuid.UUID                  `json:"session_id"`
	StepID      *uuid.UUID                 `json:"step_id"`
	Kind        domain.StepKind            `json:"kind"`
	Label       string                     `json:"label"`
	Measurement *domain.MeasurementOutcome `json:"measurement,omitempty"`
	Question    *domain.QuestionOutcome    `json:"question,omitempty"`
	Instruction *domain.InstructionOutcome `json:"instruction,omitempty"`
	Passed      bool                       `json:"passed"`
	RawInput    string                     `json:"raw_input"`
	CreatedAt   time.Time                  `json:"created_at"`
}

// ResultFromDomain конвертирует domain.StepResult в ResultResponse.
// Результат удалённого шага отдаётся с step_id = null.
func ResultFromDomain(r domain.StepResult) ResultResponse {
	resp := ResultResponse{
		ID:          r.ID,
		SessionID:   r.SessionID,
		Kind:        r.Kind,
		Label:       r.Label,
		Measurement: r.Measurement,
		Question:    r.Question,
		Instruction: r.Instruction,
		Passed:      r.Passed,
		RawInput:    r.RawInput,
		CreatedAt:   r.CreatedAt,
	}
	if r.StepID != uuid.Nil {
		resp.StepID = &r.StepID
	}
	return resp
}

func resultsFromDomain(results []domain.StepResult) []ResultResponse {
	out := make([]ResultResponse, len(results))
	for i, r := range results {
		out[i] = ResultFromDomain(r)
	}
	return out
}

// SessionResponse — ответ с сессией.
type SessionResponse struct {
	ID           uuid.UUID      `json:"id"`
	PCBID        uuid.UUID      `json:"pcb_id"`
	TestConfigID uuid.UUID      `json:"test_config_id"`
	OperatorID   string         `json:"operator_id"`
	Notes        string         `json:"notes,omitempty"`
	Verdict      domain.Verdict `json:"verdict"`
	StartedAt    time.Time      `json:"started_at"`
	FinishedAt   *time.Time     `json:"finished_at,omitempty"`
	AbandonedAt  *time.Time     `json:"abandoned_at,omitempty"`
	UpdatedAt    time.Time      `json:"updated_at"`
}

// SessionFromDomain конвертирует domain.Session в SessionResponse.
func SessionFromDomain(s domain.Session) SessionResponse {
	return SessionResponse{
		ID:           s.ID,
		PCBID:        s.PCBID,
		TestConfigID: s.TestConfigID,
		OperatorID:   s.OperatorID,
		Notes:        s.Notes,
		Verdict:      s.Verdict,
		StartedAt:    s.StartedAt,
		FinishedAt:   s.FinishedAt,
		AbandonedAt:  s.AbandonedAt,
		UpdatedAt:    s.UpdatedAt,
	}
}

// ExecutionStateResponse — состояние выполнения процедуры на плате.
type ExecutionStateResponse struct {
	PCB             PCBResponse        `json:"pcb"`
	Batch           BatchResponse      `json:"batch"`
	HardwareVersion string             `json:"hardware_version,omitempty"`
	TestConfig      TestConfigResponse `json:"test_config"`
	Session         *SessionResponse   `json:"session"`
	Results         []ResultResponse   `json:"results"`
	NextStep        *StepResponse      `json:"next_step"`
	Progress        engine.Progress    `json:"progress"`
}

// ExecutionStateFromService конвертирует execution.State в ответ.
func ExecutionStateFromService(st *execution.State) ExecutionStateResponse {
	resp := ExecutionStateResponse{
		PCB:             PCBFromDomain(*st.PCB),
		Batch:           BatchFromDomain(*st.Batch),
		HardwareVersion: st.PCB.EffectiveHardwareVersion(st.Batch),
		TestConfig:      TestConfigFromDomain(*st.Config),
		Results:         resultsFromDomain(st.Results),
		Progress:        st.Progress,
	}
	if st.Session != nil {
		sess := SessionFromDomain(*st.Session)
		resp.Session = &sess
	}
	if st.NextStep != nil {
		next := StepFromDomain(*st.NextStep)
		resp.NextStep = &next
	}
	return resp
}

// SubmitStepResponse — записанный результат и новое состояние.
type SubmitStepResponse struct {
	Result ResultResponse         `json:"result"`
	State  ExecutionStateResponse `json:"state"`
}

// Session DTOs

// SessionListItemResponse — сессия в списке.
type SessionListItemResponse struct {
	SessionResponse
	SerialNumber string `json:"serial_number"`
	SignedOff    bool   `json:"signed_off"`
}

// SessionListItemFromRepo конвертирует repo.SessionListItem в ответ.
func SessionListItemFromRepo(item repo.SessionListItem) SessionListItemResponse {
	return SessionListItemResponse{
		SessionResponse: SessionFromDomain(item.Session),
		SerialNumber:    item.SerialNumber,
		SignedOff:       item.SignedOff,
	}
}

// SignoffResponse — ответ с подписью QA.
type SignoffResponse struct {
	SessionID   uuid.UUID `json:"session_id"`
	QAUserID    string    `json:"qa_user_id"`
	Notes       string    `json:"notes,omitempty"`
	SignedOffAt time.Time `json:"signed_off_at"`
}

// SignoffFromDomain конвертирует domain.QASignoff в SignoffResponse.
func SignoffFromDomain(so domain.QASignoff) SignoffResponse {
	return SignoffResponse{
		SessionID:   so.SessionID,
		QAUserID:    so.QAUserID,
		Notes:       so.Notes,
		SignedOffAt: so.SignedOffAt,
	}
}

// SessionDetailResponse — сессия с результатами, статистикой и подписью.
type SessionDetailResponse struct {
	Session    SessionResponse      `json:"session"`
	TestConfig TestConfigResponse   `json:"test_config"`
	Results    []ResultResponse     `json:"results"`
	Summary    []engine.KindSummary `json:"summary"`
	Progress   engine.Progress      `json:"progress"`
	Signoff    *SignoffResponse     `json:"signoff"`
	AllPassed  bool                 `json:"all_passed"`
}

// SessionDetailFromService конвертирует execution.SessionDetail в ответ.
func SessionDetailFromService(d *execution.SessionDetail) SessionDetailResponse {
	resp := SessionDetailResponse{
		Session:    SessionFromDomain(*d.Session),
		TestConfig: TestConfigFromDomain(*d.Config),
		Results:    resultsFromDomain(d.Results),
		Summary:    d.Summary,
		Progress:   d.Progress,
		AllPassed:  d.AllPassed,
	}
	if d.Signoff != nil {
		so := SignoffFromDomain(*d.Signoff)
		resp.Signoff = &so
	}
	return resp
}

// NotesRequest — запрос с заметками (завершение, подпись).
type NotesRequest struct {
	Notes string `json:"notes,omitempty"`
}

// ReplaceResultsRequest — исправление результатов сессии.
type ReplaceResultsRequest struct {
	Notes   string              `json:"notes,omitempty"`
	Results []SubmitStepRequest `json:"results"`
}

// VerdictResponse — итог сессии.
type VerdictResponse struct {
	SessionID uuid.UUID      `json:"session_id"`
	Verdict   domain.Verdict `json:"verdict"`
}

// NextStepResponse — следующий невыполненный шаг.
type NextStepResponse struct {
	Step *StepResponse `json:"step"`
	Done bool          `json:"done"`
}

// AuditEventResponse — событие журнала аудита.
type AuditEventResponse struct {
	ID         uuid.UUID        `json:"id"`
	Type       domain.EventType `json:"type"`
	OperatorID string           `json:"operator_id,omitempty"`
	Payload    map[string]any   `json:"payload,omitempty"`
	OccurredAt time.Time        `json:"occurred_at"`
}

// AuditEventFromDomain конвертирует domain.AuditEvent в AuditEventResponse.
func AuditEventFromDomain(e domain.AuditEvent) AuditEventResponse {
	return AuditEventResponse{
		ID:         e.ID,
		Type:       e.Type,
		OperatorID: e.OperatorID,
		Payload:    e.Payload,
		OccurredAt: e.OccurredAt,
	}
}
