package api

import (
	"encoding/json"
	"net/http"
	"strconv"

	"github.com/google/uuid"
	"github.com/shaiso/ModuleTrack/internal/execution"
	"github.com/shaiso/ModuleTrack/internal/repo"
)

// ListSessions возвращает страницу сессий.
//
// Query:
//   - pcb_id, serial_number, operator_id — точные фильтры
//   - search — подстрока серийного номера, оператора или итога
//   - order — started_at | serial_number | operator_id | verdict, "-" для убывания
//   - limit, offset — пагинация
//
// GET /api/v1/sessions
func (h *Handler) ListSessions(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()

	filter := repo.SessionFilter{
		SerialNumber: q.Get("serial_number"),
		OperatorID:   q.Get("operator_id"),
		Search:       q.Get("search"),
		Order:        q.Get("order"),
	}

	if v := q.Get("pcb_id"); v != "" {
		id, err := uuid.Parse(v)
		if err != nil {
			BadRequest(w, "invalid pcb_id")
			return
		}
		filter.PCBID = &id
	}
	if v := q.Get("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 0 {
			BadRequest(w, "invalid limit")
			return
		}
		filter.Limit = n
	}
	if v := q.Get("offset"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 0 {
			BadRequest(w, "invalid offset")
			return
		}
		filter.Offset = n
	}

	items, total, err := h.sessions.List(r.Context(), filter)
	if HandleError(w, h.logger, err, "") {
		return
	}

	result := make([]SessionListItemResponse, len(items))
	for i, item := range items {
		result[i] = SessionListItemFromRepo(item)
	}

	List(w, result, total)
}

// GetSession возвращает сессию с результатами, статистикой по видам шагов
// и подписью QA.
// GET /api/v1/sessions/{id}
func (h *Handler) GetSession(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(r, "id")
	if !ok {
		BadRequest(w, "invalid session id")
		return
	}

	d, err := h.execution.Detail(r.Context(), id)
	if HandleError(w, h.logger, err, "session not found") {
		return
	}

	Success(w, SessionDetailFromService(d))
}

// GetNextStep возвращает первый невыполненный шаг сессии.
// GET /api/v1/sessions/{id}/next-step
func (h *Handler) GetNextStep(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(r, "id")
	if !ok {
		BadRequest(w, "invalid session id")
		return
	}

	step, err := h.execution.NextStep(r.Context(), id)
	if HandleError(w, h.logger, err, "session not found") {
		return
	}

	resp := NextStepResponse{Done: step == nil}
	if step != nil {
		s := StepFromDomain(*step)
		resp.Step = &s
	}
	Success(w, resp)
}

// GetProgress возвращает прогресс сессии.
// GET /api/v1/sessions/{id}/progress
func (h *Handler) GetProgress(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(r, "id")
	if !ok {
		BadRequest(w, "invalid session id")
		return
	}

	p, err := h.execution.Progress(r.Context(), id)
	if HandleError(w, h.logger, err, "session not found") {
		return
	}

	Success(w, p)
}

// DetermineVerdict пересчитывает и сохраняет итог сессии.
// POST /api/v1/sessions/{id}/verdict
func (h *Handler) DetermineVerdict(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(r, "id")
	if !ok {
		BadRequest(w, "invalid session id")
		return
	}

	v, err := h.execution.DetermineOverallResult(r.Context(), id)
	if HandleError(w, h.logger, err, "session not found") {
		return
	}

	Success(w, VerdictResponse{SessionID: id, Verdict: v})
}

// CompleteSession завершает сессию техником и вычисляет итог.
// POST /api/v1/sessions/{id}/complete
func (h *Handler) CompleteSession(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(r, "id")
	if !ok {
		BadRequest(w, "invalid session id")
		return
	}

	var req NotesRequest
	if err := decodeOptional(r, &req); err != nil {
		BadRequest(w, "invalid request body")
		return
	}

	sess, err := h.execution.Complete(r.Context(), operator(r), id, req.Notes)
	if HandleError(w, h.logger, err, "session not found") {
		return
	}

	Success(w, SessionFromDomain(*sess))
}

// ReplaceResults заменяет все результаты сессии.
// Любой некорректный ввод отклоняет запрос целиком.
// PUT /api/v1/sessions/{id}/results
func (h *Handler) ReplaceResults(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(r, "id")
	if !ok {
		BadRequest(w, "invalid session id")
		return
	}

	var req ReplaceResultsRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		BadRequest(w, "invalid request body")
		return
	}

	inputs := make([]execution.StepInput, len(req.Results))
	for i, res := range req.Results {
		inputs[i] = execution.StepInput{StepID: res.StepID, Raw: res.Value}
	}

	d, err := h.execution.ReplaceResults(r.Context(), operator(r), id, req.Notes, inputs)
	if HandleError(w, h.logger, err, "session not found") {
		return
	}

	Success(w, SessionDetailFromService(d))
}

// SignOff записывает подпись QA под завершённой сессией.
// POST /api/v1/sessions/{id}/signoff
func (h *Handler) SignOff(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(r, "id")
	if !ok {
		BadRequest(w, "invalid session id")
		return
	}

	var req NotesRequest
	if err := decodeOptional(r, &req); err != nil {
		BadRequest(w, "invalid request body")
		return
	}

	so, err := h.execution.SignOff(r.Context(), operator(r), id, req.Notes)
	if HandleError(w, h.logger, err, "session not found") {
		return
	}

	Created(w, SignoffFromDomain(*so))
}

// DeleteSession удаляет сессию вместе с результатами.
// DELETE /api/v1/sessions/{id}
func (h *Handler) DeleteSession(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(r, "id")
	if !ok {
		BadRequest(w, "invalid session id")
		return
	}

	if HandleError(w, h.logger, h.execution.Delete(r.Context(), id), "session not found") {
		return
	}

	NoContent(w)
}

// ListSessionEvents возвращает журнал аудита сессии.
// GET /api/v1/sessions/{id}/events
func (h *Handler) ListSessionEvents(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(r, "id")
	if !ok {
		BadRequest(w, "invalid session id")
		return
	}

	events, err := h.audit.ListBySession(r.Context(), id)
	if HandleError(w, h.logger, err, "") {
		return
	}

	result := make([]AuditEventResponse, len(events))
	for i, e := range events {
		result[i] = AuditEventFromDomain(e)
	}

	List(w, result, len(result))
}
