package api

import (
	"encoding/json"
	"net/http"

	"github.com/google/uuid"
	"github.com/shaiso/ModuleTrack/internal/telemetry"
)

// GetExecution возвращает состояние выполнения процедуры на плате
// для текущего оператора: процедуру, открытую сессию, результаты,
// следующий шаг и прогресс.
// GET /api/v1/pcbs/{id}/execution
func (h *Handler) GetExecution(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(r, "id")
	if !ok {
		BadRequest(w, "invalid pcb id")
		return
	}

	st, err := h.execution.State(r.Context(), operator(r), id)
	if HandleError(w, h.logger, err, "pcb not found") {
		return
	}

	Success(w, ExecutionStateFromService(st))
}

// SubmitStep принимает ввод оператора по шагу.
// Первый принятый шаг открывает сессию. Некорректный ввод — 400,
// результат не записывается.
// POST /api/v1/pcbs/{id}/execution
func (h *Handler) SubmitStep(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(r, "id")
	if !ok {
		BadRequest(w, "invalid pcb id")
		return
	}

	var req SubmitStepRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		BadRequest(w, "invalid request body")
		return
	}
	if req.StepID == uuid.Nil {
		BadRequest(w, "step_id is required")
		return
	}

	res, st, err := h.execution.SubmitStep(r.Context(), operator(r), id, req.StepID, req.Value)
	if HandleError(w, h.logger, err, "pcb not found") {
		return
	}

	telemetry.WithSessionID(telemetry.FromContext(r.Context()), res.SessionID.String()).
		Debug("step submitted", "step_id", req.StepID, "passed", res.Passed)

	Created(w, SubmitStepResponse{
		Result: ResultFromDomain(*res),
		State:  ExecutionStateFromService(st),
	})
}
