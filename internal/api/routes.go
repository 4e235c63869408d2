package api

import (
	"net/http"

	"github.com/shaiso/ModuleTrack/internal/domain"
)

// RegisterRoutes регистрирует все маршруты API.
func (h *Handler) RegisterRoutes(mux *http.ServeMux) {
	// Middleware chain
	chain := Chain(
		Recovery(h.logger),
		Logging(h.logger),
	)

	// route оборачивает обработчик проверкой группы.
	// Пустая группа — любой аутентифицированный оператор.
	route := func(group string, fn http.HandlerFunc) http.Handler {
		return chain(Require(h.logger, group)(fn))
	}

	// Test configs
	mux.Handle("GET /api/v1/test-configs", route("", h.ListTestConfigs))
	mux.Handle("POST /api/v1/test-configs", route(domain.GroupManageTestConfigs, h.CreateTestConfig))
	mux.Handle("POST /api/v1/test-configs/import", route(domain.GroupManageTestConfigs, h.ImportTestConfigs))
	mux.Handle("GET /api/v1/test-configs/{id}", route("", h.GetTestConfig))
	mux.Handle("PUT /api/v1/test-configs/{id}", route(domain.GroupManageTestConfigs, h.UpdateTestConfig))
	mux.Handle("DELETE /api/v1/test-configs/{id}", route(domain.GroupManageTestConfigs, h.DeleteTestConfig))
	mux.Handle("PUT /api/v1/test-configs/{id}/order", route(domain.GroupManageTestConfigs, h.ReorderSteps))
	mux.Handle("POST /api/v1/test-configs/{id}/steps/{stepID}/move", route(domain.GroupManageTestConfigs, h.MoveStep))

	// PCB types
	mux.Handle("GET /api/v1/pcb-types", route("", h.ListPCBTypes))
	mux.Handle("POST /api/v1/pcb-types", route(domain.GroupManagePCBTypes, h.CreatePCBType))
	mux.Handle("GET /api/v1/pcb-types/{id}", route("", h.GetPCBType))
	mux.Handle("PUT /api/v1/pcb-types/{id}", route(domain.GroupManagePCBTypes, h.UpdatePCBType))
	mux.Handle("DELETE /api/v1/pcb-types/{id}", route(domain.GroupManagePCBTypes, h.DeletePCBType))

	// Batches
	mux.Handle("GET /api/v1/batches", route("", h.ListBatches))
	mux.Handle("POST /api/v1/batches", route(domain.GroupManageBatches, h.CreateBatch))
	mux.Handle("GET /api/v1/batches/{id}", route("", h.GetBatch))
	mux.Handle("PUT /api/v1/batches/{id}", route(domain.GroupManageBatches, h.UpdateBatch))
	mux.Handle("DELETE /api/v1/batches/{id}", route(domain.GroupManageBatches, h.DeleteBatch))
	mux.Handle("GET /api/v1/batches/{id}/pcbs", route("", h.ListBatchPCBs))
	mux.Handle("POST /api/v1/batches/{id}/pcbs", route(domain.GroupManageBatches, h.CreatePCB))

	// PCBs
	mux.Handle("GET /api/v1/pcbs", route("", h.FindPCB))
	mux.Handle("GET /api/v1/pcbs/{id}", route("", h.GetPCB))
	mux.Handle("PUT /api/v1/pcbs/{id}", route(domain.GroupManageBatches, h.UpdatePCB))
	mux.Handle("DELETE /api/v1/pcbs/{id}", route(domain.GroupManageBatches, h.DeletePCB))

	// Execution
	mux.Handle("GET /api/v1/pcbs/{id}/execution", route(domain.GroupTestOperator, h.GetExecution))
	mux.Handle("POST /api/v1/pcbs/{id}/execution", route(domain.GroupTestOperator, h.SubmitStep))

	// Sessions
	mux.Handle("GET /api/v1/sessions", route("", h.ListSessions))
	mux.Handle("GET /api/v1/sessions/{id}", route("", h.GetSession))
	mux.Handle("GET /api/v1/sessions/{id}/next-step", route("", h.GetNextStep))
	mux.Handle("GET /api/v1/sessions/{id}/progress", route("", h.GetProgress))
	mux.Handle("GET /api/v1/sessions/{id}/events", route("", h.ListSessionEvents))
	mux.Handle("POST /api/v1/sessions/{id}/verdict", route(domain.GroupTestOperator, h.DetermineVerdict))
	mux.Handle("POST /api/v1/sessions/{id}/complete", route(domain.GroupTestOperator, h.CompleteSession))
	mux.Handle("PUT /api/v1/sessions/{id}/results", route(domain.GroupTestOperator, h.ReplaceResults))
	mux.Handle("POST /api/v1/sessions/{id}/signoff", route(domain.GroupQASignoff, h.SignOff))
	mux.Handle("DELETE /api/v1/sessions/{id}", route(domain.GroupTestOperator, h.DeleteSession))
}
