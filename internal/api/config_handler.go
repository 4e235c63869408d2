package api

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"strings"

	"github.com/google/uuid"
	"github.com/shaiso/ModuleTrack/internal/engine"
	"github.com/shaiso/ModuleTrack/internal/importer"
	"github.com/shaiso/ModuleTrack/internal/repo"
)

// ListTestConfigs возвращает список процедур.
// GET /api/v1/test-configs
func (h *Handler) ListTestConfigs(w http.ResponseWriter, r *http.Request) {
	configs, err := h.configs.List(r.Context())
	if HandleError(w, h.logger, err, "") {
		return
	}

	result := make([]TestConfigResponse, len(configs))
	for i, c := range configs {
		result[i] = TestConfigFromDomain(c)
	}

	List(w, result, len(result))
}

// CreateTestConfig создаёт процедуру вместе с шагами.
// POST /api/v1/test-configs
func (h *Handler) CreateTestConfig(w http.ResponseWriter, r *http.Request) {
	var req TestConfigRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		BadRequest(w, "invalid request body")
		return
	}

	cfg := req.ToDomain()
	engine.Normalize(cfg)
	if HandleError(w, h.logger, engine.Validate(cfg), "") {
		return
	}
	if !h.checkConfigName(w, r, cfg.Name, uuid.Nil) {
		return
	}

	if HandleError(w, h.logger, h.configs.Create(r.Context(), cfg), "") {
		return
	}

	h.logger.Info("test config created", "test_config_id", cfg.ID, "name", cfg.Name, "steps", len(cfg.Steps))
	Created(w, TestConfigFromDomain(*cfg))
}

// GetTestConfig возвращает процедуру по ID.
// GET /api/v1/test-configs/{id}
func (h *Handler) GetTestConfig(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(r, "id")
	if !ok {
		BadRequest(w, "invalid test config id")
		return
	}

	cfg, err := h.configs.GetByID(r.Context(), id)
	if HandleError(w, h.logger, err, "test config not found") {
		return
	}

	Success(w, TestConfigFromDomain(*cfg))
}

// UpdateTestConfig заменяет название, описание и список шагов.
// Шаги с ID существующих шагов сохраняют идентичность,
// отсутствующие в запросе удаляются.
// PUT /api/v1/test-configs/{id}
func (h *Handler) UpdateTestConfig(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(r, "id")
	if !ok {
		BadRequest(w, "invalid test config id")
		return
	}

	var req TestConfigRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		BadRequest(w, "invalid request body")
		return
	}

	if _, err := h.configs.GetByID(r.Context(), id); HandleError(w, h.logger, err, "test config not found") {
		return
	}

	cfg := req.ToDomain()
	cfg.ID = id
	engine.Normalize(cfg)
	if HandleError(w, h.logger, engine.Validate(cfg), "") {
		return
	}
	if !h.checkConfigName(w, r, cfg.Name, id) {
		return
	}

	if HandleError(w, h.logger, h.configs.Update(r.Context(), cfg), "test config not found") {
		return
	}

	Success(w, TestConfigFromDomain(*cfg))
}

// DeleteTestConfig удаляет процедуру. Требует confirm_name.
// DELETE /api/v1/test-configs/{id}
func (h *Handler) DeleteTestConfig(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(r, "id")
	if !ok {
		BadRequest(w, "invalid test config id")
		return
	}

	var req DeleteRequest
	if err := decodeOptional(r, &req); err != nil {
		BadRequest(w, "invalid request body")
		return
	}

	cfg, err := h.configs.GetByID(r.Context(), id)
	if HandleError(w, h.logger, err, "test config not found") {
		return
	}
	if strings.TrimSpace(req.ConfirmName) != cfg.Name {
		BadRequest(w, "confirm_name does not match test config name")
		return
	}

	if HandleError(w, h.logger, h.configs.Delete(r.Context(), id), "test config not found") {
		return
	}

	h.logger.Info("test config deleted", "test_config_id", id, "name", cfg.Name)
	NoContent(w)
}

// ReorderSteps выставляет шагам порядок по списку ID.
// PUT /api/v1/test-configs/{id}/order
func (h *Handler) ReorderSteps(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(r, "id")
	if !ok {
		BadRequest(w, "invalid test config id")
		return
	}

	var req ReorderStepsRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		BadRequest(w, "invalid request body")
		return
	}

	cfg, err := h.configs.GetByID(r.Context(), id)
	if HandleError(w, h.logger, err, "test config not found") {
		return
	}

	for _, stepID := range req.StepIDs {
		if _, ok := cfg.Step(stepID); !ok {
			NotFound(w, "step "+stepID.String()+" not found in test config")
			return
		}
	}

	if HandleError(w, h.logger, engine.Reorder(cfg, req.StepIDs), "") {
		return
	}
	if HandleError(w, h.logger, h.configs.UpdateStepOrders(r.Context(), cfg), "test config not found") {
		return
	}

	Success(w, TestConfigFromDomain(*cfg))
}

// MoveStep перемещает шаг на одну позицию вверх или вниз.
// На границе процедуры ничего не меняется.
// POST /api/v1/test-configs/{id}/steps/{stepID}/move
func (h *Handler) MoveStep(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(r, "id")
	if !ok {
		BadRequest(w, "invalid test config id")
		return
	}
	stepID, ok := pathID(r, "stepID")
	if !ok {
		BadRequest(w, "invalid step id")
		return
	}

	var req MoveStepRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		BadRequest(w, "invalid request body")
		return
	}
	if req.Direction != engine.DirectionUp && req.Direction != engine.DirectionDown {
		BadRequest(w, "direction must be up or down")
		return
	}

	cfg, err := h.configs.GetByID(r.Context(), id)
	if HandleError(w, h.logger, err, "test config not found") {
		return
	}
	if _, ok := cfg.Step(stepID); !ok {
		NotFound(w, "step not found in test config")
		return
	}

	moved, err := engine.MoveStep(cfg, stepID, req.Direction)
	if HandleError(w, h.logger, err, "") {
		return
	}
	if moved {
		if HandleError(w, h.logger, h.configs.UpdateStepOrders(r.Context(), cfg), "test config not found") {
			return
		}
	}

	Success(w, TestConfigFromDomain(*cfg))
}

// ImportTestConfigs загружает процедуры из YAML.
// ?replace=true заменяет шаги процедур с совпадающими названиями.
// POST /api/v1/test-configs/import
func (h *Handler) ImportTestConfigs(w http.ResponseWriter, r *http.Request) {
	var opts importer.Options
	if v := r.URL.Query().Get("replace"); v != "" {
		replace, err := strconv.ParseBool(v)
		if err != nil {
			BadRequest(w, "invalid replace flag")
			return
		}
		opts.Replace = replace
	}

	res, err := importer.Import(r.Context(), h.configs, http.MaxBytesReader(w, r.Body, maxBodyBytes), opts)
	if HandleError(w, h.logger, err, "") {
		return
	}

	h.logger.Info("test configs imported", "created", len(res.Created), "updated", len(res.Updated))
	Success(w, res)
}

// checkConfigName проверяет уникальность названия без учёта регистра.
// self — ID обновляемой процедуры (uuid.Nil при создании).
func (h *Handler) checkConfigName(w http.ResponseWriter, r *http.Request, name string, self uuid.UUID) bool {
	existing, err := h.configs.GetByName(r.Context(), name)
	switch {
	case errors.Is(err, repo.ErrNotFound):
		return true
	case err != nil:
		InternalError(w, h.logger, err)
		return false
	case existing.ID != self:
		Conflict(w, "test config with this name already exists")
		return false
	default:
		return true
	}
}
