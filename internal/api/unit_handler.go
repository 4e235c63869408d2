package api

import (
	"encoding/json"
	"net/http"
	"strings"

	"github.com/google/uuid"
	"github.com/shaiso/ModuleTrack/internal/domain"
)

// --- PCB types ---

// ListPCBTypes возвращает список типов плат.
// GET /api/v1/pcb-types
func (h *Handler) ListPCBTypes(w http.ResponseWriter, r *http.Request) {
	types, err := h.pcbTypes.List(r.Context())
	if HandleError(w, h.logger, err, "") {
		return
	}

	result := make([]PCBTypeResponse, len(types))
	for i, t := range types {
		result[i] = PCBTypeFromDomain(t)
	}

	List(w, result, len(result))
}

// CreatePCBType создаёт тип платы.
// POST /api/v1/pcb-types
func (h *Handler) CreatePCBType(w http.ResponseWriter, r *http.Request) {
	var req PCBTypeRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		BadRequest(w, "invalid request body")
		return
	}

	name := strings.TrimSpace(req.Name)
	if name == "" {
		BadRequest(w, "name is required")
		return
	}

	t := &domain.PCBType{Name: name, Description: req.Description}
	if HandleError(w, h.logger, h.pcbTypes.Create(r.Context(), t), "") {
		return
	}

	Created(w, PCBTypeFromDomain(*t))
}

// GetPCBType возвращает тип платы по ID.
// GET /api/v1/pcb-types/{id}
func (h *Handler) GetPCBType(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(r, "id")
	if !ok {
		BadRequest(w, "invalid pcb type id")
		return
	}

	t, err := h.pcbTypes.GetByID(r.Context(), id)
	if HandleError(w, h.logger, err, "pcb type not found") {
		return
	}

	Success(w, PCBTypeFromDomain(*t))
}

// UpdatePCBType обновляет тип платы.
// PUT /api/v1/pcb-types/{id}
func (h *Handler) UpdatePCBType(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(r, "id")
	if !ok {
		BadRequest(w, "invalid pcb type id")
		return
	}

	var req PCBTypeRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		BadRequest(w, "invalid request body")
		return
	}

	t, err := h.pcbTypes.GetByID(r.Context(), id)
	if HandleError(w, h.logger, err, "pcb type not found") {
		return
	}

	if name := strings.TrimSpace(req.Name); name != "" {
		t.Name = name
	}
	t.Description = req.Description

	if HandleError(w, h.logger, h.pcbTypes.Update(r.Context(), t), "pcb type not found") {
		return
	}

	Success(w, PCBTypeFromDomain(*t))
}

// DeletePCBType удаляет тип платы вместе с его партиями. Требует confirm_name.
// DELETE /api/v1/pcb-types/{id}
func (h *Handler) DeletePCBType(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(r, "id")
	if !ok {
		BadRequest(w, "invalid pcb type id")
		return
	}

	var req DeleteRequest
	if err := decodeOptional(r, &req); err != nil {
		BadRequest(w, "invalid request body")
		return
	}

	t, err := h.pcbTypes.GetByID(r.Context(), id)
	if HandleError(w, h.logger, err, "pcb type not found") {
		return
	}
	if strings.TrimSpace(req.ConfirmName) != t.Name {
		BadRequest(w, "confirm_name does not match pcb type name")
		return
	}

	if HandleError(w, h.logger, h.pcbTypes.Delete(r.Context(), id), "pcb type not found") {
		return
	}

	h.logger.Info("pcb type deleted", "pcb_type_id", id, "name", t.Name)
	NoContent(w)
}

// --- Batches ---

// ListBatches возвращает список партий.
// ?pcb_type_id=<uuid> ограничивает выборку типом платы.
// GET /api/v1/batches
func (h *Handler) ListBatches(w http.ResponseWriter, r *http.Request) {
	var pcbTypeID *uuid.UUID
	if v := r.URL.Query().Get("pcb_type_id"); v != "" {
		id, err := uuid.Parse(v)
		if err != nil {
			BadRequest(w, "invalid pcb_type_id")
			return
		}
		pcbTypeID = &id
	}

	batches, err := h.units.ListBatches(r.Context(), pcbTypeID)
	if HandleError(w, h.logger, err, "") {
		return
	}

	result := make([]BatchResponse, len(batches))
	for i, b := range batches {
		result[i] = BatchFromDomain(b)
	}

	List(w, result, len(result))
}

// CreateBatch создаёт партию.
// POST /api/v1/batches
func (h *Handler) CreateBatch(w http.ResponseWriter, r *http.Request) {
	var req BatchRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		BadRequest(w, "invalid request body")
		return
	}

	b := &domain.Batch{}
	if !applyBatchRequest(w, b, req) {
		return
	}

	if HandleError(w, h.logger, h.units.CreateBatch(r.Context(), b), "") {
		return
	}

	h.logger.Info("batch created", "batch_id", b.ID, "name", b.Name, "test_config_id", b.TestConfigID)
	Created(w, BatchFromDomain(*b))
}

// GetBatch возвращает партию по ID.
// GET /api/v1/batches/{id}
func (h *Handler) GetBatch(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(r, "id")
	if !ok {
		BadRequest(w, "invalid batch id")
		return
	}

	b, err := h.units.GetBatch(r.Context(), id)
	if HandleError(w, h.logger, err, "batch not found") {
		return
	}

	Success(w, BatchFromDomain(*b))
}

// UpdateBatch обновляет партию.
// PUT /api/v1/batches/{id}
func (h *Handler) UpdateBatch(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(r, "id")
	if !ok {
		BadRequest(w, "invalid batch id")
		return
	}

	var req BatchRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		BadRequest(w, "invalid request body")
		return
	}

	b, err := h.units.GetBatch(r.Context(), id)
	if HandleError(w, h.logger, err, "batch not found") {
		return
	}
	if !applyBatchRequest(w, b, req) {
		return
	}

	if HandleError(w, h.logger, h.units.UpdateBatch(r.Context(), b), "batch not found") {
		return
	}

	Success(w, BatchFromDomain(*b))
}

// DeleteBatch удаляет партию вместе с платами. Требует confirm_name.
// DELETE /api/v1/batches/{id}
func (h *Handler) DeleteBatch(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(r, "id")
	if !ok {
		BadRequest(w, "invalid batch id")
		return
	}

	var req DeleteRequest
	if err := decodeOptional(r, &req); err != nil {
		BadRequest(w, "invalid request body")
		return
	}

	b, err := h.units.GetBatch(r.Context(), id)
	if HandleError(w, h.logger, err, "batch not found") {
		return
	}
	if strings.TrimSpace(req.ConfirmName) != b.Name {
		BadRequest(w, "confirm_name does not match batch name")
		return
	}

	if HandleError(w, h.logger, h.units.DeleteBatch(r.Context(), id), "batch not found") {
		return
	}

	h.logger.Info("batch deleted", "batch_id", id, "name", b.Name)
	NoContent(w)
}

func applyBatchRequest(w http.ResponseWriter, b *domain.Batch, req BatchRequest) bool {
	name := strings.TrimSpace(req.Name)
	if name == "" {
		BadRequest(w, "name is required")
		return false
	}
	if req.PCBTypeID == uuid.Nil {
		BadRequest(w, "pcb_type_id is required")
		return false
	}

	b.Name = name
	b.Description = req.Description
	b.PCBTypeID = req.PCBTypeID
	b.TestConfigID = req.TestConfigID
	b.HardwareVersion = strings.TrimSpace(req.HardwareVersion)
	return true
}

// --- PCBs ---

// ListBatchPCBs возвращает платы партии.
// GET /api/v1/batches/{id}/pcbs
func (h *Handler) ListBatchPCBs(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(r, "id")
	if !ok {
		BadRequest(w, "invalid batch id")
		return
	}

	if _, err := h.units.GetBatch(r.Context(), id); HandleError(w, h.logger, err, "batch not found") {
		return
	}

	pcbs, err := h.units.ListPCBs(r.Context(), id)
	if HandleError(w, h.logger, err, "") {
		return
	}

	result := make([]PCBResponse, len(pcbs))
	for i, p := range pcbs {
		result[i] = PCBFromDomain(p)
	}

	List(w, result, len(result))
}

// CreatePCB регистрирует плату в партии.
// POST /api/v1/batches/{id}/pcbs
func (h *Handler) CreatePCB(w http.ResponseWriter, r *http.Request) {
	batchID, ok := pathID(r, "id")
	if !ok {
		BadRequest(w, "invalid batch id")
		return
	}

	var req PCBRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		BadRequest(w, "invalid request body")
		return
	}

	serial := strings.TrimSpace(req.SerialNumber)
	if serial == "" {
		BadRequest(w, "serial_number is required")
		return
	}

	if _, err := h.units.GetBatch(r.Context(), batchID); HandleError(w, h.logger, err, "batch not found") {
		return
	}

	p := &domain.PCB{
		SerialNumber:            serial,
		BatchID:                 batchID,
		HardwareModified:        req.HardwareModified,
		ModifiedHardwareVersion: strings.TrimSpace(req.ModifiedHardwareVersion),
	}
	if HandleError(w, h.logger, h.units.CreatePCB(r.Context(), p), "") {
		return
	}

	Created(w, PCBFromDomain(*p))
}

// FindPCB ищет плату по серийному номеру.
// GET /api/v1/pcbs?serial_number=<serial>
func (h *Handler) FindPCB(w http.ResponseWriter, r *http.Request) {
	serial := strings.TrimSpace(r.URL.Query().Get("serial_number"))
	if serial == "" {
		BadRequest(w, "serial_number is required")
		return
	}

	p, err := h.units.GetPCBBySerial(r.Context(), serial)
	if HandleError(w, h.logger, err, "pcb not found") {
		return
	}

	Success(w, PCBFromDomain(*p))
}

// GetPCB возвращает плату по ID.
// GET /api/v1/pcbs/{id}
func (h *Handler) GetPCB(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(r, "id")
	if !ok {
		BadRequest(w, "invalid pcb id")
		return
	}

	p, err := h.units.GetPCB(r.Context(), id)
	if HandleError(w, h.logger, err, "pcb not found") {
		return
	}

	Success(w, PCBFromDomain(*p))
}

// UpdatePCB обновляет плату. Пустой batch_id оставляет плату в её партии.
// PUT /api/v1/pcbs/{id}
func (h *Handler) UpdatePCB(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(r, "id")
	if !ok {
		BadRequest(w, "invalid pcb id")
		return
	}

	var req PCBRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		BadRequest(w, "invalid request body")
		return
	}

	p, err := h.units.GetPCB(r.Context(), id)
	if HandleError(w, h.logger, err, "pcb not found") {
		return
	}

	if serial := strings.TrimSpace(req.SerialNumber); serial != "" {
		p.SerialNumber = serial
	}
	if req.BatchID != uuid.Nil {
		p.BatchID = req.BatchID
	}
	p.HardwareModified = req.HardwareModified
	p.ModifiedHardwareVersion = strings.TrimSpace(req.ModifiedHardwareVersion)

	if HandleError(w, h.logger, h.units.UpdatePCB(r.Context(), p), "pcb not found") {
		return
	}

	Success(w, PCBFromDomain(*p))
}

// DeletePCB удаляет плату вместе с её сессиями.
// confirm_name должен совпадать с серийным номером.
// DELETE /api/v1/pcbs/{id}
func (h *Handler) DeletePCB(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(r, "id")
	if !ok {
		BadRequest(w, "invalid pcb id")
		return
	}

	var req DeleteRequest
	if err := decodeOptional(r, &req); err != nil {
		BadRequest(w, "invalid request body")
		return
	}

	p, err := h.units.GetPCB(r.Context(), id)
	if HandleError(w, h.logger, err, "pcb not found") {
		return
	}
	if strings.TrimSpace(req.ConfirmName) != p.SerialNumber {
		BadRequest(w, "confirm_name does not match serial number")
		return
	}

	if HandleError(w, h.logger, h.units.DeletePCB(r.Context(), id), "pcb not found") {
		return
	}

	h.logger.Info("pcb deleted", "pcb_id", id, "serial_number", p.SerialNumber)
	NoContent(w)
}
