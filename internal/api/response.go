package api

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"

	"github.com/shaiso/ModuleTrack/internal/engine"
	"github.com/shaiso/ModuleTrack/internal/execution"
	"github.com/shaiso/ModuleTrack/internal/importer"
	"github.com/shaiso/ModuleTrack/internal/repo"
)

// ErrorCode — код ошибки API.
type ErrorCode string

const (
	ErrCodeBadRequest     ErrorCode = "BAD_REQUEST"
	ErrCodeUnauthorized   ErrorCode = "UNAUTHORIZED"
	ErrCodeForbidden      ErrorCode = "FORBIDDEN"
	ErrCodeNotFound       ErrorCode = "NOT_FOUND"
	ErrCodeConflict       ErrorCode = "CONFLICT"
	ErrCodeInvalidState   ErrorCode = "INVALID_STATE"
	ErrCodeInternalError  ErrorCode = "INTERNAL_ERROR"
	ErrCodeMethodNotAllow ErrorCode = "METHOD_NOT_ALLOWED"
)

// ErrorResponse — структура ответа с ошибкой.
type ErrorResponse struct {
	Error ErrorDetail `json:"error"`
}

// ErrorDetail — детали ошибки.
type ErrorDetail struct {
	Code    ErrorCode `json:"code"`
	Message string    `json:"message"`

	// Field — поле, не прошедшее валидацию.
	Field string `json:"field,omitempty"`
}

// DataResponse — структура успешного ответа.
type DataResponse struct {
	Data any `json:"data"`
}

// ListResponse — структура ответа со списком.
type ListResponse struct {
	Data  any `json:"data"`
	Total int `json:"total"`
}

// JSON отправляет JSON ответ.
func JSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(data)
}

// Success отправляет успешный ответ с данными.
func Success(w http.ResponseWriter, data any) {
	JSON(w, http.StatusOK, DataResponse{Data: data})
}

// Created отправляет ответ о создании ресурса.
func Created(w http.ResponseWriter, data any) {
	JSON(w, http.StatusCreated, DataResponse{Data: data})
}

// NoContent отправляет ответ без тела (204).
func NoContent(w http.ResponseWriter) {
	w.WriteHeader(http.StatusNoContent)
}

// List отправляет ответ со списком.
func List(w http.ResponseWriter, data any, total int) {
	JSON(w, http.StatusOK, ListResponse{Data: data, Total: total})
}

// Error отправляет ответ с ошибкой.
func Error(w http.ResponseWriter, status int, code ErrorCode, message string) {
	JSON(w, status, ErrorResponse{
		Error: ErrorDetail{
			Code:    code,
			Message: message,
		},
	})
}

// BadRequest отправляет ошибку 400.
func BadRequest(w http.ResponseWriter, message string) {
	Error(w, http.StatusBadRequest, ErrCodeBadRequest, message)
}

// Unauthorized отправляет ошибку 401.
func Unauthorized(w http.ResponseWriter, message string) {
	Error(w, http.StatusUnauthorized, ErrCodeUnauthorized, message)
}

// Forbidden отправляет ошибку 403.
func Forbidden(w http.ResponseWriter, message string) {
	Error(w, http.StatusForbidden, ErrCodeForbidden, message)
}

// NotFound отправляет ошибку 404.
func NotFound(w http.ResponseWriter, message string) {
	Error(w, http.StatusNotFound, ErrCodeNotFound, message)
}

// Conflict отправляет ошибку 409.
func Conflict(w http.ResponseWriter, message string) {
	Error(w, http.StatusConflict, ErrCodeConflict, message)
}

// InvalidState отправляет ошибку 422.
func InvalidState(w http.ResponseWriter, message string) {
	Error(w, http.StatusUnprocessableEntity, ErrCodeInvalidState, message)
}

// InternalError отправляет ошибку 500.
func InternalError(w http.ResponseWriter, logger *slog.Logger, err error) {
	logger.Error("internal error", "error", err)
	Error(w, http.StatusInternalServerError, ErrCodeInternalError, "internal server error")
}

// MethodNotAllowed отправляет ошибку 405.
func MethodNotAllowed(w http.ResponseWriter) {
	Error(w, http.StatusMethodNotAllowed, ErrCodeMethodNotAllow, "method not allowed")
}

// HandleError преобразует ошибку хранилища или движка в HTTP ответ.
// notFoundMsg используется для repo.ErrNotFound; ошибки движка
// возвращают собственный текст.
func HandleError(w http.ResponseWriter, logger *slog.Logger, err error, notFoundMsg string) bool {
	if err == nil {
		return false
	}

	var verr *engine.ValidationError
	switch {
	case errors.As(err, &verr):
		JSON(w, http.StatusBadRequest, ErrorResponse{
			Error: ErrorDetail{Code: ErrCodeBadRequest, Message: err.Error(), Field: verr.Field},
		})

	case errors.Is(err, repo.ErrNotFound):
		NotFound(w, notFoundMsg)

	case errors.Is(err, execution.ErrPCBNotFound),
		errors.Is(err, execution.ErrSessionNotFound),
		errors.Is(err, execution.ErrStepNotFound),
		errors.Is(err, engine.ErrUnknownStep):
		NotFound(w, err.Error())

	case errors.Is(err, execution.ErrInvalidInput),
		errors.Is(err, repo.ErrInvalidReference),
		errors.Is(err, repo.ErrInvalidOrder),
		errors.Is(err, engine.ErrReorderMismatch),
		errors.Is(err, importer.ErrEmpty),
		errors.Is(err, importer.ErrMalformed):
		BadRequest(w, err.Error())

	case errors.Is(err, repo.ErrAlreadyExists),
		errors.Is(err, execution.ErrAlreadySignedOff):
		Conflict(w, err.Error())

	case errors.Is(err, execution.ErrSessionFinalized),
		errors.Is(err, execution.ErrSessionAbandoned),
		errors.Is(err, execution.ErrSessionNotFinalized),
		errors.Is(err, execution.ErrNoTestConfig):
		InvalidState(w, err.Error())

	default:
		InternalError(w, logger, err)
	}
	return true
}
