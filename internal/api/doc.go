// Package api содержит HTTP API сервер.
//
// Структура:
//   - handler.go           — Handler с DI (хранилища, движок выполнения, logger)
//   - routes.go            — регистрация маршрутов и групп доступа
//   - middleware.go        — middleware (logging, recovery, проверка групп)
//   - response.go          — унифицированные JSON-ответы и обработка ошибок
//   - request.go           — разбор пути и тела запроса
//   - dto.go               — Data Transfer Objects (request/response)
//   - config_handler.go    — обработчики для /test-configs
//   - unit_handler.go      — обработчики для /pcb-types, /batches, /pcbs
//   - execution_handler.go — выполнение процедуры на плате
//   - session_handler.go   — обработчики для /sessions
//
// Идентичность оператора приходит в заголовках X-Operator-* (см. пакет access).
// Чтение доступно любому оператору, изменения требуют группы.
package api
