// Package audit сохраняет события сессий в журнал аудита.
//
// Recorder потребляет очередь audit.events и пишет каждое событие
// в таблицу audit_events. Запись идемпотентна по ID события, поэтому
// повторная доставка безопасна. Сообщения, которые нельзя разобрать,
// уходят в DLQ; ошибки БД возвращают сообщение в очередь.
package audit
