// Package mq предоставляет инфраструктуру для работы с RabbitMQ.
//
// Структура:
//   - connection.go — управление соединением с RabbitMQ (reconnect, graceful shutdown)
//   - topology.go   — объявление exchanges, queues, bindings
//   - publisher.go  — публикация событий сессий
//   - consumer.go   — потребление сообщений из очередей
//
// Типы сообщений (routing key):
//   - session.step_recorded (step_recorded) — записан результат шага
//   - session.completed     (completed)     — техник завершил сессию
//   - session.signed_off    (signed_off)    — QA подписал сессию
//   - session.abandoned     (abandoned)     — sweeper освободил брошенную сессию
//
// Exchanges:
//   - moduletrack.sessions — события сессий
//   - moduletrack.dlq      — dead letter queue
package mq
