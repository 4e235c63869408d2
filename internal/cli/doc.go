// Package cli реализует инструмент командной строки ModuleTrack.
//
// # Обзор
//
// CLI — клиентская утилита для ModuleTrack API. Работает через HTTP
// и не импортирует API-пакет: типы ответов продублированы в client.go.
// Идентичность оператора передаётся теми же заголовками, что ставит
// прокси идентичности (см. internal/access).
//
// # Ключевые компоненты
//
// ## Client
//
// HTTP-клиент API. Разбирает ответы (data, data+total, error)
// и возвращает ошибки API как *APIError.
//
//	client := cli.NewClient("http://localhost:8080", domain.Operator{ID: "tech1"})
//	state, err := client.GetExecution(pcbID)
//
// ## Output
//
// Форматирование вывода:
//   - таблицы go-pretty по умолчанию
//   - JSON с флагом --json
//
// Данные выводятся в stdout, сообщения (Success/Error) в stderr:
// moduletrack session list --json | jq .
//
// ## Commands
//
// Cobra-команды организованы по ресурсам:
//   - config: list, show, import, delete
//   - batch: list, create, pcbs, add-pcb
//   - test: status, submit
//   - session: list, show, complete, signoff, events
//
// Каждая группа создаётся фабричной функцией (NewConfigCmd и т.д.),
// принимающей clientFn и outputFn: Client и Output создаются
// после разбора PersistentFlags.
package cli
