// Package access извлекает идентичность оператора из заголовков запроса
// и проверяет его группы.
//
// Аутентификация выполняется identity-сервисом перед API; сюда приходят
// уже проверенные заголовки:
//
//	X-Operator-ID: tech1
//	X-Operator-Groups: add_board_bringup_result,mng_batches
//	X-Operator-Superuser: true
//
// Суперпользователь проходит любую проверку групп.
package access
