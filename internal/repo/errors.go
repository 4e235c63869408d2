package repo

import (
	"errors"

	"github.com/jackc/pgx/v5/pgconn"
)

// Общие ошибки репозиториев.
var (
	// ErrNotFound — запись не найдена в БД.
	ErrNotFound = errors.New("not found")

	// ErrAlreadyExists — запись уже существует (конфликт уникальности).
	ErrAlreadyExists = errors.New("already exists")

	// ErrInvalidReference — ссылка на несуществующую запись
	// (партия без типа платы, плата без партии).
	ErrInvalidReference = errors.New("invalid reference")
)

// Коды ошибок PostgreSQL.
const (
	pgUniqueViolation     = "23505"
	pgForeignKeyViolation = "23503"
)

// isUniqueViolation проверяет нарушение уникального индекса.
func isUniqueViolation(err error) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == pgUniqueViolation
}

// isForeignKeyViolation проверяет ссылку на несуществующую запись.
func isForeignKeyViolation(err error) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == pgForeignKeyViolation
}
