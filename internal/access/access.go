package access

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"strings"

	"github.com/shaiso/ModuleTrack/internal/domain"
)

// Заголовки идентичности.
const (
	HeaderOperatorID     = "X-Operator-ID"
	HeaderOperatorGroups = "X-Operator-Groups"
	HeaderSuperuser      = "X-Operator-Superuser"
)

// Ошибки доступа.
var (
	// ErrUnauthenticated — запрос без идентичности.
	ErrUnauthenticated = errors.New("operator identity is missing")

	// ErrForbidden — у оператора нет нужной группы.
	ErrForbidden = errors.New("operator lacks required group")
)

// FromRequest читает идентичность оператора из заголовков.
func FromRequest(r *http.Request) (domain.Operator, error) {
	id := strings.TrimSpace(r.Header.Get(HeaderOperatorID))
	if id == "" {
		return domain.Operator{}, ErrUnauthenticated
	}

	op := domain.Operator{ID: id}
	for _, g := range strings.Split(r.Header.Get(HeaderOperatorGroups), ",") {
		if g = strings.TrimSpace(g); g != "" {
			op.Groups = append(op.Groups, g)
		}
	}

	if v := r.Header.Get(HeaderSuperuser); v != "" {
		su, err := strconv.ParseBool(v)
		if err != nil {
			return domain.Operator{}, fmt.Errorf("%w: bad %s header", ErrUnauthenticated, HeaderSuperuser)
		}
		op.Superuser = su
	}
	return op, nil
}

// Check проверяет, что оператор состоит в группе.
// Пустая группа означает «любой аутентифицированный оператор».
func Check(op domain.Operator, group string) error {
	if group == "" || op.HasGroup(group) {
		return nil
	}
	return fmt.Errorf("%w: %s", ErrForbidden, group)
}

// SetHeaders выставляет заголовки идентичности на исходящем запросе.
func SetHeaders(h http.Header, op domain.Operator) {
	h.Set(HeaderOperatorID, op.ID)
	if len(op.Groups) > 0 {
		h.Set(HeaderOperatorGroups, strings.Join(op.Groups, ","))
	}
	if op.Superuser {
		h.Set(HeaderSuperuser, "true")
	}
}

type ctxKey struct{}

// WithOperator добавляет оператора в контекст.
func WithOperator(ctx context.Context, op domain.Operator) context.Context {
	return context.WithValue(ctx, ctxKey{}, op)
}

// OperatorFrom извлекает оператора из контекста.
func OperatorFrom(ctx context.Context) (domain.Operator, bool) {
	op, ok := ctx.Value(ctxKey{}).(domain.Operator)
	return op, ok
}
