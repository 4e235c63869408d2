package api

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"

	"github.com/google/uuid"
	"github.com/shaiso/ModuleTrack/internal/access"
	"github.com/shaiso/ModuleTrack/internal/domain"
)

// maxBodyBytes — ограничение размера тела запроса.
const maxBodyBytes = 1 << 20

// pathID разбирает UUID из сегмента пути.
func pathID(r *http.Request, name string) (uuid.UUID, bool) {
	id, err := uuid.Parse(r.PathValue(name))
	return id, err == nil
}

// decodeOptional декодирует JSON тело; пустое тело допустимо.
func decodeOptional(r *http.Request, v any) error {
	err := json.NewDecoder(r.Body).Decode(v)
	if errors.Is(err, io.EOF) {
		return nil
	}
	return err
}

// operator возвращает оператора, положенного в контекст Require.
func operator(r *http.Request) domain.Operator {
	op, _ := access.OperatorFrom(r.Context())
	return op
}
