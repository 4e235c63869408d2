package access

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/shaiso/ModuleTrack/internal/domain"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFromRequest(t *testing.T) {
	tests := []struct {
		name    string
		headers map[string]string
		want    domain.Operator
		wantErr bool
	}{
		{
			name:    "no identity",
			headers: map[string]string{HeaderOperatorGroups: domain.GroupTestOperator},
			wantErr: true,
		},
		{
			name:    "blank identity",
			headers: map[string]string{HeaderOperatorID: "   "},
			wantErr: true,
		},
		{
			name:    "id only",
			headers: map[string]string{HeaderOperatorID: "tech1"},
			want:    domain.Operator{ID: "tech1"},
		},
		{
			name: "groups are trimmed",
			headers: map[string]string{
				HeaderOperatorID:     "tech1",
				HeaderOperatorGroups: " add_board_bringup_result, ,mng_batches",
			},
			want: domain.Operator{ID: "tech1", Groups: []string{domain.GroupTestOperator, domain.GroupManageBatches}},
		},
		{
			name:    "superuser",
			headers: map[string]string{HeaderOperatorID: "admin", HeaderSuperuser: "true"},
			want:    domain.Operator{ID: "admin", Superuser: true},
		},
		{
			name:    "bad superuser flag",
			headers: map[string]string{HeaderOperatorID: "admin", HeaderSuperuser: "maybe"},
			wantErr: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r := httptest.NewRequest(http.MethodGet, "/", nil)
			for k, v := range tt.headers {
				r.Header.Set(k, v)
			}

			got, err := FromRequest(r)
			if tt.wantErr {
				require.ErrorIs(t, err, ErrUnauthenticated)
				return
			}
			require.NoError(t, err)
			if diff := cmp.Diff(tt.want, got); diff != "" {
				t.Errorf("operator mismatch (-want +got):\n%s", diff)
			}
		})
	}
}

func TestCheck(t *testing.T) {
	tech := domain.Operator{ID: "tech1", Groups: []string{domain.GroupTestOperator}}
	admin := domain.Operator{ID: "admin", Superuser: true}

	assert.NoError(t, Check(tech, domain.GroupTestOperator))
	assert.NoError(t, Check(tech, ""))
	assert.ErrorIs(t, Check(tech, domain.GroupQASignoff), ErrForbidden)
	assert.NoError(t, Check(admin, domain.GroupQASignoff))
}

func TestSetHeaders_RoundTrip(t *testing.T) {
	op := domain.Operator{ID: "qa1", Groups: []string{domain.GroupQASignoff, domain.GroupManageBatches}, Superuser: true}

	r := httptest.NewRequest(http.MethodGet, "/", nil)
	SetHeaders(r.Header, op)

	got, err := FromRequest(r)
	require.NoError(t, err)
	assert.Equal(t, op, got)
}

func TestOperatorContext(t *testing.T) {
	_, ok := OperatorFrom(context.Background())
	assert.False(t, ok)

	ctx := WithOperator(context.Background(), domain.Operator{ID: "tech1"})
	op, ok := OperatorFrom(ctx)
	require.True(t, ok)
	assert.Equal(t, "tech1", op.ID)
}
