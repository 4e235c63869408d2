package repo

import (
	"errors"
	"testing"
)

func TestSessionOrderClause(t *testing.T) {
	tests := []struct {
		order   string
		want    string
		wantErr bool
	}{
		{order: "", want: "s.started_at DESC, s.id DESC"},
		{order: "-started_at", want: "s.started_at DESC, s.id DESC"},
		{order: "started_at", want: "s.started_at ASC, s.id ASC"},
		{order: "serial_number", want: "p.serial_number ASC, s.id ASC"},
		{order: " -verdict ", want: "s.verdict DESC, s.id DESC"},
		{order: "operator_id", want: "s.operator_id ASC, s.id ASC"},
		{order: "notes", wantErr: true},
		{order: "started_at; DROP TABLE pcbs", wantErr: true},
		{order: "--started_at", wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.order, func(t *testing.T) {
			got, err := SessionOrderClause(tt.order)
			if tt.wantErr {
				if !errors.Is(err, ErrInvalidOrder) {
					t.Fatalf("expected ErrInvalidOrder, got %v", err)
				}
				return
			}
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if got != tt.want {
				t.Errorf("expected %q, got %q", tt.want, got)
			}
		})
	}
}
