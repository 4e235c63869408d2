package domain

import "slices"

// Группы доступа identity-сервиса.
const (
	GroupTestOperator      = "add_board_bringup_result"
	GroupQASignoff         = "qa_signoff_board_bringup_result"
	GroupManageTestConfigs = "mng_test_config_type"
	GroupManageBatches     = "mng_batches"
	GroupManagePCBTypes    = "mng_pcb_type"
)

// Operator — пользователь, выполняющий действие.
// Аутентификация выполняется вне системы; здесь только идентичность и группы.
type Operator struct {
	// ID — идентификатор пользователя.
	ID string `json:"id"`

	// Groups — группы пользователя.
	Groups []string `json:"groups,omitempty"`

	// Superuser — проходит любую проверку групп.
	Superuser bool `json:"superuser,omitempty"`
}

// HasGroup проверяет членство в группе.
func (o Operator) HasGroup(group string) bool {
	if o.Superuser {
		return true
	}
	return slices.Contains(o.Groups, group)
}
