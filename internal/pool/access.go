package pool

import "github.com/google/uuid"

// Role designates a privileged capability. Whitelisting of ordinary
// depositors is out of scope; roles gate the fund-management surface only.
type Role int32

const (
	// RoleOperator runs the fund: funding, impairment, queue maintenance,
	// fee configuration.
	RoleOperator Role = iota

	// RoleUnderwriter approves receivables for factoring.
	RoleUnderwriter

	// RoleAdminRecipient may withdraw accrued admin fees.
	RoleAdminRecipient

	// RoleProtocolSink receives upfront protocol fees.
	RoleProtocolSink
)

// AccessControl maps roles to actors. Composed into the engine by
// delegation rather than inheritance.
type AccessControl struct {
	holders map[Role]uuid.UUID
}

func NewAccessControl(operator, underwriter, adminRecipient, protocolSink uuid.UUID) *AccessControl {
	return &AccessControl{
		holders: map[Role]uuid.UUID{
			RoleOperator:       operator,
			RoleUnderwriter:    underwriter,
			RoleAdminRecipient: adminRecipient,
			RoleProtocolSink:   protocolSink,
		},
	}
}

// Require returns ErrNotAuthorized unless actor holds the role.
func (ac *AccessControl) Require(actor uuid.UUID, role Role) error {
	if ac.holders[role] != actor {
		return ErrNotAuthorized
	}
	return nil
}

// Has reports whether actor holds the role.
func (ac *AccessControl) Has(actor uuid.UUID, role Role) bool {
	return ac.holders[role] == actor
}

// Holder returns the actor assigned to a role.
func (ac *AccessControl) Holder(role Role) uuid.UUID {
	return ac.holders[role]
}
