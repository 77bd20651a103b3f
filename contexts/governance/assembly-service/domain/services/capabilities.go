package services

import (
	"strings"

	"condominia/contexts/governance/assembly-service/domain/entities"
	domainerrors "condominia/contexts/governance/assembly-service/domain/errors"
)

type Capability string

const (
	CapabilityManageAssembly     Capability = "assembly.manage"
	CapabilityTransitionAssembly Capability = "assembly.transition"
	CapabilityVerifyAttendance   Capability = "attendance.verify"
	CapabilityCheckInOthers      Capability = "attendance.check_in_others"
	CapabilityVoteOnBehalf       Capability = "vote.on_behalf"
	CapabilityReadResults        Capability = "results.read"
)

// capabilityTable is the single source of role permissions for governance.
var capabilityTable = map[entities.Role][]Capability{
	entities.RoleAdmin: {
		CapabilityManageAssembly,
		CapabilityTransitionAssembly,
		CapabilityVerifyAttendance,
		CapabilityCheckInOthers,
		CapabilityVoteOnBehalf,
		CapabilityReadResults,
	},
	entities.RoleComplexAdmin: {
		CapabilityManageAssembly,
		CapabilityTransitionAssembly,
		CapabilityCheckInOthers,
		CapabilityReadResults,
	},
	entities.RoleReception: {
		CapabilityVerifyAttendance,
		CapabilityCheckInOthers,
		CapabilityVoteOnBehalf,
		CapabilityReadResults,
	},
	entities.RoleResident: {
		CapabilityReadResults,
	},
	entities.RoleSecurity: {
		CapabilityReadResults,
	},
}

func Allows(role entities.Role, capability Capability) bool {
	for _, granted := range capabilityTable[role] {
		if granted == capability {
			return true
		}
	}
	return false
}

// Authorize fails with ErrForbidden unless the principal's role grants the
// capability.
func Authorize(actor entities.Principal, capability Capability) error {
	if strings.TrimSpace(actor.UserID) == "" {
		return domainerrors.Invalid("actor user id is required")
	}
	if !Allows(actor.Role, capability) {
		return &domainerrors.Rejection{
			Err:    domainerrors.ErrForbidden,
			Reason: "role " + string(actor.Role) + " lacks " + string(capability),
		}
	}
	return nil
}

// AuthorizeFor lets residents act for themselves and requires onBehalf to
// act for anyone else.
func AuthorizeFor(actor entities.Principal, residentID string, onBehalf Capability) error {
	if strings.TrimSpace(actor.UserID) == "" {
		return domainerrors.Invalid("actor user id is required")
	}
	if strings.TrimSpace(actor.UserID) == strings.TrimSpace(residentID) {
		return nil
	}
	return Authorize(actor, onBehalf)
}
