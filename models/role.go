package models

import (
	"context"
	"fmt"

	"bitbucket.org/mmdatafocus/plastics_backend/utils"
)

// Permission is a capability bit granted through the actor's role class.
type Permission uint32

const (
	PermViewInventory Permission = 1 << iota
	PermAdjustInventory
	PermDeleteInventory
	PermManageOrders
	PermManageWorkOrders
	PermDeleteWorkOrders
	PermApproveAsOwner
	PermApproveAsOfficer
	PermCommitDispatch
	PermManageUsers
	PermApplySettings
)

var rolePermissions = map[UserRole]Permission{
	UserRoleOwner: PermViewInventory | PermAdjustInventory | PermDeleteInventory |
		PermManageOrders | PermManageWorkOrders | PermDeleteWorkOrders |
		PermApproveAsOwner | PermCommitDispatch | PermManageUsers | PermApplySettings,
	UserRoleAccountOfficer: PermViewInventory | PermAdjustInventory |
		PermManageOrders | PermManageWorkOrders |
		PermApproveAsOfficer | PermCommitDispatch,
	UserRoleClerk: PermViewInventory | PermManageOrders,
}

// RolePermissions returns the capability set of a role class. Unknown roles
// get no permissions.
func RolePermissions(role UserRole) Permission {
	return rolePermissions[role]
}

func (p Permission) Has(perm Permission) bool {
	return p&perm == perm
}

// ActorCanApprove reports whether a role class may set the given approval
// flag. The two flags are independent on purpose: an owner cannot stand in
// for the account officer and vice versa.
func ActorCanApprove(role UserRole, class ApprovalRole) bool {
	switch class {
	case ApprovalRoleSystemOwner:
		return RolePermissions(role).Has(PermApproveAsOwner)
	case ApprovalRoleAccountOfficer:
		return RolePermissions(role).Has(PermApproveAsOfficer)
	default:
		return false
	}
}

// ActorCan checks the calling actor's role from the request context against
// the required permission.
func (s *Store) ActorCan(ctx context.Context, perm Permission) error {
	roleStr, _ := utils.GetUserRoleFromContext(ctx)
	role := UserRole(roleStr)
	if !RolePermissions(role).Has(perm) {
		return fmt.Errorf("%w: operation not allowed for role %q", utils.ErrAuthorization, string(role))
	}
	return nil
}
