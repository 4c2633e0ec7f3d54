// Package rbac maps account types to the operations they may perform.
package rbac

// Permissions.
const (
	PermPostJob        = "post_job"
	PermSendProposal   = "send_proposal"
	PermCreateContract = "create_contract"
	PermSubmitWork     = "submit_work"
	PermCloseContract  = "close_contract"
	PermDeposit        = "deposit"
)

// RolePermissions maps an account type to its allowed operations.
var RolePermissions = map[string][]string{
	"employer": {
		PermPostJob, PermCreateContract, PermCloseContract, PermDeposit,
	},
	"freelancer": {
		PermSendProposal, PermSubmitWork,
	},
}

// HasPermission checks if an account type has a specific permission.
func HasPermission(role, permission string) bool {
	perms, ok := RolePermissions[role]
	if !ok {
		return false
	}
	for _, p := range perms {
		if p == permission {
			return true
		}
	}
	return false
}
