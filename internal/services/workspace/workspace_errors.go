package workspace

import (
	"errors"
	"fmt"

	"github.com/curaious/xm/internal/services/role"
)

var (
	ErrWorkspaceNotFound       = errors.New("workspace not found")
	ErrDuplicateRoleAssignment = errors.New("user already has this role in the workspace")
	ErrNotWorkspaceMember      = errors.New("user holds no role in the workspace")
	ErrForbidden               = errors.New("caller may not manage this workspace")
)

// DuplicateRoleError is returned when a user is added to a workspace with a role
// they already hold there.
type DuplicateRoleError struct {
	Email string
	Role  role.Role
}

func (e *DuplicateRoleError) Error() string {
	return fmt.Sprintf("user already exists: %s already has role %s", e.Email, e.Role)
}

func (e *DuplicateRoleError) Is(target error) bool {
	return target == ErrDuplicateRoleAssignment
}
