package workspace

import (
	"time"

	"github.com/curaious/xm/internal/security"
	"github.com/curaious/xm/internal/services/role"
	"github.com/google/uuid"
)

// Workspace is the tenant-scoped grouping users and roles are assigned to
type Workspace struct {
	ID          uuid.UUID `json:"id" db:"id"`
	Name        string    `json:"name" db:"name"`
	Description string    `json:"description" db:"description"`
	CreatedAt   time.Time `json:"created_at" db:"created_at"`
	UpdatedAt   time.Time `json:"updated_at" db:"updated_at"`
}

// UserEntityRole is a persisted role assignment. WorkspaceID is nil for global roles.
type UserEntityRole struct {
	ID          uuid.UUID  `json:"id" db:"id"`
	UserID      uuid.UUID  `json:"user_id" db:"user_id"`
	WorkspaceID *uuid.UUID `json:"workspace_id,omitempty" db:"workspace_id"`
	RoleName    string     `json:"rolename" db:"rolename"`
	CreatedAt   time.Time  `json:"created_at" db:"created_at"`
}

// ActiveWorkspaceIDAndRole pairs a user's active workspace with the roles the user
// holds there.
type ActiveWorkspaceIDAndRole struct {
	ActiveWorkspaceID        *uuid.UUID      `json:"active_workspace_id"`
	AssignedRolesToWorkspace []security.Role `json:"assigned_roles_to_workspace"`
	AssignedWorkspacesToUser []*Workspace    `json:"assigned_workspaces_to_user"`
}

// WorkspaceRequest captures payload for creating or updating a workspace
type WorkspaceRequest struct {
	Name        string `json:"name" validate:"required,min=1,max=255"`
	Description string `json:"description,omitempty"`
}

// AddUserRequest captures payload for assigning a user a role in a workspace
type AddUserRequest struct {
	UserID uuid.UUID `json:"user_id"`
	Role   role.Role `json:"role" validate:"required"`
}

// SwitchWorkspaceRequest selects the caller's active workspace
type SwitchWorkspaceRequest struct {
	WorkspaceID uuid.UUID `json:"workspace_id"`
}
