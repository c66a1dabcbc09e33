package workspace

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/curaious/xm/internal/security"
	"github.com/curaious/xm/internal/services/role"
	"github.com/curaious/xm/internal/services/user"
	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"
)

const (
	pqUniqueViolation     = "23505"
	pqForeignKeyViolation = "23503"

	userFKConstraint = "user_entity_roles_user_id_fkey"
)

// WorkspaceRepo handles database operations for workspaces and their role assignments
type WorkspaceRepo struct {
	db *sqlx.DB
}

// NewWorkspaceRepo creates a new workspace repository
func NewWorkspaceRepo(db *sqlx.DB) *WorkspaceRepo {
	return &WorkspaceRepo{db: db}
}

// GetAllWorkspaces lists every workspace ordered by name
func (r *WorkspaceRepo) GetAllWorkspaces(ctx context.Context) ([]*Workspace, error) {
	query := `
        SELECT id, name, description, created_at, updated_at
        FROM workspaces
        ORDER BY name
    `

	var workspaces []*Workspace
	if err := r.db.SelectContext(ctx, &workspaces, query); err != nil {
		return nil, fmt.Errorf("failed to list workspaces: %w", err)
	}

	return workspaces, nil
}

// GetByID retrieves a workspace by ID
func (r *WorkspaceRepo) GetByID(ctx context.Context, id uuid.UUID) (*Workspace, error) {
	return getByID(ctx, r.db, id)
}

func getByID(ctx context.Context, q sqlx.QueryerContext, id uuid.UUID) (*Workspace, error) {
	query := `
        SELECT id, name, description, created_at, updated_at
        FROM workspaces
        WHERE id = $1
    `

	var workspace Workspace
	err := sqlx.GetContext(ctx, q, &workspace, query, id)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrWorkspaceNotFound
		}
		return nil, fmt.Errorf("failed to get workspace: %w", err)
	}

	return &workspace, nil
}

// GetActiveWorkspaceIDAndRoleByUserIDAndRole returns the workspaces where the user
// holds secRole. The earliest assignment is reported as the active workspace,
// together with every role the user holds there.
func (r *WorkspaceRepo) GetActiveWorkspaceIDAndRoleByUserIDAndRole(ctx context.Context, userID uuid.UUID, secRole security.Role) (*ActiveWorkspaceIDAndRole, error) {
	query := `
        SELECT w.id, w.name, w.description, w.created_at, w.updated_at
        FROM workspaces w
        JOIN user_entity_roles uer ON uer.workspace_id = w.id
        WHERE uer.user_id = $1 AND uer.rolename = $2
        ORDER BY uer.created_at, w.name
    `

	var workspaces []*Workspace
	if err := r.db.SelectContext(ctx, &workspaces, query, userID, string(secRole)); err != nil {
		return nil, fmt.Errorf("failed to get workspaces by role: %w", err)
	}

	out := &ActiveWorkspaceIDAndRole{
		AssignedRolesToWorkspace: []security.Role{},
		AssignedWorkspacesToUser: workspaces,
	}
	if len(workspaces) == 0 {
		return out, nil
	}

	active := workspaces[0].ID
	out.ActiveWorkspaceID = &active

	var names []string
	err := r.db.SelectContext(ctx, &names, `
        SELECT rolename
        FROM user_entity_roles
        WHERE user_id = $1 AND workspace_id = $2
        ORDER BY rolename
    `, userID, active)
	if err != nil {
		return nil, fmt.Errorf("failed to get roles in active workspace: %w", err)
	}
	for _, name := range names {
		out.AssignedRolesToWorkspace = append(out.AssignedRolesToWorkspace, security.Role(name))
	}

	return out, nil
}

// GetWorkspacesOfUser lists the workspaces where the user holds at least one role
func (r *WorkspaceRepo) GetWorkspacesOfUser(ctx context.Context, userID uuid.UUID) ([]*Workspace, error) {
	query := `
        SELECT DISTINCT w.id, w.name, w.description, w.created_at, w.updated_at
        FROM workspaces w
        JOIN user_entity_roles uer ON uer.workspace_id = w.id
        WHERE uer.user_id = $1
        ORDER BY w.name
    `

	var workspaces []*Workspace
	if err := r.db.SelectContext(ctx, &workspaces, query, userID); err != nil {
		return nil, fmt.Errorf("failed to list workspaces of user: %w", err)
	}

	return workspaces, nil
}

// GetRolesOfUserByWorkspace returns the persisted role rows of a user in one workspace
func (r *WorkspaceRepo) GetRolesOfUserByWorkspace(ctx context.Context, userID, workspaceID uuid.UUID) ([]UserEntityRole, error) {
	query := `
        SELECT id, user_id, workspace_id, rolename, created_at
        FROM user_entity_roles
        WHERE user_id = $1 AND workspace_id = $2
    `

	var roles []UserEntityRole
	if err := r.db.SelectContext(ctx, &roles, query, userID, workspaceID); err != nil {
		return nil, fmt.Errorf("failed to get roles of user: %w", err)
	}

	return roles, nil
}

// AddUserToWorkspace assigns a role to a user within a workspace and returns the workspace
func (r *WorkspaceRepo) AddUserToWorkspace(ctx context.Context, workspaceID, userID uuid.UUID, rl role.Role) (*Workspace, error) {
	roleName, err := role.EntityRoleName(rl)
	if err != nil {
		return nil, err
	}

	tx, err := r.db.BeginTxx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	workspace, err := getByID(ctx, tx, workspaceID)
	if err != nil {
		return nil, err
	}

	_, err = tx.ExecContext(ctx, `
        INSERT INTO user_entity_roles (user_id, workspace_id, rolename)
        VALUES ($1, $2, $3)
    `, userID, workspaceID, roleName)
	if err != nil {
		var pqErr *pq.Error
		if errors.As(err, &pqErr) {
			switch {
			case pqErr.Code == pqUniqueViolation:
				return nil, ErrDuplicateRoleAssignment
			case pqErr.Code == pqForeignKeyViolation && pqErr.Constraint == userFKConstraint:
				return nil, user.ErrUserNotFound
			}
		}
		return nil, fmt.Errorf("failed to add user to workspace: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("failed to commit role assignment: %w", err)
	}

	return workspace, nil
}

// RevokeUserRole removes a role from a user in every workspace
func (r *WorkspaceRepo) RevokeUserRole(ctx context.Context, userID uuid.UUID, rl role.Role) error {
	roleName, err := role.EntityRoleName(rl)
	if err != nil {
		return err
	}

	query := `DELETE FROM user_entity_roles WHERE user_id = $1 AND rolename = $2`
	if _, err := r.db.ExecContext(ctx, query, userID, roleName); err != nil {
		return fmt.Errorf("failed to revoke role: %w", err)
	}

	return nil
}

// RevokeUserRoleFromWorkspace removes a role from a user within one workspace
func (r *WorkspaceRepo) RevokeUserRoleFromWorkspace(ctx context.Context, workspaceID, userID uuid.UUID, rl role.Role) error {
	roleName, err := role.EntityRoleName(rl)
	if err != nil {
		return err
	}

	query := `DELETE FROM user_entity_roles WHERE workspace_id = $1 AND user_id = $2 AND rolename = $3`
	if _, err := r.db.ExecContext(ctx, query, workspaceID, userID, roleName); err != nil {
		return fmt.Errorf("failed to revoke role from workspace: %w", err)
	}

	return nil
}

// Save inserts a new workspace; the database assigns its ID
func (r *WorkspaceRepo) Save(ctx context.Context, workspace *Workspace) (*Workspace, error) {
	query := `
        INSERT INTO workspaces (name, description)
        VALUES ($1, $2)
        RETURNING id, name, description, created_at, updated_at
    `

	var saved Workspace
	if err := r.db.GetContext(ctx, &saved, query, workspace.Name, workspace.Description); err != nil {
		return nil, fmt.Errorf("failed to save workspace: %w", err)
	}

	return &saved, nil
}

// Update overwrites the mutable fields of the workspace identified by workspace.ID
func (r *WorkspaceRepo) Update(ctx context.Context, workspace *Workspace) (*Workspace, error) {
	query := `
        UPDATE workspaces
        SET name = $1, description = $2, updated_at = NOW()
        WHERE id = $3
        RETURNING id, name, description, created_at, updated_at
    `

	var updated Workspace
	err := r.db.GetContext(ctx, &updated, query, workspace.Name, workspace.Description, workspace.ID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrWorkspaceNotFound
		}
		return nil, fmt.Errorf("failed to update workspace: %w", err)
	}

	return &updated, nil
}

// Delete removes a workspace; its role assignments cascade
func (r *WorkspaceRepo) Delete(ctx context.Context, id uuid.UUID) error {
	result, err := r.db.ExecContext(ctx, `DELETE FROM workspaces WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("failed to delete workspace: %w", err)
	}

	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get rows affected: %w", err)
	}

	if rowsAffected == 0 {
		return ErrWorkspaceNotFound
	}

	return nil
}
