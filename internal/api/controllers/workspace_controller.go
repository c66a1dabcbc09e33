package controllers

import (
	"context"
	"errors"

	"github.com/curaious/xm/internal/perrors"
	"github.com/curaious/xm/internal/services"
	"github.com/curaious/xm/internal/services/role"
	"github.com/curaious/xm/internal/services/workspace"
	"github.com/fasthttp/router"
	"github.com/google/uuid"
	"github.com/valyala/fasthttp"
)

func RegisterWorkspaceRoutes(r *router.Router, svc *services.Services) {
	ws := svc.Workspace

	// List workspaces
	r.GET("/api/workspaces", func(ctx *fasthttp.RequestCtx) {
		stdCtx := requestContext(ctx)
		workspaces, err := ws.GetAllWorkspaces(stdCtx)
		if err != nil {
			writeError(ctx, stdCtx, "Failed to list workspaces", domainError("Failed to list workspaces", err))
			return
		}

		writeOK(ctx, stdCtx, "Workspaces retrieved successfully", workspaces)
	})

	// Create workspace
	r.POST("/api/workspaces", func(ctx *fasthttp.RequestCtx) {
		stdCtx := requestContext(ctx)
		if err := ws.RequireWorkspaceAdmin(stdCtx, nil); err != nil {
			writeError(ctx, stdCtx, "Not allowed to create workspaces", domainError("Failed to authorize", err))
			return
		}

		var body workspace.WorkspaceRequest
		if err := parseAndValidate(ctx, &body); err != nil {
			writeError(ctx, stdCtx, "Invalid request body", perrors.NewErrInvalidRequest("Invalid request body", err))
			return
		}

		created, err := ws.SaveWorkspace(stdCtx, &workspace.Workspace{Name: body.Name, Description: body.Description})
		if err != nil {
			writeError(ctx, stdCtx, "Failed to create workspace", domainError("Failed to create workspace", err))
			return
		}

		writeOK(ctx, stdCtx, "Workspace created successfully", created)
	})

	// Workspaces the caller holds a role in
	r.GET("/api/workspaces/mine", func(ctx *fasthttp.RequestCtx) {
		stdCtx := requestContext(ctx)
		workspaces, err := ws.GetWorkspacesOfUser(stdCtx)
		if err != nil {
			writeError(ctx, stdCtx, "Failed to list workspaces", domainError("Failed to list workspaces", err))
			return
		}

		writeOK(ctx, stdCtx, "Workspaces retrieved successfully", workspaces)
	})

	r.GET("/api/workspaces/active", func(ctx *fasthttp.RequestCtx) {
		stdCtx := requestContext(ctx)
		active, err := ws.GetActiveWorkspace(stdCtx)
		if err != nil {
			writeError(ctx, stdCtx, "Failed to get active workspace", domainError("Failed to get active workspace", err))
			return
		}

		writeOK(ctx, stdCtx, "Active workspace retrieved successfully", active)
	})

	r.PUT("/api/workspaces/active", func(ctx *fasthttp.RequestCtx) {
		stdCtx := requestContext(ctx)
		var body workspace.SwitchWorkspaceRequest
		if err := parseBody(ctx, &body); err != nil || body.WorkspaceID == uuid.Nil {
			if err == nil {
				err = errors.New("workspace_id is required")
			}
			writeError(ctx, stdCtx, "Invalid request body", perrors.NewErrInvalidRequest("Invalid request body", err))
			return
		}

		switched, err := ws.SwitchActiveWorkspace(stdCtx, body.WorkspaceID)
		if err != nil {
			writeError(ctx, stdCtx, "Failed to switch workspace", domainError("Failed to switch workspace", err))
			return
		}

		writeOK(ctx, stdCtx, "Active workspace switched successfully", switched)
	})

	r.GET("/api/workspaces/active/roles", func(ctx *fasthttp.RequestCtx) {
		stdCtx := requestContext(ctx)
		resolved, err := ws.ResolveActiveWorkspaceAndRoles(stdCtx)
		if err != nil {
			writeError(ctx, stdCtx, "Failed to resolve active workspace", domainError("Failed to resolve active workspace", err))
			return
		}

		writeOK(ctx, stdCtx, "Active workspace resolved successfully", resolved)
	})

	r.GET("/api/workspaces/{id}", func(ctx *fasthttp.RequestCtx) {
		stdCtx := requestContext(ctx)
		id, err := pathParamUUID(ctx, "id")
		if err != nil {
			writeError(ctx, stdCtx, "Invalid ID format", perrors.NewErrInvalidRequest("Invalid ID format", err))
			return
		}

		w, err := ws.GetWorkspaceByID(stdCtx, id)
		if err != nil {
			writeError(ctx, stdCtx, "Failed to get workspace", domainError("Failed to get workspace", err))
			return
		}

		writeOK(ctx, stdCtx, "Workspace retrieved successfully", w)
	})

	r.PUT("/api/workspaces/{id}", func(ctx *fasthttp.RequestCtx) {
		stdCtx := requestContext(ctx)
		id, err := pathParamUUID(ctx, "id")
		if err != nil {
			writeError(ctx, stdCtx, "Invalid ID format", perrors.NewErrInvalidRequest("Invalid ID format", err))
			return
		}

		if err := ws.RequireWorkspaceAdmin(stdCtx, &id); err != nil {
			writeError(ctx, stdCtx, "Not allowed to update workspace", domainError("Failed to authorize", err))
			return
		}

		var body workspace.WorkspaceRequest
		if err := parseAndValidate(ctx, &body); err != nil {
			writeError(ctx, stdCtx, "Invalid request body", perrors.NewErrInvalidRequest("Invalid request body", err))
			return
		}

		updated, err := ws.UpdateWorkspace(stdCtx, &workspace.Workspace{Name: body.Name, Description: body.Description}, id)
		if err != nil {
			writeError(ctx, stdCtx, "Failed to update workspace", domainError("Failed to update workspace", err))
			return
		}

		writeOK(ctx, stdCtx, "Workspace updated successfully", updated)
	})

	r.DELETE("/api/workspaces/{id}", func(ctx *fasthttp.RequestCtx) {
		stdCtx := requestContext(ctx)
		id, err := pathParamUUID(ctx, "id")
		if err != nil {
			writeError(ctx, stdCtx, "Invalid ID format", perrors.NewErrInvalidRequest("Invalid ID format", err))
			return
		}

		if err := ws.RequireWorkspaceAdmin(stdCtx, nil); err != nil {
			writeError(ctx, stdCtx, "Not allowed to delete workspace", domainError("Failed to authorize", err))
			return
		}

		if err := ws.DeleteWorkspace(stdCtx, id); err != nil {
			writeError(ctx, stdCtx, "Failed to delete workspace", domainError("Failed to delete workspace", err))
			return
		}

		writeOK(ctx, stdCtx, "Workspace deleted successfully", nil)
	})

	r.GET("/api/workspaces/{id}/users/{userId}/roles", func(ctx *fasthttp.RequestCtx) {
		stdCtx := requestContext(ctx)
		id, err := pathParamUUID(ctx, "id")
		if err != nil {
			writeError(ctx, stdCtx, "Invalid ID format", perrors.NewErrInvalidRequest("Invalid ID format", err))
			return
		}
		userID, err := pathParamUUID(ctx, "userId")
		if err != nil {
			writeError(ctx, stdCtx, "Invalid user ID format", perrors.NewErrInvalidRequest("Invalid user ID format", err))
			return
		}

		if err := requireSelfOrAdmin(stdCtx, ws, userID, &id); err != nil {
			writeError(ctx, stdCtx, "Not allowed to view other users", domainError("Failed to authorize", err))
			return
		}

		held, err := ws.GetRolesOfUserByWorkspace(stdCtx, userID, id)
		if err != nil {
			writeError(ctx, stdCtx, "Failed to get roles", domainError("Failed to get roles", err))
			return
		}

		writeOK(ctx, stdCtx, "Roles retrieved successfully", held.Slice())
	})

	// Assign a role to a user within the workspace
	r.POST("/api/workspaces/{id}/users", func(ctx *fasthttp.RequestCtx) {
		stdCtx := requestContext(ctx)
		id, err := pathParamUUID(ctx, "id")
		if err != nil {
			writeError(ctx, stdCtx, "Invalid ID format", perrors.NewErrInvalidRequest("Invalid ID format", err))
			return
		}

		if err := ws.RequireWorkspaceAdmin(stdCtx, &id); err != nil {
			writeError(ctx, stdCtx, "Not allowed to manage workspace users", domainError("Failed to authorize", err))
			return
		}

		var body workspace.AddUserRequest
		if err := parseAndValidate(ctx, &body); err != nil || body.UserID == uuid.Nil {
			if err == nil {
				err = errors.New("user_id is required")
			}
			writeError(ctx, stdCtx, "Invalid request body", perrors.NewErrInvalidRequest("Invalid request body", err))
			return
		}

		w, err := ws.AddUserToWorkspace(stdCtx, id, body.UserID, body.Role)
		if err != nil {
			writeError(ctx, stdCtx, "Failed to add user to workspace", domainError("Failed to add user to workspace", err))
			return
		}

		writeOK(ctx, stdCtx, "User added to workspace successfully", w)
	})

	r.DELETE("/api/workspaces/{id}/users/{userId}/roles/{role}", func(ctx *fasthttp.RequestCtx) {
		stdCtx := requestContext(ctx)
		id, err := pathParamUUID(ctx, "id")
		if err != nil {
			writeError(ctx, stdCtx, "Invalid ID format", perrors.NewErrInvalidRequest("Invalid ID format", err))
			return
		}
		userID, err := pathParamUUID(ctx, "userId")
		if err != nil {
			writeError(ctx, stdCtx, "Invalid user ID format", perrors.NewErrInvalidRequest("Invalid user ID format", err))
			return
		}
		rl, err := pathParamRole(ctx)
		if err != nil {
			writeError(ctx, stdCtx, "Invalid role", domainError("Invalid role", err))
			return
		}

		if err := ws.RequireWorkspaceAdmin(stdCtx, &id); err != nil {
			writeError(ctx, stdCtx, "Not allowed to manage workspace users", domainError("Failed to authorize", err))
			return
		}

		if err := ws.RevokeUserRoleFromWorkspace(stdCtx, id, userID, rl); err != nil {
			writeError(ctx, stdCtx, "Failed to revoke role", domainError("Failed to revoke role", err))
			return
		}

		writeOK(ctx, stdCtx, "Role revoked successfully", nil)
	})

	// Revoke a role everywhere, global assignments included
	r.DELETE("/api/users/{userId}/roles/{role}", func(ctx *fasthttp.RequestCtx) {
		stdCtx := requestContext(ctx)
		userID, err := pathParamUUID(ctx, "userId")
		if err != nil {
			writeError(ctx, stdCtx, "Invalid user ID format", perrors.NewErrInvalidRequest("Invalid user ID format", err))
			return
		}
		rl, err := pathParamRole(ctx)
		if err != nil {
			writeError(ctx, stdCtx, "Invalid role", domainError("Invalid role", err))
			return
		}

		if err := ws.RequireWorkspaceAdmin(stdCtx, nil); err != nil {
			writeError(ctx, stdCtx, "Not allowed to revoke roles", domainError("Failed to authorize", err))
			return
		}

		if err := ws.RevokeUserRole(stdCtx, userID, rl); err != nil {
			writeError(ctx, stdCtx, "Failed to revoke role", domainError("Failed to revoke role", err))
			return
		}

		writeOK(ctx, stdCtx, "Role revoked successfully", nil)
	})

	// Workspaces where a user holds the given role. Other users need a global admin.
	r.GET("/api/users/{userId}/workspaces", func(ctx *fasthttp.RequestCtx) {
		stdCtx := requestContext(ctx)
		userID, err := pathParamUUID(ctx, "userId")
		if err != nil {
			writeError(ctx, stdCtx, "Invalid user ID format", perrors.NewErrInvalidRequest("Invalid user ID format", err))
			return
		}
		raw, err := requireStringQuery(ctx, "role")
		if err != nil {
			writeError(ctx, stdCtx, "Role is required", perrors.NewErrInvalidRequest("Role is required", err))
			return
		}
		rl, err := role.Parse(raw)
		if err != nil {
			writeError(ctx, stdCtx, "Invalid role", domainError("Invalid role", err))
			return
		}

		if err := requireSelfOrAdmin(stdCtx, ws, userID, nil); err != nil {
			writeError(ctx, stdCtx, "Not allowed to view other users", domainError("Failed to authorize", err))
			return
		}

		workspaces, err := ws.GetWorkspacesByUserIDAndRole(stdCtx, userID, rl)
		if err != nil {
			writeError(ctx, stdCtx, "Failed to list workspaces", domainError("Failed to list workspaces", err))
			return
		}

		writeOK(ctx, stdCtx, "Workspaces retrieved successfully", workspaces)
	})
}

// requireSelfOrAdmin lets callers read their own memberships. Anyone else's need a
// workspace admin of workspaceID, or a global admin when workspaceID is nil.
func requireSelfOrAdmin(ctx context.Context, ws *workspace.WorkspaceService, userID uuid.UUID, workspaceID *uuid.UUID) error {
	callerID, err := ws.GetUserIDFromUserContext(ctx)
	if err != nil {
		return err
	}
	if callerID == userID {
		return nil
	}
	return ws.RequireWorkspaceAdmin(ctx, workspaceID)
}

func pathParamRole(ctx *fasthttp.RequestCtx) (role.Role, error) {
	raw, err := pathParam(ctx, "role")
	if err != nil {
		return "", err
	}
	return role.Parse(raw)
}
