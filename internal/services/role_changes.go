package services

import (
	"context"
	"log/slog"
	"time"

	"github.com/curaious/xm/internal/pubsub"
)

// HandleRoleChange keeps active workspace sessions consistent with role
// assignments removed by this or any other instance.
func (s *Services) HandleRoleChange(event pubsub.ChangeEvent) {
	if event.ChangeType != pubsub.ChangeTypeUserEntityRole || event.Operation != "DELETE" {
		return
	}
	if event.UserID == nil || event.WorkspaceID == nil {
		return
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := s.Workspace.ReconcileActiveWorkspace(ctx, *event.UserID, *event.WorkspaceID); err != nil {
		slog.Error("Failed to reconcile active workspace",
			slog.String("user_id", event.UserID.String()),
			slog.String("workspace_id", event.WorkspaceID.String()),
			slog.Any("error", err))
	}
}
