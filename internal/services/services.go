package services

import (
	"context"
	"log/slog"

	"github.com/curaious/xm/internal/config"
	"github.com/curaious/xm/internal/db"
	"github.com/curaious/xm/internal/security"
	"github.com/curaious/xm/internal/services/role"
	"github.com/curaious/xm/internal/services/session"
	"github.com/curaious/xm/internal/services/user"
	"github.com/curaious/xm/internal/services/workspace"
)

type Services struct {
	Workspace *workspace.WorkspaceService
	User      *user.UserService
	Sessions  session.Store
	Security  security.ContextProvider
}

func NewServices(conf *config.Config) *Services {
	dbconn := db.NewConn(conf)

	sessions, err := session.NewStore(context.Background(), conf)
	if err != nil {
		slog.Warn("Failed to connect to redis, falling back to in-memory sessions", slog.Any("error", err))
		sessions = session.NewInMemoryStore(conf.SESSION_TTL)
	}

	users := user.NewUserService(user.NewUserRepo(dbconn))
	provider := security.NewRequestContextProvider(sessions)

	return &Services{
		Workspace: workspace.NewWorkspaceService(
			workspace.NewWorkspaceRepo(dbconn),
			users,
			role.NewTransformer(),
			provider,
			sessions,
			workspace.RetryConfig{
				MaxRetries: conf.USER_CONTEXT_MAX_RETRIES,
				MaxWait:    conf.USER_CONTEXT_MAX_WAIT,
			},
		),
		User:     users,
		Sessions: sessions,
		Security: provider,
	}
}
