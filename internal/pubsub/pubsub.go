package pubsub

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/curaious/xm/internal/config"
	"github.com/google/uuid"
	"github.com/lib/pq"
)

const Channel = "workspace_changes"

// ChangeType is the table a notification originates from
type ChangeType string

const (
	ChangeTypeUserEntityRole ChangeType = "user_entity_roles"
	ChangeTypeWorkspace      ChangeType = "workspaces"
)

// OperationReload is emitted after a reconnect, since notifications may have been missed
const OperationReload = "RELOAD"

// ChangeEvent is a parsed workspace_changes notification
type ChangeEvent struct {
	ChangeType  ChangeType
	Operation   string // INSERT, UPDATE, DELETE or RELOAD
	UserID      *uuid.UUID
	WorkspaceID *uuid.UUID
}

// ChangeHandler is a callback for change events
type ChangeHandler func(event ChangeEvent)

// ParsePayload decodes "table:operation[:user_id[:workspace_id]]". Empty ids are
// allowed; global role rows carry no workspace id.
func ParsePayload(payload string) (ChangeEvent, error) {
	parts := strings.Split(payload, ":")
	if len(parts) < 2 || len(parts) > 4 || parts[0] == "" || parts[1] == "" {
		return ChangeEvent{}, fmt.Errorf("invalid notification payload %q", payload)
	}

	event := ChangeEvent{
		ChangeType: ChangeType(parts[0]),
		Operation:  strings.ToUpper(parts[1]),
	}

	var err error
	if len(parts) > 2 {
		if event.UserID, err = parseOptionalID(parts[2]); err != nil {
			return ChangeEvent{}, fmt.Errorf("invalid user id in payload %q: %w", payload, err)
		}
	}
	if len(parts) > 3 {
		if event.WorkspaceID, err = parseOptionalID(parts[3]); err != nil {
			return ChangeEvent{}, fmt.Errorf("invalid workspace id in payload %q: %w", payload, err)
		}
	}

	return event, nil
}

func parseOptionalID(s string) (*uuid.UUID, error) {
	if s == "" {
		return nil, nil
	}
	id, err := uuid.Parse(s)
	if err != nil {
		return nil, err
	}
	return &id, nil
}

// PubSub handles PostgreSQL LISTEN/NOTIFY for workspace and role changes
type PubSub struct {
	connStr  string
	listener *pq.Listener
	handlers []ChangeHandler
	mu       sync.RWMutex
	ctx      context.Context
	cancel   context.CancelFunc
}

func NewPubSub(conf *config.Config) *PubSub {
	ctx, cancel := context.WithCancel(context.Background())

	return &PubSub{
		connStr:  conf.DSN(),
		handlers: make([]ChangeHandler, 0),
		ctx:      ctx,
		cancel:   cancel,
	}
}

// Subscribe adds a handler for change events
func (ps *PubSub) Subscribe(handler ChangeHandler) {
	ps.mu.Lock()
	defer ps.mu.Unlock()
	ps.handlers = append(ps.handlers, handler)
}

// Start begins listening for notifications
func (ps *PubSub) Start() error {
	reportProblem := func(ev pq.ListenerEventType, err error) {
		if err != nil {
			slog.Error("PubSub listener error", slog.Any("error", err))
		}
		switch ev {
		case pq.ListenerEventConnectionAttemptFailed:
			slog.Warn("PubSub connection attempt failed, will retry")
		case pq.ListenerEventDisconnected:
			slog.Warn("PubSub disconnected, will attempt reconnect")
		case pq.ListenerEventReconnected:
			slog.Info("PubSub reconnected, asking handlers to reload")
			ps.notifyHandlers(ChangeEvent{ChangeType: ChangeTypeUserEntityRole, Operation: OperationReload})
		}
	}

	ps.listener = pq.NewListener(ps.connStr, 10*time.Second, time.Minute, reportProblem)

	if err := ps.listener.Listen(Channel); err != nil {
		return fmt.Errorf("failed to listen on %s channel: %w", Channel, err)
	}

	slog.Info("PubSub started listening", slog.String("channel", Channel))

	go ps.processNotifications()

	return nil
}

// Stop closes the listener
func (ps *PubSub) Stop() {
	ps.cancel()
	if ps.listener != nil {
		ps.listener.Close()
	}
	slog.Info("PubSub stopped")
}

func (ps *PubSub) processNotifications() {
	for {
		select {
		case <-ps.ctx.Done():
			return
		case notification := <-ps.listener.Notify:
			if notification == nil {
				// connection lost, reportProblem handles it
				continue
			}
			ps.dispatch(notification.Extra)
		}
	}
}

func (ps *PubSub) dispatch(payload string) {
	event, err := ParsePayload(payload)
	if err != nil {
		slog.Warn("Invalid notification payload", slog.String("payload", payload), slog.Any("error", err))
		return
	}

	slog.Debug("Received change notification",
		slog.String("table", string(event.ChangeType)),
		slog.String("operation", event.Operation))

	ps.notifyHandlers(event)
}

func (ps *PubSub) notifyHandlers(event ChangeEvent) {
	ps.mu.RLock()
	handlers := make([]ChangeHandler, len(ps.handlers))
	copy(handlers, ps.handlers)
	ps.mu.RUnlock()

	for _, handler := range handlers {
		// handlers must not block the notification loop
		go handler(event)
	}
}
