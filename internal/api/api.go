package api

import (
	"context"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/curaious/xm/internal/api/authenticator"
	"github.com/curaious/xm/internal/config"
	"github.com/curaious/xm/internal/migrations"
	"github.com/curaious/xm/internal/pubsub"
	"github.com/curaious/xm/internal/services"
	"github.com/valyala/fasthttp"
)

// Server is the workspace HTTP API
type Server struct {
	srv      *fasthttp.Server
	addr     string
	conf     *config.Config
	services *services.Services
	auth     *authenticator.Authenticator
	pubsub   *pubsub.PubSub
}

// New migrates the database and wires the services behind a fasthttp server
func New(conf *config.Config) *Server {
	m, err := migrations.NewMigrator()
	if err != nil {
		panic("unable to create migrator")
	}

	if err := m.Up(0); err != nil {
		panic("unable to run migrations")
	}

	auth, err := authenticator.New(context.Background(), conf)
	if err != nil {
		slog.Error("Unable to create authenticator", slog.Any("error", err))
		panic(err)
	}

	s := &Server{
		srv: &fasthttp.Server{
			Name:         "xm",
			ReadTimeout:  30 * time.Second,
			WriteTimeout: 30 * time.Second,
		},
		addr:     conf.HTTP_ADDR,
		conf:     conf,
		services: services.NewServices(conf),
		auth:     auth,
		pubsub:   pubsub.NewPubSub(conf),
	}

	s.pubsub.Subscribe(s.services.HandleRoleChange)
	s.srv.Handler = s.initNewRoutes()

	return s
}

// Start serves until SIGINT or SIGTERM
func (s *Server) Start() {
	if err := s.pubsub.Start(); err != nil {
		// sessions still work, they just miss role removals from other instances
		slog.Warn("Unable to start pubsub listener", slog.Any("error", err))
	}

	slog.Info("Starting REST server...", slog.String("addr", s.addr))
	go func() {
		if err := s.srv.ListenAndServe(s.addr); err != nil {
			slog.Error("Server shutdown", slog.Any("error", err))
		}
	}()
	slog.Info("REST server started!")

	c := make(chan os.Signal, 1)
	signal.Notify(c, os.Interrupt, syscall.SIGTERM)

	<-c
	slog.Info("Received interrupt...")

	ctx, cancel := context.WithTimeout(context.Background(), 60*time.Second)
	defer cancel()

	s.shutdown(ctx)
}

func (s *Server) shutdown(ctx context.Context) {
	slog.Info("Gracefully shutting down REST server...")
	if err := s.srv.ShutdownWithContext(ctx); err != nil {
		slog.Error("Failed to shutdown the server", slog.Any("error", err))
	}
	s.pubsub.Stop()
	slog.Info("REST server shutdown!")
}
