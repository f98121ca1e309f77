package main

import (
	"log/slog"

	"github.com/relaychat/relaychat/config"
	"github.com/relaychat/relaychat/server/chat"
	"github.com/relaychat/relaychat/server/chat/middleware"
	"github.com/relaychat/relaychat/state"
)

// Container holds the process's dependency graph, built once in
// MakeCommonDeps and handed to each long-running component. Modeled on the
// teacher's factory.go Container, trimmed to this server's single listener.
type Container struct {
	cfg      config.Config
	logger   *slog.Logger
	registry *state.Registry
	router   chat.Router
}

// MakeCommonDeps loads configuration and builds the shared dependencies
// every component needs.
func MakeCommonDeps(cfgFile string) (Container, error) {
	cfg, err := config.Load(cfgFile)
	if err != nil {
		return Container{}, err
	}

	logger := middleware.NewLogger(cfg)
	registry := state.NewRegistry(cfg.MaxUsers)

	router := chat.NewRouter()
	chat.RegisterHandlers(router)

	return Container{
		cfg:      cfg,
		logger:   logger,
		registry: registry,
		router:   router,
	}, nil
}

// ChatServer builds the chat.Server from deps.
func ChatServer(deps Container) *chat.Server {
	return chat.NewServer(deps.cfg, deps.registry, deps.router, deps.logger)
}
