// Package handlers implements the HTTP surface: the public action
// gateway hit from email links, the status endpoint and the
// JWT-protected admin API.
package handlers

import (
	"alertrelay.io/relay/internal/api/middleware"
	"alertrelay.io/relay/internal/lifecycle"
	"alertrelay.io/relay/internal/repository"
)

// Server holds all handler dependencies. Manual DI, no wiring framework.
type Server struct {
	store  repository.AdminStore
	engine *lifecycle.Engine
	jwtCfg middleware.JWTConfig

	adminUser         string
	adminPasswordHash string

	// ready reports backing-store health for the readiness probe.
	// Optional; nil means "always ready".
	ready func() error
}

// ServerDeps holds all dependencies for creating a Server.
type ServerDeps struct {
	Store             repository.AdminStore
	Engine            *lifecycle.Engine
	JWTCfg            middleware.JWTConfig
	AdminUser         string
	AdminPasswordHash string
	Ready             func() error
}

// NewServer creates a Server with all dependencies.
func NewServer(deps ServerDeps) *Server {
	return &Server{
		store:             deps.Store,
		engine:            deps.Engine,
		jwtCfg:            deps.JWTCfg,
		adminUser:         deps.AdminUser,
		adminPasswordHash: deps.AdminPasswordHash,
		ready:             deps.Ready,
	}
}
