package api

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/marmos91/dittoblock/internal/logger"
	"github.com/marmos91/dittoblock/pkg/volmgr"
)

// ServerConfig configures the API HTTP server.
type ServerConfig struct {
	Port            int
	JWTSecret       string
	TokenLifetime   time.Duration
	ReadTimeout     time.Duration
	WriteTimeout    time.Duration
	ShutdownTimeout time.Duration
}

func (c *ServerConfig) applyDefaults() {
	if c.Port == 0 {
		c.Port = 8080
	}
	if c.ReadTimeout == 0 {
		c.ReadTimeout = 30 * time.Second
	}
	if c.WriteTimeout == 0 {
		c.WriteTimeout = 30 * time.Second
	}
	if c.ShutdownTimeout == 0 {
		c.ShutdownTimeout = 10 * time.Second
	}
}

// Server is the API HTTP server. Created stopped; Start begins serving.
type Server struct {
	server       *http.Server
	cfg          ServerConfig
	shutdownOnce sync.Once
}

// NewServer builds the server and its token service from the config.
func NewServer(cfg ServerConfig, mgr *volmgr.Manager) (*Server, error) {
	cfg.applyDefaults()

	tokens, err := NewTokenService(cfg.JWTSecret, cfg.TokenLifetime)
	if err != nil {
		return nil, fmt.Errorf("failed to create token service: %w", err)
	}

	return &Server{
		cfg: cfg,
		server: &http.Server{
			Addr:         fmt.Sprintf(":%d", cfg.Port),
			Handler:      NewRouter(mgr, tokens),
			ReadTimeout:  cfg.ReadTimeout,
			WriteTimeout: cfg.WriteTimeout,
		},
	}, nil
}

// Start serves until Shutdown is called. Blocks.
func (s *Server) Start() error {
	logger.Info("API server listening", "addr", s.server.Addr)
	if err := s.server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return fmt.Errorf("API server failed: %w", err)
	}
	return nil
}

// Shutdown drains in-flight requests and stops the listener.
func (s *Server) Shutdown(ctx context.Context) error {
	var err error
	s.shutdownOnce.Do(func() {
		sctx, cancel := context.WithTimeout(ctx, s.cfg.ShutdownTimeout)
		defer cancel()
		err = s.server.Shutdown(sctx)
	})
	return err
}
