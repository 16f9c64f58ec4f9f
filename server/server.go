// Package server assembles the HTTP server: echo instance, middleware,
// API routes, and the background session reaper.
package server

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
	"github.com/pkg/errors"

	"github.com/mindgate/intake/internal/profile"
	"github.com/mindgate/intake/plugin/ai"
	apiv1 "github.com/mindgate/intake/server/router/api/v1"
	"github.com/mindgate/intake/server/service/intake"
	"github.com/mindgate/intake/store"
)

type Server struct {
	Profile *profile.Profile
	Store   *store.Store

	echoServer *echo.Echo
	intake     *intake.Service
	reaper     *intake.Reaper
}

func NewServer(ctx context.Context, profile *profile.Profile, store *store.Store) (*Server, error) {
	e := echo.New()
	e.HideBanner = true
	e.HidePort = true

	e.Use(middleware.Recover())
	e.Use(middleware.CORSWithConfig(middleware.CORSConfig{
		AllowOrigins: []string{"*"},
		AllowMethods: []string{http.MethodGet, http.MethodPost, http.MethodDelete},
	}))
	e.Use(middleware.RequestLoggerWithConfig(middleware.RequestLoggerConfig{
		LogURI:    true,
		LogStatus: true,
		LogValuesFunc: func(c echo.Context, v middleware.RequestLoggerValues) error {
			slog.Info("request", "uri", v.URI, "status", v.Status)
			return nil
		},
	}))

	client, err := ai.NewClient(ai.NewLLMConfigFromProfile(profile))
	if err != nil {
		return nil, errors.Wrap(err, "failed to create model client")
	}

	intakeService := intake.NewService(store, client, profile)
	s := &Server{
		Profile:    profile,
		Store:      store,
		echoServer: e,
		intake:     intakeService,
		reaper:     intake.NewReaper(intakeService, profile.SessionIdleTimeout, profile.ReaperInterval),
	}

	e.GET("/healthz", func(c echo.Context) error {
		return c.String(http.StatusOK, "Service ready.")
	})

	apiv1.NewAPIV1Service(profile, store, intakeService).Register(e)

	return s, nil
}

// Start begins serving and launches the session reaper. It blocks until
// the listener fails or is shut down.
func (s *Server) Start(ctx context.Context) error {
	go s.reaper.Run(ctx)

	address := fmt.Sprintf("%s:%d", s.Profile.Addr, s.Profile.Port)
	slog.Info("server started", "address", address, "version", s.Profile.Version)
	if err := s.echoServer.Start(address); err != nil && err != http.ErrServerClosed {
		return err
	}
	return nil
}

// Shutdown gracefully stops the HTTP server and closes the store.
func (s *Server) Shutdown(ctx context.Context) {
	ctx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()

	if err := s.echoServer.Shutdown(ctx); err != nil {
		slog.Error("failed to shut down server", "error", err)
	}
	if err := s.Store.Close(); err != nil {
		slog.Error("failed to close store", "error", err)
	}
	slog.Info("server stopped")
}
