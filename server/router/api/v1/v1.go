// Package v1 exposes the intake REST API over echo.
package v1

import (
	"github.com/labstack/echo/v4"

	"github.com/mindgate/intake/internal/profile"
	"github.com/mindgate/intake/server/service/intake"
	"github.com/mindgate/intake/store"
)

type APIV1Service struct {
	Profile *profile.Profile
	Store   *store.Store
	Intake  *intake.Service
}

func NewAPIV1Service(profile *profile.Profile, store *store.Store, intakeService *intake.Service) *APIV1Service {
	return &APIV1Service{
		Profile: profile,
		Store:   store,
		Intake:  intakeService,
	}
}

// Register mounts all v1 routes on the given echo instance.
func (s *APIV1Service) Register(e *echo.Echo) {
	g := e.Group("/api/v1")

	g.POST("/sessions", s.StartSession)
	g.GET("/sessions", s.ListSessions)
	g.GET("/sessions/:id", s.GetSession)
	g.GET("/sessions/:id/resume", s.ResumeSession)
	g.POST("/sessions/:id/messages", s.SendMessage)
	g.POST("/sessions/:id/answers", s.SubmitAnswer)
	g.POST("/sessions/:id/complete", s.CompleteSession)
	g.GET("/sessions/:id/evaluate", s.EvaluateCompletion)
	g.POST("/sessions/:id/link", s.LinkSession)
}
