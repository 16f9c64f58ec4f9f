package v1

import (
	"log/slog"
	"net/http"
	"strings"

	"github.com/labstack/echo/v4"
	"github.com/pkg/errors"

	"github.com/mindgate/intake/server/service/intake"
)

// StartSessionRequest starts a new intake session. OwnerID is optional;
// without it the session is anonymous and can be linked later.
type StartSessionRequest struct {
	OwnerID *string `json:"ownerId,omitempty"`
}

type SendMessageRequest struct {
	Message string `json:"message"`
}

type SubmitAnswerRequest struct {
	QuestionID string `json:"questionId"`
	Value      int    `json:"value"`
}

type LinkSessionRequest struct {
	OwnerID string `json:"ownerId"`
}

// StartSession creates a session.
// POST /api/v1/sessions
func (s *APIV1Service) StartSession(c echo.Context) error {
	request := &StartSessionRequest{}
	if err := c.Bind(request); err != nil {
		return c.JSON(http.StatusBadRequest, errorBody("malformed request body"))
	}

	ownerID := request.OwnerID
	if ownerID == nil {
		ownerID = callerID(c)
	}

	session, err := s.Intake.StartSession(c.Request().Context(), ownerID)
	if err != nil {
		return serviceError(c, err)
	}
	return c.JSON(http.StatusCreated, session)
}

// SendMessage handles one conversational turn.
// POST /api/v1/sessions/:id/messages
func (s *APIV1Service) SendMessage(c echo.Context) error {
	request := &SendMessageRequest{}
	if err := c.Bind(request); err != nil {
		return c.JSON(http.StatusBadRequest, errorBody("malformed request body"))
	}
	if strings.TrimSpace(request.Message) == "" {
		return c.JSON(http.StatusBadRequest, errorBody("message is required"))
	}

	response, err := s.Intake.SendMessage(c.Request().Context(), c.Param("id"), callerID(c), request.Message)
	if err != nil {
		return serviceError(c, err)
	}
	return c.JSON(http.StatusOK, response)
}

// SubmitAnswer records a structured rating answer.
// POST /api/v1/sessions/:id/answers
func (s *APIV1Service) SubmitAnswer(c echo.Context) error {
	request := &SubmitAnswerRequest{}
	if err := c.Bind(request); err != nil {
		return c.JSON(http.StatusBadRequest, errorBody("malformed request body"))
	}
	if strings.TrimSpace(request.QuestionID) == "" {
		return c.JSON(http.StatusBadRequest, errorBody("questionId is required"))
	}
	if request.Value < 0 || request.Value > 4 {
		return c.JSON(http.StatusBadRequest, errorBody("value must be between 0 and 4"))
	}

	response, err := s.Intake.SubmitStructuredAnswer(c.Request().Context(), c.Param("id"), callerID(c), request.QuestionID, request.Value)
	if err != nil {
		return serviceError(c, err)
	}
	return c.JSON(http.StatusOK, response)
}

// CompleteSession explicitly finishes a session and returns its scores.
// POST /api/v1/sessions/:id/complete
func (s *APIV1Service) CompleteSession(c echo.Context) error {
	result, err := s.Intake.CompleteSession(c.Request().Context(), c.Param("id"), callerID(c))
	if err != nil {
		return serviceError(c, err)
	}
	return c.JSON(http.StatusOK, result)
}

// EvaluateCompletion reports whether the session has gathered enough.
// GET /api/v1/sessions/:id/evaluate
func (s *APIV1Service) EvaluateCompletion(c echo.Context) error {
	verdict, err := s.Intake.EvaluateCompletion(c.Request().Context(), c.Param("id"), callerID(c))
	if err != nil {
		return serviceError(c, err)
	}
	return c.JSON(http.StatusOK, verdict)
}

// LinkSession claims an anonymous session for an owner.
// POST /api/v1/sessions/:id/link
func (s *APIV1Service) LinkSession(c echo.Context) error {
	request := &LinkSessionRequest{}
	if err := c.Bind(request); err != nil {
		return c.JSON(http.StatusBadRequest, errorBody("malformed request body"))
	}
	if strings.TrimSpace(request.OwnerID) == "" {
		return c.JSON(http.StatusBadRequest, errorBody("ownerId is required"))
	}

	result, err := s.Intake.LinkAnonymousSession(c.Request().Context(), c.Param("id"), request.OwnerID)
	if err != nil {
		return serviceError(c, err)
	}
	return c.JSON(http.StatusOK, result)
}

// GetSession returns the session record.
// GET /api/v1/sessions/:id
func (s *APIV1Service) GetSession(c echo.Context) error {
	session, err := s.Intake.GetSession(c.Request().Context(), c.Param("id"), callerID(c))
	if err != nil {
		return serviceError(c, err)
	}
	return c.JSON(http.StatusOK, session)
}

// ResumeSession returns the session with its conversation history.
// GET /api/v1/sessions/:id/resume
func (s *APIV1Service) ResumeSession(c echo.Context) error {
	state, err := s.Intake.ResumeSession(c.Request().Context(), c.Param("id"), callerID(c))
	if err != nil {
		return serviceError(c, err)
	}
	return c.JSON(http.StatusOK, state)
}

// ListSessions returns the caller's session summaries.
// GET /api/v1/sessions
func (s *APIV1Service) ListSessions(c echo.Context) error {
	ownerID := callerID(c)
	if ownerID == nil {
		return c.JSON(http.StatusBadRequest, errorBody("owner identity is required"))
	}

	sessions, err := s.Intake.ListSessions(c.Request().Context(), *ownerID)
	if err != nil {
		return serviceError(c, err)
	}
	return c.JSON(http.StatusOK, sessions)
}

// callerID extracts the caller identity from the X-Owner-Id header or the
// ownerId query parameter. Nil means anonymous.
func callerID(c echo.Context) *string {
	if v := strings.TrimSpace(c.Request().Header.Get("X-Owner-Id")); v != "" {
		return &v
	}
	if v := strings.TrimSpace(c.QueryParam("ownerId")); v != "" {
		return &v
	}
	return nil
}

func errorBody(message string) map[string]string {
	return map[string]string{"error": message}
}

// serviceError maps service errors to HTTP statuses. Persistence and
// other unexpected failures are logged and hidden behind a 500.
func serviceError(c echo.Context, err error) error {
	switch {
	case errors.Is(err, intake.ErrSessionNotFound):
		return c.JSON(http.StatusNotFound, errorBody("session not found"))
	case errors.Is(err, intake.ErrOwnershipMismatch):
		return c.JSON(http.StatusForbidden, errorBody("session does not belong to caller"))
	case errors.Is(err, intake.ErrAlreadyLinked):
		return c.JSON(http.StatusBadRequest, errorBody("session is already linked"))
	default:
		slog.Error("request failed", "path", c.Path(), "error", err)
		return c.JSON(http.StatusInternalServerError, errorBody("internal server error"))
	}
}
