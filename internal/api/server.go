// Package api exposes the agent's HTTP surface: health, debug state, stored
// transcripts, and a live transcript websocket feed.
package api

import (
	"context"
	"net/http"

	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
	"go.uber.org/zap"

	"github.com/aurelia-labs/voicekit/domain/repositories"
)

// StateFunc reports the agent's current state for the debug endpoint.
type StateFunc func() map[string]interface{}

// LaunchFunc dispatches an agent job into a room.
type LaunchFunc func(ctx context.Context, roomName, participantIdentity string) error

// ErrorResponse is the JSON error body.
type ErrorResponse struct {
	Error   string `json:"error"`
	Message string `json:"message"`
}

// Server hosts the HTTP API.
type Server struct {
	echo        *echo.Echo
	feed        *Feed
	transcripts repositories.TranscriptRepository
	state       StateFunc
	launch      LaunchFunc
	logger      *zap.Logger
}

// NewServer builds the HTTP server and registers routes.
func NewServer(transcripts repositories.TranscriptRepository, feed *Feed, state StateFunc, logger *zap.Logger) *Server {
	e := echo.New()
	e.HideBanner = true
	e.HidePort = true
	e.Use(middleware.Recover())

	s := &Server{
		echo:        e,
		feed:        feed,
		transcripts: transcripts,
		state:       state,
		logger:      logger,
	}
	s.initRoutes()
	return s
}

// OnLaunch installs the job dispatcher behind POST /api/v1/jobs. Without
// one the endpoint reports that dispatch is unavailable.
func (s *Server) OnLaunch(fn LaunchFunc) {
	s.launch = fn
}

func (s *Server) initRoutes() {
	s.echo.GET("/health", func(c echo.Context) error {
		return c.JSON(http.StatusOK, map[string]string{
			"status":  "ok",
			"service": "voicekit",
		})
	})

	s.echo.GET("/debug/state", func(c echo.Context) error {
		state := map[string]interface{}{}
		if s.state != nil {
			state = s.state()
		}
		state["feed_subscribers"] = s.feed.SubscriberCount()
		return c.JSON(http.StatusOK, state)
	})

	v1 := s.echo.Group("/api/v1")
	v1.GET("/transcripts/:room", s.getTranscript)
	v1.POST("/jobs", s.createJob)

	// Live transcript feed for dashboards.
	s.echo.GET("/ws/transcripts", s.feed.ServeWS)
}

func (s *Server) getTranscript(c echo.Context) error {
	roomID := c.Param("room")
	participant := c.QueryParam("participant")
	if participant == "" {
		return c.JSON(http.StatusBadRequest, ErrorResponse{
			Error:   "missing_participant",
			Message: "participant query parameter is required",
		})
	}

	session, err := s.transcripts.GetLastByRoom(c.Request().Context(), roomID, participant)
	if err != nil {
		s.logger.Error("Failed to load transcript",
			zap.String("room", roomID),
			zap.Error(err))
		return c.JSON(http.StatusInternalServerError, ErrorResponse{
			Error:   "internal_error",
			Message: "Failed to load transcript",
		})
	}
	if session == nil {
		return c.JSON(http.StatusNotFound, ErrorResponse{
			Error:   "not_found",
			Message: "No transcript for this room and participant",
		})
	}
	return c.JSON(http.StatusOK, session)
}

type createJobRequest struct {
	Room                string `json:"room"`
	ParticipantIdentity string `json:"participant_identity"`
}

func (s *Server) createJob(c echo.Context) error {
	if s.launch == nil {
		return c.JSON(http.StatusServiceUnavailable, ErrorResponse{
			Error:   "dispatch_unavailable",
			Message: "This server does not dispatch jobs",
		})
	}

	var req createJobRequest
	if err := c.Bind(&req); err != nil || req.Room == "" {
		return c.JSON(http.StatusBadRequest, ErrorResponse{
			Error:   "invalid_request",
			Message: "room is required",
		})
	}

	if err := s.launch(c.Request().Context(), req.Room, req.ParticipantIdentity); err != nil {
		s.logger.Error("Failed to launch job",
			zap.String("room", req.Room),
			zap.Error(err))
		return c.JSON(http.StatusConflict, ErrorResponse{
			Error:   "launch_failed",
			Message: err.Error(),
		})
	}
	return c.JSON(http.StatusAccepted, map[string]string{
		"status": "launched",
		"room":   req.Room,
	})
}

// Start begins serving on addr. Blocks until shutdown.
func (s *Server) Start(addr string) error {
	s.logger.Info("HTTP server listening", zap.String("addr", addr))
	return s.echo.Start(addr)
}

// Shutdown stops the server gracefully.
func (s *Server) Shutdown(ctx context.Context) error {
	return s.echo.Shutdown(ctx)
}

// Handler exposes the underlying handler for tests.
func (s *Server) Handler() http.Handler {
	return s.echo
}
