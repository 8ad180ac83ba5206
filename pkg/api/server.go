// Package api serves a streaming agent over HTTP: a blocking /run endpoint, a
// websocket that streams progress, and read access to the agent's sessions.
package api

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/rs/cors"
	"go.uber.org/zap"

	"github.com/agent-protocol/adk-tutorials/pkg/core"
	"github.com/agent-protocol/adk-tutorials/pkg/sessions"
)

// Update is one item of an agent's stream.
type Update struct {
	IsTaskComplete bool   `json:"is_task_complete"`
	Content        string `json:"content,omitempty"`
	Updates        string `json:"updates,omitempty"`
}

// Streamer is an agent that reports progress while answering a query.
type Streamer interface {
	Stream(ctx context.Context, query, sessionID string, yield func(Update) error) error
}

// ServerConfig configures a Server.
type ServerConfig struct {
	Agent Streamer
	// Sessions, AppName and UserID enable the session routes.
	Sessions       core.SessionService
	AppName        string
	UserID         string
	AllowedOrigins []string
	Logger         *zap.Logger
}

// Server is the HTTP API of one agent.
type Server struct {
	config   ServerConfig
	router   *http.ServeMux
	handler  http.Handler
	upgrader websocket.Upgrader
	logger   *zap.Logger
}

// RunRequest is the body of POST /run and every websocket message.
type RunRequest struct {
	Message   string `json:"message"`
	SessionID string `json:"session_id,omitempty"`
}

// RunResponse is the answer to POST /run.
type RunResponse struct {
	IsTaskComplete bool   `json:"is_task_complete"`
	Content        string `json:"content"`
	SessionID      string `json:"session_id"`
}

// ErrorResponse is written for every failed request.
type ErrorResponse struct {
	Error string `json:"error"`
}

// NewServer creates a new API server instance
func NewServer(config ServerConfig) (*Server, error) {
	if config.Agent == nil {
		return nil, fmt.Errorf("agent is required")
	}
	if config.Logger == nil {
		config.Logger = zap.NewNop()
	}
	if len(config.AllowedOrigins) == 0 {
		config.AllowedOrigins = []string{"*"}
	}

	s := &Server{
		config: config,
		logger: config.Logger.With(zap.String("component", "api_server")),
		upgrader: websocket.Upgrader{
			CheckOrigin: func(r *http.Request) bool { return true },
		},
	}
	s.setupRoutes()

	c := cors.New(cors.Options{
		AllowedOrigins:   config.AllowedOrigins,
		AllowCredentials: true,
		AllowedMethods:   []string{http.MethodGet, http.MethodPost, http.MethodDelete, http.MethodOptions},
		AllowedHeaders:   []string{"*"},
	})
	s.handler = c.Handler(s.router)
	return s, nil
}

// setupRoutes configures all HTTP routes
func (s *Server) setupRoutes() {
	s.router = http.NewServeMux()
	s.router.HandleFunc("GET /health", s.handleHealth)
	s.router.HandleFunc("POST /run", s.handleRun)
	s.router.HandleFunc("GET /run_ws", s.handleRunWS)

	if s.config.Sessions != nil {
		s.router.HandleFunc("GET /sessions", s.handleListSessions)
		s.router.HandleFunc("GET /sessions/{session_id}", s.handleGetSession)
		s.router.HandleFunc("DELETE /sessions/{session_id}", s.handleDeleteSession)
	}
}

// Handler returns the router wrapped with CORS.
func (s *Server) Handler() http.Handler {
	return s.handler
}

// ListenAndServe serves on addr until ctx is done, then shuts down gracefully.
func (s *Server) ListenAndServe(ctx context.Context, addr string) error {
	srv := &http.Server{
		Addr:              addr,
		Handler:           s.handler,
		ReadHeaderTimeout: 10 * time.Second,
	}

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = srv.Shutdown(shutdownCtx)
	}()

	s.logger.Info("Starting API server", zap.String("addr", addr))
	if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return fmt.Errorf("api server on %s: %w", addr, err)
	}
	return nil
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{
		"status": "healthy",
		"time":   time.Now().Format(time.RFC3339),
	})
}

// handleRun runs the query to completion and returns the final answer.
func (s *Server) handleRun(w http.ResponseWriter, r *http.Request) {
	var req RunRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, ErrorResponse{Error: fmt.Sprintf("invalid request body: %v", err)})
		return
	}
	if req.Message == "" {
		writeJSON(w, http.StatusBadRequest, ErrorResponse{Error: "message is required"})
		return
	}
	if req.SessionID == "" {
		req.SessionID = uuid.NewString()
	}

	resp := RunResponse{SessionID: req.SessionID}
	err := s.config.Agent.Stream(r.Context(), req.Message, req.SessionID, func(u Update) error {
		if u.IsTaskComplete {
			resp.IsTaskComplete = true
			resp.Content = u.Content
		}
		return nil
	})
	if err != nil {
		s.logger.Error("Agent run failed", zap.String("session_id", req.SessionID), zap.Error(err))
		writeJSON(w, http.StatusInternalServerError, ErrorResponse{Error: err.Error()})
		return
	}
	writeJSON(w, http.StatusOK, resp)
}

// handleRunWS reads RunRequests from the socket and streams every update back.
// The session_id query parameter is used for requests that carry none.
func (s *Server) handleRunWS(w http.ResponseWriter, r *http.Request) {
	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.logger.Warn("Failed to upgrade WebSocket connection", zap.Error(err))
		return
	}
	defer conn.Close()

	sessionID := r.URL.Query().Get("session_id")
	if sessionID == "" {
		sessionID = uuid.NewString()
	}
	logger := s.logger.With(zap.String("session_id", sessionID))

	ctx, cancel := context.WithCancel(r.Context())
	defer cancel()

	for {
		var req RunRequest
		if err := conn.ReadJSON(&req); err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				logger.Warn("WebSocket error", zap.Error(err))
			}
			return
		}
		if req.SessionID == "" {
			req.SessionID = sessionID
		}
		if req.Message == "" {
			if err := conn.WriteJSON(ErrorResponse{Error: "message is required"}); err != nil {
				return
			}
			continue
		}

		err := s.config.Agent.Stream(ctx, req.Message, req.SessionID, func(u Update) error {
			return conn.WriteJSON(u)
		})
		if err != nil {
			logger.Error("Agent run failed", zap.Error(err))
			if werr := conn.WriteJSON(ErrorResponse{Error: err.Error()}); werr != nil {
				return
			}
		}
	}
}

func (s *Server) handleListSessions(w http.ResponseWriter, r *http.Request) {
	resp, err := s.config.Sessions.ListSessions(r.Context(), &core.ListSessionsRequest{
		AppName: s.config.AppName,
		UserID:  s.config.UserID,
	})
	if err != nil {
		writeJSON(w, http.StatusInternalServerError, ErrorResponse{Error: err.Error()})
		return
	}
	writeJSON(w, http.StatusOK, resp)
}

func (s *Server) handleGetSession(w http.ResponseWriter, r *http.Request) {
	session, err := s.config.Sessions.GetSession(r.Context(), &core.GetSessionRequest{
		AppName:   s.config.AppName,
		UserID:    s.config.UserID,
		SessionID: r.PathValue("session_id"),
	})
	if err != nil {
		writeJSON(w, sessionErrorStatus(err), ErrorResponse{Error: err.Error()})
		return
	}
	if session == nil {
		writeJSON(w, http.StatusNotFound, ErrorResponse{Error: sessions.ErrSessionNotFound.Error()})
		return
	}
	writeJSON(w, http.StatusOK, session)
}

func (s *Server) handleDeleteSession(w http.ResponseWriter, r *http.Request) {
	err := s.config.Sessions.DeleteSession(r.Context(), &core.DeleteSessionRequest{
		AppName:   s.config.AppName,
		UserID:    s.config.UserID,
		SessionID: r.PathValue("session_id"),
	})
	if err != nil {
		writeJSON(w, sessionErrorStatus(err), ErrorResponse{Error: err.Error()})
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func sessionErrorStatus(err error) int {
	if errors.Is(err, sessions.ErrSessionNotFound) {
		return http.StatusNotFound
	}
	return http.StatusInternalServerError
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
