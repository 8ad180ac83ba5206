// Package sessions provides session management implementations.
package sessions

import (
	"context"
	"fmt"
	"maps"
	"sync"

	"github.com/google/uuid"

	"github.com/agent-protocol/adk-tutorials/pkg/core"
)

var _ core.SessionService = (*InMemorySessionService)(nil)

// InMemorySessionService implements SessionService using in-memory storage.
type InMemorySessionService struct {
	sessions map[string]*core.Session
	mutex    sync.RWMutex
}

// NewInMemorySessionService creates a new in-memory session service.
func NewInMemorySessionService() *InMemorySessionService {
	return &InMemorySessionService{
		sessions: make(map[string]*core.Session),
	}
}

// CreateSession creates a new session. An empty SessionID gets a generated one.
func (s *InMemorySessionService) CreateSession(ctx context.Context, req *core.CreateSessionRequest) (*core.Session, error) {
	if err := validateCreate(req); err != nil {
		return nil, err
	}

	s.mutex.Lock()
	defer s.mutex.Unlock()

	id := req.SessionID
	if id == "" {
		id = uuid.NewString()
	}
	key := sessionKey(req.AppName, req.UserID, id)
	if _, exists := s.sessions[key]; exists {
		return nil, fmt.Errorf("%w: %s", ErrSessionExists, id)
	}

	session := core.NewSession(id, req.AppName, req.UserID)
	maps.Copy(session.State, req.State)
	s.sessions[key] = session
	return session.Clone(), nil
}

// GetSession retrieves a copy of a session. Missing sessions return (nil, nil).
func (s *InMemorySessionService) GetSession(ctx context.Context, req *core.GetSessionRequest) (*core.Session, error) {
	s.mutex.RLock()
	defer s.mutex.RUnlock()

	session, exists := s.sessions[sessionKey(req.AppName, req.UserID, req.SessionID)]
	if !exists {
		return nil, nil
	}

	out := session.Clone()
	if req.MaxEvents > 0 && len(out.Events) > req.MaxEvents {
		out.Events = out.Events[len(out.Events)-req.MaxEvents:]
	}
	return out, nil
}

// AppendEvent adds an event to a session and applies its state delta, both to the
// stored session and to the caller's copy.
func (s *InMemorySessionService) AppendEvent(ctx context.Context, session *core.Session, event *core.Event) error {
	s.mutex.Lock()
	defer s.mutex.Unlock()

	stored, exists := s.sessions[sessionKey(session.AppName, session.UserID, session.ID)]
	if !exists {
		return fmt.Errorf("%w: %s", ErrSessionNotFound, session.ID)
	}

	stored.AddEvent(event)
	stored.UpdateState(event.Actions.StateDelta)

	session.AddEvent(event)
	session.UpdateState(event.Actions.StateDelta)
	session.LastUpdateTime = stored.LastUpdateTime
	return nil
}

// DeleteSession removes a session.
func (s *InMemorySessionService) DeleteSession(ctx context.Context, req *core.DeleteSessionRequest) error {
	s.mutex.Lock()
	defer s.mutex.Unlock()

	delete(s.sessions, sessionKey(req.AppName, req.UserID, req.SessionID))
	return nil
}

// ListSessions returns a user's sessions without events, most recently updated first.
func (s *InMemorySessionService) ListSessions(ctx context.Context, req *core.ListSessionsRequest) (*core.ListSessionsResponse, error) {
	s.mutex.RLock()
	var sessions []*core.Session
	for _, session := range s.sessions {
		if session.AppName == req.AppName && session.UserID == req.UserID {
			out := session.Clone()
			out.Events = nil
			sessions = append(sessions, out)
		}
	}
	s.mutex.RUnlock()

	sortNewestFirst(sessions)
	return paginate(sessions, req.Offset, req.Limit), nil
}

func sessionKey(appName, userID, sessionID string) string {
	return appName + "/" + userID + "/" + sessionID
}
