package sessions

import (
	"cmp"
	"context"
	"errors"
	"fmt"
	"slices"

	"github.com/agent-protocol/adk-tutorials/pkg/core"
)

var (
	// ErrSessionNotFound is returned when an operation needs a session that does not exist.
	ErrSessionNotFound = errors.New("session not found")
	// ErrSessionExists is returned when creating a session whose ID is taken.
	ErrSessionExists = errors.New("session already exists")
)

// GetOrCreateSession returns the session with sessionID, creating it with state when missing.
func GetOrCreateSession(ctx context.Context, svc core.SessionService, appName, userID, sessionID string, state map[string]any) (*core.Session, error) {
	session, err := svc.GetSession(ctx, &core.GetSessionRequest{AppName: appName, UserID: userID, SessionID: sessionID})
	if err != nil {
		return nil, err
	}
	if session != nil {
		return session, nil
	}
	return svc.CreateSession(ctx, &core.CreateSessionRequest{
		AppName:   appName,
		UserID:    userID,
		SessionID: sessionID,
		State:     state,
	})
}

// LatestSession returns the user's most recently updated session with its events, or
// (nil, nil) when the user has none.
func LatestSession(ctx context.Context, svc core.SessionService, appName, userID string) (*core.Session, error) {
	list, err := svc.ListSessions(ctx, &core.ListSessionsRequest{AppName: appName, UserID: userID, Limit: 1})
	if err != nil {
		return nil, err
	}
	if len(list.Sessions) == 0 {
		return nil, nil
	}
	return svc.GetSession(ctx, &core.GetSessionRequest{AppName: appName, UserID: userID, SessionID: list.Sessions[0].ID})
}

func validateCreate(req *core.CreateSessionRequest) error {
	if req == nil {
		return fmt.Errorf("create session request cannot be nil")
	}
	if req.AppName == "" {
		return fmt.Errorf("app name cannot be empty")
	}
	if req.UserID == "" {
		return fmt.Errorf("user ID cannot be empty")
	}
	return nil
}

func sortNewestFirst(sessions []*core.Session) {
	slices.SortFunc(sessions, func(a, b *core.Session) int {
		if c := b.LastUpdateTime.Compare(a.LastUpdateTime); c != 0 {
			return c
		}
		return cmp.Compare(a.ID, b.ID)
	})
}

func paginate(sessions []*core.Session, offset, limit int) *core.ListSessionsResponse {
	total := len(sessions)
	start := min(max(offset, 0), total)
	end := total
	if limit > 0 {
		end = min(start+limit, total)
	}
	return &core.ListSessionsResponse{
		Sessions:   sessions[start:end],
		TotalCount: total,
		HasMore:    end < total,
	}
}
