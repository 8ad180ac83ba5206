package sessions

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"maps"
	"slices"
	"time"

	"github.com/glebarez/sqlite"
	"github.com/google/uuid"
	"go.uber.org/zap"
	"google.golang.org/genai"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"

	"github.com/agent-protocol/adk-tutorials/pkg/core"
)

var _ core.SessionService = (*DatabaseSessionService)(nil)

// sessionRecord is a row of the sessions table.
type sessionRecord struct {
	AppName    string `gorm:"primaryKey;size:128"`
	UserID     string `gorm:"primaryKey;size:128"`
	ID         string `gorm:"primaryKey;size:128"`
	State      string `gorm:"type:text"`
	CreateTime time.Time
	UpdateTime time.Time `gorm:"index"`
}

func (sessionRecord) TableName() string { return "sessions" }

// eventRecord is a row of the events table. Seq keeps insertion order.
type eventRecord struct {
	Seq                uint64 `gorm:"primaryKey;autoIncrement"`
	ID                 string `gorm:"uniqueIndex;size:64"`
	AppName            string `gorm:"index:idx_event_session;size:128"`
	UserID             string `gorm:"index:idx_event_session;size:128"`
	SessionID          string `gorm:"index:idx_event_session;size:128"`
	InvocationID       string `gorm:"size:128"`
	Author             string `gorm:"size:128"`
	Branch             *string
	Timestamp          time.Time
	Content            string `gorm:"type:text"`
	Actions            string `gorm:"type:text"`
	LongRunningToolIDs string `gorm:"type:text"`
	Partial            *bool
	TurnComplete       *bool
	ErrorCode          *string
	ErrorMessage       *string
	CustomMetadata     string `gorm:"type:text"`
}

func (eventRecord) TableName() string { return "events" }

// DatabaseSessionService persists sessions and their events with gorm.
type DatabaseSessionService struct {
	db     *gorm.DB
	logger *zap.Logger
}

// NewDatabaseSessionService opens the sqlite database at dsn and migrates its tables.
// Use ":memory:" for a throwaway database.
func NewDatabaseSessionService(dsn string, logger *zap.Logger) (*DatabaseSessionService, error) {
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{
		Logger: gormlogger.Default.LogMode(gormlogger.Silent),
	})
	if err != nil {
		return nil, fmt.Errorf("failed to open session database %s: %w", dsn, err)
	}
	if dsn == ":memory:" {
		// Every pooled connection would otherwise get its own empty database.
		sqlDB, err := db.DB()
		if err != nil {
			return nil, err
		}
		sqlDB.SetMaxOpenConns(1)
	}
	return NewDatabaseSessionServiceFromDB(db, logger)
}

// NewDatabaseSessionServiceFromDB uses an already opened database.
func NewDatabaseSessionServiceFromDB(db *gorm.DB, logger *zap.Logger) (*DatabaseSessionService, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	if err := db.AutoMigrate(&sessionRecord{}, &eventRecord{}); err != nil {
		return nil, fmt.Errorf("failed to auto migrate session tables: %w", err)
	}
	return &DatabaseSessionService{
		db:     db,
		logger: logger.With(zap.String("component", "session_db")),
	}, nil
}

// Close releases the underlying connection pool.
func (s *DatabaseSessionService) Close() error {
	sqlDB, err := s.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}

// CreateSession inserts a new session row.
func (s *DatabaseSessionService) CreateSession(ctx context.Context, req *core.CreateSessionRequest) (*core.Session, error) {
	if err := validateCreate(req); err != nil {
		return nil, err
	}

	id := req.SessionID
	if id == "" {
		id = uuid.NewString()
	}
	state := maps.Clone(req.State)
	if state == nil {
		state = make(map[string]any)
	}
	stateJSON, err := json.Marshal(state)
	if err != nil {
		return nil, fmt.Errorf("failed to encode session state: %w", err)
	}

	now := time.Now()
	rec := sessionRecord{
		AppName:    req.AppName,
		UserID:     req.UserID,
		ID:         id,
		State:      string(stateJSON),
		CreateTime: now,
		UpdateTime: now,
	}

	err = s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var count int64
		if err := tx.Model(&sessionRecord{}).
			Where("app_name = ? AND user_id = ? AND id = ?", req.AppName, req.UserID, id).
			Count(&count).Error; err != nil {
			return err
		}
		if count > 0 {
			return fmt.Errorf("%w: %s", ErrSessionExists, id)
		}
		return tx.Create(&rec).Error
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create session: %w", err)
	}

	s.logger.Debug("Session created", zap.String("session_id", id), zap.String("user_id", req.UserID))
	session := core.NewSession(id, req.AppName, req.UserID)
	session.State = state
	session.LastUpdateTime = now
	return session, nil
}

// GetSession loads a session and its events. Missing sessions return (nil, nil).
func (s *DatabaseSessionService) GetSession(ctx context.Context, req *core.GetSessionRequest) (*core.Session, error) {
	db := s.db.WithContext(ctx)

	var rec sessionRecord
	err := db.Where("app_name = ? AND user_id = ? AND id = ?", req.AppName, req.UserID, req.SessionID).
		Take(&rec).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load session %s: %w", req.SessionID, err)
	}

	session, err := rec.toSession()
	if err != nil {
		return nil, err
	}

	query := db.Where("app_name = ? AND user_id = ? AND session_id = ?", req.AppName, req.UserID, req.SessionID)
	if req.MaxEvents > 0 {
		query = query.Order("seq DESC").Limit(req.MaxEvents)
	} else {
		query = query.Order("seq ASC")
	}
	var rows []eventRecord
	if err := query.Find(&rows).Error; err != nil {
		return nil, fmt.Errorf("failed to load events of session %s: %w", req.SessionID, err)
	}
	if req.MaxEvents > 0 {
		slices.Reverse(rows)
	}

	session.Events = make([]*core.Event, 0, len(rows))
	for _, row := range rows {
		ev, err := row.toEvent()
		if err != nil {
			return nil, err
		}
		session.Events = append(session.Events, ev)
	}
	return session, nil
}

// AppendEvent stores event and merges its state delta into the stored state, then
// mirrors both onto session.
func (s *DatabaseSessionService) AppendEvent(ctx context.Context, session *core.Session, event *core.Event) error {
	row, err := newEventRecord(session, event)
	if err != nil {
		return err
	}

	now := time.Now()
	err = s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var rec sessionRecord
		err := tx.Where("app_name = ? AND user_id = ? AND id = ?", session.AppName, session.UserID, session.ID).
			Take(&rec).Error
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return fmt.Errorf("%w: %s", ErrSessionNotFound, session.ID)
		}
		if err != nil {
			return err
		}

		updates := map[string]any{"update_time": now}
		if delta := event.Actions.StateDelta; len(delta) > 0 {
			state, err := decodeState(rec.State)
			if err != nil {
				return err
			}
			maps.Copy(state, delta)
			stateJSON, err := json.Marshal(state)
			if err != nil {
				return fmt.Errorf("failed to encode session state: %w", err)
			}
			updates["state"] = string(stateJSON)
		}
		if err := tx.Model(&rec).Updates(updates).Error; err != nil {
			return err
		}
		return tx.Create(row).Error
	})
	if err != nil {
		return fmt.Errorf("failed to append event: %w", err)
	}

	session.AddEvent(event)
	session.UpdateState(event.Actions.StateDelta)
	session.LastUpdateTime = now
	return nil
}

// DeleteSession removes a session and its events.
func (s *DatabaseSessionService) DeleteSession(ctx context.Context, req *core.DeleteSessionRequest) error {
	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Where("app_name = ? AND user_id = ? AND session_id = ?", req.AppName, req.UserID, req.SessionID).
			Delete(&eventRecord{}).Error; err != nil {
			return fmt.Errorf("failed to delete events: %w", err)
		}
		if err := tx.Where("app_name = ? AND user_id = ? AND id = ?", req.AppName, req.UserID, req.SessionID).
			Delete(&sessionRecord{}).Error; err != nil {
			return fmt.Errorf("failed to delete session: %w", err)
		}
		return nil
	})
}

// ListSessions returns the user's sessions without events, most recently updated first.
func (s *DatabaseSessionService) ListSessions(ctx context.Context, req *core.ListSessionsRequest) (*core.ListSessionsResponse, error) {
	db := s.db.WithContext(ctx).Model(&sessionRecord{}).
		Where("app_name = ? AND user_id = ?", req.AppName, req.UserID)

	var total int64
	if err := db.Count(&total).Error; err != nil {
		return nil, fmt.Errorf("failed to count sessions: %w", err)
	}

	query := db.Order("update_time DESC").Order("id ASC").Offset(max(req.Offset, 0))
	if req.Limit > 0 {
		query = query.Limit(req.Limit)
	}
	var recs []sessionRecord
	if err := query.Find(&recs).Error; err != nil {
		return nil, fmt.Errorf("failed to list sessions: %w", err)
	}

	resp := &core.ListSessionsResponse{
		Sessions:   make([]*core.Session, 0, len(recs)),
		TotalCount: int(total),
	}
	for _, rec := range recs {
		session, err := rec.toSession()
		if err != nil {
			return nil, err
		}
		session.Events = nil
		resp.Sessions = append(resp.Sessions, session)
	}
	resp.HasMore = max(req.Offset, 0)+len(recs) < resp.TotalCount
	return resp, nil
}

func (r *sessionRecord) toSession() (*core.Session, error) {
	state, err := decodeState(r.State)
	if err != nil {
		return nil, err
	}
	session := core.NewSession(r.ID, r.AppName, r.UserID)
	session.State = state
	session.LastUpdateTime = r.UpdateTime
	return session, nil
}

func decodeState(raw string) (map[string]any, error) {
	state := make(map[string]any)
	if raw == "" {
		return state, nil
	}
	if err := json.Unmarshal([]byte(raw), &state); err != nil {
		return nil, fmt.Errorf("failed to decode session state: %w", err)
	}
	return state, nil
}

func newEventRecord(session *core.Session, ev *core.Event) (*eventRecord, error) {
	row := &eventRecord{
		ID:           ev.ID,
		AppName:      session.AppName,
		UserID:       session.UserID,
		SessionID:    session.ID,
		InvocationID: ev.InvocationID,
		Author:       ev.Author,
		Branch:       ev.Branch,
		Timestamp:    ev.Timestamp,
		Partial:      ev.Partial,
		TurnComplete: ev.TurnComplete,
		ErrorCode:    ev.ErrorCode,
		ErrorMessage: ev.ErrorMessage,
	}
	if row.ID == "" {
		row.ID = uuid.NewString()
	}

	var err error
	if row.Content, err = encodeJSON(ev.Content); err != nil {
		return nil, fmt.Errorf("failed to encode event content: %w", err)
	}
	if row.Actions, err = encodeJSON(ev.Actions); err != nil {
		return nil, fmt.Errorf("failed to encode event actions: %w", err)
	}
	if row.LongRunningToolIDs, err = encodeJSON(ev.LongRunningToolIDs); err != nil {
		return nil, err
	}
	if row.CustomMetadata, err = encodeJSON(ev.CustomMetadata); err != nil {
		return nil, fmt.Errorf("failed to encode event metadata: %w", err)
	}
	return row, nil
}

func (r *eventRecord) toEvent() (*core.Event, error) {
	ev := &core.Event{
		ID:           r.ID,
		InvocationID: r.InvocationID,
		Author:       r.Author,
		Branch:       r.Branch,
		Timestamp:    r.Timestamp,
		Partial:      r.Partial,
		TurnComplete: r.TurnComplete,
		ErrorCode:    r.ErrorCode,
		ErrorMessage: r.ErrorMessage,
	}
	if r.Content != "" && r.Content != "null" {
		ev.Content = &genai.Content{}
		if err := json.Unmarshal([]byte(r.Content), ev.Content); err != nil {
			return nil, fmt.Errorf("failed to decode content of event %s: %w", r.ID, err)
		}
	}
	if err := decodeJSON(r.Actions, &ev.Actions); err != nil {
		return nil, fmt.Errorf("failed to decode actions of event %s: %w", r.ID, err)
	}
	if err := decodeJSON(r.LongRunningToolIDs, &ev.LongRunningToolIDs); err != nil {
		return nil, err
	}
	if err := decodeJSON(r.CustomMetadata, &ev.CustomMetadata); err != nil {
		return nil, err
	}
	return ev, nil
}

func encodeJSON(v any) (string, error) {
	b, err := json.Marshal(v)
	if err != nil {
		return "", err
	}
	return string(b), nil
}

func decodeJSON(raw string, v any) error {
	if raw == "" || raw == "null" {
		return nil
	}
	return json.Unmarshal([]byte(raw), v)
}
