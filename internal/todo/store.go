// Package todo is a small sqlite-backed todo list and the agent that manages it.
package todo

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"github.com/glebarez/sqlite"
	"go.uber.org/zap"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
	gormlogger "gorm.io/gorm/logger"
)

// DefaultDatabasePath is used when no path is configured.
const DefaultDatabasePath = "database.db"

var (
	ErrUserNotFound = errors.New("user not found")
	ErrTodoNotFound = errors.New("todo not found")
)

// User is a row of the users table.
type User struct {
	ID       uint   `gorm:"primaryKey;autoIncrement" json:"id"`
	Username string `gorm:"uniqueIndex;not null" json:"username"`
	Email    string `gorm:"not null" json:"email"`
}

// Todo is a row of the todos table.
type Todo struct {
	ID        uint   `gorm:"primaryKey;autoIncrement" json:"id"`
	UserID    uint   `gorm:"not null;index" json:"user_id"`
	User      *User  `gorm:"constraint:OnDelete:CASCADE" json:"-"`
	Task      string `gorm:"not null" json:"task"`
	Completed bool   `gorm:"not null;default:false" json:"completed"`
}

var seedUsers = []User{
	{Username: "alice", Email: "alice@example.com"},
	{Username: "bob", Email: "bob@example.com"},
	{Username: "charlie", Email: "charlie@example.com"},
}

var seedTodos = []struct {
	username  string
	task      string
	completed bool
}{
	{"alice", "Buy groceries", false},
	{"alice", "Read a book", true},
	{"bob", "Finish project report", false},
	{"bob", "Go for a run", false},
	{"charlie", "Plan weekend trip", true},
}

// Store reads and writes the todo database.
type Store struct {
	db     *gorm.DB
	logger *zap.Logger
}

// Open opens the sqlite database at path and migrates its tables.
func Open(path string, logger *zap.Logger) (*Store, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	db, err := gorm.Open(sqlite.Open(path), &gorm.Config{
		Logger: gormlogger.Default.LogMode(gormlogger.Silent),
	})
	if err != nil {
		return nil, fmt.Errorf("failed to open todo database %s: %w", path, err)
	}
	if path == ":memory:" {
		sqlDB, err := db.DB()
		if err != nil {
			return nil, err
		}
		sqlDB.SetMaxOpenConns(1)
	}
	if err := db.AutoMigrate(&User{}, &Todo{}); err != nil {
		return nil, fmt.Errorf("failed to auto migrate todo tables: %w", err)
	}
	return &Store{db: db, logger: logger.With(zap.String("component", "todo_store"))}, nil
}

// CreateDatabase creates the database at path and fills it with sample data.
// An empty file left at path is replaced.
func CreateDatabase(ctx context.Context, path string, logger *zap.Logger) error {
	if path != ":memory:" {
		if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
			return fmt.Errorf("failed to create database directory: %w", err)
		}
		if info, err := os.Stat(path); err == nil && info.Size() == 0 {
			if err := os.Remove(path); err != nil {
				return err
			}
		}
	}
	store, err := Open(path, logger)
	if err != nil {
		return err
	}
	defer store.Close()
	return store.Seed(ctx)
}

// Seed inserts the sample users, keeping existing ones, and replaces every todo
// with the sample todos.
func (s *Store) Seed(ctx context.Context) error {
	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		users := append([]User(nil), seedUsers...)
		if err := tx.Clauses(clause.OnConflict{DoNothing: true}).Create(&users).Error; err != nil {
			return fmt.Errorf("failed to insert users: %w", err)
		}
		s.logger.Info("Inserted dummy users", zap.Int("count", len(users)))

		if err := tx.Session(&gorm.Session{AllowGlobalUpdate: true}).Delete(&Todo{}).Error; err != nil {
			return fmt.Errorf("failed to clear todos: %w", err)
		}

		todos := make([]Todo, 0, len(seedTodos))
		for _, t := range seedTodos {
			var u User
			if err := tx.Where("username = ?", t.username).First(&u).Error; err != nil {
				return fmt.Errorf("failed to find user %s: %w", t.username, err)
			}
			todos = append(todos, Todo{UserID: u.ID, Task: t.task, Completed: t.completed})
		}
		if err := tx.Create(&todos).Error; err != nil {
			return fmt.Errorf("failed to insert todos: %w", err)
		}
		s.logger.Info("Inserted dummy todos", zap.Int("count", len(todos)))
		return nil
	})
}

// Close releases the connection pool.
func (s *Store) Close() error {
	sqlDB, err := s.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}

// ListUsers returns every user ordered by id.
func (s *Store) ListUsers(ctx context.Context) ([]User, error) {
	var users []User
	if err := s.db.WithContext(ctx).Order("id").Find(&users).Error; err != nil {
		return nil, fmt.Errorf("failed to list users: %w", err)
	}
	return users, nil
}

func (s *Store) user(ctx context.Context, username string) (*User, error) {
	var u User
	err := s.db.WithContext(ctx).Where("username = ?", username).First(&u).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, fmt.Errorf("%w: %s", ErrUserNotFound, username)
	}
	if err != nil {
		return nil, err
	}
	return &u, nil
}

// ListTodos returns the todos of username ordered by id.
func (s *Store) ListTodos(ctx context.Context, username string) ([]Todo, error) {
	u, err := s.user(ctx, username)
	if err != nil {
		return nil, err
	}
	var todos []Todo
	if err := s.db.WithContext(ctx).Where("user_id = ?", u.ID).Order("id").Find(&todos).Error; err != nil {
		return nil, fmt.Errorf("failed to list todos: %w", err)
	}
	return todos, nil
}

// AddTodo creates an open todo for username.
func (s *Store) AddTodo(ctx context.Context, username, task string) (*Todo, error) {
	if task == "" {
		return nil, fmt.Errorf("task cannot be empty")
	}
	u, err := s.user(ctx, username)
	if err != nil {
		return nil, err
	}
	todo := &Todo{UserID: u.ID, Task: task}
	if err := s.db.WithContext(ctx).Create(todo).Error; err != nil {
		return nil, fmt.Errorf("failed to add todo: %w", err)
	}
	s.logger.Debug("Added todo", zap.String("username", username), zap.Uint("id", todo.ID))
	return todo, nil
}

// CompleteTodo marks the todo with id as completed.
func (s *Store) CompleteTodo(ctx context.Context, id uint) (*Todo, error) {
	var todo Todo
	err := s.db.WithContext(ctx).First(&todo, id).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, fmt.Errorf("%w: %d", ErrTodoNotFound, id)
	}
	if err != nil {
		return nil, err
	}
	if err := s.db.WithContext(ctx).Model(&todo).Update("completed", true).Error; err != nil {
		return nil, fmt.Errorf("failed to complete todo %d: %w", id, err)
	}
	todo.Completed = true
	return &todo, nil
}
