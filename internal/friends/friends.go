// Package friends holds what the friend agents share: their agent card layout,
// task store selection and the A2A server they run behind.
package friends

import (
	"context"
	"fmt"
	"net"
	"strconv"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/agent-protocol/adk-tutorials/pkg/a2a"
	"github.com/agent-protocol/adk-tutorials/pkg/a2a/server"
	"github.com/agent-protocol/adk-tutorials/pkg/config"
)

// Version is the version every friend advertises.
const Version = "1.0.0"

// DefaultModel is the Gemini model the friends use unless configured otherwise.
const DefaultModel = "gemini-2.0-flash"

// TextModes are the input and output modes of the friends.
var TextModes = []string{"text/plain"}

// URL returns the base URL of an agent listening on host:port.
func URL(host string, port int) string {
	return "http://" + net.JoinHostPort(host, strconv.Itoa(port))
}

// NewCard builds a streaming, text-only agent card with a single skill.
func NewCard(name, description, url string, skill a2a.AgentSkill) *a2a.AgentCard {
	return &a2a.AgentCard{
		Name:               name,
		Description:        description,
		URL:                url,
		Version:            Version,
		ProtocolVersion:    a2a.ProtocolVersion,
		Capabilities:       a2a.AgentCapabilities{Streaming: true},
		DefaultInputModes:  TextModes,
		DefaultOutputModes: TextModes,
		Skills:             []a2a.AgentSkill{skill},
	}
}

// NewTaskStore returns a Redis task store when cfg names a Redis address, else an
// in-memory one. The returned close function releases the store.
func NewTaskStore(ctx context.Context, cfg config.TasksConfig, logger *zap.Logger) (server.TaskStore, func() error, error) {
	if cfg.RedisAddr == "" {
		return server.NewInMemoryTaskStore(), func() error { return nil }, nil
	}
	store, err := server.DialRedisTaskStore(ctx, &redis.Options{
		Addr:     cfg.RedisAddr,
		Password: cfg.RedisPassword,
		DB:       cfg.RedisDB,
	}, cfg.KeyPrefix, cfg.TTL)
	if err != nil {
		return nil, nil, err
	}
	logger.Info("Using Redis task store", zap.String("addr", cfg.RedisAddr))
	return store, store.Close, nil
}

// Serve runs executor behind an A2A server on addr until ctx is done.
func Serve(ctx context.Context, addr string, card *a2a.AgentCard, executor server.AgentExecutor, tasks config.TasksConfig, logger *zap.Logger) error {
	store, closeStore, err := NewTaskStore(ctx, tasks, logger)
	if err != nil {
		return fmt.Errorf("failed to open task store for %s: %w", card.Name, err)
	}
	defer func() {
		if err := closeStore(); err != nil {
			logger.Warn("Failed to close task store", zap.Error(err))
		}
	}()

	srv, err := server.NewServer(server.Config{
		Card:      card,
		Executor:  executor,
		TaskStore: store,
		Logger:    logger,
	})
	if err != nil {
		return err
	}
	return srv.ListenAndServe(ctx, addr)
}
