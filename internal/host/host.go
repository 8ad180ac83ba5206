// Package host is the pickleball host agent. It finds its friends' agents over
// A2A, asks them for their availability and books a court.
package host

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"sort"
	"strings"
	"sync"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/agent-protocol/adk-tutorials/internal/court"
	"github.com/agent-protocol/adk-tutorials/pkg/a2a"
	"github.com/agent-protocol/adk-tutorials/pkg/agents"
	"github.com/agent-protocol/adk-tutorials/pkg/api"
	"github.com/agent-protocol/adk-tutorials/pkg/core"
	"github.com/agent-protocol/adk-tutorials/pkg/runners"
	"github.com/agent-protocol/adk-tutorials/pkg/sessions"
)

const (
	AgentName = "Host_Agent"
	// UserID owns the host's sessions.
	UserID = "host_agent"
	// DefaultModel is the host's Gemini model.
	DefaultModel = "gemini-2.5-flash"
	// ThinkingMessage is streamed for every non-final event.
	ThinkingMessage = "The host agent is thinking..."
	// NoAgentsText replaces the agent list when no friend could be reached.
	NoAgentsText = "No agents found."
)

// Config configures a HostAgent.
type Config struct {
	Model     core.LLMConnection
	ModelName string
	// Streaming reports partial model text as progress updates.
	Streaming bool
	// AppName defaults to AgentName.
	AppName string
	// SessionService defaults to an InMemorySessionService.
	SessionService core.SessionService
	// Court defaults to a fresh court.
	Court      *court.Court
	HTTPClient *http.Client
	Logger     *zap.Logger
}

// HostAgent coordinates the friend agents.
type HostAgent struct {
	mu          sync.RWMutex
	connections map[string]*a2a.Client
	cards       map[string]*a2a.AgentCard
	agentsText  string

	court  *court.Court
	agent  *agents.LlmAgent
	runner *runners.Runner
	logger *zap.Logger
	now    func() time.Time
}

// Update is one item of the host's stream.
type Update = api.Update

var _ api.Streamer = (*HostAgent)(nil)

// Create builds the host agent and resolves the agent cards published at urls.
// Agents that cannot be reached are logged and left out.
func Create(ctx context.Context, urls []string, cfg Config) (*HostAgent, error) {
	if cfg.Model == nil {
		return nil, fmt.Errorf("host agent needs a model")
	}
	h := newHostAgent(cfg)
	h.resolve(ctx, urls, cfg.HTTPClient)
	return h, nil
}

func newHostAgent(cfg Config) *HostAgent {
	logger := cfg.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	if cfg.AppName == "" {
		cfg.AppName = AgentName
	}
	if cfg.SessionService == nil {
		cfg.SessionService = sessions.NewInMemorySessionService()
	}
	if cfg.Court == nil {
		cfg.Court = court.New()
	}

	h := &HostAgent{
		connections: make(map[string]*a2a.Client),
		cards:       make(map[string]*a2a.AgentCard),
		agentsText:  NoAgentsText,
		court:       cfg.Court,
		logger:      logger.With(zap.String("component", "host_agent")),
		now:         time.Now,
	}

	llmCfg := agents.DefaultLlmAgentConfig()
	llmCfg.Model = DefaultModel
	if cfg.ModelName != "" {
		llmCfg.Model = cfg.ModelName
	}
	llmCfg.StreamingEnabled = cfg.Streaming
	h.agent = agents.NewLlmAgent(AgentName, "This Host agent orchestrates scheduling pickleball with friends.", llmCfg)
	h.agent.SetInstructionProvider(h.rootInstruction)
	h.agent.SetLLMConnection(cfg.Model)
	h.agent.SetLogger(logger)
	h.agent.AddTool(h.sendMessageTool())
	h.agent.AddTool(h.court.BookTool())
	h.agent.AddTool(h.court.ListTool())

	h.runner = runners.NewRunner(cfg.AppName, h.agent, cfg.SessionService, logger)
	return h
}

// resolve fetches every card concurrently and registers a client per card.
func (h *HostAgent) resolve(ctx context.Context, urls []string, httpClient *http.Client) {
	cards := make([]*a2a.AgentCard, len(urls))
	g, gctx := errgroup.WithContext(ctx)
	for i, url := range urls {
		g.Go(func() error {
			card, err := a2a.NewCardResolver(url, httpClient).GetAgentCard(gctx)
			if err != nil {
				h.logger.Error("Error resolving card", zap.String("url", url), zap.Error(err))
				return nil
			}
			if card.URL == "" {
				card.URL = url
			}
			cards[i] = card
			return nil
		})
	}
	_ = g.Wait()

	h.mu.Lock()
	defer h.mu.Unlock()
	for i, card := range cards {
		if card == nil {
			continue
		}
		client, err := a2a.NewClient(card, &a2a.ClientConfig{
			Timeout:    30 * time.Second,
			HTTPClient: httpClient,
			BaseURL:    urls[i],
			Logger:     h.logger,
		})
		if err != nil {
			h.logger.Error("Failed to create client", zap.String("agent", card.Name), zap.Error(err))
			continue
		}
		h.connections[card.Name] = client
		h.cards[card.Name] = card
	}
	h.agentsText = agentsText(h.cards)
	h.logger.Info("Resolved friend agents", zap.Int("count", len(h.cards)), zap.Int("requested", len(urls)))
}

// agentsText lists the cards as JSON lines sorted by name.
func agentsText(cards map[string]*a2a.AgentCard) string {
	if len(cards) == 0 {
		return NoAgentsText
	}
	names := make([]string, 0, len(cards))
	for name := range cards {
		names = append(names, name)
	}
	sort.Strings(names)

	lines := make([]string, 0, len(names))
	for _, name := range names {
		data, _ := json.Marshal(struct {
			Name        string `json:"name"`
			Description string `json:"description"`
		}{name, cards[name].Description})
		lines = append(lines, string(data))
	}
	return strings.Join(lines, "\n")
}

// Agent returns the host's LlmAgent.
func (h *HostAgent) Agent() *agents.LlmAgent {
	return h.agent
}

// Runner returns the runner the host streams through.
func (h *HostAgent) Runner() *runners.Runner {
	return h.runner
}

// Court returns the court the host books.
func (h *HostAgent) Court() *court.Court {
	return h.court
}

// AgentsText returns the agent list injected into the instruction.
func (h *HostAgent) AgentsText() string {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return h.agentsText
}

// Cards returns the resolved cards by name.
func (h *HostAgent) Cards() map[string]*a2a.AgentCard {
	h.mu.RLock()
	defer h.mu.RUnlock()
	out := make(map[string]*a2a.AgentCard, len(h.cards))
	for k, v := range h.cards {
		out[k] = v
	}
	return out
}

func (h *HostAgent) client(name string) (*a2a.Client, bool) {
	h.mu.RLock()
	defer h.mu.RUnlock()
	c, ok := h.connections[name]
	return c, ok
}

func (h *HostAgent) rootInstruction(_ *core.ReadonlyContext) string {
	return fmt.Sprintf(rootInstructionTemplate, h.now().Format("2006-01-02"), h.AgentsText())
}

// Stream runs query in sessionID, creating the session when it does not exist.
// Final responses are yielded complete, everything else as a thinking update.
func (h *HostAgent) Stream(ctx context.Context, query, sessionID string, yield func(Update) error) error {
	session, err := sessions.GetOrCreateSession(ctx, h.runner.SessionService(), h.runner.AppName(), UserID, sessionID, map[string]any{})
	if err != nil {
		return err
	}

	stream, err := h.runner.RunAsync(ctx, &core.RunRequest{
		UserID:     UserID,
		SessionID:  session.ID,
		NewMessage: core.NewTextContent(core.RoleUser, query),
	})
	if err != nil {
		return err
	}
	defer func() {
		go func() {
			for range stream {
			}
		}()
	}()

	for ev := range stream {
		if ev.IsError() {
			msg := "unknown error"
			if ev.ErrorMessage != nil {
				msg = *ev.ErrorMessage
			}
			return fmt.Errorf("host agent failed: %s", msg)
		}
		update := Update{Updates: ThinkingMessage}
		switch {
		case ev.IsFinalResponse():
			update = Update{IsTaskComplete: true, Content: ev.Text()}
		case ev.Partial != nil && *ev.Partial:
			if text := ev.Text(); text != "" {
				update.Updates = text
			}
		}
		if err := yield(update); err != nil {
			return err
		}
	}
	return ctx.Err()
}
