package cli

import (
	"context"
	"encoding/json"
	"fmt"
	"net"
	"strconv"
	"time"

	"github.com/google/uuid"
	"github.com/urfave/cli/v2"
	"go.uber.org/zap"

	"github.com/agent-protocol/adk-tutorials/internal/host"
	"github.com/agent-protocol/adk-tutorials/pkg/a2a"
	"github.com/agent-protocol/adk-tutorials/pkg/api"
	"github.com/agent-protocol/adk-tutorials/pkg/config"
	"github.com/agent-protocol/adk-tutorials/pkg/core"
	"github.com/agent-protocol/adk-tutorials/pkg/sessions"
)

const (
	// ChatAppName and ChatUserID key the persistent chat session.
	ChatAppName = "Schedule agent"
	ChatUserID  = "duc pham"
)

func friendURLFlag() cli.Flag {
	return &cli.StringSliceFlag{
		Name:  "friend-url",
		Usage: "Base URL of a friend agent; repeat for each friend",
	}
}

// newHost builds the host agent over svc, resolving the configured friends.
func newHost(ctx context.Context, c *cli.Context, e *env, appName string, svc core.SessionService) (*host.HostAgent, error) {
	model, name, err := e.model(ctx, config.ProviderGemini, host.DefaultModel)
	if err != nil {
		return nil, err
	}
	urls := e.cfg.HostAgent.FriendURLs
	if c.IsSet("friend-url") {
		urls = c.StringSlice("friend-url")
	}
	return host.Create(ctx, urls, host.Config{
		Model:          model,
		ModelName:      name,
		Streaming:      e.cfg.Model.Streaming,
		AppName:        appName,
		SessionService: svc,
		Logger:         e.logger.Named("host"),
	})
}

func hostCommand() *cli.Command {
	return &cli.Command{
		Name:  "host",
		Usage: "Serve the pickleball host agent over HTTP",
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:  "host",
				Usage: "Host to bind the server to",
			},
			&cli.IntFlag{
				Name:  "port",
				Usage: "Port to bind the server to",
			},
			friendURLFlag(),
			&cli.StringSliceFlag{
				Name:  "allow-origins",
				Usage: "Origins allowed by CORS; every origin when empty",
			},
		},
		Action: func(c *cli.Context) error {
			e := getEnv(c)
			if err := e.requireGoogleKey(); err != nil {
				return err
			}
			bind := e.cfg.HostAgent.Host
			if c.IsSet("host") {
				bind = c.String("host")
			}
			port := e.cfg.HostAgent.Port
			if c.IsSet("port") {
				port = c.Int("port")
			}

			svc := sessions.NewInMemorySessionService()
			h, err := newHost(c.Context, c, e, host.AgentName, svc)
			if err != nil {
				return cli.Exit(err.Error(), 1)
			}
			srv, err := api.NewServer(api.ServerConfig{
				Agent:          h,
				Sessions:       svc,
				AppName:        h.Runner().AppName(),
				UserID:         host.UserID,
				AllowedOrigins: c.StringSlice("allow-origins"),
				Logger:         e.logger,
			})
			if err != nil {
				return cli.Exit(err.Error(), 1)
			}
			return srv.ListenAndServe(c.Context, net.JoinHostPort(bind, strconv.Itoa(port)))
		},
	}
}

func chatCommand() *cli.Command {
	return &cli.Command{
		Name:  "chat",
		Usage: "Chat with the host agent; the conversation is kept in a database",
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:  "db",
				Usage: "Path of the sqlite session database",
			},
			friendURLFlag(),
		},
		Action: func(c *cli.Context) error {
			e := getEnv(c)
			dsn := e.cfg.Sessions.DatabaseURL
			if c.IsSet("db") {
				dsn = c.String("db")
			}
			svc, err := sessions.NewDatabaseSessionService(dsn, e.logger)
			if err != nil {
				return cli.Exit(err.Error(), 1)
			}
			defer svc.Close()

			h, err := newHost(c.Context, c, e, ChatAppName, svc)
			if err != nil {
				return cli.Exit(err.Error(), 1)
			}
			return chatWithLatestSession(c.Context, e, h.Runner(), ChatUserID)
		},
	}
}

func clientCommand() *cli.Command {
	return &cli.Command{
		Name:  "client",
		Usage: "Send one message to an A2A agent and print the result",
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:  "url",
				Value: "http://localhost:10002",
				Usage: "Base URL of the agent",
			},
			&cli.StringFlag{
				Name:  "message",
				Value: "Hello, what can you do?",
				Usage: "Text to send",
			},
		},
		Action: func(c *cli.Context) error {
			e := getEnv(c)
			result, err := sendOnce(c.Context, e.logger, c.String("url"), c.String("message"))
			if err != nil {
				e.logger.Error("Error fetching public agent card", zap.Error(err))
				return cli.Exit(err.Error(), 1)
			}
			fmt.Fprintln(e.out, result)
			return nil
		},
	}
}

// sendOnce resolves the card at url, sends text and returns the result as indented JSON.
func sendOnce(ctx context.Context, logger *zap.Logger, url, text string) (string, error) {
	logger.Info("Fetching public agent card", zap.String("url", url))
	card, err := a2a.NewCardResolver(url, nil).GetAgentCard(ctx)
	if err != nil {
		return "", fmt.Errorf("failed to fetch public agent card: %w", err)
	}
	client, err := a2a.NewClient(card, &a2a.ClientConfig{Timeout: 2 * time.Minute, BaseURL: url, Logger: logger})
	if err != nil {
		return "", err
	}
	ev, err := client.SendMessage(ctx, &a2a.MessageSendParams{
		Message: *a2a.NewMessage(a2a.RoleUser, uuid.NewString(), a2a.NewTextPart(text)),
	})
	if err != nil {
		return "", err
	}
	data, err := json.MarshalIndent(ev, "", "  ")
	if err != nil {
		return "", err
	}
	return string(data), nil
}
