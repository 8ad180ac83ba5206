package cli

import (
	"context"

	"github.com/urfave/cli/v2"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/agent-protocol/adk-tutorials/internal/friends"
	"github.com/agent-protocol/adk-tutorials/internal/friends/kaitlyn"
	"github.com/agent-protocol/adk-tutorials/internal/friends/karley"
	"github.com/agent-protocol/adk-tutorials/internal/friends/nate"
	"github.com/agent-protocol/adk-tutorials/pkg/a2a"
	"github.com/agent-protocol/adk-tutorials/pkg/a2a/server"
	"github.com/agent-protocol/adk-tutorials/pkg/config"
)

// friend describes one friend agent server.
type friend struct {
	name  string
	usage string
	addr  func(*config.Config) config.ServerAddr
	build func(ctx context.Context, e *env, addr config.ServerAddr) (*a2a.AgentCard, server.AgentExecutor, error)
}

var karleyFriend = friend{
	name:  "karley",
	usage: "Serve Karley's scheduling agent over A2A",
	addr:  func(c *config.Config) config.ServerAddr { return c.Friends.Karley },
	build: func(ctx context.Context, e *env, addr config.ServerAddr) (*a2a.AgentCard, server.AgentExecutor, error) {
		model, name, err := e.model(ctx, config.ProviderGemini, friends.DefaultModel)
		if err != nil {
			return nil, nil, err
		}
		logger := e.logger.Named("karley")
		agent := karley.NewAgent(model, name, newCalendar(), logger)
		agent.SetStreaming(e.cfg.Model.Streaming)
		return karley.Card(addr.Host, addr.Port), karley.NewExecutor(agent, nil, logger), nil
	},
}

var nateFriend = friend{
	name:  "nate",
	usage: "Serve Nate's crew-style scheduling agent over A2A",
	addr:  func(c *config.Config) config.ServerAddr { return c.Friends.Nate },
	build: func(ctx context.Context, e *env, addr config.ServerAddr) (*a2a.AgentCard, server.AgentExecutor, error) {
		model, name, err := e.model(ctx, config.ProviderGemini, friends.DefaultModel)
		if err != nil {
			return nil, nil, err
		}
		agent := nate.NewSchedulingAgent(model, name, newCalendar(), e.logger.Named("nate"))
		return nate.Card(addr.Host, addr.Port), nate.NewExecutor(agent), nil
	},
}

var kaitlynFriend = friend{
	name:  "kaitlyn",
	usage: "Serve Kaitlyn's ReAct scheduling agent over A2A",
	addr:  func(c *config.Config) config.ServerAddr { return c.Friends.Kaitlyn },
	build: func(ctx context.Context, e *env, addr config.ServerAddr) (*a2a.AgentCard, server.AgentExecutor, error) {
		model, name, err := e.model(ctx, config.ProviderGemini, friends.DefaultModel)
		if err != nil {
			return nil, nil, err
		}
		agent := kaitlyn.NewAgent(model, name, newCalendar(), nil, e.logger.Named("kaitlyn"))
		return kaitlyn.Card(addr.Host, addr.Port), kaitlyn.NewExecutor(agent), nil
	},
}

func karleyCommand() *cli.Command  { return friendCommand(karleyFriend) }
func nateCommand() *cli.Command    { return friendCommand(nateFriend) }
func kaitlynCommand() *cli.Command { return friendCommand(kaitlynFriend) }

func friendFlags() []cli.Flag {
	return []cli.Flag{
		&cli.StringFlag{
			Name:  "host",
			Usage: "Host to bind the server to and advertise in the agent card",
		},
		&cli.IntFlag{
			Name:  "port",
			Usage: "Port to bind the server to",
		},
		&cli.StringFlag{
			Name:  "redis-addr",
			Usage: "Redis address for the task store; tasks stay in memory when empty",
		},
	}
}

func friendCommand(f friend) *cli.Command {
	return &cli.Command{
		Name:  f.name,
		Usage: f.usage,
		Flags: friendFlags(),
		Action: func(c *cli.Context) error {
			e := getEnv(c)
			if err := e.requireGoogleKey(); err != nil {
				return err
			}
			addr := f.addr(e.cfg)
			if c.IsSet("host") {
				addr.Host = c.String("host")
			}
			if c.IsSet("port") {
				addr.Port = c.Int("port")
			}
			tasks := e.cfg.Tasks
			if c.IsSet("redis-addr") {
				tasks.RedisAddr = c.String("redis-addr")
			}
			return serveFriend(c.Context, e, f, addr, tasks)
		},
	}
}

func serveFriend(ctx context.Context, e *env, f friend, addr config.ServerAddr, tasks config.TasksConfig) error {
	card, executor, err := f.build(ctx, e, addr)
	if err != nil {
		e.logger.Error("An error occurred during server startup", zap.String("agent", f.name), zap.Error(err))
		return cli.Exit(err.Error(), 1)
	}
	if err := friends.Serve(ctx, addr.Addr(), card, executor, tasks, e.logger.Named(f.name)); err != nil {
		e.logger.Error("An error occurred during server startup", zap.String("agent", f.name), zap.Error(err))
		return cli.Exit(err.Error(), 1)
	}
	return nil
}

func serveAllCommand() *cli.Command {
	return &cli.Command{
		Name:  "serve-all",
		Usage: "Serve Karley, Nate and Kaitlyn on their configured ports",
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:  "redis-addr",
				Usage: "Redis address shared by the task stores",
			},
		},
		Action: func(c *cli.Context) error {
			e := getEnv(c)
			if err := e.requireGoogleKey(); err != nil {
				return err
			}
			tasks := e.cfg.Tasks
			if c.IsSet("redis-addr") {
				tasks.RedisAddr = c.String("redis-addr")
			}

			g, ctx := errgroup.WithContext(c.Context)
			for _, f := range []friend{karleyFriend, nateFriend, kaitlynFriend} {
				g.Go(func() error {
					return serveFriend(ctx, e, f, f.addr(e.cfg), tasks)
				})
			}
			return g.Wait()
		},
	}
}
