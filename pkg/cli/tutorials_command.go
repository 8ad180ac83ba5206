package cli

import (
	"context"
	"fmt"

	"github.com/urfave/cli/v2"
	"go.uber.org/zap"

	"github.com/agent-protocol/adk-tutorials/internal/tutorials"
	"github.com/agent-protocol/adk-tutorials/pkg/config"
	"github.com/agent-protocol/adk-tutorials/pkg/core"
	"github.com/agent-protocol/adk-tutorials/pkg/runners"
	"github.com/agent-protocol/adk-tutorials/pkg/sessions"
)

const tutorialUserID = "tutorial_user"

func messageFlag() cli.Flag {
	return &cli.StringFlag{
		Name:    "message",
		Aliases: []string{"m"},
		Usage:   "Send one message and exit instead of starting a chat",
	}
}

func greetCommand() *cli.Command {
	return &cli.Command{
		Name:  "greet",
		Usage: "Talk to the greeting agent",
		Flags: []cli.Flag{messageFlag()},
		Action: func(c *cli.Context) error {
			e := getEnv(c)
			model, name, err := e.model(c.Context, config.ProviderOpenAI, tutorials.GreetingModel)
			if err != nil {
				return cli.Exit(err.Error(), 1)
			}
			return runTutorial(c, e, tutorials.NewGreetingAgent(model, name, e.logger))
		},
	}
}

func clockCommand() *cli.Command {
	return &cli.Command{
		Name:  "clock",
		Usage: "Talk to the agent with the get_current_time tool",
		Flags: []cli.Flag{messageFlag()},
		Action: func(c *cli.Context) error {
			e := getEnv(c)
			if err := e.requireGoogleKey(); err != nil {
				return err
			}
			model, name, err := e.model(c.Context, config.ProviderGemini, tutorials.ToolModel)
			if err != nil {
				return cli.Exit(err.Error(), 1)
			}
			return runTutorial(c, e, tutorials.NewToolAgent(model, name, e.logger))
		},
	}
}

// runTutorial answers --message once, or chats on stdin.
func runTutorial(c *cli.Context, e *env, agent core.BaseAgent) error {
	ctx := c.Context
	svc := sessions.NewInMemorySessionService()
	session, err := svc.CreateSession(ctx, &core.CreateSessionRequest{AppName: agent.Name(), UserID: tutorialUserID})
	if err != nil {
		return err
	}
	runner := runners.NewRunner(agent.Name(), agent, svc, e.logger)

	if msg := c.String("message"); msg != "" {
		return askOnce(ctx, e, runner, session.ID, msg)
	}
	fmt.Fprintf(e.out, "Running agent %s, type 'exit' to exit.\n", agent.Name())
	return runREPL(ctx, e, runner, tutorialUserID, session.ID)
}

func askOnce(ctx context.Context, e *env, runner *runners.Runner, sessionID, msg string) error {
	events, err := runner.Run(ctx, &core.RunRequest{
		UserID:     tutorialUserID,
		SessionID:  sessionID,
		NewMessage: core.NewTextContent(core.RoleUser, msg),
	})
	if err != nil {
		return err
	}
	answer, err := tutorials.FinalResponse(events)
	if err != nil {
		return cli.Exit(err.Error(), 1)
	}
	fmt.Fprintf(e.out, "[%s]: %s\n", runner.Agent().Name(), answer)
	return nil
}

func statefulCommand() *cli.Command {
	return &cli.Command{
		Name:  "stateful",
		Usage: "Ask the question answering agent about preferences kept in session state",
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:  "question",
				Value: tutorials.QAQuestion,
				Usage: "Question to ask",
			},
		},
		Action: func(c *cli.Context) error {
			e := getEnv(c)
			model, name, err := e.model(c.Context, config.ProviderGemini, tutorials.ToolModel)
			if err != nil {
				return cli.Exit(err.Error(), 1)
			}
			res, err := tutorials.RunStateful(c.Context, tutorials.NewQAAgent(model, name, e.logger), nil, c.String("question"), e.logger)
			if err != nil {
				e.logger.Error("Stateful session failed", zap.Error(err))
				return cli.Exit(err.Error(), 1)
			}
			res.Print(e.out)
			return nil
		},
	}
}
