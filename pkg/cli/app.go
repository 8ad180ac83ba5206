// Package cli wires the tutorial agents into the tutorials command line.
package cli

import (
	"context"
	"fmt"
	"io"
	"math/rand/v2"
	"os"
	"time"

	"github.com/urfave/cli/v2"
	"go.uber.org/zap"

	"github.com/agent-protocol/adk-tutorials/internal/calendar"
	"github.com/agent-protocol/adk-tutorials/pkg/config"
	"github.com/agent-protocol/adk-tutorials/pkg/core"
	"github.com/agent-protocol/adk-tutorials/pkg/llm"
	"github.com/agent-protocol/adk-tutorials/pkg/logging"
)

// Version information - will be set during build
var (
	Version   = "dev"
	BuildTime = "unknown"
	GitCommit = "unknown"
)

// envKey is where Before stores the loaded environment in the app metadata.
const envKey = "env"

// env is what every command needs: configuration, a logger and the streams.
type env struct {
	cfg    *config.Config
	logger *zap.Logger
	in     io.Reader
	out    io.Writer
	// newModel builds model connections; tests replace it.
	newModel func(ctx context.Context, cfg config.ModelConfig, logger *zap.Logger) (core.LLMConnection, error)
}

// NewApp creates and configures the CLI application
func NewApp() *cli.App {
	return newApp(llm.New)
}

func newApp(newModel func(context.Context, config.ModelConfig, *zap.Logger) (core.LLMConnection, error)) *cli.App {
	app := &cli.App{
		Name:    "tutorials",
		Usage:   "Agent tutorials: single agents, A2A friends and the pickleball host",
		Version: fmt.Sprintf("%s (built %s, commit %s)", Version, BuildTime, GitCommit),
		Commands: []*cli.Command{
			karleyCommand(),
			nateCommand(),
			kaitlynCommand(),
			serveAllCommand(),
			hostCommand(),
			chatCommand(),
			clientCommand(),
			greetCommand(),
			clockCommand(),
			statefulCommand(),
			todoCommand(),
		},
		Flags: []cli.Flag{
			&cli.BoolFlag{
				Name:  "verbose",
				Usage: "Enable verbose logging",
			},
			&cli.StringFlag{
				Name:    "config",
				Aliases: []string{"c"},
				Usage:   "Path to a YAML configuration file",
				EnvVars: []string{"TUTORIALS_CONFIG"},
			},
		},
		Before: func(c *cli.Context) error {
			cfg, err := config.Load(c.String("config"))
			if err != nil {
				return cli.Exit(err.Error(), 1)
			}
			level := cfg.LogLevel
			if c.Bool("verbose") {
				level = "debug"
			}
			logger, err := logging.New(level, true)
			if err != nil {
				return cli.Exit(fmt.Sprintf("failed to build logger: %v", err), 1)
			}
			c.App.Metadata[envKey] = &env{
				cfg:      cfg,
				logger:   logger,
				in:       c.App.Reader,
				out:      c.App.Writer,
				newModel: newModel,
			}
			return nil
		},
		After: func(c *cli.Context) error {
			if e, ok := c.App.Metadata[envKey].(*env); ok {
				_ = e.logger.Sync()
			}
			return nil
		},
	}
	app.Metadata = map[string]any{}
	app.Reader = os.Stdin
	return app
}

func getEnv(c *cli.Context) *env {
	return c.App.Metadata[envKey].(*env)
}

// model connects to the configured model, or provider/name when none is configured.
func (e *env) model(ctx context.Context, provider, name string) (core.LLMConnection, string, error) {
	mc := e.cfg.ModelFor(provider, name)
	conn, err := e.newModel(ctx, mc, e.logger)
	if err != nil {
		return nil, "", fmt.Errorf("failed to connect to %s model %s: %w", mc.Provider, mc.Name, err)
	}
	return conn, mc.Name, nil
}

// requireGoogleKey turns a missing Gemini key into exit status 1.
func (e *env) requireGoogleKey() error {
	if err := e.cfg.RequireGoogleAPIKey(); err != nil {
		e.logger.Error("Error", zap.Error(err))
		return cli.Exit(err.Error(), 1)
	}
	return nil
}

// newCalendar generates this process's random availability.
func newCalendar() calendar.Calendar {
	return calendar.Generate(time.Now(), rand.New(rand.NewPCG(rand.Uint64(), rand.Uint64())))
}
