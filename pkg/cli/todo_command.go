package cli

import (
	"fmt"

	"github.com/urfave/cli/v2"

	"github.com/agent-protocol/adk-tutorials/internal/todo"
	"github.com/agent-protocol/adk-tutorials/pkg/config"
)

func todoPathFlag() cli.Flag {
	return &cli.StringFlag{
		Name:  "path",
		Usage: "Path of the todo sqlite database",
	}
}

func todoPath(c *cli.Context, e *env) string {
	if c.IsSet("path") {
		return c.String("path")
	}
	if e.cfg.Todo.DatabasePath != "" {
		return e.cfg.Todo.DatabasePath
	}
	return todo.DefaultDatabasePath
}

func todoCommand() *cli.Command {
	return &cli.Command{
		Name:  "todo",
		Usage: "The todo database tutorial",
		Subcommands: []*cli.Command{
			{
				Name:  "create-db",
				Usage: "Create the todo database with sample users and todos",
				Flags: []cli.Flag{todoPathFlag()},
				Action: func(c *cli.Context) error {
					e := getEnv(c)
					path := todoPath(c, e)
					fmt.Fprintf(e.out, "Database path: %s\n", path)
					if err := todo.CreateDatabase(c.Context, path, e.logger); err != nil {
						return cli.Exit(err.Error(), 1)
					}
					fmt.Fprintln(e.out, "Database created and populated successfully.")
					return nil
				},
			},
			{
				Name:  "chat",
				Usage: "Manage todos by talking to the todo agent",
				Flags: []cli.Flag{todoPathFlag(), messageFlag()},
				Action: func(c *cli.Context) error {
					e := getEnv(c)
					if err := e.requireGoogleKey(); err != nil {
						return err
					}
					store, err := todo.Open(todoPath(c, e), e.logger)
					if err != nil {
						return cli.Exit(err.Error(), 1)
					}
					defer store.Close()

					model, name, err := e.model(c.Context, config.ProviderGemini, todo.DefaultModel)
					if err != nil {
						return cli.Exit(err.Error(), 1)
					}
					return runTutorial(c, e, todo.NewAgent(model, name, store, e.logger))
				},
			},
		},
	}
}
