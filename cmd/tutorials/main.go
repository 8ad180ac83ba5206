package main

import (
	"context"
	"log"
	"os"
	"os/signal"
	"syscall"

	"github.com/agent-protocol/adk-tutorials/pkg/cli"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	app := cli.NewApp()
	if err := app.RunContext(ctx, os.Args); err != nil {
		log.Fatal(err)
	}
}
