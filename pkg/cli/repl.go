package cli

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"strings"

	"go.uber.org/zap"

	"github.com/agent-protocol/adk-tutorials/pkg/core"
	"github.com/agent-protocol/adk-tutorials/pkg/runners"
	"github.com/agent-protocol/adk-tutorials/pkg/sessions"
)

// ExitMessage is printed when the user leaves a persistent chat.
const ExitMessage = "Ending conversation. Your data has been saved to the database."

// chatWithLatestSession continues the user's most recent session, or starts one,
// and chats until exit.
func chatWithLatestSession(ctx context.Context, e *env, runner *runners.Runner, userID string) error {
	svc := runner.SessionService()
	session, err := sessions.LatestSession(ctx, svc, runner.AppName(), userID)
	if err != nil {
		return fmt.Errorf("failed to list sessions: %w", err)
	}
	if session != nil {
		fmt.Fprintf(e.out, "Continuing existing session: %s\n", session.ID)
	} else {
		session, err = svc.CreateSession(ctx, &core.CreateSessionRequest{
			AppName: runner.AppName(),
			UserID:  userID,
			State:   map[string]any{},
		})
		if err != nil {
			return fmt.Errorf("failed to create session: %w", err)
		}
		fmt.Fprintf(e.out, "Created new session: %s\n", session.ID)
	}

	if err := runREPL(ctx, e, runner, userID, session.ID); err != nil {
		return err
	}
	fmt.Fprintln(e.out, ExitMessage)
	return nil
}

// runREPL sends every input line to the runner until exit, quit or end of input.
// Agent failures are logged and the loop goes on.
func runREPL(ctx context.Context, e *env, runner *runners.Runner, userID, sessionID string) error {
	scanner := bufio.NewScanner(e.in)
	for {
		fmt.Fprint(e.out, "You: ")
		if !scanner.Scan() {
			break
		}
		query := strings.TrimSpace(scanner.Text())
		if query == "" {
			continue
		}
		if q := strings.ToLower(query); q == "exit" || q == "quit" {
			break
		}
		if err := callAgent(ctx, e.out, runner, userID, sessionID, query); err != nil {
			e.logger.Error("Error during agent call", zap.Error(err))
		}
		if ctx.Err() != nil {
			return ctx.Err()
		}
	}
	if err := scanner.Err(); err != nil {
		return fmt.Errorf("error reading input: %w", err)
	}
	return nil
}

// callAgent runs one query and prints every event.
func callAgent(ctx context.Context, out io.Writer, runner *runners.Runner, userID, sessionID, query string) error {
	stream, err := runner.RunAsync(ctx, &core.RunRequest{
		UserID:     userID,
		SessionID:  sessionID,
		NewMessage: core.NewTextContent(core.RoleUser, query),
	})
	if err != nil {
		return err
	}
	var failure error
	for ev := range stream {
		if err := printEvent(out, ev); err != nil && failure == nil {
			failure = err
		}
	}
	return failure
}

// printEvent writes the event header, its text and tool parts, and the final
// response when there is one.
func printEvent(out io.Writer, ev *core.Event) error {
	fmt.Fprintf(out, "Event ID: %s, Author: %s\n", ev.ID, ev.Author)
	if ev.IsError() {
		msg := "unknown error"
		if ev.ErrorMessage != nil {
			msg = *ev.ErrorMessage
		}
		return fmt.Errorf("agent %s failed: %s", ev.Author, msg)
	}
	if ev.Content != nil {
		for _, part := range ev.Content.Parts {
			switch {
			case part == nil:
			case part.FunctionCall != nil:
				fmt.Fprintf(out, "  Tool Call: %s %v\n", part.FunctionCall.Name, part.FunctionCall.Args)
			case part.FunctionResponse != nil:
				fmt.Fprintf(out, "  Tool Response: %v\n", part.FunctionResponse.Response)
			case strings.TrimSpace(part.Text) != "":
				fmt.Fprintf(out, "Response: '%s'\n", strings.TrimSpace(part.Text))
			}
		}
	}
	if ev.IsFinalResponse() {
		if text := strings.TrimSpace(ev.Text()); text != "" {
			fmt.Fprintf(out, "\n==> Final Agent Response: %s\n\n", text)
		} else {
			fmt.Fprintln(out, "\n==> Final Agent Response: [No text content in final event]")
		}
	}
	return nil
}
