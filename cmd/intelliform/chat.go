package main

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"strings"

	"github.com/spf13/cobra"

	"github.com/ashureev/intelliform/internal/catalog"
	"github.com/ashureev/intelliform/internal/domain"
	"github.com/ashureev/intelliform/internal/pacing"
	"github.com/ashureev/intelliform/internal/session"
)

// chatCmd runs an interactive conversation against the backend.
var chatCmd = &cobra.Command{
	Use:   "chat",
	Short: "Start an interactive conversation",
	Long: `Start a conversation with the form assistant. Assistant messages are
shown one after another with a short pause.

Commands:
  /reset     start a new conversation
  /generate  generate the PDF of a completed form
  /files     list generated documents
  /logs      show recent diagnostics
  /health    probe the backend
  /test      run the connection test
  /quit      exit`,
	RunE: runChatCmd,
}

func runChatCmd(cmd *cobra.Command, _ []string) error {
	client, err := newClient()
	if err != nil {
		return err
	}
	ctrl := session.NewController(session.Config{
		ViewID:  "cli",
		Backend: client,
		Catalog: catalog.Default(),
		Logger:  slog.Default(),
	})
	defer ctrl.Close()

	if !ctrl.CheckHealth(cmd.Context()) {
		fmt.Fprintf(cmd.ErrOrStderr(), "warning: backend %s is not reachable\n", backendURL)
	}
	return runChat(cmd.Context(), cmd.InOrStdin(), cmd.OutOrStdout(), ctrl, pacing.New(thinkPause))
}

// chat drives one controller from line-based input.
type chat struct {
	ctrl  *session.Controller
	pacer *pacing.Scheduler
	out   io.Writer
}

func runChat(ctx context.Context, in io.Reader, out io.Writer, ctrl *session.Controller, pacer *pacing.Scheduler) error {
	c := &chat{ctrl: ctrl, pacer: pacer, out: out}

	for _, m := range ctrl.Snapshot().Messages {
		c.print(m)
	}

	scanner := bufio.NewScanner(in)
	for {
		c.printf("\nyou> ")
		if !scanner.Scan() {
			c.printf("\n")
			return scanner.Err()
		}
		line := strings.TrimSpace(scanner.Text())
		if line == "" {
			continue
		}
		if strings.HasPrefix(line, "/") {
			if quit := c.command(ctx, line); quit {
				return nil
			}
			continue
		}
		c.send(ctx, line)
		if ctx.Err() != nil {
			return ctx.Err()
		}
	}
}

func (c *chat) send(ctx context.Context, text string) {
	reply, err := c.ctrl.SendMessage(ctx, text)
	if err != nil {
		c.printf("error: %v\n", err)
		return
	}
	c.play(ctx, reply.Messages)
	if reply.Session.CanGenerate {
		c.printf("\n(form complete, type /generate to create the PDF)\n")
	} else if reply.Session.Progress != "" {
		c.printf("\n[%s | %s]\n", reply.Session.StateLabel, reply.Session.Progress)
	}
}

func (c *chat) command(ctx context.Context, line string) (quit bool) {
	switch strings.Fields(line)[0] {
	case "/quit", "/exit":
		return true
	case "/reset":
		c.ctrl.Reset(ctx)
		msgs := c.ctrl.Snapshot().Messages
		c.play(ctx, msgs)
	case "/generate":
		_, err := c.ctrl.GenerateArtifact(ctx)
		if errors.Is(err, session.ErrBusy) {
			c.printf("error: %v\n", err)
			return false
		}
		msgs := c.ctrl.Snapshot().Messages
		if len(msgs) > 0 {
			c.play(ctx, msgs[len(msgs)-1:])
		}
	case "/files":
		arts := c.ctrl.Artifacts()
		if len(arts) == 0 {
			c.printf("no documents generated yet\n")
		}
		for _, a := range arts {
			c.printf("%s  %s  %s\n", a.GeneratedAt.Format("15:04:05"), a.Filename, a.DownloadURL)
		}
	case "/logs":
		for _, e := range c.ctrl.Diagnostics() {
			c.printf("%s  %-18s %s\n", e.Timestamp.Format("15:04:05"), e.Action, e.Details)
		}
	case "/health":
		if c.ctrl.CheckHealth(ctx) {
			c.printf("backend connected\n")
		} else {
			c.printf("backend not reachable\n")
		}
	case "/test":
		if c.ctrl.TestConnection(ctx) {
			c.printf("connection test passed\n")
		} else {
			c.printf("connection test failed, see /logs\n")
		}
	default:
		c.printf("unknown command %s\n", line)
	}
	return false
}

func (c *chat) play(ctx context.Context, msgs []domain.Message) {
	_ = c.pacer.Play(ctx, msgs, func(m domain.Message) error {
		c.print(m)
		return nil
	})
}

func (c *chat) print(m domain.Message) {
	if m.Role == domain.RoleUser {
		return
	}
	c.printf("\nassistant> %s\n", m.Content)
}

func (c *chat) printf(format string, args ...any) {
	fmt.Fprintf(c.out, format, args...)
}
