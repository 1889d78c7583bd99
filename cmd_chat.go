package main

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"strings"
	"sync"

	"github.com/spf13/cobra"

	"github.com/arunshreyas/Marketa/internal/chat"
	"github.com/arunshreyas/Marketa/internal/domain"
	"github.com/arunshreyas/Marketa/internal/session"
)

func (a *app) openChat(ctx context.Context, campaignID string) (*chat.Controller, error) {
	if err := a.services(ctx); err != nil {
		return nil, err
	}
	if _, err := a.requireUser(); err != nil {
		return nil, err
	}
	ctrl := chat.NewController(a.client, a.store, a.sessions, chat.Options{
		Feed:   a.feedOptions(),
		Logger: a.logger,
	})
	if err := ctrl.Open(ctx, campaignID); err != nil {
		_ = ctrl.Close()
		return nil, err
	}
	return ctrl, nil
}

func (a *app) chatCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "chat <campaign-id>",
		Short: "Chat with the assistant about a campaign",
		Long: `Opens the chat of a campaign in line mode. Type a message and press
Enter to send; replies appear as they arrive.

Commands:
  /ask <text>  wait for the answer before continuing
  /quit        leave the chat`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, stop := signalContext(cmd.Context())
			defer stop()

			ctrl, err := a.openChat(ctx, args[0])
			if err != nil {
				return err
			}
			defer ctrl.Close()

			out := &lockedWriter{w: cmd.OutOrStdout()}
			p := newTranscriptPrinter(out)
			p.history(ctrl.Snapshot())
			printf(out, "\nType a message and press Enter to send.\nCommands: /ask <text>, /quit\n\n")

			loopCtx, cancel := context.WithCancelCause(ctx)
			defer cancel(nil)
			done := make(chan struct{})
			go func() {
				defer close(done)
				followUpdates(ctrl.Updates(), p, cancel)
			}()

			err = a.chatLoop(loopCtx, ctrl, cmd.InOrStdin(), out)
			ctrl.Close()
			<-done
			return err
		},
	}
}

func (a *app) chatLoop(ctx context.Context, ctrl *chat.Controller, in io.Reader, out io.Writer) error {
	lines := make(chan string)
	go func() {
		defer close(lines)
		scanner := bufio.NewScanner(in)
		for scanner.Scan() {
			select {
			case lines <- scanner.Text():
			case <-ctx.Done():
				return
			}
		}
	}()

	for {
		var input string
		select {
		case <-ctx.Done():
			if cause := context.Cause(ctx); isSessionError(cause) {
				return cause
			}
			printf(out, "\nInterrupted\n")
			return nil
		case line, ok := <-lines:
			if !ok {
				return nil
			}
			input = strings.TrimSpace(line)
		}

		switch {
		case input == "":
			continue
		case input == "/quit":
			printf(out, "Bye!\n")
			return nil
		case strings.HasPrefix(input, "/ask "):
			// The answer reaches the screen through the update printer.
			if _, err := ctrl.Ask(ctx, strings.TrimPrefix(input, "/ask ")); err != nil {
				if isSessionError(err) {
					return err
				}
				if ctx.Err() == nil {
					printf(out, "! %s\n", userMessage(err))
				}
			}
		default:
			if err := ctrl.Send(ctx, input); err != nil {
				if isSessionError(err) {
					return err
				}
				if ctx.Err() == nil {
					printf(out, "! %s\n", userMessage(err))
				}
			}
		}
	}
}

// followUpdates prints updates until the channel closes and stops the input
// loop once the backend has rejected the session.
func followUpdates(updates <-chan chat.Update, p *transcriptPrinter, stop context.CancelCauseFunc) {
	for u := range updates {
		p.update(u)
		if u.Expired {
			stop(session.ErrNotSignedIn)
		}
	}
}

func (a *app) askCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "ask <campaign-id> <prompt...>",
		Short: "Ask the assistant one question and print the answer",
		Args:  cobra.MinimumNArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, stop := signalContext(cmd.Context())
			defer stop()

			ctrl, err := a.openChat(ctx, args[0])
			if err != nil {
				return err
			}
			defer ctrl.Close()

			answer, err := ctrl.Ask(ctx, strings.Join(args[1:], " "))
			if err != nil {
				return err
			}
			printf(cmd.OutOrStdout(), "%s\n", answer)
			return nil
		},
	}
}

func (a *app) assistantCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "assistant <prompt...>",
		Short: "Ask the general marketing assistant, outside any campaign",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, stop := signalContext(cmd.Context())
			defer stop()

			if err := a.services(ctx); err != nil {
				return err
			}
			userID, err := a.requireUser()
			if err != nil {
				return err
			}
			prompt := strings.TrimSpace(strings.Join(args, " "))
			if prompt == "" {
				return fmt.Errorf("prompt is required")
			}
			answer, err := a.client.AssistantChat(ctx, domain.CampaignChatRequest{Prompt: prompt, UserID: userID})
			if err != nil {
				return err
			}
			printf(cmd.OutOrStdout(), "%s\n", answer)
			return nil
		},
	}
}

// transcriptPrinter writes assistant messages once each as transcript
// snapshots arrive. User messages are only printed as history; live ones are
// already on screen as typed input.
type transcriptPrinter struct {
	out      io.Writer
	seen     map[string]bool
	timedOut map[string]bool
}

func newTranscriptPrinter(out io.Writer) *transcriptPrinter {
	return &transcriptPrinter{out: out, seen: make(map[string]bool), timedOut: make(map[string]bool)}
}

func (p *transcriptPrinter) history(msgs []domain.Message) {
	if len(msgs) == 0 {
		printf(p.out, "No messages yet.\n")
		return
	}
	for _, m := range msgs {
		if m.Role == domain.RoleUser {
			printf(p.out, "you> %s\n", m.Content)
			continue
		}
		p.seen[assistantKey(m)] = true
		printf(p.out, "marketa> %s\n", m.Content)
	}
}

func (p *transcriptPrinter) update(u chat.Update) {
	for _, m := range u.Messages {
		if m.Role == domain.RoleUser {
			if m.Status == domain.MessageStatusTimedOut && !p.timedOut[m.Key()] {
				p.timedOut[m.Key()] = true
				printf(p.out, "! no reply yet to %q, it may still arrive later\n", m.Content)
			}
			continue
		}
		if key := assistantKey(m); !p.seen[key] {
			p.seen[key] = true
			printf(p.out, "marketa> %s\n", m.Content)
		}
	}
}

func assistantKey(m domain.Message) string {
	return m.Key() + "\x00" + m.Content
}

// lockedWriter serializes writes from the input loop and the update printer.
type lockedWriter struct {
	mu sync.Mutex
	w  io.Writer
}

func (l *lockedWriter) Write(p []byte) (int, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.w.Write(p)
}
