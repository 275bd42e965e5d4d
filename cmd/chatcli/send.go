package main

import (
	"context"
	"fmt"
	"io"
	"strings"

	"adichat/backend/client/app"
	"adichat/backend/client/session"

	"github.com/spf13/cobra"
)

// streamReply sends prompt and prints the reply as it is revealed
func streamReply(ctx context.Context, a *app.App, w io.Writer, prompt string) error {
	state := a.State()
	events := state.Subscribe(256)
	defer state.Unsubscribe(events)

	sub, err := a.Send(ctx, prompt)
	if err != nil {
		return err
	}

	printed := ""
	flush := func(msgID string) {
		c, ok := state.Chat(sub.ChatID)
		if !ok {
			return
		}
		for _, m := range c.Messages {
			if m.ID == msgID && m.Role == session.RoleAssistant && strings.HasPrefix(m.Content, printed) {
				fmt.Fprint(w, m.Content[len(printed):])
				printed = m.Content
			}
		}
	}

	for {
		select {
		case e := <-events:
			if e.Kind == session.MessageContentChanged && e.ChatID == sub.ChatID {
				flush(e.MessageID)
			}
		case <-sub.Done():
			if sub.Reply.ID != "" {
				flush(sub.Reply.ID)
			}
			if printed != "" {
				fmt.Fprintln(w)
			}
			return sub.Err()
		case <-ctx.Done():
			return ctx.Err()
		}
	}
}

func newSendCmd() *cobra.Command {
	var chatRef string
	cmd := &cobra.Command{
		Use:   "send <prompt...>",
		Short: "Send a prompt and print the reply",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := commandContext(cmd)
			s, err := openSession(ctx)
			if err != nil {
				return err
			}
			defer s.Close()

			if chatRef != "" {
				c, err := resolveChat(s.app.State(), chatRef)
				if err != nil {
					return err
				}
				s.app.Select(c.ID)
			}
			return streamReply(ctx, s.app, cmd.OutOrStdout(), strings.Join(args, " "))
		},
	}
	cmd.Flags().StringVar(&chatRef, "chat", "", "chat id or list position (defaults to the most recent)")
	return cmd
}
