package main

import (
	"fmt"
	"io"
	"strconv"
	"strings"

	"adichat/backend/client/app"
	"adichat/backend/client/session"

	"github.com/spf13/cobra"
)

func printChats(w io.Writer, s *session.State) {
	selected := s.SelectedID()
	for i, c := range s.Chats() {
		mark := " "
		if c.ID == selected {
			mark = "*"
		}
		fmt.Fprintf(w, "%s %2d  %-36s  %-24s  %3d msgs  %s\n", mark, i+1, c.ID, c.Name, len(c.Messages), shortTime(c.UpdatedAt))
	}
}

func printChat(w io.Writer, a *app.App, c session.Chat) {
	fmt.Fprintf(w, "# %s (%s)\n", c.Name, c.ID)
	for i, m := range c.Messages {
		reaction := ""
		if m.Role == session.RoleAssistant {
			r := a.Reaction(m.Content)
			switch {
			case r.Liked:
				reaction = " [liked]"
			case r.Disliked:
				reaction = " [disliked]"
			}
		}
		fmt.Fprintf(w, "[%d] %s%s: %s\n", i+1, m.Role, reaction, m.Content)
	}
}

// resolveChat accepts a chat id or a 1-based position in the list
func resolveChat(s *session.State, ref string) (session.Chat, error) {
	if c, ok := s.Chat(ref); ok {
		return c, nil
	}
	if n, err := strconv.Atoi(ref); err == nil {
		chats := s.Chats()
		if n >= 1 && n <= len(chats) {
			return chats[n-1], nil
		}
	}
	return session.Chat{}, fmt.Errorf("no chat %q", ref)
}

func messageAt(c session.Chat, ref string) (session.Message, error) {
	n, err := strconv.Atoi(ref)
	if err != nil || n < 1 || n > len(c.Messages) {
		return session.Message{}, fmt.Errorf("no message %q in chat %s", ref, c.ID)
	}
	return c.Messages[n-1], nil
}

func newChatsCmd() *cobra.Command {
	return &cobra.Command{
		Use:     "chats",
		Aliases: []string{"ls"},
		Short:   "List chats, most recent first",
		RunE: func(cmd *cobra.Command, args []string) error {
			s, err := openSession(commandContext(cmd))
			if err != nil {
				return err
			}
			defer s.Close()
			printChats(cmd.OutOrStdout(), s.app.State())
			return nil
		},
	}
}

func newNewCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "new",
		Short: "Start a new chat",
		RunE: func(cmd *cobra.Command, args []string) error {
			s, err := openSession(commandContext(cmd))
			if err != nil {
				return err
			}
			defer s.Close()
			c, err := s.app.NewChat(commandContext(cmd))
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), c.ID)
			return nil
		},
	}
}

func newShowCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "show [chat]",
		Short: "Print a chat (defaults to the most recent)",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			s, err := openSession(commandContext(cmd))
			if err != nil {
				return err
			}
			defer s.Close()

			c, ok := s.app.State().Selected()
			if len(args) == 1 {
				if c, err = resolveChat(s.app.State(), args[0]); err != nil {
					return err
				}
			} else if !ok {
				return fmt.Errorf("no chats")
			}
			printChat(cmd.OutOrStdout(), s.app, c)
			return nil
		},
	}
}

func newRenameCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "rename <chat> <name...>",
		Short: "Rename a chat",
		Args:  cobra.MinimumNArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := commandContext(cmd)
			s, err := openSession(ctx)
			if err != nil {
				return err
			}
			defer s.Close()

			c, err := resolveChat(s.app.State(), args[0])
			if err != nil {
				return err
			}
			if err := s.app.Rename(ctx, c.ID, strings.Join(args[1:], " ")); err != nil {
				return err
			}
			drainNotices(s.app, cmd.ErrOrStderr())
			return nil
		},
	}
}

func newDeleteCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "delete <chat>",
		Short: "Delete a chat",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := commandContext(cmd)
			s, err := openSession(ctx)
			if err != nil {
				return err
			}
			defer s.Close()

			c, err := resolveChat(s.app.State(), args[0])
			if err != nil {
				return err
			}
			if err := s.app.Delete(ctx, c.ID); err != nil {
				return err
			}
			drainNotices(s.app, cmd.ErrOrStderr())
			return nil
		},
	}
}

func newReactCmd(like bool) *cobra.Command {
	use, short := "like", "Toggle a like on a message"
	if !like {
		use, short = "dislike", "Toggle a dislike on a message"
	}
	return &cobra.Command{
		Use:   use + " <chat> <message>",
		Short: short,
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			s, err := openSession(commandContext(cmd))
			if err != nil {
				return err
			}
			defer s.Close()

			c, err := resolveChat(s.app.State(), args[0])
			if err != nil {
				return err
			}
			m, err := messageAt(c, args[1])
			if err != nil {
				return err
			}
			if _, err := s.app.React(m.Content, like); err != nil {
				return err
			}
			drainNotices(s.app, cmd.ErrOrStderr())
			return nil
		},
	}
}

// newCopyCmd prints a message's raw content so it can be piped elsewhere
func newCopyCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "copy <chat> <message>",
		Short: "Print the raw content of a message",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			s, err := openSession(commandContext(cmd))
			if err != nil {
				return err
			}
			defer s.Close()

			c, err := resolveChat(s.app.State(), args[0])
			if err != nil {
				return err
			}
			m, err := messageAt(c, args[1])
			if err != nil {
				return err
			}
			fmt.Fprint(cmd.OutOrStdout(), m.Content)
			return nil
		},
	}
}
