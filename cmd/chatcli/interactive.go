package main

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"os/signal"
	"strings"
	"syscall"

	"adichat/backend/client/pipeline"

	"github.com/spf13/cobra"
)

const replHelp = `commands:
  /list              list chats
  /new               start a new chat
  /select <chat>     switch chat (id or list position)
  /show              print the current chat
  /rename <name>     rename the current chat
  /delete            delete the current chat
  /like <n>          toggle like on message n
  /dislike <n>       toggle dislike on message n
  /copy <n>          print message n verbatim
  /quit              leave
anything else is sent as a prompt`

func newInteractiveCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "chat",
		Short: "Interactive chat session",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, stop := signal.NotifyContext(commandContext(cmd), syscall.SIGINT, syscall.SIGTERM)
			defer stop()

			s, err := openSession(ctx)
			if err != nil {
				return err
			}
			defer s.Close()

			go func() {
				_ = s.app.Follow(ctx, s.client)
			}()

			out, errOut := cmd.OutOrStdout(), cmd.ErrOrStderr()
			go func() {
				for {
					select {
					case n := <-s.app.Notices():
						fmt.Fprintf(errOut, "[%s] %s\n", n.Level, n.Text)
					case <-ctx.Done():
						return
					}
				}
			}()

			fmt.Fprintln(out, replHelp)
			if c, ok := s.app.State().Selected(); ok {
				printChat(out, s.app, c)
			}
			return repl(ctx, s, cmd.InOrStdin(), out)
		},
	}
}

func repl(ctx context.Context, s *cliSession, in io.Reader, out io.Writer) error {
	lines := make(chan string)
	go func() {
		defer close(lines)
		scanner := bufio.NewScanner(in)
		for scanner.Scan() {
			lines <- scanner.Text()
		}
	}()

	for {
		fmt.Fprint(out, "> ")
		var line string
		select {
		case <-ctx.Done():
			return nil
		case l, ok := <-lines:
			if !ok {
				return nil
			}
			line = strings.TrimSpace(l)
		}
		if line == "" {
			continue
		}

		quit, err := runLine(ctx, s, out, line)
		if err != nil && !errors.Is(err, pipeline.ErrCancelled) {
			s.log.Debug("command failed", "line", line, "error", err)
		}
		if quit {
			return nil
		}
	}
}

// runLine executes one REPL line. Failures already surface as notices.
func runLine(ctx context.Context, s *cliSession, out io.Writer, line string) (bool, error) {
	a := s.app
	if !strings.HasPrefix(line, "/") {
		return false, streamReply(ctx, a, out, line)
	}

	name, arg, _ := strings.Cut(strings.TrimPrefix(line, "/"), " ")
	arg = strings.TrimSpace(arg)
	current, _ := a.State().Selected()

	switch name {
	case "quit", "exit":
		return true, nil
	case "help":
		fmt.Fprintln(out, replHelp)
	case "list":
		printChats(out, a.State())
	case "new":
		_, err := a.NewChat(ctx)
		return false, err
	case "select":
		c, err := resolveChat(a.State(), arg)
		if err != nil {
			fmt.Fprintln(out, err)
			return false, nil
		}
		a.Select(c.ID)
		printChat(out, a, c)
	case "show":
		printChat(out, a, current)
	case "rename":
		return false, a.Rename(ctx, current.ID, arg)
	case "delete":
		return false, a.Delete(ctx, current.ID)
	case "like", "dislike":
		m, err := messageAt(current, arg)
		if err != nil {
			fmt.Fprintln(out, err)
			return false, nil
		}
		_, err = a.React(m.Content, name == "like")
		return false, err
	case "copy":
		m, err := messageAt(current, arg)
		if err != nil {
			fmt.Fprintln(out, err)
			return false, nil
		}
		fmt.Fprintln(out, m.Content)
	default:
		fmt.Fprintf(out, "unknown command /%s\n", name)
	}
	return false, nil
}
